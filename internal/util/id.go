package util

import (
	"crypto/rand"
	"encoding/hex"
	"time"
)

// NewCaseID returns a sortable case identifier: upload timestamp plus a
// short random suffix.
func NewCaseID() string {
	bytes := make([]byte, 4)
	_, _ = rand.Read(bytes)
	return "case-" + time.Now().UTC().Format("20060102-150405") + "-" + hex.EncodeToString(bytes)
}
