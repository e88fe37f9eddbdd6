package store

import "time"

// CaseSummary is the listing row for a stored case, without the section
// payloads.
type CaseSummary struct {
	ID            string     `json:"id"`
	CustomerName  string     `json:"customerName"`
	CustomerEmail string     `json:"customerEmail"`
	Pipeline      string     `json:"pipeline"`
	Status        string     `json:"status"`
	RecordsCount  int        `json:"recordsCount"`
	UploadedAt    time.Time  `json:"uploadedAt"`
	AnalyzedAt    *time.Time `json:"analyzedAt,omitempty"`
	LastEdited    *time.Time `json:"lastEdited,omitempty"`
}

// CaseSearchHit is one row of the Postgres fallback search.
type CaseSearchHit struct {
	CaseID       string
	CustomerName string
	Status       string
}
