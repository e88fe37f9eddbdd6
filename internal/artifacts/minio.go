// Package artifacts stores generated report files in S3-compatible object
// storage so delivered exports remain retrievable after the fact.
package artifacts

import (
	"bytes"
	"context"
	"fmt"
	"path"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// Store uploads and fetches report artifacts. A nil *Store disables
// archiving; every method is nil-safe.
type Store struct {
	client *minio.Client
	bucket string
}

// Config holds the object storage connection settings.
type Config struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	UseSSL    bool
}

// New connects to the object store and ensures the bucket exists.
func New(ctx context.Context, cfg Config) (*Store, error) {
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("connect object storage: %w", err)
	}

	exists, err := client.BucketExists(ctx, cfg.Bucket)
	if err != nil {
		return nil, fmt.Errorf("check bucket %s: %w", cfg.Bucket, err)
	}
	if !exists {
		if err := client.MakeBucket(ctx, cfg.Bucket, minio.MakeBucketOptions{}); err != nil {
			return nil, fmt.Errorf("create bucket %s: %w", cfg.Bucket, err)
		}
	}

	return &Store{client: client, bucket: cfg.Bucket}, nil
}

// PutReport archives one exported report under reports/<caseID>/<filename>
// and returns the object key.
func (s *Store) PutReport(ctx context.Context, caseID, filename, mimeType string, data []byte) (string, error) {
	if s == nil {
		return "", nil
	}
	key := path.Join("reports", caseID, fmt.Sprintf("%s-%s", time.Now().UTC().Format("20060102T150405"), filename))
	_, err := s.client.PutObject(ctx, s.bucket, key, bytes.NewReader(data), int64(len(data)), minio.PutObjectOptions{
		ContentType: mimeType,
	})
	if err != nil {
		return "", fmt.Errorf("archive report %s: %w", key, err)
	}
	return key, nil
}

// GetReport fetches an archived report by its object key.
func (s *Store) GetReport(ctx context.Context, key string) ([]byte, error) {
	if s == nil {
		return nil, fmt.Errorf("artifact storage not configured")
	}
	obj, err := s.client.GetObject(ctx, s.bucket, key, minio.GetObjectOptions{})
	if err != nil {
		return nil, fmt.Errorf("fetch report %s: %w", key, err)
	}
	defer obj.Close()

	var buf bytes.Buffer
	if _, err := buf.ReadFrom(obj); err != nil {
		return nil, fmt.Errorf("read report %s: %w", key, err)
	}
	return buf.Bytes(), nil
}

// ListReports returns the object keys archived for one case.
func (s *Store) ListReports(ctx context.Context, caseID string) ([]string, error) {
	if s == nil {
		return nil, nil
	}
	prefix := path.Join("reports", caseID) + "/"
	var keys []string
	for obj := range s.client.ListObjects(ctx, s.bucket, minio.ListObjectsOptions{Prefix: prefix, Recursive: true}) {
		if obj.Err != nil {
			return nil, fmt.Errorf("list reports %s: %w", caseID, obj.Err)
		}
		keys = append(keys, obj.Key)
	}
	return keys, nil
}
