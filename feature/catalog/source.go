package catalog

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"bulksync/core/storage"

	"github.com/minio/minio-go/v7"
)

const reportSuffix = ".report.json"

var (
	// ErrNoExport is returned when the bucket holds no catalog export.
	ErrNoExport = errors.New("no catalog export found")
	// ErrInvalidExport is returned for exports that cannot be applied.
	ErrInvalidExport = errors.New("invalid catalog export")
)

// Source reads catalog exports from object storage.
type Source struct {
	client storage.Client
	bucket string
	prefix string
}

// NewSource creates a source over the exports stored under prefix.
func NewSource(client storage.Client, bucket, prefix string) *Source {
	return &Source{client: client, bucket: bucket, prefix: prefix}
}

// Latest returns the key of the newest export. Export keys carry their timestamp,
// so the newest is the greatest key.
func (s *Source) Latest(ctx context.Context) (string, error) {
	var latest string
	for obj := range s.client.ListObjects(ctx, s.bucket, minio.ListObjectsOptions{Prefix: s.prefix, Recursive: true}) {
		if obj.Err != nil {
			return "", fmt.Errorf("failed to list catalog exports: %w", obj.Err)
		}
		if !strings.HasSuffix(obj.Key, ".json") || strings.HasSuffix(obj.Key, reportSuffix) {
			continue
		}
		if obj.Key > latest {
			latest = obj.Key
		}
	}
	if latest == "" {
		return "", ErrNoExport
	}
	return latest, nil
}

// Load downloads and validates an export.
func (s *Source) Load(ctx context.Context, key string) (*Export, error) {
	rc, err := s.client.GetObject(ctx, s.bucket, key, minio.GetObjectOptions{})
	if err != nil {
		return nil, fmt.Errorf("failed to get catalog export %s: %w", key, err)
	}
	defer rc.Close()

	var exp Export
	if err := json.NewDecoder(rc).Decode(&exp); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrInvalidExport, key, err)
	}

	seen := make(map[string]struct{}, len(exp.Items))
	for i, it := range exp.Items {
		if it == nil || strings.TrimSpace(it.SKU) == "" {
			return nil, fmt.Errorf("%w: %s: item %d has no sku", ErrInvalidExport, key, i)
		}
		if _, dup := seen[it.SKU]; dup {
			return nil, fmt.Errorf("%w: %s: duplicate sku %s", ErrInvalidExport, key, it.SKU)
		}
		seen[it.SKU] = struct{}{}
		// Identities belong to the database.
		it.ID = 0
	}
	return &exp, nil
}

// SaveReport stores the report next to its export.
func (s *Source) SaveReport(ctx context.Context, report *Report) error {
	data, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return err
	}
	key := strings.TrimSuffix(report.Object, ".json") + reportSuffix
	_, err = s.client.PutObject(ctx, s.bucket, key, bytes.NewReader(data), int64(len(data)), minio.PutObjectOptions{
		ContentType: "application/json",
	})
	if err != nil {
		return fmt.Errorf("failed to upload sync report %s: %w", key, err)
	}
	return nil
}
