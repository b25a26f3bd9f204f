package storage_test

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"bulksync/core/storage"
	"bulksync/core/storage/mocks"

	"github.com/minio/minio-go/v7"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConfig(t *testing.T) {
	tests := []struct {
		name    string
		cfg     storage.Config
		host    string
		prefix  string
		timeout time.Duration
	}{
		{"Defaults", storage.Config{Endpoint: "localhost:9000", CatalogPrefix: "catalog/"}, "localhost:9000", "catalog/", 30 * time.Second},
		{"HTTP Scheme", storage.Config{Endpoint: "http://minio:9000", CatalogPrefix: "/exports", TimeoutSeconds: 5}, "minio:9000", "exports/", 5 * time.Second},
		{"HTTPS Scheme", storage.Config{Endpoint: "https://s3.amazonaws.com", CatalogPrefix: "a/b//"}, "s3.amazonaws.com", "a/b/", 30 * time.Second},
		{"Whole Bucket", storage.Config{Endpoint: "localhost:9000", CatalogPrefix: "/"}, "localhost:9000", "", 30 * time.Second},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.host, tt.cfg.Host())
			assert.Equal(t, tt.prefix, tt.cfg.ExportPrefix())
			assert.Equal(t, tt.timeout, tt.cfg.Timeout())
		})
	}
}

func TestEnsureBucket(t *testing.T) {
	ctx := context.Background()

	t.Run("Exists", func(t *testing.T) {
		c := new(mocks.Client)
		c.On("BucketExists", ctx, "assets").Return(true, nil)
		assert.NoError(t, storage.EnsureBucket(ctx, c, "assets"))
		c.AssertExpectations(t)
	})

	t.Run("Missing", func(t *testing.T) {
		c := new(mocks.Client)
		c.On("BucketExists", ctx, "assets").Return(false, nil)
		err := storage.EnsureBucket(ctx, c, "assets")
		assert.ErrorIs(t, err, storage.ErrBucketNotFound)
		assert.Contains(t, err.Error(), "assets")
	})

	t.Run("Unreachable", func(t *testing.T) {
		c := new(mocks.Client)
		down := errors.New("connection refused")
		c.On("BucketExists", ctx, "assets").Return(false, down)
		err := storage.EnsureBucket(ctx, c, "assets")
		assert.ErrorIs(t, err, down)
		assert.NotErrorIs(t, err, storage.ErrBucketNotFound)
	})
}

// fakeS3 serves the handful of S3 calls the catalog source makes, path style.
type fakeS3 struct {
	mu      sync.Mutex
	objects map[string][]byte
}

func (f *fakeS3) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()

	path := strings.TrimPrefix(r.URL.Path, "/assets")
	switch {
	case !strings.HasPrefix(r.URL.Path, "/assets"):
		w.WriteHeader(http.StatusNotFound)
	case r.Method == http.MethodHead && strings.Trim(path, "/") == "":
		w.WriteHeader(http.StatusOK)
	case r.Method == http.MethodGet && r.URL.Query().Get("list-type") == "2":
		prefix := r.URL.Query().Get("prefix")
		var b strings.Builder
		b.WriteString(`<?xml version="1.0" encoding="UTF-8"?><ListBucketResult xmlns="http://s3.amazonaws.com/doc/2006-03-01/">`)
		fmt.Fprintf(&b, `<Name>assets</Name><Prefix>%s</Prefix><MaxKeys>1000</MaxKeys><IsTruncated>false</IsTruncated>`, prefix)
		for key, body := range f.objects {
			if !strings.HasPrefix(key, prefix) {
				continue
			}
			fmt.Fprintf(&b, `<Contents><Key>%s</Key><LastModified>2026-01-01T00:00:00.000Z</LastModified><ETag>&quot;e&quot;</ETag><Size>%d</Size><StorageClass>STANDARD</StorageClass></Contents>`, key, len(body))
		}
		b.WriteString(`</ListBucketResult>`)
		w.Header().Set("Content-Type", "application/xml")
		_, _ = io.WriteString(w, b.String())
	case r.Method == http.MethodGet:
		body, ok := f.objects[strings.TrimPrefix(path, "/")]
		if !ok {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		w.Header().Set("Content-Length", fmt.Sprint(len(body)))
		w.Header().Set("Content-Type", "application/json")
		w.Header().Set("ETag", `"e"`)
		w.Header().Set("Last-Modified", time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC).Format(http.TimeFormat))
		_, _ = w.Write(body)
	case r.Method == http.MethodPut:
		body, _ := io.ReadAll(r.Body)
		f.objects[strings.TrimPrefix(path, "/")] = body
		w.Header().Set("ETag", `"e"`)
		w.WriteHeader(http.StatusOK)
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func (f *fakeS3) has(key string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.objects[key]
	return ok
}

func TestClient_CatalogCalls(t *testing.T) {
	s3 := &fakeS3{objects: map[string][]byte{
		"catalog/2026-01-01.json": []byte(`{"items":[]}`),
		"other/readme.txt":        []byte("hi"),
	}}
	srv := httptest.NewServer(s3)
	defer srv.Close()

	cfg := storage.Config{
		Endpoint:       srv.URL,
		AccessKey:      "testkey",
		SecretKey:      "testsecret",
		Bucket:         "assets",
		CatalogPrefix:  "/catalog",
		Region:         "us-east-1",
		TimeoutSeconds: 5,
	}
	client, err := storage.NewClient(cfg)
	require.NoError(t, err)
	ctx := context.Background()

	require.NoError(t, storage.EnsureBucket(ctx, client, cfg.Bucket))

	var keys []string
	for obj := range client.ListObjects(ctx, cfg.Bucket, minio.ListObjectsOptions{Prefix: cfg.ExportPrefix(), Recursive: true}) {
		require.NoError(t, obj.Err)
		keys = append(keys, obj.Key)
	}
	assert.Equal(t, []string{"catalog/2026-01-01.json"}, keys)

	rc, err := client.GetObject(ctx, cfg.Bucket, keys[0], minio.GetObjectOptions{})
	require.NoError(t, err)
	body, err := io.ReadAll(rc)
	require.NoError(t, err)
	require.NoError(t, rc.Close())
	assert.JSONEq(t, `{"items":[]}`, string(body))

	report := []byte(`{"inserted":1}`)
	_, err = client.PutObject(ctx, cfg.Bucket, "catalog/2026-01-01.report.json", bytes.NewReader(report), int64(len(report)),
		minio.PutObjectOptions{ContentType: "application/json"})
	require.NoError(t, err)
	assert.True(t, s3.has("catalog/2026-01-01.report.json"))
}
