package catalog

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"testing"

	"bulksync/core/bulk"
	"bulksync/core/bulk/engine"
	"bulksync/core/bulk/op"
	"bulksync/core/storage/mocks"

	"github.com/minio/minio-go/v7"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

const bucket = "test-bucket"

func setupTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", strings.ReplaceAll(t.Name(), "/", "_"))
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&Item{}))
	return db
}

func setupService(t *testing.T, options op.Options) (*Service, *mocks.Client, *gorm.DB) {
	t.Helper()
	db := setupTestDB(t)
	client := new(mocks.Client)
	executor := bulk.NewExecutor(engine.NewRegistry(0, nil), zap.NewNop(), nil)
	svc := NewService(NewSource(client, bucket, "catalog/"), executor, db, options, zap.NewNop())
	return svc, client, db
}

func listing(keys ...string) <-chan minio.ObjectInfo {
	ch := make(chan minio.ObjectInfo, len(keys))
	for _, k := range keys {
		ch <- minio.ObjectInfo{Key: k}
	}
	close(ch)
	return ch
}

func exportBody(items ...string) io.ReadCloser {
	return io.NopCloser(strings.NewReader(`{"generated_at":"2026-02-01T00:00:00Z","items":[` + strings.Join(items, ",") + `]}`))
}

func item(sku, name string, price float64) string {
	return fmt.Sprintf(`{"sku":%q,"name":%q,"category":"toys","price":%g,"stock":5}`, sku, name, price)
}

func TestSource_Latest(t *testing.T) {
	client := new(mocks.Client)
	client.On("ListObjects", mock.Anything, bucket, mock.Anything).Return(listing(
		"catalog/2026-01-01.json",
		"catalog/2026-02-01.json",
		"catalog/2026-03-01.report.json",
		"catalog/readme.txt",
	)).Once()
	client.On("ListObjects", mock.Anything, bucket, mock.Anything).Return(listing()).Once()

	src := NewSource(client, bucket, "catalog/")
	key, err := src.Latest(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "catalog/2026-02-01.json", key)

	_, err = src.Latest(context.Background())
	assert.ErrorIs(t, err, ErrNoExport)
}

func TestSource_Load(t *testing.T) {
	tests := []struct {
		name    string
		body    io.ReadCloser
		wantErr string
	}{
		{"Valid", exportBody(item("A", "a", 1), item("B", "b", 2)), ""},
		{"MissingSKU", exportBody(item("", "a", 1)), "item 0 has no sku"},
		{"DuplicateSKU", exportBody(item("A", "a", 1), item("A", "b", 2)), "duplicate sku A"},
		{"Malformed", io.NopCloser(strings.NewReader("{")), "invalid catalog export"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client := new(mocks.Client)
			client.On("GetObject", mock.Anything, bucket, "catalog/x.json", mock.Anything).Return(tt.body, nil)

			exp, err := NewSource(client, bucket, "catalog/").Load(context.Background(), "catalog/x.json")
			if tt.wantErr != "" {
				assert.ErrorIs(t, err, ErrInvalidExport)
				assert.ErrorContains(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Len(t, exp.Items, 2)
		})
	}
}

func TestService_SyncUpsert(t *testing.T) {
	ctx := context.Background()
	svc, client, db := setupService(t, op.Defaults())

	client.On("ListObjects", mock.Anything, bucket, mock.Anything).Return(listing("catalog/2026-02-01.json"))
	client.On("GetObject", mock.Anything, bucket, "catalog/2026-02-01.json", mock.Anything).
		Return(exportBody(item("A", "a", 1), item("B", "b", 2), item("C", "c", 3)), nil).Once()
	client.On("PutObject", mock.Anything, bucket, "catalog/2026-02-01.report.json", mock.Anything, mock.Anything, mock.Anything).
		Return(minio.UploadInfo{}, nil)

	report, err := svc.Sync(ctx, SyncRequest{})
	require.NoError(t, err)
	assert.Equal(t, OperationUpsert, report.Operation)
	assert.Equal(t, int64(3), report.Inserted)
	assert.Zero(t, report.Unchanged)

	client.On("GetObject", mock.Anything, bucket, "catalog/2026-02-01.json", mock.Anything).
		Return(exportBody(item("A", "a", 1), item("B", "renamed", 2), item("C", "c", 3), item("D", "d", 4)), nil).Once()

	report, err = svc.Sync(ctx, SyncRequest{Object: "catalog/2026-02-01.json"})
	require.NoError(t, err)
	assert.Equal(t, int64(1), report.Inserted)
	assert.Equal(t, int64(1), report.Updated)
	assert.Equal(t, 2, report.Unchanged)

	var count int64
	require.NoError(t, db.Model(&Item{}).Count(&count).Error)
	assert.Equal(t, int64(4), count)
	client.AssertNumberOfCalls(t, "PutObject", 2)
}

func TestService_SyncReportFailureIsNotFatal(t *testing.T) {
	svc, client, _ := setupService(t, op.Defaults())
	client.On("GetObject", mock.Anything, bucket, "catalog/a.json", mock.Anything).Return(exportBody(item("A", "a", 1)), nil)
	client.On("PutObject", mock.Anything, bucket, "catalog/a.report.json", mock.Anything, mock.Anything, mock.Anything).
		Return(minio.UploadInfo{}, errors.New("denied"))

	report, err := svc.Sync(context.Background(), SyncRequest{Object: "catalog/a.json"})
	require.NoError(t, err)
	assert.Equal(t, int64(1), report.Inserted)
}

func TestService_DryRun(t *testing.T) {
	ctx := context.Background()
	svc, client, db := setupService(t, op.Defaults())
	require.NoError(t, db.Create([]*Item{
		{SKU: "A", Name: "a", Category: "toys", Price: 1, Stock: 5},
		{SKU: "B", Name: "b", Category: "toys", Price: 2, Stock: 5},
		{SKU: "OLD", Name: "old", Category: "toys"},
		{SKU: "PINNED", Name: "pinned", Category: "toys", Keep: true},
		{SKU: "SEASONAL", Name: "seasonal", Category: "xmas"},
	}).Error)

	client.On("GetObject", mock.Anything, bucket, "catalog/a.json", mock.Anything).
		Return(exportBody(item("A", "a", 1), item("B", "b", 9), item("N", "n", 1)), nil)

	report, err := svc.Sync(ctx, SyncRequest{Object: "catalog/a.json", Operation: OperationSync, DryRun: true, KeepCategories: []string{"xmas"}})
	require.NoError(t, err)
	assert.True(t, report.DryRun)
	assert.Equal(t, int64(1), report.Inserted)
	assert.Equal(t, int64(1), report.Updated)
	assert.Equal(t, int64(1), report.Deleted)
	assert.Equal(t, 1, report.Unchanged)

	var stored Item
	require.NoError(t, db.Where("sku = ?", "B").First(&stored).Error)
	assert.Equal(t, float64(2), stored.Price)
	client.AssertNotCalled(t, "PutObject", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestService_SyncErrors(t *testing.T) {
	svc, client, _ := setupService(t, op.Defaults())
	client.On("GetObject", mock.Anything, bucket, "catalog/a.json", mock.Anything).Return(exportBody(item("A", "a", 1)), nil)

	_, err := svc.Sync(context.Background(), SyncRequest{Operation: "merge"})
	assert.ErrorIs(t, err, ErrInvalidOperation)

	// SQLite has no set based delete-sync.
	_, err = svc.Sync(context.Background(), SyncRequest{Object: "catalog/a.json", Operation: OperationSync})
	assert.ErrorIs(t, err, op.ErrUnsupportedOperation)

	_, err = NewService(nil, nil, nil, op.Defaults(), nil).Sync(context.Background(), SyncRequest{})
	assert.ErrorIs(t, err, ErrNoDatabase)
}

func TestService_LookupAndTruncate(t *testing.T) {
	ctx := context.Background()
	opts := op.Defaults()
	opts.UseTempDB = true
	svc, _, db := setupService(t, opts)
	require.NoError(t, db.Create([]*Item{
		{SKU: "A", Name: "a", Category: "toys", Price: 1},
		{SKU: "B", Name: "b", Category: "toys", Price: 2},
	}).Error)

	items, err := svc.Lookup(ctx, []string{"B", "missing"})
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, "b", items[0].Name)
	assert.NotZero(t, items[0].ID)

	require.NoError(t, svc.Truncate(ctx))
	var count int64
	require.NoError(t, db.Model(&Item{}).Count(&count).Error)
	assert.Zero(t, count)
}

func TestSyncFilter(t *testing.T) {
	filter, args := syncFilter(nil)
	assert.Equal(t, "T.keep = ?", filter)
	assert.Equal(t, []any{false}, args)

	filter, args = syncFilter([]string{"xmas", "archive"})
	assert.Equal(t, "T.keep = ? AND T.category NOT IN (?, ?)", filter)
	assert.Equal(t, []any{false, "xmas", "archive"}, args)
}
