package engine

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"bulksync/core/bulk/op"
	"bulksync/core/database"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

// TestParse tests provider identifier suffix matching.
func TestParse(t *testing.T) {
	tests := []struct {
		provider string
		want     Engine
	}{
		{"sqlserver", SQLServer},
		{"Microsoft.EntityFrameworkCore.SqlServer", SQLServer},
		{"postgres", PostgreSQL},
		{"Npgsql.EntityFrameworkCore.PostgreSQL", PostgreSQL},
		{"pgx", PostgreSQL},
		{"MySQL", MySQL},
		{"Pomelo.EntityFrameworkCore.MySql", MySQL},
		{"sqlite3", SQLite},
		{"Microsoft.EntityFrameworkCore.Sqlite", SQLite},
		{"something-else", SQLServer},
	}

	for _, tt := range tests {
		t.Run(tt.provider, func(t *testing.T) {
			assert.Equal(t, tt.want, Parse(tt.provider))
		})
	}
}

// TestDialect_Quote tests identifier quoting and escaping per engine.
func TestDialect_Quote(t *testing.T) {
	assert.Equal(t, "[Order]]s]", Dialect{SQLServer}.Quote("Order]s"))
	assert.Equal(t, `"a""b"`, Dialect{PostgreSQL}.Quote(`a"b`))
	assert.Equal(t, "`a``b`", Dialect{MySQL}.Quote("a`b"))
	assert.Equal(t, `"items"`, Dialect{SQLite}.Quote("items"))

	assert.Equal(t, "[dbo].[Items]", Dialect{SQLServer}.Qualify("dbo", "Items"))
	assert.Equal(t, `"items"`, Dialect{PostgreSQL}.Qualify("", "items"))
	assert.Equal(t, "T.[Id], T.[Name]", Dialect{SQLServer}.Columns("T", []string{"Id", "Name"}))
}

// TestDialect_Rebind tests placeholder renumbering in caller fragments.
func TestDialect_Rebind(t *testing.T) {
	assert.Equal(t, "category = $3 AND note <> '?'", Dialect{PostgreSQL}.Rebind("category = ? AND note <> '?'", 2))
	assert.Equal(t, "a = @p1 OR b = @p2", Dialect{SQLServer}.Rebind("a = ? OR b = ?", 0))
	assert.Equal(t, "a = ?", Dialect{MySQL}.Rebind("a = ?", 4))
}

// TestCapabilities_Supports tests the delete-sync support matrix.
func TestCapabilities_Supports(t *testing.T) {
	assert.True(t, CapabilitiesOf(SQLServer).Supports(op.InsertOrUpdateOrDelete))
	assert.True(t, CapabilitiesOf(PostgreSQL).Supports(op.InsertOrUpdateOrDelete))
	assert.False(t, CapabilitiesOf(MySQL).Supports(op.InsertOrUpdateOrDelete))
	assert.False(t, CapabilitiesOf(SQLite).Supports(op.InsertOrUpdateOrDelete))
	assert.True(t, CapabilitiesOf(MySQL).Supports(op.InsertOrUpdate))
}

// TestRegistry_Resolve tests that adapters are memoized per provider.
func TestRegistry_Resolve(t *testing.T) {
	r := NewRegistry(0, nil)

	a := r.Resolve("postgres")
	b := r.Resolve("POSTGRES")
	assert.Same(t, a, b)
	assert.Equal(t, PostgreSQL, a.Engine)
	assert.Equal(t, PostgreSQL, a.Dialect.Engine)
	assert.True(t, a.Capabilities.NeedsUniqueIndex)

	assert.NotSame(t, a, r.Resolve("mysql"))
}

// TestRegistry_Shape tests caching, singleflight and invalidation of table probes.
func TestRegistry_Shape(t *testing.T) {
	var calls int32
	inspect := func(ctx context.Context, db *gorm.DB, schema, table string) (*database.TableShape, error) {
		atomic.AddInt32(&calls, 1)
		time.Sleep(10 * time.Millisecond)
		return &database.TableShape{Table: table, Exists: true, Identity: "id"}, nil
	}
	r := NewRegistry(time.Minute, inspect)
	a := r.Resolve("sqlite")

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			shape, err := r.Shape(context.Background(), nil, a, "", "items")
			assert.NoError(t, err)
			assert.Equal(t, "id", shape.Identity)
		}()
	}
	wg.Wait()
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))

	r.Invalidate("", "ITEMS")
	_, err := r.Shape(context.Background(), nil, a, "", "items")
	require.NoError(t, err)
	assert.Equal(t, int32(2), atomic.LoadInt32(&calls))
}

// TestRegistry_ShapePerDatabase tests that equally named tables of two databases
// are probed and cached separately.
func TestRegistry_ShapePerDatabase(t *testing.T) {
	var calls int32
	inspect := func(ctx context.Context, db *gorm.DB, schema, table string) (*database.TableShape, error) {
		atomic.AddInt32(&calls, 1)
		return &database.TableShape{Table: table, Exists: true}, nil
	}
	r := NewRegistry(time.Minute, inspect)
	a := r.Resolve("postgres")

	sales := &gorm.DB{Config: &gorm.Config{Dialector: postgres.Open("host=db dbname=sales")}}
	stock := &gorm.DB{Config: &gorm.Config{Dialector: postgres.Open("host=db dbname=stock")}}
	for _, db := range []*gorm.DB{sales, stock, sales, stock} {
		_, err := r.Shape(context.Background(), db, a, "public", "items")
		require.NoError(t, err)
	}
	assert.Equal(t, int32(2), atomic.LoadInt32(&calls))

	r.Invalidate("public", "items")
	_, err := r.Shape(context.Background(), sales, a, "public", "items")
	require.NoError(t, err)
	assert.Equal(t, int32(3), atomic.LoadInt32(&calls))
}

// TestRegistry_ShapeMissingNotCached tests that missing tables are probed again.
func TestRegistry_ShapeMissingNotCached(t *testing.T) {
	var calls int32
	inspect := func(ctx context.Context, db *gorm.DB, schema, table string) (*database.TableShape, error) {
		atomic.AddInt32(&calls, 1)
		return &database.TableShape{Table: table}, nil
	}
	r := NewRegistry(time.Minute, inspect)
	a := r.Resolve("mysql")

	for i := 0; i < 2; i++ {
		shape, err := r.Shape(context.Background(), nil, a, "", "missing")
		require.NoError(t, err)
		assert.False(t, shape.Exists)
	}
	assert.Equal(t, int32(2), atomic.LoadInt32(&calls))
}

// TestRegistry_ShapeError tests probe error propagation.
func TestRegistry_ShapeError(t *testing.T) {
	r := NewRegistry(time.Minute, func(ctx context.Context, db *gorm.DB, schema, table string) (*database.TableShape, error) {
		return nil, errors.New("boom")
	})
	_, err := r.Shape(context.Background(), nil, r.Resolve("mysql"), "", "items")
	assert.EqualError(t, err, "boom")
}
