package bulk

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"testing"

	"bulksync/core/bulk/engine"
	"bulksync/core/bulk/metrics"
	"bulksync/core/bulk/op"
	"bulksync/core/database"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/driver/sqlserver"
	"gorm.io/gorm"
)

type Product struct {
	ID       int64  `gorm:"primaryKey"`
	SKU      string `gorm:"size:64;uniqueIndex"`
	Name     string
	Price    float64
	Category string
	Keep     bool
}

type mockReporter struct {
	mock.Mock
}

func (m *mockReporter) Observe(o metrics.Observation) {
	m.Called(o)
}

func openSQLite(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", strings.ReplaceAll(t.Name(), "/", "_"))
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&Product{}))
	return db
}

func newExecutor() *Executor {
	return NewExecutor(engine.NewRegistry(0, nil), nil, nil)
}

func count(t *testing.T, db *gorm.DB) int64 {
	t.Helper()
	var n int64
	require.NoError(t, db.Model(&Product{}).Count(&n).Error)
	return n
}

func products(from, to int) []*Product {
	out := make([]*Product, 0, to-from)
	for i := from; i < to; i++ {
		out = append(out, &Product{SKU: fmt.Sprintf("SKU-%04d", i), Name: fmt.Sprintf("product %d", i), Price: float64(i), Category: "toys"})
	}
	return out
}

// TestExecutor_KeyScenario tests a thousand row upsert by alternate key.
func TestExecutor_KeyScenario(t *testing.T) {
	ctx := context.Background()
	db := openSQLite(t)
	x := newExecutor()

	var progress []float64
	opts := op.Defaults()
	opts.SetOutputIdentity = true
	opts.CalculateStats = true
	opts.UpdateByProperties = []string{"SKU"}
	opts.BatchSize = 250
	opts.Progress = func(f float64) { progress = append(progress, f) }

	first := products(0, 1000)
	res, err := InsertOrUpdate(ctx, x, db, first, opts)
	require.NoError(t, err)
	assert.Equal(t, &op.Stats{Inserted: 1000}, res.Stats)
	assert.Equal(t, int64(1000), res.Loaded)
	assert.Equal(t, []float64{0.25, 0.5, 0.75, 1}, progress)

	seen := make(map[int64]bool, len(first))
	for _, p := range first {
		require.NotZero(t, p.ID)
		assert.False(t, seen[p.ID], "duplicate id %d", p.ID)
		seen[p.ID] = true
	}

	// Half the rows change, half stay, and five hundred are new.
	second := make([]*Product, 0, 1500)
	for i, p := range first {
		c := *p
		c.ID = 0
		if i < 500 {
			c.Price += 1000
		}
		second = append(second, &c)
	}
	second = append(second, products(1000, 1500)...)

	opts.Progress = nil
	res, err = InsertOrUpdate(ctx, x, db, second, opts)
	require.NoError(t, err)
	assert.Equal(t, &op.Stats{Inserted: 500, Updated: 500}, res.Stats)
	assert.Equal(t, 500, res.SkippedForUpdate)
	assert.Equal(t, int64(1500), count(t, db))
	assert.Equal(t, first[0].ID, second[0].ID)
	assert.Zero(t, second[700].ID)
	assert.NotZero(t, second[1200].ID)

	var stored Product
	require.NoError(t, db.Where("sku = ?", "SKU-0010").First(&stored).Error)
	assert.Equal(t, float64(1010), stored.Price)
}

// TestExecutor_NumericLookingKeys tests keys that a loose conversion would read as numbers.
func TestExecutor_NumericLookingKeys(t *testing.T) {
	ctx := context.Background()
	db := openSQLite(t)
	x := newExecutor()

	key := func(i int) string {
		if i == 500 {
			return "00e500"
		}
		return fmt.Sprintf("%05d", i)
	}
	items := make([]*Product, 0, 1000)
	for i := 500; i < 1500; i++ {
		items = append(items, &Product{SKU: key(i), Name: fmt.Sprintf("product %d", i), Category: "toys"})
	}

	opts := op.Defaults()
	opts.UpdateByProperties = []string{"SKU"}
	opts.SetOutputIdentity = true
	res, err := InsertOrUpdate(ctx, x, db, items, opts)
	require.NoError(t, err)
	assert.Equal(t, int64(1000), res.Loaded)
	assert.Equal(t, int64(1000), count(t, db))

	lookups := make([]*Product, 0, 1000)
	for i := 500; i < 1500; i++ {
		lookups = append(lookups, &Product{SKU: key(i)})
	}
	_, res, err = Read(ctx, x, db, lookups, opts)
	require.NoError(t, err)
	assert.Equal(t, 1000, res.Matched)
	for i, p := range lookups {
		require.Equal(t, items[i].ID, p.ID, p.SKU)
		assert.Equal(t, items[i].Name, p.Name)
	}

	var stored Product
	require.NoError(t, db.Where("sku = ?", "00e500").First(&stored).Error)
	assert.Equal(t, "product 500", stored.Name)
}

// TestExecutor_IdempotentUpsert tests that repeating an upsert changes nothing.
func TestExecutor_IdempotentUpsert(t *testing.T) {
	ctx := context.Background()
	db := openSQLite(t)
	x := newExecutor()

	opts := op.Defaults()
	opts.SetOutputIdentity = true
	opts.CalculateStats = true

	items := products(0, 3)
	res, err := InsertOrUpdate(ctx, x, db, items, opts)
	require.NoError(t, err)
	assert.Equal(t, &op.Stats{Inserted: 3}, res.Stats)
	ids := []int64{items[0].ID, items[1].ID, items[2].ID}

	res, err = InsertOrUpdate(ctx, x, db, items, opts)
	require.NoError(t, err)
	assert.Equal(t, &op.Stats{}, res.Stats)
	assert.Equal(t, int64(0), res.RowsAffected)
	assert.Equal(t, int64(3), count(t, db))
	assert.Equal(t, ids, []int64{items[0].ID, items[1].ID, items[2].ID})

	items[1].Name = "renamed"
	items = append(items, products(3, 4)...)
	res, err = InsertOrUpdate(ctx, x, db, items, opts)
	require.NoError(t, err)
	assert.Equal(t, &op.Stats{Inserted: 1, Updated: 1}, res.Stats)
	assert.Greater(t, items[3].ID, ids[2])
}

// TestExecutor_InsertOrder tests that generated keys follow input order.
func TestExecutor_InsertOrder(t *testing.T) {
	db := openSQLite(t)
	opts := op.Defaults()
	opts.SetOutputIdentity = true

	items := products(0, 50)
	_, err := Insert(context.Background(), newExecutor(), db, items, opts)
	require.NoError(t, err)
	for i := 1; i < len(items); i++ {
		assert.Greater(t, items[i].ID, items[i-1].ID)
	}
}

// TestExecutor_InsertOnlyNew tests that a skipped update branch leaves rows alone.
func TestExecutor_InsertOnlyNew(t *testing.T) {
	ctx := context.Background()
	db := openSQLite(t)
	x := newExecutor()
	_, err := Insert(ctx, x, db, products(0, 2), op.Defaults())
	require.NoError(t, err)

	opts := op.Defaults()
	opts.UpdateByProperties = []string{"SKU"}
	opts.PropertiesToIncludeOnUpdate = []string{""}
	items := products(0, 3)
	items[0].Name = "changed"
	_, err = InsertOrUpdate(ctx, x, db, items, opts)
	require.NoError(t, err)

	var names []string
	require.NoError(t, db.Model(&Product{}).Order("sku").Pluck("name", &names).Error)
	assert.Equal(t, []string{"product 0", "product 1", "product 2"}, names)
}

// TestExecutor_UpdateDeleteRead tests the staged operations.
func TestExecutor_UpdateDeleteRead(t *testing.T) {
	ctx := context.Background()
	db := openSQLite(t)
	x := newExecutor()

	items := products(0, 4)
	_, err := Insert(ctx, x, db, items, func() op.Options { o := op.Defaults(); o.SetOutputIdentity = true; return o }())
	require.NoError(t, err)

	t.Run("Update", func(t *testing.T) {
		opts := op.Defaults()
		opts.PropertiesToIncludeOnUpdate = []string{"Price"}
		opts.CalculateStats = true
		changed := []*Product{
			{ID: items[0].ID, SKU: items[0].SKU, Name: "ignored", Price: 99},
			{ID: items[1].ID, SKU: items[1].SKU, Name: items[1].Name, Price: items[1].Price},
		}
		res, err := Update(ctx, x, db, changed, opts)
		require.NoError(t, err)
		assert.Equal(t, &op.Stats{Updated: 1}, res.Stats)

		var stored Product
		require.NoError(t, db.First(&stored, items[0].ID).Error)
		assert.Equal(t, float64(99), stored.Price)
		assert.Equal(t, "product 0", stored.Name)
	})

	t.Run("Read In Place", func(t *testing.T) {
		lookup := []*Product{{ID: items[2].ID}, {ID: 9999}}
		got, res, err := Read(ctx, x, db, lookup, op.Defaults())
		require.NoError(t, err)
		assert.Equal(t, 1, res.Matched)
		assert.Equal(t, "product 2", got[0].Name)
		assert.Equal(t, items[2].SKU, got[0].SKU)
		assert.Zero(t, got[1].ID)
	})

	t.Run("Read Replace", func(t *testing.T) {
		opts := op.Defaults()
		opts.ReplaceReadEntities = true
		lookup := []*Product{{ID: items[3].ID}, {ID: 9999}}
		got, _, err := Read(ctx, x, db, lookup, opts)
		require.NoError(t, err)
		require.Len(t, got, 1)
		assert.Equal(t, "product 3", got[0].Name)
		assert.Equal(t, int64(9999), lookup[1].ID)
	})

	t.Run("Delete", func(t *testing.T) {
		opts := op.Defaults()
		opts.CalculateStats = true
		res, err := Delete(ctx, x, db, []*Product{{ID: items[0].ID}, {ID: items[1].ID}}, opts)
		require.NoError(t, err)
		assert.Equal(t, &op.Stats{Deleted: 2}, res.Stats)
		assert.Equal(t, int64(2), count(t, db))
	})

	t.Run("Truncate", func(t *testing.T) {
		_, err := Truncate[Product](ctx, x, db)
		require.NoError(t, err)
		assert.Zero(t, count(t, db))
	})
}

// TestExecutor_Ambiguous tests that duplicate keys fail after the write.
func TestExecutor_Ambiguous(t *testing.T) {
	ctx := context.Background()
	db := openSQLite(t)
	x := newExecutor()
	_, err := Insert(ctx, x, db, products(0, 1), op.Defaults())
	require.NoError(t, err)

	opts := op.Defaults()
	opts.UpdateByProperties = []string{"SKU"}
	opts.SetOutputIdentity = true
	dupes := []*Product{
		{SKU: "SKU-0000", Name: "first", Price: 1},
		{SKU: "SKU-0000", Name: "second", Price: 2},
	}
	_, err = Update(ctx, x, db, dupes, opts)
	require.Error(t, err)
	assert.ErrorIs(t, err, op.ErrAmbiguousOutputIdentity)
	assert.Contains(t, err.Error(), "(SKU-0000)")
	assert.Zero(t, dupes[0].ID)
	assert.Zero(t, dupes[1].ID)
}

// TestExecutor_TransactionRequired tests UseTempDB outside and inside a transaction.
func TestExecutor_TransactionRequired(t *testing.T) {
	ctx := context.Background()
	db := openSQLite(t)

	reporter := &mockReporter{}
	reporter.On("Observe", mock.MatchedBy(func(o metrics.Observation) bool {
		return o.Status == metrics.StatusFailure && o.Reason == string(op.ReasonTransactionRequired)
	})).Once()
	reporter.On("Observe", mock.MatchedBy(func(o metrics.Observation) bool {
		return o.Status == metrics.StatusSuccess
	}))
	x := NewExecutor(engine.NewRegistry(0, nil), nil, reporter)

	opts := op.Defaults()
	opts.UseTempDB = true
	opts.SetOutputIdentity = true

	_, err := Insert(ctx, x, db, products(0, 1), opts)
	assert.ErrorIs(t, err, op.ErrTransactionRequired)

	err = db.Transaction(func(tx *gorm.DB) error {
		if _, err := Insert(ctx, x, tx, products(0, 2), opts); err != nil {
			return err
		}
		update := opts
		update.PropertiesToIncludeOnUpdate = []string{"Price"}
		_, err := Update(ctx, x, tx, []*Product{{ID: 1, Price: 5}}, update)
		return err
	})
	require.NoError(t, err)
	assert.Equal(t, int64(2), count(t, db))
	reporter.AssertExpectations(t)
}

// TestExecutor_EdgeCases tests empty input and unsupported operations.
func TestExecutor_EdgeCases(t *testing.T) {
	ctx := context.Background()
	db := openSQLite(t)
	x := newExecutor()

	res, err := Insert[Product](ctx, x, db, nil, op.Defaults())
	require.NoError(t, err)
	assert.Zero(t, res.Loaded)

	_, err = InsertOrUpdateOrDelete(ctx, x, db, products(0, 1), op.Defaults())
	assert.ErrorIs(t, err, op.ErrUnsupportedOperation)

	opts := op.Defaults()
	opts.PropertiesToInclude = []string{"Name"}
	opts.PropertiesToExclude = []string{"Price"}
	_, err = Insert(ctx, x, db, products(0, 1), opts)
	assert.ErrorIs(t, err, op.ErrMultiplePropertyListSet)
}

func stubShape(_ context.Context, _ *gorm.DB, schema, table string) (*database.TableShape, error) {
	return &database.TableShape{
		Schema:        schema,
		Table:         table,
		Exists:        true,
		Columns:       []database.ColumnInfo{{Field: "id", Null: "NO", Precision: -1}},
		PrimaryKey:    []string{"id"},
		Identity:      "id",
		UniqueIndexes: [][]string{{"sku"}},
	}, nil
}

func syncOptions() op.Options {
	opts := op.Defaults()
	opts.UniqueTableNameTempDB = false
	opts.UpdateByProperties = []string{"SKU"}
	opts.SynchronizeFilter = "T.category = ?"
	opts.SynchronizeFilterArgs = []any{"toys"}
	return opts
}

// TestExecutor_SQLServerSync tests the delete-sync statement flow on SQL Server.
func TestExecutor_SQLServerSync(t *testing.T) {
	sqlDB, sqlMock, err := sqlmock.New()
	require.NoError(t, err)
	defer sqlDB.Close()
	db, err := gorm.Open(sqlserver.New(sqlserver.Config{Conn: sqlDB}), &gorm.Config{})
	require.NoError(t, err)

	sqlMock.ExpectExec(regexp.QuoteMeta(`SELECT TOP 0 T.[sku], T.[name], T.[price], T.[category], T.[keep], CAST(NULL AS int) AS [BulkSync_OriginalIndex] INTO [productsTemp]`)).
		WillReturnResult(sqlmock.NewResult(0, 0))
	prep := sqlMock.ExpectPrepare("INSERTBULK")
	prep.ExpectExec().WithArgs("A", "a", 1.5, "toys", false, int64(0)).WillReturnResult(sqlmock.NewResult(0, 0))
	prep.ExpectExec().WithArgs("B", "b", 2.5, "toys", false, int64(1)).WillReturnResult(sqlmock.NewResult(0, 0))
	prep.ExpectExec().WillReturnResult(sqlmock.NewResult(0, 2))
	sqlMock.ExpectExec(regexp.QuoteMeta(`MERGE [products] WITH (HOLDLOCK) AS T USING [productsTemp] AS S ON T.[sku] = S.[sku]`) +
		".*" + regexp.QuoteMeta(`WHEN NOT MATCHED BY SOURCE AND (T.category = @p1) THEN DELETE;`)).
		WithArgs("toys").
		WillReturnResult(sqlmock.NewResult(0, 3))
	sqlMock.ExpectExec(regexp.QuoteMeta(`IF OBJECT_ID('[productsTemp]', 'U') IS NOT NULL DROP TABLE [productsTemp]`)).
		WillReturnResult(sqlmock.NewResult(0, 0))

	x := NewExecutor(engine.NewRegistry(0, stubShape), nil, nil)
	items := []*Product{{SKU: "A", Name: "a", Price: 1.5, Category: "toys"}, {SKU: "B", Name: "b", Price: 2.5, Category: "toys"}}
	res, err := InsertOrUpdateOrDelete(context.Background(), x, db, items, syncOptions())
	require.NoError(t, err)
	assert.Equal(t, int64(2), res.Loaded)
	assert.Equal(t, int64(3), res.RowsAffected)
	assert.Equal(t, "[products]", res.Table)
	assert.NoError(t, sqlMock.ExpectationsWereMet())
}

// TestExecutor_PostgresSync tests the decomposed delete-sync with output on PostgreSQL.
func TestExecutor_PostgresSync(t *testing.T) {
	sqlDB, sqlMock, err := sqlmock.New()
	require.NoError(t, err)
	defer sqlDB.Close()
	db, err := gorm.Open(postgres.New(postgres.Config{Conn: sqlDB}), &gorm.Config{})
	require.NoError(t, err)

	outCols := []string{"id", "sku", "name", "price", "category", "keep", "BulkSync_OriginalIndex", "BulkSync_MergeAction"}
	sqlMock.ExpectExec(regexp.QuoteMeta(`CREATE TABLE "productsTemp" AS SELECT T."sku", T."name", T."price", T."category", T."keep", CAST(NULL AS int) AS "BulkSync_OriginalIndex" FROM "products" AS T LIMIT 0`)).
		WillReturnResult(sqlmock.NewResult(0, 0))
	sqlMock.ExpectExec(regexp.QuoteMeta(`INSERT INTO "productsTemp" ("sku", "name", "price", "category", "keep", "BulkSync_OriginalIndex") VALUES ($1, $2, $3, $4, $5, $6), ($7, $8, $9, $10, $11, $12)`)).
		WithArgs("A", "a", 1.5, "toys", false, int64(0), "B", "b", 2.5, "toys", false, int64(1)).
		WillReturnResult(sqlmock.NewResult(0, 2))
	sqlMock.ExpectQuery(regexp.QuoteMeta(`INSERT INTO "products" AS T ("sku", "name", "price", "category", "keep") SELECT S."sku", S."name", S."price", S."category", S."keep" FROM "productsTemp" AS S ORDER BY S."BulkSync_OriginalIndex" ON CONFLICT ("sku") DO UPDATE SET`)).
		WillReturnRows(sqlmock.NewRows(outCols).
			AddRow(int64(7), "A", "a", 1.5, "toys", false, nil, "I").
			AddRow(int64(3), "B", "b", 2.5, "toys", false, nil, "U"))
	sqlMock.ExpectQuery(regexp.QuoteMeta(`DELETE FROM "products" AS T WHERE NOT EXISTS (SELECT 1 FROM "productsTemp" AS S WHERE T."sku" = S."sku") AND (T.category = $1) RETURNING`)).
		WithArgs("toys").
		WillReturnRows(sqlmock.NewRows(outCols).AddRow(int64(9), "Z", "z", 9.0, "toys", false, nil, "D"))
	sqlMock.ExpectExec(regexp.QuoteMeta(`DROP TABLE IF EXISTS "productsTemp"`)).
		WillReturnResult(sqlmock.NewResult(0, 0))

	opts := syncOptions()
	opts.SetOutputIdentity = true
	opts.CalculateStats = true

	x := NewExecutor(engine.NewRegistry(0, stubShape), nil, nil)
	items := []*Product{{SKU: "A", Name: "a", Price: 1.5, Category: "toys"}, {SKU: "B", Name: "b", Price: 2.5, Category: "toys"}}
	res, err := InsertOrUpdateOrDelete(context.Background(), x, db, items, opts)
	require.NoError(t, err)
	assert.Equal(t, &op.Stats{Inserted: 1, Updated: 1, Deleted: 1}, res.Stats)
	assert.Equal(t, int64(3), res.RowsAffected)
	assert.Equal(t, int64(7), items[0].ID)
	assert.Equal(t, int64(3), items[1].ID)
	assert.NoError(t, sqlMock.ExpectationsWereMet())
}

// TestExecutor_AmbiguousMatch tests that one staged row matching several target rows
// fails on engines that report the source ordinal.
func TestExecutor_AmbiguousMatch(t *testing.T) {
	outCols := []string{"id", "sku", "name", "price", "category", "keep", "BulkSync_OriginalIndex", "BulkSync_MergeAction"}
	opts := op.Defaults()
	opts.UniqueTableNameTempDB = false
	opts.UpdateByProperties = []string{"SKU"}
	opts.SetOutputIdentity = true

	t.Run("SQL Server", func(t *testing.T) {
		sqlDB, sqlMock, err := sqlmock.New()
		require.NoError(t, err)
		defer sqlDB.Close()
		db, err := gorm.Open(sqlserver.New(sqlserver.Config{Conn: sqlDB}), &gorm.Config{})
		require.NoError(t, err)

		sqlMock.ExpectExec(`SELECT TOP 0 .* INTO \[productsTemp\] FROM`).WillReturnResult(sqlmock.NewResult(0, 0))
		sqlMock.ExpectExec(`SELECT TOP 0 .* INTO \[productsTempOutput\] FROM`).WillReturnResult(sqlmock.NewResult(0, 0))
		prep := sqlMock.ExpectPrepare("INSERTBULK")
		prep.ExpectExec().WillReturnResult(sqlmock.NewResult(0, 0))
		prep.ExpectExec().WillReturnResult(sqlmock.NewResult(0, 1))
		sqlMock.ExpectExec(regexp.QuoteMeta(`MERGE [products] WITH (HOLDLOCK) AS T USING`)).
			WillReturnResult(sqlmock.NewResult(0, 2))
		sqlMock.ExpectQuery(regexp.QuoteMeta(`FROM [productsTempOutput]`)).
			WillReturnRows(sqlmock.NewRows(outCols).
				AddRow(int64(5), "A", "a", 1.0, "toys", false, int64(0), "U").
				AddRow(int64(6), "A", "a", 1.0, "toys", false, int64(0), "U"))
		sqlMock.ExpectExec(regexp.QuoteMeta(`DROP TABLE [productsTemp]`)).WillReturnResult(sqlmock.NewResult(0, 0))
		sqlMock.ExpectExec(regexp.QuoteMeta(`DROP TABLE [productsTempOutput]`)).WillReturnResult(sqlmock.NewResult(0, 0))

		x := NewExecutor(engine.NewRegistry(0, stubShape), nil, nil)
		items := []*Product{{SKU: "A", Name: "a", Price: 1, Category: "toys"}}
		_, err = Update(context.Background(), x, db, items, opts)
		require.Error(t, err)
		assert.ErrorIs(t, err, op.ErrAmbiguousOutputIdentity)
		assert.Contains(t, err.Error(), "(A)")
		assert.Zero(t, items[0].ID)
		assert.NoError(t, sqlMock.ExpectationsWereMet())
	})

	t.Run("PostgreSQL", func(t *testing.T) {
		sqlDB, sqlMock, err := sqlmock.New()
		require.NoError(t, err)
		defer sqlDB.Close()
		db, err := gorm.Open(postgres.New(postgres.Config{Conn: sqlDB}), &gorm.Config{})
		require.NoError(t, err)

		sqlMock.ExpectExec(regexp.QuoteMeta(`CREATE TABLE "productsTemp" AS SELECT`)).WillReturnResult(sqlmock.NewResult(0, 0))
		sqlMock.ExpectExec(regexp.QuoteMeta(`INSERT INTO "productsTemp"`)).WillReturnResult(sqlmock.NewResult(0, 1))
		sqlMock.ExpectQuery(regexp.QuoteMeta(`UPDATE "products" AS T SET`)).
			WillReturnRows(sqlmock.NewRows(outCols).
				AddRow(int64(5), "A", "a", 1.0, "toys", false, int64(0), "U").
				AddRow(int64(6), "A", "a", 1.0, "toys", false, int64(0), "U"))
		sqlMock.ExpectExec(regexp.QuoteMeta(`DROP TABLE IF EXISTS "productsTemp"`)).WillReturnResult(sqlmock.NewResult(0, 0))

		x := NewExecutor(engine.NewRegistry(0, stubShape), nil, nil)
		items := []*Product{{SKU: "A", Name: "a", Price: 1, Category: "toys"}}
		_, err = Update(context.Background(), x, db, items, opts)
		require.Error(t, err)
		assert.ErrorIs(t, err, op.ErrAmbiguousOutputIdentity)
		assert.Zero(t, items[0].ID)
		assert.NoError(t, sqlMock.ExpectationsWereMet())
	})
}

// TestExecutor_LoadFailure tests that a failed load restores a missing staging table
// and returns the load error.
func TestExecutor_LoadFailure(t *testing.T) {
	opts := op.Defaults()
	opts.UniqueTableNameTempDB = false
	opts.UpdateByProperties = []string{"SKU"}
	loadErr := errors.New("bulk copy rejected")

	tests := []struct {
		name     string
		exists   int64
		recreate bool
	}{
		{name: "Staging Dropped", exists: 0, recreate: true},
		{name: "Staging Present", exists: 1, recreate: false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sqlDB, sqlMock, err := sqlmock.New()
			require.NoError(t, err)
			defer sqlDB.Close()
			db, err := gorm.Open(sqlserver.New(sqlserver.Config{Conn: sqlDB}), &gorm.Config{})
			require.NoError(t, err)

			create := `SELECT TOP 0 .* INTO \[productsTemp\] FROM`
			sqlMock.ExpectExec(create).WillReturnResult(sqlmock.NewResult(0, 0))
			sqlMock.ExpectPrepare("INSERTBULK").WillReturnError(loadErr)
			sqlMock.ExpectQuery(regexp.QuoteMeta(`SELECT CASE WHEN OBJECT_ID(@p1, 'U') IS NULL THEN 0 ELSE 1 END`)).
				WithArgs("[productsTemp]").
				WillReturnRows(sqlmock.NewRows([]string{"present"}).AddRow(tt.exists))
			if tt.recreate {
				sqlMock.ExpectExec(create).WillReturnResult(sqlmock.NewResult(0, 0))
			}
			sqlMock.ExpectExec(regexp.QuoteMeta(`DROP TABLE [productsTemp]`)).WillReturnResult(sqlmock.NewResult(0, 0))

			x := NewExecutor(engine.NewRegistry(0, stubShape), nil, nil)
			items := []*Product{{SKU: "A", Name: "a", Price: 1, Category: "toys"}}
			_, err = Update(context.Background(), x, db, items, opts)
			require.Error(t, err)
			assert.ErrorIs(t, err, loadErr)
			assert.NoError(t, sqlMock.ExpectationsWereMet())
		})
	}
}
