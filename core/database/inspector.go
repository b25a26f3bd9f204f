package database

import (
	"context"
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"gorm.io/gorm"
)

// ColumnInfo matches the output of SHOW COLUMNS
type ColumnInfo struct {
	Field   string
	Type    string
	Null    string
	Key     string
	Default *string // Pointer because NULL default is possible
	Extra   string
	// Precision is the fractional seconds precision of date/time columns, -1 when unknown.
	Precision int `gorm:"-"`
}

// Nullable reports whether the column accepts NULL.
func (c ColumnInfo) Nullable() bool {
	return strings.EqualFold(c.Null, "YES")
}

// TableShape is the live structure of a table as seen by the database.
type TableShape struct {
	// Schema is the schema the table was looked up in, empty for the default.
	Schema string
	// Table is the table name.
	Table string
	// Exists is false when the table could not be found.
	Exists bool
	// Columns lists the table columns in ordinal order.
	Columns []ColumnInfo
	// PrimaryKey lists the primary key columns in key order.
	PrimaryKey []string
	// Identity is the engine generated column, empty when the table has none.
	Identity string
	// UniqueIndexes lists the column sets of every unique index and constraint.
	UniqueIndexes [][]string
}

// Column finds a column by case-insensitive name.
func (s *TableShape) Column(name string) (ColumnInfo, bool) {
	for _, c := range s.Columns {
		if strings.EqualFold(c.Field, name) {
			return c, true
		}
	}
	return ColumnInfo{}, false
}

// HasUniqueIndex reports whether some unique index covers exactly the given columns.
func (s *TableShape) HasUniqueIndex(columns []string) bool {
	want := normalizeSet(columns)
	if len(s.PrimaryKey) > 0 && equalSets(want, normalizeSet(s.PrimaryKey)) {
		return true
	}
	for _, idx := range s.UniqueIndexes {
		if equalSets(want, normalizeSet(idx)) {
			return true
		}
	}
	return false
}

// GetTableColumns retrieves the column definitions for a given table.
func GetTableColumns(db *gorm.DB, tableName string) ([]ColumnInfo, error) {
	shape, err := InspectTable(context.Background(), db, "", tableName)
	if err != nil {
		return nil, err
	}
	return shape.Columns, nil
}

// InspectTable reads the columns, keys, identity and unique indexes of a table.
// A missing table yields a shape with Exists set to false and no error.
func InspectTable(ctx context.Context, db *gorm.DB, schema, table string) (*TableShape, error) {
	db = db.WithContext(ctx)
	shape := &TableShape{Schema: schema, Table: table}
	var err error
	switch db.Dialector.Name() {
	case "sqlite":
		err = inspectSQLite(db, shape)
	case "postgres":
		err = inspectPostgres(db, shape)
	case "sqlserver":
		err = inspectSQLServer(db, shape)
	default:
		err = inspectMySQL(db, shape)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get columns for table %s: %w", table, err)
	}
	shape.Exists = len(shape.Columns) > 0
	return shape, nil
}

func inspectSQLite(db *gorm.DB, shape *TableShape) error {
	// SQLite uses PRAGMA table_info
	type sqliteColumn struct {
		Cid        int
		Name       string
		Type       string
		Notnull    int
		DefaultVal *string `gorm:"column:dflt_value"`
		Pk         int
	}
	var cols []sqliteColumn
	if err := db.Raw(fmt.Sprintf("PRAGMA table_info('%s')", strings.ReplaceAll(shape.Table, "'", "''"))).Scan(&cols).Error; err != nil {
		return err
	}
	pkOrder := map[int]string{}
	for _, col := range cols {
		null := "YES"
		key := ""
		if col.Notnull == 1 {
			null = "NO"
		}
		if col.Pk > 0 {
			key = "PRI"
			pkOrder[col.Pk] = strings.ToLower(col.Name)
		}
		shape.Columns = append(shape.Columns, ColumnInfo{
			Field:     strings.ToLower(col.Name),
			Type:      strings.ToLower(col.Type),
			Null:      null,
			Key:       key,
			Default:   col.DefaultVal,
			Precision: -1,
		})
	}
	shape.PrimaryKey = orderedKeys(pkOrder)

	// A single INTEGER primary key aliases the rowid.
	if len(shape.PrimaryKey) == 1 {
		if c, ok := shape.Column(shape.PrimaryKey[0]); ok && c.Type == "integer" {
			shape.Identity = c.Field
		}
	}

	type sqliteIndex struct {
		Index  string
		Column string
	}
	var idx []sqliteIndex
	err := db.Raw(`SELECT il.name AS "index", ii.name AS "column" FROM pragma_index_list(?) il JOIN pragma_index_info(il.name) ii WHERE il."unique" = 1 ORDER BY il.name, ii.seqno`, shape.Table).Scan(&idx).Error
	if err != nil {
		return err
	}
	shape.UniqueIndexes = groupIndexes(len(idx), func(i int) (string, string) { return idx[i].Index, idx[i].Column })
	return nil
}

var precisionPattern = regexp.MustCompile(`\((\d+)\)`)

func inspectMySQL(db *gorm.DB, shape *TableShape) error {
	var columns []ColumnInfo
	// SHOW COLUMNS fails on a missing table; check information_schema first.
	var count int64
	if err := db.Raw("SELECT COUNT(*) FROM information_schema.TABLES WHERE TABLE_SCHEMA = COALESCE(NULLIF(?, ''), DATABASE()) AND TABLE_NAME = ?", shape.Schema, shape.Table).Scan(&count).Error; err != nil {
		return err
	}
	if count == 0 {
		return nil
	}
	if err := db.Raw(fmt.Sprintf("SHOW COLUMNS FROM `%s`", strings.ReplaceAll(shape.Table, "`", "``"))).Scan(&columns).Error; err != nil {
		return err
	}
	// Normalize types to lowercase
	for i := range columns {
		columns[i].Type = strings.ToLower(columns[i].Type)
		columns[i].Field = strings.ToLower(columns[i].Field)
		columns[i].Precision = -1
		if strings.HasPrefix(columns[i].Type, "datetime") || strings.HasPrefix(columns[i].Type, "timestamp") || strings.HasPrefix(columns[i].Type, "time") {
			columns[i].Precision = 0
			if m := precisionPattern.FindStringSubmatch(columns[i].Type); m != nil {
				columns[i].Precision, _ = strconv.Atoi(m[1])
			}
		}
		if columns[i].Key == "PRI" {
			shape.PrimaryKey = append(shape.PrimaryKey, columns[i].Field)
		}
		if strings.Contains(strings.ToLower(columns[i].Extra), "auto_increment") {
			shape.Identity = columns[i].Field
		}
	}
	shape.Columns = columns

	type mysqlIndex struct {
		Index  string `gorm:"column:INDEX_NAME"`
		Column string `gorm:"column:COLUMN_NAME"`
	}
	var idx []mysqlIndex
	err := db.Raw("SELECT INDEX_NAME, COLUMN_NAME FROM information_schema.STATISTICS WHERE TABLE_SCHEMA = COALESCE(NULLIF(?, ''), DATABASE()) AND TABLE_NAME = ? AND NON_UNIQUE = 0 ORDER BY INDEX_NAME, SEQ_IN_INDEX", shape.Schema, shape.Table).Scan(&idx).Error
	if err != nil {
		return err
	}
	shape.UniqueIndexes = groupIndexes(len(idx), func(i int) (string, string) { return idx[i].Index, strings.ToLower(idx[i].Column) })
	return nil
}

func inspectPostgres(db *gorm.DB, shape *TableShape) error {
	type pgColumn struct {
		ColumnName        string
		DataType          string
		IsNullable        string
		ColumnDefault     *string
		IsIdentity        string
		DatetimePrecision *int
		IsPrimary         bool
	}
	var cols []pgColumn
	err := db.Raw(`SELECT c.column_name, c.data_type, c.is_nullable, c.column_default, c.is_identity, c.datetime_precision,
  EXISTS (SELECT 1 FROM information_schema.table_constraints tc
    JOIN information_schema.key_column_usage k ON k.constraint_name = tc.constraint_name AND k.table_schema = tc.table_schema
    WHERE tc.constraint_type = 'PRIMARY KEY' AND tc.table_schema = c.table_schema AND tc.table_name = c.table_name AND k.column_name = c.column_name) AS is_primary
FROM information_schema.columns c
WHERE c.table_schema = COALESCE(NULLIF(?, ''), current_schema()) AND c.table_name = ?
ORDER BY c.ordinal_position`, shape.Schema, shape.Table).Scan(&cols).Error
	if err != nil {
		return err
	}
	for _, col := range cols {
		info := ColumnInfo{
			Field:     col.ColumnName,
			Type:      strings.ToLower(col.DataType),
			Null:      col.IsNullable,
			Default:   col.ColumnDefault,
			Precision: -1,
		}
		if col.DatetimePrecision != nil {
			info.Precision = *col.DatetimePrecision
		}
		if col.IsPrimary {
			info.Key = "PRI"
			shape.PrimaryKey = append(shape.PrimaryKey, col.ColumnName)
		}
		if col.IsIdentity == "YES" || (col.ColumnDefault != nil && strings.HasPrefix(*col.ColumnDefault, "nextval(")) {
			info.Extra = "identity"
			shape.Identity = col.ColumnName
		}
		shape.Columns = append(shape.Columns, info)
	}

	type pgIndex struct {
		IndexName  string
		ColumnName string
	}
	var idx []pgIndex
	err = db.Raw(`SELECT i.relname AS index_name, a.attname AS column_name
FROM pg_index x
JOIN pg_class t ON t.oid = x.indrelid
JOIN pg_class i ON i.oid = x.indexrelid
JOIN pg_namespace n ON n.oid = t.relnamespace
JOIN pg_attribute a ON a.attrelid = t.oid AND a.attnum = ANY(x.indkey)
WHERE x.indisunique AND n.nspname = COALESCE(NULLIF(?, ''), current_schema()) AND t.relname = ?
ORDER BY i.relname, array_position(x.indkey::int2[], a.attnum)`, shape.Schema, shape.Table).Scan(&idx).Error
	if err != nil {
		return err
	}
	shape.UniqueIndexes = groupIndexes(len(idx), func(i int) (string, string) { return idx[i].IndexName, idx[i].ColumnName })
	return nil
}

func inspectSQLServer(db *gorm.DB, shape *TableShape) error {
	object := shape.Table
	if shape.Schema != "" {
		object = shape.Schema + "." + shape.Table
	}
	if strings.HasPrefix(shape.Table, "#") {
		object = "tempdb.." + shape.Table
	}
	type mssqlColumn struct {
		Name       string
		TypeName   string
		IsNullable bool
		IsIdentity bool
		Scale      int
		IsPrimary  bool
	}
	var cols []mssqlColumn
	err := db.Raw(`SELECT c.name, t.name AS type_name, c.is_nullable, c.is_identity, c.scale,
  CAST(CASE WHEN EXISTS (SELECT 1 FROM sys.indexes i JOIN sys.index_columns ic ON ic.object_id = i.object_id AND ic.index_id = i.index_id
    WHERE i.object_id = c.object_id AND i.is_primary_key = 1 AND ic.column_id = c.column_id) THEN 1 ELSE 0 END AS bit) AS is_primary
FROM sys.columns c JOIN sys.types t ON t.user_type_id = c.user_type_id
WHERE c.object_id = OBJECT_ID(?)
ORDER BY c.column_id`, object).Scan(&cols).Error
	if err != nil {
		return err
	}
	for _, col := range cols {
		info := ColumnInfo{Field: col.Name, Type: strings.ToLower(col.TypeName), Null: "NO", Precision: -1}
		if col.IsNullable {
			info.Null = "YES"
		}
		switch info.Type {
		case "datetime2", "datetimeoffset", "time":
			info.Precision = col.Scale
		}
		if col.IsPrimary {
			info.Key = "PRI"
			shape.PrimaryKey = append(shape.PrimaryKey, col.Name)
		}
		if col.IsIdentity {
			info.Extra = "identity"
			shape.Identity = col.Name
		}
		shape.Columns = append(shape.Columns, info)
	}

	type mssqlIndex struct {
		IndexName  string
		ColumnName string
	}
	var idx []mssqlIndex
	err = db.Raw(`SELECT i.name AS index_name, c.name AS column_name
FROM sys.indexes i
JOIN sys.index_columns ic ON ic.object_id = i.object_id AND ic.index_id = i.index_id
JOIN sys.columns c ON c.object_id = ic.object_id AND c.column_id = ic.column_id
WHERE i.object_id = OBJECT_ID(?) AND i.is_unique = 1
ORDER BY i.name, ic.key_ordinal`, object).Scan(&idx).Error
	if err != nil {
		return err
	}
	shape.UniqueIndexes = groupIndexes(len(idx), func(i int) (string, string) { return idx[i].IndexName, idx[i].ColumnName })
	return nil
}

// groupIndexes folds (index, column) rows ordered by index into column lists.
func groupIndexes(n int, row func(i int) (string, string)) [][]string {
	var out [][]string
	last := ""
	for i := 0; i < n; i++ {
		name, col := row(i)
		if i == 0 || name != last {
			out = append(out, nil)
			last = name
		}
		out[len(out)-1] = append(out[len(out)-1], col)
	}
	return out
}

func orderedKeys(m map[int]string) []string {
	keys := make([]int, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Ints(keys)
	out := make([]string, len(keys))
	for i, k := range keys {
		out[i] = m[k]
	}
	return out
}

func normalizeSet(cols []string) map[string]struct{} {
	set := make(map[string]struct{}, len(cols))
	for _, c := range cols {
		set[strings.ToLower(c)] = struct{}{}
	}
	return set
}

func equalSets(a, b map[string]struct{}) bool {
	if len(a) != len(b) {
		return false
	}
	for k := range a {
		if _, ok := b[k]; !ok {
			return false
		}
	}
	return true
}
