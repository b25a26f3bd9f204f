package table

import (
	"errors"
	"fmt"
	"strings"
	"testing"

	"bulksync/core/bulk/engine"
	"bulksync/core/bulk/model"
	"bulksync/core/bulk/op"
	"bulksync/core/database"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

type Dimensions struct {
	Width  float64
	Height float64
}

type Item struct {
	ID         uint   `gorm:"primaryKey"`
	SKU        string `gorm:"size:64;uniqueIndex"`
	Name       string
	Price      float64
	Status     string     `gorm:"default:active"`
	Dimensions Dimensions `gorm:"embedded;embeddedPrefix:dim_"`
	Version    []byte     `gorm:"type:rowversion"`
	Note       *string
}

type LogLine struct {
	Message string
}

func entityOf(t *testing.T, value any) *model.Entity {
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", strings.ReplaceAll(t.Name(), "/", "_"))
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)
	e, err := model.FromGorm(db, value)
	require.NoError(t, err)
	return e
}

func adapter(e engine.Engine) *engine.Adapter {
	return &engine.Adapter{Engine: e, Dialect: engine.Dialect{Engine: e}, Capabilities: engine.CapabilitiesOf(e)}
}

func columnNames(cols []*Column) []string {
	return Names(cols)
}

// TestResolve_Validation tests option validation failures.
func TestResolve_Validation(t *testing.T) {
	e := entityOf(t, &Item{})

	tests := []struct {
		name   string
		kind   op.Kind
		eng    engine.Engine
		entity *model.Entity
		mutate func(o *op.Options)
		reason error
		msg    string
	}{
		{
			name:   "Both Transfer Lists",
			kind:   op.Insert,
			mutate: func(o *op.Options) { o.PropertiesToInclude = []string{"Name"}; o.PropertiesToExclude = []string{"Price"} },
			reason: op.ErrMultiplePropertyListSet,
			msg:    "PropertiesToInclude/PropertiesToExclude",
		},
		{
			name: "Both Compare Lists",
			kind: op.InsertOrUpdate,
			mutate: func(o *op.Options) {
				o.PropertiesToIncludeOnCompare = []string{"Name"}
				o.PropertiesToExcludeOnCompare = []string{"Price"}
			},
			reason: op.ErrMultiplePropertyListSet,
			msg:    "OnCompare",
		},
		{
			name:   "Unknown Property",
			kind:   op.Update,
			mutate: func(o *op.Options) { o.PropertiesToExcludeOnUpdate = []string{"Colour"} },
			reason: op.ErrUnknownProperty,
			msg:    `PropertiesToExcludeOnUpdate names unknown property "Colour"`,
		},
		{
			name:   "Unknown Match Key",
			kind:   op.InsertOrUpdate,
			mutate: func(o *op.Options) { o.UpdateByProperties = []string{"Barcode"} },
			reason: op.ErrUnknownProperty,
			msg:    "UpdateByProperties",
		},
		{
			name:   "Missing Match Key",
			kind:   op.Delete,
			entity: entityOf(t, &LogLine{}),
			reason: op.ErrMissingMatchKey,
		},
		{
			name:   "Update Without Columns",
			kind:   op.Update,
			mutate: func(o *op.Options) { o.PropertiesToIncludeOnUpdate = []string{""} },
			reason: op.ErrInvalidConfig,
		},
		{
			name:   "Unsupported Sync",
			kind:   op.InsertOrUpdateOrDelete,
			eng:    engine.MySQL,
			reason: op.ErrUnsupportedOperation,
			msg:    "not supported on mysql",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			o := op.Defaults()
			if tt.mutate != nil {
				tt.mutate(&o)
			}
			ent := e
			if tt.entity != nil {
				ent = tt.entity
			}
			_, err := Resolve(Input{Kind: tt.kind, Entity: ent, Adapter: adapter(tt.eng), Options: o})
			require.Error(t, err)
			assert.True(t, errors.Is(err, tt.reason), err.Error())
			assert.Contains(t, err.Error(), tt.msg)
		})
	}
}

// TestResolve_InsertWithoutKeyAllowed tests that plain inserts need no match key.
func TestResolve_InsertWithoutKeyAllowed(t *testing.T) {
	d, err := Resolve(Input{Kind: op.Insert, Entity: entityOf(t, &LogLine{}), Adapter: adapter(engine.SQLServer), Options: op.Defaults()})
	require.NoError(t, err)
	assert.Empty(t, d.MatchKeys)
	assert.Nil(t, d.Identity)
	assert.Equal(t, []string{"message"}, columnNames(d.Insert))
}

// TestResolve_Insert tests insert column selection and default handling.
func TestResolve_Insert(t *testing.T) {
	e := entityOf(t, &Item{})

	t.Run("Defaults Omitted When Unset", func(t *testing.T) {
		d, err := Resolve(Input{Kind: op.Insert, Entity: e, Adapter: adapter(engine.SQLServer), Options: op.Defaults(), Entities: []any{&Item{SKU: "A"}}})
		require.NoError(t, err)

		require.NotNil(t, d.Identity)
		assert.Equal(t, "id", d.Identity.Name)
		assert.NotContains(t, columnNames(d.Transfer), "id")
		assert.NotContains(t, columnNames(d.Transfer), "version")
		assert.Equal(t, []string{"status"}, columnNames(d.DefaultValued))
		assert.Equal(t, []string{"sku", "name", "price", "dim_width", "dim_height", "note"}, columnNames(d.Insert))
		assert.True(t, d.PreserveOrder)
		assert.True(t, d.UseOrdinal)
	})

	t.Run("Defaults Kept When Set", func(t *testing.T) {
		d, err := Resolve(Input{Kind: op.Insert, Entity: e, Adapter: adapter(engine.SQLServer), Options: op.Defaults(), Entities: []any{&Item{}, &Item{Status: "retired"}}})
		require.NoError(t, err)
		assert.Empty(t, d.DefaultValued)
		assert.Contains(t, columnNames(d.Insert), "status")
	})

	t.Run("Keep Identity", func(t *testing.T) {
		o := op.Defaults()
		o.KeepIdentity = true
		d, err := Resolve(Input{Kind: op.Insert, Entity: e, Adapter: adapter(engine.SQLServer), Options: o})
		require.NoError(t, err)
		assert.Contains(t, columnNames(d.Transfer), "id")
		assert.Contains(t, columnNames(d.Insert), "id")
	})
}

// TestResolve_Upsert tests match keys, update and compare columns.
func TestResolve_Upsert(t *testing.T) {
	e := entityOf(t, &Item{})

	o := op.Defaults()
	o.UpdateByProperties = []string{"SKU"}
	o.PropertiesToInclude = []string{"Name", "Dimensions"}
	d, err := Resolve(Input{Kind: op.InsertOrUpdate, Entity: e, Adapter: adapter(engine.SQLServer), Options: o})
	require.NoError(t, err)

	assert.Equal(t, []string{"sku"}, columnNames(d.MatchKeys))
	assert.Equal(t, []string{"sku", "name", "dim_width", "dim_height"}, columnNames(d.Transfer))
	assert.Equal(t, []string{"name", "dim_width", "dim_height"}, columnNames(d.Update))
	assert.Equal(t, columnNames(d.Update), columnNames(d.Compare))
	assert.False(t, d.PreserveOrder)
	assert.False(t, d.NullableMatch)

	t.Run("Update And Compare Axes", func(t *testing.T) {
		o := op.Defaults()
		o.PropertiesToExcludeOnUpdate = []string{"Price"}
		o.PropertiesToIncludeOnCompare = []string{"Name"}
		d, err := Resolve(Input{Kind: op.InsertOrUpdate, Entity: e, Adapter: adapter(engine.SQLServer), Options: o})
		require.NoError(t, err)
		assert.Equal(t, []string{"id"}, columnNames(d.MatchKeys))
		assert.NotContains(t, columnNames(d.Update), "price")
		assert.NotContains(t, columnNames(d.Update), "id")
		assert.Equal(t, []string{"name"}, columnNames(d.Compare))
	})

	t.Run("Skip Update", func(t *testing.T) {
		o := op.Defaults()
		o.PropertiesToIncludeOnUpdate = []string{""}
		d, err := Resolve(Input{Kind: op.InsertOrUpdate, Entity: e, Adapter: adapter(engine.SQLServer), Options: o})
		require.NoError(t, err)
		assert.Empty(t, d.Update)
		assert.Empty(t, d.Compare)
	})

	t.Run("Nullable Match Key", func(t *testing.T) {
		o := op.Defaults()
		o.UpdateByProperties = []string{"Note"}
		d, err := Resolve(Input{Kind: op.Update, Entity: e, Adapter: adapter(engine.SQLServer), Options: o})
		require.NoError(t, err)
		assert.True(t, d.NullableMatch)
	})

	t.Run("Owned Type Match Key", func(t *testing.T) {
		o := op.Defaults()
		o.UpdateByProperties = []string{"Dimensions"}
		var d *Descriptor
		var err error
		require.NotPanics(t, func() {
			d, err = Resolve(Input{Kind: op.InsertOrUpdate, Entity: e, Adapter: adapter(engine.SQLServer), Options: o})
		})
		require.NoError(t, err)
		assert.Equal(t, []string{"dim_width", "dim_height"}, columnNames(d.MatchKeys))
		assert.NotContains(t, columnNames(d.Update), "dim_width")
	})
}

// TestResolve_DeleteAndRead tests that only match keys are staged.
func TestResolve_DeleteAndRead(t *testing.T) {
	e := entityOf(t, &Item{})
	for _, kind := range []op.Kind{op.Delete, op.Read} {
		d, err := Resolve(Input{Kind: kind, Entity: e, Adapter: adapter(engine.PostgreSQL), Options: op.Defaults()})
		require.NoError(t, err)
		assert.Equal(t, []string{"id"}, columnNames(d.Transfer), kind.String())
		assert.Len(t, d.Output, len(e.Properties))
	}
}

// TestResolve_Identity tests engine specific identity detection.
func TestResolve_Identity(t *testing.T) {
	e := entityOf(t, &Item{})

	t.Run("SQLite Rowid", func(t *testing.T) {
		d, err := Resolve(Input{Kind: op.Insert, Entity: e, Adapter: adapter(engine.SQLite), Options: op.Defaults()})
		require.NoError(t, err)
		require.NotNil(t, d.Identity)
		assert.Equal(t, "id", d.Identity.Name)
	})

	t.Run("Probe Without Identity", func(t *testing.T) {
		shape := &database.TableShape{Exists: true, Columns: []database.ColumnInfo{{Field: "id", Precision: -1}}}
		d, err := Resolve(Input{Kind: op.Insert, Entity: e, Adapter: adapter(engine.PostgreSQL), Shape: shape, Options: op.Defaults()})
		require.NoError(t, err)
		assert.Nil(t, d.Identity)
	})

	t.Run("Probe Identity", func(t *testing.T) {
		shape := &database.TableShape{Exists: true, Identity: "ID"}
		d, err := Resolve(Input{Kind: op.Insert, Entity: e, Adapter: adapter(engine.MySQL), Shape: shape, Options: op.Defaults()})
		require.NoError(t, err)
		require.NotNil(t, d.Identity)
		assert.Equal(t, "id", d.Identity.Name)
	})
}

// TestResolve_UniqueIndex tests transient unique index detection.
func TestResolve_UniqueIndex(t *testing.T) {
	e := entityOf(t, &Item{})
	o := op.Defaults()
	o.UpdateByProperties = []string{"Name"}

	d, err := Resolve(Input{Kind: op.InsertOrUpdate, Entity: e, Adapter: adapter(engine.PostgreSQL), Options: o})
	require.NoError(t, err)
	assert.True(t, d.NeedsUniqueIndex)

	shape := &database.TableShape{Exists: true, PrimaryKey: []string{"id"}, UniqueIndexes: [][]string{{"name"}}}
	d, err = Resolve(Input{Kind: op.InsertOrUpdate, Entity: e, Adapter: adapter(engine.PostgreSQL), Shape: shape, Options: o})
	require.NoError(t, err)
	assert.False(t, d.NeedsUniqueIndex)

	d, err = Resolve(Input{Kind: op.InsertOrUpdate, Entity: e, Adapter: adapter(engine.PostgreSQL), Options: op.Defaults()})
	require.NoError(t, err)
	assert.False(t, d.NeedsUniqueIndex)

	d, err = Resolve(Input{Kind: op.InsertOrUpdate, Entity: e, Adapter: adapter(engine.MySQL), Options: o})
	require.NoError(t, err)
	assert.False(t, d.NeedsUniqueIndex)
}

// TestResolve_StagingNames tests staging and output naming.
func TestResolve_StagingNames(t *testing.T) {
	e := entityOf(t, &Item{})

	d, err := Resolve(Input{Kind: op.Insert, Entity: e, Adapter: adapter(engine.SQLServer), Options: op.Defaults(), Schema: "dbo"})
	require.NoError(t, err)
	assert.Regexp(t, `^itemsTemp[0-9a-f]{8}$`, d.StagingTable)
	assert.Equal(t, d.StagingTable+"Output", d.OutputTable)
	assert.Equal(t, "[dbo].["+d.StagingTable+"]", d.Staging())
	assert.Equal(t, "[dbo].[items]", d.Target())

	o := op.Defaults()
	o.UseTempDB = true
	o.UniqueTableNameTempDB = false
	d, err = Resolve(Input{Kind: op.Insert, Entity: e, Adapter: adapter(engine.SQLServer), Options: o, Schema: "dbo"})
	require.NoError(t, err)
	assert.Equal(t, "#itemsTemp", d.StagingTable)
	assert.Equal(t, "[#itemsTemp]", d.Staging())
	assert.True(t, d.Temporary)

	o = op.Defaults()
	o.CustomSourceTable = "staging.item_feed"
	o.CustomSourceMapping = map[string]string{"Name": "title"}
	d, err = Resolve(Input{Kind: op.InsertOrUpdate, Entity: e, Adapter: adapter(engine.SQLServer), Options: o})
	require.NoError(t, err)
	assert.Equal(t, "[staging].[item_feed]", d.Staging())
	assert.False(t, d.UseOrdinal)
	for _, c := range d.Transfer {
		if c.Name == "name" {
			assert.Equal(t, "title", c.Source)
		}
	}
}

// TestResolve_Timestamp tests concurrency token staging.
func TestResolve_Timestamp(t *testing.T) {
	e := entityOf(t, &Item{})
	o := op.Defaults()
	o.DoNotUpdateIfTimestampChanged = true

	d, err := Resolve(Input{Kind: op.Update, Entity: e, Adapter: adapter(engine.SQLServer), Options: o})
	require.NoError(t, err)
	require.NotNil(t, d.Timestamp)
	assert.Contains(t, columnNames(d.Transfer), "version")
	assert.NotContains(t, columnNames(d.Update), "version")

	d, err = Resolve(Input{Kind: op.Update, Entity: e, Adapter: adapter(engine.PostgreSQL), Options: o})
	require.NoError(t, err)
	assert.Nil(t, d.Timestamp)
	assert.NotContains(t, columnNames(d.Transfer), "version")
}
