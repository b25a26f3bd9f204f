package engine

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"bulksync/core/database"

	"golang.org/x/sync/singleflight"
	"gorm.io/driver/mysql"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/driver/sqlserver"
	"gorm.io/gorm"
)

// DefaultShapeTTL is how long a probed table shape is reused.
const DefaultShapeTTL = 5 * time.Minute

// Adapter bundles everything engine specific that the bulk components need.
type Adapter struct {
	// Engine is the resolved engine.
	Engine Engine
	// Dialect renders identifiers and placeholders.
	Dialect Dialect
	// Capabilities lists the native features of the engine.
	Capabilities Capabilities
}

// Inspector probes the live shape of a table.
type Inspector func(ctx context.Context, db *gorm.DB, schema, table string) (*database.TableShape, error)

// shapeEntry is a cached table shape.
type shapeEntry struct {
	shape *database.TableShape
	built time.Time
}

// Registry resolves adapters once per provider identifier and caches table shape probes.
// A Registry is safe for concurrent use; share one per process.
type Registry struct {
	mu       sync.RWMutex
	adapters map[string]*Adapter
	shapes   map[string]*shapeEntry
	sf       singleflight.Group
	ttl      time.Duration
	inspect  Inspector
}

// NewRegistry creates a registry. A zero ttl uses DefaultShapeTTL, a negative ttl
// disables shape caching. A nil inspector uses database.InspectTable.
func NewRegistry(ttl time.Duration, inspect Inspector) *Registry {
	if ttl == 0 {
		ttl = DefaultShapeTTL
	}
	if inspect == nil {
		inspect = database.InspectTable
	}
	return &Registry{
		adapters: make(map[string]*Adapter),
		shapes:   make(map[string]*shapeEntry),
		ttl:      ttl,
		inspect:  inspect,
	}
}

// Resolve returns the adapter for a provider identifier, building it on first use.
func (r *Registry) Resolve(provider string) *Adapter {
	key := strings.ToLower(provider)

	// Fast path
	r.mu.RLock()
	a, ok := r.adapters[key]
	r.mu.RUnlock()
	if ok {
		return a
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if a, ok := r.adapters[key]; ok {
		return a
	}
	e := Parse(provider)
	a = &Adapter{Engine: e, Dialect: Dialect{Engine: e}, Capabilities: CapabilitiesOf(e)}
	r.adapters[key] = a
	return a
}

// ForDB returns the adapter of the gorm dialector behind db.
func (r *Registry) ForDB(db *gorm.DB) *Adapter {
	return r.Resolve(db.Dialector.Name())
}

// Shape returns the live shape of a table, reusing a fresh cached probe of the same
// database. Concurrent callers for the same table share one probe.
func (r *Registry) Shape(ctx context.Context, db *gorm.DB, a *Adapter, schema, table string) (*database.TableShape, error) {
	key := shapeKey(a.Engine, databaseOf(db), schema, table)

	r.mu.RLock()
	entry, ok := r.shapes[key]
	r.mu.RUnlock()
	if ok && !r.expired(entry) {
		return entry.shape, nil
	}

	result, err, _ := r.sf.Do(key, func() (interface{}, error) {
		// Double-check after acquiring singleflight lock
		r.mu.RLock()
		entry, ok := r.shapes[key]
		r.mu.RUnlock()
		if ok && !r.expired(entry) {
			return entry.shape, nil
		}

		shape, err := r.inspect(ctx, db, schema, table)
		if err != nil {
			return nil, err
		}
		// Missing tables are not cached so a later create is picked up.
		if shape.Exists && r.ttl > 0 {
			r.mu.Lock()
			r.shapes[key] = &shapeEntry{shape: shape, built: time.Now()}
			r.mu.Unlock()
		}
		return shape, nil
	})
	if err != nil {
		return nil, err
	}
	return result.(*database.TableShape), nil
}

// Invalidate drops the cached shape of a table in every database.
func (r *Registry) Invalidate(schema, table string) {
	suffix := "|" + strings.ToLower(schema) + "|" + strings.ToLower(table)
	r.mu.Lock()
	defer r.mu.Unlock()
	for key := range r.shapes {
		if strings.HasSuffix(key, suffix) {
			delete(r.shapes, key)
		}
	}
}

func (r *Registry) expired(entry *shapeEntry) bool {
	return time.Since(entry.built) > r.ttl
}

func shapeKey(e Engine, db, schema, table string) string {
	return e.String() + "|" + db + "|" + strings.ToLower(schema) + "|" + strings.ToLower(table)
}

// databaseOf identifies the database behind db by its DSN, or by the injected
// connection pool when the dialector was built from one.
func databaseOf(db *gorm.DB) string {
	if db == nil || db.Config == nil || db.Dialector == nil {
		return ""
	}
	var (
		dsn  string
		conn gorm.ConnPool
	)
	switch d := db.Dialector.(type) {
	case *sqlserver.Dialector:
		if d.Config != nil {
			dsn, conn = d.DSN, d.Conn
		}
	case *postgres.Dialector:
		if d.Config != nil {
			dsn, conn = d.DSN, d.Conn
		}
	case *mysql.Dialector:
		if d.Config != nil {
			dsn, conn = d.DSN, d.Conn
		}
	case *sqlite.Dialector:
		dsn, conn = d.DSN, d.Conn
	}
	switch {
	case dsn != "":
		return dsn
	case conn != nil:
		return fmt.Sprintf("%p", conn)
	}
	return ""
}
