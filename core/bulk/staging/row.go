package staging

import (
	"database/sql/driver"
	"fmt"
	"math"
	"reflect"
	"strings"
	"time"

	"bulksync/core/bulk/engine"
	"bulksync/core/bulk/op"
	"bulksync/core/bulk/table"
	"bulksync/core/utils"
)

// RowBuilder turns objects into provider values for a fixed column list.
type RowBuilder struct {
	Engine  engine.Engine
	Columns []*table.Column
	// Ordinal appends each object's input position as the last value.
	Ordinal bool
	// NullIdentity sends a zero identity as NULL.
	NullIdentity *table.Column
	Options      op.Options
}

// Width is the number of values per row.
func (b RowBuilder) Width() int {
	if b.Ordinal {
		return len(b.Columns) + 1
	}
	return len(b.Columns)
}

// Values returns the provider values of one object.
func (b RowBuilder) Values(entity any, ordinal int) ([]any, error) {
	out := make([]any, 0, b.Width())
	for _, c := range b.Columns {
		v, err := c.Property.Value(entity)
		if err != nil {
			return nil, err
		}
		v, err = providerValue(v)
		if err != nil {
			return nil, fmt.Errorf("failed to read %s: %w", c.Property.Name, err)
		}
		if b.NullIdentity != nil && c.Name == b.NullIdentity.Name && utils.IsZero(v) {
			v = nil
		}
		if t, ok := v.(time.Time); ok && b.Options.DateTime2PrecisionForceRound && c.Precision >= 0 {
			v = RoundTime(t, c.Precision)
		}
		if c.Property.Spatial && b.Options.SRID > 0 {
			v = withSRID(b.Engine, v, b.Options.SRID)
		}
		out = append(out, v)
	}
	if b.Ordinal {
		out = append(out, int64(ordinal))
	}
	return out, nil
}

// providerValue resolves pointers and driver.Valuer implementations to plain driver
// values. Unsigned integers become int64, which every driver accepts.
func providerValue(v any) (any, error) {
	if v == nil {
		return nil, nil
	}
	if valuer, ok := v.(driver.Valuer); ok {
		rv := reflect.ValueOf(v)
		if rv.Kind() == reflect.Ptr && rv.IsNil() {
			return nil, nil
		}
		return valuer.Value()
	}
	rv := reflect.ValueOf(v)
	if rv.Kind() == reflect.Ptr {
		if rv.IsNil() {
			return nil, nil
		}
		return providerValue(rv.Elem().Interface())
	}
	switch rv.Kind() {
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		if rv.Uint() > math.MaxInt64 {
			return nil, fmt.Errorf("value %d overflows int64", rv.Uint())
		}
		return int64(rv.Uint()), nil
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return rv.Int(), nil
	case reflect.Float32, reflect.Float64:
		return rv.Float(), nil
	case reflect.Bool:
		return rv.Bool(), nil
	case reflect.String:
		return rv.String(), nil
	}
	return v, nil
}

// RoundTime rounds t to the given number of fractional second digits, ties up.
func RoundTime(t time.Time, precision int) time.Time {
	if precision >= 9 {
		return t
	}
	unit := int64(math.Pow10(9 - precision))
	ns := int64(t.Nanosecond())
	rounded := (ns + unit/2) / unit * unit
	return t.Add(time.Duration(rounded - ns))
}

// withSRID tags a WKT value with a spatial reference id. PostgreSQL takes EWKT, the
// other engines receive the id through their own constructors and keep the text.
func withSRID(e engine.Engine, v any, srid int) any {
	s, ok := v.(string)
	if !ok || e != engine.PostgreSQL || strings.HasPrefix(strings.ToUpper(s), "SRID=") {
		return v
	}
	return fmt.Sprintf("SRID=%d;%s", srid, s)
}

// Progress reports the written fraction of a call to Options.Progress every
// NotifyAfter rows and once more on completion.
type Progress struct {
	fn    func(float64)
	every int
	total int
	done  int
}

// NewProgress starts tracking total rows.
func NewProgress(o op.Options, total int) *Progress {
	return &Progress{fn: o.Progress, every: o.EffectiveNotifyAfter(), total: total}
}

// Add records n more written rows.
func (p *Progress) Add(n int) {
	if p.fn == nil || p.total == 0 {
		p.done += n
		return
	}
	before := p.done / p.every
	p.done += n
	if p.done/p.every > before || p.done >= p.total {
		p.fn(math.Round(float64(p.done)/float64(p.total)*10000) / 10000)
	}
}
