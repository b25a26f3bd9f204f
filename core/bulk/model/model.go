package model

import (
	"fmt"
	"reflect"
	"strings"
)

// Generated describes when the database produces a column value.
type Generated int

const (
	// GeneratedNever means the value always comes from the object.
	GeneratedNever Generated = iota
	// GeneratedOnAdd means the database fills the value when a row is inserted.
	GeneratedOnAdd
	// GeneratedOnAddOrUpdate means the database computes the value on every write.
	GeneratedOnAddOrUpdate
)

// Strategy is the explicit value generation annotation of a property.
type Strategy int

const (
	// StrategyNone means no annotation was given.
	StrategyNone Strategy = iota
	// StrategyIdentity marks an engine identity (auto increment) column.
	StrategyIdentity
	// StrategyComputed marks a computed column the database owns.
	StrategyComputed
)

// Property maps one logical (possibly dotted) property onto a column.
type Property struct {
	// Name is the logical property path, e.g. "Dimensions.Width".
	Name string
	// Column is the column name.
	Column string
	// ColumnType is the provider column type, e.g. "datetime2(3)" or "bigint".
	ColumnType string
	// GoType is the Go type held by the object.
	GoType reflect.Type
	// PrimaryKey marks primary key members.
	PrimaryKey bool
	// Nullable is true when the column accepts NULL.
	Nullable bool
	// Generated tells when the database produces the value.
	Generated Generated
	// Strategy is the explicit generation annotation.
	Strategy Strategy
	// HasDefault is true when the column has a database default.
	HasDefault bool
	// DefaultSQL is the default expression, when known.
	DefaultSQL string
	// ConcurrencyToken marks a row version column.
	ConcurrencyToken bool
	// Spatial marks geometry and geography columns.
	Spatial bool
	// Precision is the fractional seconds precision of time columns, -1 when unknown.
	Precision int
	// Insertable is false for columns the object must never insert.
	Insertable bool
	// Updatable is false for columns the object must never update.
	Updatable bool
	// Shadow marks properties without a backing struct field.
	Shadow bool
	// Converter translates between object and provider values.
	Converter Converter

	// Get reads the raw object value.
	Get func(entity any) any
	// Set writes a raw object value. A nil value resets the field to its zero value.
	Set func(entity any, value any) error
}

// Value reads the property and applies the converter.
func (p *Property) Value(entity any) (any, error) {
	v := p.Get(entity)
	if p.Converter == nil {
		return v, nil
	}
	out, err := p.Converter.ToProvider(v)
	if err != nil {
		return nil, fmt.Errorf("failed to convert %s: %w", p.Name, err)
	}
	return out, nil
}

// Store writes a provider value back onto the object, reversing the converter.
func (p *Property) Store(entity any, value any) error {
	if p.Set == nil {
		return nil
	}
	if p.Converter != nil && value != nil {
		v, err := p.Converter.FromProvider(value, p.GoType)
		if err != nil {
			return fmt.Errorf("failed to convert %s: %w", p.Name, err)
		}
		value = v
	}
	if err := p.Set(entity, value); err != nil {
		return fmt.Errorf("failed to set %s: %w", p.Name, err)
	}
	return nil
}

// IsTime reports whether the column holds date/time values.
func (p *Property) IsTime() bool {
	t := strings.ToLower(p.ColumnType)
	return strings.Contains(t, "time") || strings.HasPrefix(t, "date")
}

// Entity is the resolved mapping of one object type onto a table.
type Entity struct {
	// Name is the Go type name.
	Name string
	// Schema is the table schema, empty for the connection default.
	Schema string
	// Table is the table name.
	Table string
	// Type is the struct type.
	Type reflect.Type
	// Properties lists mapped properties in declaration order.
	Properties []*Property
}

// Property finds a property by logical name, falling back to a case-insensitive
// match on name or column.
func (e *Entity) Property(name string) (*Property, bool) {
	for _, p := range e.Properties {
		if p.Name == name {
			return p, true
		}
	}
	for _, p := range e.Properties {
		if strings.EqualFold(p.Name, name) || strings.EqualFold(p.Column, name) {
			return p, true
		}
	}
	return nil, false
}

// PrimaryKey returns the primary key properties.
func (e *Entity) PrimaryKey() []*Property {
	var out []*Property
	for _, p := range e.Properties {
		if p.PrimaryKey {
			out = append(out, p)
		}
	}
	return out
}

// New allocates a zero object of the entity type and returns a pointer to it.
func (e *Entity) New() any {
	return reflect.New(e.Type).Interface()
}

// WithShadow returns a copy of the entity with an additional property that has no
// backing struct field, e.g. a discriminator computed from the object.
func (e *Entity) WithShadow(p *Property) *Entity {
	c := *e
	shadow := *p
	shadow.Shadow = true
	if shadow.Set == nil {
		shadow.Set = func(any, any) error { return nil }
	}
	c.Properties = append(append([]*Property(nil), e.Properties...), &shadow)
	return &c
}
