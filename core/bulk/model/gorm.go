package model

import (
	"database/sql"
	"database/sql/driver"
	"fmt"
	"reflect"
	"strconv"
	"strings"
	"sync"

	"bulksync/core/utils"

	"gorm.io/gorm"
	"gorm.io/gorm/schema"
)

var (
	entities    sync.Map // *schema.Schema -> *Entity
	valuerType  = reflect.TypeOf((*driver.Valuer)(nil)).Elem()
	scannerIntf = reflect.TypeOf((*sql.Scanner)(nil)).Elem()
)

// FromGorm resolves the entity mapping of a gorm model. value may be a struct, a
// pointer to one, or a slice of either. Results are cached per parsed gorm schema.
//
// Besides the gorm tags, a `bulk` struct tag refines the mapping:
//
//	timestamp             concurrency token (row version)
//	spatial               geometry/geography column
//	identity              explicit identity column
//	computed              database computed column
//	nullable              column accepts NULL even for a value type
//	precision:<n>         fractional seconds precision
//	converter:<name>      registered Converter
func FromGorm(db *gorm.DB, value any) (*Entity, error) {
	stmt := &gorm.Statement{DB: db}
	if err := stmt.Parse(value); err != nil {
		return nil, fmt.Errorf("failed to parse model: %w", err)
	}
	if cached, ok := entities.Load(stmt.Schema); ok {
		return cached.(*Entity), nil
	}
	e, err := buildEntity(stmt.Schema)
	if err != nil {
		return nil, err
	}
	actual, _ := entities.LoadOrStore(stmt.Schema, e)
	return actual.(*Entity), nil
}

func buildEntity(s *schema.Schema) (*Entity, error) {
	e := &Entity{Name: s.Name, Table: s.Table, Type: s.ModelType}
	if i := strings.LastIndex(s.Table, "."); i > 0 {
		e.Schema, e.Table = s.Table[:i], s.Table[i+1:]
	}
	for _, f := range s.Fields {
		// Relations and ignored fields carry no data type.
		if f.DBName == "" || f.DataType == "" || (!f.Creatable && !f.Updatable && !f.Readable) {
			continue
		}
		p, err := buildProperty(s.ModelType, f)
		if err != nil {
			return nil, fmt.Errorf("failed to map %s.%s: %w", s.Name, f.Name, err)
		}
		e.Properties = append(e.Properties, p)
	}
	return e, nil
}

func buildProperty(modelType reflect.Type, f *schema.Field) (*Property, error) {
	tags := schema.ParseTagSetting(f.StructField.Tag.Get("bulk"), ";")
	path, name, err := fieldPath(modelType, f.BindNames)
	if err != nil {
		return nil, err
	}

	p := &Property{
		Name:       name,
		Column:     f.DBName,
		ColumnType: strings.ToLower(string(f.DataType)),
		GoType:     f.FieldType,
		PrimaryKey: f.PrimaryKey,
		Precision:  -1,
		Insertable: f.Creatable,
		Updatable:  f.Updatable,
		HasDefault: f.HasDefaultValue && !f.AutoIncrement,
		DefaultSQL: f.DefaultValue,
	}
	if f.Precision > 0 && p.IsTime() {
		p.Precision = f.Precision
	}

	nullableType := f.FieldType.Kind() == reflect.Ptr || f.FieldType.Implements(valuerType) || reflect.PointerTo(f.FieldType).Implements(scannerIntf)
	p.Nullable = !f.NotNull && !f.PrimaryKey && nullableType

	if f.AutoIncrement {
		p.Generated = GeneratedOnAdd
		if v, ok := f.TagSettings["AUTOINCREMENT"]; ok && !strings.EqualFold(v, "false") {
			p.Strategy = StrategyIdentity
		}
	}
	if !f.Creatable && !f.Updatable {
		p.Generated = GeneratedOnAddOrUpdate
		p.Strategy = StrategyComputed
	}

	for key, val := range tags {
		switch key {
		case "TIMESTAMP":
			p.ConcurrencyToken = true
			p.Generated = GeneratedOnAddOrUpdate
		case "SPATIAL":
			p.Spatial = true
		case "IDENTITY":
			p.Generated = GeneratedOnAdd
			p.Strategy = StrategyIdentity
		case "COMPUTED":
			p.Generated = GeneratedOnAddOrUpdate
			p.Strategy = StrategyComputed
		case "NULLABLE":
			p.Nullable = true
		case "PRECISION":
			n, err := strconv.Atoi(val)
			if err != nil {
				return nil, fmt.Errorf("invalid precision %q", val)
			}
			p.Precision = n
		case "CONVERTER":
			c, ok := LookupConverter(val)
			if !ok {
				return nil, fmt.Errorf("unknown converter %q", val)
			}
			p.Converter = c
		}
	}
	if strings.Contains(p.ColumnType, "rowversion") {
		p.ConcurrencyToken = true
		p.Generated = GeneratedOnAddOrUpdate
	}
	if strings.Contains(p.ColumnType, "geography") || strings.Contains(p.ColumnType, "geometry") {
		p.Spatial = true
	}
	if p.Converter == nil && strings.EqualFold(f.TagSettings["SERIALIZER"], "json") {
		p.Converter = JSONConverter{}
	}

	p.Get, p.Set = accessors(path)
	return p, nil
}

// fieldPath walks the bind names of a field through the model type, returning the
// field index path and the dotted logical name. Anonymous embedding does not add a
// name segment.
func fieldPath(modelType reflect.Type, bindNames []string) ([]int, string, error) {
	t := modelType
	path := make([]int, 0, len(bindNames))
	var names []string
	for i, bind := range bindNames {
		for t.Kind() == reflect.Ptr {
			t = t.Elem()
		}
		sf, ok := t.FieldByName(bind)
		if !ok || len(sf.Index) != 1 {
			return nil, "", fmt.Errorf("field %s not found on %s", bind, t)
		}
		path = append(path, sf.Index[0])
		if !sf.Anonymous || i == len(bindNames)-1 {
			names = append(names, bind)
		}
		t = sf.Type
	}
	return path, strings.Join(names, "."), nil
}

// accessors builds closures over a field index path. Nil embedded pointers read as
// nil and are allocated on write.
func accessors(path []int) (func(any) any, func(any, any) error) {
	get := func(entity any) any {
		v := reflect.ValueOf(entity)
		for i, idx := range path {
			for v.Kind() == reflect.Ptr {
				if v.IsNil() {
					return nil
				}
				v = v.Elem()
			}
			v = v.Field(idx)
			if i == len(path)-1 {
				return v.Interface()
			}
		}
		return nil
	}
	set := func(entity any, value any) error {
		v := reflect.ValueOf(entity)
		if v.Kind() != reflect.Ptr {
			return fmt.Errorf("cannot set field on non-pointer %T", entity)
		}
		for _, idx := range path {
			for v.Kind() == reflect.Ptr {
				if v.IsNil() {
					v.Set(reflect.New(v.Type().Elem()))
				}
				v = v.Elem()
			}
			v = v.Field(idx)
		}
		return utils.Assign(v, value)
	}
	return get, set
}
