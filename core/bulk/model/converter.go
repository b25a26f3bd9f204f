package model

import (
	"encoding"
	"encoding/json"
	"fmt"
	"reflect"
	"sync"
	"time"

	"bulksync/core/utils"
)

// Converter translates values between their object and provider representations.
type Converter interface {
	// ToProvider converts an object value before it is sent to the database.
	ToProvider(value any) (any, error)
	// FromProvider converts a database value into a value assignable to goType.
	FromProvider(value any, goType reflect.Type) (any, error)
}

var (
	convertersMu sync.RWMutex
	converters   = map[string]Converter{
		"json": JSONConverter{},
		"unix": UnixTimeConverter{},
		"text": TextConverter{},
	}
)

// RegisterConverter makes a converter available to `bulk:"converter:<name>"` tags.
func RegisterConverter(name string, c Converter) {
	convertersMu.Lock()
	defer convertersMu.Unlock()
	converters[name] = c
}

// LookupConverter returns a registered converter.
func LookupConverter(name string) (Converter, bool) {
	convertersMu.RLock()
	defer convertersMu.RUnlock()
	c, ok := converters[name]
	return c, ok
}

// JSONConverter stores values as JSON text.
type JSONConverter struct{}

// ToProvider implements Converter.
func (JSONConverter) ToProvider(value any) (any, error) {
	if utils.IsZero(value) {
		return nil, nil
	}
	b, err := json.Marshal(value)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

// FromProvider implements Converter.
func (JSONConverter) FromProvider(value any, goType reflect.Type) (any, error) {
	out := reflect.New(goType)
	var raw []byte
	switch v := value.(type) {
	case string:
		raw = []byte(v)
	case []byte:
		raw = v
	default:
		return nil, fmt.Errorf("cannot decode %T as json", value)
	}
	if err := json.Unmarshal(raw, out.Interface()); err != nil {
		return nil, err
	}
	return out.Elem().Interface(), nil
}

// UnixTimeConverter stores time.Time values as unix seconds.
type UnixTimeConverter struct{}

// ToProvider implements Converter.
func (UnixTimeConverter) ToProvider(value any) (any, error) {
	switch v := value.(type) {
	case time.Time:
		if v.IsZero() {
			return nil, nil
		}
		return v.Unix(), nil
	case *time.Time:
		if v == nil {
			return nil, nil
		}
		return v.Unix(), nil
	}
	return nil, fmt.Errorf("unix converter expects time.Time, got %T", value)
}

// FromProvider implements Converter.
func (UnixTimeConverter) FromProvider(value any, goType reflect.Type) (any, error) {
	t := time.Unix(utils.ToInt64(value), 0).UTC()
	if goType.Kind() == reflect.Ptr {
		return &t, nil
	}
	return t, nil
}

// TextConverter stores values through their text form: encoding.TextMarshaler or
// fmt.Stringer on the way out, encoding.TextUnmarshaler on the way back. It suits
// enums persisted by name.
type TextConverter struct{}

// ToProvider implements Converter.
func (TextConverter) ToProvider(value any) (any, error) {
	switch v := value.(type) {
	case nil:
		return nil, nil
	case encoding.TextMarshaler:
		b, err := v.MarshalText()
		return string(b), err
	case fmt.Stringer:
		return v.String(), nil
	}
	return utils.ToString(value), nil
}

// FromProvider implements Converter.
func (TextConverter) FromProvider(value any, goType reflect.Type) (any, error) {
	out := reflect.New(goType)
	if u, ok := out.Interface().(encoding.TextUnmarshaler); ok {
		if err := u.UnmarshalText([]byte(utils.ToString(value))); err != nil {
			return nil, err
		}
		return out.Elem().Interface(), nil
	}
	if err := utils.Assign(out.Elem(), utils.ToString(value)); err != nil {
		return nil, err
	}
	return out.Elem().Interface(), nil
}
