package utils

import (
	"database/sql"
	"database/sql/driver"
	"fmt"
	"reflect"
	"strconv"
	"strings"
	"time"
)

// ToInt converts various types to int using explicit type switching.
// It handles standard integer types, floats, strings, and byte slices.
func ToInt(val any) int {
	switch v := val.(type) {
	case int:
		return v
	case int64:
		return int(v)
	case int32:
		return int(v)
	case int16:
		return int(v)
	case int8:
		return int(v)
	case uint:
		return int(v)
	case uint64:
		return int(v)
	case uint32:
		return int(v)
	case uint16:
		return int(v)
	case uint8:
		return int(v)
	case float64:
		return int(v)
	case float32:
		return int(v)
	case string:
		i, _ := strconv.Atoi(v)
		return i
	case []byte:
		i, _ := strconv.Atoi(string(v))
		return i
	default:
		s := fmt.Sprintf("%v", v)
		i, _ := strconv.Atoi(s)
		return i
	}
}

// ToString converts various types to string.
func ToString(val any) string {
	switch v := val.(type) {
	case string:
		return v
	case []byte:
		return string(v)
	default:
		return fmt.Sprintf("%v", v)
	}
}

// ToBool converts various types to bool.
// It handles bool, numeric types (1=true), and strings ("1", "true").
func ToBool(val any) bool {
	switch v := val.(type) {
	case bool:
		return v
	case int, int64, int32, int16, int8, uint, uint64, uint32, uint16, uint8:
		return ToInt(v) == 1
	case string:
		return v == "1" || strings.ToLower(v) == "true"
	case []byte:
		s := string(v)
		return s == "1" || strings.ToLower(s) == "true"
	default:
		return false
	}
}

// ToInt64 converts various types to int64.
func ToInt64(val any) int64 {
	switch v := val.(type) {
	case int64:
		return v
	case uint64:
		return int64(v)
	case float64:
		return int64(v)
	case string:
		i, _ := strconv.ParseInt(v, 10, 64)
		return i
	case []byte:
		i, _ := strconv.ParseInt(string(v), 10, 64)
		return i
	default:
		return int64(ToInt(v))
	}
}

// ToFloat64 converts various types to float64.
func ToFloat64(val any) float64 {
	switch v := val.(type) {
	case float64:
		return v
	case float32:
		return float64(v)
	case string:
		f, _ := strconv.ParseFloat(v, 64)
		return f
	case []byte:
		f, _ := strconv.ParseFloat(string(v), 64)
		return f
	default:
		return float64(ToInt64(v))
	}
}

// KeyString renders a value so that equal keys read back from different drivers
// compare equal: integers of any width, byte slices and strings, times in UTC.
func KeyString(val any) string {
	if valuer, ok := val.(driver.Valuer); ok {
		if v, err := valuer.Value(); err == nil {
			val = v
		}
	}
	switch v := val.(type) {
	case nil:
		return "<nil>"
	case int, int64, int32, int16, int8, uint, uint64, uint32, uint16, uint8:
		return strconv.FormatInt(ToInt64(v), 10)
	case time.Time:
		return v.UTC().Format(time.RFC3339Nano)
	case []byte:
		return string(v)
	case bool:
		if v {
			return "1"
		}
		return "0"
	}
	rv := reflect.ValueOf(val)
	switch rv.Kind() {
	case reflect.Ptr:
		if rv.IsNil() {
			return "<nil>"
		}
		return KeyString(rv.Elem().Interface())
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return strconv.FormatInt(rv.Int(), 10)
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return strconv.FormatUint(rv.Uint(), 10)
	case reflect.String:
		return rv.String()
	}
	return fmt.Sprintf("%v", val)
}

// IsZero reports whether a value is nil or the zero value of its type.
func IsZero(val any) bool {
	if val == nil {
		return true
	}
	rv := reflect.ValueOf(val)
	if rv.Kind() == reflect.Ptr && rv.IsNil() {
		return true
	}
	return rv.IsZero()
}

var scannerType = reflect.TypeOf((*sql.Scanner)(nil)).Elem()

// Assign stores a driver value into dst, converting between the representations
// drivers return (int64, float64, []byte, string, time.Time) and the field type.
// A nil src resets dst to its zero value.
func Assign(dst reflect.Value, src any) error {
	if !dst.CanSet() {
		return fmt.Errorf("cannot assign to unaddressable %s", dst.Type())
	}
	if src == nil {
		dst.SetZero()
		return nil
	}
	if dst.CanAddr() && dst.Addr().Type().Implements(scannerType) {
		return dst.Addr().Interface().(sql.Scanner).Scan(src)
	}
	sv := reflect.ValueOf(src)
	if sv.Kind() == reflect.Ptr {
		if sv.IsNil() {
			dst.SetZero()
			return nil
		}
		if !sv.Type().AssignableTo(dst.Type()) {
			return Assign(dst, sv.Elem().Interface())
		}
	}
	if sv.Type().AssignableTo(dst.Type()) {
		dst.Set(sv)
		return nil
	}
	if dst.Kind() == reflect.Ptr {
		elem := reflect.New(dst.Type().Elem())
		if err := Assign(elem.Elem(), src); err != nil {
			return err
		}
		dst.Set(elem)
		return nil
	}

	switch dst.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		dst.SetInt(ToInt64(src))
		return nil
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		dst.SetUint(uint64(ToInt64(src)))
		return nil
	case reflect.Float32, reflect.Float64:
		dst.SetFloat(ToFloat64(src))
		return nil
	case reflect.Bool:
		dst.SetBool(ToBool(src))
		return nil
	case reflect.String:
		dst.SetString(ToString(src))
		return nil
	}

	if dst.Type() == reflect.TypeOf(time.Time{}) {
		switch v := src.(type) {
		case string:
			return assignTime(dst, v)
		case []byte:
			return assignTime(dst, string(v))
		}
	}
	if sv.Type().ConvertibleTo(dst.Type()) {
		dst.Set(sv.Convert(dst.Type()))
		return nil
	}
	return fmt.Errorf("cannot assign %T to %s", src, dst.Type())
}

var timeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02 15:04:05.999999999-07:00",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02T15:04:05.999999999",
	"2006-01-02",
}

func assignTime(dst reflect.Value, s string) error {
	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			dst.Set(reflect.ValueOf(t))
			return nil
		}
	}
	return fmt.Errorf("cannot parse %q as time", s)
}
