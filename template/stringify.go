package template

import (
	"fmt"
	"reflect"

	"github.com/spf13/cast"
)

// Stringify converts a resolved value to output text. Nil renders as the
// empty string; everything else takes its natural Go string form.
func Stringify(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case SafeString:
		return string(t)
	}
	if s, err := cast.ToStringE(v); err == nil {
		return s
	}
	return fmt.Sprintf("%v", v)
}

// IsTrue mirrors condition coercion in if, firstof and friends: nil,
// false, zero numbers, empty strings and empty containers are false,
// everything else is true.
func IsTrue(v any) bool {
	switch t := v.(type) {
	case nil:
		return false
	case bool:
		return t
	case string:
		return t != ""
	case SafeString:
		return t != ""
	case int:
		return t != 0
	case float64:
		return t != 0
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return rv.Int() != 0
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return rv.Uint() != 0
	case reflect.Float32, reflect.Float64:
		return rv.Float() != 0
	case reflect.Slice, reflect.Map, reflect.Array, reflect.Chan, reflect.String:
		return rv.Len() > 0
	case reflect.Ptr, reflect.Interface:
		if rv.IsNil() {
			return false
		}
		return IsTrue(rv.Elem().Interface())
	}
	return true
}
