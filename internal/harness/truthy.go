package harness

import (
	"math"
	"reflect"
)

// Truther is implemented by values that decide their own truthiness,
// such as script-engine values.
type Truther interface {
	Truthy() bool
}

// Truthy reports whether v counts as a present result for polling.
//
// nil, typed nil pointers/maps/slices/funcs, false, zero numbers, NaN and ""
// are falsy. Everything else is truthy, including empty non-nil slices and
// maps: a query that means "no matches" for an empty collection must return
// nil explicitly.
func Truthy(v any) bool {
	if t, ok := v.(Truther); ok {
		return t.Truthy()
	}
	if v == nil {
		return false
	}

	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Bool:
		return rv.Bool()
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return rv.Int() != 0
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
		return rv.Uint() != 0
	case reflect.Float32, reflect.Float64:
		f := rv.Float()
		return f != 0 && !math.IsNaN(f)
	case reflect.String:
		return rv.Len() > 0
	case reflect.Pointer, reflect.Interface, reflect.Map, reflect.Slice, reflect.Func, reflect.Chan:
		return !rv.IsNil()
	default:
		return true
	}
}
