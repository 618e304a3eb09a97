package harness

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"reflect"
)

// Operand is a value that carries its own equality and rendering rules.
// Script-engine values implement it so assertions follow the script
// language's strict equality rather than Go's.
type Operand interface {
	StrictEqual(other any) bool
	Render() string
}

// StrictEqual compares two values without coercion.
//
// Values of different dynamic types are never equal, so 1 and "1" differ.
// Maps, slices, pointers, funcs and channels compare by identity. Other
// comparable values use ==, which keeps NaN unequal to itself.
func StrictEqual(left, right any) bool {
	if op, ok := left.(Operand); ok {
		return op.StrictEqual(right)
	}
	if left == nil || right == nil {
		return left == nil && right == nil
	}

	lv, rv := reflect.ValueOf(left), reflect.ValueOf(right)
	if lv.Type() != rv.Type() {
		return false
	}

	switch lv.Kind() {
	case reflect.Map, reflect.Pointer, reflect.Func, reflect.Chan, reflect.UnsafePointer:
		return lv.Pointer() == rv.Pointer()
	case reflect.Slice:
		return lv.Pointer() == rv.Pointer() && lv.Len() == rv.Len()
	}

	if !lv.Type().Comparable() {
		return reflect.DeepEqual(left, right)
	}
	return comparableEqual(left, right)
}

// comparableEqual uses == and treats a runtime comparison panic (an
// interface field holding an uncomparable value) as inequality.
func comparableEqual(left, right any) (eq bool) {
	defer func() {
		if recover() != nil {
			eq = false
		}
	}()
	return left == right
}

// Render serializes v as structured text so composite values are
// distinguishable in a report. Strings are quoted byte for byte, map keys are
// sorted, HTML characters are not escaped. Values JSON cannot represent
// render as "undefined" (funcs, channels) or "null" (NaN, infinities).
func Render(v any) string {
	if op, ok := v.(Operand); ok {
		return op.Render()
	}
	if v == nil {
		return "null"
	}

	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Func, reflect.Chan, reflect.UnsafePointer:
		return "undefined"
	case reflect.Float32, reflect.Float64:
		f := rv.Float()
		if math.IsNaN(f) || math.IsInf(f, 0) {
			return "null"
		}
	}

	data, err := marshalRendered(v)
	if err != nil {
		return fmt.Sprintf("%v", v)
	}
	return string(data)
}

// marshalRendered encodes v without HTML escaping or a trailing newline.
func marshalRendered(v any) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	return unescapeLineSeparators(bytes.TrimSuffix(buf.Bytes(), []byte("\n"))), nil
}

// unescapeLineSeparators turns the U+2028 and U+2029 escapes emitted by
// encoding/json back into literal characters, leaving escaped backslashes
// (\\u2028) alone.
func unescapeLineSeparators(data []byte) []byte {
	if !bytes.Contains(data, []byte(`\u202`)) {
		return data
	}

	out := make([]byte, 0, len(data))
	for i := 0; i < len(data); i++ {
		if data[i] != '\\' || i+1 >= len(data) {
			out = append(out, data[i])
			continue
		}
		if data[i+1] == 'u' && i+5 < len(data) && string(data[i+2:i+5]) == "202" && (data[i+5] == '8' || data[i+5] == '9') {
			if data[i+5] == '8' {
				out = append(out, "\u2028"...)
			} else {
				out = append(out, "\u2029"...)
			}
			i += 5
			continue
		}
		// Any other escape: copy the backslash and the escaped byte together.
		out = append(out, data[i], data[i+1])
		i++
	}
	return out
}
