// Package value compares loosely typed field values for the backends that
// evaluate criteria in process (memory and document).
//
// Numbers compare by value across Go numeric types, strings compare after
// Unicode NFC normalization, time.Time values compare chronologically.
package value

import (
	"fmt"
	"reflect"
	"strings"
	"time"

	"golang.org/x/text/unicode/norm"
)

// IsNull reports whether v is nil or a nil pointer/interface.
func IsNull(v any) bool {
	if v == nil {
		return true
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Pointer, reflect.Interface, reflect.Map, reflect.Slice:
		return rv.IsNil()
	}
	return false
}

// Equal reports whether a and b are equal under loose typing.
func Equal(a, b any) bool {
	if IsNull(a) || IsNull(b) {
		return IsNull(a) && IsNull(b)
	}
	if c, ok := Compare(a, b); ok {
		return c == 0
	}
	return reflect.DeepEqual(a, b)
}

// Compare orders a and b. ok is false when the values are not comparable;
// callers treat that as "does not match".
func Compare(a, b any) (result int, ok bool) {
	a, b = deref(a), deref(b)

	if fa, okA := toFloat(a); okA {
		if fb, okB := toFloat(b); okB {
			switch {
			case fa < fb:
				return -1, true
			case fa > fb:
				return 1, true
			default:
				return 0, true
			}
		}
		return 0, false
	}

	if ta, okA := a.(time.Time); okA {
		if tb, okB := b.(time.Time); okB {
			return ta.Compare(tb), true
		}
		return 0, false
	}

	if sa, okA := toString(a); okA {
		if sb, okB := toString(b); okB {
			return strings.Compare(norm.NFC.String(sa), norm.NFC.String(sb)), true
		}
		return 0, false
	}

	if ba, okA := a.(bool); okA {
		if bb, okB := b.(bool); okB {
			switch {
			case ba == bb:
				return 0, true
			case !ba:
				return -1, true
			default:
				return 1, true
			}
		}
	}
	return 0, false
}

// In reports whether v equals any of set.
func In(v any, set []any) bool {
	for _, candidate := range set {
		if Equal(v, candidate) {
			return true
		}
	}
	return false
}

// Contains reports whether the string form of haystack contains needle.
func Contains(haystack, needle any) bool {
	if IsNull(haystack) {
		return false
	}
	h, ok := toString(deref(haystack))
	if !ok {
		h = fmt.Sprint(deref(haystack))
	}
	n, ok := toString(deref(needle))
	if !ok {
		n = fmt.Sprint(deref(needle))
	}
	return strings.Contains(norm.NFC.String(h), norm.NFC.String(n))
}

// Less orders a before b for sorting; nulls sort first and incomparable
// values keep their relative order.
func Less(a, b any) bool {
	if IsNull(a) {
		return !IsNull(b)
	}
	if IsNull(b) {
		return false
	}
	c, ok := Compare(a, b)
	return ok && c < 0
}

func deref(v any) any {
	rv := reflect.ValueOf(v)
	for rv.IsValid() && rv.Kind() == reflect.Pointer {
		if rv.IsNil() {
			return nil
		}
		rv = rv.Elem()
	}
	if !rv.IsValid() {
		return nil
	}
	return rv.Interface()
}

func toFloat(v any) (float64, bool) {
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return float64(rv.Int()), true
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return float64(rv.Uint()), true
	case reflect.Float32, reflect.Float64:
		return rv.Float(), true
	}
	return 0, false
}

func toString(v any) (string, bool) {
	switch s := v.(type) {
	case string:
		return s, true
	case []byte:
		return string(s), true
	case fmt.Stringer:
		return s.String(), true
	}
	rv := reflect.ValueOf(v)
	if rv.Kind() == reflect.String {
		return rv.String(), true
	}
	return "", false
}
