package metadata

import (
	"fmt"
	"reflect"
	"strconv"
	"time"
)

var timeType = reflect.TypeOf(time.Time{})

// Convert coerces a storage value (as returned by database drivers or YAML
// decoding) to typ.
func Convert(value any, typ reflect.Type) (reflect.Value, error) {
	if value == nil {
		return reflect.Zero(typ), nil
	}

	src := reflect.ValueOf(value)
	if src.Type().AssignableTo(typ) {
		out := reflect.New(typ).Elem()
		out.Set(src)
		return out, nil
	}

	switch typ.Kind() {
	case reflect.Pointer:
		elem, err := Convert(value, typ.Elem())
		if err != nil {
			return reflect.Value{}, err
		}
		ptr := reflect.New(typ.Elem())
		ptr.Elem().Set(elem)
		return ptr, nil
	case reflect.Interface:
		if src.Type().Implements(typ) {
			out := reflect.New(typ).Elem()
			out.Set(src)
			return out, nil
		}
	case reflect.String:
		switch v := value.(type) {
		case []byte:
			return reflect.ValueOf(string(v)).Convert(typ), nil
		case string:
			return reflect.ValueOf(v).Convert(typ), nil
		default:
			return reflect.ValueOf(fmt.Sprint(v)).Convert(typ), nil
		}
	case reflect.Bool:
		switch v := value.(type) {
		case int64:
			return reflect.ValueOf(v != 0).Convert(typ), nil
		case string:
			b, err := strconv.ParseBool(v)
			if err != nil {
				return reflect.Value{}, fmt.Errorf("convert %q to bool: %w", v, err)
			}
			return reflect.ValueOf(b).Convert(typ), nil
		}
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64,
		reflect.Float32, reflect.Float64:
		if s, ok := value.(string); ok {
			f, err := strconv.ParseFloat(s, 64)
			if err != nil {
				return reflect.Value{}, fmt.Errorf("convert %q to %s: %w", s, typ, err)
			}
			src = reflect.ValueOf(f)
		}
		if isNumber(src.Kind()) {
			return src.Convert(typ), nil
		}
	case reflect.Struct:
		if typ == timeType {
			switch v := value.(type) {
			case string:
				t, err := time.Parse(time.RFC3339Nano, v)
				if err != nil {
					return reflect.Value{}, fmt.Errorf("convert %q to time: %w", v, err)
				}
				return reflect.ValueOf(t), nil
			case []byte:
				t, err := time.Parse(time.RFC3339Nano, string(v))
				if err != nil {
					return reflect.Value{}, fmt.Errorf("convert %q to time: %w", v, err)
				}
				return reflect.ValueOf(t), nil
			}
		}
	}

	if src.Type().ConvertibleTo(typ) && src.Kind() != reflect.String {
		return src.Convert(typ), nil
	}
	return reflect.Value{}, fmt.Errorf("cannot convert %T to %s", value, typ)
}

func isNumber(k reflect.Kind) bool {
	switch k {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64,
		reflect.Float32, reflect.Float64:
		return true
	}
	return false
}
