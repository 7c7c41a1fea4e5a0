package sandbox

import (
	"encoding/json"
	"fmt"
	"math"
	"reflect"
	"strconv"
	"strings"
)

// convertArg converts a JSON-decoded value to the declared parameter type.
// Numbers arrive as float64 and are narrowed when integral; numeric and
// boolean strings are parsed.
func convertArg(raw interface{}, t reflect.Type) (reflect.Value, error) {
	out := reflect.New(t).Elem()

	if raw == nil {
		if t.Kind() == reflect.Interface || t.Kind() == reflect.Slice {
			return out, nil
		}
		return out, fmt.Errorf("null is not a valid %s", t)
	}
	if n, ok := raw.(json.Number); ok {
		raw = n.String()
	}

	rv := reflect.ValueOf(raw)
	switch t.Kind() {
	case reflect.Interface:
		if !rv.Type().Implements(t) {
			return out, fmt.Errorf("%T does not implement %s", raw, t)
		}
		out.Set(rv)

	case reflect.String:
		switch v := raw.(type) {
		case string:
			out.SetString(v)
		case bool:
			out.SetString(strconv.FormatBool(v))
		case float64:
			out.SetString(strconv.FormatFloat(v, 'f', -1, 64))
		default:
			if !isNumber(rv) {
				return out, fmt.Errorf("expected string, got %T", raw)
			}
			out.SetString(fmt.Sprint(raw))
		}

	case reflect.Bool:
		switch v := raw.(type) {
		case bool:
			out.SetBool(v)
		case string:
			b, err := strconv.ParseBool(strings.TrimSpace(v))
			if err != nil {
				return out, fmt.Errorf("expected bool, got %q", v)
			}
			out.SetBool(b)
		default:
			return out, fmt.Errorf("expected bool, got %T", raw)
		}

	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		n, err := toInt(raw, rv)
		if err != nil {
			return out, err
		}
		if out.OverflowInt(n) {
			return out, fmt.Errorf("%d overflows %s", n, t)
		}
		out.SetInt(n)

	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
		n, err := toInt(raw, rv)
		if err != nil {
			return out, err
		}
		if n < 0 || out.OverflowUint(uint64(n)) {
			return out, fmt.Errorf("%d overflows %s", n, t)
		}
		out.SetUint(uint64(n))

	case reflect.Float32, reflect.Float64:
		f, err := toFloat(raw, rv)
		if err != nil {
			return out, err
		}
		if out.OverflowFloat(f) {
			return out, fmt.Errorf("%v overflows %s", f, t)
		}
		out.SetFloat(f)

	case reflect.Slice:
		if rv.Kind() != reflect.Slice && rv.Kind() != reflect.Array {
			return out, fmt.Errorf("expected list, got %T", raw)
		}
		slice := reflect.MakeSlice(t, rv.Len(), rv.Len())
		for i := 0; i < rv.Len(); i++ {
			elem, err := convertArg(rv.Index(i).Interface(), t.Elem())
			if err != nil {
				return out, fmt.Errorf("element %d: %w", i, err)
			}
			slice.Index(i).Set(elem)
		}
		out.Set(slice)

	default:
		return out, fmt.Errorf("unsupported parameter type %s", t)
	}
	return out, nil
}

func isNumber(rv reflect.Value) bool {
	switch rv.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64,
		reflect.Float32, reflect.Float64:
		return true
	}
	return false
}

func toInt(raw interface{}, rv reflect.Value) (int64, error) {
	switch rv.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return rv.Int(), nil
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		if rv.Uint() > math.MaxInt64 {
			return 0, fmt.Errorf("%d overflows int64", rv.Uint())
		}
		return int64(rv.Uint()), nil
	case reflect.Float32, reflect.Float64:
		f := rv.Float()
		if f != math.Trunc(f) || math.IsInf(f, 0) || math.IsNaN(f) {
			return 0, fmt.Errorf("expected integer, got %v", f)
		}
		if f < math.MinInt64 || f >= math.MaxInt64 {
			return 0, fmt.Errorf("%v overflows int64", f)
		}
		return int64(f), nil
	case reflect.String:
		s := strings.TrimSpace(rv.String())
		if n, err := strconv.ParseInt(s, 0, 64); err == nil {
			return n, nil
		}
		if f, err := strconv.ParseFloat(s, 64); err == nil {
			return toInt(f, reflect.ValueOf(f))
		}
		return 0, fmt.Errorf("expected integer, got %q", s)
	}
	return 0, fmt.Errorf("expected integer, got %T", raw)
}

func toFloat(raw interface{}, rv reflect.Value) (float64, error) {
	switch rv.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return float64(rv.Int()), nil
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return float64(rv.Uint()), nil
	case reflect.Float32, reflect.Float64:
		return rv.Float(), nil
	case reflect.String:
		f, err := strconv.ParseFloat(strings.TrimSpace(rv.String()), 64)
		if err != nil {
			return 0, fmt.Errorf("expected number, got %q", rv.String())
		}
		return f, nil
	}
	return 0, fmt.Errorf("expected number, got %T", raw)
}
