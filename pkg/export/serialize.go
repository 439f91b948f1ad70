package export

import (
	"encoding/json"
	"fmt"
	"math"
	"reflect"
)

// Dumper is implemented by results that know their own structured form
type Dumper interface {
	Dump() (map[string]any, error)
}

// SerializeResult maps a tool result to a response object. The first match
// wins: nil, object, scalar, sequence, Dumper, struct, string form.
func SerializeResult(result any) map[string]any {
	if result == nil {
		return map[string]any{"result": nil}
	}

	if m, ok := result.(map[string]any); ok {
		if m == nil {
			return map[string]any{}
		}
		return m
	}

	rv := reflect.ValueOf(result)
	for rv.Kind() == reflect.Pointer {
		if rv.IsNil() {
			return map[string]any{"result": nil}
		}
		rv = rv.Elem()
	}

	switch rv.Kind() {
	case reflect.Map:
		if rv.Type().Key().Kind() == reflect.String {
			out := make(map[string]any, rv.Len())
			iter := rv.MapRange()
			for iter.Next() {
				out[iter.Key().String()] = iter.Value().Interface()
			}
			return out
		}
	case reflect.String, reflect.Bool,
		reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64,
		reflect.Float32, reflect.Float64:
		return map[string]any{"result": rv.Interface()}
	case reflect.Slice, reflect.Array:
		if rv.Kind() == reflect.Slice && rv.Type().Elem().Kind() == reflect.Uint8 {
			return map[string]any{"result": string(rv.Bytes())}
		}
		list := make([]any, rv.Len())
		for i := range list {
			list[i] = rv.Index(i).Interface()
		}
		return map[string]any{"result": list}
	}

	if d, ok := result.(Dumper); ok {
		if m, err := d.Dump(); err == nil && m != nil {
			return m
		}
	}

	if rv.Kind() == reflect.Struct {
		if m, ok := structObject(result); ok {
			return m
		}
	}

	return map[string]any{"result": fmt.Sprint(result)}
}

// structObject reads a struct through its JSON encoding. Structs with no
// exported fields are not objects.
func structObject(v any) (map[string]any, bool) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, false
	}
	var m map[string]any
	if err := json.Unmarshal(data, &m); err != nil || len(m) == 0 {
		return nil, false
	}
	return m, true
}

// Normalize converts v into values encoding/json always accepts. Used as
// the fallback when a trace holds values with no native encoding.
func Normalize(v any) any {
	if v == nil {
		return nil
	}
	rv := reflect.ValueOf(v)
	if rv.Kind() == reflect.Pointer && rv.IsNil() {
		return nil
	}

	switch x := v.(type) {
	case string, bool, json.Number:
		return x
	case float64:
		return normalizeFloat(x)
	case float32:
		return normalizeFloat(float64(x))
	case Dumper:
		if m, err := x.Dump(); err == nil {
			return Normalize(m)
		}
		return fmt.Sprint(v)
	case json.Marshaler:
		if _, err := x.MarshalJSON(); err == nil {
			return x
		}
		return fmt.Sprint(v)
	}

	switch rv.Kind() {
	case reflect.Pointer:
		return Normalize(rv.Elem().Interface())
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return rv.Interface()
	case reflect.String:
		return rv.String()
	case reflect.Bool:
		return rv.Bool()
	case reflect.Float32, reflect.Float64:
		return normalizeFloat(rv.Float())
	case reflect.Map:
		out := make(map[string]any, rv.Len())
		iter := rv.MapRange()
		for iter.Next() {
			out[fmt.Sprint(iter.Key().Interface())] = Normalize(iter.Value().Interface())
		}
		return out
	case reflect.Slice, reflect.Array:
		if rv.Kind() == reflect.Slice && rv.IsNil() {
			return nil
		}
		out := make([]any, rv.Len())
		for i := range out {
			out[i] = Normalize(rv.Index(i).Interface())
		}
		return out
	case reflect.Struct:
		if m, ok := structObject(v); ok {
			return m
		}
	}

	return fmt.Sprint(v)
}

func normalizeFloat(f float64) any {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return fmt.Sprint(f)
	}
	return f
}
