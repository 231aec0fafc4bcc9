package client

import (
	"fmt"
	"net/url"
	"reflect"
	"strconv"
)

// Paramer is implemented by values that render themselves as REST
// parameters, such as keyboard and attachment markups.
type Paramer interface {
	Params() any
}

// Flatten turns nested maps and slices into the bracketed keys the REST API
// expects: {"A": {"B": 1, "C": [2, 3]}} becomes A[B]=1, A[C][0]=2, A[C][1]=3.
// Leaves keep their Go value; Encode renders them.
func Flatten(params map[string]any) map[string]any {
	out := make(map[string]any, len(params))
	for k, v := range params {
		flattenInto(out, k, v)
	}
	return out
}

func flattenInto(out map[string]any, key string, v any) {
	if p, ok := v.(Paramer); ok && !isNilPointer(v) {
		v = p.Params()
	}
	switch x := v.(type) {
	case nil:
		out[key] = nil
	case map[string]any:
		for k, child := range x {
			flattenInto(out, key+"["+k+"]", child)
		}
	case map[string]string:
		for k, child := range x {
			out[key+"["+k+"]"] = child
		}
	case []any:
		for i, child := range x {
			flattenInto(out, key+"["+strconv.Itoa(i)+"]", child)
		}
	case []map[string]any:
		for i, child := range x {
			flattenInto(out, key+"["+strconv.Itoa(i)+"]", child)
		}
	case []string:
		for i, child := range x {
			out[key+"["+strconv.Itoa(i)+"]"] = child
		}
	case []byte:
		out[key] = string(x)
	default:
		flattenReflect(out, key, v)
	}
}

func flattenReflect(out map[string]any, key string, v any) {
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Map:
		if rv.Type().Key().Kind() != reflect.String {
			out[key] = v
			return
		}
		iter := rv.MapRange()
		for iter.Next() {
			flattenInto(out, key+"["+iter.Key().String()+"]", iter.Value().Interface())
		}
	case reflect.Slice, reflect.Array:
		for i := 0; i < rv.Len(); i++ {
			flattenInto(out, key+"["+strconv.Itoa(i)+"]", rv.Index(i).Interface())
		}
	case reflect.Pointer:
		if rv.IsNil() {
			out[key] = nil
			return
		}
		flattenInto(out, key, rv.Elem().Interface())
	default:
		out[key] = v
	}
}

func isNilPointer(v any) bool {
	rv := reflect.ValueOf(v)
	return rv.Kind() == reflect.Pointer && rv.IsNil()
}

// Encode renders flattened parameters as form values. Booleans become Y/N
// and nil becomes an empty string.
func Encode(flat map[string]any) url.Values {
	form := make(url.Values, len(flat))
	for k, v := range flat {
		form.Set(k, formatScalar(v))
	}
	return form
}

func formatScalar(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return x
	case bool:
		if x {
			return "Y"
		}
		return "N"
	case int:
		return strconv.Itoa(x)
	case int64:
		return strconv.FormatInt(x, 10)
	case int32:
		return strconv.FormatInt(int64(x), 10)
	case uint:
		return strconv.FormatUint(uint64(x), 10)
	case uint64:
		return strconv.FormatUint(x, 10)
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	case float32:
		return strconv.FormatFloat(float64(x), 'f', -1, 32)
	case fmt.Stringer:
		return x.String()
	default:
		return fmt.Sprint(x)
	}
}

// present reports whether p renders to something worth sending.
func present(p Paramer) bool {
	if p == nil || isNilPointer(p) {
		return false
	}
	v := p.Params()
	if v == nil {
		return false
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Map, reflect.Slice, reflect.Array, reflect.String:
		return rv.Len() > 0
	}
	return true
}
