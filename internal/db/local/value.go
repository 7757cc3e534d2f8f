package local

import (
	"cmp"
	"fmt"
	"reflect"
	"slices"
	"strconv"
	"strings"
	"time"
)

// toFloat reports the numeric value of v for any Go integer or float type.
func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int8:
		return float64(n), true
	case int16:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint:
		return float64(n), true
	case uint8:
		return float64(n), true
	case uint16:
		return float64(n), true
	case uint32:
		return float64(n), true
	case uint64:
		return float64(n), true
	}
	return 0, false
}

// normalize turns typed slices and string-keyed maps into []any and
// map[string]any so evaluation only deals with the generic shapes.
func normalize(v any) any {
	switch t := v.(type) {
	case nil, string, bool, time.Time, float64, int, int64:
		return v
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, e := range t {
			out[k] = normalize(e)
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i, e := range t {
			out[i] = normalize(e)
		}
		return out
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Slice, reflect.Array:
		if rv.Type().Elem().Kind() == reflect.Uint8 {
			return v
		}
		out := make([]any, rv.Len())
		for i := range out {
			out[i] = normalize(rv.Index(i).Interface())
		}
		return out
	case reflect.Map:
		if rv.Type().Key().Kind() != reflect.String {
			return v
		}
		out := make(map[string]any, rv.Len())
		iter := rv.MapRange()
		for iter.Next() {
			out[iter.Key().String()] = normalize(iter.Value().Interface())
		}
		return out
	}
	return v
}

func normalizeDoc(doc map[string]any) map[string]any {
	out := make(map[string]any, len(doc))
	for k, v := range doc {
		out[k] = normalize(v)
	}
	return out
}

// valuesEqual compares by value; numbers compare across Go types.
func valuesEqual(a, b any) bool {
	a, b = coerceTimes(a, b)
	if af, ok := toFloat(a); ok {
		bf, ok := toFloat(b)
		return ok && af == bf
	}
	switch at := a.(type) {
	case nil:
		return b == nil
	case string:
		bs, ok := b.(string)
		return ok && at == bs
	case bool:
		bb, ok := b.(bool)
		return ok && at == bb
	case time.Time:
		bt, ok := b.(time.Time)
		return ok && at.Equal(bt)
	case map[string]any:
		bm, ok := b.(map[string]any)
		if !ok || len(at) != len(bm) {
			return false
		}
		for k, av := range at {
			bv, ok := bm[k]
			if !ok || !valuesEqual(av, bv) {
				return false
			}
		}
		return true
	case []any:
		bs, ok := b.([]any)
		if !ok || len(at) != len(bs) {
			return false
		}
		for i := range at {
			if !valuesEqual(at[i], bs[i]) {
				return false
			}
		}
		return true
	}
	return reflect.DeepEqual(a, b)
}

// compareBracket compares two values of the same type bracket.
// ok is false when the types are not comparable.
func compareBracket(a, b any) (int, bool) {
	a, b = coerceTimes(a, b)
	if af, ok := toFloat(a); ok {
		bf, ok := toFloat(b)
		if !ok {
			return 0, false
		}
		return cmp.Compare(af, bf), true
	}
	switch at := a.(type) {
	case string:
		bs, ok := b.(string)
		if !ok {
			return 0, false
		}
		return strings.Compare(at, bs), true
	case time.Time:
		bt, ok := b.(time.Time)
		if !ok {
			return 0, false
		}
		return at.Compare(bt), true
	case bool:
		bb, ok := b.(bool)
		if !ok {
			return 0, false
		}
		return cmp.Compare(boolRank(at), boolRank(bb)), true
	}
	return 0, false
}

// coerceTimes parses the string side as a date when the other side is a
// time.Time. Dates reload from disk as RFC 3339 strings.
func coerceTimes(a, b any) (any, any) {
	switch at := a.(type) {
	case time.Time:
		if bs, ok := b.(string); ok {
			if bt, ok := asTime(bs); ok {
				return at, bt
			}
		}
	case string:
		if _, ok := b.(time.Time); ok {
			if t, ok := asTime(at); ok {
				return t, b
			}
		}
	}
	return a, b
}

func boolRank(b bool) int {
	if b {
		return 1
	}
	return 0
}

// typeRank follows the BSON comparison order.
func typeRank(v any) int {
	if _, ok := toFloat(v); ok {
		return 2
	}
	switch v.(type) {
	case nil:
		return 1
	case string:
		return 3
	case map[string]any:
		return 4
	case []any:
		return 5
	case bool:
		return 8
	case time.Time:
		return 9
	}
	return 10
}

// compareValues totally orders values of any type.
func compareValues(a, b any) int {
	ra, rb := typeRank(a), typeRank(b)
	if ra != rb {
		return cmp.Compare(ra, rb)
	}
	if c, ok := compareBracket(a, b); ok {
		return c
	}
	switch at := a.(type) {
	case []any:
		bs := b.([]any)
		for i := 0; i < len(at) && i < len(bs); i++ {
			if c := compareValues(at[i], bs[i]); c != 0 {
				return c
			}
		}
		return cmp.Compare(len(at), len(bs))
	case map[string]any:
		return strings.Compare(canonicalKey(at), canonicalKey(b))
	}
	return 0
}

// canonicalKey renders v so that valuesEqual values share a key.
func canonicalKey(v any) string {
	var sb strings.Builder
	writeKey(&sb, v)
	return sb.String()
}

func writeKey(sb *strings.Builder, v any) {
	if f, ok := toFloat(v); ok {
		sb.WriteString("d:")
		sb.WriteString(strconv.FormatFloat(f, 'g', -1, 64))
		return
	}
	switch t := v.(type) {
	case nil:
		sb.WriteString("n")
	case string:
		sb.WriteString("s:")
		sb.WriteString(strconv.Quote(t))
	case bool:
		sb.WriteString("b:")
		sb.WriteString(strconv.FormatBool(t))
	case time.Time:
		sb.WriteString("t:")
		sb.WriteString(t.UTC().Format(time.RFC3339Nano))
	case map[string]any:
		keys := make([]string, 0, len(t))
		for k := range t {
			keys = append(keys, k)
		}
		slices.Sort(keys)
		sb.WriteByte('{')
		for _, k := range keys {
			sb.WriteString(strconv.Quote(k))
			sb.WriteByte('=')
			writeKey(sb, t[k])
			sb.WriteByte(';')
		}
		sb.WriteByte('}')
	case []any:
		sb.WriteByte('[')
		for _, e := range t {
			writeKey(sb, e)
			sb.WriteByte(';')
		}
		sb.WriteByte(']')
	default:
		sb.WriteString("x:")
		sb.WriteString(reflect.TypeOf(v).String())
		sb.WriteByte(':')
		sb.WriteString(strconv.Quote(fmt.Sprint(v)))
	}
}
