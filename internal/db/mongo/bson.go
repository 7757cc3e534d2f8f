package mongo

import (
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"

	"github.com/kailas-cloud/docstore/internal/domain"
)

// fromBSON converts decoded driver values into plain Go values: documents
// become maps, arrays []any, dates UTC time.Time and 32-bit ints int64.
func fromBSON(v any) any {
	switch t := v.(type) {
	case bson.D:
		out := make(map[string]any, len(t))
		for _, e := range t {
			out[e.Key] = fromBSON(e.Value)
		}
		return out
	case bson.M:
		return fromBSONDoc(t)
	case map[string]any:
		return fromBSONDoc(t)
	case bson.A:
		out := make([]any, len(t))
		for i, e := range t {
			out[i] = fromBSON(e)
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i, e := range t {
			out[i] = fromBSON(e)
		}
		return out
	case bson.DateTime:
		return t.Time().UTC()
	case time.Time:
		return t.UTC()
	case int32:
		return int64(t)
	case bson.ObjectID:
		return t.Hex()
	}
	return v
}

func fromBSONDoc(m map[string]any) domain.Document {
	out := make(domain.Document, len(m))
	for k, e := range m {
		out[k] = fromBSON(e)
	}
	return out
}

func fromBSONDocs(rows []bson.M) []domain.Document {
	out := make([]domain.Document, len(rows))
	for i, r := range rows {
		out[i] = fromBSONDoc(r)
	}
	return out
}

// toInt reads a numeric aggregation output.
func toInt(v any) int {
	switch n := v.(type) {
	case int32:
		return int(n)
	case int64:
		return int(n)
	case int:
		return n
	case float64:
		return int(n)
	}
	return 0
}

func toFloat(v any) float64 {
	switch n := v.(type) {
	case int32:
		return float64(n)
	case int64:
		return float64(n)
	case int:
		return float64(n)
	case float64:
		return n
	}
	return 0
}
