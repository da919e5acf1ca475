package mongostore

import (
	"go.mongodb.org/mongo-driver/v2/bson"

	"github.com/looplj/dochooks/internal/docstore"
)

// Normalize converts a decoded BSON document into plain Go values: nested
// documents become map[string]any, arrays []any, dates UTC time.Time and object
// ids hex strings.
func Normalize(m bson.M) docstore.Document {
	if m == nil {
		return nil
	}

	out := make(docstore.Document, len(m))
	for k, v := range m {
		out[k] = normalizeValue(v)
	}

	return out
}

func normalizeValue(v any) any {
	switch val := v.(type) {
	case bson.M:
		return map[string]any(Normalize(val))
	case map[string]any:
		return map[string]any(Normalize(bson.M(val)))
	case bson.D:
		m := make(map[string]any, len(val))
		for _, e := range val {
			m[e.Key] = normalizeValue(e.Value)
		}

		return m
	case bson.A:
		out := make([]any, len(val))
		for i, e := range val {
			out[i] = normalizeValue(e)
		}

		return out
	case []any:
		return normalizeValue(bson.A(val))
	case bson.DateTime:
		return val.Time().UTC()
	case bson.ObjectID:
		return val.Hex()
	case int32:
		return int64(val)
	default:
		return v
	}
}
