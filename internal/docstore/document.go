package docstore

import (
	"strconv"
	"strings"
	"time"
)

// IDField holds the document identifier.
const IDField = "_id"

// Document is a schemaless record. Nested documents are map[string]any (or Document),
// arrays are []any.
type Document map[string]any

// ID returns the document identifier, or "" when absent or not a string.
func (d Document) ID() string {
	id, _ := d[IDField].(string)
	return id
}

// Clone returns a deep copy. time.Time values are copied by value.
func (d Document) Clone() Document {
	if d == nil {
		return nil
	}

	return cloneMap(d)
}

// Lookup resolves a dotted path such as "hookMeta.uuid" or "items.0.sku".
func (d Document) Lookup(path string) (any, bool) {
	var cur any = map[string]any(d)

	for _, part := range strings.Split(path, ".") {
		switch node := cur.(type) {
		case map[string]any:
			v, ok := node[part]
			if !ok {
				return nil, false
			}

			cur = v
		case Document:
			v, ok := node[part]
			if !ok {
				return nil, false
			}

			cur = v
		case []any:
			i, err := strconv.Atoi(part)
			if err != nil || i < 0 || i >= len(node) {
				return nil, false
			}

			cur = node[i]
		default:
			return nil, false
		}
	}

	return cur, true
}

// Set assigns value at a dotted path, creating intermediate documents.
func (d Document) Set(path string, value any) {
	parts := strings.Split(path, ".")
	node := map[string]any(d)

	for _, part := range parts[:len(parts)-1] {
		switch next := node[part].(type) {
		case map[string]any:
			node = next
		case Document:
			node = next
		default:
			child := map[string]any{}
			node[part] = child
			node = child
		}
	}

	node[parts[len(parts)-1]] = value
}

// Unset removes the value at a dotted path. Missing paths are ignored.
func (d Document) Unset(path string) {
	parts := strings.Split(path, ".")
	node := map[string]any(d)

	for _, part := range parts[:len(parts)-1] {
		switch next := node[part].(type) {
		case map[string]any:
			node = next
		case Document:
			node = next
		default:
			return
		}
	}

	delete(node, parts[len(parts)-1])
}

func cloneMap(m map[string]any) map[string]any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = cloneValue(v)
	}

	return out
}

func cloneValue(v any) any {
	switch val := v.(type) {
	case map[string]any:
		return cloneMap(val)
	case Document:
		return cloneMap(val)
	case []any:
		out := make([]any, len(val))
		for i, item := range val {
			out[i] = cloneValue(item)
		}

		return out
	case []string:
		return append([]string(nil), val...)
	case *time.Time:
		if val == nil {
			return nil
		}

		t := *val

		return t
	default:
		return val
	}
}
