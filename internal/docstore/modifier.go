package docstore

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cast"
)

var ErrInvalidModifier = errors.New("docstore: invalid modifier")

const (
	OpSet         = "$set"
	OpUnset       = "$unset"
	OpInc         = "$inc"
	OpSetOnInsert = "$setOnInsert"
)

// Modifier is either an operator document ($set, $unset, $inc, $setOnInsert) or a
// replacement document (no $ keys).
type Modifier map[string]any

// IsReplacement reports whether m replaces the whole document.
func (m Modifier) IsReplacement() bool {
	for k := range m {
		if strings.HasPrefix(k, "$") {
			return false
		}
	}

	return true
}

// WithSet returns a copy of m that also sets path to v, preserving the other
// fields of its $set clause. Replacement modifiers get path as a plain field.
func (m Modifier) WithSet(path string, v any) Modifier {
	return m.withField(OpSet, path, v)
}

// WithSetOnInsert is WithSet for the $setOnInsert clause. Replacement modifiers get
// path as a plain field.
func (m Modifier) WithSetOnInsert(path string, v any) Modifier {
	return m.withField(OpSetOnInsert, path, v)
}

// WithUnset returns a copy of m that also unsets path. Replacement modifiers drop
// path instead.
func (m Modifier) WithUnset(path string) Modifier {
	if len(m) > 0 && m.IsReplacement() {
		out := m.Clone()
		Document(out).Unset(path)

		return out
	}

	return m.withField(OpUnset, path, "")
}

// SetsID reports whether m itself assigns the _id of a document it inserts.
func (m Modifier) SetsID() bool {
	if len(m) > 0 && m.IsReplacement() {
		_, ok := m[IDField]
		return ok
	}

	for _, op := range []string{OpSet, OpSetOnInsert} {
		if _, ok := m.clause(op)[IDField]; ok {
			return true
		}
	}

	return false
}

func (m Modifier) withField(op, path string, v any) Modifier {
	out := m.Clone()
	if out == nil {
		out = Modifier{}
	}

	if len(out) > 0 && out.IsReplacement() {
		Document(out).Set(path, v)
		return out
	}

	clause := out.clause(op)
	if clause == nil {
		clause = map[string]any{}
	}

	clause[path] = v
	out[op] = clause

	return out
}

// Clone copies the modifier deeply.
func (m Modifier) Clone() Modifier {
	if m == nil {
		return nil
	}

	return Modifier(cloneMap(m))
}

func (m Modifier) Validate() error {
	if len(m) == 0 {
		return fmt.Errorf("%w: empty modifier", ErrInvalidModifier)
	}

	if m.IsReplacement() {
		return nil
	}

	for op, clause := range m {
		switch op {
		case OpSet, OpUnset, OpInc, OpSetOnInsert:
		default:
			if strings.HasPrefix(op, "$") {
				return fmt.Errorf("%w: unsupported operator %s", ErrInvalidModifier, op)
			}

			return fmt.Errorf("%w: cannot mix operators and fields (%s)", ErrInvalidModifier, op)
		}

		switch clause.(type) {
		case map[string]any, Document:
		default:
			return fmt.Errorf("%w: %s expects a document, got %T", ErrInvalidModifier, op, clause)
		}
	}

	return nil
}

// Apply returns a modified copy of doc. inserting enables $setOnInsert. The _id of
// doc is never changed by a replacement.
func (m Modifier) Apply(doc Document, inserting bool) (Document, error) {
	if err := m.Validate(); err != nil {
		return nil, err
	}

	if m.IsReplacement() {
		out := Document(cloneMap(m))
		if id, ok := doc[IDField]; ok {
			out[IDField] = id
		}

		return out, nil
	}

	out := doc.Clone()
	if out == nil {
		out = Document{}
	}

	for path, v := range m.clause(OpSet) {
		out.Set(path, cloneValue(v))
	}

	if inserting {
		for path, v := range m.clause(OpSetOnInsert) {
			out.Set(path, cloneValue(v))
		}
	}

	for path := range m.clause(OpUnset) {
		if path == IDField {
			return nil, fmt.Errorf("%w: cannot unset %s", ErrInvalidModifier, IDField)
		}

		out.Unset(path)
	}

	for path, delta := range m.clause(OpInc) {
		current, _ := out.Lookup(path)

		next, err := increment(current, delta)
		if err != nil {
			return nil, fmt.Errorf("%w: $inc %s: %w", ErrInvalidModifier, path, err)
		}

		out.Set(path, next)
	}

	return out, nil
}

func (m Modifier) clause(op string) map[string]any {
	switch clause := m[op].(type) {
	case map[string]any:
		return clause
	case Document:
		return clause
	default:
		return nil
	}
}

func increment(current, delta any) (any, error) {
	if !isNumber(delta) {
		return nil, fmt.Errorf("delta %v is not a number", delta)
	}

	if current == nil {
		return delta, nil
	}

	if !isNumber(current) {
		return nil, fmt.Errorf("field value %v is not a number", current)
	}

	if isInteger(current) && isInteger(delta) {
		return cast.ToInt64(current) + cast.ToInt64(delta), nil
	}

	return cast.ToFloat64(current) + cast.ToFloat64(delta), nil
}

func isInteger(v any) bool {
	switch v.(type) {
	case int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64:
		return true
	default:
		return false
	}
}

// UpsertSeed builds the document an upsert inserts when nothing matches: the
// equality conditions of sel, then m applied with inserting=true. An _id pinned by
// sel wins over one from m; id is used when neither provides one.
func UpsertSeed(sel Selector, m Modifier, id string) (Document, error) {
	seed := Document{}

	if !m.IsReplacement() {
		for path, cond := range sel {
			if strings.HasPrefix(path, "$") {
				continue
			}

			if _, isOps := operatorDoc(cond); isOps {
				continue
			}

			seed.Set(path, cloneValue(cond))
		}
	}

	out, err := m.Apply(seed, true)
	if err != nil {
		return nil, err
	}

	if pinned, ok := sel.PinnedID(); ok {
		out[IDField] = pinned
	} else if out.ID() == "" {
		out[IDField] = id
	}

	return out, nil
}
