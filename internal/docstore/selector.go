package docstore

import (
	"errors"
	"fmt"
	"reflect"
	"strings"
	"time"

	"github.com/spf13/cast"
)

var ErrInvalidSelector = errors.New("docstore: invalid selector")

// Selector matches documents. Keys are dotted paths, values are literals (equality)
// or operator documents ($eq $ne $gt $gte $lt $lte $in $nin $exists). Top-level $and
// and $or take lists of selectors.
type Selector map[string]any

// LookupFunc resolves a dotted path against some document representation.
type LookupFunc func(path string) (any, bool)

// With returns a copy of s with extra conditions. Conditions on the same path are
// combined with $and.
func (s Selector) With(extra Selector) Selector {
	out := make(Selector, len(s)+len(extra))
	for k, v := range s {
		out[k] = v
	}

	for k, v := range extra {
		if existing, ok := out[k]; ok {
			delete(out, k)
			out["$and"] = append(andList(out["$and"]), Selector{k: existing}, Selector{k: v})

			continue
		}

		out[k] = v
	}

	return out
}

// PinnedID returns the string _id sel requires by equality, either as a plain
// value or as a lone $eq.
func (s Selector) PinnedID() (string, bool) {
	cond, ok := s[IDField]
	if !ok {
		return "", false
	}

	if ops, isOps := operatorDoc(cond); isOps {
		if len(ops) != 1 {
			return "", false
		}

		cond = ops["$eq"]
	}

	id, ok := cond.(string)

	return id, ok && id != ""
}

func andList(v any) []any {
	if v == nil {
		return nil
	}

	if list, ok := v.([]any); ok {
		return list
	}

	return []any{v}
}

// Matches reports whether doc satisfies s. An empty selector matches everything.
func (s Selector) Matches(doc Document) (bool, error) {
	return Match(s, doc.Lookup)
}

// Match evaluates sel against the values returned by lookup.
func Match(sel Selector, lookup LookupFunc) (bool, error) {
	for key, cond := range sel {
		var (
			ok  bool
			err error
		)

		switch key {
		case "$and":
			ok, err = matchLogical(cond, lookup, true)
		case "$or":
			ok, err = matchLogical(cond, lookup, false)
		default:
			if strings.HasPrefix(key, "$") {
				return false, fmt.Errorf("%w: unsupported top-level operator %s", ErrInvalidSelector, key)
			}

			value, exists := lookup(key)
			ok, err = matchField(value, exists, cond)
		}

		if err != nil || !ok {
			return false, err
		}
	}

	return true, nil
}

func matchLogical(cond any, lookup LookupFunc, all bool) (bool, error) {
	clauses, err := toSelectors(cond)
	if err != nil {
		return false, err
	}

	for _, clause := range clauses {
		ok, err := Match(clause, lookup)
		if err != nil {
			return false, err
		}

		if all && !ok {
			return false, nil
		}

		if !all && ok {
			return true, nil
		}
	}

	return all, nil
}

func toSelectors(v any) ([]Selector, error) {
	rv := reflect.ValueOf(v)
	if rv.Kind() != reflect.Slice {
		return nil, fmt.Errorf("%w: logical operator expects a list", ErrInvalidSelector)
	}

	out := make([]Selector, 0, rv.Len())
	for i := range rv.Len() {
		switch item := rv.Index(i).Interface().(type) {
		case Selector:
			out = append(out, item)
		case map[string]any:
			out = append(out, Selector(item))
		case Document:
			out = append(out, Selector(item))
		default:
			return nil, fmt.Errorf("%w: logical operator clause %T", ErrInvalidSelector, item)
		}
	}

	return out, nil
}

func operatorDoc(cond any) (map[string]any, bool) {
	var m map[string]any

	switch c := cond.(type) {
	case map[string]any:
		m = c
	case Selector:
		m = c
	default:
		return nil, false
	}

	if len(m) == 0 {
		return nil, false
	}

	for k := range m {
		if !strings.HasPrefix(k, "$") {
			return nil, false
		}
	}

	return m, true
}

func matchField(value any, exists bool, cond any) (bool, error) {
	ops, isOps := operatorDoc(cond)
	if !isOps {
		return exists && valuesEqual(value, cond) || !exists && cond == nil, nil
	}

	for op, operand := range ops {
		var ok bool

		switch op {
		case "$eq":
			ok = exists && valuesEqual(value, operand) || !exists && operand == nil
		case "$ne":
			ok = !(exists && valuesEqual(value, operand) || !exists && operand == nil)
		case "$gt", "$gte", "$lt", "$lte":
			if !exists {
				return false, nil
			}

			c, comparable := compareValues(value, operand)
			if !comparable {
				return false, nil
			}

			ok = op == "$gt" && c > 0 || op == "$gte" && c >= 0 || op == "$lt" && c < 0 || op == "$lte" && c <= 0
		case "$in", "$nin":
			list := reflect.ValueOf(operand)
			if list.Kind() != reflect.Slice {
				return false, fmt.Errorf("%w: %s expects a list", ErrInvalidSelector, op)
			}

			found := false
			for i := range list.Len() {
				candidate := list.Index(i).Interface()
				if exists && valuesEqual(value, candidate) || !exists && candidate == nil {
					found = true
					break
				}
			}

			ok = found == (op == "$in")
		case "$exists":
			want, err := cast.ToBoolE(operand)
			if err != nil {
				return false, fmt.Errorf("%w: $exists expects a boolean", ErrInvalidSelector)
			}

			ok = exists == want
		default:
			return false, fmt.Errorf("%w: unsupported operator %s", ErrInvalidSelector, op)
		}

		if !ok {
			return false, nil
		}
	}

	return true, nil
}

func valuesEqual(a, b any) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}

	if c, ok := compareValues(a, b); ok {
		return c == 0
	}

	return reflect.DeepEqual(normalize(a), normalize(b))
}

func normalize(v any) any {
	switch val := v.(type) {
	case Document:
		return map[string]any(val)
	case Selector:
		return map[string]any(val)
	default:
		return v
	}
}

// compareValues orders two scalars. Times compare with times (strings are parsed),
// numbers with numbers regardless of Go kind, strings with strings and bools with
// bools (false < true).
func compareValues(a, b any) (int, bool) {
	_, aTime := a.(time.Time)
	_, bTime := b.(time.Time)

	if aTime || bTime {
		at, err := toTime(a)
		if err != nil {
			return 0, false
		}

		bt, err := toTime(b)
		if err != nil {
			return 0, false
		}

		return at.Compare(bt), true
	}

	if isNumber(a) && isNumber(b) {
		af, bf := cast.ToFloat64(a), cast.ToFloat64(b)

		switch {
		case af < bf:
			return -1, true
		case af > bf:
			return 1, true
		default:
			return 0, true
		}
	}

	if as, ok := a.(string); ok {
		if bs, ok := b.(string); ok {
			return strings.Compare(as, bs), true
		}

		return 0, false
	}

	if ab, ok := a.(bool); ok {
		if bb, ok := b.(bool); ok {
			switch {
			case ab == bb:
				return 0, true
			case !ab:
				return -1, true
			default:
				return 1, true
			}
		}
	}

	return 0, false
}

func toTime(v any) (time.Time, error) {
	switch t := v.(type) {
	case time.Time:
		return t, nil
	case string:
		return time.Parse(time.RFC3339Nano, t)
	default:
		return cast.ToTimeE(v)
	}
}

func isNumber(v any) bool {
	switch v.(type) {
	case int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64, float32, float64:
		return true
	default:
		return false
	}
}
