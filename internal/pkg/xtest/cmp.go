// Package xtest holds comparison helpers for documents that went through a
// store's encoding, where numbers and timestamps come back in another type.
package xtest

import (
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
)

// Numbers compares every numeric type as float64.
var Numbers = cmp.FilterValues(func(x, y any) bool {
	return isNumber(x) && isNumber(y)
}, cmp.Comparer(func(x, y any) bool {
	return toFloat(x) == toFloat(y)
}))

// Times compares time.Time with RFC3339 strings at millisecond precision, which
// is what JSON and BSON encodings preserve.
var Times = cmp.FilterValues(func(x, y any) bool {
	_, okx := toTime(x)
	_, oky := toTime(y)

	return okx && oky
}, cmp.Comparer(func(x, y any) bool {
	tx, _ := toTime(x)
	ty, _ := toTime(y)

	return tx.Truncate(time.Millisecond).Equal(ty.Truncate(time.Millisecond))
}))

// DocumentDiff is cmp.Diff with Numbers and Times applied; empty means equal.
func DocumentDiff(want, got any, opts ...cmp.Option) string {
	opts = append(opts, Numbers, Times, cmpopts.EquateEmpty())

	return cmp.Diff(want, got, opts...)
}

func Equal(a, b any, opts ...cmp.Option) bool {
	return DocumentDiff(a, b, opts...) == ""
}

func isNumber(v any) bool {
	switch v.(type) {
	case int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64, float32, float64:
		return true
	default:
		return false
	}
}

func toFloat(v any) float64 {
	switch n := v.(type) {
	case int:
		return float64(n)
	case int8:
		return float64(n)
	case int16:
		return float64(n)
	case int32:
		return float64(n)
	case int64:
		return float64(n)
	case uint:
		return float64(n)
	case uint8:
		return float64(n)
	case uint16:
		return float64(n)
	case uint32:
		return float64(n)
	case uint64:
		return float64(n)
	case float32:
		return float64(n)
	case float64:
		return n
	default:
		return 0
	}
}

func toTime(v any) (time.Time, bool) {
	switch t := v.(type) {
	case time.Time:
		return t, true
	case string:
		parsed, err := time.Parse(time.RFC3339Nano, t)
		return parsed, err == nil
	default:
		return time.Time{}, false
	}
}
