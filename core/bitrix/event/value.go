package event

import (
	"math"
	"math/big"
	"strconv"
	"strings"
)

// Value is the result of projecting a field out of an event. A Value is
// either absent or holds the field's string form.
type Value struct {
	s  string
	ok bool
}

// Absent returns the missing-field sentinel.
func Absent() Value { return Value{} }

// Present wraps s as an existing value.
func Present(s string) Value { return Value{s: s, ok: true} }

// Exists reports whether the projected field resolved.
func (v Value) Exists() bool { return v.ok }

// String returns the raw string, empty when absent.
func (v Value) String() string { return v.s }

// Int parses the value as a base-10 integer.
func (v Value) Int() (int64, bool) {
	if !v.ok {
		return 0, false
	}
	n, err := strconv.ParseInt(strings.TrimSpace(v.s), 10, 64)
	return n, err == nil
}

// Float parses the value as a finite floating point number. NaN and
// infinities are rejected.
func (v Value) Float() (float64, bool) {
	if !v.ok {
		return 0, false
	}
	f, err := strconv.ParseFloat(strings.TrimSpace(v.s), 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return f, true
}

// Number parses the value as an exact finite number. Integers keep every
// digit, so ids beyond 2^53 stay distinct.
func (v Value) Number() (*big.Rat, bool) {
	f, ok := v.Float()
	if !ok {
		return nil, false
	}
	if r, ok := new(big.Rat).SetString(strings.TrimSpace(v.s)); ok {
		return r, true
	}
	return new(big.Rat).SetFloat64(f), true
}
