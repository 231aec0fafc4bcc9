package filter

import (
	"context"
	"fmt"
	"math/big"
	"strings"

	"github.com/m3rciful/bitrixbot/core/bitrix/event"
	"github.com/m3rciful/bitrixbot/core/bitrix/state"
)

// Projection extracts a scalar from an event. Comparison methods turn it
// into predicates against a literal.
//
// Absent values follow these rules: Eq(nil) matches only absent values, Eq
// with any other literal never matches an absent value, Ne is the negation
// of Eq, and ordering comparisons involving an absent value never match.
// Numeric literals compare numerically against numeric-looking values;
// everything else compares as strings.
type Projection struct {
	name string
	fn   func(event.Event) event.Value
}

// Project builds a custom projection.
func Project(name string, fn func(event.Event) event.Value) Projection {
	return Projection{name: name, fn: fn}
}

// Subject projects the message text of messages and the command name of commands.
func Subject() Projection {
	return Projection{name: "subject", fn: func(ev event.Event) event.Value {
		switch ev.Kind() {
		case event.KindMessage:
			return event.Present(ev.Text())
		case event.KindCommand:
			return event.Present(ev.CommandName())
		default:
			return event.Absent()
		}
	}}
}

// Field projects a record field by exact key or dotted path, see event.Event.Field.
func Field(path string) Projection {
	return Projection{name: path, fn: func(ev event.Event) event.Value {
		return ev.Field(path)
	}}
}

// CommandField projects a parsed command field such as "command_params".
func CommandField(key string) Projection {
	key = strings.ToLower(key)
	return Projection{name: "command." + key, fn: func(ev event.Event) event.Value {
		if ev.Kind() != event.KindCommand {
			return event.Absent()
		}
		v, ok := ev.CommandFields()[key]
		if !ok {
			return event.Absent()
		}
		return event.Present(v)
	}}
}

// Name returns the projection label.
func (p Projection) Name() string { return p.name }

// Value applies the projection to ev.
func (p Projection) Value(ev event.Event) event.Value {
	if p.fn == nil {
		return event.Absent()
	}
	return p.fn(ev)
}

func (p Projection) test(fn func(v event.Value) bool) Predicate {
	return Func(func(_ context.Context, ev event.Event, _ *state.Context) bool {
		return fn(p.Value(ev))
	})
}

// Exists matches when the projection resolves.
func (p Projection) Exists() Predicate {
	return p.test(func(v event.Value) bool { return v.Exists() })
}

// Eq matches when the projected value equals lit.
func (p Projection) Eq(lit any) Predicate {
	return p.test(func(v event.Value) bool { return equal(v, lit) })
}

// Ne matches when the projected value differs from lit.
func (p Projection) Ne(lit any) Predicate {
	return p.test(func(v event.Value) bool { return !equal(v, lit) })
}

// Lt matches when the projected value is less than lit.
func (p Projection) Lt(lit any) Predicate {
	return p.test(func(v event.Value) bool {
		c, ok := compare(v, lit)
		return ok && c < 0
	})
}

// Le matches when the projected value is less than or equal to lit.
func (p Projection) Le(lit any) Predicate {
	return p.test(func(v event.Value) bool {
		c, ok := compare(v, lit)
		return ok && c <= 0
	})
}

// Gt matches when the projected value is greater than lit.
func (p Projection) Gt(lit any) Predicate {
	return p.test(func(v event.Value) bool {
		c, ok := compare(v, lit)
		return ok && c > 0
	})
}

// Ge matches when the projected value is greater than or equal to lit.
func (p Projection) Ge(lit any) Predicate {
	return p.test(func(v event.Value) bool {
		c, ok := compare(v, lit)
		return ok && c >= 0
	})
}

// EqualFold matches when the projected value equals s ignoring case.
func (p Projection) EqualFold(s string) Predicate {
	return p.test(func(v event.Value) bool { return v.Exists() && strings.EqualFold(v.String(), s) })
}

// In matches when the projected value equals any of lits.
func (p Projection) In(lits ...any) Predicate {
	return p.test(func(v event.Value) bool {
		for _, lit := range lits {
			if equal(v, lit) {
				return true
			}
		}
		return false
	})
}

func equal(v event.Value, lit any) bool {
	if lit == nil {
		return !v.Exists()
	}
	c, ok := compare(v, lit)
	return ok && c == 0
}

func compare(v event.Value, lit any) (int, bool) {
	if !v.Exists() || lit == nil {
		return 0, false
	}
	if n, isNum := numeric(lit); isNum {
		if n == nil {
			return 0, false
		}
		x, ok := v.Number()
		if !ok {
			return 0, false
		}
		return x.Cmp(n), true
	}
	var s string
	switch x := lit.(type) {
	case string:
		s = x
	case fmt.Stringer:
		s = x.String()
	default:
		s = fmt.Sprint(x)
	}
	return strings.Compare(v.String(), s), true
}

// numeric converts a numeric literal to an exact rational. The rational is
// nil for NaN and infinities.
func numeric(lit any) (*big.Rat, bool) {
	switch n := lit.(type) {
	case int:
		return new(big.Rat).SetInt64(int64(n)), true
	case int8:
		return new(big.Rat).SetInt64(int64(n)), true
	case int16:
		return new(big.Rat).SetInt64(int64(n)), true
	case int32:
		return new(big.Rat).SetInt64(int64(n)), true
	case int64:
		return new(big.Rat).SetInt64(n), true
	case uint:
		return new(big.Rat).SetUint64(uint64(n)), true
	case uint8:
		return new(big.Rat).SetUint64(uint64(n)), true
	case uint16:
		return new(big.Rat).SetUint64(uint64(n)), true
	case uint32:
		return new(big.Rat).SetUint64(uint64(n)), true
	case uint64:
		return new(big.Rat).SetUint64(n), true
	case float32:
		return new(big.Rat).SetFloat64(float64(n)), true
	case float64:
		return new(big.Rat).SetFloat64(n), true
	}
	return nil, false
}
