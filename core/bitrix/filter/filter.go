// Package filter implements the predicate algebra used to gate router
// handlers. A predicate is a boolean test over an event and the FSM context
// of its conversation.
//
// Combinators evaluate every operand before combining the results: And and
// Or never short-circuit, so predicates with side effects (logging, metrics)
// always run.
package filter

import (
	"context"
	"strings"

	"github.com/m3rciful/bitrixbot/core/bitrix/event"
	"github.com/m3rciful/bitrixbot/core/bitrix/state"
)

// Predicate is a composable test over an event and its FSM context.
// state.State and *state.Group satisfy it as well.
type Predicate interface {
	Evaluate(ctx context.Context, ev event.Event, fsm *state.Context) bool
}

// Func adapts a plain function to Predicate.
type Func func(ctx context.Context, ev event.Event, fsm *state.Context) bool

// Evaluate calls f.
func (f Func) Evaluate(ctx context.Context, ev event.Event, fsm *state.Context) bool {
	if f == nil {
		return true
	}
	return f(ctx, ev, fsm)
}

// Any matches every event.
func Any() Predicate {
	return Func(func(context.Context, event.Event, *state.Context) bool { return true })
}

// And matches when every predicate matches. All operands are evaluated.
// A nil operand counts as true.
func And(ps ...Predicate) Predicate {
	return Func(func(ctx context.Context, ev event.Event, fsm *state.Context) bool {
		result := true
		for _, p := range ps {
			ok := evaluate(ctx, p, ev, fsm)
			result = result && ok
		}
		return result
	})
}

// Or matches when at least one predicate matches. All operands are evaluated.
// Or with no operands never matches.
func Or(ps ...Predicate) Predicate {
	return Func(func(ctx context.Context, ev event.Event, fsm *state.Context) bool {
		result := false
		for _, p := range ps {
			ok := evaluate(ctx, p, ev, fsm)
			result = result || ok
		}
		return result
	})
}

// Not inverts p.
func Not(p Predicate) Predicate {
	return Func(func(ctx context.Context, ev event.Event, fsm *state.Context) bool {
		return !evaluate(ctx, p, ev, fsm)
	})
}

// Evaluate runs p treating nil as a match.
func Evaluate(ctx context.Context, p Predicate, ev event.Event, fsm *state.Context) bool {
	return evaluate(ctx, p, ev, fsm)
}

func evaluate(ctx context.Context, p Predicate, ev event.Event, fsm *state.Context) bool {
	if p == nil {
		return true
	}
	return p.Evaluate(ctx, ev, fsm)
}

// IsMessage matches message events.
func IsMessage() Predicate {
	return Func(func(_ context.Context, ev event.Event, _ *state.Context) bool {
		return ev.Kind() == event.KindMessage
	})
}

// IsCommand matches command events.
func IsCommand() Predicate {
	return Func(func(_ context.Context, ev event.Event, _ *state.Context) bool {
		return ev.Kind() == event.KindCommand
	})
}

// TextEquals matches messages whose text equals s, ignoring case.
func TextEquals(s string) Predicate {
	want := strings.ToLower(s)
	return Func(func(_ context.Context, ev event.Event, _ *state.Context) bool {
		return ev.Kind() == event.KindMessage && strings.ToLower(ev.Text()) == want
	})
}

// TextStartsWith matches messages whose text starts with prefix, ignoring
// case on both sides.
func TextStartsWith(prefix string) Predicate {
	want := strings.ToLower(prefix)
	return Func(func(_ context.Context, ev event.Event, _ *state.Context) bool {
		return ev.Kind() == event.KindMessage && strings.HasPrefix(strings.ToLower(ev.Text()), want)
	})
}

// TextContains matches messages containing sub, ignoring case.
func TextContains(sub string) Predicate {
	want := strings.ToLower(sub)
	return Func(func(_ context.Context, ev event.Event, _ *state.Context) bool {
		return ev.Kind() == event.KindMessage && strings.Contains(strings.ToLower(ev.Text()), want)
	})
}

// CommandNameEquals matches commands named name, ignoring case.
func CommandNameEquals(name string) Predicate {
	want := strings.ToLower(strings.TrimSpace(name))
	return Func(func(_ context.Context, ev event.Event, _ *state.Context) bool {
		return ev.Kind() == event.KindCommand && strings.ToLower(ev.CommandName()) == want
	})
}

// StateEquals matches when the conversation is in expected. The zero State
// matches conversations with no state.
func StateEquals(expected state.State) Predicate {
	return Func(func(ctx context.Context, ev event.Event, fsm *state.Context) bool {
		return expected.Evaluate(ctx, ev, fsm)
	})
}

// NoState matches conversations with no state set.
func NoState() Predicate {
	return StateEquals(state.State{})
}

// InGroup matches when the conversation is in any state of g.
func InGroup(g *state.Group) Predicate {
	return Func(func(ctx context.Context, ev event.Event, fsm *state.Context) bool {
		if g == nil {
			return false
		}
		return g.Evaluate(ctx, ev, fsm)
	})
}
