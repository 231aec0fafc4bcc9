package filter

import (
	"context"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/m3rciful/bitrixbot/core/bitrix/event"
	"github.com/m3rciful/bitrixbot/core/bitrix/state"
)

func message(text string) event.Event {
	return event.NewMessage(event.Record{
		event.FieldEvent:     event.EventMessageAdd,
		event.FieldMessage:   text,
		event.FieldDialogID:  "42",
		event.FieldMessageID: "1001",
	})
}

func command(name, params string) event.Event {
	return event.NewCommand(event.Record{
		event.FieldEvent:                   event.EventCommandAdd,
		event.FieldDialogID:                "42",
		"data[COMMAND][0][COMMAND]":        name,
		"data[COMMAND][0][COMMAND_PARAMS]": params,
	})
}

func counting(result bool, n *int) Predicate {
	return Func(func(context.Context, event.Event, *state.Context) bool {
		*n++
		return result
	})
}

func TestTextEqualsIgnoresCase(t *testing.T) {
	ctx := context.Background()
	fsm := state.NewContext(42)
	p := TextEquals("foo")

	for _, text := range []string{"foo", "FOO", "fOO"} {
		assert.True(t, p.Evaluate(ctx, message(text), fsm), text)
	}
	assert.False(t, p.Evaluate(ctx, message("Foobar"), fsm))
	assert.False(t, p.Evaluate(ctx, command("foo", ""), fsm), "commands carry no text")
	assert.True(t, TextEquals("FOO").Evaluate(ctx, message("foo"), fsm))
}

func TestTextStartsWith(t *testing.T) {
	ctx := context.Background()
	p := TextStartsWith("Hel")

	assert.True(t, p.Evaluate(ctx, message("hello world"), nil))
	assert.True(t, p.Evaluate(ctx, message("HELP"), nil))
	assert.False(t, p.Evaluate(ctx, message("shell"), nil))
	assert.True(t, TextContains("ELL").Evaluate(ctx, message("shell"), nil))
}

func TestCommandNameEquals(t *testing.T) {
	ctx := context.Background()
	p := CommandNameEquals("Move")

	assert.True(t, p.Evaluate(ctx, command("move", "7"), nil))
	assert.False(t, p.Evaluate(ctx, command("moves", "7"), nil))
	assert.False(t, p.Evaluate(ctx, message("move"), nil))
	assert.True(t, IsCommand().Evaluate(ctx, command("x", ""), nil))
	assert.True(t, IsMessage().Evaluate(ctx, message("x"), nil))
}

func TestCombinatorsEvaluateEveryOperand(t *testing.T) {
	ctx := context.Background()
	ev := message("x")

	var a, b, c int
	assert.False(t, And(counting(false, &a), counting(true, &b), counting(true, &c)).Evaluate(ctx, ev, nil))
	assert.Equal(t, []int{1, 1, 1}, []int{a, b, c})

	a, b, c = 0, 0, 0
	assert.True(t, Or(counting(true, &a), counting(false, &b), counting(true, &c)).Evaluate(ctx, ev, nil))
	assert.Equal(t, []int{1, 1, 1}, []int{a, b, c})

	assert.True(t, And().Evaluate(ctx, ev, nil))
	assert.False(t, Or().Evaluate(ctx, ev, nil))
	assert.True(t, Not(counting(false, &a)).Evaluate(ctx, ev, nil))
	assert.True(t, And(nil, Any()).Evaluate(ctx, ev, nil))
	assert.True(t, Evaluate(ctx, nil, ev, nil))
}

func TestStatePredicates(t *testing.T) {
	ctx := context.Background()
	g := state.NewGroup("game")
	playing := g.Add("playing")
	fsm := state.NewContext(42)
	ev := message("x")

	assert.True(t, NoState().Evaluate(ctx, ev, fsm), "fresh context has no state")
	assert.False(t, StateEquals(playing).Evaluate(ctx, ev, fsm))
	assert.False(t, InGroup(g).Evaluate(ctx, ev, fsm))

	fsm.SetState(playing)
	assert.False(t, NoState().Evaluate(ctx, ev, fsm))
	assert.True(t, StateEquals(playing).Evaluate(ctx, ev, fsm))
	assert.True(t, InGroup(g).Evaluate(ctx, ev, fsm))
	assert.True(t, playing.Evaluate(ctx, ev, fsm), "State is a Predicate")
	assert.False(t, InGroup(nil).Evaluate(ctx, ev, fsm))

	var _ Predicate = playing
	var _ Predicate = g
}

func TestProjectionComparators(t *testing.T) {
	ctx := context.Background()
	ev := message("Hello")

	dialog := Field("data.PARAMS.DIALOG_ID")
	assert.True(t, dialog.Eq(42).Evaluate(ctx, ev, nil))
	assert.True(t, dialog.Eq("42").Evaluate(ctx, ev, nil))
	assert.True(t, dialog.Gt(41).Evaluate(ctx, ev, nil))
	assert.True(t, dialog.Ge(42).Evaluate(ctx, ev, nil))
	assert.True(t, dialog.Le(42.5).Evaluate(ctx, ev, nil))
	assert.False(t, dialog.Lt(42).Evaluate(ctx, ev, nil))
	assert.True(t, dialog.Ne(43).Evaluate(ctx, ev, nil))
	assert.True(t, dialog.In(1, 42).Evaluate(ctx, ev, nil))
	assert.True(t, Field(event.FieldMessageID).Eq(int64(1001)).Evaluate(ctx, ev, nil))

	assert.True(t, Subject().Eq("Hello").Evaluate(ctx, ev, nil))
	assert.True(t, Subject().EqualFold("hello").Evaluate(ctx, ev, nil))
	assert.False(t, Subject().Gt(1).Evaluate(ctx, ev, nil), "non-numeric text never orders against numbers")
	assert.True(t, Subject().Eq("move").Evaluate(ctx, command("move", "7"), nil))
	assert.True(t, CommandField("COMMAND_PARAMS").Eq(7).Evaluate(ctx, command("move", "7"), nil))
	assert.False(t, CommandField("command_params").Exists().Evaluate(ctx, ev, nil))
}

func TestProjectionAbsentValues(t *testing.T) {
	ctx := context.Background()
	ev := message("Hello")
	missing := Field("data.PARAMS.NOPE")

	assert.False(t, missing.Exists().Evaluate(ctx, ev, nil))
	assert.True(t, missing.Eq(nil).Evaluate(ctx, ev, nil))
	assert.False(t, missing.Ne(nil).Evaluate(ctx, ev, nil))
	assert.False(t, missing.Eq("").Evaluate(ctx, ev, nil))
	assert.True(t, missing.Ne("").Evaluate(ctx, ev, nil))
	assert.False(t, missing.Lt(1).Evaluate(ctx, ev, nil))
	assert.False(t, missing.Ge(1).Evaluate(ctx, ev, nil))

	present := Field(event.FieldMessage)
	assert.False(t, present.Eq(nil).Evaluate(ctx, ev, nil))
	assert.True(t, present.Ne(nil).Evaluate(ctx, ev, nil))
	assert.False(t, present.Lt(nil).Evaluate(ctx, ev, nil))
}

func TestProjectionNonFiniteTextNeverMatchesNumbers(t *testing.T) {
	ctx := context.Background()
	for _, text := range []string{"NaN", "nan", "inf", "-Inf", "Infinity"} {
		ev := message(text)
		subject := Subject()
		assert.False(t, subject.Eq(42).Evaluate(ctx, ev, nil), text)
		assert.False(t, subject.Le(-1).Evaluate(ctx, ev, nil), text)
		assert.False(t, subject.Ge(1e9).Evaluate(ctx, ev, nil), text)
		assert.False(t, subject.In(1, 2, 42).Evaluate(ctx, ev, nil), text)
		assert.True(t, subject.Ne(42).Evaluate(ctx, ev, nil), text)
		assert.True(t, subject.Eq(text).Evaluate(ctx, ev, nil), text)
	}

	num := message("5")
	nan := math.NaN()
	assert.False(t, Subject().Eq(nan).Evaluate(ctx, num, nil))
	assert.False(t, Subject().Lt(nan).Evaluate(ctx, num, nil))
}

func TestProjectionLargeIntegersCompareExactly(t *testing.T) {
	ctx := context.Background()
	ev := event.NewMessage(event.Record{
		event.FieldEvent:  event.EventMessageAdd,
		event.FieldUserID: "9007199254740992",
	})
	user := Field(event.FieldUserID)

	assert.False(t, user.Eq(int64(9007199254740993)).Evaluate(ctx, ev, nil))
	assert.True(t, user.Eq(int64(9007199254740992)).Evaluate(ctx, ev, nil))
	assert.True(t, user.Lt(uint64(9007199254740993)).Evaluate(ctx, ev, nil))
	assert.True(t, user.Gt(int64(9007199254740991)).Evaluate(ctx, ev, nil))
	assert.True(t, user.Le(9.007199254740992e15).Evaluate(ctx, ev, nil))

	fraction := message("2.5")
	assert.True(t, Subject().Gt(2).Evaluate(ctx, fraction, nil))
	assert.True(t, Subject().Eq(2.5).Evaluate(ctx, fraction, nil))
	assert.True(t, Subject().Eq(float32(2.5)).Evaluate(ctx, fraction, nil))
}
