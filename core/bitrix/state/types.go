package state

import (
	"context"
	"strings"
	"sync"

	"github.com/m3rciful/bitrixbot/core/bitrix/event"
)

// State identifies one step of a conversation state machine. States compare
// equal by name; the zero value means "no state".
type State struct {
	name string
}

// New declares a standalone state.
func New(name string) State {
	return State{name: strings.TrimSpace(name)}
}

// Name returns the fully qualified state name.
func (s State) Name() string { return s.name }

// String implements fmt.Stringer.
func (s State) String() string {
	if s.name == "" {
		return "<none>"
	}
	return s.name
}

// IsZero reports whether s is the "no state" value.
func (s State) IsZero() bool { return s.name == "" }

// Evaluate reports whether the conversation is currently in s, which lets a
// State sit in a router check list next to predicates. A nil context counts
// as having no state.
func (s State) Evaluate(_ context.Context, _ event.Event, fsm *Context) bool {
	if fsm == nil {
		return s.IsZero()
	}
	return fsm.State() == s
}

// Group is a named set of states declared together.
type Group struct {
	name   string
	mu     sync.RWMutex
	states []State
}

// NewGroup creates an empty group. State names are prefixed with the group name.
func NewGroup(name string) *Group {
	return &Group{name: strings.TrimSpace(name)}
}

// Name returns the group name.
func (g *Group) Name() string { return g.name }

// Add declares a new state in the group and returns it.
func (g *Group) Add(name string) State {
	name = strings.TrimSpace(name)
	if g.name != "" {
		name = g.name + ":" + name
	}
	st := State{name: name}
	g.mu.Lock()
	g.states = append(g.states, st)
	g.mu.Unlock()
	return st
}

// States returns the declared states in declaration order.
func (g *Group) States() []State {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return append([]State(nil), g.states...)
}

// Contains reports whether st was declared in g.
func (g *Group) Contains(st State) bool {
	if st.IsZero() {
		return false
	}
	g.mu.RLock()
	defer g.mu.RUnlock()
	for _, s := range g.states {
		if s == st {
			return true
		}
	}
	return false
}

// Evaluate reports whether the conversation is in any state of the group.
func (g *Group) Evaluate(_ context.Context, _ event.Event, fsm *Context) bool {
	if fsm == nil {
		return false
	}
	return g.Contains(fsm.State())
}
