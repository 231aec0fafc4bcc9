// Package router matches inbound Bitrix24 events against ordered handler
// tables and dispatches them across a chain of routers sharing one FSM store.
package router

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/m3rciful/bitrixbot/core/bitrix/event"
	"github.com/m3rciful/bitrixbot/core/bitrix/filter"
	"github.com/m3rciful/bitrixbot/core/bitrix/state"
	"github.com/m3rciful/bitrixbot/core/logger"
)

// Handler processes a matched event. fsm is the conversation context of the
// event's chat and may be mutated freely.
type Handler func(ctx context.Context, ev event.Event, fsm *state.Context) error

type entry struct {
	name    string
	check   filter.Predicate
	handler Handler
}

// Router holds two ordered handler tables, one for messages and one for
// commands. Registration order is match order.
type Router struct {
	name string

	mu       sync.RWMutex
	messages []entry
	commands []entry
	store    *state.Store
}

type options struct {
	store     *state.Store
	serialize bool
}

// Option configures a Router or a Dispatcher.
type Option func(*options)

// WithStore sets the FSM store. On a Dispatcher the store is shared with
// every router added to it.
func WithStore(s *state.Store) Option {
	return func(o *options) {
		if s != nil {
			o.store = s
		}
	}
}

// WithoutChatLock lets a Dispatcher process updates of the same chat concurrently.
func WithoutChatLock() Option {
	return func(o *options) { o.serialize = false }
}

func buildOptions(opts []Option) options {
	o := options{serialize: true}
	for _, opt := range opts {
		if opt != nil {
			opt(&o)
		}
	}
	if o.store == nil {
		o.store = state.NewStore()
	}
	return o
}

// New creates an empty router. Until it is added to a Dispatcher the router
// uses its own store.
func New(name string, opts ...Option) *Router {
	o := buildOptions(opts)
	return &Router{name: normalizeHandlerName(name), store: o.store}
}

// Name returns the router label used in logs.
func (r *Router) Name() string { return r.name }

// Store returns the FSM store the router resolves contexts from.
func (r *Router) Store() *state.Store {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.store
}

func (r *Router) useStore(s *state.Store) {
	r.mu.Lock()
	r.store = s
	r.mu.Unlock()
}

// Message registers h for messages passing every check.
func (r *Router) Message(name string, h Handler, checks ...filter.Predicate) *Router {
	r.register(&r.messages, event.KindMessage, name, h, checks)
	return r
}

// Command registers h for commands passing every check.
func (r *Router) Command(name string, h Handler, checks ...filter.Predicate) *Router {
	r.register(&r.commands, event.KindCommand, name, h, checks)
	return r
}

func (r *Router) register(table *[]entry, kind event.Kind, name string, h Handler, checks []filter.Predicate) {
	if h == nil {
		logger.Warn(logger.Background(), "bx.router", "handler.skip",
			slog.String("status", "skip"),
			slog.String("router", r.name),
			slog.String("kind", kind.String()),
			slog.String("handler", name),
			slog.String("cause", "nil handler"),
		)
		return
	}
	r.mu.Lock()
	*table = append(*table, entry{
		name:    kind.String() + "." + normalizeHandlerName(name),
		check:   filter.And(checks...),
		handler: h,
	})
	r.mu.Unlock()
}

// HandleMessage routes rec when it is a message event. It reports whether a
// handler fired; the handler's error is returned wrapped as HANDLER_FAILED.
// A panicking predicate yields false with a HANDLER_PANIC error.
func (r *Router) HandleMessage(ctx context.Context, rec event.Record) (bool, error) {
	if rec.Discriminant() != event.EventMessageAdd {
		return false, nil
	}
	return r.handle(ctx, event.NewMessage(rec))
}

// HandleCommand routes rec when it is a command event.
func (r *Router) HandleCommand(ctx context.Context, rec event.Record) (bool, error) {
	if rec.Discriminant() != event.EventCommandAdd {
		return false, nil
	}
	return r.handle(ctx, event.NewCommand(rec))
}

func (r *Router) snapshot(kind event.Kind) ([]entry, *state.Store) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if kind == event.KindCommand {
		return r.commands, r.store
	}
	return r.messages, r.store
}

func (r *Router) handle(ctx context.Context, ev event.Event) (handled bool, err error) {
	if ctx == nil {
		ctx = context.Background()
	}
	start := time.Now()
	entries, store := r.snapshot(ev.Kind())
	fsm := store.Get(ev.ChatID())
	ctx = withEventContext(ctx, ev)

	name := ev.Kind().String() + ".match"
	matched := false
	defer func() {
		if p := recover(); p != nil {
			logPanic(ctx, name, p)
			handled, err = matched, panicError(name, p)
			logHandlerSummary(ctx, r.name, name, start, ev, err)
		}
	}()

	for _, e := range entries {
		if !e.check.Evaluate(ctx, ev, fsm) {
			continue
		}
		matched = true
		name = e.name
		hctx := logger.WithHandler(ctx, name)
		return true, handleWithSummary(hctx, r.name, name, start, ev, func() error {
			return wrapHandlerError(name, e.handler(hctx, ev, fsm))
		})
	}
	return false, nil
}
