package router

import (
	"context"
	"log/slog"
	"sync"

	"github.com/m3rciful/bitrixbot/core/bitrix/event"
	"github.com/m3rciful/bitrixbot/core/bitrix/state"
	"github.com/m3rciful/bitrixbot/core/logger"
)

// Dispatcher feeds updates through an ordered chain of routers. All routers
// share the dispatcher's FSM store, so a state set by one router is visible
// to the others.
type Dispatcher struct {
	mu        sync.RWMutex
	routers   []*Router
	store     *state.Store
	serialize bool
}

// NewDispatcher creates an empty dispatcher. By default updates of the same
// chat are processed one at a time.
func NewDispatcher(opts ...Option) *Dispatcher {
	o := buildOptions(opts)
	return &Dispatcher{store: o.store, serialize: o.serialize}
}

// AddRouter appends r to the chain and points it at the shared store.
func (d *Dispatcher) AddRouter(r *Router) *Dispatcher {
	if r == nil {
		return d
	}
	r.useStore(d.store)
	d.mu.Lock()
	d.routers = append(d.routers, r)
	d.mu.Unlock()
	return d
}

// Routers returns the chain in dispatch order.
func (d *Dispatcher) Routers() []*Router {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return append([]*Router(nil), d.routers...)
}

// Store returns the shared FSM store.
func (d *Dispatcher) Store() *state.Store { return d.store }

// ProcessUpdate offers rec to every router in order, first as a message and
// then as a command, stopping at the first router that handles it or fails
// to evaluate its checks.
func (d *Dispatcher) ProcessUpdate(ctx context.Context, rec event.Record) (bool, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	chatID := event.ParseDialogID(rec.Get(event.FieldDialogID))
	if d.serialize {
		unlock := d.store.Lock(chatID)
		defer unlock()
	}

	for _, r := range d.Routers() {
		if ok, err := r.HandleMessage(ctx, rec); ok || err != nil {
			return ok, err
		}
		if ok, err := r.HandleCommand(ctx, rec); ok || err != nil {
			return ok, err
		}
	}

	logger.Debug(ctx, "bx.router", "update.unhandled",
		slog.String("status", "skip"),
		slog.String("kind", rec.Discriminant()),
		slog.Int64("chat_id", chatID),
		slog.Int("count", len(d.Routers())),
	)
	return false, nil
}
