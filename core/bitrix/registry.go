// Package bitrix composes the Bitrix24 bot runtime: command registration,
// the webhook listener and background maintenance.
package bitrix

import (
	"context"
	"log/slog"
	"strings"
	"sync"

	"github.com/m3rciful/bitrixbot/core/bitrix/commands"
	"github.com/m3rciful/bitrixbot/core/bitrix/filter"
	"github.com/m3rciful/bitrixbot/core/bitrix/router"
	"github.com/m3rciful/bitrixbot/core/logger"
)

type registered struct {
	cmd     commands.Command
	handler router.Handler
	checks  []filter.Predicate
}

// Registry holds the bot commands registered with the portal at startup,
// in registration order, and optionally their handlers.
type Registry struct {
	mu    sync.RWMutex
	order []string
	cmds  map[string]registered
}

// NewRegistry creates an empty Registry.
func NewRegistry() *Registry {
	return &Registry{cmds: make(map[string]registered)}
}

func commandKey(name string) string {
	return strings.ToLower(strings.TrimPrefix(strings.TrimSpace(name), "/"))
}

// Register adds a command descriptor without a handler. Invalid and
// duplicate commands are skipped with a warning.
func (r *Registry) Register(cmd commands.Command) bool {
	return r.add(cmd, nil, nil)
}

// Handle adds a command together with the handler answering it. Extra
// checks narrow the match like router registrations do.
func (r *Registry) Handle(cmd commands.Command, h router.Handler, checks ...filter.Predicate) bool {
	if h == nil {
		logger.Warn(logger.Background(), "bx.wire", "register.command.skip",
			slog.String("status", "skip"),
			slog.String("command", cmd.Command),
			slog.String("cause", "nil handler"),
		)
		return false
	}
	return r.add(cmd, h, checks)
}

func (r *Registry) add(cmd commands.Command, h router.Handler, checks []filter.Predicate) bool {
	if r == nil {
		return false
	}
	key := commandKey(cmd.Command)
	if key == "" || strings.TrimSpace(cmd.Title) == "" {
		logger.Warn(logger.Background(), "bx.wire", "register.command.skip",
			slog.String("status", "skip"),
			slog.String("command", cmd.Command),
			slog.String("cause", "invalid"),
		)
		return false
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.cmds[key]; exists {
		logger.Warn(logger.Background(), "bx.wire", "register.command.duplicate",
			slog.String("status", "skip"),
			slog.String("command", key),
		)
		return false
	}
	r.cmds[key] = registered{cmd: cmd, handler: h, checks: checks}
	r.order = append(r.order, key)
	return true
}

// Commands returns the command descriptors in registration order.
func (r *Registry) Commands() []commands.Command {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]commands.Command, 0, len(r.order))
	for _, key := range r.order {
		out = append(out, r.cmds[key].cmd)
	}
	return out
}

// Lookup finds a command by name, with or without the leading slash.
func (r *Registry) Lookup(name string) (commands.Command, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	reg, ok := r.cmds[commandKey(name)]
	return reg.cmd, ok
}

// Len returns the number of registered commands.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.order)
}

// Router builds a router answering every command that has a handler. It
// returns nil when no command has one.
func (r *Registry) Router() *router.Router {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var rt *router.Router
	for _, key := range r.order {
		reg := r.cmds[key]
		if reg.handler == nil {
			continue
		}
		if rt == nil {
			rt = router.New("commands")
		}
		checks := append([]filter.Predicate{filter.CommandNameEquals(key)}, reg.checks...)
		rt.Command(key, reg.handler, checks...)
	}
	return rt
}

// CommandRegistrar is the part of the REST client used to publish commands.
type CommandRegistrar interface {
	RegisterCommands(ctx context.Context, cmds []commands.Command) (map[string]int64, error)
}

// Publish registers every command with the portal. Failures are logged per
// command by the client and returned joined.
func (r *Registry) Publish(ctx context.Context, c CommandRegistrar) (map[string]int64, error) {
	cmds := r.Commands()
	if len(cmds) == 0 || c == nil {
		return map[string]int64{}, nil
	}
	ids, err := c.RegisterCommands(ctx, cmds)
	names := make([]string, 0, len(cmds))
	for _, cmd := range cmds {
		names = append(names, commandKey(cmd.Command))
	}
	summary, _ := logger.SummarizeStrings(names, 10)
	logger.Info(ctx, "bx.wire", "register.commands",
		slog.String("status", logger.Status(err)),
		slog.Int("count", len(ids)),
		slog.String("commands", summary),
	)
	return ids, err
}
