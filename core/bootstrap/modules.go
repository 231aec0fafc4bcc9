package bootstrap

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/m3rciful/bitrixbot/core/bitrix"
	"github.com/m3rciful/bitrixbot/core/logger"
)

// Module contributes routers and commands to a bot.
type Module interface {
	Name() string
	Install(ctx context.Context, app *Result, reg *bitrix.Registry) error
}

// ModuleFunc adapts a bare function to the Module interface.
type ModuleFunc struct {
	ModuleName string
	Fn         func(ctx context.Context, app *Result, reg *bitrix.Registry) error
}

// Name returns the module name.
func (m ModuleFunc) Name() string { return m.ModuleName }

// Install executes the underlying function.
func (m ModuleFunc) Install(ctx context.Context, app *Result, reg *bitrix.Registry) error {
	if m.Fn == nil {
		return nil
	}
	return m.Fn(ctx, app, reg)
}

// Install runs every module against app in order and returns the registry
// they filled. The first failing module stops the installation.
func Install(ctx context.Context, app *Result, modules ...Module) (*bitrix.Registry, error) {
	if app == nil {
		return nil, fmt.Errorf("bootstrap: nil result")
	}
	reg := bitrix.NewRegistry()
	for _, m := range modules {
		if m == nil {
			continue
		}
		if err := m.Install(ctx, app, reg); err != nil {
			return nil, fmt.Errorf("bootstrap: module %s: %w", m.Name(), err)
		}
		logger.Debug(ctx, "app", "module.installed",
			slog.String("status", "ok"),
			slog.String("handler", m.Name()),
			slog.Int("routers", len(app.Dispatcher.Routers())),
			slog.Int("commands", reg.Len()),
		)
	}
	return reg, nil
}

// RunOptions builds bitrix.RunOptions from the bootstrap result.
func (r *Result) RunOptions(reg *bitrix.Registry) bitrix.RunOptions {
	return bitrix.RunOptions{
		Config:     r.Config,
		Client:     r.Client,
		Dispatcher: r.Dispatcher,
		Registry:   reg,
		Queue:      r.Queue,
	}
}
