package bitrix

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"time"

	"github.com/m3rciful/bitrixbot/core/bitrix/client"
	"github.com/m3rciful/bitrixbot/core/bitrix/router"
	"github.com/m3rciful/bitrixbot/core/bitrix/sender"
	"github.com/m3rciful/bitrixbot/core/bitrix/webhook"
	coreconfig "github.com/m3rciful/bitrixbot/core/config"
	"github.com/m3rciful/bitrixbot/core/logger"
)

const stopTimeout = 10 * time.Second

// RunOptions controls the behaviour of Run.
type RunOptions struct {
	Config     *coreconfig.Config
	Client     *client.Client
	Dispatcher *router.Dispatcher
	Registry   *Registry
	// Queue is closed when Run returns.
	Queue *sender.Queue
	// Listener replaces the TCP listener bound from the webhook config.
	Listener net.Listener

	// DisableCommandRegistration skips imbot.command.register at startup.
	DisableCommandRegistration bool
	// DisableWebhookRegistration skips imbot.register even when webhook.url is set.
	DisableWebhookRegistration bool

	OnStart func(ctx context.Context, rt Runtime) error
	OnStop  func(ctx context.Context, rt Runtime) error
}

// Runtime exposes runtime components to lifecycle hooks.
type Runtime struct {
	Client      *client.Client
	Dispatcher  *router.Dispatcher
	Registry    *Registry
	Queue       *sender.Queue
	Maintenance *Maintenance
}

// Run registers commands and the webhook, then serves events until ctx is done.
func Run(ctx context.Context, opts RunOptions) error {
	if ctx == nil {
		ctx = context.Background()
	}
	if opts.Config == nil {
		return fmt.Errorf("bitrix: nil config provided")
	}
	if opts.Client == nil {
		return fmt.Errorf("bitrix: nil client provided")
	}

	cfg := opts.Config
	reg := opts.Registry
	if reg == nil {
		reg = NewRegistry()
	}
	dispatcher := opts.Dispatcher
	if dispatcher == nil {
		var dopts []router.Option
		if !cfg.SerializeChats() {
			dopts = append(dopts, router.WithoutChatLock())
		}
		dispatcher = router.NewDispatcher(dopts...)
	}
	if rt := reg.Router(); rt != nil {
		dispatcher.AddRouter(rt)
	}

	maint, err := NewMaintenance(MaintenanceOptions{
		Store:             dispatcher.Store(),
		SweepSchedule:     cfg.FSM.SweepSchedule,
		HeartbeatSchedule: cfg.HeartbeatSchedule,
		Stats:             queueStats(opts.Queue),
	})
	if err != nil {
		return err
	}

	rt := Runtime{
		Client:      opts.Client,
		Dispatcher:  dispatcher,
		Registry:    reg,
		Queue:       opts.Queue,
		Maintenance: maint,
	}
	defer func() {
		if opts.Queue != nil {
			opts.Queue.Close()
		}
	}()

	if !opts.DisableCommandRegistration {
		if _, err := reg.Publish(ctx, opts.Client); err != nil {
			logger.Warn(ctx, "bx.wire", "register.commands.partial",
				slog.String("status", "fail"),
				slog.String("err", err.Error()),
			)
		}
	}
	if url := cfg.Webhook.URL; url != "" && !opts.DisableWebhookRegistration {
		if err := opts.Client.SetWebhook(ctx, url); err != nil {
			return fmt.Errorf("bitrix: webhook registration failed: %w", err)
		}
	}

	listener := webhook.NewListener(dispatcher, webhook.Options{
		Addr:             cfg.ListenAddr(),
		Path:             cfg.Webhook.Path,
		ApplicationToken: cfg.Webhook.ApplicationToken,
		RateLimit: webhook.RateLimitOptions{
			Interval: time.Duration(cfg.RateLimit.IntervalMS) * time.Millisecond,
			Exclude:  cfg.RateLimit.ExcludeUpdates,
		},
	})

	ln := opts.Listener
	if ln == nil {
		ln, err = net.Listen("tcp", cfg.ListenAddr())
		if err != nil {
			return fmt.Errorf("bitrix: listen %s: %w", cfg.ListenAddr(), err)
		}
	}

	if opts.OnStart != nil {
		if err := opts.OnStart(ctx, rt); err != nil {
			_ = ln.Close()
			return err
		}
	}

	maint.Start()
	logger.Info(ctx, "app", "bot.start",
		slog.String("status", "ok"),
		slog.String("listen", ln.Addr().String()),
		slog.String("path", listener.Path()),
		slog.Int("routers", len(dispatcher.Routers())),
		slog.Int("commands", reg.Len()),
	)

	runErr := listener.Serve(ctx, ln)

	stopCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), stopTimeout)
	defer cancel()
	maint.Stop(stopCtx)

	var stopErr error
	if opts.OnStop != nil {
		stopErr = opts.OnStop(stopCtx, rt)
	}

	logger.Info(ctx, "app", "bot.stop", slog.String("status", logger.Status(errors.Join(runErr, stopErr))))
	if stopErr != nil {
		return stopErr
	}
	if runErr != nil && !errors.Is(runErr, context.Canceled) {
		return runErr
	}
	return nil
}

func queueStats(q *sender.Queue) func() []slog.Attr {
	if q == nil {
		return nil
	}
	return func() []slog.Attr {
		return []slog.Attr{
			slog.Uint64("sent", q.DoneCount()),
			slog.Uint64("errors", q.ErrorCount()),
		}
	}
}
