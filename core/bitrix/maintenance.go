package bitrix

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	rcron "github.com/robfig/cron/v3"

	"github.com/m3rciful/bitrixbot/core/bitrix/state"
	"github.com/m3rciful/bitrixbot/core/config"
	"github.com/m3rciful/bitrixbot/core/logger"
)

// MaintenanceOptions selects the background jobs. A schedule equal to
// config.ScheduleOff or empty disables the job.
type MaintenanceOptions struct {
	Store *state.Store
	// SweepSchedule evicts idle FSM contexts. It only runs when the store has a TTL.
	SweepSchedule string
	// HeartbeatSchedule logs a bot.alive line.
	HeartbeatSchedule string
	// Stats adds attributes to the heartbeat line.
	Stats func() []slog.Attr
}

// Maintenance runs periodic housekeeping on a cron scheduler.
type Maintenance struct {
	cron    *rcron.Cron
	opts    MaintenanceOptions
	started time.Time
	jobs    []string

	mu      sync.Mutex
	running bool
}

// NewMaintenance validates the schedules and prepares the jobs without starting them.
func NewMaintenance(opts MaintenanceOptions) (*Maintenance, error) {
	m := &Maintenance{
		opts: opts,
		cron: rcron.New(
			rcron.WithChain(rcron.Recover(cronLogger{})),
			rcron.WithLogger(cronLogger{}),
		),
	}

	if opts.Store != nil && opts.Store.TTL() > 0 && scheduled(opts.SweepSchedule) {
		if _, err := m.cron.AddFunc(opts.SweepSchedule, m.Sweep); err != nil {
			return nil, fmt.Errorf("invalid fsm sweep schedule %q: %w", opts.SweepSchedule, err)
		}
		m.jobs = append(m.jobs, "fsm.sweep")
	}
	if scheduled(opts.HeartbeatSchedule) {
		if _, err := m.cron.AddFunc(opts.HeartbeatSchedule, m.Heartbeat); err != nil {
			return nil, fmt.Errorf("invalid heartbeat schedule %q: %w", opts.HeartbeatSchedule, err)
		}
		m.jobs = append(m.jobs, "heartbeat")
	}
	return m, nil
}

func scheduled(spec string) bool {
	spec = strings.TrimSpace(spec)
	return spec != "" && !strings.EqualFold(spec, config.ScheduleOff)
}

// Jobs names the scheduled jobs.
func (m *Maintenance) Jobs() []string {
	out := make([]string, len(m.jobs))
	copy(out, m.jobs)
	return out
}

// Start runs the scheduler in the background. It is a no-op without jobs.
func (m *Maintenance) Start() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.running || len(m.jobs) == 0 {
		return
	}
	m.started = time.Now()
	m.running = true
	m.cron.Start()
	logger.Info(logger.Background(), "app", "maintenance.start",
		slog.String("status", "ok"),
		slog.String("schedule", strings.Join(m.jobs, ",")),
	)
}

// Stop halts the scheduler and waits for running jobs until ctx is done.
func (m *Maintenance) Stop(ctx context.Context) {
	m.mu.Lock()
	if !m.running {
		m.mu.Unlock()
		return
	}
	m.running = false
	m.mu.Unlock()

	done := m.cron.Stop()
	select {
	case <-done.Done():
	case <-ctx.Done():
	}
}

// Sweep evicts idle FSM contexts once.
func (m *Maintenance) Sweep() {
	if m.opts.Store == nil {
		return
	}
	start := time.Now()
	evicted := m.opts.Store.Sweep()
	logger.Debug(logger.Background(), "bx.fsm", "fsm.sweep",
		slog.String("status", "ok"),
		slog.Int("evicted", evicted),
		slog.Int("contexts", m.opts.Store.Len()),
		slog.Int64("duration_ms", logger.Took(start).Milliseconds()),
	)
}

// Heartbeat logs that the bot is alive.
func (m *Maintenance) Heartbeat() {
	m.mu.Lock()
	started := m.started
	m.mu.Unlock()

	attrs := []slog.Attr{slog.String("status", "ok")}
	if !started.IsZero() {
		attrs = append(attrs, slog.Int64("uptime_s", int64(time.Since(started).Seconds())))
	}
	if m.opts.Store != nil {
		attrs = append(attrs, slog.Int("contexts", m.opts.Store.Len()))
	}
	if m.opts.Stats != nil {
		attrs = append(attrs, m.opts.Stats()...)
	}
	logger.Info(logger.Background(), "app", "bot.alive", attrs...)
}

// cronLogger forwards scheduler diagnostics to the app logger.
type cronLogger struct{}

func (cronLogger) Info(msg string, keysAndValues ...any) {
	if !logger.TraceEnabled() {
		return
	}
	logger.Debug(logger.Background(), "app", "cron."+msg, slog.Any("details", keysAndValues))
}

func (cronLogger) Error(err error, msg string, keysAndValues ...any) {
	logger.Error(logger.Background(), "app", "cron.error",
		slog.String("status", "fail"),
		slog.String("err", fmt.Sprint(err)),
		slog.String("cause", msg),
		slog.Any("details", keysAndValues),
	)
}
