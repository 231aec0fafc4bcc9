// Package logger is the structured event log of the bot. Every line carries
// a component, an event name and a status, plus the correlation fields of
// the inbound event found in the context.
package logger

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/m3rciful/bitrixbot/core/buildinfo"
	coreconfig "github.com/m3rciful/bitrixbot/core/config"
)

const defaultDebugSample = 50

var (
	initOnce sync.Once
	closeMu  sync.Mutex

	root   atomic.Pointer[slog.Logger]
	scoped sync.Map // component name -> *slog.Logger

	out     *lineWriter
	closers []io.Closer

	level        slog.LevelVar
	debugSampler = newSampler(1, defaultDebugSample)
	traceAll     atomic.Bool
)

// InitLogger installs the process logger from cfg. Only the first call has an effect.
func InitLogger(cfg *coreconfig.Config) error {
	var err error
	initOnce.Do(func() {
		var lc coreconfig.LoggingConfig
		if cfg != nil {
			lc = cfg.Logging
		}
		level.Set(parseLevel(lc.Level))
		keep, of, ok := parseRatio(lc.DebugSample)
		if !ok || strings.TrimSpace(lc.DebugSample) == "" {
			keep, of = 1, defaultDebugSample
		}
		debugSampler.Set(keep, of)
		traceAll.Store(truthy(os.Getenv("TRACE")) || truthy(os.Getenv("LOG_TRACE")))

		var main, severe io.Writer
		main, severe, closers, err = openSinks(lc)
		if err != nil {
			return
		}
		out = newLineWriter(main, severe, 256)
		install(slog.New(newStructuredHandler(handlerConfig{
			level:    &level,
			out:      out,
			format:   formatFor(lc),
			keyOrder: keyOrder(lc.KeysOrder),
		})))
		logStartup(cfg)
	})
	return err
}

// install makes l the root logger and drops cached component loggers.
func install(l *slog.Logger) {
	root.Store(l)
	scoped.Clear()
	if l != nil {
		slog.SetDefault(l)
	}
}

func logStartup(cfg *coreconfig.Config) {
	attrs := []slog.Attr{
		slog.String("status", StatusOK),
		slog.String("go_version", runtime.Version()),
		slog.String("build_version", buildinfo.Version),
		slog.String("build_commit", buildinfo.Commit),
		slog.String("build_time", buildinfo.Date),
	}
	if cfg != nil {
		attrs = append(attrs,
			slog.String("cfg_profile", profile(cfg.Logging)),
			slog.Int64("bot_id", cfg.Bitrix.BotID),
		)
	}
	Info(context.Background(), "app", "startup", attrs...)
}

// Shutdown flushes pending lines and closes the log files.
func Shutdown() error {
	closeMu.Lock()
	defer closeMu.Unlock()
	if out == nil {
		return nil
	}
	errs := []error{out.Close()}
	for _, c := range closers {
		errs = append(errs, c.Close())
	}
	out, closers = nil, nil
	return errors.Join(errs...)
}

// openSinks returns stdout plus the bot file, and the errors file for
// ERROR lines. Files live in Dir and are skipped when Dir is empty.
func openSinks(lc coreconfig.LoggingConfig) (main, severe io.Writer, files []io.Closer, err error) {
	main = os.Stdout
	dir := strings.TrimSpace(lc.Dir)
	if dir == "" {
		return main, nil, nil, nil
	}
	open := func(name string) (*os.File, error) {
		name = strings.TrimSpace(name)
		if name == "" {
			return nil, nil
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("logger: create %s: %w", dir, err)
		}
		f, err := os.OpenFile(filepath.Join(dir, name), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return nil, fmt.Errorf("logger: open %s: %w", name, err)
		}
		files = append(files, f)
		return f, nil
	}
	bot, err := open(lc.BotFile)
	if err != nil {
		return nil, nil, nil, err
	}
	if bot != nil {
		main = io.MultiWriter(os.Stdout, bot)
	}
	errs, err := open(lc.ErrorsFile)
	if err != nil {
		for _, f := range files {
			_ = f.Close()
		}
		return nil, nil, nil, err
	}
	if errs != nil {
		severe = errs
	}
	return main, severe, files, nil
}

func formatFor(lc coreconfig.LoggingConfig) logFormat {
	switch strings.ToLower(strings.TrimSpace(lc.Format)) {
	case "kv", "text", "pretty":
		return formatKV
	case "json":
		return formatJSON
	}
	switch profile(lc) {
	case "debug", "dev":
		return formatKV
	}
	return formatJSON
}

func keyOrder(raw string) []string {
	raw = strings.TrimSpace(raw)
	if raw == "" || raw == "default" {
		return defaultKeyOrder
	}
	var order []string
	for _, k := range strings.Split(raw, ",") {
		if k = strings.TrimSpace(k); k != "" {
			order = append(order, k)
		}
	}
	if len(order) == 0 {
		return defaultKeyOrder
	}
	return order
}

func profile(lc coreconfig.LoggingConfig) string {
	if p := strings.ToLower(strings.TrimSpace(lc.Profile)); p != "" {
		return p
	}
	return "prod"
}

func truthy(v string) bool {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "1", "true", "on", "yes":
		return true
	}
	return false
}

// Background returns context.Background for call sites outside a request.
func Background() context.Context {
	return context.Background()
}

// For returns the logger of component, built once per component. It is nil
// until InitLogger ran.
func For(component string) *slog.Logger {
	base := root.Load()
	if base == nil {
		return nil
	}
	name := cmp.Or(strings.TrimSpace(component), "app")
	if l, ok := scoped.Load(name); ok {
		return l.(*slog.Logger)
	}
	l, _ := scoped.LoadOrStore(name, base.With(slog.String("component", name)))
	return l.(*slog.Logger)
}

// Log writes event for component at lvl. It is a no-op before InitLogger.
func Log(ctx context.Context, component string, lvl slog.Level, event string, attrs ...slog.Attr) {
	l := For(component)
	if l == nil {
		return
	}
	if ctx == nil {
		ctx = context.Background()
	}
	if !l.Enabled(ctx, lvl) {
		return
	}
	l.LogAttrs(ctx, lvl, event, attrs...)
}

// Debug logs a debug event for component.
func Debug(ctx context.Context, component, event string, attrs ...slog.Attr) {
	Log(ctx, component, slog.LevelDebug, event, attrs...)
}

// Info logs an info event for component.
func Info(ctx context.Context, component, event string, attrs ...slog.Attr) {
	Log(ctx, component, slog.LevelInfo, event, attrs...)
}

// Warn logs a warning event for component.
func Warn(ctx context.Context, component, event string, attrs ...slog.Attr) {
	Log(ctx, component, slog.LevelWarn, event, attrs...)
}

// Error logs an error event for component.
func Error(ctx context.Context, component, event string, attrs ...slog.Attr) {
	Log(ctx, component, slog.LevelError, event, attrs...)
}

// ShouldSampleDebug reports whether the next high-volume debug line should be written.
func ShouldSampleDebug() bool {
	return traceAll.Load() || debugSampler.Allow()
}

// TraceEnabled reports whether TRACE or LOG_TRACE forces full debug output.
func TraceEnabled() bool { return traceAll.Load() }

// Status maps err to StatusOK or StatusFail.
func Status(err error) string {
	if err != nil {
		return StatusFail
	}
	return StatusOK
}

// Took returns the time since start rounded to milliseconds.
func Took(start time.Time) time.Duration {
	return RoundMS(time.Since(start))
}

// RoundMS rounds d to milliseconds; negative durations become zero.
func RoundMS(d time.Duration) time.Duration {
	if d <= 0 {
		return 0
	}
	return d.Round(time.Millisecond)
}

// SummarizeStrings joins at most limit values with ", " and reports whether some were left out.
func SummarizeStrings(values []string, limit int) (string, bool) {
	if limit <= 0 {
		return "", len(values) > 0
	}
	if len(values) <= limit {
		return strings.Join(values, ", "), false
	}
	return strings.Join(values[:limit], ", "), true
}
