// Package webhook receives Bitrix24 event posts over HTTP and feeds them to
// a router dispatcher.
package webhook

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/m3rciful/bitrixbot/core/bitrix/event"
	"github.com/m3rciful/bitrixbot/core/logger"
)

const (
	defaultPath            = "/"
	defaultShutdownTimeout = 10 * time.Second
	readHeaderTimeout      = 5 * time.Second
	maxFormBytes           = 1 << 20
)

// Processor consumes one inbound record. *router.Dispatcher implements it.
type Processor interface {
	ProcessUpdate(ctx context.Context, rec event.Record) (bool, error)
}

// Options configures a Listener.
type Options struct {
	// Addr is the host:port to bind.
	Addr string
	// Path is the URL path events are posted to.
	Path string
	// ApplicationToken, when set, must match auth[application_token] of every post.
	ApplicationToken string
	RateLimit        RateLimitOptions
	// ShutdownTimeout bounds the graceful shutdown in Run.
	ShutdownTimeout time.Duration
}

// Listener is the HTTP endpoint Bitrix24 posts events to. Every accepted
// post is answered with 200 OK once processed, even when a handler fails,
// so the portal does not redeliver it.
type Listener struct {
	processor Processor
	opts      Options
	limiter   *rateLimiter
}

// NewListener builds a listener delivering events to p.
func NewListener(p Processor, opts Options) *Listener {
	opts.Path = strings.TrimSpace(opts.Path)
	if opts.Path == "" {
		opts.Path = defaultPath
	}
	if !strings.HasPrefix(opts.Path, "/") {
		opts.Path = "/" + opts.Path
	}
	if opts.ShutdownTimeout <= 0 {
		opts.ShutdownTimeout = defaultShutdownTimeout
	}
	return &Listener{
		processor: p,
		opts:      opts,
		limiter:   newRateLimiter(opts.RateLimit),
	}
}

// Path returns the path the listener serves.
func (l *Listener) Path() string { return l.opts.Path }

// Handler returns an http.Handler serving only the configured path.
func (l *Listener) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.Handle(l.opts.Path, l)
	return mux
}

// ServeHTTP implements http.Handler.
func (l *Listener) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", http.MethodPost)
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, maxFormBytes)
	if err := r.ParseForm(); err != nil {
		logger.Warn(r.Context(), "bx.webhook", "request.invalid",
			slog.String("status", "fail"),
			slog.String("err", err.Error()),
		)
		http.Error(w, "bad request", http.StatusBadRequest)
		return
	}
	rec := event.FromForm(r.PostForm)

	if want := l.opts.ApplicationToken; want != "" && rec.Get("auth[application_token]") != want {
		logger.Warn(r.Context(), "bx.webhook", "request.denied",
			slog.String("status", "fail"),
			slog.String("cause", "application_token mismatch"),
		)
		http.Error(w, "forbidden", http.StatusForbidden)
		return
	}

	ev, _ := event.Parse(rec)
	ctx := requestContext(r.Context(), ev)

	if logger.ShouldSampleDebug() {
		attrs := []slog.Attr{
			slog.String("status", "ok"),
			slog.String("kind", ev.Kind().String()),
		}
		switch {
		case ev.IsMessage():
			attrs = append(attrs, slog.String("payload", logger.SanitizeLimit(ev.Text(), 256)))
		case ev.IsCommand():
			attrs = append(attrs, slog.String("command", ev.CommandName()))
			if p := ev.CommandParams(); p != "" {
				attrs = append(attrs, slog.String("payload", logger.SanitizeLimit(p, 256)))
			}
		default:
			attrs = append(attrs, slog.String("cause", logger.SanitizeLimit(rec.Discriminant(), 64)))
		}
		logger.Debug(ctx, "bx.webhook", "update.received", attrs...)
	}

	if l.limiter.allow(ctx, ev) {
		l.process(ctx, rec, start)
	}

	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}

func (l *Listener) process(ctx context.Context, rec event.Record, start time.Time) {
	if l.processor == nil {
		return
	}
	handled, err := l.processor.ProcessUpdate(ctx, rec)
	if err != nil {
		logger.Error(ctx, "bx.webhook", "update.failed",
			slog.String("status", "fail"),
			slog.String("err", err.Error()),
			slog.Int64("duration_ms", logger.RoundMS(time.Since(start)).Milliseconds()),
		)
		return
	}
	logger.Debug(ctx, "bx.webhook", "update.done",
		slog.String("status", "ok"),
		slog.Bool("handled", handled),
		slog.Int64("duration_ms", logger.RoundMS(time.Since(start)).Milliseconds()),
	)
}

func requestContext(ctx context.Context, ev event.Event) context.Context {
	messageID, chatID, userID := ev.MessageID(), ev.ChatID(), ev.UserID()
	ctx = logger.WithRID(ctx, logger.BuildRID(messageID, chatID, userID))
	return logger.WithEventMeta(ctx, messageID, userID, chatID)
}

// Run serves HTTP on opts.Addr until ctx is done, then shuts down gracefully.
func (l *Listener) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", l.opts.Addr)
	if err != nil {
		return fmt.Errorf("webhook: listen %s: %w", l.opts.Addr, err)
	}
	return l.Serve(ctx, ln)
}

// Serve is Run over an existing listener.
func (l *Listener) Serve(ctx context.Context, ln net.Listener) error {
	if ctx == nil {
		ctx = context.Background()
	}
	srv := &http.Server{
		Handler:           l.Handler(),
		ReadHeaderTimeout: readHeaderTimeout,
		BaseContext:       func(net.Listener) context.Context { return context.WithoutCancel(ctx) },
	}

	logger.Info(ctx, "bx.webhook", "listen",
		slog.String("status", "ok"),
		slog.String("listen", ln.Addr().String()),
		slog.String("path", l.opts.Path),
	)

	serveErr := make(chan error, 1)
	go func() {
		serveErr <- srv.Serve(ln)
	}()

	select {
	case err := <-serveErr:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("webhook: serve: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), l.opts.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("webhook: shutdown: %w", err)
	}
	<-serveErr
	logger.Info(ctx, "bx.webhook", "stop", slog.String("status", "ok"))
	return nil
}
