package webhook

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/m3rciful/bitrixbot/core/bitrix/event"
	"github.com/m3rciful/bitrixbot/core/logger"
)

// RateLimitOptions configures the per-chat limiter.
type RateLimitOptions struct {
	// Interval is the minimum gap between two processed events of one chat.
	// Zero disables limiting.
	Interval time.Duration
	// Exclude lists event kinds ("message", "command") that bypass the limiter.
	Exclude []string
}

type rateLimiter struct {
	interval time.Duration
	exclude  map[string]struct{}
	now      func() time.Time

	mu       sync.Mutex
	lastSeen map[int64]time.Time
}

func newRateLimiter(opts RateLimitOptions) *rateLimiter {
	if opts.Interval <= 0 {
		return nil
	}
	exclude := make(map[string]struct{}, len(opts.Exclude))
	for _, kind := range opts.Exclude {
		exclude[kind] = struct{}{}
	}
	return &rateLimiter{
		interval: opts.Interval,
		exclude:  exclude,
		now:      time.Now,
		lastSeen: make(map[int64]time.Time),
	}
}

// allow reports whether ev may be processed now and records the attempt.
func (l *rateLimiter) allow(ctx context.Context, ev event.Event) bool {
	if l == nil {
		return true
	}
	chatID := ev.ChatID()
	if chatID == 0 {
		return true
	}
	if _, skip := l.exclude[ev.Kind().String()]; skip {
		return true
	}

	now := l.now()
	l.mu.Lock()
	if last, ok := l.lastSeen[chatID]; ok && now.Sub(last) < l.interval {
		l.mu.Unlock()
		logger.Warn(ctx, "bx.webhook", "rate_limit",
			slog.String("status", "skip"),
			slog.String("kind", ev.Kind().String()),
			slog.Int64("chat_id", chatID),
		)
		return false
	}
	l.lastSeen[chatID] = now
	for id, ts := range l.lastSeen {
		if now.Sub(ts) > l.interval*10 {
			delete(l.lastSeen, id)
		}
	}
	l.mu.Unlock()
	return true
}
