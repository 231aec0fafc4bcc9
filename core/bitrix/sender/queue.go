// Package sender runs outbound REST calls asynchronously on a small worker
// pool, retrying transient failures with linear backoff.
package sender

import (
	"context"
	"crypto/tls"
	"errors"
	"log/slog"
	"net"
	"net/url"
	"regexp"
	"sync"
	"sync/atomic"
	"time"

	"github.com/m3rciful/bitrixbot/core/bitrix/netutil"
	"github.com/m3rciful/bitrixbot/core/logger"
)

var (
	// ErrQueueClosed is returned when enqueue is attempted after Close.
	ErrQueueClosed = errors.New("bitrix sender: queue closed")
	// ErrQueueFull indicates the queue is saturated and the job was not accepted.
	ErrQueueFull = errors.New("bitrix sender: queue full")

	// webhook secrets travel in the endpoint path: /rest/<user>/<secret>/
	secretRe = regexp.MustCompile(`/rest/([0-9]+)/[A-Za-z0-9_]+`)
)

// Options controls the behaviour of the outbound queue.
type Options struct {
	QueueSize    int
	Workers      int
	MaxRetries   int
	RetryBackoff time.Duration
	// MaxDuration bounds the time spent retrying a single job.
	MaxDuration time.Duration
}

type job struct {
	ctx    context.Context
	method string
	run    func(ctx context.Context) error
}

// Queue executes outbound calls asynchronously with retries.
type Queue struct {
	opts Options
	mu   sync.RWMutex
	jobs chan job
	stop chan struct{}
	once sync.Once
	wg   sync.WaitGroup
	errs atomic.Uint64
	done atomic.Uint64
}

// NewQueue starts a queue with sane defaults if options are zeroed.
func NewQueue(opts Options) *Queue {
	if opts.QueueSize <= 0 {
		opts.QueueSize = 256
	}
	if opts.Workers <= 0 {
		opts.Workers = 4
	}
	if opts.MaxRetries < 0 {
		opts.MaxRetries = 0
	}
	if opts.RetryBackoff <= 0 {
		opts.RetryBackoff = 2 * time.Second
	}
	if opts.MaxDuration <= 0 {
		opts.MaxDuration = 30 * time.Second
	}

	q := &Queue{
		opts: opts,
		jobs: make(chan job, opts.QueueSize),
		stop: make(chan struct{}),
	}

	q.wg.Add(opts.Workers)
	for i := 0; i < opts.Workers; i++ {
		go q.worker()
	}

	logger.Debug(logger.Background(), "bx.sender", "queue.start",
		slog.String("status", "ok"),
		slog.Int("queue", opts.QueueSize),
		slog.Int("workers", opts.Workers),
	)
	return q
}

// Enqueue schedules run for asynchronous execution. The closure must be
// idempotent if retries are desired. ctx is detached from cancellation so
// that a call queued by a finished webhook request still runs, but keeps
// its values for logging.
func (q *Queue) Enqueue(ctx context.Context, method string, run func(ctx context.Context) error) error {
	if run == nil {
		return errors.New("bitrix sender: nil run function")
	}
	if ctx == nil {
		ctx = context.Background()
	}

	q.mu.RLock()
	defer q.mu.RUnlock()
	select {
	case <-q.stop:
		return ErrQueueClosed
	default:
	}

	j := job{
		ctx:    context.WithoutCancel(ctx),
		method: method,
		run:    run,
	}

	select {
	case q.jobs <- j:
		return nil
	default:
		return ErrQueueFull
	}
}

// ErrorCount returns the number of failed jobs.
func (q *Queue) ErrorCount() uint64 {
	return q.errs.Load()
}

// DoneCount returns the number of jobs that finished successfully.
func (q *Queue) DoneCount() uint64 {
	return q.done.Load()
}

// Close stops accepting jobs and waits for workers to drain the queue.
func (q *Queue) Close() {
	q.once.Do(func() {
		q.mu.Lock()
		close(q.stop)
		close(q.jobs)
		q.mu.Unlock()
		q.wg.Wait()
		logger.Debug(logger.Background(), "bx.sender", "queue.stop",
			slog.String("status", "ok"),
			slog.Uint64("errors", q.errs.Load()),
		)
	})
}

func (q *Queue) worker() {
	defer q.wg.Done()
	for j := range q.jobs {
		q.handleJob(j)
	}
}

func (q *Queue) handleJob(j job) {
	ctx := j.ctx

	deadlineCtx, cancel := context.WithTimeout(ctx, q.opts.MaxDuration)
	defer cancel()

	start := time.Now()
	logger.Debug(ctx, "bx.sender", "send.start", sendLogAttrs(ctx, j)...)

	var (
		lastErr       error
		failureLogged bool
	)
	attempts := q.opts.MaxRetries + 1

attemptLoop:
	for attempt := 1; attempt <= attempts; attempt++ {
		if err := deadlineCtx.Err(); err != nil {
			lastErr = err
			break
		}

		if err := j.run(deadlineCtx); err != nil {
			lastErr = err
			if !netutil.ShouldRetry(err) || attempt == attempts {
				logSendFailure(ctx, j, lastErr, attempt, time.Since(start))
				failureLogged = true
				break
			}

			delay := q.opts.RetryBackoff * time.Duration(attempt)
			timer := time.NewTimer(delay)
			select {
			case <-deadlineCtx.Done():
				timer.Stop()
				lastErr = deadlineCtx.Err()
				logSendFailure(ctx, j, lastErr, attempt, time.Since(start))
				failureLogged = true
				break attemptLoop
			case <-timer.C:
			}
			logger.Debug(ctx, "bx.sender", "send.retry.backoff",
				append(sendLogAttrs(ctx, j),
					slog.Int("attempts", attempt),
					slog.Int64("backoff_ms", delay.Milliseconds()),
				)...,
			)
			continue
		}

		q.done.Add(1)
		logSendSuccess(ctx, j, attempt, time.Since(start))
		return
	}

	if lastErr != nil {
		q.errs.Add(1)
		if !failureLogged {
			logSendFailure(ctx, j, lastErr, attempts, time.Since(start))
		}
	}
}

func sendLogAttrs(ctx context.Context, j job) []slog.Attr {
	attrs := []slog.Attr{
		slog.String("method", j.method),
	}
	if rid := logger.RIDFrom(ctx); rid != "" {
		attrs = append(attrs, slog.String("rid", rid))
	}
	if chatID := logger.ChatIDFrom(ctx); chatID != 0 {
		attrs = append(attrs, slog.Int64("chat_id", chatID))
	}
	return attrs
}

func logSendSuccess(ctx context.Context, j job, attempt int, elapsed time.Duration) {
	attrs := sendLogAttrs(ctx, j)
	attrs = append(attrs, slog.String("status", "ok"))
	if attempt > 1 {
		attrs = append(attrs, slog.Int("attempts", attempt))
	}
	attrs = append(attrs, slog.Int64("duration_ms", logger.RoundMS(elapsed).Milliseconds()))
	logger.Debug(ctx, "bx.sender", "send.success", attrs...)
}

func logSendFailure(ctx context.Context, j job, err error, attempts int, elapsed time.Duration) {
	attrs := sendLogAttrs(ctx, j)
	attrs = append(attrs,
		slog.String("status", "fail"),
		slog.String("err", sanitizeErrorMessage(err)),
		slog.String("err_code", classifyError(err)),
		slog.Bool("retryable", netutil.ShouldRetry(err)),
		slog.Int64("duration_ms", logger.RoundMS(elapsed).Milliseconds()),
	)
	if attempts > 0 {
		attrs = append(attrs, slog.Int("attempts", attempts))
	}
	logger.Error(ctx, "bx.sender", "send.fail", attrs...)
}

func classifyError(err error) string {
	if err == nil {
		return ""
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return "timeout"
	}

	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		if dnsErr.IsTimeout {
			return "timeout"
		}
		return "dns"
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return "timeout"
	}

	var opErr *net.OpError
	if errors.As(err, &opErr) {
		if opErr.Timeout() {
			return "timeout"
		}
		if opErr.Op == "dial" {
			return "dial"
		}
	}

	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		if urlErr.Timeout() {
			return "timeout"
		}
		if urlErr.Err != nil && !errors.Is(urlErr.Err, err) {
			if kind := classifyError(urlErr.Err); kind != "" && kind != "unknown" {
				return kind
			}
		}
	}

	var alertErr tls.AlertError
	if errors.As(err, &alertErr) {
		return "tls"
	}

	status := netutil.StatusCode(err)
	switch {
	case status == 429:
		return "rate_limited"
	case status >= 500:
		return "http_5xx"
	case status >= 400:
		return "http_4xx"
	}

	return "unknown"
}

// sanitizeErrorMessage keeps webhook secrets embedded in REST URLs out of logs.
func sanitizeErrorMessage(err error) string {
	if err == nil {
		return ""
	}
	msg := err.Error()
	if msg == "" {
		return ""
	}
	return logger.SanitizeLimit(secretRe.ReplaceAllString(msg, "/rest/$1/<redacted>"), 256)
}
