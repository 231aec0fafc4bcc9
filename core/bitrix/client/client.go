// Package client is the outbound facade over the Bitrix24 imbot REST API.
package client

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/m3rciful/bitrixbot/core/bitrix/netutil"
	"github.com/m3rciful/bitrixbot/core/bitrix/sender"
	"github.com/m3rciful/bitrixbot/core/logger"
)

// Config identifies the portal endpoint and the bot.
type Config struct {
	// Endpoint is the REST base URL ending with a slash.
	Endpoint string
	// Token is the bot CLIENT_ID.
	Token string
	BotID int64
	// EventURL is the public handler URL used for commands that do not set their own.
	EventURL string
}

// Client issues REST calls. It is safe for concurrent use.
type Client struct {
	cfg       Config
	transport Transport
	queue     *sender.Queue
}

// Option configures a Client.
type Option func(*Client)

// WithTransport replaces the HTTP transport, mainly for tests.
func WithTransport(t Transport) Option {
	return func(c *Client) {
		if t != nil {
			c.transport = t
		}
	}
}

// WithQueue routes CallAsync through q.
func WithQueue(q *sender.Queue) Option {
	return func(c *Client) { c.queue = q }
}

// New builds a client. The endpoint gets a trailing slash when missing.
func New(cfg Config, opts ...Option) *Client {
	cfg.Endpoint = strings.TrimSpace(cfg.Endpoint)
	if cfg.Endpoint != "" && !strings.HasSuffix(cfg.Endpoint, "/") {
		cfg.Endpoint += "/"
	}
	c := &Client{cfg: cfg}
	for _, opt := range opts {
		if opt != nil {
			opt(c)
		}
	}
	if c.transport == nil {
		c.transport = NewHTTPTransport(nil)
	}
	return c
}

// BotID returns the configured bot id.
func (c *Client) BotID() int64 { return c.cfg.BotID }

// Call posts params to method. CLIENT_ID defaults to the bot token. The
// reply must be a JSON object without an "error" member.
func (c *Client) Call(ctx context.Context, method string, params map[string]any) (*Response, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	start := time.Now()

	query := make(map[string]any, len(params)+1)
	for k, v := range params {
		query[k] = v
	}
	if v, ok := query["CLIENT_ID"]; !ok || v == nil {
		query["CLIENT_ID"] = c.cfg.Token
	}
	form := Encode(Flatten(query))

	body, postErr := c.transport.Post(ctx, c.cfg.Endpoint+method, form)
	resp, parsed := parseResponse(body)

	var err error
	switch {
	case parsed:
		if code, desc, isErr := resp.apiError(); isErr {
			err = clientError(ErrAPI, fmt.Sprintf("%s: %s %s", method, code, desc), postErr, map[string]any{
				"method":            method,
				"error":             code,
				"error_description": desc,
				"http_code":         netutil.StatusCode(postErr),
			})
		} else if postErr != nil {
			err = clientError(ErrTransport, fmt.Sprintf("%s: %v", method, postErr), postErr, map[string]any{
				"method":    method,
				"http_code": netutil.StatusCode(postErr),
			})
		}
	case postErr != nil:
		err = clientError(ErrTransport, fmt.Sprintf("%s: %v", method, postErr), postErr, map[string]any{
			"method":    method,
			"http_code": netutil.StatusCode(postErr),
		})
	default:
		err = clientError(ErrBadResponse, fmt.Sprintf("%s: response is not a JSON object", method), nil, map[string]any{
			"method": method,
			"body":   logger.SanitizeLimit(string(body), 256),
		})
	}

	logCall(ctx, method, start, err)
	if err != nil {
		return nil, err
	}
	return resp, nil
}

// CallAsync runs Call on the sender queue. Without a queue, or when the
// queue rejects the job, the call runs synchronously.
func (c *Client) CallAsync(ctx context.Context, method string, params map[string]any) error {
	snapshot := make(map[string]any, len(params))
	for k, v := range params {
		snapshot[k] = v
	}
	if c.queue == nil {
		_, err := c.Call(ctx, method, snapshot)
		return err
	}
	err := c.queue.Enqueue(ctx, method, func(jobCtx context.Context) error {
		_, err := c.Call(jobCtx, method, snapshot)
		return err
	})
	if errors.Is(err, sender.ErrQueueFull) || errors.Is(err, sender.ErrQueueClosed) {
		logger.Warn(ctx, "bx", "rest.async.fallback",
			slog.String("status", "skip"),
			slog.String("method", method),
			slog.String("cause", err.Error()),
		)
		_, err = c.Call(ctx, method, snapshot)
	}
	return err
}

func logCall(ctx context.Context, method string, start time.Time, err error) {
	attrs := []slog.Attr{
		slog.String("method", method),
		slog.Int64("duration_ms", logger.RoundMS(time.Since(start)).Milliseconds()),
	}
	if err == nil {
		attrs = append(attrs, slog.String("status", "ok"))
		logger.Debug(ctx, "bx", "rest.call", attrs...)
		return
	}
	attrs = append(attrs,
		slog.String("status", "fail"),
		slog.String("err_code", ErrorCode(err)),
		slog.Bool("retryable", netutil.ShouldRetry(err)),
	)
	if code := APIErrorCode(err); code != "" {
		attrs = append(attrs, slog.String("cause", code))
	}
	if status := netutil.StatusCode(err); status != 0 {
		attrs = append(attrs, slog.Int("http_code", status))
	}
	logger.Warn(ctx, "bx", "rest.call", attrs...)
}
