package router

import (
	"context"
	"log/slog"
	"reflect"
	"runtime/debug"
	"strings"
	"time"

	"github.com/m3rciful/bitrixbot/core/bitrix/event"
	"github.com/m3rciful/bitrixbot/core/logger"
)

func withEventContext(ctx context.Context, ev event.Event) context.Context {
	if logger.RIDFrom(ctx) == "" {
		ctx = logger.WithRID(ctx, logger.BuildRID(ev.MessageID(), ev.ChatID(), ev.UserID()))
	}
	if logger.ChatIDFrom(ctx) == 0 {
		ctx = logger.WithEventMeta(ctx, ev.MessageID(), ev.UserID(), ev.ChatID())
	}
	return ctx
}

func handleWithSummary(ctx context.Context, routerName, handlerName string, start time.Time, ev event.Event, fn func() error) error {
	err := fn()
	logHandlerSummary(ctx, routerName, handlerName, start, ev, err)
	return err
}

func logHandlerSummary(ctx context.Context, routerName, handlerName string, start time.Time, ev event.Event, err error) {
	status := logger.Status(err)

	duration := logger.RoundMS(time.Since(start)).Milliseconds()
	attrs := []slog.Attr{
		slog.String("status", status),
		slog.String("handler", handlerName),
		slog.String("router", routerName),
		slog.String("kind", ev.Kind().String()),
		slog.Int64("duration_ms", duration),
	}
	if ev.IsCommand() {
		attrs = append(attrs, slog.String("command", ev.CommandName()))
	}
	if err != nil {
		attrs = append(attrs,
			slog.String("err", logger.SanitizeLimit(err.Error(), 256)),
			slog.String("err_code", deriveErrorCode(err)),
			slog.String("cause", handlerName),
		)
	}
	level := slog.LevelInfo
	if err != nil {
		level = slog.LevelError
	}
	logger.Log(ctx, "bx.router", level, "handler.handled", attrs...)
}

func logPanic(ctx context.Context, handlerName string, recovered any) {
	logger.Error(ctx, "bx.router", "handler.panic",
		slog.String("status", "fail"),
		slog.String("handler", handlerName),
		slog.Any("err", recovered),
		slog.String("stack", string(debug.Stack())),
	)
}

func normalizeHandlerName(name string) string {
	name = strings.TrimSpace(name)
	if name == "" {
		return "unknown"
	}
	name = strings.TrimPrefix(name, "/")
	name = strings.ReplaceAll(name, " ", "_")
	return strings.ToLower(name)
}

func deriveErrorCode(err error) string {
	if err == nil {
		return ""
	}
	if code := ErrorCode(err); code != "" {
		return code
	}
	type coder interface{ Code() string }
	if c, ok := err.(coder); ok {
		code := strings.TrimSpace(c.Code())
		if code != "" {
			return strings.ToUpper(strings.ReplaceAll(code, " ", "_"))
		}
	}
	t := reflect.TypeOf(err)
	for t != nil && t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	if t != nil && t.Name() != "" {
		return strings.ToUpper(strings.ReplaceAll(t.Name(), " ", "_"))
	}
	return "UNKNOWN_ERROR"
}
