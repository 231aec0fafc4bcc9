package logger

import (
	"context"
	"strconv"
	"strings"
	"unicode"
)

type ctxKey int

const (
	keyRID ctxKey = iota
	keyMessageID
	keyUserID
	keyChatID
	keyHandler
)

func with(ctx context.Context, key ctxKey, v any) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, key, v)
}

func stringFrom(ctx context.Context, key ctxKey) string {
	if ctx == nil {
		return ""
	}
	s, _ := ctx.Value(key).(string)
	return s
}

func int64From(ctx context.Context, key ctxKey) int64 {
	if ctx == nil {
		return 0
	}
	n, _ := ctx.Value(key).(int64)
	return n
}

// WithRID attaches the request correlation id.
func WithRID(ctx context.Context, rid string) context.Context {
	return with(ctx, keyRID, rid)
}

// RIDFrom returns the correlation id, empty when unset.
func RIDFrom(ctx context.Context) string { return stringFrom(ctx, keyRID) }

// WithEventMeta attaches the identifiers of an inbound event.
func WithEventMeta(ctx context.Context, messageID, userID, chatID int64) context.Context {
	ctx = with(ctx, keyMessageID, messageID)
	ctx = with(ctx, keyUserID, userID)
	return with(ctx, keyChatID, chatID)
}

// MessageIDFrom returns the message id of the current event.
func MessageIDFrom(ctx context.Context) int64 { return int64From(ctx, keyMessageID) }

// UserIDFrom returns the portal user id of the current event.
func UserIDFrom(ctx context.Context) int64 { return int64From(ctx, keyUserID) }

// ChatIDFrom returns the chat id of the current event.
func ChatIDFrom(ctx context.Context) int64 { return int64From(ctx, keyChatID) }

// WithHandler names the handler serving the current event.
func WithHandler(ctx context.Context, handler string) context.Context {
	if handler == "" {
		if ctx == nil {
			return context.Background()
		}
		return ctx
	}
	return with(ctx, keyHandler, handler)
}

// HandlerFrom returns the handler name, empty when unset.
func HandlerFrom(ctx context.Context) string { return stringFrom(ctx, keyHandler) }

// BuildRID joins event ids as messageID:chatID:userID.
func BuildRID(messageID, chatID, userID int64) string {
	return strconv.FormatInt(messageID, 10) + ":" +
		strconv.FormatInt(chatID, 10) + ":" +
		strconv.FormatInt(userID, 10)
}

// CompactRID rewrites a BuildRID value as dot-separated base36 numbers.
// Anything else is returned trimmed but unchanged.
func CompactRID(rid string) string {
	rid = strings.TrimSpace(rid)
	parts := strings.Split(rid, ":")
	if len(parts) != 3 {
		return rid
	}
	for i, part := range parts {
		n, err := strconv.ParseInt(strings.TrimSpace(part), 10, 64)
		if err != nil {
			return rid
		}
		parts[i] = strconv.FormatInt(n, 36)
	}
	return strings.Join(parts, ".")
}

// SanitizeLimit drops control and format runes, keeping tabs and newlines,
// and cuts the result to max runes.
func SanitizeLimit(s string, max int) string {
	if max <= 0 || s == "" {
		return ""
	}
	var b strings.Builder
	b.Grow(min(len(s), max*4))
	n := 0
	for _, r := range s {
		if r != '\n' && r != '\t' && (unicode.IsControl(r) || unicode.Is(unicode.Cf, r)) {
			continue
		}
		if n == max {
			break
		}
		b.WriteRune(r)
		n++
	}
	return b.String()
}
