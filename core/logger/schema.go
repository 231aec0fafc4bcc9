package logger

import (
	"log/slog"
	"strings"
)

// Status values every event should carry.
const (
	StatusOK          = "ok"
	StatusFail        = "fail"
	StatusSkip        = "skip"
	StatusRetry       = "retry"
	StatusRateLimited = "rate_limited"
	StatusCancelled   = "cancelled"
)

var knownStatus = map[string]bool{
	StatusOK:          true,
	StatusFail:        true,
	StatusSkip:        true,
	StatusRetry:       true,
	StatusRateLimited: true,
	StatusCancelled:   true,
}

// levelName renders slog levels as DEBUG, INFO, WARN or ERROR; levels in
// between fall to the nearest lower name.
func levelName(l slog.Level) string {
	switch {
	case l >= slog.LevelError:
		return "ERROR"
	case l >= slog.LevelWarn:
		return "WARN"
	case l >= slog.LevelInfo:
		return "INFO"
	default:
		return "DEBUG"
	}
}

func parseLevel(raw string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func normalizeStatus(raw string) string {
	s := strings.ToLower(strings.TrimSpace(raw))
	if knownStatus[s] {
		return s
	}
	return raw
}

// defaultKeyOrder puts identity and correlation first, then the event
// specific fields; unknown keys follow sorted.
var defaultKeyOrder = []string{
	"ts",
	"level",
	"component",
	"event",
	"status",
	"rid",
	"rid_full",
	"ts_unix_nano",
	"message_id",
	"user_id",
	"chat_id",
	"dialog_id",
	"kind",
	"handler",
	"router",
	"method",
	"command",
	"duration_ms",
	"state",
	"count",
	"payload",
	"mode",
	"listen",
	"path",
	"public_url",
	"http_code",
	"schedule",
	"evicted",
	"contexts",
	"ttl_ms",
	"queue",
	"workers",
	"err",
	"err_code",
	"cause",
	"retryable",
	"attempts",
	"backoff_ms",
	"rate_limited",
	"commands",
}
