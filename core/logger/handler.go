package logger

import (
	"cmp"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"math"
	"sort"
	"strconv"
	"strings"
	"time"
)

type logFormat int

const (
	formatJSON logFormat = iota
	formatKV
)

const timeFormatMillis = "2006-01-02T15:04:05.000Z07:00"

type handlerConfig struct {
	level    slog.Leveler
	out      *lineWriter
	format   logFormat
	keyOrder []string
}

// structuredHandler renders one flat line per record: JSON objects or
// key=value pairs with keys in a fixed order.
type structuredHandler struct {
	cfg    handlerConfig
	attrs  []slog.Attr
	prefix string
}

func newStructuredHandler(cfg handlerConfig) *structuredHandler {
	if cfg.level == nil {
		cfg.level = slog.LevelInfo
	}
	if len(cfg.keyOrder) == 0 {
		cfg.keyOrder = defaultKeyOrder
	}
	return &structuredHandler{cfg: cfg}
}

func (h *structuredHandler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= h.cfg.level.Level()
}

func (h *structuredHandler) Handle(ctx context.Context, r slog.Record) error {
	if h.cfg.out == nil {
		return fmt.Errorf("logger: writer not initialized")
	}
	f := make(fields, 16)
	ts := r.Time.UTC()
	f["ts"] = ts.Truncate(time.Millisecond).Format(timeFormatMillis)
	f["level"] = levelName(r.Level)
	if h.cfg.format == formatJSON {
		f["ts_unix_nano"] = ts.UnixNano()
	}

	for _, a := range h.attrs {
		f.add(h.prefix, a)
	}
	r.Attrs(func(a slog.Attr) bool {
		f.add(h.prefix, a)
		return true
	})
	f.fromContext(ctx)

	if rid, ok := f["rid"].(string); ok {
		if compact := CompactRID(rid); compact != rid {
			if h.cfg.format == formatJSON {
				f.setDefault("rid_full", rid)
			}
			f["rid"] = compact
		}
	}
	if ev, _ := f["event"].(string); ev == "" {
		f["event"] = cmp.Or(r.Message, "unknown")
	}
	if c, _ := f["component"].(string); c == "" {
		f["component"] = "app"
	}
	if s, ok := f["status"].(string); ok {
		f["status"] = normalizeStatus(s)
	}
	f.prune()

	line, err := h.render(f)
	if err != nil {
		return err
	}
	return h.cfg.out.Write(append(line, '\n'), r.Level >= slog.LevelError)
}

func (h *structuredHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	clone := *h
	clone.attrs = append(append([]slog.Attr(nil), h.attrs...), attrs...)
	return &clone
}

func (h *structuredHandler) WithGroup(name string) slog.Handler {
	if name == "" {
		return h
	}
	clone := *h
	clone.prefix = joinKey(h.prefix, name)
	return &clone
}

func (h *structuredHandler) render(f fields) ([]byte, error) {
	keys := f.ordered(h.cfg.keyOrder)
	var b strings.Builder
	if h.cfg.format == formatJSON {
		b.WriteByte('{')
		for i, k := range keys {
			data, err := json.Marshal(f[k])
			if err != nil {
				return nil, fmt.Errorf("logger: encode %s: %w", k, err)
			}
			if i > 0 {
				b.WriteByte(',')
			}
			b.WriteString(strconv.Quote(k))
			b.WriteByte(':')
			b.Write(data)
		}
		b.WriteByte('}')
		return []byte(b.String()), nil
	}
	for i, k := range keys {
		if i > 0 {
			b.WriteByte(' ')
		}
		b.WriteString(k)
		b.WriteByte('=')
		b.WriteString(kvValue(f[k]))
	}
	return []byte(b.String()), nil
}

// fields is the flattened record being rendered.
type fields map[string]any

func (f fields) setDefault(key string, v any) {
	if _, ok := f[key]; !ok {
		f[key] = v
	}
}

func (f fields) add(prefix string, a slog.Attr) {
	key := joinKey(prefix, a.Key)
	v := a.Value.Resolve()
	if v.Kind() == slog.KindGroup {
		for _, child := range v.Group() {
			f.add(key, child)
		}
		return
	}
	if key == "" {
		return
	}
	if k, val, ok := normalizeValue(key, v); ok {
		f[k] = val
	}
}

func (f fields) fromContext(ctx context.Context) {
	if ctx == nil {
		return
	}
	if rid := RIDFrom(ctx); rid != "" {
		f.setDefault("rid", rid)
	}
	if id := MessageIDFrom(ctx); id != 0 {
		f.setDefault("message_id", id)
	}
	if id := UserIDFrom(ctx); id != 0 {
		f.setDefault("user_id", id)
	}
	if id := ChatIDFrom(ctx); id != 0 {
		f.setDefault("chat_id", id)
	}
	if name := HandlerFrom(ctx); name != "" {
		f.setDefault("handler", name)
	}
}

// prune drops empty strings and nils.
func (f fields) prune() {
	for k, v := range f {
		if v == nil {
			delete(f, k)
		} else if s, ok := v.(string); ok && s == "" {
			delete(f, k)
		}
	}
}

func (f fields) ordered(order []string) []string {
	keys := make([]string, 0, len(f))
	placed := make(map[string]bool, len(order))
	for _, k := range order {
		if _, ok := f[k]; ok && !placed[k] {
			keys = append(keys, k)
			placed[k] = true
		}
	}
	rest := len(keys)
	for k := range f {
		if !placed[k] {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys[rest:])
	return keys
}

func joinKey(prefix, key string) string {
	switch {
	case prefix == "":
		return key
	case key == "":
		return prefix
	default:
		return prefix + "." + key
	}
}

// durationKey renames duration attributes so the unit is in the key.
func durationKey(key string) string {
	switch {
	case key == "duration":
		return "duration_ms"
	case strings.HasSuffix(key, "_ms"):
		return key
	default:
		return key + "_ms"
	}
}

func normalizeValue(key string, v slog.Value) (string, any, bool) {
	switch v.Kind() {
	case slog.KindString:
		return key, strings.TrimSpace(v.String()), true
	case slog.KindBool:
		return key, v.Bool(), true
	case slog.KindInt64:
		return key, v.Int64(), true
	case slog.KindUint64:
		if u := v.Uint64(); u <= math.MaxInt64 {
			return key, int64(u), true
		}
		return key, v.Uint64(), true
	case slog.KindFloat64:
		return key, v.Float64(), true
	case slog.KindDuration:
		return durationKey(key), RoundMS(v.Duration()).Milliseconds(), true
	case slog.KindTime:
		return key, v.Time().UTC().Format(time.RFC3339Nano), true
	}
	switch x := v.Any().(type) {
	case nil:
		return key, nil, false
	case error:
		return key, x.Error(), true
	case time.Duration:
		return durationKey(key), RoundMS(x).Milliseconds(), true
	case fmt.Stringer:
		return key, x.String(), true
	default:
		return key, fmt.Sprint(x), true
	}
}

func kvValue(v any) string {
	var s string
	switch x := v.(type) {
	case string:
		s = x
	case bool:
		return strconv.FormatBool(x)
	case int64:
		return strconv.FormatInt(x, 10)
	default:
		s = fmt.Sprint(x)
	}
	if strings.ContainsFunc(s, needsQuote) {
		return strconv.Quote(s)
	}
	return s
}

func needsQuote(r rune) bool {
	return r <= ' ' || r == '=' || r == '"'
}
