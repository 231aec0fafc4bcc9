package webhook

import (
	"context"
	"errors"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/m3rciful/bitrixbot/core/bitrix/event"
	"github.com/m3rciful/bitrixbot/core/bitrix/filter"
	"github.com/m3rciful/bitrixbot/core/bitrix/router"
	"github.com/m3rciful/bitrixbot/core/bitrix/state"
	"github.com/m3rciful/bitrixbot/core/logger"
)

type recorder struct {
	mu   sync.Mutex
	recs []event.Record
	rids []string
	err  error
}

func (r *recorder) ProcessUpdate(ctx context.Context, rec event.Record) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.recs = append(r.recs, rec)
	r.rids = append(r.rids, logger.RIDFrom(ctx))
	return r.err == nil, r.err
}

func (r *recorder) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.recs)
}

func messageForm(dialog, text string) url.Values {
	return url.Values{
		event.FieldEvent:     {event.EventMessageAdd},
		event.FieldDialogID:  {dialog},
		event.FieldMessage:   {text},
		event.FieldMessageID: {"10"},
		event.FieldUserID:    {"3"},
	}
}

func post(t *testing.T, h http.Handler, path string, form url.Values) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	return rr
}

func TestListenerDeliversRecord(t *testing.T) {
	rec := &recorder{}
	l := NewListener(rec, Options{Path: "events"})
	assert.Equal(t, "/events", l.Path())

	rr := post(t, l.Handler(), "/events", messageForm("42", "hi"))
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "OK", rr.Body.String())

	require.Equal(t, 1, rec.count())
	assert.Equal(t, "hi", rec.recs[0].Get(event.FieldMessage))
	assert.NotEmpty(t, rec.rids[0])
}

func TestListenerRejectsNonPost(t *testing.T) {
	rec := &recorder{}
	l := NewListener(rec, Options{})

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rr := httptest.NewRecorder()
	l.Handler().ServeHTTP(rr, req)

	assert.Equal(t, http.StatusMethodNotAllowed, rr.Code)
	assert.Equal(t, http.MethodPost, rr.Header().Get("Allow"))
	assert.Zero(t, rec.count())
}

func TestListenerAnswersOKOnHandlerError(t *testing.T) {
	rec := &recorder{err: errors.New("boom")}
	l := NewListener(rec, Options{})

	rr := post(t, l, "/", messageForm("42", "hi"))
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, 1, rec.count())
}

func TestListenerApplicationToken(t *testing.T) {
	rec := &recorder{}
	l := NewListener(rec, Options{ApplicationToken: "secret"})

	rr := post(t, l, "/", messageForm("42", "hi"))
	assert.Equal(t, http.StatusForbidden, rr.Code)
	assert.Zero(t, rec.count())

	form := messageForm("42", "hi")
	form.Set("auth[application_token]", "secret")
	rr = post(t, l, "/", form)
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, 1, rec.count())
}

func TestListenerRateLimitsPerChat(t *testing.T) {
	rec := &recorder{}
	l := NewListener(rec, Options{RateLimit: RateLimitOptions{Interval: time.Hour}})

	post(t, l, "/", messageForm("42", "one"))
	post(t, l, "/", messageForm("42", "two"))
	post(t, l, "/", messageForm("chat42", "other chat"))
	assert.Equal(t, 2, rec.count(), "second post of chat 42 is dropped")

	excluded := NewListener(rec, Options{RateLimit: RateLimitOptions{
		Interval: time.Hour,
		Exclude:  []string{"message"},
	}})
	post(t, excluded, "/", messageForm("7", "a"))
	post(t, excluded, "/", messageForm("7", "b"))
	assert.Equal(t, 4, rec.count())
}

func TestRateLimiterWindow(t *testing.T) {
	now := time.Unix(0, 0)
	l := newRateLimiter(RateLimitOptions{Interval: time.Second})
	l.now = func() time.Time { return now }
	ev := event.NewMessage(event.Record{event.FieldDialogID: "5"})
	ctx := context.Background()

	assert.True(t, l.allow(ctx, ev))
	assert.False(t, l.allow(ctx, ev))
	now = now.Add(time.Second)
	assert.True(t, l.allow(ctx, ev))

	assert.True(t, l.allow(ctx, event.NewMessage(event.Record{})), "events without a chat are never limited")
	assert.Nil(t, newRateLimiter(RateLimitOptions{}))
	var disabled *rateLimiter
	assert.True(t, disabled.allow(ctx, ev))
}

func TestListenerWithDispatcher(t *testing.T) {
	var got []string
	var mu sync.Mutex
	r := router.New("echo").Message("ping", func(_ context.Context, ev event.Event, fsm *state.Context) error {
		mu.Lock()
		defer mu.Unlock()
		got = append(got, ev.Text())
		fsm.Set("last", ev.Text())
		return nil
	}, filter.TextStartsWith("ping"))
	d := router.NewDispatcher().AddRouter(r)
	l := NewListener(d, Options{})

	post(t, l, "/", messageForm("42", "ping 1"))
	post(t, l, "/", messageForm("42", "nope"))

	mu.Lock()
	assert.Equal(t, []string{"ping 1"}, got)
	mu.Unlock()
	last, ok := d.Store().Get(42).Value("last")
	require.True(t, ok)
	assert.Equal(t, "ping 1", last)
}

func TestServeShutsDownOnCancel(t *testing.T) {
	rec := &recorder{}
	l := NewListener(rec, Options{Path: "/hook"})
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- l.Serve(ctx, ln) }()

	resp, err := http.PostForm("http://"+ln.Addr().String()+"/hook", messageForm("42", "hi"))
	require.NoError(t, err)
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	assert.Equal(t, "OK", string(body))
	assert.Equal(t, 1, rec.count())

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("listener did not stop")
	}
}
