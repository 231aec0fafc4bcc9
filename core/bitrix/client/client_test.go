package client

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync"
	"testing"
	"time"

	apperrors "github.com/goliatone/go-errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/m3rciful/bitrixbot/core/bitrix/attach"
	"github.com/m3rciful/bitrixbot/core/bitrix/commands"
	"github.com/m3rciful/bitrixbot/core/bitrix/event"
	"github.com/m3rciful/bitrixbot/core/bitrix/keyboard"
	"github.com/m3rciful/bitrixbot/core/bitrix/netutil"
	"github.com/m3rciful/bitrixbot/core/bitrix/sender"
)

type call struct {
	url  string
	form url.Values
}

type fakeTransport struct {
	mu    sync.Mutex
	calls []call
	reply func(url string) ([]byte, error)
}

func (f *fakeTransport) Post(_ context.Context, u string, form url.Values) ([]byte, error) {
	f.mu.Lock()
	f.calls = append(f.calls, call{url: u, form: form})
	f.mu.Unlock()
	if f.reply == nil {
		return []byte(`{"result": 1}`), nil
	}
	return f.reply(u)
}

func (f *fakeTransport) last(t *testing.T) call {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()
	require.NotEmpty(t, f.calls)
	return f.calls[len(f.calls)-1]
}

func (f *fakeTransport) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

func newTestClient(ft *fakeTransport, opts ...Option) *Client {
	opts = append([]Option{WithTransport(ft)}, opts...)
	return New(Config{
		Endpoint: "https://portal.example.com/rest/1/secret",
		Token:    "tok",
		BotID:    15,
		EventURL: "https://bot.example.com/events",
	}, opts...)
}

func commandEvent() event.Event {
	return event.NewCommand(event.Record{
		event.FieldEvent:                   event.EventCommandAdd,
		event.FieldDialogID:                "chat9",
		event.FieldMessageID:               "501",
		"data[COMMAND][0][COMMAND]":        "move",
		"data[COMMAND][0][COMMAND_ID]":     "77",
		"data[COMMAND][0][COMMAND_PARAMS]": "3",
	})
}

func TestFlattenNestsKeys(t *testing.T) {
	flat := Flatten(map[string]any{
		"A": map[string]any{"B": 1, "C": []any{2, "x"}},
		"D": []map[string]any{{"E": true}},
		"F": map[string]any{},
		"G": nil,
	})
	assert.Equal(t, map[string]any{
		"A[B]":    1,
		"A[C][0]": 2,
		"A[C][1]": "x",
		"D[0][E]": true,
		"G":       nil,
	}, flat)
}

func TestFlattenExpandsParamers(t *testing.T) {
	kb := keyboard.NewBuilder().
		Button("1", keyboard.Command("move", "1")).
		Newline().
		Markup()
	flat := Flatten(map[string]any{"KEYBOARD": kb})

	assert.Equal(t, "1", flat["KEYBOARD[0][TEXT]"])
	assert.Equal(t, "move", flat["KEYBOARD[0][COMMAND]"])
	assert.Equal(t, "1", flat["KEYBOARD[0][COMMAND_PARAMS]"])

	var nilAttach *attach.Builder
	assert.NotPanics(t, func() { Flatten(map[string]any{"X": nilAttach}) })
}

func TestEncodeScalars(t *testing.T) {
	form := Encode(map[string]any{
		"yes":  true,
		"no":   false,
		"nil":  nil,
		"int":  int64(-3),
		"flt":  1.5,
		"text": "hi",
	})
	assert.Equal(t, "Y", form.Get("yes"))
	assert.Equal(t, "N", form.Get("no"))
	assert.Equal(t, "", form.Get("nil"))
	assert.True(t, form.Has("nil"))
	assert.Equal(t, "-3", form.Get("int"))
	assert.Equal(t, "1.5", form.Get("flt"))
	assert.Equal(t, "hi", form.Get("text"))
}

func TestCallDefaultsClientID(t *testing.T) {
	ft := &fakeTransport{}
	c := newTestClient(ft)

	resp, err := c.Call(context.Background(), "imbot.bot.list", nil)
	require.NoError(t, err)
	assert.Equal(t, int64(1), resp.ResultInt())

	got := ft.last(t)
	assert.Equal(t, "https://portal.example.com/rest/1/secret/imbot.bot.list", got.url)
	assert.Equal(t, "tok", got.form.Get("CLIENT_ID"))

	_, err = c.Call(context.Background(), "imbot.bot.list", map[string]any{"CLIENT_ID": "other"})
	require.NoError(t, err)
	assert.Equal(t, "other", ft.last(t).form.Get("CLIENT_ID"))
}

func TestCallErrors(t *testing.T) {
	ctx := context.Background()

	t.Run("api error", func(t *testing.T) {
		ft := &fakeTransport{reply: func(string) ([]byte, error) {
			return []byte(`{"error":"ACCESS_DENIED","error_description":"nope"}`), &netutil.StatusError{Code: 401}
		}}
		_, err := newTestClient(ft).Call(ctx, "imbot.message.add", nil)
		require.Error(t, err)
		assert.Equal(t, ErrCodeAPI, ErrorCode(err))
		assert.Equal(t, "ACCESS_DENIED", APIErrorCode(err))

		var ge *apperrors.Error
		require.True(t, errors.As(err, &ge))
		assert.Equal(t, 401, ge.Metadata["http_code"])
		assert.Equal(t, "nope", ge.Metadata["error_description"])
	})

	t.Run("api error with 200", func(t *testing.T) {
		ft := &fakeTransport{reply: func(string) ([]byte, error) {
			return []byte(`{"error":"BOT_ID_ERROR"}`), nil
		}}
		_, err := newTestClient(ft).Call(ctx, "imbot.message.add", nil)
		assert.Equal(t, "BOT_ID_ERROR", APIErrorCode(err))
	})

	t.Run("transport", func(t *testing.T) {
		ft := &fakeTransport{reply: func(string) ([]byte, error) {
			return nil, errors.New("connection refused")
		}}
		_, err := newTestClient(ft).Call(ctx, "imbot.message.add", nil)
		assert.Equal(t, ErrCodeTransport, ErrorCode(err))
		assert.Empty(t, APIErrorCode(err))
	})

	t.Run("non-json error page", func(t *testing.T) {
		ft := &fakeTransport{reply: func(string) ([]byte, error) {
			return []byte("<html>bad gateway</html>"), &netutil.StatusError{Code: 502}
		}}
		_, err := newTestClient(ft).Call(ctx, "imbot.message.add", nil)
		assert.Equal(t, ErrCodeTransport, ErrorCode(err))
	})

	t.Run("bad response", func(t *testing.T) {
		for _, body := range []string{"", "not json", "[1,2]", "42"} {
			ft := &fakeTransport{reply: func(string) ([]byte, error) { return []byte(body), nil }}
			_, err := newTestClient(ft).Call(ctx, "imbot.message.add", nil)
			assert.Equal(t, ErrCodeBadResponse, ErrorCode(err), body)
		}
	})
}

func TestSendMessage(t *testing.T) {
	ft := &fakeTransport{reply: func(string) ([]byte, error) { return []byte(`{"result": 900}`), nil }}
	c := newTestClient(ft)

	id, err := c.SendMessage(context.Background(), Message{DialogID: DialogID(-9), Text: "hi"})
	require.NoError(t, err)
	assert.Equal(t, int64(900), id)

	got := ft.last(t)
	assert.Contains(t, got.url, MethodMessageAdd)
	assert.Equal(t, "15", got.form.Get("BOT_ID"))
	assert.Equal(t, "chat9", got.form.Get("DIALOG_ID"))
	assert.Equal(t, "hi", got.form.Get("MESSAGE"))
	assert.True(t, got.form.Has("ATTACH"))
	assert.Equal(t, "", got.form.Get("ATTACH"))
	assert.False(t, got.form.Has("KEYBOARD"))

	kb := keyboard.NewBuilder().Button("ok", keyboard.Command("ok", "1")).Markup()
	_, err = c.SendMessage(context.Background(), Message{DialogID: "5", Text: "pick", Keyboard: kb})
	require.NoError(t, err)
	assert.Equal(t, "ok", ft.last(t).form.Get("KEYBOARD[0][TEXT]"))

	_, err = c.SendMessage(context.Background(), Message{Text: "nowhere"})
	assert.Equal(t, ErrCodeInvalidRequest, ErrorCode(err))
}

func TestUpdateMessageDefaultsFromEvent(t *testing.T) {
	ft := &fakeTransport{}
	c := newTestClient(ft)

	require.NoError(t, c.UpdateMessage(context.Background(), Update{Event: commandEvent(), Text: "moved"}))
	got := ft.last(t)
	assert.Contains(t, got.url, MethodMessageUpdate)
	assert.Equal(t, "chat9", got.form.Get("DIALOG_ID"))
	assert.Equal(t, "501", got.form.Get("MESSAGE_ID"))
	assert.Equal(t, "moved", got.form.Get("MESSAGE"))
	assert.Equal(t, "", got.form.Get("ATTACH"))
	assert.True(t, got.form.Has("KEYBOARD"))
	assert.Equal(t, "", got.form.Get("KEYBOARD"))

	require.NoError(t, c.UpdateMessage(context.Background(), Update{
		Event:     commandEvent(),
		DialogID:  "7",
		MessageID: 12,
		Attach:    attach.NewBuilder().Message("note").Build(),
	}))
	got = ft.last(t)
	assert.Equal(t, "7", got.form.Get("DIALOG_ID"))
	assert.Equal(t, "12", got.form.Get("MESSAGE_ID"))
	assert.Equal(t, "note", got.form.Get("ATTACH[0][MESSAGE]"))

	err := c.UpdateMessage(context.Background(), Update{Text: "orphan"})
	assert.Equal(t, ErrCodeInvalidRequest, ErrorCode(err))
}

func TestDeleteMessage(t *testing.T) {
	ft := &fakeTransport{}
	c := newTestClient(ft)

	require.NoError(t, c.DeleteMessage(context.Background(), 44, true))
	got := ft.last(t)
	assert.Contains(t, got.url, MethodMessageDelete)
	assert.Equal(t, "44", got.form.Get("MESSAGE_ID"))
	assert.Equal(t, "Y", got.form.Get("COMPLETE"))

	assert.Error(t, c.DeleteMessage(context.Background(), 0, false))
}

func TestAnswerCommand(t *testing.T) {
	ft := &fakeTransport{}
	c := newTestClient(ft)

	_, err := c.AnswerCommand(context.Background(), commandEvent(), Answer{Text: "done"})
	require.NoError(t, err)
	got := ft.last(t)
	assert.Contains(t, got.url, MethodCommandAnswer)
	assert.Equal(t, "move", got.form.Get("COMMAND"))
	assert.Equal(t, "77", got.form.Get("COMMAND_ID"))
	assert.Equal(t, "501", got.form.Get("MESSAGE_ID"))
	assert.Equal(t, "done", got.form.Get("MESSAGE"))
	assert.False(t, got.form.Has("ATTACH"))

	msg := event.NewMessage(event.Record{event.FieldEvent: event.EventMessageAdd})
	_, err = c.AnswerCommand(context.Background(), msg, Answer{Text: "x"})
	assert.Equal(t, ErrCodeInvalidRequest, ErrorCode(err))
}

func TestRegisterCommands(t *testing.T) {
	ft := &fakeTransport{reply: func(string) ([]byte, error) { return []byte(`{"result": 31}`), nil }}
	c := newTestClient(ft)

	ids, err := c.RegisterCommands(context.Background(), []commands.Command{
		{Command: "/move", Title: "Move", Params: "tile"},
		{Command: "", Title: "broken", Params: "x"},
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, commands.ErrInvalidCommand)
	assert.Equal(t, map[string]int64{"move": 31}, ids)
	assert.Equal(t, 1, ft.count())

	got := ft.last(t)
	assert.Contains(t, got.url, MethodCommandRegister)
	assert.Equal(t, "move", got.form.Get("COMMAND"))
	assert.Equal(t, "Y", got.form.Get("COMMON"))
	assert.Equal(t, "Y", got.form.Get("HIDDEN"))
	assert.Equal(t, "N", got.form.Get("EXTRANET_SUPPORT"))
	assert.Equal(t, "tok", got.form.Get("CLIENT_ID"))
	assert.Equal(t, "en", got.form.Get("LANG[0][LANGUAGE_ID]"))
	assert.Equal(t, "Move", got.form.Get("LANG[0][TITLE]"))
	assert.Equal(t, "tile", got.form.Get("LANG[0][PARAMS]"))
	assert.Equal(t, "https://bot.example.com/events", got.form.Get("EVENT_COMMAND_ADD"))
}

func TestSetWebhook(t *testing.T) {
	ft := &fakeTransport{}
	c := newTestClient(ft)

	require.NoError(t, c.SetWebhook(context.Background(), " https://bot.example.com/events "))
	got := ft.last(t)
	assert.Contains(t, got.url, MethodRegister)
	assert.Equal(t, "https://bot.example.com/events", got.form.Get("EVENT_HANDLER"))

	assert.Error(t, c.SetWebhook(context.Background(), ""))
}

func TestCallAsyncUsesQueue(t *testing.T) {
	ft := &fakeTransport{}
	q := sender.NewQueue(sender.Options{QueueSize: 4, Workers: 1})
	c := newTestClient(ft, WithQueue(q))

	params := map[string]any{"MESSAGE": "later"}
	require.NoError(t, c.CallAsync(context.Background(), MethodMessageAdd, params))
	params["MESSAGE"] = "mutated"

	require.Eventually(t, func() bool { return q.DoneCount() == 1 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, "later", ft.last(t).form.Get("MESSAGE"))

	q.Close()
	require.NoError(t, c.CallAsync(context.Background(), MethodMessageAdd, params))
	assert.Equal(t, 2, ft.count(), "closed queue falls back to a direct call")
}

func TestUpdateMessageAsync(t *testing.T) {
	ft := &fakeTransport{}
	q := sender.NewQueue(sender.Options{QueueSize: 4, Workers: 1})
	defer q.Close()
	c := newTestClient(ft, WithQueue(q))

	require.NoError(t, c.UpdateMessageAsync(context.Background(), Update{Event: commandEvent(), Text: "queued"}))
	require.Eventually(t, func() bool { return q.DoneCount() == 1 }, time.Second, 5*time.Millisecond)
	got := ft.last(t)
	assert.Equal(t, "https://portal.example.com/rest/1/secret/"+MethodMessageUpdate, got.url)
	assert.Equal(t, "queued", got.form.Get("MESSAGE"))
	assert.Equal(t, "501", got.form.Get("MESSAGE_ID"))

	err := c.UpdateMessageAsync(context.Background(), Update{Text: "no id"})
	assert.Equal(t, ErrCodeInvalidRequest, ErrorCode(err))
	assert.Equal(t, 1, ft.count(), "invalid updates are never queued")
}

func TestHTTPTransport(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "application/x-www-form-urlencoded", r.Header.Get("Content-Type"))
		body, _ := io.ReadAll(r.Body)
		form, _ := url.ParseQuery(string(body))
		if form.Get("fail") == "Y" {
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = w.Write([]byte(`{"error":"QUERY_LIMIT_EXCEEDED"}`))
			return
		}
		_, _ = w.Write([]byte(`{"result": true}`))
	}))
	defer srv.Close()

	tr := NewHTTPTransport(srv.Client())
	body, err := tr.Post(context.Background(), srv.URL, url.Values{"x": {"1"}})
	require.NoError(t, err)
	assert.JSONEq(t, `{"result": true}`, string(body))

	body, err = tr.Post(context.Background(), srv.URL, url.Values{"fail": {"Y"}})
	require.Error(t, err)
	assert.Equal(t, http.StatusServiceUnavailable, netutil.StatusCode(err))
	assert.Contains(t, string(body), "QUERY_LIMIT_EXCEEDED")

	c := New(Config{Endpoint: srv.URL, Token: "t", BotID: 1}, WithTransport(tr))
	resp, err := c.Call(context.Background(), "", map[string]any{"fail": true})
	require.Error(t, err)
	assert.Nil(t, resp)
	assert.Equal(t, "QUERY_LIMIT_EXCEEDED", APIErrorCode(err))
}
