package bitrix

import (
	"context"
	"net"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/m3rciful/bitrixbot/core/bitrix/client"
	"github.com/m3rciful/bitrixbot/core/bitrix/commands"
	"github.com/m3rciful/bitrixbot/core/bitrix/event"
	"github.com/m3rciful/bitrixbot/core/bitrix/state"
	"github.com/m3rciful/bitrixbot/core/config"
)

type methodLog struct {
	mu      sync.Mutex
	methods []string
	forms   []url.Values
}

func (m *methodLog) Post(_ context.Context, u string, form url.Values) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.methods = append(m.methods, u[strings.LastIndex(u, "/")+1:])
	m.forms = append(m.forms, form)
	return []byte(`{"result": 1}`), nil
}

func (m *methodLog) snapshot() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.methods...)
}

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg := &config.Config{
		Bitrix:  config.BitrixConfig{Endpoint: "https://portal.example.com/rest/1/x", Token: "tok", BotID: 3},
		Webhook: config.WebhookConfig{Listen: "127.0.0.1", Port: 1, URL: "https://bot.example.com/hook", Path: "/hook"},
	}
	require.NoError(t, config.Normalize(cfg))
	return cfg
}

func TestRunServesEventsUntilCancelled(t *testing.T) {
	cfg := testConfig(t)
	transport := &methodLog{}
	c := client.New(client.Config{
		Endpoint: cfg.Bitrix.Endpoint,
		Token:    cfg.Bitrix.Token,
		BotID:    cfg.Bitrix.BotID,
		EventURL: cfg.Webhook.URL,
	}, client.WithTransport(transport))

	moves := make(chan string, 1)
	reg := NewRegistry()
	reg.Handle(commands.Command{Command: "move", Title: "Move", Params: "tile"},
		func(_ context.Context, ev event.Event, _ *state.Context) error {
			moves <- ev.CommandParams()
			return nil
		})

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	started := make(chan struct{})
	stopped := false
	done := make(chan error, 1)
	go func() {
		done <- Run(ctx, RunOptions{
			Config:   cfg,
			Client:   c,
			Registry: reg,
			Listener: ln,
			OnStart: func(context.Context, Runtime) error {
				close(started)
				return nil
			},
			OnStop: func(context.Context, Runtime) error {
				stopped = true
				return nil
			},
		})
	}()

	select {
	case <-started:
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not start")
	}
	assert.Equal(t, []string{client.MethodCommandRegister, client.MethodRegister}, transport.snapshot())

	resp, err := http.PostForm("http://"+ln.Addr().String()+"/hook", url.Values{
		event.FieldEvent:                   {event.EventCommandAdd},
		event.FieldDialogID:                {"chat5"},
		"data[COMMAND][0][COMMAND]":        {"move"},
		"data[COMMAND][0][COMMAND_PARAMS]": {"12"},
	})
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	select {
	case p := <-moves:
		assert.Equal(t, "12", p)
	case <-time.After(5 * time.Second):
		t.Fatal("command was not dispatched")
	}

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not stop")
	}
	assert.True(t, stopped)
}

func TestRunRejectsMissingDependencies(t *testing.T) {
	assert.Error(t, Run(context.Background(), RunOptions{}))
	assert.Error(t, Run(context.Background(), RunOptions{Config: testConfig(t)}))
}

func TestRunStopsWhenOnStartFails(t *testing.T) {
	cfg := testConfig(t)
	c := client.New(client.Config{Endpoint: cfg.Bitrix.Endpoint}, client.WithTransport(&methodLog{}))
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	err = Run(context.Background(), RunOptions{
		Config:                     cfg,
		Client:                     c,
		Listener:                   ln,
		DisableWebhookRegistration: true,
		OnStart: func(context.Context, Runtime) error {
			return assert.AnError
		},
	})
	assert.ErrorIs(t, err, assert.AnError)
}

func TestRunEnforcesApplicationToken(t *testing.T) {
	cfg := testConfig(t)
	cfg.Webhook.ApplicationToken = "app-secret"
	c := client.New(client.Config{Endpoint: cfg.Bitrix.Endpoint}, client.WithTransport(&methodLog{}))

	pings := make(chan struct{}, 2)
	reg := NewRegistry()
	reg.Handle(commands.Command{Command: "ping", Title: "Ping", Params: "none"},
		func(context.Context, event.Event, *state.Context) error {
			pings <- struct{}{}
			return nil
		})

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	ctx, cancel := context.WithCancel(context.Background())
	started := make(chan struct{})
	done := make(chan error, 1)
	go func() {
		done <- Run(ctx, RunOptions{
			Config:                     cfg,
			Client:                     c,
			Registry:                   reg,
			Listener:                   ln,
			DisableCommandRegistration: true,
			DisableWebhookRegistration: true,
			OnStart: func(context.Context, Runtime) error {
				close(started)
				return nil
			},
		})
	}()
	<-started

	post := func(token string) int {
		resp, err := http.PostForm("http://"+ln.Addr().String()+"/hook", url.Values{
			event.FieldEvent:            {event.EventCommandAdd},
			event.FieldDialogID:         {"chat5"},
			"data[COMMAND][0][COMMAND]": {"ping"},
			"auth[application_token]":   {token},
		})
		require.NoError(t, err)
		resp.Body.Close()
		return resp.StatusCode
	}

	assert.Equal(t, http.StatusForbidden, post("forged"))
	assert.Empty(t, pings)
	assert.Equal(t, http.StatusOK, post("app-secret"))
	select {
	case <-pings:
	case <-time.After(5 * time.Second):
		t.Fatal("authorised post was not dispatched")
	}

	cancel()
	assert.NoError(t, <-done)
}
