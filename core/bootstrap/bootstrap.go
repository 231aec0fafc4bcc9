package bootstrap

import (
	"fmt"
	"time"

	"github.com/m3rciful/bitrixbot/core/bitrix/client"
	"github.com/m3rciful/bitrixbot/core/bitrix/router"
	"github.com/m3rciful/bitrixbot/core/bitrix/sender"
	"github.com/m3rciful/bitrixbot/core/bitrix/state"
	coreconfig "github.com/m3rciful/bitrixbot/core/config"
	"github.com/m3rciful/bitrixbot/core/logger"
)

// Options control the generic bootstrap pipeline shared between bots.
type Options struct {
	Config *coreconfig.Config

	LoggerInit func(*coreconfig.Config) error
	// Transport replaces the HTTP transport of the REST client.
	Transport client.Transport
}

// Result exposes infrastructure initialized by the bootstrap pipeline.
type Result struct {
	Config     *coreconfig.Config
	Client     *client.Client
	Queue      *sender.Queue
	Store      *state.Store
	Dispatcher *router.Dispatcher
}

// Run initializes the logger and builds the REST client, the outbound
// queue, the FSM store and the dispatcher from configuration.
func Run(opts Options) (*Result, error) {
	if opts.Config == nil {
		return nil, fmt.Errorf("bootstrap: nil config provided")
	}
	cfg := opts.Config

	loggerInit := opts.LoggerInit
	if loggerInit == nil {
		loggerInit = logger.InitLogger
	}
	if err := loggerInit(cfg); err != nil {
		return nil, fmt.Errorf("bootstrap: logger init failed: %w", err)
	}

	ttl, err := cfg.FSMTTL()
	if err != nil {
		return nil, fmt.Errorf("bootstrap: %w", err)
	}
	store := state.NewStore(state.WithTTL(ttl))

	dispatcherOpts := []router.Option{router.WithStore(store)}
	if !cfg.SerializeChats() {
		dispatcherOpts = append(dispatcherOpts, router.WithoutChatLock())
	}
	dispatcher := router.NewDispatcher(dispatcherOpts...)

	queue := sender.NewQueue(sender.Options{
		QueueSize:    cfg.Sender.QueueSize,
		Workers:      cfg.Sender.Workers,
		MaxRetries:   cfg.Sender.MaxRetries,
		RetryBackoff: time.Duration(cfg.Sender.RetryBackoffMS) * time.Millisecond,
		MaxDuration:  cfg.RequestTimeout() * time.Duration(cfg.Sender.MaxRetries+1),
	})

	transport := opts.Transport
	if transport == nil {
		transport = client.NewHTTPTransport(client.BuildHTTPClient(cfg.RequestTimeout()))
	}
	c := client.New(client.Config{
		Endpoint: cfg.Bitrix.Endpoint,
		Token:    cfg.Bitrix.Token,
		BotID:    cfg.Bitrix.BotID,
		EventURL: cfg.Webhook.URL,
	}, client.WithTransport(transport), client.WithQueue(queue))

	return &Result{
		Config:     cfg,
		Client:     c,
		Queue:      queue,
		Store:      store,
		Dispatcher: dispatcher,
	}, nil
}
