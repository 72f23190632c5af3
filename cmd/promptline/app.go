package main

import (
	"context"
	"log/slog"

	"github.com/user/promptline/internal/config"
	"github.com/user/promptline/internal/configstore"
	"github.com/user/promptline/internal/delivery"
	"github.com/user/promptline/internal/metrics"
	"github.com/user/promptline/internal/render"
	"github.com/user/promptline/internal/session"
	"github.com/user/promptline/internal/slack"
	"github.com/user/promptline/internal/telegram"
	"github.com/user/promptline/internal/types"
	"github.com/user/promptline/pkg/api"
)

const maxConcurrentDeliveries = 2

// app holds the components shared by session run and serve.
type app struct {
	cfg      *config.Config
	client   *api.Client
	store    *configstore.Store
	metrics  *metrics.Metrics
	renderer *render.Renderer
	registry *delivery.Registry
	queue    *delivery.Queue
	telegram *telegram.Adapter
	ctrl     *session.Controller
}

type appOptions struct {
	sink          render.Sink
	notifier      types.Notifier
	onStateChange func(session.State)
	// control enables Telegram commands driving the controller.
	control bool
	hooks   []render.Hook
}

// newApp wires the controller, renderer, forwarding and metrics. Records are
// loaded from the backend; a load failure is logged and the defaults kept.
func newApp(ctx context.Context, cfg *config.Config, opts appOptions) (*app, error) {
	a := &app{
		cfg:      cfg,
		client:   newClient(cfg),
		store:    configstore.New(),
		registry: delivery.NewRegistry(),
	}
	if cfg.Metrics.Listen != "" {
		a.metrics = metrics.New()
	}

	if err := configstore.Load(ctx, a.client, a.store); err != nil {
		slog.Warn("using defaults for records that failed to load", "error", err)
	}

	hooks := append([]render.Hook{render.LogHook(), a.metrics.RenderHook()}, opts.hooks...)
	a.renderer = render.New(opts.sink, hooks...)

	a.ctrl = session.New(session.Options{
		Backend:       a.client,
		Store:         a.store,
		Renderer:      a.renderer,
		Notifier:      opts.notifier,
		Metrics:       a.metrics,
		PollInterval:  cfg.PollInterval(),
		PollTimeout:   cfg.BackendTimeout(),
		OnStateChange: opts.onStateChange,
	})

	if cfg.Telegram.Token != "" && cfg.Telegram.ChatID != 0 {
		var control telegram.Control
		if opts.control {
			control = a.ctrl
		}
		adapter, err := telegram.New(cfg.Telegram.Token, cfg.Telegram.ChatID, control)
		if err != nil {
			return nil, err
		}
		a.telegram = adapter
		a.registry.Register("telegram", adapter)
	}
	if cfg.Slack.WebhookURL != "" {
		a.registry.Register("slack", slack.NewWebhookSender(cfg.Slack.WebhookURL, nil))
	} else if cfg.Slack.BotToken != "" {
		a.registry.Register("slack", slack.NewBotSender(cfg.Slack.BotToken, cfg.Slack.Channel))
	}

	if targets := a.registry.Targets(); len(targets) > 0 {
		a.queue = delivery.NewQueue(a.registry, maxConcurrentDeliveries, nil, a.metrics)
		// Outlives ctx so shutdown can drain pending deliveries.
		a.queue.Start(context.Background())
		a.renderer.AddHook(delivery.ForwardHook(a.queue))
		slog.Info("forwarding prompts", "targets", targets)
	}
	return a, nil
}

// serveMetrics exposes /metrics in the background when configured.
func (a *app) serveMetrics(ctx context.Context) {
	if a.metrics == nil {
		return
	}
	go func() {
		if err := a.metrics.Serve(ctx, a.cfg.Metrics.Listen); err != nil {
			slog.Error("metrics server error", "error", err)
		}
	}()
}

// shutdown stops an active session and drains pending deliveries.
func (a *app) shutdown() {
	if a.ctrl.Status().State != session.Idle {
		ctx, cancel := context.WithTimeout(context.Background(), a.cfg.BackendTimeout())
		if err := a.ctrl.Stop(ctx); err != nil {
			slog.Error("stop session on shutdown failed", "error", err)
		}
		cancel()
	}
	if a.queue != nil {
		a.queue.WaitIdle(a.cfg.BackendTimeout())
		a.queue.Stop()
	}
}
