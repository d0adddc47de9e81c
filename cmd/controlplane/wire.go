package main

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/stackl-io/stackl-core/internal/api"
	"github.com/stackl-io/stackl-core/internal/capability"
	"github.com/stackl-io/stackl-core/internal/channel"
	"github.com/stackl-io/stackl-core/internal/config"
	"github.com/stackl-io/stackl-core/internal/dispatch"
	"github.com/stackl-io/stackl-core/internal/document"
	"github.com/stackl-io/stackl-core/internal/metrics"
	"github.com/stackl-io/stackl-core/internal/stackmanager"
	"github.com/stackl-io/stackl-core/internal/statusreducer"
)

// deps holds every wired subsystem for a single control plane process:
// the document store, message channel, Stack Manager, Job Dispatcher, and
// HTTP API, run together so a single binary can serve the full create/
// update/delete/status surface.
type deps struct {
	store      document.Store
	ch         channel.Channel
	manager    *stackmanager.Manager
	dispatcher *dispatch.Dispatcher
	reducer    *statusreducer.Reducer
	metrics    *metrics.Metrics
	server     *api.Server
	logger     *slog.Logger
}

func wire(ctx context.Context, cfg config.Config, logger *slog.Logger) (*deps, error) {
	store, err := newStore(ctx, cfg.Store)
	if err != nil {
		return nil, fmt.Errorf("creating document store: %w", err)
	}

	ch, err := newChannel(cfg.Channel)
	if err != nil {
		store.Close()
		return nil, fmt.Errorf("creating message channel: %w", err)
	}

	resolver := capability.New(store, capability.DefaultRules())
	disp := dispatch.New(store, ch, cfg.Dispatcher.InactivityWindow, cfg.Dispatcher.TickInterval, logger)
	manager := stackmanager.New(store, resolver, disp)
	reducer := statusreducer.New(store)
	m := metrics.New()

	addr := cfg.HTTPListenAddr
	if addr == "" {
		addr = ":8080"
	}
	server := api.NewServer(addr, logger, manager, disp, m)

	return &deps{
		store:      store,
		ch:         ch,
		manager:    manager,
		dispatcher: disp,
		reducer:    reducer,
		metrics:    m,
		server:     server,
		logger:     logger,
	}, nil
}

// Run starts the HTTP server and the inbound status loop, blocking until
// ctx is cancelled.
func (d *deps) Run(ctx context.Context) error {
	if err := d.server.Start(); err != nil {
		return fmt.Errorf("starting API server: %w", err)
	}
	d.logger.Info("control plane started")

	err := d.dispatcher.RunStatusLoop(ctx, d.reducer)
	if err != nil && err != context.Canceled {
		d.logger.Error("status loop exited with error", "error", err)
	}
	return nil
}

// Close releases every subsystem's resources, logging rather than
// propagating individual shutdown failures since this only runs once, on
// the way out.
func (d *deps) Close() {
	shutdownCtx, cancel := context.WithTimeout(context.Background(), serverShutdownTimeout)
	defer cancel()
	if err := d.server.Stop(shutdownCtx); err != nil {
		d.logger.Warn("API server shutdown error", "error", err)
	}
	d.dispatcher.Stop()
	if err := d.ch.Close(); err != nil {
		d.logger.Warn("channel close error", "error", err)
	}
	if err := d.store.Close(); err != nil {
		d.logger.Warn("store close error", "error", err)
	}
}

const serverShutdownTimeout = 5 * time.Second
