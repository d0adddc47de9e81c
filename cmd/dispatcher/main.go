package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/stackl-io/stackl-core/internal/channel"
	"github.com/stackl-io/stackl-core/internal/config"
	"github.com/stackl-io/stackl-core/internal/dispatch"
	"github.com/stackl-io/stackl-core/internal/document"
	"github.com/stackl-io/stackl-core/internal/statusreducer"
	"github.com/stackl-io/stackl-core/internal/version"
)

// cmd/dispatcher runs the Job Dispatcher's inbound status loop on its own,
// against the same document store and message channel a cmd/controlplane
// process uses, so status processing can be scaled independently of the
// HTTP surface. This process emits no jobs, so its inactivity watchdog
// never has a job to watch.
func main() {
	configPath := flag.String("config", "/etc/stackl/dispatcher.yaml", "path to dispatcher config file")
	showVersion := flag.Bool("version", false, "print version and exit")
	flag.Parse()

	if *showVersion {
		fmt.Println("stackl-dispatcher", version.String())
		return
	}

	if err := run(*configPath); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run(configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: logLevel(cfg.LogLevel),
	}))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		logger.Info("received signal, shutting down", "signal", sig)
		cancel()
	}()

	store, err := newStore(ctx, cfg.Store)
	if err != nil {
		return fmt.Errorf("creating document store: %w", err)
	}
	defer store.Close()

	ch, err := newChannel(cfg.Channel)
	if err != nil {
		return fmt.Errorf("creating message channel: %w", err)
	}
	defer ch.Close()

	disp := dispatch.New(store, ch, cfg.Dispatcher.InactivityWindow, cfg.Dispatcher.TickInterval, logger)
	defer disp.Stop()
	reducer := statusreducer.New(store)

	logger.Info("dispatcher started")
	err = disp.RunStatusLoop(ctx, reducer)
	if err != nil && err != context.Canceled {
		return err
	}
	return nil
}

func logLevel(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func newStore(ctx context.Context, cfg config.StoreConfig) (document.Store, error) {
	switch cfg.Backend {
	case "s3":
		return document.NewS3Store(ctx, document.S3StoreConfig{
			Bucket:      cfg.S3Bucket,
			Prefix:      cfg.S3Prefix,
			Region:      cfg.S3Region,
			EndpointURL: cfg.S3EndpointURL,
		})
	case "git":
		return document.NewGitStore(cfg.GitURL, cfg.GitBranch, cfg.GitDir)
	case "mem", "":
		return document.NewMemStore(), nil
	default:
		return nil, fmt.Errorf("unsupported store backend: %s", cfg.Backend)
	}
}

func newChannel(cfg config.ChannelConfig) (channel.Channel, error) {
	switch cfg.Backend {
	case "redis":
		return channel.NewRedisChannel(cfg.RedisAddr, cfg.RedisDB), nil
	case "mem", "":
		return channel.NewMemChannel(), nil
	default:
		return nil, fmt.Errorf("unsupported channel backend: %s", cfg.Backend)
	}
}
