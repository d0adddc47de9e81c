package main

import (
	"context"
	"fmt"

	"github.com/stackl-io/stackl-core/internal/channel"
	"github.com/stackl-io/stackl-core/internal/config"
	"github.com/stackl-io/stackl-core/internal/document"
)

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
