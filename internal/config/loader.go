package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// DefaultConfig returns sensible defaults for the process configuration.
func DefaultConfig() Config {
	return Config{
		LogLevel:       "info",
		HTTPListenAddr: ":8080",
		Store: StoreConfig{
			Backend: "mem",
		},
		Channel: ChannelConfig{
			Backend: "mem",
		},
		Dispatcher: DispatcherConfig{
			InactivityWindow: 5 * time.Minute,
		},
	}
}

// Load reads the process configuration from a YAML file and applies
// defaults for any unset fields.
func Load(path string) (Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("reading config %s: %w", path, err)
	}

	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parsing config %s: %w", path, err)
	}

	switch cfg.Store.Backend {
	case "mem":
	case "s3":
		if cfg.Store.S3Bucket == "" {
			return cfg, fmt.Errorf("store.s3_bucket is required for the s3 store backend")
		}
	case "git":
		if cfg.Store.GitURL == "" {
			return cfg, fmt.Errorf("store.git_url is required for the git store backend")
		}
	default:
		return cfg, fmt.Errorf("unsupported store.backend: %q (expected \"mem\", \"s3\", or \"git\")", cfg.Store.Backend)
	}

	switch cfg.Channel.Backend {
	case "mem":
	case "redis":
		if cfg.Channel.RedisAddr == "" {
			return cfg, fmt.Errorf("channel.redis_addr is required for the redis channel backend")
		}
	default:
		return cfg, fmt.Errorf("unsupported channel.backend: %q (expected \"mem\" or \"redis\")", cfg.Channel.Backend)
	}

	if cfg.Dispatcher.InactivityWindow <= 0 {
		return cfg, fmt.Errorf("dispatcher.inactivity_window must be positive")
	}

	return cfg, nil
}
