package config

import "time"

// Config is the top-level process configuration for cmd/controlplane and
// cmd/dispatcher, loaded from a single YAML file.
type Config struct {
	// LogLevel controls verbosity: "debug", "info", "warn", "error".
	LogLevel string `yaml:"log_level"`
	// HTTPListenAddr is the address for the stack instance and health/metrics
	// HTTP API (e.g. ":8080"). Only read by cmd/controlplane.
	HTTPListenAddr string `yaml:"http_listen_addr,omitempty"`

	Store      StoreConfig      `yaml:"store"`
	Channel    ChannelConfig    `yaml:"channel"`
	Dispatcher DispatcherConfig `yaml:"dispatcher"`
}

// StoreConfig selects and configures the Document Store Gateway backend.
type StoreConfig struct {
	// Backend is the document store backend: "mem", "s3", or "git".
	Backend string `yaml:"backend"`
	// S3Bucket is the S3 bucket name (for the s3 backend).
	S3Bucket string `yaml:"s3_bucket,omitempty"`
	// S3Prefix is an optional key prefix in the bucket (e.g. "catalog/").
	// Include trailing slash.
	S3Prefix string `yaml:"s3_prefix,omitempty"`
	// S3Region is the AWS region for the S3 bucket. If empty, resolved from
	// the environment (instance metadata, AWS_REGION env var, etc.).
	S3Region string `yaml:"s3_region,omitempty"`
	// S3EndpointURL overrides the S3 endpoint (useful for LocalStack/MinIO).
	S3EndpointURL string `yaml:"s3_endpoint_url,omitempty"`
	// GitURL is the repo URL to track (for the git backend).
	GitURL string `yaml:"git_url,omitempty"`
	// GitBranch is the git branch to track (for the git backend).
	GitBranch string `yaml:"git_branch,omitempty"`
	// GitDir is the local working directory for the git checkout.
	GitDir string `yaml:"git_dir,omitempty"`
}

// ChannelConfig selects and configures the message channel backend.
type ChannelConfig struct {
	// Backend is the message channel backend: "mem" or "redis".
	Backend string `yaml:"backend"`
	// RedisAddr is the Redis server address (for the redis backend).
	RedisAddr string `yaml:"redis_addr,omitempty"`
	// RedisDB is the Redis logical database index.
	RedisDB int `yaml:"redis_db,omitempty"`
}

// DispatcherConfig tunes the Job Dispatcher's inactivity watchdog.
type DispatcherConfig struct {
	// InactivityWindow is how long the dispatcher waits for a status report
	// on an outstanding job before re-emitting it.
	InactivityWindow time.Duration `yaml:"inactivity_window"`
	// TickInterval is how often the watchdog scans for expired windows. If
	// zero, it defaults to InactivityWindow/10, floored at one second.
	TickInterval time.Duration `yaml:"tick_interval,omitempty"`
}
