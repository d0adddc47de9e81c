package main

import (
	"context"
	"log/slog"
	"testing"

	"github.com/stackl-io/stackl-core/internal/channel"
	"github.com/stackl-io/stackl-core/internal/config"
	"github.com/stackl-io/stackl-core/internal/document"
)

func TestLogLevel(t *testing.T) {
	cases := map[string]slog.Level{
		"debug": slog.LevelDebug,
		"warn":  slog.LevelWarn,
		"error": slog.LevelError,
		"":      slog.LevelInfo,
	}
	for input, want := range cases {
		if got := logLevel(input); got != want {
			t.Errorf("logLevel(%q) = %v, want %v", input, got, want)
		}
	}
}

func TestNewStore_MemBackend(t *testing.T) {
	s, err := newStore(context.Background(), config.StoreConfig{Backend: "mem"})
	if err != nil {
		t.Fatalf("newStore: %v", err)
	}
	if _, ok := s.(*document.MemStore); !ok {
		t.Fatalf("expected *document.MemStore, got %T", s)
	}
}

func TestNewChannel_RedisBackend(t *testing.T) {
	ch, err := newChannel(config.ChannelConfig{Backend: "redis", RedisAddr: "localhost:6379"})
	if err != nil {
		t.Fatalf("newChannel: %v", err)
	}
	defer ch.Close()
	if _, ok := ch.(*channel.RedisChannel); !ok {
		t.Fatalf("expected *channel.RedisChannel, got %T", ch)
	}
}
