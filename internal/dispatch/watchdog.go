package dispatch

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// ReemitFunc re-publishes the in-flight job for (instanceName, serviceName).
type ReemitFunc func(ctx context.Context, instanceName, serviceName string) error

// Watchdog re-emits a job when its service has gone quiet for longer than
// inactivityWindow without a status report. One goroutine runs per
// registered (instance, service) pair, mirroring a per-service ticker loop
// guarded by a registration map.
type Watchdog struct {
	logger           *slog.Logger
	reemit           ReemitFunc
	inactivityWindow time.Duration
	tickInterval     time.Duration

	mu      sync.Mutex
	entries map[string]*watchEntry
}

type watchEntry struct {
	lastSeen time.Time
	cancel   context.CancelFunc
}

// NewWatchdog constructs a Watchdog. A zero tickInterval defaults to a
// tenth of inactivityWindow, bounded to at least one second.
func NewWatchdog(logger *slog.Logger, inactivityWindow, tickInterval time.Duration, reemit ReemitFunc) *Watchdog {
	if tickInterval <= 0 {
		tickInterval = inactivityWindow / 10
		if tickInterval < time.Second {
			tickInterval = time.Second
		}
	}
	return &Watchdog{
		logger:           logger,
		reemit:           reemit,
		inactivityWindow: inactivityWindow,
		tickInterval:     tickInterval,
		entries:          make(map[string]*watchEntry),
	}
}

func watchKey(instanceName, serviceName string) string {
	return instanceName + "/" + serviceName
}

// Register starts (or restarts) the inactivity watch for a service.
func (w *Watchdog) Register(ctx context.Context, instanceName, serviceName string) {
	w.Deregister(instanceName, serviceName)

	watchCtx, cancel := context.WithCancel(ctx)

	w.mu.Lock()
	w.entries[watchKey(instanceName, serviceName)] = &watchEntry{
		lastSeen: time.Now(),
		cancel:   cancel,
	}
	w.mu.Unlock()

	go w.run(watchCtx, instanceName, serviceName)
}

// Touch records that a status report arrived, resetting the inactivity
// clock without restarting the goroutine.
func (w *Watchdog) Touch(instanceName, serviceName string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if e, ok := w.entries[watchKey(instanceName, serviceName)]; ok {
		e.lastSeen = time.Now()
	}
}

// Deregister stops watching a service, e.g. once it reaches a terminal
// status.
func (w *Watchdog) Deregister(instanceName, serviceName string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	k := watchKey(instanceName, serviceName)
	if e, ok := w.entries[k]; ok {
		e.cancel()
		delete(w.entries, k)
	}
}

// Results returns a snapshot of every currently watched (instance,service)
// pair and how long it has been since its last status report, satisfying
// api.HealthResultsProvider.
func (w *Watchdog) Results() map[string]any {
	w.mu.Lock()
	defer w.mu.Unlock()
	out := make(map[string]any, len(w.entries))
	for k, e := range w.entries {
		out[k] = map[string]any{
			"idle_seconds": time.Since(e.lastSeen).Seconds(),
		}
	}
	return out
}

// Stop cancels every registered watch.
func (w *Watchdog) Stop() {
	w.mu.Lock()
	defer w.mu.Unlock()
	for k, e := range w.entries {
		e.cancel()
		delete(w.entries, k)
	}
}

func (w *Watchdog) run(ctx context.Context, instanceName, serviceName string) {
	ticker := time.NewTicker(w.tickInterval)
	defer ticker.Stop()

	k := watchKey(instanceName, serviceName)

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.mu.Lock()
			e, ok := w.entries[k]
			var idle time.Duration
			if ok {
				idle = time.Since(e.lastSeen)
			}
			w.mu.Unlock()
			if !ok {
				return
			}
			if idle < w.inactivityWindow {
				continue
			}

			w.logger.Warn("service inactive past window, re-emitting job",
				"instance", instanceName,
				"service", serviceName,
				"idle", idle,
			)
			if err := w.reemit(ctx, instanceName, serviceName); err != nil {
				w.logger.Error("re-emit failed", "instance", instanceName, "service", serviceName, "error", err)
				continue
			}
			w.Touch(instanceName, serviceName)
		}
	}
}
