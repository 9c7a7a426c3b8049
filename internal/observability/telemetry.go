// Package observability bundles metric registration and the background
// collectors that feed it under one start/stop lifecycle.
package observability

import (
	"context"
	"errors"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/clinicdesk/inbox-platform/pkg/logging"
)

// ErrAlreadyStarted is returned when Start is called on a running service.
var ErrAlreadyStarted = errors.New("observability: telemetry already started")

// Runner is a background task that runs until its context is canceled.
type Runner func(ctx context.Context)

// Telemetry owns the metrics registry and the background runners attached to
// it. Start is one-shot: the service must be stopped before it can start
// again.
type Telemetry struct {
	registry *prometheus.Registry
	logger   *logging.Logger

	mu      sync.Mutex
	runners []Runner
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// NewTelemetry creates a telemetry service with the standard process
// collectors registered.
func NewTelemetry(logger *logging.Logger) *Telemetry {
	if logger == nil {
		logger = logging.Default()
	}
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return &Telemetry{registry: registry, logger: logger}
}

// Registry exposes the registry for metric construction and the /metrics
// handler.
func (t *Telemetry) Registry() *prometheus.Registry {
	return t.registry
}

// AddRunner attaches a background task. Must be called before Start.
func (t *Telemetry) AddRunner(r Runner) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.runners = append(t.runners, r)
}

// Start launches the attached runners. Calling Start on a running service
// returns ErrAlreadyStarted instead of spawning a second set.
func (t *Telemetry) Start(ctx context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.cancel != nil {
		return ErrAlreadyStarted
	}

	runCtx, cancel := context.WithCancel(ctx)
	t.cancel = cancel
	for _, r := range t.runners {
		r := r
		t.wg.Add(1)
		go func() {
			defer t.wg.Done()
			r(runCtx)
		}()
	}
	t.logger.Info("telemetry started", "runners", len(t.runners))
	return nil
}

// Stop cancels the runners and waits for them to exit. Safe to call on a
// stopped service.
func (t *Telemetry) Stop() {
	t.mu.Lock()
	cancel := t.cancel
	t.cancel = nil
	t.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	t.wg.Wait()
	t.logger.Info("telemetry stopped")
}
