// Package dispatch implements the Job Dispatcher: emitting per-service
// provisioning jobs in dependency order, tracking them by idempotency key,
// and re-emitting jobs whose service has gone quiet past an inactivity
// window.
package dispatch

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/stackl-io/stackl-core/internal/catalog"
	"github.com/stackl-io/stackl-core/internal/channel"
	"github.com/stackl-io/stackl-core/internal/document"
	"github.com/stackl-io/stackl-core/internal/stackerrors"
	"github.com/stackl-io/stackl-core/internal/statusreducer"
)

// Dispatcher emits jobs for a StackInstance's service bindings and
// forwards inbound status reports to a Reducer, deregistering the
// inactivity watch once a service reaches a terminal status.
type Dispatcher struct {
	store    document.Store
	ch       channel.Channel
	logger   *slog.Logger
	watchdog *Watchdog

	mu      sync.Mutex
	lastJob map[string]Job
}

// New constructs a Dispatcher. inactivityWindow is the maximum time a
// dispatched job may go without a status report before it is re-emitted;
// tickInterval is how often each watch checks, defaulting to a tenth of
// inactivityWindow when zero.
func New(store document.Store, ch channel.Channel, inactivityWindow, tickInterval time.Duration, logger *slog.Logger) *Dispatcher {
	if logger == nil {
		logger = slog.Default()
	}
	d := &Dispatcher{
		store:   store,
		ch:      ch,
		logger:  logger,
		lastJob: make(map[string]Job),
	}
	d.watchdog = NewWatchdog(logger, inactivityWindow, tickInterval, d.reemit)
	return d
}

// EmitAll dispatches one job per service binding currently on si for
// action. See EmitServices for ordering.
func (d *Dispatcher) EmitAll(ctx context.Context, si *catalog.StackInstance, action Action) error {
	aliases := make([]string, 0, len(si.Services))
	for alias := range si.Services {
		aliases = append(aliases, alias)
	}
	return d.EmitServices(ctx, si, aliases, action)
}

// EmitServices dispatches one job per alias in aliases, persisting the
// bumped sequence counter on si. Create and update jobs go out in
// dependency order (a service's dependencies are provisioned first);
// delete jobs go out in reverse (dependents torn down first). Aliases not
// present on si.Services are ignored, so a caller can pass the set of
// removed services from an update diff after they have already been
// dropped from si.Services.
func (d *Dispatcher) EmitServices(ctx context.Context, si *catalog.StackInstance, aliases []string, action Action) error {
	order := topoOrder(aliases, si.Dependencies)
	if action == ActionDelete {
		order = reverseOf(order)
	}

	for _, alias := range order {
		binding, ok := si.Services[alias]
		if !ok {
			continue
		}
		seq := si.NextSequence
		si.NextSequence++

		job := Job{
			InstanceName:           si.Name,
			ServiceName:            alias,
			Action:                 action,
			Sequence:               seq,
			IdempotencyKey:         idempotencyKey(si.Name, alias, action, seq),
			InfrastructureTarget:   binding.InfrastructureTarget,
			ProvisioningParameters: binding.ProvisioningParameters,
		}
		if err := d.publish(ctx, job); err != nil {
			return err
		}
	}

	return d.store.WriteStackInstance(ctx, si)
}

// EmitServiceDeletes dispatches per-service delete jobs for aliases using
// the bindings in removed (which have already been taken out of
// si.Services by the caller), then persists si. Used both for a plain
// delete's per-service teardown and for an update's removed-service
// cleanup.
func (d *Dispatcher) EmitServiceDeletes(ctx context.Context, si *catalog.StackInstance, removed map[string]catalog.ServiceBinding) error {
	aliases := make([]string, 0, len(removed))
	for alias := range removed {
		aliases = append(aliases, alias)
	}
	order := reverseOf(topoOrder(aliases, si.Dependencies))

	for _, alias := range order {
		binding, ok := removed[alias]
		if !ok {
			continue
		}
		seq := si.NextSequence
		si.NextSequence++

		job := Job{
			InstanceName:           si.Name,
			ServiceName:            alias,
			Action:                 ActionDelete,
			Sequence:               seq,
			IdempotencyKey:         idempotencyKey(si.Name, alias, ActionDelete, seq),
			InfrastructureTarget:   binding.InfrastructureTarget,
			ProvisioningParameters: binding.ProvisioningParameters,
		}
		if err := d.publish(ctx, job); err != nil {
			return err
		}
	}

	return d.store.WriteStackInstance(ctx, si)
}

// EmitBulk dispatches a single job describing the whole instance rather
// than one per service: used for the post-deletion update snapshot job
// and for a forced delete's single bulk delete job.
func (d *Dispatcher) EmitBulk(ctx context.Context, si *catalog.StackInstance, action Action) error {
	seq := si.NextSequence
	si.NextSequence++

	serviceNames := make([]string, 0, len(si.Services))
	for alias := range si.Services {
		serviceNames = append(serviceNames, alias)
	}

	job := Job{
		InstanceName:   si.Name,
		ServiceName:    "",
		Action:         action,
		Sequence:       seq,
		IdempotencyKey: idempotencyKey(si.Name, "*", action, seq),
	}

	env := envelopeFor(job)
	env.Payload["services"] = serviceNames
	delete(env.Payload, "service_name")
	delete(env.Payload, "infrastructure_target")
	delete(env.Payload, "provisioning_parameters")

	if err := d.ch.Publish(ctx, channel.TopicWorker, env); err != nil {
		return fmt.Errorf("publishing bulk job %s: %w", job.IdempotencyKey, err)
	}

	return d.store.WriteStackInstance(ctx, si)
}

func (d *Dispatcher) publish(ctx context.Context, job Job) error {
	d.mu.Lock()
	d.lastJob[watchKey(job.InstanceName, job.ServiceName)] = job
	d.mu.Unlock()

	if err := d.ch.Publish(ctx, channel.TopicWorker, envelopeFor(job)); err != nil {
		return fmt.Errorf("publishing job %s: %w", job.IdempotencyKey, err)
	}

	d.watchdog.Register(ctx, job.InstanceName, job.ServiceName)
	return nil
}

func (d *Dispatcher) reemit(ctx context.Context, instanceName, serviceName string) error {
	d.mu.Lock()
	job, ok := d.lastJob[watchKey(instanceName, serviceName)]
	d.mu.Unlock()
	if !ok {
		return nil
	}
	return d.ch.Publish(ctx, channel.TopicWorker, envelopeFor(job))
}

func envelopeFor(job Job) channel.Envelope {
	return channel.Envelope{
		Channel: channel.TopicWorker,
		Subtype: subtypeForAction(job.Action),
		Payload: map[string]any{
			"instance_name":           job.InstanceName,
			"service_name":            job.ServiceName,
			"action":                  string(job.Action),
			"idempotency_key":         job.IdempotencyKey,
			"infrastructure_target":   job.InfrastructureTarget,
			"provisioning_parameters": job.ProvisioningParameters,
		},
		ReturnChannel: channel.ReturnTopic(job.InstanceName),
		SentAt:        time.Now(),
	}
}

func subtypeForAction(action Action) channel.Subtype {
	switch action {
	case ActionCreate:
		return channel.SubtypeCreateStack
	case ActionUpdate:
		return channel.SubtypeUpdateStack
	case ActionDelete:
		return channel.SubtypeDeleteStack
	default:
		return channel.SubtypeCreateStack
	}
}

// HandleStatus applies an inbound status report via reducer and updates
// the inactivity watch: terminal per-service status (ready or failed, or
// the service binding having been removed entirely by a completed delete)
// deregisters the watch, anything else just resets its clock.
func (d *Dispatcher) HandleStatus(ctx context.Context, reducer *statusreducer.Reducer, report statusreducer.StatusReport) error {
	if err := reducer.Apply(ctx, report); err != nil {
		return err
	}

	si, err := d.store.GetStackInstance(ctx, report.InstanceName)
	if err != nil {
		if stackerrors.Is(err, stackerrors.KindNotFound) {
			d.watchdog.Deregister(report.InstanceName, report.ServiceName)
			return nil
		}
		return err
	}

	binding, ok := si.Services[report.ServiceName]
	if !ok {
		d.watchdog.Deregister(report.InstanceName, report.ServiceName)
		return nil
	}

	switch binding.ServiceStatus() {
	case catalog.StatusReady, catalog.StatusFailed:
		d.watchdog.Deregister(report.InstanceName, report.ServiceName)
	default:
		d.watchdog.Touch(report.InstanceName, report.ServiceName)
	}
	return nil
}

// Stop cancels every in-flight inactivity watch.
func (d *Dispatcher) Stop() {
	d.watchdog.Stop()
}

// RunStatusLoop subscribes to the shared inbound status topic and applies
// every decoded report to reducer via HandleStatus until ctx is cancelled.
// A malformed envelope or a failed Apply is logged and skipped rather than
// stopping the loop, since a single bad status report should not take down
// status processing for every other instance.
func (d *Dispatcher) RunStatusLoop(ctx context.Context, reducer *statusreducer.Reducer) error {
	envelopes, err := d.ch.Subscribe(ctx, channel.TopicStatus)
	if err != nil {
		return fmt.Errorf("subscribing to status topic: %w", err)
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case env, ok := <-envelopes:
			if !ok {
				return nil
			}
			report, err := statusreducer.DecodeReport(env)
			if err != nil {
				d.logger.Warn("discarding malformed status report", "error", err)
				continue
			}
			if err := d.HandleStatus(ctx, reducer, report); err != nil {
				d.logger.Error("applying status report failed", "instance", report.InstanceName, "service", report.ServiceName, "error", err)
			}
		}
	}
}

// Results satisfies api.HealthResultsProvider, reporting the inactivity
// watchdog's currently outstanding (instance,service) watches.
func (d *Dispatcher) Results() map[string]any {
	return d.watchdog.Results()
}
