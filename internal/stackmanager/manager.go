// Package stackmanager implements the Stack Manager: the three entry
// points (create, update, delete) that tie the Document Store Gateway,
// Capability Resolver, Constraint Solver, Stack Instance Builder, and Job
// Dispatcher together into a single orchestrated operation per instance.
package stackmanager

import (
	"context"
	"fmt"

	"github.com/stackl-io/stackl-core/internal/capability"
	"github.com/stackl-io/stackl-core/internal/catalog"
	"github.com/stackl-io/stackl-core/internal/constraint"
	"github.com/stackl-io/stackl-core/internal/dispatch"
	"github.com/stackl-io/stackl-core/internal/document"
	"github.com/stackl-io/stackl-core/internal/instance"
)

// Manager orchestrates create/update/delete for Stack Instances,
// serializing concurrent calls against the same instance name.
type Manager struct {
	store      document.Store
	resolver   *capability.Resolver
	dispatcher *dispatch.Dispatcher
	locks      *lockRegistry
}

// New constructs a Manager.
func New(store document.Store, resolver *capability.Resolver, dispatcher *dispatch.Dispatcher) *Manager {
	return &Manager{
		store:      store,
		resolver:   resolver,
		dispatcher: dispatcher,
		locks:      newLockRegistry(),
	}
}

// Create loads the named SAT and SIT, force-refreshes capabilities, solves
// placement, builds the instance, persists it, and emits a create job for
// every service binding. No instance is persisted if solving fails.
func (m *Manager) Create(ctx context.Context, inv catalog.StackInstanceInvocation) (catalog.StackInstance, error) {
	lock := m.locks.lockFor(inv.StackInstanceName)
	lock.Lock()
	defer lock.Unlock()

	si, err := m.resolveAndBuild(ctx, inv, capability.UpdateForce)
	if err != nil {
		return catalog.StackInstance{}, err
	}

	writeErr := withTransientBackoff(ctx, func() error {
		return withConflictRetry(func() error {
			return m.store.WriteStackInstance(ctx, &si)
		})
	})
	if writeErr != nil {
		return catalog.StackInstance{}, writeErr
	}

	// The instance is persisted: finish emitting its jobs even if the
	// caller's context is cancelled or times out from here on.
	emitCtx := context.WithoutCancel(ctx)
	if err := withTransientBackoff(emitCtx, func() error {
		return m.dispatcher.EmitAll(emitCtx, &si, dispatch.ActionCreate)
	}); err != nil {
		return si, err
	}
	return si, nil
}

// Update loads the existing instance, re-runs resolution against the
// (possibly new) SAT/SIT named in upd, preserves per-FR status for kept
// service bindings, persists the result, and — unless DisableInvocation is
// set — emits per-service delete jobs for removed bindings followed by a
// single bulk update job carrying the post-deletion snapshot.
func (m *Manager) Update(ctx context.Context, name string, upd catalog.StackInstanceUpdate) (catalog.StackInstance, error) {
	lock := m.locks.lockFor(name)
	lock.Lock()
	defer lock.Unlock()

	var existing catalog.StackInstance
	getErr := withTransientBackoff(ctx, func() error {
		var err error
		existing, err = m.store.GetStackInstance(ctx, name)
		return err
	})
	if getErr != nil {
		return catalog.StackInstance{}, getErr
	}

	inv := upd.StackInstanceInvocation
	inv.StackInstanceName = name

	next, err := m.resolveAndBuild(ctx, inv, capability.UpdateAuto)
	if err != nil {
		return catalog.StackInstance{}, err
	}

	_, removed, kept := diffServices(existing, next)
	for alias := range kept {
		binding := next.Services[alias]
		binding.Status = existing.Services[alias].Status
		next.Services[alias] = binding
	}

	removedBindings := make(map[string]catalog.ServiceBinding, len(removed))
	for alias := range removed {
		removedBindings[alias] = existing.Services[alias]
	}

	next.Version = existing.Version
	next.NextSequence = existing.NextSequence

	writeErr := withTransientBackoff(ctx, func() error {
		return withConflictRetry(func() error {
			return m.store.WriteStackInstance(ctx, &next)
		})
	})
	if writeErr != nil {
		return catalog.StackInstance{}, writeErr
	}

	if upd.DisableInvocation {
		return next, nil
	}

	// As in Create, emission outlives the caller's context once persisted.
	emitCtx := context.WithoutCancel(ctx)
	if len(removedBindings) > 0 {
		if err := withTransientBackoff(emitCtx, func() error {
			return m.dispatcher.EmitServiceDeletes(emitCtx, &next, removedBindings)
		}); err != nil {
			return next, err
		}
	}
	if err := withTransientBackoff(emitCtx, func() error {
		return m.dispatcher.EmitBulk(emitCtx, &next, dispatch.ActionUpdate)
	}); err != nil {
		return next, err
	}
	return next, nil
}

// Delete loads the named instance. With force set, it emits a single bulk
// delete job and removes the instance document immediately. Otherwise it
// emits per-service delete jobs and leaves removal of the instance
// document to the Status Reducer, once every service reports ready on its
// delete job.
func (m *Manager) Delete(ctx context.Context, name string, force bool) error {
	lock := m.locks.lockFor(name)
	lock.Lock()
	defer lock.Unlock()

	var si catalog.StackInstance
	if err := withTransientBackoff(ctx, func() error {
		var err error
		si, err = m.store.GetStackInstance(ctx, name)
		return err
	}); err != nil {
		return err
	}

	if force {
		if err := withTransientBackoff(ctx, func() error {
			return m.dispatcher.EmitBulk(ctx, &si, dispatch.ActionDelete)
		}); err != nil {
			return err
		}
		return withTransientBackoff(ctx, func() error {
			return m.store.DeleteStackInstance(ctx, name)
		})
	}

	return withTransientBackoff(ctx, func() error {
		return m.dispatcher.EmitAll(ctx, &si, dispatch.ActionDelete)
	})
}

// Get fetches the named Stack Instance, 404ing via stackerrors if absent.
func (m *Manager) Get(ctx context.Context, name string) (catalog.StackInstance, error) {
	return m.store.GetStackInstance(ctx, name)
}

// List returns every persisted Stack Instance.
func (m *Manager) List(ctx context.Context) ([]catalog.StackInstance, error) {
	return m.store.ListStackInstances(ctx)
}

// resolveAndBuild runs B through D for inv: load SAT/SIT, refresh
// capabilities under updatePolicy, solve placement, and build the
// resulting instance document.
func (m *Manager) resolveAndBuild(ctx context.Context, inv catalog.StackInstanceInvocation, updatePolicy capability.UpdatePolicy) (catalog.StackInstance, error) {
	sat, err := document.GetSAT(ctx, m.store, inv.StackApplicationTemplate)
	if err != nil {
		return catalog.StackInstance{}, fmt.Errorf("loading SAT %q: %w", inv.StackApplicationTemplate, err)
	}
	sit, err := document.GetSIT(ctx, m.store, inv.StackInfrastructureTemplate)
	if err != nil {
		return catalog.StackInstance{}, fmt.Errorf("loading SIT %q: %w", inv.StackInfrastructureTemplate, err)
	}

	resolvedSIT, err := m.resolver.Resolve(ctx, sit, updatePolicy)
	if err != nil {
		return catalog.StackInstance{}, err
	}

	services, frs, err := m.loadCatalog(ctx, sat)
	if err != nil {
		return catalog.StackInstance{}, err
	}

	result, err := constraint.Solve(sat, services, resolvedSIT, inv)
	if err != nil {
		return catalog.StackInstance{}, err
	}

	si, err := instance.Build(inv.StackInstanceName, sat.Name, sit.Name, result, resolvedSIT, services, frs, inv)
	if err != nil {
		return catalog.StackInstance{}, err
	}
	si.Policies = sat.Policies
	return si, nil
}

// loadCatalog loads every Service and FunctionalRequirement document
// referenced, directly or transitively, by sat.
func (m *Manager) loadCatalog(ctx context.Context, sat catalog.StackApplicationTemplate) (map[string]catalog.Service, map[string]catalog.FunctionalRequirement, error) {
	services := make(map[string]catalog.Service, len(sat.Services))
	frs := make(map[string]catalog.FunctionalRequirement)

	for _, appSvc := range sat.Services {
		if _, ok := services[appSvc.Service]; ok {
			continue
		}
		svc, err := document.GetService(ctx, m.store, appSvc.Service)
		if err != nil {
			return nil, nil, fmt.Errorf("loading service %q: %w", appSvc.Service, err)
		}
		services[appSvc.Service] = svc

		for _, frName := range svc.FunctionalRequirements {
			if _, ok := frs[frName]; ok {
				continue
			}
			fr, err := document.GetFunctionalRequirement(ctx, m.store, frName)
			if err != nil {
				return nil, nil, fmt.Errorf("loading functional requirement %q: %w", frName, err)
			}
			frs[frName] = fr
		}
	}
	return services, frs, nil
}
