// Package statusreducer implements the Status Reducer: applying inbound
// agent status reports to a Stack Instance and rolling up per-service and
// whole-instance readiness.
package statusreducer

import (
	"context"
	"fmt"

	"github.com/stackl-io/stackl-core/internal/catalog"
	"github.com/stackl-io/stackl-core/internal/document"
)

// StatusReport is one inbound agent message:
// (instance_name, service_name, functional_requirement, status, error_message?).
type StatusReport struct {
	InstanceName          string
	ServiceName           string
	FunctionalRequirement string
	Status                catalog.Status
	ErrorMessage          string
	// Action, when "delete", causes a service binding that becomes ready
	// to be removed from the instance rather than simply marked ready.
	Action string
}

// Reducer applies StatusReports to persisted Stack Instances.
type Reducer struct {
	store document.Store
}

// New constructs a Reducer backed by store.
func New(store document.Store) *Reducer {
	return &Reducer{store: store}
}

// Apply locates the named binding and functional requirement, updates its
// status, and persists the resulting roll-up. For delete actions, a
// binding reaching ready is removed from the instance; an instance with no
// remaining services is removed entirely.
func (r *Reducer) Apply(ctx context.Context, report StatusReport) error {
	si, err := r.store.GetStackInstance(ctx, report.InstanceName)
	if err != nil {
		return err
	}

	binding, ok := si.Services[report.ServiceName]
	if !ok {
		return fmt.Errorf("status report for unknown service %q on instance %q", report.ServiceName, report.InstanceName)
	}

	found := false
	for i, fr := range binding.Status {
		if fr.Name == report.FunctionalRequirement {
			binding.Status[i].Status = report.Status
			binding.Status[i].ErrorMessage = report.ErrorMessage
			found = true
			break
		}
	}
	if !found {
		return fmt.Errorf("status report for unknown functional requirement %q on service %q", report.FunctionalRequirement, report.ServiceName)
	}

	si.Services[report.ServiceName] = binding

	if report.Action == "delete" && binding.ServiceStatus() == catalog.StatusReady {
		delete(si.Services, report.ServiceName)
	}

	if len(si.Services) == 0 && report.Action == "delete" {
		return r.store.DeleteStackInstance(ctx, si.Name)
	}

	return r.store.WriteStackInstance(ctx, &si)
}
