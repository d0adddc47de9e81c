package stackmanager

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stackl-io/stackl-core/internal/capability"
	"github.com/stackl-io/stackl-core/internal/catalog"
	"github.com/stackl-io/stackl-core/internal/channel"
	"github.com/stackl-io/stackl-core/internal/dispatch"
	"github.com/stackl-io/stackl-core/internal/document"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func seedCatalog(t *testing.T, store document.Store) {
	t.Helper()
	ctx := context.Background()
	must := func(err error) {
		t.Helper()
		if err != nil {
			t.Fatalf("seeding: %v", err)
		}
	}

	must(document.Seed(ctx, store, catalog.DocTypeEnvironment, "aws", catalog.InfraBaseDoc{Name: "aws", Type: catalog.DocTypeEnvironment}))
	must(document.Seed(ctx, store, catalog.DocTypeLocation, "eu", catalog.InfraBaseDoc{Name: "eu", Type: catalog.DocTypeLocation}))
	must(document.Seed(ctx, store, catalog.DocTypeZone, "z1", catalog.InfraBaseDoc{Name: "z1", Type: catalog.DocTypeZone}))

	must(document.Seed(ctx, store, catalog.DocTypeFunctionalRequirement, "Ubuntu", catalog.FunctionalRequirement{
		Name: "Ubuntu", Params: map[string]any{"port": 80},
	}))
	must(document.Seed(ctx, store, catalog.DocTypeService, "web", catalog.Service{
		Name: "web", FunctionalRequirements: []string{"Ubuntu"},
	}))
	must(document.Seed(ctx, store, catalog.DocTypeService, "db", catalog.Service{
		Name: "db",
	}))

	must(document.Seed(ctx, store, catalog.DocTypeStackInfrastructureTemplate, "sit1", catalog.StackInfrastructureTemplate{
		Name:                  "sit1",
		InfrastructureTargets: []string{"aws.eu.z1"},
	}))
	must(document.Seed(ctx, store, catalog.DocTypeStackApplicationTemplate, "sat1", catalog.StackApplicationTemplate{
		Name: "sat1",
		Services: []catalog.ApplicationService{
			{Name: "web", Service: "web"},
		},
	}))
}

func newTestManager(store document.Store) (*Manager, *channel.MemChannel) {
	ch := channel.NewMemChannel()
	resolver := capability.New(store, nil)
	d := dispatch.New(store, ch, time.Hour, time.Hour, testLogger())
	return New(store, resolver, d), ch
}

func TestCreate_PersistsInstanceAndEmitsCreateJob(t *testing.T) {
	store := document.NewMemStore()
	seedCatalog(t, store)
	m, ch := newTestManager(store)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	sub, err := ch.Subscribe(ctx, channel.TopicWorker)
	if err != nil {
		t.Fatalf("Subscribe: %v", err)
	}

	si, err := m.Create(ctx, catalog.StackInstanceInvocation{
		StackInstanceName:          "inst1",
		StackApplicationTemplate:   "sat1",
		StackInfrastructureTemplate: "sit1",
	})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if si.Services["web"].InfrastructureTarget != "aws.eu.z1" {
		t.Errorf("expected web bound to aws.eu.z1, got %q", si.Services["web"].InfrastructureTarget)
	}

	stored, err := store.GetStackInstance(context.Background(), "inst1")
	if err != nil {
		t.Fatalf("GetStackInstance: %v", err)
	}
	if stored.Name != "inst1" {
		t.Errorf("expected instance persisted")
	}

	select {
	case env := <-sub:
		if env.Subtype != channel.SubtypeCreateStack {
			t.Errorf("expected create subtype, got %v", env.Subtype)
		}
		if env.Payload["service_name"] != "web" {
			t.Errorf("expected create job for web, got %v", env.Payload["service_name"])
		}
	case <-time.After(time.Second):
		t.Fatalf("timed out waiting for create job")
	}
}

func TestCreate_SolveFailureDoesNotPersist(t *testing.T) {
	store := document.NewMemStore()
	ctx := context.Background()
	must := func(err error) {
		if err != nil {
			t.Fatalf("seeding: %v", err)
		}
	}
	must(document.Seed(ctx, store, catalog.DocTypeEnvironment, "aws", catalog.InfraBaseDoc{Name: "aws", Type: catalog.DocTypeEnvironment}))
	must(document.Seed(ctx, store, catalog.DocTypeLocation, "eu", catalog.InfraBaseDoc{Name: "eu", Type: catalog.DocTypeLocation}))
	must(document.Seed(ctx, store, catalog.DocTypeZone, "z1", catalog.InfraBaseDoc{Name: "z1", Type: catalog.DocTypeZone}))
	must(document.Seed(ctx, store, catalog.DocTypeStackInfrastructureTemplate, "sit1", catalog.StackInfrastructureTemplate{
		Name: "sit1", InfrastructureTargets: []string{"aws.eu.z1"},
	}))
	must(document.Seed(ctx, store, catalog.DocTypeService, "web", catalog.Service{
		Name: "web", NonFunctionalRequirements: map[string]any{"CPU": "999GHz"},
	}))
	must(document.Seed(ctx, store, catalog.DocTypeStackApplicationTemplate, "sat1", catalog.StackApplicationTemplate{
		Name:     "sat1",
		Services: []catalog.ApplicationService{{Name: "web", Service: "web"}},
	}))

	m, _ := newTestManager(store)

	_, err := m.Create(ctx, catalog.StackInstanceInvocation{
		StackInstanceName:          "inst1",
		StackApplicationTemplate:   "sat1",
		StackInfrastructureTemplate: "sit1",
	})
	if err == nil {
		t.Fatalf("expected resolution error")
	}

	if _, getErr := store.GetStackInstance(ctx, "inst1"); getErr == nil {
		t.Errorf("expected no instance persisted after a failed solve")
	}
}

func TestUpdate_PreservesStatusForKeptServiceAndAddsNewOne(t *testing.T) {
	store := document.NewMemStore()
	seedCatalog(t, store)
	m, ch := newTestManager(store)
	ctx := context.Background()

	si, err := m.Create(ctx, catalog.StackInstanceInvocation{
		StackInstanceName:          "inst1",
		StackApplicationTemplate:   "sat1",
		StackInfrastructureTemplate: "sit1",
	})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	webBinding := si.Services["web"]
	webBinding.Status[0].Status = catalog.StatusReady
	si.Services["web"] = webBinding
	if err := store.WriteStackInstance(ctx, &si); err != nil {
		t.Fatalf("seeding ready status: %v", err)
	}

	if err := document.Seed(ctx, store, catalog.DocTypeStackApplicationTemplate, "sat1", catalog.StackApplicationTemplate{
		Name: "sat1",
		Services: []catalog.ApplicationService{
			{Name: "web", Service: "web"},
			{Name: "db", Service: "db"},
		},
	}); err != nil {
		t.Fatalf("updating SAT: %v", err)
	}

	subCtx, cancel := context.WithCancel(context.Background())
	defer cancel()
	sub, err := ch.Subscribe(subCtx, channel.TopicWorker)
	if err != nil {
		t.Fatalf("Subscribe: %v", err)
	}

	updated, err := m.Update(ctx, "inst1", catalog.StackInstanceUpdate{
		StackInstanceInvocation: catalog.StackInstanceInvocation{
			StackApplicationTemplate:   "sat1",
			StackInfrastructureTemplate: "sit1",
		},
	})
	if err != nil {
		t.Fatalf("Update: %v", err)
	}

	if updated.Services["web"].Status[0].Status != catalog.StatusReady {
		t.Errorf("expected kept service web to preserve ready status, got %q", updated.Services["web"].Status[0].Status)
	}
	if _, ok := updated.Services["db"]; !ok {
		t.Fatalf("expected db added to instance")
	}

	select {
	case env := <-sub:
		if env.Subtype != channel.SubtypeUpdateStack {
			t.Errorf("expected a single bulk update envelope, got subtype %v", env.Subtype)
		}
	case <-time.After(time.Second):
		t.Fatalf("timed out waiting for bulk update job")
	}
}

func TestUpdate_DisableInvocationSuppressesJobs(t *testing.T) {
	store := document.NewMemStore()
	seedCatalog(t, store)
	m, ch := newTestManager(store)
	ctx := context.Background()

	subCtx, cancel := context.WithCancel(context.Background())
	defer cancel()
	sub, err := ch.Subscribe(subCtx, channel.TopicWorker)
	if err != nil {
		t.Fatalf("Subscribe: %v", err)
	}

	if _, err := m.Create(ctx, catalog.StackInstanceInvocation{
		StackInstanceName:          "inst1",
		StackApplicationTemplate:   "sat1",
		StackInfrastructureTemplate: "sit1",
	}); err != nil {
		t.Fatalf("Create: %v", err)
	}
	// Drain the create job before exercising update.
	<-sub

	_, err = m.Update(ctx, "inst1", catalog.StackInstanceUpdate{
		StackInstanceInvocation: catalog.StackInstanceInvocation{
			StackApplicationTemplate:   "sat1",
			StackInfrastructureTemplate: "sit1",
		},
		DisableInvocation: true,
	})
	if err != nil {
		t.Fatalf("Update: %v", err)
	}

	select {
	case env := <-sub:
		t.Fatalf("expected no jobs emitted when disable_invocation is set, got %v", env)
	case <-time.After(200 * time.Millisecond):
	}
}

func TestDelete_ForceRemovesInstanceImmediately(t *testing.T) {
	store := document.NewMemStore()
	seedCatalog(t, store)
	m, ch := newTestManager(store)
	ctx := context.Background()

	subCtx, cancel := context.WithCancel(context.Background())
	defer cancel()
	sub, err := ch.Subscribe(subCtx, channel.TopicWorker)
	if err != nil {
		t.Fatalf("Subscribe: %v", err)
	}

	if _, err := m.Create(ctx, catalog.StackInstanceInvocation{
		StackInstanceName:          "inst1",
		StackApplicationTemplate:   "sat1",
		StackInfrastructureTemplate: "sit1",
	}); err != nil {
		t.Fatalf("Create: %v", err)
	}
	<-sub // drain create job

	if err := m.Delete(ctx, "inst1", true); err != nil {
		t.Fatalf("Delete: %v", err)
	}

	if _, err := store.GetStackInstance(ctx, "inst1"); err == nil {
		t.Errorf("expected instance removed immediately on forced delete")
	}

	select {
	case env := <-sub:
		if env.Subtype != channel.SubtypeDeleteStack {
			t.Errorf("expected bulk delete subtype, got %v", env.Subtype)
		}
	case <-time.After(time.Second):
		t.Fatalf("timed out waiting for bulk delete job")
	}
}

func TestDelete_NonForceEmitsPerServiceJobsAndKeepsInstance(t *testing.T) {
	store := document.NewMemStore()
	seedCatalog(t, store)
	m, ch := newTestManager(store)
	ctx := context.Background()

	subCtx, cancel := context.WithCancel(context.Background())
	defer cancel()
	sub, err := ch.Subscribe(subCtx, channel.TopicWorker)
	if err != nil {
		t.Fatalf("Subscribe: %v", err)
	}

	if _, err := m.Create(ctx, catalog.StackInstanceInvocation{
		StackInstanceName:          "inst1",
		StackApplicationTemplate:   "sat1",
		StackInfrastructureTemplate: "sit1",
	}); err != nil {
		t.Fatalf("Create: %v", err)
	}
	<-sub // drain create job

	if err := m.Delete(ctx, "inst1", false); err != nil {
		t.Fatalf("Delete: %v", err)
	}

	if _, err := store.GetStackInstance(ctx, "inst1"); err != nil {
		t.Errorf("expected instance to remain until the status reducer observes all services ready")
	}

	select {
	case env := <-sub:
		if env.Subtype != channel.SubtypeDeleteStack {
			t.Errorf("expected delete subtype, got %v", env.Subtype)
		}
		if env.Payload["service_name"] != "web" {
			t.Errorf("expected per-service delete job for web, got %v", env.Payload["service_name"])
		}
	case <-time.After(time.Second):
		t.Fatalf("timed out waiting for per-service delete job")
	}
}
