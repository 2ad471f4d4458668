package service_test

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/mhodges/bigip-rule-manager/internal/bigip"
	"github.com/mhodges/bigip-rule-manager/internal/domain"
	"github.com/mhodges/bigip-rule-manager/internal/service"
	"github.com/mhodges/bigip-rule-manager/internal/storage/memory"
)

func newShim(t *testing.T) *bigip.FileShim {
	t.Helper()
	return bigip.NewFileShim(filepath.Join(t.TempDir(), "device.json"))
}

func storeRule(t *testing.T, store *memory.Store, id, name string, module domain.TrafficModule, content string, state domain.DesiredState) {
	t.Helper()
	now := time.Now()
	err := store.CreateRule(context.Background(), &domain.Rule{
		ID:        id,
		Name:      name,
		Module:    module,
		Partition: domain.DefaultPartition,
		Content:   content,
		State:     state,
		CreatedAt: now,
		UpdatedAt: now,
	})
	if err != nil {
		t.Fatalf("CreateRule failed: %v", err)
	}
}

func TestApplyAllReconcilesEveryRule(t *testing.T) {
	store := memory.New()
	shim := newShim(t)
	svc := service.NewApplyService(store, shim, time.Millisecond, false)
	ctx := context.Background()

	storeRule(t, store, "r1", "first_rule", domain.ModuleLTM, "when HTTP_REQUEST { }", domain.StatePresent)
	storeRule(t, store, "r2", "second_rule", domain.ModuleGTM, "when LB_FAILED { }", domain.StatePresent)

	report, err := svc.ApplyAll(ctx, false)
	if err != nil {
		t.Fatalf("ApplyAll failed: %v", err)
	}

	if report.Changed != 2 || report.Failed != 0 {
		t.Errorf("Expected changed=2 failed=0, got %+v", report)
	}

	for _, rule := range []struct {
		module domain.TrafficModule
		name   string
	}{{domain.ModuleLTM, "first_rule"}, {domain.ModuleGTM, "second_rule"}} {
		exists, err := shim.Exists(ctx, rule.module, "Common", rule.name)
		if err != nil {
			t.Fatalf("Exists failed: %v", err)
		}
		if !exists {
			t.Errorf("Rule %s/%s not on device after apply", rule.module, rule.name)
		}
	}

	runs, err := store.ListApplyRuns(ctx, 0, 0)
	if err != nil {
		t.Fatalf("ListApplyRuns failed: %v", err)
	}
	if len(runs) != 2 {
		t.Errorf("Expected 2 recorded runs, got %d", len(runs))
	}
}

func TestApplyAllContinuesPastFailures(t *testing.T) {
	store := memory.New()
	shim := newShim(t)
	svc := service.NewApplyService(store, shim, time.Millisecond, false)
	ctx := context.Background()

	// A present rule with no content fails reconciliation.
	storeRule(t, store, "bad", "broken_rule", domain.ModuleLTM, "", domain.StatePresent)
	storeRule(t, store, "good", "working_rule", domain.ModuleLTM, "when HTTP_REQUEST { }", domain.StatePresent)

	report, err := svc.ApplyAll(ctx, false)
	if err != nil {
		t.Fatalf("ApplyAll failed: %v", err)
	}

	if report.Failed != 1 || report.Changed != 1 {
		t.Errorf("Expected failed=1 changed=1, got %+v", report)
	}

	exists, err := shim.Exists(ctx, domain.ModuleLTM, "Common", "working_rule")
	if err != nil {
		t.Fatalf("Exists failed: %v", err)
	}
	if !exists {
		t.Error("The good rule must still be applied")
	}

	runs, err := store.ListApplyRunsForRule(ctx, "bad")
	if err != nil {
		t.Fatalf("ListApplyRunsForRule failed: %v", err)
	}
	if len(runs) != 1 || runs[0].Error == "" {
		t.Errorf("Expected a recorded failed run, got %+v", runs)
	}
}

func TestApplyAllDryRun(t *testing.T) {
	store := memory.New()
	shim := newShim(t)
	svc := service.NewApplyService(store, shim, time.Millisecond, false)
	ctx := context.Background()

	storeRule(t, store, "r1", "first_rule", domain.ModuleLTM, "when HTTP_REQUEST { }", domain.StatePresent)

	report, err := svc.ApplyAll(ctx, true)
	if err != nil {
		t.Fatalf("ApplyAll failed: %v", err)
	}
	if !report.DryRun || report.Changed != 1 {
		t.Errorf("Expected dry-run report with changed=1, got %+v", report)
	}

	exists, err := shim.Exists(ctx, domain.ModuleLTM, "Common", "first_rule")
	if err != nil {
		t.Fatalf("Exists failed: %v", err)
	}
	if exists {
		t.Error("Dry run must not touch the device")
	}
}

func TestTriggerApplyDebounced(t *testing.T) {
	store := memory.New()
	shim := newShim(t)
	svc := service.NewApplyService(store, shim, 10*time.Millisecond, true)
	ctx := context.Background()

	storeRule(t, store, "r1", "first_rule", domain.ModuleLTM, "when HTTP_REQUEST { }", domain.StatePresent)

	svc.TriggerApply()
	svc.TriggerApply()
	svc.TriggerApply()

	deadline := time.Now().Add(2 * time.Second)
	for {
		exists, err := shim.Exists(ctx, domain.ModuleLTM, "Common", "first_rule")
		if err != nil {
			t.Fatalf("Exists failed: %v", err)
		}
		if exists {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("Auto-apply never reached the device")
		}
		time.Sleep(5 * time.Millisecond)
	}

	// Collapsed triggers produce a single run.
	time.Sleep(50 * time.Millisecond)
	runs, err := store.ListApplyRuns(ctx, 0, 0)
	if err != nil {
		t.Fatalf("ListApplyRuns failed: %v", err)
	}
	if len(runs) != 1 {
		t.Errorf("Expected 1 run from collapsed triggers, got %d", len(runs))
	}
}

func TestTriggerApplyDisabled(t *testing.T) {
	store := memory.New()
	shim := newShim(t)
	svc := service.NewApplyService(store, shim, time.Millisecond, false)
	ctx := context.Background()

	storeRule(t, store, "r1", "first_rule", domain.ModuleLTM, "when HTTP_REQUEST { }", domain.StatePresent)

	svc.TriggerApply()
	time.Sleep(50 * time.Millisecond)

	exists, err := shim.Exists(ctx, domain.ModuleLTM, "Common", "first_rule")
	if err != nil {
		t.Fatalf("Exists failed: %v", err)
	}
	if exists {
		t.Error("TriggerApply must be a no-op when auto-apply is off")
	}
}
