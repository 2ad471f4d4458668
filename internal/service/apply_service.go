package service

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/mhodges/bigip-rule-manager/internal/bigip"
	"github.com/mhodges/bigip-rule-manager/internal/domain"
	"github.com/mhodges/bigip-rule-manager/internal/reconcile"
	"github.com/mhodges/bigip-rule-manager/internal/storage"
)

// ApplyService reconciles stored rule definitions onto the device and
// records the outcome of every run.
type ApplyService struct {
	store      storage.Storage
	client     bigip.DeviceClient
	reconciler *reconcile.Reconciler
	debounce   time.Duration
	autoApply  bool

	mu          sync.Mutex
	applyTimer  *time.Timer
	applyActive bool
}

// NewApplyService creates a new ApplyService.
func NewApplyService(store storage.Storage, client bigip.DeviceClient, debounce time.Duration, autoApply bool) *ApplyService {
	return &ApplyService{
		store:      store,
		client:     client,
		reconciler: reconcile.New(client),
		debounce:   debounce,
		autoApply:  autoApply,
	}
}

// TriggerApply schedules a debounced apply of all stored rules.
// Multiple triggers within the debounce period collapse into one apply.
func (s *ApplyService) TriggerApply() {
	if !s.autoApply {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.applyTimer != nil {
		s.applyTimer.Stop()
	}
	s.applyTimer = time.AfterFunc(s.debounce, func() {
		ctx := context.Background()
		if _, err := s.ApplyAll(ctx, false); err != nil {
			log.Printf("Auto-apply failed: %v", err)
		}
	})
}

// ApplyAll reconciles every stored rule definition against the device.
// Per-rule failures are recorded and reported; they do not stop the rest
// of the run. The device session is opened once for the whole pass.
func (s *ApplyService) ApplyAll(ctx context.Context, dryRun bool) (*domain.ApplyReport, error) {
	s.mu.Lock()
	if s.applyActive {
		s.mu.Unlock()
		return nil, domain.ErrApplyInProgress
	}
	s.applyActive = true
	if s.applyTimer != nil {
		s.applyTimer.Stop()
	}
	s.mu.Unlock()
	defer func() {
		s.mu.Lock()
		s.applyActive = false
		s.mu.Unlock()
	}()

	rules, err := s.store.ListRules(ctx)
	if err != nil {
		return nil, err
	}

	if err := s.client.Login(ctx); err != nil {
		return nil, err
	}
	defer s.client.Logout(ctx)

	report := &domain.ApplyReport{DryRun: dryRun}
	for _, rule := range rules {
		outcome := &domain.RuleApplyOutcome{RuleID: rule.ID}
		result, err := s.reconciler.Apply(ctx, rule.Spec(), dryRun)
		if err != nil {
			outcome.Error = err.Error()
			report.Failed++
		} else {
			outcome.Result = result
			if result.Changed {
				report.Changed++
			}
		}
		report.Results = append(report.Results, outcome)
		s.recordRun(ctx, rule.ID, result, dryRun, err)
	}
	return report, nil
}

// ApplyRule reconciles a single stored rule by ID.
func (s *ApplyService) ApplyRule(ctx context.Context, id string, dryRun bool) (*domain.ApplyResult, error) {
	rule, err := s.store.GetRule(ctx, id)
	if err != nil {
		return nil, err
	}

	if err := s.client.Login(ctx); err != nil {
		return nil, err
	}
	defer s.client.Logout(ctx)

	result, applyErr := s.reconciler.Apply(ctx, rule.Spec(), dryRun)
	s.recordRun(ctx, rule.ID, result, dryRun, applyErr)
	if applyErr != nil {
		return nil, applyErr
	}
	return result, nil
}

// recordRun persists one apply outcome. History is advisory; failures to
// record are logged, not surfaced.
func (s *ApplyService) recordRun(ctx context.Context, ruleID string, result *domain.ApplyResult, dryRun bool, applyErr error) {
	run := &domain.ApplyRun{
		ID:        uuid.New().String(),
		RuleID:    ruleID,
		Action:    domain.ActionNone,
		DryRun:    dryRun,
		CreatedAt: time.Now(),
	}
	if result != nil {
		run.Action = result.Action
		run.Changed = result.Changed
	}
	if applyErr != nil {
		run.Error = applyErr.Error()
	}
	if err := s.store.CreateApplyRun(ctx, run); err != nil {
		log.Printf("Warning: failed to record apply run for rule %s: %v", ruleID, err)
	}
}
