// Package memory holds an in-memory implementation of the storage
// interface for testing.
package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/mhodges/bigip-rule-manager/internal/domain"
)

// Store is an in-memory implementation of the storage interface.
type Store struct {
	mu sync.RWMutex

	apiKeys map[string]*domain.APIKey // key: id
	rules   map[string]*domain.Rule   // key: id
	runs    []*domain.ApplyRun        // newest first
}

// New creates a new in-memory store.
func New() *Store {
	return &Store{
		apiKeys: make(map[string]*domain.APIKey),
		rules:   make(map[string]*domain.Rule),
	}
}

func (s *Store) Close() error { return nil }

// ============================================
// API Keys
// ============================================

func (s *Store) CreateAPIKey(ctx context.Context, key *domain.APIKey) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.apiKeys[key.ID]; ok {
		return domain.ErrAlreadyExists
	}
	s.apiKeys[key.ID] = key
	return nil
}

func (s *Store) GetAPIKeyByHash(ctx context.Context, keyHash string) (*domain.APIKey, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, key := range s.apiKeys {
		if key.KeyHash == keyHash {
			return key, nil
		}
	}
	return nil, domain.ErrNotFound
}

func (s *Store) ListAPIKeys(ctx context.Context) ([]*domain.APIKey, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	keys := make([]*domain.APIKey, 0, len(s.apiKeys))
	for _, key := range s.apiKeys {
		keys = append(keys, key)
	}
	sort.Slice(keys, func(i, j int) bool {
		return keys[i].CreatedAt.After(keys[j].CreatedAt)
	})
	return keys, nil
}

func (s *Store) DeleteAPIKey(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.apiKeys[id]; !ok {
		return domain.ErrNotFound
	}
	delete(s.apiKeys, id)
	return nil
}

func (s *Store) UpdateAPIKeyLastUsed(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.apiKeys[id]; !ok {
		return domain.ErrNotFound
	}
	return nil
}

func (s *Store) CountAPIKeys(ctx context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.apiKeys), nil
}

// ============================================
// Rule definitions
// ============================================

func (s *Store) CreateRule(ctx context.Context, rule *domain.Rule) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.rules {
		if existing.Module == rule.Module && existing.Partition == rule.Partition && existing.Name == rule.Name {
			return domain.ErrAlreadyExists
		}
	}
	s.rules[rule.ID] = rule
	return nil
}

func (s *Store) GetRule(ctx context.Context, id string) (*domain.Rule, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rule, ok := s.rules[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return rule, nil
}

func (s *Store) GetRuleByKey(ctx context.Context, module domain.TrafficModule, partition, name string) (*domain.Rule, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, rule := range s.rules {
		if rule.Module == module && rule.Partition == partition && rule.Name == name {
			return rule, nil
		}
	}
	return nil, domain.ErrNotFound
}

func (s *Store) ListRules(ctx context.Context) ([]*domain.Rule, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rules := make([]*domain.Rule, 0, len(s.rules))
	for _, rule := range s.rules {
		rules = append(rules, rule)
	}
	sort.Slice(rules, func(i, j int) bool {
		if rules[i].Module != rules[j].Module {
			return rules[i].Module < rules[j].Module
		}
		if rules[i].Partition != rules[j].Partition {
			return rules[i].Partition < rules[j].Partition
		}
		return rules[i].Name < rules[j].Name
	})
	return rules, nil
}

func (s *Store) UpdateRule(ctx context.Context, rule *domain.Rule) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.rules[rule.ID]; !ok {
		return domain.ErrNotFound
	}
	s.rules[rule.ID] = rule
	return nil
}

func (s *Store) DeleteRule(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.rules[id]; !ok {
		return domain.ErrNotFound
	}
	delete(s.rules, id)
	return nil
}

// ============================================
// Apply history
// ============================================

func (s *Store) CreateApplyRun(ctx context.Context, run *domain.ApplyRun) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.runs = append([]*domain.ApplyRun{run}, s.runs...)
	return nil
}

func (s *Store) ListApplyRuns(ctx context.Context, limit, offset int) ([]*domain.ApplyRun, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if offset >= len(s.runs) {
		return nil, nil
	}
	runs := s.runs[offset:]
	if limit > 0 && limit < len(runs) {
		runs = runs[:limit]
	}
	out := make([]*domain.ApplyRun, len(runs))
	copy(out, runs)
	return out, nil
}

func (s *Store) ListApplyRunsForRule(ctx context.Context, ruleID string) ([]*domain.ApplyRun, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*domain.ApplyRun
	for _, run := range s.runs {
		if run.RuleID == ruleID {
			out = append(out, run)
		}
	}
	return out, nil
}
