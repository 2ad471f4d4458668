package storage

import (
	"context"

	"github.com/mhodges/bigip-rule-manager/internal/domain"
)

// Storage defines the interface for the storage layer.
// Implementations must be safe for concurrent use.
type Storage interface {
	// Close closes the storage connection.
	Close() error

	// API Keys
	CreateAPIKey(ctx context.Context, key *domain.APIKey) error
	GetAPIKeyByHash(ctx context.Context, keyHash string) (*domain.APIKey, error)
	ListAPIKeys(ctx context.Context) ([]*domain.APIKey, error)
	DeleteAPIKey(ctx context.Context, id string) error
	UpdateAPIKeyLastUsed(ctx context.Context, id string) error
	CountAPIKeys(ctx context.Context) (int, error)

	// Rule definitions
	CreateRule(ctx context.Context, rule *domain.Rule) error
	GetRule(ctx context.Context, id string) (*domain.Rule, error)
	GetRuleByKey(ctx context.Context, module domain.TrafficModule, partition, name string) (*domain.Rule, error)
	ListRules(ctx context.Context) ([]*domain.Rule, error)
	UpdateRule(ctx context.Context, rule *domain.Rule) error
	DeleteRule(ctx context.Context, id string) error

	// Apply history
	CreateApplyRun(ctx context.Context, run *domain.ApplyRun) error
	ListApplyRuns(ctx context.Context, limit, offset int) ([]*domain.ApplyRun, error)
	ListApplyRunsForRule(ctx context.Context, ruleID string) ([]*domain.ApplyRun, error)
}
