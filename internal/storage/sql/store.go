// Package sql implements the storage interface on a relational database.
// SQLite and PostgreSQL are supported; migrations run on startup.
package sql

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"
	"github.com/pressly/goose/v3"

	"github.com/mhodges/bigip-rule-manager/internal/domain"
)

//go:embed migrations/*.sql
var embedMigrations embed.FS

// isUniqueViolation checks if an error is a UNIQUE constraint violation.
func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	errStr := err.Error()
	// SQLite
	if strings.Contains(errStr, "UNIQUE constraint failed") {
		return true
	}
	// PostgreSQL
	if strings.Contains(errStr, "duplicate key value violates unique constraint") {
		return true
	}
	return false
}

// wrapUniqueError converts UNIQUE violations to domain.ErrAlreadyExists.
func wrapUniqueError(err error) error {
	if isUniqueViolation(err) {
		return domain.ErrAlreadyExists
	}
	return err
}

// Store implements the storage.Storage interface using SQL.
type Store struct {
	db *sqlx.DB
}

// New creates a new SQL store and runs pending migrations.
func New(driver, dsn string) (*Store, error) {
	db, err := sqlx.Connect(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("connecting to database: %w", err)
	}

	goose.SetBaseFS(embedMigrations)
	if err := goose.SetDialect(driver); err != nil {
		return nil, fmt.Errorf("setting goose dialect: %w", err)
	}
	if err := goose.Up(db.DB, "migrations"); err != nil {
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	return &Store{db: db}, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// ============================================
// API Keys
// ============================================

func (s *Store) CreateAPIKey(ctx context.Context, key *domain.APIKey) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO api_keys (id, name, key_hash, key_prefix, created_at, last_used_at)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		key.ID, key.Name, key.KeyHash, key.KeyPrefix, key.CreatedAt, key.LastUsedAt)
	return wrapUniqueError(err)
}

func (s *Store) GetAPIKeyByHash(ctx context.Context, keyHash string) (*domain.APIKey, error) {
	var key domain.APIKey
	err := s.db.GetContext(ctx, &key,
		`SELECT id, name, key_hash, key_prefix, created_at, last_used_at FROM api_keys WHERE key_hash = $1`, keyHash)
	if err == sql.ErrNoRows {
		return nil, domain.ErrNotFound
	}
	return &key, err
}

func (s *Store) ListAPIKeys(ctx context.Context) ([]*domain.APIKey, error) {
	var keys []*domain.APIKey
	err := s.db.SelectContext(ctx, &keys,
		`SELECT id, name, key_hash, key_prefix, created_at, last_used_at FROM api_keys ORDER BY created_at DESC`)
	if err != nil {
		return nil, err
	}
	return keys, nil
}

func (s *Store) DeleteAPIKey(ctx context.Context, id string) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM api_keys WHERE id = $1`, id)
	if err != nil {
		return err
	}
	rows, _ := result.RowsAffected()
	if rows == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (s *Store) UpdateAPIKeyLastUsed(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE api_keys SET last_used_at = $1 WHERE id = $2`, time.Now(), id)
	return err
}

func (s *Store) CountAPIKeys(ctx context.Context) (int, error) {
	var count int
	err := s.db.GetContext(ctx, &count, `SELECT COUNT(*) FROM api_keys`)
	return count, err
}

// ============================================
// Rule definitions
// ============================================

func (s *Store) CreateRule(ctx context.Context, rule *domain.Rule) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO rules (id, name, module, partition_name, content, state, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		rule.ID, rule.Name, rule.Module, rule.Partition, rule.Content, rule.State, rule.CreatedAt, rule.UpdatedAt)
	return wrapUniqueError(err)
}

func (s *Store) GetRule(ctx context.Context, id string) (*domain.Rule, error) {
	var rule domain.Rule
	err := s.db.GetContext(ctx, &rule,
		`SELECT id, name, module, partition_name, content, state, created_at, updated_at FROM rules WHERE id = $1`, id)
	if err == sql.ErrNoRows {
		return nil, domain.ErrNotFound
	}
	return &rule, err
}

func (s *Store) GetRuleByKey(ctx context.Context, module domain.TrafficModule, partition, name string) (*domain.Rule, error) {
	var rule domain.Rule
	err := s.db.GetContext(ctx, &rule,
		`SELECT id, name, module, partition_name, content, state, created_at, updated_at
		 FROM rules WHERE module = $1 AND partition_name = $2 AND name = $3`,
		module, partition, name)
	if err == sql.ErrNoRows {
		return nil, domain.ErrNotFound
	}
	return &rule, err
}

func (s *Store) ListRules(ctx context.Context) ([]*domain.Rule, error) {
	var rules []*domain.Rule
	err := s.db.SelectContext(ctx, &rules,
		`SELECT id, name, module, partition_name, content, state, created_at, updated_at
		 FROM rules ORDER BY module, partition_name, name`)
	if err != nil {
		return nil, err
	}
	return rules, nil
}

func (s *Store) UpdateRule(ctx context.Context, rule *domain.Rule) error {
	result, err := s.db.ExecContext(ctx,
		`UPDATE rules SET content = $1, state = $2, updated_at = $3 WHERE id = $4`,
		rule.Content, rule.State, rule.UpdatedAt, rule.ID)
	if err != nil {
		return err
	}
	rows, _ := result.RowsAffected()
	if rows == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (s *Store) DeleteRule(ctx context.Context, id string) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM rules WHERE id = $1`, id)
	if err != nil {
		return err
	}
	rows, _ := result.RowsAffected()
	if rows == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// ============================================
// Apply history
// ============================================

func (s *Store) CreateApplyRun(ctx context.Context, run *domain.ApplyRun) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO apply_runs (id, rule_id, action, changed, dry_run, error, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		run.ID, run.RuleID, run.Action, run.Changed, run.DryRun, run.Error, run.CreatedAt)
	return err
}

func (s *Store) ListApplyRuns(ctx context.Context, limit, offset int) ([]*domain.ApplyRun, error) {
	if limit <= 0 {
		limit = 50
	}
	var runs []*domain.ApplyRun
	err := s.db.SelectContext(ctx, &runs,
		`SELECT id, rule_id, action, changed, dry_run, error, created_at
		 FROM apply_runs ORDER BY created_at DESC LIMIT $1 OFFSET $2`, limit, offset)
	if err != nil {
		return nil, err
	}
	return runs, nil
}

func (s *Store) ListApplyRunsForRule(ctx context.Context, ruleID string) ([]*domain.ApplyRun, error) {
	var runs []*domain.ApplyRun
	err := s.db.SelectContext(ctx, &runs,
		`SELECT id, rule_id, action, changed, dry_run, error, created_at
		 FROM apply_runs WHERE rule_id = $1 ORDER BY created_at DESC`, ruleID)
	if err != nil {
		return nil, err
	}
	return runs, nil
}
