package domain

import "time"

// Apply actions, recorded per reconciliation.
const (
	ActionNone   = "none"
	ActionCreate = "create"
	ActionUpdate = "update"
	ActionDelete = "delete"
)

// ApplyResult reports the outcome of reconciling one RuleSpec against the
// device. Content and Src are only populated when a change was made (or
// would have been made, in a dry run).
type ApplyResult struct {
	Changed   bool          `json:"changed"`
	Action    string        `json:"action"`
	DryRun    bool          `json:"dryRun,omitempty"`
	Name      string        `json:"name"`
	Module    TrafficModule `json:"module"`
	Partition string        `json:"partition"`
	Src       string        `json:"src,omitempty"`
	Content   string        `json:"content,omitempty"`
}

// ApplyRun is a persisted record of one reconciliation of a stored rule.
type ApplyRun struct {
	ID        string    `json:"id" db:"id"`
	RuleID    string    `json:"ruleId" db:"rule_id"`
	Action    string    `json:"action" db:"action"`
	Changed   bool      `json:"changed" db:"changed"`
	DryRun    bool      `json:"dryRun" db:"dry_run"`
	Error     string    `json:"error,omitempty" db:"error"`
	CreatedAt time.Time `json:"createdAt" db:"created_at"`
}

// ApplyReport is the response for an apply-all request: one entry per
// stored rule, in the order they were reconciled.
type ApplyReport struct {
	DryRun  bool                `json:"dryRun"`
	Changed int                 `json:"changed"`
	Failed  int                 `json:"failed"`
	Results []*RuleApplyOutcome `json:"results"`
}

// RuleApplyOutcome pairs a stored rule with its reconciliation outcome.
type RuleApplyOutcome struct {
	RuleID string       `json:"ruleId"`
	Result *ApplyResult `json:"result,omitempty"`
	Error  string       `json:"error,omitempty"`
}
