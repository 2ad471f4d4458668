package domain

import "time"

// TrafficModule identifies the BIG-IP product module that owns an iRule
// namespace. LTM and GTM rules live in separate collections on the device.
type TrafficModule string

const (
	ModuleLTM TrafficModule = "ltm"
	ModuleGTM TrafficModule = "gtm"
)

// Valid reports whether the module is one of the supported values.
func (m TrafficModule) Valid() bool {
	return m == ModuleLTM || m == ModuleGTM
}

// DesiredState says whether a rule should exist on the device.
type DesiredState string

const (
	StatePresent DesiredState = "present"
	StateAbsent  DesiredState = "absent"
)

// Valid reports whether the state is one of the supported values.
func (s DesiredState) Valid() bool {
	return s == StatePresent || s == StateAbsent
}

// DefaultPartition is the administrative partition used when none is given.
const DefaultPartition = "Common"

// RuleSpec is the desired state for a single iRule on the device.
// Content and Src are mutually exclusive; Src names a local file whose
// contents become the rule body.
type RuleSpec struct {
	Name      string        `json:"name"`
	Module    TrafficModule `json:"module"`
	Partition string        `json:"partition"`
	Content   string        `json:"content,omitempty"`
	Src       string        `json:"src,omitempty"`
	State     DesiredState  `json:"state"`
}

// Normalize fills in the defaulted fields.
func (s *RuleSpec) Normalize() {
	if s.Partition == "" {
		s.Partition = DefaultPartition
	}
	if s.State == "" {
		s.State = StatePresent
	}
}

// RemoteRule is the device's current object for (module, partition, name).
// It is fetched fresh on every invocation and never cached.
type RemoteRule struct {
	Name      string
	Partition string
	FullPath  string
	Content   string
}

// Rule is a stored iRule definition managed through the API surface.
type Rule struct {
	ID        string        `json:"id" db:"id"`
	Name      string        `json:"name" db:"name"`
	Module    TrafficModule `json:"module" db:"module"`
	Partition string        `json:"partition" db:"partition_name"`
	Content   string        `json:"content" db:"content"`
	State     DesiredState  `json:"state" db:"state"`
	CreatedAt time.Time     `json:"createdAt" db:"created_at"`
	UpdatedAt time.Time     `json:"updatedAt" db:"updated_at"`
}

// Spec returns the desired-state view of the stored rule.
func (r *Rule) Spec() RuleSpec {
	spec := RuleSpec{
		Name:      r.Name,
		Module:    r.Module,
		Partition: r.Partition,
		Content:   r.Content,
		State:     r.State,
	}
	spec.Normalize()
	return spec
}

// CreateRuleRequest is the request body for creating a stored rule.
type CreateRuleRequest struct {
	Name      string        `json:"name"`
	Module    TrafficModule `json:"module"`
	Partition string        `json:"partition,omitempty"`
	Content   string        `json:"content"`
	State     DesiredState  `json:"state,omitempty"`
}

// UpdateRuleRequest is the request body for updating a stored rule.
type UpdateRuleRequest struct {
	Content *string       `json:"content,omitempty"`
	State   *DesiredState `json:"state,omitempty"`
}
