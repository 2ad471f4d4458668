// Package validation provides validation for iRule specs before anything is
// sent to the device. Name and partition rules follow BIG-IP object naming:
// names are path components under /mgmt/tm and must never contain the
// characters the iControl URI encoding reserves.
package validation

import (
	"fmt"
	"strings"

	"github.com/mhodges/bigip-rule-manager/internal/domain"
)

// isAlpha returns true if the byte is an ASCII letter.
func isAlpha(b byte) bool {
	return (b >= 'a' && b <= 'z') || (b >= 'A' && b <= 'Z')
}

// isNum returns true if the byte is an ASCII digit.
func isNum(b byte) bool {
	return b >= '0' && b <= '9'
}

// validateObjectName validates a BIG-IP object name component.
func validateObjectName(name, kind string) error {
	if name == "" {
		return fmt.Errorf("%s name is required", kind)
	}
	if !isAlpha(name[0]) && name[0] != '_' {
		return fmt.Errorf("%s name must start with a letter or underscore", kind)
	}
	for _, b := range []byte(name) {
		if !isAlpha(b) && !isNum(b) && b != '-' && b != '_' && b != '.' {
			return fmt.Errorf("%s names can only contain letters, numbers, hyphens, underscores, or dots", kind)
		}
	}
	return nil
}

// ValidateRuleName validates an iRule name.
func ValidateRuleName(name string) error {
	return validateObjectName(name, "iRule")
}

// ValidatePartition validates a partition name.
// The leading slash of a full path ("/Common") is tolerated.
func ValidatePartition(partition string) error {
	return validateObjectName(strings.TrimPrefix(partition, "/"), "partition")
}

// ValidateModule validates the target traffic module.
func ValidateModule(module domain.TrafficModule) error {
	if !module.Valid() {
		return fmt.Errorf("module must be one of: %s, %s", domain.ModuleLTM, domain.ModuleGTM)
	}
	return nil
}

// ValidateState validates the desired state.
func ValidateState(state domain.DesiredState) error {
	if !state.Valid() {
		return fmt.Errorf("state must be one of: %s, %s", domain.StatePresent, domain.StateAbsent)
	}
	return nil
}

// ValidateSpec validates a rule spec up front, before any call reaches the
// device. The spec must already be normalized.
func ValidateSpec(spec domain.RuleSpec) error {
	var errs ValidationErrors

	if err := ValidateRuleName(spec.Name); err != nil {
		errs.Add("name", spec.Name, err.Error())
	}
	if err := ValidateModule(spec.Module); err != nil {
		errs.Add("module", string(spec.Module), err.Error())
	}
	if err := ValidatePartition(spec.Partition); err != nil {
		errs.Add("partition", spec.Partition, err.Error())
	}
	if err := ValidateState(spec.State); err != nil {
		errs.Add("state", string(spec.State), err.Error())
	}
	if spec.Content != "" && spec.Src != "" {
		errs.Add("content", "", "'content' and 'src' are mutually exclusive")
	}
	if spec.State == domain.StatePresent && spec.Content == "" && spec.Src == "" {
		errs.Add("content", "", "either 'content' or 'src' must be provided")
	}

	if errs.HasErrors() {
		return errs
	}
	return nil
}
