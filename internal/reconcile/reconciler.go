// Package reconcile compares a desired iRule spec against the device and
// applies the minimal change: create, update the body, delete, or nothing.
package reconcile

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/mhodges/bigip-rule-manager/internal/bigip"
	"github.com/mhodges/bigip-rule-manager/internal/domain"
	"github.com/mhodges/bigip-rule-manager/internal/validation"
)

// Reconciler drives desired state onto the device. One reconciler handles
// both LTM and GTM rules; the module is data on the spec, not a separate
// manager type.
type Reconciler struct {
	client bigip.DeviceClient
}

// New creates a Reconciler backed by the given device client.
func New(client bigip.DeviceClient) *Reconciler {
	return &Reconciler{client: client}
}

// Apply reconciles one spec. In dry-run mode the decision is made as usual
// but no mutating call reaches the device and no post-condition check runs.
// At most one mutating call is issued per invocation.
func (r *Reconciler) Apply(ctx context.Context, spec domain.RuleSpec, dryRun bool) (*domain.ApplyResult, error) {
	spec.Normalize()
	if err := validation.ValidateSpec(spec); err != nil {
		return nil, err
	}

	content, err := resolveContent(spec)
	if err != nil {
		return nil, err
	}

	result := &domain.ApplyResult{
		Action:    domain.ActionNone,
		DryRun:    dryRun,
		Name:      spec.Name,
		Module:    spec.Module,
		Partition: spec.Partition,
	}

	exists, err := r.client.Exists(ctx, spec.Module, spec.Partition, spec.Name)
	if err != nil {
		return nil, err
	}

	switch spec.State {
	case domain.StatePresent:
		if !exists {
			return r.create(ctx, spec, content, result)
		}
		return r.update(ctx, spec, content, result)
	case domain.StateAbsent:
		if !exists {
			return result, nil
		}
		return r.remove(ctx, spec, result)
	}
	return result, nil
}

func (r *Reconciler) create(ctx context.Context, spec domain.RuleSpec, content string, result *domain.ApplyResult) (*domain.ApplyResult, error) {
	result.Changed = true
	result.Action = domain.ActionCreate
	result.Content = content
	result.Src = spec.Src
	if result.DryRun {
		return result, nil
	}

	if err := r.client.Create(ctx, spec.Module, spec.Partition, spec.Name, content); err != nil {
		return nil, err
	}
	exists, err := r.client.Exists(ctx, spec.Module, spec.Partition, spec.Name)
	if err != nil {
		return nil, err
	}
	if !exists {
		return nil, domain.ErrCreateNotEffective
	}
	return result, nil
}

func (r *Reconciler) update(ctx context.Context, spec domain.RuleSpec, content string, result *domain.ApplyResult) (*domain.ApplyResult, error) {
	remote, err := r.client.Fetch(ctx, spec.Module, spec.Partition, spec.Name)
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(remote.Content) == content {
		return result, nil
	}

	result.Changed = true
	result.Action = domain.ActionUpdate
	result.Content = content
	result.Src = spec.Src
	if result.DryRun {
		return result, nil
	}

	if err := r.client.Update(ctx, spec.Module, spec.Partition, spec.Name, content); err != nil {
		return nil, err
	}
	return result, nil
}

func (r *Reconciler) remove(ctx context.Context, spec domain.RuleSpec, result *domain.ApplyResult) (*domain.ApplyResult, error) {
	result.Changed = true
	result.Action = domain.ActionDelete
	if result.DryRun {
		return result, nil
	}

	if err := r.client.Delete(ctx, spec.Module, spec.Partition, spec.Name); err != nil {
		return nil, err
	}
	exists, err := r.client.Exists(ctx, spec.Module, spec.Partition, spec.Name)
	if err != nil {
		return nil, err
	}
	if exists {
		return nil, domain.ErrDeleteNotEffective
	}
	return result, nil
}

// resolveContent produces the literal rule text from the spec: either the
// inline content or the contents of the src file, whitespace-trimmed.
func resolveContent(spec domain.RuleSpec) (string, error) {
	if spec.State == domain.StateAbsent {
		return "", nil
	}
	if spec.Src != "" {
		data, err := os.ReadFile(spec.Src)
		if err != nil {
			if os.IsNotExist(err) {
				return "", fmt.Errorf("the specified 'src' was not found: %s", spec.Src)
			}
			return "", fmt.Errorf("reading 'src' %s: %w", spec.Src, err)
		}
		return strings.TrimSpace(string(data)), nil
	}
	return strings.TrimSpace(spec.Content), nil
}
