package core

import (
	"context"
	"fmt"

	"trackcore/pkg/domain"
)

// TenantConsistencyRule walks every parent edge declared in the registry and
// verifies that each reference resolves and that the referenced record lives
// in the same tenant as the referencing record. Validation always covers the
// whole staged state, so a record that becomes invalid only through another
// record's mutation is still reported.
type TenantConsistencyRule struct {
	Registry *domain.Registry
}

// Name identifies the rule in violation reports.
func (TenantConsistencyRule) Name() string { return "tenant-consistency" }

// Evaluate checks referential integrity and tenant agreement for all records.
func (r TenantConsistencyRule) Evaluate(_ context.Context, view RuleView, _ []Change) (Result, error) {
	var result Result
	for _, entityType := range r.Registry.Types() {
		spec, ok := r.Registry.Spec(entityType)
		if !ok || len(spec.Parents) == 0 {
			continue
		}
		for _, rec := range sortedRecords(view, entityType) {
			for _, edge := range spec.Parents {
				ref, ok := edge.RefID(rec)
				if !ok {
					continue
				}
				if ref == "" {
					result.Violations = append(result.Violations, Violation{
						Rule:     r.Name(),
						Kind:     domain.ViolationDanglingReference,
						Severity: domain.SeverityBlock,
						Message:  fmt.Sprintf("%s %s has no %s", entityType, rec.EntityID(), edge.Field),
						Entity:   entityType,
						EntityID: rec.EntityID(),
						Field:    edge.Field,
					})
					continue
				}
				parent, found := view.Find(edge.Parent, ref)
				if !found {
					result.Violations = append(result.Violations, Violation{
						Rule:     r.Name(),
						Kind:     domain.ViolationDanglingReference,
						Severity: domain.SeverityBlock,
						Message:  fmt.Sprintf("%s %s references missing %s %s", entityType, rec.EntityID(), edge.Parent, ref),
						Entity:   entityType,
						EntityID: rec.EntityID(),
						Field:    edge.Field,
					})
					continue
				}
				if parent.OwnerTenant() != rec.OwnerTenant() {
					result.Violations = append(result.Violations, Violation{
						Rule:     r.Name(),
						Kind:     domain.ViolationTenantMismatch,
						Severity: domain.SeverityBlock,
						Message:  fmt.Sprintf("%s %s references %s %s owned by tenant %s, not %s", entityType, rec.EntityID(), edge.Parent, ref, parent.OwnerTenant(), rec.OwnerTenant()),
						Entity:   entityType,
						EntityID: rec.EntityID(),
						Field:    edge.Field,
					})
				}
			}
		}
	}
	return result, nil
}
