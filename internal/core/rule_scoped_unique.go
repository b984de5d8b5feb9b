package core

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"trackcore/pkg/domain"
)

// ScopedUniqueRule enforces the uniqueness constraints declared in the
// registry. Keys are scoped composites, so the same email or project name may
// exist in two different tenants without conflict. When a group collides,
// records written in the current transaction are the flagged offenders; when
// the change list does not single anyone out, the record with the smallest
// identifier is treated as the holder and every other member is flagged.
type ScopedUniqueRule struct {
	Registry *domain.Registry
}

// Name identifies the rule in violation reports.
func (ScopedUniqueRule) Name() string { return "scoped-unique" }

// Evaluate flags the colliding members of every composite-key group.
func (r ScopedUniqueRule) Evaluate(_ context.Context, view RuleView, changes []Change) (Result, error) {
	var result Result
	staged := map[string]bool{}
	for _, change := range changes {
		if rec, ok := change.After.(domain.Record); ok {
			staged[rec.EntityID()] = true
		}
	}
	for _, entityType := range r.Registry.Types() {
		spec, ok := r.Registry.Spec(entityType)
		if !ok || len(spec.Uniques) == 0 {
			continue
		}
		for _, constraint := range spec.Uniques {
			groups := map[string][]string{}
			for _, rec := range view.List(entityType) {
				key, ok := constraint.Key(rec)
				if !ok {
					continue
				}
				groups[key] = append(groups[key], rec.EntityID())
			}
			keys := make([]string, 0, len(groups))
			for key, ids := range groups {
				if len(ids) > 1 {
					keys = append(keys, key)
				}
			}
			sort.Strings(keys)
			for _, key := range keys {
				ids := groups[key]
				sort.Strings(ids)
				offenders := ids[1:]
				var stagedIDs []string
				for _, id := range ids {
					if staged[id] {
						stagedIDs = append(stagedIDs, id)
					}
				}
				if len(stagedIDs) > 0 && len(stagedIDs) < len(ids) {
					offenders = stagedIDs
				}
				for _, id := range offenders {
					result.Violations = append(result.Violations, Violation{
						Rule:     r.Name(),
						Kind:     domain.ViolationUniqueConflict,
						Severity: domain.SeverityBlock,
						Message:  fmt.Sprintf("%s %s violates %s (%s)", entityType, id, constraint.Name, strings.Join(constraint.Fields, ", ")),
						Entity:   entityType,
						EntityID: id,
						Field:    strings.Join(constraint.Fields, ","),
					})
				}
			}
		}
	}
	return result, nil
}
