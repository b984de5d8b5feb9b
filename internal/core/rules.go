package core

import (
	"sort"

	"trackcore/pkg/domain"
)

// NewDefaultRulesEngine wires the built-in rule set over the given registry.
// Registration order is fixed: referential and tenant checks run before
// uniqueness checks, which run before temporal checks, so violation lists are
// reproducible for identical staged states.
func NewDefaultRulesEngine(registry *domain.Registry) *RulesEngine {
	engine := domain.NewRulesEngine()
	engine.Register(TenantConsistencyRule{Registry: registry})
	engine.Register(ScopedUniqueRule{Registry: registry})
	engine.Register(TimeEntryIntervalRule{})
	return engine
}

// sortedRecords returns the records of one entity type ordered by identifier
// so rule output does not depend on map iteration order.
func sortedRecords(view RuleView, t EntityType) []domain.Record {
	records := view.List(t)
	sort.Slice(records, func(i, j int) bool {
		return records[i].EntityID() < records[j].EntityID()
	})
	return records
}
