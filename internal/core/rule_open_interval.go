package core

import (
	"context"
	"fmt"

	"trackcore/pkg/domain"
)

// TimeEntryIntervalRule validates the temporal shape of every time entry: a
// start time must be set, and a closed entry must not end before it starts.
// Zero-length entries are legal. An absent end time marks an open session and
// is always valid.
type TimeEntryIntervalRule struct{}

// Name identifies the rule in violation reports.
func (TimeEntryIntervalRule) Name() string { return "time-entry-interval" }

// Evaluate checks start/end ordering for all staged time entries.
func (r TimeEntryIntervalRule) Evaluate(_ context.Context, view RuleView, _ []Change) (Result, error) {
	var result Result
	for _, rec := range sortedRecords(view, domain.EntityTimeEntry) {
		entry, ok := rec.(TimeEntry)
		if !ok {
			continue
		}
		if entry.StartTime.IsZero() {
			result.Violations = append(result.Violations, Violation{
				Rule:     r.Name(),
				Kind:     domain.ViolationTemporalInvalid,
				Severity: domain.SeverityBlock,
				Message:  fmt.Sprintf("time entry %s has no start time", entry.ID),
				Entity:   domain.EntityTimeEntry,
				EntityID: entry.ID,
				Field:    "start_time",
			})
			continue
		}
		if entry.EndTime != nil && entry.EndTime.Before(entry.StartTime) {
			result.Violations = append(result.Violations, Violation{
				Rule:     r.Name(),
				Kind:     domain.ViolationTemporalInvalid,
				Severity: domain.SeverityBlock,
				Message:  fmt.Sprintf("time entry %s ends before it starts", entry.ID),
				Entity:   domain.EntityTimeEntry,
				EntityID: entry.ID,
				Field:    "end_time",
			})
		}
	}
	return result, nil
}
