package core

import (
	"context"
	"sort"
	"time"
)

// SummaryRow aggregates closed time entries for one user, client, project,
// and calendar day within a tenant. Open sessions are excluded until they
// close.
type SummaryRow struct {
	TenantID     string `json:"tenant_id"`
	UserID       string `json:"user_id"`
	ClientID     string `json:"client_id"`
	ProjectID    string `json:"project_id"`
	Day          string `json:"day"`
	TotalMinutes int64  `json:"total_minutes"`
	Entries      int    `json:"entries"`
}

// ActiveEntry pairs an open session with its elapsed minutes at query time.
// The elapsed value is never written back to the entry.
type ActiveEntry struct {
	Entry          TimeEntry `json:"entry"`
	ElapsedMinutes int64     `json:"elapsed_minutes"`
}

// Projector derives read-only reporting views from committed store state.
type Projector struct {
	store PersistentStore
	nowFn func() time.Time
}

// NewProjector constructs a projector over the store.
func NewProjector(store PersistentStore) *Projector {
	return &Projector{
		store: store,
		nowFn: func() time.Time { return time.Now().UTC() },
	}
}

// dayKey buckets a timestamp into its UTC calendar day.
func dayKey(t time.Time) string { return t.UTC().Format("2006-01-02") }

// Summary aggregates closed entries for one tenant, or for all tenants when
// tenantID is empty. Rows are sorted by tenant, day, user, and project so the
// output is stable for identical state.
func (p *Projector) Summary(ctx context.Context, tenantID string) ([]SummaryRow, error) {
	groups := map[string]*SummaryRow{}
	err := p.store.View(ctx, func(view TransactionView) error {
		for _, entry := range view.ListTimeEntries() {
			if entry.Open() || entry.DurationMinutes == nil {
				continue
			}
			if tenantID != "" && entry.TenantID != tenantID {
				continue
			}
			clientID := ""
			if project, ok := view.FindProject(entry.ProjectID); ok {
				clientID = project.ClientID
			}
			day := dayKey(entry.StartTime)
			key := entry.TenantID + "|" + entry.UserID + "|" + entry.ProjectID + "|" + day
			row, ok := groups[key]
			if !ok {
				row = &SummaryRow{
					TenantID:  entry.TenantID,
					UserID:    entry.UserID,
					ClientID:  clientID,
					ProjectID: entry.ProjectID,
					Day:       day,
				}
				groups[key] = row
			}
			row.TotalMinutes += *entry.DurationMinutes
			row.Entries++
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	rows := make([]SummaryRow, 0, len(groups))
	for _, row := range groups {
		rows = append(rows, *row)
	}
	sort.Slice(rows, func(i, j int) bool {
		a, b := rows[i], rows[j]
		if a.TenantID != b.TenantID {
			return a.TenantID < b.TenantID
		}
		if a.Day != b.Day {
			return a.Day < b.Day
		}
		if a.UserID != b.UserID {
			return a.UserID < b.UserID
		}
		return a.ProjectID < b.ProjectID
	})
	return rows, nil
}

// ActiveEntries lists open sessions for one tenant, or for all tenants when
// tenantID is empty, each with its elapsed minutes at the moment of the call.
func (p *Projector) ActiveEntries(ctx context.Context, tenantID string) ([]ActiveEntry, error) {
	now := p.nowFn()
	var active []ActiveEntry
	err := p.store.View(ctx, func(view TransactionView) error {
		for _, entry := range view.ListTimeEntries() {
			if !entry.Open() {
				continue
			}
			if tenantID != "" && entry.TenantID != tenantID {
				continue
			}
			active = append(active, ActiveEntry{
				Entry:          entry,
				ElapsedMinutes: int64(now.Sub(entry.StartTime) / time.Minute),
			})
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Slice(active, func(i, j int) bool {
		a, b := active[i], active[j]
		if !a.Entry.StartTime.Equal(b.Entry.StartTime) {
			return a.Entry.StartTime.Before(b.Entry.StartTime)
		}
		return a.Entry.ID < b.Entry.ID
	})
	return active, nil
}
