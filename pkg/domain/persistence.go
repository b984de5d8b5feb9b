package domain

import (
	"context"
	"time"
)

// Transaction exposes the domain operations that a persistence implementation
// must support within an atomic scope. Deletes cascade to every transitively
// owned record, leaf rows first.
type Transaction interface {
	Snapshot() TransactionView
	CreateTenant(Tenant) (Tenant, error)
	UpdateTenant(id string, mutator func(*Tenant) error) (Tenant, error)
	DeleteTenant(id string) error
	CreateUser(User) (User, error)
	UpdateUser(id string, mutator func(*User) error) (User, error)
	DeleteUser(id string) error
	CreateClient(Client) (Client, error)
	UpdateClient(id string, mutator func(*Client) error) (Client, error)
	DeleteClient(id string) error
	CreateProject(Project) (Project, error)
	UpdateProject(id string, mutator func(*Project) error) (Project, error)
	DeleteProject(id string) error
	CreateTechnology(Technology) (Technology, error)
	UpdateTechnology(id string, mutator func(*Technology) error) (Technology, error)
	DeleteTechnology(id string) error
	CreateTimeEntry(TimeEntry) (TimeEntry, error)
	UpdateTimeEntry(id string, mutator func(*TimeEntry) error) (TimeEntry, error)
	DeleteTimeEntry(id string) error
	AddProjectTechnology(projectID, technologyID string) (ProjectTechnology, error)
	RemoveProjectTechnology(projectID, technologyID string) error
	AddTimeEntryTechnology(timeEntryID, technologyID string) (TimeEntryTechnology, error)
	RemoveTimeEntryTechnology(timeEntryID, technologyID string) error
}

// TransactionView provides read-only access to snapshot data for rules and
// projections.
type TransactionView interface {
	RuleView
	ListTenants() []Tenant
	ListUsers() []User
	ListClients() []Client
	ListProjects() []Project
	ListTechnologies() []Technology
	ListTimeEntries() []TimeEntry
	ListProjectTechnologies() []ProjectTechnology
	ListTimeEntryTechnologies() []TimeEntryTechnology
	FindTenant(id string) (Tenant, bool)
	FindUser(id string) (User, bool)
	FindClient(id string) (Client, bool)
	FindProject(id string) (Project, bool)
	FindTechnology(id string) (Technology, bool)
	FindTimeEntry(id string) (TimeEntry, bool)
}

// PersistentStore is a minimal abstraction over durable backends. All reads
// used for validation and the eventual commit happen within one transactional
// scope so concurrent writers cannot be validated against stale state.
type PersistentStore interface {
	RunInTransaction(ctx context.Context, fn func(Transaction) error) (Result, error)
	ValidateOnly(ctx context.Context, fn func(Transaction) error) (Result, error)
	View(ctx context.Context, fn func(TransactionView) error) error
	GetTenant(id string) (Tenant, bool)
	ListTenants() []Tenant
	GetUser(id string) (User, bool)
	ListUsers() []User
	GetProject(id string) (Project, bool)
	ListProjects() []Project
	GetTimeEntry(id string) (TimeEntry, bool)
	ListTimeEntries() []TimeEntry
}

// ResolveTimeEntry recomputes the derived fields of a time entry. Duration is
// whole minutes between start and end when the entry is closed, and absent
// while the session is open. Any caller-supplied value is overwritten, never
// trusted.
func ResolveTimeEntry(entry *TimeEntry) {
	if entry.EndTime == nil {
		entry.DurationMinutes = nil
		return
	}
	minutes := int64(entry.EndTime.Sub(entry.StartTime) / time.Minute)
	entry.DurationMinutes = &minutes
}
