// Package domain defines the persistent entities, value types, and rule
// evaluation primitives used by trackcore.
package domain

import "time"

// EntityType identifies the type of record stored in the core domain.
type EntityType string

// Supported entity type identifiers used in Change records and persistence buckets.
const (
	// EntityTenant identifies the root isolation domain record.
	EntityTenant EntityType = "tenant"
	// EntityUser identifies a user account record.
	EntityUser EntityType = "user"
	// EntityClient identifies a billing client record.
	EntityClient EntityType = "client"
	// EntityProject identifies a project record.
	EntityProject EntityType = "project"
	// EntityTechnology identifies a tagged technology record.
	EntityTechnology EntityType = "technology"
	// EntityTimeEntry identifies a timed work session record.
	EntityTimeEntry EntityType = "time_entry"
	// EntityProjectTechnology identifies a project/technology link row.
	EntityProjectTechnology EntityType = "project_technology"
	// EntityTimeEntryTechnology identifies a time-entry/technology link row.
	EntityTimeEntryTechnology EntityType = "time_entry_technology"
)

// Severity captures rule outcomes.
type Severity string

// Rule evaluation severities determine commit behavior and logging.
const (
	// SeverityBlock blocks transaction commit.
	SeverityBlock Severity = "block"
	// SeverityWarn allows commit and is surfaced at warning level.
	SeverityWarn Severity = "warn"
	// SeverityLog allows commit and is surfaced informationally.
	SeverityLog Severity = "log"
)

// Base contains common fields for all domain records.
type Base struct {
	ID        string    `json:"id"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// EntityID returns the record identifier.
func (b Base) EntityID() string { return b.ID }

// Record is the minimal surface every stored entity exposes to the
// registry-driven rules: its identifier and the tenant it belongs to.
type Record interface {
	EntityID() string
	OwnerTenant() string
}

// Tenant is the root of an isolation domain; every other entity belongs to
// exactly one tenant.
type Tenant struct {
	Base
	Name         string `json:"name"`
	ContactEmail string `json:"contact_email,omitempty"`
}

// OwnerTenant returns the tenant's own identifier: a tenant owns itself.
func (t Tenant) OwnerTenant() string { return t.ID }

// User is an account scoped to a tenant. Email is unique within the tenant only.
type User struct {
	Base
	TenantID     string `json:"tenant_id"`
	Email        string `json:"email"`
	DisplayName  string `json:"display_name"`
	PasswordHash string `json:"password_hash,omitempty"`
	IsAdmin      bool   `json:"is_admin"`
}

// OwnerTenant returns the owning tenant identifier.
func (u User) OwnerTenant() string { return u.TenantID }

// Client is a billing client owned by a tenant.
type Client struct {
	Base
	TenantID     string `json:"tenant_id"`
	Name         string `json:"name"`
	ContactEmail string `json:"contact_email,omitempty"`
	Notes        string `json:"notes,omitempty"`
}

// OwnerTenant returns the owning tenant identifier.
func (c Client) OwnerTenant() string { return c.TenantID }

// Project is owned by a tenant and a client; the client must belong to the
// same tenant. Name is unique within the tenant.
type Project struct {
	Base
	TenantID    string `json:"tenant_id"`
	ClientID    string `json:"client_id"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	IsActive    bool   `json:"is_active"`
}

// OwnerTenant returns the owning tenant identifier.
func (p Project) OwnerTenant() string { return p.TenantID }

// Technology is a taggable technology owned by a tenant.
type Technology struct {
	Base
	TenantID    string `json:"tenant_id"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	IsArchived  bool   `json:"is_archived"`
}

// OwnerTenant returns the owning tenant identifier.
func (t Technology) OwnerTenant() string { return t.TenantID }

// TimeEntry is a timed work session recorded by a user against a project.
// A nil EndTime marks an open session. DurationMinutes is derived from the
// timestamps and is never caller-settable.
type TimeEntry struct {
	Base
	TenantID        string     `json:"tenant_id"`
	UserID          string     `json:"user_id"`
	ProjectID       string     `json:"project_id"`
	StartTime       time.Time  `json:"start_time"`
	EndTime         *time.Time `json:"end_time,omitempty"`
	Notes           string     `json:"notes,omitempty"`
	DurationMinutes *int64     `json:"duration_minutes,omitempty"`
}

// OwnerTenant returns the owning tenant identifier.
func (e TimeEntry) OwnerTenant() string { return e.TenantID }

// Open reports whether the entry has no end time yet.
func (e TimeEntry) Open() bool { return e.EndTime == nil }

// ProjectTechnology links a project to a technology. The pair is unique and
// both sides must share the tenant.
type ProjectTechnology struct {
	Base
	TenantID     string `json:"tenant_id"`
	ProjectID    string `json:"project_id"`
	TechnologyID string `json:"technology_id"`
}

// OwnerTenant returns the owning tenant identifier.
func (l ProjectTechnology) OwnerTenant() string { return l.TenantID }

// TimeEntryTechnology links a time entry to a technology. The pair is unique
// and both sides must share the tenant.
type TimeEntryTechnology struct {
	Base
	TenantID     string `json:"tenant_id"`
	TimeEntryID  string `json:"time_entry_id"`
	TechnologyID string `json:"technology_id"`
}

// OwnerTenant returns the owning tenant identifier.
func (l TimeEntryTechnology) OwnerTenant() string { return l.TenantID }

// Change describes a mutation applied to an entity during a transaction.
type Change struct {
	Entity EntityType
	Action Action
	Before any
	After  any
}

// Action indicates the type of modification performed.
type Action string

// Change actions enumerate supported CRUD operations captured in the change log.
const (
	// ActionCreate indicates an entity was created.
	ActionCreate Action = "create"
	// ActionUpdate indicates an entity was updated.
	ActionUpdate Action = "update"
	ActionDelete Action = "delete"
)

// ViolationKind classifies a failed rule evaluation.
type ViolationKind string

// Violation kinds reported by the built-in rule set.
const (
	// ViolationTenantMismatch marks a record whose parent belongs to a different tenant.
	ViolationTenantMismatch ViolationKind = "tenant_mismatch"
	// ViolationDanglingReference marks a parent reference that does not resolve.
	ViolationDanglingReference ViolationKind = "dangling_reference"
	// ViolationUniqueConflict marks a tenant-scoped uniqueness conflict.
	ViolationUniqueConflict ViolationKind = "unique_conflict"
	// ViolationTemporalInvalid marks an end time earlier than its start time.
	ViolationTemporalInvalid ViolationKind = "temporal_invalid"
)

// Violation reports a failed rule evaluation. It always names the offending
// entity and field; violations are collected, never silently dropped.
type Violation struct {
	Rule     string
	Kind     ViolationKind
	Severity Severity
	Message  string
	Entity   EntityType
	EntityID string
	Field    string
}

// Result aggregates violations from the rules engine.
type Result struct {
	Violations []Violation
}

// Merge appends violations from another result.
func (r *Result) Merge(other Result) {
	if len(other.Violations) == 0 {
		return
	}
	r.Violations = append(r.Violations, other.Violations...)
}

// HasBlocking returns true if the result contains blocking violations.
func (r Result) HasBlocking() bool {
	for _, v := range r.Violations {
		if v.Severity == SeverityBlock {
			return true
		}
	}
	return false
}
