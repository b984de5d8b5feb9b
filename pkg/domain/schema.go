package domain

import "strings"

// keySep separates composite key parts; chosen to never occur in identifiers
// or email addresses.
const keySep = "\x1f"

// CompositeKey joins field values into a single scoped uniqueness key.
func CompositeKey(parts ...string) string { return strings.Join(parts, keySep) }

// ParentEdge declares a directed parent->child ownership edge. Field names the
// foreign field on the child realizing the edge; RefID extracts the referenced
// parent identifier from a child record. An empty identifier means the
// reference is missing.
type ParentEdge struct {
	Field  string
	Parent EntityType
	RefID  func(Record) (string, bool)
}

// UniqueConstraint declares a uniqueness rule over one entity type. Key builds
// the scoped composite key for a record; tenant-scoped constraints include the
// tenant identifier in the key. A false return excludes the record.
type UniqueConstraint struct {
	Name   string
	Fields []string
	Key    func(Record) (string, bool)
}

// EntitySpec declares one entity type: its parent edges and uniqueness
// constraints. The field set itself lives on the entity structs; the spec
// carries only what the validator walks generically.
type EntitySpec struct {
	Type    EntityType
	Parents []ParentEdge
	Uniques []UniqueConstraint
}

// Registry holds declarative entity specs. Read-only after construction and
// safely shared across concurrent rule evaluations.
type Registry struct {
	order []EntityType
	specs map[EntityType]EntitySpec
}

// NewRegistry builds a registry from the supplied specs, preserving
// declaration order (parents before children).
func NewRegistry(specs ...EntitySpec) *Registry {
	r := &Registry{specs: make(map[EntityType]EntitySpec, len(specs))}
	for _, spec := range specs {
		r.order = append(r.order, spec.Type)
		r.specs[spec.Type] = spec
	}
	return r
}

// Types returns entity types in declaration order.
func (r *Registry) Types() []EntityType {
	out := make([]EntityType, len(r.order))
	copy(out, r.order)
	return out
}

// Spec returns the declared spec for an entity type.
func (r *Registry) Spec(t EntityType) (EntitySpec, bool) {
	spec, ok := r.specs[t]
	return spec, ok
}

// Children returns the entity types declaring t as a parent, with the edges
// realizing each dependency. Used by cascade deletion to find dependents.
func (r *Registry) Children(t EntityType) []ChildEdge {
	var out []ChildEdge
	for _, child := range r.order {
		for _, edge := range r.specs[child].Parents {
			if edge.Parent == t {
				out = append(out, ChildEdge{Child: child, Edge: edge})
			}
		}
	}
	return out
}

// ChildEdge pairs a dependent entity type with the parent edge pointing back
// at the deleted ancestor.
type ChildEdge struct {
	Child EntityType
	Edge  ParentEdge
}

func tenantRef(rec Record) (string, bool) {
	if _, ok := rec.(Tenant); ok {
		return "", false
	}
	return rec.OwnerTenant(), true
}

// DefaultRegistry declares the full trackcore entity graph: the ownership
// edges and the tenant-scoped uniqueness constraints. New entity types are
// added by declaration alone; the validator walks this generically.
func DefaultRegistry() *Registry {
	return NewRegistry(
		EntitySpec{Type: EntityTenant},
		EntitySpec{
			Type: EntityUser,
			Parents: []ParentEdge{
				{Field: "tenant_id", Parent: EntityTenant, RefID: tenantRef},
			},
			Uniques: []UniqueConstraint{
				{
					Name:   "users_tenant_email",
					Fields: []string{"tenant_id", "email"},
					Key: func(rec Record) (string, bool) {
						u, ok := rec.(User)
						if !ok {
							return "", false
						}
						return CompositeKey(u.TenantID, u.Email), true
					},
				},
			},
		},
		EntitySpec{
			Type: EntityClient,
			Parents: []ParentEdge{
				{Field: "tenant_id", Parent: EntityTenant, RefID: tenantRef},
			},
		},
		EntitySpec{
			Type: EntityTechnology,
			Parents: []ParentEdge{
				{Field: "tenant_id", Parent: EntityTenant, RefID: tenantRef},
			},
		},
		EntitySpec{
			Type: EntityProject,
			Parents: []ParentEdge{
				{Field: "tenant_id", Parent: EntityTenant, RefID: tenantRef},
				{Field: "client_id", Parent: EntityClient, RefID: func(rec Record) (string, bool) {
					p, ok := rec.(Project)
					if !ok {
						return "", false
					}
					return p.ClientID, true
				}},
			},
			Uniques: []UniqueConstraint{
				{
					Name:   "projects_tenant_name",
					Fields: []string{"tenant_id", "name"},
					Key: func(rec Record) (string, bool) {
						p, ok := rec.(Project)
						if !ok {
							return "", false
						}
						return CompositeKey(p.TenantID, p.Name), true
					},
				},
			},
		},
		EntitySpec{
			Type: EntityTimeEntry,
			Parents: []ParentEdge{
				{Field: "tenant_id", Parent: EntityTenant, RefID: tenantRef},
				{Field: "user_id", Parent: EntityUser, RefID: func(rec Record) (string, bool) {
					e, ok := rec.(TimeEntry)
					if !ok {
						return "", false
					}
					return e.UserID, true
				}},
				{Field: "project_id", Parent: EntityProject, RefID: func(rec Record) (string, bool) {
					e, ok := rec.(TimeEntry)
					if !ok {
						return "", false
					}
					return e.ProjectID, true
				}},
			},
		},
		EntitySpec{
			Type: EntityProjectTechnology,
			Parents: []ParentEdge{
				{Field: "tenant_id", Parent: EntityTenant, RefID: tenantRef},
				{Field: "project_id", Parent: EntityProject, RefID: func(rec Record) (string, bool) {
					l, ok := rec.(ProjectTechnology)
					if !ok {
						return "", false
					}
					return l.ProjectID, true
				}},
				{Field: "technology_id", Parent: EntityTechnology, RefID: func(rec Record) (string, bool) {
					l, ok := rec.(ProjectTechnology)
					if !ok {
						return "", false
					}
					return l.TechnologyID, true
				}},
			},
			Uniques: []UniqueConstraint{
				{
					Name:   "project_technologies_pair",
					Fields: []string{"project_id", "technology_id"},
					Key: func(rec Record) (string, bool) {
						l, ok := rec.(ProjectTechnology)
						if !ok {
							return "", false
						}
						return CompositeKey(l.ProjectID, l.TechnologyID), true
					},
				},
			},
		},
		EntitySpec{
			Type: EntityTimeEntryTechnology,
			Parents: []ParentEdge{
				{Field: "tenant_id", Parent: EntityTenant, RefID: tenantRef},
				{Field: "time_entry_id", Parent: EntityTimeEntry, RefID: func(rec Record) (string, bool) {
					l, ok := rec.(TimeEntryTechnology)
					if !ok {
						return "", false
					}
					return l.TimeEntryID, true
				}},
				{Field: "technology_id", Parent: EntityTechnology, RefID: func(rec Record) (string, bool) {
					l, ok := rec.(TimeEntryTechnology)
					if !ok {
						return "", false
					}
					return l.TechnologyID, true
				}},
			},
			Uniques: []UniqueConstraint{
				{
					Name:   "time_entry_technologies_pair",
					Fields: []string{"time_entry_id", "technology_id"},
					Key: func(rec Record) (string, bool) {
						l, ok := rec.(TimeEntryTechnology)
						if !ok {
							return "", false
						}
						return CompositeKey(l.TimeEntryID, l.TechnologyID), true
					},
				},
			},
		},
	)
}
