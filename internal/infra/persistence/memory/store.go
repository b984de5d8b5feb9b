// Package memory provides an in-memory implementation of the core persistence
// store used for tests and ephemeral environments.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"trackcore/pkg/domain"
)

// Compile-time contract assertion ensuring memory.Store adheres to the domain persistence interface.
var _ domain.PersistentStore = (*Store)(nil)

type (
	// Tenant aliases domain.Tenant for in-memory persistence operations.
	Tenant = domain.Tenant
	// User aliases domain.User.
	User = domain.User
	// Client aliases domain.Client.
	Client = domain.Client
	// Project aliases domain.Project.
	Project = domain.Project
	// Technology aliases domain.Technology.
	Technology = domain.Technology
	// TimeEntry aliases domain.TimeEntry.
	TimeEntry = domain.TimeEntry
	// ProjectTechnology aliases domain.ProjectTechnology.
	ProjectTechnology = domain.ProjectTechnology
	// TimeEntryTechnology aliases domain.TimeEntryTechnology.
	TimeEntryTechnology = domain.TimeEntryTechnology
	// Change aliases domain.Change captured in transactions.
	Change = domain.Change
	// Result aliases domain.Result summarizing rule evaluation.
	Result = domain.Result
	// RulesEngine aliases domain.RulesEngine used to evaluate rules.
	RulesEngine = domain.RulesEngine
	// Transaction aliases domain.Transaction representing a mutable unit of work.
	Transaction = domain.Transaction
	// TransactionView aliases domain.TransactionView providing read-only state.
	TransactionView = domain.TransactionView
)

type memoryState struct {
	tenants      map[string]Tenant
	users        map[string]User
	clients      map[string]Client
	projects     map[string]Project
	technologies map[string]Technology
	entries      map[string]TimeEntry
	projectTech  map[string]ProjectTechnology
	entryTech    map[string]TimeEntryTechnology
}

// Snapshot captures a point-in-time clone of the store state.
type Snapshot struct {
	Tenants      map[string]Tenant              `json:"tenants"`
	Users        map[string]User                `json:"users"`
	Clients      map[string]Client              `json:"clients"`
	Projects     map[string]Project             `json:"projects"`
	Technologies map[string]Technology          `json:"technologies"`
	TimeEntries  map[string]TimeEntry           `json:"time_entries"`
	ProjectTech  map[string]ProjectTechnology   `json:"project_technologies"`
	EntryTech    map[string]TimeEntryTechnology `json:"time_entry_technologies"`
}

func newMemoryState() memoryState {
	return memoryState{
		tenants:      make(map[string]Tenant),
		users:        make(map[string]User),
		clients:      make(map[string]Client),
		projects:     make(map[string]Project),
		technologies: make(map[string]Technology),
		entries:      make(map[string]TimeEntry),
		projectTech:  make(map[string]ProjectTechnology),
		entryTech:    make(map[string]TimeEntryTechnology),
	}
}

func cloneTenant(t Tenant) Tenant             { return t }
func cloneUser(u User) User                   { return u }
func cloneClient(c Client) Client             { return c }
func cloneProject(p Project) Project          { return p }
func cloneTechnology(t Technology) Technology { return t }

func cloneTimeEntry(e TimeEntry) TimeEntry {
	cp := e
	if e.EndTime != nil {
		end := *e.EndTime
		cp.EndTime = &end
	}
	if e.DurationMinutes != nil {
		minutes := *e.DurationMinutes
		cp.DurationMinutes = &minutes
	}
	return cp
}

func cloneProjectTech(l ProjectTechnology) ProjectTechnology   { return l }
func cloneEntryTech(l TimeEntryTechnology) TimeEntryTechnology { return l }

func (s memoryState) clone() memoryState {
	cloned := newMemoryState()
	for k, v := range s.tenants {
		cloned.tenants[k] = cloneTenant(v)
	}
	for k, v := range s.users {
		cloned.users[k] = cloneUser(v)
	}
	for k, v := range s.clients {
		cloned.clients[k] = cloneClient(v)
	}
	for k, v := range s.projects {
		cloned.projects[k] = cloneProject(v)
	}
	for k, v := range s.technologies {
		cloned.technologies[k] = cloneTechnology(v)
	}
	for k, v := range s.entries {
		cloned.entries[k] = cloneTimeEntry(v)
	}
	for k, v := range s.projectTech {
		cloned.projectTech[k] = cloneProjectTech(v)
	}
	for k, v := range s.entryTech {
		cloned.entryTech[k] = cloneEntryTech(v)
	}
	return cloned
}

// records returns all records of one entity type for generic rule and cascade walks.
func (s *memoryState) records(t domain.EntityType) []domain.Record {
	switch t {
	case domain.EntityTenant:
		out := make([]domain.Record, 0, len(s.tenants))
		for _, v := range s.tenants {
			out = append(out, cloneTenant(v))
		}
		return out
	case domain.EntityUser:
		out := make([]domain.Record, 0, len(s.users))
		for _, v := range s.users {
			out = append(out, cloneUser(v))
		}
		return out
	case domain.EntityClient:
		out := make([]domain.Record, 0, len(s.clients))
		for _, v := range s.clients {
			out = append(out, cloneClient(v))
		}
		return out
	case domain.EntityProject:
		out := make([]domain.Record, 0, len(s.projects))
		for _, v := range s.projects {
			out = append(out, cloneProject(v))
		}
		return out
	case domain.EntityTechnology:
		out := make([]domain.Record, 0, len(s.technologies))
		for _, v := range s.technologies {
			out = append(out, cloneTechnology(v))
		}
		return out
	case domain.EntityTimeEntry:
		out := make([]domain.Record, 0, len(s.entries))
		for _, v := range s.entries {
			out = append(out, cloneTimeEntry(v))
		}
		return out
	case domain.EntityProjectTechnology:
		out := make([]domain.Record, 0, len(s.projectTech))
		for _, v := range s.projectTech {
			out = append(out, cloneProjectTech(v))
		}
		return out
	case domain.EntityTimeEntryTechnology:
		out := make([]domain.Record, 0, len(s.entryTech))
		for _, v := range s.entryTech {
			out = append(out, cloneEntryTech(v))
		}
		return out
	}
	return nil
}

func (s *memoryState) find(t domain.EntityType, id string) (domain.Record, bool) {
	switch t {
	case domain.EntityTenant:
		if v, ok := s.tenants[id]; ok {
			return cloneTenant(v), true
		}
	case domain.EntityUser:
		if v, ok := s.users[id]; ok {
			return cloneUser(v), true
		}
	case domain.EntityClient:
		if v, ok := s.clients[id]; ok {
			return cloneClient(v), true
		}
	case domain.EntityProject:
		if v, ok := s.projects[id]; ok {
			return cloneProject(v), true
		}
	case domain.EntityTechnology:
		if v, ok := s.technologies[id]; ok {
			return cloneTechnology(v), true
		}
	case domain.EntityTimeEntry:
		if v, ok := s.entries[id]; ok {
			return cloneTimeEntry(v), true
		}
	case domain.EntityProjectTechnology:
		if v, ok := s.projectTech[id]; ok {
			return cloneProjectTech(v), true
		}
	case domain.EntityTimeEntryTechnology:
		if v, ok := s.entryTech[id]; ok {
			return cloneEntryTech(v), true
		}
	}
	return nil, false
}

// remove deletes a record by type and id, returning the removed record for the change log.
func (s *memoryState) remove(t domain.EntityType, id string) (domain.Record, bool) {
	rec, ok := s.find(t, id)
	if !ok {
		return nil, false
	}
	switch t {
	case domain.EntityTenant:
		delete(s.tenants, id)
	case domain.EntityUser:
		delete(s.users, id)
	case domain.EntityClient:
		delete(s.clients, id)
	case domain.EntityProject:
		delete(s.projects, id)
	case domain.EntityTechnology:
		delete(s.technologies, id)
	case domain.EntityTimeEntry:
		delete(s.entries, id)
	case domain.EntityProjectTechnology:
		delete(s.projectTech, id)
	case domain.EntityTimeEntryTechnology:
		delete(s.entryTech, id)
	}
	return rec, true
}

func snapshotFromMemoryState(state memoryState) Snapshot {
	s := Snapshot{
		Tenants:      make(map[string]Tenant, len(state.tenants)),
		Users:        make(map[string]User, len(state.users)),
		Clients:      make(map[string]Client, len(state.clients)),
		Projects:     make(map[string]Project, len(state.projects)),
		Technologies: make(map[string]Technology, len(state.technologies)),
		TimeEntries:  make(map[string]TimeEntry, len(state.entries)),
		ProjectTech:  make(map[string]ProjectTechnology, len(state.projectTech)),
		EntryTech:    make(map[string]TimeEntryTechnology, len(state.entryTech)),
	}
	for k, v := range state.tenants {
		s.Tenants[k] = cloneTenant(v)
	}
	for k, v := range state.users {
		s.Users[k] = cloneUser(v)
	}
	for k, v := range state.clients {
		s.Clients[k] = cloneClient(v)
	}
	for k, v := range state.projects {
		s.Projects[k] = cloneProject(v)
	}
	for k, v := range state.technologies {
		s.Technologies[k] = cloneTechnology(v)
	}
	for k, v := range state.entries {
		s.TimeEntries[k] = cloneTimeEntry(v)
	}
	for k, v := range state.projectTech {
		s.ProjectTech[k] = cloneProjectTech(v)
	}
	for k, v := range state.entryTech {
		s.EntryTech[k] = cloneEntryTech(v)
	}
	return s
}

func memoryStateFromSnapshot(s Snapshot) memoryState {
	state := newMemoryState()
	for k, v := range s.Tenants {
		state.tenants[k] = cloneTenant(v)
	}
	for k, v := range s.Users {
		state.users[k] = cloneUser(v)
	}
	for k, v := range s.Clients {
		state.clients[k] = cloneClient(v)
	}
	for k, v := range s.Projects {
		state.projects[k] = cloneProject(v)
	}
	for k, v := range s.Technologies {
		state.technologies[k] = cloneTechnology(v)
	}
	for k, v := range s.TimeEntries {
		state.entries[k] = cloneTimeEntry(v)
	}
	for k, v := range s.ProjectTech {
		state.projectTech[k] = cloneProjectTech(v)
	}
	for k, v := range s.EntryTech {
		state.entryTech[k] = cloneEntryTech(v)
	}
	return state
}

// migrateSnapshot normalizes a loaded snapshot: nil maps become empty, and
// derived time-entry fields are recomputed so a stored duration can never
// drift from its source timestamps.
func migrateSnapshot(snapshot Snapshot) Snapshot {
	if snapshot.Tenants == nil {
		snapshot.Tenants = map[string]Tenant{}
	}
	if snapshot.Users == nil {
		snapshot.Users = map[string]User{}
	}
	if snapshot.Clients == nil {
		snapshot.Clients = map[string]Client{}
	}
	if snapshot.Projects == nil {
		snapshot.Projects = map[string]Project{}
	}
	if snapshot.Technologies == nil {
		snapshot.Technologies = map[string]Technology{}
	}
	if snapshot.TimeEntries == nil {
		snapshot.TimeEntries = map[string]TimeEntry{}
	}
	if snapshot.ProjectTech == nil {
		snapshot.ProjectTech = map[string]ProjectTechnology{}
	}
	if snapshot.EntryTech == nil {
		snapshot.EntryTech = map[string]TimeEntryTechnology{}
	}
	for id, entry := range snapshot.TimeEntries {
		domain.ResolveTimeEntry(&entry)
		snapshot.TimeEntries[id] = entry
	}
	return snapshot
}

// Store provides an in-memory transactional store for the trackcore domain.
// Transactions run against a copy-on-write clone of the state; registered
// rules are evaluated over the staged snapshot before the commit swaps state.
type Store struct {
	mu       sync.RWMutex
	state    memoryState
	registry *domain.Registry
	engine   *RulesEngine
	nowFn    func() time.Time
}

// NewStore constructs an in-memory store backed by the provided schema
// registry and rules engine. A nil registry falls back to the default entity
// graph; a nil engine disables rule evaluation.
func NewStore(registry *domain.Registry, engine *RulesEngine) *Store {
	if registry == nil {
		registry = domain.DefaultRegistry()
	}
	if engine == nil {
		engine = domain.NewRulesEngine()
	}
	return &Store{
		state:    newMemoryState(),
		registry: registry,
		engine:   engine,
		nowFn:    func() time.Time { return time.Now().UTC() },
	}
}

func (s *Store) newID() string { return uuid.NewString() }

// ExportState clones the current store state for external persistence.
func (s *Store) ExportState() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return snapshotFromMemoryState(s.state)
}

// ImportState replaces the store state with the provided snapshot.
func (s *Store) ImportState(snapshot Snapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = memoryStateFromSnapshot(migrateSnapshot(snapshot))
}

// RulesEngine exposes the currently configured engine.
func (s *Store) RulesEngine() *RulesEngine {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.engine
}

// Registry exposes the schema registry driving validation and cascades.
func (s *Store) Registry() *domain.Registry { return s.registry }

// NowFunc returns the time provider used by the store.
func (s *Store) NowFunc() func() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.nowFn
}

type transaction struct {
	store   *Store
	state   memoryState
	changes []Change
	now     time.Time
}

type transactionView struct {
	state *memoryState
}

func newTransactionView(state *memoryState) TransactionView {
	return transactionView{state: state}
}

// List returns all records of an entity type from the snapshot.
func (v transactionView) List(t domain.EntityType) []domain.Record {
	return v.state.records(t)
}

// Find retrieves a record by type and id from the snapshot.
func (v transactionView) Find(t domain.EntityType, id string) (domain.Record, bool) {
	return v.state.find(t, id)
}

// ListTenants returns all tenants within the snapshot.
func (v transactionView) ListTenants() []Tenant {
	out := make([]Tenant, 0, len(v.state.tenants))
	for _, t := range v.state.tenants {
		out = append(out, cloneTenant(t))
	}
	return out
}

// ListUsers returns all users.
func (v transactionView) ListUsers() []User {
	out := make([]User, 0, len(v.state.users))
	for _, u := range v.state.users {
		out = append(out, cloneUser(u))
	}
	return out
}

// ListClients returns all clients.
func (v transactionView) ListClients() []Client {
	out := make([]Client, 0, len(v.state.clients))
	for _, c := range v.state.clients {
		out = append(out, cloneClient(c))
	}
	return out
}

// ListProjects returns all projects.
func (v transactionView) ListProjects() []Project {
	out := make([]Project, 0, len(v.state.projects))
	for _, p := range v.state.projects {
		out = append(out, cloneProject(p))
	}
	return out
}

// ListTechnologies returns all technologies.
func (v transactionView) ListTechnologies() []Technology {
	out := make([]Technology, 0, len(v.state.technologies))
	for _, t := range v.state.technologies {
		out = append(out, cloneTechnology(t))
	}
	return out
}

// ListTimeEntries returns all time entries.
func (v transactionView) ListTimeEntries() []TimeEntry {
	out := make([]TimeEntry, 0, len(v.state.entries))
	for _, e := range v.state.entries {
		out = append(out, cloneTimeEntry(e))
	}
	return out
}

// ListProjectTechnologies returns all project/technology link rows.
func (v transactionView) ListProjectTechnologies() []ProjectTechnology {
	out := make([]ProjectTechnology, 0, len(v.state.projectTech))
	for _, l := range v.state.projectTech {
		out = append(out, cloneProjectTech(l))
	}
	return out
}

// ListTimeEntryTechnologies returns all time-entry/technology link rows.
func (v transactionView) ListTimeEntryTechnologies() []TimeEntryTechnology {
	out := make([]TimeEntryTechnology, 0, len(v.state.entryTech))
	for _, l := range v.state.entryTech {
		out = append(out, cloneEntryTech(l))
	}
	return out
}

// FindTenant retrieves a tenant by ID from the snapshot.
func (v transactionView) FindTenant(id string) (Tenant, bool) {
	t, ok := v.state.tenants[id]
	if !ok {
		return Tenant{}, false
	}
	return cloneTenant(t), true
}

// FindUser retrieves a user by ID from the snapshot.
func (v transactionView) FindUser(id string) (User, bool) {
	u, ok := v.state.users[id]
	if !ok {
		return User{}, false
	}
	return cloneUser(u), true
}

// FindClient retrieves a client by ID from the snapshot.
func (v transactionView) FindClient(id string) (Client, bool) {
	c, ok := v.state.clients[id]
	if !ok {
		return Client{}, false
	}
	return cloneClient(c), true
}

// FindProject retrieves a project by ID from the snapshot.
func (v transactionView) FindProject(id string) (Project, bool) {
	p, ok := v.state.projects[id]
	if !ok {
		return Project{}, false
	}
	return cloneProject(p), true
}

// FindTechnology retrieves a technology by ID from the snapshot.
func (v transactionView) FindTechnology(id string) (Technology, bool) {
	t, ok := v.state.technologies[id]
	if !ok {
		return Technology{}, false
	}
	return cloneTechnology(t), true
}

// FindTimeEntry retrieves a time entry by ID from the snapshot.
func (v transactionView) FindTimeEntry(id string) (TimeEntry, bool) {
	e, ok := v.state.entries[id]
	if !ok {
		return TimeEntry{}, false
	}
	return cloneTimeEntry(e), true
}

// RunInTransaction executes fn within a transactional copy of the store state.
// Rules are evaluated against the staged state plus the recorded change list;
// blocking violations abort the commit and no partial state becomes visible.
func (s *Store) RunInTransaction(ctx context.Context, fn func(tx Transaction) error) (Result, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, res, err := s.stage(ctx, fn)
	if err != nil {
		return res, err
	}

	s.state = tx.state
	return res, nil
}

// ValidateOnly runs the same stage-resolve-validate cycle as RunInTransaction
// against a discarded clone; committed state is never touched.
func (s *Store) ValidateOnly(ctx context.Context, fn func(tx Transaction) error) (Result, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	_, res, err := s.stage(ctx, fn)
	return res, err
}

func (s *Store) stage(ctx context.Context, fn func(tx Transaction) error) (*transaction, Result, error) {
	tx := &transaction{
		store: s,
		state: s.state.clone(),
		now:   s.nowFn(),
	}

	if err := fn(tx); err != nil {
		return nil, Result{}, err
	}

	var result Result
	if s.engine != nil {
		view := newTransactionView(&tx.state)
		res, err := s.engine.Evaluate(ctx, view, tx.changes)
		if err != nil {
			return nil, Result{}, err
		}
		result = res
		if res.HasBlocking() {
			return nil, res, domain.RuleViolationError{Result: res}
		}
	}
	return tx, result, nil
}

// View executes fn against a read-only snapshot of the store state.
func (s *Store) View(_ context.Context, fn func(TransactionView) error) error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	snapshot := s.state.clone()
	view := newTransactionView(&snapshot)
	return fn(view)
}

func (tx *transaction) recordChange(change Change) {
	tx.changes = append(tx.changes, change)
}

// Snapshot returns a read-only view over the transactional state.
func (tx *transaction) Snapshot() TransactionView {
	return newTransactionView(&tx.state)
}

// cascadeDelete removes a record and every transitively owned dependent,
// leaf rows first, walking the registry's child edges. Dependent identifiers
// are visited in sorted order so the recorded change list is deterministic.
func (tx *transaction) cascadeDelete(t domain.EntityType, id string, visited map[string]struct{}) {
	key := string(t) + "/" + id
	if _, seen := visited[key]; seen {
		return
	}
	visited[key] = struct{}{}

	for _, ce := range tx.store.registry.Children(t) {
		var dependents []string
		for _, rec := range tx.state.records(ce.Child) {
			if ref, ok := ce.Edge.RefID(rec); ok && ref == id {
				dependents = append(dependents, rec.EntityID())
			}
		}
		sort.Strings(dependents)
		for _, childID := range dependents {
			tx.cascadeDelete(ce.Child, childID, visited)
		}
	}

	if before, ok := tx.state.remove(t, id); ok {
		tx.recordChange(Change{Entity: t, Action: domain.ActionDelete, Before: before})
	}
}

// CreateTenant stores a new tenant within the transaction.
func (tx *transaction) CreateTenant(t Tenant) (Tenant, error) {
	if t.ID == "" {
		t.ID = tx.store.newID()
	}
	if _, exists := tx.state.tenants[t.ID]; exists {
		return Tenant{}, fmt.Errorf("tenant %q already exists", t.ID)
	}
	t.CreatedAt = tx.now
	t.UpdatedAt = tx.now
	tx.state.tenants[t.ID] = cloneTenant(t)
	tx.recordChange(Change{Entity: domain.EntityTenant, Action: domain.ActionCreate, After: cloneTenant(t)})
	return cloneTenant(t), nil
}

// UpdateTenant mutates a tenant using the provided mutator function.
func (tx *transaction) UpdateTenant(id string, mutator func(*Tenant) error) (Tenant, error) {
	current, ok := tx.state.tenants[id]
	if !ok {
		return Tenant{}, fmt.Errorf("tenant %q not found", id)
	}
	before := cloneTenant(current)
	if err := mutator(&current); err != nil {
		return Tenant{}, err
	}
	current.ID = id
	current.CreatedAt = before.CreatedAt
	current.UpdatedAt = tx.now
	tx.state.tenants[id] = cloneTenant(current)
	tx.recordChange(Change{Entity: domain.EntityTenant, Action: domain.ActionUpdate, Before: before, After: cloneTenant(current)})
	return cloneTenant(current), nil
}

// DeleteTenant removes a tenant and everything it transitively owns.
func (tx *transaction) DeleteTenant(id string) error {
	if _, ok := tx.state.tenants[id]; !ok {
		return fmt.Errorf("tenant %q not found", id)
	}
	tx.cascadeDelete(domain.EntityTenant, id, map[string]struct{}{})
	return nil
}

// CreateUser stores a new user.
func (tx *transaction) CreateUser(u User) (User, error) {
	if u.ID == "" {
		u.ID = tx.store.newID()
	}
	if _, exists := tx.state.users[u.ID]; exists {
		return User{}, fmt.Errorf("user %q already exists", u.ID)
	}
	u.CreatedAt = tx.now
	u.UpdatedAt = tx.now
	tx.state.users[u.ID] = cloneUser(u)
	tx.recordChange(Change{Entity: domain.EntityUser, Action: domain.ActionCreate, After: cloneUser(u)})
	return cloneUser(u), nil
}

// UpdateUser mutates an existing user.
func (tx *transaction) UpdateUser(id string, mutator func(*User) error) (User, error) {
	current, ok := tx.state.users[id]
	if !ok {
		return User{}, fmt.Errorf("user %q not found", id)
	}
	before := cloneUser(current)
	if err := mutator(&current); err != nil {
		return User{}, err
	}
	current.ID = id
	current.CreatedAt = before.CreatedAt
	current.UpdatedAt = tx.now
	tx.state.users[id] = cloneUser(current)
	tx.recordChange(Change{Entity: domain.EntityUser, Action: domain.ActionUpdate, Before: before, After: cloneUser(current)})
	return cloneUser(current), nil
}

// DeleteUser removes a user and the time entries it owns.
func (tx *transaction) DeleteUser(id string) error {
	if _, ok := tx.state.users[id]; !ok {
		return fmt.Errorf("user %q not found", id)
	}
	tx.cascadeDelete(domain.EntityUser, id, map[string]struct{}{})
	return nil
}

// CreateClient stores a new client.
func (tx *transaction) CreateClient(c Client) (Client, error) {
	if c.ID == "" {
		c.ID = tx.store.newID()
	}
	if _, exists := tx.state.clients[c.ID]; exists {
		return Client{}, fmt.Errorf("client %q already exists", c.ID)
	}
	c.CreatedAt = tx.now
	c.UpdatedAt = tx.now
	tx.state.clients[c.ID] = cloneClient(c)
	tx.recordChange(Change{Entity: domain.EntityClient, Action: domain.ActionCreate, After: cloneClient(c)})
	return cloneClient(c), nil
}

// UpdateClient mutates an existing client.
func (tx *transaction) UpdateClient(id string, mutator func(*Client) error) (Client, error) {
	current, ok := tx.state.clients[id]
	if !ok {
		return Client{}, fmt.Errorf("client %q not found", id)
	}
	before := cloneClient(current)
	if err := mutator(&current); err != nil {
		return Client{}, err
	}
	current.ID = id
	current.CreatedAt = before.CreatedAt
	current.UpdatedAt = tx.now
	tx.state.clients[id] = cloneClient(current)
	tx.recordChange(Change{Entity: domain.EntityClient, Action: domain.ActionUpdate, Before: before, After: cloneClient(current)})
	return cloneClient(current), nil
}

// DeleteClient removes a client and its projects, entries, and link rows.
func (tx *transaction) DeleteClient(id string) error {
	if _, ok := tx.state.clients[id]; !ok {
		return fmt.Errorf("client %q not found", id)
	}
	tx.cascadeDelete(domain.EntityClient, id, map[string]struct{}{})
	return nil
}

// CreateProject stores a new project.
func (tx *transaction) CreateProject(p Project) (Project, error) {
	if p.ID == "" {
		p.ID = tx.store.newID()
	}
	if _, exists := tx.state.projects[p.ID]; exists {
		return Project{}, fmt.Errorf("project %q already exists", p.ID)
	}
	p.CreatedAt = tx.now
	p.UpdatedAt = tx.now
	tx.state.projects[p.ID] = cloneProject(p)
	tx.recordChange(Change{Entity: domain.EntityProject, Action: domain.ActionCreate, After: cloneProject(p)})
	return cloneProject(p), nil
}

// UpdateProject mutates an existing project.
func (tx *transaction) UpdateProject(id string, mutator func(*Project) error) (Project, error) {
	current, ok := tx.state.projects[id]
	if !ok {
		return Project{}, fmt.Errorf("project %q not found", id)
	}
	before := cloneProject(current)
	if err := mutator(&current); err != nil {
		return Project{}, err
	}
	current.ID = id
	current.CreatedAt = before.CreatedAt
	current.UpdatedAt = tx.now
	tx.state.projects[id] = cloneProject(current)
	tx.recordChange(Change{Entity: domain.EntityProject, Action: domain.ActionUpdate, Before: before, After: cloneProject(current)})
	return cloneProject(current), nil
}

// DeleteProject removes a project, its time entries, and its link rows.
func (tx *transaction) DeleteProject(id string) error {
	if _, ok := tx.state.projects[id]; !ok {
		return fmt.Errorf("project %q not found", id)
	}
	tx.cascadeDelete(domain.EntityProject, id, map[string]struct{}{})
	return nil
}

// CreateTechnology stores a new technology.
func (tx *transaction) CreateTechnology(t Technology) (Technology, error) {
	if t.ID == "" {
		t.ID = tx.store.newID()
	}
	if _, exists := tx.state.technologies[t.ID]; exists {
		return Technology{}, fmt.Errorf("technology %q already exists", t.ID)
	}
	t.CreatedAt = tx.now
	t.UpdatedAt = tx.now
	tx.state.technologies[t.ID] = cloneTechnology(t)
	tx.recordChange(Change{Entity: domain.EntityTechnology, Action: domain.ActionCreate, After: cloneTechnology(t)})
	return cloneTechnology(t), nil
}

// UpdateTechnology mutates an existing technology.
func (tx *transaction) UpdateTechnology(id string, mutator func(*Technology) error) (Technology, error) {
	current, ok := tx.state.technologies[id]
	if !ok {
		return Technology{}, fmt.Errorf("technology %q not found", id)
	}
	before := cloneTechnology(current)
	if err := mutator(&current); err != nil {
		return Technology{}, err
	}
	current.ID = id
	current.CreatedAt = before.CreatedAt
	current.UpdatedAt = tx.now
	tx.state.technologies[id] = cloneTechnology(current)
	tx.recordChange(Change{Entity: domain.EntityTechnology, Action: domain.ActionUpdate, Before: before, After: cloneTechnology(current)})
	return cloneTechnology(current), nil
}

// DeleteTechnology removes a technology and the link rows referencing it.
func (tx *transaction) DeleteTechnology(id string) error {
	if _, ok := tx.state.technologies[id]; !ok {
		return fmt.Errorf("technology %q not found", id)
	}
	tx.cascadeDelete(domain.EntityTechnology, id, map[string]struct{}{})
	return nil
}

// CreateTimeEntry stores a new time entry. Derived fields are resolved from
// the staged timestamps; a caller-supplied duration is discarded.
func (tx *transaction) CreateTimeEntry(e TimeEntry) (TimeEntry, error) {
	if e.ID == "" {
		e.ID = tx.store.newID()
	}
	if _, exists := tx.state.entries[e.ID]; exists {
		return TimeEntry{}, fmt.Errorf("time entry %q already exists", e.ID)
	}
	e.CreatedAt = tx.now
	e.UpdatedAt = tx.now
	domain.ResolveTimeEntry(&e)
	tx.state.entries[e.ID] = cloneTimeEntry(e)
	tx.recordChange(Change{Entity: domain.EntityTimeEntry, Action: domain.ActionCreate, After: cloneTimeEntry(e)})
	return cloneTimeEntry(e), nil
}

// UpdateTimeEntry mutates a time entry and re-resolves its derived fields.
func (tx *transaction) UpdateTimeEntry(id string, mutator func(*TimeEntry) error) (TimeEntry, error) {
	current, ok := tx.state.entries[id]
	if !ok {
		return TimeEntry{}, fmt.Errorf("time entry %q not found", id)
	}
	before := cloneTimeEntry(current)
	if err := mutator(&current); err != nil {
		return TimeEntry{}, err
	}
	current.ID = id
	current.CreatedAt = before.CreatedAt
	current.UpdatedAt = tx.now
	domain.ResolveTimeEntry(&current)
	tx.state.entries[id] = cloneTimeEntry(current)
	tx.recordChange(Change{Entity: domain.EntityTimeEntry, Action: domain.ActionUpdate, Before: before, After: cloneTimeEntry(current)})
	return cloneTimeEntry(current), nil
}

// DeleteTimeEntry removes a time entry and its link rows.
func (tx *transaction) DeleteTimeEntry(id string) error {
	if _, ok := tx.state.entries[id]; !ok {
		return fmt.Errorf("time entry %q not found", id)
	}
	tx.cascadeDelete(domain.EntityTimeEntry, id, map[string]struct{}{})
	return nil
}

// AddProjectTechnology stages a project/technology link. The tenant reference
// is taken from the project when it resolves; otherwise the registry rules
// report the dangling reference at validation time.
func (tx *transaction) AddProjectTechnology(projectID, technologyID string) (ProjectTechnology, error) {
	link := ProjectTechnology{ProjectID: projectID, TechnologyID: technologyID}
	link.ID = tx.store.newID()
	if p, ok := tx.state.projects[projectID]; ok {
		link.TenantID = p.TenantID
	}
	link.CreatedAt = tx.now
	link.UpdatedAt = tx.now
	tx.state.projectTech[link.ID] = cloneProjectTech(link)
	tx.recordChange(Change{Entity: domain.EntityProjectTechnology, Action: domain.ActionCreate, After: cloneProjectTech(link)})
	return cloneProjectTech(link), nil
}

// RemoveProjectTechnology deletes the link row for the given pair.
func (tx *transaction) RemoveProjectTechnology(projectID, technologyID string) error {
	for id, link := range tx.state.projectTech {
		if link.ProjectID == projectID && link.TechnologyID == technologyID {
			tx.cascadeDelete(domain.EntityProjectTechnology, id, map[string]struct{}{})
			return nil
		}
	}
	return fmt.Errorf("project %q has no technology %q", projectID, technologyID)
}

// AddTimeEntryTechnology stages a time-entry/technology link.
func (tx *transaction) AddTimeEntryTechnology(timeEntryID, technologyID string) (TimeEntryTechnology, error) {
	link := TimeEntryTechnology{TimeEntryID: timeEntryID, TechnologyID: technologyID}
	link.ID = tx.store.newID()
	if e, ok := tx.state.entries[timeEntryID]; ok {
		link.TenantID = e.TenantID
	}
	link.CreatedAt = tx.now
	link.UpdatedAt = tx.now
	tx.state.entryTech[link.ID] = cloneEntryTech(link)
	tx.recordChange(Change{Entity: domain.EntityTimeEntryTechnology, Action: domain.ActionCreate, After: cloneEntryTech(link)})
	return cloneEntryTech(link), nil
}

// RemoveTimeEntryTechnology deletes the link row for the given pair.
func (tx *transaction) RemoveTimeEntryTechnology(timeEntryID, technologyID string) error {
	for id, link := range tx.state.entryTech {
		if link.TimeEntryID == timeEntryID && link.TechnologyID == technologyID {
			tx.cascadeDelete(domain.EntityTimeEntryTechnology, id, map[string]struct{}{})
			return nil
		}
	}
	return fmt.Errorf("time entry %q has no technology %q", timeEntryID, technologyID)
}

// Read helpers ---------------------------------------------------------------

// GetTenant retrieves a tenant by ID from committed state.
func (s *Store) GetTenant(id string) (Tenant, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.state.tenants[id]
	if !ok {
		return Tenant{}, false
	}
	return cloneTenant(t), true
}

// ListTenants returns all tenants from committed state.
func (s *Store) ListTenants() []Tenant {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Tenant, 0, len(s.state.tenants))
	for _, t := range s.state.tenants {
		out = append(out, cloneTenant(t))
	}
	return out
}

// GetUser retrieves a user by ID from committed state.
func (s *Store) GetUser(id string) (User, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	u, ok := s.state.users[id]
	if !ok {
		return User{}, false
	}
	return cloneUser(u), true
}

// ListUsers returns all users from committed state.
func (s *Store) ListUsers() []User {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]User, 0, len(s.state.users))
	for _, u := range s.state.users {
		out = append(out, cloneUser(u))
	}
	return out
}

// GetProject retrieves a project by ID from committed state.
func (s *Store) GetProject(id string) (Project, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.state.projects[id]
	if !ok {
		return Project{}, false
	}
	return cloneProject(p), true
}

// ListProjects returns all projects from committed state.
func (s *Store) ListProjects() []Project {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Project, 0, len(s.state.projects))
	for _, p := range s.state.projects {
		out = append(out, cloneProject(p))
	}
	return out
}

// GetTimeEntry retrieves a time entry by ID from committed state.
func (s *Store) GetTimeEntry(id string) (TimeEntry, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.state.entries[id]
	if !ok {
		return TimeEntry{}, false
	}
	return cloneTimeEntry(e), true
}

// ListTimeEntries returns all time entries from committed state.
func (s *Store) ListTimeEntries() []TimeEntry {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]TimeEntry, 0, len(s.state.entries))
	for _, e := range s.state.entries {
		out = append(out, cloneTimeEntry(e))
	}
	return out
}
