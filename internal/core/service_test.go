package core

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"trackcore/internal/infra/persistence/memory"
	"trackcore/pkg/domain"
)

func newTestService(t *testing.T, opts ...ServiceOption) (*Service, *memory.Store) {
	t.Helper()
	registry := domain.DefaultRegistry()
	store := memory.NewStore(registry, NewDefaultRulesEngine(registry))
	opts = append([]ServiceOption{WithRetryInterval(time.Millisecond)}, opts...)
	return NewService(store, opts...), store
}

type fixture struct {
	tenantA, tenantB Tenant
	userA            User
	clientA, clientB Client
	projectA         Project
}

func seedFixture(t *testing.T, svc *Service) fixture {
	t.Helper()
	ctx := context.Background()
	var f fixture
	var err error
	if f.tenantA, err = svc.CreateTenant(ctx, Tenant{Name: "Acme"}); err != nil {
		t.Fatalf("create tenant a: %v", err)
	}
	if f.tenantB, err = svc.CreateTenant(ctx, Tenant{Name: "Globex"}); err != nil {
		t.Fatalf("create tenant b: %v", err)
	}
	if f.userA, err = svc.CreateUser(ctx, User{TenantID: f.tenantA.ID, Email: "dev@example.com", DisplayName: "Dev"}); err != nil {
		t.Fatalf("create user: %v", err)
	}
	if f.clientA, err = svc.CreateClient(ctx, Client{TenantID: f.tenantA.ID, Name: "Client A"}); err != nil {
		t.Fatalf("create client a: %v", err)
	}
	if f.clientB, err = svc.CreateClient(ctx, Client{TenantID: f.tenantB.ID, Name: "Client B"}); err != nil {
		t.Fatalf("create client b: %v", err)
	}
	if f.projectA, err = svc.CreateProject(ctx, Project{TenantID: f.tenantA.ID, ClientID: f.clientA.ID, Name: "Site", IsActive: true}); err != nil {
		t.Fatalf("create project: %v", err)
	}
	return f
}

func TestServiceRejectsCrossTenantClientReassignment(t *testing.T) {
	svc, store := newTestService(t)
	f := seedFixture(t, svc)
	ctx := context.Background()

	_, err := svc.UpdateProject(ctx, f.projectA.ID, func(p *Project) error {
		p.ClientID = f.clientB.ID
		return nil
	})
	var rve domain.RuleViolationError
	if !errors.As(err, &rve) {
		t.Fatalf("expected rule violation, got %v", err)
	}
	found := false
	for _, v := range rve.Result.Violations {
		if v.Kind == domain.ViolationTenantMismatch && v.EntityID == f.projectA.ID {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected tenant mismatch on project, got %+v", rve.Result.Violations)
	}

	// rejected write must leave committed state untouched
	stored, ok := store.GetProject(f.projectA.ID)
	if !ok {
		t.Fatal("project missing after rejected update")
	}
	if stored.ClientID != f.clientA.ID {
		t.Fatalf("client reference changed despite rejection: %s", stored.ClientID)
	}
}

func TestServiceRejectsDanglingProjectReference(t *testing.T) {
	svc, _ := newTestService(t)
	f := seedFixture(t, svc)

	_, err := svc.CreateTimeEntry(context.Background(), TimeEntry{
		TenantID:  f.tenantA.ID,
		UserID:    f.userA.ID,
		ProjectID: "no-such-project",
		StartTime: time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC),
	})
	var rve domain.RuleViolationError
	if !errors.As(err, &rve) {
		t.Fatalf("expected rule violation, got %v", err)
	}
	if kinds := violationsByKind(rve.Result); kinds[domain.ViolationDanglingReference] == 0 {
		t.Fatalf("expected dangling reference, got %+v", rve.Result.Violations)
	}
}

func TestServiceOpenSessionLifecycle(t *testing.T) {
	svc, _ := newTestService(t)
	f := seedFixture(t, svc)
	ctx := context.Background()
	start := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)

	entry, err := svc.StartTimeEntry(ctx, TimeEntry{
		TenantID:  f.tenantA.ID,
		UserID:    f.userA.ID,
		ProjectID: f.projectA.ID,
		StartTime: start,
	})
	if err != nil {
		t.Fatalf("start entry: %v", err)
	}
	if entry.DurationMinutes != nil {
		t.Fatalf("open session must carry no duration, got %d", *entry.DurationMinutes)
	}

	stopped, err := svc.StopTimeEntry(ctx, entry.ID, start.Add(90*time.Minute))
	if err != nil {
		t.Fatalf("stop entry: %v", err)
	}
	if stopped.DurationMinutes == nil || *stopped.DurationMinutes != 90 {
		t.Fatalf("expected 90 minutes after stop, got %+v", stopped.DurationMinutes)
	}
}

func TestServiceRejectsEndBeforeStart(t *testing.T) {
	svc, _ := newTestService(t)
	f := seedFixture(t, svc)
	ctx := context.Background()
	start := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)

	entry, err := svc.StartTimeEntry(ctx, TimeEntry{
		TenantID:  f.tenantA.ID,
		UserID:    f.userA.ID,
		ProjectID: f.projectA.ID,
		StartTime: start,
	})
	if err != nil {
		t.Fatalf("start entry: %v", err)
	}

	_, err = svc.StopTimeEntry(ctx, entry.ID, start.Add(-time.Minute))
	var rve domain.RuleViolationError
	if !errors.As(err, &rve) {
		t.Fatalf("expected rule violation, got %v", err)
	}
	if kinds := violationsByKind(rve.Result); kinds[domain.ViolationTemporalInvalid] == 0 {
		t.Fatalf("expected temporal violation, got %+v", rve.Result.Violations)
	}
}

func TestServiceDurationRecomputedOnUpdate(t *testing.T) {
	svc, _ := newTestService(t)
	f := seedFixture(t, svc)
	ctx := context.Background()
	start := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
	end := start.Add(time.Hour)

	entry, err := svc.CreateTimeEntry(ctx, TimeEntry{
		TenantID:  f.tenantA.ID,
		UserID:    f.userA.ID,
		ProjectID: f.projectA.ID,
		StartTime: start,
		EndTime:   &end,
	})
	if err != nil {
		t.Fatalf("create entry: %v", err)
	}
	if *entry.DurationMinutes != 60 {
		t.Fatalf("expected 60, got %d", *entry.DurationMinutes)
	}

	updated, err := svc.UpdateTimeEntry(ctx, entry.ID, func(e *TimeEntry) error {
		later := end.Add(30 * time.Minute)
		e.EndTime = &later
		lie := int64(5)
		e.DurationMinutes = &lie
		return nil
	})
	if err != nil {
		t.Fatalf("update entry: %v", err)
	}
	if *updated.DurationMinutes != 90 {
		t.Fatalf("derived duration must follow timestamps, got %d", *updated.DurationMinutes)
	}
}

func TestServiceCreateProjectWithTechnologiesIsAtomic(t *testing.T) {
	svc, store := newTestService(t)
	f := seedFixture(t, svc)
	ctx := context.Background()

	tech, err := svc.CreateTechnology(ctx, Technology{TenantID: f.tenantA.ID, Name: "Go"})
	if err != nil {
		t.Fatalf("create technology: %v", err)
	}

	project, err := svc.CreateProjectWithTechnologies(ctx, Project{
		TenantID: f.tenantA.ID,
		ClientID: f.clientA.ID,
		Name:     "Tagged",
	}, []string{tech.ID})
	if err != nil {
		t.Fatalf("create project with technologies: %v", err)
	}
	if _, ok := store.GetProject(project.ID); !ok {
		t.Fatal("project not committed")
	}

	// one bad link aborts the project too
	_, err = svc.CreateProjectWithTechnologies(ctx, Project{
		TenantID: f.tenantA.ID,
		ClientID: f.clientA.ID,
		Name:     "Broken",
	}, []string{tech.ID, "no-such-tech"})
	var rve domain.RuleViolationError
	if !errors.As(err, &rve) {
		t.Fatalf("expected rule violation, got %v", err)
	}
	for _, p := range store.ListProjects() {
		if p.Name == "Broken" {
			t.Fatal("rejected project leaked into committed state")
		}
	}
}

func TestServiceDuplicatePairRejected(t *testing.T) {
	svc, _ := newTestService(t)
	f := seedFixture(t, svc)
	ctx := context.Background()

	tech, err := svc.CreateTechnology(ctx, Technology{TenantID: f.tenantA.ID, Name: "Go"})
	if err != nil {
		t.Fatalf("create technology: %v", err)
	}
	if _, err := svc.AddProjectTechnology(ctx, f.projectA.ID, tech.ID); err != nil {
		t.Fatalf("first link: %v", err)
	}
	_, err = svc.AddProjectTechnology(ctx, f.projectA.ID, tech.ID)
	var rve domain.RuleViolationError
	if !errors.As(err, &rve) {
		t.Fatalf("duplicate pair must be rejected, got %v", err)
	}
	if kinds := violationsByKind(rve.Result); kinds[domain.ViolationUniqueConflict] == 0 {
		t.Fatalf("expected unique conflict, got %+v", rve.Result.Violations)
	}
}

func TestServiceSameEmailAcrossTenants(t *testing.T) {
	svc, _ := newTestService(t)
	f := seedFixture(t, svc)
	ctx := context.Background()

	if _, err := svc.CreateUser(ctx, User{TenantID: f.tenantB.ID, Email: "dev@example.com"}); err != nil {
		t.Fatalf("same email in another tenant must be accepted: %v", err)
	}
	_, err := svc.CreateUser(ctx, User{TenantID: f.tenantA.ID, Email: "dev@example.com"})
	var rve domain.RuleViolationError
	if !errors.As(err, &rve) {
		t.Fatalf("duplicate email within tenant must be rejected, got %v", err)
	}
}

func TestServiceValidateOnlyDoesNotMutate(t *testing.T) {
	svc, store := newTestService(t)
	f := seedFixture(t, svc)
	ctx := context.Background()

	res, err := svc.ValidateOnly(ctx, func(tx Transaction) error {
		_, err := tx.CreateUser(User{TenantID: f.tenantA.ID, Email: "dev@example.com"})
		return err
	})
	var rve domain.RuleViolationError
	if !errors.As(err, &rve) {
		t.Fatalf("expected rule violation from dry run, got %v", err)
	}
	if len(res.Violations) == 0 {
		t.Fatal("dry run must surface the violation list")
	}
	if got := len(store.ListUsers()); got != 1 {
		t.Fatalf("dry run mutated state: %d users", got)
	}

	// a valid dry run also leaves state alone
	if _, err := svc.ValidateOnly(ctx, func(tx Transaction) error {
		_, err := tx.CreateUser(User{TenantID: f.tenantA.ID, Email: "other@example.com"})
		return err
	}); err != nil {
		t.Fatalf("valid dry run: %v", err)
	}
	if got := len(store.ListUsers()); got != 1 {
		t.Fatalf("valid dry run mutated state: %d users", got)
	}
}

func TestServiceDeleteTenantCascades(t *testing.T) {
	svc, store := newTestService(t)
	f := seedFixture(t, svc)
	ctx := context.Background()
	start := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)

	tech, err := svc.CreateTechnology(ctx, Technology{TenantID: f.tenantA.ID, Name: "Go"})
	if err != nil {
		t.Fatalf("create technology: %v", err)
	}
	entry, err := svc.StartTimeEntry(ctx, TimeEntry{
		TenantID:  f.tenantA.ID,
		UserID:    f.userA.ID,
		ProjectID: f.projectA.ID,
		StartTime: start,
	})
	if err != nil {
		t.Fatalf("start entry: %v", err)
	}
	if _, err := svc.TagTimeEntry(ctx, entry.ID, tech.ID); err != nil {
		t.Fatalf("tag entry: %v", err)
	}

	if err := svc.DeleteTenant(ctx, f.tenantA.ID); err != nil {
		t.Fatalf("delete tenant: %v", err)
	}

	if _, ok := store.GetTenant(f.tenantA.ID); ok {
		t.Fatal("tenant survived deletion")
	}
	if _, ok := store.GetUser(f.userA.ID); ok {
		t.Fatal("user survived tenant deletion")
	}
	if _, ok := store.GetProject(f.projectA.ID); ok {
		t.Fatal("project survived tenant deletion")
	}
	if _, ok := store.GetTimeEntry(entry.ID); ok {
		t.Fatal("time entry survived tenant deletion")
	}
	// the other tenant is untouched
	if _, ok := store.GetTenant(f.tenantB.ID); !ok {
		t.Fatal("unrelated tenant removed")
	}
}

// flakyStore fails the first n commits with a retryable error.
type flakyStore struct {
	PersistentStore
	failures int
	calls    int
}

func (f *flakyStore) RunInTransaction(ctx context.Context, fn func(tx Transaction) error) (Result, error) {
	f.calls++
	if f.calls <= f.failures {
		return Result{}, domain.ConflictError{Err: errors.New("simulated contention")}
	}
	return f.PersistentStore.RunInTransaction(ctx, fn)
}

func TestServiceRetriesRetryableErrors(t *testing.T) {
	registry := domain.DefaultRegistry()
	mem := memory.NewStore(registry, NewDefaultRulesEngine(registry))
	flaky := &flakyStore{PersistentStore: mem, failures: 2}
	svc := NewService(flaky, WithRetryInterval(time.Millisecond))

	tenant, err := svc.CreateTenant(context.Background(), Tenant{Name: "Acme"})
	if err != nil {
		t.Fatalf("expected success after retries, got %v", err)
	}
	if flaky.calls != 3 {
		t.Fatalf("expected 3 attempts, got %d", flaky.calls)
	}
	if _, ok := mem.GetTenant(tenant.ID); !ok {
		t.Fatal("tenant not committed after retry")
	}
}

func TestServiceRetriesAreBounded(t *testing.T) {
	registry := domain.DefaultRegistry()
	mem := memory.NewStore(registry, NewDefaultRulesEngine(registry))
	flaky := &flakyStore{PersistentStore: mem, failures: 100}
	svc := NewService(flaky, WithRetryInterval(time.Millisecond), WithMaxAttempts(3))

	_, err := svc.CreateTenant(context.Background(), Tenant{Name: "Acme"})
	var conflict domain.ConflictError
	if !errors.As(err, &conflict) {
		t.Fatalf("expected conflict after exhausting retries, got %v", err)
	}
	if flaky.calls != 3 {
		t.Fatalf("expected exactly 3 attempts, got %d", flaky.calls)
	}
}

func TestServiceDoesNotRetryRuleViolations(t *testing.T) {
	registry := domain.DefaultRegistry()
	mem := memory.NewStore(registry, NewDefaultRulesEngine(registry))
	counting := &flakyStore{PersistentStore: mem}
	svc := NewService(counting, WithRetryInterval(time.Millisecond))
	f := seedFixture(t, svc)
	counting.calls = 0

	_, err := svc.CreateUser(context.Background(), User{TenantID: f.tenantA.ID, Email: "dev@example.com"})
	var rve domain.RuleViolationError
	if !errors.As(err, &rve) {
		t.Fatalf("expected rule violation, got %v", err)
	}
	if counting.calls != 1 {
		t.Fatalf("rule violations must not be retried, saw %d attempts", counting.calls)
	}
}

// advisoryContactRule reports non-blocking violations: a warning for tenants
// without a contact email and an informational note for every staged change.
type advisoryContactRule struct{}

func (advisoryContactRule) Name() string { return "advisory-contact" }

func (r advisoryContactRule) Evaluate(_ context.Context, view RuleView, changes []Change) (Result, error) {
	var res Result
	for _, rec := range view.List(domain.EntityTenant) {
		tenant, ok := rec.(Tenant)
		if !ok || tenant.ContactEmail != "" {
			continue
		}
		res.Violations = append(res.Violations, Violation{
			Rule:     r.Name(),
			Kind:     domain.ViolationKind("missing_contact"),
			Severity: domain.SeverityWarn,
			Message:  "tenant has no contact email",
			Entity:   domain.EntityTenant,
			EntityID: tenant.ID,
		})
	}
	for range changes {
		res.Violations = append(res.Violations, Violation{
			Rule:     r.Name(),
			Kind:     domain.ViolationKind("staged_change"),
			Severity: domain.SeverityLog,
			Message:  "change staged",
		})
	}
	return res, nil
}

func TestAdvisoryViolationsCommitAndLog(t *testing.T) {
	registry := domain.DefaultRegistry()
	engine := domain.NewRulesEngine()
	engine.Register(advisoryContactRule{})
	store := memory.NewStore(registry, engine)

	var buf bytes.Buffer
	svc := NewService(store,
		WithLogger(zerolog.New(&buf)),
		WithRetryInterval(time.Millisecond),
	)

	tenant, err := svc.CreateTenant(context.Background(), Tenant{Name: "Acme"})
	if err != nil {
		t.Fatalf("create tenant: %v", err)
	}
	if _, ok := store.GetTenant(tenant.ID); !ok {
		t.Fatal("advisory violations must not block the commit")
	}

	out := buf.String()
	if !strings.Contains(out, `"level":"warn"`) || !strings.Contains(out, "tenant has no contact email") {
		t.Fatalf("warn severity must log at warning level, got %q", out)
	}
	if !strings.Contains(out, `"level":"info"`) || !strings.Contains(out, "change staged") {
		t.Fatalf("log severity must log informationally, got %q", out)
	}
}
