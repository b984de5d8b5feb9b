package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"trackcore/pkg/domain"
)

// rejectEmailRule blocks any staged user with the given email. Used to
// exercise the abort path without pulling in the full rule set.
type rejectEmailRule struct{ email string }

func (rejectEmailRule) Name() string { return "reject-email" }

func (r rejectEmailRule) Evaluate(_ context.Context, view domain.RuleView, _ []Change) (Result, error) {
	var res Result
	for _, rec := range view.List(domain.EntityUser) {
		u, ok := rec.(User)
		if !ok || u.Email != r.email {
			continue
		}
		res.Violations = append(res.Violations, domain.Violation{
			Rule:     "reject-email",
			Severity: domain.SeverityBlock,
			Entity:   domain.EntityUser,
			EntityID: u.ID,
			Field:    "email",
		})
	}
	return res, nil
}

func mustCreateTenant(t *testing.T, s *Store, name string) Tenant {
	t.Helper()
	var tenant Tenant
	_, err := s.RunInTransaction(context.Background(), func(tx Transaction) error {
		var err error
		tenant, err = tx.CreateTenant(Tenant{Name: name})
		return err
	})
	if err != nil {
		t.Fatalf("create tenant: %v", err)
	}
	return tenant
}

func TestCreateAndGetTenant(t *testing.T) {
	s := NewStore(nil, nil)
	tenant := mustCreateTenant(t, s, "Acme")

	got, ok := s.GetTenant(tenant.ID)
	if !ok {
		t.Fatal("tenant not found after commit")
	}
	if got.Name != "Acme" {
		t.Fatalf("unexpected tenant: %+v", got)
	}
	if got.CreatedAt.IsZero() || got.UpdatedAt.IsZero() {
		t.Fatal("timestamps not stamped")
	}
}

func TestUpdatePreservesCreatedAt(t *testing.T) {
	s := NewStore(nil, nil)
	t0 := time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC)
	s.nowFn = func() time.Time { return t0 }
	tenant := mustCreateTenant(t, s, "Acme")

	t1 := t0.Add(time.Hour)
	s.nowFn = func() time.Time { return t1 }
	_, err := s.RunInTransaction(context.Background(), func(tx Transaction) error {
		_, err := tx.UpdateTenant(tenant.ID, func(tn *Tenant) error {
			tn.Name = "Acme Renamed"
			tn.CreatedAt = time.Time{} // a mutator cannot tamper with creation time
			return nil
		})
		return err
	})
	if err != nil {
		t.Fatalf("update: %v", err)
	}

	got, _ := s.GetTenant(tenant.ID)
	if !got.CreatedAt.Equal(t0) {
		t.Fatalf("created at changed: %v", got.CreatedAt)
	}
	if !got.UpdatedAt.Equal(t1) {
		t.Fatalf("updated at not stamped: %v", got.UpdatedAt)
	}
	if got.Name != "Acme Renamed" {
		t.Fatalf("mutation lost: %+v", got)
	}
}

func TestTransactionErrorDiscardsChanges(t *testing.T) {
	s := NewStore(nil, nil)
	boom := errors.New("boom")
	_, err := s.RunInTransaction(context.Background(), func(tx Transaction) error {
		if _, err := tx.CreateTenant(Tenant{Name: "Ghost"}); err != nil {
			return err
		}
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("expected boom, got %v", err)
	}
	if got := len(s.ListTenants()); got != 0 {
		t.Fatalf("failed transaction leaked state: %d tenants", got)
	}
}

func TestBlockingViolationAbortsCommit(t *testing.T) {
	engine := domain.NewRulesEngine()
	engine.Register(rejectEmailRule{email: "bad@example.com"})
	s := NewStore(nil, engine)
	tenant := mustCreateTenant(t, s, "Acme")

	_, err := s.RunInTransaction(context.Background(), func(tx Transaction) error {
		_, err := tx.CreateUser(User{TenantID: tenant.ID, Email: "bad@example.com"})
		return err
	})
	var rve domain.RuleViolationError
	if !errors.As(err, &rve) {
		t.Fatalf("expected rule violation error, got %v", err)
	}
	if len(rve.Result.Violations) != 1 {
		t.Fatalf("expected 1 violation, got %+v", rve.Result.Violations)
	}
	if got := len(s.ListUsers()); got != 0 {
		t.Fatalf("blocked write leaked state: %d users", got)
	}
}

func TestValidateOnlyNeverCommits(t *testing.T) {
	s := NewStore(nil, nil)
	_, err := s.ValidateOnly(context.Background(), func(tx Transaction) error {
		_, err := tx.CreateTenant(Tenant{Name: "DryRun"})
		return err
	})
	if err != nil {
		t.Fatalf("validate only: %v", err)
	}
	if got := len(s.ListTenants()); got != 0 {
		t.Fatalf("dry run committed state: %d tenants", got)
	}
}

func seedGraph(t *testing.T, s *Store) (Tenant, User, Client, Project, Technology, TimeEntry) {
	t.Helper()
	var (
		tenant  Tenant
		user    User
		client  Client
		project Project
		tech    Technology
		entry   TimeEntry
	)
	_, err := s.RunInTransaction(context.Background(), func(tx Transaction) error {
		var err error
		if tenant, err = tx.CreateTenant(Tenant{Name: "Acme"}); err != nil {
			return err
		}
		if user, err = tx.CreateUser(User{TenantID: tenant.ID, Email: "dev@example.com"}); err != nil {
			return err
		}
		if client, err = tx.CreateClient(Client{TenantID: tenant.ID, Name: "Client"}); err != nil {
			return err
		}
		if project, err = tx.CreateProject(Project{TenantID: tenant.ID, ClientID: client.ID, Name: "Site"}); err != nil {
			return err
		}
		if tech, err = tx.CreateTechnology(Technology{TenantID: tenant.ID, Name: "Go"}); err != nil {
			return err
		}
		if entry, err = tx.CreateTimeEntry(TimeEntry{
			TenantID:  tenant.ID,
			UserID:    user.ID,
			ProjectID: project.ID,
			StartTime: time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC),
		}); err != nil {
			return err
		}
		if _, err = tx.AddProjectTechnology(project.ID, tech.ID); err != nil {
			return err
		}
		if _, err = tx.AddTimeEntryTechnology(entry.ID, tech.ID); err != nil {
			return err
		}
		return nil
	})
	if err != nil {
		t.Fatalf("seed graph: %v", err)
	}
	return tenant, user, client, project, tech, entry
}

func TestDeleteProjectCascades(t *testing.T) {
	s := NewStore(nil, nil)
	tenant, user, _, project, tech, entry := seedGraph(t, s)

	_, err := s.RunInTransaction(context.Background(), func(tx Transaction) error {
		return tx.DeleteProject(project.ID)
	})
	if err != nil {
		t.Fatalf("delete project: %v", err)
	}

	if _, ok := s.GetProject(project.ID); ok {
		t.Fatal("project survived")
	}
	if _, ok := s.GetTimeEntry(entry.ID); ok {
		t.Fatal("dependent time entry survived")
	}
	snapshot := s.ExportState()
	if len(snapshot.ProjectTech) != 0 || len(snapshot.EntryTech) != 0 {
		t.Fatalf("dependent link rows survived: %+v", snapshot)
	}
	// unrelated records stay
	if _, ok := s.GetUser(user.ID); !ok {
		t.Fatal("user removed by project cascade")
	}
	if _, ok := s.GetTenant(tenant.ID); !ok {
		t.Fatal("tenant removed by project cascade")
	}
	if _, ok := snapshot.Technologies[tech.ID]; !ok {
		t.Fatal("technology removed by project cascade")
	}
}

func TestDeleteTenantCascadesEverything(t *testing.T) {
	s := NewStore(nil, nil)
	tenant, _, _, _, _, _ := seedGraph(t, s)

	_, err := s.RunInTransaction(context.Background(), func(tx Transaction) error {
		return tx.DeleteTenant(tenant.ID)
	})
	if err != nil {
		t.Fatalf("delete tenant: %v", err)
	}

	snapshot := s.ExportState()
	if len(snapshot.Tenants)+len(snapshot.Users)+len(snapshot.Clients)+
		len(snapshot.Projects)+len(snapshot.Technologies)+len(snapshot.TimeEntries)+
		len(snapshot.ProjectTech)+len(snapshot.EntryTech) != 0 {
		t.Fatalf("tenant cascade left residue: %+v", snapshot)
	}
}

func TestCreateTimeEntryResolvesDerivedFields(t *testing.T) {
	s := NewStore(nil, nil)
	tenant, user, _, project, _, _ := seedGraph(t, s)

	start := time.Date(2026, 3, 2, 13, 0, 0, 0, time.UTC)
	end := start.Add(45 * time.Minute)
	lie := int64(999)
	var created TimeEntry
	_, err := s.RunInTransaction(context.Background(), func(tx Transaction) error {
		var err error
		created, err = tx.CreateTimeEntry(TimeEntry{
			TenantID:        tenant.ID,
			UserID:          user.ID,
			ProjectID:       project.ID,
			StartTime:       start,
			EndTime:         &end,
			DurationMinutes: &lie,
		})
		return err
	})
	if err != nil {
		t.Fatalf("create entry: %v", err)
	}
	if created.DurationMinutes == nil || *created.DurationMinutes != 45 {
		t.Fatalf("derived duration wrong: %+v", created.DurationMinutes)
	}
}

func TestAddProjectTechnologyDerivesTenant(t *testing.T) {
	s := NewStore(nil, nil)
	tenant, _, _, project, _, _ := seedGraph(t, s)

	var link ProjectTechnology
	_, err := s.RunInTransaction(context.Background(), func(tx Transaction) error {
		// second technology to get a fresh pair
		other, err := tx.CreateTechnology(Technology{TenantID: tenant.ID, Name: "Postgres"})
		if err != nil {
			return err
		}
		link, err = tx.AddProjectTechnology(project.ID, other.ID)
		return err
	})
	if err != nil {
		t.Fatalf("add link: %v", err)
	}
	if link.TenantID != tenant.ID {
		t.Fatalf("link tenant not derived from project: %+v", link)
	}
}

func TestRemoveMissingLinkErrors(t *testing.T) {
	s := NewStore(nil, nil)
	_, _, _, project, _, entry := seedGraph(t, s)

	_, err := s.RunInTransaction(context.Background(), func(tx Transaction) error {
		return tx.RemoveProjectTechnology(project.ID, "no-such-tech")
	})
	if err == nil {
		t.Fatal("expected error removing missing project link")
	}
	_, err = s.RunInTransaction(context.Background(), func(tx Transaction) error {
		return tx.RemoveTimeEntryTechnology(entry.ID, "no-such-tech")
	})
	if err == nil {
		t.Fatal("expected error removing missing entry link")
	}
}

func TestImportStateRecomputesDerivedFields(t *testing.T) {
	s := NewStore(nil, nil)
	start := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
	end := start.Add(30 * time.Minute)
	drifted := int64(480)

	s.ImportState(Snapshot{
		TimeEntries: map[string]TimeEntry{
			"e1": {
				Base:            domain.Base{ID: "e1"},
				TenantID:        "t1",
				StartTime:       start,
				EndTime:         &end,
				DurationMinutes: &drifted,
			},
			"e2": {
				Base:            domain.Base{ID: "e2"},
				TenantID:        "t1",
				StartTime:       start,
				DurationMinutes: &drifted, // open entry with a stale stored duration
			},
		},
	})

	e1, _ := s.GetTimeEntry("e1")
	if e1.DurationMinutes == nil || *e1.DurationMinutes != 30 {
		t.Fatalf("stored duration must be recomputed on load: %+v", e1.DurationMinutes)
	}
	e2, _ := s.GetTimeEntry("e2")
	if e2.DurationMinutes != nil {
		t.Fatalf("open entry must lose its stale duration on load: %d", *e2.DurationMinutes)
	}
	// nil buckets in the snapshot are tolerated
	if got := len(s.ListTenants()); got != 0 {
		t.Fatalf("unexpected tenants after import: %d", got)
	}
}

func TestExportStateIsIsolatedCopy(t *testing.T) {
	s := NewStore(nil, nil)
	tenant := mustCreateTenant(t, s, "Acme")

	snapshot := s.ExportState()
	mutated := snapshot.Tenants[tenant.ID]
	mutated.Name = "Hacked"
	snapshot.Tenants[tenant.ID] = mutated

	got, _ := s.GetTenant(tenant.ID)
	if got.Name != "Acme" {
		t.Fatalf("exported snapshot aliases live state: %+v", got)
	}
}

func TestViewSeesCommittedState(t *testing.T) {
	s := NewStore(nil, nil)
	tenant, user, _, _, _, entry := seedGraph(t, s)

	err := s.View(context.Background(), func(view TransactionView) error {
		if _, ok := view.FindTenant(tenant.ID); !ok {
			t.Fatal("tenant missing from view")
		}
		if _, ok := view.FindUser(user.ID); !ok {
			t.Fatal("user missing from view")
		}
		if _, ok := view.FindTimeEntry(entry.ID); !ok {
			t.Fatal("entry missing from view")
		}
		if got := len(view.ListProjectTechnologies()); got != 1 {
			t.Fatalf("expected 1 project link, got %d", got)
		}
		if got := len(view.List(domain.EntityClient)); got != 1 {
			t.Fatalf("generic list broken: %d clients", got)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("view: %v", err)
	}
}
