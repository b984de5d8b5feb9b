package core

import (
	"context"
	"errors"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/rs/zerolog"

	"trackcore/pkg/domain"
)

// Service is the write coordinator. Every mutation runs a full
// validate-resolve-commit cycle inside one store transaction; retryable store
// failures restart the whole cycle with exponential backoff so validation
// never runs against stale state. Rule violations are terminal and surface
// with the complete violation list.
type Service struct {
	store         PersistentStore
	logger        zerolog.Logger
	metrics       MetricsRecorder
	maxAttempts   uint
	retryInterval time.Duration
}

// ServiceOption configures optional service collaborators.
type ServiceOption func(*Service)

// WithLogger sets the service logger.
func WithLogger(logger zerolog.Logger) ServiceOption {
	return func(s *Service) { s.logger = logger }
}

// WithMetrics sets the metrics recorder.
func WithMetrics(metrics MetricsRecorder) ServiceOption {
	return func(s *Service) { s.metrics = metrics }
}

// WithMaxAttempts bounds the number of write cycles attempted per operation.
func WithMaxAttempts(attempts uint) ServiceOption {
	return func(s *Service) { s.maxAttempts = attempts }
}

// WithRetryInterval sets the initial backoff interval between attempts.
func WithRetryInterval(interval time.Duration) ServiceOption {
	return func(s *Service) { s.retryInterval = interval }
}

// NewService constructs the coordinator around a persistent store.
func NewService(store PersistentStore, opts ...ServiceOption) *Service {
	s := &Service{
		store:         store,
		logger:        zerolog.Nop(),
		metrics:       NoopMetricsRecorder{},
		maxAttempts:   4,
		retryInterval: 50 * time.Millisecond,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Store exposes the underlying persistent store for read paths.
func (s *Service) Store() PersistentStore { return s.store }

// Summary aggregates closed entries per tenant, user, client, project, and
// calendar day. An empty tenantID spans all tenants.
func (s *Service) Summary(ctx context.Context, tenantID string) ([]SummaryRow, error) {
	return NewProjector(s.store).Summary(ctx, tenantID)
}

// ActiveEntries lists open sessions with elapsed minutes at query time.
func (s *Service) ActiveEntries(ctx context.Context, tenantID string) ([]ActiveEntry, error) {
	return NewProjector(s.store).ActiveEntries(ctx, tenantID)
}

// write runs one mutation through the retrying validate-resolve-commit cycle.
func (s *Service) write(ctx context.Context, op string, fn func(tx Transaction) error) (Result, error) {
	start := time.Now()
	attempt := 0

	operation := func() (Result, error) {
		attempt++
		if attempt > 1 {
			s.metrics.RecordRetry(op)
			s.logger.Warn().Str("op", op).Int("attempt", attempt).Msg("retrying write cycle")
		}
		res, err := s.store.RunInTransaction(ctx, fn)
		if err != nil {
			if domain.IsRetryable(err) {
				return Result{}, err
			}
			return res, backoff.Permanent(err)
		}
		return res, nil
	}

	expo := backoff.NewExponentialBackOff()
	expo.InitialInterval = s.retryInterval

	res, err := backoff.Retry(ctx, operation,
		backoff.WithBackOff(expo),
		backoff.WithMaxTries(s.maxAttempts),
	)
	elapsed := time.Since(start)

	if err != nil {
		var rve domain.RuleViolationError
		if errors.As(err, &rve) {
			for _, v := range rve.Result.Violations {
				s.metrics.RecordViolation(v.Kind)
			}
			s.metrics.RecordWrite(op, OutcomeRejected, elapsed)
			s.logger.Warn().Str("op", op).
				Int("violations", len(rve.Result.Violations)).
				Msg("write rejected by rules")
			return rve.Result, err
		}
		s.metrics.RecordWrite(op, OutcomeFailed, elapsed)
		s.logger.Error().Str("op", op).Err(err).Msg("write failed")
		return Result{}, err
	}

	for _, v := range res.Violations {
		s.metrics.RecordViolation(v.Kind)
		event := s.logger.Info()
		if v.Severity == domain.SeverityWarn {
			event = s.logger.Warn()
		}
		event.Str("op", op).Str("rule", v.Rule).
			Str("kind", string(v.Kind)).Str("entity_id", v.EntityID).
			Msg(v.Message)
	}
	s.metrics.RecordWrite(op, OutcomeCommitted, elapsed)
	s.logger.Debug().Str("op", op).Int("attempts", attempt).Msg("write committed")
	return res, nil
}

// ValidateOnly runs a mutation through the full rule set against a discarded
// snapshot. The violation list matches what a real write of the same mutation
// would report, but committed state is never touched.
func (s *Service) ValidateOnly(ctx context.Context, fn func(tx Transaction) error) (Result, error) {
	res, err := s.store.ValidateOnly(ctx, fn)
	var rve domain.RuleViolationError
	if errors.As(err, &rve) {
		return rve.Result, err
	}
	return res, err
}

// View runs fn against a read-only snapshot of committed state.
func (s *Service) View(ctx context.Context, fn func(TransactionView) error) error {
	return s.store.View(ctx, fn)
}

// CreateTenant creates a tenant.
func (s *Service) CreateTenant(ctx context.Context, tenant Tenant) (Tenant, error) {
	var created Tenant
	_, err := s.write(ctx, "create_tenant", func(tx Transaction) error {
		var err error
		created, err = tx.CreateTenant(tenant)
		return err
	})
	if err != nil {
		return Tenant{}, err
	}
	return created, nil
}

// UpdateTenant applies a mutator to a tenant.
func (s *Service) UpdateTenant(ctx context.Context, id string, mutator func(*Tenant) error) (Tenant, error) {
	var updated Tenant
	_, err := s.write(ctx, "update_tenant", func(tx Transaction) error {
		var err error
		updated, err = tx.UpdateTenant(id, mutator)
		return err
	})
	if err != nil {
		return Tenant{}, err
	}
	return updated, nil
}

// DeleteTenant removes a tenant and everything it owns.
func (s *Service) DeleteTenant(ctx context.Context, id string) error {
	_, err := s.write(ctx, "delete_tenant", func(tx Transaction) error {
		return tx.DeleteTenant(id)
	})
	return err
}

// CreateUser creates a user.
func (s *Service) CreateUser(ctx context.Context, user User) (User, error) {
	var created User
	_, err := s.write(ctx, "create_user", func(tx Transaction) error {
		var err error
		created, err = tx.CreateUser(user)
		return err
	})
	if err != nil {
		return User{}, err
	}
	return created, nil
}

// UpdateUser applies a mutator to a user.
func (s *Service) UpdateUser(ctx context.Context, id string, mutator func(*User) error) (User, error) {
	var updated User
	_, err := s.write(ctx, "update_user", func(tx Transaction) error {
		var err error
		updated, err = tx.UpdateUser(id, mutator)
		return err
	})
	if err != nil {
		return User{}, err
	}
	return updated, nil
}

// DeleteUser removes a user and its time entries.
func (s *Service) DeleteUser(ctx context.Context, id string) error {
	_, err := s.write(ctx, "delete_user", func(tx Transaction) error {
		return tx.DeleteUser(id)
	})
	return err
}

// CreateClient creates a client.
func (s *Service) CreateClient(ctx context.Context, client Client) (Client, error) {
	var created Client
	_, err := s.write(ctx, "create_client", func(tx Transaction) error {
		var err error
		created, err = tx.CreateClient(client)
		return err
	})
	if err != nil {
		return Client{}, err
	}
	return created, nil
}

// UpdateClient applies a mutator to a client.
func (s *Service) UpdateClient(ctx context.Context, id string, mutator func(*Client) error) (Client, error) {
	var updated Client
	_, err := s.write(ctx, "update_client", func(tx Transaction) error {
		var err error
		updated, err = tx.UpdateClient(id, mutator)
		return err
	})
	if err != nil {
		return Client{}, err
	}
	return updated, nil
}

// DeleteClient removes a client and its dependent projects and entries.
func (s *Service) DeleteClient(ctx context.Context, id string) error {
	_, err := s.write(ctx, "delete_client", func(tx Transaction) error {
		return tx.DeleteClient(id)
	})
	return err
}

// CreateProject creates a project.
func (s *Service) CreateProject(ctx context.Context, project Project) (Project, error) {
	var created Project
	_, err := s.write(ctx, "create_project", func(tx Transaction) error {
		var err error
		created, err = tx.CreateProject(project)
		return err
	})
	if err != nil {
		return Project{}, err
	}
	return created, nil
}

// CreateProjectWithTechnologies creates a project together with its
// technology links in one atomic write, so a bad link aborts the project too.
func (s *Service) CreateProjectWithTechnologies(ctx context.Context, project Project, technologyIDs []string) (Project, error) {
	var created Project
	_, err := s.write(ctx, "create_project_with_technologies", func(tx Transaction) error {
		var err error
		created, err = tx.CreateProject(project)
		if err != nil {
			return err
		}
		for _, techID := range technologyIDs {
			if _, err := tx.AddProjectTechnology(created.ID, techID); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return Project{}, err
	}
	return created, nil
}

// UpdateProject applies a mutator to a project.
func (s *Service) UpdateProject(ctx context.Context, id string, mutator func(*Project) error) (Project, error) {
	var updated Project
	_, err := s.write(ctx, "update_project", func(tx Transaction) error {
		var err error
		updated, err = tx.UpdateProject(id, mutator)
		return err
	})
	if err != nil {
		return Project{}, err
	}
	return updated, nil
}

// DeleteProject removes a project, its entries, and its link rows.
func (s *Service) DeleteProject(ctx context.Context, id string) error {
	_, err := s.write(ctx, "delete_project", func(tx Transaction) error {
		return tx.DeleteProject(id)
	})
	return err
}

// CreateTechnology creates a technology.
func (s *Service) CreateTechnology(ctx context.Context, tech Technology) (Technology, error) {
	var created Technology
	_, err := s.write(ctx, "create_technology", func(tx Transaction) error {
		var err error
		created, err = tx.CreateTechnology(tech)
		return err
	})
	if err != nil {
		return Technology{}, err
	}
	return created, nil
}

// UpdateTechnology applies a mutator to a technology.
func (s *Service) UpdateTechnology(ctx context.Context, id string, mutator func(*Technology) error) (Technology, error) {
	var updated Technology
	_, err := s.write(ctx, "update_technology", func(tx Transaction) error {
		var err error
		updated, err = tx.UpdateTechnology(id, mutator)
		return err
	})
	if err != nil {
		return Technology{}, err
	}
	return updated, nil
}

// DeleteTechnology removes a technology and the links referencing it.
func (s *Service) DeleteTechnology(ctx context.Context, id string) error {
	_, err := s.write(ctx, "delete_technology", func(tx Transaction) error {
		return tx.DeleteTechnology(id)
	})
	return err
}

// CreateTimeEntry creates a time entry. The stored duration is derived from
// the entry's timestamps; any caller-supplied value is ignored.
func (s *Service) CreateTimeEntry(ctx context.Context, entry TimeEntry) (TimeEntry, error) {
	var created TimeEntry
	_, err := s.write(ctx, "create_time_entry", func(tx Transaction) error {
		var err error
		created, err = tx.CreateTimeEntry(entry)
		return err
	})
	if err != nil {
		return TimeEntry{}, err
	}
	return created, nil
}

// StartTimeEntry opens a new session for a user against a project. Any end
// time on the argument is discarded.
func (s *Service) StartTimeEntry(ctx context.Context, entry TimeEntry) (TimeEntry, error) {
	entry.EndTime = nil
	return s.CreateTimeEntry(ctx, entry)
}

// StopTimeEntry closes an open session at the given instant and returns the
// entry with its resolved duration.
func (s *Service) StopTimeEntry(ctx context.Context, id string, end time.Time) (TimeEntry, error) {
	return s.UpdateTimeEntry(ctx, id, func(e *TimeEntry) error {
		e.EndTime = &end
		return nil
	})
}

// UpdateTimeEntry applies a mutator to a time entry and re-resolves its
// derived fields.
func (s *Service) UpdateTimeEntry(ctx context.Context, id string, mutator func(*TimeEntry) error) (TimeEntry, error) {
	var updated TimeEntry
	_, err := s.write(ctx, "update_time_entry", func(tx Transaction) error {
		var err error
		updated, err = tx.UpdateTimeEntry(id, mutator)
		return err
	})
	if err != nil {
		return TimeEntry{}, err
	}
	return updated, nil
}

// DeleteTimeEntry removes a time entry and its technology links.
func (s *Service) DeleteTimeEntry(ctx context.Context, id string) error {
	_, err := s.write(ctx, "delete_time_entry", func(tx Transaction) error {
		return tx.DeleteTimeEntry(id)
	})
	return err
}

// AddProjectTechnology links a technology to a project.
func (s *Service) AddProjectTechnology(ctx context.Context, projectID, technologyID string) (ProjectTechnology, error) {
	var link ProjectTechnology
	_, err := s.write(ctx, "add_project_technology", func(tx Transaction) error {
		var err error
		link, err = tx.AddProjectTechnology(projectID, technologyID)
		return err
	})
	if err != nil {
		return ProjectTechnology{}, err
	}
	return link, nil
}

// RemoveProjectTechnology unlinks a technology from a project.
func (s *Service) RemoveProjectTechnology(ctx context.Context, projectID, technologyID string) error {
	_, err := s.write(ctx, "remove_project_technology", func(tx Transaction) error {
		return tx.RemoveProjectTechnology(projectID, technologyID)
	})
	return err
}

// TagTimeEntry links a technology to a time entry.
func (s *Service) TagTimeEntry(ctx context.Context, timeEntryID, technologyID string) (TimeEntryTechnology, error) {
	var link TimeEntryTechnology
	_, err := s.write(ctx, "tag_time_entry", func(tx Transaction) error {
		var err error
		link, err = tx.AddTimeEntryTechnology(timeEntryID, technologyID)
		return err
	})
	if err != nil {
		return TimeEntryTechnology{}, err
	}
	return link, nil
}

// UntagTimeEntry unlinks a technology from a time entry.
func (s *Service) UntagTimeEntry(ctx context.Context, timeEntryID, technologyID string) error {
	_, err := s.write(ctx, "untag_time_entry", func(tx Transaction) error {
		return tx.RemoveTimeEntryTechnology(timeEntryID, technologyID)
	})
	return err
}
