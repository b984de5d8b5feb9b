package postgres

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"fmt"
	"io"
	"testing"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5/pgconn"

	"trackcore/pkg/domain"
)

func TestClassifyErrConflictCodes(t *testing.T) {
	for _, code := range []string{pgerrcode.SerializationFailure, pgerrcode.DeadlockDetected} {
		err := classifyErr(fmt.Errorf("wrapped: %w", &pgconn.PgError{Code: code}))
		var conflict domain.ConflictError
		if !errors.As(err, &conflict) {
			t.Fatalf("code %s must map to conflict, got %v", code, err)
		}
	}
}

func TestClassifyErrUnavailableCodes(t *testing.T) {
	codes := []string{
		pgerrcode.ConnectionFailure,
		pgerrcode.CannotConnectNow,
		pgerrcode.AdminShutdown,
		pgerrcode.TooManyConnections,
	}
	for _, code := range codes {
		err := classifyErr(&pgconn.PgError{Code: code})
		var unavailable domain.UnavailableError
		if !errors.As(err, &unavailable) {
			t.Fatalf("code %s must map to unavailable, got %v", code, err)
		}
	}
}

func TestClassifyErrPassThrough(t *testing.T) {
	pgErr := &pgconn.PgError{Code: pgerrcode.UniqueViolation}
	if got := classifyErr(pgErr); !errors.Is(got, pgErr) {
		t.Fatalf("non-transient pg errors must pass through, got %v", got)
	}
	if classifyErr(nil) != nil {
		t.Fatal("nil must stay nil")
	}
}

func TestClassifyErrNonPgErrorIsUnavailable(t *testing.T) {
	err := classifyErr(errors.New("dial tcp: connection refused"))
	var unavailable domain.UnavailableError
	if !errors.As(err, &unavailable) {
		t.Fatalf("driver-level errors must map to unavailable, got %v", err)
	}
}

func TestNewStoreOpenFailure(t *testing.T) {
	restore := OverrideSQLOpen(func(driver, dsn string) (*sql.DB, error) {
		return nil, errors.New("sentinel open failure")
	})
	defer restore()

	if _, err := NewStore("postgres://example/trackcore", nil, nil); err == nil {
		t.Fatal("expected open failure to surface")
	}
}

// brokenTxDriver answers setup statements but refuses to begin the snapshot
// transaction, standing in for a server lost after open.
type brokenTxDriver struct{}

func (brokenTxDriver) Open(string) (driver.Conn, error) { return brokenTxConn{}, nil }

type brokenTxConn struct{}

func (brokenTxConn) Prepare(query string) (driver.Stmt, error) { return brokenTxStmt{}, nil }
func (brokenTxConn) Close() error                              { return nil }
func (brokenTxConn) Begin() (driver.Tx, error) {
	return nil, errors.New("connection reset by peer")
}

type brokenTxStmt struct{}

func (brokenTxStmt) Close() error  { return nil }
func (brokenTxStmt) NumInput() int { return -1 }
func (brokenTxStmt) Exec([]driver.Value) (driver.Result, error) {
	return driver.RowsAffected(0), nil
}
func (brokenTxStmt) Query([]driver.Value) (driver.Rows, error) { return noRows{}, nil }

type noRows struct{}

func (noRows) Columns() []string         { return []string{"bucket", "payload"} }
func (noRows) Close() error              { return nil }
func (noRows) Next([]driver.Value) error { return io.EOF }

func TestPersistFailureRollsBackCommit(t *testing.T) {
	sql.Register("trackcore-broken-tx", brokenTxDriver{})
	restore := OverrideSQLOpen(func(_, dsn string) (*sql.DB, error) {
		return sql.Open("trackcore-broken-tx", dsn)
	})
	defer restore()

	s, err := NewStore("postgres://example/trackcore", nil, nil)
	if err != nil {
		t.Fatalf("new store: %v", err)
	}

	ctx := context.Background()
	for attempt := 0; attempt < 3; attempt++ {
		_, err := s.RunInTransaction(ctx, func(tx domain.Transaction) error {
			_, err := tx.CreateTenant(domain.Tenant{Name: "Acme"})
			return err
		})
		if err == nil {
			t.Fatalf("attempt %d: expected snapshot failure", attempt)
		}
		if !domain.IsRetryable(err) {
			t.Fatalf("attempt %d: expected retryable store error, got %v", attempt, err)
		}
	}
	if got := len(s.ListTenants()); got != 0 {
		t.Fatalf("failed writes left state behind: %d tenants", got)
	}
}
