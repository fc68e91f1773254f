package store

import (
	"context"
	"database/sql"
	"errors"

	"go.uber.org/zap"

	"forkline.io/internal/fault"
)

// Scope is a unit of work: one transaction owned by one handler invocation.
// It is never shared across requests and never reused after release.
type Scope struct {
	tx   *sql.Tx
	done bool
}

// ExecContext runs a statement inside the scope's transaction.
func (s *Scope) ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error) {
	return s.tx.ExecContext(ctx, query, args...)
}

// QueryContext runs a query inside the scope's transaction.
func (s *Scope) QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error) {
	return s.tx.QueryContext(ctx, query, args...)
}

// QueryRowContext runs a single-row query inside the scope's transaction.
func (s *Scope) QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row {
	return s.tx.QueryRowContext(ctx, query, args...)
}

func (s *Scope) commit() error {
	if s.done {
		return nil
	}
	s.done = true
	return s.tx.Commit()
}

// release rolls back unless the scope already committed or rolled back.
// Idempotent; a release failure is logged, never surfaced, so it cannot mask
// the operation's outcome.
func (s *Scope) release(log *zap.Logger) {
	if s.done {
		return
	}
	s.done = true
	if err := s.tx.Rollback(); err != nil && !errors.Is(err, sql.ErrTxDone) {
		log.Error("scope release failed", zap.Error(err))
	}
}

// InScope runs fn inside a transaction scope.
//
// When scope is non-nil the call joins the already-open scope: fn runs on the
// caller's transaction and the outermost InScope owns the commit/rollback
// decision. Otherwise a new transaction begins and exactly one of commit or
// rollback happens before InScope returns:
//
//   - fn returns nil: commit.
//   - fn returns a classified *fault.Error: rollback, the error propagates
//     unchanged.
//   - fn returns anything else: rollback, the cause is logged in full and a
//     generic internal fault is returned instead.
//
// The scope is released on every exit path, including panics and caller
// cancellation, so a connection is never leaked back to the pool mid-transaction.
func (d *DB) InScope(ctx context.Context, scope *Scope, fn func(*Scope) error) error {
	if scope != nil {
		return fn(scope)
	}

	tx, err := d.db.BeginTx(ctx, nil)
	if err != nil {
		d.log.Error("begin transaction", zap.Error(err))
		return fault.Internalf(err)
	}
	sc := &Scope{tx: tx}
	defer sc.release(d.log)

	if err := fn(sc); err != nil {
		sc.release(d.log)
		if _, classified := fault.KindOf(err); classified {
			return err
		}
		d.log.Error("transaction rolled back", zap.Error(err))
		return fault.Internalf(err)
	}

	if err := sc.commit(); err != nil {
		d.log.Error("commit failed", zap.Error(err))
		return fault.Internalf(err)
	}
	return nil
}
