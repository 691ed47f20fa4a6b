package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"groupchat/internal/domain"
	"groupchat/internal/observability"
)

// DBTX is the subset of *sql.DB and *sql.Tx the repositories need.
type DBTX interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// repos binds every repository to one DBTX.
type repos struct {
	groups       *GroupRepository
	invites      *InviteRepository
	joinRequests *JoinRequestRepository
	messages     *MessageRepository
}

func newRepos(db DBTX) *repos {
	return &repos{
		groups:       NewGroupRepository(db),
		invites:      NewInviteRepository(db),
		joinRequests: NewJoinRequestRepository(db),
		messages:     NewMessageRepository(db),
	}
}

func (r *repos) Groups() domain.GroupRepository             { return r.groups }
func (r *repos) Invites() domain.InviteRepository           { return r.invites }
func (r *repos) JoinRequests() domain.JoinRequestRepository { return r.joinRequests }
func (r *repos) Messages() domain.MessageRepository         { return r.messages }

// Store implements domain.Store on PostgreSQL.
type Store struct {
	*repos
	db        *sql.DB
	txTimeout time.Duration
}

// NewStore creates a store. A zero txTimeout disables the per-transaction deadline.
func NewStore(db *sql.DB, txTimeout time.Duration) *Store {
	return &Store{
		repos:     newRepos(db),
		db:        db,
		txTimeout: txTimeout,
	}
}

// WithTx executes fn within a database transaction.
// If fn returns an error, the transaction is rolled back; otherwise it is committed.
// Serialization failures and deadlocks are retried once. A transaction that
// exceeds the timeout fails with a retryable domain.KindUnavailable error.
func (s *Store) WithTx(ctx context.Context, fn func(domain.Repos) error) error {
	err := s.runTx(ctx, fn)
	if IsSerializationFailure(err) {
		observability.DBTxRetries.Inc()
		slog.Warn("retrying transaction after serialization failure", slog.String("error", err.Error()))
		err = s.runTx(ctx, fn)
		if IsSerializationFailure(err) {
			return domain.WrapError(domain.KindUnavailable, err, "transaction conflict")
		}
	}
	return err
}

func (s *Store) runTx(ctx context.Context, fn func(domain.Repos) error) error {
	if s.txTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.txTimeout)
		defer cancel()
	}

	start := time.Now()
	defer func() {
		observability.DBQueryDuration.WithLabelValues("transaction", "all").Observe(time.Since(start).Seconds())
	}()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return txError(ctx, fmt.Errorf("failed to begin transaction: %w", err))
	}

	if err := fn(newRepos(tx)); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil && !errors.Is(rbErr, sql.ErrTxDone) {
			slog.Warn("transaction rollback failed", slog.String("error", rbErr.Error()))
		}
		return txError(ctx, err)
	}

	if err := tx.Commit(); err != nil {
		return txError(ctx, fmt.Errorf("failed to commit transaction: %w", err))
	}

	return nil
}

// txError turns failures caused by the transaction deadline into a
// retryable error. Domain errors pass through unchanged.
func txError(ctx context.Context, err error) error {
	if domain.KindOf(err) != "" {
		return err
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return domain.WrapError(domain.KindUnavailable, err, "transaction timed out")
	}
	return err
}
