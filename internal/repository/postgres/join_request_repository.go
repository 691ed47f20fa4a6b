package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"groupchat/internal/domain"
)

const joinRequestColumns = `id, group_id, requester_id, status, created_at, resolved_at, COALESCE(resolved_by, '')`

// JoinRequestRepository implements domain.JoinRequestRepository for PostgreSQL
type JoinRequestRepository struct {
	db DBTX
}

func NewJoinRequestRepository(db DBTX) *JoinRequestRepository {
	return &JoinRequestRepository{db: db}
}

func (r *JoinRequestRepository) Create(ctx context.Context, req *domain.JoinRequest) error {
	query := `
		INSERT INTO join_requests (group_id, requester_id, status)
		VALUES ($1, $2, $3)
		RETURNING id, created_at
	`
	err := r.db.QueryRowContext(ctx, query, req.GroupID, req.RequesterID, req.Status).
		Scan(&req.ID, &req.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to create join request: %w", err)
	}
	return nil
}

func (r *JoinRequestRepository) GetByID(ctx context.Context, id string) (*domain.JoinRequest, error) {
	query := `SELECT ` + joinRequestColumns + ` FROM join_requests WHERE id = $1`
	return r.getRequest(ctx, query, id)
}

func (r *JoinRequestRepository) LockByID(ctx context.Context, id string) (*domain.JoinRequest, error) {
	query := `SELECT ` + joinRequestColumns + ` FROM join_requests WHERE id = $1 FOR UPDATE`
	return r.getRequest(ctx, query, id)
}

func (r *JoinRequestRepository) FindPending(ctx context.Context, groupID, userID string) (*domain.JoinRequest, error) {
	query := `
		SELECT ` + joinRequestColumns + `
		FROM join_requests
		WHERE group_id = $1 AND requester_id = $2 AND status = 'pending'
	`
	return r.getRequest(ctx, query, groupID, userID)
}

func (r *JoinRequestRepository) getRequest(ctx context.Context, query string, args ...any) (*domain.JoinRequest, error) {
	req, err := scanJoinRequest(r.db.QueryRowContext(ctx, query, args...))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.NewError(domain.KindNotFound, "join request not found")
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get join request: %w", err)
	}
	return req, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanJoinRequest(row rowScanner) (*domain.JoinRequest, error) {
	req := &domain.JoinRequest{}
	var resolvedAt sql.NullTime
	if err := row.Scan(
		&req.ID,
		&req.GroupID,
		&req.RequesterID,
		&req.Status,
		&req.CreatedAt,
		&resolvedAt,
		&req.ResolvedBy,
	); err != nil {
		return nil, err
	}
	if resolvedAt.Valid {
		req.ResolvedAt = &resolvedAt.Time
	}
	return req, nil
}

func (r *JoinRequestRepository) Resolve(ctx context.Context, id string, status domain.JoinRequestStatus, by string, at time.Time) error {
	query := `
		UPDATE join_requests
		SET status = $2, resolved_by = $3, resolved_at = $4
		WHERE id = $1
	`
	res, err := r.db.ExecContext(ctx, query, id, status, by, at)
	if err != nil {
		return fmt.Errorf("failed to resolve join request: %w", err)
	}
	return expectAffected(res, "join request", id)
}

func (r *JoinRequestRepository) ListPending(ctx context.Context, groupID string) ([]*domain.JoinRequest, error) {
	query := `
		SELECT ` + joinRequestColumns + `
		FROM join_requests
		WHERE group_id = $1 AND status = 'pending'
		ORDER BY created_at
	`
	rows, err := r.db.QueryContext(ctx, query, groupID)
	if err != nil {
		return nil, fmt.Errorf("failed to query join requests: %w", err)
	}
	defer rows.Close()

	reqs := make([]*domain.JoinRequest, 0)
	for rows.Next() {
		req, err := scanJoinRequest(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan join request: %w", err)
		}
		reqs = append(reqs, req)
	}
	return reqs, rows.Err()
}

func (r *JoinRequestRepository) DeleteByGroup(ctx context.Context, groupID string) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM join_requests WHERE group_id = $1`, groupID); err != nil {
		return fmt.Errorf("failed to delete join requests: %w", err)
	}
	return nil
}
