package domain

import (
	"context"
	"time"
)

type JoinRequestStatus string

const (
	JoinRequestPending  JoinRequestStatus = "pending"
	JoinRequestApproved JoinRequestStatus = "approved"
	JoinRequestDeclined JoinRequestStatus = "declined"
)

// JoinRequest is a user-initiated request to join a group.
type JoinRequest struct {
	ID          string            `json:"id"`
	GroupID     string            `json:"group_id"`
	RequesterID string            `json:"requester_id"`
	Status      JoinRequestStatus `json:"status"`
	CreatedAt   time.Time         `json:"created_at"`
	ResolvedAt  *time.Time        `json:"resolved_at,omitempty"`
	ResolvedBy  string            `json:"resolved_by,omitempty"`
}

type JoinRequestRepository interface {
	Create(ctx context.Context, req *JoinRequest) error
	GetByID(ctx context.Context, id string) (*JoinRequest, error)
	LockByID(ctx context.Context, id string) (*JoinRequest, error)
	FindPending(ctx context.Context, groupID, userID string) (*JoinRequest, error)
	Resolve(ctx context.Context, id string, status JoinRequestStatus, by string, at time.Time) error
	ListPending(ctx context.Context, groupID string) ([]*JoinRequest, error)
	DeleteByGroup(ctx context.Context, groupID string) error
}
