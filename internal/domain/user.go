package domain

import "context"

// UserInfo is the display data attached to outgoing messages.
type UserInfo struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email,omitempty"`
}

// UserDirectory resolves display info for user ids. It is read-only; users
// are owned by the identity service.
type UserDirectory interface {
	GetDisplayInfo(ctx context.Context, userID string) (*UserInfo, error)
}
