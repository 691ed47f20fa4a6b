package domain

import (
	"errors"
	"fmt"
)

// Kind classifies domain errors. The string value doubles as the stable
// error code exposed to HTTP and websocket clients.
type Kind string

const (
	KindNotFound           Kind = "not_found"
	KindGroupFull          Kind = "group_full"
	KindInvitationRequired Kind = "invitation_required"
	KindAlreadyMember      Kind = "already_member"
	KindInviteExists       Kind = "invite_exists"
	KindInvalidState       Kind = "invalid_state"
	KindForbidden          Kind = "forbidden"
	KindValidation         Kind = "validation_error"
	KindDuplicateName      Kind = "duplicate_name"
	KindAuth               Kind = "unauthorized"
	KindNotAuthenticated   Kind = "not_authenticated"
	KindUnknownMessageType Kind = "unknown_message_type"
	KindUnavailable        Kind = "unavailable"
)

// CodeInternal is reported for errors that carry no Kind.
const CodeInternal = "internal_error"

// Error is the error type returned by services and stores.
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return e.Message + ": " + e.Err.Error()
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches any *Error of the same Kind, so errors.Is(err, ErrGroupFull)
// works regardless of the message.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind
}

var (
	ErrNotFound           = &Error{Kind: KindNotFound, Message: "not found"}
	ErrGroupFull          = &Error{Kind: KindGroupFull, Message: "group is full"}
	ErrInvitationRequired = &Error{Kind: KindInvitationRequired, Message: "invitation required"}
	ErrAlreadyMember      = &Error{Kind: KindAlreadyMember, Message: "user is already a member"}
	ErrInviteExists       = &Error{Kind: KindInviteExists, Message: "invite already exists"}
	ErrInvalidState       = &Error{Kind: KindInvalidState, Message: "invalid state"}
	ErrForbidden          = &Error{Kind: KindForbidden, Message: "forbidden"}
	ErrValidation         = &Error{Kind: KindValidation, Message: "validation failed"}
	ErrDuplicateName      = &Error{Kind: KindDuplicateName, Message: "name already taken"}
	ErrAuth               = &Error{Kind: KindAuth, Message: "invalid credentials"}
	ErrNotAuthenticated   = &Error{Kind: KindNotAuthenticated, Message: "not authenticated"}
	ErrUnknownMessageType = &Error{Kind: KindUnknownMessageType, Message: "unknown message type"}
	ErrUnavailable        = &Error{Kind: KindUnavailable, Message: "temporarily unavailable"}
)

// NewError returns an *Error of the given kind with a formatted message.
func NewError(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// WrapError returns an *Error of the given kind wrapping err.
func WrapError(kind Kind, err error, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...), Err: err}
}

// KindOf returns the Kind of the first *Error in err's chain, or "".
func KindOf(err error) Kind {
	var de *Error
	if errors.As(err, &de) {
		return de.Kind
	}
	return ""
}

// CodeOf returns the client-facing code for err.
func CodeOf(err error) string {
	if kind := KindOf(err); kind != "" {
		return string(kind)
	}
	return CodeInternal
}

// IsRetryable reports whether the caller may retry the operation unchanged.
func IsRetryable(err error) bool {
	return KindOf(err) == KindUnavailable
}

// PublicMessage returns the message safe to show a client. Wrapped causes
// and errors without a Kind are not exposed.
func PublicMessage(err error) string {
	var de *Error
	if errors.As(err, &de) {
		return de.Message
	}
	return "internal error"
}
