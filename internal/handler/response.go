package handler

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"groupchat/internal/domain"
	"groupchat/internal/middleware"
	"groupchat/internal/observability"
)

const maxBodyBytes = 1 << 20

// ErrorResponse is the JSON error envelope.
type ErrorResponse struct {
	Error ErrorBody `json:"error"`
}

type ErrorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// MemberCountResponse is returned by membership changes.
type MemberCountResponse struct {
	GroupID     string `json:"group_id"`
	MemberCount int    `json:"member_count"`
}

var statusByKind = map[domain.Kind]int{
	domain.KindNotFound:           http.StatusNotFound,
	domain.KindGroupFull:          http.StatusConflict,
	domain.KindInvitationRequired: http.StatusForbidden,
	domain.KindAlreadyMember:      http.StatusConflict,
	domain.KindInviteExists:       http.StatusConflict,
	domain.KindInvalidState:       http.StatusConflict,
	domain.KindForbidden:          http.StatusForbidden,
	domain.KindValidation:         http.StatusBadRequest,
	domain.KindDuplicateName:      http.StatusConflict,
	domain.KindAuth:               http.StatusUnauthorized,
	domain.KindNotAuthenticated:   http.StatusUnauthorized,
	domain.KindUnknownMessageType: http.StatusBadRequest,
	domain.KindUnavailable:        http.StatusServiceUnavailable,
}

// StatusFor maps an error to its HTTP status. Errors without a Kind are 500.
func StatusFor(err error) int {
	if status, ok := statusByKind[domain.KindOf(err)]; ok {
		return status
	}
	return http.StatusInternalServerError
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("failed to encode response", slog.String("error", err.Error()))
	}
}

// writeError logs internal errors with the request context and hides their
// message from the client.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := StatusFor(err)
	logger := observability.FromContext(r.Context())
	if status == http.StatusInternalServerError {
		logger.Error("request failed",
			slog.String("method", r.Method),
			slog.String("path", r.URL.Path),
			slog.String("error", err.Error()))
	} else {
		logger.Debug("request rejected",
			slog.String("code", domain.CodeOf(err)),
			slog.String("error", err.Error()))
	}

	if status == http.StatusServiceUnavailable {
		w.Header().Set("Retry-After", "1")
	}
	writeJSON(w, status, ErrorResponse{Error: ErrorBody{
		Code:    domain.CodeOf(err),
		Message: domain.PublicMessage(err),
	}})
}

func decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		if errors.Is(err, io.EOF) {
			return domain.NewError(domain.KindValidation, "request body required")
		}
		return domain.WrapError(domain.KindValidation, err, "invalid request body")
	}
	return nil
}

// currentUser returns the authenticated caller or writes a 401.
func currentUser(w http.ResponseWriter, r *http.Request) (string, bool) {
	userID, ok := middleware.GetUserID(r.Context())
	if !ok {
		writeError(w, r, domain.ErrNotAuthenticated)
		return "", false
	}
	return userID, true
}

func queryLimit(r *http.Request) (int, error) {
	raw := r.URL.Query().Get("limit")
	if raw == "" {
		return 0, nil
	}
	limit, err := strconv.Atoi(raw)
	if err != nil || limit < 0 {
		return 0, domain.NewError(domain.KindValidation, "limit must be a non-negative integer")
	}
	return limit, nil
}

func groupID(r *http.Request) string {
	return chi.URLParam(r, "id")
}

// nonNil keeps empty lists encoding as [] rather than null.
func nonNil[T any](items []T) []T {
	if items == nil {
		return []T{}
	}
	return items
}
