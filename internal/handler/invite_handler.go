package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/samber/lo"

	"groupchat/internal/domain"
	"groupchat/internal/service"
)

var inviteStatuses = []domain.InviteStatus{
	domain.InvitePending,
	domain.InviteAccepted,
	domain.InviteDeclined,
	domain.InviteRevoked,
}

// InviteHandler serves the invite flow.
type InviteHandler struct {
	invites *service.InviteService
}

func NewInviteHandler(invites *service.InviteService) *InviteHandler {
	return &InviteHandler{invites: invites}
}

type createInviteRequest struct {
	UserID string `json:"user_id"`
}

type respondInviteRequest struct {
	Action string `json:"action"`
}

func (h *InviteHandler) Create(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUser(w, r)
	if !ok {
		return
	}

	var req createInviteRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}

	invite, err := h.invites.Create(r.Context(), groupID(r), req.UserID, userID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, invite)
}

// List returns a group's invites, optionally filtered by ?status=.
func (h *InviteHandler) List(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUser(w, r)
	if !ok {
		return
	}

	status := domain.InviteStatus(r.URL.Query().Get("status"))
	if status != "" && !lo.Contains(inviteStatuses, status) {
		writeError(w, r, domain.NewError(domain.KindValidation, "unknown invite status %q", status))
		return
	}

	invites, err := h.invites.List(r.Context(), groupID(r), userID, status)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, nonNil(invites))
}

// Mine returns the pending invites addressed to the caller.
func (h *InviteHandler) Mine(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUser(w, r)
	if !ok {
		return
	}

	invites, err := h.invites.ListForUser(r.Context(), userID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, nonNil(invites))
}

func (h *InviteHandler) Respond(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUser(w, r)
	if !ok {
		return
	}

	var req respondInviteRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}

	invite, err := h.invites.Respond(r.Context(), chi.URLParam(r, "inviteId"), req.Action, userID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, invite)
}

func (h *InviteHandler) Revoke(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUser(w, r)
	if !ok {
		return
	}

	invite, err := h.invites.Revoke(r.Context(), chi.URLParam(r, "inviteId"), userID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, invite)
}
