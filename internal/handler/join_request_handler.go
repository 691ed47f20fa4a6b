package handler

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"

	"groupchat/internal/domain"
	"groupchat/internal/service"
)

// JoinRequestHandler serves the join request approval flow.
type JoinRequestHandler struct {
	requests *service.JoinRequestService
}

func NewJoinRequestHandler(requests *service.JoinRequestService) *JoinRequestHandler {
	return &JoinRequestHandler{requests: requests}
}

func (h *JoinRequestHandler) Create(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUser(w, r)
	if !ok {
		return
	}

	req, err := h.requests.Create(r.Context(), groupID(r), userID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, req)
}

func (h *JoinRequestHandler) List(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUser(w, r)
	if !ok {
		return
	}

	reqs, err := h.requests.ListPending(r.Context(), groupID(r), userID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, nonNil(reqs))
}

func (h *JoinRequestHandler) Approve(w http.ResponseWriter, r *http.Request) {
	h.resolve(w, r, h.requests.Approve)
}

func (h *JoinRequestHandler) Decline(w http.ResponseWriter, r *http.Request) {
	h.resolve(w, r, h.requests.Decline)
}

type resolveFunc func(ctx context.Context, groupID, requestID, adminID string) (*domain.JoinRequest, error)

func (h *JoinRequestHandler) resolve(w http.ResponseWriter, r *http.Request, fn resolveFunc) {
	userID, ok := currentUser(w, r)
	if !ok {
		return
	}

	req, err := fn(r.Context(), groupID(r), chi.URLParam(r, "requestId"), userID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, req)
}
