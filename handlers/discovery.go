package handlers

import (
	"context"
	"errors"
	"net/http"

	"github.com/gorilla/mux"

	"cinewise/models"
	"cinewise/services/discovery"
)

type discoveryService interface {
	Create() models.SessionSnapshot
	Snapshot(id string) (models.SessionSnapshot, error)
	Search(ctx context.Context, id, query string) (models.SessionSnapshot, error)
	LoadMore(ctx context.Context, id string) (models.SessionSnapshot, error)
}

var _ discoveryService = (*discovery.Registry)(nil)

type DiscoveryHandler struct {
	Service discoveryService
}

func NewDiscoveryHandler(service discoveryService) *DiscoveryHandler {
	return &DiscoveryHandler{Service: service}
}

type searchRequest struct {
	Query string `json:"query" validate:"required,max=500"`
}

func (h *DiscoveryHandler) Create(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusCreated, h.Service.Create())
}

func (h *DiscoveryHandler) Get(w http.ResponseWriter, r *http.Request) {
	snap, err := h.Service.Snapshot(mux.Vars(r)["id"])
	if err != nil {
		writeDiscoveryError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

// Search starts a fresh query in the session and answers once the first
// page is ready.
func (h *DiscoveryHandler) Search(w http.ResponseWriter, r *http.Request) {
	var body searchRequest
	if err := decodeBody(r, &body); err != nil {
		writeJSONError(w, "query is required", http.StatusBadRequest)
		return
	}

	snap, err := h.Service.Search(r.Context(), mux.Vars(r)["id"], body.Query)
	if err != nil {
		writeDiscoveryError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

// LoadMore appends the next page. Triggers that the session guards against
// return the unchanged snapshot.
func (h *DiscoveryHandler) LoadMore(w http.ResponseWriter, r *http.Request) {
	snap, err := h.Service.LoadMore(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		writeDiscoveryError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

func writeDiscoveryError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, discovery.ErrSessionNotFound):
		writeJSONError(w, err.Error(), http.StatusNotFound)
	case errors.Is(err, discovery.ErrEmptyQuery):
		writeJSONError(w, err.Error(), http.StatusBadRequest)
	default:
		writeJSONError(w, discovery.MsgConnectionError, http.StatusInternalServerError)
	}
}
