package handlers

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	"cinewise/models"
	"cinewise/services/watchlist"
)

type watchlistService interface {
	List() []models.WatchlistEntry
	Add(item models.EnrichedItem) (bool, error)
	Remove(id int64) (bool, error)
	Toggle(item models.EnrichedItem) (bool, error)
}

var _ watchlistService = (*watchlist.Service)(nil)

type WatchlistHandler struct {
	Service watchlistService
}

func NewWatchlistHandler(service watchlistService) *WatchlistHandler {
	return &WatchlistHandler{Service: service}
}

// itemIdentity carries the fields a saved item cannot do without.
type itemIdentity struct {
	ID        int64   `validate:"gt=0"`
	Title     string  `validate:"required"`
	MediaType string  `validate:"oneof=movie tv"`
	Vote      float64 `validate:"gte=0,lte=10"`
}

type watchlistChange struct {
	Saved bool                    `json:"saved"`
	Items []models.WatchlistEntry `json:"items"`
}

func (h *WatchlistHandler) List(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.Service.List())
}

func (h *WatchlistHandler) Add(w http.ResponseWriter, r *http.Request) {
	item, ok := decodeItem(w, r)
	if !ok {
		return
	}
	if _, err := h.Service.Add(item); err != nil {
		writeWatchlistError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, watchlistChange{Saved: true, Items: h.Service.List()})
}

func (h *WatchlistHandler) Toggle(w http.ResponseWriter, r *http.Request) {
	item, ok := decodeItem(w, r)
	if !ok {
		return
	}
	saved, err := h.Service.Toggle(item)
	if err != nil {
		writeWatchlistError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, watchlistChange{Saved: saved, Items: h.Service.List()})
}

func (h *WatchlistHandler) Remove(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(mux.Vars(r)["id"], 10, 64)
	if err != nil {
		writeJSONError(w, "invalid id", http.StatusBadRequest)
		return
	}
	removed, err := h.Service.Remove(id)
	if err != nil {
		writeWatchlistError(w, err)
		return
	}
	if !removed {
		writeJSONError(w, "not in watchlist", http.StatusNotFound)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func decodeItem(w http.ResponseWriter, r *http.Request) (models.EnrichedItem, bool) {
	var item models.EnrichedItem
	if err := decodeBody(r, &item); err != nil {
		writeJSONError(w, err.Error(), http.StatusBadRequest)
		return models.EnrichedItem{}, false
	}
	identity := itemIdentity{ID: item.ID, Title: item.Title, MediaType: string(item.MediaType), Vote: item.VoteAverage}
	if err := validate.Struct(identity); err != nil {
		writeJSONError(w, err.Error(), http.StatusBadRequest)
		return models.EnrichedItem{}, false
	}
	return item, true
}

func writeWatchlistError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	if errors.Is(err, watchlist.ErrIDRequired) {
		status = http.StatusBadRequest
	}
	writeJSONError(w, err.Error(), status)
}
