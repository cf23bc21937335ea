package handlers

import (
	"context"
	"net/http"

	"cinewise/models"
	"cinewise/services/metadata"
	"cinewise/services/recommend"
)

type catalogueService interface {
	Trending(ctx context.Context) []models.EnrichedItem
	Autocomplete(ctx context.Context, query string) []models.MediaRecord
}

type suggestionService interface {
	Suggest(ctx context.Context, partial string) []string
}

var (
	_ catalogueService  = (*metadata.Service)(nil)
	_ suggestionService = (*recommend.Generator)(nil)
)

type MetadataHandler struct {
	Catalogue   catalogueService
	Suggestions suggestionService
}

func NewMetadataHandler(catalogue catalogueService, suggestions suggestionService) *MetadataHandler {
	return &MetadataHandler{Catalogue: catalogue, Suggestions: suggestions}
}

// Trending serves the home-screen rows.
func (h *MetadataHandler) Trending(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.Catalogue.Trending(r.Context()))
}

func (h *MetadataHandler) Autocomplete(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.Catalogue.Autocomplete(r.Context(), r.URL.Query().Get("q")))
}

// Suggest returns mood phrases for a partially typed query.
func (h *MetadataHandler) Suggest(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.Suggestions.Suggest(r.Context(), r.URL.Query().Get("q")))
}
