package models

import (
	"strconv"
	"strings"
	"time"
)

// MediaType distinguishes films from series. The wire values match the
// metadata service's path segments.
type MediaType string

const (
	MediaTypeMovie MediaType = "movie"
	MediaTypeTV    MediaType = "tv"
)

// ParseMediaType maps loose inputs ("series", "show", "TV") onto a MediaType.
func ParseMediaType(raw string) (MediaType, bool) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "movie", "film":
		return MediaTypeMovie, true
	case "tv", "series", "show":
		return MediaTypeTV, true
	default:
		return "", false
	}
}

func (m MediaType) Valid() bool {
	return m == MediaTypeMovie || m == MediaTypeTV
}

// Recommendation is a candidate proposed by the language service. It lives
// for one aggregation cycle only.
type Recommendation struct {
	Title     string    `json:"title"`
	MediaType MediaType `json:"media_type"`
	Year      int       `json:"year,omitempty"` // 0 = no hint
	Reason    string    `json:"reason"`
}

// MediaRecord is the canonical identity of a title in the metadata catalogue.
type MediaRecord struct {
	ID           int64      `json:"id"`
	Title        string     `json:"title"`
	Overview     string     `json:"overview"`
	PosterPath   string     `json:"poster_path,omitempty"`
	BackdropPath string     `json:"backdrop_path,omitempty"`
	MediaType    MediaType  `json:"media_type"`
	ReleaseDate  *time.Time `json:"release_date,omitempty"`
	VoteAverage  float64    `json:"vote_average"`
	GenreIDs     []int      `json:"genre_ids"`
}

// Year returns the release year or 0 when the date is unknown.
func (r MediaRecord) Year() int {
	if r.ReleaseDate == nil {
		return 0
	}
	return r.ReleaseDate.Year()
}

// Provider is a streaming service offering a title.
type Provider struct {
	ProviderID   int64  `json:"provider_id"`
	ProviderName string `json:"provider_name"`
	LogoPath     string `json:"logo_path"`
}

// Video is a clip attached to a title by the metadata service.
type Video struct {
	Key      string `json:"key"`
	Name     string `json:"name,omitempty"`
	Site     string `json:"site"`
	Type     string `json:"type"`
	Official bool   `json:"official"`
}

// Enrichment carries the per-title data fetched after resolution.
type Enrichment struct {
	Providers []Provider `json:"providers"`
	Trailer   string     `json:"trailer,omitempty"`
}

// EnrichedItem is a MediaRecord merged with its enrichment and the
// generator's justification. Identity is (ID, MediaType).
type EnrichedItem struct {
	MediaRecord
	AIReason  string     `json:"ai_reason,omitempty"`
	Providers []Provider `json:"providers"`
	Trailer   string     `json:"trailer,omitempty"`
}

// Key returns the identity of the item within one result list.
func (e EnrichedItem) Key() string {
	return string(e.MediaType) + ":" + strconv.FormatInt(e.ID, 10)
}

// NewEnrichedItem merges a record with its enrichment.
func NewEnrichedItem(record MediaRecord, enrichment Enrichment, reason string) EnrichedItem {
	providers := enrichment.Providers
	if providers == nil {
		providers = []Provider{}
	}
	return EnrichedItem{
		MediaRecord: record,
		AIReason:    reason,
		Providers:   providers,
		Trailer:     enrichment.Trailer,
	}
}
