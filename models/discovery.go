package models

// Stage is the top-level phase of a discovery session.
type Stage string

const (
	StageIdle      Stage = "idle"
	StageAnalyzing Stage = "analyzing"
	StageFetching  Stage = "fetching"
	StageComplete  Stage = "complete"
	StageError     Stage = "error"
)

// PageResult is what one aggregation cycle produced.
type PageResult struct {
	Items     []EnrichedItem `json:"items"`
	Exhausted bool           `json:"exhausted"`
	// Errored carries a short user-facing message; empty means no error.
	Errored string `json:"errored,omitempty"`
	// Titles lists every title that should join the exclusion set.
	Titles []string `json:"-"`
}

// SessionSnapshot is the read-only view of a discovery session.
type SessionSnapshot struct {
	ID            string         `json:"id"`
	Stage         Stage          `json:"stage"`
	Message       string         `json:"message,omitempty"`
	Query         string         `json:"query"`
	Items         []EnrichedItem `json:"items"`
	Page          int            `json:"page"`
	HasMore       bool           `json:"hasMore"`
	IsLoadingMore bool           `json:"isLoadingMore"`
	Displayed     int            `json:"displayedTitles"`
}
