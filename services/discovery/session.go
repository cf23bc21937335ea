package discovery

import (
	"slices"

	"cinewise/models"
)

const (
	msgAnalyzing = "Searching library..."
	msgFetching  = "Curating selection..."
)

// State is the paging state of one discovery session. It is a value: every
// transition goes through Reduce and never mutates its input.
type State struct {
	Query   string
	Stage   models.Stage
	Message string
	Items   []models.EnrichedItem
	// Exclusions holds every title shown in this query session, oldest first.
	Exclusions    []string
	Page          int
	HasMore       bool
	IsLoadingMore bool
	// Generation increases with every submitted query; results tagged with
	// an older generation are discarded.
	Generation uint64
}

// InitialState is the state of a session nobody has searched in yet.
func InitialState() State {
	return State{Stage: models.StageIdle, Page: 1, HasMore: true, Items: []models.EnrichedItem{}}
}

// Event is an input to Reduce.
type Event interface {
	event()
}

// Submitted starts a new top-level query.
type Submitted struct{ Query string }

// CandidatesReady reports that the generator answered for a cycle.
type CandidatesReady struct{ Generation uint64 }

// LoadMoreRequested asks for the next page of the current query.
type LoadMoreRequested struct{}

// PageLoaded delivers the outcome of an aggregation cycle.
type PageLoaded struct {
	Generation  uint64
	Incremental bool
	Result      models.PageResult
}

func (Submitted) event()         {}
func (CandidatesReady) event()   {}
func (LoadMoreRequested) event() {}
func (PageLoaded) event()        {}

// CanLoadMore reports whether a load-more trigger would start a cycle.
func CanLoadMore(s State) bool {
	if s.IsLoadingMore || !s.HasMore || s.Query == "" {
		return false
	}
	if s.Stage == models.StageAnalyzing || s.Stage == models.StageFetching {
		return false
	}
	return len(s.Items) > 0
}

// Reduce applies e to s and returns the next state.
func Reduce(s State, e Event) State {
	switch ev := e.(type) {
	case Submitted:
		return State{
			Query:      ev.Query,
			Stage:      models.StageAnalyzing,
			Message:    msgAnalyzing,
			Items:      []models.EnrichedItem{},
			Page:       1,
			HasMore:    true,
			Generation: s.Generation + 1,
		}

	case CandidatesReady:
		if ev.Generation != s.Generation || s.Stage != models.StageAnalyzing {
			return s
		}
		s.Stage = models.StageFetching
		s.Message = msgFetching
		return s

	case LoadMoreRequested:
		if !CanLoadMore(s) {
			return s
		}
		s.IsLoadingMore = true
		s.Page++
		return s

	case PageLoaded:
		if ev.Generation != s.Generation {
			return s
		}
		return applyPage(s, ev)
	}
	return s
}

func applyPage(s State, ev PageLoaded) State {
	res := ev.Result
	s.IsLoadingMore = false
	if res.Exhausted {
		s.HasMore = false
	}

	if res.Errored != "" {
		// Results already on screen stay untouched.
		s.Stage = models.StageError
		s.Message = res.Errored
		return s
	}

	if ev.Incremental {
		present := make(map[string]struct{}, len(s.Items))
		for _, item := range s.Items {
			present[item.Key()] = struct{}{}
		}
		items := slices.Clone(s.Items)
		for _, item := range res.Items {
			if _, dup := present[item.Key()]; dup {
				continue
			}
			present[item.Key()] = struct{}{}
			items = append(items, item)
		}
		s.Items = items
	} else {
		s.Items = slices.Clone(res.Items)
		if s.Items == nil {
			s.Items = []models.EnrichedItem{}
		}
	}

	s.Exclusions = mergeTitles(s.Exclusions, res.Titles)
	s.Stage = models.StageComplete
	s.Message = ""
	return s
}

// mergeTitles appends the titles not yet present, preserving order.
func mergeTitles(existing, added []string) []string {
	out := slices.Clone(existing)
	seen := make(map[string]struct{}, len(existing)+len(added))
	for _, t := range existing {
		seen[t] = struct{}{}
	}
	for _, t := range added {
		if _, dup := seen[t]; dup || t == "" {
			continue
		}
		seen[t] = struct{}{}
		out = append(out, t)
	}
	return out
}

// Snapshot renders s for clients.
func (s State) Snapshot(id string) models.SessionSnapshot {
	items := slices.Clone(s.Items)
	if items == nil {
		items = []models.EnrichedItem{}
	}
	return models.SessionSnapshot{
		ID:            id,
		Stage:         s.Stage,
		Message:       s.Message,
		Query:         s.Query,
		Items:         items,
		Page:          s.Page,
		HasMore:       s.HasMore,
		IsLoadingMore: s.IsLoadingMore,
		Displayed:     len(s.Exclusions),
	}
}
