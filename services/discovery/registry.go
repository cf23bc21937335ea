package discovery

import (
	"context"
	"errors"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/hashicorp/golang-lru/v2/expirable"

	"cinewise/internal/metrics"
	"cinewise/models"
)

var (
	ErrSessionNotFound = errors.New("discovery session not found")
	ErrEmptyQuery      = errors.New("query is required")
)

const (
	defaultMaxSessions = 256
	defaultSessionTTL  = 6 * time.Hour
)

type session struct {
	id string

	mu     sync.Mutex
	state  State
	cancel context.CancelFunc
}

// Registry owns the discovery sessions of this process. Each session runs at
// most one aggregation cycle at a time.
type Registry struct {
	pipeline *Pipeline
	sessions *expirable.LRU[string, *session]
}

func NewRegistry(pipeline *Pipeline, maxSessions int, idleTTL time.Duration) *Registry {
	if maxSessions <= 0 {
		maxSessions = defaultMaxSessions
	}
	if idleTTL <= 0 {
		idleTTL = defaultSessionTTL
	}
	onEvict := func(_ string, s *session) {
		s.mu.Lock()
		if s.cancel != nil {
			s.cancel()
		}
		s.mu.Unlock()
	}
	return &Registry{
		pipeline: pipeline,
		sessions: expirable.NewLRU[string, *session](maxSessions, onEvict, idleTTL),
	}
}

// Create opens an idle session.
func (r *Registry) Create() models.SessionSnapshot {
	s := &session{id: uuid.NewString(), state: InitialState()}
	r.sessions.Add(s.id, s)
	return s.state.Snapshot(s.id)
}

// Snapshot returns the current view of a session.
func (r *Registry) Snapshot(id string) (models.SessionSnapshot, error) {
	s, err := r.lookup(id)
	if err != nil {
		return models.SessionSnapshot{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.Snapshot(s.id), nil
}

// Search resets the session to query and runs the first cycle. A cycle still
// running for an earlier query is cancelled and its result discarded.
func (r *Registry) Search(ctx context.Context, id, query string) (models.SessionSnapshot, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return models.SessionSnapshot{}, ErrEmptyQuery
	}
	s, err := r.lookup(id)
	if err != nil {
		return models.SessionSnapshot{}, err
	}

	s.mu.Lock()
	s.state = Reduce(s.state, Submitted{Query: query})
	cycleCtx := s.beginCycle(ctx)
	gen := s.state.Generation
	s.mu.Unlock()

	log.Printf("[discovery] session %s: search %q (generation %d)", s.id, query, gen)
	result := r.pipeline.aggregate(cycleCtx, query, nil, false, func(int) {
		s.apply(CandidatesReady{Generation: gen})
	})
	return s.finish(cycleSearch, gen, false, result), nil
}

// LoadMore fetches the next page of the current query. It is a no-op that
// returns the unchanged snapshot while a cycle is running, after
// exhaustion, or before any query.
func (r *Registry) LoadMore(ctx context.Context, id string) (models.SessionSnapshot, error) {
	s, err := r.lookup(id)
	if err != nil {
		return models.SessionSnapshot{}, err
	}

	s.mu.Lock()
	if !CanLoadMore(s.state) {
		snap := s.state.Snapshot(s.id)
		s.mu.Unlock()
		return snap, nil
	}
	s.state = Reduce(s.state, LoadMoreRequested{})
	cycleCtx := s.beginCycle(ctx)
	gen := s.state.Generation
	query := s.state.Query
	exclude := append([]string(nil), s.state.Exclusions...)
	s.mu.Unlock()

	result := r.pipeline.aggregate(cycleCtx, query, exclude, true, nil)
	return s.finish(cycleMore, gen, true, result), nil
}

func (r *Registry) lookup(id string) (*session, error) {
	s, ok := r.sessions.Get(id)
	if !ok {
		return nil, ErrSessionNotFound
	}
	// Refresh the idle deadline.
	r.sessions.Add(id, s)
	return s, nil
}

type cycleKind string

const (
	cycleSearch cycleKind = "search"
	cycleMore   cycleKind = "more"
)

// beginCycle cancels the previous cycle and derives a context for the next
// one. The cycle outlives the triggering request; only a newer cycle or
// eviction cancels it. Callers hold s.mu.
func (s *session) beginCycle(parent context.Context) context.Context {
	if s.cancel != nil {
		s.cancel()
	}
	ctx, cancel := context.WithCancel(context.WithoutCancel(parent))
	s.cancel = cancel
	return ctx
}

func (s *session) apply(e Event) {
	s.mu.Lock()
	s.state = Reduce(s.state, e)
	s.mu.Unlock()
}

func (s *session) finish(kind cycleKind, gen uint64, incremental bool, result models.PageResult) models.SessionSnapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch {
	case gen != s.state.Generation:
		metrics.Cycles.WithLabelValues(string(kind), "stale").Inc()
		log.Printf("[discovery] session %s: discarding stale %s result (generation %d, current %d)", s.id, kind, gen, s.state.Generation)
	case result.Errored == MsgConnectionError:
		metrics.Cycles.WithLabelValues(string(kind), "error").Inc()
	case len(result.Items) == 0:
		metrics.Cycles.WithLabelValues(string(kind), "exhausted").Inc()
	default:
		metrics.Cycles.WithLabelValues(string(kind), "items").Inc()
	}

	s.state = Reduce(s.state, PageLoaded{Generation: gen, Incremental: incremental, Result: result})
	if gen == s.state.Generation && s.cancel != nil {
		s.cancel()
		s.cancel = nil
	}
	return s.state.Snapshot(s.id)
}
