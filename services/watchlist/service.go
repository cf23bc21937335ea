package watchlist

import (
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/goccy/go-json"

	"cinewise/internal/metrics"
	"cinewise/models"
)

var (
	ErrStorageDirRequired = errors.New("storage directory not provided")
	ErrStoreRequired      = errors.New("watchlist store not provided")
	ErrIDRequired         = errors.New("id is required")
)

// Service manages the saved titles. Entries are unique by id and ordered
// most recent first. Every mutation is written to the store before the
// in-memory list changes.
type Service struct {
	mu      sync.RWMutex
	store   Store
	entries []models.WatchlistEntry
	now     func() time.Time
}

// NewService loads the persisted watchlist from store.
func NewService(store Store) (*Service, error) {
	if store == nil {
		return nil, ErrStoreRequired
	}
	svc := &Service{store: store, now: func() time.Time { return time.Now().UTC() }}
	if err := svc.load(); err != nil {
		return nil, err
	}
	return svc, nil
}

// List returns a copy of the watchlist, most recent first.
func (s *Service) List() []models.WatchlistEntry {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := slices.Clone(s.entries)
	if out == nil {
		out = []models.WatchlistEntry{}
	}
	return out
}

// Contains reports whether id is saved, regardless of media type.
func (s *Service) Contains(id int64) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.indexLocked(id) >= 0
}

// Add saves item at the front of the list. Adding an id that is already
// saved is a no-op and reports false.
func (s *Service) Add(item models.EnrichedItem) (bool, error) {
	if item.ID <= 0 {
		return false, ErrIDRequired
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.indexLocked(item.ID) >= 0 {
		return false, nil
	}
	if err := s.replaceLocked(s.withEntryLocked(item)); err != nil {
		return false, err
	}
	return true, nil
}

// Remove deletes id from the list and reports whether it was present.
func (s *Service) Remove(id int64) (bool, error) {
	if id <= 0 {
		return false, ErrIDRequired
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	idx := s.indexLocked(id)
	if idx < 0 {
		return false, nil
	}
	if err := s.replaceLocked(slices.Delete(slices.Clone(s.entries), idx, idx+1)); err != nil {
		return false, err
	}
	return true, nil
}

// Toggle removes item when saved and adds it otherwise. It reports whether
// the item is saved afterwards.
func (s *Service) Toggle(item models.EnrichedItem) (bool, error) {
	if item.ID <= 0 {
		return false, ErrIDRequired
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if idx := s.indexLocked(item.ID); idx >= 0 {
		if err := s.replaceLocked(slices.Delete(slices.Clone(s.entries), idx, idx+1)); err != nil {
			return true, err
		}
		return false, nil
	}
	if err := s.replaceLocked(s.withEntryLocked(item)); err != nil {
		return false, err
	}
	return true, nil
}

func (s *Service) withEntryLocked(item models.EnrichedItem) []models.WatchlistEntry {
	if item.Providers == nil {
		item.Providers = []models.Provider{}
	}
	next := make([]models.WatchlistEntry, 0, len(s.entries)+1)
	next = append(next, models.WatchlistEntry{EnrichedItem: item, AddedAt: s.now()})
	return append(next, s.entries...)
}

func (s *Service) indexLocked(id int64) int {
	return slices.IndexFunc(s.entries, func(e models.WatchlistEntry) bool { return e.ID == id })
}

// replaceLocked persists next and only then swaps it in.
func (s *Service) replaceLocked(next []models.WatchlistEntry) error {
	data, err := json.Marshal(next)
	if err != nil {
		return fmt.Errorf("encode watchlist: %w", err)
	}
	if err := s.store.Put(models.WatchlistKey, data); err != nil {
		return fmt.Errorf("persist watchlist: %w", err)
	}
	s.entries = next
	metrics.WatchlistSize.Set(float64(len(next)))
	return nil
}

func (s *Service) load() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := s.store.Get(models.WatchlistKey)
	if errors.Is(err, ErrKeyNotFound) || (err == nil && len(data) == 0) {
		s.entries = []models.WatchlistEntry{}
		metrics.WatchlistSize.Set(0)
		return nil
	}
	if err != nil {
		return fmt.Errorf("read watchlist: %w", err)
	}

	var stored []models.WatchlistEntry
	if err := json.Unmarshal(data, &stored); err != nil {
		return fmt.Errorf("decode watchlist: %w", err)
	}

	// Older copies may carry duplicates; the first occurrence wins.
	entries := make([]models.WatchlistEntry, 0, len(stored))
	seen := make(map[int64]struct{}, len(stored))
	for _, e := range stored {
		if e.ID <= 0 {
			continue
		}
		if _, dup := seen[e.ID]; dup {
			continue
		}
		seen[e.ID] = struct{}{}
		if e.Providers == nil {
			e.Providers = []models.Provider{}
		}
		entries = append(entries, e)
	}
	s.entries = entries
	metrics.WatchlistSize.Set(float64(len(entries)))
	return nil
}
