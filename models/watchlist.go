package models

import "time"

// WatchlistKey is the single storage key holding the serialized watchlist.
const WatchlistKey = "cinewise_watchlist"

// WatchlistEntry is an item the user saved. Entries are unique by ID; the
// media type is kept for display but is not part of the identity.
type WatchlistEntry struct {
	EnrichedItem
	AddedAt time.Time `json:"addedAt"`
}
