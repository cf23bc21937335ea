package metadata

import (
	"context"
	"log"
	"math/rand/v2"
	"net/http"
	"strconv"
	"strings"
	"sync/atomic"
	"time"
	"unicode/utf8"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/sourcegraph/conc"
	"github.com/sourcegraph/conc/iter"
	"golang.org/x/sync/singleflight"
	"golang.org/x/text/cases"

	"cinewise/models"
)

const (
	defaultRegion          = "US"
	defaultTrendingPerType = 8
	defaultCacheSize       = 512
	defaultCacheTTL        = time.Hour

	autocompleteMinChars = 2
	autocompleteLimit    = 5
)

// Options configures a Service.
type Options struct {
	TMDBAPIKey      string
	Language        string
	Region          string
	BaseURL         string
	HTTPClient      *http.Client
	CacheTTL        time.Duration
	CacheSize       int
	TrendingPerType int
	// MaxConcurrency bounds the trending hydration fan-out; 0 means one goroutine per item.
	MaxConcurrency int
}

// Service resolves candidate titles against the metadata catalogue and
// fetches their streaming and trailer data. Every method degrades to an
// empty or absent value on failure.
type Service struct {
	tmdb            *tmdbClient
	region          string
	trendingPerType int
	maxConcurrency  int

	resolved *expirable.LRU[string, models.MediaRecord]
	enriched *expirable.LRU[string, models.Enrichment]
	trending *expirable.LRU[string, []models.EnrichedItem]
	inflight singleflight.Group

	shuffle func(n int, swap func(i, j int))
}

func NewService(opts Options) *Service {
	region := strings.ToUpper(strings.TrimSpace(opts.Region))
	if region == "" {
		region = defaultRegion
	}
	if opts.TrendingPerType <= 0 {
		opts.TrendingPerType = defaultTrendingPerType
	}
	if opts.CacheSize <= 0 {
		opts.CacheSize = defaultCacheSize
	}
	if opts.CacheTTL <= 0 {
		opts.CacheTTL = defaultCacheTTL
	}

	return &Service{
		tmdb:            newTMDBClient(opts.TMDBAPIKey, opts.Language, opts.BaseURL, opts.HTTPClient),
		region:          region,
		trendingPerType: opts.TrendingPerType,
		maxConcurrency:  opts.MaxConcurrency,
		resolved:        expirable.NewLRU[string, models.MediaRecord](opts.CacheSize, nil, opts.CacheTTL),
		enriched:        expirable.NewLRU[string, models.Enrichment](opts.CacheSize, nil, opts.CacheTTL),
		trending:        expirable.NewLRU[string, []models.EnrichedItem](1, nil, opts.CacheTTL),
		shuffle:         rand.Shuffle,
	}
}

// Configured reports whether a metadata credential is available.
func (s *Service) Configured() bool {
	return s.tmdb.isConfigured()
}

// Resolve finds the catalogue record for a candidate. An exact title match
// (ignoring case) on the first page wins; otherwise the service's top result
// is used. The year hint is forwarded to the search but not re-checked.
func (s *Service) Resolve(ctx context.Context, title string, mediaType models.MediaType, year int) (models.MediaRecord, bool) {
	title = strings.TrimSpace(title)
	if title == "" || !mediaType.Valid() {
		return models.MediaRecord{}, false
	}

	// Caser carries state and is not safe for concurrent use.
	fold := cases.Fold()
	key := string(mediaType) + "|" + strconv.Itoa(year) + "|" + fold.String(title)
	if record, ok := s.resolved.Get(key); ok {
		return record, true
	}

	results, err := s.tmdb.search(ctx, mediaType, title, year, 1)
	if err != nil {
		log.Printf("[metadata] resolve %s %q failed: %v", mediaType, title, err)
		return models.MediaRecord{}, false
	}
	if len(results) == 0 {
		return models.MediaRecord{}, false
	}

	record := results[0]
	want := fold.String(title)
	for _, r := range results {
		if fold.String(r.Title) == want {
			record = r
			break
		}
	}

	s.resolved.Add(key, record)
	return record, true
}

// Enrich fetches watch providers and videos in parallel. Either half failing
// leaves its field empty.
func (s *Service) Enrich(ctx context.Context, id int64, mediaType models.MediaType) models.Enrichment {
	out, _ := s.enrich(ctx, id, mediaType)
	return out
}

// enrich is Enrich that also reports whether both halves were fetched.
func (s *Service) enrich(ctx context.Context, id int64, mediaType models.MediaType) (models.Enrichment, bool) {
	out := models.Enrichment{Providers: []models.Provider{}}
	if id <= 0 || !mediaType.Valid() || !s.tmdb.isConfigured() {
		return out, false
	}

	key := string(mediaType) + ":" + strconv.FormatInt(id, 10)
	if cached, ok := s.enriched.Get(key); ok {
		return cached, true
	}

	var (
		providers   []models.Provider
		videos      []models.Video
		providerErr error
		vidErr      error
	)
	var wg conc.WaitGroup
	wg.Go(func() {
		providers, providerErr = s.tmdb.watchProviders(ctx, mediaType, id, s.region)
	})
	wg.Go(func() {
		videos, vidErr = s.tmdb.videos(ctx, mediaType, id)
	})
	wg.Wait()

	if providerErr != nil {
		log.Printf("[metadata] providers for %s failed: %v", key, providerErr)
	} else if providers != nil {
		out.Providers = providers
	}
	if vidErr != nil {
		log.Printf("[metadata] videos for %s failed: %v", key, vidErr)
	} else {
		out.Trailer = SelectTrailer(videos)
	}

	complete := providerErr == nil && vidErr == nil
	if complete {
		s.enriched.Add(key, out)
	}
	return out, complete
}

// Trending returns this week's trending films and series, shuffled together
// and enriched. Concurrent callers share a single load, which is not tied to
// any one caller's cancellation. Only fully hydrated rows are cached.
func (s *Service) Trending(ctx context.Context) []models.EnrichedItem {
	const cacheKey = "week"
	if items, ok := s.trending.Get(cacheKey); ok {
		return items
	}
	if !s.tmdb.isConfigured() {
		return []models.EnrichedItem{}
	}

	loadCtx := context.WithoutCancel(ctx)
	v, _, _ := s.inflight.Do(cacheKey, func() (any, error) {
		items, complete := s.loadTrending(loadCtx)
		if complete && len(items) > 0 {
			s.trending.Add(cacheKey, items)
		}
		return items, nil
	})
	return v.([]models.EnrichedItem)
}

// loadTrending reports complete only when both lists loaded and every row
// was enriched.
func (s *Service) loadTrending(ctx context.Context) ([]models.EnrichedItem, bool) {
	var movies, series []models.MediaRecord
	var moviesOK, seriesOK bool
	var wg conc.WaitGroup
	wg.Go(func() { movies, moviesOK = s.trendingType(ctx, models.MediaTypeMovie) })
	wg.Go(func() { series, seriesOK = s.trendingType(ctx, models.MediaTypeTV) })
	wg.Wait()

	records := make([]models.MediaRecord, 0, len(movies)+len(series))
	records = append(records, movies...)
	records = append(records, series...)
	s.shuffle(len(records), func(i, j int) { records[i], records[j] = records[j], records[i] })

	limit := s.maxConcurrency
	if limit <= 0 {
		limit = len(records)
	}
	var partial atomic.Bool
	mapper := iter.Mapper[models.MediaRecord, models.EnrichedItem]{MaxGoroutines: limit}
	items := mapper.Map(records, func(r *models.MediaRecord) models.EnrichedItem {
		enrichment, ok := s.enrich(ctx, r.ID, r.MediaType)
		if !ok {
			partial.Store(true)
		}
		return models.NewEnrichedItem(*r, enrichment, "")
	})
	return items, moviesOK && seriesOK && !partial.Load()
}

func (s *Service) trendingType(ctx context.Context, mediaType models.MediaType) ([]models.MediaRecord, bool) {
	records, err := s.tmdb.trending(ctx, mediaType)
	if err != nil {
		log.Printf("[metadata] trending %s failed: %v", mediaType, err)
		return nil, false
	}
	if len(records) > s.trendingPerType {
		records = records[:s.trendingPerType]
	}
	return records, true
}

// Autocomplete returns up to five films or series matching a partial query.
func (s *Service) Autocomplete(ctx context.Context, query string) []models.MediaRecord {
	query = strings.TrimSpace(query)
	if utf8.RuneCountInString(query) < autocompleteMinChars || !s.tmdb.isConfigured() {
		return []models.MediaRecord{}
	}

	results, err := s.tmdb.multiSearch(ctx, query)
	if err != nil {
		log.Printf("[metadata] autocomplete %q failed: %v", query, err)
		return []models.MediaRecord{}
	}
	if len(results) > autocompleteLimit {
		results = results[:autocompleteLimit]
	}
	return results
}
