package metadata

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/goccy/go-json"

	"cinewise/internal/upstream"
	"cinewise/models"
)

const tmdbBaseURL = "https://api.themoviedb.org/3"

var errTMDBNotConfigured = errors.New("tmdb api key not configured")

type tmdbClient struct {
	apiKey   string
	language string
	baseURL  string
	up       *upstream.Client
}

func newTMDBClient(apiKey, language, baseURL string, httpc *http.Client) *tmdbClient {
	if strings.TrimSpace(baseURL) == "" {
		baseURL = tmdbBaseURL
	}
	return &tmdbClient{
		apiKey:   strings.TrimSpace(apiKey),
		language: strings.TrimSpace(language),
		baseURL:  strings.TrimRight(baseURL, "/"),
		up: upstream.New(httpc, upstream.Options{
			Service:     "tmdb",
			MinInterval: 20 * time.Millisecond, // TMDB has generous rate limits
		}),
	}
}

func (c *tmdbClient) isConfigured() bool {
	return c != nil && c.apiKey != ""
}

// doGET issues an authenticated GET against the API and decodes the JSON body into v.
func (c *tmdbClient) doGET(ctx context.Context, operation string, segments []string, params url.Values, v any) error {
	if !c.isConfigured() {
		return errTMDBNotConfigured
	}

	endpoint, err := url.JoinPath(c.baseURL, segments...)
	if err != nil {
		return err
	}

	q := url.Values{}
	for k, vals := range params {
		for _, val := range vals {
			q.Add(k, val)
		}
	}
	q.Set("api_key", c.apiKey)
	if c.language != "" && q.Get("language") == "" {
		q.Set("language", c.language)
	}
	endpoint += "?" + q.Encode()

	body, err := c.up.Do(ctx, operation, func(ctx context.Context) (*http.Request, error) {
		return http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	})
	if err != nil {
		return err
	}
	if err := json.Unmarshal(body, v); err != nil {
		return fmt.Errorf("decode tmdb %s: %w", operation, err)
	}
	return nil
}

// tmdbResult covers both movie and series shapes; series use name/first_air_date.
type tmdbResult struct {
	ID           int64   `json:"id"`
	Title        string  `json:"title"`
	Name         string  `json:"name"`
	Overview     string  `json:"overview"`
	PosterPath   *string `json:"poster_path"`
	BackdropPath *string `json:"backdrop_path"`
	MediaType    string  `json:"media_type"`
	ReleaseDate  string  `json:"release_date"`
	FirstAirDate string  `json:"first_air_date"`
	VoteAverage  float64 `json:"vote_average"`
	GenreIDs     []int   `json:"genre_ids"`
}

type tmdbPagedResponse struct {
	Page         int          `json:"page"`
	Results      []tmdbResult `json:"results"`
	TotalResults int          `json:"total_results"`
}

type tmdbWatchProvidersResponse struct {
	ID      int64                         `json:"id"`
	Results map[string]tmdbRegionProvider `json:"results"`
}

type tmdbRegionProvider struct {
	Link     string         `json:"link"`
	Flatrate []tmdbProvider `json:"flatrate"`
	Rent     []tmdbProvider `json:"rent"`
	Buy      []tmdbProvider `json:"buy"`
}

type tmdbProvider struct {
	ProviderID      int64  `json:"provider_id"`
	ProviderName    string `json:"provider_name"`
	LogoPath        string `json:"logo_path"`
	DisplayPriority int    `json:"display_priority"`
}

type tmdbVideosResponse struct {
	Results []tmdbVideo `json:"results"`
}

type tmdbVideo struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Key         string `json:"key"`
	Site        string `json:"site"`
	Type        string `json:"type"`
	Official    bool   `json:"official"`
	PublishedAt string `json:"published_at"`
}

// search runs /search/{movie|tv}. The year hint maps to the field the API
// expects for the media type.
func (c *tmdbClient) search(ctx context.Context, mediaType models.MediaType, query string, year, page int) ([]models.MediaRecord, error) {
	params := url.Values{}
	params.Set("query", query)
	if page < 1 {
		page = 1
	}
	params.Set("page", strconv.Itoa(page))
	if year > 0 {
		switch mediaType {
		case models.MediaTypeMovie:
			params.Set("primary_release_year", strconv.Itoa(year))
		case models.MediaTypeTV:
			params.Set("first_air_date_year", strconv.Itoa(year))
		}
	}

	var payload tmdbPagedResponse
	if err := c.doGET(ctx, "search", []string{"search", string(mediaType)}, params, &payload); err != nil {
		return nil, err
	}

	records := make([]models.MediaRecord, 0, len(payload.Results))
	for _, r := range payload.Results {
		records = append(records, r.toRecord(mediaType))
	}
	return records, nil
}

// multiSearch runs /search/multi and keeps only movies and series.
func (c *tmdbClient) multiSearch(ctx context.Context, query string) ([]models.MediaRecord, error) {
	params := url.Values{}
	params.Set("query", query)
	params.Set("page", "1")

	var payload tmdbPagedResponse
	if err := c.doGET(ctx, "search_multi", []string{"search", "multi"}, params, &payload); err != nil {
		return nil, err
	}

	records := make([]models.MediaRecord, 0, len(payload.Results))
	for _, r := range payload.Results {
		mt := models.MediaType(r.MediaType)
		if !mt.Valid() {
			continue
		}
		records = append(records, r.toRecord(mt))
	}
	return records, nil
}

func (c *tmdbClient) trending(ctx context.Context, mediaType models.MediaType) ([]models.MediaRecord, error) {
	var payload tmdbPagedResponse
	if err := c.doGET(ctx, "trending", []string{"trending", string(mediaType), "week"}, nil, &payload); err != nil {
		return nil, err
	}

	records := make([]models.MediaRecord, 0, len(payload.Results))
	for _, r := range payload.Results {
		// The trending endpoint for one type still reports media_type; force it.
		records = append(records, r.toRecord(mediaType))
	}
	return records, nil
}

// watchProviders returns the subscription offers for one region, in upstream order.
func (c *tmdbClient) watchProviders(ctx context.Context, mediaType models.MediaType, id int64, region string) ([]models.Provider, error) {
	var payload tmdbWatchProvidersResponse
	segments := []string{string(mediaType), strconv.FormatInt(id, 10), "watch", "providers"}
	if err := c.doGET(ctx, "watch_providers", segments, nil, &payload); err != nil {
		return nil, err
	}

	regional, ok := payload.Results[region]
	if !ok {
		return []models.Provider{}, nil
	}

	providers := make([]models.Provider, 0, len(regional.Flatrate))
	for _, p := range regional.Flatrate {
		providers = append(providers, models.Provider{
			ProviderID:   p.ProviderID,
			ProviderName: p.ProviderName,
			LogoPath:     p.LogoPath,
		})
	}
	return providers, nil
}

func (c *tmdbClient) videos(ctx context.Context, mediaType models.MediaType, id int64) ([]models.Video, error) {
	var payload tmdbVideosResponse
	segments := []string{string(mediaType), strconv.FormatInt(id, 10), "videos"}
	// Trailers are often only published in English; don't let the UI language hide them.
	params := url.Values{}
	params.Set("include_video_language", "en,null")
	if err := c.doGET(ctx, "videos", segments, params, &payload); err != nil {
		return nil, err
	}

	videos := make([]models.Video, 0, len(payload.Results))
	for _, v := range payload.Results {
		key := strings.TrimSpace(v.Key)
		if key == "" {
			continue
		}
		videos = append(videos, models.Video{
			Key:      key,
			Name:     strings.TrimSpace(v.Name),
			Site:     strings.TrimSpace(v.Site),
			Type:     strings.TrimSpace(v.Type),
			Official: v.Official,
		})
	}
	return videos, nil
}

func (r tmdbResult) toRecord(mediaType models.MediaType) models.MediaRecord {
	record := models.MediaRecord{
		ID:          r.ID,
		Title:       pickTMDBName(mediaType, r.Name, r.Title),
		Overview:    r.Overview,
		MediaType:   mediaType,
		VoteAverage: clampVote(r.VoteAverage),
		GenreIDs:    r.GenreIDs,
	}
	if record.GenreIDs == nil {
		record.GenreIDs = []int{}
	}
	if r.PosterPath != nil {
		record.PosterPath = strings.TrimSpace(*r.PosterPath)
	}
	if r.BackdropPath != nil {
		record.BackdropPath = strings.TrimSpace(*r.BackdropPath)
	}
	date := r.ReleaseDate
	if mediaType == models.MediaTypeTV || date == "" {
		if r.FirstAirDate != "" {
			date = r.FirstAirDate
		}
	}
	if t, ok := parseTMDBDate(date); ok {
		record.ReleaseDate = &t
	}
	return record
}

func pickTMDBName(mediaType models.MediaType, seriesName, movieTitle string) string {
	if mediaType == models.MediaTypeMovie && movieTitle != "" {
		return movieTitle
	}
	if seriesName != "" {
		return seriesName
	}
	return movieTitle
}

func parseTMDBDate(date string) (time.Time, bool) {
	date = strings.TrimSpace(date)
	if date == "" {
		return time.Time{}, false
	}
	if t, err := time.Parse("2006-01-02", date); err == nil {
		return t, true
	}
	if len(date) >= 4 {
		if y, err := strconv.Atoi(date[:4]); err == nil && y > 0 {
			return time.Date(y, time.January, 1, 0, 0, 0, 0, time.UTC), true
		}
	}
	return time.Time{}, false
}

func clampVote(v float64) float64 {
	switch {
	case v < 0:
		return 0
	case v > 10:
		return 10
	default:
		return v
	}
}
