package metadata

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"testing"

	"cinewise/models"
)

type roundTripFunc func(*http.Request) (*http.Response, error)

func (f roundTripFunc) RoundTrip(req *http.Request) (*http.Response, error) {
	return f(req)
}

func jsonResponse(status int, body string) *http.Response {
	return &http.Response{StatusCode: status, Status: http.StatusText(status), Body: io.NopCloser(bytes.NewBufferString(body)), Header: make(http.Header)}
}

func newTestService(t *testing.T, handler func(*http.Request) *http.Response) *Service {
	t.Helper()
	httpc := &http.Client{
		Transport: roundTripFunc(func(req *http.Request) (*http.Response, error) {
			if req.URL.Query().Get("api_key") != "test-key" {
				t.Errorf("missing api key on %s", req.URL.Path)
			}
			return handler(req), nil
		}),
	}
	return NewService(Options{TMDBAPIKey: "test-key", Language: "en-US", HTTPClient: httpc})
}

func TestResolvePrefersExactCaseInsensitiveMatch(t *testing.T) {
	var gotYear string
	svc := newTestService(t, func(req *http.Request) *http.Response {
		if req.URL.Path != "/3/search/movie" {
			t.Fatalf("unexpected path %s", req.URL.Path)
		}
		gotYear = req.URL.Query().Get("primary_release_year")
		return jsonResponse(http.StatusOK, `{"page":1,"results":[
			{"id":1,"title":"Inception: The Cobol Job","release_date":"2010-12-07"},
			{"id":27205,"title":"INCEPTION","release_date":"2010-07-15","vote_average":8.4,"poster_path":"/p.jpg"}
		]}`)
	})

	record, ok := svc.Resolve(context.Background(), "inception", models.MediaTypeMovie, 2010)
	if !ok {
		t.Fatal("expected a record")
	}
	if record.ID != 27205 {
		t.Fatalf("expected exact match id 27205, got %d", record.ID)
	}
	if gotYear != "2010" {
		t.Fatalf("expected year filter 2010, got %q", gotYear)
	}
	if record.Year() != 2010 || record.PosterPath != "/p.jpg" {
		t.Fatalf("unexpected record %+v", record)
	}
}

func TestResolveFallsBackToFirstResult(t *testing.T) {
	svc := newTestService(t, func(req *http.Request) *http.Response {
		return jsonResponse(http.StatusOK, `{"results":[{"id":7,"title":"Arrival (Extended)"},{"id":8,"title":"Arrivals"}]}`)
	})

	record, ok := svc.Resolve(context.Background(), "Arrival", models.MediaTypeMovie, 0)
	if !ok || record.ID != 7 {
		t.Fatalf("expected first result, got %+v ok=%v", record, ok)
	}
}

func TestResolveSeriesUsesFirstAirDateYear(t *testing.T) {
	svc := newTestService(t, func(req *http.Request) *http.Response {
		if req.URL.Path != "/3/search/tv" {
			t.Fatalf("unexpected path %s", req.URL.Path)
		}
		if got := req.URL.Query().Get("first_air_date_year"); got != "2008" {
			t.Fatalf("expected first_air_date_year=2008, got %q", got)
		}
		if req.URL.Query().Get("primary_release_year") != "" {
			t.Fatal("movie year field must not be sent for series")
		}
		return jsonResponse(http.StatusOK, `{"results":[{"id":1396,"name":"Breaking Bad","first_air_date":"2008-01-20"}]}`)
	})

	record, ok := svc.Resolve(context.Background(), "Breaking Bad", models.MediaTypeTV, 2008)
	if !ok || record.Title != "Breaking Bad" || record.MediaType != models.MediaTypeTV {
		t.Fatalf("unexpected record %+v", record)
	}
}

func TestResolveAbsentOnEmptyOrError(t *testing.T) {
	empty := newTestService(t, func(req *http.Request) *http.Response {
		return jsonResponse(http.StatusOK, `{"results":[]}`)
	})
	if _, ok := empty.Resolve(context.Background(), "Nothing", models.MediaTypeMovie, 0); ok {
		t.Fatal("expected absent for empty results")
	}

	failing := newTestService(t, func(req *http.Request) *http.Response {
		return jsonResponse(http.StatusUnauthorized, `{"status_message":"Invalid API key"}`)
	})
	if _, ok := failing.Resolve(context.Background(), "Inception", models.MediaTypeMovie, 0); ok {
		t.Fatal("expected absent on upstream error")
	}
}

func TestResolveCachesHits(t *testing.T) {
	var mu sync.Mutex
	calls := 0
	svc := newTestService(t, func(req *http.Request) *http.Response {
		mu.Lock()
		calls++
		mu.Unlock()
		return jsonResponse(http.StatusOK, `{"results":[{"id":1,"title":"Parasite"}]}`)
	})

	for i := 0; i < 3; i++ {
		if _, ok := svc.Resolve(context.Background(), "Parasite", models.MediaTypeMovie, 2019); !ok {
			t.Fatal("expected a record")
		}
	}
	if calls != 1 {
		t.Fatalf("expected a single upstream call, got %d", calls)
	}
}

func TestEnrichMergesProvidersAndTrailer(t *testing.T) {
	svc := newTestService(t, func(req *http.Request) *http.Response {
		switch req.URL.Path {
		case "/3/movie/27205/watch/providers":
			return jsonResponse(http.StatusOK, `{"id":27205,"results":{
				"GB":{"flatrate":[{"provider_id":1,"provider_name":"Elsewhere"}]},
				"US":{"flatrate":[
					{"provider_id":8,"provider_name":"Netflix","logo_path":"/n.jpg"},
					{"provider_id":337,"provider_name":"Disney Plus","logo_path":"/d.jpg"}
				],"rent":[{"provider_id":2,"provider_name":"Apple TV"}]}
			}}`)
		case "/3/movie/27205/videos":
			return jsonResponse(http.StatusOK, `{"results":[
				{"key":"vimeo1","site":"Vimeo","type":"Trailer","official":true},
				{"key":"teaser1","site":"YouTube","type":"Teaser","official":true},
				{"key":"trailer1","site":"YouTube","type":"Trailer","official":false}
			]}`)
		}
		t.Errorf("unexpected path %s", req.URL.Path)
		return jsonResponse(http.StatusNotFound, `{}`)
	})

	got := svc.Enrich(context.Background(), 27205, models.MediaTypeMovie)
	if len(got.Providers) != 2 || got.Providers[0].ProviderName != "Netflix" || got.Providers[1].ProviderID != 337 {
		t.Fatalf("unexpected providers %+v", got.Providers)
	}
	if got.Trailer != "trailer1" {
		t.Fatalf("expected trailer1, got %q", got.Trailer)
	}
}

func TestEnrichFailureYieldsEmptyFields(t *testing.T) {
	svc := newTestService(t, func(req *http.Request) *http.Response {
		if strings.HasSuffix(req.URL.Path, "/videos") {
			return jsonResponse(http.StatusOK, `{"results":[{"key":"abc","site":"YouTube","type":"Clip"}]}`)
		}
		return jsonResponse(http.StatusNotFound, `{}`)
	})

	got := svc.Enrich(context.Background(), 42, models.MediaTypeTV)
	if got.Providers == nil || len(got.Providers) != 0 {
		t.Fatalf("expected empty non-nil providers, got %#v", got.Providers)
	}
	if got.Trailer != "abc" {
		t.Fatalf("video half should survive provider failure, got %q", got.Trailer)
	}
}

func TestEnrichMissingRegionYieldsNoProviders(t *testing.T) {
	svc := newTestService(t, func(req *http.Request) *http.Response {
		if strings.HasSuffix(req.URL.Path, "/watch/providers") {
			return jsonResponse(http.StatusOK, `{"results":{"FR":{"flatrate":[{"provider_id":1}]}}}`)
		}
		return jsonResponse(http.StatusOK, `{"results":[]}`)
	})

	got := svc.Enrich(context.Background(), 5, models.MediaTypeMovie)
	if len(got.Providers) != 0 || got.Trailer != "" {
		t.Fatalf("expected empty enrichment, got %+v", got)
	}
}

func TestAutocomplete(t *testing.T) {
	svc := newTestService(t, func(req *http.Request) *http.Response {
		if req.URL.Path != "/3/search/multi" {
			t.Fatalf("unexpected path %s", req.URL.Path)
		}
		return jsonResponse(http.StatusOK, `{"results":[
			{"id":1,"media_type":"person","name":"Someone"},
			{"id":2,"media_type":"movie","title":"A"},
			{"id":3,"media_type":"tv","name":"B"},
			{"id":4,"media_type":"movie","title":"C"},
			{"id":5,"media_type":"movie","title":"D"},
			{"id":6,"media_type":"tv","name":"E"},
			{"id":7,"media_type":"movie","title":"F"}
		]}`)
	})

	if got := svc.Autocomplete(context.Background(), " a "); len(got) != 0 {
		t.Fatalf("short query must not search, got %+v", got)
	}

	got := svc.Autocomplete(context.Background(), "ab")
	if len(got) != 5 {
		t.Fatalf("expected 5 results, got %d", len(got))
	}
	if got[0].ID != 2 || got[1].MediaType != models.MediaTypeTV {
		t.Fatalf("unexpected ordering %+v", got)
	}
}

func TestTrendingCombinesBothTypes(t *testing.T) {
	page := func(prefix string, n int) string {
		var b strings.Builder
		b.WriteString(`{"results":[`)
		for i := 1; i <= n; i++ {
			if i > 1 {
				b.WriteString(",")
			}
			b.WriteString(`{"id":` + prefix + string(rune('0'+i%10)) + `,"title":"t","name":"n"}`)
		}
		b.WriteString(`]}`)
		return b.String()
	}

	svc := newTestService(t, func(req *http.Request) *http.Response {
		switch {
		case req.URL.Path == "/3/trending/movie/week":
			return jsonResponse(http.StatusOK, page("1", 9))
		case req.URL.Path == "/3/trending/tv/week":
			return jsonResponse(http.StatusOK, page("2", 9))
		case strings.HasSuffix(req.URL.Path, "/watch/providers"):
			return jsonResponse(http.StatusOK, `{"results":{"US":{"flatrate":[{"provider_id":8,"provider_name":"Netflix"}]}}}`)
		default:
			return jsonResponse(http.StatusOK, `{"results":[]}`)
		}
	})
	svc.shuffle = func(int, func(i, j int)) {}

	items := svc.Trending(context.Background())
	if len(items) != 16 {
		t.Fatalf("expected 8 of each type, got %d", len(items))
	}
	for i, item := range items {
		want := models.MediaTypeMovie
		if i >= 8 {
			want = models.MediaTypeTV
		}
		if item.MediaType != want {
			t.Fatalf("item %d: expected %s, got %s", i, want, item.MediaType)
		}
		if len(item.Providers) != 1 {
			t.Fatalf("item %d not enriched: %+v", i, item)
		}
	}
}

func TestTrendingWithoutCredentialIsEmpty(t *testing.T) {
	svc := NewService(Options{HTTPClient: &http.Client{Transport: roundTripFunc(func(req *http.Request) (*http.Response, error) {
		t.Error("no request expected without a credential")
		return jsonResponse(http.StatusNotFound, `{}`), nil
	})}})

	if got := svc.Trending(context.Background()); len(got) != 0 {
		t.Fatalf("expected empty trending, got %d", len(got))
	}
}

func trendingStub(providers func() *http.Response, trendingCalls *atomic.Int32) func(*http.Request) *http.Response {
	return func(req *http.Request) *http.Response {
		switch {
		case req.URL.Path == "/3/trending/movie/week":
			trendingCalls.Add(1)
			return jsonResponse(http.StatusOK, `{"results":[{"id":1,"title":"A"},{"id":2,"title":"B"}]}`)
		case req.URL.Path == "/3/trending/tv/week":
			return jsonResponse(http.StatusOK, `{"results":[{"id":11,"name":"C"},{"id":12,"name":"D"}]}`)
		case strings.HasSuffix(req.URL.Path, "/watch/providers"):
			return providers()
		default:
			return jsonResponse(http.StatusOK, `{"results":[]}`)
		}
	}
}

func TestTrendingSurvivesCancelledFirstCaller(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var trendingCalls atomic.Int32
	svc := newTestService(t, trendingStub(func() *http.Response {
		// The first caller goes away while rows are being hydrated.
		cancel()
		return jsonResponse(http.StatusOK, `{"results":{"US":{"flatrate":[{"provider_id":8,"provider_name":"Netflix"}]}}}`)
	}, &trendingCalls))
	svc.shuffle = func(int, func(i, j int)) {}

	first := svc.Trending(ctx)
	if len(first) != 4 {
		t.Fatalf("expected 4 items, got %d", len(first))
	}

	second := svc.Trending(context.Background())
	if len(second) != 4 {
		t.Fatalf("expected 4 items, got %d", len(second))
	}
	for i, item := range second {
		if len(item.Providers) != 1 {
			t.Fatalf("item %d served without providers: %+v", i, item)
		}
	}
	if got := trendingCalls.Load(); got != 1 {
		t.Fatalf("expected the hydrated rows to be cached, got %d trending loads", got)
	}
}

func TestTrendingDoesNotCachePartialHydration(t *testing.T) {
	var healthy atomic.Bool
	var trendingCalls atomic.Int32
	svc := newTestService(t, trendingStub(func() *http.Response {
		if !healthy.Load() {
			return jsonResponse(http.StatusNotFound, `{}`)
		}
		return jsonResponse(http.StatusOK, `{"results":{"US":{"flatrate":[{"provider_id":8,"provider_name":"Netflix"}]}}}`)
	}, &trendingCalls))
	svc.shuffle = func(int, func(i, j int)) {}

	if got := svc.Trending(context.Background()); len(got) != 4 || len(got[0].Providers) != 0 {
		t.Fatalf("expected unenriched rows on provider failure, got %+v", got)
	}

	healthy.Store(true)
	got := svc.Trending(context.Background())
	if len(got) != 4 {
		t.Fatalf("expected 4 items, got %d", len(got))
	}
	for i, item := range got {
		if len(item.Providers) != 1 {
			t.Fatalf("item %d still unenriched after recovery: %+v", i, item)
		}
	}
	if calls := trendingCalls.Load(); calls != 2 {
		t.Fatalf("expected a reload after the partial result, got %d loads", calls)
	}
}
