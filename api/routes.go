package api

import (
	"net"
	"net/http"
	"net/http/pprof"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"cinewise/handlers"
)

// localhostOnlyMiddleware restricts access to localhost requests only
func localhostOnlyMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		host := r.Host
		if h, _, err := net.SplitHostPort(host); err == nil {
			host = h
		}
		if host != "localhost" && host != "127.0.0.1" && host != "::1" {
			http.Error(w, "Debug endpoints only accessible from localhost", http.StatusForbidden)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// corsMiddleware handles CORS for API routes
func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "*")

		// Handle preflight requests
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// Handlers groups everything Register mounts.
type Handlers struct {
	Discovery *handlers.DiscoveryHandler
	Metadata  *handlers.MetadataHandler
	Watchlist *handlers.WatchlistHandler
	Posters   *handlers.PosterHandler
}

// Register mounts API endpoints onto the provided router. Routes that start
// an aggregation cycle go through the limiter; nil disables limiting.
func Register(r *mux.Router, h Handlers, limiter *IPRateLimiter) {
	r.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)

	api := r.PathPrefix("/api").Subrouter()
	api.Use(corsMiddleware)

	api.HandleFunc("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	}).Methods(http.MethodGet)

	limited := func(route string, fn http.HandlerFunc) http.HandlerFunc {
		if limiter == nil {
			return fn
		}
		return RateLimitHandlerFunc(limiter, route, fn)
	}

	// Discovery sessions
	api.HandleFunc("/sessions", h.Discovery.Create).Methods(http.MethodPost, http.MethodOptions)
	api.HandleFunc("/sessions/{id}", h.Discovery.Get).Methods(http.MethodGet, http.MethodOptions)
	api.HandleFunc("/sessions/{id}/search", limited("search", h.Discovery.Search)).Methods(http.MethodPost, http.MethodOptions)
	api.HandleFunc("/sessions/{id}/more", limited("more", h.Discovery.LoadMore)).Methods(http.MethodPost, http.MethodOptions)

	// Catalogue
	api.HandleFunc("/trending", h.Metadata.Trending).Methods(http.MethodGet, http.MethodOptions)
	api.HandleFunc("/autocomplete", h.Metadata.Autocomplete).Methods(http.MethodGet, http.MethodOptions)
	api.HandleFunc("/suggestions", limited("suggestions", h.Metadata.Suggest)).Methods(http.MethodGet, http.MethodOptions)
	api.HandleFunc("/posters/{type}/{id:[0-9]+}", h.Posters.Serve).Methods(http.MethodGet, http.MethodOptions)

	// Watchlist
	api.HandleFunc("/watchlist", h.Watchlist.List).Methods(http.MethodGet, http.MethodOptions)
	api.HandleFunc("/watchlist", h.Watchlist.Add).Methods(http.MethodPost)
	api.HandleFunc("/watchlist/toggle", h.Watchlist.Toggle).Methods(http.MethodPost, http.MethodOptions)
	api.HandleFunc("/watchlist/{id:[0-9]+}", h.Watchlist.Remove).Methods(http.MethodDelete, http.MethodOptions)

	pprofRouter := api.PathPrefix("/debug/pprof").Subrouter()
	pprofRouter.Use(localhostOnlyMiddleware)
	pprofRouter.HandleFunc("/", pprof.Index)
	pprofRouter.HandleFunc("/cmdline", pprof.Cmdline)
	pprofRouter.HandleFunc("/profile", pprof.Profile)
	pprofRouter.HandleFunc("/symbol", pprof.Symbol)
	pprofRouter.HandleFunc("/trace", pprof.Trace)
	pprofRouter.PathPrefix("/").HandlerFunc(pprof.Index)
}
