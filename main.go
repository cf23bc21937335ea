package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	"github.com/spf13/afero"
	"gopkg.in/natefinch/lumberjack.v2"

	"cinewise/api"
	"cinewise/config"
	"cinewise/handlers"
	"cinewise/services/discovery"
	"cinewise/services/metadata"
	"cinewise/services/posters"
	"cinewise/services/recommend"
	"cinewise/services/watchlist"
)

func main() {
	demoMode := flag.Bool("demo", false, "answer every search from the built-in recommendation list")
	portOverride := flag.Int("port", 0, "override server port from config")
	flag.Parse()

	fmt.Println("🚀 cinewise starting...")

	configPath := os.Getenv("CINEWISE_CONFIG")
	if configPath == "" {
		configPath = filepath.Join("cache", "settings.json")
	}

	// Load settings (creates defaults if missing)
	cfgManager := config.NewManager(configPath)
	settings, err := cfgManager.Load()
	if err != nil {
		log.Fatalf("failed to load settings: %v", err)
	}

	// Set up file logging with rotation
	if settings.Log.File != "" {
		logDir := filepath.Dir(settings.Log.File)
		if err := os.MkdirAll(logDir, 0755); err != nil {
			log.Printf("Warning: could not create log directory %s: %v", logDir, err)
		} else {
			fileWriter := &lumberjack.Logger{
				Filename:   settings.Log.File,
				MaxSize:    settings.Log.MaxSize,
				MaxBackups: settings.Log.MaxBackups,
				MaxAge:     settings.Log.MaxAge,
				Compress:   settings.Log.Compress,
			}
			log.SetOutput(io.MultiWriter(os.Stdout, fileWriter))
			log.SetFlags(log.LstdFlags | log.Lshortfile)
			log.Printf("Logging to file: %s", settings.Log.File)
		}
	}

	if *portOverride > 0 {
		settings.Server.Port = *portOverride
	}

	httpc := &http.Client{Timeout: 30 * time.Second}

	metadataSvc := metadata.NewService(metadata.Options{
		TMDBAPIKey:      settings.Metadata.TMDBAPIKey,
		Language:        settings.Metadata.Language,
		Region:          settings.Metadata.Region,
		BaseURL:         settings.Metadata.BaseURL,
		HTTPClient:      httpc,
		CacheTTL:        time.Duration(settings.Cache.MetadataTTLMinutes) * time.Minute,
		CacheSize:       settings.Cache.Size,
		TrendingPerType: settings.Discovery.TrendingPerType,
		MaxConcurrency:  settings.Discovery.MaxConcurrency,
	})
	if !metadataSvc.Configured() {
		log.Println("⚠️  No TMDB API key configured: searches will find no matches and trending will be empty")
	}

	generator := recommend.NewGenerator(recommend.Options{
		APIKey:        settings.Gemini.APIKey,
		Model:         settings.Gemini.Model,
		BaseURL:       settings.Gemini.BaseURL,
		HTTPClient:    httpc,
		ExcludeWindow: settings.Discovery.ExcludeWindow,
		Demo:          *demoMode,
	})
	switch {
	case *demoMode:
		fmt.Println("🧪 Demo mode enabled: recommendations come from the built-in list.")
	case !generator.Configured():
		log.Println("⚠️  No Gemini API key configured: recommendations come from the built-in list")
	}

	pipeline := discovery.NewPipeline(generator, metadataSvc, metadataSvc, discovery.PipelineOptions{
		MaxConcurrency:   settings.Discovery.MaxConcurrency,
		CandidateTimeout: time.Duration(settings.Discovery.CandidateTimeoutSeconds) * time.Second,
	})
	registry := discovery.NewRegistry(pipeline, 0, 0)

	store, err := openWatchlistStore(settings.Watchlist)
	if err != nil {
		log.Fatalf("failed to open watchlist store: %v", err)
	}
	watchlistSvc, err := watchlist.NewService(store)
	if err != nil {
		log.Fatalf("failed to load watchlist: %v", err)
	}

	posterChain := posters.NewChain(posters.Options{
		RPDBAPIKey:     settings.Posters.RPDBAPIKey,
		RPDBBaseURL:    settings.Posters.RPDBBaseURL,
		TMDBImageBase:  settings.Posters.TMDBImageBase,
		PlaceholderURL: settings.Posters.PlaceholderURL,
		HTTPClient:     httpc,
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var limiter *api.IPRateLimiter
	if settings.RateLimit.SearchPerMinute > 0 {
		limiter = api.NewIPRateLimiter(ctx, settings.RateLimit.SearchPerMinute, settings.RateLimit.Burst)
	}

	r := mux.NewRouter()
	api.Register(r, api.Handlers{
		Discovery: handlers.NewDiscoveryHandler(registry),
		Metadata:  handlers.NewMetadataHandler(metadataSvc, generator),
		Watchlist: handlers.NewWatchlistHandler(watchlistSvc),
		Posters:   handlers.NewPosterHandler(posterChain, afero.NewOsFs(), settings.Cache.Directory),
	}, limiter)

	addr := fmt.Sprintf("%s:%d", settings.Server.Host, settings.Server.Port)
	fmt.Printf("Server starting on %s\n", addr)

	srv := &http.Server{
		Addr:         addr,
		Handler:      r,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 2 * time.Minute, // a search waits for the whole page
		IdleTimeout:  120 * time.Second,
	}

	shutdownChan := make(chan os.Signal, 1)
	signal.Notify(shutdownChan, os.Interrupt, syscall.SIGTERM)

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server error: %v", err)
		}
	}()

	<-shutdownChan
	log.Println("🛑 Shutdown signal received, cleaning up...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("Server shutdown error: %v", err)
	}
	cancel()
	if err := store.Close(); err != nil {
		log.Printf("Watchlist store close error: %v", err)
	}

	log.Println("✅ Shutdown complete")
}

func openWatchlistStore(cfg config.WatchlistSettings) (watchlist.Store, error) {
	if cfg.Path == "" {
		return nil, watchlist.ErrStorageDirRequired
	}
	switch cfg.Backend {
	case config.WatchlistBackendBadger:
		log.Printf("Watchlist: badger store at %s", cfg.Path)
		return watchlist.OpenBadgerStore(cfg.Path)
	default:
		log.Printf("Watchlist: file store at %s", cfg.Path)
		return watchlist.NewFileStore(afero.NewOsFs(), cfg.Path)
	}
}
