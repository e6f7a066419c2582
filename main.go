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

	"gopkg.in/natefinch/lumberjack.v2"

	"anisync/api"
	"anisync/config"
	"anisync/handlers"
	"anisync/internal/cache"
	"anisync/internal/database"
	"anisync/services/anilist"
	"anisync/services/catalog"
	"anisync/services/mapping"
	"anisync/services/metadata"
	"anisync/services/progress"
)

func main() {
	portOverride := flag.Int("port", 0, "override server port from config")
	flag.Parse()

	configPath := os.Getenv("ANISYNC_CONFIG")
	if configPath == "" {
		configPath = filepath.Join("cache", "settings.json")
	}

	cfgManager := config.NewManager(configPath)
	settings, err := cfgManager.Load()
	if err != nil {
		log.Fatalf("failed to load settings: %v", err)
	}

	// File logging with rotation.
	if settings.Log.File != "" {
		logDir := filepath.Dir(settings.Log.File)
		if err := os.MkdirAll(logDir, 0o755); err != nil {
			log.Printf("warning: could not create log directory %s: %v", logDir, err)
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
			log.Printf("logging to file: %s", settings.Log.File)
		}
	}

	if *portOverride > 0 {
		settings.Server.Port = *portOverride
	}

	db, err := database.Open(settings.Database.Path)
	if err != nil {
		log.Fatalf("failed to open database: %v", err)
	}
	defer db.Close()
	store := database.NewMappingStore(db)

	queryCache, err := cache.NewQueryCache(settings.Cache.QueryEntries, time.Duration(settings.Cache.QueryTTLMinutes)*time.Minute)
	if err != nil {
		log.Fatalf("failed to create query cache: %v", err)
	}
	mappingTTL := time.Duration(settings.Cache.MappingTTLHours) * time.Hour
	mappingCache := cache.NewStore[string](settings.Cache.MappingEntries, mappingTTL)
	logoCache := cache.NewStore[string](settings.Cache.MappingEntries, mappingTTL)

	client := anilist.NewClient(settings.Services.AniListURL, nil)
	gateway := anilist.NewGateway(client, anilist.Limits{
		MaxConcurrent:  settings.RateLimit.MaxConcurrent,
		Reservoir:      settings.RateLimit.Reservoir,
		RefillAmount:   settings.RateLimit.RefillAmount,
		RefillInterval: time.Duration(settings.RateLimit.RefillIntervalSeconds) * time.Second,
		MinSpacing:     time.Duration(settings.RateLimit.MinSpacingMillis) * time.Millisecond,
	})
	defer gateway.Close()
	anilistAPI := anilist.NewAPI(gateway, queryCache)

	resolver := mapping.NewService(store, mappingCache, mapping.Config{
		KitsuURL: settings.Services.KitsuURL,
		ARMURL:   settings.Services.ARMURL,
	})
	cinemeta := metadata.NewCinemetaClient(settings.Services.CinemetaURL, nil)
	fanart := metadata.NewFanartClient(settings.Services.FanartURL, settings.Services.FanartAPIKey, nil)

	progressService := progress.NewService(anilistAPI, resolver, cinemeta)
	catalogService := catalog.NewService(anilistAPI, resolver, fanart, logoCache)

	router := api.NewRouter(
		handlers.NewManifestHandler(),
		handlers.NewCatalogHandler(catalogService),
		handlers.NewSubtitlesHandler(progressService),
	)

	addr := fmt.Sprintf("%s:%d", settings.Server.Host, settings.Server.Port)
	server := &http.Server{
		Addr:         addr,
		Handler:      router,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 60 * time.Second,
	}

	go func() {
		log.Printf("[main] listening on %s", addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("server error: %v", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop

	log.Printf("[main] shutting down")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		log.Printf("[main] shutdown error: %v", err)
	}
}
