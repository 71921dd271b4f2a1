package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"copydesk/api/internal/app"
	"copydesk/api/internal/archive"
	"copydesk/api/internal/cache"
	"copydesk/api/internal/config"
	"copydesk/api/internal/media"
	"copydesk/api/internal/notify"
	"copydesk/api/internal/sanitize"
	"copydesk/api/internal/search"
	"copydesk/api/internal/store"
)

const publishedCacheTTL = 60 * time.Second

func main() {
	cfg := config.Load()
	ctx := context.Background()

	db, err := store.Open(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("database connection failed: %v", err)
	}
	defer db.Close()

	if err := store.ApplyMigrations(ctx, db, cfg.MigrationsDir); err != nil {
		log.Fatalf("migrations failed: %v", err)
	}

	if err := os.MkdirAll(cfg.ArchiveDir, 0o755); err != nil {
		log.Fatalf("failed to create archive dir: %v", err)
	}

	dataStore := store.NewPostgresStore(db)
	sanitizer := sanitize.New(sanitize.Default())
	gateway := notify.New(cfg.NotifyTimeout)

	service := app.New(cfg, dataStore, sanitizer, gateway)
	service.UseArchive(archive.New(cfg.ArchiveDir))

	pgfts := search.NewPgFTS(db)
	var meiliClient *search.Meili
	if strings.TrimSpace(cfg.MeiliURL) != "" {
		meiliClient = search.NewMeili(cfg.MeiliURL, cfg.MeiliMasterKey)
		defer meiliClient.Close()
	}
	service.UseSearch(search.NewService(meiliClient, pgfts))

	if strings.TrimSpace(cfg.RedisURL) != "" {
		publishedList, err := cache.NewPublishedList(cfg.RedisURL, publishedCacheTTL)
		if err != nil {
			log.Fatalf("redis connection failed: %v", err)
		}
		defer publishedList.Close()
		service.UseCache(publishedList)
		log.Printf("published-list cache enabled")
	}

	if strings.TrimSpace(cfg.MinioEndpoint) != "" {
		mediaSvc, err := media.New(ctx, media.Config{
			Endpoint:  cfg.MinioEndpoint,
			AccessKey: cfg.MinioAccessKey,
			SecretKey: cfg.MinioSecretKey,
			Bucket:    cfg.MinioBucket,
			PublicURL: cfg.MinioPublicURL,
			UseSSL:    cfg.MinioUseSSL,
		})
		if err != nil {
			log.Fatalf("media storage failed: %v", err)
		}
		service.UseMedia(mediaSvc)
		log.Printf("media uploads enabled (bucket %s)", cfg.MinioBucket)
	}

	if strings.TrimSpace(cfg.NotifyURL) != "" {
		log.Printf("publish notifications target %s", cfg.NotifyURL)
	}

	if err := service.Bootstrap(ctx); err != nil {
		log.Printf("WARNING: bootstrap error (will retry on next restart): %v", err)
	}

	httpServer := app.NewHTTPServer(service, cfg.CORSOrigin)
	server := &http.Server{
		Addr:              cfg.Addr,
		Handler:           httpServer.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		log.Printf("Copydesk API listening on %s", cfg.Addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("server failed: %v", err)
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("shutdown error: %v", err)
	}
}
