package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"rabbithole/api/internal/app"
	"rabbithole/api/internal/auth"
	"rabbithole/api/internal/blob"
	"rabbithole/api/internal/cache"
	"rabbithole/api/internal/config"
	"rabbithole/api/internal/export"
	"rabbithole/api/internal/grouping"
	"rabbithole/api/internal/history"
	"rabbithole/api/internal/llm"
	"rabbithole/api/internal/logging"
	"rabbithole/api/internal/recommend"
	"rabbithole/api/internal/search"
	"rabbithole/api/internal/store"
)

func main() {
	cfg := config.Load()
	log := logging.New(cfg.LogLevel, cfg.LogFormat)
	ctx := context.Background()

	dialect, err := store.ParseDialect(cfg.DatabaseDriver)
	if err != nil {
		log.Fatal().Err(err).Msg("invalid database driver")
	}
	db, err := store.Open(ctx, dialect, cfg.DatabaseURL)
	if err != nil {
		log.Fatal().Err(err).Msg("database connection failed")
	}
	defer db.Close()

	if err := store.ApplyMigrations(ctx, db, dialect, store.MigrationsPath(cfg.MigrationsDir, dialect)); err != nil {
		log.Fatal().Err(err).Msg("migrations failed")
	}
	repo := store.NewSQLStore(db, dialect)

	identity, err := auth.NewResolver(cfg.AuthMode, cfg.AuthSecret)
	if err != nil {
		log.Fatal().Err(err).Msg("invalid auth configuration")
	}

	var model llm.Completer
	if cfg.ModelEnabled() {
		model = llm.NewOpenAI(cfg.XAIAPIKey, cfg.XAIBaseURL, cfg.XAIModel, cfg.ModelTimeout)
		log.Info().Str("model", cfg.XAIModel).Msg("model suggestions enabled")
	} else {
		log.Info().Msg("XAI_API_KEY not set; grouping and recommendations use fallbacks")
	}

	var recCache recommend.Cache
	if strings.TrimSpace(cfg.RedisURL) != "" {
		redisStore, err := cache.NewRedisStore(cfg.RedisURL)
		if err != nil {
			log.Fatal().Err(err).Msg("redis connection failed")
		}
		defer redisStore.Close()
		recCache = redisStore
	}

	var primary search.Engine
	if strings.TrimSpace(cfg.MeiliURL) != "" {
		meili := search.NewMeili(cfg.MeiliURL, cfg.MeiliMasterKey, log)
		defer meili.Close()
		primary = meili
	}
	searchService := search.NewService(primary, search.NewSQLSearch(db, dialect), log)

	blobs, err := blob.New(ctx, blob.Config{
		Driver:    cfg.BlobDriver,
		Bucket:    cfg.BlobBucket,
		Endpoint:  cfg.BlobEndpoint,
		AccessKey: cfg.BlobAccessKey,
		SecretKey: cfg.BlobSecretKey,
		Region:    cfg.BlobRegion,
		UseSSL:    cfg.BlobUseSSL,
		PathStyle: cfg.BlobPathStyle,
	})
	if err != nil {
		log.Fatal().Err(err).Str("driver", cfg.BlobDriver).Msg("blob store unavailable")
	}
	if !blobs.Driver().Durable() {
		log.Warn().Str("driver", string(blobs.Driver())).Msg("ink blobs are kept in memory and will not survive a restart")
	}

	deps := app.Dependencies{
		Grouper:     grouping.New(repo, model, log),
		Recommender: recommend.New(repo, model, recCache, cfg.RecommendationTTL, log),
		Search:      searchService,
		Exporter:    export.NewService(repo),
		Blobs:       blobs,
	}
	if strings.TrimSpace(cfg.HistoryDir) != "" {
		if err := os.MkdirAll(cfg.HistoryDir, 0o755); err != nil {
			log.Fatal().Err(err).Msg("failed to create history dir")
		}
		deps.History = history.New(cfg.HistoryDir)
	}

	service := app.New(cfg, repo, deps, log)
	httpServer := app.NewHTTPServer(service, identity, app.NewMetrics(), cfg.CORSOrigin, log)
	server := &http.Server{
		Addr:              cfg.Addr,
		Handler:           httpServer.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		log.Info().Str("addr", cfg.Addr).Str("db", string(dialect)).Str("auth", cfg.AuthMode).Msg("rabbithole api listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("server failed")
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("shutdown error")
	}
	searchService.Wait()
}
