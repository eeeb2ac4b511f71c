package main

import (
	"context"
	"encoding/json"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/twoao/selfie-server-go/internal/config"
	"github.com/twoao/selfie-server-go/internal/database"
	"github.com/twoao/selfie-server-go/internal/evidence"
	"github.com/twoao/selfie-server-go/internal/handler"
	"github.com/twoao/selfie-server-go/internal/jobs"
	"github.com/twoao/selfie-server-go/internal/middleware"
	"github.com/twoao/selfie-server-go/internal/redis"
	"github.com/twoao/selfie-server-go/internal/service"
	"github.com/twoao/selfie-server-go/internal/store"
)

func main() {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}

	setLogLevel(cfg.LogLevel)

	isProduction := os.Getenv("FLY_APP_NAME") != ""
	if err := cfg.Validate(isProduction); err != nil {
		log.Fatal().Err(err).Msg("invalid config")
	}

	records, memStore, dbClose := buildRecordStore(cfg)
	if dbClose != nil {
		defer dbClose()
	}

	evidenceStore := buildEvidenceStore(cfg)

	var verifier *service.Verifier
	if cfg.VerifierURL != "" {
		verifier = service.NewVerifier(cfg.VerifierURL, cfg.VerifierTimeout())
		log.Info().Str("url", cfg.VerifierURL).Msg("synchronous verifier enabled")
	} else {
		log.Info().Msg("no verifier configured: relying on SDK callbacks only")
	}

	lifecycle := service.NewLifecycle(records, evidenceStore, verifier, cfg.BaseURL)
	operator := service.NewOperator(cfg.AdminUser, cfg.AdminPasswordHash, config.OperatorSessionTTL)

	var limiter middleware.Limiter
	if cfg.RedisURL != "" {
		redisClient, err := redis.NewClient(cfg.RedisURL)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to connect to redis")
		}
		defer redisClient.Close()
		log.Info().Msg("redis connected")
		limiter = middleware.NewRedisLimiter(redisClient.Client)
	} else {
		limiter = middleware.NewMemoryLimiter()
	}

	authMiddleware := middleware.NewAuthMiddleware(operator)
	rateLimitMiddleware := middleware.NewRateLimitMiddleware(limiter, cfg.RateLimitPerMin)
	bodyLimitMiddleware := middleware.NewBodyLimitMiddleware(0)

	authHandler := handler.NewAuthHandler(operator)
	accountsHandler := handler.NewAccountsHandler(lifecycle)
	captureHandler := handler.NewCaptureHandler(lifecycle)
	tasksHandler := handler.NewTasksHandler(lifecycle)

	startedAt := time.Now()

	r := chi.NewRouter()

	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.RequestLogger)
	r.Use(chimiddleware.Recoverer)
	r.Use(chimiddleware.Timeout(config.ServerRequestTimeout))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		json.NewEncoder(w).Encode(map[string]any{
			"status":    "ok",
			"timestamp": time.Now().UnixMilli(),
		})
	})

	r.Get("/", func(w http.ResponseWriter, r *http.Request) {
		count, _ := lifecycle.Count(r.Context())
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		json.NewEncoder(w).Encode(map[string]any{
			"service":  "selfie-server",
			"version":  "1.0.0",
			"accounts": count,
			"uptime":   int64(time.Since(startedAt).Seconds()),
		})
	})

	r.Route("/api", func(r chi.Router) {
		r.Group(func(r chi.Router) {
			r.Use(bodyLimitMiddleware.Handler)

			r.Post("/login", authHandler.Login)
			r.Post("/logout", authHandler.Logout)

			r.Group(func(r chi.Router) {
				r.Use(authMiddleware.Handler)
				r.Mount("/accounts", accountsHandler.Routes())
				r.Get("/selfie-result/{username}", accountsHandler.SelfieResult)
			})
		})

		// The capture routes stay outside the JSON body cap: evidence
		// uploads carry their own, larger ceiling in the handler.
		r.Group(func(r chi.Router) {
			r.Use(rateLimitMiddleware.Handler)
			r.Mount("/", captureHandler.Routes())
		})
	})

	// Legacy agent paths live at the root, not under /api.
	r.Group(func(r chi.Router) {
		r.Use(bodyLimitMiddleware.Handler)
		r.Use(rateLimitMiddleware.Handler)
		tasksHandler.Register(r)
	})

	sweepJob := jobs.NewSweepJob(lifecycle, operator, cfg.RecordTTL(), cfg.SweepInterval())
	sweepJob.Start()
	defer sweepJob.Stop()

	server := &http.Server{
		Addr:         cfg.Addr(),
		Handler:      r,
		ReadTimeout:  config.ServerReadTimeout,
		WriteTimeout: 0,
		IdleTimeout:  config.ServerIdleTimeout,
	}

	go func() {
		log.Info().Str("addr", cfg.Addr()).Msg("starting server")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("server error")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info().Msg("shutting down server")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), config.ServerShutdownTimeout)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("server forced to shutdown")
	}

	if memStore != nil {
		if err := memStore.Persist(); err != nil {
			log.Error().Err(err).Msg("failed to persist record snapshot")
		}
	}

	log.Info().Msg("server stopped")
}

// buildRecordStore selects Postgres when DATABASE_URL is set, otherwise the
// in-memory store with an optional JSON snapshot. The returned close func is
// nil for the in-memory store.
func buildRecordStore(cfg *config.Config) (store.RecordStore, *store.MemoryStore, func() error) {
	if cfg.DatabaseURL == "" {
		mem := store.NewMemoryStore(cfg.StorePath)
		if cfg.StorePath != "" {
			log.Info().Str("path", cfg.StorePath).Msg("in-memory store with snapshot")
		} else {
			log.Info().Msg("in-memory store without persistence")
		}
		return mem, mem, nil
	}

	db, err := database.Connect(cfg.DatabaseURL)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to database")
	}

	ctx, cancel := context.WithTimeout(context.Background(), config.DBPingTimeout)
	defer cancel()
	if err := db.Ping(ctx); err != nil {
		log.Fatal().Err(err).Msg("failed to ping database")
	}

	pg := store.NewPostgresStore(db.DB)
	if err := pg.EnsureSchema(ctx); err != nil {
		log.Fatal().Err(err).Msg("failed to ensure schema")
	}
	log.Info().Msg("database connected")

	return pg, nil, db.Close
}

func buildEvidenceStore(cfg *config.Config) evidence.Store {
	if cfg.S3Bucket != "" {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		s3Store, err := evidence.NewS3Store(ctx, evidence.S3Config{
			Bucket:    cfg.S3Bucket,
			Region:    cfg.S3Region,
			Endpoint:  cfg.S3Endpoint,
			AccessKey: cfg.S3AccessKey,
			SecretKey: cfg.S3SecretKey,
		})
		if err != nil {
			log.Fatal().Err(err).Msg("failed to configure S3 evidence store")
		}
		log.Info().Str("bucket", cfg.S3Bucket).Msg("S3 evidence store configured")
		return s3Store
	}

	fsStore, err := evidence.NewFSStore(cfg.EvidenceDir)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to configure evidence directory")
	}
	log.Info().Str("dir", cfg.EvidenceDir).Msg("filesystem evidence store configured")
	return fsStore
}

func setLogLevel(level string) {
	switch level {
	case "debug":
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	case "info":
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	case "warn":
		zerolog.SetGlobalLevel(zerolog.WarnLevel)
	case "error":
		zerolog.SetGlobalLevel(zerolog.ErrorLevel)
	default:
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	}
}
