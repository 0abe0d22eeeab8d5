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

	"github.com/lateshift-app/afterhours-server/internal/config"
	"github.com/lateshift-app/afterhours-server/internal/database"
	"github.com/lateshift-app/afterhours-server/internal/external"
	"github.com/lateshift-app/afterhours-server/internal/handler"
	"github.com/lateshift-app/afterhours-server/internal/jobs"
	"github.com/lateshift-app/afterhours-server/internal/middleware"
	"github.com/lateshift-app/afterhours-server/internal/redis"
	"github.com/lateshift-app/afterhours-server/internal/repository"
	"github.com/lateshift-app/afterhours-server/internal/service"
	"github.com/lateshift-app/afterhours-server/internal/sse"
)

func main() {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}
	if err := cfg.Validate(); err != nil {
		log.Fatal().Err(err).Msg("invalid config")
	}

	setLogLevel(cfg.LogLevel)

	db, err := database.Connect(cfg.DatabaseURL)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer db.Close()

	ctx, cancel := context.WithTimeout(context.Background(), config.DBPingTimeout)
	if err := db.Ping(ctx); err != nil {
		log.Fatal().Err(err).Msg("failed to ping database")
	}
	cancel()
	log.Info().Msg("database connected")

	redisClient, err := redis.NewClient(cfg.RedisURL)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to redis")
	}
	defer redisClient.Close()
	log.Info().Msg("redis connected")

	sessionRepo := repository.NewSessionRepository(db.DB)
	declineRepo := repository.NewDeclineRepository(db.DB)
	connRepo := repository.NewConnectionRepository(db.DB)
	messageRepo := repository.NewMessageRepository(db.DB)

	broker := sse.NewBroker(redisClient)
	defer broker.Close()

	core := external.NewCoreClient(cfg.CoreAPIURL, cfg.CoreAPIToken)

	sessionService := service.NewSessionService(
		sessionRepo, connRepo, core, broker, cfg.SessionDuration(), cfg.FuzzRadiusMeters,
	)
	matcherService := service.NewMatcherService(sessionRepo, core, core, redisClient, cfg.CandidateLimit)
	declineService := service.NewDeclineService(declineRepo, sessionRepo)
	connectionService := service.NewConnectionService(connRepo, messageRepo, sessionRepo, broker, core)
	convertService := service.NewConvertService(
		db, connRepo, messageRepo, core, core, broker, cfg.GracePeriod(),
	)

	authMiddleware := middleware.NewAuthMiddleware(cfg.GatewayToken)
	rateLimitMiddleware := middleware.NewRateLimitMiddleware(redisClient.Client, cfg.RateLimitPerMin)

	sessionHandler := handler.NewSessionHandler(sessionService)
	matchHandler := handler.NewMatchHandler(matcherService, declineService)
	connectionHandler := handler.NewConnectionHandler(connectionService, convertService, broker)

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

	r.Route("/v1", func(r chi.Router) {
		r.Use(authMiddleware.Handler)
		r.Use(rateLimitMiddleware.Handler)

		r.Route("/sessions", func(r chi.Router) {
			r.Mount("/", sessionHandler.Routes())
		})
		r.Route("/matching", func(r chi.Router) {
			r.Mount("/", matchHandler.Routes())
		})
		r.Route("/connections", func(r chi.Router) {
			r.Mount("/", connectionHandler.Routes())
		})
	})

	sweeper := jobs.NewSweeper(
		sessionRepo, connRepo, core,
		cfg.SweepInterval(), cfg.GracePeriod(), cfg.Retention(),
	)
	sweeper.Start()
	defer sweeper.Stop()

	server := &http.Server{
		Addr:         cfg.Addr(),
		Handler:      r,
		ReadTimeout:  config.ServerReadTimeout,
		WriteTimeout: 0, // SSE streams stay open indefinitely
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

	log.Info().Msg("server stopped")
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
