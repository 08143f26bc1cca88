package main

import (
	"context"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/jmoiron/sqlx"
	"github.com/redis/go-redis/v9"

	"github.com/stackmail/mailbox/backend/internal/api"
	"github.com/stackmail/mailbox/backend/internal/auth"
	"github.com/stackmail/mailbox/backend/internal/config"
	"github.com/stackmail/mailbox/backend/internal/health"
	"github.com/stackmail/mailbox/backend/internal/inbound"
	"github.com/stackmail/mailbox/backend/internal/logger"
	"github.com/stackmail/mailbox/backend/internal/mailparse"
	"github.com/stackmail/mailbox/backend/internal/metrics"
	appmw "github.com/stackmail/mailbox/backend/internal/middleware"
	"github.com/stackmail/mailbox/backend/internal/ratelimit"
	"github.com/stackmail/mailbox/backend/internal/repository"
	"github.com/stackmail/mailbox/backend/internal/sanitizer"
	"github.com/stackmail/mailbox/backend/internal/storage"
)

var version = "dev"

func main() {
	cfg := config.Load()

	appLogger := logger.New(logger.DefaultConfig())

	if cfg.Auth.JWTSecret == "" {
		log.Fatal("JWT_SECRET environment variable is required")
	}

	db, err := setupDatabase(cfg)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer db.Close()

	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	defer redisClient.Close()

	objectStore, err := storage.NewStorageService(&cfg.Storage)
	if err != nil {
		log.Fatalf("Failed to initialize object storage: %v", err)
	}

	// Repositories
	userRepo := repository.NewUserRepo(db)
	messageRepo := repository.NewMessageRepo(db)
	attachmentRepo := repository.NewAttachmentRepo(db)
	sendQueueRepo := repository.NewSendQueueRepo(db)

	// Auth stack
	tokenService := auth.NewTokenService(auth.TokenServiceConfig{
		JWTSecret:         cfg.Auth.JWTSecret,
		AccessTokenExpiry: cfg.Auth.AccessTokenExpiry,
		Issuer:            cfg.Auth.Issuer,
	})
	authService := auth.NewAuthService(userRepo, tokenService, appLogger)
	authHandler := auth.NewAuthHandler(authService, appLogger)
	authMiddleware := appmw.NewAuthMiddleware(authService)

	// Rate limiting
	limiter := ratelimit.NewLimiter(ratelimit.NewRedisStore(redisClient))
	rateLimits := ratelimit.NewMiddleware(limiter, appLogger)

	// Inbound processing
	inboundProcessor := inbound.NewProcessor(inbound.Config{
		Parser:            mailparse.NewLineParser(appLogger),
		Users:             userRepo,
		Messages:          messageRepo,
		Attachments:       attachmentRepo,
		Objects:           objectStore,
		MaxAttachmentSize: cfg.Inbound.MaxAttachmentSize,
		Logger:            appLogger,
	})

	htmlSanitizer := sanitizer.New(true)

	// API handlers
	messageHandler := api.NewMessageHandler(messageRepo, attachmentRepo, objectStore, appLogger)
	sendHandler := api.NewSendHandler(sendQueueRepo, htmlSanitizer, appLogger)
	attachmentHandler := api.NewAttachmentHandler(attachmentRepo, messageRepo, objectStore, appLogger)
	profileHandler := api.NewProfileHandler(userRepo, messageRepo, appLogger)
	inboundHandler := api.NewInboundHandler(inboundProcessor, cfg.Inbound.SharedSecret, appLogger)

	healthHandler := health.NewHandler(health.Config{
		DB:          db,
		RedisClient: redisClient,
		Version:     version,
	})

	// Router
	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(chimw.Recoverer)
	r.Use(chimw.Timeout(60 * time.Second))
	r.Use(appmw.NewLoggingMiddleware(appLogger).Handler)
	r.Use(metrics.Middleware)

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.Server.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		ExposedHeaders:   []string{"X-RateLimit-Limit", "X-RateLimit-Remaining", "X-RateLimit-Reset"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	r.Get("/health", healthHandler.Health)
	r.Get("/ready", healthHandler.Readiness)
	r.Get("/live", healthHandler.Liveness)
	r.Handle("/metrics", metrics.Handler())

	// Ingestion webhook stands outside bearer auth and the /api mount
	r.Post("/inbound/email", inboundHandler.Receive)

	r.Route("/api", func(r chi.Router) {
		auth.RegisterRoutes(r, authHandler, rateLimits.ByIP("login", ratelimit.RuleLogin))

		api.RegisterRoutes(r, api.RouteConfig{
			Messages:    messageHandler,
			Send:        sendHandler,
			Attachments: attachmentHandler,
			Profile:     profileHandler,

			Authenticate:    authMiddleware.Authenticate,
			APILimiter:      rateLimits.ByUser("api_calls", ratelimit.RuleAPICalls),
			SendLimiter:     rateLimits.ByUser("email_send", ratelimit.RuleEmailSend),
			DownloadLimiter: rateLimits.ByUser("attachment_download", ratelimit.RuleAttachmentDownload),
		})
	})

	// Background collectors
	dbStats := metrics.NewDBStatsCollector(db.DB, appLogger)
	dbStats.Start(15 * time.Second)
	defer dbStats.Stop()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	addr := cfg.Server.Host + ":" + cfg.Server.Port
	srv := &http.Server{
		Addr:         addr,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		appLogger.Info("Starting server", "addr", addr, "version", version)
		healthHandler.SetReady(true)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server failed: %v", err)
		}
	}()

	<-ctx.Done()

	appLogger.Info("Shutting down server")
	healthHandler.SetReady(false)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Fatalf("Server forced to shutdown: %v", err)
	}

	appLogger.Info("Server exited")
}

func setupDatabase(cfg *config.Config) (*sqlx.DB, error) {
	db, err := sqlx.Open("pgx", cfg.Database.DSN())
	if err != nil {
		return nil, err
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, err
	}

	return db, nil
}
