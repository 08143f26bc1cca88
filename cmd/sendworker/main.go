package main

import (
	"context"
	"log"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/jmoiron/sqlx"

	"github.com/stackmail/mailbox/backend/internal/cleanup"
	"github.com/stackmail/mailbox/backend/internal/config"
	"github.com/stackmail/mailbox/backend/internal/logger"
	"github.com/stackmail/mailbox/backend/internal/provider"
	"github.com/stackmail/mailbox/backend/internal/repository"
	"github.com/stackmail/mailbox/backend/internal/sendqueue"
	"github.com/stackmail/mailbox/backend/internal/storage"
)

func main() {
	cfg := config.Load()

	appLogger := logger.New(logger.DefaultConfig())

	db, err := setupDatabase(cfg)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer db.Close()

	objectStore, err := storage.NewStorageService(&cfg.Storage)
	if err != nil {
		log.Fatalf("Failed to initialize object storage: %v", err)
	}

	emailProvider, err := provider.Select(&cfg.Providers)
	if err != nil {
		log.Fatalf("Failed to select email provider: %v", err)
	}
	appLogger.Info("Using email provider", "provider", emailProvider.Name())

	messageRepo := repository.NewMessageRepo(db)
	attachmentRepo := repository.NewAttachmentRepo(db)
	sendQueueRepo := repository.NewSendQueueRepo(db)

	processor := sendqueue.NewProcessor(sendqueue.Config{
		Queue:       sendQueueRepo,
		Messages:    messageRepo,
		Provider:    emailProvider,
		FromAddress: cfg.Send.FromAddress,
		FromName:    cfg.Send.FromName,
		BatchSize:   cfg.Send.BatchSize,
		Logger:      appLogger,
	})
	worker := sendqueue.NewWorker(processor, cfg.Send.Interval, appLogger)

	janitor := cleanup.NewJanitor(cleanup.Config{
		Attachments: attachmentRepo,
		Messages:    messageRepo,
		Objects:     objectStore,
		Retention:   cfg.Cleanup.Retention,
		Interval:    cfg.Cleanup.Interval,
		Logger:      appLogger,
	})

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	worker.Start(ctx)
	janitor.Start(ctx)

	appLogger.Info("Send worker started",
		"interval", cfg.Send.Interval,
		"batch_size", cfg.Send.BatchSize,
		"retention", cfg.Cleanup.Retention,
	)

	<-ctx.Done()

	appLogger.Info("Shutting down send worker")
	worker.Stop()
	janitor.Stop()
	appLogger.Info("Send worker exited")
}

func setupDatabase(cfg *config.Config) (*sqlx.DB, error) {
	db, err := sqlx.Open("pgx", cfg.Database.DSN())
	if err != nil {
		return nil, err
	}

	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(2)
	db.SetConnMaxLifetime(5 * time.Minute)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, err
	}

	return db, nil
}
