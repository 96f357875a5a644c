// Command invoiced runs the invoice ingestion HTTP server.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/haulstack/invoice-ingest/internal/common"
	"github.com/haulstack/invoice-ingest/internal/config"
	"github.com/haulstack/invoice-ingest/internal/export"
	"github.com/haulstack/invoice-ingest/internal/extract"
	"github.com/haulstack/invoice-ingest/internal/ocr"
	"github.com/haulstack/invoice-ingest/internal/pipeline"
	"github.com/haulstack/invoice-ingest/internal/repository"
	"github.com/haulstack/invoice-ingest/internal/secrets"
	"github.com/haulstack/invoice-ingest/internal/server"
	"github.com/haulstack/invoice-ingest/internal/storage"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		common.NewLogger("info", "text").Error("failed to load config", "error", err)
		os.Exit(1)
	}
	logger := common.NewLogger(cfg.LogLevel, cfg.LogFormat)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := repository.Open(cfg.DatabasePath, logger)
	if err != nil {
		logger.Error("failed to open database", "error", err)
		os.Exit(1)
	}
	defer db.Close()
	if err := db.Migrate(ctx); err != nil {
		logger.Error("failed to run migrations", "error", err)
		os.Exit(1)
	}
	if err := db.HealthCheck(ctx, 5*time.Second); err != nil {
		logger.Error("database health check failed", "error", err)
		os.Exit(1)
	}

	cipher, err := secrets.NewCipher(cfg.EncryptionKey)
	if err != nil {
		logger.Error("failed to init cipher", "error", err)
		os.Exit(1)
	}
	store, err := storage.NewStore(cfg.StorageDir)
	if err != nil {
		logger.Error("failed to init storage", "error", err)
		os.Exit(1)
	}

	text := ocr.NewExtractor(ocr.Config{
		Pdftotext: cfg.Pdftotext,
		Pdftoppm:  cfg.Pdftoppm,
		Tesseract: cfg.Tesseract,
		DPI:       cfg.OCRDPI,
	}, logger)

	fields, err := extract.FromConfig(cfg, logger)
	if err != nil {
		logger.Error("failed to init extraction providers", "error", err)
		os.Exit(1)
	}
	logger.Info("extraction providers ready", "providers", fields.Providers())

	emails := repository.NewEmailRepository(db, logger)
	attRepo := repository.NewAttachmentRepository(db, logger)
	invRepo := repository.NewInvoiceRepository(db, logger)

	pipe := pipeline.New(pipeline.Options{
		BatchLimit:         cfg.BatchLimit,
		EmailDelay:         cfg.EmailDelay,
		DownloadRetries:    cfg.DownloadRetries,
		DownloadRetryDelay: cfg.DownloadRetryDelay,
	}, emails, attRepo, invRepo, store, text, fields, logger)

	srv := server.New(server.Deps{
		Config:   cfg,
		DB:       db,
		Brokers:  repository.NewBrokerRepository(db, logger),
		Emails:   emails,
		Attach:   attRepo,
		Invoices: invRepo,
		Cipher:   cipher,
		Text:     text,
		Fields:   fields,
		Pipeline: pipe,
		Exporter: export.NewService(invRepo, logger),
		Logger:   logger,
	})

	if err := srv.ListenAndServe(ctx); err != nil {
		logger.Error("server stopped", "error", err)
		os.Exit(1)
	}
	logger.Info("server shut down cleanly")
}
