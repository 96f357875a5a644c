// Command invoice-batch runs one ingestion pass over broker mailboxes and
// exits. It is meant to be driven by cron.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"

	"github.com/haulstack/invoice-ingest/internal/common"
	"github.com/haulstack/invoice-ingest/internal/config"
	"github.com/haulstack/invoice-ingest/internal/entity"
	"github.com/haulstack/invoice-ingest/internal/extract"
	"github.com/haulstack/invoice-ingest/internal/mailbox"
	"github.com/haulstack/invoice-ingest/internal/ocr"
	"github.com/haulstack/invoice-ingest/internal/pipeline"
	"github.com/haulstack/invoice-ingest/internal/repository"
	"github.com/haulstack/invoice-ingest/internal/secrets"
	"github.com/haulstack/invoice-ingest/internal/storage"
)

func main() {
	var (
		brokerID = flag.String("broker", "", "broker id to ingest; empty means every broker")
		window   = flag.Duration("window", 24*time.Hour, "how far back to search the mailbox")
		subject  = flag.String("subject", "", "only messages whose subject contains this")
		from     = flag.String("from", "", "only messages from senders containing this")
	)
	flag.Parse()

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

	fields, err := extract.FromConfig(cfg, logger)
	if err != nil {
		logger.Error("failed to init extraction providers", "error", err)
		os.Exit(1)
	}
	text := ocr.NewExtractor(ocr.Config{
		Pdftotext: cfg.Pdftotext,
		Pdftoppm:  cfg.Pdftoppm,
		Tesseract: cfg.Tesseract,
		DPI:       cfg.OCRDPI,
	}, logger)

	brokerRepo := repository.NewBrokerRepository(db, logger)
	pipe := pipeline.New(pipeline.Options{
		BatchLimit:         cfg.BatchLimit,
		EmailDelay:         cfg.EmailDelay,
		DownloadRetries:    cfg.DownloadRetries,
		DownloadRetryDelay: cfg.DownloadRetryDelay,
	},
		repository.NewEmailRepository(db, logger),
		repository.NewAttachmentRepository(db, logger),
		repository.NewInvoiceRepository(db, logger),
		store, text, fields, logger)

	var brokers []*entity.Broker
	if *brokerID != "" {
		id, err := uuid.Parse(*brokerID)
		if err != nil {
			logger.Error("invalid broker id", "broker", *brokerID)
			os.Exit(2)
		}
		broker, err := brokerRepo.GetByID(ctx, id)
		if err != nil {
			logger.Error("broker not found", "broker", *brokerID, "error", err)
			os.Exit(2)
		}
		brokers = []*entity.Broker{broker}
	} else {
		brokers, err = brokerRepo.List(ctx)
		if err != nil {
			logger.Error("failed to list brokers", "error", err)
			os.Exit(1)
		}
	}

	filter := mailbox.Filter{
		Since:           time.Now().Add(-*window),
		SubjectContains: *subject,
		From:            *from,
	}

	failed := false
	reports := make(map[string]*pipeline.Report, len(brokers))
	for _, broker := range brokers {
		password, err := cipher.Decrypt(broker.EmailPassword)
		if err != nil {
			logger.Error("failed to decrypt mailbox password", "broker", broker.Name, "error", err)
			failed = true
			continue
		}
		mbox := mailbox.NewClient(mailbox.ClientConfig{
			Host:        broker.EmailHost,
			User:        broker.EmailUser,
			Password:    password,
			DialTimeout: cfg.IMAPDialTimeout,
		}, logger)

		report, err := pipe.Run(ctx, broker, mbox, filter)
		if err != nil {
			logger.Error("pipeline run failed", "broker", broker.Name, "error", err)
			failed = true
		}
		reports[broker.Name] = report
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(reports); err != nil {
		logger.Error("failed to write report", "error", err)
	}
	if failed {
		os.Exit(1)
	}
}
