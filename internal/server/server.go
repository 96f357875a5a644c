// Package server exposes the ingestion operations over HTTP.
package server

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/haulstack/invoice-ingest/internal/config"
	"github.com/haulstack/invoice-ingest/internal/entity"
	"github.com/haulstack/invoice-ingest/internal/export"
	"github.com/haulstack/invoice-ingest/internal/extract"
	"github.com/haulstack/invoice-ingest/internal/mailbox"
	"github.com/haulstack/invoice-ingest/internal/pipeline"
	"github.com/haulstack/invoice-ingest/internal/repository"
	"github.com/haulstack/invoice-ingest/internal/secrets"
)

// TextExtractor mirrors the pipeline's text extraction dependency so
// handlers can parse a single PDF outside a batch run.
type TextExtractor = pipeline.TextExtractor

// FieldExtractor extends the pipeline's AI extraction dependency with a
// per-request provider override for the one-off parse endpoint.
type FieldExtractor interface {
	pipeline.FieldExtractor
	ExtractPreferring(ctx context.Context, text, preferred string) (*extract.Result, error)
}

// Server holds every dependency the HTTP handlers need.
type Server struct {
	cfg      *config.Config
	db       *repository.DB
	brokers  repository.BrokerRepository
	emails   repository.EmailRepository
	attRepo  repository.AttachmentRepository
	invRepo  repository.InvoiceRepository
	cipher   *secrets.Cipher
	text     TextExtractor
	fields   FieldExtractor
	pipeline *pipeline.Pipeline
	exporter *export.Service
	logger   *slog.Logger

	// dial builds a mailbox session for a broker; swapped in tests.
	dial func(cfg mailbox.ClientConfig) pipeline.Mailbox
}

type Deps struct {
	Config   *config.Config
	DB       *repository.DB
	Brokers  repository.BrokerRepository
	Emails   repository.EmailRepository
	Attach   repository.AttachmentRepository
	Invoices repository.InvoiceRepository
	Cipher   *secrets.Cipher
	Text     TextExtractor
	Fields   FieldExtractor
	Pipeline *pipeline.Pipeline
	Exporter *export.Service
	Logger   *slog.Logger
}

func New(d Deps) *Server {
	s := &Server{
		cfg:      d.Config,
		db:       d.DB,
		brokers:  d.Brokers,
		emails:   d.Emails,
		attRepo:  d.Attach,
		invRepo:  d.Invoices,
		cipher:   d.Cipher,
		text:     d.Text,
		fields:   d.Fields,
		pipeline: d.Pipeline,
		exporter: d.Exporter,
		logger:   d.Logger,
	}
	s.dial = func(cfg mailbox.ClientConfig) pipeline.Mailbox {
		return mailbox.NewClient(cfg, d.Logger)
	}
	return s
}

// Router builds the chi mux with all routes mounted.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.logRequests)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(10 * time.Minute))

	r.Get("/healthz", s.handleHealth)

	r.Route("/api/v1", func(r chi.Router) {
		r.Post("/brokers", s.handleCreateBroker)
		r.Get("/brokers", s.handleListBrokers)

		r.Route("/brokers/{brokerID}", func(r chi.Router) {
			r.Post("/fetch-emails", s.handleFetchEmails)
			r.Post("/ingest", s.handleRunPipeline)
			r.Get("/invoices", s.handleQueryInvoices)
			r.Get("/invoices/export", s.handleExportInvoices)
		})

		r.Post("/emails/{emailID}/download-attachments", s.handleDownloadAttachments)
		r.Post("/parse-invoice-pdf", s.handleParsePDF)
		r.Post("/invoices", s.handleStoreInvoice)
	})
	return r
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		s.logger.Info("http.request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"bytes", ww.BytesWritten(),
			"duration", time.Since(start),
			"request_id", middleware.GetReqID(r.Context()))
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if err := s.db.HealthCheck(r.Context(), 2*time.Second); err != nil {
		writeError(w, s.logger, http.StatusServiceUnavailable, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// mailboxFor decrypts the broker's credentials and opens a session config.
func (s *Server) mailboxFor(broker *entity.Broker) (pipeline.Mailbox, error) {
	password, err := s.cipher.Decrypt(broker.EmailPassword)
	if err != nil {
		return nil, err
	}
	return s.dial(mailbox.ClientConfig{
		Host:        broker.EmailHost,
		User:        broker.EmailUser,
		Password:    password,
		DialTimeout: s.cfg.IMAPDialTimeout,
	}), nil
}

// ListenAndServe runs the HTTP server until ctx is canceled, then shuts
// down gracefully.
func (s *Server) ListenAndServe(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.cfg.HTTPAddr,
		Handler:           s.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("http.server.started", "addr", s.cfg.HTTPAddr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	case err := <-errCh:
		return err
	}
}
