// Package pipeline runs the end-to-end ingestion flow for one broker:
// list mailbox messages, persist email records, download attachments,
// extract text, run AI field extraction, and store deduplicated invoices.
package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/haulstack/invoice-ingest/constants"
	"github.com/haulstack/invoice-ingest/internal/entity"
	"github.com/haulstack/invoice-ingest/internal/extract"
	"github.com/haulstack/invoice-ingest/internal/mailbox"
	"github.com/haulstack/invoice-ingest/internal/repository"
	"github.com/haulstack/invoice-ingest/internal/storage"
)

// Mailbox is the subset of the IMAP client the pipeline drives.
type Mailbox interface {
	Connect() error
	Disconnect()
	ListMessages(filter mailbox.Filter) ([]mailbox.MessageSummary, error)
	FetchAttachments(messageID string) ([]mailbox.AttachmentFile, error)
}

// TextExtractor produces plain text from a document on disk.
type TextExtractor interface {
	ExtractText(ctx context.Context, path string) (string, error)
}

// FieldExtractor turns invoice text into structured fields.
type FieldExtractor interface {
	Extract(ctx context.Context, text string) (*extract.Result, error)
}

// Options tune batch behavior. Zero values fall back to the defaults the
// batch command ships with.
type Options struct {
	BatchLimit         int
	EmailDelay         time.Duration
	DownloadRetries    int
	DownloadRetryDelay time.Duration
}

func (o Options) withDefaults() Options {
	if o.BatchLimit <= 0 {
		o.BatchLimit = 100
	}
	if o.DownloadRetries <= 0 {
		o.DownloadRetries = 3
	}
	if o.DownloadRetryDelay <= 0 {
		o.DownloadRetryDelay = 2 * time.Second
	}
	return o
}

// Report summarizes one pipeline run.
type Report struct {
	EmailsListed      int      `json:"emails_listed"`
	EmailsProcessed   int      `json:"emails_processed"`
	EmailsDeduped     int      `json:"emails_deduped"`
	AttachmentsStored int      `json:"attachments_stored"`
	InvoicesStored    int      `json:"invoices_stored"`
	InvoicesDeduped   int      `json:"invoices_deduped"`
	Errors            []string `json:"errors,omitempty"`
}

// Pipeline wires the ingestion stages together. One Pipeline serves all
// brokers; the mailbox session is per run.
type Pipeline struct {
	opts    Options
	emails  repository.EmailRepository
	attRepo repository.AttachmentRepository
	invRepo repository.InvoiceRepository
	store   *storage.Store
	text    TextExtractor
	fields  FieldExtractor
	logger  *slog.Logger

	// sleep is swappable in tests.
	sleep func(ctx context.Context, d time.Duration) error
}

func New(
	opts Options,
	emails repository.EmailRepository,
	attRepo repository.AttachmentRepository,
	invRepo repository.InvoiceRepository,
	store *storage.Store,
	text TextExtractor,
	fields FieldExtractor,
	logger *slog.Logger,
) *Pipeline {
	return &Pipeline{
		opts:    opts.withDefaults(),
		emails:  emails,
		attRepo: attRepo,
		invRepo: invRepo,
		store:   store,
		text:    text,
		fields:  fields,
		logger:  logger,
		sleep:   sleepCtx,
	}
}

// Run processes one broker's mailbox. Per-email failures are recorded in the
// report and never abort the batch; only connection-level and context errors
// surface as the returned error.
func (p *Pipeline) Run(ctx context.Context, broker *entity.Broker, mbox Mailbox, filter mailbox.Filter) (*Report, error) {
	report := &Report{}

	if err := mbox.Connect(); err != nil {
		return report, fmt.Errorf("connect mailbox for broker %s: %w", broker.Name, err)
	}
	defer mbox.Disconnect()

	messages, err := mbox.ListMessages(filter)
	if err != nil {
		return report, fmt.Errorf("list messages: %w", err)
	}
	report.EmailsListed = len(messages)
	if len(messages) > p.opts.BatchLimit {
		p.logger.Warn("pipeline.batch.capped", "listed", len(messages), "limit", p.opts.BatchLimit)
		messages = messages[:p.opts.BatchLimit]
	}

	// Pace requests against the mail server and the AI providers.
	limiter := rate.NewLimiter(rate.Inf, 1)
	if p.opts.EmailDelay > 0 {
		limiter = rate.NewLimiter(rate.Every(p.opts.EmailDelay), 1)
	}

	for _, msg := range messages {
		if err := limiter.Wait(ctx); err != nil {
			return report, err
		}
		if err := p.processEmail(ctx, broker, mbox, msg, report); err != nil {
			if ctx.Err() != nil {
				return report, ctx.Err()
			}
			p.logger.Error("pipeline.email.failed",
				"broker", broker.Name, "message_id", msg.MessageID, "error", err)
			report.Errors = append(report.Errors, fmt.Sprintf("%s: %v", msg.MessageID, err))
			continue
		}
		report.EmailsProcessed++
	}

	p.logger.Info("pipeline.run.completed",
		"broker", broker.Name,
		"listed", report.EmailsListed,
		"processed", report.EmailsProcessed,
		"invoices_stored", report.InvoicesStored,
		"invoices_deduped", report.InvoicesDeduped,
		"errors", len(report.Errors))
	return report, nil
}

func (p *Pipeline) processEmail(ctx context.Context, broker *entity.Broker, mbox Mailbox, msg mailbox.MessageSummary, report *Report) error {
	if msg.MessageID == "" {
		p.logger.Warn("pipeline.email.no_message_id", "subject", msg.Subject, "from", msg.From)
		return nil
	}

	email, existed, err := p.emails.UpsertByMessageID(ctx, broker.ID, msg.MessageID, msg.From, msg.Subject, msg.Date)
	if err != nil {
		return err
	}
	if existed {
		report.EmailsDeduped++
	}

	attachments, err := p.ensureAttachments(ctx, mbox, email, report)
	if err != nil {
		return err
	}
	if len(attachments) == 0 {
		p.logger.Info("pipeline.email.no_attachments", "message_id", msg.MessageID)
		return nil
	}

	for _, att := range attachments {
		if att.FileType != constants.PDF {
			p.logger.Info("pipeline.attachment.skipped", "path", att.FilePath, "file_type", att.FileType)
			continue
		}
		if err := p.processInvoicePDF(ctx, broker, email, att, report); err != nil {
			if ctx.Err() != nil {
				return err
			}
			p.logger.Warn("pipeline.attachment.failed", "path", att.FilePath, "error", err)
			report.Errors = append(report.Errors, fmt.Sprintf("%s: %v", filepath.Base(att.FilePath), err))
		}
	}
	return nil
}

// DownloadAttachments fetches, stores, and records the attachments for one
// email outside a batch run. Stored attachments still on disk are reused.
func (p *Pipeline) DownloadAttachments(ctx context.Context, mbox Mailbox, email *entity.Email) ([]*entity.Attachment, error) {
	return p.ensureAttachments(ctx, mbox, email, &Report{})
}

// ensureAttachments reuses stored attachments when every file is still on
// disk; otherwise clears the stale rows and re-downloads the full set.
func (p *Pipeline) ensureAttachments(ctx context.Context, mbox Mailbox, email *entity.Email, report *Report) ([]*entity.Attachment, error) {
	stored, err := p.attRepo.ListByEmail(ctx, email.ID)
	if err != nil {
		return nil, err
	}
	if len(stored) > 0 {
		complete := true
		for _, att := range stored {
			if !p.store.Exists(att.FilePath) {
				complete = false
				break
			}
		}
		if complete {
			return stored, nil
		}
		p.logger.Warn("pipeline.attachments.incomplete", "email_id", email.ID, "stored", len(stored))
		if err := p.attRepo.DeleteByEmail(ctx, email.ID); err != nil {
			return nil, err
		}
	}

	files, err := p.fetchWithRetry(ctx, mbox, email.MessageID)
	if err != nil {
		return nil, err
	}

	var out []*entity.Attachment
	for _, f := range files {
		ext := constants.NormalizeExt(filepath.Ext(f.Filename))
		if _, ok := constants.AllowedExtensions[ext]; !ok {
			p.logger.Info("pipeline.attachment.unsupported", "filename", f.Filename)
			continue
		}
		path, err := p.store.SaveAttachment(email.ID.String(), f.Filename, f.Content)
		if err != nil {
			return out, err
		}
		att, err := p.attRepo.Create(ctx, email.ID, path, constants.MapExtToFormat(ext))
		if err != nil {
			return out, err
		}
		report.AttachmentsStored++
		out = append(out, att)
	}
	return out, nil
}

func (p *Pipeline) fetchWithRetry(ctx context.Context, mbox Mailbox, messageID string) ([]mailbox.AttachmentFile, error) {
	var lastErr error
	for attempt := 1; attempt <= p.opts.DownloadRetries; attempt++ {
		files, err := mbox.FetchAttachments(messageID)
		if err == nil {
			return files, nil
		}
		lastErr = err
		p.logger.Warn("pipeline.download.retry",
			"message_id", messageID, "attempt", attempt, "error", err)
		if attempt < p.opts.DownloadRetries {
			if err := p.sleep(ctx, p.opts.DownloadRetryDelay); err != nil {
				return nil, err
			}
		}
	}
	return nil, fmt.Errorf("download attachments after %d attempts: %w", p.opts.DownloadRetries, lastErr)
}

func (p *Pipeline) processInvoicePDF(ctx context.Context, broker *entity.Broker, email *entity.Email, att *entity.Attachment, report *Report) error {
	text, err := p.text.ExtractText(ctx, att.FilePath)
	if err != nil {
		return fmt.Errorf("extract text: %w", err)
	}
	if strings.TrimSpace(text) == "" {
		p.logger.Warn("pipeline.pdf.no_text", "path", att.FilePath)
		return nil
	}

	res, err := p.fields.Extract(ctx, text)
	if err != nil {
		return fmt.Errorf("field extraction: %w", err)
	}
	if res.FellBack {
		p.logger.Info("pipeline.extract.fellback", "provider", res.Provider)
	}

	req := buildInvoiceRequest(broker.ID, email, att.FilePath, res)
	_, existed, err := p.invRepo.UpsertByNumber(ctx, req)
	if err != nil {
		return err
	}
	if existed {
		report.InvoicesDeduped++
	} else {
		report.InvoicesStored++
	}
	return nil
}
