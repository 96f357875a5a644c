package pipeline

import (
	"context"
	"errors"
	"log/slog"
	"path/filepath"
	"testing"
	"time"

	"github.com/haulstack/invoice-ingest/internal/entity"
	"github.com/haulstack/invoice-ingest/internal/extract"
	"github.com/haulstack/invoice-ingest/internal/llm"
	"github.com/haulstack/invoice-ingest/internal/mailbox"
	"github.com/haulstack/invoice-ingest/internal/repository"
	"github.com/haulstack/invoice-ingest/internal/storage"
)

type discard struct{}

func (discard) Write(p []byte) (int, error) { return len(p), nil }

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(discard{}, &slog.HandlerOptions{Level: slog.LevelError}))
}

// fakeMailbox serves a scripted message list and attachment sets, with an
// optional number of FetchAttachments failures before success.
type fakeMailbox struct {
	messages    []mailbox.MessageSummary
	attachments map[string][]mailbox.AttachmentFile
	failFetches int

	fetchCalls int
	connected  bool
}

func (f *fakeMailbox) Connect() error { f.connected = true; return nil }
func (f *fakeMailbox) Disconnect()    { f.connected = false }

func (f *fakeMailbox) ListMessages(filter mailbox.Filter) ([]mailbox.MessageSummary, error) {
	return f.messages, nil
}

func (f *fakeMailbox) FetchAttachments(messageID string) ([]mailbox.AttachmentFile, error) {
	f.fetchCalls++
	if f.fetchCalls <= f.failFetches {
		return nil, errors.New("connection reset")
	}
	return f.attachments[messageID], nil
}

type fakeText struct {
	text string
	err  error
}

func (f *fakeText) ExtractText(ctx context.Context, path string) (string, error) {
	return f.text, f.err
}

type fakeFields struct {
	result *extract.Result
	err    error
	calls  int
}

func (f *fakeFields) Extract(ctx context.Context, text string) (*extract.Result, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return f.result, nil
}

func strp(s string) *string   { return &s }
func f64p(v float64) *float64 { return &v }

type env struct {
	pipeline *Pipeline
	broker   *entity.Broker
	emails   repository.EmailRepository
	attRepo  repository.AttachmentRepository
	invRepo  repository.InvoiceRepository
	db       *repository.DB
}

func newEnv(t *testing.T, text TextExtractor, fields FieldExtractor) *env {
	t.Helper()
	logger := testLogger()

	db, err := repository.Open(filepath.Join(t.TempDir(), "test.db"), logger)
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	if err := db.Migrate(context.Background()); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	broker, err := repository.NewBrokerRepository(db, logger).Create(context.Background(), "Acme Brokerage", "mail.example.com", "ap@example.com", "enc")
	if err != nil {
		t.Fatalf("create broker: %v", err)
	}

	store, err := storage.NewStore(t.TempDir())
	if err != nil {
		t.Fatalf("new store: %v", err)
	}

	emails := repository.NewEmailRepository(db, logger)
	attRepo := repository.NewAttachmentRepository(db, logger)
	invRepo := repository.NewInvoiceRepository(db, logger)

	p := New(Options{EmailDelay: 0, DownloadRetryDelay: time.Millisecond}, emails, attRepo, invRepo, store, text, fields, logger)
	p.sleep = func(ctx context.Context, d time.Duration) error { return nil }

	return &env{pipeline: p, broker: broker, emails: emails, attRepo: attRepo, invRepo: invRepo, db: db}
}

func oneMessageMailbox() *fakeMailbox {
	return &fakeMailbox{
		messages: []mailbox.MessageSummary{{
			UID:       7,
			MessageID: "<inv-1@broker.example.com>",
			From:      "billing@broker.example.com",
			Subject:   "Invoice INV-100",
			Date:      time.Date(2026, 8, 30, 12, 0, 0, 0, time.UTC),
		}},
		attachments: map[string][]mailbox.AttachmentFile{
			"<inv-1@broker.example.com>": {
				{Filename: "invoice-100.pdf", Content: []byte("%PDF-1.4 fake")},
				{Filename: "logo.gif", Content: []byte("GIF89a")},
			},
		},
	}
}

func extractedResult() *extract.Result {
	return &extract.Result{
		Fields: llm.InvoiceFields{
			InvoiceNumber: strp("INV-100"),
			Carrier:       strp("Knight Logistics"),
			Amount:        f64p(1450.25),
			Currency:      strp("usd"),
			DueDate:       strp("2026-09-30"),
		},
		RawJSON:  []byte(`{"invoice_number":"INV-100"}`),
		Provider: "gemini",
	}
}

func TestRun_SingleEmailSinglePDF(t *testing.T) {
	e := newEnv(t, &fakeText{text: "Invoice INV-100 from Knight Logistics, total $1450.25"}, &fakeFields{result: extractedResult()})
	mbox := oneMessageMailbox()

	report, err := e.pipeline.Run(context.Background(), e.broker, mbox, mailbox.Filter{})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if report.EmailsProcessed != 1 || report.InvoicesStored != 1 || report.InvoicesDeduped != 0 {
		t.Fatalf("report = %+v", report)
	}
	// The gif is filtered out before storage.
	if report.AttachmentsStored != 1 {
		t.Fatalf("attachments stored = %d", report.AttachmentsStored)
	}
	if len(report.Errors) != 0 {
		t.Fatalf("errors = %v", report.Errors)
	}

	inv, err := e.invRepo.GetByBrokerAndNumber(context.Background(), e.broker.ID, "INV-100")
	if err != nil {
		t.Fatalf("get invoice: %v", err)
	}
	if inv.Carrier != "Knight Logistics" || inv.Amount != 1450.25 || inv.Currency != "USD" {
		t.Fatalf("invoice = %+v", inv)
	}
	if inv.Status != "UNPAID" {
		t.Fatalf("status = %s", inv.Status)
	}
	if inv.DueDate == nil || inv.DueDate.Format("2006-01-02") != "2026-09-30" {
		t.Fatalf("due date = %v", inv.DueDate)
	}
}

func TestRun_SecondRunIsIdempotent(t *testing.T) {
	text := &fakeText{text: "Invoice INV-100"}
	fields := &fakeFields{result: extractedResult()}
	e := newEnv(t, text, fields)
	mbox := oneMessageMailbox()

	if _, err := e.pipeline.Run(context.Background(), e.broker, mbox, mailbox.Filter{}); err != nil {
		t.Fatalf("first run: %v", err)
	}
	report, err := e.pipeline.Run(context.Background(), e.broker, mbox, mailbox.Filter{})
	if err != nil {
		t.Fatalf("second run: %v", err)
	}

	if report.EmailsDeduped != 1 || report.InvoicesStored != 0 || report.InvoicesDeduped != 1 {
		t.Fatalf("report = %+v", report)
	}
	// Attachments survived on disk, so no re-download happened.
	if report.AttachmentsStored != 0 {
		t.Fatalf("attachments stored = %d", report.AttachmentsStored)
	}
	if mbox.fetchCalls != 1 {
		t.Fatalf("fetch calls = %d, want 1", mbox.fetchCalls)
	}

	invoices, err := e.invRepo.Query(context.Background(), e.broker.ID, repository.InvoiceFilter{})
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if len(invoices) != 1 {
		t.Fatalf("invoice rows = %d, want 1", len(invoices))
	}
}

func TestRun_DownloadRetriesThenSucceeds(t *testing.T) {
	e := newEnv(t, &fakeText{text: "Invoice INV-100"}, &fakeFields{result: extractedResult()})
	mbox := oneMessageMailbox()
	mbox.failFetches = 2 // succeed on the third attempt

	report, err := e.pipeline.Run(context.Background(), e.broker, mbox, mailbox.Filter{})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if mbox.fetchCalls != 3 {
		t.Fatalf("fetch calls = %d, want 3", mbox.fetchCalls)
	}
	if report.InvoicesStored != 1 {
		t.Fatalf("report = %+v", report)
	}
}

func TestRun_DownloadFailureRecordedNotFatal(t *testing.T) {
	e := newEnv(t, &fakeText{text: "x"}, &fakeFields{result: extractedResult()})
	mbox := oneMessageMailbox()
	mbox.failFetches = 99

	report, err := e.pipeline.Run(context.Background(), e.broker, mbox, mailbox.Filter{})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(report.Errors) != 1 || report.InvoicesStored != 0 {
		t.Fatalf("report = %+v", report)
	}
	if mbox.fetchCalls != 3 {
		t.Fatalf("fetch calls = %d, want default retries 3", mbox.fetchCalls)
	}
}

func TestRun_EmptyTextSkipsExtraction(t *testing.T) {
	fields := &fakeFields{result: extractedResult()}
	e := newEnv(t, &fakeText{text: "   \n"}, fields)

	report, err := e.pipeline.Run(context.Background(), e.broker, oneMessageMailbox(), mailbox.Filter{})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if fields.calls != 0 {
		t.Fatal("field extraction should not run on empty text")
	}
	if report.InvoicesStored != 0 || len(report.Errors) != 0 {
		t.Fatalf("report = %+v", report)
	}
}

func TestRun_ExtractionFailureContinuesBatch(t *testing.T) {
	e := newEnv(t, &fakeText{text: "some text"}, &fakeFields{err: errors.New("all providers failed")})

	report, err := e.pipeline.Run(context.Background(), e.broker, oneMessageMailbox(), mailbox.Filter{})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if report.EmailsProcessed != 1 || len(report.Errors) != 1 {
		t.Fatalf("report = %+v", report)
	}
}

func TestRun_MissingFieldsGetDeterministicDefaults(t *testing.T) {
	res := &extract.Result{
		Fields:   llm.InvoiceFields{},
		RawJSON:  []byte(`{}`),
		Provider: "ollama",
	}
	e := newEnv(t, &fakeText{text: "unreadable scan"}, &fakeFields{result: res})
	mbox := oneMessageMailbox()

	if _, err := e.pipeline.Run(context.Background(), e.broker, mbox, mailbox.Filter{}); err != nil {
		t.Fatalf("Run: %v", err)
	}
	invoices, err := e.invRepo.Query(context.Background(), e.broker.ID, repository.InvoiceFilter{})
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if len(invoices) != 1 {
		t.Fatalf("invoice rows = %d", len(invoices))
	}
	inv := invoices[0]
	if inv.Carrier != "Unknown" || inv.Currency != "USD" || inv.Amount != 0 {
		t.Fatalf("defaults not applied: %+v", inv)
	}
	wantPrefix := "MISSING-" + inv.EmailID.String()[:8] + "-"
	if len(inv.InvoiceNumber) <= len(wantPrefix) || inv.InvoiceNumber[:len(wantPrefix)] != wantPrefix {
		t.Fatalf("invoice number = %s, want prefix %s", inv.InvoiceNumber, wantPrefix)
	}

	// A rerun maps to the same fallback number, so no duplicate row.
	report, err := e.pipeline.Run(context.Background(), e.broker, mbox, mailbox.Filter{})
	if err != nil {
		t.Fatalf("rerun: %v", err)
	}
	if report.InvoicesStored != 0 || report.InvoicesDeduped != 1 {
		t.Fatalf("rerun report = %+v", report)
	}
}

func TestRun_BatchLimitCapsMessages(t *testing.T) {
	e := newEnv(t, &fakeText{text: ""}, &fakeFields{result: extractedResult()})
	e.pipeline.opts.BatchLimit = 2

	mbox := &fakeMailbox{}
	for i := 0; i < 5; i++ {
		mbox.messages = append(mbox.messages, mailbox.MessageSummary{
			MessageID: "<m" + string(rune('a'+i)) + "@x>",
			Date:      time.Now(),
		})
	}

	report, err := e.pipeline.Run(context.Background(), e.broker, mbox, mailbox.Filter{})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if report.EmailsListed != 5 || report.EmailsProcessed != 2 {
		t.Fatalf("report = %+v", report)
	}
}
