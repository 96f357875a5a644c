package server

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/haulstack/invoice-ingest/internal/config"
	"github.com/haulstack/invoice-ingest/internal/entity"
	"github.com/haulstack/invoice-ingest/internal/export"
	"github.com/haulstack/invoice-ingest/internal/extract"
	"github.com/haulstack/invoice-ingest/internal/llm"
	"github.com/haulstack/invoice-ingest/internal/mailbox"
	"github.com/haulstack/invoice-ingest/internal/pipeline"
	"github.com/haulstack/invoice-ingest/internal/repository"
	"github.com/haulstack/invoice-ingest/internal/secrets"
	"github.com/haulstack/invoice-ingest/internal/storage"
)

type discard struct{}

func (discard) Write(p []byte) (int, error) { return len(p), nil }

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(discard{}, &slog.HandlerOptions{Level: slog.LevelError}))
}

type fakeMailbox struct {
	messages    []mailbox.MessageSummary
	attachments map[string][]mailbox.AttachmentFile
}

func (f *fakeMailbox) Connect() error { return nil }
func (f *fakeMailbox) Disconnect()    {}

func (f *fakeMailbox) ListMessages(filter mailbox.Filter) ([]mailbox.MessageSummary, error) {
	return f.messages, nil
}

func (f *fakeMailbox) FetchAttachments(messageID string) ([]mailbox.AttachmentFile, error) {
	return f.attachments[messageID], nil
}

type fakeText struct{ text string }

func (f *fakeText) ExtractText(ctx context.Context, path string) (string, error) {
	return f.text, nil
}

type fakeFields struct{ result *extract.Result }

func (f *fakeFields) Extract(ctx context.Context, text string) (*extract.Result, error) {
	return f.result, nil
}

func (f *fakeFields) ExtractPreferring(ctx context.Context, text, preferred string) (*extract.Result, error) {
	return f.result, nil
}

func strp(s string) *string { return &s }

func newTestServer(t *testing.T, mbox *fakeMailbox) *Server {
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

	cipher, err := secrets.NewCipher("0123456789abcdef0123456789abcdef")
	if err != nil {
		t.Fatalf("cipher: %v", err)
	}
	store, err := storage.NewStore(t.TempDir())
	if err != nil {
		t.Fatalf("store: %v", err)
	}

	emails := repository.NewEmailRepository(db, logger)
	attRepo := repository.NewAttachmentRepository(db, logger)
	invRepo := repository.NewInvoiceRepository(db, logger)

	amount := 99.5
	fields := &fakeFields{result: &extract.Result{
		Fields:   llm.InvoiceFields{InvoiceNumber: strp("INV-1"), Carrier: strp("Acme"), Amount: &amount},
		RawJSON:  []byte(`{"invoice_number":"INV-1"}`),
		Provider: "gemini",
	}}
	text := &fakeText{text: "Invoice INV-1 total 99.50"}

	pipe := pipeline.New(pipeline.Options{EmailDelay: 0, DownloadRetryDelay: time.Millisecond},
		emails, attRepo, invRepo, store, text, fields, logger)

	s := New(Deps{
		Config:   &config.Config{HTTPAddr: ":0", IMAPDialTimeout: time.Second},
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
	s.dial = func(cfg mailbox.ClientConfig) pipeline.Mailbox { return mbox }
	return s
}

func doJSON(t *testing.T, h http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func createBroker(t *testing.T, h http.Handler) *entity.Broker {
	t.Helper()
	rec := doJSON(t, h, http.MethodPost, "/api/v1/brokers", map[string]string{
		"name":           "Acme Brokerage",
		"email_host":     "mail.example.com",
		"email_user":     "ap@example.com",
		"email_password": "hunter2",
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("create broker: status %d body %s", rec.Code, rec.Body.String())
	}
	var broker entity.Broker
	if err := json.Unmarshal(rec.Body.Bytes(), &broker); err != nil {
		t.Fatalf("decode broker: %v", err)
	}
	return &broker
}

func TestCreateBroker_EncryptsPassword(t *testing.T) {
	s := newTestServer(t, &fakeMailbox{})
	h := s.Router()

	broker := createBroker(t, h)
	stored, err := s.brokers.GetByID(context.Background(), broker.ID)
	if err != nil {
		t.Fatalf("get broker: %v", err)
	}
	if stored.EmailPassword == "hunter2" || stored.EmailPassword == "" {
		t.Fatalf("password stored in the clear: %q", stored.EmailPassword)
	}
	plain, err := s.cipher.Decrypt(stored.EmailPassword)
	if err != nil || plain != "hunter2" {
		t.Fatalf("decrypt round trip: %q, %v", plain, err)
	}
}

func TestCreateBroker_Validation(t *testing.T) {
	s := newTestServer(t, &fakeMailbox{})
	h := s.Router()

	rec := doJSON(t, h, http.MethodPost, "/api/v1/brokers", map[string]string{"name": "no creds"})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d", rec.Code)
	}
}

func TestFetchEmails_PersistsAndDedupes(t *testing.T) {
	mbox := &fakeMailbox{
		messages: []mailbox.MessageSummary{
			{MessageID: "<a@x>", From: "a@x", Subject: "Invoice A", Date: time.Now()},
			{MessageID: "<b@x>", From: "b@x", Subject: "Invoice B", Date: time.Now()},
		},
	}
	s := newTestServer(t, mbox)
	h := s.Router()
	broker := createBroker(t, h)

	rec := doJSON(t, h, http.MethodPost, "/api/v1/brokers/"+broker.ID.String()+"/fetch-emails", map[string]any{})
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d body %s", rec.Code, rec.Body.String())
	}
	var resp fetchEmailsResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if resp.New != 2 || resp.Deduped != 0 {
		t.Fatalf("resp = %+v", resp)
	}

	rec = doJSON(t, h, http.MethodPost, "/api/v1/brokers/"+broker.ID.String()+"/fetch-emails", map[string]any{})
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if resp.New != 0 || resp.Deduped != 2 {
		t.Fatalf("second fetch = %+v", resp)
	}
}

func TestRunPipeline_EndToEnd(t *testing.T) {
	mbox := &fakeMailbox{
		messages: []mailbox.MessageSummary{
			{MessageID: "<inv@x>", From: "billing@x", Subject: "Invoice", Date: time.Now()},
		},
		attachments: map[string][]mailbox.AttachmentFile{
			"<inv@x>": {{Filename: "inv.pdf", Content: []byte("%PDF")}},
		},
	}
	s := newTestServer(t, mbox)
	h := s.Router()
	broker := createBroker(t, h)

	rec := doJSON(t, h, http.MethodPost, "/api/v1/brokers/"+broker.ID.String()+"/ingest", map[string]any{})
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d body %s", rec.Code, rec.Body.String())
	}
	var report pipeline.Report
	if err := json.Unmarshal(rec.Body.Bytes(), &report); err != nil {
		t.Fatal(err)
	}
	if report.InvoicesStored != 1 {
		t.Fatalf("report = %+v", report)
	}

	rec = doJSON(t, h, http.MethodGet, "/api/v1/brokers/"+broker.ID.String()+"/invoices?status=UNPAID", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("query status = %d", rec.Code)
	}
	var invoices []*entity.Invoice
	if err := json.Unmarshal(rec.Body.Bytes(), &invoices); err != nil {
		t.Fatal(err)
	}
	if len(invoices) != 1 || invoices[0].InvoiceNumber != "INV-1" {
		t.Fatalf("invoices = %+v", invoices)
	}
}

func TestQueryInvoices_RejectsBadStatus(t *testing.T) {
	s := newTestServer(t, &fakeMailbox{})
	h := s.Router()
	broker := createBroker(t, h)

	rec := doJSON(t, h, http.MethodGet, "/api/v1/brokers/"+broker.ID.String()+"/invoices?status=OVERDUE", nil)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d", rec.Code)
	}
}

func TestStoreInvoice_Dedupes(t *testing.T) {
	s := newTestServer(t, &fakeMailbox{})
	h := s.Router()
	broker := createBroker(t, h)

	email, _, err := s.emails.UpsertByMessageID(context.Background(), broker.ID, "<m@x>", "a@x", "inv", time.Now())
	if err != nil {
		t.Fatal(err)
	}

	body := map[string]any{
		"broker_id":      broker.ID,
		"email_id":       email.ID,
		"pdf_path":       "/tmp/inv.pdf",
		"invoice_number": "INV-9",
		"carrier":        "Acme",
		"amount":         10.0,
		"currency":       "USD",
		"due_date":       "2026-10-01",
	}
	rec := doJSON(t, h, http.MethodPost, "/api/v1/invoices", body)
	if rec.Code != http.StatusCreated {
		t.Fatalf("first store: %d body %s", rec.Code, rec.Body.String())
	}
	rec = doJSON(t, h, http.MethodPost, "/api/v1/invoices", body)
	if rec.Code != http.StatusOK {
		t.Fatalf("second store: %d", rec.Code)
	}
	var resp storeInvoiceResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if !resp.Deduped {
		t.Fatal("expected deduped")
	}
}

func TestExportInvoices_SetsAttachmentHeaders(t *testing.T) {
	s := newTestServer(t, &fakeMailbox{})
	h := s.Router()
	broker := createBroker(t, h)

	rec := doJSON(t, h, http.MethodGet, "/api/v1/brokers/"+broker.ID.String()+"/invoices/export", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); !strings.Contains(ct, "spreadsheetml") {
		t.Fatalf("content type = %s", ct)
	}
	if cd := rec.Header().Get("Content-Disposition"); !strings.Contains(cd, broker.ID.String()) {
		t.Fatalf("content disposition = %s", cd)
	}
}

func TestParsePDF_ReturnsFields(t *testing.T) {
	s := newTestServer(t, &fakeMailbox{})
	h := s.Router()

	rec := doJSON(t, h, http.MethodPost, "/api/v1/parse-invoice-pdf", map[string]string{"pdf_path": "/tmp/inv.pdf"})
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d body %s", rec.Code, rec.Body.String())
	}
	var resp parsePDFResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if resp.Provider != "gemini" || resp.Text == "" {
		t.Fatalf("resp = %+v", resp)
	}

	rec = doJSON(t, h, http.MethodPost, "/api/v1/parse-invoice-pdf", map[string]string{})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("missing path: status = %d", rec.Code)
	}
}

func TestHealthz(t *testing.T) {
	s := newTestServer(t, &fakeMailbox{})
	rec := doJSON(t, s.Router(), http.MethodGet, "/healthz", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
}
