package server

import (
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/haulstack/invoice-ingest/constants"
	"github.com/haulstack/invoice-ingest/internal/common"
	"github.com/haulstack/invoice-ingest/internal/entity"
	"github.com/haulstack/invoice-ingest/internal/repository"
)

type storeInvoiceRequest struct {
	BrokerID      uuid.UUID `json:"broker_id"`
	EmailID       uuid.UUID `json:"email_id"`
	PDFPath       string    `json:"pdf_path"`
	InvoiceNumber string    `json:"invoice_number"`
	Carrier       string    `json:"carrier"`
	Amount        float64   `json:"amount"`
	Currency      string    `json:"currency"`
	DueDate       string    `json:"due_date,omitempty"` // YYYY-MM-DD
	ExtractedJSON string    `json:"extracted_json,omitempty"`
}

type storeInvoiceResponse struct {
	Invoice *entity.Invoice `json:"invoice"`
	Deduped bool            `json:"deduped"`
}

// handleStoreInvoice persists one invoice record, deduplicating on the
// (broker, invoice number) pair.
func (s *Server) handleStoreInvoice(w http.ResponseWriter, r *http.Request) {
	var req storeInvoiceRequest
	if err := decodeBody(r, &req); err != nil {
		writeDomainError(w, s.logger, err)
		return
	}
	if req.BrokerID == uuid.Nil || req.EmailID == uuid.Nil || req.InvoiceNumber == "" {
		writeDomainError(w, s.logger, common.NewAppError("VALIDATION", "broker_id, email_id and invoice_number are required", common.ErrInvalidInput))
		return
	}

	create := &repository.CreateInvoiceRequest{
		BrokerID:      req.BrokerID,
		EmailID:       req.EmailID,
		PDFPath:       req.PDFPath,
		InvoiceNumber: req.InvoiceNumber,
		Carrier:       req.Carrier,
		Amount:        req.Amount,
		Currency:      req.Currency,
		ExtractedJSON: req.ExtractedJSON,
	}
	if req.DueDate != "" {
		due, err := time.Parse("2006-01-02", req.DueDate)
		if err != nil {
			writeDomainError(w, s.logger, common.NewAppError("VALIDATION", "due_date must be YYYY-MM-DD", common.ErrInvalidInput))
			return
		}
		create.DueDate = &due
	}

	invoice, deduped, err := s.invRepo.UpsertByNumber(r.Context(), create)
	if err != nil {
		writeDomainError(w, s.logger, err)
		return
	}
	status := http.StatusCreated
	if deduped {
		status = http.StatusOK
	}
	writeJSON(w, status, storeInvoiceResponse{Invoice: invoice, Deduped: deduped})
}

// invoiceFilterFromQuery validates the status/carrier query parameters.
func invoiceFilterFromQuery(r *http.Request) (repository.InvoiceFilter, error) {
	filter := repository.InvoiceFilter{
		Status:  r.URL.Query().Get("status"),
		Carrier: r.URL.Query().Get("carrier"),
	}
	if filter.Status != "" && !constants.ValidInvoiceStatus(filter.Status) {
		return filter, common.NewAppError("VALIDATION", "status must be UNPAID or PAID", common.ErrInvalidInput)
	}
	return filter, nil
}

func (s *Server) handleQueryInvoices(w http.ResponseWriter, r *http.Request) {
	broker, err := s.brokerFromURL(r)
	if err != nil {
		writeDomainError(w, s.logger, err)
		return
	}
	filter, err := invoiceFilterFromQuery(r)
	if err != nil {
		writeDomainError(w, s.logger, err)
		return
	}

	invoices, err := s.invRepo.Query(r.Context(), broker.ID, filter)
	if err != nil {
		writeDomainError(w, s.logger, err)
		return
	}
	if invoices == nil {
		invoices = []*entity.Invoice{}
	}
	writeJSON(w, http.StatusOK, invoices)
}

// handleExportInvoices streams the broker's invoices as an XLSX workbook.
func (s *Server) handleExportInvoices(w http.ResponseWriter, r *http.Request) {
	broker, err := s.brokerFromURL(r)
	if err != nil {
		writeDomainError(w, s.logger, err)
		return
	}
	filter, err := invoiceFilterFromQuery(r)
	if err != nil {
		writeDomainError(w, s.logger, err)
		return
	}

	w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", "invoices-"+broker.ID.String()+".xlsx"))
	if err := s.exporter.WriteXLSX(r.Context(), broker.ID, filter, w); err != nil {
		// Headers are already out; all we can do is log.
		s.logger.Error("export.write.failed", "broker_id", broker.ID, "error", err)
	}
}
