package server

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/haulstack/invoice-ingest/internal/common"
	"github.com/haulstack/invoice-ingest/internal/entity"
	"github.com/haulstack/invoice-ingest/internal/mailbox"
)

// mailFilterRequest is the JSON shape of a mailbox search window shared by
// fetch-emails and the full pipeline run.
type mailFilterRequest struct {
	Since              string `json:"since,omitempty"` // RFC 3339
	SubjectContains    string `json:"subject_contains,omitempty"`
	From               string `json:"from,omitempty"`
	RequireAttachments bool   `json:"require_attachments,omitempty"`
}

func (req *mailFilterRequest) toFilter() (mailbox.Filter, error) {
	f := mailbox.Filter{
		SubjectContains:    req.SubjectContains,
		From:               req.From,
		RequireAttachments: req.RequireAttachments,
	}
	if req.Since != "" {
		since, err := time.Parse(time.RFC3339, req.Since)
		if err != nil {
			return f, common.NewAppError("VALIDATION", "since must be RFC 3339", common.ErrInvalidInput)
		}
		f.Since = since
	}
	return f, nil
}

type fetchEmailsResponse struct {
	Emails  []*entity.Email `json:"emails"`
	Fetched int             `json:"fetched"`
	New     int             `json:"new"`
	Deduped int             `json:"deduped"`
}

// handleFetchEmails lists the broker's mailbox and persists an email row per
// message, deduplicating on the Message-Id header.
func (s *Server) handleFetchEmails(w http.ResponseWriter, r *http.Request) {
	broker, err := s.brokerFromURL(r)
	if err != nil {
		writeDomainError(w, s.logger, err)
		return
	}
	var req mailFilterRequest
	if err := decodeBody(r, &req); err != nil {
		writeDomainError(w, s.logger, err)
		return
	}
	filter, err := req.toFilter()
	if err != nil {
		writeDomainError(w, s.logger, err)
		return
	}

	mbox, err := s.mailboxFor(broker)
	if err != nil {
		writeDomainError(w, s.logger, err)
		return
	}
	if err := mbox.Connect(); err != nil {
		writeDomainError(w, s.logger, err)
		return
	}
	defer mbox.Disconnect()

	messages, err := mbox.ListMessages(filter)
	if err != nil {
		writeDomainError(w, s.logger, err)
		return
	}

	resp := fetchEmailsResponse{Emails: []*entity.Email{}, Fetched: len(messages)}
	for _, msg := range messages {
		if msg.MessageID == "" {
			continue
		}
		email, existed, err := s.emails.UpsertByMessageID(r.Context(), broker.ID, msg.MessageID, msg.From, msg.Subject, msg.Date)
		if err != nil {
			writeDomainError(w, s.logger, err)
			return
		}
		if existed {
			resp.Deduped++
		} else {
			resp.New++
		}
		resp.Emails = append(resp.Emails, email)
	}
	writeJSON(w, http.StatusOK, resp)
}

type downloadAttachmentsResponse struct {
	Attachments []*entity.Attachment `json:"attachments"`
}

// handleDownloadAttachments downloads and stores the attachments of one
// previously fetched email.
func (s *Server) handleDownloadAttachments(w http.ResponseWriter, r *http.Request) {
	emailID, err := uuid.Parse(chi.URLParam(r, "emailID"))
	if err != nil {
		writeDomainError(w, s.logger, common.NewAppError("VALIDATION", "invalid email id", common.ErrInvalidInput))
		return
	}
	email, err := s.emails.GetByID(r.Context(), emailID)
	if err != nil {
		writeDomainError(w, s.logger, err)
		return
	}
	broker, err := s.brokers.GetByID(r.Context(), email.BrokerID)
	if err != nil {
		writeDomainError(w, s.logger, err)
		return
	}

	mbox, err := s.mailboxFor(broker)
	if err != nil {
		writeDomainError(w, s.logger, err)
		return
	}
	if err := mbox.Connect(); err != nil {
		writeDomainError(w, s.logger, err)
		return
	}
	defer mbox.Disconnect()

	attachments, err := s.pipeline.DownloadAttachments(r.Context(), mbox, email)
	if err != nil {
		writeDomainError(w, s.logger, err)
		return
	}
	if attachments == nil {
		attachments = []*entity.Attachment{}
	}
	writeJSON(w, http.StatusOK, downloadAttachmentsResponse{Attachments: attachments})
}

// handleRunPipeline executes the full ingestion flow for one broker.
func (s *Server) handleRunPipeline(w http.ResponseWriter, r *http.Request) {
	broker, err := s.brokerFromURL(r)
	if err != nil {
		writeDomainError(w, s.logger, err)
		return
	}
	var req mailFilterRequest
	if err := decodeBody(r, &req); err != nil {
		writeDomainError(w, s.logger, err)
		return
	}
	filter, err := req.toFilter()
	if err != nil {
		writeDomainError(w, s.logger, err)
		return
	}

	mbox, err := s.mailboxFor(broker)
	if err != nil {
		writeDomainError(w, s.logger, err)
		return
	}

	report, err := s.pipeline.Run(r.Context(), broker, mbox, filter)
	if err != nil {
		writeDomainError(w, s.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

type parsePDFRequest struct {
	PDFPath  string `json:"pdf_path"`
	Provider string `json:"provider,omitempty"`
}

type parsePDFResponse struct {
	Text     string `json:"text"`
	Provider string `json:"provider"`
	FellBack bool   `json:"fell_back"`
	Fields   any    `json:"fields"`
}

// handleParsePDF runs text extraction plus AI field extraction on a single
// stored PDF without touching the database.
func (s *Server) handleParsePDF(w http.ResponseWriter, r *http.Request) {
	var req parsePDFRequest
	if err := decodeBody(r, &req); err != nil {
		writeDomainError(w, s.logger, err)
		return
	}
	if req.PDFPath == "" {
		writeDomainError(w, s.logger, common.NewAppError("VALIDATION", "pdf_path is required", common.ErrInvalidInput))
		return
	}

	text, err := s.text.ExtractText(r.Context(), req.PDFPath)
	if err != nil {
		writeDomainError(w, s.logger, err)
		return
	}
	if text == "" {
		writeDomainError(w, s.logger, common.NewAppError("NO_TEXT", "no text could be extracted from the document", common.ErrInvalidInput))
		return
	}

	res, err := s.fields.ExtractPreferring(r.Context(), text, req.Provider)
	if err != nil {
		writeDomainError(w, s.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, parsePDFResponse{
		Text:     text,
		Provider: res.Provider,
		FellBack: res.FellBack,
		Fields:   res.Fields,
	})
}
