package server

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/haulstack/invoice-ingest/internal/common"
	"github.com/haulstack/invoice-ingest/internal/entity"
)

type createBrokerRequest struct {
	Name          string `json:"name"`
	EmailHost     string `json:"email_host"`
	EmailUser     string `json:"email_user"`
	EmailPassword string `json:"email_password"`
}

func (req *createBrokerRequest) validate() error {
	switch {
	case strings.TrimSpace(req.Name) == "":
		return common.NewAppError("VALIDATION", "name is required", common.ErrInvalidInput)
	case strings.TrimSpace(req.EmailHost) == "":
		return common.NewAppError("VALIDATION", "email_host is required", common.ErrInvalidInput)
	case strings.TrimSpace(req.EmailUser) == "":
		return common.NewAppError("VALIDATION", "email_user is required", common.ErrInvalidInput)
	case req.EmailPassword == "":
		return common.NewAppError("VALIDATION", "email_password is required", common.ErrInvalidInput)
	}
	return nil
}

func (s *Server) handleCreateBroker(w http.ResponseWriter, r *http.Request) {
	var req createBrokerRequest
	if err := decodeBody(r, &req); err != nil {
		writeDomainError(w, s.logger, err)
		return
	}
	if err := req.validate(); err != nil {
		writeDomainError(w, s.logger, err)
		return
	}

	// Credentials are encrypted before they touch the database.
	encrypted, err := s.cipher.Encrypt(req.EmailPassword)
	if err != nil {
		writeDomainError(w, s.logger, err)
		return
	}

	broker, err := s.brokers.Create(r.Context(), strings.TrimSpace(req.Name), strings.TrimSpace(req.EmailHost), strings.TrimSpace(req.EmailUser), encrypted)
	if err != nil {
		writeDomainError(w, s.logger, err)
		return
	}
	s.logger.Info("broker.created", "broker_id", broker.ID, "name", broker.Name)
	writeJSON(w, http.StatusCreated, broker)
}

func (s *Server) handleListBrokers(w http.ResponseWriter, r *http.Request) {
	brokers, err := s.brokers.List(r.Context())
	if err != nil {
		writeDomainError(w, s.logger, err)
		return
	}
	if brokers == nil {
		brokers = []*entity.Broker{}
	}
	writeJSON(w, http.StatusOK, brokers)
}

// brokerFromURL resolves the {brokerID} route parameter to a broker row.
func (s *Server) brokerFromURL(r *http.Request) (*entity.Broker, error) {
	id, err := uuid.Parse(chi.URLParam(r, "brokerID"))
	if err != nil {
		return nil, common.NewAppError("VALIDATION", "invalid broker id", common.ErrInvalidInput)
	}
	return s.brokers.GetByID(r.Context(), id)
}
