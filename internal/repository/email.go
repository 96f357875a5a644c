package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/haulstack/invoice-ingest/internal/common"
	"github.com/haulstack/invoice-ingest/internal/entity"
)

type EmailRepository interface {
	GetByID(ctx context.Context, id uuid.UUID) (*entity.Email, error)
	GetByMessageID(ctx context.Context, messageID string) (*entity.Email, error)
	// UpsertByMessageID returns the existing email for the message-id if one
	// exists, otherwise inserts a new row. The bool reports deduplication.
	UpsertByMessageID(ctx context.Context, brokerID uuid.UUID, messageID, from, subject string, receivedAt time.Time) (*entity.Email, bool, error)
	ListByBroker(ctx context.Context, brokerID uuid.UUID) ([]*entity.Email, error)
}

type emailRepository struct {
	db     *DB
	logger *slog.Logger
}

func NewEmailRepository(db *DB, logger *slog.Logger) EmailRepository {
	return &emailRepository{db: db, logger: logger}
}

func (r *emailRepository) GetByID(ctx context.Context, id uuid.UUID) (*entity.Email, error) {
	var e entity.Email
	err := r.db.GetContext(ctx, &e, `SELECT * FROM emails WHERE id = ?`, id.String())
	if errors.Is(err, sql.ErrNoRows) {
		return nil, common.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get email: %w", err)
	}
	return &e, nil
}

func (r *emailRepository) GetByMessageID(ctx context.Context, messageID string) (*entity.Email, error) {
	var e entity.Email
	err := r.db.GetContext(ctx, &e, `SELECT * FROM emails WHERE message_id = ?`, messageID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, common.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get email by message id: %w", err)
	}
	return &e, nil
}

func (r *emailRepository) UpsertByMessageID(ctx context.Context, brokerID uuid.UUID, messageID, from, subject string, receivedAt time.Time) (*entity.Email, bool, error) {
	if existing, err := r.GetByMessageID(ctx, messageID); err == nil {
		return existing, true, nil
	} else if !errors.Is(err, common.ErrNotFound) {
		return nil, false, err
	}

	e := &entity.Email{
		ID:         uuid.New(),
		BrokerID:   brokerID,
		MessageID:  messageID,
		FromAddr:   from,
		Subject:    subject,
		ReceivedAt: receivedAt.UTC(),
		CreatedAt:  time.Now().UTC(),
	}
	const q = `
		INSERT INTO emails (id, broker_id, message_id, from_addr, subject, received_at, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`
	_, err := r.db.ExecContext(ctx, q, e.ID.String(), e.BrokerID.String(), e.MessageID, e.FromAddr, e.Subject, e.ReceivedAt, e.CreatedAt)
	if err != nil {
		// A concurrent insert of the same message-id is rejected by the
		// UNIQUE constraint; treat that the same as a pre-existing row.
		if isUniqueViolation(err) {
			if existing, gerr := r.GetByMessageID(ctx, messageID); gerr == nil {
				return existing, true, nil
			}
		}
		r.logger.Error("failed to create email", "message_id", messageID, "error", err)
		return nil, false, fmt.Errorf("create email: %w", err)
	}
	return e, false, nil
}

func (r *emailRepository) ListByBroker(ctx context.Context, brokerID uuid.UUID) ([]*entity.Email, error) {
	var out []*entity.Email
	if err := r.db.SelectContext(ctx, &out, `SELECT * FROM emails WHERE broker_id = ? ORDER BY received_at DESC`, brokerID.String()); err != nil {
		return nil, fmt.Errorf("list emails: %w", err)
	}
	return out, nil
}

// isUniqueViolation reports whether err is a sqlite UNIQUE constraint rejection.
func isUniqueViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}
