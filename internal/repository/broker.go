package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/haulstack/invoice-ingest/internal/common"
	"github.com/haulstack/invoice-ingest/internal/entity"
)

type BrokerRepository interface {
	Create(ctx context.Context, name, host, user, encryptedPassword string) (*entity.Broker, error)
	GetByID(ctx context.Context, id uuid.UUID) (*entity.Broker, error)
	List(ctx context.Context) ([]*entity.Broker, error)
}

type brokerRepository struct {
	db     *DB
	logger *slog.Logger
}

func NewBrokerRepository(db *DB, logger *slog.Logger) BrokerRepository {
	return &brokerRepository{db: db, logger: logger}
}

func (r *brokerRepository) Create(ctx context.Context, name, host, user, encryptedPassword string) (*entity.Broker, error) {
	b := &entity.Broker{
		ID:            uuid.New(),
		Name:          name,
		EmailHost:     host,
		EmailUser:     user,
		EmailPassword: encryptedPassword,
		CreatedAt:     time.Now().UTC(),
	}
	const q = `
		INSERT INTO brokers (id, name, email_host, email_user, email_password_encrypted, created_at)
		VALUES (?, ?, ?, ?, ?, ?)`
	if _, err := r.db.ExecContext(ctx, q, b.ID.String(), b.Name, b.EmailHost, b.EmailUser, b.EmailPassword, b.CreatedAt); err != nil {
		r.logger.Error("failed to create broker", "name", name, "error", err)
		return nil, fmt.Errorf("create broker: %w", err)
	}
	return b, nil
}

func (r *brokerRepository) GetByID(ctx context.Context, id uuid.UUID) (*entity.Broker, error) {
	var b entity.Broker
	err := r.db.GetContext(ctx, &b, `SELECT * FROM brokers WHERE id = ?`, id.String())
	if errors.Is(err, sql.ErrNoRows) {
		return nil, common.ErrNotFound
	}
	if err != nil {
		r.logger.Error("failed to get broker", "broker_id", id, "error", err)
		return nil, fmt.Errorf("get broker: %w", err)
	}
	return &b, nil
}

func (r *brokerRepository) List(ctx context.Context) ([]*entity.Broker, error) {
	var out []*entity.Broker
	if err := r.db.SelectContext(ctx, &out, `SELECT * FROM brokers ORDER BY created_at`); err != nil {
		return nil, fmt.Errorf("list brokers: %w", err)
	}
	return out, nil
}
