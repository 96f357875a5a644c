package repository

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/haulstack/invoice-ingest/internal/entity"
)

type AttachmentRepository interface {
	Create(ctx context.Context, emailID uuid.UUID, filePath, fileType string) (*entity.Attachment, error)
	ListByEmail(ctx context.Context, emailID uuid.UUID) ([]*entity.Attachment, error)
	DeleteByEmail(ctx context.Context, emailID uuid.UUID) error
}

type attachmentRepository struct {
	db     *DB
	logger *slog.Logger
}

func NewAttachmentRepository(db *DB, logger *slog.Logger) AttachmentRepository {
	return &attachmentRepository{db: db, logger: logger}
}

func (r *attachmentRepository) Create(ctx context.Context, emailID uuid.UUID, filePath, fileType string) (*entity.Attachment, error) {
	a := &entity.Attachment{
		ID:        uuid.New(),
		EmailID:   emailID,
		FilePath:  filePath,
		FileType:  fileType,
		CreatedAt: time.Now().UTC(),
	}
	const q = `
		INSERT INTO attachments (id, email_id, file_path, file_type, created_at)
		VALUES (?, ?, ?, ?, ?)`
	if _, err := r.db.ExecContext(ctx, q, a.ID.String(), a.EmailID.String(), a.FilePath, a.FileType, a.CreatedAt); err != nil {
		r.logger.Error("failed to create attachment", "email_id", emailID, "file_path", filePath, "error", err)
		return nil, fmt.Errorf("create attachment: %w", err)
	}
	return a, nil
}

func (r *attachmentRepository) ListByEmail(ctx context.Context, emailID uuid.UUID) ([]*entity.Attachment, error) {
	var out []*entity.Attachment
	if err := r.db.SelectContext(ctx, &out, `SELECT * FROM attachments WHERE email_id = ? ORDER BY created_at`, emailID.String()); err != nil {
		return nil, fmt.Errorf("list attachments: %w", err)
	}
	return out, nil
}

// DeleteByEmail clears stale attachment rows before a re-download, so a
// partially-missing set on disk does not leave orphan records behind.
func (r *attachmentRepository) DeleteByEmail(ctx context.Context, emailID uuid.UUID) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM attachments WHERE email_id = ?`, emailID.String()); err != nil {
		return fmt.Errorf("delete attachments: %w", err)
	}
	return nil
}
