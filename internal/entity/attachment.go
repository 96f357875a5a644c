package entity

import (
	"time"

	"github.com/google/uuid"
)

// Attachment represents a downloaded email attachment persisted to local storage.
type Attachment struct {
	ID        uuid.UUID `db:"id" json:"id"`
	EmailID   uuid.UUID `db:"email_id" json:"email_id"`
	FilePath  string    `db:"file_path" json:"file_path"`
	FileType  string    `db:"file_type" json:"file_type"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}
