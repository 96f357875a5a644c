package entity

import (
	"time"

	"github.com/google/uuid"
)

// Broker represents a freight broker whose mailbox is ingested.
type Broker struct {
	ID            uuid.UUID `db:"id" json:"id"`
	Name          string    `db:"name" json:"name"`
	EmailHost     string    `db:"email_host" json:"email_host"`
	EmailUser     string    `db:"email_user" json:"email_user"`
	EmailPassword string    `db:"email_password_encrypted" json:"-"` // encrypted at rest
	CreatedAt     time.Time `db:"created_at" json:"created_at"`
}
