package entity

import (
	"time"

	"github.com/google/uuid"
)

// Email represents one sighted mailbox message. MessageID is the
// protocol-level Message-Id header and is the dedup key.
type Email struct {
	ID         uuid.UUID `db:"id" json:"id"`
	BrokerID   uuid.UUID `db:"broker_id" json:"broker_id"`
	MessageID  string    `db:"message_id" json:"message_id"`
	FromAddr   string    `db:"from_addr" json:"from"`
	Subject    string    `db:"subject" json:"subject"`
	ReceivedAt time.Time `db:"received_at" json:"received_at"`
	CreatedAt  time.Time `db:"created_at" json:"created_at"`
}
