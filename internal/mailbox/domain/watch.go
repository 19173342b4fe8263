package domain

import "time"

// MailboxWatch tracks the push subscription and incremental cursor for one
// connected mailbox. The cursor only ever moves forward; it is replaced with
// values returned by history reconciliation, never computed locally.
type MailboxWatch struct {
	MailboxID     string    `json:"mailbox_id" gorm:"primaryKey"` // mailbox email address
	HistoryCursor uint64    `json:"history_cursor" gorm:"not null"`
	ChannelID     string    `json:"channel_id"`
	Expiry        time.Time `json:"expiry"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// TableName specifies the table name for GORM
func (MailboxWatch) TableName() string {
	return "mailbox_watches"
}
