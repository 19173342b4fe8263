package domain

import "time"

// Action values recorded on a DispatchLog row.
const (
	ActionReplySent    = "REPLY_SENT"
	ActionReplyOpened  = "REPLY_OPENED"
	ActionReplyClicked = "REPLY_CLICKED"
	ActionFollowUpSent = "FOLLOW_UP_SENT"
)

// Status values form a strictly forward-moving hierarchy.
const (
	StatusSent    = "sent"
	StatusOpened  = "opened"
	StatusClicked = "clicked"
)

// statusRank orders statuses; a write with a lower rank is a no-op.
var statusRank = map[string]int{
	StatusSent:    0,
	StatusOpened:  2,
	StatusClicked: 3,
}

// StatusRank returns the hierarchy rank for a status, 0 for unknown values.
func StatusRank(status string) int {
	return statusRank[status]
}

// ActionForStatus maps a read/click transition to the action recorded on the row.
func ActionForStatus(status string) string {
	switch status {
	case StatusOpened:
		return ActionReplyOpened
	case StatusClicked:
		return ActionReplyClicked
	}
	return ""
}

// DispatchLog records one automated reply that was actually handed to the
// upstream provider. Rows are created by the dispatcher and mutated only by
// the read-receipt monitor, the tracking endpoints and the follow-up sweep.
type DispatchLog struct {
	ID               string     `json:"id" gorm:"primaryKey"`
	MailboxID        string     `json:"mailbox_id" gorm:"index;not null"`
	ThreadID         string     `json:"thread_id" gorm:"index;not null"`
	// Unique only once populated: rows exist before the provider assigns an id.
	SentMessageID    string     `json:"sent_message_id" gorm:"uniqueIndex:idx_sent_message_unique,where:sent_message_id <> ''"`
	Action           string     `json:"action" gorm:"not null"`
	Status           string     `json:"status" gorm:"not null"`
	RecipientEmail   string     `json:"recipient_email"`
	Subject          string     `json:"subject"`
	FollowUpRequired bool       `json:"follow_up_required"`
	FollowUpSent     bool       `json:"follow_up_sent"`
	OpenedAt         *time.Time `json:"opened_at,omitempty"`
	ClickedAt        *time.Time `json:"clicked_at,omitempty"`
	CreatedAt        time.Time  `json:"created_at"`
	UpdatedAt        time.Time  `json:"updated_at"`
}

// TableName specifies the table name for GORM
func (DispatchLog) TableName() string {
	return "dispatch_logs"
}
