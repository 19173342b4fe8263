package repository

import (
	"time"

	dispatchdomain "replypilot-backend/internal/dispatch/domain"
)

// DispatchLogRepository defines persistence for automated-reply tracking rows.
type DispatchLogRepository interface {
	Create(log *dispatchdomain.DispatchLog) error
	Delete(id string) error
	FindByID(id string) (*dispatchdomain.DispatchLog, error)
	FindBySentMessageID(sentMessageID string) (*dispatchdomain.DispatchLog, error)
	FindByMailboxID(mailboxID string, limit int) ([]*dispatchdomain.DispatchLog, error)

	// AttachSentMessageID records the upstream-assigned id after a successful send.
	AttachSentMessageID(id, sentMessageID string) error

	// UpdateStatusForward applies the forward-only status hierarchy; writes
	// with a rank at or below the current one are dropped. Returns whether
	// the row changed.
	UpdateStatusForward(id, newStatus string) (bool, error)

	// ClearFollowUps cancels pending follow-ups for a thread, used when a new
	// inbound message supersedes the obligation.
	ClearFollowUps(mailboxID, threadID string) error

	// FindFollowUpsDue returns rows still awaiting a follow-up older than the cutoff.
	FindFollowUpsDue(cutoff time.Time) ([]*dispatchdomain.DispatchLog, error)

	// MarkFollowUpSent is recorded regardless of downstream send success so a
	// broken send cannot loop forever.
	MarkFollowUpSent(id string) error
}
