package repository

import (
	mailboxdomain "replypilot-backend/internal/mailbox/domain"
)

// WatchRepository defines persistence for mailbox watch state.
type WatchRepository interface {
	FindByMailboxID(mailboxID string) (*mailboxdomain.MailboxWatch, error)
	// Save creates or replaces the watch row (used by the registrar).
	Save(watch *mailboxdomain.MailboxWatch) error
	// AdvanceCursor moves the cursor forward. A cursor lower than the stored
	// one is a no-op so concurrent reconciliations can never regress it.
	AdvanceCursor(mailboxID string, cursor uint64) error
	Delete(mailboxID string) error
}

// CredentialRepository defines persistence for per-mailbox OAuth tokens.
type CredentialRepository interface {
	FindByMailboxID(mailboxID string) (*mailboxdomain.Credential, error)
	// Save writes the whole token pair in one statement.
	Save(cred *mailboxdomain.Credential) error
	// Invalidate clears the token pair after a hard authorization failure.
	Invalidate(mailboxID string) error
}
