package usecase

import (
	"context"
	"fmt"
	"log"

	mailboxdomain "replypilot-backend/internal/mailbox/domain"
	mailboxrepo "replypilot-backend/internal/mailbox/repository"

	"github.com/google/uuid"
)

// Registrar owns the lifecycle of per-mailbox push watches.
type Registrar struct {
	provider    MailProvider
	watches     mailboxrepo.WatchRepository
	credentials mailboxrepo.CredentialRepository
}

func NewRegistrar(provider MailProvider, watches mailboxrepo.WatchRepository, credentials mailboxrepo.CredentialRepository) *Registrar {
	return &Registrar{provider: provider, watches: watches, credentials: credentials}
}

// StartWatch registers (or renews) the push watch for a mailbox and persists
// the returned cursor as the reconciliation baseline. Calling it for a mailbox
// with a live watch replaces the registration rather than duplicating it.
func (r *Registrar) StartWatch(ctx context.Context, mailboxID string) (*mailboxdomain.MailboxWatch, error) {
	cred, err := r.credentials.FindByMailboxID(mailboxID)
	if err != nil {
		return nil, err
	}
	if cred == nil || !cred.Valid() {
		return nil, ErrNoCredential
	}

	session, err := r.authorize(ctx, cred, mailboxID)
	if err != nil {
		return nil, err
	}

	result, err := session.Watch(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to register watch for %s: %w", mailboxID, err)
	}

	watch := &mailboxdomain.MailboxWatch{
		MailboxID:     mailboxID,
		HistoryCursor: result.Cursor,
		ChannelID:     uuid.New().String(),
		Expiry:        result.Expiry,
	}
	if err := r.watches.Save(watch); err != nil {
		return nil, fmt.Errorf("failed to persist watch for %s: %w", mailboxID, err)
	}
	r.persistRefresh(mailboxID, session)

	log.Printf("[Registrar] Watch active for %s until %s (cursor %d)", mailboxID, result.Expiry.Format("2006-01-02 15:04"), result.Cursor)
	return watch, nil
}

// StopWatch tears down the push registration and removes the stored watch.
func (r *Registrar) StopWatch(ctx context.Context, mailboxID string) error {
	cred, err := r.credentials.FindByMailboxID(mailboxID)
	if err != nil {
		return err
	}
	if cred != nil && cred.Valid() {
		session, err := r.authorize(ctx, cred, mailboxID)
		if err == nil {
			if err := session.StopWatch(ctx); err != nil {
				log.Printf("[Registrar] Provider stop failed for %s: %v", mailboxID, err)
			}
			r.persistRefresh(mailboxID, session)
		}
	}
	return r.watches.Delete(mailboxID)
}

// authorize opens the session and wraps it with the rate-limiting decorator,
// so watch registration gets the same 401/429 handling as every other
// upstream call.
func (r *Registrar) authorize(ctx context.Context, cred *mailboxdomain.Credential, mailboxID string) (MailSession, error) {
	session, err := r.provider.Authorize(ctx, cred)
	if err != nil {
		return nil, fmt.Errorf("failed to authorize mailbox %s: %w", mailboxID, err)
	}
	return NewFetcher(session, mailboxID, r.credentials, nil), nil
}

func (r *Registrar) persistRefresh(mailboxID string, session MailSession) {
	if cred, ok := session.RefreshResult(); ok {
		cred.MailboxID = mailboxID
		if err := r.credentials.Save(cred); err != nil {
			log.Printf("[Registrar] Failed to persist refreshed credential for %s: %v", mailboxID, err)
		}
	}
}
