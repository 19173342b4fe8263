package usecase

import (
	"context"
	"fmt"
	"log"

	dispatchdomain "replypilot-backend/internal/dispatch/domain"
	dispatchrepo "replypilot-backend/internal/dispatch/repository"
	pipelinedomain "replypilot-backend/internal/pipeline/domain"
	"replypilot-backend/pkg/gmail"
)

// Dispatcher records a dispatch log row before handing a built reply to the
// mail session, so the tracking pixel baked into the message always points at
// an existing row.
type Dispatcher struct {
	dispatches dispatchrepo.DispatchLogRepository
	appURL     string
}

func NewDispatcher(dispatches dispatchrepo.DispatchLogRepository, appURL string) *Dispatcher {
	return &Dispatcher{dispatches: dispatches, appURL: appURL}
}

// PixelURL returns the open-tracking endpoint for a dispatch log.
func (d *Dispatcher) PixelURL(logID string) string {
	return fmt.Sprintf("%s/track/open/%s", d.appURL, logID)
}

// Prepare creates the dispatch log row for a reply that is about to be built
// and sent. The returned log id feeds the tracking pixel.
func (d *Dispatcher) Prepare(ctx context.Context, mailboxID string, snapshot *pipelinedomain.ThreadSnapshot, action string, followUpRequired bool) (*dispatchdomain.DispatchLog, error) {
	last := snapshot.LastMessage()
	if last == nil {
		return nil, ErrEmptyThread
	}
	entry := &dispatchdomain.DispatchLog{
		MailboxID:        mailboxID,
		ThreadID:         snapshot.ThreadID,
		RecipientEmail:   gmail.ParseAddress(last.From),
		Subject:          replySubject(last.Subject),
		Action:           action,
		Status:           dispatchdomain.StatusSent,
		FollowUpRequired: followUpRequired,
	}
	if err := d.dispatches.Create(entry); err != nil {
		return nil, fmt.Errorf("failed to record dispatch: %w", err)
	}
	return entry, nil
}

// Send transmits the built message on the thread and binds the provider's
// message id to the dispatch log. A failed send removes the log row so the
// monitor and scheduler never act on a reply that was never delivered.
func (d *Dispatcher) Send(ctx context.Context, session MailSession, entry *dispatchdomain.DispatchLog, msg *pipelinedomain.OutboundMessage) error {
	sentID, err := session.SendRaw(ctx, entry.ThreadID, msg.Raw)
	if err != nil {
		if delErr := d.dispatches.Delete(entry.ID); delErr != nil {
			log.Printf("[Dispatcher] Failed to roll back dispatch %s: %v", entry.ID, delErr)
		}
		return fmt.Errorf("failed to send reply: %w", err)
	}
	if err := d.dispatches.AttachSentMessageID(entry.ID, sentID); err != nil {
		log.Printf("[Dispatcher] Sent message id not recorded for dispatch %s: %v", entry.ID, err)
	}
	entry.SentMessageID = sentID
	return nil
}
