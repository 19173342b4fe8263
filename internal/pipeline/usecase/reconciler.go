package usecase

import (
	"context"
	"fmt"
	"log"
	"strings"
	"sync"

	dispatchdomain "replypilot-backend/internal/dispatch/domain"
	dispatchrepo "replypilot-backend/internal/dispatch/repository"
	mailboxrepo "replypilot-backend/internal/mailbox/repository"
	pipelinedomain "replypilot-backend/internal/pipeline/domain"
	"replypilot-backend/pkg/cache"
	"replypilot-backend/pkg/gmail"
)

// Pipeline is the single entry point for processing mailbox activity. Every
// trigger (push notification, manual sync, replayed event) funnels into
// ReconcileMailbox, which works purely from the stored cursor so duplicate and
// out-of-order triggers converge on the same state.
type Pipeline struct {
	provider    MailProvider
	watches     mailboxrepo.WatchRepository
	credentials mailboxrepo.CredentialRepository
	dispatches  dispatchrepo.DispatchLogRepository
	classifier  *Classifier
	synthesizer *Synthesizer
	dispatcher  *Dispatcher
	threadCache *cache.TTLCache

	mu    sync.Mutex
	locks map[string]*sync.Mutex

	// onDispatch is invoked after each successful reply send, typically to
	// spawn a read-receipt monitor.
	onDispatch func(entry *dispatchdomain.DispatchLog)
}

func NewPipeline(
	provider MailProvider,
	watches mailboxrepo.WatchRepository,
	credentials mailboxrepo.CredentialRepository,
	dispatches dispatchrepo.DispatchLogRepository,
	classifier *Classifier,
	synthesizer *Synthesizer,
	dispatcher *Dispatcher,
	threadCache *cache.TTLCache,
) *Pipeline {
	return &Pipeline{
		provider:    provider,
		watches:     watches,
		credentials: credentials,
		dispatches:  dispatches,
		classifier:  classifier,
		synthesizer: synthesizer,
		dispatcher:  dispatcher,
		threadCache: threadCache,
		locks:       make(map[string]*sync.Mutex),
	}
}

// SetDispatchHook registers the callback fired after each successful send.
func (p *Pipeline) SetDispatchHook(fn func(entry *dispatchdomain.DispatchLog)) {
	p.onDispatch = fn
}

func (p *Pipeline) lockFor(mailboxID string) *sync.Mutex {
	p.mu.Lock()
	defer p.mu.Unlock()
	l, ok := p.locks[mailboxID]
	if !ok {
		l = &sync.Mutex{}
		p.locks[mailboxID] = l
	}
	return l
}

// SessionFor authorizes a mailbox and wraps the session with rate limiting
// and stale-cache fallback.
func (p *Pipeline) SessionFor(ctx context.Context, mailboxID string) (MailSession, error) {
	cred, err := p.credentials.FindByMailboxID(mailboxID)
	if err != nil {
		return nil, err
	}
	if cred == nil || !cred.Valid() {
		return nil, ErrNoCredential
	}
	session, err := p.provider.Authorize(ctx, cred)
	if err != nil {
		return nil, fmt.Errorf("failed to authorize mailbox %s: %w", mailboxID, err)
	}
	return NewFetcher(session, mailboxID, p.credentials, p.threadCache), nil
}

// PersistRefresh stores a rotated credential captured by the session, if any.
func (p *Pipeline) PersistRefresh(mailboxID string, session MailSession) {
	if cred, ok := session.RefreshResult(); ok {
		cred.MailboxID = mailboxID
		if err := p.credentials.Save(cred); err != nil {
			log.Printf("[Pipeline] Failed to persist refreshed credential for %s: %v", mailboxID, err)
		}
	}
}

// ReconcileMailbox drains all history since the stored cursor for a mailbox,
// classifies and answers each new inbound thread, and advances the cursor.
// The cursor advances even when individual threads fail downstream; those
// messages surface again on the recipient's side, not through replay.
func (p *Pipeline) ReconcileMailbox(ctx context.Context, mailboxID string) error {
	lock := p.lockFor(mailboxID)
	lock.Lock()
	defer lock.Unlock()

	watch, err := p.watches.FindByMailboxID(mailboxID)
	if err != nil {
		return err
	}
	if watch == nil {
		return ErrUnknownMailbox
	}

	session, err := p.SessionFor(ctx, mailboxID)
	if err != nil {
		return err
	}
	defer p.PersistRefresh(mailboxID, session)

	hist, err := session.ListHistory(ctx, watch.HistoryCursor)
	if err != nil {
		return fmt.Errorf("history listing failed for %s: %w", mailboxID, err)
	}

	for _, threadID := range dedupeThreads(hist.Added) {
		if err := p.processThread(ctx, session, mailboxID, threadID); err != nil {
			log.Printf("[Pipeline] Thread %s on %s not processed: %v", threadID, mailboxID, err)
		}
	}

	if hist.Cursor > 0 {
		if err := p.watches.AdvanceCursor(mailboxID, hist.Cursor); err != nil {
			return fmt.Errorf("failed to advance cursor for %s: %w", mailboxID, err)
		}
	}
	return nil
}

// dedupeThreads keeps the first occurrence of each thread, preserving order.
func dedupeThreads(events []pipelinedomain.HistoryEvent) []string {
	seen := make(map[string]bool, len(events))
	threads := make([]string, 0, len(events))
	for _, ev := range events {
		if ev.ThreadID == "" || seen[ev.ThreadID] {
			continue
		}
		seen[ev.ThreadID] = true
		threads = append(threads, ev.ThreadID)
	}
	return threads
}

func (p *Pipeline) processThread(ctx context.Context, session MailSession, mailboxID, threadID string) error {
	// Any new activity on the thread means the conversation moved, so a
	// pending follow-up for it is no longer wanted.
	if err := p.dispatches.ClearFollowUps(mailboxID, threadID); err != nil {
		log.Printf("[Pipeline] Failed to clear follow-ups for thread %s: %v", threadID, err)
	}

	snapshot, err := session.GetThread(ctx, threadID)
	if err != nil {
		return err
	}
	last := snapshot.LastMessage()
	if last == nil {
		return nil
	}
	if strings.EqualFold(gmail.ParseAddress(last.From), mailboxID) {
		return nil
	}

	category, err := p.classifier.Classify(ctx, fmt.Sprintf("Subject: %s\n\n%s", last.Subject, last.Body))
	if err != nil {
		return fmt.Errorf("triage failed: %w", err)
	}
	if category == pipelinedomain.TriageAdvertisement {
		log.Printf("[Pipeline] Thread %s classified as advertisement, skipping", threadID)
		return nil
	}

	replyText, err := p.synthesizer.GenerateReply(ctx, snapshot)
	if err != nil {
		return err
	}

	entry, err := p.dispatcher.Prepare(ctx, mailboxID, snapshot, dispatchdomain.ActionReplySent, true)
	if err != nil {
		return err
	}

	msg, err := BuildReply(snapshot, mailboxID, replyText, p.dispatcher.PixelURL(entry.ID))
	if err != nil {
		if delErr := p.dispatches.Delete(entry.ID); delErr != nil {
			log.Printf("[Pipeline] Failed to roll back dispatch %s: %v", entry.ID, delErr)
		}
		return err
	}

	if err := p.dispatcher.Send(ctx, session, entry, msg); err != nil {
		return err
	}
	log.Printf("[Pipeline] Replied on thread %s for %s (dispatch %s)", threadID, mailboxID, entry.ID)

	if p.onDispatch != nil {
		p.onDispatch(entry)
	}
	return nil
}

// SendFollowUp answers a stale dispatch with a polite re-engagement message
// on the same thread.
func (p *Pipeline) SendFollowUp(ctx context.Context, entry *dispatchdomain.DispatchLog) error {
	session, err := p.SessionFor(ctx, entry.MailboxID)
	if err != nil {
		return err
	}
	defer p.PersistRefresh(entry.MailboxID, session)

	snapshot, err := session.GetThread(ctx, entry.ThreadID)
	if err != nil {
		return err
	}

	text, err := p.synthesizer.GenerateFollowUp(ctx, snapshot)
	if err != nil {
		return err
	}

	followUp, err := p.dispatcher.Prepare(ctx, entry.MailboxID, snapshot, dispatchdomain.ActionFollowUpSent, false)
	if err != nil {
		return err
	}
	msg, err := BuildReply(snapshot, entry.MailboxID, text, p.dispatcher.PixelURL(followUp.ID))
	if err != nil {
		if delErr := p.dispatches.Delete(followUp.ID); delErr != nil {
			log.Printf("[Pipeline] Failed to roll back dispatch %s: %v", followUp.ID, delErr)
		}
		return err
	}
	return p.dispatcher.Send(ctx, session, followUp, msg)
}
