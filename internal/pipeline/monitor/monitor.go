package monitor

import (
	"context"
	"log"
	"strings"
	"time"

	dispatchdomain "replypilot-backend/internal/dispatch/domain"
	pipelinedomain "replypilot-backend/internal/pipeline/domain"
	"replypilot-backend/pkg/gmail"
)

const (
	// recencyWindow bounds the degraded fallback scan: only a very recent
	// own message can plausibly be the reply we just sent.
	recencyWindow = 5 * time.Minute

	DefaultGrace    = 5 * time.Second
	DefaultInterval = 30 * time.Second
	DefaultMaxPolls = 48
)

// Session is the slice of mailbox access the monitor needs.
type Session interface {
	IsMessageUnread(ctx context.Context, messageID string) (bool, error)
	GetThread(ctx context.Context, threadID string) (*pipelinedomain.ThreadSnapshot, error)
}

// SessionFactory authorizes a mailbox on demand. The release function runs
// when the monitor is done with the session, giving the owner a chance to
// persist a token pair rotated during the polling window; it may be nil.
type SessionFactory func(ctx context.Context, mailboxID string) (Session, func(), error)

// DispatchStore is the slice of dispatch persistence the monitor needs.
type DispatchStore interface {
	FindByID(id string) (*dispatchdomain.DispatchLog, error)
	UpdateStatusForward(id, newStatus string) (bool, error)
}

// Monitor polls recently-sent replies until the recipient-side copy loses its
// unread marker, then records the open. Each watched dispatch costs one
// goroutine for a bounded window, so the tracking pixel stays the primary
// signal and this is the fallback for clients that block images.
type Monitor struct {
	sessions   SessionFactory
	dispatches DispatchStore

	grace    time.Duration
	interval time.Duration
	maxPolls int

	sleep func(time.Duration)
	now   func() time.Time
}

func New(sessions SessionFactory, dispatches DispatchStore, grace, interval time.Duration, maxPolls int) *Monitor {
	if grace <= 0 {
		grace = DefaultGrace
	}
	if interval <= 0 {
		interval = DefaultInterval
	}
	if maxPolls <= 0 {
		maxPolls = DefaultMaxPolls
	}
	return &Monitor{
		sessions:   sessions,
		dispatches: dispatches,
		grace:      grace,
		interval:   interval,
		maxPolls:   maxPolls,
		sleep:      time.Sleep,
		now:        time.Now,
	}
}

// Start spawns the polling loop for a freshly-sent dispatch.
func (m *Monitor) Start(entry *dispatchdomain.DispatchLog) {
	go m.Watch(context.Background(), entry.ID, entry.MailboxID)
}

// Watch runs the bounded polling loop for one dispatch. It returns once the
// dispatch is observed read, its status has moved through another channel, or
// the poll ceiling is reached.
func (m *Monitor) Watch(ctx context.Context, dispatchID, mailboxID string) {
	m.sleep(m.grace)

	session, release, err := m.sessions(ctx, mailboxID)
	if err != nil {
		log.Printf("[Monitor] No session for %s, dispatch %s unwatched: %v", mailboxID, dispatchID, err)
		return
	}
	if release != nil {
		defer release()
	}

	for poll := 0; poll < m.maxPolls; poll++ {
		if poll > 0 {
			m.sleep(m.interval)
		}

		entry, err := m.dispatches.FindByID(dispatchID)
		if err != nil {
			log.Printf("[Monitor] Lookup failed for dispatch %s: %v", dispatchID, err)
			continue
		}
		if entry == nil {
			return
		}
		// Pixel or webhook already moved the status; nothing left to observe.
		if entry.Status != dispatchdomain.StatusSent {
			return
		}

		messageID, ok := m.resolveMessageID(ctx, session, entry)
		if !ok {
			continue
		}

		unread, err := session.IsMessageUnread(ctx, messageID)
		if err != nil {
			log.Printf("[Monitor] Poll %d failed for dispatch %s: %v", poll, dispatchID, err)
			continue
		}
		if !unread {
			if _, err := m.dispatches.UpdateStatusForward(dispatchID, dispatchdomain.StatusOpened); err != nil {
				log.Printf("[Monitor] Failed to mark dispatch %s opened: %v", dispatchID, err)
			} else {
				log.Printf("[Monitor] Dispatch %s observed read", dispatchID)
			}
			return
		}
	}
	log.Printf("[Monitor] Dispatch %s still unread after %d polls, giving up", dispatchID, m.maxPolls)
}

// resolveMessageID prefers the provider id recorded at send time. When that
// id is missing it falls back to scanning the thread for a message sent from
// the mailbox's own address within the recency window.
func (m *Monitor) resolveMessageID(ctx context.Context, session Session, entry *dispatchdomain.DispatchLog) (string, bool) {
	if entry.SentMessageID != "" {
		return entry.SentMessageID, true
	}

	snapshot, err := session.GetThread(ctx, entry.ThreadID)
	if err != nil {
		log.Printf("[Monitor] Fallback thread scan failed for dispatch %s: %v", entry.ID, err)
		return "", false
	}
	cutoff := m.now().Add(-recencyWindow)
	for i := len(snapshot.Messages) - 1; i >= 0; i-- {
		msg := snapshot.Messages[i]
		if !strings.EqualFold(gmail.ParseAddress(msg.From), entry.MailboxID) {
			continue
		}
		if msg.InternalDate.Before(cutoff) {
			continue
		}
		log.Printf("[Monitor] Dispatch %s resolved via thread scan to message %s", entry.ID, msg.ID)
		return msg.ID, true
	}
	return "", false
}
