package scheduler

import (
	"context"
	"log"
	"time"

	dispatchdomain "replypilot-backend/internal/dispatch/domain"
)

const (
	DefaultInterval = 1 * time.Hour
	DefaultAge      = 24 * time.Hour
)

// FollowUpSender sends the re-engagement message for a stale dispatch.
type FollowUpSender interface {
	SendFollowUp(ctx context.Context, entry *dispatchdomain.DispatchLog) error
}

// DispatchStore is the slice of dispatch persistence the scheduler needs.
type DispatchStore interface {
	FindFollowUpsDue(cutoff time.Time) ([]*dispatchdomain.DispatchLog, error)
	MarkFollowUpSent(id string) error
}

// Scheduler periodically sweeps for replies that stayed unanswered past the
// follow-up age and sends one follow-up per dispatch.
type Scheduler struct {
	sender     FollowUpSender
	dispatches DispatchStore
	interval   time.Duration
	age        time.Duration
	stopChan   chan struct{}
	now        func() time.Time
}

func New(sender FollowUpSender, dispatches DispatchStore, interval, age time.Duration) *Scheduler {
	if interval <= 0 {
		interval = DefaultInterval
	}
	if age <= 0 {
		age = DefaultAge
	}
	return &Scheduler{
		sender:     sender,
		dispatches: dispatches,
		interval:   interval,
		age:        age,
		stopChan:   make(chan struct{}),
		now:        time.Now,
	}
}

// Start launches the sweep loop. An immediate sweep runs at startup so work
// that came due while the process was down is not delayed a full interval.
func (s *Scheduler) Start() {
	log.Printf("[Scheduler] Follow-up sweep every %s for dispatches older than %s", s.interval, s.age)
	go func() {
		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()
		s.Sweep(context.Background())
		for {
			select {
			case <-ticker.C:
				s.Sweep(context.Background())
			case <-s.stopChan:
				return
			}
		}
	}()
}

func (s *Scheduler) Stop() {
	close(s.stopChan)
}

// Sweep processes every dispatch currently due a follow-up. Each row is
// marked handled whether or not the send succeeded, so one broken thread
// cannot generate a follow-up storm across restarts.
func (s *Scheduler) Sweep(ctx context.Context) {
	cutoff := s.now().Add(-s.age)
	due, err := s.dispatches.FindFollowUpsDue(cutoff)
	if err != nil {
		log.Printf("[Scheduler] Sweep query failed: %v", err)
		return
	}
	if len(due) == 0 {
		return
	}
	log.Printf("[Scheduler] %d dispatch(es) due a follow-up", len(due))

	for _, entry := range due {
		if err := s.sender.SendFollowUp(ctx, entry); err != nil {
			log.Printf("[Scheduler] Follow-up send failed for dispatch %s: %v", entry.ID, err)
		}
		if err := s.dispatches.MarkFollowUpSent(entry.ID); err != nil {
			log.Printf("[Scheduler] Failed to mark follow-up handled for dispatch %s: %v", entry.ID, err)
		}
	}
}
