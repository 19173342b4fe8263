package scheduler

import (
	"context"
	"errors"
	"testing"
	"time"

	dispatchdomain "replypilot-backend/internal/dispatch/domain"
)

type fakeSender struct {
	sent []string
	err  error
}

func (f *fakeSender) SendFollowUp(ctx context.Context, entry *dispatchdomain.DispatchLog) error {
	f.sent = append(f.sent, entry.ID)
	return f.err
}

type fakeStore struct {
	logs   []*dispatchdomain.DispatchLog
	marked []string
}

func (f *fakeStore) FindFollowUpsDue(cutoff time.Time) ([]*dispatchdomain.DispatchLog, error) {
	var due []*dispatchdomain.DispatchLog
	for _, l := range f.logs {
		if l.FollowUpRequired && !l.FollowUpSent && l.CreatedAt.Before(cutoff) {
			due = append(due, l)
		}
	}
	return due, nil
}

func (f *fakeStore) MarkFollowUpSent(id string) error {
	f.marked = append(f.marked, id)
	for _, l := range f.logs {
		if l.ID == id {
			l.FollowUpSent = true
		}
	}
	return nil
}

func staleDispatch(id string, age time.Duration) *dispatchdomain.DispatchLog {
	return &dispatchdomain.DispatchLog{
		ID:               id,
		MailboxID:        "me@company.example",
		ThreadID:         "t-" + id,
		Status:           dispatchdomain.StatusSent,
		FollowUpRequired: true,
		CreatedAt:        time.Now().Add(-age),
	}
}

func TestSweepSendsFollowUpsPastAge(t *testing.T) {
	sender := &fakeSender{}
	store := &fakeStore{logs: []*dispatchdomain.DispatchLog{
		staleDispatch("old", 30*time.Hour),
		staleDispatch("fresh", 2*time.Hour),
	}}
	s := New(sender, store, time.Hour, 24*time.Hour)

	s.Sweep(context.Background())

	if len(sender.sent) != 1 || sender.sent[0] != "old" {
		t.Errorf("only the stale dispatch should get a follow-up, sent %v", sender.sent)
	}
	if len(store.marked) != 1 || store.marked[0] != "old" {
		t.Errorf("the stale dispatch should be marked handled, marked %v", store.marked)
	}
}

func TestSweepIsIdempotent(t *testing.T) {
	sender := &fakeSender{}
	store := &fakeStore{logs: []*dispatchdomain.DispatchLog{staleDispatch("old", 30 * time.Hour)}}
	s := New(sender, store, time.Hour, 24*time.Hour)

	s.Sweep(context.Background())
	s.Sweep(context.Background())

	if len(sender.sent) != 1 {
		t.Errorf("a dispatch gets at most one follow-up, sent %v", sender.sent)
	}
}

func TestSweepMarksHandledEvenWhenSendFails(t *testing.T) {
	sender := &fakeSender{err: errors.New("smtp on fire")}
	store := &fakeStore{logs: []*dispatchdomain.DispatchLog{staleDispatch("old", 30 * time.Hour)}}
	s := New(sender, store, time.Hour, 24*time.Hour)

	s.Sweep(context.Background())
	s.Sweep(context.Background())

	if len(sender.sent) != 1 {
		t.Errorf("a failed follow-up must not be retried forever, sent %v", sender.sent)
	}
	if len(store.marked) != 1 {
		t.Errorf("failed send should still mark the row handled, marked %v", store.marked)
	}
}
