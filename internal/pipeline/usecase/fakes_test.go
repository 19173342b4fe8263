package usecase

import (
	"context"
	"fmt"
	"time"

	dispatchdomain "replypilot-backend/internal/dispatch/domain"
	mailboxdomain "replypilot-backend/internal/mailbox/domain"
	pipelinedomain "replypilot-backend/internal/pipeline/domain"
)

type fakeCompletion struct {
	response string
	err      error
	prompts  []string
}

func (f *fakeCompletion) Complete(ctx context.Context, prompt string) (string, error) {
	f.prompts = append(f.prompts, prompt)
	return f.response, f.err
}

type fakeSession struct {
	watchResult   *pipelinedomain.WatchResult
	historyResult *pipelinedomain.HistoryResult
	historyErr    error
	threads       map[string]*pipelinedomain.ThreadSnapshot
	threadErr     error
	sendErr       error
	sentIDs       []string
	sentRaw       [][]byte
	nextSentID    string
	unread        map[string]bool
	refreshed     *mailboxdomain.Credential
}

func (f *fakeSession) Watch(ctx context.Context) (*pipelinedomain.WatchResult, error) {
	if f.watchResult == nil {
		return &pipelinedomain.WatchResult{Cursor: 1, Expiry: time.Now().Add(time.Hour)}, nil
	}
	return f.watchResult, nil
}

func (f *fakeSession) StopWatch(ctx context.Context) error { return nil }

func (f *fakeSession) ListHistory(ctx context.Context, startCursor uint64) (*pipelinedomain.HistoryResult, error) {
	if f.historyErr != nil {
		return nil, f.historyErr
	}
	if f.historyResult == nil {
		return &pipelinedomain.HistoryResult{Cursor: startCursor}, nil
	}
	return f.historyResult, nil
}

func (f *fakeSession) GetThread(ctx context.Context, threadID string) (*pipelinedomain.ThreadSnapshot, error) {
	if f.threadErr != nil {
		return nil, f.threadErr
	}
	if snap, ok := f.threads[threadID]; ok {
		return snap, nil
	}
	return &pipelinedomain.ThreadSnapshot{ThreadID: threadID}, nil
}

func (f *fakeSession) SendRaw(ctx context.Context, threadID string, raw []byte) (string, error) {
	if f.sendErr != nil {
		return "", f.sendErr
	}
	id := f.nextSentID
	if id == "" {
		id = "sent-1"
	}
	f.sentIDs = append(f.sentIDs, id)
	f.sentRaw = append(f.sentRaw, raw)
	return id, nil
}

func (f *fakeSession) IsMessageUnread(ctx context.Context, messageID string) (bool, error) {
	return f.unread[messageID], nil
}

func (f *fakeSession) RefreshResult() (*mailboxdomain.Credential, bool) {
	if f.refreshed == nil {
		return nil, false
	}
	cred := f.refreshed
	f.refreshed = nil
	return cred, true
}

type fakeProvider struct {
	session      *fakeSession
	authorizeErr error
}

func (f *fakeProvider) Authorize(ctx context.Context, cred *mailboxdomain.Credential) (MailSession, error) {
	if f.authorizeErr != nil {
		return nil, f.authorizeErr
	}
	return f.session, nil
}

type fakeWatchRepo struct {
	watches  map[string]*mailboxdomain.MailboxWatch
	advanced []uint64
}

func newFakeWatchRepo() *fakeWatchRepo {
	return &fakeWatchRepo{watches: make(map[string]*mailboxdomain.MailboxWatch)}
}

func (f *fakeWatchRepo) FindByMailboxID(mailboxID string) (*mailboxdomain.MailboxWatch, error) {
	return f.watches[mailboxID], nil
}

func (f *fakeWatchRepo) Save(watch *mailboxdomain.MailboxWatch) error {
	f.watches[watch.MailboxID] = watch
	return nil
}

func (f *fakeWatchRepo) AdvanceCursor(mailboxID string, cursor uint64) error {
	f.advanced = append(f.advanced, cursor)
	if w, ok := f.watches[mailboxID]; ok && cursor > w.HistoryCursor {
		w.HistoryCursor = cursor
	}
	return nil
}

func (f *fakeWatchRepo) Delete(mailboxID string) error {
	delete(f.watches, mailboxID)
	return nil
}

type fakeCredentialRepo struct {
	creds       map[string]*mailboxdomain.Credential
	invalidated []string
	saved       []*mailboxdomain.Credential
}

func newFakeCredentialRepo() *fakeCredentialRepo {
	return &fakeCredentialRepo{creds: make(map[string]*mailboxdomain.Credential)}
}

func (f *fakeCredentialRepo) FindByMailboxID(mailboxID string) (*mailboxdomain.Credential, error) {
	return f.creds[mailboxID], nil
}

func (f *fakeCredentialRepo) Save(cred *mailboxdomain.Credential) error {
	f.creds[cred.MailboxID] = cred
	f.saved = append(f.saved, cred)
	return nil
}

func (f *fakeCredentialRepo) Invalidate(mailboxID string) error {
	f.invalidated = append(f.invalidated, mailboxID)
	if c, ok := f.creds[mailboxID]; ok {
		c.AccessToken = ""
		c.RefreshToken = ""
	}
	return nil
}

type fakeDispatchRepo struct {
	logs      map[string]*dispatchdomain.DispatchLog
	seq       int
	deleted   []string
	cleared   [][2]string
	marked    []string
	createErr error
}

func newFakeDispatchRepo() *fakeDispatchRepo {
	return &fakeDispatchRepo{logs: make(map[string]*dispatchdomain.DispatchLog)}
}

func (f *fakeDispatchRepo) Create(entry *dispatchdomain.DispatchLog) error {
	if f.createErr != nil {
		return f.createErr
	}
	f.seq++
	if entry.ID == "" {
		entry.ID = fmt.Sprintf("log-%d", f.seq)
	}
	entry.CreatedAt = time.Now()
	f.logs[entry.ID] = entry
	return nil
}

func (f *fakeDispatchRepo) Delete(id string) error {
	f.deleted = append(f.deleted, id)
	delete(f.logs, id)
	return nil
}

func (f *fakeDispatchRepo) FindByID(id string) (*dispatchdomain.DispatchLog, error) {
	return f.logs[id], nil
}

func (f *fakeDispatchRepo) FindBySentMessageID(sentMessageID string) (*dispatchdomain.DispatchLog, error) {
	for _, l := range f.logs {
		if l.SentMessageID == sentMessageID {
			return l, nil
		}
	}
	return nil, nil
}

func (f *fakeDispatchRepo) FindByMailboxID(mailboxID string, limit int) ([]*dispatchdomain.DispatchLog, error) {
	var out []*dispatchdomain.DispatchLog
	for _, l := range f.logs {
		if l.MailboxID == mailboxID {
			out = append(out, l)
		}
	}
	return out, nil
}

func (f *fakeDispatchRepo) AttachSentMessageID(id, sentMessageID string) error {
	if l, ok := f.logs[id]; ok {
		l.SentMessageID = sentMessageID
	}
	return nil
}

func (f *fakeDispatchRepo) UpdateStatusForward(id, newStatus string) (bool, error) {
	l, ok := f.logs[id]
	if !ok {
		return false, nil
	}
	if dispatchdomain.StatusRank(newStatus) <= dispatchdomain.StatusRank(l.Status) {
		return false, nil
	}
	l.Status = newStatus
	return true, nil
}

func (f *fakeDispatchRepo) ClearFollowUps(mailboxID, threadID string) error {
	f.cleared = append(f.cleared, [2]string{mailboxID, threadID})
	for _, l := range f.logs {
		if l.MailboxID == mailboxID && l.ThreadID == threadID {
			l.FollowUpRequired = false
		}
	}
	return nil
}

func (f *fakeDispatchRepo) FindFollowUpsDue(cutoff time.Time) ([]*dispatchdomain.DispatchLog, error) {
	var out []*dispatchdomain.DispatchLog
	for _, l := range f.logs {
		if l.FollowUpRequired && !l.FollowUpSent && l.CreatedAt.Before(cutoff) {
			out = append(out, l)
		}
	}
	return out, nil
}

func (f *fakeDispatchRepo) MarkFollowUpSent(id string) error {
	f.marked = append(f.marked, id)
	if l, ok := f.logs[id]; ok {
		l.FollowUpSent = true
	}
	return nil
}
