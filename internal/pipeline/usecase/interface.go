package usecase

import (
	"context"
	"errors"

	mailboxdomain "replypilot-backend/internal/mailbox/domain"
	pipelinedomain "replypilot-backend/internal/pipeline/domain"
)

var (
	// ErrReauthRequired marks a hard authorization failure. The credential has
	// been invalidated and the mailbox owner must reconnect; callers must not
	// retry the operation.
	ErrReauthRequired = errors.New("upstream authorization rejected, reconnect required")

	// ErrUnknownMailbox is returned when a notification names a mailbox this
	// instance does not manage.
	ErrUnknownMailbox = errors.New("mailbox is not registered")

	// ErrNoCredential is returned when a mailbox exists but its credential was
	// cleared or never stored.
	ErrNoCredential = errors.New("mailbox has no stored credential")

	// ErrEmptyThread is returned when a reply is requested for a thread with
	// no messages.
	ErrEmptyThread = errors.New("cannot reply to an empty thread")

	// ErrNoMessageID is returned when the source thread carries no RFC-5322
	// message id; sending an unthreaded reply would break the recipient's
	// conversation view, so the send is aborted instead.
	ErrNoMessageID = errors.New("no Message-ID found on thread")
)

// MailSession is an authenticated connection to one mailbox at the upstream
// provider. pkg/gmail provides the production implementation; tests use fakes.
type MailSession interface {
	Watch(ctx context.Context) (*pipelinedomain.WatchResult, error)
	StopWatch(ctx context.Context) error
	ListHistory(ctx context.Context, startCursor uint64) (*pipelinedomain.HistoryResult, error)
	GetThread(ctx context.Context, threadID string) (*pipelinedomain.ThreadSnapshot, error)
	SendRaw(ctx context.Context, threadID string, raw []byte) (string, error)
	IsMessageUnread(ctx context.Context, messageID string) (bool, error)
	RefreshResult() (*mailboxdomain.Credential, bool)
}

// MailProvider hands out sessions for stored credentials.
type MailProvider interface {
	Authorize(ctx context.Context, cred *mailboxdomain.Credential) (MailSession, error)
}
