package usecase

import (
	"context"
	"errors"
	"fmt"
	"log"
	"math"
	"strconv"
	"time"

	mailboxdomain "replypilot-backend/internal/mailbox/domain"
	mailboxrepo "replypilot-backend/internal/mailbox/repository"
	pipelinedomain "replypilot-backend/internal/pipeline/domain"
	"replypilot-backend/pkg/cache"

	"google.golang.org/api/googleapi"
)

const (
	defaultMaxRetries = 5
	maxBackoff        = 60 * time.Second
)

// Fetcher decorates a MailSession with bounded exponential backoff on
// throttling, stale-cache fallback for thread reads, and credential
// invalidation on hard authorization failures. Every upstream call in the
// pipeline goes through one of these.
type Fetcher struct {
	session     MailSession
	mailboxID   string
	credentials mailboxrepo.CredentialRepository
	threadCache *cache.TTLCache
	maxRetries  int
	sleep       func(time.Duration)
}

func NewFetcher(session MailSession, mailboxID string, credentials mailboxrepo.CredentialRepository, threadCache *cache.TTLCache) *Fetcher {
	return &Fetcher{
		session:     session,
		mailboxID:   mailboxID,
		credentials: credentials,
		threadCache: threadCache,
		maxRetries:  defaultMaxRetries,
		sleep:       time.Sleep,
	}
}

// backoffDelay computes the wait before the next attempt. A Retry-After hint
// from the provider wins; otherwise min(2^attempt seconds, 60s).
func backoffDelay(attempt int, retryAfter string) time.Duration {
	if retryAfter != "" {
		if secs, err := strconv.Atoi(retryAfter); err == nil && secs > 0 {
			return time.Duration(secs) * time.Second
		}
	}
	d := time.Duration(math.Pow(2, float64(attempt))) * time.Second
	if d > maxBackoff {
		d = maxBackoff
	}
	return d
}

func (f *Fetcher) do(ctx context.Context, op string, fn func() error) error {
	for attempt := 0; ; attempt++ {
		err := fn()
		if err == nil {
			return nil
		}

		var gerr *googleapi.Error
		if errors.As(err, &gerr) {
			switch {
			case gerr.Code == 401:
				// Hard credential failure: clear the stored pair so every
				// later operation fails fast until the owner reconnects.
				if invErr := f.credentials.Invalidate(f.mailboxID); invErr != nil {
					log.Printf("[Fetcher] failed to invalidate credential for %s: %v", f.mailboxID, invErr)
				}
				return fmt.Errorf("%s for %s: %w", op, f.mailboxID, ErrReauthRequired)

			case gerr.Code == 429 && attempt < f.maxRetries:
				wait := backoffDelay(attempt, gerr.Header.Get("Retry-After"))
				log.Printf("[Fetcher] %s for %s throttled, retry %d/%d in %s", op, f.mailboxID, attempt+1, f.maxRetries, wait)
				f.sleep(wait)
				if ctx.Err() != nil {
					return ctx.Err()
				}
				continue
			}
		}
		return err
	}
}

func (f *Fetcher) Watch(ctx context.Context) (*pipelinedomain.WatchResult, error) {
	var result *pipelinedomain.WatchResult
	err := f.do(ctx, "watch", func() error {
		var err error
		result, err = f.session.Watch(ctx)
		return err
	})
	return result, err
}

func (f *Fetcher) StopWatch(ctx context.Context) error {
	return f.do(ctx, "stop watch", func() error {
		return f.session.StopWatch(ctx)
	})
}

func (f *Fetcher) ListHistory(ctx context.Context, startCursor uint64) (*pipelinedomain.HistoryResult, error) {
	var result *pipelinedomain.HistoryResult
	err := f.do(ctx, "list history", func() error {
		var err error
		result, err = f.session.ListHistory(ctx, startCursor)
		return err
	})
	return result, err
}

// GetThread serves the upstream thread, falling back to the last known-good
// snapshot for this mailbox when retries are exhausted on throttling, so a
// throttled provider never blanks out a conversation view.
func (f *Fetcher) GetThread(ctx context.Context, threadID string) (*pipelinedomain.ThreadSnapshot, error) {
	key := f.mailboxID + "/" + threadID

	var snapshot *pipelinedomain.ThreadSnapshot
	err := f.do(ctx, "get thread", func() error {
		var err error
		snapshot, err = f.session.GetThread(ctx, threadID)
		return err
	})
	if err == nil {
		if f.threadCache != nil {
			f.threadCache.Set(key, snapshot)
		}
		return snapshot, nil
	}

	var gerr *googleapi.Error
	if f.threadCache != nil && errors.As(err, &gerr) && gerr.Code == 429 {
		if stale, ok := f.threadCache.GetStale(key); ok {
			log.Printf("[Fetcher] serving stale thread %s for %s after throttling", threadID, f.mailboxID)
			return stale.(*pipelinedomain.ThreadSnapshot), nil
		}
	}
	return nil, err
}

func (f *Fetcher) SendRaw(ctx context.Context, threadID string, raw []byte) (string, error) {
	var id string
	err := f.do(ctx, "send", func() error {
		var err error
		id, err = f.session.SendRaw(ctx, threadID, raw)
		return err
	})
	return id, err
}

func (f *Fetcher) IsMessageUnread(ctx context.Context, messageID string) (bool, error) {
	var unread bool
	err := f.do(ctx, "get message", func() error {
		var err error
		unread, err = f.session.IsMessageUnread(ctx, messageID)
		return err
	})
	return unread, err
}

func (f *Fetcher) RefreshResult() (*mailboxdomain.Credential, bool) {
	return f.session.RefreshResult()
}
