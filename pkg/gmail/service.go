package gmail

import (
	"context"
	"encoding/base64"
	"fmt"
	"sync"
	"time"

	mailboxdomain "replypilot-backend/internal/mailbox/domain"
	pipelinedomain "replypilot-backend/internal/pipeline/domain"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/gmail/v1"
	"google.golang.org/api/option"
)

// Service creates authenticated Gmail sessions for mailboxes.
type Service struct {
	clientID     string
	clientSecret string
	topicName    string
}

func NewService(clientID, clientSecret, topicName string) *Service {
	return &Service{
		clientID:     clientID,
		clientSecret: clientSecret,
		topicName:    topicName,
	}
}

// captureTokenSource records token refreshes instead of firing a callback.
// The caller reads the result through Session.RefreshResult and persists it
// explicitly, so nothing mutates storage from inside an HTTP round trip.
type captureTokenSource struct {
	src oauth2.TokenSource

	mu        sync.Mutex
	current   string
	refreshed *oauth2.Token
}

func (s *captureTokenSource) Token() (*oauth2.Token, error) {
	t, err := s.src.Token()
	if err != nil {
		return nil, err
	}
	s.mu.Lock()
	if t.AccessToken != s.current {
		s.current = t.AccessToken
		s.refreshed = t
	}
	s.mu.Unlock()
	return t, nil
}

func (s *captureTokenSource) take() (*oauth2.Token, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.refreshed == nil {
		return nil, false
	}
	t := s.refreshed
	s.refreshed = nil
	return t, true
}

// Session is an authenticated view of one mailbox.
type Session struct {
	mailboxID    string
	topicName    string
	refreshToken string
	srv          *gmail.Service
	tokens       *captureTokenSource
}

// Authorize builds a Gmail session from a stored credential.
func (s *Service) Authorize(ctx context.Context, cred *mailboxdomain.Credential) (*Session, error) {
	if !cred.Valid() {
		return nil, fmt.Errorf("mailbox %s has no usable credential", cred.MailboxID)
	}

	token := &oauth2.Token{
		AccessToken:  cred.AccessToken,
		RefreshToken: cred.RefreshToken,
		TokenType:    "Bearer",
		Expiry:       cred.Expiry,
	}

	// Only force refresh if we have a refresh token
	if cred.RefreshToken != "" && cred.Expiry.IsZero() {
		token.Expiry = time.Now()
	}

	config := &oauth2.Config{
		ClientID:     s.clientID,
		ClientSecret: s.clientSecret,
		Endpoint:     google.Endpoint,
	}

	tokens := &captureTokenSource{
		src:     config.TokenSource(ctx, token),
		current: token.AccessToken,
	}

	client := oauth2.NewClient(ctx, tokens)
	srv, err := gmail.NewService(ctx, option.WithHTTPClient(client))
	if err != nil {
		return nil, fmt.Errorf("unable to create Gmail service: %v", err)
	}

	return &Session{
		mailboxID:    cred.MailboxID,
		topicName:    s.topicName,
		refreshToken: cred.RefreshToken,
		srv:          srv,
		tokens:       tokens,
	}, nil
}

// RefreshResult reports a token pair refreshed during this session, once.
// The caller is responsible for persisting it.
func (s *Session) RefreshResult() (*mailboxdomain.Credential, bool) {
	t, ok := s.tokens.take()
	if !ok {
		return nil, false
	}
	refresh := t.RefreshToken
	if refresh == "" {
		// Google omits the refresh token on rotation; keep the stored one.
		refresh = s.refreshToken
	}
	return &mailboxdomain.Credential{
		MailboxID:    s.mailboxID,
		AccessToken:  t.AccessToken,
		RefreshToken: refresh,
		Expiry:       t.Expiry,
	}, true
}

// Watch establishes the inbox push subscription. Any existing watch is
// stopped first so re-registration simply replaces the subscription.
func (s *Session) Watch(ctx context.Context) (*pipelinedomain.WatchResult, error) {
	_ = s.srv.Users.Stop("me").Context(ctx).Do()

	req := &gmail.WatchRequest{
		TopicName: s.topicName,
		LabelIds:  []string{"INBOX"},
	}

	resp, err := s.srv.Users.Watch("me", req).Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("unable to watch mailbox: %w", err)
	}

	return &pipelinedomain.WatchResult{
		Cursor: resp.HistoryId,
		Expiry: time.UnixMilli(resp.Expiration),
	}, nil
}

// StopWatch tears down the push subscription.
func (s *Session) StopWatch(ctx context.Context) error {
	if err := s.srv.Users.Stop("me").Context(ctx).Do(); err != nil {
		return fmt.Errorf("unable to stop mailbox watch: %w", err)
	}
	return nil
}

// ListHistory fetches the incremental change-list starting at the cursor and
// keeps only "message added" events.
func (s *Session) ListHistory(ctx context.Context, startCursor uint64) (*pipelinedomain.HistoryResult, error) {
	result := &pipelinedomain.HistoryResult{Cursor: startCursor}
	pageToken := ""

	for {
		call := s.srv.Users.History.List("me").
			StartHistoryId(startCursor).
			HistoryTypes("messageAdded").
			Context(ctx)
		if pageToken != "" {
			call = call.PageToken(pageToken)
		}

		resp, err := call.Do()
		if err != nil {
			return nil, fmt.Errorf("unable to list history: %w", err)
		}

		if resp.HistoryId > result.Cursor {
			result.Cursor = resp.HistoryId
		}
		for _, h := range resp.History {
			for _, added := range h.MessagesAdded {
				if added.Message == nil {
					continue
				}
				result.Added = append(result.Added, pipelinedomain.HistoryEvent{
					MessageID: added.Message.Id,
					ThreadID:  added.Message.ThreadId,
				})
			}
		}

		pageToken = resp.NextPageToken
		if pageToken == "" {
			return result, nil
		}
	}
}

// GetThread fetches the full conversation and converts it into a snapshot.
func (s *Session) GetThread(ctx context.Context, threadID string) (*pipelinedomain.ThreadSnapshot, error) {
	resp, err := s.srv.Users.Threads.Get("me", threadID).Format("full").Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("unable to retrieve thread: %w", err)
	}

	snapshot := &pipelinedomain.ThreadSnapshot{
		ThreadID: threadID,
		Messages: make([]pipelinedomain.ThreadMessage, 0, len(resp.Messages)),
	}
	for _, msg := range resp.Messages {
		snapshot.Messages = append(snapshot.Messages, convertMessage(msg))
	}
	return snapshot, nil
}

// SendRaw hands a raw RFC-5322 message to Gmail, pinned to an existing thread
// so clients keep the reply in the same conversation. Returns the
// provider-assigned message id.
func (s *Session) SendRaw(ctx context.Context, threadID string, raw []byte) (string, error) {
	msg := &gmail.Message{
		Raw:      base64.URLEncoding.EncodeToString(raw),
		ThreadId: threadID,
	}

	sent, err := s.srv.Users.Messages.Send("me", msg).Context(ctx).Do()
	if err != nil {
		return "", fmt.Errorf("unable to send message: %w", err)
	}
	return sent.Id, nil
}

// IsMessageUnread inspects the UNREAD label on a single message.
func (s *Session) IsMessageUnread(ctx context.Context, messageID string) (bool, error) {
	msg, err := s.srv.Users.Messages.Get("me", messageID).Format("minimal").Context(ctx).Do()
	if err != nil {
		return false, fmt.Errorf("unable to get message: %w", err)
	}
	return hasLabel(msg.LabelIds, "UNREAD"), nil
}

func convertMessage(msg *gmail.Message) pipelinedomain.ThreadMessage {
	body := ExtractBody(msg.Payload)
	text := body.Plain
	if text == "" && body.HTML != "" {
		text = StripHTML(body.HTML)
	}

	return pipelinedomain.ThreadMessage{
		ID:           msg.Id,
		MessageID:    getHeader(msg.Payload, "Message-ID"),
		From:         getHeader(msg.Payload, "From"),
		Subject:      getHeader(msg.Payload, "Subject"),
		Body:         CleanText(text),
		Unread:       hasLabel(msg.LabelIds, "UNREAD"),
		InternalDate: time.UnixMilli(msg.InternalDate),
	}
}

func hasLabel(labels []string, labelID string) bool {
	for _, label := range labels {
		if label == labelID {
			return true
		}
	}
	return false
}
