package domain

import "time"

// ThreadMessage is one message inside a reconstructed thread snapshot.
type ThreadMessage struct {
	ID           string // provider message id
	MessageID    string // RFC-5322 Message-ID header, may be empty
	From         string
	Subject      string
	Body         string
	Unread       bool
	InternalDate time.Time
}

// ThreadSnapshot is an ephemeral, ordered view of one conversation,
// reconstructed from upstream data for the lifetime of a single pipeline
// invocation. It is never persisted.
type ThreadSnapshot struct {
	ThreadID string
	Messages []ThreadMessage
}

// LastMessage returns the newest message in the thread, or nil when empty.
func (t *ThreadSnapshot) LastMessage() *ThreadMessage {
	if t == nil || len(t.Messages) == 0 {
		return nil
	}
	return &t.Messages[len(t.Messages)-1]
}

// MessageIDs returns every RFC-5322 message id seen in the thread, in order,
// skipping messages that carry none.
func (t *ThreadSnapshot) MessageIDs() []string {
	ids := make([]string, 0, len(t.Messages))
	for _, m := range t.Messages {
		if m.MessageID != "" {
			ids = append(ids, m.MessageID)
		}
	}
	return ids
}
