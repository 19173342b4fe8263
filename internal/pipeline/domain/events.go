package domain

import "time"

// WatchResult is what the upstream provider returns when a push subscription
// is established.
type WatchResult struct {
	Cursor    uint64
	ChannelID string
	Expiry    time.Time
}

// HistoryEvent is one "message added" change from the incremental change-list.
// All other change kinds are filtered out before they reach the pipeline.
type HistoryEvent struct {
	MessageID string
	ThreadID  string
}

// HistoryResult is the outcome of one incremental change-list fetch. Cursor is
// the provider's new cursor and may have advanced even when Added is empty.
type HistoryResult struct {
	Added  []HistoryEvent
	Cursor uint64
}

// Triage is the label the classifier assigns to an inbound message.
type Triage string

const (
	TriageDirectInquiry  Triage = "DirectInquiry"
	TriageFormSubmission Triage = "FormSubmission"
	TriageAdvertisement  Triage = "Advertisement"
)

// OutboundMessage is a fully built reply ready for dispatch.
type OutboundMessage struct {
	To      string
	Subject string
	Raw     []byte
}
