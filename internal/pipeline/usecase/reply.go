package usecase

import (
	"context"
	"fmt"
	"strings"

	pipelinedomain "replypilot-backend/internal/pipeline/domain"
	"replypilot-backend/pkg/ai"
	"replypilot-backend/pkg/gmail"

	"github.com/google/uuid"
)

const replyPrompt = `You are a professional email assistant replying on behalf of a mailbox owner. Write a helpful, concise reply to the newest message in the conversation below. Reply with the email body only, no subject line and no signature placeholders.

CONVERSATION:
%s

REPLY:`

const followUpPrompt = `You are a professional email assistant. The reply below was sent over a day ago and has received no response. Write a short, polite follow-up message that gently re-engages the recipient without pressuring them. Reply with the email body only.

CONVERSATION:
%s

FOLLOW-UP:`

// Synthesizer produces reply text through the Completion Service and builds
// correctly-threaded outbound messages.
type Synthesizer struct {
	completions ai.CompletionService
}

func NewSynthesizer(completions ai.CompletionService) *Synthesizer {
	return &Synthesizer{completions: completions}
}

// conversationText flattens a thread for the model, oldest first.
func conversationText(snapshot *pipelinedomain.ThreadSnapshot) string {
	parts := make([]string, 0, len(snapshot.Messages))
	for _, m := range snapshot.Messages {
		parts = append(parts, fmt.Sprintf("From: %s\n\n%s", m.From, m.Body))
	}
	return strings.Join(parts, "\n\n---\n\n")
}

// GenerateReply asks the Completion Service for reply text to the thread.
func (s *Synthesizer) GenerateReply(ctx context.Context, snapshot *pipelinedomain.ThreadSnapshot) (string, error) {
	text, err := s.completions.Complete(ctx, fmt.Sprintf(replyPrompt, conversationText(snapshot)))
	if err != nil {
		return "", fmt.Errorf("reply generation failed: %w", err)
	}
	return strings.TrimSpace(text), nil
}

// GenerateFollowUp asks for a polite re-engagement message.
func (s *Synthesizer) GenerateFollowUp(ctx context.Context, snapshot *pipelinedomain.ThreadSnapshot) (string, error) {
	text, err := s.completions.Complete(ctx, fmt.Sprintf(followUpPrompt, conversationText(snapshot)))
	if err != nil {
		return "", fmt.Errorf("follow-up generation failed: %w", err)
	}
	return strings.TrimSpace(text), nil
}

// replySubject prefixes the subject with a single "Re:"; already-prefixed
// subjects pass through unchanged.
func replySubject(subject string) string {
	if strings.HasPrefix(strings.ToLower(subject), "re:") {
		return subject
	}
	return "Re: " + subject
}

// referencesHeader joins every message id seen in the thread, ending with the
// id the reply answers. Truncating this chain breaks conversation grouping in
// the recipient's client.
func referencesHeader(messageIDs []string) string {
	return strings.Join(messageIDs, " ")
}

func htmlBody(replyText, pixelURL string) string {
	escaped := strings.ReplaceAll(replyText, "\n", "<br>")
	return fmt.Sprintf(`<div dir="auto">%s</div><img src="%s" width="1" height="1" alt="">`, escaped, pixelURL)
}

// BuildReply constructs the raw RFC-5322 reply to a thread. The HTML part
// embeds a tracking pixel referencing the dispatch log that will record the
// send. A thread whose last message has no Message-ID cannot be threaded
// correctly and aborts the send.
func BuildReply(snapshot *pipelinedomain.ThreadSnapshot, from, replyText, pixelURL string) (*pipelinedomain.OutboundMessage, error) {
	last := snapshot.LastMessage()
	if last == nil {
		return nil, ErrEmptyThread
	}

	messageIDs := snapshot.MessageIDs()
	if len(messageIDs) == 0 {
		return nil, ErrNoMessageID
	}
	lastMessageID := messageIDs[len(messageIDs)-1]

	to := gmail.ParseAddress(last.From)
	subject := replySubject(last.Subject)
	boundary := "----=_Part_" + uuid.New().String()

	headers := []string{
		fmt.Sprintf("From: %s", from),
		fmt.Sprintf("To: %s", to),
		fmt.Sprintf("Subject: %s", subject),
		fmt.Sprintf("In-Reply-To: %s", lastMessageID),
		fmt.Sprintf("References: %s", referencesHeader(messageIDs)),
		"MIME-Version: 1.0",
		fmt.Sprintf("Content-Type: multipart/alternative; boundary=%q", boundary),
		"",
		"--" + boundary,
		`Content-Type: text/plain; charset="UTF-8"`,
		"",
		replyText,
		"",
		"--" + boundary,
		`Content-Type: text/html; charset="UTF-8"`,
		"",
		htmlBody(replyText, pixelURL),
		"",
		"--" + boundary + "--",
	}

	return &pipelinedomain.OutboundMessage{
		To:      to,
		Subject: subject,
		Raw:     []byte(strings.Join(headers, "\r\n")),
	}, nil
}
