package usecase

import (
	"context"
	"fmt"
	"strings"

	pipelinedomain "replypilot-backend/internal/pipeline/domain"
	"replypilot-backend/pkg/ai"
)

// triageBodyLimit caps how much of the email body is sent to the model.
const triageBodyLimit = 4000

const triagePrompt = `You are an expert email classification system. Your task is to classify the content of a new email into one of three distinct categories. Respond with ONLY the category label.

Here are the categories and their definitions:
1.  **Direct Inquiry**: Any message from a person that requires a unique, contextual response. This includes questions, replies, business proposals, and casual conversation.
2.  **Form Submission**: An email that is automatically generated by a web form, lead capture form, or application system. It typically contains structured data with labels like "Name:", "Email:", "Message:".
3.  **Advertisement**: Automated marketing emails, newsletters, promotions, social media notifications (like from Reddit), or spam. These do not require a personal reply.

**Examples:**
-   **Text:** "wow bro thats cool. what else can you help me with"
    **Classification:** Direct Inquiry
-   **Text:** "Full/Company Name: GBD trans, E-mail: gbdtransllc@gmail.com, Phone Number: 7748238913..."
    **Classification:** Form Submission
-   **Text:** "r/nvidia: 5090 Upgrade Upgraded to 5090 94 upvotes"
    **Classification:** Advertisement

Now, classify the following email text. Respond with only one of the three category labels.

EMAIL TEXT: """
%s
"""

CLASSIFICATION:`

// Classifier labels inbound messages through the Completion Service. It holds
// no state; a failing service surfaces as an error and the caller must treat
// that as "do not reply".
type Classifier struct {
	completions ai.CompletionService
}

func NewClassifier(completions ai.CompletionService) *Classifier {
	return &Classifier{completions: completions}
}

func (c *Classifier) Classify(ctx context.Context, messageBody string) (pipelinedomain.Triage, error) {
	body := messageBody
	if len(body) > triageBodyLimit {
		body = body[:triageBodyLimit]
	}

	label, err := c.completions.Complete(ctx, fmt.Sprintf(triagePrompt, body))
	if err != nil {
		return "", fmt.Errorf("triage classification failed: %w", err)
	}

	normalized := strings.ToLower(label)
	switch {
	case strings.Contains(normalized, "advertisement"):
		return pipelinedomain.TriageAdvertisement, nil
	case strings.Contains(normalized, "form submission"):
		return pipelinedomain.TriageFormSubmission, nil
	case strings.Contains(normalized, "direct inquiry"):
		return pipelinedomain.TriageDirectInquiry, nil
	}
	return "", fmt.Errorf("unrecognized triage label %q", strings.TrimSpace(label))
}
