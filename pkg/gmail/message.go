package gmail

import (
	"encoding/base64"
	"regexp"
	"strings"

	"google.golang.org/api/gmail/v1"
)

// Body holds the decoded textual parts of a message.
type Body struct {
	Plain string
	HTML  string
}

// ExtractBody walks the MIME part tree and collects the text/plain and
// text/html parts. Pure function over the parsed structure; nested multiparts
// are concatenated in document order.
func ExtractBody(payload *gmail.MessagePart) Body {
	if payload == nil {
		return Body{}
	}

	if len(payload.Parts) == 0 {
		return Body{
			Plain: decodePart(payload, "text/plain"),
			HTML:  decodePart(payload, "text/html"),
		}
	}

	var body Body
	for _, part := range payload.Parts {
		sub := ExtractBody(part)
		body.Plain += sub.Plain
		body.HTML += sub.HTML
	}
	return body
}

func decodePart(part *gmail.MessagePart, mimeType string) string {
	if part.MimeType != mimeType || part.Body == nil || part.Body.Data == "" {
		return ""
	}
	data, err := base64.URLEncoding.DecodeString(part.Body.Data)
	if err != nil {
		return ""
	}
	return string(data)
}

var (
	styleRe  = regexp.MustCompile(`(?is)<style[^>]*>.*?</style>`)
	scriptRe = regexp.MustCompile(`(?is)<script[^>]*>.*?</script>`)
	tagRe    = regexp.MustCompile(`<[^>]*>`)
	entityRe = regexp.MustCompile(`(&#\d+;|\s*&zwnj;&nbsp;)+`)
	blankRe  = regexp.MustCompile(`(\n\s*){3,}`)
)

// StripHTML reduces an HTML body to its visible text.
func StripHTML(html string) string {
	text := styleRe.ReplaceAllString(html, "")
	text = scriptRe.ReplaceAllString(text, "")
	return tagRe.ReplaceAllString(text, "")
}

// junkPatterns mark boilerplate lines that add noise to classification
// prompts (newsletter footers, digest chrome).
var junkPatterns = []string{
	"unsubscribe",
	"view in browser",
	"update your preferences",
	"no longer wish to receive",
	"all rights reserved",
	"upvotes",
	"comments",
	"hide r/",
	"view more posts",
	"this email was intended for",
}

// CleanText drops boilerplate lines and collapses entity noise so the
// classifier and reply prompts see only the meaningful text.
func CleanText(text string) string {
	lines := strings.Split(text, "\n")
	kept := lines[:0]
	for _, line := range lines {
		lower := strings.ToLower(line)
		junk := false
		for _, pattern := range junkPatterns {
			if strings.Contains(lower, pattern) {
				junk = true
				break
			}
		}
		if !junk {
			kept = append(kept, line)
		}
	}

	cleaned := strings.Join(kept, "\n")
	cleaned = entityRe.ReplaceAllString(cleaned, " ")
	cleaned = strings.ReplaceAll(cleaned, "•", "")
	cleaned = blankRe.ReplaceAllString(cleaned, "\n\n")
	return strings.TrimSpace(cleaned)
}

var (
	bracketRe = regexp.MustCompile(`<(.+?)>`)
	emailRe   = regexp.MustCompile(`([a-zA-Z0-9._%+-]+@[a-zA-Z0-9.-]+\.[a-zA-Z]{2,6})`)
)

// ParseAddress extracts the bare address from a From/To header value such as
// "Jane Doe <jane@example.com>". Falls back to the raw header.
func ParseAddress(header string) string {
	if header == "" {
		return ""
	}
	if m := bracketRe.FindStringSubmatch(header); len(m) == 2 {
		return m[1]
	}
	if m := emailRe.FindStringSubmatch(header); len(m) == 2 {
		return m[1]
	}
	return header
}

func getHeader(payload *gmail.MessagePart, name string) string {
	if payload == nil {
		return ""
	}
	for _, header := range payload.Headers {
		if strings.EqualFold(header.Name, name) {
			return header.Value
		}
	}
	return ""
}
