package identity

import (
	"regexp"
	"strings"
	"time"

	"github.com/warungdigital/leadbot-backend/internal/form"
)

// InboundMessage is the transport-neutral shape the pipeline consumes.
type InboundMessage struct {
	Transport   string
	MessageID   string
	UserID      string
	Text        string
	FromMe      bool
	IsGroup     bool
	IsBroadcast bool
	Timestamp   time.Time
	Metadata    Metadata
}

// Metadata carries the secondary identifiers a transport may expose for the
// same human.
type Metadata struct {
	AltID    string
	Phone    string
	PushName string
}

// Validation reason codes. Empty reason means the message is processable.
const (
	ReasonMissingMessageID = "missing_message_id"
	ReasonMissingUserID    = "missing_user_id"
	ReasonOwnMessage       = "own_message"
	ReasonGroupIgnored     = "group_ignored"
	ReasonBroadcastIgnored = "broadcast_ignored"
	ReasonEmptyText        = "empty_text"
)

// Validate screens a parsed message. Own messages come back with
// ReasonOwnMessage; the pipeline still sees those to record the outbound
// interaction, every other reason is a hard skip for the adapter.
func Validate(msg InboundMessage) string {
	if msg.IsGroup {
		return ReasonGroupIgnored
	}
	if msg.IsBroadcast {
		return ReasonBroadcastIgnored
	}
	if strings.TrimSpace(msg.MessageID) == "" {
		return ReasonMissingMessageID
	}
	if strings.TrimSpace(msg.UserID) == "" {
		return ReasonMissingUserID
	}
	if msg.FromMe {
		return ReasonOwnMessage
	}
	if strings.TrimSpace(msg.Text) == "" {
		return ReasonEmptyText
	}
	return ""
}

// Intent classes. Heuristic only: dispatch is driven by lead state and
// literal option text, intent feeds logging.
const (
	IntentGreeting     = "greeting"
	IntentOptionSelect = "option_select"
	IntentQuestion     = "question"
	IntentFormResponse = "form_response"
	IntentUnknown      = "unknown"
)

var greetingWords = []string{
	"hi", "hello", "halo", "hai", "selamat", "salam", "hey",
	"pagi", "siang", "sore", "malam",
}

var interrogatives = []string{
	"apa", "bagaimana", "gimana", "berapa", "kapan", "dimana",
	"siapa", "mengapa", "kenapa",
	"what", "how", "when", "where", "who", "why",
}

var singleDigit = regexp.MustCompile(`^[1-9]$`)

func DetectIntent(text string) string {
	trimmed := strings.TrimSpace(text)
	lower := strings.ToLower(trimmed)
	if lower == "" {
		return IntentUnknown
	}

	firstWord := lower
	if i := strings.IndexAny(lower, " \t\n,.!"); i > 0 {
		firstWord = lower[:i]
	}
	for _, w := range greetingWords {
		if firstWord == w {
			return IntentGreeting
		}
	}

	if singleDigit.MatchString(trimmed) {
		return IntentOptionSelect
	}

	if strings.HasSuffix(trimmed, "?") {
		return IntentQuestion
	}
	for _, w := range interrogatives {
		if firstWord == w {
			return IntentQuestion
		}
	}

	if form.CountFormKeywords(text) >= 2 || strings.Contains(text, "\n") {
		return IntentFormResponse
	}

	return IntentUnknown
}
