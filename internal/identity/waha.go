package identity

import (
	"regexp"
	"strings"
	"time"

	"github.com/warungdigital/leadbot-backend/internal/domain"
)

// WAHA webhook envelope, trimmed to the fields the core consumes.
type WAHAWebhook struct {
	Event   string      `json:"event"`
	Session string      `json:"session"`
	Payload WAHAPayload `json:"payload"`
}

type WAHAPayload struct {
	ID          string   `json:"id"`
	From        string   `json:"from"`
	To          string   `json:"to"`
	Body        string   `json:"body"`
	FromMe      bool     `json:"fromMe"`
	IsGroup     bool     `json:"isGroup"`
	Participant string   `json:"participant"`
	Timestamp   int64    `json:"timestamp"`
	ChatID      string   `json:"chatId"`
	Data        WAHAData `json:"_data"`
}

type WAHAData struct {
	Key      WAHAKey `json:"key"`
	PushName string  `json:"pushName"`
}

type WAHAKey struct {
	RemoteJid    string `json:"remoteJid"`
	RemoteJidAlt string `json:"remoteJidAlt"`
	FromMe       bool   `json:"fromMe"`
}

const (
	suffixUser   = "@s.whatsapp.net"
	suffixLegacy = "@c.us"
	suffixLinked = "@lid"
	suffixGroup  = "@g.us"
)

var deviceSuffix = regexp.MustCompile(`:\d+@`)
var bareDigits = regexp.MustCompile(`^\d{10,}$`)

// NormalizeJID canonicalizes the identifier shapes WAHA emits:
// device suffixes are stripped, the legacy @c.us domain maps to
// @s.whatsapp.net, @lid and @s.whatsapp.net pass through, and bare
// phone-length digits gain the @s.whatsapp.net domain.
func NormalizeJID(jid string) string {
	jid = strings.TrimSpace(jid)
	if jid == "" {
		return ""
	}
	jid = deviceSuffix.ReplaceAllString(jid, "@")
	switch {
	case strings.HasSuffix(jid, suffixLinked), strings.HasSuffix(jid, suffixUser):
		return jid
	case strings.HasSuffix(jid, suffixLegacy):
		return strings.TrimSuffix(jid, suffixLegacy) + suffixUser
	case bareDigits.MatchString(jid):
		return jid + suffixUser
	}
	return jid
}

func isGroupJID(jid string) bool {
	return strings.HasSuffix(jid, suffixGroup)
}

func isBroadcastJID(jid string) bool {
	return strings.Contains(jid, "status@broadcast") || strings.HasSuffix(jid, "@broadcast")
}

// FromWAHA normalizes a WAHA webhook into an InboundMessage. For our own
// outbound messages the counterpart (recipient) becomes the user id so the
// pipeline can mark that lead as already contacted.
func FromWAHA(hook WAHAWebhook) InboundMessage {
	p := hook.Payload
	fromMe := p.FromMe || p.Data.Key.FromMe

	rawUser := p.Data.Key.RemoteJid
	if rawUser == "" {
		rawUser = p.ChatID
	}
	if rawUser == "" {
		rawUser = p.From
	}
	if fromMe && p.To != "" {
		rawUser = p.To
	}

	isGroup := p.IsGroup || p.Participant != "" ||
		isGroupJID(p.ChatID) || isGroupJID(p.From) || isGroupJID(rawUser)
	isBroadcast := isBroadcastJID(p.ChatID) || isBroadcastJID(p.From) || isBroadcastJID(rawUser)

	userID := NormalizeJID(rawUser)
	altID := NormalizeJID(p.Data.Key.RemoteJidAlt)
	if altID == userID {
		altID = ""
	}

	var phone string
	for _, jid := range []string{userID, altID} {
		if strings.HasSuffix(jid, suffixUser) {
			phone = strings.TrimSuffix(jid, suffixUser)
			break
		}
	}

	var ts time.Time
	if p.Timestamp > 0 {
		ts = time.Unix(p.Timestamp, 0).UTC()
	}

	return InboundMessage{
		Transport:   domain.TransportWhatsApp,
		MessageID:   p.ID,
		UserID:      userID,
		Text:        p.Body,
		FromMe:      fromMe,
		IsGroup:     isGroup,
		IsBroadcast: isBroadcast,
		Timestamp:   ts,
		Metadata: Metadata{
			AltID:    altID,
			Phone:    phone,
			PushName: p.Data.PushName,
		},
	}
}
