package webhook

import (
	"strconv"
	"strings"
	"time"
)

// WebhookEvent is the provider's inbound envelope (WhatsApp Cloud API shape).
type WebhookEvent struct {
	Object string  `json:"object"`
	Entry  []Entry `json:"entry"`
}

type Entry struct {
	ID      string   `json:"id"`
	Changes []Change `json:"changes"`
}

type Change struct {
	Field string `json:"field"`
	Value Value  `json:"value"`
}

type Value struct {
	Metadata Metadata  `json:"metadata"`
	Contacts []Contact `json:"contacts"`
	Messages []Message `json:"messages"`
	Statuses []Status  `json:"statuses"`
}

type Metadata struct {
	DisplayPhoneNumber string `json:"display_phone_number"`
	PhoneNumberID      string `json:"phone_number_id"`
}

type Contact struct {
	WaID    string  `json:"wa_id"`
	Profile Profile `json:"profile"`
}

type Profile struct {
	Name string `json:"name"`
}

type Message struct {
	From      string `json:"from"`
	ID        string `json:"id"`
	Timestamp string `json:"timestamp"`
	Type      string `json:"type"`
	Text      *Text  `json:"text,omitempty"`
}

type Text struct {
	Body string `json:"body"`
}

type Status struct {
	ID          string `json:"id"`
	Status      string `json:"status"`
	RecipientID string `json:"recipient_id"`
	Timestamp   string `json:"timestamp"`
}

// ParsedMessage is one inbound customer message extracted from an envelope.
type ParsedMessage struct {
	PhoneNumberID string
	ContactPhone  string
	ContactName   string
	MessageID     string
	Text          string
	Timestamp     time.Time
}

// ParseWebhookEvent extracts inbound messages from a webhook envelope.
// Status updates (sent/delivered/read receipts) carry no customer message
// and are skipped.
func ParseWebhookEvent(event WebhookEvent) []ParsedMessage {
	var messages []ParsedMessage

	for _, entry := range event.Entry {
		for _, change := range entry.Changes {
			value := change.Value
			if value.Metadata.PhoneNumberID == "" {
				continue
			}

			nameByWaID := make(map[string]string, len(value.Contacts))
			for _, c := range value.Contacts {
				if c.WaID != "" && c.Profile.Name != "" {
					nameByWaID[c.WaID] = c.Profile.Name
				}
			}

			for _, m := range value.Messages {
				if m.From == "" || m.ID == "" {
					continue
				}
				parsed := ParsedMessage{
					PhoneNumberID: value.Metadata.PhoneNumberID,
					ContactPhone:  normalizeWaID(m.From),
					ContactName:   nameByWaID[m.From],
					MessageID:     m.ID,
				}
				if m.Text != nil {
					parsed.Text = m.Text.Body
				}
				if secs, err := strconv.ParseInt(m.Timestamp, 10, 64); err == nil {
					parsed.Timestamp = time.Unix(secs, 0).UTC()
				}
				messages = append(messages, parsed)
			}
		}
	}

	return messages
}

func normalizeWaID(waID string) string {
	trimmed := strings.TrimSpace(waID)
	if trimmed == "" || strings.HasPrefix(trimmed, "+") {
		return trimmed
	}
	return "+" + trimmed
}
