package webhook

import (
	"testing"
	"time"
)

func TestParseWebhookEvent(t *testing.T) {
	t.Run("text message", func(t *testing.T) {
		event := WebhookEvent{
			Object: "whatsapp_business_account",
			Entry: []Entry{{
				ID: "entry-1",
				Changes: []Change{{
					Field: "messages",
					Value: Value{
						Metadata: Metadata{PhoneNumberID: "pn-1"},
						Contacts: []Contact{{WaID: "5511988880000", Profile: Profile{Name: "Bruno"}}},
						Messages: []Message{{
							From:      "5511988880000",
							ID:        "wamid.abc",
							Timestamp: "1700000000",
							Type:      "text",
							Text:      &Text{Body: "bom dia"},
						}},
					},
				}},
			}},
		}

		parsed := ParseWebhookEvent(event)
		if len(parsed) != 1 {
			t.Fatalf("expected 1 message, got %d", len(parsed))
		}
		msg := parsed[0]
		if msg.ContactPhone != "+5511988880000" {
			t.Fatalf("expected normalized phone, got %s", msg.ContactPhone)
		}
		if msg.ContactName != "Bruno" {
			t.Fatalf("expected contact name, got %s", msg.ContactName)
		}
		if msg.Text != "bom dia" {
			t.Fatalf("expected text body, got %s", msg.Text)
		}
		if !msg.Timestamp.Equal(time.Unix(1700000000, 0)) {
			t.Fatalf("expected unix timestamp, got %s", msg.Timestamp)
		}
	})

	t.Run("status-only envelope yields nothing", func(t *testing.T) {
		event := WebhookEvent{
			Entry: []Entry{{
				Changes: []Change{{
					Value: Value{
						Metadata: Metadata{PhoneNumberID: "pn-1"},
						Statuses: []Status{{ID: "wamid.abc", Status: "delivered"}},
					},
				}},
			}},
		}
		if parsed := ParseWebhookEvent(event); len(parsed) != 0 {
			t.Fatalf("expected no messages, got %d", len(parsed))
		}
	})

	t.Run("missing phone number id skips change", func(t *testing.T) {
		event := WebhookEvent{
			Entry: []Entry{{
				Changes: []Change{{
					Value: Value{
						Messages: []Message{{From: "551", ID: "wamid.x"}},
					},
				}},
			}},
		}
		if parsed := ParseWebhookEvent(event); len(parsed) != 0 {
			t.Fatalf("expected no messages, got %d", len(parsed))
		}
	})

	t.Run("already prefixed wa id untouched", func(t *testing.T) {
		if got := normalizeWaID("+551199"); got != "+551199" {
			t.Fatalf("expected +551199, got %s", got)
		}
	})
}
