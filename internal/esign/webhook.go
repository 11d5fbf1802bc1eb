package esign

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/jonathan/contract-signer/internal/schemas"
)

// EventType is a normalized provider event name.
type EventType string

// Provider events handled by the reconciler.
const (
	EventOpened    EventType = "DOCUMENT_OPENED"
	EventSigned    EventType = "DOCUMENT_SIGNED"
	EventCompleted EventType = "DOCUMENT_COMPLETED"
	EventRejected  EventType = "DOCUMENT_REJECTED"
)

// NormalizeEventType upper-cases an event name and turns "." and "-" into "_",
// so "document.completed" and "DOCUMENT_COMPLETED" compare equal.
func NormalizeEventType(s string) EventType {
	s = strings.ToUpper(strings.TrimSpace(s))
	s = strings.NewReplacer(".", "_", "-", "_").Replace(s)
	return EventType(s)
}

// RecipientStatus is the per-recipient state carried by an event.
type RecipientStatus struct {
	Email         string     `json:"email"`
	Name          string     `json:"name,omitempty"`
	Role          string     `json:"role,omitempty"`
	SigningStatus string     `json:"signing_status,omitempty"`
	SignedAt      *time.Time `json:"signed_at,omitempty"`
}

// Event is a webhook event in the single internal shape.
type Event struct {
	Type       EventType
	DocumentID string
	ExternalID string
	Status     string
	Recipients []RecipientStatus
	// Raw is the decoded body, kept for audit history.
	Raw map[string]any
}

type wireRecipient struct {
	Email         string  `json:"email"`
	Name          *string `json:"name"`
	Role          *string `json:"role"`
	SigningStatus *string `json:"signingStatus"`
	SignedAt      *string `json:"signedAt"`
}

type wireDocument struct {
	ID         json.RawMessage `json:"id"`
	ExternalID *string         `json:"externalId"`
	Status     *string         `json:"status"`
	Recipients []wireRecipient `json:"recipients"`
}

type wireEnvelope struct {
	Event    string        `json:"event"`
	Type     string        `json:"type"`
	Payload  *wireDocument `json:"payload"`
	Data     *wireDocument `json:"data"`
	Document *wireDocument `json:"document"`
}

// ParseWebhook validates body against the envelope schema and normalizes whichever of the
// {event,payload}, {event,data} or {type,document} shapes it uses.
func ParseWebhook(body []byte) (*Event, error) {
	if err := schemas.Validate(schemas.WebhookEnvelope, body); err != nil {
		return nil, fmt.Errorf("unrecognized webhook envelope: %w", err)
	}

	var env wireEnvelope
	if err := json.Unmarshal(body, &env); err != nil {
		return nil, fmt.Errorf("failed to decode webhook: %w", err)
	}

	name, doc := env.Event, env.Payload
	switch {
	case env.Payload != nil:
	case env.Data != nil:
		doc = env.Data
	default:
		name, doc = env.Type, env.Document
	}

	id, err := DocumentID(doc.ID)
	if err != nil {
		return nil, err
	}

	ev := &Event{
		Type:       NormalizeEventType(name),
		DocumentID: id,
		ExternalID: deref(doc.ExternalID),
		Status:     deref(doc.Status),
	}
	for _, r := range doc.Recipients {
		rs := RecipientStatus{
			Email:         strings.ToLower(strings.TrimSpace(r.Email)),
			Name:          deref(r.Name),
			Role:          deref(r.Role),
			SigningStatus: deref(r.SigningStatus),
		}
		if at := deref(r.SignedAt); at != "" {
			if t, err := time.Parse(time.RFC3339, at); err == nil {
				rs.SignedAt = &t
			}
		}
		ev.Recipients = append(ev.Recipients, rs)
	}

	if err := json.Unmarshal(body, &ev.Raw); err != nil {
		return nil, fmt.Errorf("failed to decode webhook: %w", err)
	}
	return ev, nil
}

// SignedRecipients returns the recipients whose signing status reports a signature.
func (e *Event) SignedRecipients() []RecipientStatus {
	var out []RecipientStatus
	for _, r := range e.Recipients {
		if strings.EqualFold(r.SigningStatus, "SIGNED") || r.SignedAt != nil {
			out = append(out, r)
		}
	}
	return out
}

// DocumentID decodes a provider document id that may arrive as a JSON number or string.
func DocumentID(raw json.RawMessage) (string, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || string(raw) == "null" {
		return "", fmt.Errorf("document id is missing")
	}
	if raw[0] == '"' {
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return "", fmt.Errorf("invalid document id: %w", err)
		}
		if s = strings.TrimSpace(s); s == "" {
			return "", fmt.Errorf("document id is empty")
		}
		return s, nil
	}
	var n json.Number
	if err := json.Unmarshal(raw, &n); err != nil {
		return "", fmt.Errorf("invalid document id: %w", err)
	}
	return n.String(), nil
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
