package types

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Status is the lifecycle state of a contract.
type Status string

// Contract statuses
const (
	StatusDraft        Status = "draft"
	StatusReady        Status = "ready"
	StatusSent         Status = "sent"
	StatusViewed       Status = "viewed"
	StatusSellerSigned Status = "seller_signed"
	StatusBuyerPending Status = "buyer_pending"
	StatusCompleted    Status = "completed"
	StatusCancelled    Status = "cancelled"
)

// statusRank orders statuses along the signing path. draft and ready share a rank.
var statusRank = map[Status]int{
	StatusDraft:        0,
	StatusReady:        0,
	StatusSent:         1,
	StatusViewed:       2,
	StatusSellerSigned: 3,
	StatusBuyerPending: 4,
	StatusCompleted:    5,
}

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	_, ok := statusRank[s]
	return ok || s == StatusCancelled
}

// Terminal reports whether no further transition is allowed out of s.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusCancelled
}

// CanAdvanceTo reports whether moving from s to next is a forward move.
// Cancellation is forward from every non-terminal status; nothing leaves a terminal status.
func (s Status) CanAdvanceTo(next Status) bool {
	if s.Terminal() {
		return false
	}
	if next == StatusCancelled {
		return true
	}
	from, ok := statusRank[s]
	if !ok {
		return false
	}
	to, ok := statusRank[next]
	if !ok {
		return false
	}
	return to > from
}

// Predecessors returns every status from which next is a forward move.
// Stores use it to guard status writes so replays never regress a contract.
func Predecessors(next Status) []Status {
	all := []Status{
		StatusDraft, StatusReady, StatusSent, StatusViewed,
		StatusSellerSigned, StatusBuyerPending, StatusCompleted, StatusCancelled,
	}
	var out []Status
	for _, s := range all {
		if s.CanAdvanceTo(next) {
			out = append(out, s)
		}
	}
	return out
}

// Sendable reports whether an initial send may start from s.
func (s Status) Sendable() bool {
	return s == StatusDraft || s == StatusReady
}

// Kind is the document kind of a contract.
type Kind string

// Document kinds
const (
	KindPurchase   Kind = "purchase"
	KindAssignment Kind = "assignment"
)

// ParseKind parses a document kind.
func ParseKind(s string) (Kind, error) {
	switch Kind(strings.ToLower(strings.TrimSpace(s))) {
	case KindPurchase:
		return KindPurchase, nil
	case KindAssignment:
		return KindAssignment, nil
	default:
		return "", fmt.Errorf("unknown document kind: %q", s)
	}
}

// Stage identifies which half of a two-stage signing flow an operation pertains to.
type Stage string

// Signing stages. StageSingle tags documents of single-stage layouts.
const (
	StageSingle Stage = "single"
	StageSeller Stage = "seller"
	StageBuyer  Stage = "buyer"
)

// ParseStage parses a stage, accepting the seller1/seller2 aliases used by the two-seller layout.
// An empty string parses to the empty stage.
func ParseStage(s string) (Stage, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "":
		return "", nil
	case "single":
		return StageSingle, nil
	case "seller", "seller1":
		return StageSeller, nil
	case "buyer", "seller2":
		return StageBuyer, nil
	default:
		return "", fmt.Errorf("unknown signing stage: %q", s)
	}
}

// Party is the signing role a field or recipient belongs to.
// For the two-seller layout PartySeller is the first seller and PartyBuyer the second.
type Party string

// Signing parties
const (
	PartySeller Party = "seller"
	PartyBuyer  Party = "buyer"
)

// Party returns the party that signs in the stage.
func (s Stage) Party() Party {
	if s == StageBuyer {
		return PartyBuyer
	}
	return PartySeller
}

// Custom-field keys stored on a contract.
const (
	FieldTemplateID            = "template_id"
	FieldSignatureLayout       = "signature_layout"
	FieldDocumentID            = "esign_document_id"
	FieldSellerDocumentID      = "esign_seller_document_id"
	FieldBuyerDocumentID       = "esign_buyer_document_id"
	FieldSigningURLPrefix      = "signing_url_"
	FieldSellerSignedAt        = "seller_signed_at"
	FieldArchivedPDFPrefix     = "archived_pdf_"
	FieldArchivedSignedPDFPath = "archived_signed_pdf"
)

// DocumentIDField returns the custom-field key holding the provider document id for a stage.
func DocumentIDField(stage Stage) string {
	switch stage {
	case StageSeller:
		return FieldSellerDocumentID
	case StageBuyer:
		return FieldBuyerDocumentID
	default:
		return FieldDocumentID
	}
}

// Contract is the long-lived entity driving the signing workflow.
type Contract struct {
	ID           uuid.UUID      `json:"id"`
	CompanyID    uuid.UUID      `json:"company_id"`
	Kind         Kind           `json:"kind"`
	Jurisdiction string         `json:"jurisdiction,omitempty"`
	TemplateID   *uuid.UUID     `json:"template_id,omitempty"`
	Status       Status         `json:"status"`
	Data         ContractData   `json:"data"`
	CustomFields map[string]any `json:"custom_fields"`
	SentAt       *time.Time     `json:"sent_at,omitempty"`
	ViewedAt     *time.Time     `json:"viewed_at,omitempty"`
	CompletedAt  *time.Time     `json:"completed_at,omitempty"`
	CreatedAt    time.Time      `json:"created_at"`
	UpdatedAt    time.Time      `json:"updated_at"`
}

// CustomString returns a string custom field or "".
func (c *Contract) CustomString(key string) string {
	if c.CustomFields == nil {
		return ""
	}
	switch v := c.CustomFields[key].(type) {
	case string:
		return v
	case fmt.Stringer:
		return v.String()
	case float64:
		return fmt.Sprintf("%.0f", v)
	case int, int64:
		return fmt.Sprintf("%d", v)
	default:
		return ""
	}
}

// DocumentID returns the provider document id recorded for a stage.
func (c *Contract) DocumentID(stage Stage) string {
	return c.CustomString(DocumentIDField(stage))
}

// HistoryEntry is an append-only audit record for a contract.
type HistoryEntry struct {
	ID         uuid.UUID      `json:"id"`
	ContractID uuid.UUID      `json:"contract_id"`
	Event      string         `json:"event"`
	Stage      Stage          `json:"stage,omitempty"`
	Party      string         `json:"party,omitempty"`
	FromStatus Status         `json:"from_status,omitempty"`
	ToStatus   Status         `json:"to_status,omitempty"`
	Applied    bool           `json:"applied"`
	Metadata   map[string]any `json:"metadata,omitempty"`
	CreatedAt  time.Time      `json:"created_at"`
}

// Transition is a guarded status write: it applies only while the contract is in one of From.
// Timestamps and custom fields are written together with the status.
type Transition struct {
	ContractID   uuid.UUID
	From         []Status
	To           Status
	SentAt       *time.Time
	ViewedAt     *time.Time
	CompletedAt  *time.Time
	CustomFields map[string]any
}
