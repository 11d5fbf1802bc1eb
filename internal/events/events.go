// Package events publishes contract lifecycle notifications.
package events

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jonathan/contract-signer/internal/types"
	"go.uber.org/zap"
)

// Type is a lifecycle notification type.
type Type string

// Notification types
const (
	ContractSent         Type = "contract.sent"
	ContractSellerSigned Type = "contract.seller_signed"
	ContractCompleted    Type = "contract.completed"
	ContractCancelled    Type = "contract.cancelled"
)

// Event is a lifecycle notification.
type Event struct {
	Type       Type         `json:"type"`
	ContractID uuid.UUID    `json:"contract_id"`
	CompanyID  uuid.UUID    `json:"company_id"`
	Stage      types.Stage  `json:"stage,omitempty"`
	Status     types.Status `json:"status"`
	DocumentID string       `json:"document_id,omitempty"`
	// Recipient is the email the notification concerns, e.g. the seller after stage one.
	Recipient  string    `json:"recipient,omitempty"`
	OccurredAt time.Time `json:"occurred_at"`
}

// Publisher delivers notifications.
type Publisher interface {
	Publish(ctx context.Context, e Event) error
}

// LogPublisher only logs notifications. It is used when no broker is configured.
type LogPublisher struct {
	log *zap.SugaredLogger
}

// NewLogPublisher creates a LogPublisher.
func NewLogPublisher(log *zap.SugaredLogger) *LogPublisher {
	return &LogPublisher{log: log.Named("events")}
}

func (p *LogPublisher) Publish(_ context.Context, e Event) error {
	p.log.Infow("contract event", "type", e.Type, "contract_id", e.ContractID, "stage", e.Stage,
		"status", e.Status, "document_id", e.DocumentID)
	return nil
}
