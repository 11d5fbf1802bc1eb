// Package billing defines the plan-limit checks the send workflow consults.
package billing

import (
	"context"

	"github.com/google/uuid"
)

// Decision is the billing state of a company at send time.
type Decision struct {
	// Blocked is set when the subscription is in a state that forbids sending, e.g. past due.
	Blocked bool
	Reason  string
	// QuotaExceeded is set when the company has used its contract allowance.
	QuotaExceeded bool
	// Overage is set when sends over quota are allowed and charged.
	Overage bool
}

// Service is the billing collaborator.
type Service interface {
	Check(ctx context.Context, companyID uuid.UUID) (Decision, error)
	IncrementContractsUsed(ctx context.Context, companyID uuid.UUID) error
	ChargeOverage(ctx context.Context, companyID, contractID uuid.UUID) error
}

// Unlimited never blocks and records nothing.
type Unlimited struct{}

func (Unlimited) Check(context.Context, uuid.UUID) (Decision, error) { return Decision{}, nil }

func (Unlimited) IncrementContractsUsed(context.Context, uuid.UUID) error { return nil }

func (Unlimited) ChargeOverage(context.Context, uuid.UUID, uuid.UUID) error { return nil }
