package signing

import (
	"fmt"

	"github.com/google/uuid"
)

// Reason classifies a rejected send.
type Reason string

// Rejection reasons
const (
	ReasonInvalid Reason = "invalid"
	ReasonStatus  Reason = "status"
	ReasonQuota   Reason = "quota"
	ReasonBilling Reason = "billing"
)

// ValidationError rejects a send before any state change.
type ValidationError struct {
	Reason  Reason
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("send rejected (%s): %s", e.Reason, e.Message)
}

func invalid(reason Reason, format string, args ...any) *ValidationError {
	return &ValidationError{Reason: reason, Message: fmt.Sprintf(format, args...)}
}

// NotFoundError is returned when the contract does not exist.
type NotFoundError struct {
	ContractID uuid.UUID
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("contract %s not found", e.ContractID)
}

// UpstreamError wraps a failed collaborator call: rendering, the signing provider or billing.
type UpstreamError struct {
	Op    string
	Cause error
}

func (e *UpstreamError) Error() string {
	return fmt.Sprintf("%s failed: %v", e.Op, e.Cause)
}

func (e *UpstreamError) Unwrap() error {
	return e.Cause
}

// PersistError means the provider document exists but the contract status could not be written.
// It is returned together with a non-nil SendResult carrying the document id.
type PersistError struct {
	DocumentID string
	Cause      error
}

func (e *PersistError) Error() string {
	return fmt.Sprintf("provider document %s created but contract not updated: %v", e.DocumentID, e.Cause)
}

func (e *PersistError) Unwrap() error {
	return e.Cause
}
