package webhook

import "fmt"

// AuthError rejects a delivery whose shared secret or signature does not verify.
// Nothing is processed and nothing is written.
type AuthError struct {
	Reason string
}

func (e *AuthError) Error() string {
	return "webhook authentication failed: " + e.Reason
}

// ParseError marks a delivery that is acknowledged without any state change: an
// unrecognized envelope or external reference, or an unknown contract.
type ParseError struct {
	Message string
	Cause   error
}

func (e *ParseError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("webhook ignored: %s: %v", e.Message, e.Cause)
	}
	return "webhook ignored: " + e.Message
}

func (e *ParseError) Unwrap() error {
	return e.Cause
}
