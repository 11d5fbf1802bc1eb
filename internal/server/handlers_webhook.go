package server

import (
	"errors"
	"io"
	"net/http"

	"github.com/jonathan/contract-signer/internal/webhook"
)

// handleWebhook applies a signing-provider delivery. Deliveries that cannot be matched to a
// contract are acknowledged with 200 so the provider stops retrying; failures on our side
// answer 500 so it retries.
func (s *Server) handleWebhook(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			s.errorResponse(w, http.StatusRequestEntityTooLarge, "payload too large")
			return
		}
		s.errorResponse(w, http.StatusBadRequest, "failed to read body")
		return
	}

	outcome, err := s.deps.Webhooks.Handle(r.Context(), r.Header, body)
	switch {
	case err == nil:
		s.jsonResponse(w, http.StatusOK, outcome)
	case webhook.IsAcknowledged(err):
		s.jsonResponse(w, http.StatusOK, map[string]string{"status": "ignored", "reason": err.Error()})
	default:
		s.fail(w, r, err)
	}
}
