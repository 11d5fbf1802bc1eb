package server

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/jonathan/contract-signer/internal/esign"
	"github.com/jonathan/contract-signer/internal/pdf"
	"github.com/jonathan/contract-signer/internal/schemas"
	"github.com/jonathan/contract-signer/internal/signing"
	"github.com/jonathan/contract-signer/internal/templates"
	"github.com/jonathan/contract-signer/internal/webhook"
)

// ErrValidation indicates request validation failure
type ErrValidation struct {
	Field   string
	Message string
}

func (e *ErrValidation) Error() string {
	return fmt.Sprintf("validation error: %s - %s", e.Field, e.Message)
}

// ErrNotFound indicates a missing resource or one the operator may not see.
type ErrNotFound struct {
	Resource string
}

func (e *ErrNotFound) Error() string {
	return e.Resource + " not found"
}

// HTTPStatus returns the appropriate HTTP status code for an error
func HTTPStatus(err error) int {
	var (
		validation *ErrValidation
		notFound   *ErrNotFound
		rejected   *signing.ValidationError
		missing    *signing.NotFoundError
		schema     *schemas.ValidationError
		auth       *webhook.AuthError
		upstream   *signing.UpstreamError
		provider   *esign.Error
		render     *pdf.RenderError
		cfg        *templates.ConfigError
	)
	switch {
	case errors.As(err, &validation), errors.As(err, &schema):
		return http.StatusBadRequest
	case errors.As(err, &notFound), errors.As(err, &missing):
		return http.StatusNotFound
	case errors.As(err, &rejected):
		switch rejected.Reason {
		case signing.ReasonStatus:
			return http.StatusConflict
		case signing.ReasonQuota, signing.ReasonBilling:
			return http.StatusUnprocessableEntity
		default:
			return http.StatusBadRequest
		}
	case errors.As(err, &auth):
		return http.StatusUnauthorized
	case errors.As(err, &cfg):
		return http.StatusInternalServerError
	case errors.As(err, &upstream), errors.As(err, &provider), errors.As(err, &render):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
