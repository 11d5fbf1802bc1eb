// Package esign talks to the e-signature provider: document creation, signed-document download,
// external references and inbound webhook envelopes.
package esign

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// DefaultTimeout is the default provider request timeout.
const DefaultTimeout = 60 * time.Second

// maxDownloadBytes caps signed-document downloads.
const maxDownloadBytes = 50 << 20

// Provider field types
const (
	FieldTypeSignature = "SIGNATURE"
	FieldTypeInitials  = "INITIALS"
	FieldTypeDate      = "DATE"
)

// Error represents a failed provider call.
type Error struct {
	Op         string
	StatusCode int
	Message    string
	Cause      error
}

func (e *Error) Error() string {
	msg := fmt.Sprintf("signing provider %s failed", e.Op)
	if e.StatusCode != 0 {
		msg += fmt.Sprintf(" (HTTP %d)", e.StatusCode)
	}
	if e.Message != "" {
		msg += ": " + e.Message
	}
	if e.Cause != nil {
		msg += fmt.Sprintf(": %v", e.Cause)
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// Config configures the provider client.
type Config struct {
	BaseURL string
	APIKey  string
	Timeout time.Duration
}

// Recipient is a signer of a provider document.
type Recipient struct {
	Name         string `json:"name"`
	Email        string `json:"email"`
	Role         string `json:"role"`
	SigningOrder int    `json:"signingOrder"`
}

// Field is a provider field rectangle in page percentages.
type Field struct {
	Page           int     `json:"pageNumber"`
	X              float64 `json:"pageX"`
	Y              float64 `json:"pageY"`
	Width          float64 `json:"pageWidth"`
	Height         float64 `json:"pageHeight"`
	RecipientEmail string  `json:"recipientEmail"`
	Type           string  `json:"type"`
}

// CreateRequest describes a document to create.
type CreateRequest struct {
	Title             string
	ExternalReference string
	Recipients        []Recipient
	Fields            []Field
	SendImmediately   bool
	RedirectURL       string
}

// CreatedRecipient is a recipient of a created document.
type CreatedRecipient struct {
	Email      string `json:"email"`
	Name       string `json:"name"`
	SigningURL string `json:"signingUrl"`
}

// CreatedDocument is the provider's answer to a create call.
type CreatedDocument struct {
	DocumentID string
	Recipients []CreatedRecipient
}

// Client is an HTTP client for the provider's REST API.
type Client struct {
	cfg  Config
	http *http.Client
}

// NewClient creates a client.
func NewClient(cfg Config) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	return &Client{cfg: cfg, http: &http.Client{Timeout: cfg.Timeout}}
}

type createBody struct {
	Title           string      `json:"title"`
	ExternalID      string      `json:"externalId"`
	Recipients      []Recipient `json:"recipients"`
	Fields          []Field     `json:"fields"`
	SendImmediately bool        `json:"sendImmediately"`
	Meta            createMeta  `json:"meta"`
	File            string      `json:"documentDataBase64"`
}

type createMeta struct {
	RedirectURL string `json:"redirectUrl,omitempty"`
}

type createResponse struct {
	DocumentID json.RawMessage    `json:"documentId"`
	Recipients []CreatedRecipient `json:"recipients"`
}

// CreateDocumentWithSignatures uploads pdf and creates a document with the given fields.
func (c *Client) CreateDocumentWithSignatures(ctx context.Context, pdf []byte, req CreateRequest) (*CreatedDocument, error) {
	const op = "create document"

	payload, err := json.Marshal(createBody{
		Title:           req.Title,
		ExternalID:      req.ExternalReference,
		Recipients:      req.Recipients,
		Fields:          req.Fields,
		SendImmediately: req.SendImmediately,
		Meta:            createMeta{RedirectURL: req.RedirectURL},
		File:            base64.StdEncoding.EncodeToString(pdf),
	})
	if err != nil {
		return nil, &Error{Op: op, Message: "failed to encode request", Cause: err}
	}

	body, err := c.do(ctx, op, http.MethodPost, "/documents", bytes.NewReader(payload), 1<<20)
	if err != nil {
		return nil, err
	}

	var resp createResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, &Error{Op: op, Message: "failed to decode response", Cause: err}
	}
	id, err := DocumentID(resp.DocumentID)
	if err != nil {
		return nil, &Error{Op: op, Message: "response has no document id", Cause: err}
	}
	return &CreatedDocument{DocumentID: id, Recipients: resp.Recipients}, nil
}

// DownloadSignedDocument returns the current (signed) PDF of a document.
func (c *Client) DownloadSignedDocument(ctx context.Context, documentID string) ([]byte, error) {
	const op = "download document"
	path := "/documents/" + url.PathEscape(documentID) + "/download"
	return c.do(ctx, op, http.MethodGet, path, nil, maxDownloadBytes)
}

func (c *Client) do(ctx context.Context, op, method, path string, body io.Reader, limit int64) ([]byte, error) {
	if c.cfg.BaseURL == "" {
		return nil, &Error{Op: op, Message: "provider URL is not configured"}
	}

	req, err := http.NewRequestWithContext(ctx, method, c.cfg.BaseURL+path, body)
	if err != nil {
		return nil, &Error{Op: op, Message: "failed to create request", Cause: err}
	}
	req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, &Error{Op: op, Message: "HTTP request failed", Cause: err}
	}
	defer func() { _ = resp.Body.Close() }()

	data, err := io.ReadAll(io.LimitReader(resp.Body, limit))
	if err != nil {
		return nil, &Error{Op: op, StatusCode: resp.StatusCode, Message: "failed to read response body", Cause: err}
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &Error{Op: op, StatusCode: resp.StatusCode, Message: snippet(data)}
	}
	return data, nil
}

func snippet(b []byte) string {
	s := strings.TrimSpace(string(b))
	if len(s) > 200 {
		s = s[:200] + "..."
	}
	return s
}
