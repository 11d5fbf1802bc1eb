package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jonathan/contract-signer/internal/db"
	"github.com/jonathan/contract-signer/internal/document"
	"github.com/jonathan/contract-signer/internal/server/ratelimit"
	"github.com/jonathan/contract-signer/internal/signing"
	"github.com/jonathan/contract-signer/internal/storage"
	"github.com/jonathan/contract-signer/internal/templates"
	"github.com/jonathan/contract-signer/internal/types"
	"github.com/jonathan/contract-signer/internal/webhook"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSender struct {
	got    []signing.SendRequest
	result *signing.SendResult
	err    error
}

func (f *fakeSender) Send(_ context.Context, req signing.SendRequest) (*signing.SendResult, error) {
	f.got = append(f.got, req)
	return f.result, f.err
}

type fakePreviewer struct {
	got *types.Contract
	err error
}

func (f *fakePreviewer) Preview(_ context.Context, c *types.Contract) (*document.Composed, error) {
	f.got = c
	if f.err != nil {
		return nil, f.err
	}
	return &document.Composed{
		HTML:     "<p>" + c.Data.Seller.Name + "</p>",
		Layout:   types.LayoutTwoColumn,
		Template: &templates.Resolved{Scope: types.ScopeBuiltIn},
	}, nil
}

type fakeWebhooks struct {
	outcome *webhook.Outcome
	err     error
	body    []byte
}

func (f *fakeWebhooks) Handle(_ context.Context, _ http.Header, body []byte) (*webhook.Outcome, error) {
	f.body = body
	return f.outcome, f.err
}

// presigningArchive hands out URLs instead of bytes.
type presigningArchive struct {
	*storage.MemoryArchive
}

func (presigningArchive) PresignedURL(_ context.Context, key string) (string, error) {
	return "https://objects.example.com/" + key + "?sig=abc", nil
}

type harness struct {
	store    *db.MemoryStore
	sender   *fakeSender
	preview  *fakePreviewer
	webhooks *fakeWebhooks
	archive  *storage.MemoryArchive
	deps     Deps
	contract *types.Contract
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	h := &harness{
		store:    db.NewMemoryStore(),
		sender:   &fakeSender{},
		preview:  &fakePreviewer{},
		webhooks: &fakeWebhooks{},
		archive:  storage.NewMemoryArchive(),
	}
	h.contract = &types.Contract{
		CompanyID: uuid.New(),
		Kind:      types.KindPurchase,
		Data:      types.ContractData{Seller: types.Identity{Name: "Jane Seller", Email: "jane@example.com"}},
	}
	require.NoError(t, h.store.CreateContract(context.Background(), h.contract))
	h.deps = Deps{
		Contracts: h.store,
		Sender:    h.sender,
		Previewer: h.preview,
		Webhooks:  h.webhooks,
		Archive:   h.archive,
	}
	return h
}

func (h *harness) serve(t *testing.T, req *http.Request) *httptest.ResponseRecorder {
	t.Helper()
	s := New(Config{RateLimit: &ratelimit.Config{Enabled: false}}, h.deps, nil)
	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &v), w.Body.String())
	return v
}

func TestHealthEndpoint(t *testing.T) {
	h := newHarness(t)

	w := h.serve(t, httptest.NewRequest(http.MethodGet, "/health", nil))

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "ok", decode[map[string]string](t, w)["status"])
	assert.Equal(t, "*", w.Header().Get("Access-Control-Allow-Origin"))
}

func TestSend(t *testing.T) {
	h := newHarness(t)
	h.sender.result = &signing.SendResult{
		ContractID:  h.contract.ID,
		Stage:       types.StageSeller,
		DocumentID:  "doc-1",
		SigningURLs: map[string]string{"jane@example.com": "https://sign.example.com/doc-1"},
		Status:      types.StatusSent,
	}

	req := httptest.NewRequest(http.MethodPost, "/contracts/"+h.contract.ID.String()+"/send",
		strings.NewReader(`{"stage":"seller","send_immediately":false}`))
	w := h.serve(t, req)

	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	got := decode[signing.SendResult](t, w)
	assert.Equal(t, "doc-1", got.DocumentID)
	assert.Equal(t, types.StatusSent, got.Status)

	require.Len(t, h.sender.got, 1)
	assert.Equal(t, h.contract.ID, h.sender.got[0].ContractID)
	assert.Equal(t, "seller", h.sender.got[0].Stage)
	require.NotNil(t, h.sender.got[0].SendImmediately)
	assert.False(t, *h.sender.got[0].SendImmediately)
}

func TestSend_EmptyBody(t *testing.T) {
	h := newHarness(t)
	h.sender.result = &signing.SendResult{DocumentID: "doc-1"}

	w := h.serve(t, httptest.NewRequest(http.MethodPost, "/contracts/"+h.contract.ID.String()+"/send", nil))

	assert.Equal(t, http.StatusOK, w.Code)
	require.Len(t, h.sender.got, 1)
	assert.Empty(t, h.sender.got[0].Stage)
	assert.Nil(t, h.sender.got[0].SendImmediately)
}

func TestSend_PersistFailureStillReturnsDocumentID(t *testing.T) {
	h := newHarness(t)
	perr := &signing.PersistError{DocumentID: "doc-9", Cause: errors.New("connection reset")}
	h.sender.result = &signing.SendResult{ContractID: h.contract.ID, DocumentID: "doc-9", Status: types.StatusDraft, PersistError: perr.Error()}
	h.sender.err = perr

	w := h.serve(t, httptest.NewRequest(http.MethodPost, "/contracts/"+h.contract.ID.String()+"/send", nil))

	require.Equal(t, http.StatusOK, w.Code)
	got := decode[signing.SendResult](t, w)
	assert.Equal(t, "doc-9", got.DocumentID)
	assert.Contains(t, got.PersistError, "connection reset")
}

func TestSend_Errors(t *testing.T) {
	tests := []struct {
		name       string
		path       func(h *harness) string
		body       string
		err        error
		wantStatus int
		wantError  string
	}{
		{
			name:       "bad id",
			path:       func(*harness) string { return "/contracts/not-a-uuid/send" },
			wantStatus: http.StatusBadRequest,
			wantError:  "must be a UUID",
		},
		{
			name:       "unknown contract",
			path:       func(*harness) string { return "/contracts/" + uuid.NewString() + "/send" },
			wantStatus: http.StatusNotFound,
			wantError:  "contract not found",
		},
		{
			name:       "unknown body field",
			body:       `{"stage":"seller","force":true}`,
			wantStatus: http.StatusBadRequest,
			wantError:  "force",
		},
		{
			name:       "malformed body",
			body:       `{"stage":`,
			wantStatus: http.StatusBadRequest,
		},
		{
			name:       "wrong status",
			err:        &signing.ValidationError{Reason: signing.ReasonStatus, Message: `contract in status "sent" cannot be sent`},
			wantStatus: http.StatusConflict,
			wantError:  "cannot be sent",
		},
		{
			name:       "missing seller",
			err:        &signing.ValidationError{Reason: signing.ReasonInvalid, Message: "seller email is required"},
			wantStatus: http.StatusBadRequest,
			wantError:  "seller email is required",
		},
		{
			name:       "past due",
			err:        &signing.ValidationError{Reason: signing.ReasonBilling, Message: "subscription past due"},
			wantStatus: http.StatusUnprocessableEntity,
		},
		{
			name:       "provider down",
			err:        &signing.UpstreamError{Op: "create provider document", Cause: errors.New("503")},
			wantStatus: http.StatusBadGateway,
			wantError:  "create provider document",
		},
		{
			name:       "internal",
			err:        errors.New("database password is hunter2"),
			wantStatus: http.StatusInternalServerError,
			wantError:  "internal error",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t)
			h.sender.err = tt.err
			path := "/contracts/" + h.contract.ID.String() + "/send"
			if tt.path != nil {
				path = tt.path(h)
			}
			w := h.serve(t, httptest.NewRequest(http.MethodPost, path, strings.NewReader(tt.body)))

			assert.Equal(t, tt.wantStatus, w.Code, w.Body.String())
			if tt.wantError != "" {
				assert.Contains(t, decode[map[string]string](t, w)["error"], tt.wantError)
			}
			assert.NotContains(t, w.Body.String(), "hunter2")
		})
	}
}

func TestOperatorAuth(t *testing.T) {
	h := newHarness(t)
	h.sender.result = &signing.SendResult{DocumentID: "doc-1"}
	jwtService := setupTestJWTService(t, 1)
	h.deps.Tokens = jwtService.AsTokenValidator()
	path := "/contracts/" + h.contract.ID.String() + "/send"

	sameCompany, err := jwtService.GenerateToken(uuid.New(), h.contract.CompanyID)
	require.NoError(t, err)
	otherCompany, err := jwtService.GenerateToken(uuid.New(), uuid.New())
	require.NoError(t, err)
	unscoped, err := jwtService.GenerateToken(uuid.New(), uuid.Nil)
	require.NoError(t, err)

	tests := []struct {
		name       string
		token      string
		wantStatus int
	}{
		{name: "no token", wantStatus: http.StatusUnauthorized},
		{name: "garbage token", token: "abc", wantStatus: http.StatusUnauthorized},
		{name: "same company", token: sameCompany, wantStatus: http.StatusOK},
		{name: "unscoped operator", token: unscoped, wantStatus: http.StatusOK},
		{name: "other company", token: otherCompany, wantStatus: http.StatusNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, path, nil)
			if tt.token != "" {
				req.Header.Set("Authorization", "Bearer "+tt.token)
			}
			w := h.serve(t, req)
			assert.Equal(t, tt.wantStatus, w.Code, w.Body.String())
		})
	}

	// health and provider webhooks never need an operator token
	assert.Equal(t, http.StatusOK, h.serve(t, httptest.NewRequest(http.MethodGet, "/health", nil)).Code)
	h.webhooks.outcome = &webhook.Outcome{}
	assert.Equal(t, http.StatusOK, h.serve(t, httptest.NewRequest(http.MethodPost, "/webhooks/esign", strings.NewReader("{}"))).Code)
}

func TestPreview(t *testing.T) {
	h := newHarness(t)

	w := h.serve(t, httptest.NewRequest(http.MethodPost, "/contracts/"+h.contract.ID.String()+"/preview", nil))

	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	got := decode[PreviewResponse](t, w)
	assert.Equal(t, h.contract.ID, got.ContractID)
	assert.Equal(t, "<p>Jane Seller</p>", got.HTML)
	assert.Equal(t, types.LayoutTwoColumn, got.Layout)
	assert.Equal(t, types.ScopeBuiltIn, got.TemplateScope)
}

func TestPreview_DataOverride(t *testing.T) {
	h := newHarness(t)

	req := httptest.NewRequest(http.MethodPost, "/contracts/"+h.contract.ID.String()+"/preview?format=html",
		strings.NewReader(`{"data":{"seller":{"name":"Draft Name"},"purchase_price":250000}}`))
	w := h.serve(t, req)

	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, "<p>Draft Name</p>", w.Body.String())
	assert.Contains(t, w.Header().Get("Content-Type"), "text/html")
	require.NotNil(t, h.preview.got.Data.PurchasePrice)
	assert.Equal(t, int64(250000), *h.preview.got.Data.PurchasePrice)

	stored, err := h.store.GetContract(context.Background(), h.contract.ID)
	require.NoError(t, err)
	assert.Equal(t, "Jane Seller", stored.Data.Seller.Name, "override is not persisted")
}

func TestPreview_InvalidData(t *testing.T) {
	h := newHarness(t)

	req := httptest.NewRequest(http.MethodPost, "/contracts/"+h.contract.ID.String()+"/preview",
		strings.NewReader(`{"data":{"purchase_price":-5}}`))
	w := h.serve(t, req)

	assert.Equal(t, http.StatusBadRequest, w.Code, w.Body.String())
	assert.Nil(t, h.preview.got)
}

func TestPreview_MissingTemplate(t *testing.T) {
	h := newHarness(t)
	h.preview.err = &templates.ConfigError{Message: "built-in template purchase.html missing"}

	w := h.serve(t, httptest.NewRequest(http.MethodPost, "/contracts/"+h.contract.ID.String()+"/preview", nil))

	assert.Equal(t, http.StatusInternalServerError, w.Code)
}

func TestPDF(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	sellerKey := storage.RenderKey(h.contract.ID, types.StageSeller)
	require.NoError(t, h.archive.Put(ctx, sellerKey, []byte("%PDF-seller")))
	require.NoError(t, h.store.MergeCustomFields(ctx, h.contract.ID, map[string]any{
		types.FieldArchivedPDFPrefix + "seller": sellerKey,
	}))
	base := "/contracts/" + h.contract.ID.String() + "/pdf"

	w := h.serve(t, httptest.NewRequest(http.MethodGet, base, nil))
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, "%PDF-seller", w.Body.String())
	assert.Equal(t, storage.ContentTypePDF, w.Header().Get("Content-Type"))

	w = h.serve(t, httptest.NewRequest(http.MethodGet, base+"?stage=buyer", nil))
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = h.serve(t, httptest.NewRequest(http.MethodGet, base+"?stage=signed", nil))
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = h.serve(t, httptest.NewRequest(http.MethodGet, base+"?stage=notary", nil))
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestPDF_CompletedDefaultsToSignedCopy(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	key := storage.SignedKey(h.contract.ID)
	require.NoError(t, h.archive.Put(ctx, key, []byte("%PDF-signed")))
	now := time.Now()
	applied, err := h.store.TransitionStatus(ctx, types.Transition{
		ContractID:   h.contract.ID,
		From:         []types.Status{types.StatusDraft},
		To:           types.StatusCompleted,
		CompletedAt:  &now,
		CustomFields: map[string]any{types.FieldArchivedSignedPDFPath: key},
	})
	require.NoError(t, err)
	require.True(t, applied)

	w := h.serve(t, httptest.NewRequest(http.MethodGet, "/contracts/"+h.contract.ID.String()+"/pdf", nil))

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "%PDF-signed", w.Body.String())
}

func TestPDF_Presigned(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	h.deps.Archive = presigningArchive{h.archive}
	key := storage.RenderKey(h.contract.ID, types.StageSingle)
	require.NoError(t, h.store.MergeCustomFields(ctx, h.contract.ID, map[string]any{
		types.FieldArchivedPDFPrefix + "single": key,
	}))

	w := h.serve(t, httptest.NewRequest(http.MethodGet, "/contracts/"+h.contract.ID.String()+"/pdf?stage=single", nil))

	assert.Equal(t, http.StatusFound, w.Code)
	assert.Equal(t, "https://objects.example.com/"+key+"?sig=abc", w.Header().Get("Location"))
}

func TestPositions(t *testing.T) {
	h := newHarness(t)

	w := h.serve(t, httptest.NewRequest(http.MethodGet, "/layouts/three-party/positions?pages=3", nil))
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	all := decode[PositionsResponse](t, w)
	assert.Equal(t, types.LayoutThreeParty, all.Layout)
	assert.Equal(t, 3, all.Pages)
	require.NotEmpty(t, all.Positions)

	w = h.serve(t, httptest.NewRequest(http.MethodGet, "/layouts/three-party/positions?pages=3&stage=buyer", nil))
	require.Equal(t, http.StatusOK, w.Code)
	buyer := decode[PositionsResponse](t, w)
	assert.Less(t, len(buyer.Positions), len(all.Positions))
	for _, p := range buyer.Positions {
		assert.Equal(t, types.PartyBuyer, p.Party)
	}

	for _, path := range []string{
		"/layouts/four-party/positions?pages=3",
		"/layouts/three-party/positions",
		"/layouts/three-party/positions?pages=0",
		"/layouts/three-party/positions?pages=3&stage=notary",
	} {
		w = h.serve(t, httptest.NewRequest(http.MethodGet, path, nil))
		assert.Equal(t, http.StatusBadRequest, w.Code, path)
	}
}

func TestWebhook(t *testing.T) {
	tests := []struct {
		name       string
		outcome    *webhook.Outcome
		err        error
		wantStatus int
		wantBody   string
	}{
		{
			name:       "applied",
			outcome:    &webhook.Outcome{Event: "DOCUMENT_OPENED", From: types.StatusSent, To: types.StatusViewed, Applied: true},
			wantStatus: http.StatusOK,
			wantBody:   `"applied":true`,
		},
		{
			name:       "unknown contract is acknowledged",
			err:        &webhook.ParseError{Message: "contract not found"},
			wantStatus: http.StatusOK,
			wantBody:   "ignored",
		},
		{
			name:       "bad secret",
			err:        &webhook.AuthError{Reason: "invalid secret"},
			wantStatus: http.StatusUnauthorized,
		},
		{
			name:       "store down is retried",
			err:        errors.New("connection refused"),
			wantStatus: http.StatusInternalServerError,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t)
			h.webhooks.outcome, h.webhooks.err = tt.outcome, tt.err

			w := h.serve(t, httptest.NewRequest(http.MethodPost, "/webhooks/esign", strings.NewReader(`{"event":"DOCUMENT_OPENED"}`)))

			assert.Equal(t, tt.wantStatus, w.Code, w.Body.String())
			if tt.wantBody != "" {
				assert.Contains(t, w.Body.String(), tt.wantBody)
			}
			assert.JSONEq(t, `{"event":"DOCUMENT_OPENED"}`, string(h.webhooks.body))
		})
	}
}

func TestWebhook_PayloadTooLarge(t *testing.T) {
	h := newHarness(t)
	big := strings.Repeat("a", maxBodyBytes+1)

	w := h.serve(t, httptest.NewRequest(http.MethodPost, "/webhooks/esign", strings.NewReader(big)))

	assert.Equal(t, http.StatusRequestEntityTooLarge, w.Code)
	assert.Nil(t, h.webhooks.body)
}

func TestRateLimit(t *testing.T) {
	h := newHarness(t)
	h.sender.result = &signing.SendResult{DocumentID: "doc-1"}
	s := New(Config{RateLimit: &ratelimit.Config{
		Enabled:         true,
		DefaultLimit:    100,
		DefaultWindow:   time.Minute,
		EndpointConfigs: []ratelimit.EndpointConfig{{Path: "/contracts/", Method: "POST", Limit: 2, Window: time.Hour, Burst: 2}},
	}}, h.deps, nil)
	handler := s.Handler()
	path := "/contracts/" + h.contract.ID.String() + "/send"

	var codes []int
	for i := 0; i < 3; i++ {
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, httptest.NewRequest(http.MethodPost, path, nil))
		codes = append(codes, w.Code)
		if w.Code == http.StatusTooManyRequests {
			assert.NotEmpty(t, w.Header().Get("Retry-After"))
		}
	}
	assert.Equal(t, []int{http.StatusOK, http.StatusOK, http.StatusTooManyRequests}, codes)
}

func TestOptionsPreflight(t *testing.T) {
	h := newHarness(t)

	w := h.serve(t, httptest.NewRequest(http.MethodOptions, "/contracts/"+h.contract.ID.String()+"/send", nil))

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Header().Get("Access-Control-Allow-Headers"), "Authorization")
	assert.Empty(t, h.sender.got)
}
