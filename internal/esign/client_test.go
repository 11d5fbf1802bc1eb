package esign

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCreateDocumentWithSignatures(t *testing.T) {
	var got map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/api/v1/documents", r.URL.Path)
		assert.Equal(t, "Bearer key-1", r.Header.Get("Authorization"))
		body, _ := io.ReadAll(r.Body)
		require.NoError(t, json.Unmarshal(body, &got))

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"documentId": 981, "recipients": [{"email":"jane@example.com","name":"Jane","signingUrl":"https://sign.example/jane"}]}`))
	}))
	defer srv.Close()

	c := NewClient(Config{BaseURL: srv.URL + "/api/v1/", APIKey: "key-1"})
	doc, err := c.CreateDocumentWithSignatures(context.Background(), []byte("%PDF-1.7"), CreateRequest{
		Title:             "Purchase Agreement",
		ExternalReference: "ref-1",
		Recipients:        []Recipient{{Name: "Jane", Email: "jane@example.com", Role: "SIGNER", SigningOrder: 1}},
		Fields:            []Field{{Page: 2, X: 6, Y: 30, Width: 38, Height: 6, RecipientEmail: "jane@example.com", Type: FieldTypeSignature}},
		SendImmediately:   true,
		RedirectURL:       "https://app.example/done",
	})
	require.NoError(t, err)

	assert.Equal(t, "981", doc.DocumentID)
	require.Len(t, doc.Recipients, 1)
	assert.Equal(t, "https://sign.example/jane", doc.Recipients[0].SigningURL)

	assert.Equal(t, "Purchase Agreement", got["title"])
	assert.Equal(t, "ref-1", got["externalId"])
	assert.Equal(t, true, got["sendImmediately"])
	assert.Equal(t, base64.StdEncoding.EncodeToString([]byte("%PDF-1.7")), got["documentDataBase64"])
	assert.Equal(t, "https://app.example/done", got["meta"].(map[string]any)["redirectUrl"])
	field := got["fields"].([]any)[0].(map[string]any)
	assert.Equal(t, float64(2), field["pageNumber"])
	assert.Equal(t, "SIGNATURE", field["type"])
}

func TestCreateDocumentWithSignatures_ProviderError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnprocessableEntity)
		_, _ = w.Write([]byte(`{"message":"invalid field"}`))
	}))
	defer srv.Close()

	_, err := NewClient(Config{BaseURL: srv.URL}).CreateDocumentWithSignatures(context.Background(), []byte("x"), CreateRequest{})
	var provErr *Error
	require.ErrorAs(t, err, &provErr)
	assert.Equal(t, http.StatusUnprocessableEntity, provErr.StatusCode)
	assert.Contains(t, err.Error(), "invalid field")
}

func TestCreateDocumentWithSignatures_MissingID(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"recipients":[]}`))
	}))
	defer srv.Close()

	_, err := NewClient(Config{BaseURL: srv.URL}).CreateDocumentWithSignatures(context.Background(), []byte("x"), CreateRequest{})
	var provErr *Error
	assert.ErrorAs(t, err, &provErr)
}

func TestDownloadSignedDocument(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/documents/981/download", r.URL.Path)
		_, _ = w.Write([]byte("%PDF-signed"))
	}))
	defer srv.Close()

	data, err := NewClient(Config{BaseURL: srv.URL}).DownloadSignedDocument(context.Background(), "981")
	require.NoError(t, err)
	assert.Equal(t, "%PDF-signed", string(data))
}

func TestClient_NotConfigured(t *testing.T) {
	_, err := NewClient(Config{}).DownloadSignedDocument(context.Background(), "1")
	var provErr *Error
	require.ErrorAs(t, err, &provErr)
	assert.Contains(t, err.Error(), "not configured")
}
