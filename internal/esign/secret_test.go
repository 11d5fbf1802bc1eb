package esign

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestVerifySecret(t *testing.T) {
	assert.True(t, VerifySecret("s3cret", "s3cret"))
	assert.True(t, VerifySecret("s3cret", " s3cret "))
	assert.False(t, VerifySecret("s3cret", "s3cre"))
	assert.False(t, VerifySecret("s3cret", ""))
	assert.False(t, VerifySecret("", ""))
	assert.False(t, VerifySecret("", "anything"))
}

func TestVerifySignature(t *testing.T) {
	body := []byte(`{"event":"DOCUMENT_OPENED"}`)
	sig := SignBody("s3cret", body)

	assert.True(t, VerifySignature("s3cret", body, sig))
	assert.True(t, VerifySignature("s3cret", body, sig[len("sha256="):]))
	assert.False(t, VerifySignature("other", body, sig))
	assert.False(t, VerifySignature("s3cret", []byte(`{}`), sig))
	assert.False(t, VerifySignature("s3cret", body, "sha256=zz"))
	assert.False(t, VerifySignature("", body, sig))
}

func TestPayloadHash(t *testing.T) {
	a := PayloadHash([]byte("a"))
	assert.Equal(t, a, PayloadHash([]byte("a")))
	assert.NotEqual(t, a, PayloadHash([]byte("b")))
	assert.Contains(t, a, "sha256:")
}
