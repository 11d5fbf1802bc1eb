package esign

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// DefaultSecretHeader carries the shared webhook secret.
const DefaultSecretHeader = "X-Documenso-Secret"

// SignatureHeader optionally carries an HMAC-SHA256 of the body keyed with the shared secret.
const SignatureHeader = "X-Signature"

// VerifySecret compares the shared secret in constant time. An unset secret rejects everything.
func VerifySecret(secret, got string) bool {
	if secret == "" || got == "" {
		return false
	}
	return hmac.Equal([]byte(secret), []byte(strings.TrimSpace(got)))
}

// SignBody returns the "sha256=<hex>" signature of body.
func SignBody(secret string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	_, _ = mac.Write(body)
	return "sha256=" + hex.EncodeToString(mac.Sum(nil))
}

// VerifySignature checks an HMAC signature header produced by SignBody.
func VerifySignature(secret string, body []byte, header string) bool {
	sig := strings.TrimSpace(header)
	if sig == "" || secret == "" {
		return false
	}
	if strings.HasPrefix(strings.ToLower(sig), "sha256=") {
		sig = sig[len("sha256="):]
	}
	got, err := hex.DecodeString(sig)
	if err != nil {
		return false
	}
	mac := hmac.New(sha256.New, []byte(secret))
	_, _ = mac.Write(body)
	return hmac.Equal(got, mac.Sum(nil))
}

// PayloadHash identifies a webhook body in audit metadata.
func PayloadHash(body []byte) string {
	sum := sha256.Sum256(body)
	return "sha256:" + hex.EncodeToString(sum[:])
}
