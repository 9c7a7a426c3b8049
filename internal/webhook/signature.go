package webhook

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"strings"
)

// Signature verification failures. Callers must not leak which one occurred
// to the provider; the distinction exists for internal logging only.
var (
	ErrNotConfigured      = errors.New("webhook: signing secret not configured")
	ErrMissingSignature   = errors.New("webhook: signature header missing")
	ErrMalformedSignature = errors.New("webhook: signature header malformed")
	ErrSignatureMismatch  = errors.New("webhook: signature mismatch")
)

// SignatureVerifier validates X-Hub-Signature-256 headers against a shared
// app secret. Verification is a pure predicate over the exact raw request
// body; re-encoded JSON would diverge from what the provider signed.
type SignatureVerifier struct {
	secret string
}

// NewSignatureVerifier creates a verifier for the given app secret.
func NewSignatureVerifier(secret string) *SignatureVerifier {
	return &SignatureVerifier{secret: secret}
}

// Configured reports whether a secret is provisioned.
func (v *SignatureVerifier) Configured() bool {
	return v != nil && v.secret != ""
}

// Verify checks a header of the form "sha256=<hex-digest>" against the HMAC
// of the raw body. The digest comparison is constant time; unequal digest
// lengths fail before any byte-wise comparison.
func (v *SignatureVerifier) Verify(raw []byte, header string) error {
	if !v.Configured() {
		return ErrNotConfigured
	}
	if header == "" {
		return ErrMissingSignature
	}

	algo, theirHex, ok := strings.Cut(header, "=")
	if !ok || algo != "sha256" || theirHex == "" {
		return ErrMalformedSignature
	}
	theirs, err := hex.DecodeString(theirHex)
	if err != nil {
		return ErrMalformedSignature
	}

	mac := hmac.New(sha256.New, []byte(v.secret))
	mac.Write(raw)
	ours := mac.Sum(nil)

	if len(theirs) != len(ours) {
		return ErrSignatureMismatch
	}
	if !hmac.Equal(ours, theirs) {
		return ErrSignatureMismatch
	}
	return nil
}
