package webhook

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"strings"
)

// SignatureHeader carries the Sellsy webhook signature.
const SignatureHeader = "X-Sellsy-Signature"

var (
	// ErrMissingSignature is returned when the request carries no signature
	// header at all.
	ErrMissingSignature = errors.New("webhook signature header missing")

	// ErrInvalidSignature is returned when the supplied signature does not
	// match the HMAC of the request body under the shared secret.
	ErrInvalidSignature = errors.New("webhook signature invalid")
)

// VerifySignature checks the hex-encoded HMAC-SHA256 of body against the
// value supplied in the signature header. Comparison is constant-time.
func VerifySignature(body []byte, signature, secret string) error {
	signature = strings.TrimSpace(signature)
	if signature == "" {
		return ErrMissingSignature
	}

	mac := hmac.New(sha256.New, []byte(secret))
	_, _ = mac.Write(body)
	expected := hex.EncodeToString(mac.Sum(nil))

	if !hmac.Equal([]byte(expected), []byte(strings.ToLower(signature))) {
		return ErrInvalidSignature
	}
	return nil
}
