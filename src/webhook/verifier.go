// Package webhook authenticates and routes asynchronous network callbacks
// into transaction state-machine transitions.
package webhook

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"

	"github.com/username/cardgate/backend/src/gateway"
)

// SignatureHeader carries the HMAC signature of the raw webhook body.
const SignatureHeader = "x-webhook-signature"

// Verifier checks webhook signatures against the shared secret.
type Verifier struct {
	secret []byte
}

func NewVerifier(secret string) *Verifier {
	return &Verifier{secret: []byte(secret)}
}

// Sign computes the expected signature for a raw body. Exposed for the
// counterpart simulator and tests.
func (v *Verifier) Sign(rawBody []byte) string {
	mac := hmac.New(sha256.New, v.secret)
	mac.Write(rawBody)
	return hex.EncodeToString(mac.Sum(nil))
}

// Verify recomputes the HMAC-SHA256 of the raw body and compares it to the
// supplied signature in constant time. A missing signature, an unconfigured
// secret or any mismatch is rejected before further processing.
func (v *Verifier) Verify(rawBody []byte, signature string) error {
	if len(v.secret) == 0 {
		return fmt.Errorf("webhook secret not configured: %w", gateway.ErrInvalidSignature)
	}
	if signature == "" {
		return fmt.Errorf("signature header missing: %w", gateway.ErrInvalidSignature)
	}

	supplied, err := hex.DecodeString(signature)
	if err != nil {
		return fmt.Errorf("signature not valid hex: %w", gateway.ErrInvalidSignature)
	}

	mac := hmac.New(sha256.New, v.secret)
	mac.Write(rawBody)
	if !hmac.Equal(mac.Sum(nil), supplied) {
		return fmt.Errorf("signature mismatch: %w", gateway.ErrInvalidSignature)
	}
	return nil
}
