// Package mle implements field-level encryption of sensitive payload fields.
// Account numbers are encrypted with AES-256-GCM before transmission; the
// encryption key is derived per key id from the configured master key with
// HKDF so rotating the key id rotates the derived key without redistributing
// the master secret.
//
// The plaintext of a sensitive field is never logged at any level.
package mle

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"io"
	"strings"

	"golang.org/x/crypto/hkdf"

	"github.com/username/cardgate/backend/src/gateway"
)

// encPrefix marks an encrypted field value: enc:v1:<keyId>:<base64 payload>.
const encPrefix = "enc:v1:"

const derivedKeySize = 32

// Encryptor encrypts and decrypts sensitive fields for one key id.
type Encryptor struct {
	keyID          string
	key            []byte
	allowCleartext bool
}

// NewEncryptor derives the field key for keyID from the master key material.
// An empty master key yields an unavailable encryptor: every encrypt call
// fails with ErrEncryptionUnavailable and callers decide whether to abort
// (the production default) or proceed in cleartext (explicit opt-in only).
func NewEncryptor(keyID, masterKey string, allowCleartext bool) *Encryptor {
	e := &Encryptor{keyID: keyID, allowCleartext: allowCleartext}
	if masterKey == "" || keyID == "" {
		return e
	}

	r := hkdf.New(sha256.New, []byte(masterKey), []byte(keyID), []byte("cardgate-field-encryption"))
	key := make([]byte, derivedKeySize)
	if _, err := io.ReadFull(r, key); err != nil {
		// Leave the encryptor unavailable; callers get ErrEncryptionUnavailable.
		return e
	}
	e.key = key
	return e
}

// Available reports whether key material is configured.
func (e *Encryptor) Available() bool {
	return len(e.key) == derivedKeySize
}

// CleartextAllowed reports whether the deployment explicitly opted in to
// proceeding with cleartext values when encryption fails.
func (e *Encryptor) CleartextAllowed() bool {
	return e.allowCleartext
}

// KeyID returns the configured encryption key identifier.
func (e *Encryptor) KeyID() string {
	return e.keyID
}

// EncryptField encrypts a single sensitive value and returns the marked,
// transport-safe representation.
func (e *Encryptor) EncryptField(plaintext string) (string, error) {
	if !e.Available() {
		return "", fmt.Errorf("key id %q: %w", e.keyID, gateway.ErrEncryptionUnavailable)
	}

	block, err := aes.NewCipher(e.key)
	if err != nil {
		return "", fmt.Errorf("%v: %w", err, gateway.ErrEncryptionFailed)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return "", fmt.Errorf("%v: %w", err, gateway.ErrEncryptionFailed)
	}

	nonce := make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", fmt.Errorf("nonce generation: %w", gateway.ErrEncryptionFailed)
	}

	sealed := gcm.Seal(nonce, nonce, []byte(plaintext), []byte(e.keyID))
	return encPrefix + e.keyID + ":" + base64.StdEncoding.EncodeToString(sealed), nil
}

// DecryptField inverts EncryptField for inbound encrypted values.
func (e *Encryptor) DecryptField(value string) (string, error) {
	if !e.Available() {
		return "", fmt.Errorf("key id %q: %w", e.keyID, gateway.ErrEncryptionUnavailable)
	}

	rest, ok := strings.CutPrefix(value, encPrefix)
	if !ok {
		return "", fmt.Errorf("value is not an encrypted field: %w", gateway.ErrEncryptionFailed)
	}
	keyID, payload, ok := strings.Cut(rest, ":")
	if !ok {
		return "", fmt.Errorf("malformed encrypted field: %w", gateway.ErrEncryptionFailed)
	}
	if keyID != e.keyID {
		return "", fmt.Errorf("unknown encryption key id %q: %w", keyID, gateway.ErrEncryptionUnavailable)
	}

	sealed, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return "", fmt.Errorf("%v: %w", err, gateway.ErrEncryptionFailed)
	}

	block, err := aes.NewCipher(e.key)
	if err != nil {
		return "", fmt.Errorf("%v: %w", err, gateway.ErrEncryptionFailed)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return "", fmt.Errorf("%v: %w", err, gateway.ErrEncryptionFailed)
	}
	if len(sealed) < gcm.NonceSize() {
		return "", fmt.Errorf("encrypted field too short: %w", gateway.ErrEncryptionFailed)
	}

	plaintext, err := gcm.Open(nil, sealed[:gcm.NonceSize()], sealed[gcm.NonceSize():], []byte(e.keyID))
	if err != nil {
		return "", fmt.Errorf("%v: %w", err, gateway.ErrEncryptionFailed)
	}
	return string(plaintext), nil
}

// IsEncrypted reports whether a value carries the encrypted-field marker.
func IsEncrypted(value string) bool {
	return strings.HasPrefix(value, encPrefix)
}

// Result reports the outcome of encrypting a payload's sensitive fields.
type Result struct {
	Success bool
	KeyID   string
	Payload map[string]any
	Err     error
}

// EncryptSensitiveFields encrypts the named fields of a generic payload and
// returns a copy with encrypted-field markers plus the key id. On failure the
// result carries Success=false and the original payload untouched; the caller
// decides whether to abort (preferred) or proceed in cleartext.
func (e *Encryptor) EncryptSensitiveFields(payload map[string]any, fields ...string) Result {
	out := make(map[string]any, len(payload))
	for k, v := range payload {
		out[k] = v
	}

	for _, field := range fields {
		raw, ok := payload[field]
		if !ok {
			continue
		}
		plaintext, ok := raw.(string)
		if !ok || plaintext == "" {
			continue
		}
		enc, err := e.EncryptField(plaintext)
		if err != nil {
			return Result{Success: false, KeyID: e.keyID, Payload: payload, Err: err}
		}
		out[field] = enc
	}
	out["encryptionKeyId"] = e.keyID
	return Result{Success: true, KeyID: e.keyID, Payload: out}
}
