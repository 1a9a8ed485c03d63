package credentials

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"strings"
	"testing"
	"time"

	"github.com/username/cardgate/backend/src/config"
	"github.com/username/cardgate/backend/src/gateway"
)

func newTestBuilder(sharedSecret string) *Builder {
	return NewBuilder(&config.AppConfig{
		GatewayUserID:   "merchant-user",
		GatewayPassword: "merchant-pass",
		GatewayAPIKey:   "api-key",
		SharedSecret:    sharedSecret,
	})
}

func TestBasicAuthHeader(t *testing.T) {
	b := newTestBuilder("secret")
	header := b.BasicAuthHeader()

	if !strings.HasPrefix(header, "Basic ") {
		t.Fatalf("expected Basic prefix, got %q", header)
	}
	decoded, err := base64.StdEncoding.DecodeString(strings.TrimPrefix(header, "Basic "))
	if err != nil {
		t.Fatalf("credential not valid base64: %v", err)
	}
	if string(decoded) != "merchant-user:merchant-pass" {
		t.Fatalf("unexpected credential %q", decoded)
	}
}

func TestSignedTokenHeaders(t *testing.T) {
	b := newTestBuilder("shared-secret")
	ts := time.Unix(1700000000, 0)

	headers, err := b.SignedTokenHeaders("/acquirer/v1/authorizations", `{"a":1}`, ts)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	token := headers[HeaderPayToken]
	parts := strings.SplitN(token, ":", 3)
	if len(parts) != 3 || parts[0] != "xv2" {
		t.Fatalf("unexpected token shape %q", token)
	}
	if parts[1] != "1700000000" {
		t.Fatalf("expected timestamp 1700000000, got %q", parts[1])
	}
	if headers[HeaderPayTimestamp] != "1700000000" {
		t.Fatalf("timestamp header mismatch: %q", headers[HeaderPayTimestamp])
	}

	mac := hmac.New(sha256.New, []byte("shared-secret"))
	mac.Write([]byte("1700000000" + "/acquirer/v1/authorizations" + `{"a":1}`))
	if parts[2] != hex.EncodeToString(mac.Sum(nil)) {
		t.Fatalf("token HMAC does not match recomputed value")
	}
}

func TestSignedTokenHeadersMissingSecret(t *testing.T) {
	b := newTestBuilder("")
	_, err := b.SignedTokenHeaders("/path", "", time.Now())
	if err == nil {
		t.Fatal("expected error when shared secret missing")
	}
	if !strings.Contains(err.Error(), gateway.ErrTokenSigningUnavailable.Error()) {
		t.Fatalf("expected ErrTokenSigningUnavailable, got %v", err)
	}
}

func TestAuthHeadersFundsTransferDialect(t *testing.T) {
	b := newTestBuilder("shared-secret")
	headers := b.AuthHeaders(gateway.DialectFundsTransfer, "/visadirect/fundstransfer/v1/pushfundstransactions", "{}")

	if headers[HeaderAuthorization] == "" {
		t.Fatal("basic auth header missing")
	}
	if _, ok := headers[HeaderPayToken]; ok {
		t.Fatal("funds-transfer dialect must not carry signed-token headers")
	}
}

func TestAuthHeadersAuthorizationDialect(t *testing.T) {
	b := newTestBuilder("shared-secret")
	headers := b.AuthHeaders(gateway.DialectAuthorization, "/acquirer/v1/authorizations", "{}")

	if headers[HeaderAuthorization] == "" {
		t.Fatal("basic auth header missing")
	}
	if headers[HeaderPayToken] == "" {
		t.Fatal("authorization dialect must carry signed-token header")
	}
	if headers[HeaderPayTimestamp] == "" {
		t.Fatal("authorization dialect must carry timestamp header")
	}
}

// The degrade path: a missing shared secret must fall back to basic-auth-only
// headers instead of failing the whole request.
func TestAuthHeadersDegradeToBasicOnly(t *testing.T) {
	b := newTestBuilder("")
	headers := b.AuthHeaders(gateway.DialectAuthorization, "/acquirer/v1/authorizations", "{}")

	if headers[HeaderAuthorization] == "" {
		t.Fatal("basic auth header missing on degrade path")
	}
	if _, ok := headers[HeaderPayToken]; ok {
		t.Fatal("degrade path must not include a signed token")
	}
	if _, ok := headers[HeaderPayTimestamp]; ok {
		t.Fatal("degrade path must not include a timestamp header")
	}
}
