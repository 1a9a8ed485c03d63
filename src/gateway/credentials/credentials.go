// Package credentials builds the transport auth headers for outbound gateway
// calls: the basic credential that every call carries, and the time-boxed
// signed token the authorization/void dialect additionally requires.
package credentials

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"strconv"
	"time"

	"github.com/username/cardgate/backend/src/config"
	"github.com/username/cardgate/backend/src/gateway"
	"github.com/username/cardgate/backend/src/logger"
)

const (
	// HeaderAuthorization always carries the basic credential.
	HeaderAuthorization = "Authorization"
	// HeaderPayToken carries the HMAC signed token on the authorization dialect.
	HeaderPayToken = "x-pay-token"
	// HeaderPayTimestamp carries the token's signing timestamp.
	HeaderPayTimestamp = "x-pay-timestamp"
)

// Builder constructs transport auth headers from configured credentials.
type Builder struct {
	userID       string
	password     string
	apiKey       string
	sharedSecret string
}

// NewBuilder builds a header Builder from loaded configuration.
func NewBuilder(cfg *config.AppConfig) *Builder {
	return &Builder{
		userID:       cfg.GatewayUserID,
		password:     cfg.GatewayPassword,
		apiKey:       cfg.GatewayAPIKey,
		sharedSecret: cfg.SharedSecret,
	}
}

// BasicAuthHeader returns the standard basic-auth header value.
func (b *Builder) BasicAuthHeader() string {
	credential := base64.StdEncoding.EncodeToString([]byte(b.userID + ":" + b.password))
	return "Basic " + credential
}

// SignedTokenHeaders computes the HMAC-SHA256 signed token over the canonical
// string timestamp + resourcePath + body, keyed by the shared secret, and
// returns the token and timestamp headers.
func (b *Builder) SignedTokenHeaders(resourcePath, body string, ts time.Time) (map[string]string, error) {
	if b.sharedSecret == "" {
		return nil, fmt.Errorf("shared secret not configured: %w", gateway.ErrTokenSigningUnavailable)
	}

	timestamp := strconv.FormatInt(ts.Unix(), 10)
	mac := hmac.New(sha256.New, []byte(b.sharedSecret))
	mac.Write([]byte(timestamp + resourcePath + body))
	token := "xv2:" + timestamp + ":" + hex.EncodeToString(mac.Sum(nil))

	return map[string]string{
		HeaderPayToken:     token,
		HeaderPayTimestamp: timestamp,
	}, nil
}

// AuthHeaders assembles the full header set for a request. The basic
// credential is always present; signed-token headers are added only for the
// authorization/void dialect. When token signing is unavailable the request
// deliberately degrades to basic-auth-only transport headers instead of
// failing the whole request.
func (b *Builder) AuthHeaders(dialect gateway.Dialect, resourcePath, body string) map[string]string {
	headers := map[string]string{
		HeaderAuthorization: b.BasicAuthHeader(),
	}
	if dialect != gateway.DialectAuthorization {
		return headers
	}

	signed, err := b.SignedTokenHeaders(resourcePath, body, time.Now())
	if err != nil {
		if logger.L != nil {
			logger.L.Warn("Signed token unavailable, degrading to basic auth only",
				"resourcePath", resourcePath, "error", err)
		}
		return headers
	}
	for k, v := range signed {
		headers[k] = v
	}
	return headers
}
