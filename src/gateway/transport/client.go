// Package transport performs the HTTPS exchange with the counterpart
// network: mutual TLS, keep-alive pooling, the hard timeout ceiling and
// low-level error classification.
package transport

import (
	"bytes"
	"context"
	"crypto/tls"
	"crypto/x509"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"golang.org/x/net/http2"

	"github.com/username/cardgate/backend/src/config"
	"github.com/username/cardgate/backend/src/gateway"
	"github.com/username/cardgate/backend/src/logger"
)

// Config selects the endpoint and TLS material for a Client.
type Config struct {
	BaseURL string
	Timeout time.Duration

	// Client certificate for mutual TLS. Both paths empty means plain TLS;
	// sandbox endpoints accept that, production ones do not.
	ClientCertPath string
	ClientKeyPath  string
	// Optional CA bundle for pinning the gateway's chain.
	CACertPath string
}

// FromAppConfig maps the loaded application configuration onto a transport
// Config.
func FromAppConfig(cfg *config.AppConfig) Config {
	return Config{
		BaseURL:        cfg.GatewayBaseURL,
		Timeout:        cfg.GatewayTimeout,
		ClientCertPath: cfg.ClientCertPath,
		ClientKeyPath:  cfg.ClientKeyPath,
		CACertPath:     cfg.CACertPath,
	}
}

// Response is the raw completion of an exchange. Non-2xx responses are
// returned, not rejected: the counterpart embeds business result codes in the
// body even on HTTP errors, and the response interpreter decides the final
// outcome.
type Response struct {
	StatusCode int
	Body       []byte
}

// Client is safe for concurrent use; the underlying connection pool is
// shared across concurrent outbound calls.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// NewClient builds the mutual-TLS HTTP client.
func NewClient(cfg Config) (*Client, error) {
	tlsConfig := &tls.Config{MinVersion: tls.VersionTLS12}

	if cfg.ClientCertPath != "" && cfg.ClientKeyPath != "" {
		cert, err := tls.LoadX509KeyPair(cfg.ClientCertPath, cfg.ClientKeyPath)
		if err != nil {
			return nil, fmt.Errorf("loading client certificate: %w", err)
		}
		tlsConfig.Certificates = []tls.Certificate{cert}
	}

	if cfg.CACertPath != "" {
		pem, err := os.ReadFile(cfg.CACertPath)
		if err != nil {
			return nil, fmt.Errorf("reading CA bundle: %w", err)
		}
		pool := x509.NewCertPool()
		if !pool.AppendCertsFromPEM(pem) {
			return nil, fmt.Errorf("no certificates parsed from CA bundle %s", cfg.CACertPath)
		}
		tlsConfig.RootCAs = pool
	}

	transport := &http.Transport{
		TLSClientConfig:     tlsConfig,
		MaxIdleConns:        20,
		MaxIdleConnsPerHost: 10,
		IdleConnTimeout:     60 * time.Second,
	}
	if err := http2.ConfigureTransport(transport); err != nil {
		return nil, fmt.Errorf("configuring http2: %w", err)
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	return &Client{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		httpClient: &http.Client{
			Transport: transport,
			Timeout:   timeout,
		},
	}, nil
}

// Send performs one exchange. The context may cancel an in-flight call, but a
// cancelled call must not be assumed to have missed the counterpart network;
// callers keep the transaction in a non-terminal state until a definitive
// response or reconciliation.
func (c *Client) Send(ctx context.Context, method, path string, headers map[string]string, body []byte) (*Response, error) {
	var reader io.Reader
	if len(body) > 0 {
		reader = bytes.NewReader(body)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return nil, fmt.Errorf("building request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, classify(err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, classify(err)
	}

	if logger.L != nil {
		logger.L.Debug("Gateway exchange completed",
			"method", method, "path", path,
			"statusCode", resp.StatusCode, "elapsed", time.Since(start).String())
	}

	return &Response{StatusCode: resp.StatusCode, Body: respBody}, nil
}

// classify maps low-level transport failures onto the gateway error taxonomy
// so callers can tell "we could not reach the network" apart from everything
// else.
func classify(err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%v: %w", err, gateway.ErrNetworkTimeout)
	}
	var uerr *url.Error
	if errors.As(err, &uerr) && uerr.Timeout() {
		return fmt.Errorf("%v: %w", err, gateway.ErrNetworkTimeout)
	}
	return fmt.Errorf("%v: %w", err, gateway.ErrNetwork)
}
