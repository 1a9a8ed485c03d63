package transport

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/username/cardgate/backend/src/gateway"
)

func newTestClient(t *testing.T, baseURL string, timeout time.Duration) *Client {
	t.Helper()
	c, err := NewClient(Config{BaseURL: baseURL, Timeout: timeout})
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	return c
}

func TestSendRoundTrip(t *testing.T) {
	var gotPath, gotAuth, gotContentType string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotAuth = r.Header.Get("Authorization")
		gotContentType = r.Header.Get("Content-Type")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"actionCode":"00"}`))
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL, 5*time.Second)
	resp, err := c.Send(context.Background(), "POST", "/visadirect/fundstransfer/v1/pushfundstransactions",
		map[string]string{"Authorization": "Basic abc"}, []byte(`{}`))
	if err != nil {
		t.Fatalf("Send: %v", err)
	}
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status %d", resp.StatusCode)
	}
	if string(resp.Body) != `{"actionCode":"00"}` {
		t.Fatalf("body %q", resp.Body)
	}
	if gotPath != "/visadirect/fundstransfer/v1/pushfundstransactions" {
		t.Fatalf("path %q", gotPath)
	}
	if gotAuth != "Basic abc" {
		t.Fatalf("auth header %q", gotAuth)
	}
	if gotContentType != "application/json" {
		t.Fatalf("content type %q", gotContentType)
	}
}

// Non-2xx responses come back as responses, not errors; business result codes
// live in those bodies.
func TestSendReturnsHTTPErrorBodies(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"actionCode":"14"}`))
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL, 5*time.Second)
	resp, err := c.Send(context.Background(), "POST", "/x", nil, []byte(`{}`))
	if err != nil {
		t.Fatalf("Send must not fail on HTTP 400: %v", err)
	}
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("status %d", resp.StatusCode)
	}
	if string(resp.Body) != `{"actionCode":"14"}` {
		t.Fatalf("body %q", resp.Body)
	}
}

func TestSendTimeoutClassified(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(500 * time.Millisecond)
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL, 50*time.Millisecond)
	_, err := c.Send(context.Background(), "POST", "/x", nil, []byte(`{}`))
	if !errors.Is(err, gateway.ErrNetworkTimeout) {
		t.Fatalf("expected ErrNetworkTimeout, got %v", err)
	}
}

func TestSendContextDeadlineClassified(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(500 * time.Millisecond)
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL, 5*time.Second)
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err := c.Send(ctx, "POST", "/x", nil, []byte(`{}`))
	if !errors.Is(err, gateway.ErrNetworkTimeout) {
		t.Fatalf("expected ErrNetworkTimeout, got %v", err)
	}
}

func TestSendConnectionRefusedClassified(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	srv.Close() // nothing listening any more

	c := newTestClient(t, srv.URL, 2*time.Second)
	_, err := c.Send(context.Background(), "POST", "/x", nil, nil)
	if err == nil {
		t.Fatal("expected error against closed server")
	}
	if !errors.Is(err, gateway.ErrNetwork) {
		t.Fatalf("expected ErrNetwork, got %v", err)
	}
	if errors.Is(err, gateway.ErrNetworkTimeout) {
		t.Fatalf("connection refused must not classify as timeout: %v", err)
	}
}
