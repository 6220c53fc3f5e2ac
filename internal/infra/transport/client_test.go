package transport

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"
)

func testClient(url string, attempts int) *Client {
	limiter := NewLimiter(Config{Limit: 100, Interval: time.Second})
	cfg := RetryConfig{Attempts: attempts, InitialDelay: 10 * time.Millisecond, MaxDelay: 50 * time.Millisecond}
	return NewClient(url, 5*time.Second, limiter, cfg, slog.Default())
}

func TestClient_RetryThenSucceed(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) <= 2 {
			w.WriteHeader(http.StatusTooManyRequests)
			_, _ = w.Write([]byte(`{"error":"rate limited"}`))
			return
		}
		_, _ = w.Write([]byte(`{"value":"ok"}`))
	}))
	defer srv.Close()

	c := testClient(srv.URL, 3)

	var retries []int
	c.SetOnRetry(func(attempt int, err error) {
		retries = append(retries, attempt)
	})

	resp, err := c.Send(context.Background(), &Request{Method: http.MethodGet, Path: "/thing"})
	if err != nil {
		t.Fatalf("Send failed: %v", err)
	}

	var body struct {
		Value string `json:"value"`
	}
	if err := resp.Decode(&body); err != nil || body.Value != "ok" {
		t.Errorf("Decode = (%+v, %v), want value ok", body, err)
	}
	if len(retries) != 2 || retries[0] != 1 || retries[1] != 2 {
		t.Errorf("Retry callbacks = %v, want [1 2]", retries)
	}
	if got := calls.Load(); got != 3 {
		t.Errorf("Server saw %d calls, want 3", got)
	}
}

func TestClient_RateLimitExhaustsRetries(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = w.Write([]byte(`{"error":"still limited"}`))
	}))
	defer srv.Close()

	c := testClient(srv.URL, 3)

	retryCount := 0
	c.SetOnRetry(func(attempt int, err error) { retryCount++ })

	_, err := c.Send(context.Background(), &Request{Method: http.MethodGet, Path: "/thing"})
	if err == nil {
		t.Fatal("Expected terminal failure after exhausting retries")
	}

	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("Expected *APIError, got %T: %v", err, err)
	}
	if apiErr.Status != http.StatusTooManyRequests {
		t.Errorf("Status = %d, want 429", apiErr.Status)
	}
	if got := calls.Load(); got != 3 {
		t.Errorf("Server saw %d calls, want 3", got)
	}
	if retryCount != 2 {
		t.Errorf("Retry callbacks = %d, want 2", retryCount)
	}
}

func TestClient_NonRetryableStatusFailsFast(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusUnprocessableEntity)
		_, _ = w.Write([]byte(`{"field":"name","reason":"required"}`))
	}))
	defer srv.Close()

	c := testClient(srv.URL, 3)

	_, err := c.Send(context.Background(), &Request{Method: http.MethodPost, Path: "/thing", Body: map[string]string{}})
	if err == nil {
		t.Fatal("Expected terminal failure")
	}

	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("Expected *APIError, got %T: %v", err, err)
	}
	if apiErr.Status != http.StatusUnprocessableEntity {
		t.Errorf("Status = %d, want 422", apiErr.Status)
	}
	if apiErr.Body["reason"] != "required" {
		t.Errorf("Body = %v, want parsed error body", apiErr.Body)
	}
	if got := calls.Load(); got != 1 {
		t.Errorf("Server saw %d calls, want 1 (no retry)", got)
	}
}

func TestClient_UnparsableErrorBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte("<html>not json</html>"))
	}))
	defer srv.Close()

	c := testClient(srv.URL, 1)

	_, err := c.Send(context.Background(), &Request{Method: http.MethodGet, Path: "/"})
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("Expected *APIError, got %v", err)
	}
	if apiErr.Status != http.StatusBadRequest {
		t.Errorf("Status = %d, want 400", apiErr.Status)
	}
	if len(apiErr.Body) != 0 {
		t.Errorf("Body = %v, want empty object for unparsable body", apiErr.Body)
	}
}

func TestClient_NetworkErrorRetries(t *testing.T) {
	// Nothing listens here; every attempt fails at the transport level
	c := testClient("http://127.0.0.1:1", 2)

	retryCount := 0
	c.SetOnRetry(func(attempt int, err error) { retryCount++ })

	_, err := c.Send(context.Background(), &Request{Method: http.MethodGet, Path: "/"})
	if err == nil {
		t.Fatal("Expected failure against a dead endpoint")
	}
	if retryCount != 1 {
		t.Errorf("Retry callbacks = %d, want 1", retryCount)
	}
}

func TestRequest_Fingerprint(t *testing.T) {
	a := &Request{Method: http.MethodGet, Path: "/x", Body: map[string]int{"a": 1}}
	b := &Request{Method: http.MethodGet, Path: "/x", Body: map[string]int{"a": 1}}
	c := &Request{Method: http.MethodGet, Path: "/x", Body: map[string]int{"a": 2}}

	if a.Fingerprint() != b.Fingerprint() {
		t.Error("Identical requests must share a fingerprint")
	}
	if a.Fingerprint() == c.Fingerprint() {
		t.Error("Different bodies must produce different fingerprints")
	}
}
