package httpx

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	clierr "github.com/ggonzalez94/agentkit-go/internal/errors"
)

func TestDoJSONRetriesServerError(t *testing.T) {
	var count int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := atomic.AddInt32(&count, 1)
		if n == 1 {
			w.WriteHeader(http.StatusInternalServerError)
			_, _ = w.Write([]byte(`{"error":"x"}`))
			return
		}
		if r.Header.Get("User-Agent") != defaultUserAgent {
			t.Errorf("unexpected user agent %q", r.Header.Get("User-Agent"))
		}
		_, _ = w.Write([]byte(`{"ok":true}`))
	}))
	defer srv.Close()

	client := New(2*time.Second, 1)
	req, err := http.NewRequestWithContext(context.Background(), http.MethodGet, srv.URL, nil)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	var out map[string]any
	if _, err := client.DoJSON(context.Background(), req, &out); err != nil {
		t.Fatalf("DoJSON failed: %v", err)
	}
	if out["ok"] != true {
		t.Fatalf("unexpected response: %#v", out)
	}
}

func TestDoJSONMapsClientErrors(t *testing.T) {
	cases := []struct {
		status int
		code   clierr.Code
	}{
		{http.StatusUnauthorized, clierr.CodeAuth},
		{http.StatusBadRequest, clierr.CodeUnsupported},
		{http.StatusTooManyRequests, clierr.CodeRateLimited},
	}
	for _, tc := range cases {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(tc.status)
			_, _ = w.Write([]byte(`{"errorMessage":"bad token pair"}`))
		}))
		client := New(time.Second, 0)
		_, err := DoBodyJSON(context.Background(), client, http.MethodGet, srv.URL, nil, nil, &map[string]any{})
		srv.Close()
		if !clierr.HasCode(err, tc.code) {
			t.Fatalf("status %d: expected code %d, got %v", tc.status, tc.code, err)
		}
		if tc.status == http.StatusBadRequest && !strings.Contains(err.Error(), "bad token pair") {
			t.Fatalf("expected error detail in message, got %v", err)
		}
	}
}

func TestDoReturnsPaymentRequiredWithoutRetry(t *testing.T) {
	var count int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&count, 1)
		if r.Header.Get("X-Test") != "1" {
			t.Errorf("missing custom header")
		}
		w.WriteHeader(http.StatusPaymentRequired)
		_, _ = w.Write([]byte(`{"accepts":[]}`))
	}))
	defer srv.Close()

	client := New(time.Second, 3)
	req, err := NewRequest(context.Background(), http.MethodPost, srv.URL, []byte(`{"a":1}`), map[string]string{"X-Test": "1"})
	if err != nil {
		t.Fatalf("NewRequest: %v", err)
	}
	resp, err := client.Do(context.Background(), req)
	if err != nil {
		t.Fatalf("Do failed: %v", err)
	}
	if resp.StatusCode != http.StatusPaymentRequired || string(resp.Body) != `{"accepts":[]}` {
		t.Fatalf("unexpected response: %d %s", resp.StatusCode, resp.Body)
	}
	if atomic.LoadInt32(&count) != 1 {
		t.Fatalf("expected a single attempt, got %d", count)
	}
}
