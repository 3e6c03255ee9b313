package fetch

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/consent-audit/crawl/internal/cache"
	"github.com/consent-audit/crawl/pkg/models"
)

func newTestClient(t *testing.T, cfg Config) *Client {
	t.Helper()
	client, err := NewClient(cfg)
	if err != nil {
		t.Fatalf("NewClient returned error: %v", err)
	}
	return client
}

func TestGetSuccess(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("<html><body>ok</body></html>"))
	}))
	defer server.Close()

	client := newTestClient(t, Config{})
	res := client.Get(context.Background(), server.URL, Options{})

	if res.Outcome != models.OutcomeSuccess {
		t.Fatalf("Outcome = %v, want SUCCESS (diagnostic: %s)", res.Outcome, res.Diagnostic)
	}
	if res.Status != http.StatusOK {
		t.Errorf("Status = %d, want 200", res.Status)
	}
	if !strings.Contains(string(res.Body), "ok") {
		t.Errorf("Body = %q, want body containing ok", res.Body)
	}
}

func TestGetHTTPError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "not here", http.StatusNotFound)
	}))
	defer server.Close()

	client := newTestClient(t, Config{})
	res := client.Get(context.Background(), server.URL, Options{})

	if res.Outcome != models.OutcomeHTTPError {
		t.Errorf("Outcome = %v, want HTTP_ERROR", res.Outcome)
	}
	if res.Status != http.StatusNotFound {
		t.Errorf("Status = %d, want 404", res.Status)
	}
}

func TestGetCloudflare525(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(525)
	}))
	defer server.Close()

	client := newTestClient(t, Config{})
	res := client.Get(context.Background(), server.URL, Options{})

	if res.Outcome != models.OutcomeSSLError {
		t.Errorf("Outcome = %v, want SSL_ERROR for status 525", res.Outcome)
	}
}

func TestGetConnectionRefused(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	addr := server.URL
	server.Close()

	client := newTestClient(t, Config{})
	res := client.Get(context.Background(), addr, Options{})

	if res.Outcome != models.OutcomeConnFailed {
		t.Errorf("Outcome = %v, want CONN_FAILED", res.Outcome)
	}
	if res.Err == nil {
		t.Error("Expected Err to carry the underlying error")
	}
}

func TestGetMalformedURL(t *testing.T) {
	client := newTestClient(t, Config{})

	for _, raw := range []string{"example.com", "ftp://example.com", "http://"} {
		res := client.Get(context.Background(), raw, Options{})
		if res.Outcome != models.OutcomeMalformedURL {
			t.Errorf("Get(%q) outcome = %v, want MALFORMED_URL", raw, res.Outcome)
		}
	}
}

func TestGetTLSVerification(t *testing.T) {
	server := httptest.NewTLSServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("secure"))
	}))
	defer server.Close()

	client := newTestClient(t, Config{})

	res := client.Get(context.Background(), server.URL, Options{})
	if res.Outcome != models.OutcomeSSLError {
		t.Errorf("Outcome = %v, want SSL_ERROR for self-signed certificate", res.Outcome)
	}

	res = client.Get(context.Background(), server.URL, Options{Insecure: true})
	if res.Outcome != models.OutcomeSuccess {
		t.Errorf("Outcome = %v, want SUCCESS with verification disabled (diagnostic: %s)", res.Outcome, res.Diagnostic)
	}

	insecureClient := newTestClient(t, Config{Insecure: true})
	res = insecureClient.Get(context.Background(), server.URL, Options{})
	if res.Outcome != models.OutcomeSuccess {
		t.Errorf("Outcome = %v, want SUCCESS for a client built with Insecure (diagnostic: %s)", res.Outcome, res.Diagnostic)
	}
}

func TestGetUsesCache(t *testing.T) {
	hits := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits++
		w.Write([]byte("cached body"))
	}))
	defer server.Close()

	store := cache.NewMemoryCache(1 << 20)
	defer store.Close()

	client := newTestClient(t, Config{Cache: store, CacheTTL: time.Minute})

	first := client.Get(context.Background(), server.URL, Options{})
	if first.FromCache {
		t.Error("First request should not come from cache")
	}
	second := client.Get(context.Background(), server.URL, Options{})
	if !second.FromCache {
		t.Error("Second request should come from cache")
	}
	if hits != 1 {
		t.Errorf("Server hit %d times, want 1", hits)
	}
	if string(second.Body) != "cached body" {
		t.Errorf("Cached body = %q", second.Body)
	}

	// Requests with extra headers must bypass the cache.
	third := client.Get(context.Background(), server.URL, Options{Headers: map[string]string{"Referer": "https://example.com"}})
	if third.FromCache {
		t.Error("Request with headers should bypass cache")
	}
	if hits != 2 {
		t.Errorf("Server hit %d times after header request, want 2", hits)
	}
}

func TestGetSendsHeaders(t *testing.T) {
	var gotReferer, gotUA string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotReferer = r.Header.Get("Referer")
		gotUA = r.Header.Get("User-Agent")
	}))
	defer server.Close()

	client := newTestClient(t, Config{UserAgent: "test-agent/2.0"})
	client.Get(context.Background(), server.URL, Options{Headers: map[string]string{"Referer": "https://example.com/page"}})

	if gotReferer != "https://example.com/page" {
		t.Errorf("Referer = %q", gotReferer)
	}
	if gotUA != "test-agent/2.0" {
		t.Errorf("User-Agent = %q", gotUA)
	}
}

func TestGetSendsDefaultHeaders(t *testing.T) {
	var got string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = r.Header.Get("X-Audit-Run")
	}))
	defer server.Close()

	client := newTestClient(t, Config{Headers: map[string]string{"X-Audit-Run": "batch-7"}})
	client.Get(context.Background(), server.URL, Options{})

	if got != "batch-7" {
		t.Errorf("X-Audit-Run = %q, want batch-7", got)
	}
}

func TestClassifyStatus(t *testing.T) {
	tests := []struct {
		code int
		want models.CrawlOutcome
	}{
		{200, models.OutcomeSuccess},
		{301, models.OutcomeSuccess},
		{403, models.OutcomeHTTPError},
		{404, models.OutcomeHTTPError},
		{500, models.OutcomeHTTPError},
		{525, models.OutcomeSSLError},
	}

	for _, tt := range tests {
		got, _ := classifyStatus(tt.code, http.StatusText(tt.code))
		if got != tt.want {
			t.Errorf("classifyStatus(%d) = %v, want %v", tt.code, got, tt.want)
		}
	}
}
