package tokenpulse

import (
	"context"
	"io"
	"net/http"
	"strings"
	"sync"
	"testing"
	"time"
)

type roundTripFunc func(*http.Request) (*http.Response, error)

func (f roundTripFunc) RoundTrip(req *http.Request) (*http.Response, error) {
	return f(req)
}

func newTestLogger() Logger {
	return NewDiscardLogger()
}

func jsonResponse(status int, body string) *http.Response {
	return &http.Response{
		StatusCode: status,
		Header:     http.Header{"Content-Type": []string{"application/json"}},
		Body:       io.NopCloser(strings.NewReader(body)),
	}
}

// hostRecorder answers requests per host and remembers which hosts were asked.
type hostRecorder struct {
	mu        sync.Mutex
	responses map[string]func() *http.Response
	requested []string
}

func (h *hostRecorder) RoundTrip(req *http.Request) (*http.Response, error) {
	h.mu.Lock()
	h.requested = append(h.requested, req.URL.Hostname())
	respond, ok := h.responses[req.URL.Hostname()]
	h.mu.Unlock()
	if !ok {
		return jsonResponse(http.StatusNotFound, `{"error":"not found"}`), nil
	}
	return respond(), nil
}

func (h *hostRecorder) hits(host string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	count := 0
	for _, requested := range h.requested {
		if requested == host {
			count++
		}
	}
	return count
}

func newTestResolver(transport http.RoundTripper) *Resolver {
	return &Resolver{
		Client:    &http.Client{Transport: transport},
		Logger:    newTestLogger(),
		Timeout:   time.Second,
		MaxPasses: 1,
	}
}

func marketSource(name, host string) SourceSpec {
	return SourceSpec{
		Name:   name,
		URL:    "http://" + host + "/price?address={mint}",
		Price:  FieldRule{Paths: []string{"data.price"}},
		Volume: FieldRule{Paths: []string{"data.volume"}},
	}
}

func TestResolveFirstValidWins(t *testing.T) {
	t.Parallel()

	recorder := &hostRecorder{
		responses: map[string]func() *http.Response{
			"one.test": func() *http.Response {
				return jsonResponse(http.StatusNotFound, `{}`)
			},
			"two.test": func() *http.Response {
				return jsonResponse(http.StatusOK, `{"data":{"price":0}}`)
			},
			"three.test": func() *http.Response {
				return jsonResponse(http.StatusOK, `{"data":{"price":0.0002,"volume":9000}}`)
			},
			"four.test": func() *http.Response {
				return jsonResponse(http.StatusOK, `{"data":{"price":0.5}}`)
			},
		},
	}

	registry := SourceRegistry{
		Kind: KindMarket,
		Sources: []SourceSpec{
			marketSource("one", "one.test"),
			marketSource("two", "two.test"),
			marketSource("three", "three.test"),
			marketSource("four", "four.test"),
		},
	}

	resolver := newTestResolver(recorder)
	result := resolver.Resolve(context.Background(), registry, testMint)
	if !result.OK() {
		t.Fatalf("expected success, got error %q", result.Err)
	}
	if result.Source != "three" {
		t.Fatalf("source = %q, want %q", result.Source, "three")
	}
	if result.Metric.Price != 0.0002 {
		t.Fatalf("price = %v, want 0.0002", result.Metric.Price)
	}
	if !strings.Contains(result.Endpoint, "three.test") {
		t.Fatalf("unexpected endpoint %q", result.Endpoint)
	}
	if recorder.hits("four.test") != 0 {
		t.Fatal("resolver queried a source after the first valid result")
	}
}

func TestResolveZeroValuedSourcesExhaust(t *testing.T) {
	t.Parallel()

	zero := func() *http.Response {
		return jsonResponse(http.StatusOK, `{"data":{"price":0,"volume":0}}`)
	}
	recorder := &hostRecorder{
		responses: map[string]func() *http.Response{
			"one.test": zero,
			"two.test": zero,
		},
	}

	registry := SourceRegistry{
		Kind: KindMarket,
		Sources: []SourceSpec{
			marketSource("one", "one.test"),
			marketSource("two", "two.test"),
		},
	}

	result := newTestResolver(recorder).Resolve(context.Background(), registry, testMint)
	if result.OK() {
		t.Fatal("expected exhaustion for zero-valued sources")
	}
	if !strings.Contains(result.Err, "exhausted") {
		t.Fatalf("error %q does not mention exhaustion", result.Err)
	}
	if !strings.Contains(result.Err, "nonPositive") {
		t.Fatalf("error %q does not carry the last failure reason", result.Err)
	}
}

func TestResolveRetriesWithBackoff(t *testing.T) {
	t.Parallel()

	var mu sync.Mutex
	attempts := 0
	recorder := &hostRecorder{
		responses: map[string]func() *http.Response{
			"flaky.test": func() *http.Response {
				mu.Lock()
				defer mu.Unlock()
				attempts++
				if attempts < 3 {
					return jsonResponse(http.StatusServiceUnavailable, `{}`)
				}
				return jsonResponse(http.StatusOK, `{"data":{"price":0.001}}`)
			},
		},
	}

	sleeps := 0
	resolver := newTestResolver(recorder)
	resolver.MaxPasses = 3
	resolver.Backoff = 2 * time.Second
	resolver.sleep = func(ctx context.Context, d time.Duration) error {
		if d != 2*time.Second {
			t.Fatalf("unexpected backoff %v", d)
		}
		sleeps++
		return nil
	}

	registry := SourceRegistry{
		Kind:    KindMarket,
		Sources: []SourceSpec{marketSource("flaky", "flaky.test")},
	}

	result := resolver.Resolve(context.Background(), registry, testMint)
	if !result.OK() {
		t.Fatalf("expected success on third pass, got %q", result.Err)
	}
	if sleeps != 2 {
		t.Fatalf("expected 2 backoff waits, got %d", sleeps)
	}
}

func TestResolveBoundsPasses(t *testing.T) {
	t.Parallel()

	recorder := &hostRecorder{responses: map[string]func() *http.Response{}}

	resolver := newTestResolver(recorder)
	resolver.MaxPasses = 2
	resolver.sleep = func(ctx context.Context, d time.Duration) error { return nil }

	registry := SourceRegistry{
		Kind:    KindMarket,
		Sources: []SourceSpec{marketSource("down", "down.test")},
	}

	result := resolver.Resolve(context.Background(), registry, testMint)
	if result.OK() {
		t.Fatal("expected exhaustion")
	}
	if got := recorder.hits("down.test"); got != 2 {
		t.Fatalf("expected 2 attempts, got %d", got)
	}
}

func TestResolveSkipsSourcesMissingAPIKey(t *testing.T) {
	t.Parallel()

	recorder := &hostRecorder{responses: map[string]func() *http.Response{}}

	registry := DefaultFeeRegistry("")
	result := newTestResolver(recorder).Resolve(context.Background(), registry, testMint)
	if result.OK() {
		t.Fatal("expected exhaustion with no API key")
	}
	if !strings.Contains(result.Err, "missing API key") {
		t.Fatalf("error %q does not mention the missing key", result.Err)
	}
	if len(recorder.requested) != 0 {
		t.Fatalf("expected no outbound requests, got %d", len(recorder.requested))
	}
}

func TestResolveSendsAPIKeyHeader(t *testing.T) {
	t.Parallel()

	var gotHeader string
	transport := roundTripFunc(func(req *http.Request) (*http.Response, error) {
		gotHeader = req.Header.Get("x-api-key")
		return jsonResponse(http.StatusOK, `{"response":"5000000000"}`), nil
	})

	registry := DefaultFeeRegistry("secret-key")
	result := newTestResolver(transport).Resolve(context.Background(), registry, testMint)
	if !result.OK() {
		t.Fatalf("expected success, got %q", result.Err)
	}
	if gotHeader != "secret-key" {
		t.Fatalf("x-api-key header = %q, want %q", gotHeader, "secret-key")
	}
	if result.Metric.FeeAmountRaw != "5000000000" {
		t.Fatalf("fee raw = %q", result.Metric.FeeAmountRaw)
	}
}

func TestResolveEmptyRegistry(t *testing.T) {
	t.Parallel()

	result := newTestResolver(roundTripFunc(func(*http.Request) (*http.Response, error) {
		t.Fatal("no request expected")
		return nil, nil
	})).Resolve(context.Background(), SourceRegistry{Kind: KindMarket}, testMint)

	if result.OK() {
		t.Fatal("expected error for empty registry")
	}
	if result.Err != "no sources configured" {
		t.Fatalf("unexpected error %q", result.Err)
	}
}

func TestResolveTransportErrorContinues(t *testing.T) {
	t.Parallel()

	transport := roundTripFunc(func(req *http.Request) (*http.Response, error) {
		if req.URL.Hostname() == "broken.test" {
			return nil, context.DeadlineExceeded
		}
		return jsonResponse(http.StatusOK, `{"data":{"price":0.25}}`), nil
	})

	registry := SourceRegistry{
		Kind: KindMarket,
		Sources: []SourceSpec{
			marketSource("broken", "broken.test"),
			marketSource("healthy", "healthy.test"),
		},
	}

	result := newTestResolver(transport).Resolve(context.Background(), registry, testMint)
	if !result.OK() {
		t.Fatalf("expected fallback to healthy source, got %q", result.Err)
	}
	if result.Source != "healthy" {
		t.Fatalf("source = %q, want healthy", result.Source)
	}
}
