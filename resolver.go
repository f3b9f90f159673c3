package tokenpulse

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

const (
	resolverUserAgent   = "tokenpulse/1.0"
	maxResponseBodySize = 256 * 1024
)

// Resolution is the tagged outcome of one registry sweep. Either Metric and
// Source are set, or Err carries the last failure reason observed.
type Resolution struct {
	Metric   ParsedMetric
	Source   string
	Endpoint string
	Err      string
}

// OK reports whether a source satisfied the resolution.
func (r Resolution) OK() bool {
	return r.Err == ""
}

// Resolver walks a SourceRegistry in priority order and returns the first
// structurally valid result. Individual source failures never surface as
// errors; only full exhaustion does, and then as data rather than a panic or
// a Go error.
type Resolver struct {
	Client  *http.Client
	Logger  Logger
	Timeout time.Duration
	// MaxPasses bounds full sweeps over the registry; Backoff separates them.
	MaxPasses int
	Backoff   time.Duration

	// sleep is replaced in tests to avoid real backoff waits.
	sleep func(ctx context.Context, d time.Duration) error
}

// NewResolver builds a resolver from settings, sharing the rate-limited,
// metric-counting HTTP client across all sources.
func NewResolver(settings Settings, logger Logger) *Resolver {
	return &Resolver{
		Client:    newExternalHTTPClient(settings.SourceTimeout),
		Logger:    logger,
		Timeout:   settings.SourceTimeout,
		MaxPasses: settings.MaxPasses,
		Backoff:   settings.Backoff,
	}
}

// Resolve sweeps the registry up to MaxPasses times. Sources are tried one at
// a time; fanning out in parallel would hammer providers that are already
// flaky, and first-valid-wins needs slot order anyway.
func (r *Resolver) Resolve(ctx context.Context, registry SourceRegistry, mint string) Resolution {
	if len(registry.Sources) == 0 {
		return Resolution{Err: "no sources configured"}
	}

	passes := r.MaxPasses
	if passes < 1 {
		passes = 1
	}

	lastReason := "all sources exhausted"
	for pass := 1; pass <= passes; pass++ {
		for _, source := range registry.Sources {
			metric, reason, ok := r.trySource(ctx, registry.Kind, source, mint)
			if ok {
				r.logf("resolve kind=%s pass=%d source=%s ok", registry.Kind, pass, source.Name)
				return Resolution{
					Metric:   metric,
					Source:   source.Name,
					Endpoint: source.requestURL(mint),
				}
			}
			lastReason = fmt.Sprintf("%s: %s", source.Name, reason)
			r.logf("resolve kind=%s pass=%d source=%s failed reason=%s", registry.Kind, pass, source.Name, reason)
		}

		if pass < passes {
			if err := r.wait(ctx, r.Backoff); err != nil {
				return Resolution{Err: fmt.Sprintf("all sources exhausted, last failure %s (%v)", lastReason, err)}
			}
		}
	}

	return Resolution{Err: fmt.Sprintf("all sources exhausted, last failure %s", lastReason)}
}

// trySource issues one request and validates the reply. Transport failures,
// non-2xx statuses and semantically empty responses are all the same outcome:
// move on to the next source.
func (r *Resolver) trySource(ctx context.Context, kind RegistryKind, source SourceSpec, mint string) (ParsedMetric, string, bool) {
	if source.HeaderName != "" && strings.TrimSpace(source.HeaderValue) == "" {
		return ParsedMetric{}, "missing API key", false
	}

	timeout := r.Timeout
	if timeout <= 0 {
		timeout = defaultSourceTimeout
	}
	reqCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	endpoint := source.requestURL(mint)
	req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, endpoint, nil)
	if err != nil {
		return ParsedMetric{}, fmt.Sprintf("build request: %v", err), false
	}
	req.Header.Set("User-Agent", resolverUserAgent)
	req.Header.Set("Accept", "application/json")
	if source.HeaderName != "" {
		req.Header.Set(source.HeaderName, source.HeaderValue)
	}

	resp, err := r.client().Do(req)
	if err != nil {
		return ParsedMetric{}, fmt.Sprintf("request: %v", err), false
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		io.Copy(io.Discard, io.LimitReader(resp.Body, maxResponseBodySize))
		return ParsedMetric{}, fmt.Sprintf("status %d", resp.StatusCode), false
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBodySize))
	if err != nil {
		return ParsedMetric{}, fmt.Sprintf("read body: %v", err), false
	}

	metric, reason, ok := source.parse(kind, body, mint)
	if !ok {
		return ParsedMetric{}, reason, false
	}
	return metric, "", true
}

func (r *Resolver) client() *http.Client {
	if r.Client != nil {
		return r.Client
	}
	return http.DefaultClient
}

func (r *Resolver) wait(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	if r.sleep != nil {
		return r.sleep(ctx, d)
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func (r *Resolver) logf(format string, args ...any) {
	if r.Logger == nil {
		return
	}
	r.Logger.Printf(format, args...)
}

// newExternalHTTPClient wires the outbound transport chain: per-host rate
// limiting over upstream response-code accounting.
func newExternalHTTPClient(timeout time.Duration) *http.Client {
	if timeout <= 0 {
		timeout = defaultSourceTimeout
	}
	return &http.Client{
		Timeout: timeout,
		Transport: &hostLimitedTransport{
			Base: &metricsTransport{
				Counter: externalResponseCounts,
			},
		},
	}
}
