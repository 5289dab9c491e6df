package agent

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/dyluth/vigil/pkg/protocol"
)

// FailureLatencyMs is reported as the latency of a check whose request never completed.
const FailureLatencyMs = 1000

// ProbeResult is the outcome of a completed HTTP request.
type ProbeResult struct {
	StatusCode int
	Elapsed    time.Duration
}

// Prober performs one uptime check. A returned error means the request did
// not complete (timeout, refused connection, DNS failure).
type Prober interface {
	Get(ctx context.Context, url string) (ProbeResult, error)
}

// Classify maps a probe outcome to the reported status and latency.
// Only HTTP 200 counts as up. A transport failure is down with FailureLatencyMs.
func Classify(res ProbeResult, err error) (protocol.Status, int64) {
	if err != nil {
		return protocol.StatusDown, FailureLatencyMs
	}
	latency := res.Elapsed.Milliseconds()
	if res.StatusCode == http.StatusOK {
		return protocol.StatusUp, latency
	}
	return protocol.StatusDown, latency
}

// HTTPProber probes with a plain GET.
type HTTPProber struct {
	client *http.Client
}

// NewHTTPProber creates a prober whose requests are bounded by timeout.
func NewHTTPProber(timeout time.Duration) *HTTPProber {
	return &HTTPProber{client: &http.Client{Timeout: timeout}}
}

// Get fetches url and measures the time until the response body is drained.
func (p *HTTPProber) Get(ctx context.Context, url string) (ProbeResult, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return ProbeResult{}, fmt.Errorf("invalid probe url: %w", err)
	}

	start := time.Now()
	resp, err := p.client.Do(req)
	if err != nil {
		return ProbeResult{}, err
	}
	io.Copy(io.Discard, io.LimitReader(resp.Body, 1<<20))
	resp.Body.Close()

	return ProbeResult{StatusCode: resp.StatusCode, Elapsed: time.Since(start)}, nil
}
