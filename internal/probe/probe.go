// Package probe implements bounded waiting for external conditions, chiefly
// the HTTP readiness of a freshly provisioned service.
package probe

import (
	"context"
	"io"
	"net/http"
	"time"

	"github.com/hashicorp/go-cleanhttp"

	"github.com/grokbox/grokbox/internal/logging"
)

// Result is the outcome of a bounded wait.
type Result int

const (
	// Ready means the condition was observed before the wait ran out.
	Ready Result = iota
	// TimedOut means every attempt was exhausted without the condition
	// being observed.
	TimedOut
	// Cancelled means the surrounding context ended the wait early.
	Cancelled
)

func (r Result) String() string {
	switch r {
	case Ready:
		return "ready"
	case TimedOut:
		return "timed-out"
	case Cancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

// WaitUntil polls cond up to maxAttempts times, interval apart, until it
// reports true. The first poll happens immediately. Returns Ready on the
// first true, Cancelled as soon as ctx is done, and TimedOut once the
// attempts are exhausted. cond returning false always means "not yet",
// never "give up": transient failures are expected while a service boots.
func WaitUntil(ctx context.Context, maxAttempts int, interval time.Duration, cond func(ctx context.Context) bool) Result {
	if maxAttempts < 1 {
		maxAttempts = 1
	}
	if interval <= 0 {
		// NewTicker rejects non-positive intervals.
		interval = time.Millisecond
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for attempt := 1; ; attempt++ {
		if ctx.Err() != nil {
			return Cancelled
		}
		if cond(ctx) {
			return Ready
		}
		if attempt >= maxAttempts {
			return TimedOut
		}

		select {
		case <-ctx.Done():
			return Cancelled
		case <-ticker.C:
		}
	}
}

// probeTimeout bounds a single probe request. Kept below the default 2s
// poll interval so a hung service doesn't stretch the wait.
const probeTimeout = 1500 * time.Millisecond

// HTTPProber checks service readiness with GET requests. Any 2xx response
// is ready; request errors and other statuses mean the service isn't up yet.
type HTTPProber struct {
	client *http.Client
	logger *logging.Logger
}

// NewHTTPProber returns a prober with its own pooled HTTP client, so probe
// traffic never shares state with any other client in the process.
func NewHTTPProber(logger *logging.Logger) *HTTPProber {
	if logger == nil {
		logger = logging.NopLogger()
	}
	client := cleanhttp.DefaultPooledClient()
	client.Timeout = probeTimeout
	return &HTTPProber{
		client: client,
		logger: logger,
	}
}

// Probe issues one GET against url and reports whether the service answered
// with a 2xx status.
func (p *HTTPProber) Probe(ctx context.Context, url string) bool {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		p.logger.Warn("invalid probe url", "url", url, "error", err.Error())
		return false
	}

	resp, err := p.client.Do(req)
	if err != nil {
		// Connection refused and friends just mean the service isn't
		// listening yet.
		p.logger.Debug("probe attempt failed", "url", url, "error", err.Error())
		return false
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	ready := resp.StatusCode >= 200 && resp.StatusCode < 300
	p.logger.Debug("probe response", "url", url, "status", resp.StatusCode, "ready", ready)
	return ready
}
