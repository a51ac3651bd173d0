package metrics

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"time"

	dto "github.com/prometheus/client_model/go"
	"github.com/prometheus/common/expfmt"
)

// Metric families exported by the workflow application.
const (
	famHTTPRequests  = "workflow_http_requests_total"
	famHTTPErrors    = "workflow_http_request_errors_total"
	famHTTPDuration  = "workflow_http_request_duration_seconds"
	famActiveUsers   = "workflow_active_users"
	famMemoryUsedPct = "workflow_memory_used_pct"
)

const defaultScrapeTimeout = 10 * time.Second

// ErrNoBaseline is returned by the first successful poll: rate metrics need
// a previous sample to diff against. The baseline is recorded; the next poll
// returns a full snapshot.
var ErrNoBaseline = errors.New("metrics: baseline recorded, no rates yet")

// Client polls the workflow application's Prometheus exposition endpoint
// and derives a typed Snapshot. Counter-based fields (error rate, latency)
// are computed from deltas between consecutive polls, tolerant of counter
// resets. Safe for concurrent use.
type Client struct {
	endpoint   string
	counters   []string
	hostMemory bool
	httpc      *http.Client

	mu   sync.Mutex
	prev map[string]*dto.MetricFamily
}

// Option configures a Client.
type Option func(*Client)

// WithTimeout sets the scrape HTTP timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) { c.httpc.Timeout = d }
}

// WithCounters sets the business-counter families captured into
// Snapshot.Counters.
func WithCounters(names []string) Option {
	return func(c *Client) { c.counters = names }
}

// WithHostMemory fills Snapshot.MemoryUsedPct from the local host instead of
// the scraped exposition.
func WithHostMemory(enabled bool) Option {
	return func(c *Client) { c.hostMemory = enabled }
}

// NewClient creates a Client that scrapes endpoint.
func NewClient(endpoint string, opts ...Option) *Client {
	c := &Client{
		endpoint: endpoint,
		httpc:    &http.Client{Timeout: defaultScrapeTimeout},
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// Snapshot polls the endpoint and returns the derived snapshot.
// The first successful poll records the counter baseline and returns
// ErrNoBaseline.
func (c *Client) Snapshot(ctx context.Context) (*Snapshot, error) {
	mfs, err := c.fetch(ctx)
	if err != nil {
		return nil, fmt.Errorf("metrics: scrape %q: %w", c.endpoint, err)
	}
	now := time.Now()

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.prev == nil {
		c.prev = mfs
		return nil, ErrNoBaseline
	}

	snap := &Snapshot{
		TakenAt:     now,
		ActiveUsers: sumFamily(mfs[famActiveUsers]),
		Counters:    make(map[string]float64, len(c.counters)),
	}

	reqDelta := deltaOf(sumFamily(mfs[famHTTPRequests]), sumFamily(c.prev[famHTTPRequests]))
	errDelta := deltaOf(sumFamily(mfs[famHTTPErrors]), sumFamily(c.prev[famHTTPErrors]))
	if reqDelta > 0 {
		snap.HTTPErrorRatePct = errDelta / reqDelta * 100
	}

	sum, count := histogramTotals(mfs[famHTTPDuration])
	prevSum, prevCount := histogramTotals(c.prev[famHTTPDuration])
	if cd := deltaOf(count, prevCount); cd > 0 {
		snap.AvgLatencyMs = deltaOf(sum, prevSum) / cd * 1000
	}

	for _, name := range c.counters {
		snap.Counters[name] = sumFamily(mfs[name])
	}

	if c.hostMemory {
		pct, err := hostMemoryUsedPct(ctx)
		if err != nil {
			slog.Warn("metrics: host memory probe failed", "err", err)
		} else {
			snap.MemoryUsedPct = pct
		}
	} else {
		snap.MemoryUsedPct = sumFamily(mfs[famMemoryUsedPct])
	}

	c.prev = mfs
	return snap, nil
}

// fetch performs an HTTP GET against the endpoint and parses the exposition.
func (c *Client) fetch(ctx context.Context) (map[string]*dto.MetricFamily, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", string(expfmt.NewFormat(expfmt.TypeTextPlain)))

	resp, err := c.httpc.Do(req)
	if err != nil {
		return nil, fmt.Errorf("http get: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status %d", resp.StatusCode)
	}
	return parseFamilies(resp.Body)
}

// parseFamilies decodes a Prometheus text exposition into metric families.
// A partial result with a non-fatal parse warning is still returned.
func parseFamilies(r io.Reader) (map[string]*dto.MetricFamily, error) {
	var parser expfmt.TextParser
	mfs, err := parser.TextToMetricFamilies(r)
	if err != nil && len(mfs) == 0 {
		return nil, fmt.Errorf("parse exposition: %w", err)
	}
	return mfs, nil
}

// sumFamily adds up all counter, gauge, or untyped values in a family.
// Returns 0 if mf is nil (metric absent from the scrape).
func sumFamily(mf *dto.MetricFamily) float64 {
	if mf == nil {
		return 0
	}
	var total float64
	for _, m := range mf.GetMetric() {
		switch {
		case m.Counter != nil:
			total += m.Counter.GetValue()
		case m.Gauge != nil:
			total += m.Gauge.GetValue()
		case m.Untyped != nil:
			total += m.Untyped.GetValue()
		}
	}
	return total
}

// histogramTotals returns the summed sample sum and count across all series
// of a histogram family.
func histogramTotals(mf *dto.MetricFamily) (sum, count float64) {
	if mf == nil {
		return 0, 0
	}
	for _, m := range mf.GetMetric() {
		if h := m.GetHistogram(); h != nil {
			sum += h.GetSampleSum()
			count += float64(h.GetSampleCount())
		}
	}
	return sum, count
}

// deltaOf returns the positive counter delta between current and previous.
// If current < previous (counter reset after restart), returns 0.
func deltaOf(current, previous float64) float64 {
	d := current - previous
	if d < 0 {
		return 0
	}
	return d
}
