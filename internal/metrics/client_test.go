package metrics

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
)

// expositionServer serves one exposition body per scrape, in order. The last
// body repeats once the sequence is exhausted.
type expositionServer struct {
	mu     sync.Mutex
	bodies []string
	next   int
}

func (s *expositionServer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	body := s.bodies[s.next]
	if s.next < len(s.bodies)-1 {
		s.next++
	}
	s.mu.Unlock()
	w.Header().Set("Content-Type", "text/plain; version=0.0.4")
	w.Write([]byte(body)) //nolint:errcheck
}

const expositionT0 = `# HELP workflow_http_requests_total Total HTTP requests.
# TYPE workflow_http_requests_total counter
workflow_http_requests_total 100
# TYPE workflow_http_request_errors_total counter
workflow_http_request_errors_total 5
# TYPE workflow_http_request_duration_seconds histogram
workflow_http_request_duration_seconds_bucket{le="0.5"} 90
workflow_http_request_duration_seconds_bucket{le="+Inf"} 100
workflow_http_request_duration_seconds_sum 10
workflow_http_request_duration_seconds_count 100
# TYPE workflow_active_users gauge
workflow_active_users 7
# TYPE workflow_memory_used_pct gauge
workflow_memory_used_pct 61.5
# TYPE workflow_executions_started_total counter
workflow_executions_started_total 40
`

const expositionT1 = `# TYPE workflow_http_requests_total counter
workflow_http_requests_total 200
# TYPE workflow_http_request_errors_total counter
workflow_http_request_errors_total 15
# TYPE workflow_http_request_duration_seconds histogram
workflow_http_request_duration_seconds_bucket{le="0.5"} 180
workflow_http_request_duration_seconds_bucket{le="+Inf"} 200
workflow_http_request_duration_seconds_sum 30
workflow_http_request_duration_seconds_count 200
# TYPE workflow_active_users gauge
workflow_active_users 9
# TYPE workflow_memory_used_pct gauge
workflow_memory_used_pct 72.25
# TYPE workflow_executions_started_total counter
workflow_executions_started_total 55
`

// Counters went backwards: the application restarted between polls.
const expositionReset = `# TYPE workflow_http_requests_total counter
workflow_http_requests_total 10
# TYPE workflow_http_request_errors_total counter
workflow_http_request_errors_total 1
# TYPE workflow_active_users gauge
workflow_active_users 2
`

func newTestClient(t *testing.T, bodies ...string) *Client {
	t.Helper()
	srv := httptest.NewServer(&expositionServer{bodies: bodies})
	t.Cleanup(srv.Close)
	return NewClient(srv.URL, WithCounters([]string{"workflow_executions_started_total"}))
}

func TestSnapshot_FirstPollRecordsBaseline(t *testing.T) {
	c := newTestClient(t, expositionT0, expositionT1)

	snap, err := c.Snapshot(context.Background())
	if !errors.Is(err, ErrNoBaseline) {
		t.Fatalf("first poll: err = %v, want ErrNoBaseline", err)
	}
	if snap != nil {
		t.Fatal("first poll should not return a snapshot")
	}
}

func TestSnapshot_DerivedRates(t *testing.T) {
	c := newTestClient(t, expositionT0, expositionT1)
	ctx := context.Background()

	if _, err := c.Snapshot(ctx); !errors.Is(err, ErrNoBaseline) {
		t.Fatalf("baseline poll: %v", err)
	}
	snap, err := c.Snapshot(ctx)
	if err != nil {
		t.Fatalf("second poll: %v", err)
	}

	// 10 new errors out of 100 new requests.
	if snap.HTTPErrorRatePct != 10 {
		t.Errorf("error rate: got %v, want 10", snap.HTTPErrorRatePct)
	}
	// 20s more latency over 100 more requests = 200ms average.
	if snap.AvgLatencyMs != 200 {
		t.Errorf("avg latency: got %v, want 200", snap.AvgLatencyMs)
	}
	if snap.ActiveUsers != 9 {
		t.Errorf("active users: got %v, want 9", snap.ActiveUsers)
	}
	if snap.MemoryUsedPct != 72.25 {
		t.Errorf("memory: got %v, want 72.25", snap.MemoryUsedPct)
	}
	if got := snap.Counters["workflow_executions_started_total"]; got != 55 {
		t.Errorf("business counter: got %v, want 55", got)
	}
	if snap.TakenAt.IsZero() {
		t.Error("TakenAt should be set")
	}
}

func TestSnapshot_CounterResetYieldsZeroRates(t *testing.T) {
	c := newTestClient(t, expositionT0, expositionReset)
	ctx := context.Background()

	if _, err := c.Snapshot(ctx); !errors.Is(err, ErrNoBaseline) {
		t.Fatalf("baseline poll: %v", err)
	}
	snap, err := c.Snapshot(ctx)
	if err != nil {
		t.Fatalf("second poll: %v", err)
	}

	if snap.HTTPErrorRatePct != 0 {
		t.Errorf("error rate after reset: got %v, want 0", snap.HTTPErrorRatePct)
	}
	if snap.AvgLatencyMs != 0 {
		t.Errorf("latency after reset: got %v, want 0", snap.AvgLatencyMs)
	}
}

func TestSnapshot_NoTrafficMeansZeroErrorRate(t *testing.T) {
	c := newTestClient(t, expositionT0, expositionT0)
	ctx := context.Background()

	if _, err := c.Snapshot(ctx); !errors.Is(err, ErrNoBaseline) {
		t.Fatalf("baseline poll: %v", err)
	}
	snap, err := c.Snapshot(ctx)
	if err != nil {
		t.Fatalf("second poll: %v", err)
	}
	if snap.HTTPErrorRatePct != 0 {
		t.Errorf("error rate with no traffic: got %v, want 0", snap.HTTPErrorRatePct)
	}
}

func TestSnapshot_EndpointDown(t *testing.T) {
	c := NewClient("http://127.0.0.1:1/metrics")
	if _, err := c.Snapshot(context.Background()); err == nil {
		t.Fatal("expected scrape error")
	}
}

func TestSnapshot_NonOKStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	c := NewClient(srv.URL)
	if _, err := c.Snapshot(context.Background()); err == nil {
		t.Fatal("expected error on HTTP 503")
	}
}

func TestSnapshot_BadExposition(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("{not prometheus text}")) //nolint:errcheck
	}))
	defer srv.Close()

	c := NewClient(srv.URL)
	if _, err := c.Snapshot(context.Background()); err == nil {
		t.Fatal("expected parse error")
	}
}
