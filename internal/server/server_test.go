package server

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/knoxav/chamctl/internal/client"
	"github.com/knoxav/chamctl/internal/config"
	"github.com/knoxav/chamctl/internal/scheduler"
	"github.com/knoxav/chamctl/internal/testutil/testlog"
)

type stubSched struct {
	high, low int
	current   string
	circuit   scheduler.CircuitState
}

func (s *stubSched) Depths() (int, int)                   { return s.high, s.low }
func (s *stubSched) HighPending() bool                    { return s.high > 0 }
func (s *stubSched) Current() (string, bool)              { return s.current, s.current != "" }
func (s *stubSched) CircuitState() scheduler.CircuitState { return s.circuit }

type stubSnap struct {
	states map[int]client.ZoneState
	at     time.Time
}

func (s *stubSnap) Snapshot() (map[int]client.ZoneState, time.Time) { return s.states, s.at }

func intp(v int) *int    { return &v }
func boolp(v bool) *bool { return &v }

func testServer(sched SchedulerInfo, snap Snapshotter) *Server {
	return New(config.ServerConfig{Addr: ":0"}, sched, snap)
}

func get(t *testing.T, s *Server, path string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	rec := httptest.NewRecorder()
	s.Router().ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode body %q: %v", rec.Body.String(), err)
	}
	return body
}

func TestHealth(t *testing.T) {
	testlog.Start(t)
	s := testServer(&stubSched{}, &stubSnap{})

	rec := get(t, s, "/health")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	body := decode(t, rec)
	if body["status"] != "ok" || body["service"] != "chamctl" {
		t.Fatalf("body = %v", body)
	}
}

func TestStatusReportsQueuesAndBreaker(t *testing.T) {
	testlog.Start(t)
	sched := &stubSched{
		high:    1,
		low:     4,
		current: "D0136",
		circuit: scheduler.CircuitState{
			ConsecutiveFailures: 3,
			LastFailureAt:       time.Now(),
		},
	}
	s := testServer(sched, &stubSnap{})

	body := decode(t, get(t, s, "/status"))
	queues := body["queues"].(map[string]any)
	if queues["high"].(float64) != 1 || queues["low"].(float64) != 4 {
		t.Fatalf("queues = %v", queues)
	}
	if body["high_pending"] != true {
		t.Fatalf("high_pending = %v", body["high_pending"])
	}
	if body["current_command"] != "D0136" {
		t.Fatalf("current_command = %v", body["current_command"])
	}
	breaker := body["breaker"].(map[string]any)
	if breaker["consecutive_failures"].(float64) != 3 {
		t.Fatalf("breaker = %v", breaker)
	}
	if _, ok := breaker["last_failure_at"]; !ok {
		t.Fatalf("last_failure_at missing: %v", breaker)
	}
}

func TestStatusIdle(t *testing.T) {
	testlog.Start(t)
	s := testServer(&stubSched{}, &stubSnap{})

	body := decode(t, get(t, s, "/status"))
	if _, ok := body["current_command"]; ok {
		t.Fatalf("idle status must omit current_command: %v", body)
	}
	breaker := body["breaker"].(map[string]any)
	if _, ok := breaker["last_failure_at"]; ok {
		t.Fatalf("healthy breaker must omit last_failure_at: %v", breaker)
	}
}

func TestZonesSnapshot(t *testing.T) {
	testlog.Start(t)
	snap := &stubSnap{
		states: map[int]client.ZoneState{
			25: {Zone: 25, Input: intp(3), Volume: intp(32), Muted: boolp(false)},
			26: {Zone: 26},
		},
		at: time.Now(),
	}
	s := testServer(&stubSched{}, snap)

	body := decode(t, get(t, s, "/zones"))
	zones := body["zones"].(map[string]any)
	if len(zones) != 2 {
		t.Fatalf("zones = %v", zones)
	}
	z25 := zones["25"].(map[string]any)
	if z25["volume"].(float64) != 32 {
		t.Fatalf("zone 25 = %v", z25)
	}
	// unknown fields are omitted, not rendered as zero values
	z26 := zones["26"].(map[string]any)
	if _, ok := z26["volume"]; ok {
		t.Fatalf("zone 26 must omit unknown volume: %v", z26)
	}
}

func TestZoneByNumber(t *testing.T) {
	testlog.Start(t)
	snap := &stubSnap{
		states: map[int]client.ZoneState{25: {Zone: 25, Input: intp(3)}},
		at:     time.Now(),
	}
	s := testServer(&stubSched{}, snap)

	if rec := get(t, s, "/zones/25"); rec.Code != http.StatusOK {
		t.Fatalf("known zone = %d", rec.Code)
	}
	if rec := get(t, s, "/zones/26"); rec.Code != http.StatusNotFound {
		t.Fatalf("missing zone = %d", rec.Code)
	}
	if rec := get(t, s, "/zones/garbage"); rec.Code != http.StatusBadRequest {
		t.Fatalf("bad zone = %d", rec.Code)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	testlog.Start(t)
	s := testServer(&stubSched{}, &stubSnap{})

	rec := get(t, s, "/metrics")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "go_goroutines") {
		t.Fatalf("metrics body missing standard collectors")
	}
}
