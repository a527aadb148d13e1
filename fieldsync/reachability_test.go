package fieldsync

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"
)

// boolProber reports a fixed, swappable connectivity answer.
type boolProber struct{ up atomic.Bool }

func (p *boolProber) Probe(context.Context) bool { return p.up.Load() }

func TestMonitorReconnectEdge(t *testing.T) {
	m := NewMonitor(nil, 0, time.Nanosecond, nil)
	var fires atomic.Int32
	m.OnReconnect(func() { fires.Add(1) })

	if m.Online() {
		t.Fatal("monitor started online")
	}

	m.SetOnline(true)
	if !m.Online() {
		t.Fatal("state not recorded")
	}
	if fires.Load() != 1 {
		t.Fatalf("fires = %d after offline->online, want 1", fires.Load())
	}

	// Staying online is not an edge.
	m.SetOnline(true)
	if fires.Load() != 1 {
		t.Fatalf("fires = %d after online->online, want 1", fires.Load())
	}

	// Going offline is not an edge either.
	m.SetOnline(false)
	if m.Online() || fires.Load() != 1 {
		t.Fatalf("online = %v, fires = %d after online->offline", m.Online(), fires.Load())
	}
}

func TestMonitorDebouncesFlapping(t *testing.T) {
	// A debounce window far longer than the test suppresses every edge after
	// the first.
	m := NewMonitor(nil, 0, time.Hour, nil)
	var fires atomic.Int32
	m.OnReconnect(func() { fires.Add(1) })

	for i := 0; i < 10; i++ {
		m.SetOnline(true)
		m.SetOnline(false)
	}
	if fires.Load() != 1 {
		t.Fatalf("fires = %d across 10 flaps, want 1", fires.Load())
	}
	// The state itself still tracks the last observation.
	m.SetOnline(true)
	if !m.Online() {
		t.Fatal("state lost while debounced")
	}
}

func TestMonitorPollsProber(t *testing.T) {
	p := &boolProber{}
	p.up.Store(true)
	m := NewMonitor(p, time.Millisecond, time.Nanosecond, nil)

	edge := make(chan struct{}, 1)
	m.OnReconnect(func() {
		select {
		case edge <- struct{}{}:
		default:
		}
	})

	m.Start(context.Background())
	defer m.Stop()

	select {
	case <-edge:
	case <-time.After(2 * time.Second):
		t.Fatal("poll loop never observed the prober")
	}
	if !m.Online() {
		t.Fatal("monitor offline despite reachable prober")
	}

	p.up.Store(false)
	deadline := time.Now().Add(2 * time.Second)
	for m.Online() {
		if time.Now().After(deadline) {
			t.Fatal("monitor never noticed the outage")
		}
		time.Sleep(time.Millisecond)
	}
}

func TestMonitorStopIdempotent(t *testing.T) {
	p := &boolProber{}
	m := NewMonitor(p, time.Millisecond, time.Nanosecond, nil)
	m.Start(context.Background())
	m.Stop()
	m.Stop() // second stop must be a no-op
}

func TestHTTPProber(t *testing.T) {
	status := atomic.Int32{}
	status.Store(http.StatusOK)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(int(status.Load()))
	}))
	defer srv.Close()

	p := NewHTTPProber(srv.URL, time.Second)
	if !p.Probe(context.Background()) {
		t.Fatal("probe failed against healthy server")
	}

	// Application-level errors still mean reachable.
	status.Store(http.StatusUnauthorized)
	if !p.Probe(context.Background()) {
		t.Fatal("4xx treated as unreachable")
	}

	status.Store(http.StatusInternalServerError)
	if p.Probe(context.Background()) {
		t.Fatal("5xx treated as reachable")
	}

	srv.Close()
	if p.Probe(context.Background()) {
		t.Fatal("probe succeeded against closed server")
	}
}
