package fieldsync

import (
	"context"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// Prober answers whether the remote API is currently reachable.
type Prober interface {
	Probe(ctx context.Context) bool
}

// HTTPProber checks reachability with a GET against a health endpoint.
type HTTPProber struct {
	url string
	hc  *http.Client
}

func NewHTTPProber(url string, timeout time.Duration) *HTTPProber {
	if timeout == 0 {
		timeout = 5 * time.Second
	}
	return &HTTPProber{url: url, hc: &http.Client{Timeout: timeout}}
}

func (p *HTTPProber) Probe(ctx context.Context) bool {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.url, nil)
	if err != nil {
		return false
	}
	resp, err := p.hc.Do(req)
	if err != nil {
		return false
	}
	_ = resp.Body.Close()
	return resp.StatusCode < http.StatusInternalServerError
}

// Monitor observes connectivity and notifies subscribers on the
// offline-to-online edge. It is purely observational: no retries, no queues.
// Edge notifications are debounced so connection flapping cannot fan out
// into bursts of sync triggers.
type Monitor struct {
	prober   Prober
	interval time.Duration
	limiter  *rate.Limiter
	log      *zap.Logger

	online atomic.Bool

	mu   sync.Mutex
	subs []func()

	stop chan struct{}
	done chan struct{}
}

// NewMonitor builds a monitor polling the prober at the given interval.
// The prober may be nil when connectivity is driven via SetOnline (tests,
// platform connectivity callbacks). A nil logger is replaced with a no-op one.
func NewMonitor(p Prober, interval, debounce time.Duration, log *zap.Logger) *Monitor {
	if interval == 0 {
		interval = 10 * time.Second
	}
	if debounce == 0 {
		debounce = 2 * time.Second
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Monitor{
		prober:   p,
		interval: interval,
		limiter:  rate.NewLimiter(rate.Every(debounce), 1),
		log:      log,
	}
}

// Online reports the current connectivity state.
func (m *Monitor) Online() bool { return m.online.Load() }

// OnReconnect subscribes to offline-to-online transitions. Callbacks run
// synchronously on the goroutine that observed the edge.
func (m *Monitor) OnReconnect(fn func()) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.subs = append(m.subs, fn)
}

// SetOnline records a connectivity observation and fires the reconnect edge
// when the state flips from offline to online. Rapid flapping within the
// debounce window produces at most one notification.
func (m *Monitor) SetOnline(v bool) {
	prev := m.online.Swap(v)
	if prev || !v {
		return
	}
	if !m.limiter.Allow() {
		m.log.Debug("reconnect edge debounced")
		return
	}
	m.log.Info("connectivity restored")

	m.mu.Lock()
	subs := make([]func(), len(m.subs))
	copy(subs, m.subs)
	m.mu.Unlock()
	for _, fn := range subs {
		fn()
	}
}

// Start begins polling the prober until Stop is called or ctx is done.
func (m *Monitor) Start(ctx context.Context) {
	if m.prober == nil || m.stop != nil {
		return
	}
	m.stop = make(chan struct{})
	m.done = make(chan struct{})
	go func() {
		defer close(m.done)
		ticker := time.NewTicker(m.interval)
		defer ticker.Stop()
		m.SetOnline(m.prober.Probe(ctx))
		for {
			select {
			case <-ctx.Done():
				return
			case <-m.stop:
				return
			case <-ticker.C:
				m.SetOnline(m.prober.Probe(ctx))
			}
		}
	}()
}

// Stop halts polling and waits for the poll goroutine to exit.
func (m *Monitor) Stop() {
	if m.stop == nil {
		return
	}
	close(m.stop)
	<-m.done
	m.stop = nil
}
