package probe

import (
	"context"
	"net"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/hamed0406/sitemonitor/internal/domain"
)

// ---- test helpers ----

func serverPort(t *testing.T, ts *httptest.Server) int {
	t.Helper()
	u, err := url.Parse(ts.URL)
	if err != nil {
		t.Fatal(err)
	}
	p, err := strconv.Atoi(u.Port())
	if err != nil {
		t.Fatal(err)
	}
	return p
}

// closedPort returns a local port nobody listens on.
func closedPort(t *testing.T) int {
	t.Helper()
	l, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	port := l.Addr().(*net.TCPAddr).Port
	_ = l.Close()
	return port
}

// silentListener accepts connections and never writes to them.
func silentListener(t *testing.T) int {
	t.Helper()
	l, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	var (
		mu    sync.Mutex
		conns []net.Conn
	)
	go func() {
		for {
			c, err := l.Accept()
			if err != nil {
				return
			}
			mu.Lock()
			conns = append(conns, c)
			mu.Unlock()
		}
	}()
	t.Cleanup(func() {
		_ = l.Close()
		mu.Lock()
		defer mu.Unlock()
		for _, c := range conns {
			_ = c.Close()
		}
	})
	return l.Addr().(*net.TCPAddr).Port
}

// stuckTransport never returns until released, whatever the context says.
type stuckTransport struct {
	calls   atomic.Int32
	release chan struct{}
}

func (s *stuckTransport) RoundTrip(*http.Request) (*http.Response, error) {
	s.calls.Add(1)
	<-s.release
	return nil, http.ErrHandlerTimeout
}

func newTestProber(timeout time.Duration) *Prober {
	return NewProber(zap.NewNop(), timeout, "sitemonitor-test")
}

// ---- tests ----

func TestProbe_HTTPSAnyStatusIsUp(t *testing.T) {
	var ua atomic.Value
	ts := httptest.NewTLSServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ua.Store(r.UserAgent())
		http.NotFound(w, r)
	}))
	defer ts.Close()

	p := newTestProber(2 * time.Second)
	p.HTTPSPort = serverPort(t, ts)
	p.HTTPPort = closedPort(t)

	out := p.Probe(context.Background(), "127.0.0.1")
	if !out.Up || out.Transport != domain.TransportHTTPS {
		t.Fatalf("want up via HTTPS, got %+v", out)
	}
	if out.StatusCode != http.StatusNotFound {
		t.Fatalf("want 404 recorded, got %d", out.StatusCode)
	}
	if got, _ := ua.Load().(string); got != "sitemonitor-test" {
		t.Fatalf("want user agent sent, got %q", got)
	}
}

func TestProbe_ServerErrorIsUp(t *testing.T) {
	ts := httptest.NewTLSServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "maintenance", http.StatusServiceUnavailable)
	}))
	defer ts.Close()

	p := newTestProber(2 * time.Second)
	p.HTTPSPort = serverPort(t, ts)

	if out := p.Probe(context.Background(), "127.0.0.1"); !out.Up || out.StatusCode != 503 {
		t.Fatalf("want 503 counted as up, got %+v", out)
	}
}

func TestProbe_RedirectNotFollowed(t *testing.T) {
	var hits atomic.Int32
	ts := httptest.NewTLSServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		http.Redirect(w, r, "/elsewhere", http.StatusMovedPermanently)
	}))
	defer ts.Close()

	p := newTestProber(2 * time.Second)
	p.HTTPSPort = serverPort(t, ts)

	out := p.Probe(context.Background(), "127.0.0.1")
	if !out.Up || out.StatusCode != http.StatusMovedPermanently {
		t.Fatalf("want 301 counted as up, got %+v", out)
	}
	if n := hits.Load(); n != 1 {
		t.Fatalf("want exactly one request, got %d", n)
	}
}

func TestProbe_FallsBackToHTTP(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer ts.Close()

	p := newTestProber(2 * time.Second)
	p.HTTPSPort = closedPort(t)
	p.HTTPPort = serverPort(t, ts)

	out := p.Probe(context.Background(), "127.0.0.1")
	if !out.Up || out.Transport != domain.TransportHTTP || out.StatusCode != 200 {
		t.Fatalf("want up via HTTP, got %+v", out)
	}
}

func TestProbe_BothRefusedIsDown(t *testing.T) {
	p := newTestProber(2 * time.Second)
	p.HTTPSPort = closedPort(t)
	p.HTTPPort = closedPort(t)

	out := p.Probe(context.Background(), "127.0.0.1")
	if out.Up || out.Transport != domain.TransportNone {
		t.Fatalf("want down, got %+v", out)
	}
	if out.Error == "" {
		t.Fatalf("want error recorded")
	}
}

func TestProbe_SilentServersBoundedByTwiceTimeout(t *testing.T) {
	const timeout = 150 * time.Millisecond
	p := newTestProber(timeout)
	p.HTTPSPort = silentListener(t)
	p.HTTPPort = silentListener(t)

	start := time.Now()
	out := p.Probe(context.Background(), "127.0.0.1")
	elapsed := time.Since(start)

	if out.Up {
		t.Fatalf("want down, got %+v", out)
	}
	if elapsed > 2*timeout+250*time.Millisecond {
		t.Fatalf("probe took %v, budget is %v", elapsed, 2*timeout)
	}
}

func TestProbe_GlobalDeadlineBeatsStuckTransport(t *testing.T) {
	const timeout = 50 * time.Millisecond
	stuck := &stuckTransport{release: make(chan struct{})}
	t.Cleanup(func() { close(stuck.release) })

	p := newTestProber(timeout)
	p.Client = &http.Client{Transport: stuck}

	start := time.Now()
	out := p.Probe(context.Background(), "example.com")
	elapsed := time.Since(start)

	if out.Up || out.Error != "deadline exceeded" {
		t.Fatalf("want deadline verdict, got %+v", out)
	}
	if elapsed < 2*timeout || elapsed > 2*timeout+200*time.Millisecond {
		t.Fatalf("want verdict at ~%v, got %v", 2*timeout, elapsed)
	}
}

func TestProbe_InvalidDomainNeverConnects(t *testing.T) {
	stuck := &stuckTransport{release: make(chan struct{})}
	defer close(stuck.release)

	p := newTestProber(time.Second)
	p.Client = &http.Client{Transport: stuck}

	for _, d := range []string{"", "https://example.com", "exa mple.com", "example.com/path", "a..b", "user@example.com"} {
		out := p.Probe(context.Background(), d)
		if out.Up || out.Transport != domain.TransportNone || out.Error == "" {
			t.Fatalf("%q: want immediate down, got %+v", d, out)
		}
	}
	if n := stuck.calls.Load(); n != 0 {
		t.Fatalf("transport used %d times for invalid domains", n)
	}
}

func TestProbe_CallerCancel(t *testing.T) {
	p := newTestProber(time.Second)
	p.HTTPSPort = silentListener(t)
	p.HTTPPort = silentListener(t)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if out := p.Probe(ctx, "127.0.0.1"); out.Up {
		t.Fatalf("want down on cancelled context, got %+v", out)
	}
}

func TestVerdict_FirstWriterWins(t *testing.T) {
	v := newVerdict()
	var (
		wins atomic.Int32
		wg   sync.WaitGroup
	)
	for i := 0; i < 64; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			if v.resolve(domain.ProbeResult{StatusCode: i, Up: i%2 == 0}) {
				wins.Add(1)
			}
		}(i)
	}
	wg.Wait()

	if n := wins.Load(); n != 1 {
		t.Fatalf("want exactly one winner, got %d", n)
	}
	first := v.result()
	if v.resolve(domain.ProbeResult{StatusCode: 999}) {
		t.Fatalf("late resolve must be a no-op")
	}
	if v.result() != first {
		t.Fatalf("verdict changed after resolution")
	}
}

func TestTargetURL(t *testing.T) {
	cases := []struct {
		scheme, host string
		port         int
		want         string
	}{
		{"https", "example.com", 443, "https://example.com/"},
		{"http", "example.com", 80, "http://example.com/"},
		{"https", "127.0.0.1", 8443, "https://127.0.0.1:8443/"},
		{"http", "example.com", 0, "http://example.com/"},
	}
	for _, c := range cases {
		if got := targetURL(c.scheme, c.host, c.port); got != c.want {
			t.Fatalf("targetURL(%s,%s,%d)=%q want %q", c.scheme, c.host, c.port, got, c.want)
		}
	}
}
