package probe

import (
	"context"
	"crypto/tls"
	"errors"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/hamed0406/sitemonitor/internal/domain"
)

var ErrInvalidDomain = errors.New("invalid domain")

// Checker decides liveness for one domain. Implementations never fail:
// every problem degrades to Up=false.
type Checker interface {
	Probe(ctx context.Context, host string) domain.ProbeResult
}

// Prober tries HTTPS then HTTP against "/" of a domain. Any response, with
// any status code, means up. Each attempt is capped by Timeout and the
// whole probe by 2*Timeout.
type Prober struct {
	Logger    *zap.Logger
	Client    *http.Client
	Timeout   time.Duration
	UserAgent string
	HTTPSPort int
	HTTPPort  int
}

func NewProber(logger *zap.Logger, timeout time.Duration, userAgent string) *Prober {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	tr := &http.Transport{
		DialContext: (&net.Dialer{
			Timeout:   timeout,
			KeepAlive: -1,
		}).DialContext,
		// liveness, not trust: self-signed and expired certs still count
		TLSClientConfig:        &tls.Config{InsecureSkipVerify: true}, //nolint:gosec
		TLSHandshakeTimeout:    timeout,
		ResponseHeaderTimeout:  timeout,
		DisableKeepAlives:      true,
		DisableCompression:     true,
		MaxResponseHeaderBytes: 64 << 10,
	}
	return &Prober{
		Logger: logger,
		Client: &http.Client{
			Transport: tr,
			// a redirect is already a response
			CheckRedirect: func(*http.Request, []*http.Request) error {
				return http.ErrUseLastResponse
			},
		},
		Timeout:   timeout,
		UserAgent: userAgent,
		HTTPSPort: 443,
		HTTPPort:  80,
	}
}

func (p *Prober) Probe(ctx context.Context, host string) domain.ProbeResult {
	start := time.Now()
	down := domain.ProbeResult{
		Domain:    host,
		Transport: domain.TransportNone,
		CheckedAt: start.UTC(),
	}
	if err := ValidateDomain(host); err != nil {
		down.Error = err.Error()
		return down
	}

	ctx, cancel := context.WithTimeout(ctx, 2*p.Timeout)
	defer cancel()

	v := newVerdict()
	go p.run(ctx, host, start, down, v)

	select {
	case <-v.done:
	case <-ctx.Done():
		r := down
		r.Latency = time.Since(start)
		r.Error = "deadline exceeded"
		if errors.Is(ctx.Err(), context.Canceled) {
			r.Error = "canceled"
		}
		if v.resolve(r) {
			p.Logger.Debug("probe_deadline", zap.String("domain", host), zap.Duration("elapsed", r.Latency))
		}
	}
	return v.result()
}

func (p *Prober) run(ctx context.Context, host string, begin time.Time, down domain.ProbeResult, v *verdict) {
	var lastErr error
	for _, a := range []struct {
		transport domain.Transport
		scheme    string
		port      int
	}{
		{domain.TransportHTTPS, "https", p.HTTPSPort},
		{domain.TransportHTTP, "http", p.HTTPPort},
	} {
		start := time.Now()
		code, err := p.attempt(ctx, a.scheme, host, a.port)
		if err == nil {
			r := down
			r.Up = true
			r.Transport = a.transport
			r.StatusCode = code
			r.Latency = time.Since(start)
			v.resolve(r)
			return
		}
		lastErr = err
		p.Logger.Debug("probe_attempt_failed",
			zap.String("domain", host),
			zap.String("transport", string(a.transport)),
			zap.Error(err),
		)
		if ctx.Err() != nil {
			// the deadline branch in Probe owns this verdict
			return
		}
	}
	r := down
	r.Latency = time.Since(begin)
	r.Error = lastErr.Error()
	v.resolve(r)
}

// attempt returns the status code of the first response from "/".
func (p *Prober) attempt(ctx context.Context, scheme, host string, port int) (int, error) {
	actx, cancel := context.WithTimeout(ctx, p.Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(actx, http.MethodGet, targetURL(scheme, host, port), nil)
	if err != nil {
		return 0, err
	}
	req.Close = true
	if p.UserAgent != "" {
		req.Header.Set("User-Agent", p.UserAgent)
	}

	resp, err := p.Client.Do(req)
	if err != nil {
		return 0, err
	}
	// headers are enough; drop the body and the connection
	_ = resp.Body.Close()
	return resp.StatusCode, nil
}

func targetURL(scheme, host string, port int) string {
	hostport := host
	if port > 0 && !(scheme == "https" && port == 443) && !(scheme == "http" && port == 80) {
		hostport = net.JoinHostPort(host, strconv.Itoa(port))
	}
	u := url.URL{Scheme: scheme, Host: hostport, Path: "/"}
	return u.String()
}

// ValidateDomain accepts bare hostnames and IPv4 literals only.
func ValidateDomain(host string) error {
	if host == "" || len(host) > 253 {
		return ErrInvalidDomain
	}
	for _, label := range strings.Split(strings.TrimSuffix(host, "."), ".") {
		if label == "" || len(label) > 63 {
			return ErrInvalidDomain
		}
		for _, c := range label {
			switch {
			case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z', c >= '0' && c <= '9', c == '-', c == '_':
			default:
				return ErrInvalidDomain
			}
		}
	}
	return nil
}
