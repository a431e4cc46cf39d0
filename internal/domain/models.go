package domain

import "time"

// Site is one discovered unit: the directory it was found in and the
// normalized domain declared there.
type Site struct {
	ID     string `json:"directory"`
	Domain string `json:"domain"`
}

// Transport names the scheme that produced a verdict.
type Transport string

const (
	TransportHTTPS Transport = "HTTPS"
	TransportHTTP  Transport = "HTTP"
	TransportNone  Transport = "NONE"
)

type Status string

const (
	StatusUp   Status = "UP"
	StatusDown Status = "DOWN"
)

// ProbeResult is the single verdict for one site in one scrape cycle.
type ProbeResult struct {
	SiteID     string        `json:"directory"`
	Domain     string        `json:"domain"`
	Up         bool          `json:"up"`
	Latency    time.Duration `json:"-"`
	Transport  Transport     `json:"transport"`
	StatusCode int           `json:"http_status,omitempty"`
	Error      string        `json:"error,omitempty"`
	CheckedAt  time.Time     `json:"checked_at"`
}

func (r ProbeResult) Status() Status {
	if r.Up {
		return StatusUp
	}
	return StatusDown
}

// LatencyMS is the latency in milliseconds, the unit the JSON surfaces use.
func (r ProbeResult) LatencyMS() float64 {
	return float64(r.Latency) / float64(time.Millisecond)
}
