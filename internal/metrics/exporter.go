// Package metrics renders the status table in the Prometheus text
// exposition format.
package metrics

import (
	"bytes"
	"fmt"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/common/expfmt"

	"github.com/hamed0406/sitemonitor/internal/status"
)

var (
	siteUpDesc = prometheus.NewDesc(
		"site_up",
		"Site status: 1 = up, 0 = down",
		[]string{"domain", "directory"}, nil,
	)
	siteLatencyDesc = prometheus.NewDesc(
		"site_probe_latency_seconds",
		"Time until the deciding probe attempt finished.",
		[]string{"domain", "directory"}, nil,
	)
	sitesTotalDesc = prometheus.NewDesc(
		"site_monitor_sites_total",
		"Sites checked in the last completed scrape.",
		nil, nil,
	)
	sitesDownDesc = prometheus.NewDesc(
		"site_monitor_sites_down",
		"Sites down in the last completed scrape.",
		nil, nil,
	)
)

// snapshotCollector exposes one fixed table snapshot, so every family in a
// body comes from the same cycle.
type snapshotCollector struct {
	entries []status.Entry
}

func (c snapshotCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- siteUpDesc
	ch <- siteLatencyDesc
	ch <- sitesTotalDesc
	ch <- sitesDownDesc
}

func (c snapshotCollector) Collect(ch chan<- prometheus.Metric) {
	down := 0
	for _, e := range c.entries {
		ch <- prometheus.MustNewConstMetric(siteUpDesc, prometheus.GaugeValue, e.Value(), e.Domain, e.Directory)
		ch <- prometheus.MustNewConstMetric(siteLatencyDesc, prometheus.GaugeValue, e.Latency.Seconds(), e.Domain, e.Directory)
		if !e.Up {
			down++
		}
	}
	ch <- prometheus.MustNewConstMetric(sitesTotalDesc, prometheus.GaugeValue, float64(len(c.entries)))
	ch <- prometheus.MustNewConstMetric(sitesDownDesc, prometheus.GaugeValue, float64(down))
}

type Exporter struct {
	table *status.Table
	reg   *prometheus.Registry

	scrapeDuration prometheus.Gauge
	scrapes        *prometheus.CounterVec
}

func NewExporter(table *status.Table) *Exporter {
	reg := prometheus.NewRegistry()
	f := promauto.With(reg)
	return &Exporter{
		table: table,
		reg:   reg,
		scrapeDuration: f.NewGauge(prometheus.GaugeOpts{
			Namespace: "site_monitor",
			Name:      "scrape_duration_seconds",
			Help:      "Wall time of the last discovery and probe cycle.",
		}),
		scrapes: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "site_monitor",
			Name:      "scrapes_total",
			Help:      "Scrape cycles run, by result.",
		}, []string{"result"}),
	}
}

// ObserveCycle records one executed scrape cycle.
func (e *Exporter) ObserveCycle(d time.Duration, err error) {
	if err != nil {
		e.scrapes.WithLabelValues("error").Inc()
		return
	}
	e.scrapes.WithLabelValues("ok").Inc()
	e.scrapeDuration.Set(d.Seconds())
}

// ContentType is the Content-Type of Render's output.
func ContentType() string {
	return string(expfmt.NewFormat(expfmt.TypeTextPlain))
}

// UpdatedAt reports when the table behind the exporter was last replaced.
func (e *Exporter) UpdatedAt() time.Time {
	return e.table.UpdatedAt()
}

// Render returns a complete exposition body followed by a comment block
// summarising the snapshot.
func (e *Exporter) Render() ([]byte, error) {
	snap := e.table.Snapshot()

	cycle := prometheus.NewPedanticRegistry()
	if err := cycle.Register(snapshotCollector{entries: snap}); err != nil {
		return nil, fmt.Errorf("register snapshot: %w", err)
	}
	mfs, err := prometheus.Gatherers{e.reg, cycle}.Gather()
	if err != nil {
		return nil, fmt.Errorf("gather: %w", err)
	}

	var buf bytes.Buffer
	for _, mf := range mfs {
		if _, err := expfmt.MetricFamilyToText(&buf, mf); err != nil {
			return nil, fmt.Errorf("encode %s: %w", mf.GetName(), err)
		}
	}
	writeSummary(&buf, snap)
	return buf.Bytes(), nil
}

func writeSummary(buf *bytes.Buffer, snap []status.Entry) {
	var down []string
	for _, e := range snap {
		if !e.Up {
			down = append(down, e.Domain)
		}
	}
	fmt.Fprintf(buf, "# Sites checked: %d\n", len(snap))
	fmt.Fprintf(buf, "# Sites down: %d\n", len(down))
	if len(down) > 0 {
		fmt.Fprintf(buf, "# Down: %s\n", strings.Join(down, ", "))
	}
}
