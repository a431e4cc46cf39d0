package scheduler

import (
	"context"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/hamed0406/sitemonitor/internal/domain"
)

type Discoverer interface {
	Discover(ctx context.Context) ([]domain.Site, error)
}

// Monitor runs a full discovery + batch cycle per scrape. Overlapping
// scrapes join the cycle already in flight instead of starting another.
type Monitor struct {
	Logger *zap.Logger
	Sites  Discoverer
	Batch  *Batch

	// Observe, when set, is called once per executed cycle.
	Observe func(d time.Duration, err error)

	group singleflight.Group
}

func NewMonitor(logger *zap.Logger, sites Discoverer, batch *Batch) *Monitor {
	return &Monitor{Logger: logger, Sites: sites, Batch: batch}
}

// Scrape returns when the cycle has finished or ctx is done. The cycle
// itself is not cancelled by ctx: it always completes and commits.
func (m *Monitor) Scrape(ctx context.Context) (Summary, error) {
	ch := m.group.DoChan("scrape", func() (any, error) {
		return m.cycle(context.WithoutCancel(ctx))
	})
	select {
	case res := <-ch:
		if res.Err != nil {
			return Summary{}, res.Err
		}
		sum := res.Val.(Summary)
		sum.Shared = res.Shared
		return sum, nil
	case <-ctx.Done():
		return Summary{}, ctx.Err()
	}
}

func (m *Monitor) cycle(ctx context.Context) (Summary, error) {
	start := time.Now()
	sites, err := m.Sites.Discover(ctx)
	if err != nil {
		m.Logger.Error("scrape_discovery_failed", zap.Error(err))
		m.observe(time.Since(start), err)
		return Summary{}, err
	}
	sum := m.Batch.Run(ctx, sites)
	m.observe(time.Since(start), nil)
	return sum, nil
}

func (m *Monitor) observe(d time.Duration, err error) {
	if m.Observe != nil {
		m.Observe(d, err)
	}
}
