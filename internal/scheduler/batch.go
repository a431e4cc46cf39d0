package scheduler

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/hamed0406/sitemonitor/internal/domain"
	"github.com/hamed0406/sitemonitor/internal/probe"
	"github.com/hamed0406/sitemonitor/internal/status"
)

// Summary describes one finished scrape cycle.
type Summary struct {
	CycleID   string
	StartedAt time.Time
	Duration  time.Duration
	Total     int
	Down      []string // domains, sorted
	Results   []domain.ProbeResult
	Shared    bool // result was produced for a concurrent caller
}

// Batch probes a site list in sequential chunks of at most ChunkSize
// concurrent probes, then installs the results as the table's new snapshot.
type Batch struct {
	Logger     *zap.Logger
	Checker    probe.Checker
	Table      *status.Table
	ChunkSize  int
	ChunkPause time.Duration
}

func NewBatch(
	logger *zap.Logger,
	checker probe.Checker,
	table *status.Table,
	chunkSize int,
	chunkPause time.Duration,
) *Batch {
	if chunkSize < 1 {
		chunkSize = 1
	}
	if chunkPause < 0 {
		chunkPause = 0
	}
	return &Batch{
		Logger:     logger,
		Checker:    checker,
		Table:      table,
		ChunkSize:  chunkSize,
		ChunkPause: chunkPause,
	}
}

// Run returns once every site has a verdict and the table holds exactly
// one entry per site.
func (b *Batch) Run(ctx context.Context, sites []domain.Site) Summary {
	sum := Summary{
		CycleID:   uuid.NewString(),
		StartedAt: time.Now().UTC(),
		Total:     len(sites),
	}
	log := b.Logger.With(zap.String("cycle", sum.CycleID))
	start := time.Now()

	results := make([]domain.ProbeResult, len(sites))
	for lo := 0; lo < len(sites); lo += b.ChunkSize {
		hi := min(lo+b.ChunkSize, len(sites))
		if lo > 0 {
			b.pause(ctx)
		}

		var g errgroup.Group
		g.SetLimit(b.ChunkSize)
		for i := lo; i < hi; i++ {
			i := i
			g.Go(func() error {
				results[i] = b.probeSite(ctx, sites[i])
				return nil
			})
		}
		_ = g.Wait()
		log.Debug("chunk_done", zap.Int("from", lo), zap.Int("to", hi))
	}

	entries := make([]status.Entry, 0, len(results))
	for _, r := range results {
		entries = append(entries, status.EntryFromResult(r))
		if !r.Up {
			sum.Down = append(sum.Down, r.Domain)
		}
	}
	b.Table.Replace(entries)
	sort.Strings(sum.Down)

	sum.Results = results
	sum.Duration = time.Since(start)
	log.Info("batch_done",
		zap.Int("sites", sum.Total),
		zap.Int("down", len(sum.Down)),
		zap.Strings("down_domains", sum.Down),
		zap.Duration("took", sum.Duration),
	)
	return sum
}

func (b *Batch) pause(ctx context.Context) {
	if b.ChunkPause <= 0 {
		return
	}
	t := time.NewTimer(b.ChunkPause)
	defer t.Stop()
	select {
	case <-t.C:
	case <-ctx.Done():
	}
}

// probeSite maps a panicking checker to a down verdict for this site only.
func (b *Batch) probeSite(ctx context.Context, site domain.Site) (r domain.ProbeResult) {
	defer func() {
		if rec := recover(); rec != nil {
			b.Logger.Error("probe_panic",
				zap.String("directory", site.ID),
				zap.String("domain", site.Domain),
				zap.Any("panic", rec),
			)
			r = domain.ProbeResult{
				Transport: domain.TransportNone,
				Error:     fmt.Sprint("panic: ", rec),
				CheckedAt: time.Now().UTC(),
			}
		}
		r.SiteID = site.ID
		r.Domain = site.Domain
	}()

	r = b.Checker.Probe(ctx, site.Domain)
	b.Logger.Debug("site_checked",
		zap.String("directory", site.ID),
		zap.String("domain", site.Domain),
		zap.Bool("up", r.Up),
		zap.String("transport", string(r.Transport)),
		zap.Int("status", r.StatusCode),
		zap.Duration("latency", r.Latency),
		zap.String("reason", r.Error),
	)
	return r
}
