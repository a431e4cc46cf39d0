// Package status holds the process-wide current up/down state of every
// discovered site.
package status

import (
	"sort"
	"sync"
	"time"

	"github.com/hamed0406/sitemonitor/internal/domain"
)

type Key struct {
	Domain    string
	Directory string
}

type Entry struct {
	Key
	Up         bool
	Transport  domain.Transport
	StatusCode int
	Latency    time.Duration
	CheckedAt  time.Time
}

func (e Entry) Value() float64 {
	if e.Up {
		return 1
	}
	return 0
}

func EntryFromResult(r domain.ProbeResult) Entry {
	return Entry{
		Key:        Key{Domain: r.Domain, Directory: r.SiteID},
		Up:         r.Up,
		Transport:  r.Transport,
		StatusCode: r.StatusCode,
		Latency:    r.Latency,
		CheckedAt:  r.CheckedAt,
	}
}

// Table is replaced wholesale once per scrape cycle, so readers always
// see one complete cycle and never a mix of two.
type Table struct {
	mu        sync.RWMutex
	entries   map[Key]Entry
	updatedAt time.Time
}

func NewTable() *Table {
	return &Table{entries: make(map[Key]Entry)}
}

// Replace installs a new snapshot. Keys absent from entries are dropped.
func (t *Table) Replace(entries []Entry) {
	next := make(map[Key]Entry, len(entries))
	for _, e := range entries {
		next[e.Key] = e
	}
	t.mu.Lock()
	t.entries = next
	t.updatedAt = time.Now().UTC()
	t.mu.Unlock()
}

// Snapshot returns the current entries ordered by directory, then domain.
func (t *Table) Snapshot() []Entry {
	t.mu.RLock()
	out := make([]Entry, 0, len(t.entries))
	for _, e := range t.entries {
		out = append(out, e)
	}
	t.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].Directory != out[j].Directory {
			return out[i].Directory < out[j].Directory
		}
		return out[i].Domain < out[j].Domain
	})
	return out
}

func (t *Table) Get(k Key) (Entry, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	e, ok := t.entries[k]
	return e, ok
}

func (t *Table) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.entries)
}

func (t *Table) UpdatedAt() time.Time {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.updatedAt
}
