package probe

import (
	"sync"

	"github.com/hamed0406/sitemonitor/internal/domain"
)

// verdict is a single-assignment result cell. Every completion source
// (attempt success, attempt failure, global deadline, caller cancel) calls
// resolve; only the first call stores its result.
type verdict struct {
	once sync.Once
	done chan struct{}
	res  domain.ProbeResult
}

func newVerdict() *verdict {
	return &verdict{done: make(chan struct{})}
}

// resolve reports whether r became the verdict.
func (v *verdict) resolve(r domain.ProbeResult) bool {
	won := false
	v.once.Do(func() {
		v.res = r
		close(v.done)
		won = true
	})
	return won
}

func (v *verdict) result() domain.ProbeResult {
	<-v.done
	return v.res
}
