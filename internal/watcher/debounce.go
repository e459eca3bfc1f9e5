package watcher

import (
	"sort"
	"time"
)

// debouncer collects changed paths and releases them once no new change
// has arrived for the quiet period.
type debouncer struct {
	quiet   time.Duration
	pending map[string]struct{}
	last    time.Time
}

func newDebouncer(quiet time.Duration) *debouncer {
	return &debouncer{quiet: quiet, pending: make(map[string]struct{})}
}

func (d *debouncer) add(path string, now time.Time) {
	d.pending[path] = struct{}{}
	d.last = now
}

// ready returns the sorted pending batch and clears it, or nil while the
// quiet period has not yet elapsed.
func (d *debouncer) ready(now time.Time) []string {
	if len(d.pending) == 0 || now.Sub(d.last) < d.quiet {
		return nil
	}
	batch := make([]string, 0, len(d.pending))
	for p := range d.pending {
		batch = append(batch, p)
	}
	sort.Strings(batch)
	clear(d.pending)
	return batch
}

func (d *debouncer) len() int { return len(d.pending) }
