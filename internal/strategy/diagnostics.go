package strategy

import "sync"

// SkipReason classifies why a resource was left out of a computation.
type SkipReason string

const (
	SkipQueryFailed      SkipReason = "query_failed"
	SkipNoData           SkipReason = "no_data"
	SkipNotActive        SkipReason = "not_active"
	SkipInstanceNotFound SkipReason = "instance_not_found"
	SkipNodeEmpty        SkipReason = "node_empty"
)

// Skip records one recoverable omission.
type Skip struct {
	ResourceID string
	NodeID     string
	Reason     SkipReason
	Err        error
}

// Diagnostics collects skips during a run. Safe for concurrent use.
type Diagnostics struct {
	mu    sync.Mutex
	skips []Skip
}

// NewDiagnostics returns an empty collector.
func NewDiagnostics() *Diagnostics {
	return &Diagnostics{}
}

// Record appends a skip.
func (d *Diagnostics) Record(s Skip) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.skips = append(d.skips, s)
}

// Skips returns a copy of all recorded skips.
func (d *Diagnostics) Skips() []Skip {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]Skip, len(d.skips))
	copy(out, d.skips)
	return out
}

// Count returns how many skips carry reason.
func (d *Diagnostics) Count(reason SkipReason) int {
	d.mu.Lock()
	defer d.mu.Unlock()
	n := 0
	for _, s := range d.skips {
		if s.Reason == reason {
			n++
		}
	}
	return n
}

// DiagnosticsProvider is implemented by strategies that expose skips.
type DiagnosticsProvider interface {
	Diag() *Diagnostics
}

// Diag returns the run's diagnostics.
func (b *Base) Diag() *Diagnostics { return b.Diagnostics }
