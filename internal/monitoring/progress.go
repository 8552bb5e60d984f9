package monitoring

import "sync/atomic"

// Progress counts completed work items and reports through Logf every
// Every items and once more at the end.
type Progress struct {
	Label string
	Total int
	Every int

	done atomic.Int64
}

// NewProgress creates a Progress. every <= 0 disables periodic reports.
func NewProgress(label string, total, every int) *Progress {
	return &Progress{Label: label, Total: total, Every: every}
}

// Tick records one completed item. It is safe for concurrent use.
func (p *Progress) Tick() {
	n := int(p.done.Add(1))
	if n == p.Total || (p.Every > 0 && n%p.Every == 0) {
		Logf("%s: %d/%d", p.Label, n, p.Total)
	}
}

// Done returns the number of items recorded so far.
func (p *Progress) Done() int {
	return int(p.done.Load())
}
