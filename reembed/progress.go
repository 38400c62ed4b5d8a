package reembed

import (
	"fmt"
	"io"
	"sync"
	"time"
)

// Progress is a point-in-time view of a run.
type Progress struct {
	Done    int
	Total   int
	Elapsed time.Duration
}

// Percent returns completion in the range [0, 100].
func (p Progress) Percent() float64 {
	if p.Total == 0 {
		return 100
	}
	return float64(p.Done) / float64(p.Total) * 100
}

// Rate returns chunks processed per second.
func (p Progress) Rate() float64 {
	if p.Elapsed <= 0 {
		return 0
	}
	return float64(p.Done) / p.Elapsed.Seconds()
}

func (p Progress) String() string {
	return fmt.Sprintf("%d/%d chunks (%.1f%%) - %.1f chunks/s", p.Done, p.Total, p.Percent(), p.Rate())
}

// ProgressTracker prints a progress line every reportInterval chunks.
// A nil writer silences output while still tracking state.
type ProgressTracker struct {
	mu             sync.Mutex
	writer         io.Writer
	total          int
	done           int
	reportInterval int
	lastReported   int
	startTime      time.Time
	started        bool
}

func NewProgressTracker(writer io.Writer, total, reportInterval int) *ProgressTracker {
	if reportInterval < 1 {
		reportInterval = 1
	}
	return &ProgressTracker{
		writer:         writer,
		total:          total,
		reportInterval: reportInterval,
	}
}

func (p *ProgressTracker) Start() {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.startTime = time.Now()
	p.started = true
	p.done = 0
	p.lastReported = 0
}

// Add records delta more processed chunks, capped at the total.
func (p *ProgressTracker) Add(delta int) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.started {
		return
	}
	p.done = min(p.done+delta, p.total)
	if p.done-p.lastReported >= p.reportInterval {
		p.print("\r")
		p.lastReported = p.done
	}
}

// Finish prints the final line. Done is left as counted, so an aborted
// run reports how far it got.
func (p *ProgressTracker) Finish() {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.started {
		return
	}
	p.print("\r")
	p.write("\n")
}

// Snapshot returns the current state.
func (p *ProgressTracker) Snapshot() Progress {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.snapshot()
}

func (p *ProgressTracker) snapshot() Progress {
	var elapsed time.Duration
	if p.started {
		elapsed = time.Since(p.startTime)
	}
	return Progress{Done: p.done, Total: p.total, Elapsed: elapsed}
}

// Must be called with lock held.
func (p *ProgressTracker) print(prefix string) {
	p.write(prefix + "Progress: " + p.snapshot().String())
}

func (p *ProgressTracker) write(s string) {
	if p.writer != nil {
		io.WriteString(p.writer, s)
	}
}
