package pipeline

import (
	"fmt"
	"io"
	"sync"
	"sync/atomic"
	"time"
)

// Progress is a snapshot of the upload stage after one outcome.
type Progress struct {
	Completed int
	Succeeded int
	Failed    int
	Last      Outcome
}

// Notifier delivers progress snapshots without ever blocking the pipeline.
// Snapshots that do not fit in the buffer are dropped.
type Notifier struct {
	ch      chan Progress
	dropped atomic.Int64
	once    sync.Once
}

// NewNotifier creates a notifier with the given buffer size.
func NewNotifier(buffer int) *Notifier {
	if buffer < 1 {
		buffer = 1
	}
	return &Notifier{ch: make(chan Progress, buffer)}
}

// C returns the channel progress snapshots are delivered on.
// It is closed when the run finishes.
func (n *Notifier) C() <-chan Progress { return n.ch }

// Dropped returns the number of snapshots discarded because the buffer was full.
func (n *Notifier) Dropped() int64 { return n.dropped.Load() }

func (n *Notifier) notify(p Progress) {
	select {
	case n.ch <- p:
	default:
		n.dropped.Add(1)
	}
}

// Close closes the channel. It is safe to call more than once; Run calls it
// when it returns.
func (n *Notifier) Close() {
	n.once.Do(func() { close(n.ch) })
}

// ProgressTracker prints upload progress to a writer.
type ProgressTracker struct {
	writer         io.Writer
	reportInterval int
	lastReported   int
	current        Progress
	startTime      time.Time
	mu             sync.Mutex
}

// NewProgressTracker creates a tracker reporting every reportInterval outcomes.
func NewProgressTracker(writer io.Writer, reportInterval int) *ProgressTracker {
	if reportInterval < 1 {
		reportInterval = 1
	}
	return &ProgressTracker{
		writer:         writer,
		reportInterval: reportInterval,
	}
}

// Follow consumes snapshots from ch until it is closed, then prints the
// final line.
func (p *ProgressTracker) Follow(ch <-chan Progress) {
	p.mu.Lock()
	p.startTime = time.Now()
	p.mu.Unlock()

	for snap := range ch {
		p.Update(snap)
	}
	p.Finish()
}

// Update records a snapshot, reporting when the interval is crossed.
func (p *ProgressTracker) Update(snap Progress) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if snap.Completed < p.current.Completed {
		return
	}
	p.current = snap
	if p.current.Completed-p.lastReported >= p.reportInterval {
		p.report()
		p.lastReported = p.current.Completed
	}
}

// Finish prints the final progress line.
func (p *ProgressTracker) Finish() {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.current.Completed == 0 {
		return
	}
	p.report()
	fmt.Fprintln(p.writer)
}

// report prints the current progress. Must be called with lock held.
func (p *ProgressTracker) report() {
	rate := 0.0
	if elapsed := time.Since(p.startTime).Seconds(); elapsed > 0 && !p.startTime.IsZero() {
		rate = float64(p.current.Completed) / elapsed
	}
	fmt.Fprintf(p.writer, "\rUploaded: %d (%d failed) - %.1f docs/s",
		p.current.Succeeded, p.current.Failed, rate)
}
