// Package progress implements the per-task progress callback surface
// (component G): a sink that backend workers and the chunked-bytes stream
// notify as bytes move, plus a console renderer.
package progress

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/standalone-transfer/xfer/internal/xfererr"
)

// Task is a progress handle bound to one task's relative path and total
// size. Add is called as each step (sub-slice of a chunk) is read out of
// its chunk; the remote backends read a whole chunk this way before
// sending it, so Add runs before those bytes reach the network. Done is
// called exactly once when the task's outcome is known.
type Task interface {
	Add(n int64)
	Done(outcome xfererr.Outcome)
}

// Sink constructs a Task handle for one (path, total) pair; this is the
// factory a destination backend's worker is handed so it can report
// progress without the engine threading path/total through every Add
// call.
type Sink interface {
	ForTask(path string, total int64) Task
}

// Noop discards all progress notifications.
type Noop struct{}

func (Noop) ForTask(string, int64) Task { return noopTask{} }

type noopTask struct{}

func (noopTask) Add(int64)            {}
func (noopTask) Done(xfererr.Outcome) {}

// Console renders a single updating status line per task, patterned on the
// teacher's DefaultProgressPrinter, reusing go-humanize for byte/speed
// formatting instead of the teacher's hand-rolled KB/MB branches.
type Console struct {
	mu          sync.Mutex
	updateEvery time.Duration
	out         func(string)
}

// NewConsole returns a Console sink that prints via out (fmt.Print if nil).
func NewConsole(out func(string)) *Console {
	if out == nil {
		out = func(s string) { fmt.Print(s) }
	}
	return &Console{updateEvery: 250 * time.Millisecond, out: out}
}

func (c *Console) ForTask(path string, total int64) Task {
	return &consoleTask{
		console: c,
		path:    path,
		total:   total,
		start:   time.Now(),
		last:    time.Now().Add(-24 * time.Hour),
	}
}

type consoleTask struct {
	console *Console
	path    string
	total   int64
	read    int64
	start   time.Time
	last    time.Time
}

func (t *consoleTask) Add(n int64) {
	if n <= 0 {
		return
	}
	newRead := atomic.AddInt64(&t.read, n)
	now := time.Now()
	if now.Sub(t.last) < t.console.updateEvery {
		return
	}
	t.last = now
	elapsed := now.Sub(t.start).Seconds()
	var speed float64
	if elapsed > 0 {
		speed = float64(newRead) / elapsed
	}
	pct := float64(0)
	if t.total > 0 {
		pct = float64(newRead) / float64(t.total) * 100
	}
	eta := "unknown"
	if speed > 0 && t.total > 0 {
		secondsLeft := float64(t.total-newRead) / speed
		eta = (time.Duration(secondsLeft) * time.Second).String()
	}
	t.console.mu.Lock()
	t.console.out(fmt.Sprintf("\r%s: %s/%s %.1f%% [%s/s, ETA %s]      ",
		t.path, humanize.Bytes(uint64(newRead)), humanize.Bytes(uint64(t.total)), pct,
		humanize.Bytes(uint64(speed)), eta))
	t.console.mu.Unlock()
}

func (t *consoleTask) Done(outcome xfererr.Outcome) {
	t.console.mu.Lock()
	t.console.out(fmt.Sprintf("\r%s: %s\n", t.path, outcome.Kind))
	t.console.mu.Unlock()
}
