// Package count implements the supplemented dry-run destination
// (SPEC_FULL.md §3.1): a no-op Backend that reports every task as Success
// without writing anything, so --dry-run can surface a CountResult (total
// files and bytes) without touching the real destination. Grounded on
// original_source/speedclone/transfers/count.py's destination stub.
package count

import (
	"context"
	"sync/atomic"

	"github.com/standalone-transfer/xfer/internal/backend"
	"github.com/standalone-transfer/xfer/internal/progress"
	"github.com/standalone-transfer/xfer/internal/registry"
	"github.com/standalone-transfer/xfer/internal/task"
	"github.com/standalone-transfer/xfer/internal/xfererr"
)

func init() {
	registry.Register("count", New)
}

// Backend is the dry-run destination: GetWorker never touches storage.
type Backend struct {
	files atomic.Int64
	bytes atomic.Int64
}

// New constructs a count Backend; path and rawConfig are accepted but
// unused since nothing is ever read or written.
func New(ctx context.Context, rawConfig []byte, path string, args backend.Args) (backend.Backend, error) {
	return &Backend{}, nil
}

// IterTasks yields nothing; count is a destination-only backend.
func (b *Backend) IterTasks(ctx context.Context) (<-chan task.Task, <-chan error) {
	out := make(chan task.Task)
	errc := make(chan error, 1)
	close(out)
	close(errc)
	return out, errc
}

// GetWorker returns a Worker that tallies the task's size and reports
// Success without reading the task's bytes.
func (b *Backend) GetWorker(t task.Task) (backend.Worker, error) {
	return func(ctx context.Context, p progress.Task) xfererr.Outcome {
		b.files.Add(1)
		b.bytes.Add(t.TotalSize)
		p.Add(t.TotalSize)
		return xfererr.OK()
	}, nil
}

// Result is the supplemented CountResult: the dry-run tally recorded so
// far.
type Result struct {
	Files int64
	Bytes int64
}

// Snapshot reports the current tally.
func (b *Backend) Snapshot() Result {
	return Result{Files: b.files.Load(), Bytes: b.bytes.Load()}
}
