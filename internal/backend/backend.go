// Package backend defines component C's contract: the interface every
// source/destination transfer variant implements, and the factory shape
// the registry (component L) dispatches to.
package backend

import (
	"context"

	"github.com/standalone-transfer/xfer/internal/progress"
	"github.com/standalone-transfer/xfer/internal/task"
	"github.com/standalone-transfer/xfer/internal/xfererr"
)

// Worker performs one task attempt and reports its outcome. progress is
// scoped to this task; Done is not called by the worker itself — the
// engine calls it once the outcome is known, so a single notification path
// exists regardless of how the worker returned.
type Worker func(ctx context.Context, p progress.Task) xfererr.Outcome

// Backend is implemented by every source/destination transfer variant
// (local filesystem, Google Drive, OneDrive, OneDrive Share, HTTP, count).
type Backend interface {
	// IterTasks enumerates this backend's tree lazily as a source. The
	// error channel carries at most one terminal enumeration error, sent
	// after the task channel closes.
	IterTasks(ctx context.Context) (<-chan task.Task, <-chan error)

	// GetWorker builds a Worker for t as a destination. Resolution
	// failures (e.g. cannot create the destination parent folder) are
	// captured and returned as an error here; the engine wraps such errors
	// into a Fail-returning worker so they route identically to runtime
	// failures (SPEC_FULL.md §4.C/§7).
	GetWorker(t task.Task) (Worker, error)
}

// Config is the subset of a backend's JSON configuration common across
// variants; variant-specific fields live in each backend package's own
// Config struct, unmarshaled from the same JSON object.
type Config struct {
	Transfer string `json:"transfer"`
}

// Args carries CLI-level knobs a backend needs at construction time
// (chunk size, step size, page size) — kept separate from Config because
// these are transfer-invocation parameters, not persisted alias config.
type Args struct {
	ChunkSize   int
	StepSize    int
	MaxPageSize int
	Copy        bool
}

// Factory constructs a Backend for one variant from its JSON config blob,
// the CLI path argument (ALIAS:/PATH's PATH part), and Args.
type Factory func(ctx context.Context, rawConfig []byte, path string, args Args) (Backend, error)
