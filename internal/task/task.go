// Package task implements component D: the addressable file unit the
// engine queues and a worker consumes.
package task

import (
	"bufio"
	"bytes"
	"context"
	"io"
)

// Ref is an opaque reference the producing backend understands: a local
// path, a remote file id plus client, or a URL. Backends type-assert their
// own concrete Ref implementation inside GetWorker.
type Ref any

// Task is an abstract handle to one file being transferred.
type Task struct {
	RelativePath string // forward-slash, no leading slash
	TotalSize    int64  // bytes, non-negative
	Ref          Ref    // opaque source-backend reference

	// Copy, when non-empty, signals a server-side copy: the single value
	// produced by IterData is this remote id instead of bytes.
	Copy string

	// open is supplied by the source backend; it returns a reader over the
	// task's content. Absent for Copy tasks.
	open func(ctx context.Context) (io.ReadCloser, error)

	// attempts counts prior Fail/Sleep outcomes for this task, used by the
	// engine's dead-letter cutoff (SPEC_FULL.md §4.E).
	attempts int
}

// New constructs a byte-streaming Task.
func New(relativePath string, totalSize int64, ref Ref, open func(ctx context.Context) (io.ReadCloser, error)) Task {
	return Task{RelativePath: relativePath, TotalSize: totalSize, Ref: ref, open: open}
}

// NewCopy constructs a server-side copy Task: its single "chunk" is the
// source remote id, never file bytes.
func NewCopy(relativePath string, totalSize int64, ref Ref, sourceID string) Task {
	return Task{RelativePath: relativePath, TotalSize: totalSize, Ref: ref, Copy: sourceID}
}

// IsCopy reports whether this is a server-side copy task.
func (t Task) IsCopy() bool { return t.Copy != "" }

// Attempts returns how many prior attempts (Sleep or Fail outcomes) have
// been recorded against this task.
func (t Task) Attempts() int { return t.attempts }

// WithAttempt returns a copy of t with its attempt counter incremented,
// used by the engine when re-enqueuing after Sleep/Fail.
func (t Task) WithAttempt() Task {
	t.attempts++
	return t
}

// Chunk is one slice handed to the upload protocol, tagged with its byte
// offset so the caller can build Content-Range headers without recomputing
// running totals.
type Chunk struct {
	Data  []byte
	Start int64
}

// IterData streams the task's content as a sequence of chunkSize-sized
// Chunks over the returned channel; the paired error channel carries at
// most one error, sent after the data channel closes. Concatenation of all
// chunks' Data equals the file's content. Callers must drain both channels
// or cancel ctx to avoid leaking the goroutine.
func (t Task) IterData(ctx context.Context, chunkSize int) (<-chan Chunk, <-chan error) {
	out := make(chan Chunk)
	errc := make(chan error, 1)

	go func() {
		defer close(out)
		defer close(errc)

		if t.IsCopy() {
			select {
			case out <- Chunk{Data: []byte(t.Copy)}:
			case <-ctx.Done():
				errc <- ctx.Err()
			}
			return
		}

		rc, err := t.open(ctx)
		if err != nil {
			errc <- err
			return
		}
		defer rc.Close()

		r := bufio.NewReaderSize(rc, chunkSize)
		var offset int64
		for {
			buf := make([]byte, chunkSize)
			n, err := io.ReadFull(r, buf)
			if n > 0 {
				chunk := Chunk{Data: buf[:n], Start: offset}
				select {
				case out <- chunk:
					offset += int64(n)
				case <-ctx.Done():
					errc <- ctx.Err()
					return
				}
			}
			if err == io.EOF || err == io.ErrUnexpectedEOF {
				return
			}
			if err != nil {
				errc <- err
				return
			}
		}
	}()

	return out, errc
}

// Total returns the task's advertised size.
func (t Task) Total() int64 { return t.TotalSize }

// Path returns the task's relative path.
func (t Task) Path() string { return t.RelativePath }

// StepSplit subdivides one chunk into step-sized sub-slices for progress
// reporting (component H, Chunked Bytes Stream). Concatenation of the
// returned slices equals data; each slice's length is reported to add
// before being handed to the network, matching the spec's contract that
// progress is notified per-step rather than per-chunk.
func StepSplit(data []byte, stepSize int, add func(n int64)) io.Reader {
	if stepSize <= 0 || stepSize >= len(data) {
		add(int64(len(data)))
		return bytes.NewReader(data)
	}
	return &steppedReader{data: data, stepSize: stepSize, add: add}
}

type steppedReader struct {
	data     []byte
	stepSize int
	pos      int
	add      func(n int64)
}

func (s *steppedReader) Read(p []byte) (int, error) {
	if s.pos >= len(s.data) {
		return 0, io.EOF
	}
	end := s.pos + s.stepSize
	if end > len(s.data) {
		end = len(s.data)
	}
	n := copy(p, s.data[s.pos:end])
	s.add(int64(n))
	s.pos += n
	return n, nil
}
