// Package local implements component C's filesystem source/destination:
// a plain directory tree read or written with os/io, registered under the
// "local" transfer name.
package local

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/google/uuid"

	"github.com/standalone-transfer/xfer/internal/backend"
	"github.com/standalone-transfer/xfer/internal/pathutil"
	"github.com/standalone-transfer/xfer/internal/progress"
	"github.com/standalone-transfer/xfer/internal/registry"
	"github.com/standalone-transfer/xfer/internal/task"
	"github.com/standalone-transfer/xfer/internal/xfererr"
)

func init() {
	registry.Register("local", New)
}

// Config is the (empty) local-backend configuration; local never needs
// credentials, so its JSON blob is accepted but unused beyond validation.
type Config struct{}

// Backend is the filesystem source/destination.
type Backend struct {
	root string
	args backend.Args
}

// New constructs a local Backend rooted at path.
func New(ctx context.Context, rawConfig []byte, path string, args backend.Args) (backend.Backend, error) {
	if len(rawConfig) > 0 {
		var cfg Config
		if err := json.Unmarshal(rawConfig, &cfg); err != nil {
			return nil, fmt.Errorf("local: invalid config: %w", err)
		}
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, err
	}
	return &Backend{root: abs, args: args}, nil
}

// IterTasks walks the root tree, emitting one Task per regular file.
func (b *Backend) IterTasks(ctx context.Context) (<-chan task.Task, <-chan error) {
	out := make(chan task.Task)
	errc := make(chan error, 1)

	go func() {
		defer close(out)
		defer close(errc)

		info, err := os.Stat(b.root)
		if err != nil {
			if os.IsNotExist(err) {
				errc <- xfererr.ErrFileNotFound
			} else {
				errc <- err
			}
			return
		}

		if !info.IsDir() {
			rel := filepath.Base(b.root)
			t := b.newTask(pathutil.Normalize(rel), info.Size(), b.root)
			select {
			case out <- t:
			case <-ctx.Done():
				errc <- ctx.Err()
			}
			return
		}

		walkErr := filepath.WalkDir(b.root, func(p string, d fs.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if ctx.Err() != nil {
				return ctx.Err()
			}
			if d.IsDir() {
				return nil
			}
			rel, rerr := filepath.Rel(b.root, p)
			if rerr != nil {
				return rerr
			}
			fi, ferr := d.Info()
			if ferr != nil {
				return ferr
			}
			t := b.newTask(pathutil.Normalize(filepath.ToSlash(rel)), fi.Size(), p)
			select {
			case out <- t:
				return nil
			case <-ctx.Done():
				return ctx.Err()
			}
		})
		if walkErr != nil {
			errc <- walkErr
		}
	}()

	return out, errc
}

func (b *Backend) newTask(relativePath string, size int64, absPath string) task.Task {
	return task.New(relativePath, size, absPath, func(ctx context.Context) (io.ReadCloser, error) {
		return os.Open(absPath)
	})
}

// GetWorker returns a Worker that writes t's content under b.root,
// reporting Exists if a file already occupies the destination path
// (name/existence-only check, matching the source side's dedup rule).
func (b *Backend) GetWorker(t task.Task) (backend.Worker, error) {
	destPath := filepath.Join(b.root, filepath.FromSlash(t.RelativePath))

	if info, err := os.Stat(destPath); err == nil && !info.IsDir() {
		return func(ctx context.Context, p progress.Task) xfererr.Outcome {
			return xfererr.AlreadyExists()
		}, nil
	}

	if err := os.MkdirAll(filepath.Dir(destPath), 0o755); err != nil {
		return nil, err
	}

	return func(ctx context.Context, p progress.Task) xfererr.Outcome {
		return writeTask(ctx, t, destPath, b.args.ChunkSize, b.args.StepSize, p)
	}, nil
}

func writeTask(ctx context.Context, t task.Task, destPath string, chunkSize, stepSize int, p progress.Task) xfererr.Outcome {
	if chunkSize <= 0 {
		chunkSize = 4 << 20
	}

	// A uuid-suffixed partial name so a retried attempt (or a second worker
	// racing the same destination) never writes into the same partial file
	// another attempt still has open.
	partialPath := destPath + ".partial." + uuid.NewString()

	out, err := os.OpenFile(partialPath, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return xfererr.Failed(err)
	}
	defer out.Close()

	chunks, errs := t.IterData(ctx, chunkSize)
	for chunk := range chunks {
		r := task.StepSplit(chunk.Data, stepSize, p.Add)
		if _, werr := io.Copy(out, r); werr != nil {
			os.Remove(partialPath)
			return xfererr.Failed(werr)
		}
	}
	if err := <-errs; err != nil {
		os.Remove(partialPath)
		return xfererr.Failed(err)
	}
	if err := out.Close(); err != nil {
		os.Remove(partialPath)
		return xfererr.Failed(err)
	}
	if err := os.Rename(partialPath, destPath); err != nil {
		return xfererr.Failed(err)
	}
	return xfererr.OK()
}
