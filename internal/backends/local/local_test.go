package local

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/standalone-transfer/xfer/internal/backend"
	"github.com/standalone-transfer/xfer/internal/progress"
	"github.com/standalone-transfer/xfer/internal/xfererr"
)

func mustWrite(t *testing.T, dir, rel, content string) {
	t.Helper()
	full := filepath.Join(dir, rel)
	require.NoError(t, os.MkdirAll(filepath.Dir(full), 0o755))
	require.NoError(t, os.WriteFile(full, []byte(content), 0o644))
}

func TestIterTasksWalksTree(t *testing.T) {
	src := t.TempDir()
	mustWrite(t, src, "a.txt", "hello")
	mustWrite(t, src, "sub/b.txt", "world!!")

	b, err := New(context.Background(), nil, src, backend.Args{ChunkSize: 4})
	require.NoError(t, err)

	tasks, errs := b.IterTasks(context.Background())
	seen := map[string]int64{}
	for tk := range tasks {
		seen[tk.RelativePath] = tk.TotalSize
	}
	require.NoError(t, <-errs)
	assert.Equal(t, int64(5), seen["a.txt"])
	assert.Equal(t, int64(7), seen["sub/b.txt"])
}

func TestGetWorkerWritesFileAndRenamesFromPartial(t *testing.T) {
	src := t.TempDir()
	mustWrite(t, src, "a.txt", "payload-bytes")

	srcBackend, _ := New(context.Background(), nil, src, backend.Args{ChunkSize: 4})
	tasks, _ := srcBackend.IterTasks(context.Background())
	var srcTask = <-tasks

	dst := t.TempDir()
	dstBackend, err := New(context.Background(), nil, dst, backend.Args{ChunkSize: 4})
	require.NoError(t, err)

	worker, err := dstBackend.GetWorker(srcTask)
	require.NoError(t, err)
	outcome := worker(context.Background(), progress.Noop{}.ForTask(srcTask.RelativePath, srcTask.TotalSize))
	require.Equal(t, xfererr.Success, outcome.Kind)

	got, err := os.ReadFile(filepath.Join(dst, "a.txt"))
	require.NoError(t, err)
	assert.Equal(t, "payload-bytes", string(got))

	leftover, err := filepath.Glob(filepath.Join(dst, "a.txt.partial.*"))
	require.NoError(t, err)
	assert.Empty(t, leftover, "expected no leftover partial files")
}

func TestGetWorkerReportsExistsWhenNameAlreadyPresentRegardlessOfSize(t *testing.T) {
	src := t.TempDir()
	mustWrite(t, src, "a.txt", "same-size")

	srcBackend, _ := New(context.Background(), nil, src, backend.Args{})
	tasks, _ := srcBackend.IterTasks(context.Background())
	srcTask := <-tasks

	dst := t.TempDir()
	mustWrite(t, dst, "a.txt", "a completely different length of content") // different size, same name

	dstBackend, _ := New(context.Background(), nil, dst, backend.Args{})
	worker, err := dstBackend.GetWorker(srcTask)
	require.NoError(t, err)
	outcome := worker(context.Background(), progress.Noop{}.ForTask(srcTask.RelativePath, srcTask.TotalSize))
	require.Equal(t, xfererr.Exists, outcome.Kind)
}
