package task

import (
	"bytes"
	"context"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newReaderTask(content []byte) Task {
	return New("a.txt", int64(len(content)), nil, func(ctx context.Context) (io.ReadCloser, error) {
		return io.NopCloser(bytes.NewReader(content)), nil
	})
}

func TestIterDataConcatenationEqualsContent(t *testing.T) {
	content := []byte("ABCDEFGHIJ") // 10 bytes
	tk := newReaderTask(content)

	out, errc := tk.IterData(context.Background(), 4)
	var got []byte
	var chunkCount int
	for chunk := range out {
		got = append(got, chunk.Data...)
		chunkCount++
	}
	require.NoError(t, <-errc)
	assert.Equal(t, content, got)
	// P8: ceil(10/4) = 3 chunk PUTs for a non-empty source.
	assert.Equal(t, 3, chunkCount)
}

func TestIterDataEmptyFileYieldsNoChunks(t *testing.T) {
	tk := newReaderTask(nil)
	out, errc := tk.IterData(context.Background(), 4)
	count := 0
	for range out {
		count++
	}
	require.NoError(t, <-errc)
	assert.Equal(t, 0, count)
}

func TestIterDataChunkOffsets(t *testing.T) {
	content := []byte("0123456789")
	tk := newReaderTask(content)
	out, errc := tk.IterData(context.Background(), 4)
	var starts []int64
	for chunk := range out {
		starts = append(starts, chunk.Start)
	}
	<-errc
	want := []int64{0, 4, 8}
	require.Len(t, starts, len(want))
	for i := range want {
		assert.Equal(t, want[i], starts[i], "starts[%d]", i)
	}
}

func TestWithAttemptIncrementsCounter(t *testing.T) {
	tk := newReaderTask([]byte("x"))
	require.Equal(t, 0, tk.Attempts(), "new task should start at 0 attempts")
	tk2 := tk.WithAttempt()
	assert.Equal(t, 1, tk2.Attempts())
	assert.Equal(t, 0, tk.Attempts(), "WithAttempt must not mutate the receiver")
}

func TestCopyTask(t *testing.T) {
	ct := NewCopy("b.txt", 42, nil, "remote-file-id")
	assert.True(t, ct.IsCopy())
	assert.Equal(t, "remote-file-id", ct.Copy)
}
