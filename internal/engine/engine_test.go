package engine

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/standalone-transfer/xfer/internal/backend"
	"github.com/standalone-transfer/xfer/internal/progress"
	"github.com/standalone-transfer/xfer/internal/task"
	"github.com/standalone-transfer/xfer/internal/xfererr"
)

// fakeSource emits a fixed slice of tasks then closes.
type fakeSource struct {
	tasks []task.Task
}

func (f fakeSource) IterTasks(ctx context.Context) (<-chan task.Task, <-chan error) {
	out := make(chan task.Task)
	errc := make(chan error, 1)
	go func() {
		defer close(out)
		defer close(errc)
		for _, t := range f.tasks {
			select {
			case out <- t:
			case <-ctx.Done():
				return
			}
		}
	}()
	return out, errc
}

func (fakeSource) GetWorker(t task.Task) (backend.Worker, error) { return nil, nil }

// scriptedDestination returns a worker whose outcome is determined by a
// per-path scripted sequence, popping one outcome per attempt (and
// repeating the last one once the script is exhausted).
type scriptedDestination struct {
	mu       sync.Mutex
	script   map[string][]xfererr.Outcome
	attempts map[string]int
}

func newScriptedDestination(script map[string][]xfererr.Outcome) *scriptedDestination {
	return &scriptedDestination{script: script, attempts: map[string]int{}}
}

func (d *scriptedDestination) IterTasks(ctx context.Context) (<-chan task.Task, <-chan error) {
	out := make(chan task.Task)
	errc := make(chan error, 1)
	close(out)
	close(errc)
	return out, errc
}

func (d *scriptedDestination) GetWorker(t task.Task) (backend.Worker, error) {
	return func(ctx context.Context, p progress.Task) xfererr.Outcome {
		d.mu.Lock()
		seq := d.script[t.RelativePath]
		idx := d.attempts[t.RelativePath]
		if idx < len(seq) {
			d.attempts[t.RelativePath] = idx + 1
		}
		d.mu.Unlock()
		if idx >= len(seq) {
			idx = len(seq) - 1
		}
		outcome := seq[idx]
		p.Add(t.TotalSize)
		return outcome
	}, nil
}

func mkTask(path string, size int64) task.Task {
	return task.New(path, size, nil, nil)
}

func TestEngineSmallCopyAllSucceed(t *testing.T) {
	source := fakeSource{tasks: []task.Task{mkTask("a.txt", 3), mkTask("sub/b.txt", 1)}}
	dest := newScriptedDestination(map[string][]xfererr.Outcome{
		"a.txt":     {xfererr.OK()},
		"sub/b.txt": {xfererr.OK()},
	})

	e := New(Options{Workers: 2, Sink: progress.Noop{}})
	result, err := e.Run(context.Background(), source, dest)
	require.NoError(t, err)
	assert.Equal(t, 2, result.Succeeded)
	assert.EqualValues(t, 0, e.inflight.Value(), "P2: inflight must converge to 0")
}

func TestEngineAlreadyExistsNotReenqueued(t *testing.T) {
	source := fakeSource{tasks: []task.Task{mkTask("a.txt", 3)}}
	dest := newScriptedDestination(map[string][]xfererr.Outcome{
		"a.txt": {xfererr.AlreadyExists()},
	})

	e := New(Options{Workers: 1, Sink: progress.Noop{}})
	result, err := e.Run(context.Background(), source, dest)
	require.NoError(t, err)
	assert.Equal(t, 1, result.Existed)
	// P5: an Exists task is attempted exactly once.
	assert.Equal(t, 1, dest.attempts["a.txt"], "P5 violated: Exists task attempted wrong number of times")
}

func TestEngineSleepThenSuccessReenqueues(t *testing.T) {
	source := fakeSource{tasks: []task.Task{mkTask("a.txt", 10)}}
	dest := newScriptedDestination(map[string][]xfererr.Outcome{
		"a.txt": {xfererr.SleepFor(10 * time.Millisecond), xfererr.OK()},
	})

	e := New(Options{Workers: 1, PopTimeout: 20 * time.Millisecond, Sink: progress.Noop{}})
	result, err := e.Run(context.Background(), source, dest)
	require.NoError(t, err)
	assert.Equal(t, 1, result.Succeeded)
	// P6: the task must have been attempted twice (Sleep, then Success).
	assert.Equal(t, 2, dest.attempts["a.txt"], "P6 violated: expected 2 attempts")
}

func TestEngineFailReenqueuesUntilDeadLetterCutoff(t *testing.T) {
	source := fakeSource{tasks: []task.Task{mkTask("poison.txt", 5)}}
	dest := newScriptedDestination(map[string][]xfererr.Outcome{
		"poison.txt": {xfererr.Failed(nil), xfererr.Failed(nil), xfererr.Failed(nil)},
	})

	e := New(Options{Workers: 1, MaxFailRetries: 2, PopTimeout: 10 * time.Millisecond, Sink: progress.Noop{}})
	result, err := e.Run(context.Background(), source, dest)
	require.NoError(t, err)
	require.Len(t, result.DeadLettered, 1)
	// 1 initial attempt + 2 retries = 3 attempts before cutoff.
	assert.Equal(t, 3, dest.attempts["poison.txt"], "expected 3 attempts before dead-letter")
	assert.EqualValues(t, 0, e.inflight.Value(), "P2: inflight must converge to 0 even after dead-lettering")
}

func TestSleepGateBlocksSubsequentWorkers(t *testing.T) {
	gate := newSleepGate()
	gate.Arm(50 * time.Millisecond)
	require.True(t, gate.Armed(), "expected gate to be armed immediately after Arm")

	start := time.Now()
	require.NoError(t, gate.Wait(context.Background()))
	assert.GreaterOrEqual(t, time.Since(start), 40*time.Millisecond, "P7: Wait returned too early, gate should have blocked")
	assert.False(t, gate.Armed(), "expected gate to have disarmed after Wait returns")
}

func TestSleepGateCoalescesConcurrentArms(t *testing.T) {
	gate := newSleepGate()
	gate.Arm(100 * time.Millisecond)
	// A second Arm call while already armed must not extend the window.
	gate.Arm(10 * time.Second)

	start := time.Now()
	gate.Wait(context.Background())
	assert.LessOrEqual(t, time.Since(start), 2*time.Second, "expected the second Arm to be coalesced (discarded)")
}
