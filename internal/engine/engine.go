// Package engine implements component E: the bounded-concurrency transfer
// engine coupling a streaming task producer to a pool of upload workers,
// gated by a global throttling signal.
package engine

import (
	"context"
	"sync"
	"time"

	"github.com/standalone-transfer/xfer/internal/backend"
	"github.com/standalone-transfer/xfer/internal/logging"
	"github.com/standalone-transfer/xfer/internal/progress"
	"github.com/standalone-transfer/xfer/internal/task"
	"github.com/standalone-transfer/xfer/internal/xfererr"
)

// Options configures an Engine run.
type Options struct {
	Workers          int           // size of the fixed worker pool
	Interval         time.Duration // dispatcher submit-loop pacing
	ClientSleep      time.Duration // default throttle duration when a Sleep outcome carries none
	PopTimeout       time.Duration // how long PopTimeout waits before the dispatcher re-checks drain
	MaxFailRetries   int           // 0 = unbounded (preserves the original's behavior); >0 arms the dead-letter cutoff
	Sink             progress.Sink
	Logger           *logging.Logger
}

func (o *Options) setDefaults() {
	if o.Workers <= 0 {
		o.Workers = 4
	}
	if o.Interval <= 0 {
		o.Interval = 10 * time.Millisecond
	}
	if o.ClientSleep <= 0 {
		o.ClientSleep = time.Second
	}
	if o.PopTimeout <= 0 {
		o.PopTimeout = 200 * time.Millisecond
	}
	if o.Sink == nil {
		o.Sink = progress.Noop{}
	}
	if o.Logger == nil {
		o.Logger = logging.New(logging.LevelInfo, logging.FormatText, nil)
	}
}

// Result summarizes one Run.
type Result struct {
	Succeeded   int
	Existed     int
	DeadLettered []task.Task
}

// Engine runs one transfer: source.IterTasks feeds a queue; a fixed pool
// of Workers built by destination.GetWorker drain it, gated by a binary
// sleep signal whenever any backend reports rate-limiting.
type Engine struct {
	opts Options

	queue    *taskQueue
	inflight *inflightCounter
	gate     *sleepGate

	mu           sync.Mutex
	succeeded    int
	existed      int
	deadLettered []task.Task
}

// New constructs an Engine with opts (zero-valued fields take sensible
// defaults).
func New(opts Options) *Engine {
	opts.setDefaults()
	return &Engine{
		opts:     opts,
		queue:    newTaskQueue(),
		inflight: newInflightCounter(),
		gate:     newSleepGate(),
	}
}

// Run enumerates source into the queue via a producer goroutine and drains
// it with a bounded worker pool against destination, returning once every
// task has reached a terminal state (Success, Exists, or dead-lettered) or
// ctx is canceled.
func (e *Engine) Run(ctx context.Context, source, destination backend.Backend) (Result, error) {
	var pusherFinished atomicBool

	tasks, sourceErrs := source.IterTasks(ctx)

	var producerErr error
	producerDone := make(chan struct{})
	go func() {
		defer close(producerDone)
		for t := range tasks {
			e.inflight.Inc()
			e.queue.Push(t)
		}
		if err, ok := <-sourceErrs; ok && err != nil {
			producerErr = err
		}
		pusherFinished.Set(true)
		e.queue.Close()
	}()

	sem := make(chan struct{}, e.opts.Workers)
	var wg sync.WaitGroup

dispatch:
	for {
		if ctx.Err() != nil {
			break dispatch
		}
		if pusherFinished.Get() && e.inflight.Value() == 0 {
			break dispatch
		}

		if err := e.gate.Wait(ctx); err != nil {
			break dispatch
		}

		t, ok := e.queue.PopTimeout(e.opts.PopTimeout)
		if !ok {
			continue
		}

		worker, err := destination.GetWorker(t)
		if err != nil {
			e.handleOutcome(t, xfererr.Failed(err))
			continue
		}

		sem <- struct{}{}
		wg.Add(1)
		pTask := e.opts.Sink.ForTask(t.RelativePath, t.TotalSize)
		go func(t task.Task, w backend.Worker) {
			defer wg.Done()
			defer func() { <-sem }()
			if werr := e.gate.Wait(ctx); werr != nil {
				e.handleOutcome(t, xfererr.Failed(werr))
				return
			}
			outcome := w(ctx, pTask)
			pTask.Done(outcome)
			e.handleOutcome(t, outcome)
		}(t, worker)

		time.Sleep(e.opts.Interval)
	}

	<-producerDone
	wg.Wait()

	e.mu.Lock()
	result := Result{Succeeded: e.succeeded, Existed: e.existed, DeadLettered: e.deadLettered}
	e.mu.Unlock()

	if ctx.Err() != nil {
		return result, ctx.Err()
	}
	return result, producerErr
}

// handleOutcome applies the completion-callback rules from core spec
// §4.E.3: Exists and Success finalize and decrement inflight; Sleep
// re-enqueues and arms the gate; Fail re-enqueues unless the task has
// exhausted MaxFailRetries, in which case it is dead-lettered instead.
func (e *Engine) handleOutcome(t task.Task, outcome xfererr.Outcome) {
	switch outcome.Kind {
	case xfererr.Success:
		e.mu.Lock()
		e.succeeded++
		e.mu.Unlock()
		e.inflight.Dec()

	case xfererr.Exists:
		e.mu.Lock()
		e.existed++
		e.mu.Unlock()
		e.inflight.Dec()

	case xfererr.Sleep:
		d := outcome.Seconds
		if d <= 0 {
			d = e.opts.ClientSleep
		}
		e.gate.Arm(d)
		e.queue.Push(t.WithAttempt())
		e.opts.Logger.Warn("sleep gate armed", "path", t.RelativePath, "duration", d)

	case xfererr.Fail:
		next := t.WithAttempt()
		if e.opts.MaxFailRetries > 0 && next.Attempts() > e.opts.MaxFailRetries {
			e.mu.Lock()
			e.deadLettered = append(e.deadLettered, next)
			e.mu.Unlock()
			e.inflight.Dec()
			e.opts.Logger.Error("task dead-lettered after exhausting retries", "path", t.RelativePath, "attempts", next.Attempts(), "cause", outcome.Cause)
			return
		}
		e.queue.Push(next)
		e.opts.Logger.Warn("task failed, re-queued", "path", t.RelativePath, "cause", outcome.Cause)

	default:
		e.queue.Push(t.WithAttempt())
	}
}

// atomicBool is a tiny mutex-guarded boolean, used for pusherFinished.
type atomicBool struct {
	mu sync.Mutex
	v  bool
}

func (b *atomicBool) Set(v bool) {
	b.mu.Lock()
	b.v = v
	b.mu.Unlock()
}

func (b *atomicBool) Get() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.v
}
