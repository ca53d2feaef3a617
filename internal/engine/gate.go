package engine

import (
	"context"
	"sync"
	"time"
)

// sleepGate is the engine's binary throttling signal (core spec §4.E): the
// first Sleep outcome arms the gate for its requested duration; subsequent
// Sleep outcomes arriving while armed are coalesced (discarded). Every
// worker subsequently submitted blocks on Wait until the gate disarms
// (P7). This implementation always arms on any Sleep outcome — the core
// spec's §9 Open Question decision (b), recorded in DESIGN.md, rather than
// preserving the original's "only arms if already non-empty" quirk.
type sleepGate struct {
	mu      sync.Mutex
	armed   bool
	release chan struct{}
}

func newSleepGate() *sleepGate {
	return &sleepGate{}
}

// Arm arms the gate for d if it is not already armed; a concurrent Arm
// call during the armed window is a no-op (the coalescing rule).
func (g *sleepGate) Arm(d time.Duration) {
	g.mu.Lock()
	if g.armed {
		g.mu.Unlock()
		return
	}
	g.armed = true
	ch := make(chan struct{})
	g.release = ch
	g.mu.Unlock()

	time.AfterFunc(d, func() {
		g.mu.Lock()
		g.armed = false
		g.mu.Unlock()
		close(ch)
	})
}

// Wait blocks until the gate is disarmed, or ctx is done.
func (g *sleepGate) Wait(ctx context.Context) error {
	g.mu.Lock()
	if !g.armed {
		g.mu.Unlock()
		return nil
	}
	ch := g.release
	g.mu.Unlock()

	select {
	case <-ch:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Armed reports the current gate state, for tests (P7) and diagnostics.
func (g *sleepGate) Armed() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.armed
}
