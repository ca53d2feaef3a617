package client

import (
	"sync"
	"time"
)

// ClientPool round-robins calls across a fixed set of authenticated
// clients, skipping any currently serving out a Sleep backoff — the spec's
// "ordered collection of remote clients" (SPEC_FULL.md component B),
// generalized from the teacher's single always-on *drive.Service into a
// pool so multiple tokens/accounts can share one transfer.
type ClientPool[T any] struct {
	mu      sync.Mutex
	clients []T
	next    int
	sleepUntil []time.Time
}

// NewClientPool wraps clients for round-robin selection.
func NewClientPool[T any](clients []T) *ClientPool[T] {
	return &ClientPool[T]{clients: clients, sleepUntil: make([]time.Time, len(clients))}
}

// Len reports the pool size.
func (p *ClientPool[T]) Len() int { return len(p.clients) }

// Next returns the next non-sleeping client in rotation order, or the
// overall-soonest-to-wake client if every client is currently asleep (the
// engine's sleep gate already blocks submission in that case, so this is
// only a last-resort tie-breaker).
func (p *ClientPool[T]) Next() T {
	p.mu.Lock()
	defer p.mu.Unlock()

	n := len(p.clients)
	now := time.Now()
	soonest := 0
	for i := 0; i < n; i++ {
		idx := (p.next + i) % n
		if p.sleepUntil[idx].Before(now) {
			p.next = (idx + 1) % n
			return p.clients[idx]
		}
		if p.sleepUntil[idx].Before(p.sleepUntil[soonest]) {
			soonest = idx
		}
	}
	p.next = (soonest + 1) % n
	return p.clients[soonest]
}

// MarkSleeping records that the client at idx (the position returned
// alongside Next via NextIndexed) is throttled until d has elapsed.
func (p *ClientPool[T]) MarkSleeping(idx int, d time.Duration) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if idx < 0 || idx >= len(p.sleepUntil) {
		return
	}
	p.sleepUntil[idx] = time.Now().Add(d)
}

// NextIndexed is Next plus the client's index, so a caller can later report
// a Sleep outcome back via MarkSleeping.
func (p *ClientPool[T]) NextIndexed() (int, T) {
	p.mu.Lock()
	n := len(p.clients)
	now := time.Now()
	soonest := 0
	for i := 0; i < n; i++ {
		idx := (p.next + i) % n
		if p.sleepUntil[idx].Before(now) {
			p.next = (idx + 1) % n
			client := p.clients[idx]
			p.mu.Unlock()
			return idx, client
		}
		if p.sleepUntil[idx].Before(p.sleepUntil[soonest]) {
			soonest = idx
		}
	}
	p.next = (soonest + 1) % n
	client := p.clients[soonest]
	p.mu.Unlock()
	return soonest, client
}
