package tasks

import "sync"

// Guard tracks which asynchronous flows may still commit results to a view.
//
// Every flow takes a [Ticket] when it starts. Moving to a different subject ([Guard.Advance]) or
// tearing the view down ([Guard.Close]) makes every outstanding ticket stale, and a stale ticket's
// commit is dropped silently.
type Guard struct {
	mu     sync.Mutex
	gen    uint64
	closed bool
}

// Ticket is a flow's claim on the guard generation current at [Guard.Begin].
type Ticket struct {
	g   *Guard
	gen uint64
}

// Begin captures the current generation.
func (g *Guard) Begin() Ticket {
	g.mu.Lock()
	defer g.mu.Unlock()
	return Ticket{g: g, gen: g.gen}
}

// Advance marks a subject change.
func (g *Guard) Advance() {
	g.mu.Lock()
	g.gen++
	g.mu.Unlock()
}

// Close stales all tickets, including ones taken afterwards.
func (g *Guard) Close() {
	g.mu.Lock()
	g.gen++
	g.closed = true
	g.mu.Unlock()
}

// Current reports whether the ticket may still commit.
func (t Ticket) Current() bool {
	if t.g == nil {
		return false
	}
	t.g.mu.Lock()
	defer t.g.mu.Unlock()
	return t.current()
}

func (t Ticket) current() bool {
	return !t.g.closed && t.g.gen == t.gen
}

// Commit runs fn only if the ticket is current and reports whether it ran.
//
// fn runs under the guard's lock so it cannot interleave with Advance or Close; it must not call
// back into the guard.
func (t Ticket) Commit(fn func()) bool {
	if t.g == nil {
		return false
	}
	t.g.mu.Lock()
	defer t.g.mu.Unlock()

	if !t.current() {
		return false
	}
	fn()
	return true
}
