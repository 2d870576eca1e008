package resources

import (
	"context"
	"fmt"
	"sync"

	"github.com/desertthunder/bpmx/internal/shared"
)

// HandleFetcher produces handles; implemented by [Fetcher].
type HandleFetcher interface {
	FetchAsHandle(ctx context.Context, renderID string) (*Handle, error)
}

// Slot holds the single live handle for one subject.
type Slot struct {
	fetcher HandleFetcher

	mu      sync.Mutex
	gen     uint64
	current *Handle
	cancel  context.CancelFunc // aborts the in-flight fetch, if any
	closed  bool
}

// NewSlot creates an empty slot.
func NewSlot(fetcher HandleFetcher) *Slot {
	return &Slot{fetcher: fetcher}
}

// Current returns the held handle, or nil.
func (s *Slot) Current() *Handle {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current
}

// Load releases the held handle and then fetches renderID into the slot.
//
// A Load, Clear or Close that happens while the fetch is in flight cancels it. A fetch that
// completes anyway has its handle released before Load returns [shared.ErrSuperseded], so a
// second handle can only exist between that fetch returning and this Load releasing it.
func (s *Slot) Load(ctx context.Context, renderID string) (*Handle, error) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil, fmt.Errorf("%w: slot closed", shared.ErrReleased)
	}
	s.gen++
	gen := s.gen
	prev := s.current
	s.current = nil
	s.abort()
	fctx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.mu.Unlock()
	defer cancel()

	if prev != nil {
		prev.Release()
	}

	h, err := s.fetcher.FetchAsHandle(fctx, renderID)

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed || s.gen != gen {
		if h != nil {
			h.Release()
		}
		return nil, shared.ErrSuperseded
	}
	if err != nil {
		return nil, err
	}
	s.current = h
	return h, nil
}

// Clear releases the held handle without fetching.
func (s *Slot) Clear() {
	s.mu.Lock()
	s.gen++
	prev := s.current
	s.current = nil
	s.abort()
	s.mu.Unlock()

	if prev != nil {
		prev.Release()
	}
}

// Close releases the held handle and refuses further loads.
func (s *Slot) Close() {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	s.Clear()
}

// abort cancels the in-flight fetch. Callers hold s.mu.
func (s *Slot) abort() {
	if s.cancel != nil {
		s.cancel()
		s.cancel = nil
	}
}
