package tasks

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/desertthunder/bpmx/internal/models"
	"github.com/desertthunder/bpmx/internal/shared"
)

// fakeClock advances only when slept on or told to.
type fakeClock struct {
	mu     sync.Mutex
	t      time.Time
	sleeps []time.Duration
}

func newFakeClock() *fakeClock {
	return &fakeClock{t: time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)}
}

func (f *fakeClock) now() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.t
}

func (f *fakeClock) advance(d time.Duration) {
	f.mu.Lock()
	f.t = f.t.Add(d)
	f.mu.Unlock()
}

func (f *fakeClock) sleep(ctx context.Context, d time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	f.mu.Lock()
	f.t = f.t.Add(d)
	f.sleeps = append(f.sleeps, d)
	f.mu.Unlock()
	return ctx.Err()
}

func (f *fakeClock) clock() clock {
	return clock{now: f.now, sleep: f.sleep}
}

type scriptedFetch struct {
	clock    *fakeClock
	latency  time.Duration
	statuses []models.JobStatus
	calls    []time.Time
	err      error
	errAt    int
}

func (s *scriptedFetch) fetch(ctx context.Context) (models.Analysis, error) {
	s.calls = append(s.calls, s.clock.now())
	n := len(s.calls)
	s.clock.advance(s.latency)

	if s.err != nil && n == s.errAt {
		return models.Analysis{}, s.err
	}

	status := s.statuses[len(s.statuses)-1]
	if n <= len(s.statuses) {
		status = s.statuses[n-1]
	}
	a := models.Analysis{ID: "a1", Status: status}
	if status == models.StatusDone {
		bpm := 128.0
		a.BPM = &bpm
	}
	return a, nil
}

func repeat(status models.JobStatus, n int) []models.JobStatus {
	out := make([]models.JobStatus, n)
	for i := range out {
		out[i] = status
	}
	return out
}

func TestPoll(t *testing.T) {
	t.Run("Processing Twice Then Done", func(t *testing.T) {
		fc := newFakeClock()
		start := fc.now()
		s := &scriptedFetch{clock: fc, statuses: []models.JobStatus{
			models.StatusProcessing, models.StatusProcessing, models.StatusDone,
		}}

		result, err := poll(context.Background(), s.fetch, PollOptions{
			Interval: 2 * time.Second,
			Timeout:  60 * time.Second,
		}, fc.clock())
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		if len(s.calls) != 3 {
			t.Errorf("expected 3 calls, got %d", len(s.calls))
		}
		if result.Status != models.StatusDone || result.BPM == nil || *result.BPM != 128 {
			t.Errorf("unexpected result: %+v", result)
		}
		if elapsed := fc.now().Sub(start); elapsed != 4*time.Second {
			t.Errorf("expected 4s elapsed, got %s", elapsed)
		}
	})

	t.Run("Terminal Statuses Stop Immediately", func(t *testing.T) {
		for _, status := range []models.JobStatus{models.StatusDone, models.StatusFailed} {
			t.Run(string(status), func(t *testing.T) {
				fc := newFakeClock()
				s := &scriptedFetch{clock: fc, statuses: []models.JobStatus{status}}

				result, err := poll(context.Background(), s.fetch, PollOptions{}, fc.clock())
				if err != nil {
					t.Fatalf("a %s job is a successful poll, got %v", status, err)
				}
				if result.Status != status {
					t.Errorf("expected %s, got %s", status, result.Status)
				}
				if len(s.calls) != 1 {
					t.Errorf("expected 1 call, got %d", len(s.calls))
				}
				if len(fc.sleeps) != 0 {
					t.Errorf("expected no waits, got %v", fc.sleeps)
				}
			})
		}
	})

	t.Run("K Pending Results Mean K Plus One Calls", func(t *testing.T) {
		for _, k := range []int{0, 1, 4, 12} {
			fc := newFakeClock()
			statuses := append(repeat(models.StatusPending, k), models.StatusDone)
			s := &scriptedFetch{clock: fc, statuses: statuses}

			if _, err := poll(context.Background(), s.fetch, PollOptions{
				Interval: time.Second,
				Timeout:  time.Minute,
			}, fc.clock()); err != nil {
				t.Fatalf("k=%d: unexpected error: %v", k, err)
			}
			if len(s.calls) != k+1 {
				t.Errorf("k=%d: expected %d calls, got %d", k, k+1, len(s.calls))
			}
		}
	})

	t.Run("Unknown Status Keeps Polling", func(t *testing.T) {
		fc := newFakeClock()
		s := &scriptedFetch{clock: fc, statuses: []models.JobStatus{"warming_up", models.StatusQueued, models.StatusDone}}

		if _, err := poll(context.Background(), s.fetch, PollOptions{}, fc.clock()); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if len(s.calls) != 3 {
			t.Errorf("expected 3 calls, got %d", len(s.calls))
		}
	})

	t.Run("Timeout Makes No Call After Deadline", func(t *testing.T) {
		fc := newFakeClock()
		start := fc.now()
		s := &scriptedFetch{clock: fc, statuses: []models.JobStatus{models.StatusProcessing}}

		_, err := poll(context.Background(), s.fetch, PollOptions{
			Interval: 2 * time.Second,
			Timeout:  10 * time.Second,
		}, fc.clock())

		var timeoutErr *shared.TimeoutError
		if !errors.As(err, &timeoutErr) {
			t.Fatalf("expected TimeoutError, got %v", err)
		}
		if !errors.Is(err, shared.ErrTimeout) {
			t.Error("expected error to match ErrTimeout")
		}
		if timeoutErr.Timeout != 10*time.Second {
			t.Errorf("unexpected budget: %s", timeoutErr.Timeout)
		}

		deadline := start.Add(10 * time.Second)
		for i, at := range s.calls {
			if at.After(deadline) {
				t.Errorf("call %d started at +%s, after the deadline", i+1, at.Sub(start))
			}
		}
		if len(s.calls) != 6 {
			t.Errorf("expected 6 calls (0s..10s), got %d", len(s.calls))
		}
	})

	t.Run("Interval Measured From Resolution", func(t *testing.T) {
		fc := newFakeClock()
		start := fc.now()
		s := &scriptedFetch{clock: fc, latency: 3 * time.Second, statuses: []models.JobStatus{models.StatusProcessing}}

		_, err := poll(context.Background(), s.fetch, PollOptions{
			Interval: 2 * time.Second,
			Timeout:  10 * time.Second,
		}, fc.clock())
		if !errors.Is(err, shared.ErrTimeout) {
			t.Fatalf("expected timeout, got %v", err)
		}

		want := []time.Duration{0, 5 * time.Second, 10 * time.Second}
		if len(s.calls) != len(want) {
			t.Fatalf("expected %d calls, got %d", len(want), len(s.calls))
		}
		for i, at := range s.calls {
			if got := at.Sub(start); got != want[i] {
				t.Errorf("call %d: expected +%s, got +%s", i+1, want[i], got)
			}
		}
	})

	t.Run("Fetch Error Is Not Retried", func(t *testing.T) {
		fc := newFakeClock()
		boom := errors.New("connection refused")
		s := &scriptedFetch{clock: fc, statuses: []models.JobStatus{models.StatusProcessing}, err: boom, errAt: 2}

		_, err := poll(context.Background(), s.fetch, PollOptions{}, fc.clock())
		if !errors.Is(err, boom) {
			t.Fatalf("expected fetch error, got %v", err)
		}
		if len(s.calls) != 2 {
			t.Errorf("expected 2 calls, got %d", len(s.calls))
		}
	})

	t.Run("Context Canceled During Wait", func(t *testing.T) {
		fc := newFakeClock()
		ctx, cancel := context.WithCancel(context.Background())
		calls := 0

		_, err := poll(ctx, func(ctx context.Context) (models.Analysis, error) {
			calls++
			cancel()
			return models.Analysis{Status: models.StatusProcessing}, nil
		}, PollOptions{}, fc.clock())

		if !errors.Is(err, context.Canceled) {
			t.Fatalf("expected context.Canceled, got %v", err)
		}
		if calls != 1 {
			t.Errorf("expected 1 call, got %d", calls)
		}
	})

	t.Run("Defaults", func(t *testing.T) {
		fc := newFakeClock()
		s := &scriptedFetch{clock: fc, statuses: []models.JobStatus{models.StatusPending, models.StatusDone}}

		if _, err := poll(context.Background(), s.fetch, PollOptions{}, fc.clock()); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if len(fc.sleeps) != 1 || fc.sleeps[0] != DefaultPollInterval {
			t.Errorf("expected one %s wait, got %v", DefaultPollInterval, fc.sleeps)
		}
	})

	t.Run("OnPending Observes Each Wait", func(t *testing.T) {
		fc := newFakeClock()
		s := &scriptedFetch{clock: fc, statuses: []models.JobStatus{models.StatusQueued, models.StatusProcessing, models.StatusDone}}

		var seen []models.JobStatus
		if _, err := poll(context.Background(), s.fetch, PollOptions{
			OnPending: func(attempt int, status models.JobStatus) {
				if attempt != len(seen)+1 {
					t.Errorf("unexpected attempt %d", attempt)
				}
				seen = append(seen, status)
			},
		}, fc.clock()); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if len(seen) != 2 || seen[0] != models.StatusQueued || seen[1] != models.StatusProcessing {
			t.Errorf("unexpected pending statuses: %v", seen)
		}
	})

	t.Run("Real Clock", func(t *testing.T) {
		calls := 0
		result, err := Poll(context.Background(), func(ctx context.Context) (*models.Render, error) {
			calls++
			if calls < 3 {
				return &models.Render{Status: models.StatusProcessing}, nil
			}
			return &models.Render{ID: "r1", Status: models.StatusDone}, nil
		}, PollOptions{Interval: time.Millisecond, Timeout: time.Second})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if result.ID != "r1" || calls != 3 {
			t.Errorf("unexpected result %+v after %d calls", result, calls)
		}
	})

	t.Run("Nil Result Is An Error", func(t *testing.T) {
		calls := 0
		result, err := Poll(context.Background(), func(ctx context.Context) (*models.Render, error) {
			calls++
			return nil, nil
		}, PollOptions{Interval: time.Millisecond, Timeout: time.Second})
		if !errors.Is(err, shared.ErrAPIRequest) {
			t.Fatalf("expected ErrAPIRequest, got %v", err)
		}
		if result != nil || calls != 1 {
			t.Errorf("expected no result after one call, got %+v after %d calls", result, calls)
		}
	})
}
