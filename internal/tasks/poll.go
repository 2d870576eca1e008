package tasks

import (
	"context"
	"fmt"
	"reflect"
	"time"

	"github.com/desertthunder/bpmx/internal/models"
	"github.com/desertthunder/bpmx/internal/shared"
)

const (
	DefaultPollInterval    = 2 * time.Second
	DefaultAnalysisTimeout = 60 * time.Second
	DefaultRenderTimeout   = 90 * time.Second
)

// PollOptions configures [Poll].
type PollOptions struct {
	Interval time.Duration // Fixed wait between a resolved fetch and the next one
	Timeout  time.Duration // Budget measured from the first fetch

	// OnPending, when set, observes every non-terminal result before the wait.
	OnPending func(attempt int, status models.JobStatus)
}

// clock is swapped in tests so long polls run instantly.
type clock struct {
	now   func() time.Time
	sleep func(ctx context.Context, d time.Duration) error
}

var realClock = clock{now: time.Now, sleep: sleepContext}

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// Poll calls fetch until it reports a terminal status (done or failed) and returns that result.
//
// The first call is immediate. A fetch error is returned as-is without retrying, and a nil result
// fails with [shared.ErrAPIRequest]. When the elapsed
// time exceeds opts.Timeout, Poll returns a [shared.TimeoutError] and makes no further call.
func Poll[T models.StatusReporter](ctx context.Context, fetch func(context.Context) (T, error), opts PollOptions) (T, error) {
	return poll(ctx, fetch, opts, realClock)
}

func poll[T models.StatusReporter](ctx context.Context, fetch func(context.Context) (T, error), opts PollOptions, c clock) (T, error) {
	var zero T
	if opts.Interval <= 0 {
		opts.Interval = DefaultPollInterval
	}
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultAnalysisTimeout
	}

	start := c.now()
	expired := func() error {
		if elapsed := c.now().Sub(start); elapsed > opts.Timeout {
			return &shared.TimeoutError{Elapsed: elapsed, Timeout: opts.Timeout}
		}
		return nil
	}

	for attempt := 1; ; attempt++ {
		result, err := fetch(ctx)
		if err != nil {
			return zero, err
		}
		if isNil(result) {
			return zero, fmt.Errorf("%w: empty job status response", shared.ErrAPIRequest)
		}

		status := result.JobStatus()
		if status.IsTerminal() {
			return result, nil
		}
		if opts.OnPending != nil {
			opts.OnPending(attempt, status)
		}

		if err := expired(); err != nil {
			return zero, err
		}
		if err := c.sleep(ctx, opts.Interval); err != nil {
			return zero, err
		}
		// Re-check so a call never starts past the deadline.
		if err := expired(); err != nil {
			return zero, err
		}
	}
}

func isNil(v any) bool {
	if v == nil {
		return true
	}
	switch rv := reflect.ValueOf(v); rv.Kind() {
	case reflect.Pointer, reflect.Interface, reflect.Map, reflect.Slice:
		return rv.IsNil()
	}
	return false
}
