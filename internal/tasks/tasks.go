// package tasks drives backend jobs for the bpmx client.
//
// Operations emit progress updates via channels for non-blocking status reporting to CLI/UI layers.
package tasks

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/desertthunder/bpmx/internal/models"
	"github.com/desertthunder/bpmx/internal/services"
	"github.com/desertthunder/bpmx/internal/shared"
	"golang.org/x/time/rate"
)

const (
	DefaultWorkers   = 3
	MaxWorkers       = 10
	DefaultRateLimit = 2.0
)

// JobBackend starts and observes analysis and render jobs.
type JobBackend interface {
	StartAnalysis(ctx context.Context, trackID string) (*models.JobAccepted, error)
	GetAnalysis(ctx context.Context, trackID string) (*models.Analysis, error)
	StartRender(ctx context.Context, trackID string, req services.RenderRequest) (*models.RenderAccepted, error)
	GetRender(ctx context.Context, renderID string) (*models.Render, error)
}

// JobOptions holds poll budgets and bulk limits. Zero values take the defaults.
type JobOptions struct {
	PollInterval    time.Duration
	AnalysisTimeout time.Duration
	RenderTimeout   time.Duration
	Workers         int     // Concurrent analyses in AnalyzeAll (default: 3, max: 10)
	RateLimit       float64 // Job starts per second in AnalyzeAll (default: 2)
}

func (o JobOptions) withDefaults() JobOptions {
	if o.PollInterval <= 0 {
		o.PollInterval = DefaultPollInterval
	}
	if o.AnalysisTimeout <= 0 {
		o.AnalysisTimeout = DefaultAnalysisTimeout
	}
	if o.RenderTimeout <= 0 {
		o.RenderTimeout = DefaultRenderTimeout
	}
	if o.Workers <= 0 {
		o.Workers = DefaultWorkers
	}
	if o.Workers > MaxWorkers {
		o.Workers = MaxWorkers
	}
	if o.RateLimit <= 0 {
		o.RateLimit = DefaultRateLimit
	}
	return o
}

// AnalysisResult is the outcome for one track in [Engine.AnalyzeAll].
type AnalysisResult struct {
	TrackID  string
	Analysis *models.Analysis // Terminal analysis; nil when Error is set
	Error    error
}

// BulkAnalysisResult summarizes [Engine.AnalyzeAll].
type BulkAnalysisResult struct {
	Total     int
	Succeeded int // Terminal with status done
	Failed    int // Errors plus terminal failed analyses
	Results   []AnalysisResult
}

// Engine starts backend jobs and waits for them to finish.
type Engine struct {
	backend JobBackend
	opts    JobOptions
	clock   clock
}

// NewEngine creates an Engine over backend.
func NewEngine(backend JobBackend, opts JobOptions) *Engine {
	return &Engine{backend: backend, opts: opts.withDefaults(), clock: realClock}
}

// Options returns the effective options.
func (e *Engine) Options() JobOptions { return e.opts }

// AnalyzeTrack starts tempo detection and polls until it is done or failed.
//
// A failed analysis is returned without error; callers inspect its status.
func (e *Engine) AnalyzeTrack(ctx context.Context, trackID string, progress chan<- ProgressUpdate) (*models.Analysis, error) {
	if e.backend == nil {
		return nil, fmt.Errorf("%w: backend client not initialized", shared.ErrServiceUnavailable)
	}

	sendProgress(progress, startJobUpdate(StartAnalysis, trackID))
	if _, err := e.backend.StartAnalysis(ctx, trackID); err != nil {
		return nil, err
	}

	return poll(ctx, func(ctx context.Context) (*models.Analysis, error) {
		a, err := e.backend.GetAnalysis(ctx, trackID)
		if err == nil && a == nil {
			err = fmt.Errorf("%w: empty analysis response", shared.ErrAPIRequest)
		}
		return a, err
	}, PollOptions{
		Interval: e.opts.PollInterval,
		Timeout:  e.opts.AnalysisTimeout,
		OnPending: func(attempt int, status models.JobStatus) {
			sendProgress(progress, pollUpdate(PollAnalysis, attempt, status))
		},
	}, e.clock)
}

// RenderTrack requests a tempo-adjusted render and polls it to a terminal status.
func (e *Engine) RenderTrack(ctx context.Context, trackID string, req services.RenderRequest, progress chan<- ProgressUpdate) (*models.Render, error) {
	if e.backend == nil {
		return nil, fmt.Errorf("%w: backend client not initialized", shared.ErrServiceUnavailable)
	}

	sendProgress(progress, startJobUpdate(StartRender, trackID))
	accepted, err := e.backend.StartRender(ctx, trackID, req)
	if err != nil {
		return nil, err
	}

	return poll(ctx, func(ctx context.Context) (*models.Render, error) {
		r, err := e.backend.GetRender(ctx, accepted.RenderID)
		if err == nil && r == nil {
			err = fmt.Errorf("%w: empty render response", shared.ErrAPIRequest)
		}
		return r, err
	}, PollOptions{
		Interval: e.opts.PollInterval,
		Timeout:  e.opts.RenderTimeout,
		OnPending: func(attempt int, status models.JobStatus) {
			sendProgress(progress, pollUpdate(PollRender, attempt, status))
		},
	}, e.clock)
}

// AnalyzeAll analyzes many tracks concurrently with a bounded worker pool.
//
// Job starts are rate limited. Per-track failures are collected in the result rather than
// aborting the batch; only context cancellation stops it early.
func (e *Engine) AnalyzeAll(ctx context.Context, trackIDs []string, progress chan<- ProgressUpdate) (*BulkAnalysisResult, error) {
	if e.backend == nil {
		return nil, fmt.Errorf("%w: backend client not initialized", shared.ErrServiceUnavailable)
	}

	total := len(trackIDs)
	result := &BulkAnalysisResult{
		Total:   total,
		Results: make([]AnalysisResult, 0, total),
	}
	if total == 0 {
		return result, nil
	}

	limiter := rate.NewLimiter(rate.Limit(e.opts.RateLimit), 1)
	jobs := make(chan string, total)
	results := make(chan AnalysisResult, total)

	var wg sync.WaitGroup
	for i := 0; i < min(e.opts.Workers, total); i++ {
		wg.Add(1)
		go e.analyzeWorker(ctx, &wg, limiter, jobs, results)
	}

	sendProgress(progress, bulkQueuedUpdate(total))
	for _, id := range trackIDs {
		jobs <- id
	}
	close(jobs)

	go func() {
		wg.Wait()
		close(results)
	}()

	completed := 0
	for res := range results {
		completed++
		result.Results = append(result.Results, res)
		if res.Error == nil && res.Analysis.Status == models.StatusDone {
			result.Succeeded++
		} else {
			result.Failed++
		}
		sendProgress(progress, bulkCompletedUpdate(completed, total, res))
	}

	if err := ctx.Err(); err != nil {
		return result, err
	}
	return result, nil
}

// analyzeWorker drains track ids from jobs, waiting on the limiter before each start.
func (e *Engine) analyzeWorker(
	ctx context.Context,
	wg *sync.WaitGroup,
	limiter *rate.Limiter,
	jobs <-chan string,
	results chan<- AnalysisResult,
) {
	defer wg.Done()

	for id := range jobs {
		if err := limiter.Wait(ctx); err != nil {
			results <- AnalysisResult{TrackID: id, Error: err}
			continue
		}

		analysis, err := e.AnalyzeTrack(ctx, id, nil)
		results <- AnalysisResult{TrackID: id, Analysis: analysis, Error: err}
	}
}
