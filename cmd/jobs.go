package main

import (
	"context"
	"fmt"
	"time"

	"github.com/desertthunder/bpmx/internal/formatter"
	"github.com/desertthunder/bpmx/internal/models"
	"github.com/desertthunder/bpmx/internal/services"
	"github.com/desertthunder/bpmx/internal/shared"
	"github.com/desertthunder/bpmx/internal/tasks"
	"github.com/urfave/cli/v3"
)

// engineWith returns the runner's engine, or a copy with overridden timeouts when set.
func (r *Runner) engineWith(analysisTimeout, renderTimeout time.Duration) *tasks.Engine {
	if analysisTimeout <= 0 && renderTimeout <= 0 {
		return r.engine
	}
	opts := r.engine.Options()
	if analysisTimeout > 0 {
		opts.AnalysisTimeout = analysisTimeout
	}
	if renderTimeout > 0 {
		opts.RenderTimeout = renderTimeout
	}
	return tasks.NewEngine(r.backend, opts)
}

func (r *Runner) printJobProgress(update tasks.ProgressUpdate) {
	switch update.Phase {
	case tasks.StartAnalysis, tasks.StartRender:
		r.writePlain("🚀 %s\n", update.Message)
	case tasks.PollAnalysis, tasks.PollRender:
		r.writePlain("   %s\n", update.Message)
	case tasks.FetchAudio:
		r.writePlain("🎧 %s\n", update.Message)
	case tasks.BulkAnalyze:
		if update.Step == 0 {
			r.writePlain("🔍 %s\n", update.Message)
		} else {
			r.writePlain("   %s\n", update.Message)
		}
	}
}

// Analyze starts tempo detection for one track and waits for the result.
func (r *Runner) Analyze(ctx context.Context, cmd *cli.Command) error {
	trackID := cmd.StringArg("id")
	if trackID == "" {
		return fmt.Errorf("%w: track id", shared.ErrMissingArgument)
	}
	return r.analyzeOne(ctx, r.engineWith(cmd.Duration("timeout"), 0), trackID, cmd.Bool("json"))
}

func (r *Runner) analyzeOne(ctx context.Context, engine *tasks.Engine, trackID string, asJSON bool) error {
	r.logger.Info("analyzing track", "track_id", trackID)

	progressCh := make(chan tasks.ProgressUpdate, 50)
	done := r.drain(progressCh, r.printJobProgress)

	analysis, err := engine.AnalyzeTrack(ctx, trackID, progressCh)
	close(progressCh)
	<-done

	if err != nil {
		return err
	}
	if asJSON {
		return r.writeJSON(analysis, true)
	}

	r.writePlain("\n%s", formatter.FormatAnalysis(analysis))
	if analysis.Status == models.StatusFailed {
		return fmt.Errorf("%w: analysis failed", shared.ErrAPIRequest)
	}
	return nil
}

// AnalyzeAll analyzes the given tracks, or every track when none are named.
func (r *Runner) AnalyzeAll(ctx context.Context, cmd *cli.Command) error {
	trackIDs := cmd.Args().Slice()
	if len(trackIDs) == 0 {
		tracks, err := r.backend.ListTracks(ctx)
		if err != nil {
			return err
		}
		for _, t := range tracks {
			trackIDs = append(trackIDs, t.ID)
		}
	}

	opts := r.engine.Options()
	if w := cmd.Int("workers"); w > 0 {
		opts.Workers = w
	}
	if rl := cmd.Float("rate-limit"); rl > 0 {
		opts.RateLimit = rl
	}
	engine := tasks.NewEngine(r.backend, opts)

	r.logger.Info("bulk analysis", "tracks", len(trackIDs), "workers", engine.Options().Workers, "rate_limit", engine.Options().RateLimit)

	progressCh := make(chan tasks.ProgressUpdate, 100)
	done := r.drain(progressCh, r.printJobProgress)

	result, err := engine.AnalyzeAll(ctx, trackIDs, progressCh)
	close(progressCh)
	<-done

	if err != nil {
		return err
	}

	if cmd.Bool("json") {
		return r.writeJSON(result, true)
	}

	r.writePlain("\n")
	r.writePlainHeader("Analysis Complete")
	r.writePlain("Tracks:    %d\n", result.Total)
	r.writePlain("Succeeded: %d\n", result.Succeeded)
	r.writePlain("Failed:    %d\n", result.Failed)
	return nil
}

// renderTarget derives the target bpm from exactly one of --bpm, --cadence or --pace.
func renderTarget(cmd *cli.Command) (float64, error) {
	set := 0
	for _, name := range []string{"bpm", "cadence", "pace"} {
		if cmd.IsSet(name) {
			set++
		}
	}
	if set != 1 {
		return 0, fmt.Errorf("%w: pass exactly one of --bpm, --cadence or --pace", shared.ErrInvalidFlag)
	}

	beat := models.StepBeat
	if cmd.Bool("stride") {
		beat = models.StrideBeat
	}

	switch {
	case cmd.IsSet("cadence"):
		return models.TargetBPM(models.TempoInput{Mode: models.CadenceMode, Beat: beat, Cadence: cmd.Float("cadence")})
	case cmd.IsSet("pace"):
		return models.TargetBPM(models.TempoInput{Mode: models.PaceMode, Beat: beat, Pace: cmd.String("pace")})
	default:
		return cmd.Float("bpm"), nil
	}
}

// Render requests a tempo-adjusted render and waits for it to finish.
func (r *Runner) Render(ctx context.Context, cmd *cli.Command) error {
	trackID := cmd.StringArg("id")
	if trackID == "" {
		return fmt.Errorf("%w: track id", shared.ErrMissingArgument)
	}

	bpm, err := renderTarget(cmd)
	if err != nil {
		return err
	}
	if err := models.ValidateTargetBPM(bpm); err != nil {
		return err
	}

	req := services.RenderRequest{TargetBPM: bpm, PreservePitch: !cmd.Bool("no-preserve-pitch")}
	r.logger.Info("rendering track", "track_id", trackID, "target_bpm", bpm, "preserve_pitch", req.PreservePitch)

	engine := r.engineWith(0, cmd.Duration("timeout"))

	progressCh := make(chan tasks.ProgressUpdate, 50)
	done := r.drain(progressCh, r.printJobProgress)

	render, err := engine.RenderTrack(ctx, trackID, req, progressCh)
	close(progressCh)
	<-done

	if err != nil {
		return err
	}
	if cmd.Bool("json") {
		return r.writeJSON(render, true)
	}

	r.writePlain("\n%s", formatter.FormatRender(render))
	if !render.Playable() {
		return fmt.Errorf("%w: render %s", shared.ErrAPIRequest, render.Status)
	}
	if cmd.Bool("play") {
		return r.play(ctx, render.ID, true)
	}
	return nil
}

// Play downloads a finished render into the cache directory and optionally opens it.
func (r *Runner) Play(ctx context.Context, cmd *cli.Command) error {
	renderID := cmd.StringArg("render-id")
	if renderID == "" {
		return fmt.Errorf("%w: render id", shared.ErrMissingArgument)
	}
	return r.play(ctx, renderID, cmd.Bool("open"))
}

// play leaves the fetched file in place for the player; the next run purges it.
func (r *Runner) play(ctx context.Context, renderID string, open bool) error {
	if n, err := r.fetcher.Purge(); err != nil {
		r.logger.Warn("failed to purge render cache", "error", err)
	} else if n > 0 {
		r.logger.Debug("purged stale renders", "count", n)
	}

	render, err := r.backend.GetRender(ctx, renderID)
	if err != nil {
		return err
	}
	if !render.Playable() {
		return fmt.Errorf("%w: render %s is %s", shared.ErrInvalidArgument, renderID, render.Status)
	}

	r.printJobProgress(tasks.FetchAudioUpdate(renderID))
	handle, err := r.fetcher.FetchAsHandle(ctx, renderID)
	if err != nil {
		return err
	}
	r.logger.Info("render fetched", "render_id", renderID, "bytes", handle.Size, "path", handle.Path())

	r.writePlain("✓ Saved to %s\n", handle.Path())
	if !open {
		return nil
	}
	if err := shared.OpenURL(handle.URL()); err != nil {
		return fmt.Errorf("failed to open player: %w", err)
	}
	return nil
}
