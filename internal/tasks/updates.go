package tasks

import (
	"context"
	"fmt"

	"github.com/desertthunder/bpmx/internal/models"
)

// ProgressUpdate represents a progress event during a long-running operation.
//
// Used to send real-time updates to the CLI or UI layer for display.
type ProgressUpdate struct {
	Phase   Phase  // Operation phase
	Step    int    // Current step number within phase
	Total   int    // Total steps in this phase
	Percent int    // Transfer percentage in [0,100], only set during [Transfer]
	Message string // Human-readable message for display
	Data    any    // Optional phase-specific data for advanced UIs
}

// Operation phase enumeration
type Phase int

const (
	Authorize Phase = iota
	Transfer
	Register
	StartAnalysis
	PollAnalysis
	StartRender
	PollRender
	BulkAnalyze
	FetchAudio
)

func (p Phase) String() string {
	switch p {
	case Authorize:
		return "authorize"
	case Transfer:
		return "transfer"
	case Register:
		return "register"
	case StartAnalysis:
		return "start_analysis"
	case PollAnalysis:
		return "poll_analysis"
	case StartRender:
		return "start_render"
	case PollRender:
		return "poll_render"
	case BulkAnalyze:
		return "bulk_analyze"
	case FetchAudio:
		return "fetch_audio"
	default:
		return ""
	}
}

// sendProgress sends a progress update through the channel without blocking.
func sendProgress(progress chan<- ProgressUpdate, update ProgressUpdate) {
	if progress == nil {
		return
	}
	select {
	case progress <- update:
	default:
	}
}

// sendFinal delivers an update the consumer must not miss, giving up only when ctx ends.
func sendFinal(ctx context.Context, progress chan<- ProgressUpdate, update ProgressUpdate) {
	if progress == nil {
		return
	}
	select {
	case progress <- update:
	case <-ctx.Done():
	}
}

func authorizeUpdate(filename string) ProgressUpdate {
	return ProgressUpdate{
		Phase:   Authorize,
		Step:    1,
		Total:   3,
		Message: fmt.Sprintf("Requesting upload URL for %s...", filename),
	}
}

func transferUpdate(percent int) ProgressUpdate {
	return ProgressUpdate{
		Phase:   Transfer,
		Step:    2,
		Total:   3,
		Percent: percent,
		Message: fmt.Sprintf("Uploading... %d%%", percent),
	}
}

func registerUpdate(objectKey string) ProgressUpdate {
	return ProgressUpdate{
		Phase:   Register,
		Step:    3,
		Total:   3,
		Message: fmt.Sprintf("Registering %s...", objectKey),
	}
}

// FetchAudioUpdate reports that a render's audio is being downloaded.
func FetchAudioUpdate(renderID string) ProgressUpdate {
	return ProgressUpdate{
		Phase:   FetchAudio,
		Step:    1,
		Total:   1,
		Message: fmt.Sprintf("Fetching render %s...", renderID),
		Data:    renderID,
	}
}

func startJobUpdate(phase Phase, trackID string) ProgressUpdate {
	msg := "Starting analysis..."
	if phase == StartRender {
		msg = "Starting render..."
	}
	return ProgressUpdate{
		Phase:   phase,
		Step:    1,
		Total:   1,
		Message: msg,
		Data:    trackID,
	}
}

func pollUpdate(phase Phase, attempt int, status models.JobStatus) ProgressUpdate {
	return ProgressUpdate{
		Phase:   phase,
		Step:    attempt,
		Message: fmt.Sprintf("Waiting for job (%s, check %d)...", status, attempt),
		Data:    status,
	}
}

func bulkQueuedUpdate(total int) ProgressUpdate {
	return ProgressUpdate{
		Phase:   BulkAnalyze,
		Step:    0,
		Total:   total,
		Message: fmt.Sprintf("Queued %d tracks for analysis...", total),
	}
}

func bulkCompletedUpdate(step, total int, res AnalysisResult) ProgressUpdate {
	if res.Error != nil {
		return ProgressUpdate{
			Phase:   BulkAnalyze,
			Step:    step,
			Total:   total,
			Message: fmt.Sprintf("[%d/%d] ✗ %s: %v", step, total, res.TrackID, res.Error),
			Data:    res,
		}
	}

	mark, detail := "✓", "bpm n/a"
	switch {
	case res.Analysis.Status == models.StatusFailed:
		mark, detail = "✗", "analysis failed"
		if res.Analysis.Error != nil {
			detail = *res.Analysis.Error
		}
	case res.Analysis.BPM != nil:
		detail = fmt.Sprintf("bpm %.1f", *res.Analysis.BPM)
	}
	return ProgressUpdate{
		Phase:   BulkAnalyze,
		Step:    step,
		Total:   total,
		Message: fmt.Sprintf("[%d/%d] %s %s (%s)", step, total, mark, res.TrackID, detail),
		Data:    res,
	}
}
