package tasks

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/desertthunder/bpmx/internal/models"
	"github.com/desertthunder/bpmx/internal/resources"
	"github.com/desertthunder/bpmx/internal/services"
	"github.com/desertthunder/bpmx/internal/shared"
)

// Busy states shown while a flow is running.
const (
	BusyLoading   = "loading"
	BusyAnalyzing = "analyzing"
	BusyRendering = "rendering"
)

// TrackReader loads a track with its analysis and latest render.
type TrackReader interface {
	GetTrack(ctx context.Context, trackID string) (*models.TrackDetail, error)
}

// AudioSlot holds the playable audio for the current subject; implemented by [resources.Slot].
type AudioSlot interface {
	Load(ctx context.Context, renderID string) (*resources.Handle, error)
	Clear()
	Close()
}

// ViewState is a snapshot of a [TrackView].
type ViewState struct {
	TrackID  string
	Detail   *models.TrackDetail
	Busy     string // One of the Busy* constants, or empty when idle
	Err      error  // Last flow error
	AudioURL string // file:// URL of the latest playable render, if fetched
	AudioID  string // Render id behind AudioURL
}

// TrackView is the headless model behind a track detail screen.
//
// Every flow captures a [Ticket] when it starts and commits only while that ticket is current,
// so results from a previous track or a closed view are dropped.
type TrackView struct {
	tracks TrackReader
	engine *Engine
	audio  AudioSlot

	guard    Guard
	mu       sync.Mutex
	state    ViewState
	audioKey string
	onChange func(ViewState)
}

// NewTrackView creates a view. audio may be nil when playback is not needed.
func NewTrackView(tracks TrackReader, engine *Engine, audio AudioSlot) *TrackView {
	return &TrackView{tracks: tracks, engine: engine, audio: audio}
}

// OnChange registers fn to receive a snapshot after every committed change.
//
// fn is called while the view's guard is held and must not call back into the view.
func (v *TrackView) OnChange(fn func(ViewState)) {
	v.mu.Lock()
	v.onChange = fn
	v.mu.Unlock()
}

// Snapshot returns a copy of the current state.
func (v *TrackView) Snapshot() ViewState {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.state
}

// Open switches the view to trackID, staling every in-flight flow, and loads it.
func (v *TrackView) Open(ctx context.Context, trackID string) error {
	v.guard.Advance()
	if v.audio != nil {
		v.audio.Clear()
	}

	ticket := v.guard.Begin()
	v.commit(ticket, func(s *ViewState) {
		*s = ViewState{TrackID: trackID}
		v.audioKey = ""
	})
	return v.refresh(ctx, ticket)
}

// Refresh reloads the current track.
func (v *TrackView) Refresh(ctx context.Context) error {
	return v.refresh(ctx, v.guard.Begin())
}

func (v *TrackView) refresh(ctx context.Context, ticket Ticket) error {
	trackID := v.Snapshot().TrackID
	if trackID == "" {
		return fmt.Errorf("%w: no track open", shared.ErrMissingArgument)
	}

	v.commit(ticket, func(s *ViewState) {
		if s.Busy == "" {
			s.Busy = BusyLoading
		}
	})

	detail, err := v.tracks.GetTrack(ctx, trackID)
	committed := v.commit(ticket, func(s *ViewState) {
		if s.Busy == BusyLoading {
			s.Busy = ""
		}
		if err != nil {
			s.Err = err
			return
		}
		s.Detail = detail
		s.Err = nil
	})
	if !committed {
		return shared.ErrSuperseded
	}
	if err != nil {
		return err
	}
	return v.syncAudio(ctx, ticket, detail.LatestRender)
}

// Analyze starts tempo detection, waits for it and reloads the track.
func (v *TrackView) Analyze(ctx context.Context) (*models.Analysis, error) {
	ticket := v.guard.Begin()
	trackID := v.Snapshot().TrackID
	if trackID == "" {
		return nil, fmt.Errorf("%w: no track open", shared.ErrMissingArgument)
	}

	v.commit(ticket, func(s *ViewState) { s.Busy, s.Err = BusyAnalyzing, nil })
	analysis, err := v.engine.AnalyzeTrack(ctx, trackID, nil)
	if !v.finish(ticket, err) {
		return nil, shared.ErrSuperseded
	}
	if err != nil {
		return nil, err
	}
	return analysis, v.refresh(ctx, ticket)
}

// Generate requests a render at targetBPM, waits for it and reloads the track.
func (v *TrackView) Generate(ctx context.Context, targetBPM float64, preservePitch bool) (*models.Render, error) {
	ticket := v.guard.Begin()
	trackID := v.Snapshot().TrackID
	if trackID == "" {
		return nil, fmt.Errorf("%w: no track open", shared.ErrMissingArgument)
	}
	if err := models.ValidateTargetBPM(targetBPM); err != nil {
		return nil, err
	}

	v.commit(ticket, func(s *ViewState) { s.Busy, s.Err = BusyRendering, nil })
	render, err := v.engine.RenderTrack(ctx, trackID, services.RenderRequest{
		TargetBPM:     targetBPM,
		PreservePitch: preservePitch,
	}, nil)
	if !v.finish(ticket, err) {
		return nil, shared.ErrSuperseded
	}
	if err != nil {
		return nil, err
	}
	return render, v.refresh(ctx, ticket)
}

// Close stales every flow and releases the audio handle.
func (v *TrackView) Close() {
	v.guard.Close()
	if v.audio != nil {
		v.audio.Close()
	}
}

// syncAudio fetches the latest render when its id or status changed since the last sync.
func (v *TrackView) syncAudio(ctx context.Context, ticket Ticket, render *models.Render) error {
	if v.audio == nil {
		return nil
	}

	key := ""
	if render != nil {
		key = render.ID + ":" + string(render.Status)
	}

	changed := false
	ticket.Commit(func() {
		v.mu.Lock()
		defer v.mu.Unlock()
		if key != v.audioKey {
			v.audioKey = key
			changed = true
		}
	})
	if !changed {
		return nil
	}

	if !render.Playable() {
		v.audio.Clear()
		v.commit(ticket, func(s *ViewState) { s.AudioURL, s.AudioID = "", "" })
		return nil
	}

	h, err := v.audio.Load(ctx, render.ID)
	if errors.Is(err, shared.ErrSuperseded) {
		return nil
	}
	committed := v.commit(ticket, func(s *ViewState) {
		if err != nil {
			s.Err = err
			s.AudioURL, s.AudioID = "", ""
			v.audioKey = ""
			return
		}
		s.AudioURL, s.AudioID = h.URL(), h.RenderID
	})
	if !committed {
		return nil
	}
	return err
}

// finish clears the busy flag and records err; it reports whether the ticket was still current.
func (v *TrackView) finish(ticket Ticket, err error) bool {
	return v.commit(ticket, func(s *ViewState) {
		s.Busy = ""
		if err != nil {
			s.Err = err
		}
	})
}

func (v *TrackView) commit(ticket Ticket, fn func(*ViewState)) bool {
	return ticket.Commit(func() { v.update(fn) })
}

func (v *TrackView) update(fn func(*ViewState)) {
	v.mu.Lock()
	fn(&v.state)
	snapshot, notify := v.state, v.onChange
	v.mu.Unlock()

	if notify != nil {
		notify(snapshot)
	}
}
