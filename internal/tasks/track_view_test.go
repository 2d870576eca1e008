package tasks

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strings"
	"sync"
	"testing"

	"github.com/desertthunder/bpmx/internal/models"
	"github.com/desertthunder/bpmx/internal/resources"
	"github.com/desertthunder/bpmx/internal/shared"
)

const otherRenderID = "5d6e7f80-9a1b-4c2d-8e3f-a4b5c6d7e8f9"

type fakeTracks struct {
	mu      sync.Mutex
	details map[string]*models.TrackDetail
	gates   map[string]chan struct{}
	entered chan string
	calls   int
}

func (f *fakeTracks) GetTrack(ctx context.Context, trackID string) (*models.TrackDetail, error) {
	f.mu.Lock()
	f.calls++
	gate := f.gates[trackID]
	f.mu.Unlock()

	if f.entered != nil {
		f.entered <- trackID
	}
	if gate != nil {
		<-gate
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	detail, ok := f.details[trackID]
	if !ok {
		return nil, &shared.RequestError{Path: "/api/tracks/" + trackID, StatusCode: 404, Message: "Track not found"}
	}
	copied := *detail
	return &copied, nil
}

func (f *fakeTracks) setRender(trackID string, r *models.Render) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.details[trackID].LatestRender = r
}

type audioOpener struct {
	mu    sync.Mutex
	calls int
}

func (a *audioOpener) Open(ctx context.Context, path string) (*http.Response, error) {
	a.mu.Lock()
	a.calls++
	a.mu.Unlock()
	return &http.Response{
		StatusCode: http.StatusOK,
		Header:     http.Header{"Content-Type": []string{"audio/mpeg"}},
		Body:       io.NopCloser(strings.NewReader("ID3 fake audio")),
	}, nil
}

func (a *audioOpener) count() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.calls
}

func doneRender(id string) *models.Render {
	key := "renders/" + id + ".mp3"
	return &models.Render{ID: id, TargetBPM: 170, Status: models.StatusDone, OutputObjectKey: &key}
}

type viewFixture struct {
	view    *TrackView
	tracks  *fakeTracks
	jobs    *fakeJobBackend
	opener  *audioOpener
	fetcher *resources.Fetcher
}

func newViewFixture(t *testing.T) *viewFixture {
	t.Helper()
	tracks := &fakeTracks{details: map[string]*models.TrackDetail{
		"track-a": {Track: models.Track{ID: "track-a", SourceFilename: "a.mp3"}},
		"track-b": {Track: models.Track{ID: "track-b", SourceFilename: "b.mp3"}},
	}, gates: map[string]chan struct{}{}}
	jobs := newFakeJobBackend()
	opener := &audioOpener{}
	fetcher := resources.NewFetcher(opener, t.TempDir())

	view := NewTrackView(tracks, newTestEngine(jobs, JobOptions{}), resources.NewSlot(fetcher))
	t.Cleanup(view.Close)
	return &viewFixture{view: view, tracks: tracks, jobs: jobs, opener: opener, fetcher: fetcher}
}

func TestTrackView(t *testing.T) {
	t.Run("Open Loads Detail And Audio", func(t *testing.T) {
		f := newViewFixture(t)
		f.tracks.details["track-a"].LatestRender = doneRender(testRenderID)

		if err := f.view.Open(context.Background(), "track-a"); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		s := f.view.Snapshot()
		if s.Detail == nil || s.Detail.Track.ID != "track-a" || s.Busy != "" {
			t.Errorf("unexpected state: %+v", s)
		}
		if !strings.HasPrefix(s.AudioURL, "file://") || s.AudioID != testRenderID {
			t.Errorf("expected audio for latest render, got %q (%s)", s.AudioURL, s.AudioID)
		}
		if f.fetcher.Live() != 1 {
			t.Errorf("expected 1 live handle, got %d", f.fetcher.Live())
		}
	})

	t.Run("Audio Only Refetched When Render Changes", func(t *testing.T) {
		f := newViewFixture(t)
		f.tracks.details["track-a"].LatestRender = doneRender(testRenderID)
		ctx := context.Background()

		f.view.Open(ctx, "track-a")
		f.view.Refresh(ctx)
		if f.opener.count() != 1 {
			t.Errorf("unchanged render should not be refetched, got %d fetches", f.opener.count())
		}

		f.tracks.setRender("track-a", doneRender(otherRenderID))
		if err := f.view.Refresh(ctx); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if f.opener.count() != 2 {
			t.Errorf("expected a second fetch, got %d", f.opener.count())
		}
		if f.fetcher.Live() != 1 {
			t.Errorf("expected exactly 1 live handle, got %d", f.fetcher.Live())
		}
		if s := f.view.Snapshot(); s.AudioID != otherRenderID {
			t.Errorf("expected audio for %s, got %s", otherRenderID, s.AudioID)
		}
	})

	t.Run("Unplayable Render Releases Audio", func(t *testing.T) {
		f := newViewFixture(t)
		f.tracks.details["track-a"].LatestRender = doneRender(testRenderID)
		ctx := context.Background()
		f.view.Open(ctx, "track-a")

		f.tracks.setRender("track-a", &models.Render{ID: otherRenderID, Status: models.StatusProcessing})
		f.view.Refresh(ctx)

		if f.fetcher.Live() != 0 {
			t.Errorf("expected no live handles, got %d", f.fetcher.Live())
		}
		if s := f.view.Snapshot(); s.AudioURL != "" {
			t.Errorf("expected audio cleared, got %q", s.AudioURL)
		}
	})

	t.Run("Stale Load Is Dropped", func(t *testing.T) {
		f := newViewFixture(t)
		gate := make(chan struct{})
		f.tracks.gates["track-a"] = gate
		f.tracks.entered = make(chan string, 4)

		done := make(chan error, 1)
		go func() { done <- f.view.Open(context.Background(), "track-a") }()
		<-f.tracks.entered

		if err := f.view.Open(context.Background(), "track-b"); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		close(gate)

		if err := <-done; !errors.Is(err, shared.ErrSuperseded) {
			t.Errorf("expected ErrSuperseded for the stale load, got %v", err)
		}
		s := f.view.Snapshot()
		if s.TrackID != "track-b" || s.Detail == nil || s.Detail.Track.ID != "track-b" {
			t.Errorf("stale result leaked into view: %+v", s)
		}
	})

	t.Run("Analyze Polls Then Refreshes", func(t *testing.T) {
		f := newViewFixture(t)
		f.jobs.analyses["track-a"] = []models.JobStatus{models.StatusProcessing, models.StatusDone}
		ctx := context.Background()
		f.view.Open(ctx, "track-a")
		before := f.tracks.calls

		var busy []string
		f.view.OnChange(func(s ViewState) { busy = append(busy, s.Busy) })

		analysis, err := f.view.Analyze(ctx)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if analysis.Status != models.StatusDone {
			t.Errorf("unexpected analysis: %+v", analysis)
		}
		if f.tracks.calls != before+1 {
			t.Error("expected a refresh after analysis")
		}
		if len(busy) == 0 || busy[0] != BusyAnalyzing || busy[len(busy)-1] != "" {
			t.Errorf("unexpected busy transitions: %v", busy)
		}
	})

	t.Run("Analyze Error Ends Busy State", func(t *testing.T) {
		f := newViewFixture(t)
		f.jobs.startErrs["track-a"] = errors.New("queue unavailable")
		ctx := context.Background()
		f.view.Open(ctx, "track-a")

		if _, err := f.view.Analyze(ctx); err == nil {
			t.Fatal("expected error")
		}
		s := f.view.Snapshot()
		if s.Busy != "" || s.Err == nil {
			t.Errorf("expected idle view with error, got %+v", s)
		}
	})

	t.Run("Generate Validates Target", func(t *testing.T) {
		f := newViewFixture(t)
		f.view.Open(context.Background(), "track-a")

		if _, err := f.view.Generate(context.Background(), 500, true); !errors.Is(err, shared.ErrInvalidInput) {
			t.Errorf("expected ErrInvalidInput, got %v", err)
		}
	})

	t.Run("Generate Fetches New Audio", func(t *testing.T) {
		f := newViewFixture(t)
		f.jobs.renders = []models.JobStatus{models.StatusProcessing, models.StatusDone}
		ctx := context.Background()
		f.view.Open(ctx, "track-a")
		f.tracks.setRender("track-a", doneRender(testRenderID))

		render, err := f.view.Generate(ctx, 172, true)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if render.ID != testRenderID || f.jobs.renderReq.TargetBPM != 172 {
			t.Errorf("unexpected render: %+v", render)
		}
		if s := f.view.Snapshot(); s.AudioID != testRenderID {
			t.Errorf("expected audio for new render, got %+v", s)
		}
	})

	t.Run("Close Releases Audio And Drops Flows", func(t *testing.T) {
		f := newViewFixture(t)
		f.tracks.details["track-a"].LatestRender = doneRender(testRenderID)
		ctx := context.Background()
		f.view.Open(ctx, "track-a")

		f.view.Close()
		if f.fetcher.Live() != 0 {
			t.Errorf("expected handles released on close, got %d", f.fetcher.Live())
		}
		if err := f.view.Refresh(ctx); !errors.Is(err, shared.ErrSuperseded) {
			t.Errorf("expected refresh after close to be dropped, got %v", err)
		}
	})

	t.Run("No Track Open", func(t *testing.T) {
		f := newViewFixture(t)
		if err := f.view.Refresh(context.Background()); !errors.Is(err, shared.ErrMissingArgument) {
			t.Errorf("expected ErrMissingArgument, got %v", err)
		}
	})
}
