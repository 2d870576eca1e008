package ui

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/list"
	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/log"
	"github.com/desertthunder/bpmx/internal/models"
	"github.com/desertthunder/bpmx/internal/shared"
	"github.com/desertthunder/bpmx/internal/tasks"
)

// Screen is the currently displayed view.
type Screen int

const (
	ListScreen Screen = iota
	DetailScreen
	UploadScreen
	RenderScreen
)

// TargetMode selects how the render form interprets its input.
type TargetMode int

const (
	CadenceTarget TargetMode = iota
	PaceTarget
	BPMTarget
)

func (t TargetMode) String() string {
	switch t {
	case CadenceTarget:
		return "cadence (spm)"
	case PaceTarget:
		return "pace (m:ss / mile)"
	default:
		return "bpm"
	}
}

// TrackLister returns the user's tracks.
type TrackLister interface {
	ListTracks(ctx context.Context) ([]models.Track, error)
}

// Uploader runs one upload; implemented by [tasks.UploadOrchestrator].
type Uploader interface {
	Upload(ctx context.Context, file tasks.UploadFile, meta tasks.UploadMetadata, progress chan<- tasks.ProgressUpdate) (*models.Track, error)
}

// TrackCacher records newly created tracks locally.
type TrackCacher interface {
	CacheTrack(ctx context.Context, track models.Track) error
}

// Options wires the model to its services. Cache, Open and Logger are optional.
type Options struct {
	Tracks   TrackLister
	View     *tasks.TrackView
	Uploader Uploader
	Cache    TrackCacher
	Open     func(target string) error
	Logger   *log.Logger
}

// Model represents the TUI application state.
type Model struct {
	ctx    context.Context
	screen Screen
	opts   Options
	logger *log.Logger

	width  int
	height int

	trackList list.Model
	tracks    []models.Track
	loaded    bool

	view    tasks.ViewState
	changed chan struct{}

	input         textinput.Model
	target        TargetMode
	stride        bool
	preservePitch bool

	uploading    bool
	progressChan chan tasks.ProgressUpdate
	upload       tasks.ProgressUpdate
	uploaded     *models.Track
	uploadErr    error

	spinner  spinner.Model
	progress progress.Model
	status   string
	err      error
	help     help.Model
	keys     keyMap
}

// NewModel creates a new TUI model with the provided dependencies.
func NewModel(ctx context.Context, opts Options) *Model {
	if opts.Open == nil {
		opts.Open = shared.OpenURL
	}
	logger := opts.Logger
	if logger == nil {
		logger = log.Default()
	}

	m := &Model{
		ctx:           ctx,
		screen:        ListScreen,
		opts:          opts,
		logger:        logger,
		changed:       make(chan struct{}, 1),
		input:         textinput.New(),
		preservePitch: true,
		spinner:       spinner.New(spinner.WithSpinner(spinner.Dot)),
		progress:      progress.New(progress.WithDefaultGradient()),
		help:          help.New(),
		keys:          newKeyMap(),
	}

	m.trackList = list.New(nil, list.NewDefaultDelegate(), 0, 0)
	m.trackList.Title = "Tracks"

	if opts.View != nil {
		opts.View.OnChange(func(tasks.ViewState) {
			select {
			case m.changed <- struct{}{}:
			default:
			}
		})
	}
	return m
}

// Init initializes the TUI by fetching the track list.
func (m *Model) Init() tea.Cmd {
	return tea.Batch(m.fetchTracks(), m.waitForView(), m.spinner.Tick)
}

// Update handles incoming messages and updates the model state.
func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.trackList.SetSize(msg.Width-4, msg.Height-6)
		m.progress.Width = min(60, max(10, msg.Width-10))
		return m, nil

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case tea.KeyMsg:
		switch m.screen {
		case ListScreen:
			return m.handleListKeys(msg)
		case DetailScreen:
			return m.handleDetailKeys(msg)
		case UploadScreen:
			return m.handleUploadKeys(msg)
		case RenderScreen:
			return m.handleRenderKeys(msg)
		}

	case Msg:
		return m.handleMsg(msg)
	}

	if m.screen == ListScreen {
		var cmd tea.Cmd
		m.trackList, cmd = m.trackList.Update(msg)
		return m, cmd
	}
	return m, nil
}

func (m *Model) handleMsg(msg Msg) (tea.Model, tea.Cmd) {
	switch msg.kind {
	case MsgTracksFetched:
		data := msg.data.(tracksFetched)
		m.loaded = true
		if data.err != nil {
			m.err = data.err
			return m, nil
		}
		m.err = nil
		m.tracks = data.tracks
		return m, m.trackList.SetItems(trackItems(m.tracks))

	case MsgViewChanged:
		m.view = msg.data.(tasks.ViewState)
		return m, m.waitForView()

	case MsgProgressUpdate:
		m.upload = msg.data.(tasks.ProgressUpdate)
		return m, m.waitForProgress()

	case MsgUploadComplete:
		data := msg.data.(uploadComplete)
		m.uploading = false
		m.progressChan = nil
		if data.err != nil {
			m.err = data.err
			return m, nil
		}
		m.err = nil
		m.tracks = append([]models.Track{*data.track}, m.tracks...)
		m.status = fmt.Sprintf("Uploaded %s", data.track.DisplayTitle())
		m.screen = ListScreen
		return m, m.trackList.SetItems(trackItems(m.tracks))

	case MsgJobComplete:
		data := msg.data.(jobComplete)
		switch {
		case errors.Is(data.err, shared.ErrSuperseded):
		case data.err != nil:
			m.logger.Warn("job failed", "job", data.job, "error", data.err)
		default:
			m.logger.Info("job finished", "job", data.job, "track_id", m.view.TrackID)
		}
		return m, nil

	case MsgPlayed:
		if err, _ := msg.data.(error); err != nil {
			m.err = err
		} else {
			m.status = "Opened render in the system player"
		}
		return m, nil
	}
	return m, nil
}

func (m *Model) handleListKeys(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if m.trackList.FilterState() == list.Filtering {
		var cmd tea.Cmd
		m.trackList, cmd = m.trackList.Update(msg)
		return m, cmd
	}

	switch {
	case key.Matches(msg, m.keys.quit):
		return m, tea.Quit
	case key.Matches(msg, m.keys.refresh):
		m.status = ""
		return m, m.fetchTracks()
	case key.Matches(msg, m.keys.upload):
		if m.opts.Uploader == nil {
			return m, nil
		}
		m.screen = UploadScreen
		m.err, m.uploadErr, m.uploaded = nil, nil, nil
		m.upload = tasks.ProgressUpdate{}
		m.resetInput("path to .mp3, .wav, .m4a or .aac")
		return m, textinput.Blink
	case key.Matches(msg, m.keys.enter):
		if item, ok := m.trackList.SelectedItem().(trackItem); ok {
			m.screen = DetailScreen
			m.status, m.err = "", nil
			return m, m.openTrack(item.track.ID)
		}
		return m, nil
	}

	var cmd tea.Cmd
	m.trackList, cmd = m.trackList.Update(msg)
	return m, cmd
}

func (m *Model) handleDetailKeys(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.quit):
		return m, tea.Quit
	case key.Matches(msg, m.keys.back):
		m.screen = ListScreen
		m.status, m.err = "", nil
		return m, nil
	case key.Matches(msg, m.keys.refresh):
		return m, m.runJob("refresh", func(ctx context.Context) error { return m.opts.View.Refresh(ctx) })
	case key.Matches(msg, m.keys.analyze):
		if m.view.Busy != "" {
			return m, nil
		}
		return m, m.runJob("analyze", func(ctx context.Context) error {
			_, err := m.opts.View.Analyze(ctx)
			return err
		})
	case key.Matches(msg, m.keys.generate):
		if m.view.Busy != "" {
			return m, nil
		}
		m.screen = RenderScreen
		m.err = nil
		m.resetInput(m.placeholder())
		return m, textinput.Blink
	case key.Matches(msg, m.keys.play):
		return m, m.play()
	}
	return m, nil
}

func (m *Model) handleUploadKeys(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if m.uploading {
		if msg.Type == tea.KeyCtrlC {
			return m, tea.Quit
		}
		return m, nil
	}

	switch msg.Type {
	case tea.KeyCtrlC:
		return m, tea.Quit
	case tea.KeyEsc:
		m.screen = ListScreen
		m.input.Blur()
		return m, nil
	case tea.KeyEnter:
		return m, m.startUpload(strings.TrimSpace(m.input.Value()))
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m *Model) handleRenderKeys(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case msg.Type == tea.KeyCtrlC:
		return m, tea.Quit
	case msg.Type == tea.KeyEsc:
		m.screen = DetailScreen
		m.input.Blur()
		m.err = nil
		return m, nil
	case key.Matches(msg, m.keys.mode):
		m.target = (m.target + 1) % 3
		m.resetInput(m.placeholder())
		return m, nil
	case key.Matches(msg, m.keys.pitch):
		m.preservePitch = !m.preservePitch
		return m, nil
	case msg.Type == tea.KeyCtrlS:
		m.stride = !m.stride
		return m, nil
	case msg.Type == tea.KeyEnter:
		bpm, err := m.targetBPM()
		if err != nil {
			m.err = err
			return m, nil
		}
		m.err = nil
		m.screen = DetailScreen
		m.input.Blur()
		preserve := m.preservePitch
		return m, m.runJob("render", func(ctx context.Context) error {
			_, err := m.opts.View.Generate(ctx, bpm, preserve)
			return err
		})
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m *Model) resetInput(placeholder string) {
	m.input.Reset()
	m.input.Placeholder = placeholder
	m.input.Focus()
}

func (m *Model) placeholder() string {
	switch m.target {
	case CadenceTarget:
		return "170"
	case PaceTarget:
		return "8:30"
	default:
		return "128"
	}
}

// targetBPM converts the render form into a target tempo.
func (m *Model) targetBPM() (float64, error) {
	value := strings.TrimSpace(m.input.Value())
	beat := models.StepBeat
	if m.stride {
		beat = models.StrideBeat
	}

	switch m.target {
	case CadenceTarget:
		cadence, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return 0, fmt.Errorf("%w: cadence must be a number", shared.ErrInvalidInput)
		}
		return models.TargetBPM(models.TempoInput{Mode: models.CadenceMode, Beat: beat, Cadence: cadence})
	case PaceTarget:
		return models.TargetBPM(models.TempoInput{Mode: models.PaceMode, Beat: beat, Pace: value})
	default:
		bpm, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return 0, fmt.Errorf("%w: bpm must be a number", shared.ErrInvalidInput)
		}
		if err := models.ValidateTargetBPM(bpm); err != nil {
			return 0, err
		}
		return bpm, nil
	}
}

func (m *Model) fetchTracks() tea.Cmd {
	return func() tea.Msg {
		tracks, err := m.opts.Tracks.ListTracks(m.ctx)
		return tracksFetchedMsg(tracks, err)
	}
}

func (m *Model) openTrack(trackID string) tea.Cmd {
	return m.runJob("open", func(ctx context.Context) error { return m.opts.View.Open(ctx, trackID) })
}

func (m *Model) runJob(name string, fn func(context.Context) error) tea.Cmd {
	return func() tea.Msg {
		return jobCompleteMsg(name, fn(m.ctx))
	}
}

// waitForView blocks until the track view commits a change, then delivers its snapshot.
func (m *Model) waitForView() tea.Cmd {
	if m.opts.View == nil {
		return nil
	}
	return func() tea.Msg {
		select {
		case <-m.changed:
			return viewChangedMsg(m.opts.View.Snapshot())
		case <-m.ctx.Done():
			return nil
		}
	}
}

func (m *Model) play() tea.Cmd {
	if m.view.AudioURL == "" {
		m.status = "No playable render yet"
		return nil
	}
	target := m.view.AudioURL
	return func() tea.Msg {
		return playedMsg(m.opts.Open(target))
	}
}

func (m *Model) startUpload(path string) tea.Cmd {
	if path == "" {
		m.err = fmt.Errorf("%w: a file path is required", shared.ErrMissingArgument)
		return nil
	}

	file, err := tasks.OpenUploadFile(shared.ExpandPath(path), "")
	if err != nil {
		m.err = err
		return nil
	}

	m.err = nil
	m.uploading = true
	m.input.Blur()
	m.progressChan = make(chan tasks.ProgressUpdate, 50)
	ch := m.progressChan

	go func() {
		defer file.Close()
		track, err := m.opts.Uploader.Upload(m.ctx, file, tasks.UploadMetadata{}, ch)
		if err == nil && m.opts.Cache != nil {
			if cerr := m.opts.Cache.CacheTrack(m.ctx, *track); cerr != nil {
				m.logger.Warn("failed to cache uploaded track", "track_id", track.ID, "error", cerr)
			}
		}
		m.uploaded, m.uploadErr = track, err
		close(ch)
	}()

	return m.waitForProgress()
}

func (m *Model) waitForProgress() tea.Cmd {
	ch := m.progressChan
	return func() tea.Msg {
		if ch == nil {
			return uploadCompleteMsg(m.uploaded, m.uploadErr)
		}

		update, ok := <-ch
		if !ok {
			return uploadCompleteMsg(m.uploaded, m.uploadErr)
		}
		return progressUpdateMsg(update)
	}
}
