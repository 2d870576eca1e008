package ui

import (
	tea "github.com/charmbracelet/bubbletea"
	"github.com/desertthunder/bpmx/internal/models"
	"github.com/desertthunder/bpmx/internal/tasks"
)

// MsgKind enumerates all message types in the application.
type MsgKind int

// Msg represents all possible messages in the TUI (Elm-style message union).
type Msg struct {
	kind MsgKind
	data any
}

var (
	_ tea.Msg = Msg{}
)

const (
	MsgTracksFetched MsgKind = iota
	MsgViewChanged
	MsgProgressUpdate
	MsgUploadComplete
	MsgJobComplete
	MsgPlayed
)

type tracksFetched struct {
	tracks []models.Track
	err    error
}

type uploadComplete struct {
	track *models.Track
	err   error
}

type jobComplete struct {
	job string
	err error
}

// tracksFetchedMsg is the constructor for [MsgTracksFetched]
func tracksFetchedMsg(tracks []models.Track, err error) Msg {
	return Msg{kind: MsgTracksFetched, data: tracksFetched{tracks, err}}
}

// viewChangedMsg is the constructor for [MsgViewChanged]
func viewChangedMsg(state tasks.ViewState) Msg {
	return Msg{kind: MsgViewChanged, data: state}
}

// progressUpdateMsg is the constructor for [MsgProgressUpdate]
func progressUpdateMsg(update tasks.ProgressUpdate) Msg {
	return Msg{kind: MsgProgressUpdate, data: update}
}

// uploadCompleteMsg is the constructor for [MsgUploadComplete]
func uploadCompleteMsg(track *models.Track, err error) Msg {
	return Msg{kind: MsgUploadComplete, data: uploadComplete{track, err}}
}

// jobCompleteMsg is the constructor for [MsgJobComplete]
func jobCompleteMsg(job string, err error) Msg {
	return Msg{kind: MsgJobComplete, data: jobComplete{job, err}}
}

// playedMsg is the constructor for [MsgPlayed]
func playedMsg(err error) Msg {
	return Msg{kind: MsgPlayed, data: err}
}
