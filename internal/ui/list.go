package ui

import (
	"fmt"

	"github.com/charmbracelet/bubbles/list"
	"github.com/desertthunder/bpmx/internal/formatter"
	"github.com/desertthunder/bpmx/internal/models"
)

var _ list.Item = trackItem{}

// trackItem wraps [models.Track] to implement [list.Item].
type trackItem struct {
	track models.Track
}

func (i trackItem) FilterValue() string { return i.track.DisplayTitle() }
func (i trackItem) Title() string       { return i.track.DisplayTitle() }
func (i trackItem) Description() string {
	desc := fmt.Sprintf("%s • %s", i.track.MimeType, formatter.FormatDuration(i.track.DurationSec))
	if i.track.Title != nil && *i.track.Title != "" {
		desc = fmt.Sprintf("%s • %s", i.track.SourceFilename, desc)
	}
	return desc
}

func trackItems(tracks []models.Track) []list.Item {
	items := make([]list.Item, len(tracks))
	for i, t := range tracks {
		items[i] = trackItem{track: t}
	}
	return items
}
