// package formatter renders track listings and track details as text, CSV, Markdown or JSON
package formatter

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/desertthunder/bpmx/internal/models"
	"github.com/desertthunder/bpmx/internal/shared"
)

// Format names an output encoding for track listings.
type Format string

const (
	FormatText     Format = "text"
	FormatCSV      Format = "csv"
	FormatMarkdown Format = "markdown"
	FormatJSON     Format = "json"
)

// Formats lists the accepted --format values.
var Formats = []Format{FormatText, FormatCSV, FormatMarkdown, FormatJSON}

// ParseFormat accepts a format name, with "md" as an alias for markdown.
func ParseFormat(s string) (Format, error) {
	switch f := Format(strings.ToLower(strings.TrimSpace(s))); f {
	case "", FormatText:
		return FormatText, nil
	case "md":
		return FormatMarkdown, nil
	case FormatCSV, FormatMarkdown, FormatJSON:
		return f, nil
	}
	return "", fmt.Errorf("%w: unknown format %q", shared.ErrInvalidArgument, s)
}

// Extension is the file suffix used when writing a format to disk.
func (f Format) Extension() string {
	switch f {
	case FormatCSV:
		return ".csv"
	case FormatMarkdown:
		return ".md"
	case FormatJSON:
		return ".json"
	default:
		return ".txt"
	}
}

// FormatDuration renders seconds as m:ss, or "-" when unknown.
func FormatDuration(sec *int) string {
	if sec == nil || *sec < 0 {
		return "-"
	}
	return fmt.Sprintf("%d:%02d", *sec/60, *sec%60)
}

func title(t models.Track) string {
	if t.Title == nil {
		return ""
	}
	return *t.Title
}

// Export encodes tracks in the given format.
func Export(tracks []models.Track, format Format) ([]byte, error) {
	switch format {
	case FormatCSV:
		return ExportToCSV(tracks)
	case FormatMarkdown:
		return ExportToMarkdown(tracks)
	case FormatJSON:
		return ExportToJSON(tracks)
	case FormatText, "":
		return ExportToText(tracks)
	}
	return nil, fmt.Errorf("%w: unknown format %q", shared.ErrInvalidArgument, format)
}

// ExportToCSV converts tracks to CSV with columns: ID, Title, Filename, MIME Type, Duration, Object Key, Created
func ExportToCSV(tracks []models.Track) ([]byte, error) {
	var buf bytes.Buffer
	writer := csv.NewWriter(&buf)

	headers := []string{"ID", "Title", "Filename", "MIME Type", "Duration", "Object Key", "Created"}
	if err := writer.Write(headers); err != nil {
		return nil, fmt.Errorf("failed to write CSV headers: %w", err)
	}

	for _, track := range tracks {
		duration := ""
		if track.DurationSec != nil {
			duration = strconv.Itoa(*track.DurationSec)
		}
		record := []string{
			track.ID,
			title(track),
			track.SourceFilename,
			track.MimeType,
			duration,
			track.OriginalObjectKey,
			track.CreatedAt,
		}
		if err := writer.Write(record); err != nil {
			return nil, fmt.Errorf("failed to write CSV record: %w", err)
		}
	}

	writer.Flush()
	if err := writer.Error(); err != nil {
		return nil, fmt.Errorf("CSV writer error: %w", err)
	}

	return buf.Bytes(), nil
}

// ExportToMarkdown converts tracks to a numbered Markdown list.
func ExportToMarkdown(tracks []models.Track) ([]byte, error) {
	var buf bytes.Buffer

	buf.WriteString("# Tracks\n\n")
	buf.WriteString(fmt.Sprintf("**Count**: %d\n\n", len(tracks)))

	for i, track := range tracks {
		filePart := ""
		if title(track) != "" {
			filePart = fmt.Sprintf(" (%s)", track.SourceFilename)
		}
		buf.WriteString(fmt.Sprintf("%d. %s%s [%s] `%s`\n", i+1, track.DisplayTitle(), filePart, FormatDuration(track.DurationSec), track.ID))
	}

	return buf.Bytes(), nil
}

// ExportToText renders tracks as a bordered table.
func ExportToText(tracks []models.Track) ([]byte, error) {
	if len(tracks) == 0 {
		return []byte("No tracks.\n"), nil
	}

	rows := make([][]string, 0, len(tracks))
	for _, track := range tracks {
		rows = append(rows, []string{track.ID, track.DisplayTitle(), track.MimeType, FormatDuration(track.DurationSec), track.CreatedAt})
	}

	t := table.New().
		Border(lipgloss.NormalBorder()).
		Headers("ID", "TITLE", "TYPE", "LENGTH", "CREATED").
		Rows(rows...)

	return []byte(t.String() + "\n"), nil
}

// ExportToJSON encodes tracks as an indented JSON array.
func ExportToJSON(tracks []models.Track) ([]byte, error) {
	if tracks == nil {
		tracks = []models.Track{}
	}
	data, err := json.MarshalIndent(tracks, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to encode tracks: %w", err)
	}
	return append(data, '\n'), nil
}

// FormatDetail renders a track with its analysis and latest render as plain text.
func FormatDetail(d *models.TrackDetail) string {
	var b strings.Builder

	t := d.Track
	fmt.Fprintf(&b, "Track:    %s\n", t.DisplayTitle())
	fmt.Fprintf(&b, "ID:       %s\n", t.ID)
	fmt.Fprintf(&b, "File:     %s (%s)\n", t.SourceFilename, t.MimeType)
	fmt.Fprintf(&b, "Length:   %s\n", FormatDuration(t.DurationSec))
	if t.CreatedAt != "" {
		fmt.Fprintf(&b, "Created:  %s\n", t.CreatedAt)
	}

	b.WriteString("\n")
	b.WriteString(FormatAnalysis(d.Analysis))
	b.WriteString(FormatRender(d.LatestRender))
	return b.String()
}

// FormatAnalysis renders an analysis summary line block.
func FormatAnalysis(a *models.Analysis) string {
	if a == nil {
		return "Analysis: none\n"
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Analysis: %s\n", a.Status)
	if a.BPM != nil {
		fmt.Fprintf(&b, "  BPM:        %.1f\n", *a.BPM)
	}
	if a.Confidence != nil {
		fmt.Fprintf(&b, "  Confidence: %.2f\n", *a.Confidence)
	}
	if a.Error != nil && *a.Error != "" {
		fmt.Fprintf(&b, "  Error:      %s\n", *a.Error)
	}
	return b.String()
}

// FormatRender renders a render summary line block.
func FormatRender(r *models.Render) string {
	if r == nil {
		return "Render:   none\n"
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Render:   %s\n", r.Status)
	fmt.Fprintf(&b, "  ID:         %s\n", r.ID)
	fmt.Fprintf(&b, "  Target BPM: %.1f\n", r.TargetBPM)
	if r.TempoRatio != nil {
		fmt.Fprintf(&b, "  Ratio:      %.3f\n", *r.TempoRatio)
	}
	fmt.Fprintf(&b, "  Pitch:      %s\n", pitchLabel(r.PreservePitch))
	if r.Error != nil && *r.Error != "" {
		fmt.Fprintf(&b, "  Error:      %s\n", *r.Error)
	}
	return b.String()
}

func pitchLabel(preserve bool) string {
	if preserve {
		return "preserved"
	}
	return "shifted"
}

// WriteExport writes tracks to path in the given format.
//
// Defaults to tracks{ext} in the working directory.
func WriteExport(tracks []models.Track, format Format, path string) (string, error) {
	if path == "" {
		path = "tracks" + format.Extension()
	}

	data, err := Export(tracks, format)
	if err != nil {
		return "", err
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return "", fmt.Errorf("failed to write export file: %w", err)
	}

	return path, nil
}
