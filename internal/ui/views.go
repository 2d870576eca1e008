package ui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/key"
	"github.com/desertthunder/bpmx/internal/formatter"
	"github.com/desertthunder/bpmx/internal/models"
	"github.com/desertthunder/bpmx/internal/tasks"
)

// View renders the UI based on the current screen.
func (m *Model) View() string {
	switch m.screen {
	case ListScreen:
		return m.renderList()
	case DetailScreen:
		return m.renderDetail()
	case UploadScreen:
		return m.renderUpload()
	case RenderScreen:
		return m.renderForm()
	default:
		return ""
	}
}

func (m *Model) footer(keys ...key.Binding) string {
	var b strings.Builder
	if m.err != nil {
		b.WriteString(styles.err.Render(fmt.Sprintf("Error: %v", m.err)))
		b.WriteString("\n")
	} else if m.status != "" {
		b.WriteString(styles.ok.Render(m.status))
		b.WriteString("\n")
	}
	b.WriteString(m.help.ShortHelpView(keys))
	return b.String()
}

func (m *Model) renderList() string {
	if !m.loaded {
		return fmt.Sprintf("%s Loading tracks...\n", m.spinner.View())
	}
	helpKeys := []key.Binding{m.keys.enter, m.keys.upload, m.keys.refresh, m.keys.quit}
	return fmt.Sprintf("%s\n\n%s", m.trackList.View(), m.footer(helpKeys...))
}

func (m *Model) renderDetail() string {
	var b strings.Builder

	d := m.view.Detail
	switch {
	case d == nil && m.view.Err != nil:
		b.WriteString(styles.err.Render(fmt.Sprintf("Failed to load track: %v", m.view.Err)))
		b.WriteString("\n")
	case d == nil:
		fmt.Fprintf(&b, "%s Loading track...\n", m.spinner.View())
	default:
		b.WriteString(styles.title.Render(d.Track.DisplayTitle()))
		b.WriteString("\n")
		b.WriteString(styles.panel.Render(strings.TrimRight(m.detailBody(d), "\n")))
		b.WriteString("\n")
	}

	if m.view.Busy != "" {
		fmt.Fprintf(&b, "\n%s %s...\n", m.spinner.View(), busyLabel(m.view.Busy))
	} else if d != nil && m.view.Err != nil {
		b.WriteString("\n")
		b.WriteString(styles.err.Render(m.view.Err.Error()))
		b.WriteString("\n")
	}

	if m.view.AudioURL != "" {
		b.WriteString("\n")
		b.WriteString(styles.ok.Render("♪ " + m.view.AudioURL))
		b.WriteString("\n")
	}

	helpKeys := []key.Binding{m.keys.analyze, m.keys.generate, m.keys.play, m.keys.refresh, m.keys.back, m.keys.quit}
	return fmt.Sprintf("%s\n%s", b.String(), m.footer(helpKeys...))
}

func (m *Model) detailBody(d *models.TrackDetail) string {
	var b strings.Builder
	row := func(label, value string) {
		b.WriteString(styles.label.Render(label))
		b.WriteString(value)
		b.WriteString("\n")
	}

	row("File", fmt.Sprintf("%s (%s)", d.Track.SourceFilename, d.Track.MimeType))
	row("Length", formatter.FormatDuration(d.Track.DurationSec))

	if a := d.Analysis; a != nil {
		row("Analysis", statusColor(string(a.Status)).Render(string(a.Status)))
		if a.BPM != nil {
			row("BPM", fmt.Sprintf("%.1f", *a.BPM))
		}
		if a.Confidence != nil {
			row("Confidence", fmt.Sprintf("%.2f", *a.Confidence))
		}
		if a.Error != nil && *a.Error != "" {
			row("", styles.err.Render(*a.Error))
		}
	} else {
		row("Analysis", styles.help.Render("not started"))
	}

	if r := d.LatestRender; r != nil {
		row("Render", statusColor(string(r.Status)).Render(string(r.Status)))
		row("Target", fmt.Sprintf("%.1f bpm", r.TargetBPM))
		if r.Error != nil && *r.Error != "" {
			row("", styles.err.Render(*r.Error))
		}
	} else {
		row("Render", styles.help.Render("none"))
	}
	return b.String()
}

func busyLabel(busy string) string {
	switch busy {
	case tasks.BusyAnalyzing:
		return "Analyzing tempo"
	case tasks.BusyRendering:
		return "Rendering"
	default:
		return "Loading"
	}
}

func (m *Model) renderUpload() string {
	var b strings.Builder
	b.WriteString(styles.title.Render("Upload a track"))
	b.WriteString("\n")

	if !m.uploading {
		b.WriteString(m.input.View())
		b.WriteString("\n\n")
		b.WriteString(m.footer(m.keys.enter, m.keys.back))
		return b.String()
	}

	switch m.upload.Phase {
	case tasks.Transfer:
		b.WriteString(m.progress.ViewAs(float64(m.upload.Percent) / 100))
		b.WriteString("\n")
	default:
		fmt.Fprintf(&b, "%s %s\n", m.spinner.View(), m.upload.Phase)
	}
	if m.upload.Message != "" {
		b.WriteString(styles.help.Render(m.upload.Message))
		b.WriteString("\n")
	}
	return b.String()
}

func (m *Model) renderForm() string {
	var b strings.Builder
	b.WriteString(styles.title.Render("Generate a render"))
	b.WriteString("\n")

	fmt.Fprintf(&b, "%s%s\n", styles.label.Render("Target"), m.target)
	fmt.Fprintf(&b, "%s%s\n", styles.label.Render("Beat"), map[bool]string{false: "one per step", true: "one per stride"}[m.stride])
	fmt.Fprintf(&b, "%s%s\n\n", styles.label.Render("Pitch"), map[bool]string{false: "follow tempo", true: "preserve"}[m.preservePitch])
	b.WriteString(m.input.View())
	b.WriteString("\n\n")

	if m.target != BPMTarget && m.err == nil {
		if bpm, err := m.targetBPM(); err == nil {
			b.WriteString(styles.ok.Render(fmt.Sprintf("→ %.1f bpm", bpm)))
			b.WriteString("\n")
		}
	}

	stride := key.NewBinding(key.WithKeys("ctrl+s"), key.WithHelp("ctrl+s", "stride"))
	b.WriteString(m.footer(m.keys.enter, m.keys.mode, stride, m.keys.pitch, m.keys.back))
	return b.String()
}
