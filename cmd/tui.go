package main

import (
	"context"
	"fmt"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/desertthunder/bpmx/internal/repositories"
	"github.com/desertthunder/bpmx/internal/resources"
	"github.com/desertthunder/bpmx/internal/shared"
	"github.com/desertthunder/bpmx/internal/tasks"
	"github.com/desertthunder/bpmx/internal/ui"
	"github.com/urfave/cli/v3"
)

// TUI launches the interactive terminal UI.
func (r *Runner) TUI(ctx context.Context, cmd *cli.Command) error {
	if _, err := r.creds.Token(); err != nil {
		return fmt.Errorf("%w: run `bpmx auth login` first", err)
	}

	// Redirect logs to file to avoid interfering with TUI rendering
	fileLogger, err := shared.NewFileLogger(r.config.Log.File)
	if err != nil {
		return fmt.Errorf("failed to create file logger: %w", err)
	}
	r.SetLogger(fileLogger)

	if _, err := r.fetcher.Purge(); err != nil {
		r.logger.Warn("failed to purge audio cache", "dir", r.fetcher.Dir(), "error", err)
	}

	var journal tasks.UploadJournal
	if repo := r.uploads(); repo != nil {
		journal = repo
	}

	opts := ui.Options{
		Tracks:   r.backend,
		Uploader: tasks.NewUploadOrchestrator(r.backend, r.storage, journal, r.logger),
		Open:     shared.OpenURL,
		Logger:   r.logger,
	}
	if db, err := r.database(); err == nil {
		opts.Cache = repositories.NewTrackCacheAdapter(repositories.NewTrackRepository(db))
	}

	view := tasks.NewTrackView(r.backend, r.engine, resources.NewSlot(r.fetcher))
	defer view.Close()
	opts.View = view

	p := tea.NewProgram(ui.NewModel(ctx, opts), tea.WithContext(ctx))
	if _, err := p.Run(); err != nil {
		return fmt.Errorf("error running TUI: %w", err)
	}

	return nil
}
