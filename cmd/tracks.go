package main

import (
	"context"
	"fmt"

	"github.com/desertthunder/bpmx/internal/formatter"
	"github.com/desertthunder/bpmx/internal/models"
	"github.com/desertthunder/bpmx/internal/repositories"
	"github.com/desertthunder/bpmx/internal/shared"
	"github.com/desertthunder/bpmx/internal/tasks"
	"github.com/urfave/cli/v3"
)

// TracksList prints the user's tracks from the backend, or from the local cache with --offline.
//
// An online listing replaces the cache so a later --offline run sees the same rows.
func (r *Runner) TracksList(ctx context.Context, cmd *cli.Command) error {
	format, err := formatter.ParseFormat(cmd.String("format"))
	if err != nil {
		return err
	}

	var tracks []models.Track
	if cmd.Bool("offline") {
		if tracks, err = r.cachedTracks(ctx); err != nil {
			return err
		}
	} else {
		if tracks, err = r.backend.ListTracks(ctx); err != nil {
			return err
		}
		r.logger.Debug("fetched tracks", "count", len(tracks))

		if db, err := r.database(); err == nil {
			if err := repositories.NewTrackRepository(db).Replace(ctx, tracks); err != nil {
				r.logger.Warn("failed to cache track listing", "error", err)
			}
		} else {
			r.logger.Warn("track cache unavailable", "error", err)
		}
	}

	if out := cmd.String("output"); out != "" {
		path, err := formatter.WriteExport(tracks, format, out)
		if err != nil {
			return err
		}
		return r.writePlain("✓ Wrote %d tracks to %s\n", len(tracks), path)
	}

	data, err := formatter.Export(tracks, format)
	if err != nil {
		return err
	}
	if _, err := r.output.Write(data); err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}
	return nil
}

func (r *Runner) cachedTracks(ctx context.Context) ([]models.Track, error) {
	db, err := r.database()
	if err != nil {
		return nil, err
	}

	cached, err := repositories.NewTrackRepository(db).List(ctx)
	if err != nil {
		return nil, err
	}

	tracks := make([]models.Track, len(cached))
	for i, c := range cached {
		tracks[i] = c.Track
	}
	return tracks, nil
}

// TracksShow prints one track with its analysis and latest render.
func (r *Runner) TracksShow(ctx context.Context, cmd *cli.Command) error {
	trackID := cmd.StringArg("id")
	if trackID == "" {
		return fmt.Errorf("%w: track id", shared.ErrMissingArgument)
	}

	detail, err := r.backend.GetTrack(ctx, trackID)
	if err != nil {
		return err
	}

	if cmd.Bool("json") {
		return r.writeJSON(detail, true)
	}
	return r.writePlain("%s", formatter.FormatDetail(detail))
}

// TracksUpload sends a local audio file through a signed URL and registers it as a track.
func (r *Runner) TracksUpload(ctx context.Context, cmd *cli.Command) error {
	path := cmd.StringArg("path")
	if path == "" {
		return fmt.Errorf("%w: file path", shared.ErrMissingArgument)
	}

	file, err := tasks.OpenUploadFile(path, cmd.String("mime"))
	if err != nil {
		return err
	}
	defer file.Close()

	var journal tasks.UploadJournal
	if repo := r.uploads(); repo != nil {
		journal = repo
	}
	orchestrator := tasks.NewUploadOrchestrator(r.backend, r.storage, journal, r.logger)

	meta := tasks.UploadMetadata{Title: cmd.String("title")}

	r.logger.Info("uploading", "file", file.Name, "mime_type", file.MimeType, "size", file.Size)
	progressCh := make(chan tasks.ProgressUpdate, 50)
	done := r.drain(progressCh, r.printUploadProgress)

	track, err := orchestrator.Upload(ctx, file, meta, progressCh)
	close(progressCh)
	<-done

	if err != nil {
		r.writePlain("\n")
		return err
	}

	if db, err := r.database(); err == nil {
		if err := repositories.NewTrackCacheAdapter(repositories.NewTrackRepository(db)).CacheTrack(ctx, *track); err != nil {
			r.logger.Warn("failed to cache uploaded track", "track_id", track.ID, "error", err)
		}
	}

	r.writePlain("\n✓ Uploaded %s\n", track.DisplayTitle())
	r.writePlain("Track ID: %s\n", track.ID)

	if !cmd.Bool("analyze") {
		return nil
	}
	return r.analyzeOne(ctx, r.engine, track.ID, false)
}

func (r *Runner) printUploadProgress(update tasks.ProgressUpdate) {
	switch update.Phase {
	case tasks.Authorize:
		r.writePlain("🔑 %s\n", update.Message)
	case tasks.Transfer:
		r.writePlain("\r📤 Uploading %3d%%", update.Percent)
	case tasks.Register:
		r.writePlain("\n📝 %s\n", update.Message)
	}
}

// TracksOrphans lists uploads whose object was stored but never registered.
func (r *Runner) TracksOrphans(ctx context.Context, cmd *cli.Command) error {
	db, err := r.database()
	if err != nil {
		return err
	}
	repo := repositories.NewUploadRepository(db)

	orphans, err := repo.Orphans(ctx)
	if err != nil {
		return err
	}

	if cmd.Bool("json") {
		return r.writeJSON(orphans, true)
	}

	if len(orphans) == 0 {
		return r.writePlain("No orphaned uploads.\n")
	}

	r.writePlainHeader(fmt.Sprintf("Orphaned uploads: %d", len(orphans)))
	for _, o := range orphans {
		r.writePlain("%s  %s\n", o.UpdatedAt.Local().Format("2006-01-02 15:04"), o.Filename)
		r.writePlain("  object: %s\n", o.ObjectKey)
		if o.Error != "" {
			r.writePlain("  error:  %s\n", o.Error)
		}
	}

	if !cmd.Bool("forget") {
		return nil
	}

	for _, o := range orphans {
		if err := repo.Delete(ctx, o.ID); err != nil {
			return err
		}
	}
	return r.writePlainln("✓ Removed %d entries from the journal", len(orphans))
}
