package repositories

import (
	"context"
	"fmt"

	"github.com/desertthunder/bpmx/internal/models"
)

// TrackCacheAdapter caches tracks as they are created so the offline listing stays current
// between full refreshes.
type TrackCacheAdapter struct {
	repo *TrackRepository
}

// NewTrackCacheAdapter creates a new TrackCacheAdapter with the given repository
func NewTrackCacheAdapter(repo *TrackRepository) *TrackCacheAdapter {
	return &TrackCacheAdapter{repo: repo}
}

// CacheTrack stores track unless a row for it already exists.
func (a *TrackCacheAdapter) CacheTrack(ctx context.Context, track models.Track) error {
	if existing, err := a.repo.Get(ctx, track.ID); err == nil && existing != nil {
		return nil
	}

	if err := a.repo.Upsert(ctx, track); err != nil {
		return fmt.Errorf("failed to cache track: %w", err)
	}
	return nil
}
