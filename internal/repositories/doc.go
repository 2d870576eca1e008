// Package repositories implements SQLite persistence for the client's local state.
//
// Key Implementations:
//   - [UploadRepository] : journal of upload attempts, implementing tasks.UploadJournal. Attempts
//     whose object was stored but never registered are kept with status orphaned.
//   - [TrackRepository] : local copy of the backend track listing for offline display
//   - [TrackCacheAdapter] : caches freshly uploaded tracks, ignoring duplicates
//
// Repositories take a *sql.DB opened by shared.OpenDatabase, with migrations already applied.
package repositories
