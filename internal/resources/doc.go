// Package resources turns protected render audio into local, lifecycle-managed handles.
//
// [Fetcher.FetchAsHandle] performs an authenticated GET of /api/render-files/{id} (the bearer
// token goes in the Authorization header, never the URL) and streams the bytes into a file under
// the cache directory. The resulting [Handle] exposes a file:// URL and must be released, which
// removes the file.
//
// A [Slot] owns at most one handle for a subject. Loading a new render releases the previous
// handle first; a load overtaken by a newer Load, Clear or Close releases what it fetched and
// reports [shared.ErrSuperseded].
package resources
