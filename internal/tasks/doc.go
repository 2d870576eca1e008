// Package tasks drives asynchronous backend work for the bpmx client with progress reporting.
//
// # Job polling
//
// [Poll] turns a fire-and-forget backend job into an awaitable result. The first status fetch is
// immediate; later fetches are spaced by a fixed interval measured from each prior resolution.
// Terminal statuses are exactly done and failed. The elapsed time is checked before and after
// every wait, so once the budget is spent [Poll] returns a [shared.TimeoutError] without another
// fetch. Fetch errors are never retried.
//
// # Uploads
//
// [UploadOrchestrator] runs three phases, each aborting the rest on failure:
//
//  1. Authorize: request a signed URL and object key; both must be present
//  2. Transfer: PUT the bytes to the signed URL with the content type declared in step 1
//  3. Register: create the track record for the stored object
//
// Transfer progress is reported as a non-decreasing percentage ending at 100. When the size is
// unknown the percentage ramps by 5 every 150ms up to 95. A registration failure after a
// successful transfer leaves the object in storage; the optional [UploadJournal] marks it orphaned.
//
// # Jobs
//
// [Engine] starts analysis and render jobs and polls them. [Engine.AnalyzeAll] runs a worker pool
// with rate-limited job starts and reports per-track results.
//
// # Views
//
// [TrackView] is the headless model behind a track screen. Every flow takes a [Ticket] from the
// view's [Guard] and commits only while it is current; opening another track or closing the view
// drops in-flight results silently.
//
// # Progress Reporting
//
// [ProgressUpdate] carries phase, step counters, a transfer percentage and a message.
// Updates use select with default to prevent blocking, except the final 100% of a transfer,
// which waits for the consumer or the context.
package tasks
