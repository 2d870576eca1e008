// package models defines the data model shared by the bpmx client and its local cache.
package models

import (
	"time"
)

// JobStatus is the lifecycle state of a backend analysis or render job.
type JobStatus string

const (
	StatusQueued     JobStatus = "queued"
	StatusPending    JobStatus = "pending"
	StatusProcessing JobStatus = "processing"
	StatusDone       JobStatus = "done"
	StatusFailed     JobStatus = "failed"
)

// IsTerminal reports whether no further state change will occur.
//
// Exactly done and failed are terminal; anything else, including unknown values, keeps polling.
func (s JobStatus) IsTerminal() bool {
	return s == StatusDone || s == StatusFailed
}

func (s JobStatus) String() string { return string(s) }

// StatusReporter is implemented by anything a job poller can inspect.
type StatusReporter interface {
	JobStatus() JobStatus
}

// Track is an uploaded audio file registered with the backend.
type Track struct {
	ID                string  `json:"id"`
	Title             *string `json:"title,omitempty"`
	SourceFilename    string  `json:"source_filename"`
	MimeType          string  `json:"mime_type"`
	DurationSec       *int    `json:"duration_sec,omitempty"`
	OriginalObjectKey string  `json:"original_object_key"`
	CreatedAt         string  `json:"created_at,omitempty"`
}

// DisplayTitle falls back to the source filename when the track has no title.
func (t Track) DisplayTitle() string {
	if t.Title != nil && *t.Title != "" {
		return *t.Title
	}
	return t.SourceFilename
}

// Analysis is the tempo detection job for a track.
type Analysis struct {
	ID         string    `json:"id"`
	TrackID    string    `json:"track_id,omitempty"`
	Status     JobStatus `json:"status"`
	BPM        *float64  `json:"bpm"`
	Confidence *float64  `json:"confidence"`
	Error      *string   `json:"error"`
	CreatedAt  string    `json:"created_at,omitempty"`
	FinishedAt string    `json:"finished_at,omitempty"`
}

func (a Analysis) JobStatus() JobStatus { return a.Status }

// Render is a tempo-adjusted rendition of a track.
type Render struct {
	ID              string    `json:"id"`
	TrackID         string    `json:"track_id,omitempty"`
	TargetBPM       float64   `json:"target_bpm"`
	TempoRatio      *float64  `json:"tempo_ratio,omitempty"`
	PreservePitch   bool      `json:"preserve_pitch"`
	Status          JobStatus `json:"status"`
	OutputObjectKey *string   `json:"output_object_key"`
	Error           *string   `json:"error,omitempty"`
	CreatedAt       string    `json:"created_at,omitempty"`
	FinishedAt      string    `json:"finished_at,omitempty"`
}

func (r Render) JobStatus() JobStatus { return r.Status }

// Playable reports whether the render output can be fetched.
func (r *Render) Playable() bool {
	return r != nil && r.ID != "" && r.Status == StatusDone
}

// TrackDetail is the composite returned for a single track.
type TrackDetail struct {
	Track        Track     `json:"track"`
	Analysis     *Analysis `json:"analysis"`
	LatestRender *Render   `json:"latest_render"`
}

// JobAccepted acknowledges a started analysis.
type JobAccepted struct {
	TrackID string    `json:"track_id"`
	Status  JobStatus `json:"status"`
}

// RenderAccepted acknowledges a started render.
type RenderAccepted struct {
	RenderID string    `json:"render_id"`
	Status   JobStatus `json:"status"`
}

// UploadStatus is the journal state of one upload attempt.
type UploadStatus string

const (
	UploadAuthorized  UploadStatus = "authorized"
	UploadTransferred UploadStatus = "transferred"
	UploadRegistered  UploadStatus = "registered"
	UploadFailed      UploadStatus = "failed"
	UploadOrphaned    UploadStatus = "orphaned"
)

// UploadRecord is a locally journaled upload attempt.
type UploadRecord struct {
	ID        string
	Filename  string
	MimeType  string
	Size      int64
	ObjectKey string
	TrackID   string
	Status    UploadStatus
	Error     string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// CachedTrack is a track row from the local listing cache.
type CachedTrack struct {
	Track
	CachedAt time.Time
}
