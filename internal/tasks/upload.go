package tasks

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/bpmx/internal/models"
	"github.com/desertthunder/bpmx/internal/services"
	"github.com/desertthunder/bpmx/internal/shared"
)

const (
	DefaultContentType = "application/octet-stream"

	syntheticTick = 150 * time.Millisecond
	syntheticStep = 5
	syntheticCap  = 95
)

// extension -> content type sent when the caller gives none
var audioTypes = map[string]string{
	".mp3": "audio/mpeg",
	".wav": "audio/wav",
	".m4a": "audio/mp4",
	".aac": "audio/aac",
}

var allowedMIMEs = map[string]bool{
	"audio/mpeg":       true,
	"audio/wav":        true,
	"audio/x-wav":      true,
	"audio/mp4":        true,
	"audio/aac":        true,
	DefaultContentType: true,
}

// UploadBackend is the part of the backend client the orchestrator needs.
type UploadBackend interface {
	RequestSignedUpload(ctx context.Context, filename, mimeType string) (*services.SignedUpload, error)
	CreateTrack(ctx context.Context, req services.CreateTrackRequest) (*models.Track, error)
}

// ObjectPutter writes bytes to a signed URL.
type ObjectPutter interface {
	Put(ctx context.Context, signedURL, contentType string, body io.Reader, size int64) error
}

// UploadJournal records each upload attempt; implemented by repositories.UploadRepository.
type UploadJournal interface {
	Record(ctx context.Context, rec *models.UploadRecord) error
}

// UploadFile is the local side of an upload.
type UploadFile struct {
	Name     string    // File name sent to the backend (base name only)
	MimeType string    // Declared content type; empty means application/octet-stream
	Size     int64     // Byte length, or <= 0 when unknown
	Body     io.Reader // Raw bytes
}

// Close closes the body when it is closable.
func (f UploadFile) Close() error {
	if c, ok := f.Body.(io.Closer); ok {
		return c.Close()
	}
	return nil
}

// OpenUploadFile opens path for upload, inferring the content type from its extension when
// mimeType is empty.
func OpenUploadFile(path, mimeType string) (UploadFile, error) {
	ext := strings.ToLower(filepath.Ext(path))
	inferred, ok := audioTypes[ext]
	if !ok {
		return UploadFile{}, fmt.Errorf("%w: unsupported file type %q (want .mp3, .wav, .m4a or .aac)", shared.ErrInvalidInput, ext)
	}
	if strings.TrimSpace(mimeType) == "" {
		mimeType = inferred
	}

	f, err := os.Open(shared.ExpandPath(path))
	if err != nil {
		return UploadFile{}, fmt.Errorf("failed to open %s: %w", path, err)
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return UploadFile{}, fmt.Errorf("failed to stat %s: %w", path, err)
	}
	if info.IsDir() {
		f.Close()
		return UploadFile{}, fmt.Errorf("%w: %s is a directory", shared.ErrInvalidInput, path)
	}

	return UploadFile{
		Name:     filepath.Base(path),
		MimeType: mimeType,
		Size:     info.Size(),
		Body:     f,
	}, nil
}

// normalize applies the backend's upload rules before any request is made.
func (f UploadFile) normalize() (UploadFile, error) {
	f.Name = strings.TrimSpace(filepath.Base(f.Name))
	if f.Name == "" || f.Name == "." || f.Name == string(filepath.Separator) {
		return f, fmt.Errorf("%w: file name", shared.ErrMissingArgument)
	}
	if f.Body == nil {
		return f, fmt.Errorf("%w: file body", shared.ErrMissingArgument)
	}

	ext := strings.ToLower(filepath.Ext(f.Name))
	if _, ok := audioTypes[ext]; !ok {
		return f, fmt.Errorf("%w: unsupported file type %q", shared.ErrInvalidInput, ext)
	}

	f.MimeType = strings.ToLower(strings.TrimSpace(f.MimeType))
	if f.MimeType == "" {
		f.MimeType = DefaultContentType
	}
	if !allowedMIMEs[f.MimeType] {
		return f, fmt.Errorf("%w: unsupported mime type %q", shared.ErrInvalidInput, f.MimeType)
	}
	return f, nil
}

// UploadMetadata is registered alongside the stored object.
type UploadMetadata struct {
	Title       string // Display title; defaults to the file name
	DurationSec *int
}

// UploadSession is one authorized upload attempt.
type UploadSession struct {
	Filename    string
	ContentType string // Bound into the signature; the PUT must send exactly this
	ObjectKey   string
	SignedURL   string

	mu       sync.Mutex
	percent  int
	progress chan<- ProgressUpdate
}

// Percent returns the last reported transfer percentage.
func (s *UploadSession) Percent() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.percent
}

// advance raises the percentage to p, clamped to [0,100]. Lower values are ignored.
func (s *UploadSession) advance(p int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.raise(p)
}

// step adds delta without passing limit.
func (s *UploadSession) step(delta, limit int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.raise(min(s.percent+delta, limit))
}

func (s *UploadSession) raise(p int) {
	p = max(0, min(p, 100))
	if p <= s.percent {
		return
	}
	s.percent = p
	sendProgress(s.progress, transferUpdate(p))
}

// detach stops the session reporting on its channel and returns that channel.
//
// The transport may keep reading the body after Put returns, and the caller closes the channel
// once Upload returns, so late reads must find no channel to send on.
func (s *UploadSession) detach() chan<- ProgressUpdate {
	s.mu.Lock()
	defer s.mu.Unlock()
	progress := s.progress
	s.progress = nil
	return progress
}

// finish pins the percentage at 100 and always delivers that update on progress.
func (s *UploadSession) finish(ctx context.Context, progress chan<- ProgressUpdate) {
	s.mu.Lock()
	s.percent = 100
	s.mu.Unlock()
	sendFinal(ctx, progress, transferUpdate(100))
}

// ramp moves the percentage up by a fixed step every tick until stopped.
func (s *UploadSession) ramp(ctx context.Context, tick time.Duration) (stop func()) {
	done := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		t := time.NewTicker(tick)
		defer t.Stop()
		for {
			select {
			case <-done:
				return
			case <-ctx.Done():
				return
			case <-t.C:
				s.step(syntheticStep, syntheticCap)
			}
		}
	}()
	return func() {
		close(done)
		wg.Wait()
	}
}

type countingReader struct {
	r       io.Reader
	sent    int64
	total   int64
	session *UploadSession
}

func (c *countingReader) Read(p []byte) (int, error) {
	n, err := c.r.Read(p)
	if n > 0 {
		c.sent += int64(n)
		c.session.advance(int(c.sent * 100 / c.total))
	}
	return n, err
}

// UploadOrchestrator runs the authorize, transfer and register phases of an upload.
type UploadOrchestrator struct {
	backend UploadBackend
	storage ObjectPutter
	journal UploadJournal
	logger  *log.Logger
	tick    time.Duration
}

// NewUploadOrchestrator creates an orchestrator. journal and logger may be nil.
func NewUploadOrchestrator(backend UploadBackend, storage ObjectPutter, journal UploadJournal, logger *log.Logger) *UploadOrchestrator {
	if logger == nil {
		logger = log.Default()
	}
	return &UploadOrchestrator{
		backend: backend,
		storage: storage,
		journal: journal,
		logger:  logger,
		tick:    syntheticTick,
	}
}

// Upload stores file through a signed URL and registers it as a track.
//
// Each phase's failure aborts the rest. If registration fails after the bytes were stored, the
// object is left in storage, the error names its key, and the journal marks the attempt orphaned.
func (o *UploadOrchestrator) Upload(ctx context.Context, file UploadFile, meta UploadMetadata, progress chan<- ProgressUpdate) (*models.Track, error) {
	file, err := file.normalize()
	if err != nil {
		return nil, err
	}

	rec := &models.UploadRecord{
		ID:       shared.GenerateID(),
		Filename: file.Name,
		MimeType: file.MimeType,
		Size:     file.Size,
	}

	sendProgress(progress, authorizeUpdate(file.Name))
	session, err := o.Authorize(ctx, file)
	if err != nil {
		o.record(ctx, rec, models.UploadFailed, err)
		return nil, err
	}
	rec.ObjectKey = session.ObjectKey
	o.record(ctx, rec, models.UploadAuthorized, nil)

	if err := ctx.Err(); err != nil {
		o.record(ctx, rec, models.UploadFailed, err)
		return nil, err
	}

	if err := o.Transfer(ctx, session, file, progress); err != nil {
		o.record(ctx, rec, models.UploadFailed, err)
		return nil, err
	}
	o.record(ctx, rec, models.UploadTransferred, nil)

	if err := ctx.Err(); err != nil {
		o.record(ctx, rec, models.UploadOrphaned, err)
		return nil, fmt.Errorf("object %s was stored but not registered: %w", session.ObjectKey, err)
	}

	sendProgress(progress, registerUpdate(session.ObjectKey))
	track, err := o.Register(ctx, session, meta)
	if err != nil {
		o.record(ctx, rec, models.UploadOrphaned, err)
		return nil, fmt.Errorf("object %s was stored but not registered: %w", session.ObjectKey, err)
	}

	rec.TrackID = track.ID
	o.record(ctx, rec, models.UploadRegistered, nil)
	return track, nil
}

// Authorize requests a signed write URL. Both the object key and the URL must be present.
func (o *UploadOrchestrator) Authorize(ctx context.Context, file UploadFile) (*UploadSession, error) {
	signed, err := o.backend.RequestSignedUpload(ctx, file.Name, file.MimeType)
	if err != nil {
		return nil, err
	}
	if signed == nil {
		signed = &services.SignedUpload{}
	}

	var missing []string
	if strings.TrimSpace(signed.ObjectKey) == "" {
		missing = append(missing, "object_key")
	}
	if strings.TrimSpace(signed.SignedPutURL) == "" {
		missing = append(missing, "signed_put_url")
	}
	if len(missing) > 0 {
		return nil, &shared.AuthorizationError{Missing: missing}
	}

	return &UploadSession{
		Filename:    file.Name,
		ContentType: file.MimeType,
		ObjectKey:   signed.ObjectKey,
		SignedURL:   signed.SignedPutURL,
	}, nil
}

// Transfer PUTs the file to the session's signed URL, reporting progress on the channel.
//
// With a known size the percentage follows the bytes read; otherwise it ramps synthetically up to
// 95. It reads 100 once the storage accepts the write.
func (o *UploadOrchestrator) Transfer(ctx context.Context, s *UploadSession, file UploadFile, progress chan<- ProgressUpdate) error {
	if file.MimeType != s.ContentType {
		return fmt.Errorf("%w: authorized %q, sending %q", shared.ErrContentTypeMismatch, s.ContentType, file.MimeType)
	}

	s.mu.Lock()
	s.progress = progress
	s.mu.Unlock()
	sendProgress(progress, transferUpdate(s.Percent()))

	body := file.Body
	stop := func() {}
	if file.Size > 0 {
		body = &countingReader{r: file.Body, total: file.Size, session: s}
	} else {
		stop = s.ramp(ctx, o.tick)
	}

	err := o.storage.Put(ctx, s.SignedURL, s.ContentType, body, file.Size)
	stop()
	progress = s.detach()
	if err != nil {
		return err
	}

	s.finish(ctx, progress)
	return nil
}

// Register creates the track record for a stored object.
func (o *UploadOrchestrator) Register(ctx context.Context, s *UploadSession, meta UploadMetadata) (*models.Track, error) {
	title := strings.TrimSpace(meta.Title)
	if title == "" {
		title = s.Filename
	}

	return o.backend.CreateTrack(ctx, services.CreateTrackRequest{
		Title:             &title,
		SourceFilename:    s.Filename,
		MimeType:          s.ContentType,
		DurationSec:       meta.DurationSec,
		OriginalObjectKey: s.ObjectKey,
	})
}

// record journals rec; journal failures never fail the upload.
func (o *UploadOrchestrator) record(ctx context.Context, rec *models.UploadRecord, status models.UploadStatus, cause error) {
	if o.journal == nil {
		return
	}
	rec.Status = status
	if cause != nil {
		rec.Error = cause.Error()
	}
	if err := o.journal.Record(context.WithoutCancel(ctx), rec); err != nil {
		o.logger.Warn("failed to journal upload", "id", rec.ID, "status", status, "error", err)
	}
}
