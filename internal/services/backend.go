package services

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/desertthunder/bpmx/internal/models"
	"github.com/desertthunder/bpmx/internal/shared"
)

// MinPasswordLength mirrors the backend's signup rule.
const MinPasswordLength = 8

// BackendService is the typed client for the BPM runner API.
type BackendService struct {
	api *APIService
}

// NewBackendService wraps the transport with typed endpoint methods.
func NewBackendService(api *APIService) *BackendService {
	return &BackendService{api: api}
}

// API exposes the underlying transport.
func (b *BackendService) API() *APIService { return b.api }

// SignedUpload is the backend's answer to a signed upload request.
//
// Either field may be empty; callers must check before using it.
type SignedUpload struct {
	ObjectKey    string `json:"object_key"`
	SignedPutURL string `json:"signed_put_url"`
}

// CreateTrackRequest registers an uploaded object as a track.
type CreateTrackRequest struct {
	Title             *string `json:"title"`
	SourceFilename    string  `json:"source_filename"`
	MimeType          string  `json:"mime_type"`
	DurationSec       *int    `json:"duration_sec,omitempty"`
	OriginalObjectKey string  `json:"original_object_key"`
}

// RenderRequest parameterizes a tempo-adjusted render.
type RenderRequest struct {
	TargetBPM     float64 `json:"target_bpm"`
	PreservePitch bool    `json:"preserve_pitch"`
}

type credentialsRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type tokenResponse struct {
	Token string `json:"token"`
}

// Signup creates an account and returns its bearer token.
func (b *BackendService) Signup(ctx context.Context, email, password string) (string, error) {
	if len(password) < MinPasswordLength {
		return "", fmt.Errorf("%w: password must be at least %d characters", shared.ErrInvalidInput, MinPasswordLength)
	}
	return b.authenticate(ctx, "/api/auth/signup", email, password)
}

// Login exchanges credentials for a bearer token.
func (b *BackendService) Login(ctx context.Context, email, password string) (string, error) {
	return b.authenticate(ctx, "/api/auth/login", email, password)
}

func (b *BackendService) authenticate(ctx context.Context, path, email, password string) (string, error) {
	email = strings.TrimSpace(email)
	if email == "" || password == "" {
		return "", fmt.Errorf("%w: email and password are required", shared.ErrMissingArgument)
	}

	var resp tokenResponse
	if err := b.api.DoPublic(ctx, http.MethodPost, path, credentialsRequest{Email: email, Password: password}, &resp); err != nil {
		return "", err
	}
	if resp.Token == "" {
		return "", fmt.Errorf("%w: response carried no token", shared.ErrAuthFailed)
	}
	return resp.Token, nil
}

// Me returns the authenticated user's id.
func (b *BackendService) Me(ctx context.Context) (string, error) {
	var resp struct {
		UserID string `json:"user_id"`
	}
	if err := b.api.Do(ctx, http.MethodGet, "/api/me", nil, &resp); err != nil {
		return "", err
	}
	return resp.UserID, nil
}

// ListTracks returns the user's tracks, newest first.
func (b *BackendService) ListTracks(ctx context.Context) ([]models.Track, error) {
	var tracks []models.Track
	if err := b.api.Do(ctx, http.MethodGet, "/api/tracks", nil, &tracks); err != nil {
		return nil, err
	}
	if tracks == nil {
		tracks = []models.Track{}
	}
	return tracks, nil
}

// CreateTrack registers an uploaded object. The backend may answer with only the new id,
// so the returned track is completed from the request.
func (b *BackendService) CreateTrack(ctx context.Context, req CreateTrackRequest) (*models.Track, error) {
	if req.SourceFilename == "" || req.MimeType == "" || req.OriginalObjectKey == "" {
		return nil, fmt.Errorf("%w: source_filename, mime_type and original_object_key are required", shared.ErrMissingArgument)
	}

	var track models.Track
	if err := b.api.Do(ctx, http.MethodPost, "/api/tracks", req, &track); err != nil {
		return nil, err
	}
	if track.ID == "" {
		return nil, fmt.Errorf("%w: create track response carried no id", shared.ErrAPIRequest)
	}

	if track.Title == nil {
		track.Title = req.Title
	}
	if track.SourceFilename == "" {
		track.SourceFilename = req.SourceFilename
	}
	if track.MimeType == "" {
		track.MimeType = req.MimeType
	}
	if track.OriginalObjectKey == "" {
		track.OriginalObjectKey = req.OriginalObjectKey
	}
	if track.DurationSec == nil {
		track.DurationSec = req.DurationSec
	}
	return &track, nil
}

// GetTrack returns a track with its analysis and latest render.
func (b *BackendService) GetTrack(ctx context.Context, trackID string) (*models.TrackDetail, error) {
	if err := shared.ValidateID("track", trackID); err != nil {
		return nil, err
	}

	var detail models.TrackDetail
	if err := b.api.Do(ctx, http.MethodGet, "/api/tracks/"+url.PathEscape(trackID), nil, &detail); err != nil {
		return nil, err
	}
	return &detail, nil
}

// RequestSignedUpload asks for a short-lived write URL for filename.
func (b *BackendService) RequestSignedUpload(ctx context.Context, filename, mimeType string) (*SignedUpload, error) {
	body := map[string]string{"filename": filename, "mime_type": mimeType}

	var resp SignedUpload
	if err := b.api.Do(ctx, http.MethodPost, "/api/uploads/signed-url", body, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// StartAnalysis queues (or re-queues) tempo detection for a track.
func (b *BackendService) StartAnalysis(ctx context.Context, trackID string) (*models.JobAccepted, error) {
	if err := shared.ValidateID("track", trackID); err != nil {
		return nil, err
	}

	var resp models.JobAccepted
	if err := b.api.Do(ctx, http.MethodPost, "/api/tracks/"+url.PathEscape(trackID)+"/analyze", nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// GetAnalysis returns the current analysis state for a track.
func (b *BackendService) GetAnalysis(ctx context.Context, trackID string) (*models.Analysis, error) {
	if err := shared.ValidateID("track", trackID); err != nil {
		return nil, err
	}

	var analysis models.Analysis
	if err := b.api.Do(ctx, http.MethodGet, "/api/tracks/"+url.PathEscape(trackID)+"/analysis", nil, &analysis); err != nil {
		return nil, err
	}
	return &analysis, nil
}

// StartRender requests a tempo-adjusted render of a track.
func (b *BackendService) StartRender(ctx context.Context, trackID string, req RenderRequest) (*models.RenderAccepted, error) {
	if err := shared.ValidateID("track", trackID); err != nil {
		return nil, err
	}
	if err := models.ValidateTargetBPM(req.TargetBPM); err != nil {
		return nil, err
	}

	var resp models.RenderAccepted
	if err := b.api.Do(ctx, http.MethodPost, "/api/tracks/"+url.PathEscape(trackID)+"/render", req, &resp); err != nil {
		return nil, err
	}
	if resp.RenderID == "" {
		return nil, fmt.Errorf("%w: render response carried no render_id", shared.ErrAPIRequest)
	}
	return &resp, nil
}

// GetRender returns the current state of a render.
func (b *BackendService) GetRender(ctx context.Context, renderID string) (*models.Render, error) {
	if err := shared.ValidateID("render", renderID); err != nil {
		return nil, err
	}

	var render models.Render
	if err := b.api.Do(ctx, http.MethodGet, "/api/renders/"+url.PathEscape(renderID), nil, &render); err != nil {
		return nil, err
	}
	return &render, nil
}

// RenderFilePath is the protected endpoint serving a render's audio.
func RenderFilePath(renderID string) string {
	return "/api/render-files/" + url.PathEscape(renderID)
}
