package resources

import (
	"context"
	"fmt"
	"io"
	"mime"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/desertthunder/bpmx/internal/services"
	"github.com/desertthunder/bpmx/internal/shared"
)

const filePrefix = "render-"

var extensions = map[string]string{
	"audio/mpeg":  ".mp3",
	"audio/mp3":   ".mp3",
	"audio/wav":   ".wav",
	"audio/x-wav": ".wav",
	"audio/mp4":   ".m4a",
	"audio/aac":   ".aac",
}

// Opener performs an authenticated GET and returns the live response.
//
// Implemented by [services.APIService].
type Opener interface {
	Open(ctx context.Context, path string) (*http.Response, error)
}

// Fetcher downloads render output into handles under a cache directory.
type Fetcher struct {
	api Opener
	dir string

	mu   sync.Mutex
	live map[string]struct{}
}

// NewFetcher creates a fetcher writing into dir (~ is expanded; empty means the OS temp dir).
func NewFetcher(api Opener, dir string) *Fetcher {
	if dir == "" {
		dir = filepath.Join(os.TempDir(), "bpmx")
	}
	return &Fetcher{
		api:  api,
		dir:  shared.ExpandPath(dir),
		live: make(map[string]struct{}),
	}
}

// Dir returns the cache directory.
func (f *Fetcher) Dir() string { return f.dir }

// Live returns how many handles have not been released.
func (f *Fetcher) Live() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.live)
}

// FetchAsHandle downloads a render's audio and returns a handle to the local copy.
//
// It fails with [shared.ErrNotAuthenticated] before any request when no token is available and
// with a [shared.FetchError] on a non-2xx response.
func (f *Fetcher) FetchAsHandle(ctx context.Context, renderID string) (*Handle, error) {
	if err := shared.ValidateID("render", renderID); err != nil {
		return nil, err
	}

	resp, err := f.api.Open(ctx, services.RenderFilePath(renderID))
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		io.Copy(io.Discard, io.LimitReader(resp.Body, 4<<10))
		return nil, &shared.FetchError{StatusCode: resp.StatusCode}
	}

	if err := os.MkdirAll(f.dir, 0700); err != nil {
		return nil, fmt.Errorf("failed to create cache directory: %w", err)
	}

	contentType := resp.Header.Get("Content-Type")
	file, err := os.CreateTemp(f.dir, filePrefix+renderID+"-*"+extensionFor(contentType))
	if err != nil {
		return nil, fmt.Errorf("failed to create cache file: %w", err)
	}

	size, err := io.Copy(file, resp.Body)
	if cerr := file.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		os.Remove(file.Name())
		return nil, fmt.Errorf("failed to read render audio: %w", err)
	}

	h := &Handle{
		RenderID:    renderID,
		ContentType: contentType,
		Size:        size,
		path:        file.Name(),
		owner:       f,
	}

	f.mu.Lock()
	f.live[h.path] = struct{}{}
	f.mu.Unlock()
	return h, nil
}

// Purge removes render files in the cache directory that no live handle holds, such as those
// left by earlier runs. It returns how many files were removed.
func (f *Fetcher) Purge() (int, error) {
	entries, err := os.ReadDir(f.dir)
	if os.IsNotExist(err) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("failed to read cache directory: %w", err)
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	removed := 0
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasPrefix(entry.Name(), filePrefix) {
			continue
		}
		path := filepath.Join(f.dir, entry.Name())
		if _, held := f.live[path]; held {
			continue
		}
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			return removed, fmt.Errorf("failed to remove %s: %w", entry.Name(), err)
		}
		removed++
	}
	return removed, nil
}

func (f *Fetcher) forget(path string) {
	f.mu.Lock()
	delete(f.live, path)
	f.mu.Unlock()
}

func extensionFor(contentType string) string {
	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return ".bin"
	}
	if ext, ok := extensions[strings.ToLower(mediaType)]; ok {
		return ext
	}
	return ".bin"
}
