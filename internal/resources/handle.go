package resources

import (
	"net/url"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"

	"github.com/desertthunder/bpmx/internal/shared"
)

// Handle is a local copy of a render's audio.
type Handle struct {
	RenderID    string
	ContentType string
	Size        int64

	path     string
	owner    *Fetcher
	once     sync.Once
	released atomic.Bool
}

// Path is the local file path.
func (h *Handle) Path() string { return h.path }

// URL is the file:// URL of the local copy.
func (h *Handle) URL() string {
	abs, err := filepath.Abs(h.path)
	if err != nil {
		abs = h.path
	}
	return (&url.URL{Scheme: "file", Path: filepath.ToSlash(abs)}).String()
}

// Open opens the local copy for reading.
func (h *Handle) Open() (*os.File, error) {
	if h.released.Load() {
		return nil, shared.ErrReleased
	}
	return os.Open(h.path)
}

// Released reports whether [Handle.Release] has been called.
func (h *Handle) Released() bool { return h.released.Load() }

// Release removes the local copy. Calling it more than once is a no-op.
func (h *Handle) Release() error {
	var err error
	h.once.Do(func() {
		h.released.Store(true)
		if rmErr := os.Remove(h.path); rmErr != nil && !os.IsNotExist(rmErr) {
			err = rmErr
		}
		if h.owner != nil {
			h.owner.forget(h.path)
		}
	})
	return err
}
