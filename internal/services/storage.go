package services

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/desertthunder/bpmx/internal/shared"
)

const maxErrorBody = 4 << 10

// ObjectWriter performs direct writes to pre-signed storage URLs.
//
// It never attaches the API bearer token; the signature in the URL is the only authorization.
type ObjectWriter struct {
	httpClient *http.Client
}

// NewObjectWriter creates a writer using client, defaulting to [http.DefaultClient].
func NewObjectWriter(client *http.Client) *ObjectWriter {
	if client == nil {
		client = http.DefaultClient
	}
	return &ObjectWriter{httpClient: client}
}

// Put streams body to signedURL with the given content type.
//
// size is sent as Content-Length when positive. Failures are returned as [shared.TransferError].
func (w *ObjectWriter) Put(ctx context.Context, signedURL, contentType string, body io.Reader, size int64) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPut, signedURL, body)
	if err != nil {
		return &shared.TransferError{Err: fmt.Errorf("failed to create request: %w", err)}
	}
	req.Header.Set("Content-Type", contentType)
	if size > 0 {
		req.ContentLength = size
	}

	resp, err := w.httpClient.Do(req)
	if err != nil {
		return &shared.TransferError{Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return &shared.TransferError{StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(data))}
	}

	io.Copy(io.Discard, resp.Body)
	return nil
}
