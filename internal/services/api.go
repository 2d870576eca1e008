// Transport for the BPM runner backend: JSON requests with bearer injection and uniform error surfacing.
package services

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/desertthunder/bpmx/internal/shared"
	"golang.org/x/oauth2"
)

const defaultBaseURL = "http://localhost:8080"

// APIService performs requests against the backend API.
//
// Authenticated calls read the bearer token from the injected [oauth2.TokenSource] on every request.
type APIService struct {
	baseURL    string
	httpClient *http.Client
	tokens     oauth2.TokenSource
	userAgent  string
}

// NewAPIService creates a new API service instance for the backend at baseURL.
//
// A nil tokens source means every authenticated call fails with [shared.ErrNotAuthenticated].
func NewAPIService(baseURL string, client *http.Client, tokens oauth2.TokenSource) *APIService {
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	if client == nil {
		client = http.DefaultClient
	}

	return &APIService{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: client,
		tokens:     tokens,
		userAgent:  "bpmx",
	}
}

// BaseURL returns the normalized backend address.
func (a *APIService) BaseURL() string { return a.baseURL }

// APIResponse represents a raw API response with status and body.
type APIResponse struct {
	StatusCode int
	Headers    http.Header
	Body       []byte
	IsJSON     bool
	JSONData   any
}

// Do sends an authenticated JSON request and decodes a 2xx response body into out.
//
// body and out may be nil. Any non-2xx status yields a [shared.RequestError].
func (a *APIService) Do(ctx context.Context, method, path string, body, out any) error {
	return a.do(ctx, method, path, body, out, true)
}

// DoPublic is [APIService.Do] without the bearer header, used for signup and login.
func (a *APIService) DoPublic(ctx context.Context, method, path string, body, out any) error {
	return a.do(ctx, method, path, body, out, false)
}

func (a *APIService) do(ctx context.Context, method, path string, body, out any, auth bool) error {
	var payload io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to encode request: %w", err)
		}
		payload = bytes.NewReader(data)
	}

	req, err := a.newRequest(ctx, method, path, payload, auth)
	if err != nil {
		return err
	}

	resp, err := a.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &shared.RequestError{
			Method:     method,
			Path:       path,
			StatusCode: resp.StatusCode,
			Message:    errorMessage(resp.StatusCode, data),
		}
	}

	if out == nil || len(bytes.TrimSpace(data)) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

// Open performs an authenticated GET and hands back the live response for streaming reads.
//
// The caller owns resp.Body and must inspect the status code itself.
func (a *APIService) Open(ctx context.Context, path string) (*http.Response, error) {
	req, err := a.newRequest(ctx, http.MethodGet, path, nil, true)
	if err != nil {
		return nil, err
	}

	resp, err := a.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	return resp, nil
}

// Get performs a GET request to the specified path and returns the raw response.
//
// The bearer header is attached when a token is available but not required.
func (a *APIService) Get(ctx context.Context, path string) (*APIResponse, error) {
	return a.raw(ctx, http.MethodGet, path, nil)
}

// Post performs a POST request with the given JSON data and returns the raw response.
func (a *APIService) Post(ctx context.Context, path string, data []byte) (*APIResponse, error) {
	return a.raw(ctx, http.MethodPost, path, bytes.NewReader(data))
}

func (a *APIService) raw(ctx context.Context, method, path string, body io.Reader) (*APIResponse, error) {
	req, err := a.newRequest(ctx, method, path, body, false)
	if err != nil {
		return nil, err
	}
	if tok, err := a.token(); err == nil {
		tok.SetAuthHeader(req)
	}

	resp, err := a.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	apiResp := &APIResponse{
		StatusCode: resp.StatusCode,
		Headers:    resp.Header,
		Body:       data,
	}

	var jsonData any
	if err := json.Unmarshal(data, &jsonData); err == nil {
		apiResp.IsJSON = true
		apiResp.JSONData = jsonData
	}

	return apiResp, nil
}

func (a *APIService) newRequest(ctx context.Context, method, path string, body io.Reader, auth bool) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, method, a.baseURL+path, body)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", a.userAgent)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	if auth {
		tok, err := a.token()
		if err != nil {
			return nil, err
		}
		tok.SetAuthHeader(req)
	}
	return req, nil
}

func (a *APIService) token() (*oauth2.Token, error) {
	if a.tokens == nil {
		return nil, shared.ErrNotAuthenticated
	}
	tok, err := a.tokens.Token()
	if err != nil {
		return nil, err
	}
	if tok == nil || tok.AccessToken == "" {
		return nil, shared.ErrNotAuthenticated
	}
	return tok, nil
}

// errorMessage picks the human readable message for a failed response:
// the JSON message field, else the raw body text, else the status text.
func errorMessage(status int, body []byte) string {
	text := strings.TrimSpace(string(body))
	if text == "" {
		return http.StatusText(status)
	}

	var decoded any
	if err := json.Unmarshal(body, &decoded); err != nil {
		return text
	}

	switch v := decoded.(type) {
	case map[string]any:
		if msg, ok := v["message"].(string); ok && msg != "" {
			return msg
		}
	case string:
		if v != "" {
			return v
		}
	}
	return http.StatusText(status)
}

// IsStatus reports whether err is a [shared.RequestError] with the given status code.
func IsStatus(err error, status int) bool {
	var reqErr *shared.RequestError
	return errors.As(err, &reqErr) && reqErr.StatusCode == status
}
