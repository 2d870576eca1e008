package shared

import (
	"fmt"
	"net/http"
	"strings"
	"time"
)

var (
	// Configuration errors
	ErrMissingConfig = fmt.Errorf("configuration not found")
	ErrInvalidConfig = fmt.Errorf("invalid configuration")

	// Authentication errors
	ErrAuthFailed       = fmt.Errorf("authentication failed")
	ErrNotAuthenticated = fmt.Errorf("not authenticated")
	ErrTokenExpired     = fmt.Errorf("access token expired")
	ErrTimeout          = fmt.Errorf("operation timed out")

	// API and service errors
	ErrAPIRequest         = fmt.Errorf("API request failed")
	ErrServiceUnavailable = fmt.Errorf("service unavailable")
	ErrTrackNotFound      = fmt.Errorf("track not found")

	// Upload and resource errors
	ErrAuthorization       = fmt.Errorf("upload authorization failed")
	ErrTransfer            = fmt.Errorf("upload transfer failed")
	ErrContentTypeMismatch = fmt.Errorf("content type does not match signed upload")
	ErrFetch               = fmt.Errorf("resource fetch failed")
	ErrSuperseded          = fmt.Errorf("superseded by a newer request")
	ErrReleased            = fmt.Errorf("resource handle released")

	// Input validation errors
	ErrInvalidInput    = fmt.Errorf("invalid input")
	ErrMissingArgument = fmt.Errorf("missing required argument")
	ErrInvalidArgument = fmt.Errorf("invalid argument")
	ErrInvalidFlag     = fmt.Errorf("invalid flag value")
)

// AuthorizationError is returned when the signed upload response omits a required field.
type AuthorizationError struct {
	Missing []string
}

func (e *AuthorizationError) Error() string {
	return fmt.Sprintf("%v: response missing %s", ErrAuthorization, strings.Join(e.Missing, ", "))
}

func (e *AuthorizationError) Is(target error) bool { return target == ErrAuthorization }

// TransferError is returned when the direct write to a signed URL fails.
//
// StatusCode is zero when the request never produced a response, in which case Err is set.
type TransferError struct {
	StatusCode int
	Body       string
	Err        error
}

func (e *TransferError) Error() string {
	switch {
	case e.Err != nil:
		return fmt.Sprintf("%v: %v", ErrTransfer, e.Err)
	case e.Body != "":
		return fmt.Sprintf("%v: status %d: %s", ErrTransfer, e.StatusCode, e.Body)
	default:
		return fmt.Sprintf("%v: status %d", ErrTransfer, e.StatusCode)
	}
}

func (e *TransferError) Is(target error) bool { return target == ErrTransfer }
func (e *TransferError) Unwrap() error        { return e.Err }

// TimeoutError is returned by the job poller once its budget is spent.
type TimeoutError struct {
	Elapsed time.Duration
	Timeout time.Duration
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("timed out waiting for job after %s (budget %s)", e.Elapsed.Round(time.Millisecond), e.Timeout)
}

func (e *TimeoutError) Is(target error) bool { return target == ErrTimeout }

// FetchError is returned when a protected resource read answers with a non-2xx status.
type FetchError struct {
	StatusCode int
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("failed to fetch audio (%d)", e.StatusCode)
}

func (e *FetchError) Is(target error) bool { return target == ErrFetch }

// RequestError is returned for any other non-2xx API response.
//
// Message carries the server supplied message, or the status text when the body had none.
type RequestError struct {
	Method     string
	Path       string
	StatusCode int
	Message    string
}

func (e *RequestError) Error() string {
	msg := e.Message
	if msg == "" {
		msg = http.StatusText(e.StatusCode)
	}
	return msg
}

func (e *RequestError) Is(target error) bool {
	switch target {
	case ErrAPIRequest:
		return true
	case ErrNotAuthenticated:
		return e.StatusCode == http.StatusUnauthorized
	case ErrTrackNotFound:
		return e.StatusCode == http.StatusNotFound && strings.HasPrefix(e.Path, "/api/tracks/")
	}
	return false
}
