package scraper

import (
	"context"
	"errors"
	"fmt"
)

// ErrTimeout indicates a timeout while issuing a request.
type ErrTimeout struct {
	Err error
}

func (e ErrTimeout) Error() string {
	return fmt.Errorf("timeout: %w", e.Err).Error()
}

func (e ErrTimeout) Unwrap() error {
	return e.Err
}

// ErrConnection indicates a network connectivity failure.
type ErrConnection struct {
	Err error
}

func (e ErrConnection) Error() string {
	return fmt.Errorf("connection: %w", e.Err).Error()
}

func (e ErrConnection) Unwrap() error {
	return e.Err
}

// ErrServer indicates a 5xx answer from the upstream.
type ErrServer struct {
	Status int
}

func (e ErrServer) Error() string {
	return fmt.Sprintf("server_error: http status %d", e.Status)
}

// ErrForbidden indicates a forbidden response (HTTP 403).
type ErrForbidden struct {
	Err error
}

func (e ErrForbidden) Error() string {
	return fmt.Errorf("forbidden: %w", e.Err).Error()
}

func (e ErrForbidden) Unwrap() error {
	return e.Err
}

// ErrNotFound indicates a missing resource (HTTP 404).
type ErrNotFound struct {
	Err error
}

func (e ErrNotFound) Error() string {
	return fmt.Errorf("not_found: %w", e.Err).Error()
}

func (e ErrNotFound) Unwrap() error {
	return e.Err
}

// ErrRateLimited indicates the target rate-limited the request.
type ErrRateLimited struct {
	Err error
}

func (e ErrRateLimited) Error() string {
	return fmt.Errorf("rate_limited: %w", e.Err).Error()
}

func (e ErrRateLimited) Unwrap() error {
	return e.Err
}

// ErrHTTPStatus covers any other unexpected status.
type ErrHTTPStatus struct {
	Status int
}

func (e ErrHTTPStatus) Error() string {
	return fmt.Sprintf("http status %d", e.Status)
}

var (
	// ErrInvalidURL is returned for URLs that cannot be requested at all.
	ErrInvalidURL = errors.New("invalid url")
	// ErrBlocked means the page was an anti-automation challenge.
	ErrBlocked = errors.New("blocked by anti-automation challenge")
	// ErrCoolingDown means the host was recently blocked and is being left alone.
	ErrCoolingDown = errors.New("host is cooling down after repeated blocks")
)

// RequestError is the terminal failure of a fetch, tagged with its outcome kind.
type RequestError struct {
	Kind     Kind
	URL      string
	Attempts int
	Err      error
}

func (e *RequestError) Error() string {
	if e.Attempts > 1 {
		return fmt.Sprintf("%s: GET %s failed after %d attempts: %v", e.Kind, e.URL, e.Attempts, e.Err)
	}
	return fmt.Sprintf("%s: GET %s: %v", e.Kind, e.URL, e.Err)
}

func (e *RequestError) Unwrap() error {
	return e.Err
}

// IsTransient reports whether err is a transient request failure.
func IsTransient(err error) bool {
	return kindOf(err) == Transient
}

// IsPermanent reports whether err is a permanent request failure.
func IsPermanent(err error) bool {
	return kindOf(err) == Permanent
}

// IsBlocked reports whether err came from an anti-automation challenge.
func IsBlocked(err error) bool {
	return kindOf(err) == Blocked
}

func kindOf(err error) Kind {
	var reqErr *RequestError
	if errors.As(err, &reqErr) {
		return reqErr.Kind
	}
	return Success
}

func errorTypeLabel(err error) string {
	if err == nil {
		return "unknown"
	}
	var timeout ErrTimeout
	if errors.As(err, &timeout) {
		return "timeout"
	}
	var conn ErrConnection
	if errors.As(err, &conn) {
		return "connection"
	}
	var server ErrServer
	if errors.As(err, &server) {
		return "server_error"
	}
	var forbidden ErrForbidden
	if errors.As(err, &forbidden) {
		return "forbidden"
	}
	var notFound ErrNotFound
	if errors.As(err, &notFound) {
		return "not_found"
	}
	var rateLimited ErrRateLimited
	if errors.As(err, &rateLimited) {
		return "rate_limited"
	}
	switch {
	case errors.Is(err, context.Canceled):
		return "canceled"
	case errors.Is(err, ErrBlocked):
		return "blocked"
	case errors.Is(err, ErrCoolingDown):
		return "cooling_down"
	case errors.Is(err, ErrInvalidURL):
		return "invalid_url"
	}
	var status ErrHTTPStatus
	if errors.As(err, &status) {
		return "http_status"
	}
	return "other"
}
