package scraper

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"

	"github.com/PuerkitoBio/goquery"
)

// Kind classifies a single fetch attempt.
type Kind int

const (
	Success Kind = iota
	Transient
	Permanent
	Blocked
)

func (k Kind) String() string {
	switch k {
	case Success:
		return "success"
	case Transient:
		return "transient"
	case Permanent:
		return "permanent"
	case Blocked:
		return "blocked"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// Outcome is the classified result of fetching one URL.
type Outcome struct {
	Kind       Kind
	URL        string
	StatusCode int
	Doc        *goquery.Document
	Err        error
	Attempts   int
}

// Failure returns the outcome as an error, or nil on success.
func (o Outcome) Failure() error {
	if o.Kind == Success {
		return nil
	}
	attempts := o.Attempts
	if attempts < 1 {
		attempts = 1
	}
	return &RequestError{Kind: o.Kind, URL: o.URL, Attempts: attempts, Err: o.Err}
}

func classifyError(err error, statusCode int) (Kind, error) {
	if errors.Is(err, context.Canceled) {
		return Permanent, err
	}

	switch {
	case statusCode >= 200 && statusCode < 300:
		return Success, nil
	case statusCode == http.StatusTooManyRequests:
		return Transient, ErrRateLimited{Err: statusError(err, statusCode)}
	case statusCode >= 500:
		return Transient, ErrServer{Status: statusCode}
	case statusCode == http.StatusForbidden:
		return Permanent, ErrForbidden{Err: statusError(err, statusCode)}
	case statusCode == http.StatusNotFound:
		return Permanent, ErrNotFound{Err: statusError(err, statusCode)}
	case statusCode != 0:
		return Permanent, ErrHTTPStatus{Status: statusCode}
	}

	if err == nil {
		return Success, nil
	}
	if errors.Is(err, ErrInvalidURL) {
		return Permanent, err
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return Transient, ErrTimeout{Err: err}
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return Transient, ErrTimeout{Err: err}
	}
	// Resets, refused dials and truncated bodies are all worth another try.
	return Transient, ErrConnection{Err: err}
}

func statusError(err error, statusCode int) error {
	if err != nil {
		return err
	}
	return fmt.Errorf("http status %d", statusCode)
}
