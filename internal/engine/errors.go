package engine

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
)

var (
	ErrTransport         = errors.New("engine transport failure")
	ErrTimeout           = errors.New("engine job timed out")
	ErrMalformedResponse = errors.New("malformed engine response")
)

// SubmissionError is returned by Submit when the engine did not accept a graph.
type SubmissionError struct {
	Err error
}

func (e *SubmissionError) Error() string {
	if e == nil || e.Err == nil {
		return "submission failed"
	}
	return "submission failed: " + e.Err.Error()
}

func (e *SubmissionError) Unwrap() error { return e.Err }

// HTTPError is a non-2xx engine response. It matches ErrTransport under errors.Is.
type HTTPError struct {
	StatusCode int
	Body       string
}

func (e *HTTPError) Error() string {
	if e == nil {
		return "http error"
	}
	msg := strings.TrimSpace(e.Body)
	if msg == "" {
		msg = http.StatusText(e.StatusCode)
	}
	if len(msg) > 200 {
		msg = msg[:200]
	}
	return fmt.Sprintf("http error: status=%d message=%s", e.StatusCode, msg)
}

func (e *HTTPError) Is(target error) bool {
	return target == ErrTransport
}
