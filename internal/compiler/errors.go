package compiler

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
)

var (
	// ErrUnsupportedLanguage is returned before any network call for languages
	// the compiler cannot handle.
	ErrUnsupportedLanguage = errors.New("unsupported document language")
	// ErrNoEndpoints is returned when the gateway has no compiler endpoint configured.
	ErrNoEndpoints = errors.New("no compiler endpoint configured")
)

const maxBodyInError = 4 << 10

// Diagnostic is the structured error body some compiler deployments return.
type Diagnostic struct {
	Error *string `json:"error,omitempty"`
	Log   *string `json:"log,omitempty"`
}

// CompileError is a failed compilation on one endpoint. Either StatusCode and Body
// are set (the compiler answered) or Err is (it could not be reached).
type CompileError struct {
	Endpoint   string
	StatusCode int
	Body       string
	Diagnostic *Diagnostic
	Err        error
}

func (e *CompileError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("compiler %s unreachable: %v", e.Endpoint, e.Err)
	}

	msg := e.Body
	if e.Diagnostic != nil && e.Diagnostic.Error != nil {
		msg = *e.Diagnostic.Error
	}

	return fmt.Sprintf("compiler %s returned %d: %s", e.Endpoint, e.StatusCode, msg)
}

func (e *CompileError) Unwrap() error {
	return e.Err
}

// Retryable reports whether another endpoint may succeed where this one failed.
// A 4xx answer means the source itself was rejected and is final.
func (e *CompileError) Retryable() bool {
	if e.Err != nil {
		return true
	}

	switch e.StatusCode {
	case http.StatusRequestTimeout, http.StatusTooManyRequests:
		return true
	}

	return e.StatusCode >= 500
}

func newStatusError(endpoint string, status int, contentType string, body []byte) *CompileError {
	text := string(body)
	if len(text) > maxBodyInError {
		text = text[:maxBodyInError]
	}

	err := &CompileError{
		Endpoint:   endpoint,
		StatusCode: status,
		Body:       text,
	}

	if strings.HasPrefix(contentType, "application/json") {
		var diag Diagnostic
		if json.Unmarshal(body, &diag) == nil && (diag.Error != nil || diag.Log != nil) {
			err.Diagnostic = &diag
		}
	}

	return err
}
