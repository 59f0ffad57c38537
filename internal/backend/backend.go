// Package backend adapts external text-reasoning services to a single
// prompt-in, text-out contract used by the triage orchestrator.
package backend

import (
	"context"
	"errors"
	"fmt"
	"net/http"
)

// Invoker calls one reasoning backend with a prompt and returns its raw text.
// The ref selects which backend or model handles the call. Implementations
// must be safe for concurrent use; they never interpret the returned text.
type Invoker interface {
	Invoke(ctx context.Context, prompt, ref string) (string, error)
}

// InvokerFunc adapts a plain function to the Invoker interface.
type InvokerFunc func(ctx context.Context, prompt, ref string) (string, error)

// Invoke calls f.
func (f InvokerFunc) Invoke(ctx context.Context, prompt, ref string) (string, error) {
	return f(ctx, prompt, ref)
}

// ErrEmptyResponse is returned when a backend answers with no text.
var ErrEmptyResponse = errors.New("backend: response empty")

// TransientError marks a failure that might succeed if attempted later:
// timeouts, rate limits, upstream 5xx.
type TransientError struct {
	Ref        string
	StatusCode int
	Err        error
}

func (e *TransientError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("backend %s: transient failure (status %d): %v", e.Ref, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("backend %s: transient failure: %v", e.Ref, e.Err)
}

func (e *TransientError) Unwrap() error { return e.Err }

// RateLimited reports whether the upstream explicitly throttled the call.
func (e *TransientError) RateLimited() bool {
	return e.StatusCode == http.StatusTooManyRequests
}

// PermanentError marks a failure that will not succeed on repetition:
// invalid request, bad credentials, unknown model.
type PermanentError struct {
	Ref        string
	StatusCode int
	Err        error
}

func (e *PermanentError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("backend %s: permanent failure (status %d): %v", e.Ref, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("backend %s: permanent failure: %v", e.Ref, e.Err)
}

func (e *PermanentError) Unwrap() error { return e.Err }

// Classify wraps err as transient or permanent based on the HTTP status the
// upstream returned. A zero status means the request never got a response
// (network failure, deadline) and is treated as transient.
func Classify(ref string, status int, err error) error {
	if err == nil {
		return nil
	}
	switch {
	case status == 0,
		status == http.StatusRequestTimeout,
		status == http.StatusConflict,
		status == http.StatusTooManyRequests,
		status >= 500:
		return &TransientError{Ref: ref, StatusCode: status, Err: err}
	default:
		return &PermanentError{Ref: ref, StatusCode: status, Err: err}
	}
}

// IsTransient reports whether err is, or wraps, a TransientError.
func IsTransient(err error) bool {
	var te *TransientError
	return errors.As(err, &te)
}

// IsRateLimited reports whether err wraps a TransientError caused by an
// explicit upstream throttle.
func IsRateLimited(err error) bool {
	var te *TransientError
	return errors.As(err, &te) && te.RateLimited()
}
