package backend

import (
	"context"
	"fmt"
	"strings"
	"sync"
)

// Compile-time interface check.
var _ Invoker = (*Stub)(nil)

// Stub is a deterministic Invoker for offline runs and tests. Responses are
// looked up by ref first; refs without a fixed response get a canned echo of
// the prompt's first line.
type Stub struct {
	mu        sync.Mutex
	responses map[string]string
	failures  map[string]error
	calls     []StubCall
}

// StubCall records one invocation.
type StubCall struct {
	Ref    string
	Prompt string
}

// NewStub creates a Stub with optional fixed responses keyed by ref.
func NewStub(responses map[string]string) *Stub {
	s := &Stub{
		responses: make(map[string]string, len(responses)),
		failures:  make(map[string]error),
	}
	for k, v := range responses {
		s.responses[k] = v
	}
	return s
}

// Respond sets the fixed response for ref.
func (s *Stub) Respond(ref, text string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.responses[ref] = text
}

// Fail makes every call to ref return err.
func (s *Stub) Fail(ref string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failures[ref] = err
}

// Invoke returns the configured response or failure for ref.
func (s *Stub) Invoke(ctx context.Context, prompt, ref string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", &TransientError{Ref: ref, Err: err}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, StubCall{Ref: ref, Prompt: prompt})

	if err, ok := s.failures[ref]; ok {
		return "", err
	}
	if text, ok := s.responses[ref]; ok {
		return text, nil
	}

	first, _, _ := strings.Cut(strings.TrimSpace(prompt), "\n")
	return fmt.Sprintf("[stub %s] %s\nAssessment confidence: 80%%", ref, first), nil
}

// Calls returns a copy of the recorded invocations in order.
func (s *Stub) Calls() []StubCall {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]StubCall, len(s.calls))
	copy(out, s.calls)
	return out
}
