package flow

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"time"
)

// CompileError is the uniform shape for every error raised during
// compilation, regardless of which sub-validator produced it.
type CompileError struct {
	Phase      string // "structure", "inputs", "templates", "types", "edges"
	NodeID     string
	NodeType   string
	Message    string
	Suggestion string
}

func (e *CompileError) Error() string {
	msg := e.Message
	if e.NodeID != "" {
		msg = fmt.Sprintf("node %q: %s", e.NodeID, msg)
	}
	if e.Suggestion != "" {
		msg += fmt.Sprintf(" (did you mean %q?)", e.Suggestion)
	}
	return fmt.Sprintf("compile [%s]: %s", e.Phase, msg)
}

// CompileErrors aggregates everything a compile pass found so callers see
// all problems at once, not just the first.
type CompileErrors []*CompileError

func (es CompileErrors) Error() string {
	if len(es) == 1 {
		return es[0].Error()
	}
	msg := fmt.Sprintf("%d compile errors:", len(es))
	for _, e := range es {
		msg += "\n  " + e.Error()
	}
	return msg
}

// Warning is a non-fatal finding collected during compilation.
type Warning struct {
	NodeID  string
	Message string
}

func (w Warning) String() string {
	if w.NodeID != "" {
		return fmt.Sprintf("node %q: %s", w.NodeID, w.Message)
	}
	return w.Message
}

// Failure categories reported by RunError.
const (
	CategoryLifecycle = "lifecycle" // node implementation returned an error
	CategoryCancelled = "cancelled" // context cancelled between nodes
	CategoryRouting   = "routing"   // broken successor reference
)

// RunError is a structured runtime failure. Outputs recorded before the
// failing node remain intact in the shared store.
type RunError struct {
	NodeID   string
	Category string
	Message  string
	Err      error
}

func (e *RunError) Error() string {
	return fmt.Sprintf("run failed at node %q [%s]: %s", e.NodeID, e.Category, e.Message)
}

func (e *RunError) Unwrap() error { return e.Err }

// transientError marks an error as retryable.
type transientError struct{ err error }

func (e *transientError) Error() string { return e.err.Error() }
func (e *transientError) Unwrap() error { return e.err }

// MarkTransient wraps err so the engine will retry the node (bounded, with
// backoff) instead of failing the flow immediately.
func MarkTransient(err error) error {
	if err == nil {
		return nil
	}
	return &transientError{err: err}
}

// Transient reports whether err was marked retryable.
func Transient(err error) bool {
	var te *transientError
	return errors.As(err, &te)
}

// withRetry runs fn up to maxAttempts times, retrying only transient
// errors, with exponential backoff and ±25% jitter. It respects context
// cancellation while waiting.
func withRetry(ctx context.Context, maxAttempts int, baseDelay time.Duration, fn func() error) error {
	if maxAttempts < 1 {
		maxAttempts = 1
	}
	var lastErr error
	for i := range maxAttempts {
		lastErr = fn()
		if lastErr == nil {
			return nil
		}
		if !Transient(lastErr) {
			return lastErr
		}
		if i == maxAttempts-1 {
			break
		}
		wait := backoffDelay(baseDelay, i)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(wait):
		}
	}
	return fmt.Errorf("attempt %d/%d: %w", maxAttempts, maxAttempts, lastErr)
}

func backoffDelay(base time.Duration, attempt int) time.Duration {
	if base <= 0 {
		return 0
	}
	d := base << uint(attempt)
	if d > 30*time.Second {
		d = 30 * time.Second
	}
	jitter := time.Duration(rand.Float64() * 0.5 * float64(d))
	return d/4*3 + jitter
}
