package core

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
)

// PipelineError is a fatal failure of one pipeline stage. Retryable reports
// whether resubmitting the query may succeed (timeouts, rate limits) or not
// (auth, validation). Locally recovered conditions (malformed model JSON,
// per-query search failures, store outages) never surface as a
// PipelineError.
type PipelineError struct {
	Stage     string
	Retryable bool
	Err       error
}

// Error implements the error interface.
func (e *PipelineError) Error() string {
	kind := "non-retryable"
	if e.Retryable {
		kind = "retryable"
	}
	return fmt.Sprintf("stage %s failed (%s): %v", e.Stage, kind, e.Err)
}

// Unwrap exposes the underlying cause for errors.Is/As chains.
func (e *PipelineError) Unwrap() error { return e.Err }

// NewStageError wraps a stage failure, classifying its retryability from the
// underlying cause.
func NewStageError(stage string, err error) *PipelineError {
	return &PipelineError{Stage: stage, Retryable: retryable(err), Err: err}
}

// IsRetryable reports whether err is (or wraps) a retryable PipelineError.
func IsRetryable(err error) bool {
	var pe *PipelineError
	if errors.As(err, &pe) {
		return pe.Retryable
	}
	return false
}

// retryable classifies transport failures. Deadline expiry and rate limiting
// are worth a resubmission; caller-driven cancellation, authentication and
// malformed request failures are not.
func retryable(err error) bool {
	if errors.Is(err, context.Canceled) {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "rate limit"), strings.Contains(msg, "429"):
		return true
	case strings.Contains(msg, "timeout"), strings.Contains(msg, "deadline"):
		return true
	case strings.Contains(msg, "unauthorized"), strings.Contains(msg, "401"),
		strings.Contains(msg, "403"), strings.Contains(msg, "invalid api key"):
		return false
	case strings.Contains(msg, "503"), strings.Contains(msg, "502"),
		strings.Contains(msg, "unavailable"):
		return true
	}
	return false
}
