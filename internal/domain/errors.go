package domain

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound            = errors.New("not found")
	ErrAlreadyExists       = errors.New("already exists")
	ErrTemplateNotFound    = errors.New("template not found")
	ErrAdaptorUnavailable  = errors.New("adaptor unavailable")
	ErrAdaptorTimeout      = errors.New("adaptor timeout")
	ErrProviderUnreachable = errors.New("provider unreachable")
	ErrProviderFailure     = errors.New("provider failure")
	ErrPlannerValidation   = errors.New("planner validation error")
	ErrEmptyBatch          = fmt.Errorf("%w: batch has no items", ErrPlannerValidation)
	ErrActiveVersion       = errors.New("active version cannot be deleted")
	ErrInvalidTransition   = errors.New("invalid job transition")
)

// ErrorKind is the stable, serialisable classification attached to failed jobs.
type ErrorKind string

const (
	ErrorKindNone                ErrorKind = ""
	ErrorKindTemplateNotFound    ErrorKind = "template_not_found"
	ErrorKindAdaptorUnavailable  ErrorKind = "adaptor_unavailable"
	ErrorKindAdaptorTimeout      ErrorKind = "adaptor_timeout"
	ErrorKindProviderUnreachable ErrorKind = "provider_unreachable"
	ErrorKindProviderFailure     ErrorKind = "provider_failure"
	ErrorKindDependencyFailed    ErrorKind = "dependency_failed"
	ErrorKindAborted             ErrorKind = "aborted"
)

// AdaptorError ties a generation failure to the adaptor that produced it.
type AdaptorError struct {
	AdaptorID  string
	Capability Capability
	Err        error
}

func (e *AdaptorError) Error() string {
	if e.Capability != "" {
		return fmt.Sprintf("adaptor %q (%s): %v", e.AdaptorID, e.Capability, e.Err)
	}
	return fmt.Sprintf("adaptor %q: %v", e.AdaptorID, e.Err)
}

func (e *AdaptorError) Unwrap() error {
	return e.Err
}

// NewAdaptorUnavailable reports an adaptor id that is unknown or lacks a capability.
func NewAdaptorUnavailable(adaptorID string, capability Capability, reason string) error {
	err := ErrAdaptorUnavailable
	if reason != "" {
		err = fmt.Errorf("%w: %s", ErrAdaptorUnavailable, reason)
	}
	return &AdaptorError{AdaptorID: adaptorID, Capability: capability, Err: err}
}

// KindOf maps an error onto its ErrorKind. Unknown errors are provider failures.
func KindOf(err error) ErrorKind {
	switch {
	case err == nil:
		return ErrorKindNone
	case errors.Is(err, ErrTemplateNotFound):
		return ErrorKindTemplateNotFound
	case errors.Is(err, ErrAdaptorUnavailable):
		return ErrorKindAdaptorUnavailable
	case errors.Is(err, ErrAdaptorTimeout):
		return ErrorKindAdaptorTimeout
	case errors.Is(err, ErrProviderUnreachable):
		return ErrorKindProviderUnreachable
	default:
		return ErrorKindProviderFailure
	}
}

// IsBatchFatal reports whether err must abort the whole batch. Everything else
// is captured on the failing job.
func IsBatchFatal(err error) bool {
	return errors.Is(err, ErrProviderUnreachable)
}

// AdaptorIDOf extracts the adaptor id carried by err, if any.
func AdaptorIDOf(err error) string {
	var ae *AdaptorError
	if errors.As(err, &ae) {
		return ae.AdaptorID
	}
	return ""
}

// Severity ranks how far an error propagates.
type Severity int

const (
	SeverityNone Severity = iota
	// SeverityJob failures are attached to the failing item and the batch continues.
	SeverityJob
	// SeverityBatch failures abort every job that has not started.
	SeverityBatch
	// SeverityRequest failures refuse the batch before any job runs.
	SeverityRequest
)

// Classify maps err onto its propagation severity.
func Classify(err error) Severity {
	switch {
	case err == nil:
		return SeverityNone
	case errors.Is(err, ErrPlannerValidation):
		return SeverityRequest
	case IsBatchFatal(err):
		return SeverityBatch
	default:
		return SeverityJob
	}
}
