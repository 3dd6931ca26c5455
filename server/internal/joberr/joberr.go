// Package joberr implements the error taxonomy of the orchestration core:
// every failure that can surface from the upload adapter, the scheduler, or
// the analysis client is classified into a Kind, and the queue's retry
// decision is a method call on that classification rather than string or
// status-code matching scattered through the codebase.
package joberr

import "fmt"

// Kind classifies a failure for retry and user-messaging purposes.
type Kind string

const (
	InputInvalid         Kind = "input_invalid"
	CredentialExhausted  Kind = "credential_exhausted"
	UploadTransient      Kind = "upload_transient"
	UploadTimedOut       Kind = "upload_timed_out"
	UploadFailedTerminal Kind = "upload_failed_terminal"
	AnalysisRateLimit    Kind = "analysis_rate_limit"
	AnalysisTransient    Kind = "analysis_transient"
	AnalysisBadJSON      Kind = "analysis_bad_json"
	ContextExceeded      Kind = "context_exceeded"
	WorkerCrash          Kind = "worker_crash"
)

// retriable reports whether a job-level failure of this Kind should be
// retried by the queue (with backoff) rather than terminated outright.
// Chunk-level kinds (AnalysisRateLimit, AnalysisTransient, AnalysisBadJSON)
// are handled by the scheduler's own once-only retry and never reach the
// queue as a job failure; their entries here are for completeness.
var retriable = map[Kind]bool{
	InputInvalid:         false,
	CredentialExhausted:  true,
	UploadTransient:      true,
	UploadTimedOut:       false,
	UploadFailedTerminal: false,
	AnalysisRateLimit:    true,
	AnalysisTransient:    true,
	AnalysisBadJSON:      false,
	ContextExceeded:      false,
	WorkerCrash:          true,
}

// Error is a classified failure. Message is human-readable and must never
// carry credentials or stack frames; Err, when present, is the underlying
// cause for %w-wrapping and logging only.
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Message != "" {
		return e.Message
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Kind, e.Err)
	}
	return string(e.Kind)
}

func (e *Error) Unwrap() error { return e.Err }

// Retriable reports whether the queue should re-enqueue the owning job
// after this failure, per the error taxonomy's propagation policy.
func (e *Error) Retriable() bool {
	if e == nil {
		return false
	}
	return retriable[e.Kind]
}

// New constructs a classified error, wrapping cause when non-nil.
func New(kind Kind, message string, cause error) *Error {
	return &Error{Kind: kind, Message: message, Err: cause}
}

// Of reports the Kind of err if it (or something it wraps) is a *Error.
func Of(err error) (Kind, bool) {
	var e *Error
	if asError(err, &e) {
		return e.Kind, true
	}
	return "", false
}

// asError is a tiny errors.As shim kept local so callers importing this
// package rarely need the stdlib errors import just to classify a Kind.
func asError(err error, target **Error) bool {
	for err != nil {
		if e, ok := err.(*Error); ok {
			*target = e
			return true
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			return false
		}
		err = u.Unwrap()
	}
	return false
}
