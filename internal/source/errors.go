package source

import "errors"

// TransientError marks a retryable provider failure (network, 5xx, rate
// limit). The rate-limited flag is structured rather than sniffed out of the
// provider's message text so the orchestrator can react to quota exhaustion
// without string matching.
type TransientError struct {
	msg         string
	rateLimited bool
	cause       error
}

// NewTransient wraps a retryable failure.
func NewTransient(msg string, cause error) *TransientError {
	return &TransientError{msg: msg, cause: cause}
}

// NewRateLimited wraps a quota/rate-limit failure.
func NewRateLimited(msg string, cause error) *TransientError {
	return &TransientError{msg: msg, rateLimited: true, cause: cause}
}

func (e *TransientError) Error() string {
	if e.cause != nil {
		return e.msg + ": " + e.cause.Error()
	}
	return e.msg
}

func (e *TransientError) Unwrap() error { return e.cause }

// RateLimited reports whether the failure signals provider quota exhaustion.
func (e *TransientError) RateLimited() bool { return e.rateLimited }

// PermanentError marks a failure that retrying cannot fix (unknown series,
// malformed request).
type PermanentError struct {
	msg   string
	cause error
}

// NewPermanent wraps a non-retryable failure.
func NewPermanent(msg string, cause error) *PermanentError {
	return &PermanentError{msg: msg, cause: cause}
}

func (e *PermanentError) Error() string {
	if e.cause != nil {
		return e.msg + ": " + e.cause.Error()
	}
	return e.msg
}

func (e *PermanentError) Unwrap() error { return e.cause }

// IsTransient reports whether err is (or wraps) a TransientError.
func IsTransient(err error) bool {
	var t *TransientError
	return errors.As(err, &t)
}

// IsPermanent reports whether err is (or wraps) a PermanentError.
func IsPermanent(err error) bool {
	var p *PermanentError
	return errors.As(err, &p)
}

// IsRateLimited reports whether err is a transient failure caused by
// provider quota exhaustion.
func IsRateLimited(err error) bool {
	var t *TransientError
	return errors.As(err, &t) && t.RateLimited()
}
