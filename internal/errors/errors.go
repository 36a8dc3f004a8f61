// Package errors provides structured errors for Lumeo. Stage failures are
// converted to item status transitions at the pipeline boundary; only
// invariant violations propagate as plain fatal errors.
package errors

import (
	"fmt"
)

// Error codes. Codes are stable identifiers for logs and tests.
const (
	// CodeDecode: source image unreadable; the item fails before any stage.
	CodeDecode = "ERR_DECODE"
	// CodeStage: an extraction stage failed; progress is preserved at the
	// last persisted stage.
	CodeStage = "ERR_STAGE"
	// CodeModel: a model asset is missing or failed to construct. Treated
	// as graceful degradation by callers, never as a stage failure.
	CodeModel = "ERR_MODEL"
	// CodeTimeout: bounded generation exceeded its deadline. Same handling
	// as CodeModel.
	CodeTimeout = "ERR_TIMEOUT"
	// CodeStore: persistence failure.
	CodeStore = "ERR_STORE"
)

// LumeoError carries a stable code alongside the message and cause.
type LumeoError struct {
	// Code is the stable error code (e.g. "ERR_DECODE").
	Code string

	// Message is the human-readable error message.
	Message string

	// Cause is the underlying error, if any.
	Cause error

	// Retryable indicates whether re-queueing the item can succeed.
	Retryable bool
}

// Error implements the error interface.
func (e *LumeoError) Error() string {
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause for error chain support.
func (e *LumeoError) Unwrap() error {
	return e.Cause
}

// Is matches errors by code, enabling errors.Is with code sentinels.
func (e *LumeoError) Is(target error) bool {
	if t, ok := target.(*LumeoError); ok {
		return e.Code == t.Code
	}
	return false
}

// New creates a LumeoError with the given code.
func New(code, message string, cause error) *LumeoError {
	return &LumeoError{
		Code:      code,
		Message:   message,
		Cause:     cause,
		Retryable: retryable(code),
	}
}

// DecodeError reports an unreadable source image.
func DecodeError(sourceRef string, cause error) *LumeoError {
	return New(CodeDecode, fmt.Sprintf("failed to decode %s", sourceRef), cause)
}

// StageError reports a failed extraction stage.
func StageError(stage string, cause error) *LumeoError {
	return New(CodeStage, fmt.Sprintf("stage %s failed", stage), cause)
}

// ModelUnavailable reports a missing or broken model asset.
func ModelUnavailable(model string, cause error) *LumeoError {
	return New(CodeModel, fmt.Sprintf("model %s unavailable", model), cause)
}

// Timeout reports bounded generation exceeding its deadline.
func Timeout(operation string, cause error) *LumeoError {
	return New(CodeTimeout, fmt.Sprintf("%s timed out", operation), cause)
}

// StoreError reports a persistence failure.
func StoreError(message string, cause error) *LumeoError {
	return New(CodeStore, message, cause)
}

// retryable returns whether items failed with this code are worth
// re-queueing. Decode failures are not: the source bytes will not improve.
func retryable(code string) bool {
	switch code {
	case CodeStage, CodeModel, CodeTimeout, CodeStore:
		return true
	default:
		return false
	}
}

// CodeOf extracts the code from an error chain, or "" for plain errors.
func CodeOf(err error) string {
	for err != nil {
		if le, ok := err.(*LumeoError); ok {
			return le.Code
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			return ""
		}
		err = u.Unwrap()
	}
	return ""
}
