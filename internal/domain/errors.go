package domain

import (
	"errors"
	"fmt"
	"strings"
)

// ErrorCode classifies every failure the pipeline can surface. Codes are
// stable strings so they can cross process boundaries unchanged.
type ErrorCode string

const (
	CodePermissionDenied       ErrorCode = "PERMISSION_DENIED"
	CodeDeviceNotFound         ErrorCode = "DEVICE_NOT_FOUND"
	CodeDeviceBusy             ErrorCode = "DEVICE_BUSY"
	CodeRecordingTooShort      ErrorCode = "RECORDING_TOO_SHORT"
	CodeTranscriptionFailed    ErrorCode = "TRANSCRIPTION_FAILED"
	CodeNoSpeechDetected       ErrorCode = "NO_SPEECH_DETECTED"
	CodeIntentExtractionFailed ErrorCode = "INTENT_EXTRACTION_FAILED"
	CodeValidationFailed       ErrorCode = "VALIDATION_FAILED"
	CodeInsufficientBalance    ErrorCode = "INSUFFICIENT_BALANCE"
	CodeInsufficientGas        ErrorCode = "INSUFFICIENT_GAS"
	CodeInvalidRecipient       ErrorCode = "INVALID_RECIPIENT"
	CodeTransactionReverted    ErrorCode = "TRANSACTION_REVERTED"
	CodeTransactionFailed      ErrorCode = "TRANSACTION_FAILED"
	CodeNetworkError           ErrorCode = "NETWORK_ERROR"
	CodeRateLimited            ErrorCode = "RATE_LIMITED"
	CodeTimeout                ErrorCode = "TIMEOUT"
	CodeAPIKeyError            ErrorCode = "API_KEY_ERROR"
	CodeUnsupported            ErrorCode = "UNSUPPORTED"
	CodeUnknown                ErrorCode = "UNKNOWN"
)

// PipelineError is the error type every pipeline tier surfaces. Details
// carries the individual rule violations for validation failures.
type PipelineError struct {
	Code    ErrorCode
	Message string
	Details []string
	Err     error
}

func (e *PipelineError) Error() string {
	var sb strings.Builder
	sb.WriteString(string(e.Code))
	if e.Message != "" {
		sb.WriteString(": ")
		sb.WriteString(e.Message)
	}
	if len(e.Details) > 0 {
		sb.WriteString(" (")
		sb.WriteString(strings.Join(e.Details, "; "))
		sb.WriteString(")")
	}
	if e.Err != nil {
		sb.WriteString(": ")
		sb.WriteString(e.Err.Error())
	}
	return sb.String()
}

func (e *PipelineError) Unwrap() error {
	return e.Err
}

func NewError(code ErrorCode, message string) *PipelineError {
	return &PipelineError{Code: code, Message: message}
}

func Errorf(code ErrorCode, format string, args ...any) *PipelineError {
	return &PipelineError{Code: code, Message: fmt.Sprintf(format, args...)}
}

// WrapError attaches a code and message to an underlying cause. If the
// cause already carries a code, that code wins so classification done close
// to the wire survives re-wrapping.
func WrapError(code ErrorCode, message string, err error) *PipelineError {
	if err != nil {
		var pe *PipelineError
		if errors.As(err, &pe) {
			code = pe.Code
		}
	}
	return &PipelineError{Code: code, Message: message, Err: err}
}

// NewValidationError builds the data-shaped failure for an invalid intent.
func NewValidationError(details []string) *PipelineError {
	return &PipelineError{
		Code:    CodeValidationFailed,
		Message: "command failed validation",
		Details: details,
	}
}

// CodeOf extracts the classification of err, or CodeUnknown.
func CodeOf(err error) ErrorCode {
	var pe *PipelineError
	if errors.As(err, &pe) {
		return pe.Code
	}
	return CodeUnknown
}

// IsCode reports whether err is classified as code.
func IsCode(err error, code ErrorCode) bool {
	return CodeOf(err) == code
}

// Retryable reports whether a fresh attempt could plausibly succeed.
// Deterministic outcomes (bad input, missing credentials, validation) are
// final; transport and service hiccups are not.
func Retryable(err error) bool {
	switch CodeOf(err) {
	case CodeTranscriptionFailed, CodeIntentExtractionFailed,
		CodeNetworkError, CodeRateLimited, CodeTimeout:
		return true
	}
	return false
}
