package types

import (
	"errors"
	"fmt"
)

const (
	CodeValidation        = "VALIDATION"
	CodeUIElementNotFound = "UI_ELEMENT_NOT_FOUND"
	CodeResponseDecode    = "RESPONSE_DECODE"
	CodeSessionProvision  = "SESSION_PROVISION"
	CodeOutputWrite       = "OUTPUT_WRITE"
	CodeRunNotFound       = "RUN_NOT_FOUND"
	CodeRunActive         = "RUN_ACTIVE"
	CodeSnapshotNotFound  = "SNAPSHOT_NOT_FOUND"
)

// CodedError is a typed error used for stable classification across packages.
type CodedError struct {
	Code    string
	Message string
	Cause   error
}

func (e *CodedError) Error() string {
	if e.Cause == nil {
		return fmt.Sprintf("%s: %s", e.Code, e.Message)
	}
	return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Cause)
}

func (e *CodedError) Unwrap() error { return e.Cause }

// NewError builds a CodedError.
func NewError(code, msg string, cause error) error {
	return &CodedError{Code: code, Message: msg, Cause: cause}
}

// NewUIElementNotFound reports a UI element that never became actionable.
// It is fatal to the run.
func NewUIElementNotFound(step string, cause error) error {
	return &CodedError{Code: CodeUIElementNotFound, Message: step, Cause: cause}
}

// NewResponseDecode reports a matching response that could not be turned into a record.
func NewResponseDecode(msg string, cause error) error {
	return &CodedError{Code: CodeResponseDecode, Message: msg, Cause: cause}
}

// NewSessionProvision reports a browser session that could not be started.
func NewSessionProvision(msg string, cause error) error {
	return &CodedError{Code: CodeSessionProvision, Message: msg, Cause: cause}
}

// HasCode reports whether any CodedError in err's chain carries code.
func HasCode(err error, code string) bool {
	var coded *CodedError
	if !errors.As(err, &coded) {
		return false
	}
	if coded.Code == code {
		return true
	}
	return HasCode(coded.Cause, code)
}
