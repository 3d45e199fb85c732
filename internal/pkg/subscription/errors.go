package subscription

import (
	"errors"
	"fmt"
)

// ErrorCode classifies reconciliation failures so callers can tell apart
// "nothing was stored" from "primary stored but the mirror write failed",
// and billing outages from plain bad requests.
type ErrorCode string

const (
	CodeAuth              ErrorCode = "auth"
	CodeValidation        ErrorCode = "validation"
	CodeNotFound          ErrorCode = "not_found"
	CodeProvider          ErrorCode = "provider"
	CodePersistence       ErrorCode = "persistence"
	CodePersistenceMirror ErrorCode = "persistence_mirror"
)

type Error struct {
	Code    ErrorCode
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

func newError(code ErrorCode, message string, err error) *Error {
	return &Error{Code: code, Message: message, Err: err}
}

// CodeOf returns the error code carried by err, or empty if err is not a
// reconciliation error.
func CodeOf(err error) ErrorCode {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}

// IsNotFound reports whether err is the no-data case.
func IsNotFound(err error) bool {
	return CodeOf(err) == CodeNotFound
}
