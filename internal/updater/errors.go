package updater

import "errors"

// ErrorCode classifies an updater failure for the API layer.
type ErrorCode string

const (
	ErrCodeInvalidState   ErrorCode = "INVALID_STATE"
	ErrCodeCheckFailed    ErrorCode = "CHECK_FAILED"
	ErrCodeNotFound       ErrorCode = "NOT_FOUND"
	ErrCodeNoUpdate       ErrorCode = "NO_UPDATE"
	ErrCodeApplyFailed    ErrorCode = "APPLY_FAILED"
	ErrCodeBackupFailed   ErrorCode = "BACKUP_FAILED"
	ErrCodeRollbackFailed ErrorCode = "ROLLBACK_FAILED"
	ErrCodeNoBackup       ErrorCode = "NO_BACKUP"
	ErrCodeDisabled       ErrorCode = "DISABLED"
)

// Error is an updater failure with its code and optional cause.
type Error struct {
	Code    ErrorCode
	Message string
	Cause   error
}

func (e *Error) Error() string {
	msg := string(e.Code) + ": " + e.Message
	if e.Cause != nil {
		msg += ": " + e.Cause.Error()
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// Code returns the code of the first updater error in err's chain, or "".
func Code(err error) ErrorCode {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}

func newError(code ErrorCode, message string, cause error) *Error {
	return &Error{Code: code, Message: message, Cause: cause}
}
