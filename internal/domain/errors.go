package domain

import (
	"errors"
	"fmt"
)

// Application error codes
const (
	EINVALID   = "invalid"              // Malformed input rejected before processing
	ENOTFOUND  = "not_found"            // Resource not found
	ECONFLICT  = "conflict"             // Resource conflict (e.g., duplicate remote key)
	ETOOLARGE  = "too_large"            // Request entity too large
	ERATELIMIT = "rate_limit"           // Rate limit exceeded
	ERENDER    = "render_failure"       // Decode/resize/encode failed for a file
	EHASH      = "hash_failure"         // Placeholder hash could not be computed
	EUPLOAD    = "upload_failure"       // Remote store rejected an upload
	EDELETE    = "delete_inconsistency" // Remote deletion was not fully ok
	EINTERNAL  = "internal"             // Internal server error
)

// Error represents an application error with structured information.
type Error struct {
	Code    string // Machine-readable error code
	Op      string // Operation that failed (e.g., "image.create")
	Message string // Human-readable message
	Err     error  // Underlying error
}

// Error returns "op: message: cause", omitting empty parts. The cause is for
// logs only; callers outside the process get ErrorMessage.
func (e *Error) Error() string {
	msg := e.Message
	if e.Op != "" {
		msg = e.Op + ": " + msg
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Errorf creates a new Error with the given code, operation, and formatted message.
func Errorf(code, op, format string, args ...interface{}) *Error {
	return &Error{Code: code, Op: op, Message: fmt.Sprintf(format, args...)}
}

// Wrap wraps an existing error with additional context.
func Wrap(err error, code, op, message string) *Error {
	return &Error{Code: code, Op: op, Message: message, Err: err}
}

// genericMessage replaces messages that may carry internal detail.
const genericMessage = "An internal error occurred. Please try again later."

// asError returns the outermost *Error in err's chain.
func asError(err error) (*Error, bool) {
	var e *Error
	ok := errors.As(err, &e)
	return e, ok
}

// ErrorCode returns the code of the outermost application error, EINTERNAL
// for any other non-nil error, and "" for nil.
func ErrorCode(err error) string {
	if err == nil {
		return ""
	}
	if e, ok := asError(err); ok {
		return e.Code
	}
	return EINTERNAL
}

// ErrorMessage returns the message safe to show to a caller. Internal and
// delete inconsistency errors get a generic message.
func ErrorMessage(err error) string {
	if err == nil {
		return ""
	}
	e, ok := asError(err)
	if !ok {
		return genericMessage
	}
	switch e.Code {
	case EINTERNAL:
		return genericMessage
	case EDELETE:
		return "Unexpected error"
	}
	return e.Message
}

// ErrorOp returns the operation of the outermost application error, if any.
func ErrorOp(err error) string {
	if e, ok := asError(err); ok {
		return e.Op
	}
	return ""
}

// IsCode reports whether err carries the given application error code.
func IsCode(err error, code string) bool {
	return err != nil && ErrorCode(err) == code
}

// =============================================================================
// Constructors, one per caller-visible kind
// =============================================================================

func NotFound(op, resource, id string) *Error {
	return Errorf(ENOTFOUND, op, "%s with ID %q not found", resource, id)
}

// Invalid is a ValidationFailure: input rejected before any processing.
func Invalid(op, message string) *Error {
	return &Error{Code: EINVALID, Op: op, Message: message}
}

func Conflict(op, message string) *Error {
	return &Error{Code: ECONFLICT, Op: op, Message: message}
}

func Internal(err error, op, message string) *Error {
	return Wrap(err, EINTERNAL, op, message)
}

func RateLimit(op string) *Error {
	return &Error{Code: ERATELIMIT, Op: op, Message: "Too many requests. Please try again later."}
}

// RenderFailure: decode, resize or encode of one file failed.
func RenderFailure(err error, op, filename string) *Error {
	return Wrap(err, ERENDER, op, fmt.Sprintf("Error while resizing image %s", filename))
}

// HashFailure: the placeholder of one file could not be computed.
func HashFailure(err error, op, filename string) *Error {
	return Wrap(err, EHASH, op, fmt.Sprintf("Error while computing placeholder for image %s", filename))
}

// UploadFailure: the remote host rejected one variant or could not be reached.
func UploadFailure(err error, op, key string, folder Folder) *Error {
	return Wrap(err, EUPLOAD, op, fmt.Sprintf("Error uploading %s/%s", folder, key))
}

// DeleteInconsistency: a remote deletion did not report ok in every folder.
func DeleteInconsistency(err error, op, key string) *Error {
	return Wrap(err, EDELETE, op, fmt.Sprintf("remote deletion of %q was not fully ok", key))
}
