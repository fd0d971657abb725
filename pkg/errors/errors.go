package errors

import (
	"errors"
	"fmt"
	"net/http"
)

// Error represents a typed domain error with HTTP awareness.
type Error struct {
	Code    string                 `json:"code"`
	Message string                 `json:"message"`
	Status  int                    `json:"status"`
	Details map[string]interface{} `json:"details,omitempty"`
	Err     error                  `json:"-"`
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e == nil {
		return "<nil>"
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

// Unwrap returns the wrapped error.
func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// Is matches errors sharing the same code so that cloned errors satisfy errors.Is.
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) || e == nil || t == nil {
		return false
	}
	return e.Code == t.Code
}

// WithDetails returns a copy carrying the supplied context fields.
func (e *Error) WithDetails(kv map[string]interface{}) *Error {
	if e == nil {
		return nil
	}
	clone := *e
	clone.Details = make(map[string]interface{}, len(e.Details)+len(kv))
	for k, v := range e.Details {
		clone.Details[k] = v
	}
	for k, v := range kv {
		clone.Details[k] = v
	}
	return &clone
}

// New creates a new Error instance.
func New(code string, status int, message string) *Error {
	return &Error{Code: code, Status: status, Message: message}
}

// Wrap attaches context to an existing error.
func Wrap(err error, code string, status int, message string) *Error {
	return &Error{Code: code, Status: status, Message: message, Err: err}
}

// Predefined errors for common scenarios.
var (
	ErrInvalidCredentials = New("INVALID_CREDENTIALS", http.StatusUnauthorized, "invalid email or password")
	ErrInactiveAccount    = New("ACCOUNT_INACTIVE", http.StatusForbidden, "account is inactive")
	ErrNotFound           = New("NOT_FOUND", http.StatusNotFound, "resource not found")
	ErrForbidden          = New("FORBIDDEN", http.StatusForbidden, "forbidden")
	ErrUnauthorized       = New("UNAUTHORIZED", http.StatusUnauthorized, "unauthorized")
	ErrConflict           = New("CONFLICT", http.StatusConflict, "conflict")
	ErrValidation         = New("VALIDATION_ERROR", http.StatusBadRequest, "validation failed")
	ErrInternal           = New("INTERNAL_ERROR", http.StatusInternalServerError, "internal server error")
	ErrCacheMiss          = New("CACHE_MISS", http.StatusNotFound, "cache miss")
	ErrLockTimeout        = New("LOCK_TIMEOUT", http.StatusConflict, "record is busy, retry shortly")
)

// Job-card workflow errors.
var (
	ErrInvalidTransition   = New("INVALID_TRANSITION", http.StatusConflict, "status transition not allowed")
	ErrNotCompleted        = New("NOT_COMPLETED", http.StatusConflict, "job card is not completed")
	ErrAlreadyApproved     = New("ALREADY_APPROVED", http.StatusConflict, "job card already approved")
	ErrEmptyNote           = New("EMPTY_NOTE", http.StatusBadRequest, "rejection note is required")
	ErrNotApproved         = New("NOT_APPROVED", http.StatusConflict, "job card is not approved")
	ErrAlreadyScored       = New("ALREADY_SCORED", http.StatusConflict, "job card already scored")
	ErrLocationUnavailable = New("LOCATION_UNAVAILABLE", http.StatusServiceUnavailable, "location unavailable")
	ErrActiveJobExists     = New("ACTIVE_JOB_EXISTS", http.StatusConflict, "another job card is already in progress")
)

// Attendance errors.
var (
	ErrDayAlreadyActive  = New("DAY_ALREADY_ACTIVE", http.StatusConflict, "a working day is already active")
	ErrDayAlreadyEnded   = New("DAY_ALREADY_ENDED", http.StatusConflict, "today's working day has already ended")
	ErrNoActiveDay       = New("NO_ACTIVE_DAY", http.StatusConflict, "no active working day")
	ErrDayNotActive      = New("DAY_NOT_ACTIVE", http.StatusConflict, "start your day before updating job cards")
	ErrDayClosureBlocked = New("DAY_CLOSURE_BLOCKED", http.StatusConflict, "job cards scheduled today are still open")
)

// FromError normalises any error into an *Error.
func FromError(err error) *Error {
	if err == nil {
		return nil
	}
	var e *Error
	if errors.As(err, &e) {
		return e
	}
	return Wrap(err, ErrInternal.Code, ErrInternal.Status, ErrInternal.Message)
}

// Clone returns a copy of the error allowing for message overrides.
func Clone(err *Error, message string) *Error {
	if err == nil {
		return nil
	}
	clone := *err
	if message != "" {
		clone.Message = message
	}
	return &clone
}

// HasCode reports whether err is a typed error carrying code.
func HasCode(err error, code string) bool {
	var e *Error
	if !errors.As(err, &e) {
		return false
	}
	return e.Code == code
}
