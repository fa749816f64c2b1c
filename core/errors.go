package core

import (
	"fmt"

	"github.com/pkg/errors"
)

// Error codes rendered to API clients.
const (
	CodeValidation             = "validation_error"
	CodeNotEligible            = "not_eligible"
	CodeInvalidStateTransition = "invalid_state_transition"
	CodeNotFound               = "not_found"
	CodeConflict               = "conflict"
)

// Coder is implemented by every business error variant.
type Coder interface {
	error
	Code() string
}

// FieldError is used to indicate an error with a specific struct field.
type FieldError struct {
	Field string
	Error string
}

type ValidationError struct {
	Err     error
	Fields  []FieldError
	Details map[string]interface{}
}

func NewValidationError(err error, flds ...FieldError) *ValidationError {
	return &ValidationError{Err: err, Fields: flds}
}

// NewFieldValidationError is a shortcut for a ValidationError on a single field.
func NewFieldValidationError(field, msg string) *ValidationError {
	return NewValidationError(errors.New(msg), FieldError{Field: field, Error: msg})
}

// WithDetail attaches a detail the caller can use to correct its request.
func (err *ValidationError) WithDetail(key string, val interface{}) *ValidationError {
	if err.Details == nil {
		err.Details = make(map[string]interface{})
	}
	err.Details[key] = val
	return err
}

func (err *ValidationError) Error() string {
	if err.Err == nil {
		if len(err.Fields) > 0 {
			return err.Fields[0].Field + ": " + err.Fields[0].Error
		}
		return "validation failed"
	}
	return err.Err.Error()
}

func (err *ValidationError) Code() string { return CodeValidation }

// NotEligibleError means a business precondition is not met, eg. an expired discount.
type NotEligibleError struct {
	Reason  string
	Message string
	Details map[string]interface{}
}

func NewNotEligibleError(reason, msg string) *NotEligibleError {
	return &NotEligibleError{Reason: reason, Message: msg}
}

func (err *NotEligibleError) WithDetail(key string, val interface{}) *NotEligibleError {
	if err.Details == nil {
		err.Details = make(map[string]interface{})
	}
	err.Details[key] = val
	return err
}

func (err *NotEligibleError) Error() string { return err.Message }
func (err *NotEligibleError) Code() string  { return CodeNotEligible }

type InvalidStateTransitionError struct {
	Resource string
	From     string
	Action   string
}

func NewInvalidStateTransitionError(resource, from, action string) *InvalidStateTransitionError {
	return &InvalidStateTransitionError{Resource: resource, From: from, Action: action}
}

func (err *InvalidStateTransitionError) Error() string {
	return fmt.Sprintf("cannot %s a %s %s", err.Action, err.From, err.Resource)
}

func (err *InvalidStateTransitionError) Code() string { return CodeInvalidStateTransition }

// NotFoundError is returned by repositories when a record does not exist.
// Packages declare their own sentinel values, eg. `ErrNotFound = core.NewNotFoundError("student")`.
type NotFoundError struct {
	Resource string
}

func NewNotFoundError(resource string) *NotFoundError {
	return &NotFoundError{Resource: resource}
}

func (err *NotFoundError) Error() string { return err.Resource + " not found" }
func (err *NotFoundError) Code() string  { return CodeNotFound }

// IsNotFound reports whether the cause of err is a NotFoundError.
func IsNotFound(err error) bool {
	_, ok := errors.Cause(err).(*NotFoundError)
	return ok
}

type ConflictError struct {
	Message string
	Details interface{}
}

func NewConflictError(msg string, details interface{}) *ConflictError {
	return &ConflictError{Message: msg, Details: details}
}

func (err *ConflictError) Error() string { return err.Message }
func (err *ConflictError) Code() string  { return CodeConflict }

type shutdown struct {
	message string
}

func NewShutdownError(msg string) error {
	return &shutdown{message: msg}
}

func (s shutdown) Error() string {
	return s.message
}

func IsShutdown(err error) bool {
	_, ok := errors.Cause(err).(*shutdown)
	return ok
}
