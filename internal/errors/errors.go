// Package errors defines the typed failures returned by the listing core.
//
// Every failure carries an ErrorType so transport adapters can map it to a
// response code without string matching.
package errors

import (
	stderrors "errors"
	"fmt"

	goerrors "github.com/go-errors/errors"
)

type ErrorType string

const (
	ErrTypeNotFound       ErrorType = "NOT_FOUND"
	ErrTypeStorageFailure ErrorType = "STORAGE_FAILURE"
	// ErrTypeInvalidState is reserved for manual-transition preconditions.
	// Manual transitions are currently unconditional.
	ErrTypeInvalidState ErrorType = "INVALID_STATE"
	ErrTypeInvalidInput ErrorType = "INVALID_INPUT"
)

type DomainError struct {
	Type    ErrorType
	Message string
	Err     error
	Stack   []byte
}

func (e *DomainError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Type, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Type, e.Message)
}

func (e *DomainError) Unwrap() error {
	return e.Err
}

func (e *DomainError) StackTrace() []byte {
	return e.Stack
}

func New(errType ErrorType, message string, err error) *DomainError {
	var stack []byte
	if err != nil {
		if stackErr, ok := err.(*goerrors.Error); ok {
			stack = stackErr.Stack()
		} else {
			stack = goerrors.Wrap(err, 2).Stack()
		}
	} else {
		stack = goerrors.New(message).Stack()
	}

	return &DomainError{
		Type:    errType,
		Message: message,
		Err:     err,
		Stack:   stack,
	}
}

func NotFound(message string, err error) *DomainError {
	return New(ErrTypeNotFound, message, err)
}

func StorageFailure(message string, err error) *DomainError {
	return New(ErrTypeStorageFailure, message, err)
}

func InvalidState(message string, err error) *DomainError {
	return New(ErrTypeInvalidState, message, err)
}

func InvalidInput(message string, err error) *DomainError {
	return New(ErrTypeInvalidInput, message, err)
}

// TypeOf returns the ErrorType of the first DomainError in err's chain, or
// the empty string when there is none.
func TypeOf(err error) ErrorType {
	var de *DomainError
	if stderrors.As(err, &de) {
		return de.Type
	}
	return ""
}

// MessageOf returns the client-facing message of the first DomainError in
// err's chain, falling back to err.Error().
func MessageOf(err error) string {
	var de *DomainError
	if stderrors.As(err, &de) {
		return de.Message
	}
	return err.Error()
}

// StackOf returns the stack captured by the first DomainError in err's
// chain, or nil.
func StackOf(err error) []byte {
	var de *DomainError
	if stderrors.As(err, &de) {
		return de.StackTrace()
	}
	return nil
}

func IsNotFound(err error) bool       { return TypeOf(err) == ErrTypeNotFound }
func IsStorageFailure(err error) bool { return TypeOf(err) == ErrTypeStorageFailure }
func IsInvalidInput(err error) bool   { return TypeOf(err) == ErrTypeInvalidInput }
