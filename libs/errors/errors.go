package errors

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound - resource not found
	ErrNotFound = errors.New("not found")
	// ErrBadRequest - bad request error
	ErrBadRequest = errors.New("error bad request")
	// ErrInternalServerError - internal server error
	ErrInternalServerError = errors.New("server encountered an internal error and was unable to complete the request")
	// ErrFailedClientRequest - failed to perform client request
	ErrFailedClientRequest = errors.New("failed to perform api request")
	// ErrFailedBodyUnmarshal - failed to decode body
	ErrFailedBodyUnmarshal = errors.New("failed to unmarshal the response body")
)

// ErrorBundle - an error with a cause and associated state data
type ErrorBundle struct {
	cause   error
	message string
	data    interface{}
}

// New creates a new ErrorBundle
func New(cause error, message string, data interface{}) error {
	return &ErrorBundle{
		cause,
		message,
		data,
	}
}

// Wrap a given error with a message
func Wrap(cause error, message string) error {
	return &ErrorBundle{
		cause:   cause,
		message: message,
	}
}

// Data from the error origin
func (e ErrorBundle) Data() interface{} {
	return e.data
}

// Cause returns the associated cause
func (e ErrorBundle) Cause() error {
	return e.cause
}

// Unwrap returns the associated cause
func (e ErrorBundle) Unwrap() error {
	return e.cause
}

// Error turns into an error
func (e ErrorBundle) Error() string {
	return e.message
}

// DataToString returns a string representation of the error bundle state for logging
func (e ErrorBundle) DataToString() string {
	return fmt.Sprintf("error bundle: %s: cause %v: data %+v", e.message, e.cause, e.data)
}
