package inputs

import (
	"context"
	"errors"
	"strconv"
)

var (
	// ErrIDDecodeEmpty - an error that tells caller the id is empty and should not be
	ErrIDDecodeEmpty = errors.New("failed to decode id: id cannot be empty")
	// ErrIDDecodeNotInt - an error that tells caller the id is not an integer
	ErrIDDecodeNotInt = errors.New("failed to decode id: id is not an integer")
	// ErrIDValidateNotPositive - an error that tells caller the id must be positive
	ErrIDValidateNotPositive = errors.New("failed to validate id: id must be positive")
)

// ID - a numeric identity type used for url parameters
type ID struct {
	id  int64
	raw string
}

// Int64 - return the int64 representation of the ID
func (id *ID) Int64() int64 {
	return id.id
}

// String - return the String representation of the ID
func (id *ID) String() string {
	return id.raw
}

// Validate - validate the decoded ID
func (id *ID) Validate(ctx context.Context) error {
	if id.id <= 0 {
		return ErrIDValidateNotPositive
	}
	return nil
}

// Decode - take raw []byte input and populate id with the ID
func (id *ID) Decode(ctx context.Context, input []byte) error {
	if len(input) == 0 {
		return ErrIDDecodeEmpty
	}
	id.raw = string(input)

	parsed, err := strconv.ParseInt(id.raw, 10, 64)
	if err != nil {
		return ErrIDDecodeNotInt
	}
	id.id = parsed
	return nil
}
