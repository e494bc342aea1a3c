package inputs

import (
	"bytes"
	"context"
	"encoding/json"
)

// Decodable - an interface that allows for decoding of inputs and params
type Decodable interface {
	Decode(context.Context, []byte) error
}

// Validatable - an interface that allows for validation of inputs and params
type Validatable interface {
	Validate(context.Context) error
}

// DecodeValidate - a decodable and validatable thing
type DecodeValidate interface {
	Validatable
	Decodable
}

// Decode - decode a decodable thing
func Decode(ctx context.Context, d Decodable, input []byte) error {
	return d.Decode(ctx, input)
}

// Validate - validate a validatable thing
func Validate(ctx context.Context, v Validatable) error {
	return v.Validate(ctx)
}

// DecodeAndValidate - decode and validate a decodable/validatable thing
func DecodeAndValidate(ctx context.Context, dv DecodeValidate, input []byte) error {
	if err := Decode(ctx, dv, input); err != nil {
		return err
	}
	return Validate(ctx, dv)
}

// DecodeAndValidateString - helper to decode and validate a string input
func DecodeAndValidateString(ctx context.Context, dv DecodeValidate, input string) error {
	return DecodeAndValidate(ctx, dv, []byte(input))
}

// DecodeJSON - decode json helper
func DecodeJSON(ctx context.Context, input []byte, v interface{}) error {
	dec := json.NewDecoder(bytes.NewBuffer(input))
	return dec.Decode(v)
}
