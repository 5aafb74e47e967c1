package protocol

import "errors"

var (
	// ErrInvalidHeader means the header byte carries an undefined route or
	// payload type value.
	ErrInvalidHeader = errors.New("invalid packet header")

	// ErrPathTooLong means the path exceeds the 15 hashes the header can encode.
	ErrPathTooLong = errors.New("path too long")

	// ErrPayloadTooLarge means the serialized frame would exceed the radio's
	// 255-byte limit.
	ErrPayloadTooLarge = errors.New("payload too large")

	// ErrTooShort means the input ended before the length implied by the header.
	ErrTooShort = errors.New("packet too short")
)
