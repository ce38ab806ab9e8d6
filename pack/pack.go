// Package pack implements container items: stamping item metadata with a
// container identity, encoding slot contents onto the item itself, and the
// per-actor session registry that guards every mutation of an open view.
package pack

import (
	"fmt"

	"github.com/pkg/errors"
)

const (
	// SlotsPerRow is the capacity unit. Capacities are whole rows.
	SlotsPerRow = 9
	// MaxRows caps a container at a standard large view.
	MaxRows = 6
	// MaxCapacity is the largest stampable slot count.
	MaxCapacity = SlotsPerRow * MaxRows
)

var (
	ErrNotAContainer     = errors.New("not a container")
	ErrInvalidCapacity   = errors.New("invalid capacity")
	ErrNoOpenSession     = errors.New("no open session")
	ErrIndexOutOfRange   = errors.New("slot index out of range")
	ErrRecursionRejected = errors.New("a container cannot go inside another container")

	// ErrMalformedPayload and ErrLengthMismatch match the two DecodeError
	// reasons through errors.Is.
	ErrMalformedPayload = errors.New("malformed payload")
	ErrLengthMismatch   = errors.New("payload length mismatch")
)

type DecodeReason int

const (
	// DecodeMalformed covers truncation, trailing bytes, and unknown versions.
	DecodeMalformed DecodeReason = iota
	// DecodeLengthMismatch means the stored slot count contradicts the
	// identity's declared capacity.
	DecodeLengthMismatch
)

// DecodeError reports a content payload that could not be decoded.
type DecodeError struct {
	Reason   DecodeReason
	Declared int
	Stored   int
	Err      error
}

func (e *DecodeError) Error() string {
	switch e.Reason {
	case DecodeLengthMismatch:
		return fmt.Sprintf("payload holds %d slots, identity declares %d", e.Stored, e.Declared)
	default:
		if e.Err != nil {
			return fmt.Sprintf("malformed payload: %v", e.Err)
		}
		return "malformed payload"
	}
}

func (e *DecodeError) Unwrap() error {
	return e.Err
}

func (e *DecodeError) Is(target error) bool {
	if e.Reason == DecodeLengthMismatch {
		return target == ErrLengthMismatch
	}
	return target == ErrMalformedPayload
}

// ValidCapacity reports whether capacity is a positive whole number of rows
// within the maximum.
func ValidCapacity(capacity int) bool {
	return capacity > 0 && capacity%SlotsPerRow == 0 && capacity <= MaxCapacity
}
