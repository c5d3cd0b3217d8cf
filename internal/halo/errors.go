package halo

import (
	"errors"
	"fmt"
)

// Sentinel lookup errors. Buttons and pages can be deleted while
// events referencing them are still in flight, so callers are expected
// to treat these as "stale reference, skip".
var (
	ErrButtonNotFound = errors.New("button not found in configuration")
	ErrPageNotFound   = errors.New("page not found in configuration")
)

// ValidationError reports a model constraint violation at construction
// time, such as an out-of-range button value.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Message)
}

// DecodeError reports an inbound frame that could not be deserialized.
// The transport loop logs these and drops the frame, it never
// terminates because of one.
type DecodeError struct {
	Payload []byte
	Err     error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("unable to decode frame %q: %v", e.Payload, e.Err)
}

func (e *DecodeError) Unwrap() error {
	return e.Err
}
