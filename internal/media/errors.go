package media

import (
	"errors"
	"fmt"
)

var (
	// ErrNoSources means neither a video nor an audio source was configured.
	ErrNoSources = errors.New("no capture sources configured")

	// ErrSourceUnavailable means a configured source could not be opened,
	// the file-backed analogue of a missing or busy device.
	ErrSourceUnavailable = errors.New("capture source unavailable")

	// ErrUnsupportedCodec means a source file uses a codec the session
	// cannot send.
	ErrUnsupportedCodec = errors.New("unsupported codec")
)

// Error is a media acquisition or playback failure, distinct from any
// negotiation failure.
type Error struct {
	Op     string
	Source string
	Err    error
}

func (e *Error) Error() string {
	if e.Source != "" {
		return fmt.Sprintf("%s %s: %v", e.Op, e.Source, e.Err)
	}
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

func newError(op, source string, err error) *Error {
	return &Error{Op: op, Source: source, Err: err}
}
