package call

import (
	"errors"
	"fmt"
)

var (
	ErrRoomNotFound      = errors.New("room not found")
	ErrPeerDisconnected  = errors.New("peer disconnected")
	ErrTransportLost     = errors.New("signaling transport lost")
	ErrNegotiationFailed = errors.New("negotiation failed")
	ErrTimeout           = errors.New("timeout")
	ErrUnexpectedSignal  = errors.New("unexpected signal type")
)

// CallError wraps a failure with the operation that produced it.
type CallError struct {
	Op      string
	Err     error
	Details string
}

func (e *CallError) Error() string {
	if e.Details != "" {
		return fmt.Sprintf("%s: %v (%s)", e.Op, e.Err, e.Details)
	}
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *CallError) Unwrap() error {
	return e.Err
}

func NewError(op string, err error) *CallError {
	return &CallError{Op: op, Err: err}
}

func WrapError(op string, err error, details string) *CallError {
	return &CallError{Op: op, Err: err, Details: details}
}
