package eventloop

import (
	"errors"
	"fmt"
)

var (
	// ErrLoopClosed is returned by operations on a closed Loop.
	ErrLoopClosed = errors.New("eventloop: loop is closed")

	// ErrUnknownHandle is returned when a watch id is not registered.
	ErrUnknownHandle = errors.New("eventloop: unknown handle")

	// ErrUnknownTimer is returned when a timer id is not registered.
	ErrUnknownTimer = errors.New("eventloop: unknown timer")

	// ErrInvalidFD is returned for negative file descriptors.
	ErrInvalidFD = errors.New("eventloop: invalid file descriptor")

	// ErrNilCallback is returned when a handle or timer is added without
	// callback info.
	ErrNilCallback = errors.New("eventloop: nil callback info")

	// ErrBadDescriptor is reported when poll flags a watched fd as invalid.
	ErrBadDescriptor = errors.New("eventloop: descriptor is not open")

	// ErrPollUnsupported is returned on platforms without poll(2).
	ErrPollUnsupported = errors.New("eventloop: fd polling is not supported on this platform")

	// ErrAlreadyRegistered is returned by Bridge.Register when an
	// implementation is already registered.
	ErrAlreadyRegistered = errors.New("eventloop: event implementation already registered")

	// ErrNotRegistered is returned by Bridge.Unregister when nothing is
	// registered.
	ErrNotRegistered = errors.New("eventloop: event implementation not registered")

	// ErrNilRegistrar is returned by Bridge.Register for a nil registrar.
	ErrNilRegistrar = errors.New("eventloop: nil registrar")
)

// PanicError wraps a value recovered from a panicking callback.
type PanicError struct {
	Value any
	Stack []byte
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("eventloop: callback panicked: %v", e.Value)
}

// Unwrap returns the panic value when it is an error.
func (e *PanicError) Unwrap() error {
	if err, ok := e.Value.(error); ok {
		return err
	}
	return nil
}
