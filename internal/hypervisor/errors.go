package hypervisor

import "errors"

var (
	// ErrConnClosed is returned by operations on a closed connection.
	ErrConnClosed = errors.New("hypervisor: connection is closed")

	// ErrNoEventImpl is returned when an operation needs the event loop and
	// none is registered.
	ErrNoEventImpl = errors.New("hypervisor: no event implementation registered")

	// ErrEventImplFailed is returned when the event implementation rejects an
	// add call.
	ErrEventImplFailed = errors.New("hypervisor: event implementation rejected the request")

	// ErrUnsupportedEventKind is returned when the connection's event source
	// can not produce the requested kind.
	ErrUnsupportedEventKind = errors.New("hypervisor: unsupported event kind")

	// ErrUnknownCallback is returned when deregistering an id that is not
	// registered.
	ErrUnknownCallback = errors.New("hypervisor: unknown callback id")

	// ErrCloseCallbackExists is returned when a close callback is already
	// registered.
	ErrCloseCallbackExists = errors.New("hypervisor: close callback already registered")

	// ErrNoCloseCallback is returned when unregistering a close callback that
	// was never registered.
	ErrNoCloseCallback = errors.New("hypervisor: no close callback registered")
)
