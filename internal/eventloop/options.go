package eventloop

import "github.com/rs/zerolog"

// Option configures a Loop or a Bridge.
type Option func(*options)

type options struct {
	log     zerolog.Logger
	onPanic func(error)
}

func resolveOptions(opts []Option) options {
	o := options{log: zerolog.Nop()}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// WithLogger sets the logger. The default discards everything.
func WithLogger(l zerolog.Logger) Option {
	return func(o *options) {
		o.log = l
	}
}

// WithPanicHandler sets a function that receives a *PanicError whenever a
// dispatched callback panics. Panics are always logged; the handler is
// called after logging, on the dispatcher goroutine.
func WithPanicHandler(fn func(error)) Option {
	return func(o *options) {
		o.onPanic = fn
	}
}
