// Package eventloop implements the hypervisor library's event contract on top
// of goroutines.
//
// Every watched file descriptor and every armed timer gets its own monitor
// goroutine. A monitor's only job is to wait (poll(2) for handles, a
// time.Timer for timers) and, when the wait completes, to hand the callback to
// the Dispatcher. The Dispatcher runs callbacks one at a time, in the order
// they were scheduled, on a single goroutine: this is the "event loop thread"
// the native library expects to be called back on.
//
// Cancelling a monitor is synchronous. When UpdateHandle, RemoveHandle,
// UpdateTimer or RemoveTimer return, the old monitor goroutine has exited and
// no callback it scheduled will start.
//
// Loop owns the monitors and the id counters. Bridge adapts a Loop to the
// six-slot event.Impl interface and registers it with a library:
//
//	loop := eventloop.New(eventloop.WithLogger(log))
//	defer loop.Close()
//
//	bridge := eventloop.NewBridge(loop, eventloop.WithLogger(log))
//	if err := bridge.Register(lib); err != nil {
//	    return err
//	}
//	defer bridge.Unregister()
package eventloop
