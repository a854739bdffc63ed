// Package event defines the event-loop contract the hypervisor library calls
// into: six entry points to watch file descriptors and schedule timeouts, plus
// the (callback, opaque, free) triples those entry points carry.
package event

import "strings"

// HandleType is the bit set of conditions a file handle can be watched for or
// reported with. The values match the native library's ABI.
type HandleType int

const (
	Readable HandleType = 1 << iota
	Writable
	Error
	Hangup
)

// Interest returns the subset of h that can be waited on. Error and Hangup
// are only ever reported, never requested.
func (h HandleType) Interest() HandleType {
	return h & (Readable | Writable)
}

func (h HandleType) String() string {
	if h == 0 {
		return "none"
	}
	var parts []string
	for _, f := range []struct {
		bit  HandleType
		name string
	}{
		{Readable, "readable"},
		{Writable, "writable"},
		{Error, "error"},
		{Hangup, "hangup"},
	} {
		if h&f.bit != 0 {
			parts = append(parts, f.name)
		}
	}
	return strings.Join(parts, "|")
}

// HandleCallback is invoked when a watched fd becomes ready.
type HandleCallback func(watch, fd int, events HandleType, opaque any)

// TimeoutCallback is invoked when a timeout expires.
type TimeoutCallback func(timer int, opaque any)

// FreeCallback releases an opaque value. The native library expects it to be
// called exactly once, when the watch or timeout carrying it is removed.
type FreeCallback func(opaque any)

// HandleCallbackInfo is the triple handed over by AddHandle.
type HandleCallbackInfo struct {
	Callback HandleCallback
	Opaque   any
	Free     FreeCallback

	freed bool
}

// Invoke runs the callback for the given watch.
func (i *HandleCallbackInfo) Invoke(watch, fd int, events HandleType) {
	if i.Callback != nil {
		i.Callback(watch, fd, events, i.Opaque)
	}
}

// ReleaseOpaque calls Free with the opaque value. Later calls do nothing.
func (i *HandleCallbackInfo) ReleaseOpaque() {
	if i.freed {
		return
	}
	i.freed = true
	if i.Free != nil {
		i.Free(i.Opaque)
	}
}

// TimeoutCallbackInfo is the triple handed over by AddTimeout.
type TimeoutCallbackInfo struct {
	Callback TimeoutCallback
	Opaque   any
	Free     FreeCallback

	freed bool
}

// Invoke runs the callback for the given timer.
func (i *TimeoutCallbackInfo) Invoke(timer int) {
	if i.Callback != nil {
		i.Callback(timer, i.Opaque)
	}
}

// ReleaseOpaque calls Free with the opaque value. Later calls do nothing.
func (i *TimeoutCallbackInfo) ReleaseOpaque() {
	if i.freed {
		return
	}
	i.freed = true
	if i.Free != nil {
		i.Free(i.Opaque)
	}
}

// Impl is the set of entry points an event loop registers with the library.
// Integer results follow the native convention: an id (or 0) on success and
// -1 on failure.
type Impl interface {
	AddHandle(fd int, events HandleType, cb *HandleCallbackInfo) int
	UpdateHandle(watch int, events HandleType)
	RemoveHandle(watch int) int
	AddTimeout(intervalMs int, cb *TimeoutCallbackInfo) int
	UpdateTimeout(timer int, intervalMs int)
	RemoveTimeout(timer int) int
}

// Registrar accepts an event implementation. Registering nil detaches the
// current one.
type Registrar interface {
	RegisterEventImpl(impl Impl)
}
