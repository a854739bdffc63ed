// Package hypervisor is the native side of the binding: a connection-oriented
// library over the libvirt RPC protocol (github.com/digitalocean/go-libvirt)
// that, like the C library, delivers asynchronous events only through an
// externally registered event implementation.
//
// A Library holds the registered event.Impl. Every Conn opened from it uses
// that implementation for two things:
//
//   - Event delivery. Events produced by the RPC connection are queued and a
//     byte is written to a per-connection pipe. The pipe's read end is watched
//     with AddHandle; the handle callback drains the queue and calls every
//     matching registration on the event loop goroutine.
//   - Keepalive. SetKeepAlive arms a repeating timeout with AddTimeout that
//     pings the daemon and closes the connection when too many pings in a row
//     go unanswered.
//
// Registrations follow the C library's opaque contract: whoever registers a
// callback hands over an opaque value and a free callback, and the library
// calls free exactly once, when the registration is removed either explicitly
// or because the connection closed.
package hypervisor
