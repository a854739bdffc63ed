package hypervisor

import (
	"fmt"
	"time"

	"github.com/jbweber/virtloop/internal/event"
)

type keepalive struct {
	impl     event.Impl
	timer    int
	interval time.Duration
	count    int

	missed   int
	inflight bool
	lastErr  error
}

// SetKeepAlive starts probing the daemon every interval. When more than
// count probes in a row go unanswered or fail, the connection is closed with
// CloseReasonKeepalive. An interval of zero or less stops probing; a positive
// interval under a millisecond is rounded up to one.
//
// Probes are driven by a timeout on the registered event implementation.
func (c *Conn) SetKeepAlive(interval time.Duration, count int) error {
	if count < 0 {
		return fmt.Errorf("keepalive count must be >= 0, got %d", count)
	}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrConnClosed
	}
	impl := c.lib.EventImpl()
	old := c.ka

	// The timer calls below may wait for a running tick, which takes c.mu.
	if interval <= 0 {
		c.ka = nil
		c.mu.Unlock()
		if old != nil && impl != nil && old.impl == impl {
			impl.RemoveTimeout(old.timer)
		}
		return nil
	}
	if impl == nil {
		c.mu.Unlock()
		return ErrNoEventImpl
	}
	if old != nil && old.impl == impl {
		old.interval = interval
		old.count = count
		timer := old.timer
		c.mu.Unlock()
		impl.UpdateTimeout(timer, keepaliveMillis(interval))
		return nil
	}

	ka := &keepalive{interval: interval, count: count}
	if err := c.armKeepaliveLocked(ka); err != nil {
		c.mu.Unlock()
		return err
	}
	c.ka = ka
	c.mu.Unlock()

	c.log.Debug().Dur("interval", interval).Int("count", count).Msg("keepalive enabled")
	return nil
}

// armKeepaliveLocked adds ka's timeout on the current event implementation
// unless it is already there.
func (c *Conn) armKeepaliveLocked(ka *keepalive) error {
	impl := c.lib.EventImpl()
	if impl == nil {
		return ErrNoEventImpl
	}
	if ka.impl == impl {
		return nil
	}

	timer := impl.AddTimeout(keepaliveMillis(ka.interval), &event.TimeoutCallbackInfo{
		Callback: c.keepaliveTick,
		Opaque:   c,
	})
	if timer < 0 {
		return fmt.Errorf("%w: add timeout", ErrEventImplFailed)
	}
	ka.impl, ka.timer = impl, timer
	ka.missed = 0
	return nil
}

// keepaliveMillis converts a positive interval to whole milliseconds,
// rounding up.
func keepaliveMillis(interval time.Duration) int {
	return int((interval + time.Millisecond - 1) / time.Millisecond)
}

// keepaliveTick runs on the event loop once per keepalive interval.
func (c *Conn) keepaliveTick(timer int, _ any) {
	c.mu.Lock()
	ka := c.ka
	if c.closed || ka == nil || ka.timer != timer {
		c.mu.Unlock()
		return
	}

	if ka.inflight || ka.lastErr != nil {
		ka.missed++
	} else {
		ka.missed = 0
	}
	dead := ka.missed > ka.count
	if !dead && !ka.inflight {
		ka.inflight = true
		ka.lastErr = nil
		go c.probe(ka)
	}
	missed, lastErr := ka.missed, ka.lastErr
	c.mu.Unlock()

	if dead {
		c.log.Warn().Int("missed", missed).AnErr("last_error", lastErr).Msg("keepalive timed out")
		_ = c.closeWithReason(CloseReasonKeepalive)
	}
}

func (c *Conn) probe(ka *keepalive) {
	_, err := c.rpc.ConnectGetLibVersion()

	c.mu.Lock()
	defer c.mu.Unlock()
	ka.inflight = false
	ka.lastErr = err
}
