package eventloop

import (
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/jbweber/virtloop/internal/event"
)

// Loop owns the handle and timer tables. Ids for each kind start at 1, only
// ever increase, and are never reused, not even after Reset.
type Loop struct {
	mu         sync.Mutex
	handles    map[int]*handle
	timers     map[int]*timer
	nextHandle int
	nextTimer  int
	closed     bool

	dispatcher *Dispatcher
	log        zerolog.Logger
}

// New creates a Loop and starts its dispatcher. Call Close to stop it.
func New(opts ...Option) *Loop {
	o := resolveOptions(opts)
	return &Loop{
		handles:    make(map[int]*handle),
		timers:     make(map[int]*timer),
		dispatcher: newDispatcher(o.log, o.onPanic),
		log:        o.log,
	}
}

// Dispatcher returns the goroutine callbacks run on.
func (l *Loop) Dispatcher() *Dispatcher {
	return l.dispatcher
}

// AddHandle watches fd for events and returns the new watch id.
func (l *Loop) AddHandle(fd int, events event.HandleType, info *event.HandleCallbackInfo) (int, error) {
	if fd < 0 {
		return 0, fmt.Errorf("%w: %d", ErrInvalidFD, fd)
	}
	if info == nil {
		return 0, ErrNilCallback
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if l.closed {
		return 0, ErrLoopClosed
	}

	l.nextHandle++
	h := &handle{id: l.nextHandle, fd: fd, events: events, info: info}
	h.mon = startHandleMonitor(h, l.dispatcher, l.log)
	l.handles[h.id] = h

	l.log.Debug().
		Int("watch", h.id).
		Int("fd", fd).
		Stringer("events", events).
		Bool("active", h.mon != nil).
		Msg("add handle")
	return h.id, nil
}

// UpdateHandle changes the events a watch is interested in. The running
// monitor is stopped before a new one is started with the new mask, and a
// callback already running for the old mask has returned by the time
// UpdateHandle does, unless UpdateHandle is called from that callback.
func (l *Loop) UpdateHandle(watch int, events event.HandleType) error {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return ErrLoopClosed
	}
	h, ok := l.handles[watch]
	if !ok {
		l.mu.Unlock()
		return fmt.Errorf("%w: %d", ErrUnknownHandle, watch)
	}

	old := h.mon
	old.stop()
	h.events = events
	h.mon = startHandleMonitor(h, l.dispatcher, l.log)
	active := h.mon != nil
	l.mu.Unlock()

	old.settle()

	l.log.Debug().
		Int("watch", watch).
		Int("fd", h.fd).
		Stringer("events", events).
		Bool("active", active).
		Msg("update handle")
	return nil
}

// RemoveHandle stops watching and returns the callback info the watch was
// added with. The caller owns releasing its opaque value.
//
// When RemoveHandle returns the callback is not running and will not run
// again, so the fd may be closed. Called from the watch's own callback, it
// returns without waiting for that callback to finish.
func (l *Loop) RemoveHandle(watch int) (*event.HandleCallbackInfo, error) {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return nil, ErrLoopClosed
	}
	h, ok := l.handles[watch]
	if !ok {
		l.mu.Unlock()
		return nil, fmt.Errorf("%w: %d", ErrUnknownHandle, watch)
	}

	delete(l.handles, watch)
	h.mon.stop()
	l.mu.Unlock()

	h.mon.settle()

	l.log.Debug().Int("watch", watch).Int("fd", h.fd).Msg("remove handle")
	return h.info, nil
}

// AddTimer arms a repeating timer with the given interval in milliseconds
// and returns the new timer id. A negative interval registers the timer
// without arming it.
func (l *Loop) AddTimer(intervalMs int, info *event.TimeoutCallbackInfo) (int, error) {
	if info == nil {
		return 0, ErrNilCallback
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if l.closed {
		return 0, ErrLoopClosed
	}

	l.nextTimer++
	t := &timer{id: l.nextTimer, interval: intervalMs, info: info}
	t.lastFired.Store(time.Now().UnixNano())
	t.mon = startTimerMonitor(t, l.dispatcher, l.log)
	l.timers[t.id] = t

	l.log.Debug().
		Int("timer", t.id).
		Int("interval", intervalMs).
		Bool("active", t.mon != nil).
		Msg("add timer")
	return t.id, nil
}

// UpdateTimer changes a timer's interval. The next deadline is measured from
// the last time it fired.
func (l *Loop) UpdateTimer(id int, intervalMs int) error {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return ErrLoopClosed
	}
	t, ok := l.timers[id]
	if !ok {
		l.mu.Unlock()
		return fmt.Errorf("%w: %d", ErrUnknownTimer, id)
	}

	old := t.mon
	old.stop()
	t.interval = intervalMs
	t.mon = startTimerMonitor(t, l.dispatcher, l.log)
	active := t.mon != nil
	l.mu.Unlock()

	old.settle()

	l.log.Debug().
		Int("timer", id).
		Int("interval", intervalMs).
		Bool("active", active).
		Msg("update timer")
	return nil
}

// RemoveTimer disarms a timer and returns the callback info it was added
// with. The caller owns releasing its opaque value. Like RemoveHandle, it
// waits for a running callback unless called from it.
func (l *Loop) RemoveTimer(id int) (*event.TimeoutCallbackInfo, error) {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return nil, ErrLoopClosed
	}
	t, ok := l.timers[id]
	if !ok {
		l.mu.Unlock()
		return nil, fmt.Errorf("%w: %d", ErrUnknownTimer, id)
	}

	delete(l.timers, id)
	t.mon.stop()
	l.mu.Unlock()

	t.mon.settle()

	l.log.Debug().Int("timer", id).Msg("remove timer")
	return t.info, nil
}

// Reset stops every monitor and forgets every handle and timer, releasing
// their opaque values. Id counters keep counting.
func (l *Loop) Reset() {
	l.mu.Lock()
	handles, timers := l.detachAllLocked()
	l.mu.Unlock()

	l.release(handles, timers)
}

// Close resets the loop and stops the dispatcher. Further operations return
// ErrLoopClosed. Close must not be called from a dispatched callback.
func (l *Loop) Close() error {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return nil
	}
	l.closed = true
	handles, timers := l.detachAllLocked()
	l.mu.Unlock()

	l.release(handles, timers)
	l.dispatcher.Close()
	return nil
}

// detachAllLocked empties both tables and stops their monitors.
func (l *Loop) detachAllLocked() (map[int]*handle, map[int]*timer) {
	handles, timers := l.handles, l.timers
	l.handles = make(map[int]*handle)
	l.timers = make(map[int]*timer)
	for _, h := range handles {
		h.mon.stop()
	}
	for _, t := range timers {
		t.mon.stop()
	}
	return handles, timers
}

// release waits out running callbacks of detached entries, then releases
// their opaque values.
func (l *Loop) release(handles map[int]*handle, timers map[int]*timer) {
	for _, h := range handles {
		h.mon.settle()
	}
	for _, t := range timers {
		t.mon.settle()
	}
	for _, h := range handles {
		h.info.ReleaseOpaque()
	}
	for _, t := range timers {
		t.info.ReleaseOpaque()
	}
	if n := len(handles) + len(timers); n > 0 {
		l.log.Debug().Int("handles", len(handles)).Int("timers", len(timers)).Msg("reset loop")
	}
}

// HandleStat describes a registered watch.
type HandleStat struct {
	Watch  int
	FD     int
	Events event.HandleType
	Active bool
}

// TimerStat describes a registered timer.
type TimerStat struct {
	Timer     int
	Interval  int
	LastFired time.Time
	Active    bool
}

// Stats is a point-in-time view of a Loop.
type Stats struct {
	Handles []HandleStat
	Timers  []TimerStat
	Pending int
}

// Stats returns the registered handles and timers, ordered by id.
func (l *Loop) Stats() Stats {
	l.mu.Lock()
	defer l.mu.Unlock()

	var s Stats
	for _, h := range l.handles {
		s.Handles = append(s.Handles, HandleStat{
			Watch:  h.id,
			FD:     h.fd,
			Events: h.events,
			Active: h.mon.running(),
		})
	}
	for _, t := range l.timers {
		s.Timers = append(s.Timers, TimerStat{
			Timer:     t.id,
			Interval:  t.interval,
			LastFired: t.lastFiredTime(),
			Active:    t.mon.running(),
		})
	}
	slices.SortFunc(s.Handles, func(a, b HandleStat) int { return a.Watch - b.Watch })
	slices.SortFunc(s.Timers, func(a, b TimerStat) int { return a.Timer - b.Timer })
	s.Pending = l.dispatcher.Pending()
	return s
}
