package eventloop

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/jbweber/virtloop/internal/event"
)

// timer is a registered timeout. lastFired survives updates so the next
// deadline is always measured from the previous firing (or from creation).
type timer struct {
	id        int
	interval  int
	info      *event.TimeoutCallbackInfo
	lastFired atomic.Int64
	mon       *timerMonitor
}

func (t *timer) lastFiredTime() time.Time {
	return time.Unix(0, t.lastFired.Load())
}

// timerMonitor sleeps until the next deadline on its own goroutine and
// schedules the callback on the dispatcher each time it expires.
type timerMonitor struct {
	t      *timer
	d      *Dispatcher
	log    zerolog.Logger
	cancel context.CancelFunc
	done   chan struct{}

	// done channel of the dispatch whose callback is running, if any.
	inflight atomic.Pointer[chan struct{}]
}

// startTimerMonitor arms t. It returns nil for a negative interval, which
// leaves the timer registered but dormant.
func startTimerMonitor(t *timer, d *Dispatcher, log zerolog.Logger) *timerMonitor {
	if t.interval < 0 {
		return nil
	}

	ctx, cancel := context.WithCancel(context.Background())
	m := &timerMonitor{
		t:      t,
		d:      d,
		log:    log.With().Int("timer", t.id).Int("interval", t.interval).Logger(),
		cancel: cancel,
		done:   make(chan struct{}),
	}
	go m.run(ctx)
	return m
}

func (m *timerMonitor) run(ctx context.Context) {
	defer close(m.done)

	interval := time.Duration(m.t.interval) * time.Millisecond
	for {
		wait := max(time.Until(m.t.lastFiredTime().Add(interval)), 0)

		tm := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			tm.Stop()
			return
		case <-tm.C:
		}

		m.t.lastFired.Store(time.Now().UnixNano())

		done := make(chan struct{})
		scheduled := m.d.Schedule(func() {
			defer close(done)
			m.inflight.Store(&done)
			defer m.inflight.Store(nil)
			if ctx.Err() != nil {
				return
			}
			m.log.Debug().Msg("dispatch timer")
			m.t.info.Invoke(m.t.id)
		})
		if !scheduled {
			return
		}

		select {
		case <-done:
		case <-ctx.Done():
			return
		}
	}
}

// stop cancels the monitor and waits for its goroutine to exit.
func (m *timerMonitor) stop() {
	if m == nil {
		return
	}
	m.cancel()
	<-m.done
}

// settle waits for a callback that was already running when the monitor
// was stopped. On the dispatcher no other job can be running, so the only
// candidate is the caller itself and there is nothing to wait for.
func (m *timerMonitor) settle() {
	if m == nil || m.d.OnDispatcher() {
		return
	}
	if done := m.inflight.Load(); done != nil {
		<-*done
	}
}

// running reports whether the monitor goroutine is still alive.
func (m *timerMonitor) running() bool {
	if m == nil {
		return false
	}
	select {
	case <-m.done:
		return false
	default:
		return true
	}
}
