package eventloop

import (
	"context"
	"errors"
	"sync/atomic"

	"github.com/rs/zerolog"

	"github.com/jbweber/virtloop/internal/event"
)

// handle is a registered watch.
type handle struct {
	id     int
	fd     int
	events event.HandleType
	info   *event.HandleCallbackInfo
	mon    *handleMonitor
}

// handleMonitor waits for one fd on its own goroutine and schedules the
// callback on the dispatcher each time the fd becomes ready.
type handleMonitor struct {
	h      *handle
	d      *Dispatcher
	log    zerolog.Logger
	cancel context.CancelFunc
	done   chan struct{}

	// done channel of the dispatch whose callback is running, if any.
	inflight atomic.Pointer[chan struct{}]
}

// startHandleMonitor starts watching h. It returns nil when h's mask has no
// read or write interest: such a watch is registered but inert.
func startHandleMonitor(h *handle, d *Dispatcher, log zerolog.Logger) *handleMonitor {
	interest := h.events.Interest()
	if interest == 0 {
		return nil
	}

	ctx, cancel := context.WithCancel(context.Background())
	m := &handleMonitor{
		h:      h,
		d:      d,
		log:    log.With().Int("watch", h.id).Int("fd", h.fd).Logger(),
		cancel: cancel,
		done:   make(chan struct{}),
	}
	go m.run(ctx, interest)
	return m
}

func (m *handleMonitor) run(ctx context.Context, interest event.HandleType) {
	defer close(m.done)

	w, err := newFDWaiter(ctx)
	if err != nil {
		m.log.Error().Err(err).Msg("handle monitor not started")
		return
	}
	defer w.close()

	for {
		ready, err := w.wait(m.h.fd, interest)
		if ctx.Err() != nil {
			return
		}
		if err != nil {
			if !errors.Is(err, errWoken) {
				m.log.Warn().Err(err).Msg("handle monitor stopped")
			}
			return
		}

		done := make(chan struct{})
		scheduled := m.d.Schedule(func() {
			defer close(done)
			m.inflight.Store(&done)
			defer m.inflight.Store(nil)
			if ctx.Err() != nil {
				return
			}
			m.log.Debug().Stringer("events", ready).Msg("dispatch handle")
			m.h.info.Invoke(m.h.id, m.h.fd, ready)
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
func (m *handleMonitor) stop() {
	if m == nil {
		return
	}
	m.cancel()
	<-m.done
}

// settle waits for a callback that was already running when the monitor
// was stopped. On the dispatcher no other job can be running, so the only
// candidate is the caller itself and there is nothing to wait for.
func (m *handleMonitor) settle() {
	if m == nil || m.d.OnDispatcher() {
		return
	}
	if done := m.inflight.Load(); done != nil {
		<-*done
	}
}

// running reports whether the monitor goroutine is still alive.
func (m *handleMonitor) running() bool {
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
