package eventloop

import (
	"runtime"
	"runtime/debug"
	"sync"
	"sync/atomic"

	"github.com/eapache/queue"
	"github.com/rs/zerolog"
)

// Dispatcher runs jobs sequentially on a single goroutine, in the order they
// were scheduled.
type Dispatcher struct {
	mu     sync.Mutex
	cond   *sync.Cond
	jobs   *queue.Queue
	closed bool
	done   chan struct{}

	// goroutine id of the worker, 0 before it starts and after it exits.
	workerID atomic.Uint64

	log     zerolog.Logger
	onPanic func(error)
}

func newDispatcher(log zerolog.Logger, onPanic func(error)) *Dispatcher {
	d := &Dispatcher{
		jobs:    queue.New(),
		done:    make(chan struct{}),
		log:     log,
		onPanic: onPanic,
	}
	d.cond = sync.NewCond(&d.mu)
	go d.run()
	return d
}

// Schedule queues fn and returns immediately. It returns false if the
// dispatcher is closed, in which case fn never runs.
func (d *Dispatcher) Schedule(fn func()) bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.closed {
		return false
	}
	d.jobs.Add(fn)
	d.cond.Signal()
	return true
}

// Do schedules fn and waits for it to finish. Called from a dispatched job,
// it runs fn inline. It returns false if the dispatcher is closed before fn
// runs.
func (d *Dispatcher) Do(fn func()) bool {
	if d.OnDispatcher() {
		fn()
		return true
	}

	ran := make(chan struct{})
	if !d.Schedule(func() {
		defer close(ran)
		fn()
	}) {
		return false
	}
	select {
	case <-ran:
		return true
	case <-d.done:
		select {
		case <-ran:
			return true
		default:
			return false
		}
	}
}

// OnDispatcher reports whether the caller is running on the dispatcher's
// worker goroutine, that is, inside a dispatched job.
func (d *Dispatcher) OnDispatcher() bool {
	id := d.workerID.Load()
	return id != 0 && id == goroutineID()
}

// Pending returns the number of queued jobs.
func (d *Dispatcher) Pending() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.jobs.Length()
}

// Close drops queued jobs and waits for the running one, if any, to return.
// It must not be called from a dispatched job.
func (d *Dispatcher) Close() {
	d.mu.Lock()
	if !d.closed {
		d.closed = true
		if n := d.jobs.Length(); n > 0 {
			d.log.Debug().Int("dropped", n).Msg("dispatcher closing with queued jobs")
		}
		d.jobs = queue.New()
		d.cond.Broadcast()
	}
	d.mu.Unlock()

	<-d.done
}

func (d *Dispatcher) run() {
	defer close(d.done)

	d.workerID.Store(goroutineID())
	defer d.workerID.Store(0)

	for {
		d.mu.Lock()
		for d.jobs.Length() == 0 && !d.closed {
			d.cond.Wait()
		}
		if d.closed {
			d.mu.Unlock()
			return
		}
		fn := d.jobs.Remove().(func())
		d.mu.Unlock()

		d.safeRun(fn)
	}
}

func (d *Dispatcher) safeRun(fn func()) {
	defer func() {
		if r := recover(); r != nil {
			err := &PanicError{Value: r, Stack: debug.Stack()}
			d.log.Error().
				Err(err).
				Bytes("stack", err.Stack).
				Msg("dispatched callback panicked")
			if d.onPanic != nil {
				d.onPanic(err)
			}
		}
	}()
	fn()
}

// goroutineID parses the current goroutine's id from its stack header.
func goroutineID() uint64 {
	var buf [64]byte
	n := runtime.Stack(buf[:], false)
	var id uint64
	for i := len("goroutine "); i < n; i++ {
		if buf[i] < '0' || buf[i] > '9' {
			break
		}
		id = id*10 + uint64(buf[i]-'0')
	}
	return id
}
