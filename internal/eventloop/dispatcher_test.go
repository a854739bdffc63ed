package eventloop

import (
	"bytes"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDispatcherRunsInOrder(t *testing.T) {
	d := newDispatcher(zerolog.Nop(), nil)
	defer d.Close()

	var (
		mu  sync.Mutex
		got []int
	)
	for i := range 100 {
		require.True(t, d.Schedule(func() {
			mu.Lock()
			got = append(got, i)
			mu.Unlock()
		}))
	}
	require.True(t, d.Do(func() {}))

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, got, 100)
	for i, v := range got {
		assert.Equal(t, i, v)
	}
}

func TestDispatcherRecoversPanics(t *testing.T) {
	var buf bytes.Buffer
	var handled []error
	d := newDispatcher(zerolog.New(&buf), func(err error) {
		handled = append(handled, err)
	})
	defer d.Close()

	boom := errors.New("boom")
	d.Schedule(func() { panic(boom) })

	ran := false
	require.True(t, d.Do(func() { ran = true }))

	assert.True(t, ran, "jobs after a panic still run")
	require.Len(t, handled, 1)

	var pe *PanicError
	require.ErrorAs(t, handled[0], &pe)
	assert.ErrorIs(t, handled[0], boom)
	assert.NotEmpty(t, pe.Stack)
	assert.Contains(t, buf.String(), "dispatched callback panicked")
}

func TestDispatcherClose(t *testing.T) {
	d := newDispatcher(zerolog.Nop(), nil)

	started := make(chan struct{})
	d.Schedule(func() {
		close(started)
		// Hold the worker until Close has marked the dispatcher closed.
		for {
			d.mu.Lock()
			closed := d.closed
			d.mu.Unlock()
			if closed {
				return
			}
			time.Sleep(time.Millisecond)
		}
	})
	<-started

	dropped := false
	d.Schedule(func() { dropped = true })

	d.Close()

	assert.False(t, dropped)
	assert.False(t, d.Schedule(func() {}))
	assert.False(t, d.Do(func() {}))
	d.Close()
}

func TestDispatcherOnDispatcher(t *testing.T) {
	d := newDispatcher(zerolog.Nop(), nil)
	defer d.Close()

	assert.False(t, d.OnDispatcher())

	var inside, nested bool
	require.True(t, d.Do(func() {
		inside = d.OnDispatcher()
		// Do from a job runs inline instead of deadlocking.
		d.Do(func() { nested = true })
	}))
	assert.True(t, inside)
	assert.True(t, nested)
}
