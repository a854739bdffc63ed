//go:build linux || darwin

package eventloop

import (
	"context"
	"errors"
	"fmt"

	"golang.org/x/sys/unix"

	"github.com/jbweber/virtloop/internal/event"
)

var errWoken = errors.New("eventloop: wait interrupted")

// fdWaiter blocks in poll(2) on a watched fd and a private wake pipe. The
// pipe is written once when ctx is cancelled, which unblocks the poll.
type fdWaiter struct {
	r, w     int
	stopWake func() bool
	woke     chan struct{}
}

func newFDWaiter(ctx context.Context) (*fdWaiter, error) {
	p := make([]int, 2)
	if err := unix.Pipe(p); err != nil {
		return nil, fmt.Errorf("failed to create wake pipe: %w", err)
	}
	for _, fd := range p {
		unix.CloseOnExec(fd)
		if err := unix.SetNonblock(fd, true); err != nil {
			_ = unix.Close(p[0])
			_ = unix.Close(p[1])
			return nil, fmt.Errorf("failed to set wake pipe non-blocking: %w", err)
		}
	}

	w := &fdWaiter{r: p[0], w: p[1], woke: make(chan struct{})}
	w.stopWake = context.AfterFunc(ctx, func() {
		defer close(w.woke)
		_, _ = unix.Write(w.w, []byte{1})
	})
	return w, nil
}

// wait blocks until fd is ready for interest or the waiter is woken. It
// returns the readiness translated to handle flags.
func (w *fdWaiter) wait(fd int, interest event.HandleType) (event.HandleType, error) {
	var want int16
	if interest&event.Readable != 0 {
		want |= unix.POLLIN
	}
	if interest&event.Writable != 0 {
		want |= unix.POLLOUT
	}

	fds := []unix.PollFd{
		{Fd: int32(fd), Events: want},
		{Fd: int32(w.r), Events: unix.POLLIN},
	}
	for {
		fds[0].Revents, fds[1].Revents = 0, 0
		_, err := unix.Poll(fds, -1)
		if errors.Is(err, unix.EINTR) {
			continue
		}
		if err != nil {
			return 0, fmt.Errorf("poll fd %d: %w", fd, err)
		}
		if fds[1].Revents != 0 {
			return 0, errWoken
		}

		re := fds[0].Revents
		if re&unix.POLLNVAL != 0 {
			return 0, fmt.Errorf("%w: fd %d", ErrBadDescriptor, fd)
		}
		if ev := pollToHandle(re); ev != 0 {
			return ev, nil
		}
	}
}

// close releases the wake pipe. A wake write that is already in flight is
// waited for so the pipe is never written after it is closed.
func (w *fdWaiter) close() {
	if !w.stopWake() {
		<-w.woke
	}
	_ = unix.Close(w.r)
	_ = unix.Close(w.w)
}

func pollToHandle(re int16) event.HandleType {
	var ev event.HandleType
	if re&(unix.POLLIN|unix.POLLPRI) != 0 {
		ev |= event.Readable
	}
	if re&unix.POLLOUT != 0 {
		ev |= event.Writable
	}
	if re&unix.POLLERR != 0 {
		ev |= event.Error
	}
	if re&unix.POLLHUP != 0 {
		ev |= event.Hangup
	}
	return ev
}
