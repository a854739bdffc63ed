package eventloop

import (
	"testing"

	"github.com/stretchr/testify/require"
	"golang.org/x/sys/unix"
)

// newPipe returns a non-blocking pipe closed at test cleanup. Create it
// before the loop so the loop's cleanup runs first.
func newPipe(t *testing.T) (r, w int) {
	t.Helper()

	p := make([]int, 2)
	require.NoError(t, unix.Pipe(p))
	require.NoError(t, unix.SetNonblock(p[0], true))
	t.Cleanup(func() {
		_ = unix.Close(p[0])
		_ = unix.Close(p[1])
	})
	return p[0], p[1]
}

func newTestLoop(t *testing.T, opts ...Option) *Loop {
	t.Helper()

	l := New(opts...)
	t.Cleanup(func() {
		_ = l.Close()
	})
	return l
}

// drain reads everything currently buffered in fd.
func drain(fd int) int {
	total := 0
	buf := make([]byte, 64)
	for {
		n, err := unix.Read(fd, buf)
		if n <= 0 || err != nil {
			return total
		}
		total += n
	}
}
