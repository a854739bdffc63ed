//go:build !linux && !darwin

package eventloop

import (
	"context"

	"github.com/jbweber/virtloop/internal/event"
)

type fdWaiter struct{}

func newFDWaiter(context.Context) (*fdWaiter, error) {
	return nil, ErrPollUnsupported
}

func (*fdWaiter) wait(int, event.HandleType) (event.HandleType, error) {
	return 0, ErrPollUnsupported
}

func (*fdWaiter) close() {}
