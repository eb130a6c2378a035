package chat

import (
	"context"
	"sync"
)

// latch is a one-shot countdown barrier. Counting down past zero is a no-op.
type latch struct {
	mu    sync.Mutex
	count int
	done  chan struct{}
}

func newLatch(count int) *latch {
	l := &latch{
		count: count,
		done:  make(chan struct{}),
	}
	if count <= 0 {
		l.count = 0
		close(l.done)
	}
	return l
}

func (l *latch) countDown() {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.count == 0 {
		return
	}

	l.count--
	if l.count == 0 {
		close(l.done)
	}
}

// wait blocks until the count reaches zero or ctx ends.
func (l *latch) wait(ctx context.Context) error {
	select {
	case <-l.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
