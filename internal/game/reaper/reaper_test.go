package reaper

import (
	"context"
	"sync"
	"testing"
	"time"
)

type countingSweeper struct {
	mu     sync.Mutex
	calls  int
	notify chan struct{}
}

func (c *countingSweeper) ReapExpired(ctx context.Context, olderThan time.Duration) (int, error) {
	c.mu.Lock()
	c.calls++
	c.mu.Unlock()
	select {
	case c.notify <- struct{}{}:
	default:
	}
	return 0, nil
}

func (c *countingSweeper) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.calls
}

func TestRunSweepsUntilCancelled(t *testing.T) {
	sweeper := &countingSweeper{notify: make(chan struct{}, 1)}
	r := New(sweeper, 5*time.Millisecond, time.Hour)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		r.Run(ctx)
		close(done)
	}()

	select {
	case <-sweeper.notify:
	case <-time.After(2 * time.Second):
		t.Fatal("no sweep within deadline")
	}

	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("reaper did not stop on cancel")
	}

	if sweeper.count() == 0 {
		t.Fatal("sweeper never invoked")
	}
}
