package gateway

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/user/parley/internal/types"
)

func TestQueueConcurrency(t *testing.T) {
	queue := NewQueue(2)
	ctx := context.Background()
	queue.Start(ctx)
	defer queue.Stop()

	var running int32
	var maxSeen int32

	queue.processor = func(run *Run) error {
		current := atomic.AddInt32(&running, 1)
		for {
			old := atomic.LoadInt32(&maxSeen)
			if current <= old || atomic.CompareAndSwapInt32(&maxSeen, old, current) {
				break
			}
		}
		time.Sleep(50 * time.Millisecond)
		atomic.AddInt32(&running, -1)
		run.Complete("ok")
		return nil
	}

	for i := 0; i < 5; i++ {
		turn := &types.InboundTurn{Source: "test", SessionKey: types.SessionKey(fmt.Sprintf("session-%d", i))}
		run := NewRun(types.SessionID(fmt.Sprintf("session-%d", i)), turn)
		if err := queue.Enqueue(run); err != nil {
			t.Fatal(err)
		}
	}

	time.Sleep(500 * time.Millisecond)

	if m := atomic.LoadInt32(&maxSeen); m > 2 {
		t.Errorf("expected max 2 concurrent, saw %d", m)
	}
}

func TestQueueProcessorCalled(t *testing.T) {
	queue := NewQueue(1)
	ctx := context.Background()
	queue.Start(ctx)
	defer queue.Stop()

	var processed int32

	queue.SetProcessor(func(run *Run) error {
		atomic.AddInt32(&processed, 1)
		run.Complete("done")
		return nil
	})

	run := NewRun("test-session", &types.InboundTurn{Source: "test"})
	if err := queue.Enqueue(run); err != nil {
		t.Fatal(err)
	}

	result, err := run.Wait(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if result != "done" {
		t.Errorf("expected 'done', got %q", result)
	}
	if atomic.LoadInt32(&processed) != 1 {
		t.Errorf("expected 1 processed run, got %d", processed)
	}
}

func TestQueueSameSessionOrdering(t *testing.T) {
	queue := NewQueue(4)
	ctx := context.Background()
	queue.Start(ctx)
	defer queue.Stop()

	var mu sync.Mutex
	var order []int
	done := make(chan struct{})

	queue.SetProcessor(func(run *Run) error {
		mu.Lock()
		order = append(order, run.Attempts) // reuse Attempts as sequence marker
		n := len(order)
		mu.Unlock()
		run.Complete("ok")
		if n == 3 {
			close(done)
		}
		return nil
	})

	sessionID := types.SessionID("same-session")
	for i := 0; i < 3; i++ {
		run := NewRun(sessionID, &types.InboundTurn{Source: "test"})
		run.Attempts = i
		if err := queue.Enqueue(run); err != nil {
			t.Fatal(err)
		}
	}

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for runs to process")
	}

	mu.Lock()
	defer mu.Unlock()
	for i, seq := range order {
		if seq != i {
			t.Errorf("expected FIFO order within session, got %v", order)
			break
		}
	}
}

func TestQueueProcessorErrorFailsRun(t *testing.T) {
	queue := NewQueue(1)
	ctx := context.Background()
	queue.Start(ctx)
	defer queue.Stop()

	boom := types.NewError(types.KindModel, "model exploded")
	queue.SetProcessor(func(run *Run) error {
		return boom
	})

	var delivered string
	run := NewRun("s", &types.InboundTurn{Source: "test"})
	run.OnComplete = func(resp string) { delivered = resp }

	if err := queue.Enqueue(run); err != nil {
		t.Fatal(err)
	}

	_, err := run.Wait(ctx)
	if err == nil {
		t.Fatal("expected run error")
	}
	if !errors.Is(err, boom) {
		t.Errorf("expected original error surfaced, got %v", err)
	}
	if run.Status != RunStatusFailed {
		t.Errorf("expected failed status, got %s", run.Status)
	}
	if delivered != FallbackMessage {
		t.Errorf("expected fallback delivered to OnComplete, got %q", delivered)
	}
}

func TestRunWaitContextTimeout(t *testing.T) {
	run := NewRun("s", &types.InboundTurn{Source: "test"})

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := run.Wait(ctx)
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("expected deadline exceeded, got %v", err)
	}
}
