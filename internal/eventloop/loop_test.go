package eventloop

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

// startLoop runs a loop until the test ends.
func startLoop(t *testing.T) *Loop {
	t.Helper()
	l := New()
	ctx, cancel := context.WithCancel(context.Background())
	go l.Run(ctx) //nolint:errcheck // Run only fails when started twice
	t.Cleanup(func() {
		cancel()
		<-l.Done()
	})
	return l
}

func TestLoop_PostRunsInOrder(t *testing.T) {
	l := startLoop(t)

	var got []int
	for i := range 100 {
		l.Post(func() { got = append(got, i) })
	}
	if err := l.Do(context.Background(), func() {}); err != nil {
		t.Fatalf("Do() error = %v", err)
	}

	if len(got) != 100 {
		t.Fatalf("ran %d tasks, want 100", len(got))
	}
	for i, v := range got {
		if v != i {
			t.Fatalf("task %d ran at position %d", v, i)
		}
	}
}

func TestLoop_ConcurrentPostersPreservePerPosterOrder(t *testing.T) {
	l := startLoop(t)

	const posters, each = 8, 200
	seen := make(map[int][]int)
	var wg sync.WaitGroup
	for p := range posters {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range each {
				l.Post(func() { seen[p] = append(seen[p], i) })
			}
		}()
	}
	wg.Wait()
	if err := l.Do(context.Background(), func() {}); err != nil {
		t.Fatalf("Do() error = %v", err)
	}

	for p := range posters {
		if len(seen[p]) != each {
			t.Fatalf("poster %d: %d tasks, want %d", p, len(seen[p]), each)
		}
		for i, v := range seen[p] {
			if v != i {
				t.Fatalf("poster %d out of order at %d", p, i)
			}
		}
	}
}

func TestLoop_PanicRecovered(t *testing.T) {
	l := startLoop(t)

	l.Post(func() { panic("boom") })
	ran := false
	if err := l.Do(context.Background(), func() { ran = true }); err != nil {
		t.Fatalf("Do() error = %v", err)
	}
	if !ran {
		t.Error("loop did not survive a panicking task")
	}
}

func TestLoop_AfterFunc(t *testing.T) {
	l := startLoop(t)

	fired := make(chan struct{})
	l.AfterFunc(10*time.Millisecond, func() { close(fired) })

	select {
	case <-fired:
	case <-time.After(2 * time.Second):
		t.Fatal("AfterFunc task never ran")
	}
}

func TestLoop_AfterFuncStopped(t *testing.T) {
	l := startLoop(t)

	var fired atomic.Bool
	timer := l.AfterFunc(20*time.Millisecond, func() { fired.Store(true) })
	if !timer.Stop() {
		t.Fatal("Stop() = false, want true before firing")
	}
	time.Sleep(50 * time.Millisecond)
	if err := l.Do(context.Background(), func() {}); err != nil {
		t.Fatalf("Do() error = %v", err)
	}
	if fired.Load() {
		t.Error("stopped timer still posted its task")
	}
}

func TestLoop_StopDrainsAndRejects(t *testing.T) {
	l := New()
	ctx, cancel := context.WithCancel(context.Background())

	var count atomic.Int32
	for range 10 {
		l.Post(func() { count.Add(1) })
	}
	done := make(chan error, 1)
	go func() { done <- l.Run(ctx) }()
	cancel()

	if err := <-done; err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if got := count.Load(); got != 10 {
		t.Errorf("executed %d queued tasks, want 10", got)
	}
	if l.Post(func() {}) {
		t.Error("Post() after stop = true, want false")
	}
	if err := l.Do(context.Background(), func() {}); !errors.Is(err, ErrStopped) {
		t.Errorf("Do() after stop = %v, want ErrStopped", err)
	}
}

func TestLoop_RunTwice(t *testing.T) {
	l := startLoop(t)
	// Give the first Run a moment to mark itself running.
	if err := l.Do(context.Background(), func() {}); err != nil {
		t.Fatalf("Do() error = %v", err)
	}
	if err := l.Run(context.Background()); !errors.Is(err, ErrAlreadyRunning) {
		t.Errorf("second Run() = %v, want ErrAlreadyRunning", err)
	}
}

func TestLoop_DoContextCancelled(t *testing.T) {
	l := New() // never started
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if err := l.Do(ctx, func() {}); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("Do() = %v, want deadline exceeded", err)
	}
}
