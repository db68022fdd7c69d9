package lock

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

func TestWithLockRunsFn(t *testing.T) {
	m := NewManager()
	ran := false
	err := m.WithLock(t.Context(), "g1", func(context.Context) error {
		ran = true
		return nil
	})
	if err != nil {
		t.Fatalf("WithLock: %v", err)
	}
	if !ran {
		t.Fatal("fn did not run")
	}
}

func TestSameGameSerialized(t *testing.T) {
	m := NewManager()
	var inCritical, maxInCritical int
	var mu sync.Mutex
	var wg sync.WaitGroup

	for range 50 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = m.WithLock(context.Background(), "g1", func(context.Context) error {
				mu.Lock()
				inCritical++
				if inCritical > maxInCritical {
					maxInCritical = inCritical
				}
				mu.Unlock()

				time.Sleep(time.Millisecond)

				mu.Lock()
				inCritical--
				mu.Unlock()
				return nil
			})
		}()
	}
	wg.Wait()

	if maxInCritical != 1 {
		t.Errorf("critical section overlap: max concurrent = %d", maxInCritical)
	}
	if got := m.entries(); got != 0 {
		t.Errorf("expected no entries after drain, got %d", got)
	}
}

func TestFIFOOrder(t *testing.T) {
	m := NewManager()
	release := make(chan struct{})
	holderIn := make(chan struct{})

	go func() {
		_ = m.WithLock(context.Background(), "g1", func(context.Context) error {
			close(holderIn)
			<-release
			return nil
		})
	}()
	<-holderIn

	const n = 8
	var mu sync.Mutex
	var order []int
	var wg sync.WaitGroup

	for i := range n {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = m.WithLock(context.Background(), "g1", func(context.Context) error {
				mu.Lock()
				order = append(order, i)
				mu.Unlock()
				return nil
			})
		}()
		// Wait until this waiter is queued so arrival order is fixed.
		waitFor(t, func() bool { return m.waiting("g1") == i+1 })
	}

	close(release)
	wg.Wait()

	for i, got := range order {
		if got != i {
			t.Fatalf("waiters ran out of order: %v", order)
		}
	}
	if m.entries() != 0 {
		t.Errorf("expected no entries after drain, got %d", m.entries())
	}
}

func TestDistinctGamesRunConcurrently(t *testing.T) {
	m := NewManager()
	aHolding := make(chan struct{})
	releaseA := make(chan struct{})

	go func() {
		_ = m.WithLock(context.Background(), "a", func(context.Context) error {
			close(aHolding)
			<-releaseA
			return nil
		})
	}()
	<-aHolding

	done := make(chan struct{})
	go func() {
		_ = m.WithLock(context.Background(), "b", func(context.Context) error {
			close(done)
			return nil
		})
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("lock on game b blocked behind game a")
	}
	close(releaseA)
}

func TestErrorDoesNotPoison(t *testing.T) {
	m := NewManager()
	boom := errors.New("boom")

	if err := m.WithLock(t.Context(), "g1", func(context.Context) error { return boom }); !errors.Is(err, boom) {
		t.Fatalf("expected boom, got %v", err)
	}

	err := m.WithLock(t.Context(), "g1", func(context.Context) error { return nil })
	if err != nil {
		t.Fatalf("lock poisoned by earlier failure: %v", err)
	}
	if m.entries() != 0 {
		t.Errorf("expected no entries, got %d", m.entries())
	}
}

func TestCancelWhileWaiting(t *testing.T) {
	m := NewManager()
	holderIn := make(chan struct{})
	release := make(chan struct{})

	go func() {
		_ = m.WithLock(context.Background(), "g1", func(context.Context) error {
			close(holderIn)
			<-release
			return nil
		})
	}()
	<-holderIn

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() {
		errCh <- m.WithLock(ctx, "g1", func(context.Context) error {
			t.Error("fn ran despite cancellation")
			return nil
		})
	}()
	waitFor(t, func() bool { return m.waiting("g1") == 1 })

	// A waiter queued behind the cancelled one must still get the lock.
	got := make(chan struct{})
	go func() {
		_ = m.WithLock(context.Background(), "g1", func(context.Context) error {
			close(got)
			return nil
		})
	}()
	waitFor(t, func() bool { return m.waiting("g1") == 2 })

	cancel()
	if err := <-errCh; !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}

	close(release)
	select {
	case <-got:
	case <-time.After(time.Second):
		t.Fatal("waiter behind the cancelled one never acquired the lock")
	}
	waitFor(t, func() bool { return m.entries() == 0 })
}

func TestReacquireAfterDrain(t *testing.T) {
	m := NewManager()
	for range 3 {
		if err := m.WithLock(t.Context(), "g1", func(context.Context) error { return nil }); err != nil {
			t.Fatalf("WithLock: %v", err)
		}
		if m.entries() != 0 {
			t.Fatalf("entry leaked between uses: %d", m.entries())
		}
	}
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatal("condition never became true")
}
