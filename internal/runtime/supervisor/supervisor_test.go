package supervisor

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"
)

func TestGoRecordsFirstError(t *testing.T) {
	t.Parallel()
	s := New(context.Background())
	boom := errors.New("boom")
	s.Go("worker", func(context.Context) error { return boom })

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if !s.Wait(ctx) {
		t.Fatal("Wait timed out")
	}
	if err := s.Err(); !errors.Is(err, boom) {
		t.Fatalf("Err = %v, want wrapped boom", err)
	}
}

func TestGoRecoversPanic(t *testing.T) {
	t.Parallel()
	s := New(context.Background())
	s.Go("panicky", func(context.Context) error { panic("kaboom") })

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if !s.Wait(ctx) {
		t.Fatal("Wait timed out")
	}
	if s.Err() == nil {
		t.Fatal("panic was not recorded as supervisor error")
	}
}

func TestCancelOnError(t *testing.T) {
	t.Parallel()
	s := New(context.Background(), WithCancelOnError(true))
	s.Go("failing", func(context.Context) error { return errors.New("nope") })

	select {
	case <-s.Context().Done():
	case <-time.After(time.Second):
		t.Fatal("context not canceled after first error")
	}
}

func TestContextCanceledExitIsClean(t *testing.T) {
	t.Parallel()
	s := New(context.Background())
	s.Go("loop", func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	})

	s.Cancel()
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if !s.Wait(ctx) {
		t.Fatal("Wait timed out")
	}
	if err := s.Err(); err != nil {
		t.Fatalf("Err = %v, want nil for a cancellation exit", err)
	}
}

func TestGoRestartRetriesUntilSuccess(t *testing.T) {
	t.Parallel()
	s := New(context.Background())
	var runs int32
	s.GoRestart("flaky", func(context.Context) error {
		if atomic.AddInt32(&runs, 1) < 3 {
			return errors.New("transient")
		}
		return nil
	}, time.Millisecond, 5*time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if !s.Wait(ctx) {
		t.Fatal("Wait timed out")
	}
	if got := atomic.LoadInt32(&runs); got != 3 {
		t.Fatalf("runs = %d, want 3", got)
	}
}

func TestGoRestartStopsOnCancel(t *testing.T) {
	t.Parallel()
	s := New(context.Background())
	s.GoRestart("stuck", func(context.Context) error {
		return errors.New("always failing")
	}, 10*time.Millisecond, 20*time.Millisecond)

	time.Sleep(30 * time.Millisecond)
	s.Cancel()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if !s.Wait(ctx) {
		t.Fatal("restart loop did not stop after cancel")
	}
}

func TestCounters(t *testing.T) {
	t.Parallel()
	s := New(context.Background())
	block := make(chan struct{})
	s.Go0("blocked", func(context.Context) { <-block })

	deadline := time.Now().Add(time.Second)
	for s.Counters().Active != 1 {
		if time.Now().After(deadline) {
			t.Fatalf("Counters = %+v, want one active goroutine", s.Counters())
		}
		time.Sleep(time.Millisecond)
	}
	close(block)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if !s.Wait(ctx) {
		t.Fatal("Wait timed out")
	}
	c := s.Counters()
	if c.Active != 0 || c.Started != 1 {
		t.Fatalf("Counters = %+v", c)
	}
}
