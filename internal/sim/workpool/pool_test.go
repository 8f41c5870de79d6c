package workpool

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"
)

func waitDone[T any](t *testing.T, f *Future[T]) (T, error) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	v, err := f.Wait(ctx)
	if errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("future did not finish")
	}
	return v, err
}

func TestSubmitAndPoll(t *testing.T) {
	p := New(context.Background(), "test", 2, 4)
	defer p.Close()

	release := make(chan struct{})
	f := Submit(p, func(ctx context.Context) (int, error) {
		<-release
		return 42, nil
	})
	if _, ok, _ := f.Poll(); ok {
		t.Fatalf("future resolved before the job ran")
	}
	close(release)
	v, err := waitDone(t, f)
	if err != nil || v != 42 {
		t.Fatalf("got (%d, %v)", v, err)
	}
	if v, ok, err := f.Poll(); !ok || v != 42 || err != nil {
		t.Fatalf("Poll after completion = (%d, %v, %v)", v, err, ok)
	}
}

func TestPanicBecomesError(t *testing.T) {
	p := New(context.Background(), "mesh", 1, 1)
	defer p.Close()
	f := Submit(p, func(ctx context.Context) (string, error) {
		panic("boom")
	})
	_, err := waitDone(t, f)
	if err == nil || !strings.Contains(err.Error(), "boom") {
		t.Fatalf("expected panic error, got %v", err)
	}
	if p.Running() != 0 {
		t.Fatalf("running=%d after panic", p.Running())
	}
}

func TestSaturatedAndClosed(t *testing.T) {
	p := New(context.Background(), "data", 1, 1)
	block := make(chan struct{})
	started := make(chan struct{})
	first := Submit(p, func(ctx context.Context) (int, error) {
		close(started)
		<-block
		return 1, nil
	})
	<-started
	queued := Submit(p, func(ctx context.Context) (int, error) { return 2, nil })
	over := Submit(p, func(ctx context.Context) (int, error) { return 3, nil })
	if _, ok, err := over.Poll(); !ok || !errors.Is(err, ErrSaturated) {
		t.Fatalf("expected saturation, got (%v, %v)", err, ok)
	}
	close(block)
	if _, err := waitDone(t, first); err != nil {
		t.Fatalf("first: %v", err)
	}
	if v, err := waitDone(t, queued); err != nil || v != 2 {
		t.Fatalf("queued: (%d, %v)", v, err)
	}

	p.Close()
	late := Submit(p, func(ctx context.Context) (int, error) { return 4, nil })
	if _, ok, err := late.Poll(); !ok || !errors.Is(err, ErrClosed) {
		t.Fatalf("expected closed error, got (%v, %v)", err, ok)
	}
}
