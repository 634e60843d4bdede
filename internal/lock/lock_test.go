package lock

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestLocalLockExcludes(t *testing.T) {
	var l Local
	ctx := context.Background()
	unlock, err := l.Lock(ctx, ComplaintKey("c1"))
	if err != nil {
		t.Fatalf("lock: %v", err)
	}

	waitCtx, cancel := context.WithTimeout(ctx, 20*time.Millisecond)
	defer cancel()
	if _, err := l.Lock(waitCtx, ComplaintKey("c1")); !errors.Is(err, ErrNotAcquired) {
		t.Fatalf("expected ErrNotAcquired while held, got %v", err)
	}

	unlock()
	unlock()
	again, err := l.Lock(ctx, ComplaintKey("c1"))
	if err != nil {
		t.Fatalf("relock after release: %v", err)
	}
	again()
}

func TestLocalLockSerializesCriticalSection(t *testing.T) {
	var l Local
	ctx := context.Background()
	counter := 0
	done := make(chan struct{})
	for i := 0; i < 50; i++ {
		go func() {
			unlock, err := l.Lock(ctx, "k")
			if err != nil {
				t.Errorf("lock: %v", err)
				return
			}
			v := counter
			time.Sleep(time.Microsecond)
			counter = v + 1
			unlock()
			done <- struct{}{}
		}()
	}
	for i := 0; i < 50; i++ {
		<-done
	}
	if counter != 50 {
		t.Fatalf("lost updates: counter=%d", counter)
	}
}
