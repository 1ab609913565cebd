package infer

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func TestDo_RunsFunction(t *testing.T) {
	p := NewPool(2)
	ran := false
	err := p.Do(context.Background(), func() error {
		ran = true
		return nil
	})
	if err != nil {
		t.Fatalf("Do: %v", err)
	}
	if !ran {
		t.Error("fn did not run")
	}
}

func TestDo_PropagatesError(t *testing.T) {
	p := NewPool(1)
	want := errors.New("inference blew up")
	if err := p.Do(context.Background(), func() error { return want }); !errors.Is(err, want) {
		t.Errorf("err = %v, want %v", err, want)
	}
}

func TestDo_BoundsConcurrency(t *testing.T) {
	const slots = 3
	p := NewPool(slots)

	var active, peak atomic.Int32
	var wg sync.WaitGroup
	for range 20 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			p.Do(context.Background(), func() error {
				n := active.Add(1)
				for {
					old := peak.Load()
					if n <= old || peak.CompareAndSwap(old, n) {
						break
					}
				}
				time.Sleep(5 * time.Millisecond)
				active.Add(-1)
				return nil
			})
		}()
	}
	wg.Wait()

	if got := peak.Load(); got > slots {
		t.Errorf("peak concurrency = %d, want <= %d", got, slots)
	}
}

func TestDo_CancelledWhileQueued(t *testing.T) {
	p := NewPool(1)

	release := make(chan struct{})
	occupied := make(chan struct{})
	go p.Do(context.Background(), func() error {
		close(occupied)
		<-release
		return nil
	})
	<-occupied
	defer close(release)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := p.Do(ctx, func() error {
		t.Error("fn ran despite cancelled context")
		return nil
	})
	if !errors.Is(err, context.Canceled) {
		t.Errorf("err = %v, want context.Canceled", err)
	}
}

func TestNewPool_DefaultSize(t *testing.T) {
	if p := NewPool(0); p.Size() < 1 {
		t.Errorf("Size() = %d, want >= 1", p.Size())
	}
	if p := NewPool(7); p.Size() != 7 {
		t.Errorf("Size() = %d, want 7", p.Size())
	}
}
