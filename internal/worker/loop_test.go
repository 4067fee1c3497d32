package worker

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"liraexchange/pkg/utils"
)

func TestLoop_RecoversPanicAndStops(t *testing.T) {
	l := &loop{name: "test", log: utils.NewNopLogger()}
	var passes atomic.Int32

	started := l.start(context.Background(), 10*time.Millisecond, func(ctx context.Context) {
		if passes.Add(1) == 1 {
			panic("boom")
		}
	})
	if !started {
		t.Fatalf("loop must start")
	}
	if l.start(context.Background(), time.Millisecond, func(context.Context) {}) {
		t.Errorf("second start must be ignored")
	}

	deadline := time.Now().Add(2 * time.Second)
	for passes.Load() < 3 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	l.stop()

	if passes.Load() < 3 {
		t.Fatalf("loop must keep running after a panic, passes = %d", passes.Load())
	}
	if l.running() {
		t.Errorf("loop still marked running")
	}

	after := passes.Load()
	time.Sleep(30 * time.Millisecond)
	if passes.Load() != after {
		t.Errorf("no passes expected after stop")
	}
}

func TestLoop_StopWaitsForPass(t *testing.T) {
	l := &loop{name: "test", log: utils.NewNopLogger()}
	entered := make(chan struct{})
	var finished atomic.Bool

	l.start(context.Background(), time.Hour, func(ctx context.Context) {
		close(entered)
		<-ctx.Done()
		time.Sleep(20 * time.Millisecond)
		finished.Store(true)
	})

	<-entered
	l.stop()
	if !finished.Load() {
		t.Errorf("stop must wait for the in-flight pass")
	}
}
