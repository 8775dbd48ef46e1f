package periodic_test

import (
	"testing"
	"time"

	"go.uber.org/atomic"

	"github.com/clusterlib/clusterlib/periodic"
)

func TestRegisterTicksAndCancelStops(t *testing.T) {
	reg := periodic.NewRegistry()
	var count atomic.Int32
	id := reg.Register(func() { count.Inc() }, 10*time.Millisecond)

	time.Sleep(55 * time.Millisecond)
	if err := reg.Cancel(id); err != nil {
		t.Fatalf("Cancel: %v", err)
	}
	after := count.Load()
	if after < 2 {
		t.Errorf("expected several ticks before cancel, got %d", after)
	}

	time.Sleep(30 * time.Millisecond)
	if count.Load() != after {
		t.Errorf("expected no further ticks after cancel, got %d -> %d", after, count.Load())
	}
}

func TestCancelUnknownID(t *testing.T) {
	reg := periodic.NewRegistry()
	if err := reg.Cancel(999); err == nil {
		t.Errorf("expected error canceling an unregistered id")
	}
}

func TestShutdownCancelsAll(t *testing.T) {
	reg := periodic.NewRegistry()
	var count atomic.Int32
	reg.Register(func() { count.Inc() }, 10*time.Millisecond)
	reg.Register(func() { count.Inc() }, 10*time.Millisecond)
	time.Sleep(25 * time.Millisecond)
	reg.Shutdown()
	after := count.Load()
	time.Sleep(25 * time.Millisecond)
	if count.Load() != after {
		t.Errorf("expected no ticks after Shutdown")
	}
}
