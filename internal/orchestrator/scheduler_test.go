package orchestrator

import (
	"sync/atomic"
	"testing"
	"time"
)

func TestScheduler_SetReplacesPrior(t *testing.T) {
	sc := newScheduler()
	var old, cur atomic.Int64

	sc.set("mine", 5*time.Millisecond, false, func() bool { old.Add(1); return false })
	time.Sleep(30 * time.Millisecond)
	sc.set("mine", 5*time.Millisecond, false, func() bool { cur.Add(1); return false })

	frozen := old.Load()
	time.Sleep(50 * time.Millisecond)
	if old.Load() != frozen {
		t.Fatalf("replaced job kept firing: %d -> %d", frozen, old.Load())
	}
	if cur.Load() == 0 {
		t.Fatalf("replacement job never fired")
	}
	if !sc.active("mine") {
		t.Fatalf("expected an active job")
	}
	sc.cancelAll()
}

func TestScheduler_CancelIsSynchronous(t *testing.T) {
	sc := newScheduler()
	var n atomic.Int64
	sc.set("attack", 5*time.Millisecond, false, func() bool { n.Add(1); return false })
	time.Sleep(20 * time.Millisecond)

	sc.cancel("attack")
	frozen := n.Load()
	time.Sleep(50 * time.Millisecond)
	if n.Load() != frozen {
		t.Fatalf("job fired after cancel returned: %d -> %d", frozen, n.Load())
	}
	if sc.active("attack") {
		t.Fatalf("job still registered after cancel")
	}
	// Cancelling an absent kind is a no-op.
	sc.cancel("attack")
}

func TestScheduler_ImmediateFireAndRetire(t *testing.T) {
	sc := newScheduler()
	var n atomic.Int64
	sc.set("move", time.Hour, true, func() bool { n.Add(1); return true })

	deadline := time.Now().Add(time.Second)
	for sc.active("move") && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	if sc.active("move") {
		t.Fatalf("retired job still registered")
	}
	if n.Load() != 1 {
		t.Fatalf("fired %d times, want 1", n.Load())
	}
}

func TestScheduler_CancelAll(t *testing.T) {
	sc := newScheduler()
	var n atomic.Int64
	for _, k := range []string{"mine", "attack", "uptime"} {
		sc.set(k, 5*time.Millisecond, false, func() bool { n.Add(1); return false })
	}
	time.Sleep(20 * time.Millisecond)
	sc.cancelAll()
	frozen := n.Load()
	time.Sleep(40 * time.Millisecond)
	if n.Load() != frozen {
		t.Fatalf("jobs fired after cancelAll: %d -> %d", frozen, n.Load())
	}
	for _, k := range []string{"mine", "attack", "uptime"} {
		if sc.active(k) {
			t.Fatalf("%s still registered", k)
		}
	}
}

func TestScheduler_SetAfterCancelAllIsNoOp(t *testing.T) {
	sc := newScheduler()
	sc.cancelAll()

	var n atomic.Int64
	sc.set("mine", 5*time.Millisecond, true, func() bool { n.Add(1); return false })
	time.Sleep(40 * time.Millisecond)
	if n.Load() != 0 {
		t.Fatalf("job installed on a closed scheduler fired %d times", n.Load())
	}
	if sc.active("mine") {
		t.Fatalf("closed scheduler registered a job")
	}
}
