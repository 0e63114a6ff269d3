package orchestrator

import (
	"sync"
	"time"
)

// scheduler owns the recurring jobs of one session, keyed by action kind plus
// the reserved telemetry keys. Invariant: at most one job per key; installing
// a job for a key cancels the previous one before the new one may fire.
// cancelAll is terminal: a closed scheduler accepts no further jobs, so an
// action racing a session teardown cannot leave a timer behind.
type scheduler struct {
	mu     sync.Mutex
	jobs   map[string]*job
	closed bool
}

type job struct {
	stop     chan struct{}
	done     chan struct{}
	stopOnce sync.Once
}

func newScheduler() *scheduler {
	return &scheduler{jobs: map[string]*job{}}
}

// set installs fn to fire every interval. With immediate, fn also fires once
// right away. fn returning true retires the job from inside a fire. On a
// closed scheduler set is a no-op.
func (sc *scheduler) set(kind string, every time.Duration, immediate bool, fn func() bool) {
	j := &job{stop: make(chan struct{}), done: make(chan struct{})}

	sc.mu.Lock()
	if sc.closed {
		sc.mu.Unlock()
		return
	}
	old := sc.jobs[kind]
	sc.jobs[kind] = j
	sc.mu.Unlock()

	// The replaced job must be fully stopped before the new one starts; an
	// in-flight fire may finish but never reschedules.
	if old != nil {
		old.cancel()
	}

	go j.run(every, immediate, fn, func() { sc.removeIf(kind, j) })
}

// cancel synchronously deregisters the job for kind. No-op when absent.
func (sc *scheduler) cancel(kind string) {
	sc.mu.Lock()
	j := sc.jobs[kind]
	delete(sc.jobs, kind)
	sc.mu.Unlock()
	if j != nil {
		j.cancel()
	}
}

// cancelAll stops every job and latches the scheduler closed.
func (sc *scheduler) cancelAll() {
	sc.mu.Lock()
	sc.closed = true
	all := make([]*job, 0, len(sc.jobs))
	for k, j := range sc.jobs {
		all = append(all, j)
		delete(sc.jobs, k)
	}
	sc.mu.Unlock()
	for _, j := range all {
		j.cancel()
	}
}

func (sc *scheduler) active(kind string) bool {
	sc.mu.Lock()
	defer sc.mu.Unlock()
	_, ok := sc.jobs[kind]
	return ok
}

func (sc *scheduler) removeIf(kind string, j *job) {
	sc.mu.Lock()
	defer sc.mu.Unlock()
	if sc.jobs[kind] == j {
		delete(sc.jobs, kind)
	}
}

func (j *job) run(every time.Duration, immediate bool, fn func() bool, retire func()) {
	defer close(j.done)

	select {
	case <-j.stop:
		return
	default:
	}
	if immediate {
		if fn() {
			retire()
			return
		}
	}

	t := time.NewTicker(every)
	defer t.Stop()
	for {
		select {
		case <-j.stop:
			return
		case <-t.C:
			// A tick racing the stop signal must not fire.
			select {
			case <-j.stop:
				return
			default:
			}
			if fn() {
				retire()
				return
			}
		}
	}
}

func (j *job) cancel() {
	j.stopOnce.Do(func() { close(j.stop) })
	<-j.done
}
