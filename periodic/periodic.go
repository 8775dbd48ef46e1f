// Package periodic implements user-registered periodic functions with
// cancellation (spec §4.9... component C9): "one thread per registered
// periodic" (spec §5).
//
// Grounded on github.com/NVIDIA/aistore/ec.XactRespond.Run's
// ticker-plus-abort-channel select loop.
/*
 * Copyright (c) 2024, clusterlib Authors. All rights reserved.
 */
package periodic

import (
	"sync"
	"time"

	"github.com/golang/glog"

	"github.com/clusterlib/clusterlib/cerrors"
)

// Func is a user-registered periodic callback.
type Func func()

// Runner is one registered periodic: a ticker-driven goroutine calling
// fn every interval until Cancel.
type Runner struct {
	id       int64
	fn       Func
	interval time.Duration
	abort    chan struct{}
	done     chan struct{}
}

func (r *Runner) run() {
	defer close(r.done)
	tck := time.NewTicker(r.interval)
	defer tck.Stop()
	for {
		select {
		case <-tck.C:
			r.invoke()
		case <-r.abort:
			return
		}
	}
}

func (r *Runner) invoke() {
	defer func() {
		if p := recover(); p != nil {
			glog.Errorf("periodic: handler %d panicked: %v", r.id, p)
		}
	}()
	r.fn()
}

// Registry is the process-wide table of periodic runners (spec §5's
// "registry of periodic threads", torn down before the client
// registry on shutdown). It also backs the Client Facade's one-shot
// timer API (spec §4.9: "a timer registration API... backed by a
// shared timer source"), since both are the same concern — a
// cancelable delayed callback — differing only in whether they repeat.
type Registry struct {
	mu      sync.Mutex
	nextID  int64
	runners map[int64]*Runner
	oneShot map[int64]*time.Timer
}

func NewRegistry() *Registry {
	return &Registry{runners: make(map[int64]*Runner), oneShot: make(map[int64]*time.Timer)}
}

// RegisterOnce fires fn exactly once after delay, unless canceled first.
func (reg *Registry) RegisterOnce(fn Func, delay time.Duration) int64 {
	reg.mu.Lock()
	defer reg.mu.Unlock()
	reg.nextID++
	id := reg.nextID
	reg.oneShot[id] = time.AfterFunc(delay, func() {
		defer func() {
			if p := recover(); p != nil {
				glog.Errorf("periodic: one-shot %d panicked: %v", id, p)
			}
		}()
		fn()
	})
	return id
}

// Register starts fn running every interval and returns a cancelable id.
func (reg *Registry) Register(fn Func, interval time.Duration) int64 {
	reg.mu.Lock()
	defer reg.mu.Unlock()
	reg.nextID++
	r := &Runner{id: reg.nextID, fn: fn, interval: interval, abort: make(chan struct{}), done: make(chan struct{})}
	reg.runners[r.id] = r
	go r.run()
	return r.id
}

// Cancel stops the periodic or one-shot timer identified by id, waiting
// for a recurring periodic's in-flight invocation (if any) to finish.
func (reg *Registry) Cancel(id int64) error {
	reg.mu.Lock()
	r, ok := reg.runners[id]
	if ok {
		delete(reg.runners, id)
	}
	t, tok := reg.oneShot[id]
	if tok {
		delete(reg.oneShot, id)
	}
	reg.mu.Unlock()
	if !ok && !tok {
		return cerrors.InvalidArguments("no periodic registered with id %d", id)
	}
	if tok {
		t.Stop()
		return nil
	}
	close(r.abort)
	<-r.done
	return nil
}

// Shutdown cancels every outstanding periodic and one-shot timer (spec
// §5 teardown: "discard periodics" before "discard clients").
func (reg *Registry) Shutdown() {
	reg.mu.Lock()
	ids := make([]int64, 0, len(reg.runners)+len(reg.oneShot))
	for id := range reg.runners {
		ids = append(ids, id)
	}
	for id := range reg.oneShot {
		ids = append(ids, id)
	}
	reg.mu.Unlock()
	for _, id := range ids {
		_ = reg.Cancel(id)
	}
}
