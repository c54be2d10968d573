// Copyright 2021 The httpx Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

package cfnet

import (
	"sync"
	"sync/atomic"
)

// A RunLoop runs submitted functions one at a time on a goroutine of
// its own, in submission order.
type RunLoop struct {
	mu      sync.Mutex
	pending []func()
	wake    chan struct{}
	done    chan struct{}
	stopped atomic.Bool
	ran     atomic.Uint64
}

// NewRunLoop starts a new run loop. Stop it with Stop when done with it.
func NewRunLoop() *RunLoop {
	rl := &RunLoop{
		wake: make(chan struct{}, 1),
		done: make(chan struct{}),
	}
	go rl.run()
	return rl
}

var (
	mainOnce sync.Once
	mainLoop *RunLoop
)

// MainLoop returns the process-wide run loop, starting it on the first
// call. Every caller gets the same loop.
func MainLoop() *RunLoop {
	mainOnce.Do(func() {
		mainLoop = NewRunLoop()
	})
	return mainLoop
}

// WakeLoop wakes the process-wide run loop so it rechecks for work.
func WakeLoop() {
	MainLoop().Wake()
}

// Perform schedules f to run on the loop. Functions submitted after
// Stop are dropped.
func (rl *RunLoop) Perform(f func()) {
	if rl.stopped.Load() {
		return
	}
	rl.mu.Lock()
	rl.pending = append(rl.pending, f)
	rl.mu.Unlock()
	rl.Wake()
}

// Wake signals the loop without scheduling anything.
func (rl *RunLoop) Wake() {
	select {
	case rl.wake <- struct{}{}:
	default:
	}
}

// Stop stops the loop after the function it is currently running. Work
// still queued is discarded.
func (rl *RunLoop) Stop() {
	if rl.stopped.CompareAndSwap(false, true) {
		close(rl.done)
	}
}

// Ran returns the number of functions the loop has run.
func (rl *RunLoop) Ran() uint64 {
	return rl.ran.Load()
}

func (rl *RunLoop) run() {
	for {
		select {
		case <-rl.done:
			return
		case <-rl.wake:
		}
		for {
			rl.mu.Lock()
			if len(rl.pending) == 0 || rl.stopped.Load() {
				rl.pending = nil
				rl.mu.Unlock()
				break
			}
			f := rl.pending[0]
			rl.pending[0] = nil
			rl.pending = rl.pending[1:]
			rl.mu.Unlock()
			f()
			rl.ran.Add(1)
		}
	}
}
