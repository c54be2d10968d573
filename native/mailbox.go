// Copyright 2021 The httpx Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

package native

import (
	"context"
	"sync"
)

// A Mailbox carries decoded events from a native callback to the single
// goroutine driving a state machine.
//
// Posting never blocks the callback. Events are kept in arrival order.
// The wake channel has capacity one, so any number of posts between two
// waits collapse into one wake-up, and a post that lands after the
// driver found the queue empty but before it started waiting is still
// seen by that wait.
type Mailbox[T any] struct {
	mu    sync.Mutex
	queue []T
	wake  chan struct{}
}

// NewMailbox returns an empty mailbox.
func NewMailbox[T any]() *Mailbox[T] {
	return &Mailbox[T]{wake: make(chan struct{}, 1)}
}

// Post appends ev and wakes the driver.
func (m *Mailbox[T]) Post(ev T) {
	m.mu.Lock()
	m.queue = append(m.queue, ev)
	m.mu.Unlock()
	m.Wake()
}

// Wake wakes the driver without posting an event.
func (m *Mailbox[T]) Wake() {
	select {
	case m.wake <- struct{}{}:
	default:
	}
}

// Take removes and returns the oldest event.
func (m *Mailbox[T]) Take() (T, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.queue) == 0 {
		var zero T
		return zero, false
	}
	ev := m.queue[0]
	var zero T
	m.queue[0] = zero
	m.queue = m.queue[1:]
	return ev, true
}

// Len returns the number of queued events.
func (m *Mailbox[T]) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.queue)
}

// Wait blocks until the mailbox is woken or ctx is done.
func (m *Mailbox[T]) Wait(ctx context.Context) error {
	select {
	case <-m.wake:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
