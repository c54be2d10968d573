// Copyright 2021 The httpx Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

package winhttp

import (
	"runtime"
	"sync"

	"github.com/gogama/nativehttp/native"
)

// handleState is the Go side of one native handle.
type handleState struct {
	cb     native.Callback
	pinner *runtime.Pinner
	pinned int
	// hooked is set once the trampoline was installed on the handle.
	// It stays installed until the handle closes, so the engine is told
	// when the handle is finally gone.
	hooked bool
}

// handleTable tracks callbacks and pinned buffers per handle.
//
// A buffer handed to an asynchronous read or write stays pinned until
// its completion is reported or, after a close, until the handle
// closing notification arrives. A hooked handle is released only by
// that notification: the engine may still write into a cancelled read
// buffer between the close call and the notification.
type handleTable struct {
	mu sync.Mutex
	m  map[native.Handle]*handleState
}

func (t *handleTable) state(h native.Handle, create bool) *handleState {
	s := t.m[h]
	if s == nil && create {
		if t.m == nil {
			t.m = make(map[native.Handle]*handleState)
		}
		s = &handleState{}
		t.m[h] = s
	}
	return s
}

// isHooked reports whether the trampoline is installed on h.
func (t *handleTable) isHooked(h native.Handle) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	s := t.state(h, false)
	return s != nil && s.hooked
}

// setCallback installs cb for h. A nil cb stops delivery to Go but
// keeps the handle hooked.
func (t *handleTable) setCallback(h native.Handle, cb native.Callback) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if cb == nil {
		if s := t.state(h, false); s != nil {
			s.cb = nil
		}
		return
	}
	s := t.state(h, true)
	s.cb = cb
	s.hooked = true
}

func (t *handleTable) callback(h native.Handle) native.Callback {
	t.mu.Lock()
	defer t.mu.Unlock()
	if s := t.state(h, false); s != nil {
		return s.cb
	}
	return nil
}

// pin keeps p in place until unpin or release.
func (t *handleTable) pin(h native.Handle, p *byte) {
	t.mu.Lock()
	defer t.mu.Unlock()
	s := t.state(h, true)
	if s.pinner == nil {
		s.pinner = new(runtime.Pinner)
	}
	s.pinner.Pin(p)
	s.pinned++
}

// unpin releases the buffers pinned on h when an operation completes.
func (t *handleTable) unpin(h native.Handle) {
	t.mu.Lock()
	var pn *runtime.Pinner
	if s := t.state(h, false); s != nil {
		pn, s.pinner, s.pinned = s.pinner, nil, 0
	}
	t.mu.Unlock()
	if pn != nil {
		pn.Unpin()
	}
}

// pinnedCount returns the number of buffers pinned on h.
func (t *handleTable) pinnedCount(h native.Handle) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	if s := t.state(h, false); s != nil {
		return s.pinned
	}
	return 0
}

// closing stops callback delivery for h ahead of a native close. It
// reports whether the handle is hooked, in which case release must wait
// for the handle closing notification.
func (t *handleTable) closing(h native.Handle) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	s := t.state(h, false)
	if s == nil {
		return false
	}
	s.cb = nil
	return s.hooked
}

// release forgets h and unpins its buffers. It is safe to call more
// than once.
func (t *handleTable) release(h native.Handle) {
	t.mu.Lock()
	var pn *runtime.Pinner
	if s := t.state(h, false); s != nil {
		pn = s.pinner
		delete(t.m, h)
	}
	t.mu.Unlock()
	if pn != nil {
		pn.Unpin()
	}
}

// len returns the number of tracked handles.
func (t *handleTable) len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.m)
}
