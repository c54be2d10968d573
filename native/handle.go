// Copyright 2021 The httpx Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

package native

import (
	"fmt"
	"sync"
	"sync/atomic"
)

// Owned is exclusive ownership of one native handle. The handle is
// closed exactly once, by the first call to Close.
//
// Close clears the handle's callback and context association before
// closing it. Some engines deliver notifications after a close request
// has been issued, and such a late notification must not find a live
// context. A failing native close means the engine's handle table is
// corrupt, so Close panics instead of returning an error.
type Owned struct {
	engine Engine
	h      Handle
	once   sync.Once
}

// Own takes ownership of h, which was returned by engine.
func Own(engine Engine, h Handle) *Owned {
	if h == 0 {
		panic("native: owning zero handle")
	}
	return &Owned{engine: engine, h: h}
}

// Handle returns the owned handle. It must not be used after Close.
func (o *Owned) Handle() Handle {
	return o.h
}

// Engine returns the engine the handle belongs to.
func (o *Owned) Engine() Engine {
	return o.engine
}

// Close releases the native handle. Calls after the first do nothing.
func (o *Owned) Close() {
	o.once.Do(func() {
		// Sessions and connections carry no callback, so a failure to
		// clear one is expected and ignored.
		_ = o.engine.SetStatusCallback(o.h, nil)
		_ = o.engine.SetContext(o.h, 0)
		if err := o.engine.CloseHandle(o.h); err != nil {
			panic(fmt.Sprintf("native: can't close handle %#x: %v", uintptr(o.h), err))
		}
	})
}

// Shared is reference-counted ownership of one native handle. The
// holder that releases the last reference closes the handle.
type Shared struct {
	owned *Owned
	refs  atomic.Int32
}

// Share wraps o in a Shared holding one reference.
func Share(o *Owned) *Shared {
	s := &Shared{owned: o}
	s.refs.Store(1)
	return s
}

// Handle returns the shared handle.
func (s *Shared) Handle() Handle {
	return s.owned.Handle()
}

// Retain adds a reference and returns s.
func (s *Shared) Retain() *Shared {
	if s.refs.Add(1) <= 1 {
		panic("native: retain of released handle")
	}
	return s
}

// Release drops a reference, closing the handle when none remain.
func (s *Shared) Release() {
	switch n := s.refs.Add(-1); {
	case n == 0:
		s.owned.Close()
	case n < 0:
		panic("native: handle released too many times")
	}
}

// Refs returns the current reference count.
func (s *Shared) Refs() int {
	return int(s.refs.Load())
}
