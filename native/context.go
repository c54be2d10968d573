// Copyright 2021 The httpx Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

package native

import (
	"sync"
	"sync/atomic"
)

// A ContextTable hands out the integer context values passed to an
// Engine in place of Go pointers. Values are never reused, so a
// callback carrying the value of an unregistered entry resolves to
// nothing instead of to a newer owner.
//
// The zero ContextTable is ready to use and safe for concurrent use.
type ContextTable[T any] struct {
	next    atomic.Uintptr
	entries sync.Map // uintptr -> T
}

// Register stores v and returns its context value, which is never zero.
func (t *ContextTable[T]) Register(v T) uintptr {
	id := t.next.Add(1)
	t.entries.Store(id, v)
	return id
}

// Lookup returns the value registered under id.
func (t *ContextTable[T]) Lookup(id uintptr) (T, bool) {
	if id != 0 {
		if v, ok := t.entries.Load(id); ok {
			return v.(T), true
		}
	}
	var zero T
	return zero, false
}

// Unregister removes id. Later lookups of id fail.
func (t *ContextTable[T]) Unregister(id uintptr) {
	t.entries.Delete(id)
}

// Len returns the number of registered entries.
func (t *ContextTable[T]) Len() int {
	n := 0
	t.entries.Range(func(_, _ interface{}) bool {
		n++
		return true
	})
	return n
}
