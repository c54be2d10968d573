// Copyright 2021 The httpx Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

package callback

import (
	"sync/atomic"

	"github.com/gogama/nativehttp/native"
)

type eventKind int

const (
	// evWriteReady means the native layer can take the next body part:
	// the request head was sent, or the previous write completed.
	evWriteReady eventKind = iota
	evHeaders
	evDataAvailable
	evReadComplete
	evError
)

var eventKindNames = []string{
	"write-ready",
	"headers-available",
	"data-available",
	"read-complete",
	"error",
}

func (k eventKind) String() string {
	return eventKindNames[k]
}

// An event is one decoded native notification.
type event struct {
	kind eventKind
	// n is the byte count of a write, read, or data availability
	// notification.
	n uint32
	// code is the native code of an error.
	code native.Code
	// raw is the response head for evHeaders.
	raw string
}

// A netContext is the state shared between the callback bridge and the
// goroutine driving one request or response. The bridge only posts
// events into the mailbox; every phase field lives in the machine that
// owns the context.
//
// A netContext is referenced by the native layer through the integer
// id it is registered under in contexts, never through a pointer.
type netContext struct {
	engine  native.Engine
	mailbox *native.Mailbox[event]
	// closing is set before deliberate teardown. A cancellation
	// reported while it is set is expected and is dropped.
	closing atomic.Bool
}

var contexts native.ContextTable[*netContext]

// newContext registers a fresh context and returns it with its id.
func newContext(engine native.Engine) (*netContext, uintptr) {
	nc := &netContext{
		engine:  engine,
		mailbox: native.NewMailbox[event](),
	}
	return nc, contexts.Register(nc)
}
