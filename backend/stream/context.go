// Copyright 2021 The httpx Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

package stream

import (
	"context"
	"time"

	"github.com/gogama/nativehttp/cfnet"
	"github.com/gogama/nativehttp/native"
)

type source int

const (
	fromBody source = iota
	fromResponse
)

// An event is one stream notification, tagged with the stream that
// raised it.
type event struct {
	src source
	ev  cfnet.EventType
}

// streamContext is what the client callbacks of one exchange resolve
// their info value to.
type streamContext struct {
	mailbox *native.Mailbox[event]
}

var contexts native.ContextTable[*streamContext]

func newContext() (*streamContext, uintptr) {
	sc := &streamContext{mailbox: native.NewMailbox[event]()}
	return sc, contexts.Register(sc)
}

func post(src source, ev cfnet.EventType, info uintptr) {
	sc, ok := contexts.Lookup(info)
	if !ok {
		return
	}
	sc.mailbox.Post(event{src: src, ev: ev})
}

func bodyCallback(ev cfnet.EventType, info uintptr) {
	post(fromBody, ev, info)
}

func responseCallback(ev cfnet.EventType, info uintptr) {
	post(fromResponse, ev, info)
}

const (
	bodyEvents     = cfnet.EventCanAcceptBytes | cfnet.EventErrorOccurred
	responseEvents = cfnet.EventOpenCompleted | cfnet.EventHasBytesAvailable |
		cfnet.EventErrorOccurred | cfnet.EventEndEncountered
)

// wait waits for the next wake-up of sc. A positive d bounds the wait,
// standing in for the per-phase timeouts native stream stacks apply.
func (sc *streamContext) wait(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return sc.mailbox.Wait(ctx)
	}
	ctx, cancel := context.WithTimeout(ctx, d)
	defer cancel()
	return sc.mailbox.Wait(ctx)
}
