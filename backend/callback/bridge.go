// Copyright 2021 The httpx Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

package callback

import (
	"github.com/gogama/nativehttp/native"
)

// headerQueryHint is the first-pass buffer for the response head. Most
// heads fit, so the second pass is usually not needed.
const headerQueryHint = 1024

// bridge is the status callback installed on every request handle. It
// runs on native threads, concurrently with the driving goroutine.
//
// The context value is resolved through the context table. A value
// that is no longer registered belongs to a request or response that
// has been torn down, and the notification is ignored.
func bridge(h native.Handle, ctxID uintptr, status native.Status, info native.StatusInfo) {
	nc, ok := contexts.Lookup(ctxID)
	if !ok {
		return
	}
	ev, ok := decode(nc, h, status, info)
	if !ok {
		return
	}
	nc.mailbox.Post(ev)
}

// decode turns a native notification into an event. Notifications that
// drive no state machine transition are dropped.
func decode(nc *netContext, h native.Handle, status native.Status, info native.StatusInfo) (event, bool) {
	switch status {
	case native.StatusSendRequestComplete:
		return event{kind: evWriteReady}, true
	case native.StatusWriteComplete:
		return event{kind: evWriteReady, n: info.Length}, true
	case native.StatusHeadersAvailable:
		raw, code := queryHeaders(nc.engine, h)
		if code != 0 {
			return event{kind: evError, code: code}, true
		}
		return event{kind: evHeaders, raw: raw}, true
	case native.StatusDataAvailable:
		return event{kind: evDataAvailable, n: info.Length}, true
	case native.StatusReadComplete:
		return event{kind: evReadComplete, n: info.Length}, true
	case native.StatusRequestError:
		if info.Err == native.ErrOperationCancelled && nc.closing.Load() {
			return event{}, false
		}
		return event{kind: evError, code: info.Err}, true
	default:
		return event{}, false
	}
}

// queryHeaders reads the raw response head in two passes: the first
// learns the required length, the second fills a buffer of that size.
func queryHeaders(engine native.Engine, h native.Handle) (string, native.Code) {
	buf := make([]byte, headerQueryHint)
	n, err := engine.QueryHeaders(h, buf)
	if err == native.ErrInsufficientBuffer {
		buf = make([]byte, n)
		n, err = engine.QueryHeaders(h, buf)
	}
	if err != nil {
		if c, ok := err.(native.Code); ok {
			return "", c
		}
		return "", native.ErrInternal
	}
	return string(buf[:n]), 0
}
