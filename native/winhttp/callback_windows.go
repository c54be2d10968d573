// Copyright 2021 The httpx Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

//go:build windows

package winhttp

import (
	"sync"
	"unsafe"

	"github.com/gogama/nativehttp/native"
	"golang.org/x/sys/windows"
)

// trampoline is the one system callback shared by every handle. The
// runtime limits how many callbacks a process may create.
var trampoline = windows.NewCallback(statusCallback)

var (
	enginesMu sync.RWMutex
	engines   = map[native.Handle]*Engine{}
)

func register(h native.Handle, e *Engine) {
	enginesMu.Lock()
	engines[h] = e
	enginesMu.Unlock()
}

func unregister(h native.Handle) {
	enginesMu.Lock()
	delete(engines, h)
	enginesMu.Unlock()
}

func engineOf(h native.Handle) *Engine {
	enginesMu.RLock()
	defer enginesMu.RUnlock()
	return engines[h]
}

// asyncResult mirrors WINHTTP_ASYNC_RESULT.
type asyncResult struct {
	result uintptr
	err    uint32
}

func statusCallback(h, ctx uintptr, status uint32, info uintptr, infoLen uint32) uintptr {
	e := engineOf(native.Handle(h))
	if e == nil {
		return 0
	}
	st := native.Status(status)
	switch st {
	case native.StatusHandleClosing:
		e.release(native.Handle(h))
		return 0
	case native.StatusReadComplete, native.StatusWriteComplete, native.StatusRequestError:
		e.handles.unpin(native.Handle(h))
	}
	cb := e.callback(native.Handle(h))
	if cb == nil {
		return 0
	}
	cb(native.Handle(h), ctx, st, decode(st, info, infoLen))
	return 0
}

func decode(st native.Status, info uintptr, infoLen uint32) native.StatusInfo {
	switch st {
	case native.StatusDataAvailable, native.StatusWriteComplete:
		if info == 0 {
			return native.StatusInfo{}
		}
		return native.StatusInfo{Length: *(*uint32)(unsafe.Pointer(info))}
	case native.StatusReadComplete:
		return native.StatusInfo{Length: infoLen}
	case native.StatusRequestError:
		if info == 0 {
			return native.StatusInfo{Err: native.ErrInternal}
		}
		r := (*asyncResult)(unsafe.Pointer(info))
		return native.StatusInfo{Err: native.Code(r.err)}
	}
	return native.StatusInfo{}
}
