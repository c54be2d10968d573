// Copyright 2021 The httpx Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

//go:build windows

package winhttp

import (
	"math"
	"time"
	"unsafe"

	"github.com/gogama/nativehttp/native"
	"golang.org/x/sys/windows"
)

var (
	modwinhttp = windows.NewLazySystemDLL("winhttp.dll")

	procOpen               = modwinhttp.NewProc("WinHttpOpen")
	procConnect            = modwinhttp.NewProc("WinHttpConnect")
	procOpenRequest        = modwinhttp.NewProc("WinHttpOpenRequest")
	procAddRequestHeaders  = modwinhttp.NewProc("WinHttpAddRequestHeaders")
	procSetStatusCallback  = modwinhttp.NewProc("WinHttpSetStatusCallback")
	procSetOption          = modwinhttp.NewProc("WinHttpSetOption")
	procSetTimeouts        = modwinhttp.NewProc("WinHttpSetTimeouts")
	procSendRequest        = modwinhttp.NewProc("WinHttpSendRequest")
	procWriteData          = modwinhttp.NewProc("WinHttpWriteData")
	procReceiveResponse    = modwinhttp.NewProc("WinHttpReceiveResponse")
	procQueryHeaders       = modwinhttp.NewProc("WinHttpQueryHeaders")
	procQueryDataAvailable = modwinhttp.NewProc("WinHttpQueryDataAvailable")
	procReadData           = modwinhttp.NewProc("WinHttpReadData")
	procCloseHandle        = modwinhttp.NewProc("WinHttpCloseHandle")
)

const (
	accessTypeAutomaticProxy = 4
	flagAsync                = 0x10000000
	flagSecure               = 0x00800000
	addReqFlagAdd            = 0x20000000
	addReqFlagReplace        = 0x80000000
	optionContextValue       = 45
	optionHTTP2KeepAlive     = 164
	queryRawHeadersCRLF      = 22
	invalidStatusCallback    = ^uintptr(0)
)

// Engine is a native.Engine over winhttp.dll. It has no state of its
// own beyond the callbacks and pinned buffers of open handles, and is
// safe for concurrent use.
type Engine struct {
	handles handleTable
}

// New returns an Engine. It fails if winhttp.dll cannot be loaded.
func New() (*Engine, error) {
	if err := modwinhttp.Load(); err != nil {
		return nil, native.Code(windows.ERROR_MOD_NOT_FOUND)
	}
	return &Engine{}, nil
}

func (e *Engine) Open(opts native.SessionOptions) (native.Handle, error) {
	agent, err := windows.UTF16PtrFromString(opts.UserAgent)
	if err != nil {
		return 0, native.ErrInvalidParameter
	}
	h, err := handleCall(procOpen, uintptr(unsafe.Pointer(agent)), accessTypeAutomaticProxy, 0, 0, flagAsync)
	if err != nil {
		return 0, err
	}
	if opts.KeepAlive > 0 {
		ms := uint32(opts.KeepAlive / time.Millisecond)
		// Not every system supports the option; the session is usable
		// without it.
		_ = boolCall(procSetOption, uintptr(h), optionHTTP2KeepAlive, uintptr(unsafe.Pointer(&ms)), unsafe.Sizeof(ms))
	}
	return h, nil
}

func (e *Engine) Connect(session native.Handle, host string, port uint16) (native.Handle, error) {
	name, err := windows.UTF16PtrFromString(host)
	if err != nil {
		return 0, native.ErrInvalidURL
	}
	return handleCall(procConnect, uintptr(session), uintptr(unsafe.Pointer(name)), uintptr(port), 0)
}

func (e *Engine) OpenRequest(conn native.Handle, method, path string, secure bool) (native.Handle, error) {
	verb, err := windows.UTF16PtrFromString(method)
	if err != nil {
		return 0, native.ErrInvalidParameter
	}
	object, err := windows.UTF16PtrFromString(path)
	if err != nil {
		return 0, native.ErrInvalidURL
	}
	var flags uintptr
	if secure {
		flags = flagSecure
	}
	return handleCall(procOpenRequest, uintptr(conn), uintptr(unsafe.Pointer(verb)), uintptr(unsafe.Pointer(object)), 0, 0, 0, flags)
}

func (e *Engine) AddRequestHeader(req native.Handle, line string, replace bool) error {
	w, err := windows.UTF16FromString(line)
	if err != nil {
		return native.ErrInvalidHeader
	}
	mod := uintptr(addReqFlagAdd)
	if replace {
		mod |= addReqFlagReplace
	}
	return boolCall(procAddRequestHeaders, uintptr(req), uintptr(unsafe.Pointer(&w[0])), uintptr(len(w)-1), mod)
}

// SetStatusCallback with a nil cb stops delivery to Go only. The
// trampoline stays installed so that the handle closing notification,
// which releases pinned buffers, still arrives.
func (e *Engine) SetStatusCallback(h native.Handle, cb native.Callback) error {
	if cb == nil {
		e.handles.setCallback(h, nil)
		return nil
	}
	if !e.handles.isHooked(h) {
		register(h, e)
		r, _, errno := procSetStatusCallback.Call(uintptr(h), trampoline, uintptr(native.AllNotifications), 0)
		if r == invalidStatusCallback {
			unregister(h)
			return codeOf(errno)
		}
	}
	e.handles.setCallback(h, cb)
	return nil
}

func (e *Engine) SetContext(h native.Handle, ctx uintptr) error {
	return boolCall(procSetOption, uintptr(h), optionContextValue, uintptr(unsafe.Pointer(&ctx)), unsafe.Sizeof(ctx))
}

// System defaults, used for the zero fields of a native.Timeouts. A
// zero resolve timeout means no timeout.
const (
	defaultResolve = 0
	defaultConnect = 60 * time.Second
	defaultSend    = 30 * time.Second
	defaultReceive = 30 * time.Second
)

func (e *Engine) SetTimeouts(h native.Handle, t native.Timeouts) error {
	return boolCall(procSetTimeouts, uintptr(h),
		millis(t.Resolve, defaultResolve),
		millis(t.Connect, defaultConnect),
		millis(t.Send, defaultSend),
		millis(t.Receive, defaultReceive))
}

func (e *Engine) SendRequest(req native.Handle, totalLength uint64, ctx uintptr) error {
	if totalLength > math.MaxUint32 {
		return native.ErrInvalidParameter
	}
	return boolCall(procSendRequest, uintptr(req), 0, 0, 0, 0, uintptr(totalLength), ctx)
}

func (e *Engine) WriteData(req native.Handle, p []byte) error {
	if len(p) == 0 {
		return native.ErrInvalidParameter
	}
	e.handles.pin(req, &p[0])
	if err := boolCall(procWriteData, uintptr(req), uintptr(unsafe.Pointer(&p[0])), uintptr(len(p)), 0); err != nil {
		e.handles.unpin(req)
		return err
	}
	return nil
}

func (e *Engine) ReceiveResponse(req native.Handle) error {
	return boolCall(procReceiveResponse, uintptr(req), 0)
}

// QueryHeaders converts the UTF-16 header block to UTF-8. The length
// reported with ErrInsufficientBuffer is an upper bound.
func (e *Engine) QueryHeaders(req native.Handle, buf []byte) (int, error) {
	w := make([]uint16, len(buf)/2+1)
	size := uint32(len(w) * 2)
	r, _, errno := procQueryHeaders.Call(uintptr(req), queryRawHeadersCRLF, 0,
		uintptr(unsafe.Pointer(&w[0])), uintptr(unsafe.Pointer(&size)), 0)
	if r == 0 {
		c := codeOf(errno)
		if c == native.ErrInsufficientBuffer {
			return int(size/2) * 3, c
		}
		return 0, c
	}
	s := windows.UTF16ToString(w[:size/2])
	if len(s) > len(buf) {
		return len(s), native.ErrInsufficientBuffer
	}
	return copy(buf, s), nil
}

func (e *Engine) QueryDataAvailable(req native.Handle) error {
	return boolCall(procQueryDataAvailable, uintptr(req), 0)
}

func (e *Engine) ReadData(req native.Handle, p []byte) error {
	if len(p) == 0 {
		return native.ErrInvalidParameter
	}
	e.handles.pin(req, &p[0])
	if err := boolCall(procReadData, uintptr(req), uintptr(unsafe.Pointer(&p[0])), uintptr(len(p)), 0); err != nil {
		e.handles.unpin(req)
		return err
	}
	return nil
}

// CloseHandle closes h. Buffers pinned on a hooked handle stay pinned
// until the handle closing notification, since a cancelled read may
// still be filling them.
func (e *Engine) CloseHandle(h native.Handle) error {
	hooked := e.handles.closing(h)
	err := boolCall(procCloseHandle, uintptr(h))
	if err != nil || !hooked {
		e.release(h)
	}
	return err
}

func (e *Engine) release(h native.Handle) {
	e.handles.release(h)
	unregister(h)
}

func (e *Engine) callback(h native.Handle) native.Callback {
	return e.handles.callback(h)
}

func handleCall(p *windows.LazyProc, args ...uintptr) (native.Handle, error) {
	r, _, errno := p.Call(args...)
	if r == 0 {
		return 0, codeOf(errno)
	}
	return native.Handle(r), nil
}

func boolCall(p *windows.LazyProc, args ...uintptr) error {
	r, _, errno := p.Call(args...)
	if r == 0 {
		return codeOf(errno)
	}
	return nil
}

func codeOf(err error) native.Code {
	if errno, ok := err.(windows.Errno); ok && errno != 0 {
		return native.Code(errno)
	}
	return native.ErrInternal
}

func millis(d, def time.Duration) uintptr {
	if d <= 0 {
		d = def
	}
	ms := d / time.Millisecond
	if ms > math.MaxInt32 {
		ms = math.MaxInt32
	}
	return uintptr(ms)
}
