// Copyright 2021 The httpx Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

// Package enginetest provides a scripted native.Engine for tests. It
// counts handles, connect calls and reads, records every body write, and can
// replay the late notifications real engines deliver after a handle is
// closed.
package enginetest

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/gogama/nativehttp/native"
)

// A Reply scripts the engine's side of one exchange.
type Reply struct {
	// Head is the raw response header block returned by QueryHeaders,
	// for example "HTTP/1.1 200 OK\r\nContent-Length: 2\r\n\r\n".
	Head string
	// Body is the response body.
	Body []byte
	// ReadChunk caps the bytes produced by one ReadData. Zero means no
	// cap beyond the caller's buffer.
	ReadChunk int
	// FailOn is the notification replaced by a StatusRequestError
	// carrying FailCode. Zero means no failure.
	FailOn   native.Status
	FailCode native.Code
	// Hold keeps ReceiveResponse from ever completing.
	Hold bool
}

// A Request is what the engine saw of one exchange.
type Request struct {
	Method  string
	Host    string
	Port    uint16
	Path    string
	Secure  bool
	Headers []string
	Length  uint64

	mu     sync.Mutex
	writes [][]byte
}

// Writes returns a copy of each WriteData payload, in order.
func (r *Request) Writes() [][]byte {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([][]byte, len(r.writes))
	copy(out, r.writes)
	return out
}

// Body returns the concatenated WriteData payloads.
func (r *Request) Body() []byte {
	var b []byte
	for _, w := range r.Writes() {
		b = append(b, w...)
	}
	return b
}

// A Handler chooses the reply to a request once it is sent.
type Handler func(r *Request) Reply

// Engine is a scripted native.Engine.
type Engine struct {
	// Handler scripts replies.
	Handler Handler
	// ConnectDelay slows Connect to widen races between concurrent
	// first requests to one host.
	ConnectDelay time.Duration
	// ConnectErr makes every Connect fail.
	ConnectErr native.Code
	// LateNotifications makes CloseHandle deliver an
	// ErrOperationCancelled error to the callback and context that were
	// installed before the close, as a real engine may.
	LateNotifications bool

	mu       sync.Mutex
	next     native.Handle
	handles  map[native.Handle]*handle
	requests []*Request
	connects atomic.Int32
	reads    atomic.Int32
	closes   atomic.Int32
	wg       sync.WaitGroup
}

type handle struct {
	kind   int
	host   string
	port   uint16
	conn   *handle
	req    *Request
	reply  Reply
	body   []byte
	cb     native.Callback
	ctx    uintptr
	sent   bool
	closed bool
}

const (
	kindSession = iota
	kindConnect
	kindRequest
)

// OpenHandles returns the number of handles not yet closed.
func (e *Engine) OpenHandles() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.handles)
}

// ConnectCalls returns the number of Connect calls.
func (e *Engine) ConnectCalls() int {
	return int(e.connects.Load())
}

// ReadCalls returns the number of ReadData calls.
func (e *Engine) ReadCalls() int {
	return int(e.reads.Load())
}

// CloseCalls returns the number of successful CloseHandle calls.
func (e *Engine) CloseCalls() int {
	return int(e.closes.Load())
}

// Requests returns every request sent, in send order.
func (e *Engine) Requests() []*Request {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]*Request(nil), e.requests...)
}

// Wait waits for every notification the engine has started to deliver.
func (e *Engine) Wait() {
	e.wg.Wait()
}

func (e *Engine) add(h *handle) native.Handle {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.handles == nil {
		e.handles = make(map[native.Handle]*handle)
	}
	e.next++
	e.handles[e.next] = h
	return e.next
}

func (e *Engine) get(h native.Handle, kind int) (*handle, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	x, ok := e.handles[h]
	if !ok {
		return nil, native.ErrInvalidHandle
	}
	if x.kind != kind {
		return nil, native.ErrIncorrectHandleType
	}
	return x, nil
}

func (e *Engine) Open(native.SessionOptions) (native.Handle, error) {
	return e.add(&handle{kind: kindSession}), nil
}

func (e *Engine) Connect(session native.Handle, host string, port uint16) (native.Handle, error) {
	if _, err := e.get(session, kindSession); err != nil {
		return 0, err
	}
	e.connects.Add(1)
	if e.ConnectDelay > 0 {
		time.Sleep(e.ConnectDelay)
	}
	if e.ConnectErr != 0 {
		return 0, e.ConnectErr
	}
	return e.add(&handle{kind: kindConnect, host: host, port: port}), nil
}

func (e *Engine) OpenRequest(conn native.Handle, method, path string, secure bool) (native.Handle, error) {
	c, err := e.get(conn, kindConnect)
	if err != nil {
		return 0, err
	}
	return e.add(&handle{
		kind: kindRequest,
		conn: c,
		req:  &Request{Method: method, Host: c.host, Port: c.port, Path: path, Secure: secure},
	}), nil
}

func (e *Engine) AddRequestHeader(req native.Handle, line string, _ bool) error {
	r, err := e.get(req, kindRequest)
	if err != nil {
		return err
	}
	e.mu.Lock()
	r.req.Headers = append(r.req.Headers, line)
	e.mu.Unlock()
	return nil
}

func (e *Engine) SetStatusCallback(h native.Handle, cb native.Callback) error {
	r, err := e.get(h, kindRequest)
	if err != nil {
		return err
	}
	e.mu.Lock()
	r.cb = cb
	e.mu.Unlock()
	return nil
}

func (e *Engine) SetContext(h native.Handle, ctx uintptr) error {
	r, err := e.get(h, kindRequest)
	if err != nil {
		return err
	}
	e.mu.Lock()
	r.ctx = ctx
	e.mu.Unlock()
	return nil
}

func (e *Engine) SetTimeouts(h native.Handle, _ native.Timeouts) error {
	_, err := e.get(h, kindRequest)
	return err
}

func (e *Engine) SendRequest(req native.Handle, totalLength uint64, ctx uintptr) error {
	r, err := e.get(req, kindRequest)
	if err != nil {
		return err
	}
	e.mu.Lock()
	if r.sent {
		e.mu.Unlock()
		return native.ErrIncorrectHandleState
	}
	r.sent = true
	r.ctx = ctx
	r.req.Length = totalLength
	e.requests = append(e.requests, r.req)
	e.mu.Unlock()
	if e.Handler != nil {
		r.reply = e.Handler(r.req)
	}
	r.body = r.reply.Body
	e.async(req, r, native.StatusSendRequestComplete, native.StatusInfo{})
	return nil
}

func (e *Engine) WriteData(req native.Handle, p []byte) error {
	r, err := e.get(req, kindRequest)
	if err != nil {
		return err
	}
	r.req.mu.Lock()
	r.req.writes = append(r.req.writes, append([]byte(nil), p...))
	r.req.mu.Unlock()
	e.async(req, r, native.StatusWriteComplete, native.StatusInfo{Length: uint32(len(p))})
	return nil
}

func (e *Engine) ReceiveResponse(req native.Handle) error {
	r, err := e.get(req, kindRequest)
	if err != nil {
		return err
	}
	if r.reply.Hold {
		return nil
	}
	e.async(req, r, native.StatusHeadersAvailable, native.StatusInfo{})
	return nil
}

func (e *Engine) QueryHeaders(req native.Handle, buf []byte) (int, error) {
	r, err := e.get(req, kindRequest)
	if err != nil {
		return 0, err
	}
	head := r.reply.Head
	if head == "" {
		return 0, native.ErrHeaderNotFound
	}
	if len(buf) < len(head) {
		return len(head), native.ErrInsufficientBuffer
	}
	return copy(buf, head), nil
}

func (e *Engine) QueryDataAvailable(req native.Handle) error {
	r, err := e.get(req, kindRequest)
	if err != nil {
		return err
	}
	e.mu.Lock()
	n := len(r.body)
	if c := r.reply.ReadChunk; c > 0 && n > c {
		n = c
	}
	e.mu.Unlock()
	e.async(req, r, native.StatusDataAvailable, native.StatusInfo{Length: uint32(n)})
	return nil
}

func (e *Engine) ReadData(req native.Handle, p []byte) error {
	r, err := e.get(req, kindRequest)
	if err != nil {
		return err
	}
	e.reads.Add(1)
	e.mu.Lock()
	n := len(p)
	if c := r.reply.ReadChunk; c > 0 && n > c {
		n = c
	}
	n = copy(p[:n], r.body)
	r.body = r.body[n:]
	e.mu.Unlock()
	e.async(req, r, native.StatusReadComplete, native.StatusInfo{Length: uint32(n)})
	return nil
}

func (e *Engine) CloseHandle(h native.Handle) error {
	e.mu.Lock()
	x, ok := e.handles[h]
	if !ok {
		e.mu.Unlock()
		return native.ErrInvalidHandle
	}
	delete(e.handles, h)
	x.closed = true
	e.mu.Unlock()
	e.closes.Add(1)
	return nil
}

// Stale returns a function that delivers an ErrOperationCancelled error
// to cb with ctx, standing in for a notification a real engine raised
// before a handle was closed but delivered after. Capture cb and ctx
// while the request is live, then call the function after the close.
func (e *Engine) Stale(h native.Handle) func() {
	e.mu.Lock()
	x, ok := e.handles[h]
	var (
		cb  native.Callback
		ctx uintptr
	)
	if ok {
		cb, ctx = x.cb, x.ctx
	}
	e.mu.Unlock()
	return func() {
		if cb != nil {
			cb(h, ctx, native.StatusRequestError, native.StatusInfo{Err: native.ErrOperationCancelled})
		}
	}
}

// async delivers a notification on a new goroutine, substituting the
// scripted failure if one applies. The callback and context are read at
// delivery time, so a notification racing with a close finds them
// cleared unless LateNotifications is set.
func (e *Engine) async(h native.Handle, r *handle, status native.Status, info native.StatusInfo) {
	e.mu.Lock()
	captured, capturedCtx := r.cb, r.ctx
	e.mu.Unlock()
	if r.reply.FailOn == status {
		status, info = native.StatusRequestError, native.StatusInfo{Err: r.reply.FailCode}
	}
	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		e.mu.Lock()
		cb, ctx, closed := r.cb, r.ctx, r.closed
		e.mu.Unlock()
		if closed && e.LateNotifications {
			cb, ctx = captured, capturedCtx
			status, info = native.StatusRequestError, native.StatusInfo{Err: native.ErrOperationCancelled}
		}
		if cb != nil {
			cb(h, ctx, status, info)
		}
	}()
}
