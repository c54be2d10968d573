// Copyright 2021 The httpx Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

// Package netengine implements native.Engine on top of net/http. It
// reproduces the asynchronous, callback-driven behaviour of the Windows
// engine on every platform: each asynchronous operation runs on a
// goroutine of its own and reports completion through the request's
// status callback.
package netengine

import (
	"bufio"
	"context"
	"io"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gogama/nativehttp/native"
)

const defaultKeepAlive = 15 * time.Second

type kind int

const (
	kindSession kind = iota
	kindConnect
	kindRequest
)

type object struct {
	kind kind
	h    native.Handle

	// Session.
	transport *http.Transport
	userAgent string

	// Connection.
	session *object
	host    string
	port    uint16

	// Request. The mutex guards every field below it.
	conn     *object
	mu       sync.Mutex
	method   string
	path     string
	secure   bool
	header   http.Header
	cb       native.Callback
	ctx      uintptr
	to       native.Timeouts
	reqCtx   context.Context
	cancel   context.CancelFunc
	pr       *io.PipeReader
	pw       *io.PipeWriter
	result   chan roundTrip
	resp     *http.Response
	body     *bufio.Reader
	closed   bool
	timedOut atomic.Bool
}

type roundTrip struct {
	resp *http.Response
	err  error
}

// Engine is a native.Engine backed by net/http. The zero value is not
// usable; call New.
type Engine struct {
	mu      sync.Mutex
	next    native.Handle
	handles map[native.Handle]*object
	wg      sync.WaitGroup
}

// New returns a new engine.
func New() *Engine {
	return &Engine{handles: make(map[native.Handle]*object)}
}

// OpenHandles returns the number of handles that have been opened and
// not yet closed.
func (e *Engine) OpenHandles() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.handles)
}

// Wait blocks until every asynchronous operation started by the engine
// has delivered its notification or been abandoned.
func (e *Engine) Wait() {
	e.wg.Wait()
}

func (e *Engine) add(o *object) native.Handle {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.next++
	o.h = e.next
	e.handles[e.next] = o
	return e.next
}

func (e *Engine) get(h native.Handle, k kind) (*object, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	o, ok := e.handles[h]
	if !ok {
		return nil, native.ErrInvalidHandle
	}
	if o.kind != k {
		return nil, native.ErrIncorrectHandleType
	}
	return o, nil
}

// Open opens a session with its own connection pool.
func (e *Engine) Open(opts native.SessionOptions) (native.Handle, error) {
	keepAlive := opts.KeepAlive
	if keepAlive <= 0 {
		keepAlive = defaultKeepAlive
	}
	t := http.DefaultTransport.(*http.Transport).Clone()
	t.Proxy = http.ProxyFromEnvironment
	t.DialContext = (&net.Dialer{
		Timeout:   30 * time.Second,
		KeepAlive: keepAlive,
	}).DialContext
	return e.add(&object{kind: kindSession, transport: t, userAgent: opts.UserAgent}), nil
}

// Connect records the target host. It does no network I/O.
func (e *Engine) Connect(session native.Handle, host string, port uint16) (native.Handle, error) {
	s, err := e.get(session, kindSession)
	if err != nil {
		return 0, err
	}
	if host == "" {
		return 0, native.ErrInvalidURL
	}
	return e.add(&object{kind: kindConnect, session: s, host: host, port: port}), nil
}

// OpenRequest opens a request handle.
func (e *Engine) OpenRequest(conn native.Handle, method, path string, secure bool) (native.Handle, error) {
	c, err := e.get(conn, kindConnect)
	if err != nil {
		return 0, err
	}
	if method == "" || path == "" || path[0] != '/' {
		return 0, native.ErrInvalidParameter
	}
	return e.add(&object{
		kind:   kindRequest,
		conn:   c,
		method: method,
		path:   path,
		secure: secure,
		header: make(http.Header),
	}), nil
}

// AddRequestHeader parses line as "Name: value".
func (e *Engine) AddRequestHeader(req native.Handle, line string, replace bool) error {
	r, err := e.get(req, kindRequest)
	if err != nil {
		return err
	}
	name, value, ok := cutHeader(line)
	if !ok {
		return native.ErrInvalidHeader
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if replace {
		r.header.Set(name, value)
	} else {
		r.header.Add(name, value)
	}
	return nil
}

// SetStatusCallback installs or removes the request callback. Only
// request handles deliver notifications.
func (e *Engine) SetStatusCallback(h native.Handle, cb native.Callback) error {
	r, err := e.get(h, kindRequest)
	if err != nil {
		return err
	}
	r.mu.Lock()
	r.cb = cb
	r.mu.Unlock()
	return nil
}

// SetContext sets the context value passed to the callback.
func (e *Engine) SetContext(h native.Handle, ctx uintptr) error {
	r, err := e.get(h, kindRequest)
	if err != nil {
		return err
	}
	r.mu.Lock()
	r.ctx = ctx
	r.mu.Unlock()
	return nil
}

// SetTimeouts sets the request timeouts.
func (e *Engine) SetTimeouts(h native.Handle, t native.Timeouts) error {
	r, err := e.get(h, kindRequest)
	if err != nil {
		return err
	}
	r.mu.Lock()
	r.to = t
	r.mu.Unlock()
	return nil
}

// SendRequest starts the round trip. The body is streamed from
// subsequent WriteData calls.
func (e *Engine) SendRequest(req native.Handle, totalLength uint64, ctx uintptr) error {
	r, err := e.get(req, kindRequest)
	if err != nil {
		return err
	}
	r.mu.Lock()
	if r.result != nil {
		r.mu.Unlock()
		return native.ErrIncorrectHandleState
	}
	r.ctx = ctx
	hr, err := r.newHTTPRequest(totalLength)
	if err != nil {
		r.mu.Unlock()
		return err
	}
	r.result = make(chan roundTrip, 1)
	t, pr := r.conn.session.transport, r.pr
	r.mu.Unlock()

	e.async(func() {
		go func() {
			resp, err := t.RoundTrip(hr)
			if err != nil && pr != nil {
				_ = pr.CloseWithError(err)
			}
			r.result <- roundTrip{resp, err}
		}()
		r.deliver(native.StatusSendRequestComplete, native.StatusInfo{})
	})
	return nil
}

// newHTTPRequest is called with r.mu held.
func (r *object) newHTTPRequest(totalLength uint64) (*http.Request, error) {
	scheme := "http"
	if r.secure {
		scheme = "https"
	}
	host := r.conn.host
	if r.conn.port != native.DefaultPort {
		host = net.JoinHostPort(host, strconv.Itoa(int(r.conn.port)))
	} else if ip := net.ParseIP(host); ip != nil && ip.To4() == nil {
		host = "[" + host + "]"
	}
	u, err := url.Parse(scheme + "://" + host + r.path)
	if err != nil {
		return nil, native.ErrInvalidURL
	}

	r.reqCtx, r.cancel = context.WithCancel(context.Background())

	hr, err := http.NewRequestWithContext(r.reqCtx, r.method, u.String(), nil)
	if err != nil {
		return nil, native.ErrInvalidParameter
	}
	hr.Header = r.header.Clone()
	if ua := r.conn.session.userAgent; ua != "" && hr.Header.Get("User-Agent") == "" {
		hr.Header.Set("User-Agent", ua)
	}
	if h := hr.Header.Get("Host"); h != "" {
		hr.Host = h
		hr.Header.Del("Host")
	}
	hr.Header.Del("Content-Length")
	if totalLength > 0 {
		r.pr, r.pw = io.Pipe()
		hr.Body = pipeBody{r.pr}
		hr.ContentLength = int64(totalLength)
	} else {
		hr.Body = http.NoBody
	}
	return hr, nil
}

// WriteData writes the next body part into the round trip.
func (e *Engine) WriteData(req native.Handle, p []byte) error {
	r, err := e.get(req, kindRequest)
	if err != nil {
		return err
	}
	r.mu.Lock()
	pw, send := r.pw, r.to.Send
	r.mu.Unlock()
	if pw == nil {
		return native.ErrIncorrectHandleState
	}
	e.async(func() {
		var n int
		err := r.withTimeout(send, func() error {
			var err error
			n, err = pw.Write(p)
			return err
		})
		if err != nil {
			r.fail(err)
			return
		}
		r.deliver(native.StatusWriteComplete, native.StatusInfo{Length: uint32(n)})
	})
	return nil
}

// ReceiveResponse finishes the body and waits for the response head.
func (e *Engine) ReceiveResponse(req native.Handle) error {
	r, err := e.get(req, kindRequest)
	if err != nil {
		return err
	}
	r.mu.Lock()
	pw, result, reqCtx := r.pw, r.result, r.reqCtx
	wait := r.to.Receive
	if wait > 0 {
		wait += r.to.Resolve + r.to.Connect
	}
	r.mu.Unlock()
	if result == nil {
		return native.ErrIncorrectHandleState
	}
	e.async(func() {
		if pw != nil {
			_ = pw.Close()
		}
		var timeout <-chan time.Time
		if wait > 0 {
			t := time.NewTimer(wait)
			defer t.Stop()
			timeout = t.C
		}
		select {
		case rt := <-result:
			if rt.err != nil {
				r.fail(rt.err)
				return
			}
			r.mu.Lock()
			r.resp = rt.resp
			r.body = bufio.NewReaderSize(rt.resp.Body, 16<<10)
			closed := r.closed
			r.mu.Unlock()
			if closed {
				_ = rt.resp.Body.Close()
				return
			}
			r.deliver(native.StatusHeadersAvailable, native.StatusInfo{})
		case <-timeout:
			r.timedOut.Store(true)
			r.abort()
			r.fail(native.ErrTimeout)
		case <-reqCtx.Done():
			r.fail(reqCtx.Err())
		}
	})
	return nil
}

// QueryHeaders serializes the response head.
func (e *Engine) QueryHeaders(req native.Handle, buf []byte) (int, error) {
	r, err := e.get(req, kindRequest)
	if err != nil {
		return 0, err
	}
	r.mu.Lock()
	resp := r.resp
	r.mu.Unlock()
	if resp == nil {
		return 0, native.ErrHeaderNotFound
	}
	raw := rawHeaders(resp)
	if len(buf) < len(raw) {
		return len(raw), native.ErrInsufficientBuffer
	}
	return copy(buf, raw), nil
}

// QueryDataAvailable reports how many bytes can be read immediately.
func (e *Engine) QueryDataAvailable(req native.Handle) error {
	r, err := e.get(req, kindRequest)
	if err != nil {
		return err
	}
	r.mu.Lock()
	body, recv := r.body, r.to.Receive
	r.mu.Unlock()
	if body == nil {
		return native.ErrIncorrectHandleState
	}
	e.async(func() {
		var n int
		err := r.withTimeout(recv, func() error {
			_, err := body.Peek(1)
			n = body.Buffered()
			return err
		})
		if err != nil && err != io.EOF {
			r.fail(err)
			return
		}
		r.deliver(native.StatusDataAvailable, native.StatusInfo{Length: uint32(n)})
	})
	return nil
}

// ReadData reads response body into p.
func (e *Engine) ReadData(req native.Handle, p []byte) error {
	r, err := e.get(req, kindRequest)
	if err != nil {
		return err
	}
	r.mu.Lock()
	body, recv := r.body, r.to.Receive
	r.mu.Unlock()
	if body == nil {
		return native.ErrIncorrectHandleState
	}
	e.async(func() {
		var n int
		err := r.withTimeout(recv, func() error {
			var err error
			n, err = body.Read(p)
			return err
		})
		if n > 0 || err == io.EOF {
			r.deliver(native.StatusReadComplete, native.StatusInfo{Length: uint32(n)})
			return
		}
		if err != nil {
			r.fail(err)
			return
		}
		r.deliver(native.StatusReadComplete, native.StatusInfo{})
	})
	return nil
}

// CloseHandle closes h. Closing a request aborts its round trip.
func (e *Engine) CloseHandle(h native.Handle) error {
	e.mu.Lock()
	o, ok := e.handles[h]
	delete(e.handles, h)
	e.mu.Unlock()
	if !ok {
		return native.ErrInvalidHandle
	}
	switch o.kind {
	case kindRequest:
		o.abort()
	case kindSession:
		o.transport.CloseIdleConnections()
	}
	return nil
}

func (r *object) abort() {
	r.mu.Lock()
	r.closed = true
	cancel, pr, resp := r.cancel, r.pr, r.resp
	r.mu.Unlock()
	if cancel != nil {
		cancel()
	}
	if pr != nil {
		_ = pr.CloseWithError(context.Canceled)
	}
	if resp != nil {
		_ = resp.Body.Close()
	}
}

func (e *Engine) async(f func()) {
	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		f()
	}()
}

// withTimeout runs op, aborting the request if op takes longer than d.
// A non-positive d means no limit.
func (r *object) withTimeout(d time.Duration, op func() error) error {
	if d <= 0 {
		return op()
	}
	t := time.AfterFunc(d, func() {
		r.timedOut.Store(true)
		r.abort()
	})
	defer t.Stop()
	return op()
}

func (r *object) fail(err error) {
	code := codeOf(err)
	if r.timedOut.Load() {
		code = native.ErrTimeout
	}
	r.deliver(native.StatusRequestError, native.StatusInfo{Err: code})
}

// deliver runs the callback with the current context value. After the
// handle was closed, every notification becomes a cancellation.
func (r *object) deliver(status native.Status, info native.StatusInfo) {
	r.mu.Lock()
	cb, ctx, closed := r.cb, r.ctx, r.closed
	r.mu.Unlock()
	if cb == nil {
		return
	}
	if closed && status != native.StatusRequestError {
		status, info = native.StatusRequestError, native.StatusInfo{Err: native.ErrOperationCancelled}
	}
	cb(r.h, ctx, status, info)
}

// pipeBody keeps the transport from closing the pipe, so a failed round
// trip can close it with the failure instead.
type pipeBody struct {
	*io.PipeReader
}

func (pipeBody) Close() error { return nil }
