// Copyright 2021 The httpx Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

package callback

import (
	"context"
	"io"
	"sync"

	"github.com/gogama/nativehttp/ioerr"
	"github.com/gogama/nativehttp/native"
	"github.com/gogama/nativehttp/request"
	"github.com/rs/zerolog"
)

type respPhase int

const (
	respIdle respPhase = iota
	respQuerying
	respReceiving
	respFinished
	respError
)

var respPhaseNames = []string{
	"idle",
	"querying",
	"receiving",
	"finished",
	"error",
}

func (p respPhase) String() string {
	return respPhaseNames[p]
}

// response is the Stream returned by Session.Send. Read drives the
// query and read cycle: ask how much data is available, read at most a
// buffer's worth, hand it out, repeat. A zero-length availability or
// read marks the end of the body.
//
// Read must be called from one goroutine at a time. Close may be
// called from any goroutine, concurrently with Read.
type response struct {
	engine native.Engine
	ctx    context.Context
	nc     *netContext
	id     uintptr
	log    *zerolog.Logger

	status int
	header request.ResponseHeader
	sent   int64

	buf  []byte
	r, w int

	phase respPhase
	err   *ioerr.Error

	// mu serializes native calls against Close.
	mu     sync.Mutex
	closed bool
	req    *native.Owned
	conn   *native.Shared
}

func (resp *response) StatusCode() int               { return resp.status }
func (resp *response) Header() request.ResponseHeader { return resp.header }
func (resp *response) BytesSent() int64               { return resp.sent }

func (resp *response) Read(p []byte) (int, error) {
	if len(p) == 0 {
		return 0, nil
	}
	if resp.isClosed() {
		resp.fail(ioerr.New(ioerr.ConnectionAborted, "read", ioerr.ErrClosed))
	}
	for {
		if resp.r < resp.w && resp.phase != respError {
			n := copy(p, resp.buf[resp.r:resp.w])
			resp.r += n
			return n, nil
		}
		for {
			ev, ok := resp.nc.mailbox.Take()
			if !ok {
				break
			}
			resp.handle(ev)
		}
		switch resp.phase {
		case respFinished:
			return 0, io.EOF
		case respError:
			return 0, resp.err
		case respIdle:
			if err := resp.call(func(h native.Handle) error {
				return resp.engine.QueryDataAvailable(h)
			}); err != nil {
				resp.fail(err)
				continue
			}
			resp.setPhase(respQuerying)
			continue
		}
		if resp.isClosed() {
			resp.fail(ioerr.New(ioerr.ConnectionAborted, "read", ioerr.ErrClosed))
			continue
		}
		if err := resp.nc.mailbox.Wait(resp.ctx); err != nil {
			resp.fail(ioerr.FromErr("read", err))
			resp.Close()
		}
	}
}

func (resp *response) handle(ev event) {
	switch ev.kind {
	case evDataAvailable:
		if resp.phase != respQuerying {
			return
		}
		if ev.n == 0 {
			resp.setPhase(respFinished)
			return
		}
		n := int(ev.n)
		if n > len(resp.buf) {
			n = len(resp.buf)
		}
		if err := resp.call(func(h native.Handle) error {
			return resp.engine.ReadData(h, resp.buf[:n])
		}); err != nil {
			resp.fail(err)
			return
		}
		resp.setPhase(respReceiving)
	case evReadComplete:
		if resp.phase != respReceiving {
			return
		}
		if ev.n == 0 {
			resp.setPhase(respFinished)
			return
		}
		if int(ev.n) > len(resp.buf) {
			resp.fail(ioerr.FromCode("read", native.ErrInvalidServerResponse))
			return
		}
		resp.r, resp.w = 0, int(ev.n)
		resp.setPhase(respIdle)
	case evError:
		resp.fail(ioerr.FromCode("read", ev.code))
	}
}

// call runs f on the request handle unless the response was closed.
func (resp *response) call(f func(native.Handle) error) *ioerr.Error {
	resp.mu.Lock()
	defer resp.mu.Unlock()
	if resp.closed {
		return ioerr.New(ioerr.ConnectionAborted, "read", ioerr.ErrClosed)
	}
	if err := f(resp.req.Handle()); err != nil {
		return ioerr.FromNative("read", err)
	}
	return nil
}

func (resp *response) isClosed() bool {
	resp.mu.Lock()
	defer resp.mu.Unlock()
	return resp.closed
}

func (resp *response) fail(err *ioerr.Error) {
	if resp.phase == respError || resp.phase == respFinished {
		return
	}
	resp.err = err
	resp.log.Debug().Stringer("phase", resp.phase).Int64("code", err.Code).Err(err).Msg("response failed")
	resp.phase = respError
}

func (resp *response) setPhase(p respPhase) {
	resp.log.Trace().Stringer("from", resp.phase).Stringer("to", p).Msg("response phase")
	resp.phase = p
}

// Close releases the request handle and the connection reference. A
// notification arriving afterwards finds no registered context and is
// dropped.
func (resp *response) Close() error {
	resp.mu.Lock()
	if resp.closed {
		resp.mu.Unlock()
		return nil
	}
	resp.closed = true
	resp.nc.closing.Store(true)
	contexts.Unregister(resp.id)
	resp.req.Close()
	resp.conn.Release()
	resp.mu.Unlock()
	resp.nc.mailbox.Wake()
	resp.log.Debug().Msg("response closed")
	return nil
}

// handOff turns a request machine that received the response head into
// a response. The request handle is re-associated with a fresh context
// so that nothing queued for the request machine reaches the response.
func (m *requestMachine) handOff(ctx context.Context, conn *native.Shared, bufSize int) (*response, error) {
	nc, id := newContext(m.engine)
	if err := m.engine.SetContext(m.req.Handle(), id); err != nil {
		contexts.Unregister(id)
		return nil, ioerr.FromNative("receive", err)
	}
	m.nc.closing.Store(true)
	contexts.Unregister(m.id)
	return &response{
		engine: m.engine,
		ctx:    ctx,
		nc:     nc,
		id:     id,
		log:    m.log,
		status: m.status,
		header: m.header,
		sent:   m.sent,
		buf:    make([]byte, bufSize),
		req:    m.req,
		conn:   conn,
	}, nil
}
