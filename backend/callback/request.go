// Copyright 2021 The httpx Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

package callback

import (
	"context"
	"io"

	"github.com/gogama/nativehttp/backend"
	"github.com/gogama/nativehttp/ioerr"
	"github.com/gogama/nativehttp/native"
	"github.com/gogama/nativehttp/request"
	"github.com/rs/zerolog"
)

type reqPhase int

const (
	reqInit reqPhase = iota
	reqSendingBody
	reqBodySent
	reqAwaitHeaders
	reqHeadersReceived
	reqError
)

var reqPhaseNames = []string{
	"init",
	"sending-body",
	"body-sent",
	"await-headers",
	"headers-received",
	"error",
}

func (p reqPhase) String() string {
	return reqPhaseNames[p]
}

// requestMachine drives one request from SendRequest to the response
// head. Only the goroutine calling drive touches its fields.
//
// At most one native write is outstanding at a time, and the body
// source is not read again until the write before has completed,
// because the transfer buffer is reused.
type requestMachine struct {
	engine native.Engine
	req    *native.Owned
	nc     *netContext
	id     uintptr
	log    *zerolog.Logger

	body   io.Reader
	length int64
	read   int64
	sent   int64
	srcEOF bool
	empty  int
	buf    []byte
	// pending is the part of buf handed to the native layer and not yet
	// acknowledged.
	pending []byte
	writing bool

	phase  reqPhase
	err    *ioerr.Error
	status int
	header request.ResponseHeader
}

// drive polls the machine until it reaches a terminal phase, waiting on
// the mailbox in between.
func (m *requestMachine) drive(ctx context.Context) *ioerr.Error {
	for !m.poll() {
		if err := m.nc.mailbox.Wait(ctx); err != nil {
			m.fail(ioerr.FromErr(m.op(), err))
			return m.err
		}
	}
	return m.err
}

// poll consumes every queued event and advances as far as it can
// without waiting. It reports whether the machine is done.
func (m *requestMachine) poll() bool {
	for {
		if ev, ok := m.nc.mailbox.Take(); ok {
			m.handle(ev)
			continue
		}
		switch m.phase {
		case reqInit:
			if err := m.engine.SendRequest(m.req.Handle(), uint64(m.length), m.id); err != nil {
				m.fail(ioerr.FromNative("send", err))
				continue
			}
			m.writing = true
			m.setPhase(reqSendingBody)
			return false
		case reqSendingBody:
			if m.writing {
				return false
			}
			if len(m.pending) == 0 {
				done, err := m.fill()
				if err != nil {
					m.fail(err)
					continue
				}
				if done {
					m.setPhase(reqBodySent)
					continue
				}
				if len(m.pending) == 0 {
					continue
				}
			}
			if err := m.engine.WriteData(m.req.Handle(), m.pending); err != nil {
				m.fail(ioerr.FromNative("write", err))
				continue
			}
			m.writing = true
			return false
		case reqBodySent:
			if err := m.engine.ReceiveResponse(m.req.Handle()); err != nil {
				m.fail(ioerr.FromNative("receive", err))
				continue
			}
			m.setPhase(reqAwaitHeaders)
			return false
		case reqAwaitHeaders:
			return false
		default:
			return true
		}
	}
}

func (m *requestMachine) handle(ev event) {
	switch ev.kind {
	case evWriteReady:
		if m.phase != reqSendingBody || !m.writing {
			return
		}
		n := int(ev.n)
		if n > len(m.pending) {
			n = len(m.pending)
		}
		m.pending = m.pending[n:]
		m.sent += int64(n)
		m.writing = false
	case evHeaders:
		if m.phase != reqAwaitHeaders {
			return
		}
		status, _, header := request.ParseRawHeaders(ev.raw)
		if status == 0 {
			m.fail(ioerr.FromCode("receive", native.ErrInvalidServerResponse))
			return
		}
		m.status, m.header = status, header
		m.setPhase(reqHeadersReceived)
	case evError:
		m.fail(ioerr.FromCode(m.op(), ev.code))
	}
}

// fill reads the next chunk from the body source into the transfer
// buffer. It reports done once the source is exhausted, and fails if
// the source yields more or fewer bytes than declared.
func (m *requestMachine) fill() (done bool, err *ioerr.Error) {
	if m.body == nil || m.srcEOF {
		return m.exhausted()
	}
	n, rerr := m.body.Read(m.buf)
	if int64(n) > m.length-m.read {
		return false, ioerr.New(ioerr.InvalidInput, "write", ioerr.ErrBodyLength)
	}
	if n == 0 && rerr == nil {
		m.empty++
		if m.empty >= backend.MaxEmptyReads {
			return false, ioerr.New(ioerr.InvalidInput, "write", io.ErrNoProgress)
		}
	} else {
		m.empty = 0
	}
	m.read += int64(n)
	m.pending = m.buf[:n]
	switch {
	case rerr == io.EOF:
		m.srcEOF = true
		if n == 0 {
			return m.exhausted()
		}
	case rerr != nil:
		return false, ioerr.FromErr("write", rerr)
	}
	return false, nil
}

func (m *requestMachine) exhausted() (bool, *ioerr.Error) {
	if m.read != m.length {
		return false, ioerr.New(ioerr.InvalidInput, "write", ioerr.ErrBodyLength)
	}
	return true, nil
}

func (m *requestMachine) fail(err *ioerr.Error) {
	if m.phase == reqError {
		return
	}
	m.err = err
	m.log.Debug().Stringer("phase", m.phase).Int64("code", err.Code).Err(err).Msg("request failed")
	m.phase = reqError
}

func (m *requestMachine) setPhase(p reqPhase) {
	m.log.Debug().Stringer("from", m.phase).Stringer("to", p).Msg("request phase")
	m.phase = p
}

func (m *requestMachine) op() string {
	switch m.phase {
	case reqInit:
		return "send"
	case reqSendingBody:
		return "write"
	default:
		return "receive"
	}
}

// teardown releases the request handle after a failure.
func (m *requestMachine) teardown() {
	m.nc.closing.Store(true)
	contexts.Unregister(m.id)
	m.req.Close()
}
