// Copyright 2021 The httpx Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

package stream

import (
	"context"
	"errors"
	"io"
	"sync/atomic"
	"time"

	"github.com/gogama/nativehttp/backend"
	"github.com/gogama/nativehttp/cfnet"
	"github.com/gogama/nativehttp/ioerr"
	"github.com/gogama/nativehttp/request"
	"github.com/rs/zerolog"
)

// An exchange drives one request: it copies the body source into the
// bound pair's write end as space frees up, and waits for the HTTP
// stream to report the response head.
//
// The transfer buffer decouples the two sides. A write that takes only
// part of the buffered chunk advances the read cursor, and the source
// is read again only once the chunk is fully written.
type exchange struct {
	sc      *streamContext
	id      uintptr
	log     *zerolog.Logger
	timeout time.Duration

	src    io.Reader
	length int64
	read   int64
	sent   int64
	srcEOF bool
	empty  int
	buf    []byte
	r, w   int

	rd      cfnet.ReadStream
	wr      cfnet.WriteStream
	hs      *cfnet.HTTPStream
	sending bool

	err  *ioerr.Error
	head *cfnet.Message
}

func (x *exchange) open() *ioerr.Error {
	if x.wr != nil {
		if err := x.rd.Open(); err != nil {
			return ioerr.FromErr("open", err)
		}
		if err := x.wr.Open(); err != nil {
			return ioerr.FromErr("open", err)
		}
		x.sending = true
	}
	if err := x.hs.Open(); err != nil {
		return ioerr.FromErr("open", err)
	}
	return nil
}

func (x *exchange) drive(ctx context.Context) *ioerr.Error {
	for !x.poll() {
		if err := x.sc.wait(ctx, x.timeout); err != nil {
			op := "receive"
			if x.sending {
				op = "write"
			}
			x.fail(ioerr.FromErr(op, err))
		}
	}
	return x.err
}

// poll reacts to queued events and reports whether the exchange is
// done, either with the response head or with an error.
func (x *exchange) poll() bool {
	for {
		ev, ok := x.sc.mailbox.Take()
		if !ok {
			break
		}
		if ev.ev != cfnet.EventErrorOccurred {
			continue
		}
		if ev.src == fromBody {
			x.fail(streamFailure("write", x.wr.Error()))
		} else {
			x.fail(streamFailure("receive", x.hs.Error()))
		}
	}
	if x.err != nil {
		return true
	}
	if x.sending {
		if e := x.pump(); e != nil {
			x.fail(e)
			return true
		}
	}
	if head, ok := x.hs.ResponseHeader(); ok {
		if x.sending {
			// The server answered before taking the whole body.
			x.wr.Close()
			x.sending = false
		}
		x.head = head
		return true
	}
	if e := x.hs.Error(); e != nil {
		x.fail(streamFailure("receive", e))
		return true
	}
	return false
}

// pump writes until the pair is full or the body is exhausted.
func (x *exchange) pump() *ioerr.Error {
	for {
		if x.r == x.w {
			done, err := x.fill()
			if err != nil {
				return err
			}
			if done {
				x.wr.Close()
				x.sending = false
				return nil
			}
			if x.r == x.w {
				continue
			}
		}
		n, err := x.wr.Write(x.buf[x.r:x.w])
		if err == cfnet.ErrWouldBlock {
			return nil
		} else if err != nil {
			return writeFailure(err)
		}
		x.r += n
		x.sent += int64(n)
	}
}

func (x *exchange) fill() (done bool, err *ioerr.Error) {
	if x.src == nil || x.srcEOF {
		return x.exhausted()
	}
	n, rerr := x.src.Read(x.buf)
	if int64(n) > x.length-x.read {
		return false, ioerr.New(ioerr.InvalidInput, "write", ioerr.ErrBodyLength)
	}
	if n == 0 && rerr == nil {
		x.empty++
		if x.empty >= backend.MaxEmptyReads {
			return false, ioerr.New(ioerr.InvalidInput, "write", io.ErrNoProgress)
		}
	} else {
		x.empty = 0
	}
	x.read += int64(n)
	x.r, x.w = 0, n
	switch {
	case rerr == io.EOF:
		x.srcEOF = true
		if n == 0 {
			return x.exhausted()
		}
	case rerr != nil:
		return false, ioerr.FromErr("write", rerr)
	}
	return false, nil
}

func (x *exchange) exhausted() (bool, *ioerr.Error) {
	if x.read != x.length {
		return false, ioerr.New(ioerr.InvalidInput, "write", ioerr.ErrBodyLength)
	}
	return true, nil
}

func (x *exchange) fail(err *ioerr.Error) {
	if x.err != nil {
		return
	}
	x.err = err
	x.log.Debug().Int64("code", err.Code).Err(err).Msg("request failed")
}

// teardown closes every stream of the exchange. Callbacks already
// queued on the run loop find no registered context.
func (x *exchange) teardown() {
	contexts.Unregister(x.id)
	x.hs.Close()
	if x.wr != nil {
		x.wr.Close()
		x.rd.Close()
	}
	x.sc.mailbox.Wake()
}

func (x *exchange) response(ctx context.Context) *response {
	_, _, header := request.ParseRawHeaders(x.head.Serialized())
	return &response{
		x:      x,
		ctx:    ctx,
		status: x.head.StatusCode(),
		header: header,
		sent:   x.sent,
	}
}

func streamFailure(op string, e *cfnet.StreamError) *ioerr.Error {
	if e == nil {
		return ioerr.New(ioerr.Other, op, nil)
	}
	return ioerr.FromStream(op, *e)
}

func writeFailure(err error) *ioerr.Error {
	var se cfnet.StreamError
	if errors.As(err, &se) {
		return ioerr.FromStream("write", se)
	}
	return ioerr.FromErr("write", err)
}

// response is the Stream returned by Session.Send.
type response struct {
	x      *exchange
	ctx    context.Context
	status int
	header request.ResponseHeader
	sent   int64

	err    *ioerr.Error
	eof    bool
	closed atomic.Bool
}

func (resp *response) StatusCode() int                { return resp.status }
func (resp *response) Header() request.ResponseHeader { return resp.header }
func (resp *response) BytesSent() int64               { return resp.sent }

func (resp *response) Read(p []byte) (int, error) {
	if len(p) == 0 {
		return 0, nil
	}
	if resp.closed.Load() && resp.err == nil {
		resp.fail(ioerr.New(ioerr.ConnectionAborted, "read", ioerr.ErrClosed))
	}
	for {
		if resp.err != nil {
			return 0, resp.err
		}
		if resp.eof {
			return 0, io.EOF
		}
		for {
			ev, ok := resp.x.sc.mailbox.Take()
			if !ok {
				break
			}
			if ev.src == fromResponse && ev.ev == cfnet.EventErrorOccurred {
				resp.fail(streamFailure("read", resp.x.hs.Error()))
			}
		}
		if resp.err != nil {
			continue
		}
		n, err := resp.x.hs.Read(p)
		var se cfnet.StreamError
		switch {
		case n > 0:
			return n, nil
		case err == io.EOF:
			resp.eof = true
		case err == cfnet.ErrWouldBlock:
			if resp.closed.Load() {
				resp.fail(ioerr.New(ioerr.ConnectionAborted, "read", ioerr.ErrClosed))
				continue
			}
			if werr := resp.x.sc.wait(resp.ctx, resp.x.timeout); werr != nil {
				resp.fail(ioerr.FromErr("read", werr))
				resp.Close()
			}
		case errors.As(err, &se):
			resp.fail(ioerr.FromStream("read", se))
		case err == io.ErrClosedPipe:
			resp.fail(ioerr.New(ioerr.ConnectionAborted, "read", ioerr.ErrClosed))
		case err != nil:
			resp.fail(ioerr.FromErr("read", err))
		}
	}
}

func (resp *response) fail(err *ioerr.Error) {
	if resp.err != nil || resp.eof {
		return
	}
	resp.err = err
	resp.x.log.Debug().Int64("code", err.Code).Err(err).Msg("response failed")
}

// Close tears the exchange down. It may be called from any goroutine.
func (resp *response) Close() error {
	if resp.closed.CompareAndSwap(false, true) {
		resp.x.teardown()
		resp.x.log.Debug().Msg("response closed")
	}
	return nil
}
