// Copyright 2021 The httpx Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

package stream

import (
	"context"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"github.com/gogama/nativehttp/backend"
	"github.com/gogama/nativehttp/cfnet"
	"github.com/gogama/nativehttp/ioerr"
	"github.com/gogama/nativehttp/request"
	"github.com/rs/zerolog"
)

// Backend is a backend.Backend over bound stream pairs and HTTP
// streams scheduled on a run loop.
type Backend struct {
	name string
	loop *cfnet.RunLoop
}

// New returns a backend named name whose stream callbacks run on loop.
// A nil loop means the process-wide run loop.
func New(name string, loop *cfnet.RunLoop) *Backend {
	return &Backend{name: name, loop: loop}
}

// Name returns the backend name.
func (b *Backend) Name() string {
	return b.name
}

// NewSession returns a session configured by cfg. Streams share
// connections through the process-wide pool, so a session holds no
// native resources of its own.
func (b *Backend) NewSession(cfg backend.Config) (backend.Session, error) {
	loop := b.loop
	if loop == nil {
		loop = cfnet.MainLoop()
	}
	s := &Session{
		cfg:  cfg,
		loop: loop,
		log:  cfg.Logger.With().Str("component", "backend").Str("backend", b.name).Logger(),
	}
	s.timeout.Store(int64(cfg.Timeout))
	s.log.Debug().Int("buffer_size", cfg.Buffer()).Msg("session opened")
	return s, nil
}

// Session is a backend.Session over HTTP streams.
type Session struct {
	cfg     backend.Config
	loop    *cfnet.RunLoop
	log     zerolog.Logger
	timeout atomic.Int64
	closed  atomic.Bool
}

// SetTimeout changes the timeout for requests sent afterwards.
func (s *Session) SetTimeout(d time.Duration) {
	s.timeout.Store(int64(d))
}

// Timeout returns the session timeout.
func (s *Session) Timeout() time.Duration {
	return time.Duration(s.timeout.Load())
}

// Send builds the request head, streams the body through a bound pair
// into an HTTP stream, and waits for the response head.
func (s *Session) Send(ctx context.Context, p *request.Plan) (backend.Stream, error) {
	if s.closed.Load() {
		return nil, ioerr.New(ioerr.NotConnected, "open", ioerr.ErrClosed)
	}
	log := backend.Logger(ctx, &s.log)
	t, err := p.Target()
	if err != nil {
		return nil, ioerr.New(ioerr.InvalidInput, "open", err)
	}
	msg, err := s.message(p)
	if err != nil {
		return nil, ioerr.FromErr("open", err)
	}
	src, length := p.Source()
	if length > 0 {
		msg.SetHeader("Content-Length", strconv.FormatInt(length, 10))
	}

	sc, id := newContext()
	x := &exchange{
		sc:      sc,
		id:      id,
		log:     log,
		timeout: backend.Timeout(p, s.Timeout()),
		src:     src,
		length:  length,
	}
	var rd cfnet.ReadStream
	if length > 0 {
		rd, x.wr = cfnet.BoundPair(s.cfg.Buffer())
		x.rd = rd
		x.buf = make([]byte, s.cfg.Buffer())
		x.wr.SetClient(bodyEvents, bodyCallback, id)
		x.wr.Schedule(s.loop)
	}
	x.hs = cfnet.NewHTTPStream(msg, rd)
	if s.cfg.Proxy != nil {
		x.hs.SetProperty(cfnet.PropertyHTTPProxy, s.cfg.Proxy)
	}
	x.hs.SetProperty(cfnet.PropertyPersistentConnection, !s.cfg.DisablePersistent)
	x.hs.SetClient(responseEvents, responseCallback, id)
	x.hs.Schedule(s.loop)

	log.Debug().
		Str("method", p.Method.String()).
		Str("host", t.Authority()).
		Str("path", t.Path).
		Int64("content_length", length).
		Msg("sending request")
	if e := x.open(); e != nil {
		x.teardown()
		return nil, e
	}
	if e := x.drive(ctx); e != nil {
		x.teardown()
		return nil, e
	}
	resp := x.response(ctx)
	log.Debug().Int("status", resp.status).Int64("bytes_sent", resp.sent).Msg("response head received")
	return resp, nil
}

func (s *Session) message(p *request.Plan) (*cfnet.Message, error) {
	lines, err := p.HeaderLines()
	if err != nil {
		return nil, err
	}
	msg := cfnet.NewRequestMessage(p.Method.String(), p.URL)
	for _, line := range lines {
		name, value, _ := strings.Cut(line, ": ")
		msg.AddHeader(name, value)
	}
	if ua := s.cfg.UserAgent; ua != "" && p.Header.Get("User-Agent") == "" {
		msg.SetHeader("User-Agent", ua)
	}
	return msg, nil
}

// Close marks the session closed. Streams already returned stay
// usable.
func (s *Session) Close() error {
	if s.closed.CompareAndSwap(false, true) {
		s.log.Debug().Msg("session closed")
	}
	return nil
}
