// Copyright 2021 The httpx Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

package callback

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gogama/nativehttp/backend"
	"github.com/gogama/nativehttp/ioerr"
	"github.com/gogama/nativehttp/native"
	"github.com/gogama/nativehttp/request"
	"github.com/rs/zerolog"
)

// Backend is a backend.Backend over a callback-driven native engine.
type Backend struct {
	name   string
	engine native.Engine
}

// New returns a backend named name that sends requests through engine.
func New(name string, engine native.Engine) *Backend {
	return &Backend{name: name, engine: engine}
}

// Name returns the backend name.
func (b *Backend) Name() string {
	return b.name
}

// NewSession opens a native session configured by cfg.
func (b *Backend) NewSession(cfg backend.Config) (backend.Session, error) {
	h, err := b.engine.Open(native.SessionOptions{
		UserAgent: cfg.UserAgent,
		KeepAlive: cfg.KeepAlive,
	})
	if err != nil {
		return nil, ioerr.FromNative("open", err)
	}
	log := cfg.Logger.With().Str("component", "backend").Str("backend", b.name).Logger()
	s := &Session{
		engine:  b.engine,
		handle:  native.Own(b.engine, h),
		bufSize: cfg.Buffer(),
		log:     log,
	}
	s.cache = newConnCache(b.engine, h, &s.log)
	s.timeout.Store(int64(cfg.Timeout))
	s.log.Debug().Int("buffer_size", s.bufSize).Msg("session opened")
	return s, nil
}

// Session is a backend.Session over a callback-driven native engine.
type Session struct {
	engine  native.Engine
	handle  *native.Owned
	cache   *connCache
	bufSize int
	log     zerolog.Logger
	timeout atomic.Int64
	once    sync.Once
}

// SetTimeout changes the timeout for requests sent afterwards.
func (s *Session) SetTimeout(d time.Duration) {
	s.timeout.Store(int64(d))
}

// Timeout returns the session timeout.
func (s *Session) Timeout() time.Duration {
	return time.Duration(s.timeout.Load())
}

// Send opens a request for p on the cached connection to its host,
// sends its head and body, and waits for the response head.
func (s *Session) Send(ctx context.Context, p *request.Plan) (backend.Stream, error) {
	log := backend.Logger(ctx, &s.log)
	t, err := p.Target()
	if err != nil {
		return nil, ioerr.New(ioerr.InvalidInput, "open", err)
	}
	lines, err := p.HeaderLines()
	if err != nil {
		return nil, ioerr.FromErr("open", err)
	}
	conn, err := s.cache.acquire(t)
	if err != nil {
		return nil, err
	}
	h, err := s.engine.OpenRequest(conn.Handle(), p.Method.String(), t.Path, t.Secure)
	if err != nil {
		conn.Release()
		return nil, ioerr.FromNative("open", err)
	}
	req := native.Own(s.engine, h)
	if err = s.prepare(req.Handle(), p, lines); err != nil {
		req.Close()
		conn.Release()
		return nil, err
	}

	nc, id := newContext(s.engine)
	if err = s.engine.SetStatusCallback(req.Handle(), bridge); err != nil {
		contexts.Unregister(id)
		req.Close()
		conn.Release()
		return nil, ioerr.FromNative("open", err)
	}
	body, length := p.Source()
	m := &requestMachine{
		engine: s.engine,
		req:    req,
		nc:     nc,
		id:     id,
		log:    log,
		body:   body,
		length: length,
		buf:    make([]byte, s.bufSize),
	}
	log.Debug().
		Str("method", p.Method.String()).
		Str("host", t.Authority()).
		Str("path", t.Path).
		Int64("content_length", length).
		Msg("sending request")
	if e := m.drive(ctx); e != nil {
		m.teardown()
		conn.Release()
		return nil, e
	}
	resp, err := m.handOff(ctx, conn, s.bufSize)
	if err != nil {
		m.teardown()
		conn.Release()
		return nil, err
	}
	log.Debug().Int("status", resp.status).Int64("bytes_sent", resp.sent).Msg("response head received")
	return resp, nil
}

func (s *Session) prepare(h native.Handle, p *request.Plan, lines []string) error {
	for _, line := range lines {
		if err := s.engine.AddRequestHeader(h, line, false); err != nil {
			return ioerr.FromNative("open", err)
		}
	}
	if d := backend.Timeout(p, s.Timeout()); d > 0 {
		if err := s.engine.SetTimeouts(h, native.Uniform(d)); err != nil {
			return ioerr.FromNative("open", err)
		}
	}
	return nil
}

// Close releases the connection cache and the native session. Streams
// already returned keep their connection until they are closed.
func (s *Session) Close() error {
	s.once.Do(func() {
		s.cache.close()
		s.handle.Close()
		s.log.Debug().Msg("session closed")
	})
	return nil
}
