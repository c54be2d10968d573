// Copyright 2021 The httpx Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

package callback

import (
	"sync"

	"github.com/gogama/nativehttp/ioerr"
	"github.com/gogama/nativehttp/native"
	"github.com/gogama/nativehttp/request"
	"github.com/rs/zerolog"
)

// connCache maps a host authority to the connection handle used for
// every request to it. Entries live as long as the cache. Connections
// are always opened on the resolved port, so a cached connection never
// depends on the scheme of the request that created it.
//
// The lock is held across the native connect call, which does no
// network I/O. Concurrent first requests to one host share a single
// connection.
type connCache struct {
	engine  native.Engine
	session native.Handle
	log     *zerolog.Logger

	mu     sync.Mutex
	conns  map[string]*native.Shared
	closed bool
}

func newConnCache(engine native.Engine, session native.Handle, log *zerolog.Logger) *connCache {
	return &connCache{
		engine:  engine,
		session: session,
		log:     log,
		conns:   make(map[string]*native.Shared),
	}
}

// acquire returns a reference to the connection for t. The caller must
// Release it.
func (c *connCache) acquire(t request.Target) (*native.Shared, error) {
	key := t.Authority()
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil, ioerr.New(ioerr.NotConnected, "connect", ioerr.ErrClosed)
	}
	if s, ok := c.conns[key]; ok {
		return s.Retain(), nil
	}
	h, err := c.engine.Connect(c.session, t.Host, t.ResolvedPort())
	if err != nil {
		e := ioerr.FromNative("connect", err)
		c.log.Debug().Str("host", key).Int64("code", e.Code).Msg("connect failed")
		return nil, e
	}
	s := native.Share(native.Own(c.engine, h))
	c.conns[key] = s
	c.log.Debug().Str("host", key).Msg("connection cached")
	return s.Retain(), nil
}

// len returns the number of cached connections.
func (c *connCache) len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.conns)
}

// close drops the cache's reference to every connection. Connections
// still used by a live request close when that request releases them.
func (c *connCache) close() {
	c.mu.Lock()
	conns := c.conns
	c.conns = nil
	c.closed = true
	c.mu.Unlock()
	for _, s := range conns {
		s.Release()
	}
}
