// Copyright 2021 The httpx Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

// Package backend defines the contract between the client and the
// per-platform native transports.
//
// A Backend opens Sessions. A Session sends request plans and returns
// the response as a Stream, a pull-based byte stream whose status code
// and header are available as soon as it is returned. Backends never
// retry: any failure is reported to the caller exactly once and every
// later operation on the failed request or stream reports it again.
package backend

import (
	"context"
	"io"
	"net/url"
	"time"

	"github.com/gogama/nativehttp/request"
	"github.com/rs/zerolog"
)

// DefaultBufferSize is the transfer buffer size backends use when the
// configuration does not set one. It is the minimum read size the
// Windows engine recommends.
const DefaultBufferSize = 8 << 10

// MaxEmptyReads is the number of consecutive reads returning no bytes
// and no error a request body source may make before the request fails
// with io.ErrNoProgress.
const MaxEmptyReads = 100

// Config configures a Session.
type Config struct {
	// Logger receives session-level log events. Request-level events go
	// to the logger attached to the context passed to Send (see
	// zerolog.Ctx), which defaults to this one.
	Logger zerolog.Logger

	// BufferSize is the transfer buffer size. Zero means
	// DefaultBufferSize.
	BufferSize int

	// Timeout bounds each native phase of every request. Zero means the
	// native default. A positive Plan.Timeout takes precedence.
	Timeout time.Duration

	// UserAgent is sent with every request that does not set one.
	UserAgent string

	// KeepAlive is the keep-alive interval for pooled connections.
	KeepAlive time.Duration

	// Proxy, when non-nil, is the proxy every request goes through.
	// Backends whose native layer takes the proxy from system settings
	// ignore it.
	Proxy *url.URL

	// DisablePersistent stops a backend from reusing connections, where
	// the native layer lets it choose.
	DisablePersistent bool
}

// Buffer returns the effective transfer buffer size.
func (c *Config) Buffer() int {
	if c.BufferSize <= 0 {
		return DefaultBufferSize
	}
	return c.BufferSize
}

// A Backend creates sessions over one native transport.
type Backend interface {
	// Name returns a short name for log events and metrics.
	Name() string
	// NewSession opens a native session.
	NewSession(cfg Config) (Session, error)
}

// A Session owns a native session and the connections opened through
// it. It is safe for concurrent use.
type Session interface {
	// Send sends p and waits for the response head. The context bounds
	// the whole exchange, including reading the returned stream.
	//
	// Errors are *ioerr.Error values.
	Send(ctx context.Context, p *request.Plan) (Stream, error)
	// SetTimeout changes the timeout for requests sent afterwards.
	SetTimeout(d time.Duration)
	// Close releases the session and every cached connection. Streams
	// already returned stay usable until they are closed.
	Close() error
}

// A Stream is an in-flight response.
//
// Read follows io.Reader: it returns io.EOF once the body has been
// delivered, and keeps returning io.EOF. An error is terminal, and Read
// keeps returning it. Close releases the native request, aborting it if
// it is still running; it can be called at any time, from any
// goroutine.
type Stream interface {
	io.ReadCloser
	// StatusCode returns the response status code.
	StatusCode() int
	// Header returns the response header.
	Header() request.ResponseHeader
	// BytesSent returns the number of request body bytes sent.
	BytesSent() int64
}

// Logger returns the request logger attached to ctx, or fallback if
// none was attached.
func Logger(ctx context.Context, fallback *zerolog.Logger) *zerolog.Logger {
	if l := zerolog.Ctx(ctx); l.GetLevel() != zerolog.Disabled {
		return l
	}
	return fallback
}

// Timeout returns the timeout for p, preferring the plan's own.
func Timeout(p *request.Plan, session time.Duration) time.Duration {
	if p.Timeout > 0 {
		return p.Timeout
	}
	return session
}
