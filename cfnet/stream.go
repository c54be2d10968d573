// Copyright 2021 The httpx Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

package cfnet

import (
	"errors"
	"sync"
)

// An EventType is a bit set of stream events a client can subscribe to.
type EventType uint32

const (
	EventNone              EventType = 0
	EventOpenCompleted     EventType = 1
	EventHasBytesAvailable EventType = 2
	EventCanAcceptBytes    EventType = 4
	EventErrorOccurred     EventType = 8
	EventEndEncountered    EventType = 16
)

// A Status is the life-cycle state of a stream.
type Status int

const (
	StatusNotOpen Status = iota
	StatusOpening
	StatusOpen
	StatusAtEnd
	StatusClosed
	StatusError
)

// ErrWouldBlock is returned by Read when no bytes are available and by
// Write when no space is available. The client is told through a
// callback when the operation can make progress.
var ErrWouldBlock = errors.New("cfnet: operation would block")

// ErrClosed is returned by Open on a stream that was closed or failed.
var ErrClosed = errors.New("cfnet: stream closed")

// A ClientCallback receives stream events. It runs on the run loop the
// stream is scheduled on. The info value is whatever was passed to
// SetClient.
type ClientCallback func(ev EventType, info uintptr)

// Stream holds the methods common to read and write streams.
type Stream interface {
	// SetClient subscribes cb to the events in mask. A nil cb, or an
	// empty mask, unsubscribes. Events already queued on the run loop
	// are still delivered with the info they were raised with.
	SetClient(mask EventType, cb ClientCallback, info uintptr)
	// Schedule selects the run loop client callbacks are delivered on.
	// A stream that was never scheduled delivers no callbacks.
	Schedule(rl *RunLoop)
	// Unschedule stops delivery of further callbacks.
	Unschedule()
	// Open opens the stream. Completion is reported through
	// EventOpenCompleted or EventErrorOccurred.
	Open() error
	// Close closes the stream and unsubscribes its client.
	Close()
	// Status returns the stream status.
	Status() Status
	// Error returns the error that put the stream into StatusError.
	Error() *StreamError
	// SetProperty sets a stream property. Unknown properties are
	// ignored and reported as not set.
	SetProperty(p Property, v interface{}) bool
}

// A ReadStream yields bytes.
type ReadStream interface {
	Stream
	// Read copies available bytes into p. It returns ErrWouldBlock if no
	// bytes are available yet, and io.EOF at the end of the stream.
	Read(p []byte) (int, error)
	// HasBytesAvailable reports whether Read would not return
	// ErrWouldBlock.
	HasBytesAvailable() bool
}

// A WriteStream accepts bytes.
type WriteStream interface {
	Stream
	// Write copies as much of p as fits and returns the count. It
	// returns ErrWouldBlock if nothing fits.
	Write(p []byte) (int, error)
	// CanAcceptBytes reports whether Write would not return
	// ErrWouldBlock.
	CanAcceptBytes() bool
}

// A Property names an optional stream setting.
type Property string

const (
	// PropertyHTTPProxy selects the proxy of an HTTP stream. The value
	// is a *url.URL, or nil for a direct connection. Without the
	// property, the proxy is taken from the environment.
	PropertyHTTPProxy Property = "HTTPProxy"
	// PropertyPersistentConnection is a bool. When true, the HTTP
	// stream may reuse a pooled connection and returns its connection
	// to the pool when done.
	PropertyPersistentConnection Property = "HTTPAttemptPersistentConnection"
)

// base is the client bookkeeping shared by every stream type.
type base struct {
	mu     sync.Mutex
	status Status
	err    *StreamError
	mask   EventType
	cb     ClientCallback
	info   uintptr
	loop   *RunLoop
}

func (b *base) SetClient(mask EventType, cb ClientCallback, info uintptr) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if cb == nil || mask == EventNone {
		b.mask, b.cb, b.info = EventNone, nil, 0
		return
	}
	b.mask, b.cb, b.info = mask, cb, info
}

func (b *base) Schedule(rl *RunLoop) {
	b.mu.Lock()
	b.loop = rl
	b.mu.Unlock()
}

func (b *base) Unschedule() {
	b.mu.Lock()
	b.loop = nil
	b.mu.Unlock()
}

func (b *base) Status() Status {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.status
}

func (b *base) Error() *StreamError {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.err
}

// signal queues delivery of ev to the client if it is subscribed.
func (b *base) signal(ev EventType) {
	b.mu.Lock()
	cb, info, loop := b.cb, b.info, b.loop
	subscribed := b.mask&ev != 0
	b.mu.Unlock()
	if cb == nil || loop == nil || !subscribed {
		return
	}
	loop.Perform(func() { cb(ev, info) })
}

// fail moves the stream into StatusError and notifies the client.
func (b *base) fail(e StreamError) {
	b.mu.Lock()
	if b.status == StatusClosed || b.status == StatusError {
		b.mu.Unlock()
		return
	}
	b.status = StatusError
	b.err = &e
	b.mu.Unlock()
	b.signal(EventErrorOccurred)
}

// closeBase marks the stream closed and drops its client. It reports
// whether the stream was open before.
func (b *base) closeBase() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	was := b.status != StatusClosed
	b.status = StatusClosed
	b.mask, b.cb, b.info = EventNone, nil, 0
	return was
}

// setStatus sets the status unless the stream has already failed or
// been closed.
func (b *base) setStatus(s Status) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.status == StatusClosed || b.status == StatusError {
		return false
	}
	b.status = s
	return true
}

func (b *base) SetProperty(Property, interface{}) bool {
	return false
}
