// Copyright 2021 The httpx Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

package cfnet

import (
	"context"
	"io"
	"sync"
	"syscall"
)

// BoundPair returns a read stream and a write stream joined by a buffer
// of size bytes.
func BoundPair(size int) (ReadStream, WriteStream) {
	if size <= 0 {
		panic("cfnet: non-positive bound pair size")
	}
	p := &pair{
		buf:    make([]byte, size),
		notify: make(chan struct{}, 1),
	}
	p.r = &pairReader{p: p}
	p.w = &pairWriter{p: p}
	return p.r, p.w
}

// pair is the ring buffer shared by both ends of a bound pair. Its
// mutex guards buffer state only, and is never held while a stream's
// own mutex is acquired.
type pair struct {
	mu           sync.Mutex
	buf          []byte
	head, n      int
	writerClosed bool
	readerClosed bool
	notify       chan struct{}
	r            *pairReader
	w            *pairWriter
}

func (p *pair) poke() {
	select {
	case p.notify <- struct{}{}:
	default:
	}
}

type pairReader struct {
	base
	p *pair
}

type pairWriter struct {
	base
	p *pair
}

func (r *pairReader) Open() error {
	if !r.setStatus(StatusOpen) {
		return ErrClosed
	}
	r.signal(EventOpenCompleted)
	if r.HasBytesAvailable() {
		r.signal(EventHasBytesAvailable)
	}
	return nil
}

func (r *pairReader) HasBytesAvailable() bool {
	r.p.mu.Lock()
	defer r.p.mu.Unlock()
	return r.p.n > 0 || r.p.writerClosed
}

func (r *pairReader) Read(b []byte) (int, error) {
	p := r.p
	p.mu.Lock()
	if p.readerClosed {
		p.mu.Unlock()
		return 0, io.ErrClosedPipe
	}
	if p.n == 0 {
		closed := p.writerClosed
		p.mu.Unlock()
		if closed {
			r.setStatus(StatusAtEnd)
			return 0, io.EOF
		}
		return 0, ErrWouldBlock
	}
	k := 0
	for k < len(b) && p.n > 0 {
		end := p.head + p.n
		if end > len(p.buf) {
			end = len(p.buf)
		}
		c := copy(b[k:], p.buf[p.head:end])
		k += c
		p.head = (p.head + c) % len(p.buf)
		p.n -= c
	}
	remaining, ended := p.n, p.writerClosed
	p.mu.Unlock()

	p.w.signal(EventCanAcceptBytes)
	p.poke()
	if remaining > 0 {
		r.signal(EventHasBytesAvailable)
	} else if ended {
		r.signal(EventEndEncountered)
	}
	return k, nil
}

// readBlocking reads like an io.Reader, waiting for the writer instead
// of returning ErrWouldBlock.
func (r *pairReader) readBlocking(ctx context.Context, b []byte) (int, error) {
	for {
		n, err := r.Read(b)
		if err != ErrWouldBlock {
			return n, err
		}
		select {
		case <-r.p.notify:
		case <-ctx.Done():
			return 0, ctx.Err()
		}
	}
}

func (r *pairReader) Close() {
	r.p.mu.Lock()
	r.p.readerClosed = true
	r.p.mu.Unlock()
	r.p.poke()
	if r.closeBase() {
		r.p.w.fail(StreamError{Domain: DomainPOSIX, Code: int32(syscall.EPIPE)})
	}
}

func (w *pairWriter) Open() error {
	if !w.setStatus(StatusOpen) {
		return ErrClosed
	}
	w.signal(EventOpenCompleted)
	if w.CanAcceptBytes() {
		w.signal(EventCanAcceptBytes)
	}
	return nil
}

func (w *pairWriter) CanAcceptBytes() bool {
	w.p.mu.Lock()
	defer w.p.mu.Unlock()
	return w.p.n < len(w.p.buf) && !w.p.readerClosed
}

func (w *pairWriter) Write(b []byte) (int, error) {
	p := w.p
	p.mu.Lock()
	if p.writerClosed {
		p.mu.Unlock()
		return 0, io.ErrClosedPipe
	}
	if p.readerClosed {
		p.mu.Unlock()
		return 0, StreamError{Domain: DomainPOSIX, Code: int32(syscall.EPIPE)}
	}
	if p.n == len(p.buf) {
		p.mu.Unlock()
		return 0, ErrWouldBlock
	}
	k := 0
	for k < len(b) && p.n < len(p.buf) {
		tail := (p.head + p.n) % len(p.buf)
		end := len(p.buf)
		if tail < p.head {
			end = p.head
		}
		c := copy(p.buf[tail:end], b[k:])
		k += c
		p.n += c
	}
	space := p.n < len(p.buf)
	p.mu.Unlock()

	p.r.signal(EventHasBytesAvailable)
	p.poke()
	if space {
		w.signal(EventCanAcceptBytes)
	}
	return k, nil
}

func (w *pairWriter) Close() {
	w.p.mu.Lock()
	w.p.writerClosed = true
	empty := w.p.n == 0
	w.p.mu.Unlock()
	w.p.poke()
	w.closeBase()
	if empty {
		w.p.r.signal(EventEndEncountered)
	}
}
