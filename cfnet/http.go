// Copyright 2021 The httpx Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

package cfnet

import (
	"context"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"sync"
	"time"
)

// httpChunk is the amount of response body fetched from the network
// per HasBytesAvailable event.
const httpChunk = 16 << 10

var (
	transportsMu sync.Mutex
	transports   = map[string]*http.Transport{}
)

// transportFor returns the pooled transport for a proxy setting. The
// empty key means the proxy from the environment.
func transportFor(proxy *url.URL, set bool) *http.Transport {
	key := ""
	if set {
		key = "direct"
		if proxy != nil {
			key = proxy.String()
		}
	}
	transportsMu.Lock()
	defer transportsMu.Unlock()
	if t, ok := transports[key]; ok {
		return t
	}
	t := http.DefaultTransport.(*http.Transport).Clone()
	if set {
		t.Proxy = http.ProxyURL(proxy)
	} else {
		t.Proxy = http.ProxyFromEnvironment
	}
	t.IdleConnTimeout = 90 * time.Second
	transports[key] = t
	return t
}

// An HTTPStream is a ReadStream that performs one HTTP exchange. It is
// created by NewHTTPStream.
type HTTPStream struct {
	base

	req  *Message
	body ReadStream

	proxy      *url.URL
	proxySet   bool
	persistent bool

	// Guarded by base.mu.
	resp   *Message
	chunk  []byte
	off    int
	eof    bool
	cancel context.CancelFunc

	more chan struct{}
}

// NewHTTPStream returns a stream that sends req when opened. The
// request body is read from body, which may be nil for no body, and
// which must be a read stream returned by BoundPair. The request's
// Content-Length header, if any, declares the body length.
func NewHTTPStream(req *Message, body ReadStream) *HTTPStream {
	return &HTTPStream{
		req:        req,
		body:       body,
		persistent: true,
		more:       make(chan struct{}, 1),
	}
}

// SetProperty sets PropertyHTTPProxy or PropertyPersistentConnection.
// It must be called before Open.
func (s *HTTPStream) SetProperty(p Property, v interface{}) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	switch p {
	case PropertyHTTPProxy:
		u, ok := v.(*url.URL)
		if !ok && v != nil {
			return false
		}
		s.proxy, s.proxySet = u, true
		return true
	case PropertyPersistentConnection:
		b, ok := v.(bool)
		if !ok {
			return false
		}
		s.persistent = b
		return true
	}
	return false
}

// ResponseHeader returns the response head once the server has sent
// it.
func (s *HTTPStream) ResponseHeader() (*Message, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.resp, s.resp != nil
}

// Open starts the exchange.
func (s *HTTPStream) Open() error {
	s.mu.Lock()
	if s.status != StatusNotOpen {
		s.mu.Unlock()
		return ErrClosed
	}
	s.status = StatusOpening
	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	s.mu.Unlock()

	go s.exchange(ctx)
	return nil
}

func (s *HTTPStream) exchange(ctx context.Context) {
	r, err := s.newRequest(ctx)
	if err != nil {
		s.fail(StreamError{Domain: DomainHTTP, Code: HTTPBadURL})
		return
	}
	s.mu.Lock()
	t := transportFor(s.proxy, s.proxySet)
	s.mu.Unlock()

	resp, err := t.RoundTrip(r)
	if err != nil {
		s.fail(errorOf(err))
		return
	}
	defer resp.Body.Close()

	s.mu.Lock()
	s.resp = responseMessage(resp)
	s.mu.Unlock()
	if !s.setStatus(StatusOpen) {
		return
	}
	s.signal(EventOpenCompleted)

	buf := make([]byte, httpChunk)
	for {
		n, err := io.ReadAtLeast(resp.Body, buf, 1)
		if n > 0 {
			s.mu.Lock()
			s.chunk = append(s.chunk[:0], buf[:n]...)
			s.off = 0
			s.mu.Unlock()
			s.signal(EventHasBytesAvailable)
			select {
			case <-s.more:
			case <-ctx.Done():
				return
			}
		}
		if err == io.EOF {
			s.mu.Lock()
			s.eof = true
			s.mu.Unlock()
			s.signal(EventEndEncountered)
			return
		} else if err != nil {
			s.fail(errorOf(err))
			return
		}
	}
}

func (s *HTTPStream) newRequest(ctx context.Context) (*http.Request, error) {
	var body io.Reader
	if s.body != nil {
		pr, ok := s.body.(*pairReader)
		if !ok {
			return nil, ErrClosed
		}
		body = &ctxReader{ctx: ctx, r: pr}
	}
	r, err := http.NewRequestWithContext(ctx, s.req.Method(), s.req.URL().String(), body)
	if err != nil {
		return nil, err
	}
	r.Header = s.req.header()
	if cl := r.Header.Get("Content-Length"); cl != "" {
		n, err := strconv.ParseInt(cl, 10, 64)
		if err != nil || n < 0 {
			return nil, ErrClosed
		}
		r.ContentLength = n
		r.Header.Del("Content-Length")
		if n == 0 {
			r.Body = http.NoBody
		}
	} else if body != nil {
		r.ContentLength = -1
	}
	if host := r.Header.Get("Host"); host != "" {
		r.Host = host
		r.Header.Del("Host")
	}
	s.mu.Lock()
	r.Close = !s.persistent
	s.mu.Unlock()
	return r, nil
}

// HasBytesAvailable reports whether Read would make progress.
func (s *HTTPStream) HasBytesAvailable() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.off < len(s.chunk) || s.eof || s.status == StatusError
}

// Read copies fetched response body into p.
func (s *HTTPStream) Read(p []byte) (int, error) {
	s.mu.Lock()
	switch {
	case s.status == StatusError:
		err := *s.err
		s.mu.Unlock()
		return 0, err
	case s.status == StatusClosed:
		s.mu.Unlock()
		return 0, io.ErrClosedPipe
	case s.off < len(s.chunk):
		n := copy(p, s.chunk[s.off:])
		s.off += n
		drained := s.off == len(s.chunk)
		s.mu.Unlock()
		if drained {
			select {
			case s.more <- struct{}{}:
			default:
			}
		} else {
			s.signal(EventHasBytesAvailable)
		}
		return n, nil
	case s.eof:
		s.status = StatusAtEnd
		s.mu.Unlock()
		return 0, io.EOF
	}
	s.mu.Unlock()
	return 0, ErrWouldBlock
}

// Close aborts the exchange if it is still running.
func (s *HTTPStream) Close() {
	s.mu.Lock()
	cancel := s.cancel
	s.mu.Unlock()
	s.closeBase()
	if cancel != nil {
		cancel()
	}
}

type ctxReader struct {
	ctx context.Context
	r   *pairReader
}

func (c *ctxReader) Read(p []byte) (int, error) {
	return c.r.readBlocking(c.ctx, p)
}
