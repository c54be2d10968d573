// Copyright 2021 The httpx Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

package callback

import (
	"bytes"
	"context"
	"errors"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gogama/nativehttp/backend"
	"github.com/gogama/nativehttp/ioerr"
	"github.com/gogama/nativehttp/native"
	"github.com/gogama/nativehttp/native/enginetest"
	"github.com/gogama/nativehttp/request"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSession(t *testing.T) {
	t.Run("get", testSessionGet)
	t.Run("request headers", testSessionRequestHeaders)
	t.Run("body writes", testSessionBodyWrites)
	t.Run("body length mismatch", testSessionBodyLengthMismatch)
	t.Run("empty body reads", testSessionEmptyBodyReads)
	t.Run("large head", testSessionLargeHead)
	t.Run("bad status line", testSessionBadStatusLine)
	t.Run("native errors", testSessionNativeErrors)
	t.Run("connect error", testSessionConnectError)
	t.Run("read cycles", testSessionReadCycles)
	t.Run("connection cache", testSessionConnectionCache)
	t.Run("connection cache default port", testSessionConnectionCacheDefaultPort)
	t.Run("context timeout", testSessionContextTimeout)
	t.Run("close mid-flight", testSessionCloseMidFlight)
	t.Run("closed session", testSessionClosed)
}

func newTestSession(t *testing.T, e *enginetest.Engine, cfg backend.Config) *Session {
	s, err := New("test", e).NewSession(cfg)
	require.NoError(t, err)
	return s.(*Session)
}

func reply(head, body string) enginetest.Handler {
	return func(*enginetest.Request) enginetest.Reply {
		return enginetest.Reply{Head: head, Body: []byte(body)}
	}
}

func mustPlan(t *testing.T, method, url string, body interface{}) *request.Plan {
	p, err := request.NewPlan(method, url, body)
	require.NoError(t, err)
	return p
}

func assertClean(t *testing.T, e *enginetest.Engine) {
	e.Wait()
	assert.Equal(t, 0, e.OpenHandles(), "open native handles")
	assert.Equal(t, 0, contexts.Len(), "registered contexts")
}

func testSessionGet(t *testing.T) {
	e := &enginetest.Engine{}
	e.Handler = func(*enginetest.Request) enginetest.Reply {
		return enginetest.Reply{
			Head:      "HTTP/1.1 200 OK\r\nContent-Type: text/plain\r\nSet-Cookie: a=1\r\nSet-Cookie: b=2\r\n\r\n",
			Body:      []byte("hello, world"),
			ReadChunk: 5,
		}
	}
	s := newTestSession(t, e, backend.Config{BufferSize: 4})

	stream, err := s.Send(context.Background(), mustPlan(t, "GET", "http://example.com/a?b=c", nil))
	require.NoError(t, err)
	assert.Equal(t, 200, stream.StatusCode())
	assert.Equal(t, "text/plain", stream.Header().Get("content-type"))
	assert.Equal(t, "a=1; b=2", stream.Header().Get("Set-Cookie"))
	assert.Equal(t, int64(0), stream.BytesSent())

	b, err := io.ReadAll(stream)
	require.NoError(t, err)
	assert.Equal(t, "hello, world", string(b))
	for i := 0; i < 3; i++ {
		n, err := stream.Read(make([]byte, 8))
		assert.Equal(t, 0, n)
		assert.Equal(t, io.EOF, err)
	}

	reqs := e.Requests()
	require.Len(t, reqs, 1)
	assert.Equal(t, "GET", reqs[0].Method)
	assert.Equal(t, "example.com", reqs[0].Host)
	assert.Equal(t, uint16(80), reqs[0].Port)
	assert.Equal(t, "/a?b=c", reqs[0].Path)
	assert.False(t, reqs[0].Secure)
	assert.Equal(t, uint64(0), reqs[0].Length)

	require.NoError(t, stream.Close())
	require.NoError(t, stream.Close())
	require.NoError(t, s.Close())
	assertClean(t, e)
}

func testSessionRequestHeaders(t *testing.T) {
	e := &enginetest.Engine{Handler: reply("HTTP/1.1 204 No Content\r\n\r\n", "")}
	s := newTestSession(t, e, backend.Config{})
	defer s.Close()

	p := mustPlan(t, "GET", "https://example.com:8443/", nil)
	p.Header.Set("X-Foo", "bar")
	p.Header.Add("Accept", "a")
	p.Header.Add("Accept", "b")
	stream, err := s.Send(context.Background(), p)
	require.NoError(t, err)
	defer stream.Close()

	reqs := e.Requests()
	require.Len(t, reqs, 1)
	assert.True(t, reqs[0].Secure)
	assert.Equal(t, uint16(8443), reqs[0].Port)
	assert.Equal(t, []string{"Accept: a", "Accept: b", "X-Foo: bar"}, reqs[0].Headers)

	p.Header.Set("Bad\nName", "x")
	_, err = s.Send(context.Background(), p)
	assert.True(t, ioerr.IsInvalidInput(err))
	assert.ErrorIs(t, err, ioerr.ErrInvalidHeader)
}

func testSessionBodyWrites(t *testing.T) {
	testCases := []struct {
		name    string
		size    int
		bufSize int
		writes  []int
	}{
		{"empty", 0, 16, nil},
		{"one short write", 10, 16, []int{10}},
		{"exact buffer", 16, 16, []int{16}},
		{"refills", 10000, 4096, []int{4096, 4096, 1808}},
	}
	for _, testCase := range testCases {
		t.Run(testCase.name, func(t *testing.T) {
			e := &enginetest.Engine{Handler: reply("HTTP/1.1 201 Created\r\n\r\n", "")}
			s := newTestSession(t, e, backend.Config{BufferSize: testCase.bufSize})
			body := bytes.Repeat([]byte("0123456789abcdef"), testCase.size/16+1)[:testCase.size]

			stream, err := s.Send(context.Background(), mustPlan(t, "POST", "http://example.com/", body))
			require.NoError(t, err)
			assert.Equal(t, 201, stream.StatusCode())
			assert.Equal(t, int64(testCase.size), stream.BytesSent())

			reqs := e.Requests()
			require.Len(t, reqs, 1)
			assert.Equal(t, uint64(testCase.size), reqs[0].Length)
			var sizes []int
			for _, w := range reqs[0].Writes() {
				sizes = append(sizes, len(w))
			}
			assert.Equal(t, testCase.writes, sizes)
			assert.Equal(t, body, append([]byte{}, reqs[0].Body()...))

			require.NoError(t, stream.Close())
			require.NoError(t, s.Close())
			assertClean(t, e)
		})
	}
}

func testSessionBodyLengthMismatch(t *testing.T) {
	testCases := []struct {
		name     string
		body     string
		declared int64
	}{
		{"short", "hello", 10},
		{"long", "hello, world", 5},
	}
	for _, testCase := range testCases {
		t.Run(testCase.name, func(t *testing.T) {
			e := &enginetest.Engine{Handler: reply("HTTP/1.1 200 OK\r\n\r\n", "")}
			s := newTestSession(t, e, backend.Config{BufferSize: 4})
			p := mustPlan(t, "PUT", "http://example.com/", nil)
			p.BodySource = strings.NewReader(testCase.body)
			p.ContentLength = testCase.declared

			_, err := s.Send(context.Background(), p)
			require.Error(t, err)
			assert.True(t, ioerr.IsInvalidInput(err))
			assert.ErrorIs(t, err, ioerr.ErrBodyLength)

			require.NoError(t, s.Close())
			assertClean(t, e)
		})
	}
}

// emptyReader returns no bytes and no error on every call up to and
// including the stall-th, then yields body one byte at a time with an
// empty read between bytes.
type emptyReader struct {
	body  []byte
	stall int
	calls int
}

func (r *emptyReader) Read(p []byte) (int, error) {
	r.calls++
	if r.calls <= r.stall || r.calls%2 == 0 {
		return 0, nil
	}
	if len(r.body) == 0 {
		return 0, io.EOF
	}
	p[0] = r.body[0]
	r.body = r.body[1:]
	return 1, nil
}

func testSessionEmptyBodyReads(t *testing.T) {
	t.Run("interleaved", func(t *testing.T) {
		e := &enginetest.Engine{Handler: reply("HTTP/1.1 200 OK\r\n\r\n", "")}
		s := newTestSession(t, e, backend.Config{BufferSize: 16})
		body := strings.Repeat("b", 2*backend.MaxEmptyReads)
		p := mustPlan(t, "PUT", "http://example.com/", nil)
		p.BodySource = &emptyReader{body: []byte(body), stall: backend.MaxEmptyReads - 2}
		p.ContentLength = int64(len(body))

		stream, err := s.Send(context.Background(), p)
		require.NoError(t, err)
		assert.Equal(t, body, string(e.Requests()[0].Body()))
		require.NoError(t, stream.Close())
		require.NoError(t, s.Close())
		assertClean(t, e)
	})
	t.Run("stalled", func(t *testing.T) {
		e := &enginetest.Engine{Handler: reply("HTTP/1.1 200 OK\r\n\r\n", "")}
		s := newTestSession(t, e, backend.Config{BufferSize: 16})
		src := &emptyReader{stall: 1 << 30}
		p := mustPlan(t, "PUT", "http://example.com/", nil)
		p.BodySource = src
		p.ContentLength = 10

		_, err := s.Send(context.Background(), p)
		require.Error(t, err)
		assert.True(t, ioerr.IsInvalidInput(err))
		assert.ErrorIs(t, err, io.ErrNoProgress)
		assert.Equal(t, backend.MaxEmptyReads, src.calls)
		require.NoError(t, s.Close())
		assertClean(t, e)
	})
}

func testSessionLargeHead(t *testing.T) {
	big := strings.Repeat("x", 3*headerQueryHint)
	e := &enginetest.Engine{Handler: reply("HTTP/1.1 200 OK\r\nX-Big: "+big+"\r\n\r\n", "ok")}
	s := newTestSession(t, e, backend.Config{})
	defer s.Close()

	stream, err := s.Send(context.Background(), mustPlan(t, "GET", "http://example.com/", nil))
	require.NoError(t, err)
	defer stream.Close()
	assert.Equal(t, big, stream.Header().Get("X-Big"))
	b, err := io.ReadAll(stream)
	require.NoError(t, err)
	assert.Equal(t, "ok", string(b))
}

func testSessionBadStatusLine(t *testing.T) {
	e := &enginetest.Engine{Handler: reply("garbage\r\n\r\n", "")}
	s := newTestSession(t, e, backend.Config{})

	_, err := s.Send(context.Background(), mustPlan(t, "GET", "http://example.com/", nil))
	assert.True(t, ioerr.IsInvalidData(err))

	require.NoError(t, s.Close())
	assertClean(t, e)
}

func testSessionNativeErrors(t *testing.T) {
	testCases := []struct {
		name   string
		failOn native.Status
		code   native.Code
		kind   ioerr.Kind
		onRead bool
	}{
		{"send cannot connect", native.StatusSendRequestComplete, native.ErrCannotConnect, ioerr.NotConnected, false},
		{"headers timeout", native.StatusHeadersAvailable, native.ErrTimeout, ioerr.TimedOut, false},
		{"data connection error", native.StatusDataAvailable, native.ErrConnectionError, ioerr.ConnectionAborted, true},
		{"read invalid response", native.StatusReadComplete, native.ErrInvalidServerResponse, ioerr.InvalidData, true},
	}
	for _, testCase := range testCases {
		t.Run(testCase.name, func(t *testing.T) {
			e := &enginetest.Engine{}
			e.Handler = func(*enginetest.Request) enginetest.Reply {
				return enginetest.Reply{
					Head:     "HTTP/1.1 200 OK\r\n\r\n",
					Body:     []byte("body"),
					FailOn:   testCase.failOn,
					FailCode: testCase.code,
				}
			}
			s := newTestSession(t, e, backend.Config{})

			stream, err := s.Send(context.Background(), mustPlan(t, "GET", "http://example.com/", nil))
			if testCase.onRead {
				require.NoError(t, err)
				_, err = io.ReadAll(stream)
				_, again := stream.Read(make([]byte, 1))
				assert.Equal(t, err, again, "error must repeat")
				require.NoError(t, stream.Close())
			}
			require.Error(t, err)
			var ne *ioerr.Error
			require.True(t, errors.As(err, &ne))
			assert.Equal(t, testCase.kind, ne.Kind)
			assert.Equal(t, int64(testCase.code), ne.Code)
			assert.Equal(t, testCase.kind == ioerr.TimedOut, ne.Timeout())

			require.NoError(t, s.Close())
			assertClean(t, e)
		})
	}
}

func testSessionConnectError(t *testing.T) {
	e := &enginetest.Engine{ConnectErr: native.ErrCannotConnect}
	s := newTestSession(t, e, backend.Config{})

	_, err := s.Send(context.Background(), mustPlan(t, "GET", "http://example.com/", nil))
	assert.True(t, ioerr.IsNotConnected(err))
	assert.Equal(t, 0, s.cache.len())

	require.NoError(t, s.Close())
	assertClean(t, e)
}

func testSessionConnectionCache(t *testing.T) {
	e := &enginetest.Engine{
		Handler:      reply("HTTP/1.1 200 OK\r\n\r\n", "x"),
		ConnectDelay: 10 * time.Millisecond,
	}
	s := newTestSession(t, e, backend.Config{})

	const n = 50
	p := mustPlan(t, "GET", "http://example.com/", nil)
	var wg sync.WaitGroup
	errs := make(chan error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			stream, err := s.Send(context.Background(), p)
			if err != nil {
				errs <- err
				return
			}
			_, err = io.ReadAll(stream)
			_ = stream.Close()
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		assert.NoError(t, err)
	}
	assert.Equal(t, 1, e.ConnectCalls())
	assert.Equal(t, 1, s.cache.len())

	stream, err := s.Send(context.Background(), mustPlan(t, "GET", "http://other.example.com/", nil))
	require.NoError(t, err)
	assert.Equal(t, 2, e.ConnectCalls())
	assert.Equal(t, 2, s.cache.len())

	// A live stream keeps its connection past session close.
	require.NoError(t, s.Close())
	assert.Equal(t, 2, e.OpenHandles(), "stream's connection and request stay open")
	assertReadAll(t, "x", stream)
	require.NoError(t, stream.Close())
	assertClean(t, e)
}

func testSessionConnectionCacheDefaultPort(t *testing.T) {
	e := &enginetest.Engine{Handler: reply("HTTP/1.1 200 OK\r\n\r\n", "x")}
	s := newTestSession(t, e, backend.Config{})

	for _, u := range []string{"http://example.com/", "https://example.com:80/", "http://example.com:80/"} {
		stream, err := s.Send(context.Background(), mustPlan(t, "GET", u, nil))
		require.NoError(t, err)
		assertReadAll(t, "x", stream)
		require.NoError(t, stream.Close())
	}

	assert.Equal(t, 1, e.ConnectCalls())
	reqs := e.Requests()
	require.Len(t, reqs, 3)
	for _, r := range reqs {
		assert.Equal(t, uint16(80), r.Port)
	}
	assert.True(t, reqs[1].Secure)

	stream, err := s.Send(context.Background(), mustPlan(t, "GET", "https://example.com/", nil))
	require.NoError(t, err)
	require.NoError(t, stream.Close())
	assert.Equal(t, 2, e.ConnectCalls())
	assert.Equal(t, uint16(443), e.Requests()[3].Port)
	assert.Equal(t, 2, s.cache.len())

	require.NoError(t, s.Close())
	assertClean(t, e)
}

func testSessionReadCycles(t *testing.T) {
	testCases := []struct {
		name    string
		size    int
		bufSize int
		reads   int
	}{
		{"empty", 0, 1024, 0},
		{"one short", 10, 1024, 1},
		{"exact", 1024, 1024, 1},
		{"one over", 1025, 1024, 2},
		{"many", 10000, 1024, 10},
		{"tiny buffer", 10, 4, 3},
	}
	for _, testCase := range testCases {
		t.Run(testCase.name, func(t *testing.T) {
			body := bytes.Repeat([]byte("z"), testCase.size)
			e := &enginetest.Engine{Handler: reply("HTTP/1.1 200 OK\r\n\r\n", string(body))}
			s := newTestSession(t, e, backend.Config{BufferSize: testCase.bufSize})

			stream, err := s.Send(context.Background(), mustPlan(t, "GET", "http://example.com/", nil))
			require.NoError(t, err)
			b, err := io.ReadAll(stream)
			require.NoError(t, err)
			assert.Len(t, b, testCase.size)
			assert.Equal(t, testCase.reads, e.ReadCalls())

			require.NoError(t, stream.Close())
			require.NoError(t, s.Close())
			assertClean(t, e)
		})
	}
}

func assertReadAll(t *testing.T, want string, r io.Reader) {
	b, err := io.ReadAll(r)
	require.NoError(t, err)
	assert.Equal(t, want, string(b))
}

func testSessionContextTimeout(t *testing.T) {
	e := &enginetest.Engine{}
	e.Handler = func(*enginetest.Request) enginetest.Reply {
		return enginetest.Reply{Hold: true}
	}
	s := newTestSession(t, e, backend.Config{})

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err := s.Send(ctx, mustPlan(t, "GET", "http://example.com/", nil))
	assert.True(t, ioerr.IsTimeout(err))
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	require.NoError(t, s.Close())
	assertClean(t, e)
}

func testSessionCloseMidFlight(t *testing.T) {
	t.Run("stale notification", func(t *testing.T) {
		e := &enginetest.Engine{Handler: reply("HTTP/1.1 200 OK\r\n\r\n", "abcdef")}
		s := newTestSession(t, e, backend.Config{BufferSize: 2})
		stream, err := s.Send(context.Background(), mustPlan(t, "GET", "http://example.com/", nil))
		require.NoError(t, err)
		resp := stream.(*response)
		p := make([]byte, 2)
		n, err := resp.Read(p)
		require.NoError(t, err)
		assert.Equal(t, "ab", string(p[:n]))

		stale := e.Stale(resp.req.Handle())
		require.NoError(t, resp.Close())
		stale()
		assert.Equal(t, 0, resp.nc.mailbox.Len(), "stale notification must be dropped")

		_, err = resp.Read(p)
		assert.ErrorIs(t, err, ioerr.ErrClosed)
		require.NoError(t, s.Close())
		assertClean(t, e)
	})
	t.Run("late notifications", func(t *testing.T) {
		e := &enginetest.Engine{
			Handler:           reply("HTTP/1.1 200 OK\r\n\r\n", strings.Repeat("z", 1000)),
			LateNotifications: true,
		}
		s := newTestSession(t, e, backend.Config{BufferSize: 16})
		stream, err := s.Send(context.Background(), mustPlan(t, "GET", "http://example.com/", nil))
		require.NoError(t, err)

		done := make(chan error, 1)
		go func() {
			_, err := io.Copy(io.Discard, stream)
			done <- err
		}()
		time.Sleep(time.Millisecond)
		require.NoError(t, stream.Close())
		err = <-done
		if err != nil {
			assert.ErrorIs(t, err, ioerr.ErrClosed)
		}
		require.NoError(t, s.Close())
		assertClean(t, e)
	})
}

func testSessionClosed(t *testing.T) {
	e := &enginetest.Engine{Handler: reply("HTTP/1.1 200 OK\r\n\r\n", "")}
	s := newTestSession(t, e, backend.Config{})
	require.NoError(t, s.Close())
	require.NoError(t, s.Close())

	_, err := s.Send(context.Background(), mustPlan(t, "GET", "http://example.com/", nil))
	assert.True(t, ioerr.IsNotConnected(err))
	assert.ErrorIs(t, err, ioerr.ErrClosed)
	assertClean(t, e)
}

func TestBridge(t *testing.T) {
	e := &enginetest.Engine{}
	nc, id := newContext(e)
	defer contexts.Unregister(id)

	cancelled := native.StatusInfo{Err: native.ErrOperationCancelled}
	bridge(1, id, native.StatusRequestError, cancelled)
	ev, ok := nc.mailbox.Take()
	require.True(t, ok, "cancellation outside teardown is surfaced")
	assert.Equal(t, evError, ev.kind)
	assert.Equal(t, native.ErrOperationCancelled, ev.code)

	nc.closing.Store(true)
	bridge(1, id, native.StatusRequestError, cancelled)
	assert.Equal(t, 0, nc.mailbox.Len(), "cancellation during teardown is dropped")

	bridge(1, id, native.StatusWriteComplete, native.StatusInfo{Length: 7})
	ev, ok = nc.mailbox.Take()
	require.True(t, ok)
	assert.Equal(t, evWriteReady, ev.kind)
	assert.Equal(t, uint32(7), ev.n)

	bridge(1, id, native.StatusResolvingName, native.StatusInfo{})
	assert.Equal(t, 0, nc.mailbox.Len(), "informational notifications are dropped")

	bridge(1, id+1000, native.StatusReadComplete, native.StatusInfo{Length: 1})
	assert.Equal(t, 0, nc.mailbox.Len())
}
