// Copyright 2021 The httpx Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

package stream

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gogama/nativehttp/backend"
	"github.com/gogama/nativehttp/cfnet"
	"github.com/gogama/nativehttp/ioerr"
	"github.com/gogama/nativehttp/request"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestServer() *httptest.Server {
	mux := http.NewServeMux()
	mux.HandleFunc("/echo", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Method", r.Method)
		w.Header().Set("X-Content-Length", r.Header.Get("Content-Length"))
		w.Header().Set("X-User-Agent", r.UserAgent())
		w.Header().Set("X-Host", r.Host)
		w.Header().Add("Set-Cookie", "a=1")
		w.Header().Add("Set-Cookie", "b=2")
		b, err := io.ReadAll(r.Body)
		if err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		_, _ = w.Write(b)
	})
	mux.HandleFunc("/big", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write(bytes.Repeat([]byte("0123456789"), 10000))
	})
	mux.HandleFunc("/slow", func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-time.After(2 * time.Second):
		case <-r.Context().Done():
		}
	})
	return httptest.NewServer(mux)
}

func newTestSession(t *testing.T, cfg backend.Config) (*Session, *cfnet.RunLoop) {
	loop := cfnet.NewRunLoop()
	t.Cleanup(loop.Stop)
	s, err := New("test", loop).NewSession(cfg)
	require.NoError(t, err)
	return s.(*Session), loop
}

func mustPlan(t *testing.T, method, url string, body interface{}) *request.Plan {
	p, err := request.NewPlan(method, url, body)
	require.NoError(t, err)
	return p
}

func TestSession(t *testing.T) {
	server := newTestServer()
	defer server.Close()

	t.Run("get", func(t *testing.T) {
		s, loop := newTestSession(t, backend.Config{UserAgent: "stream-test"})
		defer s.Close()
		stream, err := s.Send(context.Background(), mustPlan(t, "GET", server.URL+"/echo", nil))
		require.NoError(t, err)
		defer stream.Close()
		assert.Equal(t, 200, stream.StatusCode())
		assert.Equal(t, "GET", stream.Header().Get("x-method"))
		assert.Equal(t, "stream-test", stream.Header().Get("X-User-Agent"))
		assert.Equal(t, "a=1; b=2", stream.Header().Get("Set-Cookie"))
		b, err := io.ReadAll(stream)
		require.NoError(t, err)
		assert.Empty(t, b)
		_, err = stream.Read(make([]byte, 1))
		assert.Equal(t, io.EOF, err)
		assert.NotZero(t, loop.Ran(), "callbacks ran on the session loop")
	})

	t.Run("post body larger than pair", func(t *testing.T) {
		s, _ := newTestSession(t, backend.Config{BufferSize: 512})
		body := bytes.Repeat([]byte("abcdefghij"), 5000)
		stream, err := s.Send(context.Background(), mustPlan(t, "POST", server.URL+"/echo", body))
		require.NoError(t, err)
		defer stream.Close()
		assert.Equal(t, "50000", stream.Header().Get("X-Content-Length"))
		assert.Equal(t, int64(len(body)), stream.BytesSent())
		got, err := io.ReadAll(stream)
		require.NoError(t, err)
		assert.Equal(t, body, got)
	})

	t.Run("streaming body source", func(t *testing.T) {
		s, _ := newTestSession(t, backend.Config{BufferSize: 64})
		p := mustPlan(t, "PUT", server.URL+"/echo", nil)
		p.BodySource = strings.NewReader(strings.Repeat("s", 1000))
		p.ContentLength = 1000
		p.Header.Set("Host", "virtual.example")
		stream, err := s.Send(context.Background(), p)
		require.NoError(t, err)
		defer stream.Close()
		assert.Equal(t, "virtual.example", stream.Header().Get("X-Host"))
		got, err := io.ReadAll(stream)
		require.NoError(t, err)
		assert.Len(t, got, 1000)
	})

	t.Run("body length mismatch", func(t *testing.T) {
		s, _ := newTestSession(t, backend.Config{BufferSize: 64})
		p := mustPlan(t, "PUT", server.URL+"/echo", nil)
		p.BodySource = strings.NewReader("short")
		p.ContentLength = 100
		_, err := s.Send(context.Background(), p)
		require.Error(t, err)
		assert.True(t, ioerr.IsInvalidInput(err))
		assert.ErrorIs(t, err, ioerr.ErrBodyLength)
	})

	t.Run("stalled body source", func(t *testing.T) {
		s, _ := newTestSession(t, backend.Config{BufferSize: 64})
		src := &stallReader{}
		p := mustPlan(t, "PUT", server.URL+"/echo", nil)
		p.BodySource = src
		p.ContentLength = 10
		_, err := s.Send(context.Background(), p)
		require.Error(t, err)
		assert.True(t, ioerr.IsInvalidInput(err))
		assert.ErrorIs(t, err, io.ErrNoProgress)
		assert.Equal(t, backend.MaxEmptyReads, src.calls)
	})

	t.Run("large response in chunks", func(t *testing.T) {
		s, _ := newTestSession(t, backend.Config{})
		stream, err := s.Send(context.Background(), mustPlan(t, "GET", server.URL+"/big", nil))
		require.NoError(t, err)
		defer stream.Close()
		var got []byte
		p := make([]byte, 1000)
		for {
			n, err := stream.Read(p)
			got = append(got, p[:n]...)
			if err == io.EOF {
				break
			}
			require.NoError(t, err)
		}
		assert.Equal(t, bytes.Repeat([]byte("0123456789"), 10000), got)
	})

	t.Run("plan timeout", func(t *testing.T) {
		s, _ := newTestSession(t, backend.Config{})
		p := mustPlan(t, "GET", server.URL+"/slow", nil)
		p.Timeout = 50 * time.Millisecond
		_, err := s.Send(context.Background(), p)
		require.Error(t, err)
		assert.True(t, ioerr.IsTimeout(err))
	})

	t.Run("context cancel", func(t *testing.T) {
		s, _ := newTestSession(t, backend.Config{})
		ctx, cancel := context.WithCancel(context.Background())
		time.AfterFunc(20*time.Millisecond, cancel)
		_, err := s.Send(ctx, mustPlan(t, "GET", server.URL+"/slow", nil))
		require.Error(t, err)
		assert.ErrorIs(t, err, context.Canceled)
	})

	t.Run("not connected", func(t *testing.T) {
		dead := httptest.NewServer(http.NotFoundHandler())
		url := dead.URL
		dead.Close()
		s, _ := newTestSession(t, backend.Config{})
		_, err := s.Send(context.Background(), mustPlan(t, "GET", url, nil))
		require.Error(t, err)
		assert.True(t, ioerr.IsNotConnected(err), "%v", err)
	})

	t.Run("close then read", func(t *testing.T) {
		s, _ := newTestSession(t, backend.Config{})
		stream, err := s.Send(context.Background(), mustPlan(t, "GET", server.URL+"/big", nil))
		require.NoError(t, err)
		_, err = stream.Read(make([]byte, 10))
		require.NoError(t, err)
		require.NoError(t, stream.Close())
		require.NoError(t, stream.Close())
		_, err = stream.Read(make([]byte, 10))
		assert.ErrorIs(t, err, ioerr.ErrClosed)
	})

	t.Run("closed session", func(t *testing.T) {
		s, _ := newTestSession(t, backend.Config{})
		require.NoError(t, s.Close())
		_, err := s.Send(context.Background(), mustPlan(t, "GET", server.URL+"/echo", nil))
		assert.True(t, ioerr.IsNotConnected(err))
	})

	t.Run("disable persistent", func(t *testing.T) {
		s, _ := newTestSession(t, backend.Config{DisablePersistent: true})
		stream, err := s.Send(context.Background(), mustPlan(t, "GET", server.URL+"/echo", nil))
		require.NoError(t, err)
		require.NoError(t, stream.Close())
	})

	assert.Equal(t, 0, contexts.Len())
}

func TestSession_Timeout(t *testing.T) {
	s, _ := newTestSession(t, backend.Config{Timeout: time.Second})
	assert.Equal(t, time.Second, s.Timeout())
	s.SetTimeout(2 * time.Second)
	assert.Equal(t, 2*time.Second, s.Timeout())
}

// stallReader never yields a byte or an error.
type stallReader struct {
	calls int
}

func (r *stallReader) Read([]byte) (int, error) {
	r.calls++
	return 0, nil
}
