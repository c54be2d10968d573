// Copyright 2021 The httpx Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

package request

import (
	"context"
	"errors"
	"io"
	"io/ioutil"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/gogama/nativehttp/ioerr"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func TestNewPlan(t *testing.T) {
	for _, testCase := range newPlanTestCases {
		t.Run(testCase.name, func(t *testing.T) {
			p, err := NewPlan(testCase.method, testCase.url, resolveBody(t, testCase.body))
			testCase.asserts(t, p, err)
			if p != nil {
				assert.Equal(t, context.Background(), p.ctx)
				assert.Equal(t, context.Background(), p.Context())
			}
		})
	}
}

func TestNewPlanWithContext(t *testing.T) {
	for _, testCase := range newPlanTestCases {
		type foo struct{}
		ctx := context.WithValue(context.Background(), foo{}, "bar")
		require.NotEqual(t, ctx, context.Background())
		t.Run(testCase.name+" with special context", func(t *testing.T) {
			p, err := NewPlanWithContext(ctx, testCase.method, testCase.url, resolveBody(t, testCase.body))
			testCase.asserts(t, p, err)
			if p != nil {
				assert.Same(t, ctx, p.ctx)
				assert.Same(t, ctx, p.Context())
			}
		})
		t.Run(testCase.name+" with nil context", func(t *testing.T) {
			p, err := NewPlanWithContext(nil, testCase.method, testCase.url, resolveBody(t, testCase.body))
			assert.Nil(t, p)
			assert.EqualError(t, err, nilCtxMsg)
		})
	}
}

var newPlanTestCases = []struct {
	name    string
	method  string
	url     string
	body    interface{}
	asserts func(*testing.T, *Plan, error)
}{
	{
		name:   "empty method means GET",
		method: "",
		url:    "https://foo.com",
		asserts: func(t *testing.T, p *Plan, err error) {
			assert.NoError(t, err)
			require.NotNil(t, p)
			assert.Equal(t, Get, p.Method)
			assert.Equal(t, "https://foo.com", p.URL.String())
			assert.Nil(t, p.Body)
			assert.NotNil(t, p.Header)
		},
	},
	{
		name:   "POST method",
		method: "POST",
		url:    "https://bar.com",
		asserts: func(t *testing.T, p *Plan, err error) {
			assert.NoError(t, err)
			require.NotNil(t, p)
			assert.Equal(t, Post, p.Method)
		},
	},
	{
		name:   "remove empty port",
		method: "GET",
		url:    "http://ham:",
		asserts: func(t *testing.T, p *Plan, err error) {
			assert.NoError(t, err)
			require.NotNil(t, p)
			assert.Equal(t, "ham", p.URL.Host)
		},
	},
	{
		name: "body type string",
		body: "str",
		url:  "http://str",
		asserts: func(t *testing.T, p *Plan, err error) {
			assert.NoError(t, err)
			require.NotNil(t, p)
			assert.Equal(t, []byte("str"), p.Body)
		},
	},
	{
		name: "body type []byte",
		body: []byte{0x1, 0x2, 0x3},
		url:  "http://byte-slice",
		asserts: func(t *testing.T, p *Plan, err error) {
			assert.NoError(t, err)
			require.NotNil(t, p)
			assert.Equal(t, []byte{0x1, 0x2, 0x3}, p.Body)
		},
	},
	{
		name: "body type io.Reader",
		body: func(_ *testing.T) interface{} {
			return strings.NewReader("io.Reader")
		},
		url: "http://reader",
		asserts: func(t *testing.T, p *Plan, err error) {
			assert.NoError(t, err)
			require.NotNil(t, p)
			assert.Equal(t, []byte("io.Reader"), p.Body)
		},
	},
	{
		name: "body type io.ReadCloser",
		body: func(_ *testing.T) interface{} {
			return ioutil.NopCloser(strings.NewReader("io.ReadCloser"))
		},
		url: "http://read-closer",
		asserts: func(t *testing.T, p *Plan, err error) {
			assert.NoError(t, err)
			require.NotNil(t, p)
			assert.Equal(t, []byte("io.ReadCloser"), p.Body)
		},
	},
	{
		name:   "error extension method",
		method: "Fake",
		url:    "http://baz.com",
		asserts: func(t *testing.T, p *Plan, err error) {
			assert.Nil(t, p)
			assert.EqualError(t, err, `nativehttp/request: invalid method "Fake"`)
		},
	},
	{
		name:   "error invalid method",
		method: "\tGET",
		url:    "http://eggs",
		body:   strings.NewReader("spam"),
		asserts: func(t *testing.T, p *Plan, err error) {
			assert.Nil(t, p)
			assert.EqualError(t, err, `nativehttp/request: invalid method "\tGET"`)
		},
	},
	{
		name:   "error invalid URL",
		method: "GET",
		url:    ":::",
		asserts: func(t *testing.T, p *Plan, err error) {
			assert.Nil(t, p)
			assert.Error(t, err)
		},
	},
	{
		name:   "error unsupported scheme",
		method: "GET",
		url:    "ftp://files.example.com/x",
		asserts: func(t *testing.T, p *Plan, err error) {
			assert.Nil(t, p)
			assert.ErrorIs(t, err, ErrUnsupportedScheme)
		},
	},
	{
		name:   "error no host",
		method: "GET",
		url:    "http:///path",
		asserts: func(t *testing.T, p *Plan, err error) {
			assert.Nil(t, p)
			assert.Error(t, err)
		},
	},
	{
		name:   "error invalid body type",
		method: "POST",
		url:    "http://spam",
		body:   map[string]int{},
		asserts: func(t *testing.T, p *Plan, err error) {
			assert.Nil(t, p)
			assert.EqualError(t, err, badBodyTypeMsg)
		},
	},
	{
		name:   "error body read",
		method: "PUT",
		url:    "http://hello",
		body: func(t *testing.T) interface{} {
			m := &mockReadCloser{}
			m.Test(t)
			m.On("Read", mock.AnythingOfType("[]uint8")).
				Return(5, errors.New("problematic")).
				Once()
			return m
		},
		asserts: func(t *testing.T, p *Plan, err error) {
			assert.Nil(t, p)
			assert.EqualError(t, err, "problematic")
		},
	},
	{
		name:   "error body close",
		method: "HEAD",
		url:    "http://hello",
		body: func(t *testing.T) interface{} {
			m := &mockReadCloser{}
			m.Test(t)
			m.On("Read", mock.AnythingOfType("[]uint8")).
				Return(0, io.EOF).
				Once()
			m.On("Close").
				Return(errors.New("difficult conversation")).
				Once()
			return m
		},
		asserts: func(t *testing.T, p *Plan, err error) {
			assert.Nil(t, p)
			assert.EqualError(t, err, "difficult conversation")
		},
	},
}

func resolveBody(t *testing.T, body interface{}) interface{} {
	if f, ok := body.(func(*testing.T) interface{}); ok {
		body = f(t)
	}
	return body
}

func TestPlan_AddCookie(t *testing.T) {
	// Create a Plan for testing, and an http.Request to use as a shadow
	// test. We assert that the cookies on the Plan and the ones on the
	// http.Request should look the same.
	p, err := NewPlan("", "http://cookietown", nil)
	require.NoError(t, err)
	r, err := http.NewRequest("", "http://cookietown", nil)
	require.NoError(t, err)

	c := http.Cookie{Name: "foo", Value: "bar"}
	p.AddCookie(&c)
	r.AddCookie(&c)
	assert.Equal(t, "foo=bar", p.Header.Get("Cookie"))
	c = http.Cookie{
		Name:    "ham",
		Value:   "eggs",
		Path:    "a/b/c",
		MaxAge:  10,
		Secure:  true,
		Expires: time.Now().Add(time.Hour),
	}
	p.AddCookie(&c)
	r.AddCookie(&c)
	assert.Equal(t, "foo=bar; ham=eggs", p.Header.Get("Cookie"))
	assert.Equal(t, r.Header["Cookie"], p.Header["Cookie"])
}

func TestPlan_Context(t *testing.T) {
	t.Run("implicit context.Background", func(t *testing.T) {
		p := &Plan{}
		assert.Equal(t, context.Background(), p.Context())
	})
	t.Run("explicit custom context", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()
		q, err := NewPlanWithContext(ctx, "GET", "http://managemystuff.com/stuff/1", "")
		require.NoError(t, err)
		assert.Same(t, ctx, q.Context())
	})
}

func TestPlan_SetBasicAuth(t *testing.T) {
	p, err := NewPlan("", "http://superdoopersecure.com", nil)
	require.NoError(t, err)
	r, err := http.NewRequest("", "http://superdoopersecure.com", nil)
	require.NoError(t, err)
	p.SetBasicAuth("patsy", "password")
	r.SetBasicAuth("patsy", "password")
	assert.Equal(t, "Basic cGF0c3k6cGFzc3dvcmQ=", p.Header.Get("Authorization"))
	assert.Equal(t, r.Header["Authorization"], p.Header["Authorization"])
}

func TestPlan_WithContext(t *testing.T) {
	p, err := NewPlan("PATCH", "http://test", "body")
	require.NoError(t, err)
	t.Run("nil context", func(t *testing.T) {
		assert.PanicsWithValue(t, nilCtxMsg, func() {
			p.WithContext(nil)
		})
	})
	t.Run("valid context", func(t *testing.T) {
		type parent struct{}
		ctx := context.WithValue(context.Background(), parent{}, p)
		q := p.WithContext(ctx)
		assert.NotSame(t, q, p)
		assert.Equal(t, context.Background(), p.ctx)
		assert.Same(t, ctx, q.ctx)
		assert.Equal(t, p.Body, q.Body)
		assert.Equal(t, p.Method, q.Method)
	})
}

func TestPlan_Source(t *testing.T) {
	t.Run("buffered", func(t *testing.T) {
		p, err := NewPlan("POST", "http://test", "abc")
		require.NoError(t, err)
		assert.True(t, p.Replayable())
		for i := 0; i < 2; i++ {
			r, n := p.Source()
			assert.Equal(t, int64(3), n)
			b, err := ioutil.ReadAll(r)
			require.NoError(t, err)
			assert.Equal(t, "abc", string(b), "each call returns a fresh reader")
		}
	})
	t.Run("streaming", func(t *testing.T) {
		p, err := NewPlan("POST", "http://test", nil)
		require.NoError(t, err)
		src := strings.NewReader("streamed")
		p.BodySource, p.ContentLength = src, 8
		assert.False(t, p.Replayable())
		r, n := p.Source()
		assert.Same(t, src, r)
		assert.Equal(t, int64(8), n)
	})
}

func TestPlan_Target(t *testing.T) {
	p, err := NewPlan("GET", "https://example.com:8443/a%20b?x=1", nil)
	require.NoError(t, err)
	target, err := p.Target()
	require.NoError(t, err)
	assert.Equal(t, Target{Secure: true, Host: "example.com", Port: 8443, Path: "/a%20b?x=1"}, target)

	_, err = (&Plan{}).Target()
	assert.Error(t, err)
}

func TestPlan_HeaderLines(t *testing.T) {
	p, err := NewPlan("GET", "http://test", nil)
	require.NoError(t, err)
	p.Header.Add("X-B", "2")
	p.Header.Add("X-A", "1")
	p.Header.Add("X-B", "3")
	lines, err := p.HeaderLines()
	require.NoError(t, err)
	assert.Equal(t, []string{"X-A: 1", "X-B: 2", "X-B: 3"}, lines)

	p.Header.Set("X-Bad", "line\r\nbreak")
	_, err = p.HeaderLines()
	assert.ErrorIs(t, err, ioerr.ErrInvalidHeader)
	assert.True(t, ioerr.IsInvalidInput(err))

	p.Header = http.Header{"Bad Name": {"x"}}
	_, err = p.HeaderLines()
	assert.ErrorIs(t, err, ioerr.ErrInvalidHeader)
}
