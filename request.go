// Copyright 2021 The httpx Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

package nativehttp

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/gogama/nativehttp/ioerr"
	"github.com/gogama/nativehttp/request"
	"golang.org/x/net/http/httpguts"
)

// A Request builds one request on a Client. Methods that configure the
// request return the Request so calls can be chained. The first
// configuration error is remembered and returned by Send.
//
// A Request is not safe for concurrent use.
type Request struct {
	client *Client
	plan   *request.Plan
	err    error
}

// Header appends a header field. Invalid names or values make Send
// fail with ioerr.ErrInvalidHeader.
func (r *Request) Header(name, value string) *Request {
	if r.check(name, value) {
		r.plan.Header.Add(name, value)
	}
	return r
}

// ReplaceHeader sets a header field, replacing every existing value.
func (r *Request) ReplaceHeader(name, value string) *Request {
	if r.check(name, value) {
		r.plan.Header.Set(name, value)
	}
	return r
}

func (r *Request) check(name, value string) bool {
	if r.err != nil {
		return false
	}
	if !httpguts.ValidHeaderFieldName(name) || !httpguts.ValidHeaderFieldValue(value) {
		r.err = ioerr.New(ioerr.InvalidInput, "open", fmt.Errorf("%w: %q", ioerr.ErrInvalidHeader, name))
		return false
	}
	return true
}

// Body sets a streaming body of exactly n bytes read from src. A
// Request with a streaming body is sent once and never retried.
func (r *Request) Body(src io.Reader, n int64) *Request {
	if r.err != nil {
		return r
	}
	if src == nil || n < 0 {
		r.err = ioerr.New(ioerr.InvalidInput, "open", errors.New("nativehttp: invalid body source"))
		return r
	}
	r.plan.Body = nil
	r.plan.BodySource = src
	r.plan.ContentLength = n
	return r
}

// BodyBytes sets a buffered body.
func (r *Request) BodyBytes(b []byte) *Request {
	if r.err != nil {
		return r
	}
	r.plan.Body = b
	r.plan.BodySource = nil
	r.plan.ContentLength = 0
	return r
}

// BodyString sets a buffered body holding s.
func (r *Request) BodyString(s string) *Request {
	return r.BodyBytes([]byte(s))
}

// BodyJSON sets a buffered body holding the JSON encoding of v and a
// Content-Type of application/json, unless one is already set.
func (r *Request) BodyJSON(v interface{}) *Request {
	if r.err != nil {
		return r
	}
	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(v); err != nil {
		r.err = ioerr.New(ioerr.InvalidInput, "open", err)
		return r
	}
	if r.plan.Header.Get("Content-Type") == "" {
		r.plan.Header.Set("Content-Type", "application/json")
	}
	return r.BodyBytes(bytes.TrimSuffix(buf.Bytes(), []byte("\n")))
}

// Cookie adds a cookie to the request.
func (r *Request) Cookie(c *http.Cookie) *Request {
	if r.err == nil {
		r.plan.AddCookie(c)
	}
	return r
}

// BasicAuth sets the Authorization header to use HTTP Basic
// Authentication.
func (r *Request) BasicAuth(username, password string) *Request {
	if r.err == nil {
		r.plan.SetBasicAuth(username, password)
	}
	return r
}

// Timeout bounds each native phase of this request, overriding the
// client timeout. Zero means the client timeout.
func (r *Request) Timeout(d time.Duration) *Request {
	if r.err != nil {
		return r
	}
	if d < 0 {
		r.err = ioerr.New(ioerr.InvalidInput, "open", errors.New("nativehttp: negative timeout"))
		return r
	}
	r.plan.Timeout = d
	return r
}

// Plan returns the request plan built so far, for use with Client.Do.
// It returns the first configuration error, if any.
func (r *Request) Plan() (*request.Plan, error) {
	if r.err != nil {
		return nil, urlErrorWrap(r.plan, r.err)
	}
	return r.plan, nil
}

// Send sends the request and returns as soon as the response head
// arrives. The body is read from the returned Response, which must be
// closed. Send makes exactly one attempt: the client retry policy does
// not apply.
//
// Errors are of type *url.Error wrapping an *ioerr.Error.
func (r *Request) Send(ctx context.Context) (*Response, error) {
	if r.err != nil {
		return nil, urlErrorWrap(r.plan, r.err)
	}
	c := r.client
	p := r.plan.WithContext(ctx)
	e := request.NewExecution(p, c.backend)
	c.handlers.run(BeforeExecutionStart, e)
	e.Start = time.Now()
	c.handlers.run(BeforeAttempt, e)
	resp, err := c.send(ctx, p, e)
	if err != nil {
		c.finish(e)
		return nil, err
	}
	resp.onClose = func() { c.finish(e) }
	return resp, nil
}
