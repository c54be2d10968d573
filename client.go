// Copyright 2021 The httpx Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

package nativehttp

import (
	"context"
	"errors"
	"io"
	"math"
	"net/url"
	"strings"
	"sync/atomic"
	"time"

	"github.com/gogama/nativehttp/backend"
	"github.com/gogama/nativehttp/ioerr"
	"github.com/gogama/nativehttp/request"
	"github.com/gogama/nativehttp/retry"
	"github.com/gogama/nativehttp/timeout"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"
)

// maxNativeTimeout is the largest timeout handed to a backend. Longer
// timeouts, such as timeout.Infinite, leave the native defaults in
// place and set no attempt deadline.
const maxNativeTimeout = time.Duration(math.MaxInt32) * time.Millisecond

// A ClientBuilder configures a Client. Its zero value is a valid
// configuration: it builds a client over DefaultBackend that never
// retries, logs nothing, and leaves native timeouts at their defaults.
type ClientBuilder struct {
	// Backend is the native transport. If nil, DefaultBackend is used.
	Backend backend.Backend

	// Timeout bounds each native phase of every request. Zero leaves
	// the native defaults in place. Request.Timeout overrides it for one
	// request.
	Timeout time.Duration

	// BufferSize is the transfer buffer size. Zero means
	// backend.DefaultBufferSize.
	BufferSize int

	// UserAgent is sent with every request that does not set one.
	UserAgent string

	// KeepAlive is the keep-alive interval of pooled connections.
	KeepAlive time.Duration

	// Proxy is the proxy for backends that take one from the caller.
	Proxy *url.URL

	// DisablePersistent stops backends from reusing connections where
	// the native layer lets them choose.
	DisablePersistent bool

	// Logger receives debug events for every request. If nil, nothing
	// is logged.
	Logger *zerolog.Logger

	// Handlers allows custom handler chains to be invoked when
	// designated events occur during execution of a request plan.
	//
	// If Handlers is nil, no custom handlers will be run.
	Handlers *HandlerGroup

	// RetryPolicy decides when Client.Do retries failed attempts and
	// how long it waits before retrying. Streamed requests sent with
	// Request.Send are never retried.
	//
	// If RetryPolicy is nil, retry.Never is used.
	RetryPolicy retry.Policy

	// TimeoutPolicy specifies how Client.Do sets timeouts on individual
	// attempts.
	//
	// If TimeoutPolicy is nil, Client.Do uses the plan's Timeout when
	// it is positive, and otherwise the client timeout, or
	// timeout.DefaultPolicy if the client has none.
	TimeoutPolicy timeout.Policy

	// RateLimit, if non-nil, is waited on before every attempt is
	// handed to the backend.
	RateLimit *rate.Limiter
}

// Build opens a native session and returns a Client that sends
// requests through it.
func (b ClientBuilder) Build() (*Client, error) {
	be := b.Backend
	if be == nil {
		var err error
		if be, err = DefaultBackend(); err != nil {
			return nil, err
		}
	}
	log := zerolog.Nop()
	if b.Logger != nil {
		log = *b.Logger
	}
	log = log.With().Str("component", "client").Logger()
	s, err := be.NewSession(backend.Config{
		Logger:            log,
		BufferSize:        b.BufferSize,
		Timeout:           b.Timeout,
		UserAgent:         b.UserAgent,
		KeepAlive:         b.KeepAlive,
		Proxy:             b.Proxy,
		DisablePersistent: b.DisablePersistent,
	})
	if err != nil {
		return nil, err
	}
	c := &Client{
		backend:       be.Name(),
		session:       s,
		log:           log,
		handlers:      b.Handlers,
		retryPolicy:   b.RetryPolicy,
		timeoutPolicy: b.TimeoutPolicy,
		limiter:       b.RateLimit,
	}
	if c.retryPolicy == nil {
		c.retryPolicy = retry.Never
	}
	c.timeout.Store(int64(b.Timeout))
	log.Debug().Str("backend", c.backend).Msg("client built")
	return c, nil
}

// A Client sends requests through one native session. Connections
// opened by the session are cached and shared by every request to the
// same host, so a Client should be reused rather than built per
// request. Client is safe for concurrent use by multiple goroutines.
//
// Client offers two ways to make a request. Request and its shortcuts
// (Get, Post, and so on) build a Request whose Send returns a streamed
// Response as soon as the response head arrives. Do executes a
// request.Plan to completion, buffering the response body and applying
// the retry and timeout policies.
type Client struct {
	backend       string
	session       backend.Session
	log           zerolog.Logger
	handlers      *HandlerGroup
	retryPolicy   retry.Policy
	timeoutPolicy timeout.Policy
	limiter       *rate.Limiter
	timeout       atomic.Int64
	closed        atomic.Bool
}

// Backend returns the name of the client's backend.
func (c *Client) Backend() string {
	return c.backend
}

// SetTimeout changes the native phase timeout of requests sent
// afterwards. Zero restores the native defaults.
func (c *Client) SetTimeout(d time.Duration) {
	c.timeout.Store(int64(d))
	c.session.SetTimeout(d)
}

// Timeout returns the client timeout.
func (c *Client) Timeout() time.Duration {
	return time.Duration(c.timeout.Load())
}

// Close releases the native session and every cached connection.
// Responses already returned stay readable until they are closed.
// Requests sent after Close fail with ioerr.ErrClosed.
func (c *Client) Close() error {
	if !c.closed.CompareAndSwap(false, true) {
		return nil
	}
	c.log.Debug().Msg("client closed")
	return c.session.Close()
}

// Request returns a Request for method m and the given URL. The URL
// must be an absolute http or https URL.
func (c *Client) Request(m request.Method, url string) (*Request, error) {
	if !m.Valid() {
		return nil, ioerr.New(ioerr.InvalidInput, "open", errors.New("nativehttp: invalid method "+m.String()))
	}
	p, err := request.NewPlan(m.String(), url, nil)
	if err != nil {
		return nil, err
	}
	return &Request{client: c, plan: p}, nil
}

// Get returns a GET Request for url.
func (c *Client) Get(url string) (*Request, error) {
	return c.Request(request.Get, url)
}

// Post returns a POST Request for url.
func (c *Client) Post(url string) (*Request, error) {
	return c.Request(request.Post, url)
}

// Put returns a PUT Request for url.
func (c *Client) Put(url string) (*Request, error) {
	return c.Request(request.Put, url)
}

// Delete returns a DELETE Request for url.
func (c *Client) Delete(url string) (*Request, error) {
	return c.Request(request.Delete, url)
}

// Head returns a HEAD Request for url.
func (c *Client) Head(url string) (*Request, error) {
	return c.Request(request.Head, url)
}

// Patch returns a PATCH Request for url.
func (c *Client) Patch(url string) (*Request, error) {
	return c.Request(request.Patch, url)
}

// Options returns an OPTIONS Request for url.
func (c *Client) Options(url string) (*Request, error) {
	return c.Request(request.Options, url)
}

// Do executes a request plan and returns the results, following the
// timeout and retry policy set on the Client.
//
// The result returned is the result after the final attempt made
// during the plan execution, as determined by the retry policy. Every
// attempt reads the whole response body into the execution's Body
// field.
//
// An error is returned if, after doing any retries mandated by the
// retry policy, the final attempt resulted in an error. A non-2XX
// status code in the final attempt does not result in an error.
//
// The returned Execution is never nil. If an error was returned, the
// Err field of the Execution always references the same error, and the
// error is always of type *url.Error wrapping an *ioerr.Error. The
// url.Error's Timeout method, and the Execution's Timeout method, will
// return true if the final attempt timed out, or if the entire plan
// timed out.
func (c *Client) Do(p *request.Plan) (*request.Execution, error) {
	e := request.NewExecution(p, c.backend)
	timeoutPolicy := c.attemptTimeoutPolicy()

	c.handlers.run(BeforeExecutionStart, e)
	e.Start = time.Now()

RetryLoop:
	for {
		c.attempt(e, timeoutPolicy)
		if e.Timeout() {
			e.AttemptTimeouts++
			c.handlers.run(AfterAttemptTimeout, e)
		}
		c.handlers.run(AfterAttempt, e)
		planCtxErr := p.Context().Err()
		if planCtxErr == context.DeadlineExceeded {
			c.handlers.run(AfterPlanTimeout, e)
			break
		} else if planCtxErr != nil {
			e.Err = urlErrorWrap(p, ioerr.FromErr("send", planCtxErr))
			break
		} else if c.retryPolicy.Decide(e) {
			wait := c.retryPolicy.Wait(e)
			timer := time.NewTimer(wait)
			select {
			case <-timer.C:
			case <-p.Context().Done():
				timer.Stop()
				err := p.Context().Err()
				e.Err = urlErrorWrap(p, ioerr.FromErr("send", err))
				if err == context.DeadlineExceeded {
					c.handlers.run(AfterPlanTimeout, e)
				}
				break RetryLoop
			}
			e.Reset()
			e.Attempt++
		} else {
			break
		}
	}

	e.End = time.Now()
	c.handlers.run(AfterExecutionEnd, e)
	return e, e.Err
}

func (c *Client) attemptTimeoutPolicy() timeout.Policy {
	if c.timeoutPolicy != nil {
		return c.timeoutPolicy
	}
	if d := c.Timeout(); d > 0 {
		return timeout.PlanFirst(timeout.Fixed(d))
	}
	return timeout.PlanFirst(timeout.DefaultPolicy)
}

// attempt makes one attempt of e's plan, reading the whole body.
func (c *Client) attempt(e *request.Execution, policy timeout.Policy) {
	p := e.Plan
	ctx := p.Context()
	if d := policy.Timeout(e); d > 0 && d <= maxNativeTimeout {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, d)
		defer cancel()
		p = p.WithContext(ctx)
		p.Timeout = d
	} else {
		p = p.WithContext(ctx)
	}
	c.handlers.run(BeforeAttempt, e)
	resp, err := c.send(ctx, p, e)
	if err != nil {
		return
	}
	defer func() {
		_ = resp.Close()
	}()
	body, err := io.ReadAll(resp)
	if err == nil {
		e.Body = body
	}
}

// send hands p to the session and returns the streamed response.
func (c *Client) send(ctx context.Context, p *request.Plan, e *request.Execution) (*Response, error) {
	log := c.log.With().Str("request_id", e.ID).Int("attempt", e.Attempt).Logger()
	ctx = log.WithContext(ctx)
	if c.closed.Load() {
		return nil, c.fail(p, e, ioerr.New(ioerr.NotConnected, "open", ioerr.ErrClosed))
	}
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, c.fail(p, e, limitError(ctx, err))
		}
	}
	c.handlers.run(BeforeSend, e)
	s, err := c.session.Send(ctx, p)
	if err != nil {
		log.Debug().Err(err).Msg("send failed")
		return nil, c.fail(p, e, err)
	}
	e.StatusCode = s.StatusCode()
	e.Header = s.Header()
	e.BytesSent = s.BytesSent()
	c.handlers.run(AfterHeaders, e)
	return &Response{client: c, plan: p, e: e, stream: s}, nil
}

// fail records err as the attempt's error and fires AfterError.
func (c *Client) fail(p *request.Plan, e *request.Execution, err error) error {
	e.Err = urlErrorWrap(p, err)
	c.handlers.run(AfterError, e)
	return e.Err
}

// finish ends a single-attempt execution made by Request.Send.
func (c *Client) finish(e *request.Execution) {
	if e.Timeout() {
		e.AttemptTimeouts++
		c.handlers.run(AfterAttemptTimeout, e)
	}
	c.handlers.run(AfterAttempt, e)
	e.End = time.Now()
	c.handlers.run(AfterExecutionEnd, e)
}

// limitError classifies a rate limiter wait failure. The limiter fails
// early when the wait would outlast the context deadline.
func limitError(ctx context.Context, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return ioerr.FromErr("open", ctxErr)
	}
	if _, ok := ctx.Deadline(); ok {
		return ioerr.New(ioerr.TimedOut, "open", err)
	}
	return ioerr.New(ioerr.Other, "open", err)
}

func urlErrorWrap(p *request.Plan, err error) error {
	if _, ok := err.(*url.Error); ok {
		return err
	}

	u := ""
	if p.URL != nil {
		u = p.URL.String()
	}
	return &url.Error{
		Op:  urlErrorOp(p.Method.String()),
		URL: u,
		Err: err,
	}
}

// urlErrorOp is lifted verbatim from net/http/client.go
func urlErrorOp(method string) string {
	if method == "" {
		return "Get"
	}
	return method[:1] + strings.ToLower(method[1:])
}
