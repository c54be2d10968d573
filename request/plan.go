// Copyright 2021 The httpx Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

package request

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"net/http"
	urlpkg "net/url"
	"sort"
	"strings"
	"time"

	"github.com/gogama/nativehttp/ioerr"
	"golang.org/x/net/http/httpguts"
)

const (
	nilCtxMsg = "nativehttp/request: nil context"
)

// A Plan describes one logical HTTP request for a native transport.
//
// A Plan may be sent once as a stream, through a backend session, or
// executed by a client that makes repeated attempts if the retry policy
// calls for it. Repeated attempts need a body that can be replayed, so
// a plan with a streaming body source is only ever attempted once.
//
// Like http.Request, a Plan has a context which controls the overall
// plan execution and can be used to cancel an in-flight exchange at any
// time.
type Plan struct {
	// Method specifies the HTTP method.
	Method Method

	// URL specifies the URL to access. Only http and https URLs can be
	// sent.
	URL *urlpkg.URL

	// Header contains the request header fields to be sent. A Host
	// field overrides the host name sent to the server.
	Header http.Header

	// Body is the pre-buffered request body to be sent. A nil or
	// empty body indicates no request body should be sent, for example
	// on a GET or DELETE request. Body is ignored if BodySource is set.
	Body []byte

	// BodySource is a streaming body source. When it is non-nil,
	// exactly ContentLength bytes are read from it, and the exchange
	// fails with ioerr.ErrBodyLength if it yields more or fewer.
	BodySource io.Reader

	// ContentLength is the declared length of BodySource.
	ContentLength int64

	// Timeout, if positive, bounds each native phase of the exchange
	// (resolve, connect, send, and receive) instead of the client's
	// timeout policy.
	Timeout time.Duration

	// ctx allows the entire Plan exec to be cancelled. It should only
	// be modified by copying the whole Plan using WithContext.
	ctx context.Context
}

// NewPlan wraps NewPlanWithContext using the background context.
//
// Parameter body may be nil (empty body), or it may be a string,
// []byte, io.Reader, or io.ReadCloser. If body is an io.Reader, it is
// read to the end and buffered into a []byte. If body is an
// io.ReadCloser, it is closed after buffering.
func NewPlan(method, url string, body interface{}) (*Plan, error) {
	return NewPlanWithContext(context.Background(), method, url, body)
}

// NewPlanWithContext returns a new Plan given a method name, URL, and
// optional body.
//
// The empty method name means GET. Parameter body may be nil (empty
// body), or it may be a string, []byte, io.Reader, or io.ReadCloser.
// If body is an io.Reader, it is read to the end and buffered into a
// []byte. If body is an io.ReadCloser, it is closed after buffering.
func NewPlanWithContext(ctx context.Context, method, url string, body interface{}) (*Plan, error) {
	if ctx == nil {
		return nil, errors.New(nilCtxMsg)
	}
	m, err := ParseMethod(method)
	if err != nil {
		return nil, err
	}
	u, err := urlpkg.Parse(url)
	if err != nil {
		return nil, err
	}
	u.Host = removeEmptyPort(u.Host)
	if _, err = TargetOf(u); err != nil {
		return nil, err
	}
	b, err := BodyBytes(body)
	if err != nil {
		return nil, err
	}
	return &Plan{
		ctx:    ctx,
		Method: m,
		URL:    u,
		Header: make(http.Header),
		Body:   b,
	}, nil
}

// Context returns the request plan's context. The context controls
// cancellation of the overall request plan. To change the context, use
// WithContext.
//
// The returned context is always non-nil; it defaults to the
// background context.
func (p *Plan) Context() context.Context {
	if p.ctx != nil {
		return p.ctx
	}
	return context.Background()
}

// WithContext returns a shallow copy of p with its context changed to
// ctx, which must be non-nil.
//
// The context controls the entire lifetime of a logical request plan
// and its execution, including: making individual request attempts
// (obtaining a connection, sending the request, reading the response
// headers and body), running event handlers, and waiting for a retry
// wait period to expire.
func (p *Plan) WithContext(ctx context.Context) *Plan {
	if ctx == nil {
		panic(nilCtxMsg)
	}
	p2 := new(Plan)
	*p2 = *p
	p2.ctx = ctx
	return p2
}

// AddCookie adds a cookie to the request. Per RFC 6265 section 5.4,
// AddCookie does not attach more than one Cookie header field. That
// means all cookies, if any, are written into the same line,
// separated by semicolons.
func (p *Plan) AddCookie(c *http.Cookie) {
	c2 := &http.Cookie{Name: c.Name, Value: c.Value}
	s := c2.String()
	if h := p.Header.Get("Cookie"); h != "" {
		p.Header.Set("Cookie", h+"; "+s)
	} else {
		p.Header.Set("Cookie", s)
	}
}

// SetBasicAuth sets the request plan's Authorization header to use HTTP
// Basic Authentication with the provided username and password.
//
// With HTTP Basic Authentication the provided username and password
// are not encrypted.
func (p *Plan) SetBasicAuth(username, password string) {
	p.Header.Set("Authorization", "Basic "+basicAuth(username, password))
}

// Replayable reports whether the body can be sent more than once.
func (p *Plan) Replayable() bool {
	return p.BodySource == nil
}

// Source returns the body source and its declared length. For a
// buffered body, each call returns a fresh reader over Body.
func (p *Plan) Source() (io.Reader, int64) {
	if p.BodySource != nil {
		return p.BodySource, p.ContentLength
	}
	return bytes.NewReader(p.Body), int64(len(p.Body))
}

// Target returns the native components of the plan URL.
func (p *Plan) Target() (Target, error) {
	if p.URL == nil {
		return Target{}, errors.New("nativehttp/request: plan has no URL")
	}
	return TargetOf(p.URL)
}

// HeaderLines returns the request header as "Name: value" lines, one
// per value, sorted by name. It fails with ioerr.ErrInvalidHeader if a
// name or value could not be sent on the wire.
func (p *Plan) HeaderLines() ([]string, error) {
	names := make([]string, 0, len(p.Header))
	for name := range p.Header {
		names = append(names, name)
	}
	sort.Strings(names)
	lines := make([]string, 0, len(names))
	for _, name := range names {
		if !httpguts.ValidHeaderFieldName(name) {
			return nil, fmt.Errorf("%w: name %q", ioerr.ErrInvalidHeader, name)
		}
		for _, v := range p.Header[name] {
			if !httpguts.ValidHeaderFieldValue(v) {
				return nil, fmt.Errorf("%w: value for %q", ioerr.ErrInvalidHeader, name)
			}
			lines = append(lines, name+": "+v)
		}
	}
	return lines, nil
}

// basicAuth is lifted verbatim from net/http/client.go.
//
// See 2 (end of page 4) https://www.ietf.org/rfc/rfc2617.txt
// "To receive authorization, the client sends the userid and password,
// separated by a single colon (":") character, within a base64
// encoded string in the credentials."
// It is not meant to be urlencoded.
func basicAuth(username, password string) string {
	auth := username + ":" + password
	return base64.StdEncoding.EncodeToString([]byte(auth))
}

// hasPort is lifted verbatim from net/http/http.go
//
// Given a string of the form "host", "host:port", or "[ipv6::address]:port",
// return true if the string includes a port.
func hasPort(s string) bool { return strings.LastIndex(s, ":") > strings.LastIndex(s, "]") }

// removeEmptyPort is lifted verbatim from net/http/http.go
//
// removeEmptyPort strips the empty port in ":port" to ""
// as mandated by RFC 3986 Section 6.2.3.
func removeEmptyPort(host string) string {
	if hasPort(host) {
		return strings.TrimSuffix(host, ":")
	}
	return host
}
