// Copyright 2021 The httpx Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

package cfnet

import (
	"net/http"
	"net/url"
	"strings"
)

// A Message is an HTTP request or response head.
type Message struct {
	method  string
	url     *url.URL
	status  int
	reason  string
	version string
	lines   []string
}

// NewRequestMessage returns a request message for method and u.
func NewRequestMessage(method string, u *url.URL) *Message {
	return &Message{method: method, url: u, version: "HTTP/1.1"}
}

// AddHeader appends a header field. Duplicates are kept.
func (m *Message) AddHeader(name, value string) {
	m.lines = append(m.lines, name+": "+value)
}

// SetHeader replaces every field named name with one holding value.
func (m *Message) SetHeader(name, value string) {
	kept := m.lines[:0]
	for _, l := range m.lines {
		if !strings.EqualFold(fieldName(l), name) {
			kept = append(kept, l)
		}
	}
	m.lines = append(kept, name+": "+value)
}

// Method returns the request method.
func (m *Message) Method() string { return m.method }

// URL returns the request URL.
func (m *Message) URL() *url.URL { return m.url }

// StatusCode returns the response status code.
func (m *Message) StatusCode() int { return m.status }

// HeaderLines returns the header fields as "Name: value" lines in the
// order they were added or received.
func (m *Message) HeaderLines() []string {
	return append([]string(nil), m.lines...)
}

// Serialized returns the message head as it would go on the wire: the
// start line and header lines, each CRLF-terminated.
func (m *Message) Serialized() string {
	var b strings.Builder
	if m.method != "" {
		b.WriteString(m.method + " " + m.url.RequestURI() + " " + m.version + "\r\n")
	} else {
		b.WriteString(m.version + " " + m.reason + "\r\n")
	}
	for _, l := range m.lines {
		b.WriteString(l + "\r\n")
	}
	return b.String()
}

func (m *Message) header() http.Header {
	h := make(http.Header, len(m.lines))
	for _, l := range m.lines {
		name := fieldName(l)
		h.Add(name, strings.TrimPrefix(l[len(name):], ": "))
	}
	return h
}

func responseMessage(resp *http.Response) *Message {
	m := &Message{
		status:  resp.StatusCode,
		reason:  resp.Status,
		version: resp.Proto,
	}
	for name, values := range resp.Header {
		for _, v := range values {
			m.lines = append(m.lines, name+": "+v)
		}
	}
	return m
}

func fieldName(line string) string {
	if i := strings.IndexByte(line, ':'); i >= 0 {
		return line[:i]
	}
	return line
}
