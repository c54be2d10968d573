// Copyright 2021 The httpx Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

package request

import (
	"net/textproto"
	"sort"
	"strconv"
	"strings"
)

// A ResponseHeader maps canonical header names to values. A header
// that appeared more than once holds every value joined with "; ".
//
// Use Get for case-insensitive lookups. Direct indexing only finds
// canonical names.
type ResponseHeader map[string]string

// Get returns the value of the named header, or "" if it is absent.
// The name is case-insensitive.
func (h ResponseHeader) Get(name string) string {
	return h[textproto.CanonicalMIMEHeaderKey(name)]
}

// Lookup is Get that also reports presence.
func (h ResponseHeader) Lookup(name string) (string, bool) {
	v, ok := h[textproto.CanonicalMIMEHeaderKey(name)]
	return v, ok
}

// Add appends value to the named header.
func (h ResponseHeader) Add(name, value string) {
	key := textproto.CanonicalMIMEHeaderKey(name)
	if prev, ok := h[key]; ok {
		h[key] = prev + "; " + value
	} else {
		h[key] = value
	}
}

// Names returns the header names in sorted order.
func (h ResponseHeader) Names() []string {
	names := make([]string, 0, len(h))
	for name := range h {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Clone returns a copy of h.
func (h ResponseHeader) Clone() ResponseHeader {
	if h == nil {
		return nil
	}
	c := make(ResponseHeader, len(h))
	for k, v := range h {
		c[k] = v
	}
	return c
}

// ParseRawHeaders parses a raw CRLF-separated response head: a status
// line followed by "Name: value" lines. Lines without the ": "
// separator are skipped. The status is zero if the status line cannot
// be parsed.
func ParseRawHeaders(raw string) (status int, reason string, h ResponseHeader) {
	h = make(ResponseHeader)
	lines := strings.Split(strings.ReplaceAll(raw, "\r\n", "\n"), "\n")
	if len(lines) == 0 {
		return 0, "", h
	}
	status, reason = parseStatusLine(lines[0])
	for _, line := range lines[1:] {
		name, value, ok := strings.Cut(line, ": ")
		if !ok || name == "" {
			continue
		}
		h.Add(name, value)
	}
	return status, reason, h
}

func parseStatusLine(line string) (int, string) {
	proto, rest, ok := strings.Cut(line, " ")
	if !ok || !strings.HasPrefix(proto, "HTTP/") {
		return 0, ""
	}
	code, reason, _ := strings.Cut(rest, " ")
	n, err := strconv.Atoi(code)
	if err != nil || len(code) != 3 || n < 100 {
		return 0, ""
	}
	return n, reason
}
