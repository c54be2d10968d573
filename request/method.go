// Copyright 2021 The httpx Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

package request

import (
	"fmt"
	"unicode/utf16"
)

// A Method is one of the HTTP request methods a native transport can
// send. The set is closed.
type Method int

const (
	Get Method = iota
	Post
	Head
	Put
	Trace
	Delete
	Connect
	Options
	Patch
	methodSentinel
)

var methodNames = []string{
	"GET",
	"POST",
	"HEAD",
	"PUT",
	"TRACE",
	"DELETE",
	"CONNECT",
	"OPTIONS",
	"PATCH",
}

// Methods returns every Method.
func Methods() []Method {
	return []Method{Get, Post, Head, Put, Trace, Delete, Connect, Options, Patch}
}

// ParseMethod returns the Method named s, which must be upper case.
// The empty string means GET.
func ParseMethod(s string) (Method, error) {
	if s == "" {
		return Get, nil
	}
	for i, name := range methodNames {
		if name == s {
			return Method(i), nil
		}
	}
	return 0, fmt.Errorf("nativehttp/request: invalid method %q", s)
}

// Valid reports whether m is one of the defined methods.
func (m Method) Valid() bool {
	return m >= 0 && m < methodSentinel
}

// String returns the method's wire name.
func (m Method) String() string {
	if !m.Valid() {
		return fmt.Sprintf("Method(%d)", int(m))
	}
	return methodNames[m]
}

// UTF16 returns the method's wire name as a NUL-terminated UTF-16
// string, the form wide-character native APIs take.
func (m Method) UTF16() []uint16 {
	return append(utf16.Encode([]rune(m.String())), 0)
}
