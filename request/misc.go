// Copyright 2021 The httpx Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

package request

import (
	"errors"
	"io"
)

const badBodyTypeMsg = "nativehttp/request: invalid type (for body use nil, " +
	"string, []byte, io.Reader or io.ReadCloser)"

// BodyBytes converts a generic body parameter to a byte slice for use
// as a request plan body.
//
// The body parameter may be nil, or it may be a string, []byte,
// io.Reader, or io.ReadCloser. The conversion logic is:
//
// • If body is nil, a nil byte slice and no error is returned.
//
// • If body is a []byte, body itself and no error is returned.
//
// • If body is a string, the built-in conversion from string to byte
// slice, and no error, is returned.
//
// • If body is an io.Reader or io.ReadCloser, the result of reading
// the whole contents of the reader (and closing it if it implements
// Closer) is returned.
//
// • If body is any other type than those listed above, a nil byte slice
// and an error is returned.
func BodyBytes(body interface{}) ([]byte, error) {
	switch x := body.(type) {
	case nil:
		return nil, nil
	case string:
		return []byte(x), nil
	case []byte:
		return x, nil
	case io.ReadCloser:
		b, err := io.ReadAll(x)
		if err != nil {
			return nil, err
		}
		if err = x.Close(); err != nil {
			return nil, err
		}
		return b, nil
	case io.Reader:
		return BodyBytes(io.NopCloser(x))
	default:
		return nil, errors.New(badBodyTypeMsg)
	}
}

// A ResponseBody is a fully received response: status code, header,
// and body bytes. It is never modified after it is built.
type ResponseBody struct {
	status int
	header ResponseHeader
	body   []byte
}

// NewResponseBody builds a ResponseBody. It takes ownership of header
// and body.
func NewResponseBody(status int, header ResponseHeader, body []byte) *ResponseBody {
	return &ResponseBody{status: status, header: header, body: body}
}

// StatusCode returns the response status code.
func (b *ResponseBody) StatusCode() int { return b.status }

// Header returns a copy of the response header.
func (b *ResponseBody) Header() ResponseHeader { return b.header.Clone() }

// Get returns the value of the named response header.
func (b *ResponseBody) Get(name string) string { return b.header.Get(name) }

// Bytes returns a copy of the body bytes.
func (b *ResponseBody) Bytes() []byte { return append([]byte(nil), b.body...) }

// Len returns the body length.
func (b *ResponseBody) Len() int { return len(b.body) }

// String returns the body as a string.
func (b *ResponseBody) String() string { return string(b.body) }
