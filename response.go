// Copyright 2021 The httpx Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

package nativehttp

import (
	"bytes"
	"encoding/json"
	"io"
	"sync"

	"github.com/gogama/nativehttp/backend"
	"github.com/gogama/nativehttp/ioerr"
	"github.com/gogama/nativehttp/request"
)

// A Response is the streamed result of Request.Send. Its body is read
// through Read or one of the Recv helpers, and it must be closed to
// release the native request and its connection.
//
// Read errors are of type *url.Error wrapping an *ioerr.Error. Once a
// read fails, every later read returns the same error.
type Response struct {
	client *Client
	plan   *request.Plan
	e      *request.Execution
	stream backend.Stream

	err       error
	eof       bool
	closeOnce sync.Once
	onClose   func()
}

// StatusCode returns the response status code.
func (r *Response) StatusCode() int {
	return r.e.StatusCode
}

// Header returns the response header.
func (r *Response) Header() request.ResponseHeader {
	return r.e.Header
}

// Execution returns the execution state of the request. It is updated
// as the body is read.
func (r *Response) Execution() *request.Execution {
	return r.e
}

// Read reads response body bytes into p.
func (r *Response) Read(p []byte) (int, error) {
	if r.err != nil {
		return 0, r.err
	}
	if r.eof {
		return 0, io.EOF
	}
	n, err := r.stream.Read(p)
	r.e.BytesReceived += int64(n)
	switch {
	case err == io.EOF:
		r.eof = true
		r.client.handlers.run(AfterBody, r.e)
	case err != nil:
		r.err = urlErrorWrap(r.plan, err)
		r.e.Err = r.err
		r.client.handlers.run(AfterError, r.e)
	}
	return n, r.errOrEOF(err)
}

func (r *Response) errOrEOF(err error) error {
	if err == io.EOF {
		return io.EOF
	}
	return r.err
}

// Close releases the native request. It is safe to call Close more
// than once and from a goroutine other than the reader, which makes a
// blocked Read fail.
func (r *Response) Close() error {
	var err error
	r.closeOnce.Do(func() {
		err = r.stream.Close()
		r.client.handlers.run(AfterClose, r.e)
		if r.onClose != nil {
			r.onClose()
		}
	})
	return err
}

// Recv reads the whole body and closes the response.
func (r *Response) Recv() (*request.ResponseBody, error) {
	b, err := r.RecvBytes()
	if err != nil {
		return nil, err
	}
	return request.NewResponseBody(r.e.StatusCode, r.e.Header, b), nil
}

// RecvBytes reads the whole body as bytes and closes the response.
func (r *Response) RecvBytes() ([]byte, error) {
	defer func() {
		_ = r.Close()
	}()
	return io.ReadAll(r)
}

// RecvString reads the whole body as a string and closes the response.
func (r *Response) RecvString() (string, error) {
	b, err := r.RecvBytes()
	return string(b), err
}

// RecvJSON decodes the whole body as JSON into v and closes the
// response. A body that is not valid JSON fails with ioerr.InvalidData.
func (r *Response) RecvJSON(v interface{}) error {
	b, err := r.RecvBytes()
	if err != nil {
		return err
	}
	if err = json.NewDecoder(bytes.NewReader(b)).Decode(v); err != nil {
		return urlErrorWrap(r.plan, ioerr.New(ioerr.InvalidData, "read", err))
	}
	return nil
}
