// Copyright 2021 The httpx Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

/*
Package request contains the types shared by the client and every
backend: Plan (describes an HTTP request), Execution (describes the
progress of sending a Plan), and the small value types a native
transport needs, namely Method, Target, ResponseHeader and ResponseBody.

A Plan looks like a stripped-down http.Request. Its body is either a
pre-buffered []byte, which can be replayed on retry, or a streaming
source with a declared length, which is sent exactly once:

	p, err := request.NewPlan("GET", "https://example.com", nil)
	...
	e, err := client.Do(p)
	...

Response headers arrive as raw text from the native layer and are parsed
by ParseRawHeaders into a ResponseHeader. Header names are
case-insensitive, and a header sent more than once holds every value
joined with "; ".

	status, _, h := request.ParseRawHeaders("HTTP/1.1 200 OK\r\nSet-Cookie: a=1\r\nSet-Cookie: b=2\r\n")
	// status == 200, h.Get("set-cookie") == "a=1; b=2"

Execution is both the output of the client's buffered Do method and the
input to the timeout policies, retry policies, and event handlers that
run while a plan is sent.
*/
package request
