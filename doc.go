// Copyright 2021 The httpx Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

/*
Package nativehttp provides an HTTP client that sends requests through
the operating system's native HTTP stack: WinHTTP on Windows and
CFNetwork streams on macOS. Other platforms use a portable engine built
on package net/http, which drives the same asynchronous callback model.

Build a Client once and reuse it. Connections are cached per host and
shared by every request the client sends.

	client, err := nativehttp.ClientBuilder{
		Timeout:   10 * time.Second,
		UserAgent: "example/1.0",
	}.Build()
	if err != nil {
		...
	}
	defer client.Close()

A streamed request returns as soon as the response head arrives:

	req, err := client.Post("https://www.example.com/upload")
	...
	resp, err := req.Header("Content-Type", "text/plain").
		Body(file, size).
		Send(ctx)
	...
	defer resp.Close()
	n, err := io.Copy(dst, resp)

A buffered request plan is executed by Do, which follows the client's
retry and timeout policies:

	client, err := nativehttp.ClientBuilder{
		RetryPolicy:   retry.DefaultPolicy,
		TimeoutPolicy: timeout.Fixed(5 * time.Second),
	}.Build()
	...
	p, err := request.NewPlan("GET", "https://www.example.com", nil)
	...
	e, err := client.Do(p)

Errors are *url.Error values wrapping an *ioerr.Error, whose Kind names
the category of the failure independently of the backend:

	if ioerr.IsTimeout(err) {
		...
	}

To hook into the fine-grained details of request execution, install a
handler into the appropriate handler chain:

	handlers := &nativehttp.HandlerGroup{}
	handlers.PushBack(nativehttp.BeforeAttempt, nativehttp.HandlerFunc(
		func(_ nativehttp.Event, e *request.Execution) {
			log.Printf("Attempt %d to %s", e.Attempt, e.Plan.URL)
		}),
	)

Packages trace and metrics install OpenTelemetry and Prometheus
handlers, and package config builds a ClientBuilder from files and the
environment.
*/
package nativehttp
