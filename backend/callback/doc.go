// Copyright 2021 The httpx Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

/*
Package callback implements a backend over a callback-driven native
engine, such as WinHTTP in asynchronous mode.

Every native operation on a request completes by invoking a status
callback on a thread the engine owns. The callback decodes the
notification into an event and posts it to a mailbox; it never touches
request state. The goroutine that called Send, or later Read, drains
the mailbox and advances the request or response state machine,
issuing the next native operation.

The native layer refers to a request's mailbox through an integer id
from a context table. Ids are never reused, so a notification delivered
after a request was torn down finds no entry and is dropped.

Connections are cached per host authority for the life of the session,
and each request holds a reference to its connection until its response
is closed.
*/
package callback
