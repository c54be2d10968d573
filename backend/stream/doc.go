// Copyright 2021 The httpx Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

/*
Package stream implements a backend over run-loop scheduled streams, the
model of the macOS networking stack.

Each request opens an HTTP stream for its head. A body, when present,
flows through a bound stream pair: the session writes the body source
into the pair's write end whenever the stream reports it can accept
bytes, and the HTTP stream reads the other end. Stream events are
delivered on a run loop and posted to a mailbox the sending goroutine
waits on, so the goroutine calling Send or Read is the only one that
advances the exchange.

Connections are pooled by the stream layer per proxy setting, across
sessions. The stream layer is package cfnet, which runs its exchanges
over net/http.
*/
package stream
