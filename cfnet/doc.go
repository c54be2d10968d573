// Copyright 2021 The httpx Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

/*
Package cfnet is a stream-pair networking surface in the style of the
Apple stream networking framework: non-blocking read and write streams
that report readiness through client callbacks delivered on a run loop.

Three pieces are provided.

A RunLoop is a goroutine that runs scheduled work and stream client
callbacks one at a time. MainLoop returns the process-wide loop, which
is started on first use and lives for the rest of the process.

BoundPair returns a read stream and a write stream joined by a fixed
size buffer. Bytes written to the write stream become readable on the
read stream, and closing the write stream ends the read stream.

NewHTTPStream returns a read stream that sends an HTTP request Message
when opened, drawing the request body from another read stream, and
then yields the response body. The response header Message is available
from the stream as soon as the server has sent it.

	req := cfnet.NewRequestMessage("POST", u)
	bodyR, bodyW := cfnet.BoundPair(8192)
	s := cfnet.NewHTTPStream(req, bodyR)
	s.SetClient(cfnet.EventHasBytesAvailable|cfnet.EventEndEncountered, cb)
	s.Schedule(cfnet.MainLoop())
	s.Open()

Stream methods never block. Read and Write should only be called after
the client was told bytes are available or space can be accepted.

The package is written in pure Go. HTTP streams perform their exchange
with net/http, pooling one transport per proxy setting, so on macOS
traffic goes through the Go network stack rather than CFNetwork.
*/
package cfnet
