// Copyright 2021 The httpx Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

// Package winhttp binds native.Engine to winhttp.dll on Windows.
//
// Every handle is opened in asynchronous mode. Status callbacks are
// delivered by the system on its own thread pool through a single
// trampoline, which looks up the Go callback installed for the handle
// and forwards a decoded native.StatusInfo. Buffers handed to WriteData
// and ReadData are pinned until their completion is reported, or after
// a close until the system reports the handle is closing.
//
// On other platforms the package holds only its handle bookkeeping.
package winhttp
