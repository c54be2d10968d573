// Copyright 2021 The httpx Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

/*
Package native is the thin native surface that every backend drives.

It holds the callback-style Engine interface (shaped after the Windows
asynchronous HTTP engine), the native status and error codes the engine
reports, and the three primitives which make it safe to hand a context
to a native layer that calls back on its own threads:

• Owned and Shared wrap a native handle so it is closed exactly once,
after any callback and context association has been cleared;

• ContextTable gives out integer context values in place of Go
pointers, so a callback that arrives after its owner has gone away
finds nothing and is ignored;

• Mailbox carries decoded events from the callback goroutine to the
goroutine driving a state machine, and wakes it.

All pointer juggling required by a real native ABI lives in the engine
implementations (package winhttp on Windows); the state machines in the
backend packages only see this package.
*/
package native
