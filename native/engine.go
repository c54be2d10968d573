// Copyright 2021 The httpx Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

package native

import "time"

// A Handle is an opaque, engine-assigned identifier for a native
// session, connection, or request. The zero Handle is never valid.
type Handle uintptr

// A Status identifies the kind of notification an Engine delivers to a
// Callback. Values match the Windows asynchronous HTTP engine so a real
// binding can pass them through unchanged.
type Status uint32

const (
	StatusResolvingName        Status = 0x00000001
	StatusNameResolved         Status = 0x00000002
	StatusConnectingToServer   Status = 0x00000004
	StatusConnectedToServer    Status = 0x00000008
	StatusSendingRequest       Status = 0x00000010
	StatusRequestSent          Status = 0x00000020
	StatusReceivingResponse    Status = 0x00000040
	StatusResponseReceived     Status = 0x00000080
	StatusClosingConnection    Status = 0x00000100
	StatusConnectionClosed     Status = 0x00000200
	StatusHandleCreated        Status = 0x00000400
	StatusHandleClosing        Status = 0x00000800
	StatusRedirect             Status = 0x00004000
	StatusIntermediateResponse Status = 0x00008000
	StatusSecureFailure        Status = 0x00010000
	StatusHeadersAvailable     Status = 0x00020000
	StatusDataAvailable        Status = 0x00040000
	StatusReadComplete         Status = 0x00080000
	StatusWriteComplete        Status = 0x00100000
	StatusRequestError         Status = 0x00200000
	StatusSendRequestComplete  Status = 0x00400000
)

// AllNotifications is the notification mask that subscribes a callback
// to every Status.
const AllNotifications uint32 = 0xffffffff

// StatusInfo carries the payload of a notification.
//
// Length is the byte count for StatusDataAvailable (bytes ready to be
// read), StatusReadComplete (bytes read into the caller's buffer; zero
// means end of response) and StatusWriteComplete (bytes written).
//
// Err is only set for StatusRequestError.
type StatusInfo struct {
	Length uint32
	Err    Code
}

// A Callback receives notifications for a handle. Engines invoke it on
// goroutines (or OS threads) of their own, never on the goroutine that
// issued the operation, and may invoke it concurrently with any other
// call on the same handle.
//
// The ctx parameter is the context value most recently associated with
// the handle through SendRequest or SetContext. It is zero once the
// association has been cleared.
type Callback func(h Handle, ctx uintptr, status Status, info StatusInfo)

// SessionOptions configure a native session.
type SessionOptions struct {
	// UserAgent is sent on every request made through the session.
	UserAgent string
	// KeepAlive is the keep-alive interval for pooled connections. Zero
	// means the engine default.
	KeepAlive time.Duration
}

// Timeouts mirror the four timeouts the native engine distinguishes.
// A zero field leaves the engine default in place.
type Timeouts struct {
	Resolve time.Duration
	Connect time.Duration
	Send    time.Duration
	Receive time.Duration
}

// Uniform returns a Timeouts that uses d for every phase.
func Uniform(d time.Duration) Timeouts {
	return Timeouts{Resolve: d, Connect: d, Send: d, Receive: d}
}

// DefaultPort asks Connect to use the default port for the request
// scheme (80 for plain, 443 for secure requests).
const DefaultPort uint16 = 0

// An Engine is the callback-driven native HTTP surface. Every method
// returns promptly. Methods documented as asynchronous start a native
// operation whose completion is reported through the handle's Callback.
// A non-nil return value from an asynchronous method means the
// operation was never started and no callback will follow for it.
//
// Errors returned by an Engine are of type Code.
type Engine interface {
	// Open opens a session handle.
	Open(opts SessionOptions) (Handle, error)

	// Connect opens a connection handle for host under session. Connect
	// performs no network I/O.
	Connect(session Handle, host string, port uint16) (Handle, error)

	// OpenRequest opens a request handle under conn. The path includes
	// any query string.
	OpenRequest(conn Handle, method, path string, secure bool) (Handle, error)

	// AddRequestHeader adds one "Name: value" header line. If replace is
	// true, an existing header with the same name is replaced.
	AddRequestHeader(req Handle, line string, replace bool) error

	// SetStatusCallback installs cb as the handle's callback. After a
	// nil cb no notification reaches Go code; the engine may keep its
	// own hook until the handle is closed.
	SetStatusCallback(h Handle, cb Callback) error

	// SetContext associates ctx with the handle. Zero clears it.
	SetContext(h Handle, ctx uintptr) error

	// SetTimeouts sets the handle's timeouts.
	SetTimeouts(h Handle, t Timeouts) error

	// SendRequest asynchronously sends the request line and headers,
	// announcing a body of totalLength bytes, and associates ctx with the
	// handle. Completion: StatusSendRequestComplete.
	SendRequest(req Handle, totalLength uint64, ctx uintptr) error

	// WriteData asynchronously writes p as the next part of the request
	// body. The engine may retain p until the operation completes, so the
	// caller must not modify it before then. Only one write may be
	// outstanding. Completion: StatusWriteComplete.
	WriteData(req Handle, p []byte) error

	// ReceiveResponse asynchronously waits for the response headers once
	// the whole body has been written. Completion: StatusHeadersAvailable.
	ReceiveResponse(req Handle) error

	// QueryHeaders copies the raw CRLF-separated response header block
	// into buf and returns the number of bytes copied. If buf is too
	// small, it returns the required length and ErrInsufficientBuffer.
	// QueryHeaders is synchronous and may be called from a Callback.
	QueryHeaders(req Handle, buf []byte) (int, error)

	// QueryDataAvailable asynchronously asks how much response body can
	// be read without blocking. Completion: StatusDataAvailable.
	QueryDataAvailable(req Handle) error

	// ReadData asynchronously reads response body into p, which the
	// caller must not touch until the operation completes. Completion:
	// StatusReadComplete.
	ReadData(req Handle, p []byte) error

	// CloseHandle closes any handle. Outstanding operations on a request
	// handle are cancelled and may still report through the callback
	// with ErrOperationCancelled if a callback is installed. Buffers of
	// cancelled operations are kept alive until the engine is done with
	// them.
	CloseHandle(h Handle) error
}
