// Copyright 2021 The httpx Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

package ioerr

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
)

// A Kind is the semantic category of an I/O failure.
type Kind int

const (
	// Other is any failure not covered by a more specific kind. Unknown
	// native codes always map to Other.
	Other Kind = iota
	// NotConnected means a connection to the remote host could not be
	// established.
	NotConnected
	// ConnectionAborted means an established connection was lost.
	ConnectionAborted
	// TimedOut means a native or client-side timeout expired.
	TimedOut
	// OutOfMemory means a native buffer limit was exceeded, for example
	// because the response headers were larger than the engine allows.
	OutOfMemory
	// InvalidInput means the request could not be sent as built, for
	// example because of a malformed URL or a body whose length did not
	// match its declared length.
	InvalidInput
	// InvalidData means the remote host sent something the native stack
	// could not interpret.
	InvalidData
	// NotFound means a queried item, such as a header, does not exist.
	NotFound
)

var kindNames = []string{
	"other",
	"not connected",
	"connection aborted",
	"timed out",
	"out of memory",
	"invalid input",
	"invalid data",
	"not found",
}

// Kinds returns every Kind.
func Kinds() []Kind {
	return []Kind{
		Other,
		NotConnected,
		ConnectionAborted,
		TimedOut,
		OutOfMemory,
		InvalidInput,
		InvalidData,
		NotFound,
	}
}

// String returns a short human-readable name for the kind.
func (k Kind) String() string {
	if k < 0 || int(k) >= len(kindNames) {
		return fmt.Sprintf("kind(%d)", int(k))
	}
	return kindNames[k]
}

var (
	// ErrClosed is the cause of an error reported by an operation on a
	// request or response that was already closed.
	ErrClosed = errors.New("nativehttp: use of closed request or response")
	// ErrBodyLength is the cause reported when a request body source
	// yields more or fewer bytes than its declared length.
	ErrBodyLength = errors.New("nativehttp: request body length mismatch")
	// ErrInvalidHeader is the cause reported when a request header name
	// or value is not valid on the wire.
	ErrInvalidHeader = errors.New("nativehttp: invalid request header")
)

// An Error is a failure surfaced by a backend. It carries the semantic
// Kind plus whatever native diagnostic the backend had.
type Error struct {
	// Kind is the semantic category.
	Kind Kind
	// Op names the native operation that failed, for example "send" or
	// "read".
	Op string
	// Code is the native numeric code, or zero if the failure did not
	// come from the native layer.
	Code int64
	// Err is the underlying cause. It may be nil.
	Err error
}

// New returns an Error of kind k for operation op caused by err.
func New(k Kind, op string, err error) *Error {
	return &Error{Kind: k, Op: op, Err: err}
}

func (e *Error) Error() string {
	msg := "nativehttp: "
	if e.Op != "" {
		msg += e.Op + ": "
	}
	msg += e.Kind.String()
	if e.Err != nil {
		msg += " (" + e.Err.Error() + ")"
	}
	return msg
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error {
	return e.Err
}

// Timeout reports whether the error is a timeout. It lets code that
// classifies errors through a Timeout method, such as net.Error
// consumers, treat TimedOut errors the same way.
func (e *Error) Timeout() bool {
	return e.Kind == TimedOut
}

// KindOf returns the Kind of the first *Error in err's chain. Errors
// that carry no *Error are classified by FromErr.
func KindOf(err error) Kind {
	if err == nil {
		return Other
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return FromErr("", err).Kind
}

// FromErr classifies an arbitrary Go error. It returns err itself if it
// already is an *Error.
func FromErr(op string, err error) *Error {
	var e *Error
	if errors.As(err, &e) {
		return e
	}
	k := Other
	var ne net.Error
	switch {
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, os.ErrDeadlineExceeded):
		k = TimedOut
	case errors.As(err, &ne) && ne.Timeout():
		k = TimedOut
	case errors.Is(err, io.ErrUnexpectedEOF):
		k = ConnectionAborted
	case errors.Is(err, ErrBodyLength), errors.Is(err, ErrInvalidHeader):
		k = InvalidInput
	default:
		k = kindOfErrno(err)
	}
	return New(k, op, err)
}

// IsTimeout reports whether err is classified as TimedOut.
func IsTimeout(err error) bool {
	return err != nil && KindOf(err) == TimedOut
}

// IsNotConnected reports whether err is classified as NotConnected.
func IsNotConnected(err error) bool {
	return err != nil && KindOf(err) == NotConnected
}

// IsConnectionAborted reports whether err is classified as
// ConnectionAborted.
func IsConnectionAborted(err error) bool {
	return err != nil && KindOf(err) == ConnectionAborted
}

// IsInvalidInput reports whether err is classified as InvalidInput.
func IsInvalidInput(err error) bool {
	return err != nil && KindOf(err) == InvalidInput
}

// IsInvalidData reports whether err is classified as InvalidData.
func IsInvalidData(err error) bool {
	return err != nil && KindOf(err) == InvalidData
}
