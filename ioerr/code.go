// Copyright 2021 The httpx Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

package ioerr

import (
	"errors"
	"syscall"

	"github.com/gogama/nativehttp/cfnet"
	"github.com/gogama/nativehttp/native"
)

// KindOfCode maps a native engine code to a Kind. Every code maps to
// some Kind; codes without a more specific meaning map to Other.
func KindOfCode(c native.Code) Kind {
	switch c {
	case native.ErrCannotConnect:
		return NotConnected
	case native.ErrConnectionError:
		return ConnectionAborted
	case native.ErrTimeout:
		return TimedOut
	case native.ErrHeaderSizeOverflow,
		native.ErrChunkedEncodingHeaderSizeOverflow,
		native.ErrResponseDrainOverflow,
		native.ErrNotEnoughMemory:
		return OutOfMemory
	case native.ErrInvalidHeader, native.ErrInvalidServerResponse:
		return InvalidData
	case native.ErrInvalidOption, native.ErrInvalidURL, native.ErrInvalidParameter:
		return InvalidInput
	case native.ErrHeaderNotFound:
		return NotFound
	default:
		return Other
	}
}

// FromCode returns an Error for a native engine code reported by op.
func FromCode(op string, c native.Code) *Error {
	return &Error{Kind: KindOfCode(c), Op: op, Code: int64(c), Err: c}
}

// FromNative classifies an error returned by a native.Engine method.
// Engines return native.Code values, but anything else is classified
// by FromErr.
func FromNative(op string, err error) *Error {
	var c native.Code
	if errors.As(err, &c) {
		return FromCode(op, c)
	}
	return FromErr(op, err)
}

// KindOfStream maps a stream error to a Kind.
//
// POSIX-domain errors are classified by errno. Name resolution failures
// map to Other, as do errors in unknown domains. HTTP-domain errors
// mean the stream could not parse what the server sent.
func KindOfStream(e cfnet.StreamError) Kind {
	switch e.Domain {
	case cfnet.DomainPOSIX:
		return kindOfErrno(syscall.Errno(e.Code))
	case cfnet.DomainHTTP:
		return InvalidData
	default:
		return Other
	}
}

// FromStream returns an Error for a stream error reported by op.
func FromStream(op string, e cfnet.StreamError) *Error {
	return &Error{Kind: KindOfStream(e), Op: op, Code: int64(e.Code), Err: e}
}

func kindOfErrno(err error) Kind {
	var errno syscall.Errno
	if !errors.As(err, &errno) {
		return Other
	}
	switch errno {
	case syscall.ETIMEDOUT:
		return TimedOut
	case syscall.ECONNREFUSED, syscall.EHOSTUNREACH, syscall.ENETUNREACH:
		return NotConnected
	case syscall.ECONNRESET, syscall.ECONNABORTED, syscall.EPIPE:
		return ConnectionAborted
	case syscall.ENOMEM:
		return OutOfMemory
	case syscall.EINVAL:
		return InvalidInput
	default:
		return Other
	}
}
