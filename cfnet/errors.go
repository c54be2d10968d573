// Copyright 2021 The httpx Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

package cfnet

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"syscall"
)

// A Domain qualifies the Code of a StreamError.
type Domain int

const (
	DomainCustom      Domain = -1
	DomainPOSIX       Domain = 1
	DomainMacOSStatus Domain = 2
	DomainSSL         Domain = 3
	DomainHTTP        Domain = 4
	DomainNetDB       Domain = 12
)

func (d Domain) String() string {
	switch d {
	case DomainCustom:
		return "custom"
	case DomainPOSIX:
		return "posix"
	case DomainMacOSStatus:
		return "macos"
	case DomainSSL:
		return "ssl"
	case DomainHTTP:
		return "http"
	case DomainNetDB:
		return "netdb"
	default:
		return fmt.Sprintf("domain(%d)", int(d))
	}
}

// Address-info codes used in DomainNetDB.
const (
	NetDBAgain  int32 = 2
	NetDBNoName int32 = 8
)

// HTTP-domain codes.
const (
	HTTPParseFailure      int32 = -1
	HTTPRedirectionLoop   int32 = -2
	HTTPBadURL            int32 = -3
	HTTPBodyLengthInvalid int32 = -4
)

// A StreamError is a domain-qualified numeric stream error.
type StreamError struct {
	Domain Domain
	Code   int32
}

func (e StreamError) Error() string {
	if e.Domain == DomainPOSIX {
		return fmt.Sprintf("cfnet: %s error %d: %s", e.Domain, e.Code, syscall.Errno(e.Code).Error())
	}
	return fmt.Sprintf("cfnet: %s error %d", e.Domain, e.Code)
}

// errorOf converts a Go networking error into a StreamError.
func errorOf(err error) StreamError {
	var (
		errno  syscall.Errno
		dnsErr *net.DNSError
		netErr net.Error
	)
	switch {
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, os.ErrDeadlineExceeded):
		return StreamError{Domain: DomainPOSIX, Code: int32(syscall.ETIMEDOUT)}
	case errors.Is(err, context.Canceled):
		return StreamError{Domain: DomainPOSIX, Code: int32(syscall.ECANCELED)}
	case errors.As(err, &dnsErr):
		if dnsErr.IsTemporary {
			return StreamError{Domain: DomainNetDB, Code: NetDBAgain}
		}
		return StreamError{Domain: DomainNetDB, Code: NetDBNoName}
	case errors.As(err, &errno):
		return StreamError{Domain: DomainPOSIX, Code: int32(errno)}
	case errors.As(err, &netErr) && netErr.Timeout():
		return StreamError{Domain: DomainPOSIX, Code: int32(syscall.ETIMEDOUT)}
	case errors.Is(err, io.ErrUnexpectedEOF):
		return StreamError{Domain: DomainPOSIX, Code: int32(syscall.ECONNRESET)}
	case errors.Is(err, http.ErrContentLength):
		return StreamError{Domain: DomainHTTP, Code: HTTPBodyLengthInvalid}
	}
	var se StreamError
	if errors.As(err, &se) {
		return se
	}
	return StreamError{Domain: DomainHTTP, Code: HTTPParseFailure}
}
