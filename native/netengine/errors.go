// Copyright 2021 The httpx Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

package netengine

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"errors"
	"io"
	"net"
	"os"
	"strings"
	"syscall"

	"github.com/gogama/nativehttp/native"
)

// codeOf converts an error from net/http into the code the Windows
// engine reports for the same condition.
func codeOf(err error) native.Code {
	var (
		code    native.Code
		dnsErr  *net.DNSError
		opErr   *net.OpError
		netErr  net.Error
		certErr *tls.CertificateVerificationError
		unkAuth x509.UnknownAuthorityError
		hostErr x509.HostnameError
	)
	switch {
	case err == nil:
		return 0
	case errors.As(err, &code):
		return code
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, os.ErrDeadlineExceeded):
		return native.ErrTimeout
	case errors.Is(err, context.Canceled):
		return native.ErrOperationCancelled
	case errors.As(err, &dnsErr):
		return native.ErrNameNotResolved
	case errors.As(err, &certErr), errors.As(err, &unkAuth), errors.As(err, &hostErr):
		return native.ErrSecureFailure
	case errors.Is(err, syscall.ECONNREFUSED), errors.Is(err, syscall.EHOSTUNREACH), errors.Is(err, syscall.ENETUNREACH):
		return native.ErrCannotConnect
	case errors.Is(err, syscall.ECONNRESET), errors.Is(err, syscall.ECONNABORTED), errors.Is(err, syscall.EPIPE),
		errors.Is(err, io.ErrUnexpectedEOF), errors.Is(err, io.EOF):
		return native.ErrConnectionError
	case errors.As(err, &netErr) && netErr.Timeout():
		return native.ErrTimeout
	case errors.As(err, &opErr) && opErr.Op == "dial":
		return native.ErrCannotConnect
	case strings.Contains(err.Error(), "malformed HTTP"):
		return native.ErrInvalidServerResponse
	case strings.Contains(err.Error(), "header"):
		return native.ErrInvalidHeader
	default:
		return native.ErrConnectionError
	}
}
