// Copyright 2021 The httpx Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

package request

import (
	"errors"
	"fmt"
	"net"
	urlpkg "net/url"
	"strconv"
	"strings"

	"golang.org/x/net/idna"
)

// ErrUnsupportedScheme is returned by TargetOf for URLs whose scheme is
// neither http nor https.
var ErrUnsupportedScheme = errors.New("nativehttp/request: unsupported URL scheme")

// A Target is a URL broken into the components native transports take
// separately.
type Target struct {
	// Secure is true for https.
	Secure bool
	// Host is the ASCII host name, or an IP address without brackets.
	Host string
	// Port is the explicit port, or zero for the scheme default.
	Port uint16
	// Path is the escaped path and query, never empty.
	Path string
}

// TargetOf splits u into native components. International host names
// are converted to their ASCII form.
func TargetOf(u *urlpkg.URL) (Target, error) {
	var t Target
	switch strings.ToLower(u.Scheme) {
	case "http":
	case "https":
		t.Secure = true
	default:
		return Target{}, fmt.Errorf("%w: %q", ErrUnsupportedScheme, u.Scheme)
	}

	host := u.Hostname()
	if host == "" {
		return Target{}, errors.New("nativehttp/request: URL has no host")
	}
	if net.ParseIP(host) == nil {
		ascii, err := idna.Lookup.ToASCII(host)
		if err != nil {
			return Target{}, fmt.Errorf("nativehttp/request: invalid host %q: %w", host, err)
		}
		host = ascii
	}
	t.Host = host

	if p := u.Port(); p != "" {
		n, err := strconv.ParseUint(p, 10, 16)
		if err != nil || n == 0 {
			return Target{}, fmt.Errorf("nativehttp/request: invalid port %q", p)
		}
		t.Port = uint16(n)
	}

	t.Path = u.EscapedPath()
	if t.Path == "" {
		t.Path = "/"
	}
	if u.RawQuery != "" {
		t.Path += "?" + u.RawQuery
	}
	return t, nil
}

// ResolvedPort returns the explicit port, or 80 or 443 by scheme.
func (t Target) ResolvedPort() uint16 {
	switch {
	case t.Port != 0:
		return t.Port
	case t.Secure:
		return 443
	default:
		return 80
	}
}

// Authority returns host:port, with the scheme default port filled in.
// Transports use it as a connection identity.
func (t Target) Authority() string {
	return net.JoinHostPort(t.Host, strconv.Itoa(int(t.ResolvedPort())))
}
