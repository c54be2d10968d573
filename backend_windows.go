// Copyright 2021 The httpx Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

//go:build windows

package nativehttp

import (
	"github.com/gogama/nativehttp/backend"
	"github.com/gogama/nativehttp/backend/callback"
	"github.com/gogama/nativehttp/ioerr"
	"github.com/gogama/nativehttp/native/winhttp"
)

// DefaultBackend returns the callback backend over winhttp.dll.
func DefaultBackend() (backend.Backend, error) {
	e, err := winhttp.New()
	if err != nil {
		return nil, ioerr.FromNative("open", err)
	}
	return callback.New("winhttp", e), nil
}
