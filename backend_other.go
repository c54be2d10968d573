// Copyright 2021 The httpx Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

//go:build !windows && !darwin

package nativehttp

import (
	"github.com/gogama/nativehttp/backend"
	"github.com/gogama/nativehttp/backend/callback"
	"github.com/gogama/nativehttp/native/netengine"
)

// DefaultBackend returns the callback backend over the portable
// net/http engine.
func DefaultBackend() (backend.Backend, error) {
	return callback.New("netengine", netengine.New()), nil
}
