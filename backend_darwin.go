// Copyright 2021 The httpx Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

//go:build darwin

package nativehttp

import (
	"github.com/gogama/nativehttp/backend"
	"github.com/gogama/nativehttp/backend/stream"
)

// DarwinBackendName is the name of the darwin default backend. Package
// cfnet models the CFNetwork stream API but performs its exchanges
// with net/http, so requests do not go through CFNetwork itself.
const DarwinBackendName = "cfnet-emulated"

// DefaultBackend returns the stream backend on the process-wide run
// loop.
func DefaultBackend() (backend.Backend, error) {
	return stream.New(DarwinBackendName, nil), nil
}
