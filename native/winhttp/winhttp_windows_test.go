// Copyright 2021 The httpx Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

//go:build windows

package winhttp

import (
	"testing"
	"time"
	"unsafe"

	"github.com/gogama/nativehttp/native"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEngine_Handles(t *testing.T) {
	e, err := New()
	require.NoError(t, err)

	s, err := e.Open(native.SessionOptions{UserAgent: "nativehttp-test", KeepAlive: 15 * time.Second})
	require.NoError(t, err)
	c, err := e.Connect(s, "localhost", native.DefaultPort)
	require.NoError(t, err)
	r, err := e.OpenRequest(c, "GET", "/", false)
	require.NoError(t, err)

	assert.NoError(t, e.AddRequestHeader(r, "X-Test: 1", false))
	assert.NoError(t, e.SetTimeouts(r, native.Uniform(time.Second)))
	assert.NoError(t, e.SetTimeouts(r, native.Timeouts{}))
	assert.NoError(t, e.SetContext(r, 42))
	assert.NoError(t, e.SetStatusCallback(r, func(native.Handle, uintptr, native.Status, native.StatusInfo) {}))
	assert.NotNil(t, e.callback(r))
	assert.NoError(t, e.SetStatusCallback(r, nil))
	assert.Nil(t, e.callback(r))
	assert.Equal(t, native.ErrInvalidParameter, e.WriteData(r, nil))

	assert.NotNil(t, engineOf(r), "hooked until closed")

	assert.NoError(t, e.CloseHandle(r))
	assert.NoError(t, e.CloseHandle(c))
	assert.NoError(t, e.CloseHandle(s))
	assert.Eventually(t, func() bool {
		return engineOf(r) == nil && e.handles.len() == 0
	}, 5*time.Second, 10*time.Millisecond, "released on handle closing")
}

func TestDecode(t *testing.T) {
	n := uint32(512)
	assert.Equal(t, native.StatusInfo{Length: 512}, decode(native.StatusDataAvailable, uintptr(unsafe.Pointer(&n)), 4))
	assert.Equal(t, native.StatusInfo{Length: 512}, decode(native.StatusWriteComplete, uintptr(unsafe.Pointer(&n)), 4))
	assert.Equal(t, native.StatusInfo{Length: 77}, decode(native.StatusReadComplete, 0, 77))
	r := asyncResult{result: 4, err: uint32(native.ErrCannotConnect)}
	assert.Equal(t, native.StatusInfo{Err: native.ErrCannotConnect}, decode(native.StatusRequestError, uintptr(unsafe.Pointer(&r)), uint32(unsafe.Sizeof(r))))
	assert.Equal(t, native.StatusInfo{}, decode(native.StatusHeadersAvailable, 0, 0))
}

func TestMillis(t *testing.T) {
	assert.Equal(t, uintptr(60000), millis(0, defaultConnect))
	assert.Equal(t, uintptr(1500), millis(1500*time.Millisecond, defaultConnect))
	assert.Equal(t, uintptr(1<<31-1), millis(1<<62, defaultConnect))
}
