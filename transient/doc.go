// Copyright 2021 The httpx Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

// Package transient classifies errors from native HTTP exchanges as
// transient or non-transient. This is handy for writing retry policies,
// and for other purposes such as bucketing error metrics.
//
// Errors from the native layer are classified by their ioerr kind, and
// plain Go errors by their Timeout method and POSIX error number.
package transient
