// Copyright 2021 The httpx Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

package request

import (
	"context"
	"time"

	"github.com/gogama/nativehttp/transient"
	"github.com/google/uuid"
)

// An Execution represents the state of a single Plan execution.
//
// An Execution is created when a plan is sent. It is updated as the
// exchange progresses: when the response head arrives, as body bytes
// move, when an attempt fails and is retried, and when the exchange
// ends.
//
// Timeout and retry policies and event handlers may set values on an
// Execution using its SetValue method and read them back using the Value
// method. However, they should treat the structure's exported field
// values as immutable and leave them unmodified, as the execution state
// is vital to the correct functioning of the plan execution logic. The
// one exception is the plan's Header, which BeforeSend handlers may
// change, for example to sign the request.
type Execution struct {
	// Plan specifies the HTTP request plan being executed. It is never
	// nil.
	Plan *Plan

	// ID is a random identifier for the execution, useful to correlate
	// log lines and traces.
	ID string

	// Backend is the name of the backend sending the plan.
	Backend string

	// Start is the start time of the HTTP request plan execution. It
	// is assigned a non-zero value when the plan execution starts, and
	// this value remains constant thereafter.
	Start time.Time

	// End is the end time of the HTTP request plan execution. It
	// contains the zero value until the plan execution ends, when
	// it is set to the current time.
	End time.Time

	// Attempt is the zero-based number of the current attempt during
	// the plan execution. It is set to zero on the initial attempt, one
	// on the first retry, and so on.
	Attempt int

	// AttemptTimeouts is the count of the number of times an attempt
	// timed out during the execution.
	AttemptTimeouts int

	// StatusCode is the status code of the most recent response. It is
	// zero until a response head has been received in the current
	// attempt.
	StatusCode int

	// Header is the header of the most recent response. It is nil
	// until a response head has been received in the current attempt.
	Header ResponseHeader

	// Body is the complete response body, set only by executions that
	// buffer the body. It is nil while an attempt is underway and after
	// an attempt that failed.
	Body []byte

	// BytesSent is the number of request body bytes the native layer
	// has accepted in the current attempt.
	BytesSent int64

	// BytesReceived is the number of response body bytes delivered to
	// the caller in the current attempt.
	BytesReceived int64

	// Err indicates the error received while making the most recent
	// attempt. It will be nil if the most recent attempt ended
	// without an error, or if a current attempt is underway, or before
	// the execution starts.
	//
	// Whenever Err is non-nil, it has the type *url.Error.
	Err error

	// data holds values stored by event handlers through SetValue.
	data context.Context
}

// NewExecution returns an execution of p with a fresh ID.
func NewExecution(p *Plan, backend string) *Execution {
	return &Execution{
		Plan:    p,
		ID:      uuid.NewString(),
		Backend: backend,
	}
}

// Reset clears the per-attempt fields before a retry.
func (e *Execution) Reset() {
	e.StatusCode = 0
	e.Header = nil
	e.Body = nil
	e.BytesSent = 0
	e.BytesReceived = 0
	e.Err = nil
}

// Duration returns the duration of the execution.
//
// If the execution has not yet started, the duration is zero. If the
// execution has Ended, the duration returned is equal to End minus
// Start. Otherwise, it is equal to the current time minus Start. The
// return value is thus monotonically increasing over the life of
// the execution, and becomes static when the execution has ended.
func (e *Execution) Duration() time.Duration {
	if !e.Started() {
		return time.Duration(0)
	} else if !e.Ended() {
		return time.Since(e.Start)
	}

	return e.End.Sub(e.Start)
}

// Started indicates whether the execution has started.
func (e *Execution) Started() bool {
	return e.Start != (time.Time{})
}

// Ended indicates whether the execution has ended.
//
// If the return value is false, the execution is still in-flight. If
// the return value is true, then the execution is over, End is a
// non-zero time, and there will be no further changes to the execution.
func (e *Execution) Ended() bool {
	return e.End != (time.Time{})
}

// Timeout indicates whether Err currently contains a non-nil value
// which indicates a timeout, whether reported by the native layer or
// caused by a context deadline.
func (e *Execution) Timeout() bool {
	cat := transient.Categorize(e.Err)
	return cat == transient.Timeout
}

// SetValue allows event handlers to store arbitrary data in the request
// plan execution.
//
// The key must follow the same rules as the key parameter in
// context.WithValue, namely it:
//
// • it may not be nil;
//
// • it must be comparable;
//
// • it should not be of type string or any other built-in type to avoid
// collisions between different event handlers putting data into the
// same request execution.
func (e *Execution) SetValue(key, value interface{}) {
	ctx := e.data
	if ctx == nil {
		ctx = context.Background()
	}

	e.data = context.WithValue(ctx, key, value)
}

// Value returns the data value associated with this execution for key,
// or nil if there is no value associated with key.
func (e *Execution) Value(key interface{}) interface{} {
	ctx := e.data
	if ctx == nil {
		return nil
	}

	return ctx.Value(key)
}
