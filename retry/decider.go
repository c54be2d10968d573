// Copyright 2021 The httpx Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

package retry

import (
	"time"

	"github.com/gogama/nativehttp/ioerr"
	"github.com/gogama/nativehttp/request"
	"github.com/gogama/nativehttp/transient"
)

// A Decider decides if a retry should be done.
//
// Implementations of Decider must be safe for concurrent use by
// multiple goroutines.
//
// Use the built-in constructors Times, StatusCode, Kind, and Before,
// and the built-in deciders TransientErr and Replayable; or implement
// your Decider. Use DeciderFunc to convert an ordinary function into a
// Decider, and to compose deciders logically using DeciderFunc.And and
// DeciderFunc.Or.
type Decider interface {
	Decide(e *request.Execution) bool
}

// The DeciderFunc type is an adapter to allow the use of ordinary
// functions as retry deciders. It implements the Decider interface, and
// also provides the logical composition methods And and Or.
//
// Every DeciderFunc must be safe for concurrent use by multiple
// goroutines.
type DeciderFunc func(e *request.Execution) bool

// DefaultTimes is the number of times DefaultPolicy will retry.
const DefaultTimes = 5

// DefaultDecider is a general-purpose retry decider suitable for
// common use cases. It will allow up to DefaultTimes retries (i.e. up
// to 6 total attempts) of a plan whose body can be replayed, and will
// retry in the case of a transient error (TransientErr) or if a
// response head is received with one of the following status codes:
// 429 (Too Many Requests); 502 (Bad Gateway); 503 (Service
// Unavailable); or 504 (Gateway Timeout).
var DefaultDecider = Times(DefaultTimes).And(Replayable).And(StatusCode(429, 502, 503, 504).Or(TransientErr))

// TransientErr is a decider that indicates a retry if the current
// error is transient according to transient.Categorize.
//
// TransientErr only looks at the error, so it will always return false
// if a response head was received without error. Compose it with other
// deciders, for example a status code decider constructed with
// StatusCode, to get more complex functionality.
var TransientErr DeciderFunc = transientErr

// Replayable is a decider that returns true if the execution's plan
// body can be sent again. A plan with a streaming body source is only
// ever attempted once.
var Replayable DeciderFunc = replayable

// Decide returns true if a retry should be done, and false otherwise,
// after examining the current request plan execution state.
func (f DeciderFunc) Decide(e *request.Execution) bool {
	return f(e)
}

// And composes two retry deciders into a new decider which returns true
// if both sub-deciders return true, and false otherwise.
//
// Short-circuit logic is used, so g will not be evaluated if f returns
// false.
func (f DeciderFunc) And(g DeciderFunc) DeciderFunc {
	return func(e *request.Execution) bool {
		return f(e) && g(e)
	}
}

// Or composes two retry deciders into a new decider which returns
// true if either of the two sub-deciders returns true, but false if
// they both return false.
//
// Short-circuit logic is used, so g will not be evaluated if f returns
// true.
func (f DeciderFunc) Or(g DeciderFunc) DeciderFunc {
	return func(e *request.Execution) bool {
		return f(e) || g(e)
	}
}

// Times constructs a retry decider which allows up to n retries. The
// returned decider returns true while the execution attempt index
// e.Attempt is less than n, and false otherwise.
func Times(n int) DeciderFunc {
	return func(e *request.Execution) bool {
		return e.Attempt < n
	}
}

// Before constructs a retry decider allowing retries until a certain
// amount of time has elapsed since the start of the request plan
// execution. The returned decider returns true while the execution
// duration is less than d, and false afterward.
func Before(d time.Duration) DeciderFunc {
	return func(e *request.Execution) bool {
		return e.Duration() < d
	}
}

// StatusCode constructs a retry decider allowing retries based on the
// response status code. If the most recent attempt within the plan
// execution received a response head, and its status code is contained
// in the list ss, the decider returns true. Otherwise, it returns
// false.
func StatusCode(ss ...int) DeciderFunc {
	ss2 := make([]int, len(ss))
	copy(ss2, ss)
	return func(e *request.Execution) bool {
		for _, s := range ss2 {
			if e.StatusCode == s {
				return true
			}
		}
		return false
	}
}

// Kind constructs a retry decider allowing retries based on the kind of
// native I/O failure. The returned decider returns true if the most
// recent attempt failed with an error whose ioerr.Kind is one of kinds.
func Kind(kinds ...ioerr.Kind) DeciderFunc {
	kinds2 := make([]ioerr.Kind, len(kinds))
	copy(kinds2, kinds)
	return func(e *request.Execution) bool {
		if e.Err == nil {
			return false
		}
		k := ioerr.KindOf(e.Err)
		for _, kind := range kinds2 {
			if k == kind {
				return true
			}
		}
		return false
	}
}

func transientErr(e *request.Execution) bool {
	return transient.Categorize(e.Err) != transient.Not
}

func replayable(e *request.Execution) bool {
	return e.Plan == nil || e.Plan.Replayable()
}
