// Copyright 2021 The httpx Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

package nativehttp

// An Event identifies the event type when installing or running a
// Handler. Install event handlers in a Client to extend it with custom
// functionality.
//
// Every execution, whether made with Client.Do or with Request.Send,
// fires its events in the order they are declared here. A streamed
// response fires AfterBody or AfterError from the goroutine calling
// Read, and AfterClose and the events after it from the goroutine
// calling Close.
type Event int

const (
	// BeforeExecutionStart identifies the event that occurs before the
	// plan execution starts.
	//
	// When Client fires BeforeExecutionStart, the execution is
	// non-nil but the only fields that have been set are the plan, the
	// ID, and the backend name.
	BeforeExecutionStart Event = iota
	// BeforeAttempt identifies the event that occurs before each
	// individual attempt during the plan execution.
	//
	// When Client fires BeforeAttempt, the execution's Attempt field
	// holds the index of the attempt about to be made, and the per
	// attempt fields have been cleared.
	BeforeAttempt
	// BeforeSend identifies the event that occurs just before the plan
	// is handed to the native backend, after any rate limiting wait.
	//
	// BeforeSend handlers may change the plan's Header, for example to
	// sign the request or to propagate a trace context.
	BeforeSend
	// AfterHeaders identifies the event that occurs when the native
	// backend reports the response head.
	//
	// When Client fires AfterHeaders, the execution's StatusCode,
	// Header, and BytesSent fields are set.
	AfterHeaders
	// AfterBody identifies the event that occurs when the whole response
	// body has been delivered.
	//
	// When Client fires AfterBody, BytesReceived holds the body length.
	AfterBody
	// AfterError identifies the event that occurs when sending the
	// request or receiving the response fails.
	//
	// When Client fires AfterError, the execution's Err field is set.
	// AfterError fires at most once per attempt.
	AfterError
	// AfterClose identifies the event that occurs when the response of
	// an attempt is closed, releasing its native request.
	AfterClose
	// AfterAttemptTimeout identifies the event that occurs after an
	// attempt failed because of a timeout error, whether the native
	// layer or the attempt's context deadline reported it.
	//
	// When Client fires AfterAttemptTimeout, the execution's error
	// field is set to the timeout error, and its attempt timeout
	// counter has been incremented.
	AfterAttemptTimeout
	// AfterAttempt identifies the event that occurs after an attempt is
	// concluded, regardless of whether it concluded successfully or
	// not.
	//
	// Note that AfterAttempt always fires on every attempt, regardless
	// of whether it ended in error, and that it runs before the retry
	// policy is consulted for a retry decision.
	AfterAttempt
	// AfterPlanTimeout identifies the event that occurs after a timeout
	// on the request plan level, not just the attempt level (i.e. the
	// context deadline on the plan's context is exceeded). A plan
	// timeout can be detected either at the same time as an attempt
	// timeout, or during the retry wait period.
	//
	// Note that AfterPlanTimeout always occurs after AfterAttempt,
	// even if the plan timeout was actually detected at the same time
	// as an attempt timeout.
	AfterPlanTimeout
	// AfterExecutionEnd identifies the event that occurs after the plan
	// execution ends.
	//
	// When Client fires AfterExecutionEnd, the execution is in
	// the same state it was in after the final attempt (and last
	// AfterAttempt event) EXCEPT that the end time is set to the time
	// the execution ended.
	AfterExecutionEnd
	// eventSentinel provides the total number of events typed as an
	// Event.
	eventSentinel

	// numEvents provides the total number of events types as an int.
	numEvents = int(eventSentinel)
)

var eventNames = []string{
	"BeforeExecutionStart",
	"BeforeAttempt",
	"BeforeSend",
	"AfterHeaders",
	"AfterBody",
	"AfterError",
	"AfterClose",
	"AfterAttemptTimeout",
	"AfterAttempt",
	"AfterPlanTimeout",
	"AfterExecutionEnd",
}

// Events returns a slice containing all events which can occur in a
// request plan execution by Client, in the order in which they would
// occur.
func Events() []Event {
	return []Event{
		BeforeExecutionStart,
		BeforeAttempt,
		BeforeSend,
		AfterHeaders,
		AfterBody,
		AfterError,
		AfterClose,
		AfterAttemptTimeout,
		AfterAttempt,
		AfterPlanTimeout,
		AfterExecutionEnd,
	}
}

// Name returns the name of the event.
func (evt Event) Name() string {
	return eventNames[int(evt)]
}

// String returns the name of the event.
func (evt Event) String() string {
	return evt.Name()
}
