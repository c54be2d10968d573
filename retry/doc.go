// Copyright 2021 The httpx Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

// Package retry provides flexible policies for retrying failed attempts
// during a request plan execution, and how long to wait before
// retrying.
//
// Backends never retry on their own. Retrying is a caller decision made
// by nativehttp.Client.Do through a Policy, and a plan whose body is a
// streaming source is never retried.
//
// The interface Policy defines a retry Policy. A Policy instance can be
// constructed using NewPolicy by providing a decision-maker, Decider,
// and a wait time calculator, Waiter. Both Decider and Waiter have
// constructors for common use cases, so that a useful policy can be
// quickly assembled:
//
//	decider := retry.Times(3).
//		And(retry.Before(5 * time.Second)).
//		And(retry.StatusCode(503).Or(retry.Kind(ioerr.TimedOut)))
//	waiter := retry.NewExpWaiter(100*time.Millisecond, 2*time.Second, time.Now())
//	policy := retry.NewPolicy(decider, waiter)
//
// If the built-in functionality is insufficient, fully custom retry
// policies can be created by via custom implementations of Decider,
// Waiter, or Policy.
package retry
