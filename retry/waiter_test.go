// Copyright 2021 The httpx Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

package retry

import (
	"fmt"
	"math"
	"math/rand"
	"net/http"
	"testing"
	"time"

	"github.com/gogama/nativehttp/request"
	"github.com/stretchr/testify/assert"
)

func TestDefaultWaiter(t *testing.T) {
	max := []time.Duration{
		50 * time.Millisecond,
		100 * time.Millisecond,
		200 * time.Millisecond,
		400 * time.Millisecond,
		800 * time.Millisecond,
		1 * time.Second,
		1 * time.Second,
		1 * time.Second,
		1 * time.Second,
		1 * time.Second,
	}
	for i := 0; i < len(max); i++ {
		wait := DefaultWaiter.Wait(&request.Execution{Attempt: i})
		assert.GreaterOrEqual(t, wait, time.Duration(0))
		assert.LessOrEqual(t, wait, max[i])
	}
}

func TestNewExpWaiter(t *testing.T) {
	base, max := 1*time.Millisecond, 1*time.Hour
	t.Run("invalid base", func(t *testing.T) {
		assert.Panics(t, func() {
			NewExpWaiter(time.Duration(-1), max, nil)
		}, "negative base")
		assert.Panics(t, func() {
			NewExpWaiter(time.Duration(0), max, nil)
		}, "zero base")
	})
	t.Run("invalid max", func(t *testing.T) {
		assert.Panics(t, func() {
			NewExpWaiter(time.Duration(2), time.Duration(1), nil)
		}, "max less than base")
	})
	t.Run("invalid jitter", func(t *testing.T) {
		assert.Panics(t, func() {
			NewExpWaiter(base, max, float64(1))
		}, "float64")
		var nilRand *rand.Rand
		assert.Panics(t, func() {
			NewExpWaiter(base, max, nilRand)
		}, "nil *rand.Rand")
	})
	t.Run("no jitter", func(t *testing.T) {
		var j *jitterExpWaiter
		j = newJitterExpWaiter(t, base, max, nil, "explicit nil")
		assert.Nil(t, j.rand, "explicit nil")
		var s rand.Source
		j = newJitterExpWaiter(t, base, max, s, "nil rand.Source")
		assert.Nil(t, j.rand, "nil rand.Source")
		for i := 0; i < 10; i++ {
			ceil := 1 << i
			assert.Equal(t, time.Duration(ceil)*time.Millisecond, j.Wait(&request.Execution{Attempt: i}))
		}
		assert.Equal(t, max, j.Wait(&request.Execution{Attempt: 25}))
		assert.Equal(t, max, j.Wait(&request.Execution{Attempt: 1000}))
		assert.Equal(t, max, j.Wait(&request.Execution{Attempt: math.MaxInt64}))
	})
	t.Run("with jitter", func(t *testing.T) {
		jitters := []struct {
			name  string
			value interface{}
		}{
			{"zero time.Time", time.Time{}},
			{"time.Now()", time.Now()},
			{"int", 1},
			{"int64", int64(1)},
			{"rand.Source", rand.NewSource(0)},
			{"*rand.Rand", rand.New(rand.NewSource(0))},
		}
		for i, jitter := range jitters {
			t.Run(fmt.Sprintf("jitters[%d]=%s", i, jitter.name), func(t *testing.T) {
				w := NewExpWaiter(base, max, jitter.value)
				for j := 0; j < 100; j++ {
					d := w.Wait(&request.Execution{Attempt: j})
					assert.GreaterOrEqual(t, d, time.Duration(0))
					assert.LessOrEqual(t, d, max)
				}
			})
		}
	})
	t.Run("concurrent rand.Source usage", func(t *testing.T) {
		n := 1000
		w := NewExpWaiter(base, max, 0)
		waitChan := make(chan struct {
			goroutine int
			attempt   int
			wait      time.Duration
		},
		)
		doneChan := make(chan int)
		for i := 0; i < n; i++ {
			goroutine := i
			go func() {
				for j := 0; j < 22; j++ {
					waitChan <- struct {
						goroutine int
						attempt   int
						wait      time.Duration
					}{
						goroutine: goroutine,
						attempt:   j,
						wait:      w.Wait(&request.Execution{Attempt: j}),
					}
				}
				doneChan <- goroutine
			}()
		}
		done := map[int]bool{}
		total := time.Duration(0)
		for len(done) < n {
			select {
			case x := <-doneChan:
				done[x] = true
			case y := <-waitChan:
				var max time.Duration
				if y.attempt < 22 {
					max = (1 << y.attempt) * time.Millisecond
				} else {
					max = time.Hour
				}
				m := fmt.Sprintf("goroutine[%d].attempt[%d]: wait should be between 0 and %d",
					y.goroutine, y.attempt, max)
				total += y.wait
				assert.GreaterOrEqual(t, y.wait, time.Duration(0), m)
				assert.LessOrEqual(t, y.wait, max, m)
			}
		}
		close(waitChan)
		close(doneChan)
		assert.Greater(t, total, time.Duration(0))
	})
}

func newJitterExpWaiter(t *testing.T, base, max time.Duration, jitter interface{}, message string) *jitterExpWaiter {
	j := NewExpWaiter(base, max, jitter)
	assert.IsType(t, &jitterExpWaiter{}, j, message)
	return j.(*jitterExpWaiter)
}

func TestNewFixedWaiter(t *testing.T) {
	w := NewFixedWaiter(3 * time.Second)
	assert.Equal(t, 3*time.Second, w.Wait(&request.Execution{}))
	assert.Equal(t, 3*time.Second, w.Wait(&request.Execution{Attempt: 10}))
}

func TestNewRetryAfterWaiter(t *testing.T) {
	assert.PanicsWithValue(t, "nativehttp/retry: nil fallback waiter", func() {
		NewRetryAfterWaiter(nil, time.Minute)
	})
	now := time.Date(2021, 6, 1, 12, 0, 0, 0, time.UTC)
	w := NewRetryAfterWaiter(NewFixedWaiter(7*time.Millisecond), time.Minute).(*retryAfterWaiter)
	w.now = func() time.Time { return now }
	testCases := []struct {
		name  string
		value string
		want  time.Duration
	}{
		{"absent", "", 7 * time.Millisecond},
		{"seconds", "3", 3 * time.Second},
		{"capped", "3600", time.Minute},
		{"negative", "-1", 7 * time.Millisecond},
		{"date", now.Add(10 * time.Second).Format(http.TimeFormat), 10 * time.Second},
		{"past date", now.Add(-time.Hour).Format(http.TimeFormat), 0},
		{"garbage", "soon", 7 * time.Millisecond},
	}
	for _, testCase := range testCases {
		t.Run(testCase.name, func(t *testing.T) {
			e := &request.Execution{Header: request.ResponseHeader{}}
			if testCase.value != "" {
				e.Header.Add("Retry-After", testCase.value)
			}
			assert.Equal(t, testCase.want, w.Wait(e))
		})
	}
}
