// Copyright 2021 The httpx Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

// Package metrics exports Prometheus metrics for nativehttp clients.
//
//	m := metrics.New("myapp")
//	prometheus.MustRegister(m)
//	handlers := &nativehttp.HandlerGroup{}
//	m.Install(handlers)
package metrics

import (
	"strconv"
	"time"

	"github.com/gogama/nativehttp"
	"github.com/gogama/nativehttp/ioerr"
	"github.com/gogama/nativehttp/request"
	"github.com/prometheus/client_golang/prometheus"
)

// Subsystem is the subsystem of every metric name.
const Subsystem = "nativehttp_client"

// Metrics is a prometheus.Collector fed by the handlers Install adds to
// a HandlerGroup. One Metrics may serve any number of clients; the
// backend name is a label.
type Metrics struct {
	attempts      *prometheus.CounterVec
	retries       *prometheus.CounterVec
	timeouts      *prometheus.CounterVec
	errors        *prometheus.CounterVec
	inFlight      *prometheus.GaugeVec
	duration      *prometheus.HistogramVec
	bytesSent     *prometheus.CounterVec
	bytesReceived *prometheus.CounterVec
}

// New returns metrics named under namespace.
func New(namespace string) *Metrics {
	return &Metrics{
		attempts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: Subsystem,
			Name:      "attempts_total",
			Help:      "Attempts completed, by status code or \"error\".",
		}, []string{"backend", "method", "code"}),
		retries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: Subsystem,
			Name:      "retries_total",
			Help:      "Attempts made after the first attempt of an execution.",
		}, []string{"backend"}),
		timeouts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: Subsystem,
			Name:      "attempt_timeouts_total",
			Help:      "Attempts that timed out.",
		}, []string{"backend"}),
		errors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: Subsystem,
			Name:      "errors_total",
			Help:      "Failures, by error kind.",
		}, []string{"backend", "kind"}),
		inFlight: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: Subsystem,
			Name:      "in_flight_attempts",
			Help:      "Attempts started and not yet completed.",
		}, []string{"backend"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: Subsystem,
			Name:      "attempt_duration_seconds",
			Help:      "Attempt duration from start to completion.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"backend", "method"}),
		bytesSent: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: Subsystem,
			Name:      "sent_bytes_total",
			Help:      "Request body bytes accepted by the native layer.",
		}, []string{"backend"}),
		bytesReceived: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: Subsystem,
			Name:      "received_bytes_total",
			Help:      "Response body bytes delivered to the caller.",
		}, []string{"backend"}),
	}
}

func (m *Metrics) collectors() []prometheus.Collector {
	return []prometheus.Collector{
		m.attempts,
		m.retries,
		m.timeouts,
		m.errors,
		m.inFlight,
		m.duration,
		m.bytesSent,
		m.bytesReceived,
	}
}

// Describe implements prometheus.Collector.
func (m *Metrics) Describe(ch chan<- *prometheus.Desc) {
	for _, c := range m.collectors() {
		c.Describe(ch)
	}
}

// Collect implements prometheus.Collector.
func (m *Metrics) Collect(ch chan<- prometheus.Metric) {
	for _, c := range m.collectors() {
		c.Collect(ch)
	}
}

type startKey struct{}

// Install adds the handlers that feed m to g.
func (m *Metrics) Install(g *nativehttp.HandlerGroup) {
	g.PushBack(nativehttp.BeforeAttempt, nativehttp.HandlerFunc(m.start))
	g.PushBack(nativehttp.AfterError, nativehttp.HandlerFunc(m.fail))
	g.PushBack(nativehttp.AfterAttemptTimeout, nativehttp.HandlerFunc(m.timeout))
	g.PushBack(nativehttp.AfterAttempt, nativehttp.HandlerFunc(m.end))
}

func (m *Metrics) start(_ nativehttp.Event, e *request.Execution) {
	m.inFlight.WithLabelValues(e.Backend).Inc()
	if e.Attempt > 0 {
		m.retries.WithLabelValues(e.Backend).Inc()
	}
	e.SetValue(startKey{}, time.Now())
}

func (m *Metrics) fail(_ nativehttp.Event, e *request.Execution) {
	m.errors.WithLabelValues(e.Backend, ioerr.KindOf(e.Err).String()).Inc()
}

func (m *Metrics) timeout(_ nativehttp.Event, e *request.Execution) {
	m.timeouts.WithLabelValues(e.Backend).Inc()
}

func (m *Metrics) end(_ nativehttp.Event, e *request.Execution) {
	method := e.Plan.Method.String()
	m.inFlight.WithLabelValues(e.Backend).Dec()
	if start, ok := e.Value(startKey{}).(time.Time); ok {
		m.duration.WithLabelValues(e.Backend, method).Observe(time.Since(start).Seconds())
	}
	code := "error"
	if e.Err == nil && e.StatusCode > 0 {
		code = strconv.Itoa(e.StatusCode)
	}
	m.attempts.WithLabelValues(e.Backend, method, code).Inc()
	m.bytesSent.WithLabelValues(e.Backend).Add(float64(e.BytesSent))
	m.bytesReceived.WithLabelValues(e.Backend).Add(float64(e.BytesReceived))
}
