// Copyright 2021 The httpx Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

// Package trace records an OpenTelemetry client span for every attempt
// a nativehttp client makes, and propagates the span context to the
// server in the request header.
//
//	handlers := &nativehttp.HandlerGroup{}
//	trace.Install(handlers)
//	client, err := nativehttp.ClientBuilder{Handlers: handlers}.Build()
package trace

import (
	"context"
	"net/http"

	"github.com/gogama/nativehttp"
	"github.com/gogama/nativehttp/request"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
)

// TracerName is the instrumentation name of the tracer used when no
// TracerProvider option is given.
const TracerName = "github.com/gogama/nativehttp/trace"

// Attribute keys set on attempt spans.
const (
	AttrMethod        = "http.request.method"
	AttrURL           = "url.full"
	AttrHost          = "server.address"
	AttrStatusCode    = "http.response.status_code"
	AttrAttempt       = "http.request.resend_count"
	AttrRequestID     = "nativehttp.request_id"
	AttrBackend       = "nativehttp.backend"
	AttrBytesSent     = "nativehttp.bytes_sent"
	AttrBytesReceived = "nativehttp.bytes_received"
)

type config struct {
	provider   trace.TracerProvider
	propagator propagation.TextMapPropagator
}

// An Option configures Install.
type Option func(*config)

// WithTracerProvider sets the provider spans are started from. The
// default is the global provider.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(c *config) {
		c.provider = tp
	}
}

// WithPropagator sets the propagator that writes the span context into
// the request header. The default is the global propagator.
func WithPropagator(p propagation.TextMapPropagator) Option {
	return func(c *config) {
		c.propagator = p
	}
}

type spanKey struct{}

type ctxKey struct{}

type tracer struct {
	tracer     trace.Tracer
	propagator propagation.TextMapPropagator
}

// Install adds the tracing handlers to g.
func Install(g *nativehttp.HandlerGroup, opts ...Option) {
	c := config{}
	for _, opt := range opts {
		opt(&c)
	}
	if c.provider == nil {
		c.provider = otel.GetTracerProvider()
	}
	if c.propagator == nil {
		c.propagator = otel.GetTextMapPropagator()
	}
	t := &tracer{
		tracer:     c.provider.Tracer(TracerName),
		propagator: c.propagator,
	}
	g.PushBack(nativehttp.BeforeAttempt, nativehttp.HandlerFunc(t.start))
	g.PushBack(nativehttp.BeforeSend, nativehttp.HandlerFunc(t.inject))
	g.PushBack(nativehttp.AfterHeaders, nativehttp.HandlerFunc(t.headers))
	g.PushBack(nativehttp.AfterError, nativehttp.HandlerFunc(t.fail))
	g.PushBack(nativehttp.AfterAttempt, nativehttp.HandlerFunc(t.end))
}

func (t *tracer) start(_ nativehttp.Event, e *request.Execution) {
	p := e.Plan
	attrs := []attribute.KeyValue{
		attribute.String(AttrMethod, p.Method.String()),
		attribute.String(AttrRequestID, e.ID),
		attribute.String(AttrBackend, e.Backend),
	}
	if p.URL != nil {
		attrs = append(attrs,
			attribute.String(AttrURL, redacted(p)),
			attribute.String(AttrHost, p.URL.Hostname()),
		)
	}
	if e.Attempt > 0 {
		attrs = append(attrs, attribute.Int(AttrAttempt, e.Attempt))
	}
	ctx, span := t.tracer.Start(p.Context(), p.Method.String(),
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(attrs...),
	)
	e.SetValue(spanKey{}, span)
	e.SetValue(ctxKey{}, ctx)
}

func (t *tracer) inject(_ nativehttp.Event, e *request.Execution) {
	ctx, ok := e.Value(ctxKey{}).(context.Context)
	if !ok {
		return
	}
	if e.Plan.Header == nil {
		e.Plan.Header = make(http.Header)
	}
	t.propagator.Inject(ctx, propagation.HeaderCarrier(e.Plan.Header))
}

func (t *tracer) headers(_ nativehttp.Event, e *request.Execution) {
	span := spanOf(e)
	if span == nil {
		return
	}
	span.SetAttributes(attribute.Int(AttrStatusCode, e.StatusCode))
	if e.StatusCode >= 400 {
		span.SetStatus(codes.Error, http.StatusText(e.StatusCode))
	}
}

func (t *tracer) fail(_ nativehttp.Event, e *request.Execution) {
	span := spanOf(e)
	if span == nil || e.Err == nil {
		return
	}
	span.RecordError(e.Err)
	span.SetStatus(codes.Error, e.Err.Error())
}

func (t *tracer) end(_ nativehttp.Event, e *request.Execution) {
	span := spanOf(e)
	if span == nil {
		return
	}
	span.SetAttributes(
		attribute.Int64(AttrBytesSent, e.BytesSent),
		attribute.Int64(AttrBytesReceived, e.BytesReceived),
	)
	span.End()
	e.SetValue(spanKey{}, nil)
}

// SpanOf returns the span of the attempt underway in e, or nil.
func SpanOf(e *request.Execution) trace.Span {
	return spanOf(e)
}

func spanOf(e *request.Execution) trace.Span {
	span, _ := e.Value(spanKey{}).(trace.Span)
	return span
}

// redacted returns the plan URL without user info.
func redacted(p *request.Plan) string {
	u := *p.URL
	u.User = nil
	return u.String()
}
