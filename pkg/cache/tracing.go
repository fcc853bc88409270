package cache

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

type tracedBackend struct {
	Backend
	tracer trace.Tracer
}

// WithTracing wraps b so every operation runs inside a span from tracer.
func WithTracing(b Backend, tracer trace.Tracer) Backend {
	return &tracedBackend{Backend: b, tracer: tracer}
}

func (t *tracedBackend) start(ctx context.Context, op string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return t.tracer.Start(ctx, "cache."+op, trace.WithAttributes(attrs...))
}

func end(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}

func (t *tracedBackend) Save(ctx context.Context, id string, payload []byte, tags []string, opts ...SaveOption) (err error) {
	ctx, span := t.start(ctx, "save",
		attribute.String("cache.id", id),
		attribute.StringSlice("cache.tags", tags),
		attribute.Int("cache.payload_size", len(payload)),
	)
	defer func() { end(span, err) }()
	return t.Backend.Save(ctx, id, payload, tags, opts...)
}

func (t *tracedBackend) Load(ctx context.Context, id string) (payload []byte, found bool, err error) {
	ctx, span := t.start(ctx, "load", attribute.String("cache.id", id))
	defer func() {
		span.SetAttributes(attribute.Bool("cache.hit", found))
		end(span, err)
	}()
	return t.Backend.Load(ctx, id)
}

func (t *tracedBackend) Remove(ctx context.Context, id string) (err error) {
	ctx, span := t.start(ctx, "remove", attribute.String("cache.id", id))
	defer func() { end(span, err) }()
	return t.Backend.Remove(ctx, id)
}

func (t *tracedBackend) InvalidateTags(ctx context.Context, tags []string) (err error) {
	ctx, span := t.start(ctx, "invalidate_tags", attribute.StringSlice("cache.tags", tags))
	defer func() { end(span, err) }()
	return t.Backend.InvalidateTags(ctx, tags)
}

func (t *tracedBackend) InvalidateExpired(ctx context.Context) (err error) {
	ctx, span := t.start(ctx, "invalidate_expired")
	defer func() { end(span, err) }()
	return t.Backend.InvalidateExpired(ctx)
}

func (t *tracedBackend) Clear(ctx context.Context) (err error) {
	ctx, span := t.start(ctx, "clear")
	defer func() { end(span, err) }()
	return t.Backend.Clear(ctx)
}
