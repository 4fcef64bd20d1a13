// Package traced wraps a kvmirror.Driver so every backing call records an
// OpenTelemetry span.
package traced

import (
	"context"
	"errors"

	"code.byted.org/khicago/kvmirror"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const instrumentationName = "code.byted.org/khicago/kvmirror/driver/traced"

// Driver decorates another driver with tracing.
type Driver struct {
	next   kvmirror.Driver
	tracer trace.Tracer
}

// Option customizes Wrap.
type Option func(*config)

type config struct {
	provider trace.TracerProvider
}

// WithTracerProvider selects the provider. The global provider is used by
// default.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(c *config) {
		if tp != nil {
			c.provider = tp
		}
	}
}

// Wrap returns next decorated with spans named "kvmirror.<op>".
func Wrap(next kvmirror.Driver, opts ...Option) *Driver {
	cfg := config{provider: otel.GetTracerProvider()}
	for _, opt := range opts {
		opt(&cfg)
	}
	return &Driver{next: next, tracer: cfg.provider.Tracer(instrumentationName)}
}

// Unwrap returns the decorated driver.
func (d *Driver) Unwrap() kvmirror.Driver { return d.next }

func (d *Driver) start(ctx context.Context, op string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return d.tracer.Start(ctx, "kvmirror."+op,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(attrs...))
}

// end records err on span. A miss is not a failure.
func end(span trace.Span, err error) {
	switch {
	case err == nil:
	case errors.Is(err, kvmirror.ErrNotFound):
		span.SetAttributes(attribute.Bool("kvmirror.hit", false))
	default:
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}

func (d *Driver) Get(ctx context.Context, key string) ([]byte, error) {
	ctx, span := d.start(ctx, "get", attribute.String("kvmirror.key", key))
	v, err := d.next.Get(ctx, key)
	end(span, err)
	return v, err
}

func (d *Driver) Set(ctx context.Context, key string, value []byte) error {
	ctx, span := d.start(ctx, "set",
		attribute.String("kvmirror.key", key),
		attribute.Int("kvmirror.bytes", len(value)))
	err := d.next.Set(ctx, key, value)
	end(span, err)
	return err
}

func (d *Driver) Delete(ctx context.Context, key string) error {
	ctx, span := d.start(ctx, "delete", attribute.String("kvmirror.key", key))
	err := d.next.Delete(ctx, key)
	end(span, err)
	return err
}

func (d *Driver) MGet(ctx context.Context, keys []string) (map[string][]byte, error) {
	ctx, span := d.start(ctx, "mget", attribute.Int("kvmirror.keys", len(keys)))
	out, err := d.next.MGet(ctx, keys)
	if err == nil {
		span.SetAttributes(attribute.Int("kvmirror.found", len(out)))
	}
	end(span, err)
	return out, err
}

func (d *Driver) MSet(ctx context.Context, pairs map[string][]byte) error {
	ctx, span := d.start(ctx, "mset", attribute.Int("kvmirror.keys", len(pairs)))
	err := d.next.MSet(ctx, pairs)
	end(span, err)
	return err
}

func (d *Driver) MDel(ctx context.Context, keys []string) error {
	ctx, span := d.start(ctx, "mdel", attribute.Int("kvmirror.keys", len(keys)))
	err := d.next.MDel(ctx, keys)
	end(span, err)
	return err
}

func (d *Driver) Keys(ctx context.Context, prefix string) ([]string, error) {
	ctx, span := d.start(ctx, "keys", attribute.String("kvmirror.prefix", prefix))
	keys, err := d.next.Keys(ctx, prefix)
	if err == nil {
		span.SetAttributes(attribute.Int("kvmirror.found", len(keys)))
	}
	end(span, err)
	return keys, err
}

func (d *Driver) Clear(ctx context.Context, prefix string) error {
	ctx, span := d.start(ctx, "clear", attribute.String("kvmirror.prefix", prefix))
	err := d.next.Clear(ctx, prefix)
	end(span, err)
	return err
}

var _ kvmirror.Driver = (*Driver)(nil)
