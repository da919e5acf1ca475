package log

import "context"

// Hook contributes extra fields to every entry logged with a context.
type Hook interface {
	Apply(ctx context.Context, msg string, fields ...Field) []Field
}

type HookFunc func(ctx context.Context, msg string, fields ...Field) []Field

func (f HookFunc) Apply(ctx context.Context, msg string, fields ...Field) []Field {
	return f(ctx, msg, fields...)
}

type contextFieldsKey struct{}

// WithFields returns a context whose log entries carry fields.
func WithFields(ctx context.Context, fields ...Field) context.Context {
	existing, _ := ctx.Value(contextFieldsKey{}).([]Field)

	merged := make([]Field, 0, len(existing)+len(fields))
	merged = append(merged, existing...)
	merged = append(merged, fields...)

	return context.WithValue(ctx, contextFieldsKey{}, merged)
}

func contextFields(ctx context.Context, _ string, fields ...Field) []Field {
	if ctx == nil {
		return fields
	}

	if extra, ok := ctx.Value(contextFieldsKey{}).([]Field); ok {
		fields = append(fields, extra...)
	}

	return fields
}
