package log

import (
	"context"

	"github.com/rs/zerolog"
)

type ctxKey string

const jobIDKey ctxKey = "job_id"

// ContextWithJobID stores the provided job ID in the context.
func ContextWithJobID(ctx context.Context, id string) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, jobIDKey, id)
}

// JobIDFromContext extracts the job ID from context if present.
func JobIDFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	if v, ok := ctx.Value(jobIDKey).(string); ok {
		return v
	}
	return ""
}

// FromContext returns the base logger enriched with correlation fields from
// ctx. The pointer return keeps chained calls like FromContext(ctx).Info()
// addressable.
func FromContext(ctx context.Context) *zerolog.Logger {
	l := logger()
	if ctx != nil {
		if jid := JobIDFromContext(ctx); jid != "" {
			l = l.With().Str("job_id", jid).Logger()
		}
	}
	return &l
}

// WithComponentFromContext returns a logger annotated with the component name
// and enriched with correlation fields from ctx.
func WithComponentFromContext(ctx context.Context, component string) *zerolog.Logger {
	l := FromContext(ctx).With().Str("component", component).Logger()
	return &l
}
