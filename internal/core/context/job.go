package context

import "context"

type jobKey struct{}

// WithJob tags the context with the name of the running background job.
// Worker entry points set this so every log line carries the job name.
func WithJob(ctx context.Context, name string) context.Context {
	return context.WithValue(ctx, jobKey{}, name)
}

// GetJob returns the job name from context or empty string.
func GetJob(ctx context.Context) string {
	if v, ok := ctx.Value(jobKey{}).(string); ok {
		return v
	}
	return ""
}
