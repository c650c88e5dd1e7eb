package frame

import "context"

type indexKey struct{}

// WithIndex returns a context carrying the sequence index of the frame being
// annotated. Workers attach it before calling the annotate capability.
func WithIndex(ctx context.Context, index uint64) context.Context {
	return context.WithValue(ctx, indexKey{}, index)
}

// IndexFromContext returns the sequence index attached by WithIndex.
func IndexFromContext(ctx context.Context) (uint64, bool) {
	idx, ok := ctx.Value(indexKey{}).(uint64)
	return idx, ok
}
