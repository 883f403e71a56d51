package security

import (
	"context"
	"sync/atomic"
)

type recordedKey struct{}

// WithRecordedMarker returns a context carrying a per-request flag that
// MarkRecorded sets. Monitor installs it so that responses already turned
// into events upstream are not recorded twice.
func WithRecordedMarker(ctx context.Context) context.Context {
	if _, ok := ctx.Value(recordedKey{}).(*atomic.Bool); ok {
		return ctx
	}
	return context.WithValue(ctx, recordedKey{}, new(atomic.Bool))
}

// MarkRecorded flags the request as already recorded.
func MarkRecorded(ctx context.Context) {
	if flag, ok := ctx.Value(recordedKey{}).(*atomic.Bool); ok {
		flag.Store(true)
	}
}

// Recorded reports whether MarkRecorded was called for this request.
func Recorded(ctx context.Context) bool {
	flag, ok := ctx.Value(recordedKey{}).(*atomic.Bool)
	return ok && flag.Load()
}
