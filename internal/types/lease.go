package types

import "context"

type leaseHookKey struct{}

// WithLeaseHook returns a context carrying fn, to be invoked via
// NotifyLeased once the solve has actually obtained a page slot. The
// scheduler uses this to hold a task in pending until it owns pool
// capacity, so the number of running tasks never exceeds the pool.
func WithLeaseHook(ctx context.Context, fn func()) context.Context {
	return context.WithValue(ctx, leaseHookKey{}, fn)
}

// NotifyLeased invokes the hook installed by WithLeaseHook, if any.
func NotifyLeased(ctx context.Context) {
	if fn, ok := ctx.Value(leaseHookKey{}).(func()); ok {
		fn()
	}
}
