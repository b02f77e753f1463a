// Package util provides shared helpers for the gateway request pipeline.
package util

import (
	"context"
	"time"
)

// ctxKey is the type for context keys used by this package.
type ctxKey string

const (
	ctxKeyRoute     ctxKey = "route"
	ctxKeyStartTime ctxKey = "start_time"
)

// routeHolder carries the matched route ID. It is a pointer so the
// dispatcher can fill it in after upstream middlewares have already
// derived their contexts.
type routeHolder struct {
	id string
}

// ContextWithRouteSlot installs an empty route slot. Middlewares that
// want to observe the matched route install the slot before dispatch.
func ContextWithRouteSlot(ctx context.Context) context.Context {
	return context.WithValue(ctx, ctxKeyRoute, &routeHolder{})
}

// SetRoute records the matched route ID in the slot, if one is present.
func SetRoute(ctx context.Context, route string) {
	if h, ok := ctx.Value(ctxKeyRoute).(*routeHolder); ok {
		h.id = route
	}
}

// RouteFromContext returns the matched route ID, or "" when no route
// has been recorded.
func RouteFromContext(ctx context.Context) string {
	if h, ok := ctx.Value(ctxKeyRoute).(*routeHolder); ok {
		return h.id
	}
	return ""
}

// ContextWithStartTime adds the request start time to the context.
func ContextWithStartTime(ctx context.Context, t time.Time) context.Context {
	return context.WithValue(ctx, ctxKeyStartTime, t)
}

// StartTimeFromContext extracts the request start time from context.
func StartTimeFromContext(ctx context.Context) (time.Time, bool) {
	t, ok := ctx.Value(ctxKeyStartTime).(time.Time)
	return t, ok
}
