package source

import (
	"context"
	"fmt"
	"time"
)

// Adapter is the uniform fetch contract every provider client satisfies.
// Implementations own their pacing and retry policy; callers only see a
// single pass/fail outcome classified as transient or permanent.
type Adapter interface {
	Fetch(ctx context.Context, seriesID string, start time.Time, end *time.Time) ([]Observation, error)
}

// Router maps sources to long-lived adapter instances and carries the
// fallback mapping used when a source exhausts its quota mid-run. One
// adapter instance per source preserves provider-side rate-limit state
// across calls; the router is injected rather than held as process state.
type Router struct {
	adapters  map[Source]Adapter
	fallbacks map[Source]Source
}

// NewRouter builds an empty router.
func NewRouter() *Router {
	return &Router{
		adapters:  make(map[Source]Adapter),
		fallbacks: make(map[Source]Source),
	}
}

// Register binds an adapter instance to a source.
func (r *Router) Register(src Source, adapter Adapter) {
	r.adapters[src] = adapter
}

// SetFallback declares that series routed to src may be re-routed to alt
// when src reports quota exhaustion.
func (r *Router) SetFallback(src, alt Source) error {
	if src == alt {
		return fmt.Errorf("fallback for %s cannot be itself", src)
	}
	r.fallbacks[src] = alt
	return nil
}

// Adapter returns the client registered for src.
func (r *Router) Adapter(src Source) (Adapter, error) {
	adapter, ok := r.adapters[src]
	if !ok {
		return nil, fmt.Errorf("no adapter registered for source %s", src)
	}
	return adapter, nil
}

// Fallback returns the configured alternate source for src, if any.
func (r *Router) Fallback(src Source) (Source, bool) {
	alt, ok := r.fallbacks[src]
	return alt, ok
}
