// Package proxy loads pluggable artifacts through the ArtifactFactory
// capability and wraps them in per-role decorators that publish the injection
// context and normalize failures on every call.
package proxy

import (
	"context"

	model "github.com/tigerroll/stepcore/pkg/batch/core/domain/model"
)

// InjectionContext is what an artifact may see while it is being constructed or
// while one of its methods runs.
type InjectionContext struct {
	JobContext  *model.JobContext
	StepContext *model.StepContext
	// Properties are the resolved properties of the artifact reference.
	Properties map[string]string
}

// ForRef returns a copy of ic carrying the properties declared on ref.
// A nil ic yields a context with properties only.
func (ic *InjectionContext) ForRef(ref *model.RefElement) *InjectionContext {
	out := &InjectionContext{}
	if ic != nil {
		*out = *ic
	}
	if ref != nil {
		out.Properties = ref.Properties.ToMap()
	} else {
		out.Properties = map[string]string{}
	}
	return out
}

// Property returns the named artifact property.
func (ic *InjectionContext) Property(name string) (string, bool) {
	if ic == nil {
		return "", false
	}
	v, ok := ic.Properties[name]
	return v, ok
}

type injectionContextKey struct{}

// WithInjectionContext returns a child of ctx carrying ic. Nested values shadow
// outer ones; the outer value is visible again once the child context is
// no longer used.
func WithInjectionContext(ctx context.Context, ic *InjectionContext) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, injectionContextKey{}, ic)
}

// InjectionContextFrom returns the innermost InjectionContext carried by ctx.
func InjectionContextFrom(ctx context.Context) (*InjectionContext, bool) {
	if ctx == nil {
		return nil, false
	}
	ic, ok := ctx.Value(injectionContextKey{}).(*InjectionContext)
	return ic, ok && ic != nil
}
