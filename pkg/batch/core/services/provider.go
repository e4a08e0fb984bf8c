package services

import (
	"reflect"

	"github.com/tigerroll/stepcore/pkg/batch/core/application/port"
)

// Provider constructs one capability implementation. Exactly one of the two
// constructors is usually set; when both are, WithRegistry is preferred.
type Provider struct {
	// WithRegistry receives the registry so the implementation can resolve
	// other capabilities, now or later.
	WithRegistry func(r *Registry) (port.BatchService, error)
	// NoArg is used when WithRegistry is nil.
	NoArg func() (port.BatchService, error)
}

// NoArgProvider adapts an infallible no-argument constructor.
func NoArgProvider(f func() port.BatchService) Provider {
	return Provider{NoArg: func() (port.BatchService, error) { return f(), nil }}
}

// RegistryProvider adapts an infallible constructor taking the registry.
func RegistryProvider(f func(*Registry) port.BatchService) Provider {
	return Provider{WithRegistry: func(r *Registry) (port.BatchService, error) { return f(r), nil }}
}

// CapabilityKey returns the type token identifying capability T.
func CapabilityKey[T port.BatchService]() reflect.Type {
	return reflect.TypeOf((*T)(nil)).Elem()
}

// FullName returns the fully qualified name of a capability type,
// e.g. "github.com/tigerroll/stepcore/pkg/batch/core/application/port.ThreadPoolService".
func FullName(t reflect.Type) string {
	if t.PkgPath() == "" {
		return t.String()
	}
	return t.PkgPath() + "." + t.Name()
}

// ShortName returns the unqualified name of a capability type, e.g. "ThreadPoolService".
func ShortName(t reflect.Type) string {
	if t.Name() == "" {
		return t.String()
	}
	return t.Name()
}

func isNilService(s port.BatchService) bool {
	if s == nil {
		return true
	}
	v := reflect.ValueOf(s)
	switch v.Kind() {
	case reflect.Ptr, reflect.Map, reflect.Slice, reflect.Func, reflect.Chan, reflect.Interface:
		return v.IsNil()
	}
	return false
}
