package proxy

import (
	"context"
	"fmt"
	"sort"

	"github.com/tigerroll/stepcore/pkg/batch/core/application/port"
	"github.com/tigerroll/stepcore/pkg/batch/support/util/exception"
)

// roleCheckers maps each role to a check against the value's method set.
// Methods promoted from embedded types count.
var roleCheckers = map[port.Role]func(interface{}) bool{
	port.RoleStepListener:        func(v interface{}) bool { _, ok := v.(port.StepListener); return ok },
	port.RoleJobListener:         func(v interface{}) bool { _, ok := v.(port.JobListener); return ok },
	port.RoleDecider:             func(v interface{}) bool { _, ok := v.(port.Decider); return ok },
	port.RoleBatchlet:            func(v interface{}) bool { _, ok := v.(port.Batchlet); return ok },
	port.RoleCheckpointAlgorithm: func(v interface{}) bool { _, ok := v.(port.CheckpointAlgorithm); return ok },
	port.RoleItemReader:          func(v interface{}) bool { _, ok := v.(port.ItemReader); return ok },
	port.RoleItemProcessor:       func(v interface{}) bool { _, ok := v.(port.ItemProcessor); return ok },
	port.RoleItemWriter:          func(v interface{}) bool { _, ok := v.(port.ItemWriter); return ok },
	port.RolePartitionMapper:     func(v interface{}) bool { _, ok := v.(port.PartitionMapper); return ok },
	port.RolePartitionReducer:    func(v interface{}) bool { _, ok := v.(port.PartitionReducer); return ok },
	port.RolePartitionAnalyzer:   func(v interface{}) bool { _, ok := v.(port.PartitionAnalyzer); return ok },
	port.RolePartitionCollector:  func(v interface{}) bool { _, ok := v.(port.PartitionCollector); return ok },
}

// Artifact is a loaded artifact together with the injection context its calls
// run under. Role views are obtained with the As* methods.
type Artifact struct {
	raw       interface{}
	name      string
	ic        *InjectionContext
	unwrapped map[string]struct{}
	roles     map[port.Role]struct{}
}

// Wrap detects every role raw fulfils and returns the wrapper. Methods listed in
// unwrapped return the delegate's error unchanged; all other methods normalize
// failures into a BatchError. If raw declares its roles, each declared role must
// be backed by its method set.
func Wrap(raw interface{}, ic *InjectionContext, unwrapped ...string) (*Artifact, error) {
	if raw == nil {
		return nil, exception.NewBatchErrorf(moduleName, "cannot wrap a nil artifact")
	}
	a := &Artifact{
		raw:       raw,
		name:      fmt.Sprintf("%T", raw),
		ic:        ic,
		unwrapped: make(map[string]struct{}, len(unwrapped)),
		roles:     make(map[port.Role]struct{}),
	}
	for _, m := range unwrapped {
		a.unwrapped[m] = struct{}{}
	}
	for role, check := range roleCheckers {
		if check(raw) {
			a.roles[role] = struct{}{}
		}
	}

	if d, ok := raw.(port.RoleDeclarer); ok {
		for _, role := range d.DeclaredRoles() {
			if _, known := roleCheckers[role]; !known {
				return nil, exception.NewBatchErrorf(moduleName, "artifact %s declares unknown role '%s'", a.name, role)
			}
			if !a.Has(role) {
				return nil, exception.NewBatchErrorf(moduleName, "artifact %s declares role '%s' but does not implement it", a.name, role)
			}
		}
	}
	return a, nil
}

// Raw returns the wrapped value.
func (a *Artifact) Raw() interface{} { return a.raw }

// Has reports whether the artifact fulfils role.
func (a *Artifact) Has(role port.Role) bool {
	_, ok := a.roles[role]
	return ok
}

// Roles returns the fulfilled roles in name order.
func (a *Artifact) Roles() []port.Role {
	out := make([]port.Role, 0, len(a.roles))
	for r := range a.roles {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// call runs fn with the injection context published on ctx. Failures of
// methods not listed as unwrapped are normalized; panics become errors.
func (a *Artifact) call(ctx context.Context, method string, fn func(context.Context) error) (err error) {
	_, verbatim := a.unwrapped[method]
	module := a.name + "." + method
	defer func() {
		if r := recover(); r != nil {
			err = exception.FromPanic(module, r)
			if !verbatim {
				err = exception.WrapArtifactError(module, "artifact panicked", err)
			}
		}
	}()

	err = fn(WithInjectionContext(ctx, a.ic))
	if err != nil && !verbatim {
		err = exception.WrapArtifactError(module, fmt.Sprintf("%s failed", method), err)
	}
	return err
}

// AsStepListener returns the StepListener view of the artifact.
func (a *Artifact) AsStepListener() (port.StepListener, bool) {
	d, ok := a.raw.(port.StepListener)
	if !ok {
		return nil, false
	}
	return &stepListener{a, d}, true
}

// AsJobListener returns the JobListener view of the artifact.
func (a *Artifact) AsJobListener() (port.JobListener, bool) {
	d, ok := a.raw.(port.JobListener)
	if !ok {
		return nil, false
	}
	return &jobListener{a, d}, true
}

// AsDecider returns the Decider view of the artifact.
func (a *Artifact) AsDecider() (port.Decider, bool) {
	d, ok := a.raw.(port.Decider)
	if !ok {
		return nil, false
	}
	return &decider{a, d}, true
}

// AsBatchlet returns the Batchlet view of the artifact.
func (a *Artifact) AsBatchlet() (port.Batchlet, bool) {
	d, ok := a.raw.(port.Batchlet)
	if !ok {
		return nil, false
	}
	return &batchlet{a, d}, true
}

// AsCheckpointAlgorithm returns the CheckpointAlgorithm view of the artifact.
func (a *Artifact) AsCheckpointAlgorithm() (port.CheckpointAlgorithm, bool) {
	d, ok := a.raw.(port.CheckpointAlgorithm)
	if !ok {
		return nil, false
	}
	return &checkpointAlgorithm{a, d}, true
}

// AsItemReader returns the ItemReader view of the artifact.
func (a *Artifact) AsItemReader() (port.ItemReader, bool) {
	d, ok := a.raw.(port.ItemReader)
	if !ok {
		return nil, false
	}
	return &itemReader{a, d}, true
}

// AsItemProcessor returns the ItemProcessor view of the artifact.
func (a *Artifact) AsItemProcessor() (port.ItemProcessor, bool) {
	d, ok := a.raw.(port.ItemProcessor)
	if !ok {
		return nil, false
	}
	return &itemProcessor{a, d}, true
}

// AsItemWriter returns the ItemWriter view of the artifact.
func (a *Artifact) AsItemWriter() (port.ItemWriter, bool) {
	d, ok := a.raw.(port.ItemWriter)
	if !ok {
		return nil, false
	}
	return &itemWriter{a, d}, true
}

// AsPartitionMapper returns the PartitionMapper view of the artifact.
func (a *Artifact) AsPartitionMapper() (port.PartitionMapper, bool) {
	d, ok := a.raw.(port.PartitionMapper)
	if !ok {
		return nil, false
	}
	return &partitionMapper{a, d}, true
}

// AsPartitionReducer returns the PartitionReducer view of the artifact.
func (a *Artifact) AsPartitionReducer() (port.PartitionReducer, bool) {
	d, ok := a.raw.(port.PartitionReducer)
	if !ok {
		return nil, false
	}
	return &partitionReducer{a, d}, true
}

// AsPartitionAnalyzer returns the PartitionAnalyzer view of the artifact.
func (a *Artifact) AsPartitionAnalyzer() (port.PartitionAnalyzer, bool) {
	d, ok := a.raw.(port.PartitionAnalyzer)
	if !ok {
		return nil, false
	}
	return &partitionAnalyzer{a, d}, true
}

// AsPartitionCollector returns the PartitionCollector view of the artifact.
func (a *Artifact) AsPartitionCollector() (port.PartitionCollector, bool) {
	d, ok := a.raw.(port.PartitionCollector)
	if !ok {
		return nil, false
	}
	return &partitionCollector{a, d}, true
}
