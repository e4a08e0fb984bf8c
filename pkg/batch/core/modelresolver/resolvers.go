package modelresolver

import (
	model "github.com/tigerroll/stepcore/pkg/batch/core/domain/model"
)

// PropertyResolver resolves the placeholders of one node kind in place and
// returns the same node. submitted holds the job parameters; parent holds the
// properties inherited from the enclosing node (nil for a job).
type PropertyResolver[T any] interface {
	Resolve(node T, submitted, parent map[string]string) T
}

// Option configures a Factory.
type Option func(*Factory)

// WithPartitionPlan makes the factory's resolvers partition resolvers:
// #{partitionPlan['name']} is resolved from props instead of being deferred.
func WithPartitionPlan(props map[string]string) Option {
	return func(f *Factory) {
		f.sub.partitioned = true
		f.sub.planProps = props
	}
}

// WithLookupEnv replaces the environment used for #{systemProperties['name']}.
func WithLookupEnv(lookup func(string) (string, bool)) Option {
	return func(f *Factory) { f.sub.lookupEnv = lookup }
}

// Factory hands out the per-kind resolvers. Resolvers from one factory share
// its partition mode.
type Factory struct {
	sub *substitutor
}

// NewFactory creates a Factory for job-level (non-partition) resolution unless
// WithPartitionPlan is given.
func NewFactory(opts ...Option) *Factory {
	f := &Factory{sub: &substitutor{lookupEnv: defaultLookupEnv()}}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// ResolveJob resolves a whole job tree. A job has no parent scope.
func (f *Factory) ResolveJob(job *model.Job, submitted map[string]string) *model.Job {
	return f.Job().Resolve(job, submitted, nil)
}

func (f *Factory) Job() PropertyResolver[*model.Job]             { return jobResolver{f} }
func (f *Factory) Step() PropertyResolver[*model.Step]           { return stepResolver{f} }
func (f *Factory) Decision() PropertyResolver[*model.Decision]   { return decisionResolver{f} }
func (f *Factory) Split() PropertyResolver[*model.Split]         { return splitResolver{f} }
func (f *Factory) Flow() PropertyResolver[*model.Flow]           { return flowResolver{f} }
func (f *Factory) Listener() PropertyResolver[*model.RefElement] { return refResolver{f} }
func (f *Factory) Artifact() PropertyResolver[*model.RefElement] { return refResolver{f} }

// Element dispatches e to the resolver of its kind.
func (f *Factory) Element(e model.ExecutionElement, submitted, parent map[string]string) model.ExecutionElement {
	switch n := e.(type) {
	case *model.Step:
		return f.Step().Resolve(n, submitted, parent)
	case *model.Decision:
		return f.Decision().Resolve(n, submitted, parent)
	case *model.Split:
		return f.Split().Resolve(n, submitted, parent)
	case *model.Flow:
		return f.Flow().Resolve(n, submitted, parent)
	}
	return e
}

func (f *Factory) attr(s *string, submitted, parent map[string]string) {
	*s = f.sub.replaceAll(*s, submitted, parent)
}

// properties resolves the names and values of a property list in place against
// the given scopes and returns the children's scope: parent overlaid with the
// resolved properties.
func (f *Factory) properties(list model.PropertyList, submitted, parent map[string]string) map[string]string {
	current := make(map[string]string, len(parent)+len(list))
	for k, v := range parent {
		current[k] = v
	}
	for i := range list {
		list[i].Name = f.sub.replaceAll(list[i].Name, submitted, parent)
		list[i].Value = f.sub.replaceAll(list[i].Value, submitted, parent)
		current[list[i].Name] = list[i].Value
	}
	return current
}

func (f *Factory) listeners(refs []*model.RefElement, submitted, current map[string]string) {
	for _, l := range refs {
		f.Listener().Resolve(l, submitted, current)
	}
}

func (f *Factory) elements(elems model.ElementList, submitted, current map[string]string) {
	for _, e := range elems {
		f.Element(e, submitted, current)
	}
}

func (f *Factory) transitions(ts []*model.Transition, submitted, current map[string]string) {
	for _, t := range ts {
		if t == nil {
			continue
		}
		f.attr(&t.On, submitted, current)
		f.attr(&t.To, submitted, current)
		f.attr(&t.ExitStatus, submitted, current)
		f.attr(&t.RestartAt, submitted, current)
	}
}

type jobResolver struct{ f *Factory }

func (r jobResolver) Resolve(job *model.Job, submitted, parent map[string]string) *model.Job {
	if job == nil {
		return nil
	}
	r.f.attr(&job.ID, submitted, parent)
	r.f.attr(&job.Restartable, submitted, parent)
	current := r.f.properties(job.Properties, submitted, parent)
	r.f.listeners(job.Listeners, submitted, current)
	r.f.elements(job.Elements, submitted, current)
	return job
}

type stepResolver struct{ f *Factory }

func (r stepResolver) Resolve(step *model.Step, submitted, parent map[string]string) *model.Step {
	if step == nil {
		return nil
	}
	f := r.f
	f.attr(&step.ID, submitted, parent)
	f.attr(&step.Next, submitted, parent)
	f.attr(&step.StartLimit, submitted, parent)
	f.attr(&step.AllowStartIfComplete, submitted, parent)

	current := f.properties(step.Properties, submitted, parent)
	f.listeners(step.Listeners, submitted, current)

	f.Artifact().Resolve(step.Batchlet, submitted, current)
	if c := step.Chunk; c != nil {
		f.attr(&c.CheckpointPolicy, submitted, current)
		f.attr(&c.ItemCount, submitted, current)
		f.attr(&c.TimeLimit, submitted, current)
		f.attr(&c.SkipLimit, submitted, current)
		f.attr(&c.RetryLimit, submitted, current)
		f.Artifact().Resolve(c.Reader, submitted, current)
		f.Artifact().Resolve(c.Processor, submitted, current)
		f.Artifact().Resolve(c.Writer, submitted, current)
		f.Artifact().Resolve(c.CheckpointAlgorithm, submitted, current)
	}
	if p := step.Partition; p != nil {
		f.Artifact().Resolve(p.Mapper, submitted, current)
		if plan := p.Plan; plan != nil {
			f.attr(&plan.Partitions, submitted, current)
			f.attr(&plan.Threads, submitted, current)
			for _, pp := range plan.Properties {
				if pp == nil {
					continue
				}
				f.attr(&pp.Partition, submitted, current)
				f.properties(pp.Properties, submitted, current)
			}
		}
		f.Artifact().Resolve(p.Collector, submitted, current)
		f.Artifact().Resolve(p.Analyzer, submitted, current)
		f.Artifact().Resolve(p.Reducer, submitted, current)
	}
	f.transitions(step.Transitions, submitted, current)
	return step
}

type decisionResolver struct{ f *Factory }

func (r decisionResolver) Resolve(d *model.Decision, submitted, parent map[string]string) *model.Decision {
	if d == nil {
		return nil
	}
	r.f.attr(&d.ID, submitted, parent)
	r.f.attr(&d.Ref, submitted, parent)
	current := r.f.properties(d.Properties, submitted, parent)
	r.f.transitions(d.Transitions, submitted, current)
	return d
}

type splitResolver struct{ f *Factory }

func (r splitResolver) Resolve(s *model.Split, submitted, parent map[string]string) *model.Split {
	if s == nil {
		return nil
	}
	r.f.attr(&s.ID, submitted, parent)
	r.f.attr(&s.Next, submitted, parent)
	for _, flow := range s.Flows {
		r.f.Flow().Resolve(flow, submitted, parent)
	}
	return s
}

type flowResolver struct{ f *Factory }

func (r flowResolver) Resolve(flow *model.Flow, submitted, parent map[string]string) *model.Flow {
	if flow == nil {
		return nil
	}
	r.f.attr(&flow.ID, submitted, parent)
	r.f.attr(&flow.Next, submitted, parent)
	r.f.elements(flow.Elements, submitted, parent)
	r.f.transitions(flow.Transitions, submitted, parent)
	return flow
}

// refResolver resolves listener and artifact references.
type refResolver struct{ f *Factory }

func (r refResolver) Resolve(ref *model.RefElement, submitted, parent map[string]string) *model.RefElement {
	if ref == nil {
		return nil
	}
	r.f.attr(&ref.Ref, submitted, parent)
	r.f.properties(ref.Properties, submitted, parent)
	return ref
}
