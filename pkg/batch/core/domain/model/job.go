package model

// Property is a single name/value pair declared on a node of the job definition
// tree. Values may contain placeholders until the tree has been resolved.
type Property struct {
	Name  string `yaml:"name"`
	Value string `yaml:"value"`
}

// PropertyList is an ordered property declaration. Names are unique.
type PropertyList []Property

// ToMap returns the properties as a map.
func (l PropertyList) ToMap() map[string]string {
	m := make(map[string]string, len(l))
	for _, p := range l {
		m[p.Name] = p.Value
	}
	return m
}

// Clone returns a copy of the list.
func (l PropertyList) Clone() PropertyList {
	if l == nil {
		return nil
	}
	out := make(PropertyList, len(l))
	copy(out, l)
	return out
}

// RefElement references a pluggable artifact by id and carries the properties
// injected into it. Listeners, batchlets, chunk components, partition
// components and deciders are all RefElements.
type RefElement struct {
	Ref        string       `yaml:"ref"`
	Properties PropertyList `yaml:"properties,omitempty"`
}

// Clone returns a deep copy. A nil receiver yields nil.
func (r *RefElement) Clone() *RefElement {
	if r == nil {
		return nil
	}
	return &RefElement{Ref: r.Ref, Properties: r.Properties.Clone()}
}

func cloneRefs(refs []*RefElement) []*RefElement {
	if refs == nil {
		return nil
	}
	out := make([]*RefElement, len(refs))
	for i, r := range refs {
		out[i] = r.Clone()
	}
	return out
}

// ExecutionElement is one of Step, Decision, Split or Flow.
type ExecutionElement interface {
	// ElementID returns the element's id attribute.
	ElementID() string
	// CloneElement returns a deep copy of the element.
	CloneElement() ExecutionElement
}

// Transition is a next, end, fail or stop rule attached to a step, decision or flow.
type Transition struct {
	Kind       string `yaml:"kind"`
	On         string `yaml:"on,omitempty"`
	To         string `yaml:"to,omitempty"`
	ExitStatus string `yaml:"exit-status,omitempty"`
	RestartAt  string `yaml:"restart,omitempty"`
}

func cloneTransitions(ts []*Transition) []*Transition {
	if ts == nil {
		return nil
	}
	out := make([]*Transition, len(ts))
	for i, t := range ts {
		if t != nil {
			c := *t
			out[i] = &c
		}
	}
	return out
}

// Job is the root of a job definition tree.
type Job struct {
	ID          string        `yaml:"id"`
	Restartable string        `yaml:"restartable,omitempty"`
	Properties  PropertyList  `yaml:"properties,omitempty"`
	Listeners   []*RefElement `yaml:"listeners,omitempty"`
	Elements    ElementList   `yaml:"elements"`
}

// Clone returns a deep copy of the job tree.
func (j *Job) Clone() *Job {
	if j == nil {
		return nil
	}
	return &Job{
		ID:          j.ID,
		Restartable: j.Restartable,
		Properties:  j.Properties.Clone(),
		Listeners:   cloneRefs(j.Listeners),
		Elements:    j.Elements.Clone(),
	}
}

// Step is a unit of work: a batchlet or a chunk, optionally partitioned.
type Step struct {
	ID                   string        `yaml:"id"`
	Next                 string        `yaml:"next,omitempty"`
	StartLimit           string        `yaml:"start-limit,omitempty"`
	AllowStartIfComplete string        `yaml:"allow-start-if-complete,omitempty"`
	Properties           PropertyList  `yaml:"properties,omitempty"`
	Listeners            []*RefElement `yaml:"listeners,omitempty"`
	Batchlet             *RefElement   `yaml:"batchlet,omitempty"`
	Chunk                *Chunk        `yaml:"chunk,omitempty"`
	Partition            *Partition    `yaml:"partition,omitempty"`
	Transitions          []*Transition `yaml:"transitions,omitempty"`
}

// ElementID implements ExecutionElement.
func (s *Step) ElementID() string { return s.ID }

// CloneElement implements ExecutionElement.
func (s *Step) CloneElement() ExecutionElement { return s.Clone() }

// Clone returns a deep copy of the step.
func (s *Step) Clone() *Step {
	if s == nil {
		return nil
	}
	return &Step{
		ID:                   s.ID,
		Next:                 s.Next,
		StartLimit:           s.StartLimit,
		AllowStartIfComplete: s.AllowStartIfComplete,
		Properties:           s.Properties.Clone(),
		Listeners:            cloneRefs(s.Listeners),
		Batchlet:             s.Batchlet.Clone(),
		Chunk:                s.Chunk.Clone(),
		Partition:            s.Partition.Clone(),
		Transitions:          cloneTransitions(s.Transitions),
	}
}

// IsPartitioned reports whether the step declares a partition configuration.
func (s *Step) IsPartitioned() bool {
	return s.Partition != nil
}

// DeclaresCollector reports whether the step's partition configuration declares a collector.
func (s *Step) DeclaresCollector() bool {
	return s.Partition != nil && s.Partition.Collector != nil && s.Partition.Collector.Ref != ""
}

// Chunk configures chunk-oriented processing.
type Chunk struct {
	CheckpointPolicy    string      `yaml:"checkpoint-policy,omitempty"`
	ItemCount           string      `yaml:"item-count,omitempty"`
	TimeLimit           string      `yaml:"time-limit,omitempty"`
	SkipLimit           string      `yaml:"skip-limit,omitempty"`
	RetryLimit          string      `yaml:"retry-limit,omitempty"`
	Reader              *RefElement `yaml:"reader,omitempty"`
	Processor           *RefElement `yaml:"processor,omitempty"`
	Writer              *RefElement `yaml:"writer,omitempty"`
	CheckpointAlgorithm *RefElement `yaml:"checkpoint-algorithm,omitempty"`
}

// Clone returns a deep copy. A nil receiver yields nil.
func (c *Chunk) Clone() *Chunk {
	if c == nil {
		return nil
	}
	out := *c
	out.Reader = c.Reader.Clone()
	out.Processor = c.Processor.Clone()
	out.Writer = c.Writer.Clone()
	out.CheckpointAlgorithm = c.CheckpointAlgorithm.Clone()
	return &out
}

// Partition configures a partitioned step. Either Mapper or Plan supplies the partitions.
type Partition struct {
	Mapper    *RefElement       `yaml:"mapper,omitempty"`
	Plan      *PartitionPlanDef `yaml:"plan,omitempty"`
	Collector *RefElement       `yaml:"collector,omitempty"`
	Analyzer  *RefElement       `yaml:"analyzer,omitempty"`
	Reducer   *RefElement       `yaml:"reducer,omitempty"`
}

// Clone returns a deep copy. A nil receiver yields nil.
func (p *Partition) Clone() *Partition {
	if p == nil {
		return nil
	}
	return &Partition{
		Mapper:    p.Mapper.Clone(),
		Plan:      p.Plan.Clone(),
		Collector: p.Collector.Clone(),
		Analyzer:  p.Analyzer.Clone(),
		Reducer:   p.Reducer.Clone(),
	}
}

// PartitionPlanDef is a static partition plan declared in the job definition.
type PartitionPlanDef struct {
	Partitions string                 `yaml:"partitions,omitempty"`
	Threads    string                 `yaml:"threads,omitempty"`
	Properties []*PartitionProperties `yaml:"properties,omitempty"`
}

// Clone returns a deep copy. A nil receiver yields nil.
func (p *PartitionPlanDef) Clone() *PartitionPlanDef {
	if p == nil {
		return nil
	}
	out := &PartitionPlanDef{Partitions: p.Partitions, Threads: p.Threads}
	if p.Properties != nil {
		out.Properties = make([]*PartitionProperties, len(p.Properties))
		for i, pp := range p.Properties {
			if pp != nil {
				out.Properties[i] = &PartitionProperties{Partition: pp.Partition, Properties: pp.Properties.Clone()}
			}
		}
	}
	return out
}

// PartitionProperties holds the properties of one partition of a static plan.
type PartitionProperties struct {
	Partition  string       `yaml:"partition"`
	Properties PropertyList `yaml:"properties,omitempty"`
}

// Decision selects the next transition through a decider artifact.
type Decision struct {
	ID          string        `yaml:"id"`
	Ref         string        `yaml:"ref"`
	Properties  PropertyList  `yaml:"properties,omitempty"`
	Transitions []*Transition `yaml:"transitions,omitempty"`
}

// ElementID implements ExecutionElement.
func (d *Decision) ElementID() string { return d.ID }

// CloneElement implements ExecutionElement.
func (d *Decision) CloneElement() ExecutionElement {
	return &Decision{
		ID:          d.ID,
		Ref:         d.Ref,
		Properties:  d.Properties.Clone(),
		Transitions: cloneTransitions(d.Transitions),
	}
}

// Split runs its flows concurrently.
type Split struct {
	ID    string  `yaml:"id"`
	Next  string  `yaml:"next,omitempty"`
	Flows []*Flow `yaml:"flows"`
}

// ElementID implements ExecutionElement.
func (s *Split) ElementID() string { return s.ID }

// CloneElement implements ExecutionElement.
func (s *Split) CloneElement() ExecutionElement {
	out := &Split{ID: s.ID, Next: s.Next}
	if s.Flows != nil {
		out.Flows = make([]*Flow, len(s.Flows))
		for i, f := range s.Flows {
			out.Flows[i] = f.Clone()
		}
	}
	return out
}

// Flow is a nested sequence of execution elements.
type Flow struct {
	ID          string        `yaml:"id"`
	Next        string        `yaml:"next,omitempty"`
	Elements    ElementList   `yaml:"elements"`
	Transitions []*Transition `yaml:"transitions,omitempty"`
}

// ElementID implements ExecutionElement.
func (f *Flow) ElementID() string { return f.ID }

// CloneElement implements ExecutionElement.
func (f *Flow) CloneElement() ExecutionElement { return f.Clone() }

// Clone returns a deep copy. A nil receiver yields nil.
func (f *Flow) Clone() *Flow {
	if f == nil {
		return nil
	}
	return &Flow{
		ID:          f.ID,
		Next:        f.Next,
		Elements:    f.Elements.Clone(),
		Transitions: cloneTransitions(f.Transitions),
	}
}

// ElementList is an ordered list of execution elements.
type ElementList []ExecutionElement

// Clone returns a deep copy of every element.
func (l ElementList) Clone() ElementList {
	if l == nil {
		return nil
	}
	out := make(ElementList, len(l))
	for i, e := range l {
		if e != nil {
			out[i] = e.CloneElement()
		}
	}
	return out
}
