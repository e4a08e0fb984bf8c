// Package jsl reads job definition trees from YAML documents.
package jsl

import (
	"fmt"
	"sort"
	"sync"

	"gopkg.in/yaml.v3"

	model "github.com/tigerroll/stepcore/pkg/batch/core/domain/model"
	"github.com/tigerroll/stepcore/pkg/batch/support/util/exception"
	"github.com/tigerroll/stepcore/pkg/batch/support/util/logger"
)

const moduleName = "jsl_loader"

// Parse decodes and validates one job definition.
func Parse(data []byte) (*model.Job, error) {
	var job model.Job
	if err := yaml.Unmarshal(data, &job); err != nil {
		return nil, exception.NewBatchError(moduleName, "Failed to parse JSL document", err, false, false)
	}
	if err := validate(&job); err != nil {
		return nil, err
	}
	return &job, nil
}

func validate(job *model.Job) error {
	if job.ID == "" {
		return exception.NewBatchErrorf(moduleName, "'id' is not defined in JSL document")
	}
	if len(job.Elements) == 0 {
		return exception.NewBatchErrorf(moduleName, "JSL job '%s' does not have 'elements' defined", job.ID)
	}
	seen := make(map[string]bool)
	return validateElements(job.ID, job.Elements, seen)
}

func validateElements(jobID string, elems model.ElementList, seen map[string]bool) error {
	for _, e := range elems {
		id := e.ElementID()
		if id == "" {
			return exception.NewBatchErrorf(moduleName, "JSL job '%s' has a %T without 'id'", jobID, e)
		}
		if seen[id] {
			return exception.NewBatchErrorf(moduleName, "JSL job '%s' declares element id '%s' more than once", jobID, id)
		}
		seen[id] = true

		switch v := e.(type) {
		case *model.Decision:
			if v.Ref == "" {
				return exception.NewBatchErrorf(moduleName, "decision '%s' of JSL job '%s' has no 'ref'", id, jobID)
			}
		case *model.Split:
			for _, f := range v.Flows {
				if err := validateElements(jobID, model.ElementList{f}, seen); err != nil {
					return err
				}
			}
		case *model.Flow:
			if err := validateElements(jobID, v.Elements, seen); err != nil {
				return err
			}
		}
	}
	return nil
}

// Definitions holds loaded job definitions by id.
type Definitions struct {
	mu   sync.RWMutex
	jobs map[string]*model.Job
}

// NewDefinitions creates an empty set of definitions.
func NewDefinitions() *Definitions {
	return &Definitions{jobs: make(map[string]*model.Job)}
}

// Load parses data and adds the job it defines. Job ids must be unique.
func (d *Definitions) Load(data []byte) (*model.Job, error) {
	job, err := Parse(data)
	if err != nil {
		return nil, err
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, exists := d.jobs[job.ID]; exists {
		return nil, exception.NewBatchErrorf(moduleName, "JSL Job ID '%s' is duplicated", job.ID)
	}
	d.jobs[job.ID] = job
	logger.Infof("Loaded JSL job '%s'.", job.ID)
	return job, nil
}

// Get returns a deep copy of the job with id, ready to be resolved for one
// submission.
func (d *Definitions) Get(id string) (*model.Job, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	job, ok := d.jobs[id]
	if !ok {
		return nil, false
	}
	return job.Clone(), true
}

// IDs returns the sorted ids of the loaded jobs.
func (d *Definitions) IDs() []string {
	d.mu.RLock()
	defer d.mu.RUnlock()
	ids := make([]string, 0, len(d.jobs))
	for id := range d.jobs {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// String is used in log messages.
func (d *Definitions) String() string {
	return fmt.Sprintf("jsl.Definitions%v", d.IDs())
}
