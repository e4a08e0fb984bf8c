package jsl_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tigerroll/stepcore/pkg/batch/core/config/jsl"
	model "github.com/tigerroll/stepcore/pkg/batch/core/domain/model"
	"github.com/tigerroll/stepcore/pkg/batch/core/modelresolver"
)

const payrollJob = `
id: payroll
properties:
  - {name: region, value: "#{jobParameters['region']}?:eu;"}
listeners:
  - ref: auditListener
elements:
  - step:
      id: extract
      next: fanout
      properties:
        - {name: source, value: "/in/{region}"}
      batchlet:
        ref: extractBatchlet
  - split:
      id: fanout
      flows:
        - id: left
          elements:
            - step:
                id: sum
                partition:
                  plan:
                    partitions: "2"
                    properties:
                      - partition: "0"
                        properties: [{name: file, value: a.csv}]
                      - partition: "1"
                        properties: [{name: file, value: b.csv}]
                  collector: {ref: sumCollector}
                  analyzer: {ref: sumAnalyzer}
                batchlet: {ref: sumBatchlet}
        - id: right
          elements:
            - decision: {id: route, ref: router}
`

func TestParse(t *testing.T) {
	job, err := jsl.Parse([]byte(payrollJob))
	require.NoError(t, err)
	assert.Equal(t, "payroll", job.ID)
	require.Len(t, job.Elements, 2)

	extract, ok := job.Elements[0].(*model.Step)
	require.True(t, ok)
	assert.Equal(t, "extractBatchlet", extract.Batchlet.Ref)

	split, ok := job.Elements[1].(*model.Split)
	require.True(t, ok)
	require.Len(t, split.Flows, 2)
	sum := split.Flows[0].Elements[0].(*model.Step)
	assert.True(t, sum.DeclaresCollector())
	assert.Equal(t, "2", sum.Partition.Plan.Partitions)

	resolved := modelresolver.NewFactory().ResolveJob(job, map[string]string{"region": "apac"})
	assert.Equal(t, "/in/apac", resolved.Elements[0].(*model.Step).Properties.ToMap()["source"])
}

func TestParse_Validation(t *testing.T) {
	cases := map[string]string{
		"missing id":       "elements:\n  - step: {id: a}\n",
		"no elements":      "id: j\n",
		"element id":       "id: j\nelements:\n  - step: {next: b}\n",
		"duplicate":        "id: j\nelements:\n  - step: {id: a}\n  - flow: {id: f, elements: [{step: {id: a}}]}\n",
		"decision ref":     "id: j\nelements:\n  - decision: {id: d}\n",
		"unknown kind":     "id: j\nelements:\n  - task: {id: t}\n",
		"not yaml mapping": "- a\n- b\n",
	}
	for name, doc := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := jsl.Parse([]byte(doc))
			assert.Error(t, err)
		})
	}
}

func TestDefinitions(t *testing.T) {
	defs := jsl.NewDefinitions()
	_, err := defs.Load([]byte(payrollJob))
	require.NoError(t, err)
	_, err = defs.Load([]byte(payrollJob))
	assert.Error(t, err)

	a, ok := defs.Get("payroll")
	require.True(t, ok)
	b, _ := defs.Get("payroll")
	a.Elements[0].(*model.Step).ID = "changed"
	assert.Equal(t, "extract", b.Elements[0].(*model.Step).ID)
	assert.Equal(t, []string{"payroll"}, defs.IDs())

	_, ok = defs.Get("missing")
	assert.False(t, ok)
}
