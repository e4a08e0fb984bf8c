package logging_test

import (
	"bytes"
	"context"
	"log"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tigerroll/stepcore/pkg/batch/core/config"
	"github.com/tigerroll/stepcore/pkg/batch/core/config/bootstrap"
	model "github.com/tigerroll/stepcore/pkg/batch/core/domain/model"
	"github.com/tigerroll/stepcore/pkg/batch/core/proxy"
	"github.com/tigerroll/stepcore/pkg/batch/core/services"
	"github.com/tigerroll/stepcore/pkg/batch/engine/step/controller"
	"github.com/tigerroll/stepcore/pkg/batch/infrastructure/artifact"
	"github.com/tigerroll/stepcore/pkg/batch/listener/logging"
)

func captureLog(t *testing.T) *bytes.Buffer {
	t.Helper()
	var buf bytes.Buffer
	prevOut, prevFlags := log.Writer(), log.Flags()
	log.SetOutput(&buf)
	log.SetFlags(0)
	t.Cleanup(func() {
		log.SetOutput(prevOut)
		log.SetFlags(prevFlags)
	})
	return &buf
}

type doneBatchlet struct{}

func (doneBatchlet) Process(context.Context) (string, error) { return "DONE", nil }
func (doneBatchlet) Stop(context.Context) error              { return nil }

func TestRegisterAllListeners(t *testing.T) {
	f := artifact.NewFactory()
	logging.RegisterAllListeners(f)
	assert.Equal(t, []string{logging.PartitionAnalyzerRef, logging.StepListenerRef}, f.Registered())
}

func TestLoggingPartitionAnalyzer_CountsStatuses(t *testing.T) {
	a := logging.NewLoggingPartitionAnalyzer(nil)
	ctx := context.Background()
	require.NoError(t, a.AnalyzeCollectorData(ctx, []byte(`{"rows":3}`)))
	require.NoError(t, a.AnalyzeStatus(ctx, model.BatchStatusCompleted, "COMPLETED"))
	require.NoError(t, a.AnalyzeStatus(ctx, model.BatchStatusCompleted, "COMPLETED"))
	require.NoError(t, a.AnalyzeStatus(ctx, model.BatchStatusFailed, "FAILED"))

	assert.Equal(t, 2, a.Count(model.BatchStatusCompleted))
	assert.Equal(t, 1, a.Count(model.BatchStatusFailed))
	assert.Zero(t, a.Count(model.BatchStatusStopped))
}

func TestLoggingStepListener_WithoutStepContext(t *testing.T) {
	l := logging.NewLoggingStepListener(nil)
	assert.NoError(t, l.BeforeStep(context.Background()))
	assert.NoError(t, l.AfterStep(context.Background()))
}

func TestLoggingArtifacts_OnPartitionedStep(t *testing.T) {
	f := artifact.NewFactory()
	logging.RegisterAllListeners(f)
	f.Register("done", func(context.Context, *proxy.InjectionContext) (interface{}, error) {
		return doneBatchlet{}, nil
	})

	loader := config.NewLoader(
		config.WithSearchDirs(t.TempDir()),
		config.WithLookupEnv(func(string) (string, bool) { return "", false }),
	)
	r := bootstrap.NewDefaultRegistry(f, services.WithLoader(loader))
	t.Cleanup(func() { _ = r.Close(context.Background()) })

	step := &model.Step{
		ID:        "export",
		Listeners: []*model.RefElement{{Ref: logging.StepListenerRef}},
		Batchlet:  &model.RefElement{Ref: "done"},
		Partition: &model.Partition{
			Plan:     &model.PartitionPlanDef{Partitions: "3", Threads: "2"},
			Analyzer: &model.RefElement{Ref: logging.PartitionAnalyzerRef},
		},
	}
	c, err := controller.NewStepController(r, model.NewJobContext("exports", nil, nil), step)
	require.NoError(t, err)

	buf := captureLog(t)
	sc, err := c.Execute(context.Background())
	require.NoError(t, err)
	assert.Equal(t, model.BatchStatusCompleted, sc.BatchStatus())

	out := buf.String()
	assert.Contains(t, out, "StepListener: BeforeStep - StepName: export, ID: "+sc.ID+", Job: exports")
	assert.Contains(t, out, "StepListener: AfterStep - StepName: export")
	assert.Equal(t, 3, bytes.Count(buf.Bytes(), []byte("PartitionAnalyzer: Status - BatchStatus: COMPLETED")))
}
