package sql_test

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tigerroll/stepcore/pkg/batch/core/config"
	model "github.com/tigerroll/stepcore/pkg/batch/core/domain/model"
	"github.com/tigerroll/stepcore/pkg/batch/core/domain/repository"
	sqlrepo "github.com/tigerroll/stepcore/pkg/batch/infrastructure/repository/sql"
)

func newService(t *testing.T) *sqlrepo.GormPersistenceService {
	t.Helper()
	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	s := sqlrepo.NewGormPersistenceService()
	require.NoError(t, s.Init(config.Properties{
		config.KeyPersistenceDialect: "sqlite",
		config.KeyPersistenceDSN:     fmt.Sprintf("file:%s?mode=memory&cache=shared", name),
	}))
	t.Cleanup(func() { _ = s.Shutdown(context.Background()) })
	return s
}

func record(id, jobID string, partition int, start time.Time) *model.StepExecutionRecord {
	ec := model.NewExecutionContext()
	ec.Put("read.count", 42)
	return &model.StepExecutionRecord{
		ID:               id,
		JobExecutionID:   jobID,
		StepName:         "split",
		PartitionIndex:   partition,
		BatchStatus:      model.BatchStatusStarted,
		ExitStatus:       model.ExitStatusUnknown,
		ExecutionContext: ec,
		StartTime:        start,
	}
}

func TestGormPersistence_SaveAndFindStepExecution(t *testing.T) {
	s := newService(t)
	ctx := context.Background()
	start := time.Now().UTC()

	rec := record("se-1", "job-1", model.TopLevelPartition, start)
	require.NoError(t, s.SaveStepExecution(ctx, rec))

	got, err := s.FindStepExecution(ctx, "se-1")
	require.NoError(t, err)
	assert.Equal(t, "split", got.StepName)
	assert.Equal(t, model.BatchStatusStarted, got.BatchStatus)
	assert.WithinDuration(t, start, got.StartTime, time.Millisecond)
	assert.Nil(t, got.EndTime)
	count, ok := got.ExecutionContext.GetInt("read.count")
	assert.True(t, ok)
	assert.Equal(t, 42, count)

	end := start.Add(time.Second)
	rec.BatchStatus = model.BatchStatusFailed
	rec.ExitStatus = model.ExitStatusFailed
	rec.Failure = "boom"
	rec.EndTime = &end
	require.NoError(t, s.SaveStepExecution(ctx, rec))

	got, err = s.FindStepExecution(ctx, "se-1")
	require.NoError(t, err)
	assert.Equal(t, model.BatchStatusFailed, got.BatchStatus)
	assert.Equal(t, "boom", got.Failure)
	require.NotNil(t, got.EndTime)
	assert.WithinDuration(t, end, *got.EndTime, time.Millisecond)
}

func TestGormPersistence_NotFound(t *testing.T) {
	s := newService(t)
	ctx := context.Background()

	_, err := s.FindStepExecution(ctx, "missing")
	assert.ErrorIs(t, err, repository.ErrStepExecutionNotFound)

	_, err = s.LoadCheckpoint(ctx, "missing", "reader")
	assert.ErrorIs(t, err, repository.ErrCheckpointNotFound)
}

func TestGormPersistence_FindStepExecutionsByJobIsOrdered(t *testing.T) {
	s := newService(t)
	ctx := context.Background()
	start := time.Now().UTC()

	require.NoError(t, s.SaveStepExecution(ctx, record("p1", "job-1", 1, start.Add(time.Second))))
	require.NoError(t, s.SaveStepExecution(ctx, record("p0", "job-1", 0, start.Add(time.Second))))
	require.NoError(t, s.SaveStepExecution(ctx, record("top", "job-1", model.TopLevelPartition, start)))
	require.NoError(t, s.SaveStepExecution(ctx, record("other", "job-2", 0, start)))

	recs, err := s.FindStepExecutionsByJob(ctx, "job-1")
	require.NoError(t, err)
	require.Len(t, recs, 3)
	assert.Equal(t, "top", recs[0].ID)
	assert.Equal(t, "p0", recs[1].ID)
	assert.Equal(t, "p1", recs[2].ID)
}

func TestGormPersistence_CheckpointOverwrite(t *testing.T) {
	s := newService(t)
	ctx := context.Background()

	require.NoError(t, s.SaveCheckpoint(ctx, &model.CheckpointRecord{StepExecutionID: "se-1", Name: "reader", Data: []byte("line=10")}))
	require.NoError(t, s.SaveCheckpoint(ctx, &model.CheckpointRecord{StepExecutionID: "se-1", Name: "reader", Data: []byte("line=20")}))
	require.NoError(t, s.SaveCheckpoint(ctx, &model.CheckpointRecord{StepExecutionID: "se-1", Name: "writer", Data: []byte("batch=2")}))

	cp, err := s.LoadCheckpoint(ctx, "se-1", "reader")
	require.NoError(t, err)
	assert.Equal(t, []byte("line=20"), cp.Data)
	assert.False(t, cp.UpdatedAt.IsZero())

	cp, err = s.LoadCheckpoint(ctx, "se-1", "writer")
	require.NoError(t, err)
	assert.Equal(t, []byte("batch=2"), cp.Data)
}

func TestGormPersistence_UnknownDialect(t *testing.T) {
	s := sqlrepo.NewGormPersistenceService()
	err := s.Init(config.Properties{config.KeyPersistenceDialect: "oracle"})
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "oracle")
}

func TestGetDialectorFactory(t *testing.T) {
	for _, d := range []string{"sqlite", "MySQL", "postgres", "redshift"} {
		f, err := sqlrepo.GetDialectorFactory(d)
		require.NoError(t, err, d)
		assert.NotNil(t, f("dsn"), d)
	}
	f, err := sqlrepo.GetDialectorFactory("redshift")
	require.NoError(t, err)
	assert.Equal(t, "postgres", f("host=localhost").Name())
}
