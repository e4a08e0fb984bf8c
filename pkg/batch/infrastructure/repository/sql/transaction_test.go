package sql_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tigerroll/stepcore/pkg/batch/core/application/port"
	"github.com/tigerroll/stepcore/pkg/batch/core/config"
	"github.com/tigerroll/stepcore/pkg/batch/core/domain/repository"
	"github.com/tigerroll/stepcore/pkg/batch/core/services"
	"github.com/tigerroll/stepcore/pkg/batch/infrastructure/repository/inmemory"
	sqlrepo "github.com/tigerroll/stepcore/pkg/batch/infrastructure/repository/sql"
)

func newRegistry(t *testing.T, persistence port.PersistenceManagerService) *services.Registry {
	t.Helper()
	r := services.NewRegistry(services.WithLoader(config.NewLoader(
		config.WithSearchDirs(t.TempDir()),
		config.WithLookupEnv(func(string) (string, bool) { return "", false }),
	)))
	r.Provide("test.persistence", services.NoArgProvider(func() port.BatchService { return persistence }))
	services.Bind[port.PersistenceManagerService](r, "test.persistence")
	return r
}

func TestGormTransactionService_CommitAndRollback(t *testing.T) {
	persistence := newService(t)
	txs := sqlrepo.NewGormTransactionService(newRegistry(t, persistence))
	require.NoError(t, txs.Init(nil))
	ctx := context.Background()

	insert := func(tx port.Transaction, id string) {
		p, ok := tx.(sqlrepo.DBProvider)
		require.True(t, ok)
		require.NoError(t, p.DB().Create(&sqlrepo.StepExecutionEntity{ID: id, StepName: "load", StartTime: time.Now()}).Error)
	}

	rolledBack, err := txs.Begin(ctx)
	require.NoError(t, err)
	insert(rolledBack, "se-rollback")
	require.NoError(t, rolledBack.Rollback(ctx))

	_, err = persistence.FindStepExecution(ctx, "se-rollback")
	assert.ErrorIs(t, err, repository.ErrStepExecutionNotFound)

	committed, err := txs.Begin(ctx)
	require.NoError(t, err)
	insert(committed, "se-commit")
	require.NoError(t, committed.Commit(ctx))

	rec, err := persistence.FindStepExecution(ctx, "se-commit")
	require.NoError(t, err)
	assert.Equal(t, "load", rec.StepName)
}

func TestGormTransactionService_RequiresGormPersistence(t *testing.T) {
	txs := sqlrepo.NewGormTransactionService(newRegistry(t, inmemory.NewPersistenceService()))
	_, err := txs.Begin(context.Background())
	assert.ErrorContains(t, err, "exposes no database connection")
}
