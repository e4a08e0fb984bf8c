// Package tx provides the default TransactionManagementService, which starts
// transactions that do nothing on commit or rollback.
package tx

import (
	"context"
	"sync/atomic"

	"github.com/tigerroll/stepcore/pkg/batch/core/application/port"
	"github.com/tigerroll/stepcore/pkg/batch/core/config"
	"github.com/tigerroll/stepcore/pkg/batch/support/util/exception"
)

const moduleName = "tx"

// NoOpTransactionManager hands out transactions without a backing resource.
type NoOpTransactionManager struct{}

// NewNoOpTransactionManager creates a NoOpTransactionManager.
func NewNoOpTransactionManager() *NoOpTransactionManager {
	return &NoOpTransactionManager{}
}

// Init implements port.BatchService.
func (m *NoOpTransactionManager) Init(config.Properties) error { return nil }

// Begin starts a transaction.
func (m *NoOpTransactionManager) Begin(ctx context.Context) (port.Transaction, error) {
	return &noOpTx{}, nil
}

// noOpTx may be finished once.
type noOpTx struct {
	done atomic.Bool
}

func (t *noOpTx) Commit(context.Context) error {
	return t.finish("commit")
}

func (t *noOpTx) Rollback(context.Context) error {
	return t.finish("rollback")
}

func (t *noOpTx) finish(op string) error {
	if !t.done.CompareAndSwap(false, true) {
		return exception.NewBatchErrorf(moduleName, "cannot %s: transaction already finished", op)
	}
	return nil
}

var _ port.TransactionManagementService = (*NoOpTransactionManager)(nil)
