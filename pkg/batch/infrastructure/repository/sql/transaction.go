package sql

import (
	"context"
	"sync"

	"gorm.io/gorm"

	"github.com/tigerroll/stepcore/pkg/batch/core/application/port"
	"github.com/tigerroll/stepcore/pkg/batch/core/config"
	"github.com/tigerroll/stepcore/pkg/batch/core/services"
	"github.com/tigerroll/stepcore/pkg/batch/support/util/exception"
)

// DBProvider is implemented by persistence services exposing their connection.
type DBProvider interface {
	DB() *gorm.DB
}

// GormTransactionService starts database transactions on the connection of the
// registry's PersistenceManagerService, which must be a DBProvider.
type GormTransactionService struct {
	registry *services.Registry

	mu sync.Mutex
	db *gorm.DB
}

// NewGormTransactionService creates a service bound to registry. The
// persistence capability is resolved lazily on the first Begin.
func NewGormTransactionService(registry *services.Registry) *GormTransactionService {
	return &GormTransactionService{registry: registry}
}

// Init implements port.BatchService.
func (s *GormTransactionService) Init(config.Properties) error { return nil }

func (s *GormTransactionService) connection() (*gorm.DB, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.db != nil {
		return s.db, nil
	}
	persistence, err := services.Resolve[port.PersistenceManagerService](s.registry)
	if err != nil {
		return nil, err
	}
	p, ok := persistence.(DBProvider)
	if !ok {
		return nil, exception.NewBatchErrorf(moduleName, "persistence service %T exposes no database connection", persistence)
	}
	s.db = p.DB()
	return s.db, nil
}

// Begin starts a database transaction.
func (s *GormTransactionService) Begin(ctx context.Context) (port.Transaction, error) {
	db, err := s.connection()
	if err != nil {
		return nil, err
	}
	t := db.WithContext(ctx).Begin()
	if t.Error != nil {
		return nil, exception.NewBatchError(moduleName, "failed to begin transaction", t.Error, false, true)
	}
	return &gormTx{tx: t}, nil
}

type gormTx struct {
	tx *gorm.DB
}

// DB returns the transaction handle for statements that must join it.
func (t *gormTx) DB() *gorm.DB { return t.tx }

func (t *gormTx) Commit(context.Context) error {
	if err := t.tx.Commit().Error; err != nil {
		return exception.NewBatchError(moduleName, "failed to commit transaction", err, false, false)
	}
	return nil
}

func (t *gormTx) Rollback(context.Context) error {
	if err := t.tx.Rollback().Error; err != nil {
		return exception.NewBatchError(moduleName, "failed to roll back transaction", err, false, false)
	}
	return nil
}

var (
	_ port.TransactionManagementService = (*GormTransactionService)(nil)
	_ DBProvider                        = (*GormPersistenceService)(nil)
)
