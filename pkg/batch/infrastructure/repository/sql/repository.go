// Package sql provides a gorm-backed implementation of the
// PersistenceManagerService capability. The dialect and data source are read
// from the engine settings; sqlite, mysql and postgres are registered.
package sql

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	gormlogger "gorm.io/gorm/logger"

	"github.com/tigerroll/stepcore/pkg/batch/core/application/port"
	"github.com/tigerroll/stepcore/pkg/batch/core/config"
	model "github.com/tigerroll/stepcore/pkg/batch/core/domain/model"
	"github.com/tigerroll/stepcore/pkg/batch/core/domain/repository"
	"github.com/tigerroll/stepcore/pkg/batch/support/util/exception"
	"github.com/tigerroll/stepcore/pkg/batch/support/util/logger"
)

const moduleName = "persistence"

// GormPersistenceService stores step execution records and checkpoints through gorm.
type GormPersistenceService struct {
	db      *gorm.DB
	dialect string
}

// NewGormPersistenceService creates an uninitialized service. Init opens the database.
func NewGormPersistenceService() *GormPersistenceService {
	return &GormPersistenceService{}
}

// NewGormPersistenceServiceWithDB wraps an already opened connection and migrates the schema.
func NewGormPersistenceServiceWithDB(db *gorm.DB) (*GormPersistenceService, error) {
	s := &GormPersistenceService{db: db, dialect: db.Dialector.Name()}
	if err := s.migrate(); err != nil {
		return nil, err
	}
	return s, nil
}

// Init implements port.BatchService.
func (s *GormPersistenceService) Init(props config.Properties) error {
	if s.db != nil {
		return nil
	}
	settings, err := config.BindSettings(props)
	if err != nil {
		return err
	}
	factory, err := GetDialectorFactory(settings.PersistenceDialect)
	if err != nil {
		return exception.NewBatchError(moduleName, "unsupported persistence dialect", err, false, false)
	}
	db, err := gorm.Open(factory(settings.PersistenceDSN), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		return exception.NewBatchError(moduleName, fmt.Sprintf("failed to open %s database", settings.PersistenceDialect), err, false, false)
	}
	s.db = db
	s.dialect = settings.PersistenceDialect
	if err := s.migrate(); err != nil {
		return err
	}
	logger.Infof("Persistence initialized with dialect '%s'.", s.dialect)
	return nil
}

func (s *GormPersistenceService) migrate() error {
	if err := s.db.AutoMigrate(&StepExecutionEntity{}, &CheckpointEntity{}); err != nil {
		return exception.NewBatchError(moduleName, "failed to migrate persistence schema", err, false, false)
	}
	return nil
}

// DB returns the underlying connection.
func (s *GormPersistenceService) DB() *gorm.DB {
	return s.db
}

// SaveStepExecution inserts or replaces the record with rec.ID.
func (s *GormPersistenceService) SaveStepExecution(ctx context.Context, rec *model.StepExecutionRecord) error {
	if rec == nil {
		return exception.NewBatchErrorf(moduleName, "step execution record is nil")
	}
	entity := toStepExecutionEntity(rec)
	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{UpdateAll: true}).Create(entity).Error
	if err != nil {
		return exception.NewBatchError(moduleName, fmt.Sprintf("failed to save step execution '%s'", rec.ID), err, false, true)
	}
	return nil
}

// FindStepExecution finds a record by id.
func (s *GormPersistenceService) FindStepExecution(ctx context.Context, id string) (*model.StepExecutionRecord, error) {
	var entity StepExecutionEntity
	err := s.db.WithContext(ctx).Where("id = ?", id).First(&entity).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, repository.ErrStepExecutionNotFound
	}
	if err != nil {
		return nil, exception.NewBatchError(moduleName, fmt.Sprintf("failed to find step execution '%s'", id), err, false, true)
	}
	return fromStepExecutionEntity(&entity), nil
}

// FindStepExecutionsByJob returns the records of one job execution ordered by
// start time, then partition index.
func (s *GormPersistenceService) FindStepExecutionsByJob(ctx context.Context, jobExecutionID string) ([]*model.StepExecutionRecord, error) {
	var entities []StepExecutionEntity
	err := s.db.WithContext(ctx).
		Where("job_execution_id = ?", jobExecutionID).
		Order("start_time ASC").Order("partition_index ASC").
		Find(&entities).Error
	if err != nil {
		return nil, exception.NewBatchError(moduleName, fmt.Sprintf("failed to find step executions of job execution '%s'", jobExecutionID), err, false, true)
	}
	out := make([]*model.StepExecutionRecord, 0, len(entities))
	for i := range entities {
		out = append(out, fromStepExecutionEntity(&entities[i]))
	}
	return out, nil
}

// SaveCheckpoint persists checkpoint data, overwriting any existing data for the same key.
func (s *GormPersistenceService) SaveCheckpoint(ctx context.Context, cp *model.CheckpointRecord) error {
	if cp == nil {
		return exception.NewBatchErrorf(moduleName, "checkpoint record is nil")
	}
	entity := toCheckpointEntity(cp)
	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{UpdateAll: true}).Create(entity).Error
	if err != nil {
		return exception.NewBatchError(moduleName, fmt.Sprintf("failed to save checkpoint '%s' of step execution '%s'", cp.Name, cp.StepExecutionID), err, false, true)
	}
	return nil
}

// LoadCheckpoint returns the checkpoint stored for the step execution under name.
func (s *GormPersistenceService) LoadCheckpoint(ctx context.Context, stepExecutionID, name string) (*model.CheckpointRecord, error) {
	var entity CheckpointEntity
	err := s.db.WithContext(ctx).
		Where("step_execution_id = ? AND name = ?", stepExecutionID, name).
		First(&entity).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, repository.ErrCheckpointNotFound
	}
	if err != nil {
		return nil, exception.NewBatchError(moduleName, fmt.Sprintf("failed to load checkpoint '%s' of step execution '%s'", name, stepExecutionID), err, false, true)
	}
	return fromCheckpointEntity(&entity), nil
}

// Shutdown closes the underlying connection pool.
func (s *GormPersistenceService) Shutdown(context.Context) error {
	if s.db == nil {
		return nil
	}
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	logger.Debugf("Closing %s persistence connection.", s.dialect)
	return sqlDB.Close()
}

var (
	_ port.PersistenceManagerService = (*GormPersistenceService)(nil)
	_ port.Shutdowner                = (*GormPersistenceService)(nil)
)
