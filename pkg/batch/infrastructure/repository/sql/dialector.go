package sql

import (
	"fmt"
	"strings"
	"sync"

	"gorm.io/driver/mysql"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/tigerroll/stepcore/pkg/batch/support/util/logger"
)

// DialectorFactory creates a gorm.Dialector from a data source name.
type DialectorFactory func(dsn string) gorm.Dialector

var (
	dialectorMutex    sync.RWMutex
	dialectorRegistry = map[string]DialectorFactory{
		"sqlite":   func(dsn string) gorm.Dialector { return sqlite.Open(dsn) },
		"mysql":    func(dsn string) gorm.Dialector { return mysql.Open(dsn) },
		"postgres": func(dsn string) gorm.Dialector { return postgres.Open(dsn) },
	}
)

// RegisterDialector registers a DialectorFactory for the given dialect name.
func RegisterDialector(dialect string, factory DialectorFactory) {
	dialectorMutex.Lock()
	defer dialectorMutex.Unlock()
	dialect = strings.ToLower(dialect)
	if _, exists := dialectorRegistry[dialect]; exists {
		logger.Warnf("Dialector for '%s' already registered. Overwriting.", dialect)
	}
	dialectorRegistry[dialect] = factory
}

// GetDialectorFactory returns the DialectorFactory registered for dialect.
// "redshift" is served by the postgres dialector.
func GetDialectorFactory(dialect string) (DialectorFactory, error) {
	dialectorMutex.RLock()
	defer dialectorMutex.RUnlock()
	dialect = strings.ToLower(dialect)
	if dialect == "redshift" {
		dialect = "postgres"
	}
	factory, ok := dialectorRegistry[dialect]
	if !ok {
		return nil, fmt.Errorf("no dialector registered for database dialect: %s", dialect)
	}
	return factory, nil
}
