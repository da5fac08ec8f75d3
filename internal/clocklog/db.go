package clocklog

import (
	"fmt"

	"github.com/glebarez/sqlite"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// OpenDB opens (and migrates) the SQLite database backing the clock log
// store at path, grounded on the same gorm.Open+AutoMigrate shape the rest
// of the ambient stack uses for its persistence layer.
func OpenDB(path string, logger *zap.Logger) (*gorm.DB, error) {
	if path == "" {
		return nil, fmt.Errorf("clocklog: database path is required")
	}

	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{})
	if err != nil {
		return nil, fmt.Errorf("clocklog: open sqlite: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	sqlDB.SetMaxOpenConns(1)

	if err := db.AutoMigrate(&User{}, &ClockLogRow{}, &File{}, &Track{}, &AudiusUser{}); err != nil {
		return nil, fmt.Errorf("clocklog: migrate schema: %w", err)
	}

	if logger != nil {
		logger.Info("clock log database initialized", zap.String("path", path))
	}

	return db, nil
}
