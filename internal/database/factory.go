package database

import (
	"fmt"
	"os"
	"path/filepath"

	"lapse-go/internal/config"
	"lapse-go/internal/lapse"
)

// NewDatabaseFromConfig creates a Database implementation based on the database config type.
func NewDatabaseFromConfig(cfg config.DatabaseConfig) (lapse.Database, error) {
	switch cfg.Type {
	case "sqlite":
		if cfg.DataDir == "" {
			return nil, fmt.Errorf("data_dir required for sqlite database")
		}
		if err := os.MkdirAll(cfg.DataDir, 0700); err != nil {
			return nil, lapse.NewStorageError("creating data directory", err)
		}
		return NewSQLiteDatabase(filepath.Join(cfg.DataDir, "lapse.db"))
	case "memory":
		return NewSQLiteDatabase(":memory:")
	default:
		return nil, fmt.Errorf("unknown database type: %s", cfg.Type)
	}
}
