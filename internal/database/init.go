package database

import (
	"github.com/pkg/errors"
	"gorm.io/gorm"

	"github.com/asergian/beacon-sub001/config"
)

// InitDatabase returns nil without error when no database is configured.
func InitDatabase(dbConfig *config.DatabaseConfig) (*gorm.DB, error) {
	if !dbConfig.Enabled() {
		return nil, nil
	}
	db, err := NewConnection(dbConfig)
	if err != nil {
		return nil, errors.Wrap(err, "failed to connect to the database")
	}
	return db, nil
}
