package repository

import (
	"gorm.io/gorm"

	"github.com/asergian/beacon-sub001/config"
	"github.com/asergian/beacon-sub001/interfaces"
	"github.com/asergian/beacon-sub001/internal/database"
	"github.com/asergian/beacon-sub001/internal/models"
)

type Repositories struct {
	UserSettingsRepository interfaces.UserSettingsRepository
	ActivityLogRepository  interfaces.ActivityLogRepository
}

// InitRepositories returns nil when no database is available.
func InitRepositories(db *gorm.DB) *Repositories {
	if db == nil {
		return nil
	}
	return &Repositories{
		UserSettingsRepository: NewUserSettingsRepository(db),
		ActivityLogRepository:  NewActivityLogRepository(db),
	}
}

func MigrateDB(dbConfig *config.DatabaseConfig, db *gorm.DB) error {
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}

	sqlDB.SetMaxOpenConns(5)

	err = db.AutoMigrate(
		&models.UserSettings{},
		&models.ActivityLog{},
	)

	database.ConfigurePool(sqlDB, dbConfig)

	return err
}
