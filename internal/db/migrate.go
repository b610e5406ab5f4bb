package db

import (
	"nowplaying/internal/models"
)

func AutoMigrate(db *DB) error {
	if db == nil || db.Gorm == nil || db.SQL == nil {
		return nil
	}

	return db.Gorm.AutoMigrate(
		&models.Station{},
		&models.PayloadMapping{},
		&models.Connection{},
		&models.RawEvent{},
	)
}
