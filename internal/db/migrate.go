package db

import (
	"coinpicks/internal/models"
)

func AutoMigrate(db *DB) error {
	if db == nil || db.Gorm == nil || db.SQL == nil {
		return nil
	}

	return db.Gorm.AutoMigrate(
		&models.Round{},
		&models.RoundEntry{},
		&models.MarketCoin{},
		&models.PredictionSnapshot{},
		&models.PointTransaction{},
		&models.PipelineLock{},
	)
}
