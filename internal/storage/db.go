package storage

import (
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

// Open initializes the database connection and performs migrations.
func Open(dsn string) (*gorm.DB, error) {
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{})
	if err != nil {
		return nil, err
	}
	if err := db.AutoMigrate(&GameRecord{}, &MoveRecord{}); err != nil {
		return nil, err
	}
	return db, nil
}
