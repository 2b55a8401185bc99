package database

import (
	"fmt"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/mikepea/marknotes/pkg/marknotes/models"
)

var DB *gorm.DB

// Open opens a SQLite database and runs migrations. Driver errors are
// translated so unique violations surface as gorm.ErrDuplicatedKey.
// SQLite allows a single writer, so the pool is limited to one connection;
// this also keeps ":memory:" databases alive across queries.
func Open(dsn string) (*gorm.DB, error) {
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		TranslateError: true,
		Logger:         logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, err
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	sqlDB.SetMaxOpenConns(1)

	if err := db.Exec("PRAGMA foreign_keys = ON").Error; err != nil {
		return nil, fmt.Errorf("enable foreign keys: %w", err)
	}
	if err := models.AutoMigrate(db); err != nil {
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return db, nil
}

// Connect initializes the shared database connection.
func Connect(dsn string) error {
	var err error
	DB, err = Open(dsn)
	return err
}

// GetDB returns the database instance.
func GetDB() *gorm.DB {
	return DB
}
