package database

import (
	"errors"
	"path/filepath"
	"testing"

	"gorm.io/gorm"

	"github.com/mikepea/marknotes/pkg/marknotes/models"
)

func TestOpenMigratesAndTranslatesErrors(t *testing.T) {
	db, err := Open(":memory:")
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}

	if !db.Migrator().HasTable(&models.Session{}) {
		t.Error("Expected sessions table after Open")
	}

	db.Create(&models.User{Username: "a", Email: "a@example.com", PasswordHash: "x"})
	err = db.Create(&models.User{Username: "a", Email: "b@example.com", PasswordHash: "x"}).Error
	if !errors.Is(err, gorm.ErrDuplicatedKey) {
		t.Errorf("Expected gorm.ErrDuplicatedKey, got %v", err)
	}
}

func TestConnectFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "marknotes.db")
	if err := Connect(path); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}
	if GetDB() == nil {
		t.Fatal("Expected shared DB to be set")
	}
	var count int64
	if err := GetDB().Model(&models.User{}).Count(&count).Error; err != nil {
		t.Errorf("Query failed: %v", err)
	}
}
