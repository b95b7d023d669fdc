package db

import (
	"errors" // Error inspection
	"strings"

	"receipt_desk/internal/domain" // Importing domain models
	"receipt_desk/internal/utils"  // Password hashing

	"github.com/sirupsen/logrus"
	"gorm.io/gorm" // GORM ORM library
)

// Migrate performs automatic migration for the database schema
func Migrate(db *gorm.DB) error {
	// AutoMigrate will create tables, missing columns and indexes
	if err := db.AutoMigrate(&domain.Ticket{}, &domain.Admin{}); err != nil {
		return err
	}
	if err := backfillSearchText(db); err != nil {
		return err
	}
	logrus.Info("Migration completed.") // Log successful migration
	return nil
}

// backfillSearchText fills search_text for rows written before the column existed
func backfillSearchText(db *gorm.DB) error {
	var batch []domain.Ticket
	filled := 0
	err := db.Where("search_text IS NULL OR search_text = ''").
		FindInBatches(&batch, 200, func(_ *gorm.DB, _ int) error {
			for i := range batch {
				batch[i].FillSearchText()
				err := db.Model(&domain.Ticket{}).Where("id = ?", batch[i].ID).
					UpdateColumn("search_text", batch[i].SearchText).Error
				if err != nil {
					return err
				}
				filled++
			}
			return nil
		}).Error
	if err != nil {
		return err
	}
	if filled > 0 {
		logrus.WithField("tickets", filled).Info("Search text backfilled")
	}
	return nil
}

// SeedAdmin creates the bootstrap admin account when it does not exist yet.
// An existing account is left untouched so a changed password is never overwritten.
func SeedAdmin(db *gorm.DB, username, password string) error {
	username = strings.ToLower(strings.TrimSpace(username))
	if username == "" || password == "" {
		return nil // Nothing to seed
	}
	var existing domain.Admin
	err := db.Where("username = ?", username).First(&existing).Error
	if err == nil {
		return nil // Already present
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return err
	}
	hash, err := utils.HashPassword(password, utils.DefaultCost)
	if err != nil {
		return err
	}
	admin := domain.Admin{Username: username, Password: hash, Role: domain.RoleAdmin}
	if err := db.Create(&admin).Error; err != nil {
		return err
	}
	logrus.WithField("username", username).Info("Bootstrap admin created")
	return nil
}
