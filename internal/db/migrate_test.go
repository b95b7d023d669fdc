package db

import (
	"path/filepath"
	"testing"
	"time"

	"receipt_desk/internal/config"
	"receipt_desk/internal/domain"
	"receipt_desk/internal/utils"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMigrateAndSeedAdmin(t *testing.T) {
	cfg := &config.Config{
		DBDriver:   config.DriverSQLite,
		SQLitePath: filepath.Join(t.TempDir(), "nested", "tickets.db"),
		IsProd:     true,
	}
	gdb, err := Open(cfg)
	require.NoError(t, err)
	require.NoError(t, Migrate(gdb))

	require.NoError(t, SeedAdmin(gdb, " Reviewer ", "s3cret-pass"))

	var admin domain.Admin
	require.NoError(t, gdb.Where("username = ?", "reviewer").First(&admin).Error)
	assert.Equal(t, domain.RoleAdmin, admin.Role)
	assert.True(t, utils.VerifyPassword(admin.Password, "s3cret-pass"))

	// Seeding again keeps the stored hash.
	require.NoError(t, SeedAdmin(gdb, "reviewer", "another-pass"))
	var again domain.Admin
	require.NoError(t, gdb.Where("username = ?", "reviewer").First(&again).Error)
	assert.Equal(t, admin.Password, again.Password)

	var count int64
	require.NoError(t, gdb.Model(&domain.Admin{}).Count(&count).Error)
	assert.Equal(t, int64(1), count)
}

func TestSeedAdminSkipsEmptyCredentials(t *testing.T) {
	cfg := &config.Config{DBDriver: config.DriverSQLite, SQLitePath: filepath.Join(t.TempDir(), "t.db"), IsProd: true}
	gdb, err := Open(cfg)
	require.NoError(t, err)
	require.NoError(t, Migrate(gdb))
	require.NoError(t, SeedAdmin(gdb, "", "x"))

	var count int64
	require.NoError(t, gdb.Model(&domain.Admin{}).Count(&count).Error)
	assert.Zero(t, count)
}

func TestMigrateBackfillsSearchText(t *testing.T) {
	cfg := &config.Config{DBDriver: config.DriverSQLite, SQLitePath: filepath.Join(t.TempDir(), "t.db"), IsProd: true}
	gdb, err := Open(cfg)
	require.NoError(t, err)
	require.NoError(t, Migrate(gdb))

	// A row written before search_text was populated
	legacy := domain.Ticket{
		UserID:              "u1",
		RecipientName:       "Şahin Öztürk",
		RecipientIban:       "TR33",
		InvestmentMethod:    "Akbank",
		InvestmentAmount:    10,
		InvestmentDateTime:  time.Now().UTC(),
		ReceiptFileName:     "receipt-legacy.png",
		ReceiptOriginalName: "r.png",
		ReceiptMimeType:     "image/png",
		Status:              domain.StatusPending,
	}
	require.NoError(t, gdb.Create(&legacy).Error)
	require.NoError(t, gdb.Model(&domain.Ticket{}).Where("id = ?", legacy.ID).UpdateColumn("search_text", "").Error)

	require.NoError(t, Migrate(gdb))

	var got domain.Ticket
	require.NoError(t, gdb.First(&got, legacy.ID).Error)
	assert.Equal(t, "şahin öztürk tr33 akbank", got.SearchText)
}

func TestDialectorRejectsUnknownDriver(t *testing.T) {
	_, err := Dialector(&config.Config{DBDriver: "oracle"})
	assert.Error(t, err)
}
