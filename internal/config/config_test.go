package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfigEmbeddedDefaults(t *testing.T) {
	t.Setenv("BACKEND", "")
	t.Setenv("DB_DRIVER", "")
	t.Setenv("BLOB_BACKEND", "")
	t.Setenv("JWT_SECRET", "secret")
	t.Setenv("SESSION_TTL", "")
	t.Setenv("MAX_UPLOAD_BYTES", "")

	cfg := LoadConfig()

	assert.Equal(t, BackendEmbedded, cfg.Backend)
	assert.Equal(t, DriverSQLite, cfg.DBDriver)
	assert.Equal(t, BlobDisk, cfg.BlobBackend)
	assert.Equal(t, 30*time.Minute, cfg.SessionTTL)
	assert.Equal(t, int64(5*1024*1024), cfg.MaxUploadBytes)
	require.NoError(t, cfg.Validate())
}

func TestLoadConfigHostedDefaults(t *testing.T) {
	t.Setenv("BACKEND", "hosted")
	t.Setenv("DB_DRIVER", "")
	t.Setenv("BLOB_BACKEND", "")
	t.Setenv("JWT_SECRET", "secret")

	cfg := LoadConfig()

	assert.Equal(t, DriverMySQL, cfg.DBDriver)
	assert.Equal(t, BlobS3, cfg.BlobBackend)
	assert.Equal(t, "receipts", cfg.S3Bucket)
}

func TestLoadConfigOverrides(t *testing.T) {
	t.Setenv("BACKEND", "hosted")
	t.Setenv("DB_DRIVER", "postgres")
	t.Setenv("LOGIN_LOCK_DURATION", "5m")
	t.Setenv("LOGIN_MAX_ATTEMPTS", "3")
	t.Setenv("APP_TIMEZONE", "Europe/Istanbul")
	t.Setenv("PUBLIC_BASE_URL", "https://receipts.example.com/")

	cfg := LoadConfig()

	assert.Equal(t, DriverPostgres, cfg.DBDriver)
	assert.Equal(t, 5*time.Minute, cfg.LoginLockDuration)
	assert.Equal(t, 3, cfg.LoginMaxAttempts)
	assert.Equal(t, "Europe/Istanbul", cfg.Location.String())
	assert.Equal(t, "https://receipts.example.com", cfg.PublicBaseURL)
}

func TestValidateRejectsBadValues(t *testing.T) {
	base := func() *Config {
		return &Config{
			Backend:          BackendEmbedded,
			DBDriver:         DriverSQLite,
			BlobBackend:      BlobDisk,
			JWTSecret:        "secret",
			MaxUploadBytes:   1,
			LoginMaxAttempts: 5,
		}
	}

	cfg := base()
	cfg.Backend = "cloud"
	assert.Error(t, cfg.Validate())

	cfg = base()
	cfg.DBDriver = "oracle"
	assert.Error(t, cfg.Validate())

	cfg = base()
	cfg.BlobBackend = "ftp"
	assert.Error(t, cfg.Validate())

	cfg = base()
	cfg.JWTSecret = ""
	assert.EqualError(t, cfg.Validate(), "JWT_SECRET is required")
}
