package config

import (
	"errors"  // Validation errors
	"fmt"     // Error formatting
	"os"      // For environment variables
	"strconv" // For string to int conversion
	"strings" // For case normalization
	"time"    // For durations and time zones

	"github.com/joho/godotenv" // For loading .env files
)

// Supported backends and drivers
const (
	BackendEmbedded = "embedded" // sqlite database and local upload directory
	BackendHosted   = "hosted"   // mysql/postgres database and S3 bucket

	DriverSQLite   = "sqlite"
	DriverMySQL    = "mysql"
	DriverPostgres = "postgres"

	BlobDisk = "disk"
	BlobS3   = "s3"
)

// Config holds the application configuration
type Config struct {
	AppPort     string   // Application port
	IsProd      bool     // Is production environment
	LogLevel    string   // Logrus level name
	CORSOrigins []string // Allowed browser origins

	Backend     string // embedded or hosted
	DBDriver    string // sqlite, mysql or postgres
	SQLitePath  string // Embedded database file
	DBUser      string // Database user
	DBPassword  string // Database password
	DBHost      string // Database host
	DBPort      string // Database port
	DBName      string // Database name
	DBSSLMode   string // Postgres sslmode
	AutoMigrate bool   // Run migrations on server start

	BlobBackend      string        // disk or s3
	UploadsDir       string        // Disk blob directory
	PublicBaseURL    string        // Prefix for disk receipt URLs
	S3Bucket         string        // Receipt bucket
	S3Region         string        // Bucket region
	S3Endpoint       string        // Custom endpoint for S3-compatible stores
	S3AccessKey      string        // Static access key
	S3SecretKey      string        // Static secret key
	S3ForcePathStyle bool          // Path-style addressing
	S3PublicBaseURL  string        // Public bucket URL, pre-signed URLs when empty
	S3PresignTTL     time.Duration // Pre-signed URL lifetime

	RedisAddr string // Redis server address
	RedisPass string // Redis password
	RedisDB   int    // Redis database number

	JWTSecret         string        // JWT secret key
	SessionTTL        time.Duration // Sliding admin session window
	LoginMaxAttempts  int           // Failures before lockout
	LoginLockDuration time.Duration // Lockout cool-down
	AdminUsername     string        // Bootstrap admin username
	AdminPassword     string        // Bootstrap admin password

	CacheTTL       time.Duration  // List cache TTL
	MaxUploadBytes int64          // Receipt size cap
	Location       *time.Location // Zone for zone-less timestamps

	RabbitMQURL string // Events broker, disabled when empty
	EventsQueue string // Durable events queue

	OpenAIAPIKey string // OCR extractor key, disabled when empty
	OpenAIModel  string // OCR model
}

// LoadConfig loads configuration from environment variables
func LoadConfig() *Config {
	_ = godotenv.Load() // Load .env file if present

	backend := strings.ToLower(getEnv("BACKEND", BackendEmbedded))
	defaultDriver, defaultBlob := DriverSQLite, BlobDisk // Embedded defaults
	if backend == BackendHosted {
		defaultDriver, defaultBlob = DriverMySQL, BlobS3 // Hosted defaults
	}

	loc, err := time.LoadLocation(getEnv("APP_TIMEZONE", "UTC"))
	if err != nil {
		loc = time.UTC // Fall back to UTC on unknown zones
	}

	return &Config{
		AppPort:     getEnv("APP_PORT", "3001"),
		IsProd:      getBool("IS_PROD", false),
		LogLevel:    getEnv("LOG_LEVEL", "info"),
		CORSOrigins: strings.Split(getEnv("CORS_ORIGINS", "*"), ","),

		Backend:     backend,
		DBDriver:    strings.ToLower(getEnv("DB_DRIVER", defaultDriver)),
		SQLitePath:  getEnv("SQLITE_PATH", "data/database.db"),
		DBUser:      os.Getenv("DB_USER"),
		DBPassword:  os.Getenv("DB_PASSWORD"),
		DBHost:      getEnv("DB_HOST", "localhost"),
		DBPort:      os.Getenv("DB_PORT"),
		DBName:      os.Getenv("DB_NAME"),
		DBSSLMode:   getEnv("DB_SSLMODE", "disable"),
		AutoMigrate: getBool("AUTO_MIGRATE", true),

		BlobBackend:      strings.ToLower(getEnv("BLOB_BACKEND", defaultBlob)),
		UploadsDir:       getEnv("UPLOADS_DIR", "data/uploads"),
		PublicBaseURL:    strings.TrimRight(os.Getenv("PUBLIC_BASE_URL"), "/"),
		S3Bucket:         getEnv("S3_BUCKET", "receipts"),
		S3Region:         getEnv("S3_REGION", "us-east-1"),
		S3Endpoint:       os.Getenv("S3_ENDPOINT"),
		S3AccessKey:      os.Getenv("S3_ACCESS_KEY"),
		S3SecretKey:      os.Getenv("S3_SECRET_KEY"),
		S3ForcePathStyle: getBool("S3_FORCE_PATH_STYLE", false),
		S3PublicBaseURL:  strings.TrimRight(os.Getenv("S3_PUBLIC_BASE_URL"), "/"),
		S3PresignTTL:     getDuration("S3_PRESIGN_TTL", 15*time.Minute),

		RedisAddr: getEnv("REDIS_ADDR", "localhost:6379"),
		RedisPass: os.Getenv("REDIS_PASS"),
		RedisDB:   getInt("REDIS_DB", 0),

		JWTSecret:         os.Getenv("JWT_SECRET"),
		SessionTTL:        getDuration("SESSION_TTL", 30*time.Minute),
		LoginMaxAttempts:  getInt("LOGIN_MAX_ATTEMPTS", 5),
		LoginLockDuration: getDuration("LOGIN_LOCK_DURATION", 15*time.Minute),
		AdminUsername:     os.Getenv("ADMIN_USERNAME"),
		AdminPassword:     os.Getenv("ADMIN_PASSWORD"),

		CacheTTL:       getDuration("CACHE_TTL", 60*time.Second),
		MaxUploadBytes: int64(getInt("MAX_UPLOAD_BYTES", 5*1024*1024)),
		Location:       loc,

		RabbitMQURL: os.Getenv("RABBITMQ_URL"),
		EventsQueue: getEnv("EVENTS_QUEUE", "tickets.events"),

		OpenAIAPIKey: os.Getenv("OPENAI_API_KEY"),
		OpenAIModel:  getEnv("OPENAI_MODEL", "gpt-4.1-mini"),
	}
}

// Validate reports configuration that the server cannot start with
func (c *Config) Validate() error {
	switch c.Backend {
	case BackendEmbedded, BackendHosted:
	default:
		return fmt.Errorf("unknown BACKEND %q", c.Backend)
	}
	switch c.DBDriver {
	case DriverSQLite, DriverMySQL, DriverPostgres:
	default:
		return fmt.Errorf("unknown DB_DRIVER %q", c.DBDriver)
	}
	switch c.BlobBackend {
	case BlobDisk, BlobS3:
	default:
		return fmt.Errorf("unknown BLOB_BACKEND %q", c.BlobBackend)
	}
	if c.JWTSecret == "" {
		return errors.New("JWT_SECRET is required")
	}
	if c.MaxUploadBytes <= 0 {
		return errors.New("MAX_UPLOAD_BYTES must be positive")
	}
	if c.LoginMaxAttempts < 1 {
		return errors.New("LOGIN_MAX_ATTEMPTS must be at least 1")
	}
	return nil
}

// getEnv returns the variable or a default when unset or empty
func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getInt(key string, def int) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	if n, err := strconv.Atoi(v); err == nil {
		return n
	}
	return def
}

func getBool(key string, def bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	if b, err := strconv.ParseBool(v); err == nil {
		return b
	}
	return def
}

func getDuration(key string, def time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	if d, err := time.ParseDuration(v); err == nil {
		return d
	}
	return def
}
