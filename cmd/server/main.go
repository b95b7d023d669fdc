package main

import (
	"context"   // Redis ping and shutdown deadline
	"errors"    // Error inspection
	"net/http"  // HTTP server
	"os"        // Process signals
	"os/signal" // Signal notification
	"syscall"   // SIGTERM
	"time"      // Timeouts

	"receipt_desk/internal/analyzer" // Receipt OCR
	"receipt_desk/internal/api"      // HTTP handlers and routes
	"receipt_desk/internal/auth"     // Admin sessions and lockout
	"receipt_desk/internal/config"   // Configuration
	"receipt_desk/internal/db"       // Database connection and migrations
	"receipt_desk/internal/events"   // Ticket lifecycle events
	"receipt_desk/internal/service"  // Ticket service
	"receipt_desk/internal/storage"  // Ticket storage backends

	"github.com/gin-gonic/gin"     // Gin web framework
	"github.com/redis/go-redis/v9" // Redis client
	"github.com/sirupsen/logrus"   // Logrus for structured logging
)

// Main function to set up and run the server
func main() {
	cfg := config.LoadConfig() // Load configuration
	setupLogger(cfg)
	if err := cfg.Validate(); err != nil {
		logrus.Fatalf("invalid configuration: %v", err)
	}

	// Connect to the database selected by DB_DRIVER
	gdb, err := db.Open(cfg)
	if err != nil {
		logrus.Fatalf("failed to connect to DB: %v", err)
	}
	if cfg.AutoMigrate {
		if err := db.Migrate(gdb); err != nil {
			logrus.Fatalf("failed to migrate database: %v", err)
		}
	}
	if err := db.SeedAdmin(gdb, cfg.AdminUsername, cfg.AdminPassword); err != nil {
		logrus.Fatalf("failed to seed admin: %v", err)
	}

	blobs, uploadsDir, err := openBlobStore(cfg)
	if err != nil {
		logrus.Fatalf("failed to open %s blob store: %v", cfg.BlobBackend, err)
	}
	backend := storage.NewStore(cfg.Backend, gdb, blobs)

	// Setup Redis client
	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr, // Redis server address
		Password: cfg.RedisPass, // Redis password
		DB:       cfg.RedisDB,   // Redis database number
	})
	pingCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	err = redisClient.Ping(pingCtx).Err()
	cancel()
	if err != nil {
		logrus.Fatalf("failed to connect to Redis: %v", err) // Sessions live in Redis
	}

	var publisher events.Publisher = events.NoopPublisher{}
	if cfg.RabbitMQURL != "" {
		publisher = events.NewAMQPPublisher(cfg.RabbitMQURL, cfg.EventsQueue)
	}
	var extractor analyzer.TextExtractor
	if cfg.OpenAIAPIKey != "" {
		extractor = analyzer.NewOpenAIExtractor(cfg.OpenAIAPIKey, cfg.OpenAIModel)
	}

	svc := service.NewTicketService(service.Options{
		Backend:        backend,
		Redis:          redisClient,
		Publisher:      publisher,
		Extractor:      extractor,
		Location:       cfg.Location,
		MaxUploadBytes: cfg.MaxUploadBytes,
		CacheTTL:       cfg.CacheTTL,
	})

	// Set Mode to Release if in production
	if cfg.IsProd {
		gin.SetMode(gin.ReleaseMode)
	}
	router := api.SetupRouter(api.Deps{
		DB:          gdb,
		Tickets:     svc,
		Sessions:    auth.NewSessionStore(redisClient, cfg.SessionTTL),
		Lockout:     auth.NewLockout(redisClient, cfg.LoginMaxAttempts, cfg.LoginLockDuration),
		JWTSecret:   cfg.JWTSecret,
		UploadsDir:  uploadsDir,
		CORSOrigins: cfg.CORSOrigins,
	})
	// Set trusted proxies for Gin
	if err := router.SetTrustedProxies([]string{"127.0.0.1"}); err != nil {
		logrus.Fatalf("failed to set trusted proxies: %v", err)
	}

	srv := &http.Server{
		Addr:              ":" + cfg.AppPort,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		logrus.WithFields(logrus.Fields{
			"port":    cfg.AppPort,
			"backend": backend.Name(),
			"blobs":   blobs.Kind(),
			"events":  publisher.Enabled(),
			"ocr":     svc.ExtractorEnabled(),
		}).Info("Server running")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logrus.Fatalf("server failed: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logrus.Info("Shutdown signal received, shutting down gracefully...")

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		logrus.Errorf("server shutdown: %v", err)
	}
	if err := redisClient.Close(); err != nil {
		logrus.Errorf("redis close: %v", err)
	}
	if sqlDB, err := gdb.DB(); err == nil {
		if err := sqlDB.Close(); err != nil {
			logrus.Errorf("database close: %v", err)
		}
	}
	logrus.Info("Server stopped")
}

func setupLogger(cfg *config.Config) {
	if cfg.IsProd {
		logrus.SetFormatter(&logrus.JSONFormatter{})
	} else {
		logrus.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}
	level, err := logrus.ParseLevel(cfg.LogLevel)
	if err != nil {
		level = logrus.InfoLevel
	}
	logrus.SetLevel(level)
}

// openBlobStore returns the receipt store and, for the disk store, the
// directory served at /uploads.
func openBlobStore(cfg *config.Config) (storage.BlobStore, string, error) {
	if cfg.BlobBackend == config.BlobS3 {
		s3Store, err := storage.NewS3BlobStore(storage.S3Options{
			Bucket:         cfg.S3Bucket,
			Region:         cfg.S3Region,
			Endpoint:       cfg.S3Endpoint,
			AccessKey:      cfg.S3AccessKey,
			SecretKey:      cfg.S3SecretKey,
			ForcePathStyle: cfg.S3ForcePathStyle,
			PublicBaseURL:  cfg.S3PublicBaseURL,
			PresignTTL:     cfg.S3PresignTTL,
		})
		return s3Store, "", err
	}
	disk, err := storage.NewDiskBlobStore(cfg.UploadsDir, cfg.PublicBaseURL)
	if err != nil {
		return nil, "", err
	}
	return disk, disk.Dir(), nil
}
