package main

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/httprate"
	_ "github.com/go-sql-driver/mysql"
	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/mysql"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	httpSwagger "github.com/swaggo/http-swagger"
	"go.uber.org/zap"

	_ "github.com/courseloom/backend/docs"
	"github.com/courseloom/backend/internal/auth"
	"github.com/courseloom/backend/internal/config"
	"github.com/courseloom/backend/internal/handlers"
	"github.com/courseloom/backend/internal/logger"
	"github.com/courseloom/backend/internal/middleware"
	"github.com/courseloom/backend/internal/repositories"
	"github.com/courseloom/backend/internal/services"
	"github.com/courseloom/backend/internal/storage"
)

const maxRequestSize = 1 * 1024 * 1024 // 1MB, read-only API

// @title CourseLoom Access API
// @version 1.0
// @description API for course entitlements, playback tokens and signed attachment URLs
// @termsOfService http://swagger.io/terms/

// @contact.name API Support
// @contact.email support@courseloom.dev

// @license.name Apache 2.0
// @license.url http://www.apache.org/licenses/LICENSE-2.0.html

// @host localhost:8080
// @BasePath /api/v1
// @securityDefinitions.apikey ApiKeyAuth
// @in header
// @name X-API-Key
// @description API key for service-to-service authentication
func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v\n", err)
	}

	// Initialize logger
	if err := logger.Init(cfg.Logging.Level); err != nil {
		log.Fatalf("Failed to initialize logger: %v\n", err)
	}
	defer logger.Sync()

	logger.Logger.Info("Starting CourseLoom Access Service")

	// Connect to database
	db, err := connectDB(cfg.DSN())
	if err != nil {
		logger.Logger.Fatal("Failed to connect to database", zap.Error(err))
		os.Exit(1)
	}
	defer db.Close()

	// Run migrations
	if err := runMigrations(db); err != nil {
		logger.Logger.Fatal("Failed to run migrations", zap.Error(err))
	}

	// Initialize session verifier (for auth middleware)
	sessionVerifier := auth.NewSessionVerifier(cfg.JWT.Secret, cfg.JWT.AccessTokenExpiry)

	// Initialize repositories
	catalogRepo := repositories.NewCatalogRepository(db, logger.Logger)
	purchaseRepo := repositories.NewPurchaseRepository(db, logger.Logger)
	progressRepo := repositories.NewProgressRepository(db, logger.Logger)

	// Initialize services
	tokenService, err := services.NewTokenService(cfg.Video, logger.Logger)
	if err != nil {
		logger.Logger.Fatal("Failed to initialize token service", zap.Error(err))
	}
	storageClient := storage.NewSignedURLClient(cfg.Storage, logger.Logger)
	entitlementService := services.NewEntitlementService(catalogRepo, purchaseRepo, logger.Logger)
	accessService := services.NewAccessService(
		entitlementService,
		tokenService,
		storageClient,
		catalogRepo,
		cfg.Storage.URLTTL,
		logger.Logger,
	)
	progressService := services.NewProgressService(catalogRepo, purchaseRepo, progressRepo, logger.Logger)

	// Initialize middleware
	authMw := middleware.AuthMiddleware(sessionVerifier)
	apiKeyMw := middleware.APIKeyMiddleware(cfg.APIKey)

	// Initialize handlers
	accessHandler := handlers.NewAccessHandler(accessService, logger.Logger)
	progressHandler := handlers.NewProgressHandler(progressService, logger.Logger)

	// Setup router
	r := chi.NewRouter()

	// Apply middleware
	r.Use(middleware.RequestIDMiddleware)
	r.Use(middleware.LoggerMiddleware(logger.Logger))
	r.Use(middleware.RecoveryMiddleware(logger.Logger))
	r.Use(middleware.CORSMiddleware(cfg.CORS.AllowedOrigins))
	r.Use(httprate.LimitByIP(100, time.Minute))
	r.Use(middleware.RequestSizeLimitMiddleware(maxRequestSize))

	// Swagger documentation
	r.Get("/swagger/*", httpSwagger.Handler(
		httpSwagger.URL(fmt.Sprintf("http://localhost:%d/swagger/doc.json", cfg.Server.Port)),
	))

	// Scope router to /api/v1
	r.Route("/api/v1", func(r chi.Router) {
		// User-facing endpoints require a session
		r.Group(func(r chi.Router) {
			r.Use(authMw)
			accessHandler.RegisterRoutes(r)
			progressHandler.RegisterRoutes(r)
		})

		// Service-to-service endpoints require the API key
		r.Route("/internal", func(r chi.Router) {
			r.Use(apiKeyMw)
			accessHandler.RegisterInternalRoutes(r)
		})
	})

	// Start server
	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in goroutine
	go func() {
		logger.Logger.Info("Server starting", zap.Int("port", cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Logger.Fatal("Server failed to start", zap.Error(err))
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Logger.Info("Shutting down server...")

	// Graceful shutdown
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		logger.Logger.Error("Server forced to shutdown", zap.Error(err))
	}

	logger.Logger.Info("Server exited")
}

// connectDB connects to the database
func connectDB(dsn string) (*sql.DB, error) {
	db, err := sql.Open("mysql", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return db, nil
}

// runMigrations runs database migrations
func runMigrations(db *sql.DB) error {
	driver, err := mysql.WithInstance(db, &mysql.Config{
		MigrationsTable: "access_schema_migrations",
	})
	if err != nil {
		return fmt.Errorf("failed to create migration driver: %w", err)
	}

	// Get the working directory or use migrations folder relative to the binary
	migrationPath := "file://migrations"
	if _, err := os.Stat("migrations"); os.IsNotExist(err) {
		// Try parent directory if running from cmd
		if _, err := os.Stat("../migrations"); err == nil {
			migrationPath = "file://../migrations"
		}
	}

	m, err := migrate.NewWithDatabaseInstance(
		migrationPath,
		"mysql",
		driver,
	)
	if err != nil {
		return fmt.Errorf("failed to create migrate instance: %w", err)
	}

	if err := m.Up(); err != nil && err != migrate.ErrNoChange {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	return nil
}
