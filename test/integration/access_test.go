package integration

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"database/sql"
	"encoding/json"
	"encoding/pem"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	_ "github.com/go-sql-driver/mysql"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/courseloom/backend/internal/auth"
	"github.com/courseloom/backend/internal/config"
	"github.com/courseloom/backend/internal/handlers"
	"github.com/courseloom/backend/internal/middleware"
	"github.com/courseloom/backend/internal/models"
	"github.com/courseloom/backend/internal/repositories"
	"github.com/courseloom/backend/internal/services"
	"github.com/courseloom/backend/internal/storage"
)

var (
	testDB       *sql.DB
	testRouter   chi.Router
	testLogger   *zap.Logger
	testVerifier *auth.SessionVerifier
	storageStub  *httptest.Server
)

// seedTestData inserts a small published catalog with purchases and progress
func seedTestData(t *testing.T, db *sql.DB) {
	t.Helper()

	cleanupTestData(t, db)

	statements := []string{
		`INSERT INTO courses (id, title, is_published) VALUES
			('course-1', 'Go from Scratch', 1),
			('course-2', 'Advanced Concurrency', 1),
			('course-3', 'Unreleased Draft', 0)`,
		`INSERT INTO chapters (id, course_id, title, position, is_published) VALUES
			('chapter-1', 'course-1', 'Basics', 1, 1),
			('chapter-2', 'course-1', 'Types', 2, 1),
			('chapter-3', 'course-2', 'Channels', 1, 1),
			('chapter-4', 'course-3', 'Draft', 1, 0)`,
		`INSERT INTO lessons (id, chapter_id, title, position, is_published, video_reference) VALUES
			('lesson-1', 'chapter-1', 'Hello World', 1, 1, 'a1B2c3D4e5F6g7H8i9J0k1L2m3N4o5P6'),
			('lesson-2', 'chapter-1', 'Variables', 2, 1, 'https://stream.example.com/b9Y8x7W6v5U4t3S2r1Q0p9O8n7M6l5K4.m3u8'),
			('lesson-3', 'chapter-2', 'Structs', 1, 1, 'c1D2e3F4g5H6i7J8k9L0m1N2o3P4q5R6'),
			('lesson-4', 'chapter-3', 'Select Loops', 1, 1, 'd1E2f3G4h5I6j7K8l9M0n1O2p3Q4r5S6'),
			('lesson-5', 'chapter-4', 'Hidden', 1, 1, 'e1F2g3H4i5J6k7L8m9N0o1P2q3R4s5T6')`,
		`INSERT INTO attachments (id, lesson_id, name, storage_reference) VALUES
			('att-1', 'lesson-2', 'slides.pdf', 'lesson-2/slides.pdf'),
			('att-2', 'lesson-2', 'stale.pdf', 'lesson-2/stale.pdf?token=eyJhbGci')`,
		`INSERT INTO purchases (id, user_id, course_id) VALUES
			('pur-1', 'user-buyer', 'course-1')`,
		`INSERT INTO lesson_purchases (id, user_id, lesson_id, created_at) VALUES
			('lpur-1', 'user-single', 'lesson-2', '2024-01-01 10:00:00'),
			('lpur-2', 'user-single', 'lesson-4', '2024-01-02 10:00:00')`,
		`INSERT INTO user_progress (id, user_id, lesson_id, is_completed, progress_percent, minutes_remaining) VALUES
			('prog-1', 'user-buyer', 'lesson-1', 1, 100, 0),
			('prog-2', 'user-buyer', 'lesson-2', 0, 40, 9),
			('prog-3', 'user-single', 'lesson-2', 0, 70, 4)`,
	}

	for _, stmt := range statements {
		_, err := db.Exec(stmt)
		require.NoError(t, err, "Failed to seed test data")
	}
}

// cleanupTestData removes all test data
func cleanupTestData(t *testing.T, db *sql.DB) {
	t.Helper()
	for _, table := range []string{"user_progress", "lesson_purchases", "purchases", "attachments", "lessons", "chapters", "courses"} {
		_, err := db.Exec("DELETE FROM " + table)
		require.NoError(t, err, "Failed to cleanup test data")
	}
}

// bearerToken mints a session token for the given identity
func bearerToken(t *testing.T, userID string, role models.Role) string {
	t.Helper()
	token, err := testVerifier.GenerateAccessToken(userID, role)
	require.NoError(t, err)
	return "Bearer " + token
}

// setupTestRouter wires the full access stack against the test database
func setupTestRouter(db *sql.DB, logger *zap.Logger, videoCfg config.VideoConfig, storageCfg config.StorageConfig) chi.Router {
	catalogRepo := repositories.NewCatalogRepository(db, logger)
	purchaseRepo := repositories.NewPurchaseRepository(db, logger)
	progressRepo := repositories.NewProgressRepository(db, logger)

	tokenService, err := services.NewTokenService(videoCfg, logger)
	if err != nil {
		panic(fmt.Sprintf("Failed to initialize token service: %v", err))
	}
	storageClient := storage.NewSignedURLClient(storageCfg, logger)
	entitlementService := services.NewEntitlementService(catalogRepo, purchaseRepo, logger)
	accessService := services.NewAccessService(entitlementService, tokenService, storageClient, catalogRepo, 15*time.Minute, logger)
	progressService := services.NewProgressService(catalogRepo, purchaseRepo, progressRepo, logger)

	accessHandler := handlers.NewAccessHandler(accessService, logger)
	progressHandler := handlers.NewProgressHandler(progressService, logger)

	r := chi.NewRouter()
	r.Route("/api/v1", func(r chi.Router) {
		r.Group(func(r chi.Router) {
			r.Use(middleware.AuthMiddleware(testVerifier))
			accessHandler.RegisterRoutes(r)
			progressHandler.RegisterRoutes(r)
		})
	})

	return r
}

// TestMain sets up and tears down the test environment
func TestMain(m *testing.M) {
	var err error
	testLogger, err = zap.NewDevelopment()
	if err != nil {
		panic(fmt.Sprintf("Failed to initialize logger: %v", err))
	}

	cfg, err := config.LoadTestConfig()
	if err != nil {
		panic(fmt.Sprintf("Failed to load test config: %v", err))
	}
	dsn := cfg.DSN()
	if dsn == "" {
		// Default test database connection
		dsn = "root:password@tcp(localhost:3306)/courseloom_test?parseTime=true&charset=utf8mb4"
	}

	testDB, err = sql.Open("mysql", dsn)
	if err != nil {
		panic(fmt.Sprintf("Failed to connect to test database: %v", err))
	}

	if err = testDB.Ping(); err != nil {
		panic(fmt.Sprintf("Failed to ping test database: %v", err))
	}

	setupTestSchemaForMain(testDB)

	testVerifier = auth.NewSessionVerifier(cfg.JWT.Secret, cfg.JWT.AccessTokenExpiry)

	// Throwaway RSA key for playback token signing
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		panic(fmt.Sprintf("Failed to generate signing key: %v", err))
	}
	keyPEM := pem.EncodeToMemory(&pem.Block{Type: "RSA PRIVATE KEY", Bytes: x509.MarshalPKCS1PrivateKey(key)})

	// Stub storage provider that signs everything it is asked about
	storageStub = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]string{
			"signedURL": r.URL.Path + "?token=stub-signature",
		})
	}))

	videoCfg := config.VideoConfig{SigningKey: string(keyPEM), KeyID: "integration-key", TokenTTL: 5 * time.Minute}
	storageCfg := config.StorageConfig{BaseURL: storageStub.URL, ServiceKey: "stub-service-key", Bucket: "course-assets"}

	testRouter = setupTestRouter(testDB, testLogger, videoCfg, storageCfg)

	code := m.Run()

	storageStub.Close()
	if testDB != nil {
		testDB.Close()
	}
	os.Exit(code)
}

// setupTestSchemaForMain creates the test database schema (for TestMain)
func setupTestSchemaForMain(db *sql.DB) {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS courses (
			id VARCHAR(36) PRIMARY KEY,
			title VARCHAR(255) NOT NULL,
			is_published BOOLEAN NOT NULL DEFAULT FALSE
		) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,
		`CREATE TABLE IF NOT EXISTS chapters (
			id VARCHAR(36) PRIMARY KEY,
			course_id VARCHAR(36) NOT NULL,
			title VARCHAR(255) NOT NULL,
			position INT NOT NULL DEFAULT 0,
			is_published BOOLEAN NOT NULL DEFAULT FALSE
		) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,
		`CREATE TABLE IF NOT EXISTS lessons (
			id VARCHAR(36) PRIMARY KEY,
			chapter_id VARCHAR(36) NOT NULL,
			title VARCHAR(255) NOT NULL,
			position INT NOT NULL DEFAULT 0,
			is_published BOOLEAN NOT NULL DEFAULT FALSE,
			video_reference VARCHAR(2048) NULL
		) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,
		`CREATE TABLE IF NOT EXISTS attachments (
			id VARCHAR(36) PRIMARY KEY,
			lesson_id VARCHAR(36) NOT NULL,
			name VARCHAR(255) NOT NULL,
			storage_reference VARCHAR(2048) NULL
		) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,
		`CREATE TABLE IF NOT EXISTS purchases (
			id VARCHAR(36) PRIMARY KEY,
			user_id VARCHAR(36) NOT NULL,
			course_id VARCHAR(36) NOT NULL,
			created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
			UNIQUE KEY uq_purchases_user_course (user_id, course_id)
		) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,
		`CREATE TABLE IF NOT EXISTS lesson_purchases (
			id VARCHAR(36) PRIMARY KEY,
			user_id VARCHAR(36) NOT NULL,
			lesson_id VARCHAR(36) NOT NULL,
			created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
			UNIQUE KEY uq_lesson_purchases_user_lesson (user_id, lesson_id)
		) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,
		`CREATE TABLE IF NOT EXISTS user_progress (
			id VARCHAR(36) PRIMARY KEY,
			user_id VARCHAR(36) NOT NULL,
			lesson_id VARCHAR(36) NOT NULL,
			is_completed BOOLEAN NOT NULL DEFAULT FALSE,
			progress_percent INT NOT NULL DEFAULT 0,
			minutes_remaining INT NOT NULL DEFAULT 0,
			UNIQUE KEY uq_user_progress_user_lesson (user_id, lesson_id)
		) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,
	}

	for _, stmt := range statements {
		db.Exec(stmt)
	}
}

func TestIntegration_AccessDecision(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration tests in short mode")
	}

	seedTestData(t, testDB)
	defer cleanupTestData(t, testDB)

	tests := []struct {
		name            string
		lessonID        string
		authorization   string
		expectedStatus  int
		expectedGranted bool
		expectedReason  models.AccessReason
	}{
		{
			name:            "full course purchase",
			lessonID:        "lesson-3",
			authorization:   bearerToken(t, "user-buyer", models.RoleUser),
			expectedStatus:  http.StatusOK,
			expectedGranted: true,
			expectedReason:  models.ReasonFullCourse,
		},
		{
			name:            "single lesson purchase",
			lessonID:        "lesson-2",
			authorization:   bearerToken(t, "user-single", models.RoleUser),
			expectedStatus:  http.StatusOK,
			expectedGranted: true,
			expectedReason:  models.ReasonSingleLesson,
		},
		{
			name:            "free preview for first lesson",
			lessonID:        "lesson-1",
			authorization:   bearerToken(t, "user-none", models.RoleUser),
			expectedStatus:  http.StatusOK,
			expectedGranted: true,
			expectedReason:  models.ReasonFreePreview,
		},
		{
			name:            "locked lesson",
			lessonID:        "lesson-3",
			authorization:   bearerToken(t, "user-none", models.RoleUser),
			expectedStatus:  http.StatusOK,
			expectedGranted: false,
			expectedReason:  models.ReasonPurchaseRequired,
		},
		{
			name:            "privileged role",
			lessonID:        "lesson-4",
			authorization:   bearerToken(t, "admin-1", models.RoleSuperAdmin),
			expectedStatus:  http.StatusOK,
			expectedGranted: true,
			expectedReason:  models.ReasonPrivileged,
		},
		{
			name:            "lesson under unpublished course is invisible",
			lessonID:        "lesson-5",
			authorization:   bearerToken(t, "admin-1", models.RoleSuperAdmin),
			expectedStatus:  http.StatusOK,
			expectedGranted: false,
			expectedReason:  models.ReasonNotFound,
		},
		{
			name:           "missing session",
			lessonID:       "lesson-1",
			authorization:  "",
			expectedStatus: http.StatusUnauthorized,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/api/v1/lessons/"+tt.lessonID+"/access", nil)
			if tt.authorization != "" {
				req.Header.Set("Authorization", tt.authorization)
			}
			w := httptest.NewRecorder()

			testRouter.ServeHTTP(w, req)

			assert.Equal(t, tt.expectedStatus, w.Code)

			if tt.expectedStatus == http.StatusOK {
				var decision models.Decision
				require.NoError(t, json.NewDecoder(w.Body).Decode(&decision))
				assert.Equal(t, tt.expectedGranted, decision.Granted)
				assert.Equal(t, tt.expectedReason, decision.Reason)
			}
		})
	}
}

func TestIntegration_PlaybackTokens(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration tests in short mode")
	}

	seedTestData(t, testDB)
	defer cleanupTestData(t, testDB)

	tests := []struct {
		name               string
		lessonID           string
		authorization      string
		expectedStatus     int
		expectedPlaybackID string
	}{
		{
			name:               "purchased lesson mints tokens",
			lessonID:           "lesson-1",
			authorization:      bearerToken(t, "user-buyer", models.RoleUser),
			expectedStatus:     http.StatusOK,
			expectedPlaybackID: "a1B2c3D4e5F6g7H8i9J0k1L2m3N4o5P6",
		},
		{
			name:               "url video reference normalizes to its playback id",
			lessonID:           "lesson-2",
			authorization:      bearerToken(t, "user-buyer", models.RoleUser),
			expectedStatus:     http.StatusOK,
			expectedPlaybackID: "b9Y8x7W6v5U4t3S2r1Q0p9O8n7M6l5K4",
		},
		{
			name:           "locked lesson is forbidden",
			lessonID:       "lesson-3",
			authorization:  bearerToken(t, "user-none", models.RoleUser),
			expectedStatus: http.StatusForbidden,
		},
		{
			name:           "unknown lesson",
			lessonID:       "lesson-999",
			authorization:  bearerToken(t, "user-buyer", models.RoleUser),
			expectedStatus: http.StatusNotFound,
		},
		{
			name:           "missing session",
			lessonID:       "lesson-1",
			authorization:  "",
			expectedStatus: http.StatusUnauthorized,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/api/v1/lessons/"+tt.lessonID+"/playback", nil)
			if tt.authorization != "" {
				req.Header.Set("Authorization", tt.authorization)
			}
			w := httptest.NewRecorder()

			testRouter.ServeHTTP(w, req)

			assert.Equal(t, tt.expectedStatus, w.Code)

			if tt.expectedStatus == http.StatusOK {
				var tokens models.PlaybackTokens
				require.NoError(t, json.NewDecoder(w.Body).Decode(&tokens))
				assert.Equal(t, tt.expectedPlaybackID, tokens.PlaybackID)
				assert.NotEmpty(t, tokens.PlaybackToken)
				assert.NotEmpty(t, tokens.ThumbnailToken)
				assert.NotEmpty(t, tokens.StoryboardToken)
				assert.True(t, tokens.ExpiresAt.After(time.Now()))
			}
		})
	}
}

func TestIntegration_AttachmentURL(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration tests in short mode")
	}

	seedTestData(t, testDB)
	defer cleanupTestData(t, testDB)

	tests := []struct {
		name           string
		attachmentID   string
		query          string
		authorization  string
		expectedStatus int
	}{
		{
			name:           "entitled user gets a signed url",
			attachmentID:   "att-1",
			authorization:  bearerToken(t, "user-single", models.RoleUser),
			expectedStatus: http.StatusOK,
		},
		{
			name:           "download disposition",
			attachmentID:   "att-1",
			query:          "?download=true",
			authorization:  bearerToken(t, "user-single", models.RoleUser),
			expectedStatus: http.StatusOK,
		},
		{
			name:           "stale signed reference is rejected",
			attachmentID:   "att-2",
			authorization:  bearerToken(t, "user-single", models.RoleUser),
			expectedStatus: http.StatusUnprocessableEntity,
		},
		{
			name:           "unentitled user is forbidden",
			attachmentID:   "att-1",
			authorization:  bearerToken(t, "user-none", models.RoleUser),
			expectedStatus: http.StatusForbidden,
		},
		{
			name:           "unknown attachment",
			attachmentID:   "att-999",
			authorization:  bearerToken(t, "user-single", models.RoleUser),
			expectedStatus: http.StatusNotFound,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/api/v1/attachments/"+tt.attachmentID+"/url"+tt.query, nil)
			if tt.authorization != "" {
				req.Header.Set("Authorization", tt.authorization)
			}
			w := httptest.NewRecorder()

			testRouter.ServeHTTP(w, req)

			assert.Equal(t, tt.expectedStatus, w.Code)

			if tt.expectedStatus == http.StatusOK {
				var body map[string]string
				require.NoError(t, json.NewDecoder(w.Body).Decode(&body))
				assert.Contains(t, body["url"], "token=stub-signature")
				if tt.query != "" {
					assert.Contains(t, body["url"], "download=")
				}
			}
		})
	}
}

func TestIntegration_ProgressView(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration tests in short mode")
	}

	seedTestData(t, testDB)
	defer cleanupTestData(t, testDB)

	getView := func(t *testing.T, authorization string) []models.LessonProgressItem {
		t.Helper()
		req := httptest.NewRequest(http.MethodGet, "/api/v1/me/progress", nil)
		req.Header.Set("Authorization", authorization)
		w := httptest.NewRecorder()

		testRouter.ServeHTTP(w, req)

		require.Equal(t, http.StatusOK, w.Code)
		var view []models.LessonProgressItem
		require.NoError(t, json.NewDecoder(w.Body).Decode(&view))
		return view
	}

	t.Run("full course purchase in canonical order", func(t *testing.T) {
		view := getView(t, bearerToken(t, "user-buyer", models.RoleUser))

		require.Len(t, view, 3)
		assert.Equal(t, "lesson-1", view[0].LessonID)
		assert.Equal(t, "lesson-2", view[1].LessonID)
		assert.Equal(t, "lesson-3", view[2].LessonID)

		assert.Equal(t, 100, view[0].ProgressPercent)
		assert.Equal(t, 40, view[1].ProgressPercent)
		assert.Equal(t, 0, view[2].ProgressPercent)
	})

	t.Run("single lesson purchases in purchase order", func(t *testing.T) {
		view := getView(t, bearerToken(t, "user-single", models.RoleUser))

		require.Len(t, view, 2)
		assert.Equal(t, "lesson-2", view[0].LessonID)
		assert.Equal(t, 70, view[0].ProgressPercent)
		assert.Equal(t, "lesson-4", view[1].LessonID)
		assert.Equal(t, 0, view[1].ProgressPercent)
	})

	t.Run("privileged view lists every published lesson at zero", func(t *testing.T) {
		view := getView(t, bearerToken(t, "admin-1", models.RoleSuperAdmin))

		require.Len(t, view, 4)
		for _, item := range view {
			assert.Equal(t, 0, item.ProgressPercent)
			assert.NotEqual(t, "lesson-5", item.LessonID)
		}
	})

	t.Run("no purchases yields empty view", func(t *testing.T) {
		view := getView(t, bearerToken(t, "user-none", models.RoleUser))
		assert.Empty(t, view)
	})
}

func TestIntegration_EntitlementLayer(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration tests in short mode")
	}

	seedTestData(t, testDB)
	defer cleanupTestData(t, testDB)

	logger, _ := zap.NewDevelopment()
	catalogRepo := repositories.NewCatalogRepository(testDB, logger)
	purchaseRepo := repositories.NewPurchaseRepository(testDB, logger)
	svc := services.NewEntitlementService(catalogRepo, purchaseRepo, logger)
	ctx := context.Background()

	t.Run("free preview tracks reordering", func(t *testing.T) {
		decision, _, err := svc.Resolve(ctx, "user-none", models.RoleUser, "lesson-1")
		require.NoError(t, err)
		assert.Equal(t, models.Grant(models.ReasonFreePreview), decision)

		// Move chapter-2 ahead of chapter-1: lesson-3 becomes the preview
		_, err = testDB.Exec("UPDATE chapters SET position = 0 WHERE id = 'chapter-2'")
		require.NoError(t, err)
		defer testDB.Exec("UPDATE chapters SET position = 2 WHERE id = 'chapter-2'")

		decision, _, err = svc.Resolve(ctx, "user-none", models.RoleUser, "lesson-3")
		require.NoError(t, err)
		assert.Equal(t, models.Grant(models.ReasonFreePreview), decision)

		decision, _, err = svc.Resolve(ctx, "user-none", models.RoleUser, "lesson-1")
		require.NoError(t, err)
		assert.Equal(t, models.Deny(models.ReasonPurchaseRequired), decision)
	})

	t.Run("unpublishing a chapter hides its lessons", func(t *testing.T) {
		_, err := testDB.Exec("UPDATE chapters SET is_published = 0 WHERE id = 'chapter-2'")
		require.NoError(t, err)
		defer testDB.Exec("UPDATE chapters SET is_published = 1 WHERE id = 'chapter-2'")

		decision, _, err := svc.Resolve(ctx, "user-buyer", models.RoleUser, "lesson-3")
		require.NoError(t, err)
		assert.Equal(t, models.Deny(models.ReasonNotFound), decision)
	})
}
