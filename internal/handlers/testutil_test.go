package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/google/uuid"
	"github.com/pixvault/backend/internal/config"
	"github.com/pixvault/backend/internal/middleware"
	"github.com/pixvault/backend/internal/models"
	"github.com/pixvault/backend/internal/services"
	"github.com/pixvault/backend/internal/storage"
	"github.com/pixvault/backend/pkg/logger"
	"github.com/pixvault/backend/pkg/utils"
	"gorm.io/gorm"
)

const (
	testAccessSecret  = "test-access-secret"
	testRefreshSecret = "test-refresh-secret"
)

type testEnv struct {
	app      *fiber.App
	db       *gorm.DB
	sessions *services.SessionService
	store    *memObjectStore
	tokens   *utils.TokenManager
}

var testSetupOnce sync.Once

func setupTestEnv(t *testing.T) *testEnv {
	t.Helper()

	testSetupOnce.Do(func() {
		logger.Init()
	})

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{TranslateError: true})
	if err != nil {
		t.Fatalf("failed opening in-memory sqlite database: %v", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("failed getting sql.DB from gorm: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)

	t.Cleanup(func() {
		_ = sqlDB.Close()
	})

	if err := db.AutoMigrate(&models.User{}, &models.Session{}, &models.File{}); err != nil {
		t.Fatalf("failed automigrating models: %v", err)
	}

	tokens := utils.NewTokenManager(testAccessSecret, testRefreshSecret, 15*time.Minute, 7*24*time.Hour)
	sessions := services.NewSessionService(db, tokens)
	quota := services.NewQuotaService(db)
	store := newMemObjectStore()

	cookies := middleware.NewCookieWriter(config.CookieConfig{}, tokens.AccessTTL(), tokens.RefreshTTL())
	authMiddleware := middleware.NewAuthMiddleware(sessions, cookies, nil)

	authHandler := NewAuthHandler(db, sessions, store, cookies)
	filesHandler := NewFilesHandler(db, store, quota, nil)

	app := fiber.New(fiber.Config{BodyLimit: 64 * 1024 * 1024})
	app.Use(recover.New(recover.Config{EnableStackTrace: true}))

	api := app.Group("/api")

	authRoutes := api.Group("/auth")
	authRoutes.Post("/register", authHandler.Register)
	authRoutes.Post("/login", authHandler.Login)
	authRoutes.Post("/logout", authMiddleware.RequireAuth, authHandler.Logout)
	authRoutes.Get("/me", authMiddleware.RequireAuth, authHandler.Me)
	authRoutes.Put("/update-profile", authMiddleware.RequireAuth, authHandler.UpdateProfile)
	authRoutes.Put("/change-password", authMiddleware.RequireAuth, authHandler.ChangePassword)
	authRoutes.Delete("/delete-account", authMiddleware.RequireAuth, authHandler.DeleteAccount)

	fileRoutes := api.Group("/files", authMiddleware.RequireAuth)
	fileRoutes.Post("/upload", filesHandler.Upload)
	fileRoutes.Get("/", filesHandler.List)
	fileRoutes.Post("/recalc-storage", filesHandler.RecalcStorage)
	fileRoutes.Delete("/bulk", filesHandler.BulkDelete)
	fileRoutes.Delete("/:id", filesHandler.Delete)

	return &testEnv{app: app, db: db, sessions: sessions, store: store, tokens: tokens}
}

// memObjectStore is an in-memory stand-in for the remote object store.
type memObjectStore struct {
	mu      sync.Mutex
	objects map[string][]byte
	failPut bool
}

func newMemObjectStore() *memObjectStore {
	return &memObjectStore{objects: make(map[string][]byte)}
}

func (m *memObjectStore) Put(ctx context.Context, folder, filename string, reader io.Reader, size int64, contentType string) (*storage.UploadResult, error) {
	m.mu.Lock()
	fail := m.failPut
	m.mu.Unlock()
	if fail {
		return nil, fmt.Errorf("object store unavailable")
	}

	data, err := io.ReadAll(reader)
	if err != nil {
		return nil, err
	}

	key := fmt.Sprintf("%s/%s/%s", folder, uuid.New().String(), filename)
	m.mu.Lock()
	m.objects[key] = data
	m.mu.Unlock()

	return &storage.UploadResult{URL: "http://objects.test/" + key, Key: key}, nil
}

func (m *memObjectStore) Delete(ctx context.Context, key string) error {
	m.mu.Lock()
	delete(m.objects, key)
	m.mu.Unlock()
	return nil
}

func (m *memObjectStore) put(key string, data []byte) {
	m.mu.Lock()
	m.objects[key] = data
	m.mu.Unlock()
}

func (m *memObjectStore) setFailPut(fail bool) {
	m.mu.Lock()
	m.failPut = fail
	m.mu.Unlock()
}

func (m *memObjectStore) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.objects)
}

func createTestUser(t *testing.T, env *testEnv, username, email, password string) (*models.User, *services.TokenPair) {
	t.Helper()

	hash, err := utils.HashPassword(password)
	if err != nil {
		t.Fatalf("failed hashing password: %v", err)
	}

	user := &models.User{
		Username:     username,
		Email:        email,
		PasswordHash: hash,
		StorageLimit: models.StorageLimitBytes,
	}
	if err := env.db.Create(user).Error; err != nil {
		t.Fatalf("failed creating test user: %v", err)
	}

	pair, err := env.sessions.Issue(context.Background(), user.ID)
	if err != nil {
		t.Fatalf("failed issuing session: %v", err)
	}

	return user, pair
}

func createTestFileRow(t *testing.T, env *testEnv, ownerID uuid.UUID, name string, size int64) *models.File {
	t.Helper()

	key := fmt.Sprintf("files/%s/%s/%s", ownerID, uuid.New().String(), name)
	env.store.put(key, make([]byte, 0))

	file := &models.File{
		OwnerID:      ownerID,
		OriginalName: name,
		MimeType:     "image/png",
		Size:         size,
		StorageURL:   "http://objects.test/" + key,
		StorageKey:   key,
		Format:       "png",
	}
	if err := env.db.Create(file).Error; err != nil {
		t.Fatalf("failed creating test file row: %v", err)
	}
	return file
}

// expiredAccessToken signs an access token with the right secret but an
// already-elapsed expiry.
func expiredAccessToken(t *testing.T, userID uuid.UUID) string {
	t.Helper()

	expired := utils.NewTokenManager(testAccessSecret, testRefreshSecret, -time.Minute, time.Hour)
	token, err := expired.GenerateAccessToken(userID)
	if err != nil {
		t.Fatalf("failed generating expired access token: %v", err)
	}
	return token
}

func cookieHeader(accessToken, refreshToken string) map[string]string {
	parts := []string{}
	if accessToken != "" {
		parts = append(parts, middleware.AccessTokenCookie+"="+accessToken)
	}
	if refreshToken != "" {
		parts = append(parts, middleware.RefreshTokenCookie+"="+refreshToken)
	}
	return map[string]string{"Cookie": strings.Join(parts, "; ")}
}

func responseCookies(resp *http.Response) map[string]string {
	cookies := map[string]string{}
	for _, cookie := range resp.Cookies() {
		cookies[cookie.Name] = cookie.Value
	}
	return cookies
}

type uploadPart struct {
	name        string
	contentType string
	data        []byte
}

func multipartBody(t *testing.T, field string, parts []uploadPart, fields map[string]string) (io.Reader, string) {
	t.Helper()

	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)

	for key, value := range fields {
		if err := writer.WriteField(key, value); err != nil {
			t.Fatalf("failed writing form field: %v", err)
		}
	}

	for _, part := range parts {
		header := make(textproto.MIMEHeader)
		header.Set("Content-Disposition", fmt.Sprintf(`form-data; name=%q; filename=%q`, field, part.name))
		header.Set("Content-Type", part.contentType)
		dst, err := writer.CreatePart(header)
		if err != nil {
			t.Fatalf("failed creating multipart part: %v", err)
		}
		if _, err := dst.Write(part.data); err != nil {
			t.Fatalf("failed writing multipart part: %v", err)
		}
	}

	if err := writer.Close(); err != nil {
		t.Fatalf("failed closing multipart writer: %v", err)
	}

	return &buf, writer.FormDataContentType()
}

func performRequest(t *testing.T, app *fiber.App, method, path string, body io.Reader, headers map[string]string) *http.Response {
	t.Helper()

	req := httptest.NewRequest(method, path, body)
	for key, value := range headers {
		req.Header.Set(key, value)
	}

	resp, err := app.Test(req, int((10 * time.Second).Milliseconds()))
	if err != nil {
		t.Fatalf("request %s %s failed: %v", method, path, err)
	}

	return resp
}

func performJSONRequest(t *testing.T, app *fiber.App, method, path string, payload any, headers map[string]string) *http.Response {
	t.Helper()

	var body io.Reader
	if payload != nil {
		encoded, err := json.Marshal(payload)
		if err != nil {
			t.Fatalf("failed to marshal payload: %v", err)
		}
		body = bytes.NewReader(encoded)
	}

	requestHeaders := map[string]string{}
	for key, value := range headers {
		requestHeaders[key] = value
	}
	if payload != nil {
		requestHeaders["Content-Type"] = "application/json"
	}

	return performRequest(t, app, method, path, body, requestHeaders)
}

func decodeJSONMap(t *testing.T, resp *http.Response) map[string]any {
	t.Helper()
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("failed reading response body: %v", err)
	}

	var payload map[string]any
	if err := json.Unmarshal(raw, &payload); err != nil {
		t.Fatalf("failed decoding JSON response: %v body=%q", err, string(raw))
	}

	return payload
}

func assertStatus(t *testing.T, resp *http.Response, expected int) {
	t.Helper()
	if resp.StatusCode != expected {
		t.Fatalf("expected status %d, got %d", expected, resp.StatusCode)
	}
}

func assertEnvelopeMessage(t *testing.T, body map[string]any, success bool, expected string) {
	t.Helper()
	if got, _ := body["success"].(bool); got != success {
		t.Fatalf("expected success=%v, got %+v", success, body)
	}
	if got, _ := body["message"].(string); got != expected {
		t.Fatalf("expected message %q, got %q", expected, got)
	}
}

func fileCount(t *testing.T, env *testEnv, ownerID uuid.UUID) int64 {
	t.Helper()
	var count int64
	if err := env.db.Model(&models.File{}).Where("owner_id = ?", ownerID).Count(&count).Error; err != nil {
		t.Fatalf("failed counting files: %v", err)
	}
	return count
}

func sessionCount(t *testing.T, env *testEnv, ownerID uuid.UUID) int64 {
	t.Helper()
	var count int64
	if err := env.db.Model(&models.Session{}).Where("user_id = ?", ownerID).Count(&count).Error; err != nil {
		t.Fatalf("failed counting sessions: %v", err)
	}
	return count
}
