package services

import (
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"github.com/pixvault/backend/internal/models"
	"github.com/pixvault/backend/pkg/utils"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

const (
	testAccessSecret  = "test-access-secret"
	testRefreshSecret = "test-refresh-secret"
)

func openTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{TranslateError: true})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	require.NoError(t, db.AutoMigrate(&models.User{}, &models.Session{}, &models.File{}))
	return db
}

func newTestSessionService(t *testing.T, db *gorm.DB, accessTTL time.Duration) *SessionService {
	t.Helper()
	tokens := utils.NewTokenManager(testAccessSecret, testRefreshSecret, accessTTL, 7*24*time.Hour)
	return NewSessionService(db, tokens)
}

func createTestUser(t *testing.T, db *gorm.DB, username, email string) *models.User {
	t.Helper()

	hash, err := utils.HashPassword("password123")
	require.NoError(t, err)

	user := &models.User{
		Username:     username,
		Email:        email,
		PasswordHash: hash,
		StorageLimit: models.StorageLimitBytes,
	}
	require.NoError(t, db.Create(user).Error)
	return user
}

func createTestFile(t *testing.T, db *gorm.DB, ownerID uuid.UUID, size int64) *models.File {
	t.Helper()

	file := &models.File{
		OwnerID:      ownerID,
		OriginalName: "photo.png",
		MimeType:     "image/png",
		Size:         size,
		StorageURL:   "http://objects.test/files/photo.png",
		StorageKey:   "files/" + uuid.New().String() + "/photo.png",
		Format:       "png",
	}
	require.NoError(t, db.Create(file).Error)
	return file
}

func sessionCount(t *testing.T, db *gorm.DB) int64 {
	t.Helper()
	var count int64
	require.NoError(t, db.Model(&models.Session{}).Count(&count).Error)
	return count
}
