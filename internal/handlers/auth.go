package handlers

import (
	"fmt"
	"mime/multipart"
	"regexp"
	"strings"
	"sync"

	"github.com/gofiber/fiber/v2"
	"github.com/pixvault/backend/internal/middleware"
	"github.com/pixvault/backend/internal/models"
	"github.com/pixvault/backend/internal/services"
	"github.com/pixvault/backend/internal/storage"
	"github.com/pixvault/backend/pkg/logger"
	"github.com/pixvault/backend/pkg/utils"
	"gorm.io/gorm"
)

var emailPattern = regexp.MustCompile(`^\S+@\S+\.\S+$`)

type AuthHandler struct {
	DB       *gorm.DB
	Sessions *services.SessionService
	Storage  storage.ObjectStore
	Cookies  middleware.CookieWriter
}

func NewAuthHandler(db *gorm.DB, sessions *services.SessionService, store storage.ObjectStore, cookies middleware.CookieWriter) *AuthHandler {
	return &AuthHandler{DB: db, Sessions: sessions, Storage: store, Cookies: cookies}
}

type registerRequest struct {
	Username string `json:"username"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (h *AuthHandler) Register(c *fiber.Ctx) error {
	var req registerRequest
	if err := c.BodyParser(&req); err != nil {
		return utils.Error(c, fiber.StatusBadRequest, "Invalid request body")
	}

	username := strings.TrimSpace(req.Username)
	email := strings.ToLower(strings.TrimSpace(req.Email))

	if username == "" || email == "" || req.Password == "" {
		return utils.Error(c, fiber.StatusBadRequest, "All fields are required")
	}
	if len(username) < 3 {
		return utils.Error(c, fiber.StatusBadRequest, "Username must be at least 3 characters")
	}
	if len(username) > 20 {
		return utils.Error(c, fiber.StatusBadRequest, "Username cannot exceed 20 characters")
	}
	if !emailPattern.MatchString(email) {
		return utils.Error(c, fiber.StatusBadRequest, "Please provide a valid email address")
	}
	if len(req.Password) < 6 {
		return utils.Error(c, fiber.StatusBadRequest, "Password must be at least 6 characters")
	}

	hash, err := utils.HashPassword(req.Password)
	if err != nil {
		return utils.Error(c, fiber.StatusInternalServerError, "Internal server error")
	}

	user := models.User{
		Username:     username,
		Email:        email,
		PasswordHash: hash,
		StorageLimit: models.StorageLimitBytes,
	}

	// Single conditional insert: the store's unique constraints are the sole
	// arbiter of duplicates, so there is no check-then-act window. The field
	// is diagnosed after the fact for the error message.
	if err := h.DB.WithContext(c.Context()).Create(&user).Error; err != nil {
		if isDuplicateKey(err) {
			return respondServiceError(c, h.diagnoseConflict(c, email))
		}
		return utils.Error(c, fiber.StatusInternalServerError, "Internal server error")
	}

	pair, err := h.Sessions.Issue(c.Context(), user.ID)
	if err != nil {
		return utils.Error(c, fiber.StatusInternalServerError, "Internal server error")
	}
	h.Cookies.SetTokenCookies(c, pair)

	logger.InfoWithUser(user.ID.String(), "user_registered", map[string]interface{}{
		"username": username,
	})

	return utils.Success(c, fiber.StatusCreated, "Account created successfully", fiber.Map{"user": user})
}

func (h *AuthHandler) diagnoseConflict(c *fiber.Ctx, email string) error {
	var count int64
	h.DB.WithContext(c.Context()).Model(&models.User{}).Where("email = ?", email).Count(&count)
	if count > 0 {
		return &services.ConflictError{Field: "email", Message: "Email is already registered"}
	}
	return &services.ConflictError{Field: "username", Message: "Username is already taken"}
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (h *AuthHandler) Login(c *fiber.Ctx) error {
	var req loginRequest
	if err := c.BodyParser(&req); err != nil {
		return utils.Error(c, fiber.StatusBadRequest, "Invalid request body")
	}

	email := strings.ToLower(strings.TrimSpace(req.Email))
	if email == "" || req.Password == "" {
		return utils.Error(c, fiber.StatusBadRequest, "Email and password are required")
	}

	// Same failure shape whether the email is unknown or the password is
	// wrong.
	var user models.User
	err := h.DB.WithContext(c.Context()).First(&user, "email = ?", email).Error
	if err != nil || !utils.CheckPassword(req.Password, user.PasswordHash) {
		return utils.Error(c, fiber.StatusUnauthorized, "Invalid email or password")
	}

	pair, err := h.Sessions.Issue(c.Context(), user.ID)
	if err != nil {
		return utils.Error(c, fiber.StatusInternalServerError, "Internal server error")
	}
	h.Cookies.SetTokenCookies(c, pair)

	return utils.Success(c, fiber.StatusOK, "Logged in successfully", fiber.Map{"user": user})
}

func (h *AuthHandler) Logout(c *fiber.Ctx) error {
	if refreshToken := c.Cookies(middleware.RefreshTokenCookie); refreshToken != "" {
		if err := h.Sessions.Revoke(c.Context(), refreshToken); err != nil {
			logger.Error("logout_revoke_failed", err, map[string]interface{}{})
		}
	}
	h.Cookies.ClearTokenCookies(c)
	return utils.Success(c, fiber.StatusOK, "Logged out successfully", nil)
}

func (h *AuthHandler) Me(c *fiber.Ctx) error {
	currentUser := middleware.GetCurrentUser(c)
	if currentUser == nil {
		return utils.Error(c, fiber.StatusUnauthorized, "Unauthorized")
	}

	var user models.User
	if err := h.DB.WithContext(c.Context()).First(&user, "id = ?", currentUser.ID).Error; err != nil {
		return utils.Error(c, fiber.StatusNotFound, "User not found")
	}

	return utils.Success(c, fiber.StatusOK, "User fetched", fiber.Map{"user": user})
}

func (h *AuthHandler) UpdateProfile(c *fiber.Ctx) error {
	currentUser := middleware.GetCurrentUser(c)
	if currentUser == nil {
		return utils.Error(c, fiber.StatusUnauthorized, "Unauthorized")
	}

	updated := false

	if username := strings.TrimSpace(c.FormValue("username")); username != "" {
		if len(username) < 3 {
			return utils.Error(c, fiber.StatusBadRequest, "Username must be at least 3 characters")
		}
		if len(username) > 20 {
			return utils.Error(c, fiber.StatusBadRequest, "Username cannot exceed 20 characters")
		}
		currentUser.Username = username
		updated = true
	}

	if avatar, err := c.FormFile("avatar"); err == nil && avatar != nil {
		if err := h.replaceAvatar(c, currentUser, avatar); err != nil {
			return respondServiceError(c, err)
		}
		updated = true
	}

	if !updated {
		return utils.Error(c, fiber.StatusBadRequest, "No changes provided")
	}

	if err := h.DB.WithContext(c.Context()).Save(currentUser).Error; err != nil {
		if isDuplicateKey(err) {
			return utils.Error(c, fiber.StatusConflict, "Username is already taken")
		}
		return utils.Error(c, fiber.StatusInternalServerError, "Internal server error")
	}

	return utils.Success(c, fiber.StatusOK, "Profile updated", fiber.Map{"user": currentUser})
}

func (h *AuthHandler) replaceAvatar(c *fiber.Ctx, user *models.User, avatar *multipart.FileHeader) error {
	if avatar.Size > maxFileSizeBytes {
		return &services.ValidationError{Message: "File too large. Max 5MB per file."}
	}
	contentType := avatar.Header.Get("Content-Type")
	if !allowedImageTypes[contentType] {
		return &services.ValidationError{Message: "Only image files are allowed (jpg, jpeg, png, gif, webp, svg)"}
	}

	stream, err := avatar.Open()
	if err != nil {
		return &services.UpstreamError{Op: "avatar open", Err: err}
	}
	defer stream.Close()

	// Superseded avatar removal is non-fatal.
	if user.AvatarKey != "" {
		if err := h.Storage.Delete(c.Context(), user.AvatarKey); err != nil {
			logger.WarnWithUser(user.ID.String(), "avatar_delete_failed", map[string]interface{}{
				"object_key": user.AvatarKey,
			})
		}
	}

	folder := fmt.Sprintf("avatars/%s", user.ID)
	result, err := h.Storage.Put(c.Context(), folder, avatar.Filename, stream, avatar.Size, contentType)
	if err != nil {
		return &services.UpstreamError{Op: "avatar upload", Err: err}
	}

	user.AvatarURL = result.URL
	user.AvatarKey = result.Key
	return nil
}

type changePasswordRequest struct {
	CurrentPassword string `json:"currentPassword"`
	NewPassword     string `json:"newPassword"`
}

func (h *AuthHandler) ChangePassword(c *fiber.Ctx) error {
	currentUser := middleware.GetCurrentUser(c)
	if currentUser == nil {
		return utils.Error(c, fiber.StatusUnauthorized, "Unauthorized")
	}

	var req changePasswordRequest
	if err := c.BodyParser(&req); err != nil {
		return utils.Error(c, fiber.StatusBadRequest, "Invalid request body")
	}

	if req.CurrentPassword == "" || req.NewPassword == "" {
		return utils.Error(c, fiber.StatusBadRequest, "Both current and new passwords are required")
	}
	if len(req.NewPassword) < 6 {
		return utils.Error(c, fiber.StatusBadRequest, "New password must be at least 6 characters")
	}

	if !utils.CheckPassword(req.CurrentPassword, currentUser.PasswordHash) {
		return utils.Error(c, fiber.StatusUnauthorized, "Current password is incorrect")
	}
	// Hashes are salted, so equality with the current password is checked by
	// comparison against the stored hash, not by string comparison.
	if utils.CheckPassword(req.NewPassword, currentUser.PasswordHash) {
		return utils.Error(c, fiber.StatusBadRequest, "New password must be different")
	}

	hash, err := utils.HashPassword(req.NewPassword)
	if err != nil {
		return utils.Error(c, fiber.StatusInternalServerError, "Internal server error")
	}

	currentUser.PasswordHash = hash
	if err := h.DB.WithContext(c.Context()).Save(currentUser).Error; err != nil {
		return utils.Error(c, fiber.StatusInternalServerError, "Internal server error")
	}

	// Force re-login everywhere.
	if err := h.Sessions.RevokeAll(c.Context(), currentUser.ID); err != nil {
		return utils.Error(c, fiber.StatusInternalServerError, "Internal server error")
	}
	h.Cookies.ClearTokenCookies(c)

	logger.InfoWithUser(currentUser.ID.String(), "password_changed", map[string]interface{}{})

	return utils.Success(c, fiber.StatusOK, "Password changed. Please log in again.", nil)
}

func (h *AuthHandler) DeleteAccount(c *fiber.Ctx) error {
	currentUser := middleware.GetCurrentUser(c)
	if currentUser == nil {
		return utils.Error(c, fiber.StatusUnauthorized, "Unauthorized")
	}
	userID := currentUser.ID

	var files []models.File
	if err := h.DB.WithContext(c.Context()).Where("owner_id = ?", userID).Find(&files).Error; err != nil {
		return utils.Error(c, fiber.StatusInternalServerError, "Internal server error")
	}

	// Remote deletes are best-effort and parallel; the record store is the
	// consistency anchor.
	var wg sync.WaitGroup
	for _, file := range files {
		wg.Add(1)
		go func(key string) {
			defer wg.Done()
			_ = h.Storage.Delete(c.Context(), key)
		}(file.StorageKey)
	}
	wg.Wait()

	if err := h.DB.WithContext(c.Context()).Where("owner_id = ?", userID).Delete(&models.File{}).Error; err != nil {
		return utils.Error(c, fiber.StatusInternalServerError, "Internal server error")
	}

	if currentUser.AvatarKey != "" {
		if err := h.Storage.Delete(c.Context(), currentUser.AvatarKey); err != nil {
			logger.WarnWithUser(userID.String(), "avatar_delete_failed", map[string]interface{}{
				"object_key": currentUser.AvatarKey,
			})
		}
	}

	if err := h.Sessions.RevokeAll(c.Context(), userID); err != nil {
		return utils.Error(c, fiber.StatusInternalServerError, "Internal server error")
	}

	if err := h.DB.WithContext(c.Context()).Delete(&models.User{}, "id = ?", userID).Error; err != nil {
		return utils.Error(c, fiber.StatusInternalServerError, "Internal server error")
	}

	h.Cookies.ClearTokenCookies(c)

	logger.InfoWithUser(userID.String(), "account_deleted", map[string]interface{}{
		"files_removed": len(files),
	})

	return utils.Success(c, fiber.StatusOK, "Account deleted successfully", nil)
}
