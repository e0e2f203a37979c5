package handlers

import (
	"errors"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/pixvault/backend/internal/services"
	"github.com/pixvault/backend/pkg/logger"
	"github.com/pixvault/backend/pkg/utils"
	"gorm.io/gorm"
)

func parseUUID(value string) (uuid.UUID, error) {
	return uuid.Parse(strings.TrimSpace(value))
}

func isDuplicateKey(err error) bool {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	msg := err.Error()
	return strings.Contains(msg, "UNIQUE constraint failed") ||
		strings.Contains(msg, "duplicate key value")
}

// respondServiceError maps the service error taxonomy onto HTTP statuses.
func respondServiceError(c *fiber.Ctx, err error) error {
	var validationErr *services.ValidationError
	if errors.As(err, &validationErr) {
		return utils.Error(c, fiber.StatusBadRequest, validationErr.Message)
	}

	var conflictErr *services.ConflictError
	if errors.As(err, &conflictErr) {
		return utils.Error(c, fiber.StatusConflict, conflictErr.Message)
	}

	var authErr *services.AuthError
	if errors.As(err, &authErr) {
		return utils.Error(c, fiber.StatusUnauthorized, authErr.Reason)
	}

	var quotaErr *services.QuotaExceededError
	if errors.As(err, &quotaErr) {
		return utils.Error(c, fiber.StatusBadRequest, quotaErr.Error())
	}

	var notFoundErr *services.NotFoundError
	if errors.As(err, &notFoundErr) {
		return utils.Error(c, fiber.StatusNotFound, notFoundErr.Error())
	}

	var upstreamErr *services.UpstreamError
	if errors.As(err, &upstreamErr) {
		return utils.Error(c, fiber.StatusBadGateway, "Upload service unavailable. Please try again.")
	}

	logger.Error("unhandled_service_error", err, map[string]interface{}{})
	return utils.Error(c, fiber.StatusInternalServerError, "Internal server error")
}

func formatFromMime(mimeType string) string {
	if mimeType == "image/svg+xml" {
		return "svg"
	}
	if idx := strings.Index(mimeType, "/"); idx >= 0 {
		return mimeType[idx+1:]
	}
	return ""
}
