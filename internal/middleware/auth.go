package middleware

import (
	"errors"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/pixvault/backend/internal/metrics"
	"github.com/pixvault/backend/internal/models"
	"github.com/pixvault/backend/internal/services"
	"github.com/pixvault/backend/pkg/logger"
	"github.com/pixvault/backend/pkg/utils"
)

const currentUserKey = "currentUser"

// AuthMiddleware is the request gate: it resolves the caller's identity from
// the token cookies before any protected handler runs, transparently rotating
// the pair when the access token has expired.
type AuthMiddleware struct {
	Sessions *services.SessionService
	Cookies  CookieWriter
	Metrics  *metrics.Collector
}

func NewAuthMiddleware(sessions *services.SessionService, cookies CookieWriter, collector *metrics.Collector) *AuthMiddleware {
	return &AuthMiddleware{Sessions: sessions, Cookies: cookies, Metrics: collector}
}

func CORS(origins string) fiber.Handler {
	return cors.New(cors.Config{
		AllowOrigins:     origins,
		AllowHeaders:     "Origin, Content-Type, Accept",
		AllowMethods:     "GET,POST,PUT,DELETE,OPTIONS",
		AllowCredentials: true,
	})
}

func (a *AuthMiddleware) RequireAuth(c *fiber.Ctx) error {
	accessToken := c.Cookies(AccessTokenCookie)
	refreshToken := c.Cookies(RefreshTokenCookie)

	user, rotated, err := a.Sessions.Resolve(c.Context(), accessToken, refreshToken)
	if err != nil {
		var authErr *services.AuthError
		if errors.As(err, &authErr) {
			logger.Warn("auth_rejected", map[string]interface{}{
				"ip":     c.IP(),
				"path":   c.Path(),
				"reason": authErr.Reason,
			})
			return utils.Error(c, fiber.StatusUnauthorized, authErr.Reason)
		}
		logger.Error("auth_resolve_failed", err, map[string]interface{}{
			"ip":   c.IP(),
			"path": c.Path(),
		})
		return utils.Error(c, fiber.StatusInternalServerError, "Internal server error")
	}

	if rotated != nil {
		a.Cookies.SetTokenCookies(c, rotated)
		a.Metrics.RecordTokenRotation()
	}

	c.Locals(currentUserKey, user)
	return c.Next()
}

func GetCurrentUser(c *fiber.Ctx) *models.User {
	value := c.Locals(currentUserKey)
	if value == nil {
		return nil
	}
	user, ok := value.(*models.User)
	if !ok {
		return nil
	}
	return user
}
