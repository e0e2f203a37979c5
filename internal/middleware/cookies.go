package middleware

import (
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/pixvault/backend/internal/config"
	"github.com/pixvault/backend/internal/services"
)

const (
	AccessTokenCookie  = "accessToken"
	RefreshTokenCookie = "refreshToken"
)

// CookieWriter centralizes the token cookie attributes so the login,
// registration, rotation, and logout paths all agree on them.
type CookieWriter struct {
	cfg        config.CookieConfig
	accessTTL  time.Duration
	refreshTTL time.Duration
}

func NewCookieWriter(cfg config.CookieConfig, accessTTL, refreshTTL time.Duration) CookieWriter {
	return CookieWriter{cfg: cfg, accessTTL: accessTTL, refreshTTL: refreshTTL}
}

func (w CookieWriter) SetTokenCookies(c *fiber.Ctx, pair *services.TokenPair) {
	c.Cookie(w.tokenCookie(AccessTokenCookie, pair.AccessToken, w.accessTTL))
	c.Cookie(w.tokenCookie(RefreshTokenCookie, pair.RefreshToken, w.refreshTTL))
}

func (w CookieWriter) ClearTokenCookies(c *fiber.Ctx) {
	c.Cookie(w.tokenCookie(AccessTokenCookie, "", -time.Hour))
	c.Cookie(w.tokenCookie(RefreshTokenCookie, "", -time.Hour))
}

func (w CookieWriter) tokenCookie(name, value string, ttl time.Duration) *fiber.Cookie {
	sameSite := fiber.CookieSameSiteLaxMode
	secure := w.cfg.Secure
	if w.cfg.CrossSite {
		// SameSite=None is only honored over HTTPS.
		sameSite = fiber.CookieSameSiteNoneMode
		secure = true
	}

	return &fiber.Cookie{
		Name:     name,
		Value:    value,
		Path:     "/",
		Expires:  time.Now().Add(ttl),
		MaxAge:   int(ttl.Seconds()),
		HTTPOnly: true,
		Secure:   secure,
		SameSite: sameSite,
	}
}
