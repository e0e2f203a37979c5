package services

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/pixvault/backend/internal/models"
	"github.com/pixvault/backend/pkg/logger"
	"github.com/pixvault/backend/pkg/utils"
	"gorm.io/gorm"
)

// Rejection reasons returned by Resolve. The middleware forwards them
// verbatim in 401 responses.
const (
	ReasonNotAuthenticated = "Not authenticated. Please log in."
	ReasonAuthError        = "Authentication error"
	ReasonSessionExpired   = "Session expired. Please log in again."
	ReasonInvalidSession   = "Invalid session. Please log in again."
	ReasonSessionNotFound  = "Session not found. Please log in again."
	ReasonUserGone         = "User no longer exists"
)

type TokenPair struct {
	AccessToken  string
	RefreshToken string
}

// SessionService issues, verifies, and rotates access/refresh token pairs.
// The persisted Session row is the authority for revocation; the token's own
// expiry claim is the authority for cryptographic expiry. Both must hold.
type SessionService struct {
	db     *gorm.DB
	tokens *utils.TokenManager
}

func NewSessionService(db *gorm.DB, tokens *utils.TokenManager) *SessionService {
	return &SessionService{db: db, tokens: tokens}
}

func (s *SessionService) Tokens() *utils.TokenManager { return s.tokens }

// Issue mints a fresh access/refresh pair and persists one Session row for
// the refresh token.
func (s *SessionService) Issue(ctx context.Context, userID uuid.UUID) (*TokenPair, error) {
	accessToken, err := s.tokens.GenerateAccessToken(userID)
	if err != nil {
		return nil, err
	}
	refreshToken, err := s.tokens.GenerateRefreshToken(userID)
	if err != nil {
		return nil, err
	}

	session := models.Session{
		UserID:    userID,
		Token:     refreshToken,
		ExpiresAt: time.Now().Add(s.tokens.RefreshTTL()),
	}
	if err := s.db.WithContext(ctx).Create(&session).Error; err != nil {
		return nil, err
	}

	return &TokenPair{AccessToken: accessToken, RefreshToken: refreshToken}, nil
}

// Resolve authenticates a request from its cookie tokens. The returned pair
// is non-nil only when the refresh token was rotated; the caller must then
// re-issue both cookies. Every failure is an *AuthError.
//
// A structurally invalid access token rejects immediately; only an expired
// one falls through to the refresh path.
func (s *SessionService) Resolve(ctx context.Context, accessToken, refreshToken string) (*models.User, *TokenPair, error) {
	if accessToken == "" && refreshToken == "" {
		return nil, nil, &AuthError{Reason: ReasonNotAuthenticated}
	}

	if accessToken != "" {
		claims, err := s.tokens.ParseAccessToken(accessToken)
		if err == nil {
			user, lookupErr := s.findUser(ctx, claims.UserID)
			if lookupErr != nil {
				return nil, nil, lookupErr
			}
			return user, nil, nil
		}
		if !utils.IsExpired(err) {
			return nil, nil, &AuthError{Reason: ReasonAuthError}
		}
	}

	if refreshToken == "" {
		return nil, nil, &AuthError{Reason: ReasonSessionExpired}
	}

	claims, err := s.tokens.ParseRefreshToken(refreshToken)
	if err != nil {
		return nil, nil, &AuthError{Reason: ReasonInvalidSession}
	}

	// Conditional delete: consuming the session row and claiming the right
	// to rotate are the same operation, so concurrent requests replaying one
	// refresh token cannot both win. Expired rows are treated as absent.
	res := s.db.WithContext(ctx).
		Where("token = ? AND user_id = ? AND expires_at > ?", refreshToken, claims.UserID, time.Now()).
		Delete(&models.Session{})
	if res.Error != nil {
		return nil, nil, res.Error
	}
	if res.RowsAffected == 0 {
		return nil, nil, &AuthError{Reason: ReasonSessionNotFound}
	}

	user, err := s.findUser(ctx, claims.UserID)
	if err != nil {
		return nil, nil, err
	}

	pair, err := s.Issue(ctx, user.ID)
	if err != nil {
		return nil, nil, err
	}

	logger.InfoWithUser(user.ID.String(), "session_rotated", map[string]interface{}{})
	return user, pair, nil
}

// Revoke deletes the single session matching a refresh token (logout).
func (s *SessionService) Revoke(ctx context.Context, refreshToken string) error {
	return s.db.WithContext(ctx).Where("token = ?", refreshToken).Delete(&models.Session{}).Error
}

// RevokeAll deletes every session a user holds. Called on password change
// and account deletion.
func (s *SessionService) RevokeAll(ctx context.Context, userID uuid.UUID) error {
	return s.db.WithContext(ctx).Where("user_id = ?", userID).Delete(&models.Session{}).Error
}

// PurgeExpired removes past-expiry session rows. Correctness never depends
// on this running: every lookup already filters on expires_at.
func (s *SessionService) PurgeExpired(ctx context.Context) (int64, error) {
	res := s.db.WithContext(ctx).Where("expires_at <= ?", time.Now()).Delete(&models.Session{})
	return res.RowsAffected, res.Error
}

// StartCleanup purges expired sessions on an interval until the returned
// stop function is called.
func (s *SessionService) StartCleanup(interval time.Duration) func() {
	ticker := time.NewTicker(interval)
	done := make(chan struct{})

	go func() {
		for {
			select {
			case <-ticker.C:
				purged, err := s.PurgeExpired(context.Background())
				if err != nil {
					logger.Error("session_purge_failed", err, map[string]interface{}{})
				} else if purged > 0 {
					logger.Info("sessions_purged", map[string]interface{}{"count": purged})
				}
			case <-done:
				ticker.Stop()
				return
			}
		}
	}()

	return func() { close(done) }
}

func (s *SessionService) findUser(ctx context.Context, userID uuid.UUID) (*models.User, error) {
	var user models.User
	if err := s.db.WithContext(ctx).First(&user, "id = ?", userID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, &AuthError{Reason: ReasonUserGone}
		}
		return nil, err
	}
	return &user, nil
}
