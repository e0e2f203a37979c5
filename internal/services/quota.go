package services

import (
	"context"

	"github.com/google/uuid"
	"github.com/pixvault/backend/internal/models"
	"gorm.io/gorm"
)

// QuotaService enforces the per-user storage limit. Every decision reads the
// live sum of the user's file sizes; User.StorageUsed is a display cache that
// Reconcile overwrites after each mutating file operation.
type QuotaService struct {
	db *gorm.DB
}

func NewQuotaService(db *gorm.DB) *QuotaService {
	return &QuotaService{db: db}
}

// Usage returns the authoritative storage usage: the sum of the user's file
// sizes as currently recorded.
func (q *QuotaService) Usage(ctx context.Context, userID uuid.UUID) (int64, error) {
	var used int64
	err := q.db.WithContext(ctx).
		Model(&models.File{}).
		Where("owner_id = ?", userID).
		Select("COALESCE(SUM(size), 0)").
		Scan(&used).Error
	return used, err
}

// Reserve admits or rejects an incoming upload batch of the given total
// size. The cached counter is never consulted.
func (q *QuotaService) Reserve(ctx context.Context, userID uuid.UUID, incomingBytes int64) error {
	used, err := q.Usage(ctx, userID)
	if err != nil {
		return err
	}

	remaining := models.StorageLimitBytes - used
	if remaining <= 0 {
		return &QuotaExceededError{RequestedBytes: incomingBytes, RemainingBytes: 0}
	}
	if incomingBytes > remaining {
		return &QuotaExceededError{RequestedBytes: incomingBytes, RemainingBytes: remaining}
	}
	return nil
}

// Reconcile recomputes the live sum, overwrites the cached counter, and
// force-resets the limit to the fixed constant, healing any drift. It is
// idempotent and safe to call at any time.
func (q *QuotaService) Reconcile(ctx context.Context, userID uuid.UUID) (int64, error) {
	used, err := q.Usage(ctx, userID)
	if err != nil {
		return 0, err
	}

	err = q.db.WithContext(ctx).
		Model(&models.User{}).
		Where("id = ?", userID).
		Updates(map[string]interface{}{
			"storage_used":  used,
			"storage_limit": models.StorageLimitBytes,
		}).Error
	if err != nil {
		return 0, err
	}

	return used, nil
}
