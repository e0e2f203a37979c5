package services

import (
	"context"
	"testing"

	"github.com/pixvault/backend/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUsageIsLiveSum(t *testing.T) {
	db := openTestDB(t)
	quota := NewQuotaService(db)
	user := createTestUser(t, db, "nina", "nina@test.com")

	used, err := quota.Usage(context.Background(), user.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(0), used)

	createTestFile(t, db, user.ID, 1_000_000)
	createTestFile(t, db, user.ID, 2_500_000)

	used, err = quota.Usage(context.Background(), user.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(3_500_000), used)
}

func TestReserveAdmitsExactRemainder(t *testing.T) {
	db := openTestDB(t)
	quota := NewQuotaService(db)
	user := createTestUser(t, db, "oscar", "oscar@test.com")
	createTestFile(t, db, user.ID, 5_000_000)

	// 5_242_880 - 5_000_000 = 242_880: an exact fit is admitted.
	require.NoError(t, quota.Reserve(context.Background(), user.ID, 242_880))
}

func TestReserveRejectsOneByteOver(t *testing.T) {
	db := openTestDB(t)
	quota := NewQuotaService(db)
	user := createTestUser(t, db, "peggy", "peggy@test.com")
	createTestFile(t, db, user.ID, 5_000_000)

	err := quota.Reserve(context.Background(), user.ID, 242_881)
	var quotaErr *QuotaExceededError
	require.ErrorAs(t, err, &quotaErr)
	assert.Equal(t, int64(242_881), quotaErr.RequestedBytes)
	assert.Equal(t, int64(242_880), quotaErr.RemainingBytes)
	assert.Contains(t, quotaErr.Error(), "Not enough storage")
}

func TestReserveRejectsWhenFull(t *testing.T) {
	db := openTestDB(t)
	quota := NewQuotaService(db)
	user := createTestUser(t, db, "quinn", "quinn@test.com")
	createTestFile(t, db, user.ID, models.StorageLimitBytes)

	err := quota.Reserve(context.Background(), user.ID, 1)
	var quotaErr *QuotaExceededError
	require.ErrorAs(t, err, &quotaErr)
	assert.Equal(t, "Storage full. Please delete some files to free up space.", quotaErr.Error())
}

func TestReserveIgnoresCachedCounter(t *testing.T) {
	db := openTestDB(t)
	quota := NewQuotaService(db)
	user := createTestUser(t, db, "rita", "rita@test.com")

	// Corrupt the cache: the gating decision must still come from the live
	// sum, which is zero.
	err := db.Model(&models.User{}).
		Where("id = ?", user.ID).
		Update("storage_used", models.StorageLimitBytes).Error
	require.NoError(t, err)

	require.NoError(t, quota.Reserve(context.Background(), user.ID, 1_000_000))
}

func TestReconcileIsIdempotent(t *testing.T) {
	db := openTestDB(t)
	quota := NewQuotaService(db)
	user := createTestUser(t, db, "sybil", "sybil@test.com")
	createTestFile(t, db, user.ID, 1_234_567)

	first, err := quota.Reconcile(context.Background(), user.ID)
	require.NoError(t, err)
	second, err := quota.Reconcile(context.Background(), user.ID)
	require.NoError(t, err)

	assert.Equal(t, int64(1_234_567), first)
	assert.Equal(t, first, second)

	var stored models.User
	require.NoError(t, db.First(&stored, "id = ?", user.ID).Error)
	assert.Equal(t, first, stored.StorageUsed)
}

func TestReconcileHealsCorruptedCounters(t *testing.T) {
	db := openTestDB(t)
	quota := NewQuotaService(db)
	user := createTestUser(t, db, "trent", "trent@test.com")
	createTestFile(t, db, user.ID, 42)

	err := db.Model(&models.User{}).
		Where("id = ?", user.ID).
		Updates(map[string]interface{}{"storage_used": 999_999_999, "storage_limit": 1}).Error
	require.NoError(t, err)

	used, err := quota.Reconcile(context.Background(), user.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(42), used)

	var stored models.User
	require.NoError(t, db.First(&stored, "id = ?", user.ID).Error)
	assert.Equal(t, int64(42), stored.StorageUsed)
	assert.Equal(t, models.StorageLimitBytes, stored.StorageLimit)
}
