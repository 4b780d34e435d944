package usercache

import (
	"context"
	"testing"
	"time"

	"eterna-home/internal/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

func openTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&model.User{}))
	return db
}

func TestMemoryCacheRoundTrip(t *testing.T) {
	cache := NewMemoryCache(16, time.Minute)
	ctx := context.Background()

	_, ok := cache.Get(ctx, "nobody@example.com")
	assert.False(t, ok)

	cache.Set(ctx, "a@example.com", &model.User{ID: 1, Email: "a@example.com"})
	user, ok := cache.Get(ctx, "a@example.com")
	require.True(t, ok)
	assert.Equal(t, uint(1), user.ID)

	cache.Invalidate(ctx, "a@example.com")
	_, ok = cache.Get(ctx, "a@example.com")
	assert.False(t, ok)
}

func TestMemoryCacheCopiesValues(t *testing.T) {
	cache := NewMemoryCache(16, time.Minute)
	ctx := context.Background()

	original := &model.User{ID: 1, Email: "a@example.com", IsActive: true}
	cache.Set(ctx, original.Email, original)

	cached, ok := cache.Get(ctx, original.Email)
	require.True(t, ok)
	cached.IsActive = false

	again, ok := cache.Get(ctx, original.Email)
	require.True(t, ok)
	assert.True(t, again.IsActive)
}

func TestStoreByEmailFallsBackToDB(t *testing.T) {
	db := openTestDB(t)
	require.NoError(t, db.Create(&model.User{
		Email:          "db@example.com",
		Username:       "db",
		HashedPassword: "x",
		IsActive:       true,
	}).Error)

	store := NewStore(db, NewMemoryCache(16, time.Minute))
	ctx := context.Background()

	user, err := store.ByEmail(ctx, "db@example.com")
	require.NoError(t, err)
	assert.Equal(t, "db@example.com", user.Email)

	// Second lookup is served from cache: delete the row and look again
	require.NoError(t, db.Unscoped().Delete(&model.User{}, user.ID).Error)
	cached, err := store.ByEmail(ctx, "db@example.com")
	require.NoError(t, err)
	assert.Equal(t, user.ID, cached.ID)
}

func TestStoreInvalidateForcesDBRead(t *testing.T) {
	db := openTestDB(t)
	user := &model.User{
		Email:          "stale@example.com",
		Username:       "stale",
		HashedPassword: "x",
		IsActive:       true,
	}
	require.NoError(t, db.Create(user).Error)

	store := NewStore(db, NewMemoryCache(16, time.Minute))
	ctx := context.Background()

	_, err := store.ByEmail(ctx, user.Email)
	require.NoError(t, err)

	require.NoError(t, db.Model(user).Update("is_active", false).Error)
	store.Invalidate(ctx, user.Email)

	fresh, err := store.ByEmail(ctx, user.Email)
	require.NoError(t, err)
	assert.False(t, fresh.IsActive)
}

func TestStoreMissingUser(t *testing.T) {
	store := NewStore(openTestDB(t), nil)

	_, err := store.ByEmail(context.Background(), "ghost@example.com")
	assert.True(t, IsNotFound(err))
}

func TestStoreNilCache(t *testing.T) {
	db := openTestDB(t)
	require.NoError(t, db.Create(&model.User{
		Email:          "plain@example.com",
		Username:       "plain",
		HashedPassword: "x",
		IsActive:       true,
	}).Error)

	store := NewStore(db, nil)
	user, err := store.ByEmail(context.Background(), "plain@example.com")
	require.NoError(t, err)
	assert.Equal(t, "plain@example.com", user.Email)
	store.Invalidate(context.Background(), "plain@example.com")
}

func TestMemoryCacheTTLExpiry(t *testing.T) {
	cache := NewMemoryCache(16, 20*time.Millisecond)
	ctx := context.Background()

	cache.Set(ctx, "short@example.com", &model.User{ID: 9})
	time.Sleep(50 * time.Millisecond)

	_, ok := cache.Get(ctx, "short@example.com")
	assert.False(t, ok)
}
