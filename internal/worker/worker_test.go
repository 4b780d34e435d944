package worker

import (
	"context"
	"testing"
	"time"

	"eterna-home/internal/model"

	"github.com/google/uuid"
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
	require.NoError(t, db.AutoMigrate(
		&model.BIMModel{}, &model.VoiceCommand{}, &model.RefreshToken{}))
	return db
}

func seedBIM(t *testing.T, db *gorm.DB, format string, size int64) *model.BIMModel {
	t.Helper()
	bim := &model.BIMModel{
		Name:       "model." + format,
		Format:     format,
		StorageKey: "bim/test/" + uuid.NewString(),
		SizeBytes:  size,
		Status:     model.BIMStatusPending,
		OwnerID:    1,
		TenantID:   uuid.New(),
	}
	require.NoError(t, db.Create(bim).Error)
	return bim
}

func TestProcessBIMCompletes(t *testing.T) {
	db := openTestDB(t)
	pool := NewPool(db, 1)
	bim := seedBIM(t, db, "ifc", 200000)

	require.NoError(t, pool.processBIM(context.Background(), bim.ID))

	var got model.BIMModel
	require.NoError(t, db.First(&got, bim.ID).Error)
	assert.Equal(t, model.BIMStatusCompleted, got.Status)
	assert.Equal(t, 4, got.RoomCount) // 200000/65536 + 1
	assert.Equal(t, 16, got.NodeCount)
	assert.Empty(t, got.ParseError)
}

func TestProcessBIMUnsupportedFormat(t *testing.T) {
	db := openTestDB(t)
	pool := NewPool(db, 1)
	bim := seedBIM(t, db, "dwg", 1000)

	require.NoError(t, pool.processBIM(context.Background(), bim.ID))

	var got model.BIMModel
	require.NoError(t, db.First(&got, bim.ID).Error)
	assert.Equal(t, model.BIMStatusFailed, got.Status)
	assert.Contains(t, got.ParseError, "dwg")
}

func TestProcessBIMMissingRow(t *testing.T) {
	pool := NewPool(openTestDB(t), 1)
	assert.Error(t, pool.processBIM(context.Background(), 999))
}

func TestProcessVoiceRecognizedCommand(t *testing.T) {
	db := openTestDB(t)
	pool := NewPool(db, 1)

	cmd := &model.VoiceCommand{
		Transcript: "please turn on the lights",
		Status:     model.VoiceStatusPending,
		UserID:     1,
		TenantID:   uuid.New(),
	}
	require.NoError(t, db.Create(cmd).Error)

	require.NoError(t, pool.processVoice(context.Background(), cmd.ID))

	var got model.VoiceCommand
	require.NoError(t, db.First(&got, cmd.ID).Error)
	assert.Equal(t, model.VoiceStatusProcessed, got.Status)
	assert.NotEmpty(t, got.Response)
}

func TestProcessVoiceUnrecognizedCommand(t *testing.T) {
	db := openTestDB(t)
	pool := NewPool(db, 1)

	cmd := &model.VoiceCommand{
		Transcript: "recite a poem",
		Status:     model.VoiceStatusPending,
		UserID:     1,
		TenantID:   uuid.New(),
	}
	require.NoError(t, db.Create(cmd).Error)

	require.NoError(t, pool.processVoice(context.Background(), cmd.ID))

	var got model.VoiceCommand
	require.NoError(t, db.First(&got, cmd.ID).Error)
	assert.Equal(t, model.VoiceStatusFailed, got.Status)
}

func TestInterpretKeywords(t *testing.T) {
	cases := []struct {
		transcript string
		ok         bool
	}{
		{"turn on the kitchen light", true},
		{"Turn OFF everything", true},
		{"what is the status", true},
		{"temperature in the bedroom", true},
		{"play some jazz", false},
	}
	for _, tc := range cases {
		_, ok := interpret(tc.transcript)
		assert.Equal(t, tc.ok, ok, tc.transcript)
	}
}

func TestEnqueueRejectsWhenFull(t *testing.T) {
	pool := NewPool(openTestDB(t), 1)

	require.NoError(t, pool.Enqueue(Job{Type: JobBIMParse, ID: 1}))
	assert.ErrorIs(t, pool.Enqueue(Job{Type: JobBIMParse, ID: 2}), ErrQueueFull)
}

func TestPoolProcessesEnqueuedJobs(t *testing.T) {
	db := openTestDB(t)
	pool := NewPool(db, 4)
	bim := seedBIM(t, db, "gltf", 1000)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	pool.Start(ctx, 2)

	require.NoError(t, pool.Enqueue(Job{Type: JobBIMParse, ID: bim.ID}))
	pool.Stop()

	var got model.BIMModel
	require.NoError(t, db.First(&got, bim.ID).Error)
	assert.Equal(t, model.BIMStatusCompleted, got.Status)
}

func TestPurgeRefreshTokens(t *testing.T) {
	db := openTestDB(t)
	m := NewMaintenance(db, 24*time.Hour)

	require.NoError(t, db.Create(&model.RefreshToken{
		TokenHash: "expired",
		UserID:    1,
		ExpiresAt: time.Now().Add(-time.Hour),
	}).Error)
	require.NoError(t, db.Create(&model.RefreshToken{
		TokenHash: "revoked",
		UserID:    1,
		ExpiresAt: time.Now().Add(time.Hour),
		Revoked:   true,
	}).Error)
	require.NoError(t, db.Create(&model.RefreshToken{
		TokenHash: "live",
		UserID:    1,
		ExpiresAt: time.Now().Add(time.Hour),
	}).Error)

	n, err := m.PurgeRefreshTokens()
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	var remaining []model.RefreshToken
	require.NoError(t, db.Find(&remaining).Error)
	require.Len(t, remaining, 1)
	assert.Equal(t, "live", remaining[0].TokenHash)
}

func TestPurgeVoiceCommandsKeepsRecentAndPending(t *testing.T) {
	db := openTestDB(t)
	m := NewMaintenance(db, time.Hour)
	tenantID := uuid.New()

	old := time.Now().Add(-2 * time.Hour)
	rows := []model.VoiceCommand{
		{Transcript: "old processed", Status: model.VoiceStatusProcessed, UserID: 1, TenantID: tenantID, CreatedAt: old},
		{Transcript: "old pending", Status: model.VoiceStatusPending, UserID: 1, TenantID: tenantID, CreatedAt: old},
		{Transcript: "fresh processed", Status: model.VoiceStatusProcessed, UserID: 1, TenantID: tenantID},
	}
	for i := range rows {
		require.NoError(t, db.Create(&rows[i]).Error)
	}
	// gorm overwrites CreatedAt on create; push the old rows back explicitly
	require.NoError(t, db.Model(&model.VoiceCommand{}).
		Where("transcript LIKE ?", "old%").
		Update("created_at", old).Error)

	n, err := m.PurgeVoiceCommands()
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	var remaining []model.VoiceCommand
	require.NoError(t, db.Find(&remaining).Error)
	assert.Len(t, remaining, 2)
}
