package worker

import (
	"time"

	"eterna-home/internal/model"
	"eterna-home/pkg/logger"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Maintenance runs the periodic cleanup jobs: expired/revoked refresh
// tokens and stale voice command rows.
type Maintenance struct {
	db             *gorm.DB
	cron           *cron.Cron
	voiceRetention time.Duration
}

// NewMaintenance creates the maintenance scheduler
func NewMaintenance(db *gorm.DB, voiceRetention time.Duration) *Maintenance {
	return &Maintenance{
		db:             db,
		cron:           cron.New(),
		voiceRetention: voiceRetention,
	}
}

// Start schedules the hourly cleanup runs
func (m *Maintenance) Start() error {
	if _, err := m.cron.AddFunc("@hourly", func() {
		log := logger.GetLogger()
		if n, err := m.PurgeRefreshTokens(); err != nil {
			log.Error("Refresh token purge failed", zap.Error(err))
		} else if n > 0 {
			log.Info("Purged refresh tokens", zap.Int64("count", n))
		}
		if n, err := m.PurgeVoiceCommands(); err != nil {
			log.Error("Voice command purge failed", zap.Error(err))
		} else if n > 0 {
			log.Info("Purged voice commands", zap.Int64("count", n))
		}
	}); err != nil {
		return err
	}
	m.cron.Start()
	return nil
}

// Stop halts the scheduler, waiting for a running job to finish
func (m *Maintenance) Stop() {
	ctx := m.cron.Stop()
	<-ctx.Done()
}

// PurgeRefreshTokens deletes refresh tokens that are expired or revoked
func (m *Maintenance) PurgeRefreshTokens() (int64, error) {
	result := m.db.
		Where("expires_at < ? OR revoked = ?", time.Now(), true).
		Delete(&model.RefreshToken{})
	return result.RowsAffected, result.Error
}

// PurgeVoiceCommands deletes processed voice commands older than the
// retention window
func (m *Maintenance) PurgeVoiceCommands() (int64, error) {
	cutoff := time.Now().Add(-m.voiceRetention)
	result := m.db.
		Where("created_at < ? AND status <> ?", cutoff, model.VoiceStatusPending).
		Delete(&model.VoiceCommand{})
	return result.RowsAffected, result.Error
}
