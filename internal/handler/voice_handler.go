package handler

import (
	"fmt"
	"net/http"
	"strconv"
	"time"

	"eterna-home/internal/middleware"
	"eterna-home/internal/model"
	"eterna-home/internal/rbac"
	"eterna-home/internal/worker"
	"eterna-home/pkg/database"
	"eterna-home/pkg/logger"
	"eterna-home/prometheus"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"go.uber.org/zap"
)

const maxAudioSize = 10 << 20 // 10 MiB

// SubmitVoiceCommand accepts a command transcript, optionally with an audio
// attachment, and queues it for interpretation. Multipart form: transcript
// (required), node_id, audio.
func SubmitVoiceCommand(c echo.Context) error {
	log := logger.FromEcho(c)
	user := middleware.CurrentUser(c)
	tenantID, _ := middleware.CurrentTenant(c)

	transcript := c.FormValue("transcript")
	if transcript == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "transcript is required"})
	}

	var nodeID *uint
	if raw := c.FormValue("node_id"); raw != "" {
		parsed, err := strconv.ParseUint(raw, 10, 32)
		if err != nil {
			return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid node_id"})
		}
		var node model.Node
		if err := database.GetDB().
			Where("id = ? AND tenant_id = ?", parsed, tenantID).
			First(&node).Error; err != nil {
			return c.JSON(http.StatusNotFound, echo.Map{"error": "node not found"})
		}
		id := uint(parsed)
		nodeID = &id
	}

	var audioKey string
	if fileHeader, err := c.FormFile("audio"); err == nil {
		if fileHeader.Size > maxAudioSize {
			return c.JSON(http.StatusRequestEntityTooLarge, echo.Map{"error": "audio file too large"})
		}
		src, err := fileHeader.Open()
		if err != nil {
			log.Error("Failed to open audio file", zap.Error(err))
			return c.JSON(http.StatusInternalServerError, echo.Map{"error": "submission failed"})
		}
		defer src.Close()

		contentType := fileHeader.Header.Get("Content-Type")
		if contentType == "" {
			contentType = "audio/wav"
		}
		audioKey = fmt.Sprintf("voice/%s/%s", tenantID, uuid.NewString())
		if _, _, err := blobs.Put(c.Request().Context(), audioKey, src, contentType); err != nil {
			log.Error("Failed to store audio", zap.Error(err), zap.String("key", audioKey))
			return c.JSON(http.StatusInternalServerError, echo.Map{"error": "submission failed"})
		}
	}

	cmd := model.VoiceCommand{
		Transcript: transcript,
		AudioKey:   audioKey,
		Status:     model.VoiceStatusPending,
		NodeID:     nodeID,
		UserID:     user.ID,
		TenantID:   tenantID,
	}
	defer prometheus.TrackDBOperation("insert")(time.Now())
	if err := database.GetDB().Create(&cmd).Error; err != nil {
		log.Error("Failed to record voice command", zap.Error(err))
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "submission failed"})
	}

	if err := pool.Enqueue(worker.Job{Type: worker.JobVoiceCommand, ID: cmd.ID}); err != nil {
		log.Warn("Voice command queue full", zap.Uint("command_id", cmd.ID))
		return c.JSON(http.StatusServiceUnavailable, echo.Map{
			"error": "processing queue is full, try again later",
		})
	}

	log.Info("Voice command submitted", zap.Uint("command_id", cmd.ID))
	return c.JSON(http.StatusAccepted, cmd)
}

// ListVoiceCommands returns the caller's own commands. Users with an
// elevated role in the tenant see everyone's.
func ListVoiceCommands(c echo.Context) error {
	log := logger.FromEcho(c)
	user := middleware.CurrentUser(c)
	tenantID, _ := middleware.CurrentTenant(c)

	query := database.GetDB().Where("tenant_id = ?", tenantID)
	elevated := user.IsSuperuser
	if !elevated {
		if err := authz.RequireAnyRole(c.Request().Context(), user, tenantID, rbac.ElevatedRoles()...); err == nil {
			elevated = true
		}
	}
	if !elevated {
		query = query.Where("user_id = ?", user.ID)
	}

	defer prometheus.TrackDBOperation("query")(time.Now())
	var commands []model.VoiceCommand
	if err := query.Order("id desc").Limit(100).Find(&commands).Error; err != nil {
		log.Error("Failed to list voice commands", zap.Error(err))
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "failed to retrieve commands"})
	}
	return c.JSON(http.StatusOK, commands)
}

// GetVoiceCommand returns one command with its interpretation status. Only
// the submitter or an elevated role may read it.
func GetVoiceCommand(c echo.Context) error {
	user := middleware.CurrentUser(c)
	tenantID, _ := middleware.CurrentTenant(c)

	id, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil {
		return c.JSON(http.StatusNotFound, echo.Map{"error": "command not found"})
	}

	defer prometheus.TrackDBOperation("query")(time.Now())
	var cmd model.VoiceCommand
	if err := database.GetDB().
		Where("id = ? AND tenant_id = ?", id, tenantID).
		First(&cmd).Error; err != nil {
		return c.JSON(http.StatusNotFound, echo.Map{"error": "command not found"})
	}

	if err := authz.RequireOwnerOrElevated(c.Request().Context(), user, tenantID, cmd.UserID); err != nil {
		// Hide the command's existence from non-owners
		return c.JSON(http.StatusNotFound, echo.Map{"error": "command not found"})
	}
	return c.JSON(http.StatusOK, cmd)
}
