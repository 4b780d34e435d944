package handler

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	"eterna-home/internal/middleware"
	"eterna-home/internal/model"
	"eterna-home/internal/rbac"
	"eterna-home/pkg/database"
	"eterna-home/pkg/logger"
	"eterna-home/prometheus"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"go.uber.org/zap"
)

// AskAssistant answers a prompt and records the exchange. Responses are
// generated locally from tenant data; no external model is called.
func AskAssistant(c echo.Context) error {
	log := logger.FromEcho(c)
	user := middleware.CurrentUser(c)
	tenantID, _ := middleware.CurrentTenant(c)

	var req struct {
		Prompt    string `json:"prompt"`
		SessionID string `json:"session_id"`
	}
	if err := c.Bind(&req); err != nil || req.Prompt == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "prompt is required"})
	}
	if req.SessionID == "" {
		req.SessionID = uuid.NewString()
	}

	interaction := model.AIInteraction{
		SessionID: req.SessionID,
		Prompt:    req.Prompt,
		Response:  answerPrompt(tenantID, req.Prompt),
		UserID:    user.ID,
		TenantID:  tenantID,
	}
	defer prometheus.TrackDBOperation("insert")(time.Now())
	if err := database.GetDB().Create(&interaction).Error; err != nil {
		log.Error("Failed to record interaction", zap.Error(err))
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "assistant request failed"})
	}

	log.Info("Assistant interaction",
		zap.String("session_id", interaction.SessionID),
		zap.Uint("interaction_id", interaction.ID))
	return c.JSON(http.StatusCreated, interaction)
}

// ListInteractions returns the caller's interaction history, optionally
// filtered by session_id. Reading other users' history requires the AI
// management permission.
func ListInteractions(c echo.Context) error {
	log := logger.FromEcho(c)
	user := middleware.CurrentUser(c)
	tenantID, _ := middleware.CurrentTenant(c)

	query := database.GetDB().Where("tenant_id = ?", tenantID)
	if sessionID := c.QueryParam("session_id"); sessionID != "" {
		query = query.Where("session_id = ?", sessionID)
	}

	if c.QueryParam("all") == "true" {
		if err := authz.RequirePermission(c.Request().Context(), user, tenantID, rbac.PermManageAI); err != nil {
			return c.JSON(rbac.HTTPStatus(err), echo.Map{"error": httpSafeError(err)})
		}
	} else {
		query = query.Where("user_id = ?", user.ID)
	}

	defer prometheus.TrackDBOperation("query")(time.Now())
	var interactions []model.AIInteraction
	if err := query.Order("id desc").Limit(100).Find(&interactions).Error; err != nil {
		log.Error("Failed to list interactions", zap.Error(err))
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "failed to retrieve interactions"})
	}
	return c.JSON(http.StatusOK, interactions)
}

// answerPrompt produces a canned answer from tenant inventory counts.
// A stand-in for a real model integration.
func answerPrompt(tenantID uuid.UUID, prompt string) string {
	lower := strings.ToLower(prompt)
	db := database.GetDB()

	switch {
	case strings.Contains(lower, "house"):
		var count int64
		db.Model(&model.House{}).Where("tenant_id = ?", tenantID).Count(&count)
		return fmt.Sprintf("You have %d house(s) registered.", count)
	case strings.Contains(lower, "room"):
		var count int64
		db.Model(&model.Room{}).Where("tenant_id = ?", tenantID).Count(&count)
		return fmt.Sprintf("You have %d room(s) registered.", count)
	case strings.Contains(lower, "document"):
		var count int64
		db.Model(&model.Document{}).Where("tenant_id = ?", tenantID).Count(&count)
		return fmt.Sprintf("You have %d document(s) stored.", count)
	case strings.Contains(lower, "node") || strings.Contains(lower, "tag"):
		var count int64
		db.Model(&model.Node{}).Where("tenant_id = ?", tenantID).Count(&count)
		return fmt.Sprintf("You have %d node(s) installed.", count)
	default:
		return "I can answer questions about your houses, rooms, nodes and documents."
	}
}
