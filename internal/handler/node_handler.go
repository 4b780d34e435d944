package handler

import (
	"errors"
	"net/http"
	"strconv"
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
	"gorm.io/gorm"
)

// CreateNode registers a tag point inside a room. The room, and through it
// the house, must belong to the caller's tenant.
func CreateNode(c echo.Context) error {
	log := logger.FromEcho(c)
	user := middleware.CurrentUser(c)
	tenantID, _ := middleware.CurrentTenant(c)

	var req struct {
		Name        string `json:"name"`
		Description string `json:"description"`
		NFCTagID    string `json:"nfc_tag_id"`
		RoomID      uint   `json:"room_id"`
	}
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid request"})
	}
	if req.Name == "" || req.RoomID == 0 {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "name and room_id are required"})
	}

	var room model.Room
	if err := database.GetDB().
		Where("id = ? AND tenant_id = ?", req.RoomID, tenantID).
		First(&room).Error; err != nil {
		return c.JSON(http.StatusNotFound, echo.Map{"error": "room not found"})
	}
	house, err := fetchHouse(tenantID, room.HouseID)
	if err != nil {
		return c.JSON(http.StatusNotFound, echo.Map{"error": "room not found"})
	}
	if err := authz.RequireOwnerOrElevated(c.Request().Context(), user, tenantID, house.OwnerID); err != nil {
		return c.JSON(rbac.HTTPStatus(err), echo.Map{"error": httpSafeError(err)})
	}

	if req.NFCTagID != "" {
		var count int64
		database.GetDB().Model(&model.Node{}).
			Where("nfc_tag_id = ?", req.NFCTagID).Count(&count)
		if count > 0 {
			return c.JSON(http.StatusConflict, echo.Map{"error": "NFC tag already registered"})
		}
	}

	node := model.Node{
		Name:        req.Name,
		Description: req.Description,
		NFCTagID:    req.NFCTagID,
		RoomID:      room.ID,
		HouseID:     room.HouseID,
		TenantID:    tenantID,
	}
	defer prometheus.TrackDBOperation("insert")(time.Now())
	if err := database.GetDB().Create(&node).Error; err != nil {
		log.Error("Failed to create node", zap.Error(err))
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "node creation failed"})
	}

	log.Info("Node created",
		zap.Uint("node_id", node.ID),
		zap.Uint("room_id", room.ID),
		zap.String("nfc_tag_id", node.NFCTagID))
	return c.JSON(http.StatusCreated, node)
}

// ListNodes returns nodes in the tenant, optionally filtered by room_id or
// house_id
func ListNodes(c echo.Context) error {
	log := logger.FromEcho(c)
	tenantID, _ := middleware.CurrentTenant(c)

	query := database.GetDB().Where("tenant_id = ?", tenantID)
	if raw := c.QueryParam("room_id"); raw != "" {
		roomID, err := strconv.ParseUint(raw, 10, 32)
		if err != nil {
			return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid room_id"})
		}
		query = query.Where("room_id = ?", roomID)
	}
	if raw := c.QueryParam("house_id"); raw != "" {
		houseID, err := strconv.ParseUint(raw, 10, 32)
		if err != nil {
			return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid house_id"})
		}
		query = query.Where("house_id = ?", houseID)
	}

	defer prometheus.TrackDBOperation("query")(time.Now())
	var nodes []model.Node
	if err := query.Order("id").Find(&nodes).Error; err != nil {
		log.Error("Failed to list nodes", zap.Error(err))
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "failed to retrieve nodes"})
	}
	return c.JSON(http.StatusOK, nodes)
}

// GetNode returns a node by ID within the caller's tenant
func GetNode(c echo.Context) error {
	tenantID, _ := middleware.CurrentTenant(c)

	node, err := nodeInTenant(c, tenantID)
	if err != nil {
		return c.JSON(http.StatusNotFound, echo.Map{"error": "node not found"})
	}
	return c.JSON(http.StatusOK, node)
}

// ResolveNodeByTag looks up a node by its NFC tag ID. Used by the voice
// surface to map a scanned tag to a location.
func ResolveNodeByTag(c echo.Context) error {
	tenantID, _ := middleware.CurrentTenant(c)

	tagID := c.Param("tag_id")
	if tagID == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "tag_id is required"})
	}

	defer prometheus.TrackDBOperation("query")(time.Now())
	var node model.Node
	err := database.GetDB().
		Where("nfc_tag_id = ? AND tenant_id = ?", tagID, tenantID).
		First(&node).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return c.JSON(http.StatusNotFound, echo.Map{"error": "node not found"})
	}
	if err != nil {
		logger.FromEcho(c).Error("Failed to resolve node", zap.Error(err))
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "failed to resolve node"})
	}
	return c.JSON(http.StatusOK, node)
}

// UpdateNode updates node fields, gated on the owning house
func UpdateNode(c echo.Context) error {
	log := logger.FromEcho(c)
	user := middleware.CurrentUser(c)
	tenantID, _ := middleware.CurrentTenant(c)

	node, err := nodeInTenant(c, tenantID)
	if err != nil {
		return c.JSON(http.StatusNotFound, echo.Map{"error": "node not found"})
	}
	house, err := fetchHouse(tenantID, node.HouseID)
	if err != nil {
		return c.JSON(http.StatusNotFound, echo.Map{"error": "node not found"})
	}
	if err := authz.RequireOwnerOrElevated(c.Request().Context(), user, tenantID, house.OwnerID); err != nil {
		return c.JSON(rbac.HTTPStatus(err), echo.Map{"error": httpSafeError(err)})
	}

	var req struct {
		Name        *string `json:"name"`
		Description *string `json:"description"`
		NFCTagID    *string `json:"nfc_tag_id"`
	}
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid request"})
	}
	if req.Name != nil {
		if *req.Name == "" {
			return c.JSON(http.StatusBadRequest, echo.Map{"error": "name cannot be empty"})
		}
		node.Name = *req.Name
	}
	if req.Description != nil {
		node.Description = *req.Description
	}
	if req.NFCTagID != nil && *req.NFCTagID != node.NFCTagID {
		var count int64
		database.GetDB().Model(&model.Node{}).
			Where("nfc_tag_id = ? AND id <> ?", *req.NFCTagID, node.ID).Count(&count)
		if count > 0 {
			return c.JSON(http.StatusConflict, echo.Map{"error": "NFC tag already registered"})
		}
		node.NFCTagID = *req.NFCTagID
	}

	defer prometheus.TrackDBOperation("update")(time.Now())
	if err := database.GetDB().Save(node).Error; err != nil {
		log.Error("Failed to update node", zap.Error(err))
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "update failed"})
	}
	return c.JSON(http.StatusOK, node)
}

// DeleteNode soft-deletes a node
func DeleteNode(c echo.Context) error {
	log := logger.FromEcho(c)
	user := middleware.CurrentUser(c)
	tenantID, _ := middleware.CurrentTenant(c)

	node, err := nodeInTenant(c, tenantID)
	if err != nil {
		return c.JSON(http.StatusNotFound, echo.Map{"error": "node not found"})
	}
	house, err := fetchHouse(tenantID, node.HouseID)
	if err != nil {
		return c.JSON(http.StatusNotFound, echo.Map{"error": "node not found"})
	}
	if err := authz.RequireOwnerOrElevated(c.Request().Context(), user, tenantID, house.OwnerID); err != nil {
		return c.JSON(rbac.HTTPStatus(err), echo.Map{"error": httpSafeError(err)})
	}

	defer prometheus.TrackDBOperation("delete")(time.Now())
	if err := database.GetDB().Delete(node).Error; err != nil {
		log.Error("Failed to delete node", zap.Error(err))
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "delete failed"})
	}

	log.Info("Node deleted", zap.Uint("node_id", node.ID))
	return c.JSON(http.StatusOK, echo.Map{"message": "Node deleted"})
}

func nodeInTenant(c echo.Context, tenantID uuid.UUID) (*model.Node, error) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil {
		return nil, echo.ErrNotFound
	}
	defer prometheus.TrackDBOperation("query")(time.Now())
	var node model.Node
	if err := database.GetDB().
		Where("id = ? AND tenant_id = ?", id, tenantID).
		First(&node).Error; err != nil {
		return nil, err
	}
	return &node, nil
}
