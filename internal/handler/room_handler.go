package handler

import (
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
)

// CreateRoom adds a room to a house. The house must exist in the caller's
// tenant; a house elsewhere reads as not found.
func CreateRoom(c echo.Context) error {
	log := logger.FromEcho(c)
	user := middleware.CurrentUser(c)
	tenantID, _ := middleware.CurrentTenant(c)

	var req struct {
		Name    string  `json:"name"`
		Floor   int     `json:"floor"`
		AreaSqm float64 `json:"area_sqm"`
		HouseID uint    `json:"house_id"`
	}
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid request"})
	}
	if req.Name == "" || req.HouseID == 0 {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "name and house_id are required"})
	}

	house, err := fetchHouse(tenantID, req.HouseID)
	if err != nil {
		return c.JSON(http.StatusNotFound, echo.Map{"error": "house not found"})
	}
	if err := authz.RequireOwnerOrElevated(c.Request().Context(), user, tenantID, house.OwnerID); err != nil {
		return c.JSON(rbac.HTTPStatus(err), echo.Map{"error": httpSafeError(err)})
	}

	room := model.Room{
		Name:     req.Name,
		Floor:    req.Floor,
		AreaSqm:  req.AreaSqm,
		HouseID:  house.ID,
		TenantID: tenantID,
	}
	defer prometheus.TrackDBOperation("insert")(time.Now())
	if err := database.GetDB().Create(&room).Error; err != nil {
		log.Error("Failed to create room", zap.Error(err))
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "room creation failed"})
	}

	log.Info("Room created", zap.Uint("room_id", room.ID), zap.Uint("house_id", house.ID))
	return c.JSON(http.StatusCreated, room)
}

// ListRooms returns rooms in the tenant, optionally filtered by house_id
func ListRooms(c echo.Context) error {
	log := logger.FromEcho(c)
	tenantID, _ := middleware.CurrentTenant(c)

	query := database.GetDB().Where("tenant_id = ?", tenantID)
	if raw := c.QueryParam("house_id"); raw != "" {
		houseID, err := strconv.ParseUint(raw, 10, 32)
		if err != nil {
			return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid house_id"})
		}
		query = query.Where("house_id = ?", houseID)
	}

	defer prometheus.TrackDBOperation("query")(time.Now())
	var rooms []model.Room
	if err := query.Order("id").Find(&rooms).Error; err != nil {
		log.Error("Failed to list rooms", zap.Error(err))
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "failed to retrieve rooms"})
	}
	return c.JSON(http.StatusOK, rooms)
}

// GetRoom returns a room by ID within the caller's tenant
func GetRoom(c echo.Context) error {
	tenantID, _ := middleware.CurrentTenant(c)

	room, err := roomInTenant(c, tenantID)
	if err != nil {
		return c.JSON(http.StatusNotFound, echo.Map{"error": "room not found"})
	}
	return c.JSON(http.StatusOK, room)
}

// UpdateRoom updates room fields, gated on the owning house
func UpdateRoom(c echo.Context) error {
	log := logger.FromEcho(c)
	user := middleware.CurrentUser(c)
	tenantID, _ := middleware.CurrentTenant(c)

	room, err := roomInTenant(c, tenantID)
	if err != nil {
		return c.JSON(http.StatusNotFound, echo.Map{"error": "room not found"})
	}
	house, err := fetchHouse(tenantID, room.HouseID)
	if err != nil {
		return c.JSON(http.StatusNotFound, echo.Map{"error": "room not found"})
	}
	if err := authz.RequireOwnerOrElevated(c.Request().Context(), user, tenantID, house.OwnerID); err != nil {
		return c.JSON(rbac.HTTPStatus(err), echo.Map{"error": httpSafeError(err)})
	}

	var req struct {
		Name    *string  `json:"name"`
		Floor   *int     `json:"floor"`
		AreaSqm *float64 `json:"area_sqm"`
	}
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid request"})
	}
	if req.Name != nil {
		if *req.Name == "" {
			return c.JSON(http.StatusBadRequest, echo.Map{"error": "name cannot be empty"})
		}
		room.Name = *req.Name
	}
	if req.Floor != nil {
		room.Floor = *req.Floor
	}
	if req.AreaSqm != nil {
		room.AreaSqm = *req.AreaSqm
	}

	defer prometheus.TrackDBOperation("update")(time.Now())
	if err := database.GetDB().Save(room).Error; err != nil {
		log.Error("Failed to update room", zap.Error(err))
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "update failed"})
	}
	return c.JSON(http.StatusOK, room)
}

// DeleteRoom soft-deletes a room and its nodes
func DeleteRoom(c echo.Context) error {
	log := logger.FromEcho(c)
	user := middleware.CurrentUser(c)
	tenantID, _ := middleware.CurrentTenant(c)

	room, err := roomInTenant(c, tenantID)
	if err != nil {
		return c.JSON(http.StatusNotFound, echo.Map{"error": "room not found"})
	}
	house, err := fetchHouse(tenantID, room.HouseID)
	if err != nil {
		return c.JSON(http.StatusNotFound, echo.Map{"error": "room not found"})
	}
	if err := authz.RequireOwnerOrElevated(c.Request().Context(), user, tenantID, house.OwnerID); err != nil {
		return c.JSON(rbac.HTTPStatus(err), echo.Map{"error": httpSafeError(err)})
	}

	defer prometheus.TrackDBOperation("delete")(time.Now())
	tx := database.GetDB().Begin()
	if err := tx.Where("room_id = ? AND tenant_id = ?", room.ID, tenantID).
		Delete(&model.Node{}).Error; err != nil {
		tx.Rollback()
		log.Error("Failed to delete nodes", zap.Error(err))
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "delete failed"})
	}
	if err := tx.Delete(room).Error; err != nil {
		tx.Rollback()
		log.Error("Failed to delete room", zap.Error(err))
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "delete failed"})
	}
	if err := tx.Commit().Error; err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "delete failed"})
	}

	log.Info("Room deleted", zap.Uint("room_id", room.ID))
	return c.JSON(http.StatusOK, echo.Map{"message": "Room deleted"})
}

func roomInTenant(c echo.Context, tenantID uuid.UUID) (*model.Room, error) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil {
		return nil, echo.ErrNotFound
	}
	defer prometheus.TrackDBOperation("query")(time.Now())
	var room model.Room
	if err := database.GetDB().
		Where("id = ? AND tenant_id = ?", id, tenantID).
		First(&room).Error; err != nil {
		return nil, err
	}
	return &room, nil
}

func fetchHouse(tenantID uuid.UUID, houseID uint) (*model.House, error) {
	var house model.House
	if err := database.GetDB().
		Where("id = ? AND tenant_id = ?", houseID, tenantID).
		First(&house).Error; err != nil {
		return nil, err
	}
	return &house, nil
}
