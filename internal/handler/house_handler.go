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

// CreateHouse creates a house owned by the caller in their active tenant
func CreateHouse(c echo.Context) error {
	log := logger.FromEcho(c)
	user := middleware.CurrentUser(c)
	tenantID, _ := middleware.CurrentTenant(c)

	var req struct {
		Name    string `json:"name"`
		Address string `json:"address"`
	}
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid request"})
	}
	if req.Name == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "name is required"})
	}

	house := model.House{
		Name:     req.Name,
		Address:  req.Address,
		OwnerID:  user.ID,
		TenantID: tenantID,
	}
	defer prometheus.TrackDBOperation("insert")(time.Now())
	if err := database.GetDB().Create(&house).Error; err != nil {
		log.Error("Failed to create house", zap.Error(err))
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "house creation failed"})
	}

	log.Info("House created", zap.Uint("house_id", house.ID), zap.String("name", house.Name))
	return c.JSON(http.StatusCreated, house)
}

// ListHouses returns all houses in the caller's tenant
func ListHouses(c echo.Context) error {
	log := logger.FromEcho(c)
	tenantID, _ := middleware.CurrentTenant(c)

	defer prometheus.TrackDBOperation("query")(time.Now())
	var houses []model.House
	if err := database.GetDB().Where("tenant_id = ?", tenantID).
		Order("id").Find(&houses).Error; err != nil {
		log.Error("Failed to list houses", zap.Error(err))
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "failed to retrieve houses"})
	}
	return c.JSON(http.StatusOK, houses)
}

// GetHouse returns a house by ID within the caller's tenant
func GetHouse(c echo.Context) error {
	tenantID, _ := middleware.CurrentTenant(c)

	house, err := houseInTenant(c, tenantID)
	if err != nil {
		return c.JSON(http.StatusNotFound, echo.Map{"error": "house not found"})
	}
	return c.JSON(http.StatusOK, house)
}

// UpdateHouse updates house fields. Allowed for the owner or an elevated role.
func UpdateHouse(c echo.Context) error {
	log := logger.FromEcho(c)
	user := middleware.CurrentUser(c)
	tenantID, _ := middleware.CurrentTenant(c)

	house, err := houseInTenant(c, tenantID)
	if err != nil {
		return c.JSON(http.StatusNotFound, echo.Map{"error": "house not found"})
	}
	if err := authz.RequireOwnerOrElevated(c.Request().Context(), user, tenantID, house.OwnerID); err != nil {
		return c.JSON(rbac.HTTPStatus(err), echo.Map{"error": httpSafeError(err)})
	}

	var req struct {
		Name    *string `json:"name"`
		Address *string `json:"address"`
	}
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid request"})
	}
	if req.Name != nil {
		if *req.Name == "" {
			return c.JSON(http.StatusBadRequest, echo.Map{"error": "name cannot be empty"})
		}
		house.Name = *req.Name
	}
	if req.Address != nil {
		house.Address = *req.Address
	}

	defer prometheus.TrackDBOperation("update")(time.Now())
	if err := database.GetDB().Save(house).Error; err != nil {
		log.Error("Failed to update house", zap.Error(err))
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "update failed"})
	}
	return c.JSON(http.StatusOK, house)
}

// DeleteHouse soft-deletes a house and its rooms and nodes
func DeleteHouse(c echo.Context) error {
	log := logger.FromEcho(c)
	user := middleware.CurrentUser(c)
	tenantID, _ := middleware.CurrentTenant(c)

	house, err := houseInTenant(c, tenantID)
	if err != nil {
		return c.JSON(http.StatusNotFound, echo.Map{"error": "house not found"})
	}
	if err := authz.RequireOwnerOrElevated(c.Request().Context(), user, tenantID, house.OwnerID); err != nil {
		return c.JSON(rbac.HTTPStatus(err), echo.Map{"error": httpSafeError(err)})
	}

	defer prometheus.TrackDBOperation("delete")(time.Now())
	tx := database.GetDB().Begin()
	if err := tx.Where("house_id = ? AND tenant_id = ?", house.ID, tenantID).
		Delete(&model.Node{}).Error; err != nil {
		tx.Rollback()
		log.Error("Failed to delete nodes", zap.Error(err))
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "delete failed"})
	}
	if err := tx.Where("house_id = ? AND tenant_id = ?", house.ID, tenantID).
		Delete(&model.Room{}).Error; err != nil {
		tx.Rollback()
		log.Error("Failed to delete rooms", zap.Error(err))
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "delete failed"})
	}
	if err := tx.Delete(house).Error; err != nil {
		tx.Rollback()
		log.Error("Failed to delete house", zap.Error(err))
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "delete failed"})
	}
	if err := tx.Commit().Error; err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "delete failed"})
	}

	log.Info("House deleted", zap.Uint("house_id", house.ID))
	return c.JSON(http.StatusOK, echo.Map{"message": "House deleted"})
}

// houseInTenant loads the house from the :id path param, filtered to the
// tenant. A house in another tenant is indistinguishable from a missing one.
func houseInTenant(c echo.Context, tenantID uuid.UUID) (*model.House, error) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil {
		return nil, echo.ErrNotFound
	}
	defer prometheus.TrackDBOperation("query")(time.Now())
	var house model.House
	if err := database.GetDB().
		Where("id = ? AND tenant_id = ?", id, tenantID).
		First(&house).Error; err != nil {
		return nil, err
	}
	return &house, nil
}
