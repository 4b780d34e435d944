package handler

import (
	"fmt"
	"net/http"
	"path"
	"strconv"
	"strings"
	"time"

	"eterna-home/internal/middleware"
	"eterna-home/internal/model"
	"eterna-home/internal/worker"
	"eterna-home/pkg/database"
	"eterna-home/pkg/logger"
	"eterna-home/prometheus"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"go.uber.org/zap"
)

const maxBIMSize = 500 << 20 // 500 MiB

// UploadBIMModel stores a BIM file and queues it for parsing. The response
// carries status pending; poll GET /bim/:id for the parse result.
func UploadBIMModel(c echo.Context) error {
	log := logger.FromEcho(c)
	user := middleware.CurrentUser(c)
	tenantID, _ := middleware.CurrentTenant(c)

	fileHeader, err := c.FormFile("file")
	if err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "file is required"})
	}
	if fileHeader.Size > maxBIMSize {
		return c.JSON(http.StatusRequestEntityTooLarge, echo.Map{"error": "file too large"})
	}

	format := strings.TrimPrefix(strings.ToLower(path.Ext(fileHeader.Filename)), ".")
	name := c.FormValue("name")
	if name == "" {
		name = fileHeader.Filename
	}

	var houseID *uint
	if raw := c.FormValue("house_id"); raw != "" {
		parsed, err := strconv.ParseUint(raw, 10, 32)
		if err != nil {
			return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid house_id"})
		}
		if _, err := fetchHouse(tenantID, uint(parsed)); err != nil {
			return c.JSON(http.StatusNotFound, echo.Map{"error": "house not found"})
		}
		id := uint(parsed)
		houseID = &id
	}

	src, err := fileHeader.Open()
	if err != nil {
		log.Error("Failed to open uploaded file", zap.Error(err))
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "upload failed"})
	}
	defer src.Close()

	key := fmt.Sprintf("bim/%s/%s", tenantID, uuid.NewString())
	_, size, err := blobs.Put(c.Request().Context(), key, src, "application/octet-stream")
	if err != nil {
		log.Error("Failed to store BIM file", zap.Error(err), zap.String("key", key))
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "upload failed"})
	}

	bim := model.BIMModel{
		Name:       name,
		Format:     format,
		StorageKey: key,
		SizeBytes:  size,
		Status:     model.BIMStatusPending,
		HouseID:    houseID,
		OwnerID:    user.ID,
		TenantID:   tenantID,
	}
	defer prometheus.TrackDBOperation("insert")(time.Now())
	if err := database.GetDB().Create(&bim).Error; err != nil {
		log.Error("Failed to record BIM model", zap.Error(err))
		_ = blobs.Delete(c.Request().Context(), key)
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "upload failed"})
	}

	if err := pool.Enqueue(worker.Job{Type: worker.JobBIMParse, ID: bim.ID}); err != nil {
		// Row stays pending; a later maintenance sweep or re-enqueue can
		// pick it up, but tell the client processing is not scheduled.
		log.Warn("BIM parse queue full", zap.Uint("bim_id", bim.ID))
		return c.JSON(http.StatusServiceUnavailable, echo.Map{
			"error": "processing queue is full, try again later",
		})
	}

	log.Info("BIM model uploaded",
		zap.Uint("bim_id", bim.ID),
		zap.String("format", bim.Format),
		zap.Int64("size_bytes", bim.SizeBytes))
	return c.JSON(http.StatusAccepted, bim)
}

// ListBIMModels returns BIM models in the tenant, optionally filtered by
// house_id or status
func ListBIMModels(c echo.Context) error {
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
	if status := c.QueryParam("status"); status != "" {
		query = query.Where("status = ?", status)
	}

	defer prometheus.TrackDBOperation("query")(time.Now())
	var models []model.BIMModel
	if err := query.Order("id").Find(&models).Error; err != nil {
		log.Error("Failed to list BIM models", zap.Error(err))
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "failed to retrieve BIM models"})
	}
	return c.JSON(http.StatusOK, models)
}

// GetBIMModel returns a BIM model with its parse status
func GetBIMModel(c echo.Context) error {
	tenantID, _ := middleware.CurrentTenant(c)

	bim, err := bimInTenant(c, tenantID)
	if err != nil {
		return c.JSON(http.StatusNotFound, echo.Map{"error": "BIM model not found"})
	}
	return c.JSON(http.StatusOK, bim)
}

func bimInTenant(c echo.Context, tenantID uuid.UUID) (*model.BIMModel, error) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil {
		return nil, echo.ErrNotFound
	}
	defer prometheus.TrackDBOperation("query")(time.Now())
	var bim model.BIMModel
	if err := database.GetDB().
		Where("id = ? AND tenant_id = ?", id, tenantID).
		First(&bim).Error; err != nil {
		return nil, err
	}
	return &bim, nil
}
