package handler

import (
	"fmt"
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

const maxDocumentSize = 50 << 20 // 50 MiB

// UploadDocument stores a file in object storage and records its metadata.
// Multipart form: file (required), name, description, house_id.
func UploadDocument(c echo.Context) error {
	log := logger.FromEcho(c)
	user := middleware.CurrentUser(c)
	tenantID, _ := middleware.CurrentTenant(c)

	fileHeader, err := c.FormFile("file")
	if err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "file is required"})
	}
	if fileHeader.Size > maxDocumentSize {
		return c.JSON(http.StatusRequestEntityTooLarge, echo.Map{"error": "file too large"})
	}

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

	contentType := fileHeader.Header.Get("Content-Type")
	if contentType == "" {
		contentType = "application/octet-stream"
	}

	key := fmt.Sprintf("documents/%s/%s", tenantID, uuid.NewString())
	checksum, size, err := blobs.Put(c.Request().Context(), key, src, contentType)
	if err != nil {
		log.Error("Failed to store document", zap.Error(err), zap.String("key", key))
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "upload failed"})
	}

	doc := model.Document{
		Name:        name,
		Description: c.FormValue("description"),
		MimeType:    contentType,
		SizeBytes:   size,
		StorageKey:  key,
		Checksum:    checksum,
		HouseID:     houseID,
		OwnerID:     user.ID,
		TenantID:    tenantID,
	}
	defer prometheus.TrackDBOperation("insert")(time.Now())
	if err := database.GetDB().Create(&doc).Error; err != nil {
		log.Error("Failed to record document", zap.Error(err))
		// Orphaned blob; best effort cleanup
		_ = blobs.Delete(c.Request().Context(), key)
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "upload failed"})
	}

	log.Info("Document uploaded",
		zap.Uint("document_id", doc.ID),
		zap.String("name", doc.Name),
		zap.Int64("size_bytes", doc.SizeBytes))
	return c.JSON(http.StatusCreated, doc)
}

// ListDocuments returns document metadata in the tenant, optionally
// filtered by house_id
func ListDocuments(c echo.Context) error {
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
	var docs []model.Document
	if err := query.Order("id").Find(&docs).Error; err != nil {
		log.Error("Failed to list documents", zap.Error(err))
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "failed to retrieve documents"})
	}
	return c.JSON(http.StatusOK, docs)
}

// GetDocument returns document metadata by ID within the caller's tenant
func GetDocument(c echo.Context) error {
	tenantID, _ := middleware.CurrentTenant(c)

	doc, err := documentInTenant(c, tenantID)
	if err != nil {
		return c.JSON(http.StatusNotFound, echo.Map{"error": "document not found"})
	}
	return c.JSON(http.StatusOK, doc)
}

// DownloadDocument streams the document content from object storage
func DownloadDocument(c echo.Context) error {
	log := logger.FromEcho(c)
	tenantID, _ := middleware.CurrentTenant(c)

	doc, err := documentInTenant(c, tenantID)
	if err != nil {
		return c.JSON(http.StatusNotFound, echo.Map{"error": "document not found"})
	}

	body, contentType, err := blobs.Get(c.Request().Context(), doc.StorageKey)
	if err != nil {
		log.Error("Failed to fetch document content",
			zap.Error(err), zap.Uint("document_id", doc.ID))
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "download failed"})
	}
	defer body.Close()

	if contentType == "" {
		contentType = doc.MimeType
	}
	c.Response().Header().Set(echo.HeaderContentDisposition,
		fmt.Sprintf("attachment; filename=%q", doc.Name))
	return c.Stream(http.StatusOK, contentType, body)
}

// UpdateDocument updates document metadata. The stored content is immutable;
// re-upload to replace it.
func UpdateDocument(c echo.Context) error {
	log := logger.FromEcho(c)
	user := middleware.CurrentUser(c)
	tenantID, _ := middleware.CurrentTenant(c)

	doc, err := documentInTenant(c, tenantID)
	if err != nil {
		return c.JSON(http.StatusNotFound, echo.Map{"error": "document not found"})
	}
	if err := authz.RequireOwnerOrElevated(c.Request().Context(), user, tenantID, doc.OwnerID); err != nil {
		return c.JSON(rbac.HTTPStatus(err), echo.Map{"error": httpSafeError(err)})
	}

	var req struct {
		Name        *string `json:"name"`
		Description *string `json:"description"`
	}
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid request"})
	}
	if req.Name != nil {
		if *req.Name == "" {
			return c.JSON(http.StatusBadRequest, echo.Map{"error": "name cannot be empty"})
		}
		doc.Name = *req.Name
	}
	if req.Description != nil {
		doc.Description = *req.Description
	}

	defer prometheus.TrackDBOperation("update")(time.Now())
	if err := database.GetDB().Save(doc).Error; err != nil {
		log.Error("Failed to update document", zap.Error(err))
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "update failed"})
	}
	return c.JSON(http.StatusOK, doc)
}

// DeleteDocument removes the metadata row and the stored object
func DeleteDocument(c echo.Context) error {
	log := logger.FromEcho(c)
	user := middleware.CurrentUser(c)
	tenantID, _ := middleware.CurrentTenant(c)

	doc, err := documentInTenant(c, tenantID)
	if err != nil {
		return c.JSON(http.StatusNotFound, echo.Map{"error": "document not found"})
	}
	if err := authz.RequireOwnerOrElevated(c.Request().Context(), user, tenantID, doc.OwnerID); err != nil {
		return c.JSON(rbac.HTTPStatus(err), echo.Map{"error": httpSafeError(err)})
	}

	defer prometheus.TrackDBOperation("delete")(time.Now())
	if err := database.GetDB().Delete(doc).Error; err != nil {
		log.Error("Failed to delete document", zap.Error(err))
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "delete failed"})
	}
	if err := blobs.Delete(c.Request().Context(), doc.StorageKey); err != nil {
		// Metadata row is gone; leave the orphaned object to manual cleanup
		log.Warn("Failed to delete stored object",
			zap.Error(err), zap.String("key", doc.StorageKey))
	}

	log.Info("Document deleted", zap.Uint("document_id", doc.ID))
	return c.JSON(http.StatusOK, echo.Map{"message": "Document deleted"})
}

func documentInTenant(c echo.Context, tenantID uuid.UUID) (*model.Document, error) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil {
		return nil, echo.ErrNotFound
	}
	defer prometheus.TrackDBOperation("query")(time.Now())
	var doc model.Document
	if err := database.GetDB().
		Where("id = ? AND tenant_id = ?", id, tenantID).
		First(&doc).Error; err != nil {
		return nil, err
	}
	return &doc, nil
}
