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

// CreateTenant creates a tenant and makes the caller its admin
func CreateTenant(c echo.Context) error {
	log := logger.FromEcho(c)
	prometheus.RecordTenantOperation("create")
	user := middleware.CurrentUser(c)

	var req struct {
		Name        string `json:"name"`
		Description string `json:"description"`
	}
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid request"})
	}
	if req.Name == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "name is required"})
	}

	defer prometheus.TrackDBOperation("insert")(time.Now())
	tx := database.GetDB().Begin()
	if tx.Error != nil {
		log.Error("Failed to begin transaction", zap.Error(tx.Error))
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "database error"})
	}

	tenant := model.Tenant{
		Name:        req.Name,
		Description: req.Description,
		OwnerID:     user.ID,
		Active:      true,
	}
	if result := tx.Create(&tenant); result.Error != nil {
		tx.Rollback()
		log.Error("Failed to create tenant", zap.Error(result.Error))
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "tenant creation failed"})
	}

	assignment := model.UserTenantRole{
		UserID:   user.ID,
		TenantID: tenant.ID,
		Role:     rbac.RoleAdmin.String(),
		Active:   true,
	}
	if result := tx.Create(&assignment); result.Error != nil {
		tx.Rollback()
		log.Error("Failed to create role assignment", zap.Error(result.Error))
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "tenant creation failed"})
	}

	// First tenant becomes the user's active tenant
	if user.TenantID == nil {
		if result := tx.Model(&model.User{}).Where("id = ?", user.ID).Update("tenant_id", tenant.ID); result.Error != nil {
			tx.Rollback()
			log.Error("Failed to set user tenant", zap.Error(result.Error))
			return c.JSON(http.StatusInternalServerError, echo.Map{"error": "tenant creation failed"})
		}
	}

	if err := tx.Commit().Error; err != nil {
		log.Error("Failed to commit transaction", zap.Error(err))
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "tenant creation failed"})
	}
	users.Invalidate(c.Request().Context(), user.Email)

	log.Info("Tenant created",
		zap.String("name", tenant.Name),
		zap.String("tenant_id", tenant.ID.String()),
		zap.Uint("owner_id", tenant.OwnerID))
	return c.JSON(http.StatusCreated, echo.Map{
		"message": "Tenant created successfully",
		"tenant":  tenant,
	})
}

// ListMyTenants returns the tenants the caller holds a role in
func ListMyTenants(c echo.Context) error {
	log := logger.FromEcho(c)
	prometheus.RecordTenantOperation("list")
	user := middleware.CurrentUser(c)

	defer prometheus.TrackDBOperation("query")(time.Now())
	var assignments []model.UserTenantRole
	if err := database.GetDB().Preload("Tenant").
		Where("user_id = ? AND active = ?", user.ID, true).
		Find(&assignments).Error; err != nil {
		log.Error("Failed to retrieve tenants", zap.Error(err))
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "failed to retrieve tenants"})
	}

	type tenantResponse struct {
		ID          uuid.UUID `json:"id"`
		Name        string    `json:"name"`
		Description string    `json:"description"`
		Role        string    `json:"role"`
		Active      bool      `json:"active"`
	}

	response := make([]tenantResponse, 0, len(assignments))
	for _, a := range assignments {
		response = append(response, tenantResponse{
			ID:          a.TenantID,
			Name:        a.Tenant.Name,
			Description: a.Tenant.Description,
			Role:        a.Role,
			Active:      a.Tenant.Active,
		})
	}

	return c.JSON(http.StatusOK, response)
}

// GetTenant returns tenant details for members. Non-members get the same
// response as for a tenant that does not exist.
func GetTenant(c echo.Context) error {
	prometheus.RecordTenantOperation("access")
	user := middleware.CurrentUser(c)

	tenantID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid tenant ID"})
	}

	defer prometheus.TrackDBOperation("query")(time.Now())
	if !user.IsSuperuser {
		member, err := authz.HasAnyRoleInTenant(c.Request().Context(), user.ID, tenantID)
		if err != nil {
			return c.JSON(http.StatusInternalServerError, echo.Map{"error": "internal error"})
		}
		if !member {
			return c.JSON(http.StatusNotFound, echo.Map{"error": "tenant not found"})
		}
	}

	var tenant model.Tenant
	if result := database.GetDB().First(&tenant, "id = ?", tenantID); result.Error != nil {
		return c.JSON(http.StatusNotFound, echo.Map{"error": "tenant not found"})
	}

	return c.JSON(http.StatusOK, tenant)
}

// AddTenantMember grants a role in the tenant to a user, identified by
// email. Requires an elevated role in the tenant.
func AddTenantMember(c echo.Context) error {
	log := logger.FromEcho(c)
	prometheus.RecordTenantOperation("add_member")
	caller := middleware.CurrentUser(c)

	tenantID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid tenant ID"})
	}

	var req struct {
		Email string `json:"email"`
		Role  string `json:"role"`
	}
	if err := c.Bind(&req); err != nil || req.Email == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "email is required"})
	}
	role := rbac.Role(req.Role)
	if req.Role == "" {
		role = rbac.RoleViewer
	}
	if !role.Valid() {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "unknown role"})
	}

	if err := authz.RequireAnyRole(c.Request().Context(), caller, tenantID, rbac.ElevatedRoles()...); err != nil {
		return c.JSON(rbac.HTTPStatus(err), echo.Map{"error": httpSafeError(err)})
	}

	var target model.User
	if err := database.GetDB().Where("email = ?", req.Email).First(&target).Error; err != nil {
		return c.JSON(http.StatusNotFound, echo.Map{"error": "user not found"})
	}

	var existing model.UserTenantRole
	result := database.GetDB().
		Where("user_id = ? AND tenant_id = ? AND role = ?", target.ID, tenantID, role.String()).
		First(&existing)
	if result.Error == nil {
		return c.JSON(http.StatusOK, echo.Map{
			"message":    "User already holds this role",
			"assignment": existing,
		})
	}

	assignment := model.UserTenantRole{
		UserID:   target.ID,
		TenantID: tenantID,
		Role:     role.String(),
		Active:   true,
	}
	defer prometheus.TrackDBOperation("insert")(time.Now())
	if err := database.GetDB().Create(&assignment).Error; err != nil {
		log.Error("Failed to create role assignment", zap.Error(err))
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "failed to add member"})
	}

	// Users without an active tenant adopt the one they are added to
	if target.TenantID == nil {
		if err := database.GetDB().Model(&target).Update("tenant_id", tenantID).Error; err != nil {
			log.Error("Failed to set user's active tenant", zap.Error(err))
			return c.JSON(http.StatusInternalServerError, echo.Map{"error": "failed to add member"})
		}
		users.Invalidate(c.Request().Context(), target.Email)
	}

	log.Info("Member added to tenant",
		zap.String("tenant_id", tenantID.String()),
		zap.String("email", target.Email),
		zap.String("role", role.String()))
	return c.JSON(http.StatusCreated, echo.Map{
		"message":    "Member added",
		"assignment": assignment,
	})
}

// UpdateTenantMember replaces a member's role set with a single role
func UpdateTenantMember(c echo.Context) error {
	log := logger.FromEcho(c)
	prometheus.RecordTenantOperation("update_member")
	caller := middleware.CurrentUser(c)

	tenantID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid tenant ID"})
	}
	targetID, err := strconv.ParseUint(c.Param("user_id"), 10, 32)
	if err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid user ID"})
	}

	var req struct {
		Role string `json:"role"`
	}
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid request"})
	}
	role := rbac.Role(req.Role)
	if !role.Valid() {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "unknown role"})
	}

	if err := authz.RequireAnyRole(c.Request().Context(), caller, tenantID, rbac.ElevatedRoles()...); err != nil {
		return c.JSON(rbac.HTTPStatus(err), echo.Map{"error": httpSafeError(err)})
	}

	var count int64
	database.GetDB().Model(&model.UserTenantRole{}).
		Where("user_id = ? AND tenant_id = ?", targetID, tenantID).
		Count(&count)
	if count == 0 {
		return c.JSON(http.StatusNotFound, echo.Map{"error": "member not found"})
	}

	defer prometheus.TrackDBOperation("update")(time.Now())
	tx := database.GetDB().Begin()
	if err := tx.Where("user_id = ? AND tenant_id = ?", targetID, tenantID).
		Delete(&model.UserTenantRole{}).Error; err != nil {
		tx.Rollback()
		log.Error("Failed to clear role assignments", zap.Error(err))
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "update failed"})
	}
	assignment := model.UserTenantRole{
		UserID:   uint(targetID),
		TenantID: tenantID,
		Role:     role.String(),
		Active:   true,
	}
	if err := tx.Create(&assignment).Error; err != nil {
		tx.Rollback()
		log.Error("Failed to create role assignment", zap.Error(err))
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "update failed"})
	}
	if err := tx.Commit().Error; err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "update failed"})
	}

	log.Info("Member role updated",
		zap.String("tenant_id", tenantID.String()),
		zap.Uint64("user_id", targetID),
		zap.String("role", role.String()))
	return c.JSON(http.StatusOK, echo.Map{"message": "Member updated", "assignment": assignment})
}

// RemoveTenantMember removes all of a member's roles in the tenant. The
// tenant owner cannot be removed.
func RemoveTenantMember(c echo.Context) error {
	log := logger.FromEcho(c)
	prometheus.RecordTenantOperation("remove_member")
	caller := middleware.CurrentUser(c)

	tenantID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid tenant ID"})
	}
	targetID, err := strconv.ParseUint(c.Param("user_id"), 10, 32)
	if err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid user ID"})
	}

	if err := authz.RequireAnyRole(c.Request().Context(), caller, tenantID, rbac.ElevatedRoles()...); err != nil {
		return c.JSON(rbac.HTTPStatus(err), echo.Map{"error": httpSafeError(err)})
	}

	var tenant model.Tenant
	if err := database.GetDB().First(&tenant, "id = ?", tenantID).Error; err != nil {
		return c.JSON(http.StatusNotFound, echo.Map{"error": "tenant not found"})
	}
	if tenant.OwnerID == uint(targetID) {
		log.Warn("Attempted to remove tenant owner",
			zap.String("tenant_id", tenantID.String()),
			zap.Uint64("owner_id", targetID))
		return c.JSON(http.StatusForbidden, echo.Map{"error": "cannot remove tenant owner"})
	}

	defer prometheus.TrackDBOperation("delete")(time.Now())
	result := database.GetDB().
		Where("user_id = ? AND tenant_id = ?", targetID, tenantID).
		Delete(&model.UserTenantRole{})
	if result.Error != nil {
		log.Error("Failed to remove member", zap.Error(result.Error))
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "failed to remove member"})
	}
	if result.RowsAffected == 0 {
		return c.JSON(http.StatusNotFound, echo.Map{"error": "member not found"})
	}

	log.Info("Member removed from tenant",
		zap.String("tenant_id", tenantID.String()),
		zap.Uint64("user_id", targetID))
	return c.JSON(http.StatusOK, echo.Map{"message": "Member removed"})
}

// httpSafeError hides server-side fault details behind a generic message
func httpSafeError(err error) string {
	if rbac.HTTPStatus(err) >= 500 {
		return "internal error"
	}
	return err.Error()
}
