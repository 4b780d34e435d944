package handler

import (
	"net/http"
	"strconv"
	"time"

	"eterna-home/internal/middleware"
	"eterna-home/internal/model"
	"eterna-home/pkg/database"
	"eterna-home/pkg/logger"
	"eterna-home/prometheus"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
)

// GetProfile returns the authenticated user's own record
func GetProfile(c echo.Context) error {
	user := middleware.CurrentUser(c)
	return c.JSON(http.StatusOK, user)
}

// UpdateProfile updates the caller's own mutable fields
func UpdateProfile(c echo.Context) error {
	log := logger.FromEcho(c)
	user := middleware.CurrentUser(c)

	var req struct {
		FullName *string `json:"full_name"`
		Username *string `json:"username"`
	}
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid request"})
	}

	updates := map[string]interface{}{}
	if req.FullName != nil {
		updates["full_name"] = *req.FullName
	}
	if req.Username != nil && *req.Username != "" {
		var count int64
		database.GetDB().Model(&model.User{}).
			Where("username = ? AND id <> ?", *req.Username, user.ID).
			Count(&count)
		if count > 0 {
			return c.JSON(http.StatusConflict, echo.Map{"error": "username already taken"})
		}
		updates["username"] = *req.Username
	}
	if len(updates) == 0 {
		return c.JSON(http.StatusOK, user)
	}

	defer prometheus.TrackDBOperation("update")(time.Now())
	if err := database.GetDB().Model(user).Updates(updates).Error; err != nil {
		log.Error("Failed to update profile", zap.Error(err))
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "update failed"})
	}
	users.Invalidate(c.Request().Context(), user.Email)

	log.Info("Profile updated", zap.String("email", user.Email))
	return c.JSON(http.StatusOK, user)
}

// ChangePassword verifies the current password and replaces it
func ChangePassword(c echo.Context) error {
	log := logger.FromEcho(c)
	user := middleware.CurrentUser(c)

	var req struct {
		CurrentPassword string `json:"current_password"`
		NewPassword     string `json:"new_password"`
	}
	if err := c.Bind(&req); err != nil || len(req.NewPassword) < 8 {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "a new password of at least 8 characters is required"})
	}

	// Re-read from the primary store; cached copies never carry the hash
	var fresh model.User
	if err := database.GetDB().First(&fresh, user.ID).Error; err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "internal error"})
	}

	if err := bcrypt.CompareHashAndPassword([]byte(fresh.HashedPassword), []byte(req.CurrentPassword)); err != nil {
		log.Warn("Password change with wrong current password", zap.String("email", user.Email))
		prometheus.RecordAuthError("invalid_password")
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "invalid credentials"})
	}

	hashed, err := bcrypt.GenerateFromPassword([]byte(req.NewPassword), bcrypt.DefaultCost)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "internal error"})
	}

	defer prometheus.TrackDBOperation("update")(time.Now())
	if err := database.GetDB().Model(&fresh).Update("hashed_password", string(hashed)).Error; err != nil {
		log.Error("Failed to change password", zap.Error(err))
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "update failed"})
	}
	users.Invalidate(c.Request().Context(), user.Email)

	log.Info("Password changed", zap.String("email", user.Email))
	return c.JSON(http.StatusOK, echo.Map{"message": "password changed"})
}

// ListUsers returns the users belonging to the caller's tenant
func ListUsers(c echo.Context) error {
	tenantID, _ := middleware.CurrentTenant(c)

	defer prometheus.TrackDBOperation("query")(time.Now())
	var members []model.User
	if err := database.GetDB().
		Where("tenant_id = ?", tenantID).
		Find(&members).Error; err != nil {
		logger.FromEcho(c).Error("Failed to list users", zap.Error(err))
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "failed to retrieve users"})
	}

	return c.JSON(http.StatusOK, members)
}

// GetUser returns one user in the caller's tenant. A user outside the
// tenant behaves as not found.
func GetUser(c echo.Context) error {
	tenantID, _ := middleware.CurrentTenant(c)

	id, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid user ID"})
	}

	var target model.User
	if err := database.GetDB().
		Where("id = ? AND tenant_id = ?", id, tenantID).
		First(&target).Error; err != nil {
		return c.JSON(http.StatusNotFound, echo.Map{"error": "user not found"})
	}

	return c.JSON(http.StatusOK, target)
}

// DisableUser soft-disables an account. Outstanding access tokens stop
// working as soon as the cache entry is invalidated.
func DisableUser(c echo.Context) error {
	return setUserActive(c, false)
}

// EnableUser re-activates a disabled account
func EnableUser(c echo.Context) error {
	return setUserActive(c, true)
}

func setUserActive(c echo.Context, active bool) error {
	log := logger.FromEcho(c)
	tenantID, _ := middleware.CurrentTenant(c)

	id, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid user ID"})
	}

	var target model.User
	if err := database.GetDB().
		Where("id = ? AND tenant_id = ?", id, tenantID).
		First(&target).Error; err != nil {
		return c.JSON(http.StatusNotFound, echo.Map{"error": "user not found"})
	}

	defer prometheus.TrackDBOperation("update")(time.Now())
	if err := database.GetDB().Model(&target).Update("is_active", active).Error; err != nil {
		log.Error("Failed to update user active flag", zap.Error(err))
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "update failed"})
	}
	users.Invalidate(c.Request().Context(), target.Email)

	log.Info("User active flag changed",
		zap.String("email", target.Email),
		zap.Bool("is_active", active))
	return c.JSON(http.StatusOK, target)
}

// DeleteUser removes an account entirely. Reserved for superusers; this
// is the one cross-tenant operation on users.
func DeleteUser(c echo.Context) error {
	log := logger.FromEcho(c)
	caller := middleware.CurrentUser(c)

	if !caller.IsSuperuser {
		prometheus.RecordAuthzDecision("deny")
		return c.JSON(http.StatusForbidden, echo.Map{"error": "insufficient permissions"})
	}

	id, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid user ID"})
	}

	var target model.User
	if err := database.GetDB().First(&target, id).Error; err != nil {
		return c.JSON(http.StatusNotFound, echo.Map{"error": "user not found"})
	}

	defer prometheus.TrackDBOperation("delete")(time.Now())
	tx := database.GetDB().Begin()
	if err := tx.Where("user_id = ?", target.ID).Delete(&model.UserTenantRole{}).Error; err != nil {
		tx.Rollback()
		log.Error("Failed to delete role assignments", zap.Error(err))
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "delete failed"})
	}
	if err := tx.Unscoped().Where("user_id = ?", target.ID).Delete(&model.RefreshToken{}).Error; err != nil {
		tx.Rollback()
		log.Error("Failed to delete refresh tokens", zap.Error(err))
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "delete failed"})
	}
	// Hard delete so the email and username free their unique-index
	// slots for future registrations.
	if err := tx.Unscoped().Delete(&target).Error; err != nil {
		tx.Rollback()
		log.Error("Failed to delete user", zap.Error(err))
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "delete failed"})
	}
	if err := tx.Commit().Error; err != nil {
		log.Error("Failed to commit user deletion", zap.Error(err))
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "delete failed"})
	}
	users.Invalidate(c.Request().Context(), target.Email)

	log.Info("User deleted", zap.String("email", target.Email))
	return c.JSON(http.StatusOK, echo.Map{"message": "user deleted"})
}
