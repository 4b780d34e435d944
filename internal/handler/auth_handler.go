package handler

import (
	"context"
	"net/http"
	"strings"
	"time"

	"eterna-home/internal/model"
	"eterna-home/internal/rbac"
	"eterna-home/pkg/database"
	"eterna-home/pkg/jwtutil"
	"eterna-home/pkg/logger"
	"eterna-home/prometheus"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
)

// tokenResponse is the body returned by login and refresh
type tokenResponse struct {
	AccessToken  string      `json:"access_token"`
	RefreshToken string      `json:"refresh_token"`
	TokenType    string      `json:"token_type"`
	ExpiresIn    int64       `json:"expires_in"`
	User         *model.User `json:"user,omitempty"`
}

// Register creates a new user account
func Register(c echo.Context) error {
	log := logger.FromEcho(c)
	prometheus.RegisterCounter.Inc()

	var req struct {
		Email    string `json:"email"`
		Username string `json:"username"`
		Password string `json:"password"`
		FullName string `json:"full_name"`
	}

	if err := c.Bind(&req); err != nil {
		log.Error("Failed to parse registration request", zap.Error(err))
		prometheus.RecordAuthError("invalid_request")
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid request"})
	}

	req.Email = strings.TrimSpace(strings.ToLower(req.Email))
	req.Username = strings.TrimSpace(req.Username)

	if req.Email == "" || req.Username == "" || len(req.Password) < 8 {
		log.Warn("Invalid registration data", zap.String("email", req.Email))
		prometheus.RecordAuthError("incomplete_registration")
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "email, username and a password of at least 8 characters are required"})
	}

	defer prometheus.TrackDBOperation("query")(time.Now())
	var count int64
	database.GetDB().Model(&model.User{}).
		Where("email = ? OR username = ?", req.Email, req.Username).
		Count(&count)
	if count > 0 {
		log.Warn("Registration for existing email or username", zap.String("email", req.Email))
		prometheus.RecordAuthError("duplicate_user")
		return c.JSON(http.StatusConflict, echo.Map{"error": "email or username already registered"})
	}

	hashed, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		log.Error("Failed to hash password", zap.Error(err))
		prometheus.RecordAuthError("password_hash_failed")
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "registration failed"})
	}

	user := model.User{
		Email:          req.Email,
		Username:       req.Username,
		HashedPassword: string(hashed),
		FullName:       req.FullName,
		IsActive:       true,
		Role:           rbac.RoleViewer.String(),
	}

	defer prometheus.TrackDBOperation("insert")(time.Now())
	if result := database.GetDB().Create(&user); result.Error != nil {
		log.Error("Failed to create user", zap.Error(result.Error))
		prometheus.RecordAuthError("user_creation_failed")
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "registration failed"})
	}

	log.Info("User registered", zap.String("email", user.Email))
	return c.JSON(http.StatusCreated, echo.Map{
		"message": "User registered successfully",
		"user":    user,
	})
}

// Login exchanges form-encoded credentials for a token pair. The username
// field accepts either email or username.
func Login(c echo.Context) error {
	log := logger.FromEcho(c)
	prometheus.LoginCounter.Inc()

	username := strings.TrimSpace(c.FormValue("username"))
	password := c.FormValue("password")
	if username == "" || password == "" {
		prometheus.RecordAuthError("invalid_request")
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "username and password are required"})
	}

	// Credential checks read the primary store directly; the identity
	// cache never carries password hashes.
	defer prometheus.TrackDBOperation("query")(time.Now())
	var user model.User
	result := database.GetDB().
		Where("email = ? OR username = ?", strings.ToLower(username), username).
		First(&user)
	if result.Error != nil {
		log.Warn("Login for unknown user", zap.String("username", username))
		prometheus.RecordAuthError("user_not_found")
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "invalid credentials"})
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.HashedPassword), []byte(password)); err != nil {
		log.Warn("Invalid password", zap.String("email", user.Email))
		prometheus.RecordAuthError("invalid_password")
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "invalid credentials"})
	}

	if !user.IsActive {
		log.Warn("Login attempt on disabled account", zap.String("email", user.Email))
		prometheus.RecordAuthError("account_disabled")
		return c.JSON(http.StatusForbidden, echo.Map{"error": "account disabled"})
	}

	resp, err := issueTokenPair(c.Request().Context(), &user)
	if err != nil {
		log.Error("Failed to issue tokens", zap.Error(err))
		prometheus.RecordAuthError("token_generation_failed")
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "token error"})
	}
	resp.User = &user

	log.Info("User logged in", zap.String("email", user.Email))
	return c.JSON(http.StatusOK, resp)
}

// Refresh rotates a refresh token into a new token pair. The presented
// token is revoked whether or not the rotation succeeds downstream.
func Refresh(c echo.Context) error {
	log := logger.FromEcho(c)
	prometheus.RefreshCounter.Inc()

	var req struct {
		RefreshToken string `json:"refresh_token"`
	}
	if err := c.Bind(&req); err != nil || req.RefreshToken == "" {
		prometheus.RecordAuthError("invalid_request")
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "refresh_token is required"})
	}

	defer prometheus.TrackDBOperation("query")(time.Now())
	var stored model.RefreshToken
	result := database.GetDB().
		Where("token_hash = ?", jwtutil.HashToken(req.RefreshToken)).
		First(&stored)
	if result.Error != nil || !stored.IsValid() {
		log.Warn("Invalid refresh token presented")
		prometheus.RecordAuthError("invalid_refresh_token")
		c.Response().Header().Set(echo.HeaderWWWAuthenticate, "Bearer")
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "invalid or expired refresh token"})
	}

	var user model.User
	if err := database.GetDB().First(&user, stored.UserID).Error; err != nil {
		log.Warn("Refresh token subject no longer exists", zap.Uint("user_id", stored.UserID))
		prometheus.RecordAuthError("user_not_found")
		c.Response().Header().Set(echo.HeaderWWWAuthenticate, "Bearer")
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "invalid or expired refresh token"})
	}

	if !user.IsActive {
		prometheus.RecordAuthError("account_disabled")
		return c.JSON(http.StatusForbidden, echo.Map{"error": "account disabled"})
	}

	// Rotate: the old token is single-use
	if err := database.GetDB().Model(&stored).Update("revoked", true).Error; err != nil {
		log.Error("Failed to revoke refresh token", zap.Error(err))
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "token error"})
	}
	prometheus.DecreaseActiveTokens()

	resp, err := issueTokenPair(c.Request().Context(), &user)
	if err != nil {
		log.Error("Failed to issue tokens", zap.Error(err))
		prometheus.RecordAuthError("token_generation_failed")
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "token error"})
	}
	resp.User = &user

	log.Info("Token pair rotated", zap.String("email", user.Email))
	return c.JSON(http.StatusOK, resp)
}

// issueTokenPair creates an access token and a persisted refresh token
func issueTokenPair(ctx context.Context, user *model.User) (*tokenResponse, error) {
	access, err := jwtUtil.GenerateAccessToken(user.Email, user.ID, user.TenantID)
	if err != nil {
		return nil, err
	}

	refresh, err := jwtutil.NewRefreshToken()
	if err != nil {
		return nil, err
	}

	row := model.RefreshToken{
		TokenHash: jwtutil.HashToken(refresh),
		UserID:    user.ID,
		TenantID:  user.TenantID,
		ExpiresAt: time.Now().Add(jwtUtil.RefreshTokenTTL()),
	}
	if err := database.GetDB().WithContext(ctx).Create(&row).Error; err != nil {
		return nil, err
	}
	prometheus.IncreaseActiveTokens()

	return &tokenResponse{
		AccessToken:  access,
		RefreshToken: refresh,
		TokenType:    "bearer",
		ExpiresIn:    int64(jwtUtil.AccessTokenTTL().Seconds()),
	}, nil
}
