package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"eterna-home/internal/model"
	"eterna-home/internal/usercache"
	"eterna-home/pkg/jwtutil"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

func newAuthFixture(t *testing.T) (*Auth, *gorm.DB, *jwtutil.JWTUtil) {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&model.User{}))

	jwt := jwtutil.NewJWTUtil(&jwtutil.JWTConfig{
		SigningKey:     "middleware-test-key",
		AccessTokenTTL: time.Hour,
	})
	users := usercache.NewStore(db, usercache.NewMemoryCache(16, time.Minute))
	return NewAuth(jwt, users), db, jwt
}

func run(t *testing.T, mw echo.MiddlewareFunc, header string) (*httptest.ResponseRecorder, bool) {
	t.Helper()
	e := echo.New()
	reached := false
	e.GET("/guarded", func(c echo.Context) error {
		reached = true
		return c.NoContent(http.StatusOK)
	}, mw)

	req := httptest.NewRequest(http.MethodGet, "/guarded", nil)
	if header != "" {
		req.Header.Set(echo.HeaderAuthorization, header)
	}
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec, reached
}

func TestRequiredRejectsMissingHeader(t *testing.T) {
	auth, _, _ := newAuthFixture(t)

	rec, reached := run(t, auth.Required, "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "Bearer", rec.Header().Get(echo.HeaderWWWAuthenticate))
	assert.False(t, reached)
}

func TestRequiredRejectsMalformedHeader(t *testing.T) {
	auth, _, _ := newAuthFixture(t)

	for _, header := range []string{"Bearer", "Basic dXNlcjpwYXNz", "Bearer a b"} {
		rec, reached := run(t, auth.Required, header)
		assert.Equal(t, http.StatusUnauthorized, rec.Code, header)
		assert.False(t, reached)
	}
}

func TestRequiredUnknownSubjectSameAsBadToken(t *testing.T) {
	auth, _, jwt := newAuthFixture(t)

	// Valid signature, but no such user in the store
	token, err := jwt.GenerateAccessToken("ghost@example.com", 99, nil)
	require.NoError(t, err)

	rec, reached := run(t, auth.Required, "Bearer "+token)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Contains(t, rec.Body.String(), "could not validate credentials")
	assert.False(t, reached)

	recBad, _ := run(t, auth.Required, "Bearer not.a.token")
	assert.JSONEq(t, rec.Body.String(), recBad.Body.String())
}

func TestRequiredResolvesActiveUser(t *testing.T) {
	auth, db, jwt := newAuthFixture(t)
	tenantID := uuid.New()
	require.NoError(t, db.Create(&model.User{
		Email:          "real@example.com",
		Username:       "real",
		HashedPassword: "x",
		IsActive:       true,
		TenantID:       &tenantID,
	}).Error)

	token, err := jwt.GenerateAccessToken("real@example.com", 1, &tenantID)
	require.NoError(t, err)

	e := echo.New()
	var gotUser *model.User
	var gotTenant uuid.UUID
	e.GET("/guarded", func(c echo.Context) error {
		gotUser = CurrentUser(c)
		gotTenant, _ = CurrentTenant(c)
		return c.NoContent(http.StatusOK)
	}, auth.Required)

	req := httptest.NewRequest(http.MethodGet, "/guarded", nil)
	req.Header.Set(echo.HeaderAuthorization, "Bearer "+token)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	require.NotNil(t, gotUser)
	assert.Equal(t, "real@example.com", gotUser.Email)
	assert.Equal(t, tenantID, gotTenant)
}

func TestRequiredRejectsDisabledUser(t *testing.T) {
	auth, db, jwt := newAuthFixture(t)
	require.NoError(t, db.Create(&model.User{
		Email:          "frozen@example.com",
		Username:       "frozen",
		HashedPassword: "x",
		IsActive:       false,
	}).Error)

	token, err := jwt.GenerateAccessToken("frozen@example.com", 1, nil)
	require.NoError(t, err)

	rec, reached := run(t, auth.Required, "Bearer "+token)
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.False(t, reached)
}

func TestRequiredRejectsExpiredToken(t *testing.T) {
	auth, db, _ := newAuthFixture(t)
	require.NoError(t, db.Create(&model.User{
		Email:          "late@example.com",
		Username:       "late",
		HashedPassword: "x",
		IsActive:       true,
	}).Error)

	expired := jwtutil.NewJWTUtil(&jwtutil.JWTConfig{
		SigningKey:     "middleware-test-key",
		AccessTokenTTL: -time.Minute,
	})
	token, err := expired.GenerateAccessToken("late@example.com", 1, nil)
	require.NoError(t, err)

	rec, reached := run(t, auth.Required, "Bearer "+token)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "Bearer", rec.Header().Get(echo.HeaderWWWAuthenticate))
	assert.False(t, reached)
}

func TestOptionalPassesAnonymously(t *testing.T) {
	auth, _, _ := newAuthFixture(t)

	rec, reached := run(t, auth.Optional, "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, reached)
}

func TestOptionalStillRejectsBadToken(t *testing.T) {
	auth, _, _ := newAuthFixture(t)

	rec, reached := run(t, auth.Optional, "Bearer garbage")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.False(t, reached)
}

func TestRequireTenantWithoutTenant(t *testing.T) {
	rec, reached := run(t, RequireTenant, "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.False(t, reached)
}
