package handler

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"eterna-home/internal/middleware"
	"eterna-home/internal/model"
	"eterna-home/internal/rbac"
	"eterna-home/internal/usercache"
	"eterna-home/internal/worker"
	"eterna-home/pkg/config"
	"eterna-home/pkg/database"
	"eterna-home/pkg/jwtutil"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

// memBlobStore is an in-memory stand-in for the S3 store
type memBlobStore struct {
	mu       sync.Mutex
	data     map[string][]byte
	mimeType map[string]string
}

func newMemBlobStore() *memBlobStore {
	return &memBlobStore{
		data:     make(map[string][]byte),
		mimeType: make(map[string]string),
	}
}

func (s *memBlobStore) Put(_ context.Context, key string, content io.Reader, contentType string) (string, int64, error) {
	b, err := io.ReadAll(content)
	if err != nil {
		return "", 0, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data[key] = b
	s.mimeType[key] = contentType
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:]), int64(len(b)), nil
}

func (s *memBlobStore) Get(_ context.Context, key string) (io.ReadCloser, string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.data[key]
	if !ok {
		return nil, "", fmt.Errorf("no such key %q", key)
	}
	return io.NopCloser(bytes.NewReader(b)), s.mimeType[key], nil
}

func (s *memBlobStore) Delete(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.data, key)
	delete(s.mimeType, key)
	return nil
}

type testServer struct {
	e     *echo.Echo
	db    *gorm.DB
	blobs *memBlobStore
	pool  *worker.Pool
}

// newTestServer wires the full route table against an in-memory database
func newTestServer(t *testing.T) *testServer {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(
		&model.User{}, &model.Tenant{}, &model.UserTenantRole{}, &model.RefreshToken{},
		&model.House{}, &model.Room{}, &model.Node{}, &model.Document{},
		&model.BIMModel{}, &model.AIInteraction{}, &model.VoiceCommand{},
	))
	database.SetDB(db)

	jwtUtil := jwtutil.NewJWTUtil(&jwtutil.JWTConfig{
		SigningKey:      "test-key",
		AccessTokenTTL:  time.Hour,
		RefreshTokenTTL: 24 * time.Hour,
	})
	users := usercache.NewStore(db, usercache.NewMemoryCache(128, time.Minute))
	authz := rbac.NewAuthorizer(db, nil)
	blobs := newMemBlobStore()
	pool := worker.NewPool(db, 16)

	Init(Deps{Authz: authz, Users: users, JWT: jwtUtil, Blobs: blobs, Pool: pool})
	auth := middleware.NewAuth(jwtUtil, users)

	e := echo.New()
	e.GET("/health", HealthCheck)

	authGroup := e.Group("/auth")
	authGroup.POST("/register", Register)
	authGroup.POST("/token", Login, middleware.LoginRateLimiter(&config.RateLimitConfig{
		LoginPerMinute: 5,
		LoginBurst:     5,
	}))
	authGroup.POST("/refresh", Refresh)

	api := e.Group("/api")
	api.Use(auth.Required)

	usersGroup := api.Group("/users")
	usersGroup.GET("/me", GetProfile)
	usersGroup.PATCH("/me", UpdateProfile)
	usersGroup.POST("/me/change-password", ChangePassword)

	tenants := api.Group("/tenants")
	tenants.POST("", CreateTenant)
	tenants.GET("", ListMyTenants)
	tenants.GET("/:id", GetTenant)
	tenants.POST("/:id/members", AddTenantMember)
	tenants.PUT("/:id/members/:user_id", UpdateTenantMember)
	tenants.DELETE("/:id/members/:user_id", RemoveTenantMember)

	admin := api.Group("/admin/users", middleware.RequireTenant,
		middleware.RequirePermission(authz, rbac.PermManageUsers))
	admin.GET("", ListUsers)
	admin.GET("/:id", GetUser)
	admin.POST("/:id/disable", DisableUser)
	admin.POST("/:id/enable", EnableUser)
	admin.DELETE("/:id", DeleteUser)

	houses := api.Group("/houses", middleware.RequireTenant)
	houses.POST("", CreateHouse, middleware.RequirePermission(authz, rbac.PermManageHouses))
	houses.GET("", ListHouses)
	houses.GET("/:id", GetHouse)
	houses.PUT("/:id", UpdateHouse)
	houses.DELETE("/:id", DeleteHouse)

	rooms := api.Group("/rooms", middleware.RequireTenant)
	rooms.POST("", CreateRoom, middleware.RequirePermission(authz, rbac.PermManageHouses))
	rooms.GET("", ListRooms)
	rooms.GET("/:id", GetRoom)
	rooms.PUT("/:id", UpdateRoom)
	rooms.DELETE("/:id", DeleteRoom)

	nodes := api.Group("/nodes", middleware.RequireTenant)
	nodes.POST("", CreateNode, middleware.RequirePermission(authz, rbac.PermManageNodes))
	nodes.GET("", ListNodes)
	nodes.GET("/:id", GetNode)
	nodes.GET("/tag/:tag_id", ResolveNodeByTag)
	nodes.PUT("/:id", UpdateNode)
	nodes.DELETE("/:id", DeleteNode)

	documents := api.Group("/documents", middleware.RequireTenant)
	documents.POST("", UploadDocument, middleware.RequirePermission(authz, rbac.PermWriteDocuments))
	documents.GET("", ListDocuments, middleware.RequirePermission(authz, rbac.PermReadDocuments))
	documents.GET("/:id", GetDocument, middleware.RequirePermission(authz, rbac.PermReadDocuments))
	documents.GET("/:id/download", DownloadDocument, middleware.RequirePermission(authz, rbac.PermReadDocuments))
	documents.PUT("/:id", UpdateDocument, middleware.RequirePermission(authz, rbac.PermWriteDocuments))
	documents.DELETE("/:id", DeleteDocument, middleware.RequirePermission(authz, rbac.PermDeleteDocuments))

	bim := api.Group("/bim", middleware.RequireTenant)
	bim.POST("", UploadBIMModel, middleware.RequirePermission(authz, rbac.PermUploadBIM))
	bim.GET("", ListBIMModels)
	bim.GET("/:id", GetBIMModel)

	voice := api.Group("/voice", middleware.RequireTenant,
		middleware.RequirePermission(authz, rbac.PermUseVoice))
	voice.POST("/commands", SubmitVoiceCommand)
	voice.GET("/commands", ListVoiceCommands)
	voice.GET("/commands/:id", GetVoiceCommand)

	assistant := api.Group("/assistant", middleware.RequireTenant)
	assistant.POST("/ask", AskAssistant)
	assistant.GET("/history", ListInteractions)

	return &testServer{e: e, db: db, blobs: blobs, pool: pool}
}

func (s *testServer) request(method, path, token string, body io.Reader, contentType string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, body)
	if contentType != "" {
		req.Header.Set(echo.HeaderContentType, contentType)
	}
	if token != "" {
		req.Header.Set(echo.HeaderAuthorization, "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	s.e.ServeHTTP(rec, req)
	return rec
}

func (s *testServer) jsonRequest(method, path, token string, payload interface{}) *httptest.ResponseRecorder {
	var body io.Reader
	if payload != nil {
		b, _ := json.Marshal(payload)
		body = bytes.NewReader(b)
	}
	return s.request(method, path, token, body, echo.MIMEApplicationJSON)
}

// seedAccount creates a user directly, optionally with a tenant role
func (s *testServer) seedAccount(t *testing.T, email, password string, tenantID *uuid.UUID, role rbac.Role) *model.User {
	t.Helper()
	hashed, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.MinCost)
	require.NoError(t, err)

	user := &model.User{
		Email:          email,
		Username:       strings.SplitN(email, "@", 2)[0],
		HashedPassword: string(hashed),
		IsActive:       true,
		Role:           rbac.RoleViewer.String(),
		TenantID:       tenantID,
	}
	require.NoError(t, s.db.Create(user).Error)

	if tenantID != nil && role != "" {
		require.NoError(t, s.db.Create(&model.UserTenantRole{
			UserID:   user.ID,
			TenantID: *tenantID,
			Role:     role.String(),
			Active:   true,
		}).Error)
	}
	return user
}

func (s *testServer) seedTenant(t *testing.T, name string, ownerID uint) uuid.UUID {
	t.Helper()
	tenant := &model.Tenant{Name: name, OwnerID: ownerID, Active: true}
	require.NoError(t, s.db.Create(tenant).Error)
	return tenant.ID
}

// login exchanges credentials for an access/refresh token pair
func (s *testServer) login(t *testing.T, username, password string) tokenResponse {
	t.Helper()
	form := url.Values{"username": {username}, "password": {password}}
	rec := s.request(http.MethodPost, "/auth/token", "",
		strings.NewReader(form.Encode()), echo.MIMEApplicationForm)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var resp tokenResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	return resp
}

func itoa(id uint) string {
	return strconv.FormatUint(uint64(id), 10)
}

func multipartBody(t *testing.T, fields map[string]string, fileField, fileName string, content []byte) (*bytes.Buffer, string) {
	t.Helper()
	buf := &bytes.Buffer{}
	w := multipart.NewWriter(buf)
	for k, v := range fields {
		require.NoError(t, w.WriteField(k, v))
	}
	if fileField != "" {
		part, err := w.CreateFormFile(fileField, fileName)
		require.NoError(t, err)
		_, err = part.Write(content)
		require.NoError(t, err)
	}
	require.NoError(t, w.Close())
	return buf, w.FormDataContentType()
}
