package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"eterna-home/internal/blobstore"
	"eterna-home/internal/handler"
	"eterna-home/internal/middleware"
	"eterna-home/internal/model"
	"eterna-home/internal/rbac"
	"eterna-home/internal/usercache"
	"eterna-home/internal/worker"
	"eterna-home/pkg/config"
	"eterna-home/pkg/database"
	"eterna-home/pkg/jwtutil"
	"eterna-home/pkg/logger"
	"eterna-home/prometheus"

	"github.com/labstack/echo/v4"
	echomiddleware "github.com/labstack/echo/v4/middleware"
	"go.uber.org/zap"
)

func main() {
	// Load configuration from .env file and environment variables
	cfg, err := config.Load("eterna-home")
	if err != nil {
		panic("Failed to load configuration: " + err.Error())
	}

	// Initialize logger with config
	if err := logger.InitLogger(&logger.LogConfig{
		Level:       cfg.Log.Level,
		Environment: cfg.Server.Env,
		ServiceName: cfg.ServiceName,
	}); err != nil {
		panic("Failed to initialize logger: " + err.Error())
	}
	log := logger.GetLogger()
	log.Info("Starting Eterna Home...", cfg.LogFields()...)

	// Initialize database
	if _, err := database.InitDB(&cfg.DB); err != nil {
		log.Fatal("Failed to initialize database", zap.Error(err))
	}
	if err := database.MigrateModels(
		&model.User{},
		&model.Tenant{},
		&model.UserTenantRole{},
		&model.RefreshToken{},
		&model.House{},
		&model.Room{},
		&model.Node{},
		&model.Document{},
		&model.BIMModel{},
		&model.AIInteraction{},
		&model.VoiceCommand{},
	); err != nil {
		log.Fatal("Failed to migrate models", zap.Error(err))
	}
	log.Info("Database connection established")

	// Initialize Prometheus metrics
	prometheus.InitMetrics()
	log.Info("Prometheus metrics initialized")

	// User lookup cache: in-process LRU by default, Redis when shared
	// invalidation across instances is needed
	var cache usercache.Cache
	switch cfg.Cache.Backend {
	case "redis":
		redisCache, err := usercache.NewRedisCache(cfg.Cache.RedisURL, cfg.Cache.TTL)
		if err != nil {
			log.Fatal("Failed to connect to Redis", zap.Error(err))
		}
		defer redisCache.Close()
		cache = redisCache
		log.Info("User cache initialized", zap.String("backend", "redis"))
	default:
		cache = usercache.NewMemoryCache(cfg.Cache.Size, cfg.Cache.TTL)
		log.Info("User cache initialized", zap.String("backend", "memory"))
	}
	users := usercache.NewStore(database.GetDB(), cache)

	// Object storage for documents, BIM files and voice audio
	blobs, err := blobstore.NewS3Store(context.Background(), &cfg.Storage)
	if err != nil {
		log.Fatal("Failed to initialize object storage", zap.Error(err))
	}
	log.Info("Object storage initialized", zap.String("bucket", cfg.Storage.Bucket))

	jwtUtil := jwtutil.NewJWTUtil(&jwtutil.JWTConfig{
		SigningKey:      cfg.JWT.SigningKey,
		AccessTokenTTL:  cfg.JWT.AccessTokenTTL,
		RefreshTokenTTL: cfg.JWT.RefreshTokenTTL,
	})
	authz := rbac.NewAuthorizer(database.GetDB(), rbac.DefaultPermissionMap())

	// Background workers: BIM parsing, voice interpretation, scheduled purges
	workerCtx, cancelWorkers := context.WithCancel(context.Background())
	pool := worker.NewPool(database.GetDB(), cfg.Worker.QueueSize)
	pool.Start(workerCtx, cfg.Worker.Concurrency)
	maintenance := worker.NewMaintenance(database.GetDB(), cfg.Worker.VoiceRetention)
	if err := maintenance.Start(); err != nil {
		log.Fatal("Failed to start maintenance scheduler", zap.Error(err))
	}
	log.Info("Background workers started", zap.Int("concurrency", cfg.Worker.Concurrency))

	handler.Init(handler.Deps{
		Authz: authz,
		Users: users,
		JWT:   jwtUtil,
		Blobs: blobs,
		Pool:  pool,
	})
	auth := middleware.NewAuth(jwtUtil, users)

	// Initialize Echo framework
	e := echo.New()
	e.HideBanner = true

	// Apply global middleware - order matters
	e.Use(echomiddleware.Recover())
	e.Use(echomiddleware.CORS())
	e.Use(middleware.RequestIDMiddleware)
	e.Use(logger.Middleware())
	e.Use(prometheus.MetricsMiddleware())

	// Public routes - no authentication required
	e.GET("/health", handler.HealthCheck)
	e.GET("/metrics", handler.MetricsHandler)

	// Authentication routes
	authGroup := e.Group("/auth")
	authGroup.POST("/register", handler.Register)
	authGroup.POST("/token", handler.Login, middleware.LoginRateLimiter(&cfg.RateLimit))
	authGroup.POST("/refresh", handler.Refresh)

	// API routes - all require authentication
	api := e.Group("/api")
	api.Use(auth.Required)

	// User profile
	usersGroup := api.Group("/users")
	usersGroup.GET("/me", handler.GetProfile)
	usersGroup.PATCH("/me", handler.UpdateProfile)
	usersGroup.POST("/me/change-password", handler.ChangePassword)

	// Tenant management
	tenants := api.Group("/tenants")
	tenants.POST("", handler.CreateTenant)
	tenants.GET("", handler.ListMyTenants)
	tenants.GET("/:id", handler.GetTenant)
	tenants.POST("/:id/members", handler.AddTenantMember)
	tenants.PUT("/:id/members/:user_id", handler.UpdateTenantMember)
	tenants.DELETE("/:id/members/:user_id", handler.RemoveTenantMember)

	// Tenant user administration
	admin := api.Group("/admin/users", middleware.RequireTenant,
		middleware.RequirePermission(authz, rbac.PermManageUsers))
	admin.GET("", handler.ListUsers)
	admin.GET("/:id", handler.GetUser)
	admin.POST("/:id/disable", handler.DisableUser)
	admin.POST("/:id/enable", handler.EnableUser)
	admin.DELETE("/:id", handler.DeleteUser)

	// Houses, rooms and nodes - tenant-scoped
	houses := api.Group("/houses", middleware.RequireTenant)
	houses.POST("", handler.CreateHouse, middleware.RequirePermission(authz, rbac.PermManageHouses))
	houses.GET("", handler.ListHouses)
	houses.GET("/:id", handler.GetHouse)
	houses.PUT("/:id", handler.UpdateHouse)
	houses.DELETE("/:id", handler.DeleteHouse)

	rooms := api.Group("/rooms", middleware.RequireTenant)
	rooms.POST("", handler.CreateRoom, middleware.RequirePermission(authz, rbac.PermManageHouses))
	rooms.GET("", handler.ListRooms)
	rooms.GET("/:id", handler.GetRoom)
	rooms.PUT("/:id", handler.UpdateRoom)
	rooms.DELETE("/:id", handler.DeleteRoom)

	nodes := api.Group("/nodes", middleware.RequireTenant)
	nodes.POST("", handler.CreateNode, middleware.RequirePermission(authz, rbac.PermManageNodes))
	nodes.GET("", handler.ListNodes)
	nodes.GET("/:id", handler.GetNode)
	nodes.GET("/tag/:tag_id", handler.ResolveNodeByTag)
	nodes.PUT("/:id", handler.UpdateNode)
	nodes.DELETE("/:id", handler.DeleteNode)

	// Documents
	documents := api.Group("/documents", middleware.RequireTenant)
	documents.POST("", handler.UploadDocument, middleware.RequirePermission(authz, rbac.PermWriteDocuments))
	documents.GET("", handler.ListDocuments, middleware.RequirePermission(authz, rbac.PermReadDocuments))
	documents.GET("/:id", handler.GetDocument, middleware.RequirePermission(authz, rbac.PermReadDocuments))
	documents.GET("/:id/download", handler.DownloadDocument, middleware.RequirePermission(authz, rbac.PermReadDocuments))
	documents.PUT("/:id", handler.UpdateDocument, middleware.RequirePermission(authz, rbac.PermWriteDocuments))
	documents.DELETE("/:id", handler.DeleteDocument, middleware.RequirePermission(authz, rbac.PermDeleteDocuments))

	// BIM models
	bim := api.Group("/bim", middleware.RequireTenant)
	bim.POST("", handler.UploadBIMModel, middleware.RequirePermission(authz, rbac.PermUploadBIM))
	bim.GET("", handler.ListBIMModels)
	bim.GET("/:id", handler.GetBIMModel)

	// Voice commands
	voice := api.Group("/voice", middleware.RequireTenant,
		middleware.RequirePermission(authz, rbac.PermUseVoice))
	voice.POST("/commands", handler.SubmitVoiceCommand)
	voice.GET("/commands", handler.ListVoiceCommands)
	voice.GET("/commands/:id", handler.GetVoiceCommand)

	// Assistant
	assistant := api.Group("/assistant", middleware.RequireTenant)
	assistant.POST("/ask", handler.AskAssistant)
	assistant.GET("/history", handler.ListInteractions)

	// Start server
	go func() {
		log.Info("Starting server", zap.String("port", cfg.Server.Port))
		if err := e.Start(":" + cfg.Server.Port); err != nil {
			log.Info("Server stopped", zap.Error(err))
		}
	}()

	// Wait for shutdown signal, then drain
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit
	log.Info("Shutting down...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		log.Error("Server shutdown failed", zap.Error(err))
	}
	maintenance.Stop()
	cancelWorkers()
	pool.Stop()
	log.Info("Shutdown complete")
}
