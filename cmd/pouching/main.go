package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/gin-contrib/gzip"
	"github.com/gin-gonic/gin"
	"github.com/gsfran/qmfg-tools/internal/config"
	"github.com/gsfran/qmfg-tools/internal/middleware"
	"github.com/gsfran/qmfg-tools/internal/pouching/entity"
	"github.com/gsfran/qmfg-tools/internal/pouching/handler"
	"github.com/gsfran/qmfg-tools/internal/pouching/repository"
	"github.com/gsfran/qmfg-tools/internal/pouching/service"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

var (
	Version   = "dev"
	BuildTime = "unknown"
)

func main() {
	// 加载 .env 文件
	if err := godotenv.Load(); err != nil {
		log.Printf("Warning: .env file not found, using environment variables")
	}

	// 加载配置
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	// 初始化日志
	zapLogger, err := initLogger(cfg.Log)
	if err != nil {
		log.Fatalf("Failed to init logger: %v", err)
	}
	defer zapLogger.Sync()

	zapLogger.Info("Starting pouching scheduler service",
		zap.String("version", Version),
		zap.String("build_time", BuildTime),
	)

	// 初始化数据库
	db, err := initDatabase(cfg.Database)
	if err != nil {
		zapLogger.Fatal("Failed to connect to database", zap.Error(err))
	}

	if err := db.AutoMigrate(
		&entity.WorkOrder{},
		&entity.WorkWeek{},
		&entity.User{},
	); err != nil {
		zapLogger.Fatal("AutoMigrate failed", zap.Error(err))
	}

	// 初始化Redis
	rdb := initRedis(cfg.Redis)
	if err := rdb.Ping(context.Background()).Err(); err != nil {
		zapLogger.Warn("Redis not reachable, token refresh will not work", zap.Error(err))
	}

	// 机台目录
	catalog, err := buildCatalog(cfg.Machines)
	if err != nil {
		zapLogger.Fatal("Failed to build machine catalog", zap.Error(err))
	}

	// 仓库与服务
	repos := repository.NewRepositories(db)
	calendarSvc := service.NewCalendarService(repos.WorkWeek, cfg.Schedule, catalog, zapLogger)
	scheduleSvc := service.NewScheduleService(repos.WorkOrder, calendarSvc, catalog, zapLogger)
	queueSvc := service.NewQueueService(repos.WorkOrder, scheduleSvc, catalog, db, zapLogger)
	workOrderSvc := service.NewWorkOrderService(repos.WorkOrder, scheduleSvc, zapLogger)
	authSvc := service.NewAuthService(repos.User, rdb, cfg)

	// 播种管理员账号
	adminUser := config.GetEnvOrDefault("ADMIN_USER", "admin")
	adminPass := config.GetEnvOrDefault("ADMIN_PASSWORD", "admin123")
	if err := authSvc.EnsureAdminUser(adminUser, adminPass); err != nil {
		zapLogger.Warn("Failed to seed admin user", zap.Error(err))
	}

	handlers := handler.NewHandlers(scheduleSvc, calendarSvc, workOrderSvc, queueSvc, authSvc)

	// 设置Gin模式
	if cfg.Server.Mode == "release" {
		gin.SetMode(gin.ReleaseMode)
	}

	// 创建路由
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.Logger(zapLogger))
	router.Use(middleware.CORS())
	router.Use(middleware.RequestID())
	router.Use(gzip.Gzip(gzip.DefaultCompression))

	registerRoutes(router, handlers, cfg)

	// 创建HTTP服务器
	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	// 启动服务器
	go func() {
		zapLogger.Info("Server starting", zap.Int("port", cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			zapLogger.Fatal("Failed to start server", zap.Error(err))
		}
	}()

	// 优雅关闭
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	zapLogger.Info("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		zapLogger.Error("Server forced to shutdown", zap.Error(err))
	}

	zapLogger.Info("Server exited")
}

func initLogger(cfg config.LogConfig) (*zap.Logger, error) {
	var zapCfg zap.Config

	if cfg.Format == "json" {
		zapCfg = zap.NewProductionConfig()
	} else {
		zapCfg = zap.NewDevelopmentConfig()
	}

	switch cfg.Level {
	case "debug":
		zapCfg.Level = zap.NewAtomicLevelAt(zap.DebugLevel)
	case "info":
		zapCfg.Level = zap.NewAtomicLevelAt(zap.InfoLevel)
	case "warn":
		zapCfg.Level = zap.NewAtomicLevelAt(zap.WarnLevel)
	case "error":
		zapCfg.Level = zap.NewAtomicLevelAt(zap.ErrorLevel)
	}

	return zapCfg.Build()
}

func initDatabase(cfg config.DatabaseConfig) (*gorm.DB, error) {
	dsn := fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		cfg.Host, cfg.Port, cfg.User, cfg.Password, cfg.DBName, cfg.SSLMode,
	)

	gormConfig := &gorm.Config{
		Logger: logger.Default.LogMode(logger.Info),
	}

	db, err := gorm.Open(postgres.Open(dsn), gormConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get database instance: %w", err)
	}

	sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
	sqlDB.SetMaxIdleConns(cfg.MaxIdleConns)
	sqlDB.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	sqlDB.SetConnMaxIdleTime(cfg.ConnMaxIdleTime)

	return db, nil
}

func initRedis(cfg config.RedisConfig) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:     fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Password: cfg.Password,
		DB:       cfg.DB,
		PoolSize: cfg.PoolSize,
	})
}

func buildCatalog(cfg config.MachinesConfig) (*entity.MachineCatalog, error) {
	families := make(map[string][]string)
	defaults := make(map[string]bool)
	for family, entries := range cfg.Families {
		for _, e := range entries {
			families[family] = append(families[family], e.ShortName)
			defaults[e.ShortName] = e.Active
		}
	}
	return entity.NewMachineCatalog(families, defaults)
}

func registerRoutes(r *gin.Engine, h *handler.Handlers, cfg *config.Config) {
	// 健康检查
	r.GET("/health/live", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/health/ready", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	// 版本信息
	r.GET("/version", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"version":    Version,
			"build_time": BuildTime,
		})
	})

	api := r.Group("/api/v1")

	// 认证
	auth := api.Group("/auth")
	{
		auth.POST("/login", h.Auth.Login)
		auth.POST("/refresh", h.Auth.Refresh)
		auth.POST("/logout", h.Auth.Logout)
	}

	// 需要认证的接口
	authed := api.Group("", middleware.JWTAuth(cfg.JWT.Secret))
	{
		authed.GET("/auth/me", h.Auth.Me)

		schedules := authed.Group("/schedules")
		{
			schedules.POST("/refresh", h.Schedule.RefreshSchedules)
			schedules.GET("/weeks/:yearWeek", h.Schedule.GetWorkWeek)
			schedules.PUT("/weeks/:yearWeek", h.Schedule.UpdateWorkWeek)
			schedules.POST("/weeks/reapply-defaults", h.Schedule.ReapplyDefaults)
			schedules.GET("/:family", h.Schedule.GetSchedule)
			schedules.POST("/:family/refresh", h.Schedule.RefreshFamily)
			schedules.GET("/:family/:yearWeek", h.Schedule.GetSchedule)
			schedules.GET("/:family/:yearWeek/export", h.Schedule.ExportSchedule)
		}

		workOrders := authed.Group("/work-orders")
		{
			workOrders.POST("", h.WorkOrder.Create)
			workOrders.GET("", h.WorkOrder.List)
			workOrders.GET("/parking-lot", h.WorkOrder.ParkingLot)
			workOrders.GET("/:lot", h.WorkOrder.Get)
			workOrders.DELETE("/:lot", h.WorkOrder.Delete)
			workOrders.POST("/:lot/load", h.WorkOrder.Load)
			workOrders.POST("/:lot/unload", h.WorkOrder.Unload)
			workOrders.POST("/:lot/close", h.WorkOrder.Close)
			workOrders.POST("/:lot/production", h.WorkOrder.ReportProduction)
		}
	}
}
