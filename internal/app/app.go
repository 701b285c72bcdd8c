package app

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"online_exam_backend/internal/config"
	"online_exam_backend/internal/controller"
	"online_exam_backend/internal/repository"
	"online_exam_backend/internal/service"
	"online_exam_backend/internal/util"
	"online_exam_backend/pkg/configwatcher"
	"online_exam_backend/pkg/database"
	"online_exam_backend/pkg/logger"
	"online_exam_backend/pkg/monitoring"
	"online_exam_backend/pkg/security"
	"online_exam_backend/pkg/tracing"

	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis/v8"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type App struct {
	Config   *config.Config
	Router   *gin.Engine
	DB       *gorm.DB
	Redis    *redis.Client
	Settings *config.ExamSettings

	services        *services
	tracer          *sdktrace.TracerProvider
	cancel          context.CancelFunc
	configCallbacks []func(*config.Config)
}

type repositories struct {
	user *repository.UserRepository
	exam *repository.ExamRepository
}

type services struct {
	auth         *service.AuthService
	storage      *service.StorageService
	questionBank *service.QuestionBankService
	exam         *service.ExamService
	sessions     *service.ExamSessionManager
	export       *service.ExportService
}

type controllers struct {
	auth   *controller.AuthController
	exam   *controller.ExamController
	health *controller.HealthController
}

func (a *App) RegisterConfigCallback(callback func(*config.Config)) {
	a.configCallbacks = append(a.configCallbacks, callback)
}

func (a *App) initRepositories(db *gorm.DB) *repositories {
	return &repositories{
		user: repository.NewUserRepository(db),
		exam: repository.NewExamRepository(db),
	}
}

func (a *App) initServices(repos *repositories, cfg *config.Config, rdb *redis.Client) *services {
	s := &services{}

	s.storage = service.NewStorageService(&cfg.Storage)
	s.auth = service.NewAuthService(repos.user, cfg)
	s.questionBank = service.NewQuestionBankService(
		s.storage,
		rdb,
		a.Settings,
		time.Duration(cfg.Redis.BankTTLMinutes)*time.Minute,
	)
	s.exam = service.NewExamService(repos.exam, a.Settings)
	s.sessions = service.NewExamSessionManager(s.questionBank, s.exam, a.Settings)
	s.export = service.NewExportService(s.exam, s.storage)

	return s
}

func (a *App) initControllers(s *services) *controllers {
	return &controllers{
		auth:   controller.NewAuthController(s.auth),
		exam:   controller.NewExamController(s.questionBank, s.sessions, s.exam, s.export),
		health: controller.NewHealthController(a.DB, a.Redis),
	}
}

func (a *App) setupMiddlewares(ctx context.Context, router *gin.Engine, cfg *config.Config) {
	router.Use(security.CORS(cfg.CORS.AllowedOrigins))
	router.Use(security.Secure())
	router.Use(security.RateLimiter(ctx, cfg.RateLimit.MaxRequests, time.Duration(cfg.RateLimit.WindowMinutes)*time.Minute))

	// 分布式追踪中间件
	if cfg.Tracing.Enabled {
		router.Use(tracing.GinMiddleware())
	}

	router.Use(monitoring.MetricsMiddleware())
}

// startBackgroundTasks 定期清理已结束的考试会话
func (a *App) startBackgroundTasks(ctx context.Context, s *services) {
	go func() {
		ticker := time.NewTicker(time.Minute)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case now := <-ticker.C:
				if n := s.sessions.PurgeFinished(now); n > 0 {
					logger.Log.Debug("finished exam sessions purged", zap.Int("count", n))
				}
			}
		}
	}()
}

// watchConfig 配置热更新：考试参数立即生效，题库缓存失效
func (a *App) watchConfig(ctx context.Context, configFile string) {
	a.RegisterConfigCallback(func(cfg *config.Config) {
		if err := a.Settings.Update(cfg.Exam); err != nil {
			logger.Log.Error("Rejected exam config reload", zap.Error(err))
			return
		}
		if err := a.services.questionBank.InvalidateCache(ctx); err != nil {
			logger.Log.Warn("Failed to invalidate question bank cache", zap.Error(err))
		}
	})

	err := configwatcher.WatchConfig(ctx, configFile, func(cfg *config.Config) {
		for _, cb := range a.configCallbacks {
			cb(cfg)
		}
	})
	if err != nil {
		logger.Log.Warn("Config watcher disabled", zap.Error(err))
	}
}

func NewApp(cfg *config.Config, configDir string) *App {
	db, err := database.InitDB(&cfg.Database, cfg.Server.Mode != "release")
	if err != nil {
		logger.Log.Fatal("Failed to initialize database", zap.Error(err))
	}

	// release 模式默认不自动迁移，需显式 -migrate
	if cfg.Server.Mode != "release" || cfg.ForceMigrate {
		if err := database.Migrate(db); err != nil {
			logger.Log.Fatal("Failed to migrate database", zap.Error(err))
		}
	}

	rdb, err := database.InitRedis(&cfg.Redis)
	if err != nil {
		logger.Log.Warn("Redis unavailable, question bank cache disabled", zap.Error(err))
		rdb = nil
	}

	app := &App{
		Config:   cfg,
		DB:       db,
		Redis:    rdb,
		Settings: config.NewExamSettings(cfg.Exam),
	}
	if cfg.MigrateOnly {
		return app
	}

	repos := app.initRepositories(db)
	app.services = app.initServices(repos, cfg, rdb)
	controllers := app.initControllers(app.services)

	// 监控初始化
	monitoring.Init()

	if cfg.Server.Mode == "release" {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.Default()
	app.Router = router

	if cfg.Tracing.Enabled {
		tp, err := tracing.InitTracer("online-exam", cfg.Tracing.CollectorEndpoint)
		if err != nil {
			logger.Log.Fatal("Failed to initialize tracing", zap.Error(err))
		}
		app.tracer = tp
	}

	// 后台协程（限流清理、会话清理、配置监听）随 Close 退出
	ctx, cancel := context.WithCancel(context.Background())
	app.cancel = cancel

	app.setupMiddlewares(ctx, router, cfg)
	app.registerRoutes(router, controllers, cfg)

	if cfg.Storage.Type == util.StorageLocal {
		exports := filepath.Join(cfg.Storage.LocalPath, util.ExportsPrefix)
		if _, err := os.Stat(exports); os.IsNotExist(err) {
			os.MkdirAll(exports, os.ModePerm)
		}
		router.Static(util.UploadsRoute+"/"+util.ExportsPrefix, exports)
	}

	app.startBackgroundTasks(ctx, app.services)
	app.watchConfig(ctx, filepath.Join(configDir, "config.yaml"))

	return app
}

func (a *App) Run() {
	srv := &http.Server{
		Addr:    ":" + a.Config.Server.Port,
		Handler: a.Router,
	}

	// 启动服务器
	go func() {
		log.Printf("Server running on port %s", a.Config.Server.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("listen: %s\n", err)
		}
	}()

	// 等待中断信号优雅地关闭服务器（设置5秒的超时时间）
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Println("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Println("Server forced to shutdown:", err)
	}
	a.Close(ctx)

	log.Println("Server exiting")
}

// Close 停止计时器、后台任务并释放连接
func (a *App) Close(ctx context.Context) {
	if a.cancel != nil {
		a.cancel()
	}
	if a.services != nil {
		a.services.sessions.Shutdown()
	}
	if a.tracer != nil {
		if err := a.tracer.Shutdown(ctx); err != nil {
			logger.Log.Error("Failed to shutdown tracer provider", zap.Error(err))
		}
	}
	if a.Redis != nil {
		a.Redis.Close()
	}
	if sqlDB, err := a.DB.DB(); err == nil {
		sqlDB.Close()
	}
}
