package app

import (
	"online_exam_backend/docs"
	"online_exam_backend/internal/config"
	"online_exam_backend/internal/middleware"
	"online_exam_backend/pkg/monitoring"

	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
)

func (a *App) registerRoutes(router *gin.Engine, c *controllers, cfg *config.Config) {
	docs.SwaggerInfo.BasePath = "/"
	router.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler, ginSwagger.URL("/swagger/doc.json")))

	router.GET("/metrics", monitoring.PrometheusHandler())

	// 1. 公共路由(无需登录)
	a.registerPublicRoutes(router, c)

	// 2. 需要授权的路由
	authGroup := router.Group("/api")
	authGroup.Use(middleware.AuthMiddleware(cfg.JWT.Secret))
	{
		authGroup.GET("/auth/verify", c.auth.Verify)
		a.registerExamRoutes(authGroup, c)

		// 3. 管理员相关接口
		admin := authGroup.Group("/auth/admin")
		admin.Use(middleware.AdminMiddleware())
		{
			admin.GET("/users/count", c.auth.CountUsers)
		}
	}
}

func (a *App) registerPublicRoutes(router *gin.Engine, c *controllers) {
	public := router.Group("/api")
	{
		public.GET("/health", c.health.HealthCheck)
		public.POST("/auth/register", c.auth.Register)
		public.POST("/auth/login", c.auth.Login)
	}
}

func (a *App) registerExamRoutes(group *gin.RouterGroup, c *controllers) {
	exam := group.Group("/exam")
	{
		exam.POST("/papers", c.exam.GeneratePaper)

		sessions := exam.Group("/sessions")
		sessions.POST("", c.exam.StartSession)
		sessions.GET("/:id", c.exam.GetSession)
		sessions.POST("/:id/answers", c.exam.SubmitAnswer)
		sessions.POST("/:id/navigate", c.exam.Navigate)
		sessions.POST("/:id/complete", c.exam.CompleteSession)
		sessions.GET("/:id/ws", c.exam.StreamSession)

		exam.POST("/submit", c.exam.SubmitResult)
		exam.GET("/wrong-questions", c.exam.ListWrongQuestions)
		exam.GET("/wrong-questions/export", c.exam.DownloadWrongQuestions)
		exam.POST("/wrong-questions/export", c.exam.PublishWrongQuestions)
		exam.GET("/stats", c.exam.GetStats)
		exam.GET("/history", c.exam.ListHistory)
	}
}
