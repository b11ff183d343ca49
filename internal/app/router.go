package app

import (
	"course_portal_backend/docs"
	"course_portal_backend/internal/config"
	"course_portal_backend/internal/middleware"
	"course_portal_backend/internal/model"
	"course_portal_backend/pkg/monitoring"
	"course_portal_backend/pkg/security"
	"time"

	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
)

func (a *App) registerRoutes(router *gin.Engine, c *controllers, cfg *config.Config) {
	docs.SwaggerInfo.BasePath = "/api"
	router.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler, ginSwagger.URL("/swagger/doc.json")))

	router.GET("/metrics", monitoring.PrometheusHandler())

	// 1. 公共路由(无需登录)
	public := router.Group("/api")
	{
		public.GET("/health", c.health.HealthCheck)
	}

	// 2. 学生答题接口，限流放在鉴权之后才能按用户计数
	authGroup := router.Group("/api")
	authGroup.Use(
		middleware.AuthMiddleware(cfg),
		security.RateLimiter(cfg.RateLimit.MaxRequests, time.Duration(cfg.RateLimit.WindowMinutes)*time.Minute),
		middleware.RoleMiddleware(model.Student),
	)
	{
		a.registerAttemptRoutes(authGroup, c)
	}
}

func (a *App) registerAttemptRoutes(rg *gin.RouterGroup, c *controllers) {
	rg.GET("/quizzes/:quizId", c.attempt.GetQuiz)
	rg.POST("/quizzes/:quizId/chapter-items/:chapterItemId/attempts", c.attempt.StartAttempt)

	rg.GET("/chapter-items/:chapterItemId/attempts", c.attempt.GetAttemptsHistory)
	rg.GET("/chapter-items/:chapterItemId/attempts/current", c.attempt.GetCurrentAttempt)

	rg.GET("/attempts/:id", c.attempt.GetAttemptDetail)
	rg.PUT("/attempts/:id/answers/:questionId", c.attempt.SaveAnswer)
	rg.POST("/attempts/:id/submit", c.attempt.SubmitAttempt)
}
