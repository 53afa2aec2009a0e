package app

import (
	"oral_exam_backend/docs"
	"oral_exam_backend/internal/config"
	"oral_exam_backend/internal/middleware"
	"oral_exam_backend/pkg/monitoring"

	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
)

func (a *App) registerRoutes(router *gin.Engine, c *controllers, repos *repositories, cfg *config.Config) {
	docs.SwaggerInfo.BasePath = "/api"
	router.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler, ginSwagger.URL("/swagger/doc.json")))

	router.GET("/metrics", monitoring.PrometheusHandler())

	a.registerPublicRoutes(router, c)

	authGroup := router.Group("/api")
	authGroup.Use(middleware.AuthMiddleware(cfg, repos.user))
	{
		a.registerAccountRoutes(authGroup, c)
		a.registerExamRoutes(authGroup, c)
		a.registerStudyRoutes(authGroup, c)
		a.registerMaterialRoutes(authGroup, c)
	}
}

func (a *App) registerPublicRoutes(router *gin.Engine, c *controllers) {
	public := router.Group("/api")
	{
		public.GET("/health", c.health.HealthCheck)
		public.POST("/register", c.auth.Register)
		public.POST("/login", c.auth.Login)
		public.POST("/refresh", c.auth.Refresh)
	}
}

func (a *App) registerAccountRoutes(rg *gin.RouterGroup, c *controllers) {
	rg.POST("/logout", c.auth.Logout)
	rg.GET("/users/me", c.auth.Me)
	rg.POST("/users/:id/subscription", c.user.UpdateSubscription)
	rg.POST("/upload", c.user.Upload)
}

func (a *App) registerExamRoutes(rg *gin.RouterGroup, c *controllers) {
	exam := rg.Group("/exam")
	{
		exam.POST("/start", c.exam.Start)
		exam.POST("/answer", c.exam.Answer)
		exam.GET("", c.exam.List)
		exam.GET("/:id", c.exam.Get)
		exam.GET("/:id/status", c.exam.Status)
		exam.GET("/:id/report", c.exam.Report)
	}
}

func (a *App) registerStudyRoutes(rg *gin.RouterGroup, c *controllers) {
	study := rg.Group("/study")
	{
		study.POST("/start", c.study.Start)
		study.POST("/message", c.study.Message)
		study.GET("", c.study.List)
		study.GET("/:id/messages", c.study.Messages)
		study.POST("/:id/complete", c.study.Complete)
	}
}

func (a *App) registerMaterialRoutes(rg *gin.RouterGroup, c *controllers) {
	materials := rg.Group("/materials")
	{
		materials.POST("", c.material.Create)
		materials.POST("/upload", c.material.Upload)
		materials.GET("", c.material.List)
		materials.DELETE("", c.material.Delete)
	}
}
