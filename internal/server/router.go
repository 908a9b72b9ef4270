package server

import (
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"github.com/apexlabs/apex-backend/internal/handlers"
	"github.com/apexlabs/apex-backend/internal/middleware"
)

type RouterConfig struct {
	AuthHandler    *handlers.AuthHandler
	ImageHandler   *handlers.ImageHandler
	AuthMiddleware *middleware.AuthMiddleware
	AllowOrigins   []string
}

func NewRouter(cfg RouterConfig) *gin.Engine {
	router := gin.Default()

	allowOrigins := cfg.AllowOrigins
	if len(allowOrigins) == 0 {
		allowOrigins = []string{
			"http://localhost:80",
			"http://localhost:3000",
			"http://localhost:5174",
		}
	}
	router.Use(cors.New(cors.Config{
		AllowOrigins:     allowOrigins,
		AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "PATCH", "OPTIONS"},
		AllowHeaders:     []string{"Authorization", "Content-Type", "X-Requested-With"},
		AllowCredentials: true,
	}))

	// ===============
	// || Public    ||
	// ===============
	router.GET("/healthcheck", handlers.HealthCheck)
	router.POST("/register", cfg.AuthHandler.Register)
	router.POST("/login", cfg.AuthHandler.Login)

	// ===============
	// || Protected ||
	// ===============
	protected := router.Group("/")
	protected.Use(cfg.AuthMiddleware.RequireAuth())
	// Auth
	protected.POST("/refresh", cfg.AuthHandler.Refresh)
	protected.POST("/logout", cfg.AuthHandler.Logout)
	// Pipeline
	protected.POST("/image/upload-complete", cfg.ImageHandler.UploadComplete)
	protected.POST("/image/3d/status", cfg.ImageHandler.Model3DStatus)
	// Single-stage re-runs
	protected.POST("/image/isometric", cfg.ImageHandler.GenerateIsometric)
	protected.POST("/image/3d", cfg.ImageHandler.Submit3D)
	protected.POST("/image/explanation", cfg.ImageHandler.GenerateExplanation)
	protected.POST("/image/quiz", cfg.ImageHandler.GenerateQuiz)
	// Gallery
	protected.GET("/image/user/images", cfg.ImageHandler.ListUserImages)

	return router
}
