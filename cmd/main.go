package main

import (
	"fmt"
	"os"
	"time"

	"github.com/apexlabs/apex-backend/internal/db"
	"github.com/apexlabs/apex-backend/internal/handlers"
	"github.com/apexlabs/apex-backend/internal/logger"
	"github.com/apexlabs/apex-backend/internal/middleware"
	"github.com/apexlabs/apex-backend/internal/repos"
	"github.com/apexlabs/apex-backend/internal/server"
	"github.com/apexlabs/apex-backend/internal/services"
	"github.com/apexlabs/apex-backend/internal/utils"
)

func main() {
	// Logger
	logMode := os.Getenv("LOG_MODE")
	if logMode == "" {
		logMode = "development"
	}
	log, err := logger.New(logMode)
	if err != nil {
		fmt.Printf("Failed to init logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	// Env
	log.Info("Loading environment variables from main...")
	jwtSecretKey := utils.GetEnv("JWT_SECRET_KEY", "defaultsecret", log)
	accessTokenTTL := utils.GetEnvAsInt("ACCESS_TOKEN_TTL", 3600, log)
	refreshTokenTTL := utils.GetEnvAsInt("REFRESH_TOKEN_TTL", 86400, log)
	storageDir := utils.GetEnv("STORAGE_DIR", "data", log)
	genaiAPIKey := utils.GetEnv("GENAI_API_KEY", "", log)
	trellisAPIKey := utils.GetEnv("TRELLIS_API_KEY", "", log)
	taskPoolSize := utils.GetEnvAsInt("TASK_POOL_SIZE", 4, log)
	quizSize := utils.GetEnvAsInt("QUIZ_NUM_QUESTIONS", 3, log)

	// Postgres
	postgresService, err := db.NewPostgresService(log)
	if err != nil {
		log.Error("Postgres init failed", "error", err)
		os.Exit(1)
	}
	if err = postgresService.AutoMigrateAll(); err != nil {
		log.Warn("Postgres auto migration failed", "error", err)
	}
	thePG := postgresService.DB()

	// Repos
	log.Info("Setting up Repos from main...")
	userRepo := repos.NewUserRepo(thePG, log)
	userTokenRepo := repos.NewUserTokenRepo(thePG, log)
	sourceImageRepo := repos.NewSourceImageRepo(thePG, log)
	isometricRepo := repos.NewIsometricRepo(thePG, log)
	model3DTaskRepo := repos.NewModel3DTaskRepo(thePG, log)
	explanationRepo := repos.NewExplanationRepo(thePG, log)
	quizRepo := repos.NewQuizRepo(thePG, log)

	// Services
	log.Info("Setting up Services from main...")
	storageService, err := services.NewLocalStorageService(log, storageDir)
	if err != nil {
		log.Error("Could not init StorageService", "error", err)
		os.Exit(1)
	}
	genaiClient, err := services.NewGenAIClient(log, services.GenAIConfig{APIKey: genaiAPIKey})
	if err != nil {
		log.Error("Could not init GenAIClient", "error", err)
		os.Exit(1)
	}
	trellisClient, err := services.NewTrellisClient(log, services.TrellisConfig{APIKey: trellisAPIKey})
	if err != nil {
		log.Error("Could not init TrellisClient", "error", err)
		os.Exit(1)
	}
	taskPool := services.NewTaskPool(log, taskPoolSize)
	authService := services.NewAuthService(thePG, log, userRepo, userTokenRepo, jwtSecretKey, time.Duration(accessTokenTTL)*time.Second, time.Duration(refreshTokenTTL)*time.Second)
	imageService := services.NewImageService(thePG, log, storageService, sourceImageRepo, isometricRepo, explanationRepo, quizRepo, model3DTaskRepo)
	model3DService := services.NewModel3DService(thePG, log, trellisClient, storageService, model3DTaskRepo, 0)
	pipelineService := services.NewPipelineService(thePG, log, taskPool, storageService, genaiClient, model3DService, imageService, isometricRepo, explanationRepo, quizRepo, quizSize)

	// Handlers
	log.Info("Setting up handlers from main...")
	authHandler := handlers.NewAuthHandler(authService)
	imageHandler := handlers.NewImageHandler(log, imageService, pipelineService, model3DService)

	// Middleware
	log.Info("Setting up middleware from main...")
	authMiddleware := middleware.NewAuthMiddleware(log, authService)

	// Router
	log.Info("Setting up router from main...")
	router := server.NewRouter(server.RouterConfig{
		AuthHandler:    authHandler,
		ImageHandler:   imageHandler,
		AuthMiddleware: authMiddleware,
	})

	port := utils.GetEnv("PORT", "8080", log)
	fmt.Printf("Server listening on :%s\n", port)
	if err := router.Run(":" + port); err != nil {
		log.Warn("Server failed", "error", err)
	}
}
