package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"alcyxob/fitgen/internal/api"
	"alcyxob/fitgen/internal/config"
	"alcyxob/fitgen/internal/generator"
	"alcyxob/fitgen/internal/lock"
	"alcyxob/fitgen/internal/logger"
	"alcyxob/fitgen/internal/repository/mongo"
	"alcyxob/fitgen/internal/service"
	"alcyxob/fitgen/internal/storage"

	"github.com/gin-gonic/gin"
)

// @title Program Generation API
// @version 1.0
// @description Template matching, versioning, program instances and progression analytics.
// @host localhost:8080
// @BasePath /api/v1
// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization
// @description Type "Bearer" followed by a space and JWT token.
func main() {
	// --- Configuration ---
	cfg, err := config.LoadConfig(".")
	if err != nil {
		println("FATAL: Could not load config:", err.Error())
		os.Exit(1)
	}

	log, err := logger.New(cfg.Log.Mode)
	if err != nil {
		println("FATAL: Could not build logger:", err.Error())
		os.Exit(1)
	}
	defer log.Sync()
	log.Info("Starting program generation server", "address", cfg.Server.Address, "log_mode", cfg.Log.Mode)

	// --- Database Connection ---
	dbClient, err := mongo.ConnectDB(cfg.Database.URI)
	if err != nil {
		log.Fatal("Could not connect to MongoDB", "error", err)
	}
	defer func() {
		log.Info("Disconnecting MongoDB...")
		if err := mongo.DisconnectDB(dbClient); err != nil {
			log.Error("Failed to disconnect MongoDB", "error", err)
		}
	}()
	appDB := dbClient.Database(cfg.Database.Name)
	log.Info("Database connection established", "database", cfg.Database.Name)

	// --- Ensure Indexes ---
	// The unique (root, version) index backs version numbering, so this is not
	// left to the background.
	indexCtx, cancelIndex := context.WithTimeout(context.Background(), 1*time.Minute)
	if err := mongo.EnsureIndexes(indexCtx, appDB); err != nil {
		cancelIndex()
		log.Fatal("Could not ensure indexes", "error", err)
	}
	cancelIndex()

	// --- Locks ---
	var locker lock.Locker = lock.NewLocalLocker()
	if cfg.Redis.Enabled {
		redisLocker, err := lock.NewRedisLocker(log, cfg.Redis.Addr, cfg.Redis.LockTTL)
		if err != nil {
			log.Fatal("Could not connect to Redis", "addr", cfg.Redis.Addr, "error", err)
		}
		defer redisLocker.Close()
		locker = redisLocker
		log.Info("Using Redis locks", "addr", cfg.Redis.Addr)
	} else {
		log.Warn("Redis disabled, using in-process locks (single replica only)")
	}

	// --- Initialize Storage ---
	var fileStorage storage.FileStorage = storage.NoopStorage{}
	if cfg.S3.Enabled {
		s3Ctx, cancelS3 := context.WithTimeout(context.Background(), 30*time.Second)
		fileStorage, err = storage.NewS3Storage(s3Ctx, cfg.S3, log)
		cancelS3()
		if err != nil {
			log.Fatal("Failed to initialize S3 storage", "error", err)
		}
	}

	// --- Initialize Repositories ---
	templateRepo := mongo.NewMongoTemplateRepository(appDB)
	instanceRepo := mongo.NewMongoInstanceRepository(appDB)
	performanceRepo := mongo.NewMongoPerformanceLogRepository(appDB)
	alternativeRepo := mongo.NewMongoAlternativeRepository(appDB)
	userRepo := mongo.NewMongoUserRepository(appDB)
	trainingPlanRepo := mongo.NewMongoTrainingPlanRepository(appDB)
	workoutRepo := mongo.NewMongoWorkoutRepository(appDB)

	// --- Initialize Services ---
	completer := generator.NewChatClient(cfg.Generation, log)
	templateService := service.NewTemplateService(templateRepo, userRepo, locker, cfg.Matcher, log)
	versionService := service.NewVersionService(templateRepo, userRepo, locker, log)
	substitutionService := service.NewSubstitutionService(alternativeRepo, log)
	instanceService := service.NewInstanceService(
		instanceRepo, templateRepo, userRepo, trainingPlanRepo, workoutRepo,
		templateService, substitutionService, locker, cfg.Retention, log,
	)
	generationService := service.NewGenerationService(
		instanceRepo, userRepo, templateService, instanceService,
		completer, fileStorage, cfg.Generation, cfg.Retention, log,
	)
	performanceService := service.NewPerformanceService(performanceRepo, instanceRepo, log)
	analyticsService := service.NewAnalyticsService(performanceRepo, instanceRepo, log)
	rosterService := service.NewRosterService(userRepo, log)

	// --- Initialize Gin Engine ---
	if cfg.Log.Mode != "development" {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(gin.Recovery())

	api.SetupRoutes(router, cfg.JWT.Secret, api.Handlers{
		Templates: api.NewTemplateHandler(templateService, versionService, generationService, instanceService, cfg.Versions.KeepPredecessors),
		Instances: api.NewInstanceHandler(instanceService),
		Progress:  api.NewProgressHandler(performanceService, analyticsService),
		Roster:    api.NewRosterHandler(rosterService, substitutionService),
	}, log)

	// --- Start HTTP Server ---
	// Generation calls can take as long as the completion timeout.
	writeTimeout := cfg.Server.WriteTimeout
	if floor := cfg.Generation.Timeout + 5*time.Second; writeTimeout < floor {
		writeTimeout = floor
	}
	server := &http.Server{
		Addr:         cfg.Server.Address,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: writeTimeout,
		IdleTimeout:  120 * time.Second,
	}

	// --- Graceful Shutdown ---
	go func() {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal("ListenAndServe error", "error", err)
		}
	}()
	log.Info("Server started", "address", cfg.Server.Address)

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info("Shutting down server...")

	ctxShutdown, cancelShutdown := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancelShutdown()

	if err := server.Shutdown(ctxShutdown); err != nil {
		log.Error("Server forced to shutdown", "error", err)
	}

	log.Info("Server exiting.")
}
