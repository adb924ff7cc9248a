package api

import (
	"net/http"

	"alcyxob/fitgen/internal/domain"
	"alcyxob/fitgen/internal/logger"

	"github.com/gin-gonic/gin"
)

// Handlers groups everything SetupRoutes mounts.
type Handlers struct {
	Templates *TemplateHandler
	Instances *InstanceHandler
	Progress  *ProgressHandler
	Roster    *RosterHandler
}

func SetupRoutes(router *gin.Engine, jwtSecret string, h Handlers, log *logger.Logger) {
	authMiddleware := AuthMiddleware(jwtSecret)
	trainerOnly := RoleMiddleware(domain.RoleTrainer)

	router.Use(RequestLogger(log))

	router.GET("/ping", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"message": "pong"})
	})

	apiV1 := router.Group("/api/v1")
	protected := apiV1.Group("")
	protected.Use(authMiddleware)
	{
		protected.GET("/me", func(c *gin.Context) {
			userIDStr, err := getUserIDFromContext(c)
			if err != nil {
				abortWithError(c, http.StatusInternalServerError, "Failed to get user ID from token")
				return
			}
			role, _ := getUserRoleFromContext(c)
			c.JSON(http.StatusOK, gin.H{"userId": userIDStr, "role": role})
		})

		// --- Matching & Generation ---
		protected.POST("/match", trainerOnly, h.Templates.FindMatch)
		protected.POST("/generate", trainerOnly, h.Templates.Generate)
		protected.GET("/generations/:instanceId/raw", trainerOnly, h.Templates.RawOutputURL)

		// --- Template Versioning ---
		templateGroup := protected.Group("/templates")
		{
			templateGroup.POST("", trainerOnly, h.Templates.CreateTemplate)
			templateGroup.GET("/:templateId", h.Templates.GetTemplate)
			templateGroup.GET("/:templateId/history", h.Templates.GetHistory)
			templateGroup.POST("/:templateId/versions", trainerOnly, h.Templates.CreateVersion)
			templateGroup.POST("/:templateId/rollback", trainerOnly, h.Templates.Rollback)
			templateGroup.POST("/:templateId/archive-old", trainerOnly, h.Templates.ArchiveOldVersions)
			templateGroup.POST("/:templateId/ratings", h.Templates.RateTemplate)
		}
		protected.POST("/maintenance/merge-duplicates", trainerOnly, h.Templates.MergeDuplicates)

		// --- Instances ---
		instanceGroup := protected.Group("/instances")
		{
			instanceGroup.POST("", trainerOnly, h.Instances.ApplyTemplate)
			instanceGroup.GET("/:instanceId", h.Instances.GetInstance)
			instanceGroup.GET("/:instanceId/program", h.Instances.GetAppliedProgram)
			instanceGroup.POST("/:instanceId/review", trainerOnly, h.Instances.Review)
			instanceGroup.POST("/:instanceId/approve", trainerOnly, h.Instances.Approve)
			instanceGroup.POST("/:instanceId/reject", trainerOnly, h.Instances.Reject)
			instanceGroup.POST("/:instanceId/apply", trainerOnly, h.Instances.Apply)
			instanceGroup.POST("/:instanceId/archive", trainerOnly, h.Instances.Archive)
			instanceGroup.POST("/:instanceId/edits", trainerOnly, h.Instances.EditProgram)
			instanceGroup.POST("/:instanceId/swap", trainerOnly, h.Instances.SwapExercise)
			instanceGroup.POST("/:instanceId/bulk-swap", trainerOnly, h.Instances.BulkSwap)
			instanceGroup.POST("/:instanceId/difficulty", trainerOnly, h.Instances.AdjustDifficulty)
			instanceGroup.DELETE("/:instanceId/modifications/:index", trainerOnly, h.Instances.RevertEdit)

			// --- Performance & Analytics ---
			instanceGroup.POST("/:instanceId/logs", h.Progress.StartLog)
			instanceGroup.GET("/:instanceId/logs", h.Progress.ListLogs)
			instanceGroup.POST("/:instanceId/workouts/:workoutIndex/complete", h.Progress.MarkComplete)
			instanceGroup.GET("/:instanceId/compliance", h.Progress.Compliance)
			instanceGroup.GET("/:instanceId/insights", h.Progress.Insights)
			instanceGroup.GET("/:instanceId/dashboard", h.Progress.Dashboard)
		}
		protected.GET("/clients/:clientId/instances", h.Instances.ListForClient)

		logGroup := protected.Group("/logs")
		{
			logGroup.GET("/:logId", h.Progress.GetLog)
			logGroup.PUT("/:logId/exercises/:exerciseIndex/sets/:setNumber", h.Progress.LogSet)
		}

		// --- Substitution Catalog ---
		protected.GET("/substitutes", h.Roster.FindSubstitute)
		protected.POST("/substitutes", trainerOnly, h.Roster.AddAlternative)

		// --- Trainer Roster ---
		trainerApiGroup := protected.Group("/trainer")
		trainerApiGroup.Use(trainerOnly)
		{
			trainerApiGroup.POST("/clients", h.Roster.AddClientByEmail)
			trainerApiGroup.GET("/clients", h.Roster.GetManagedClients)
		}
	}
}
