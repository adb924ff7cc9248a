package api

import (
	"net/http"

	"alcyxob/fitgen/internal/domain"
	"alcyxob/fitgen/internal/service"

	"github.com/gin-gonic/gin"
)

// ProgressHandler serves performance logging and the analytics built on it.
type ProgressHandler struct {
	performanceService service.PerformanceService
	analyticsService   service.AnalyticsService
}

func NewProgressHandler(performanceService service.PerformanceService, analyticsService service.AnalyticsService) *ProgressHandler {
	return &ProgressHandler{
		performanceService: performanceService,
		analyticsService:   analyticsService,
	}
}

type StartLogRequest struct {
	WorkoutIndex *int `json:"workoutIndex" binding:"required,min=0"`
}

func (h *ProgressHandler) StartLog(c *gin.Context) {
	actor, id, ok := withInstance(c)
	if !ok {
		return
	}
	var req StartLogRequest
	if !bindJSON(c, &req) {
		return
	}
	l, err := h.performanceService.StartLog(c.Request.Context(), id, *req.WorkoutIndex, actor)
	if err != nil {
		abortWithServiceError(c, err)
		return
	}
	c.JSON(http.StatusCreated, l)
}

// LogSet godoc
// @Summary Record or replace one set of a logged exercise
// @Tags Progress
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param logId path string true "Performance log ID"
// @Param exerciseIndex path int true "Exercise index within the log"
// @Param setNumber path int true "Set number, starting at 1"
// @Param set body service.SetData true "Set data"
// @Success 200 {object} domain.PerformanceLog
// @Router /logs/{logId}/exercises/{exerciseIndex}/sets/{setNumber} [put]
func (h *ProgressHandler) LogSet(c *gin.Context) {
	actor, ok := actorID(c)
	if !ok {
		return
	}
	logID, ok := paramObjectID(c, "logId")
	if !ok {
		return
	}
	exerciseIndex, ok := paramInt(c, "exerciseIndex")
	if !ok {
		return
	}
	setNumber, ok := paramInt(c, "setNumber")
	if !ok {
		return
	}
	var data service.SetData
	if !bindJSON(c, &data) {
		return
	}
	l, err := h.performanceService.LogSet(c.Request.Context(), logID, actor, exerciseIndex, setNumber, data)
	if err != nil {
		abortWithServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, l)
}

func (h *ProgressHandler) MarkComplete(c *gin.Context) {
	actor, id, ok := withInstance(c)
	if !ok {
		return
	}
	workoutIndex, ok := paramInt(c, "workoutIndex")
	if !ok {
		return
	}
	var data service.WorkoutData
	if !bindJSON(c, &data) {
		return
	}
	l, err := h.performanceService.MarkComplete(c.Request.Context(), id, actor, workoutIndex, data)
	if err != nil {
		abortWithServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, l)
}

func (h *ProgressHandler) GetLog(c *gin.Context) {
	actor, ok := actorID(c)
	if !ok {
		return
	}
	logID, ok := paramObjectID(c, "logId")
	if !ok {
		return
	}
	l, err := h.performanceService.GetLog(c.Request.Context(), logID, actor)
	if err != nil {
		abortWithServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, l)
}

func (h *ProgressHandler) ListLogs(c *gin.Context) {
	actor, id, ok := withInstance(c)
	if !ok {
		return
	}
	logs, err := h.performanceService.ListCompleted(c.Request.Context(), id, actor)
	if err != nil {
		abortWithServiceError(c, err)
		return
	}
	if logs == nil {
		logs = []domain.PerformanceLog{}
	}
	c.JSON(http.StatusOK, logs)
}

func (h *ProgressHandler) Compliance(c *gin.Context) {
	actor, id, ok := withInstance(c)
	if !ok {
		return
	}
	report, err := h.analyticsService.ComplianceMetrics(c.Request.Context(), actor, id)
	if err != nil {
		abortWithServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, report)
}

func (h *ProgressHandler) Insights(c *gin.Context) {
	actor, id, ok := withInstance(c)
	if !ok {
		return
	}
	report, err := h.analyticsService.ProgressionInsights(c.Request.Context(), actor, id)
	if err != nil {
		abortWithServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, report)
}

func (h *ProgressHandler) Dashboard(c *gin.Context) {
	actor, id, ok := withInstance(c)
	if !ok {
		return
	}
	d, err := h.analyticsService.Dashboard(c.Request.Context(), actor, id)
	if err != nil {
		abortWithServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, d)
}
