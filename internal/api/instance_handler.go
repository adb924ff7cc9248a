package api

import (
	"net/http"
	"time"

	"alcyxob/fitgen/internal/domain"
	"alcyxob/fitgen/internal/service"

	"github.com/gin-gonic/gin"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

type InstanceHandler struct {
	instanceService service.InstanceService
}

func NewInstanceHandler(instanceService service.InstanceService) *InstanceHandler {
	return &InstanceHandler{instanceService: instanceService}
}

// --- DTOs ---

type ApplyTemplateRequest struct {
	TemplateID     string                `json:"templateId" binding:"required"`
	RecipientID    string                `json:"recipientId" binding:"required"`
	Customizations domain.Customizations `json:"customizations"`
}

type RejectRequest struct {
	Reason string `json:"reason" binding:"required"`
}

type ApplyInstanceRequest struct {
	StartDate *time.Time `json:"startDate"`
}

type ArchiveInstanceRequest struct {
	Reason string `json:"reason"`
}

type EditProgramRequest struct {
	Edits []service.FieldEdit `json:"edits" binding:"required,min=1,dive"`
}

type BulkSwapRequest struct {
	AvailableEquipment []string `json:"availableEquipment" binding:"required"`
	Reason             string   `json:"reason"`
}

type DifficultyRequest struct {
	Direction string `json:"direction" binding:"required,oneof=increase decrease"`
}

// ApplyTemplate godoc
// @Summary Materialize a template for a client
// @Tags Instances
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param applyRequest body ApplyTemplateRequest true "Template, recipient and customizations"
// @Success 201 {object} service.ApplyResult
// @Failure 400 {object} gin.H "Template archived or invalid customization"
// @Failure 403 {object} gin.H "Template not visible or client not managed"
// @Router /instances [post]
func (h *InstanceHandler) ApplyTemplate(c *gin.Context) {
	actor, ok := actorID(c)
	if !ok {
		return
	}
	var req ApplyTemplateRequest
	if !bindJSON(c, &req) {
		return
	}
	templateID, err := primitive.ObjectIDFromHex(req.TemplateID)
	if err != nil {
		abortWithError(c, http.StatusBadRequest, "Invalid templateId format.")
		return
	}
	recipientID, err := primitive.ObjectIDFromHex(req.RecipientID)
	if err != nil {
		abortWithError(c, http.StatusBadRequest, "Invalid recipientId format.")
		return
	}
	result, err := h.instanceService.ApplyTemplate(c.Request.Context(), service.ApplyTemplateInput{
		TemplateID:     templateID,
		RecipientID:    recipientID,
		ProducerID:     actor,
		Customizations: req.Customizations,
	})
	if err != nil {
		abortWithServiceError(c, err)
		return
	}
	c.JSON(http.StatusCreated, result)
}

func (h *InstanceHandler) GetInstance(c *gin.Context) {
	actor, ok := actorID(c)
	if !ok {
		return
	}
	id, ok := paramObjectID(c, "instanceId")
	if !ok {
		return
	}
	inst, err := h.instanceService.GetInstance(c.Request.Context(), id, actor)
	if err != nil {
		abortWithServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, inst)
}

// GetAppliedProgram returns the training plan and workouts of an applied instance.
func (h *InstanceHandler) GetAppliedProgram(c *gin.Context) {
	actor, ok := actorID(c)
	if !ok {
		return
	}
	id, ok := paramObjectID(c, "instanceId")
	if !ok {
		return
	}
	program, err := h.instanceService.GetAppliedProgram(c.Request.Context(), id, actor)
	if err != nil {
		abortWithServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, program)
}

func (h *InstanceHandler) ListForClient(c *gin.Context) {
	actor, ok := actorID(c)
	if !ok {
		return
	}
	clientID, ok := paramObjectID(c, "clientId")
	if !ok {
		return
	}
	instances, err := h.instanceService.ListForRecipient(c.Request.Context(), clientID, actor)
	if err != nil {
		abortWithServiceError(c, err)
		return
	}
	if instances == nil {
		instances = []domain.GeneratedInstance{}
	}
	c.JSON(http.StatusOK, instances)
}

// withInstance resolves the actor and the :instanceId parameter.
func withInstance(c *gin.Context) (primitive.ObjectID, primitive.ObjectID, bool) {
	actor, ok := actorID(c)
	if !ok {
		return primitive.NilObjectID, primitive.NilObjectID, false
	}
	id, ok := paramObjectID(c, "instanceId")
	if !ok {
		return primitive.NilObjectID, primitive.NilObjectID, false
	}
	return actor, id, true
}

func (h *InstanceHandler) Review(c *gin.Context) {
	actor, id, ok := withInstance(c)
	if !ok {
		return
	}
	inst, err := h.instanceService.Review(c.Request.Context(), id, actor)
	if err != nil {
		abortWithServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, inst)
}

func (h *InstanceHandler) Approve(c *gin.Context) {
	actor, id, ok := withInstance(c)
	if !ok {
		return
	}
	inst, err := h.instanceService.Approve(c.Request.Context(), id, actor)
	if err != nil {
		abortWithServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, inst)
}

func (h *InstanceHandler) Reject(c *gin.Context) {
	actor, id, ok := withInstance(c)
	if !ok {
		return
	}
	var req RejectRequest
	if !bindJSON(c, &req) {
		return
	}
	inst, err := h.instanceService.Reject(c.Request.Context(), id, actor, req.Reason)
	if err != nil {
		abortWithServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, inst)
}

// Apply godoc
// @Summary Create the client's training plan from an approved instance
// @Tags Instances
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param instanceId path string true "Instance ID"
// @Param applyRequest body ApplyInstanceRequest false "Optional start date"
// @Success 200 {object} domain.GeneratedInstance
// @Failure 409 {object} gin.H "Instance is not approved"
// @Router /instances/{instanceId}/apply [post]
func (h *InstanceHandler) Apply(c *gin.Context) {
	actor, id, ok := withInstance(c)
	if !ok {
		return
	}
	var req ApplyInstanceRequest
	if c.Request.ContentLength > 0 && !bindJSON(c, &req) {
		return
	}
	inst, err := h.instanceService.Apply(c.Request.Context(), id, actor, req.StartDate)
	if err != nil {
		abortWithServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, inst)
}

func (h *InstanceHandler) Archive(c *gin.Context) {
	actor, id, ok := withInstance(c)
	if !ok {
		return
	}
	var req ArchiveInstanceRequest
	if c.Request.ContentLength > 0 && !bindJSON(c, &req) {
		return
	}
	inst, err := h.instanceService.Archive(c.Request.Context(), id, actor, req.Reason)
	if err != nil {
		abortWithServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, inst)
}

func (h *InstanceHandler) EditProgram(c *gin.Context) {
	actor, id, ok := withInstance(c)
	if !ok {
		return
	}
	var req EditProgramRequest
	if !bindJSON(c, &req) {
		return
	}
	inst, err := h.instanceService.EditProgram(c.Request.Context(), id, actor, req.Edits)
	if err != nil {
		abortWithServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, inst)
}

func (h *InstanceHandler) SwapExercise(c *gin.Context) {
	actor, id, ok := withInstance(c)
	if !ok {
		return
	}
	var req service.SwapRequest
	if !bindJSON(c, &req) {
		return
	}
	result, err := h.instanceService.SwapExercise(c.Request.Context(), id, actor, req)
	if err != nil {
		abortWithServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

func (h *InstanceHandler) BulkSwap(c *gin.Context) {
	actor, id, ok := withInstance(c)
	if !ok {
		return
	}
	var req BulkSwapRequest
	if !bindJSON(c, &req) {
		return
	}
	result, err := h.instanceService.BulkSwapByEquipment(c.Request.Context(), id, actor, req.AvailableEquipment, req.Reason)
	if err != nil {
		abortWithServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

func (h *InstanceHandler) AdjustDifficulty(c *gin.Context) {
	actor, id, ok := withInstance(c)
	if !ok {
		return
	}
	var req DifficultyRequest
	if !bindJSON(c, &req) {
		return
	}
	inst, err := h.instanceService.AdjustDifficulty(c.Request.Context(), id, actor, req.Direction)
	if err != nil {
		abortWithServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, inst)
}

// RevertEdit undoes modification :index; later entries shift down by one.
func (h *InstanceHandler) RevertEdit(c *gin.Context) {
	actor, id, ok := withInstance(c)
	if !ok {
		return
	}
	index, ok := paramInt(c, "index")
	if !ok {
		return
	}
	inst, err := h.instanceService.RevertEdit(c.Request.Context(), id, actor, index)
	if err != nil {
		abortWithServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, inst)
}
