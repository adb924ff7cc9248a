package api

import (
	"net/http"

	"alcyxob/fitgen/internal/domain"
	"alcyxob/fitgen/internal/service"

	"github.com/gin-gonic/gin"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

type TemplateHandler struct {
	templateService   service.TemplateService
	versionService    service.VersionService
	generationService service.GenerationService
	instances         service.InstanceService
	defaultKeep       int
}

func NewTemplateHandler(
	templateService service.TemplateService,
	versionService service.VersionService,
	generationService service.GenerationService,
	instances service.InstanceService,
	defaultKeep int,
) *TemplateHandler {
	return &TemplateHandler{
		templateService:   templateService,
		versionService:    versionService,
		generationService: generationService,
		instances:         instances,
		defaultKeep:       defaultKeep,
	}
}

// --- DTOs ---

type MatchRequest struct {
	Request      domain.GenerationRequest `json:"request" binding:"required"`
	AllowSimilar bool                     `json:"allowSimilar"`
}

type GenerateRequest struct {
	RecipientID string                   `json:"recipientId" binding:"required"`
	Request     domain.GenerationRequest `json:"request" binding:"required"`
	Options     service.GenerateOptions  `json:"options"`
}

type CreateTemplateRequest struct {
	InstanceID           string                       `json:"instanceId" binding:"required"`
	Name                 string                       `json:"name"`
	Category             string                       `json:"category"`
	Tags                 []string                     `json:"tags"`
	Visibility           domain.Visibility            `json:"visibility" binding:"omitempty,oneof=private organization public"`
	CustomizationOptions *domain.CustomizationOptions `json:"customizationOptions"`
}

type ArchiveOldRequest struct {
	Keep *int `json:"keep" binding:"omitempty,min=0"`
}

type RateTemplateRequest struct {
	Score    int    `json:"score" binding:"required,min=1,max=5"`
	Feedback string `json:"feedback"`
}

// FindMatch godoc
// @Summary Look up a reusable template for a generation request
// @Tags Templates
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param matchRequest body MatchRequest true "Generation request"
// @Success 200 {object} service.MatchResult
// @Failure 400 {object} gin.H "Malformed request"
// @Router /match [post]
func (h *TemplateHandler) FindMatch(c *gin.Context) {
	actor, ok := actorID(c)
	if !ok {
		return
	}
	var req MatchRequest
	if !bindJSON(c, &req) {
		return
	}
	result, err := h.templateService.FindMatch(c.Request.Context(), req.Request, service.MatchOptions{
		AllowSimilar: req.AllowSimilar,
		Viewer:       &service.Viewer{ID: actor},
	})
	if err != nil {
		abortWithServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

// Generate godoc
// @Summary Produce a program for a client, reusing a template when one matches
// @Tags Templates
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param generateRequest body GenerateRequest true "Recipient, request and options"
// @Success 201 {object} service.GenerateResult
// @Failure 403 {object} gin.H "Client not managed by trainer"
// @Failure 502 {object} gin.H "Completion service failed"
// @Router /generate [post]
func (h *TemplateHandler) Generate(c *gin.Context) {
	actor, ok := actorID(c)
	if !ok {
		return
	}
	var req GenerateRequest
	if !bindJSON(c, &req) {
		return
	}
	recipientID, err := primitive.ObjectIDFromHex(req.RecipientID)
	if err != nil {
		abortWithError(c, http.StatusBadRequest, "Invalid recipientId format.")
		return
	}
	result, err := h.generationService.Generate(c.Request.Context(), actor, recipientID, req.Request, req.Options)
	if err != nil {
		abortWithServiceError(c, err)
		return
	}
	c.JSON(http.StatusCreated, result)
}

func (h *TemplateHandler) RawOutputURL(c *gin.Context) {
	actor, ok := actorID(c)
	if !ok {
		return
	}
	instanceID, ok := paramObjectID(c, "instanceId")
	if !ok {
		return
	}
	url, err := h.generationService.RawOutputURL(c.Request.Context(), instanceID, actor)
	if err != nil {
		abortWithServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"url": url})
}

// CreateTemplate registers an instance's content as a new template chain.
func (h *TemplateHandler) CreateTemplate(c *gin.Context) {
	actor, ok := actorID(c)
	if !ok {
		return
	}
	var req CreateTemplateRequest
	if !bindJSON(c, &req) {
		return
	}
	instanceID, err := primitive.ObjectIDFromHex(req.InstanceID)
	if err != nil {
		abortWithError(c, http.StatusBadRequest, "Invalid instanceId format.")
		return
	}
	inst, err := h.instances.GetInstance(c.Request.Context(), instanceID, actor)
	if err != nil {
		abortWithServiceError(c, err)
		return
	}
	if inst.ProducerID != actor {
		abortWithServiceError(c, service.ErrNotOwner)
		return
	}
	tmpl, err := h.templateService.CreateFromGenerated(c.Request.Context(), inst, service.CreateTemplateOptions{
		Name:                 req.Name,
		Category:             req.Category,
		Tags:                 req.Tags,
		Visibility:           req.Visibility,
		CustomizationOptions: req.CustomizationOptions,
	})
	if err != nil {
		abortWithServiceError(c, err)
		return
	}
	c.JSON(http.StatusCreated, tmpl)
}

func (h *TemplateHandler) GetTemplate(c *gin.Context) {
	actor, ok := actorID(c)
	if !ok {
		return
	}
	id, ok := paramObjectID(c, "templateId")
	if !ok {
		return
	}
	tmpl, err := h.templateService.GetVisibleTemplate(c.Request.Context(), id, actor)
	if err != nil {
		abortWithServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, tmpl)
}

// CreateVersion godoc
// @Summary Append a new version to a template chain
// @Tags Templates
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param templateId path string true "Any version in the chain"
// @Param updates body service.TemplateUpdates true "Fields to change"
// @Success 201 {object} domain.Template
// @Failure 403 {object} gin.H "Not the owner"
// @Router /templates/{templateId}/versions [post]
func (h *TemplateHandler) CreateVersion(c *gin.Context) {
	actor, ok := actorID(c)
	if !ok {
		return
	}
	id, ok := paramObjectID(c, "templateId")
	if !ok {
		return
	}
	var updates service.TemplateUpdates
	if !bindJSON(c, &updates) {
		return
	}
	tmpl, err := h.versionService.CreateNewVersion(c.Request.Context(), id, updates, actor)
	if err != nil {
		abortWithServiceError(c, err)
		return
	}
	c.JSON(http.StatusCreated, tmpl)
}

func (h *TemplateHandler) Rollback(c *gin.Context) {
	actor, ok := actorID(c)
	if !ok {
		return
	}
	id, ok := paramObjectID(c, "templateId")
	if !ok {
		return
	}
	tmpl, err := h.versionService.Rollback(c.Request.Context(), id, actor)
	if err != nil {
		abortWithServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, tmpl)
}

func (h *TemplateHandler) GetHistory(c *gin.Context) {
	actor, ok := actorID(c)
	if !ok {
		return
	}
	id, ok := paramObjectID(c, "templateId")
	if !ok {
		return
	}
	history, err := h.versionService.GetHistory(c.Request.Context(), id, actor)
	if err != nil {
		abortWithServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, history)
}

func (h *TemplateHandler) ArchiveOldVersions(c *gin.Context) {
	actor, ok := actorID(c)
	if !ok {
		return
	}
	id, ok := paramObjectID(c, "templateId")
	if !ok {
		return
	}
	var req ArchiveOldRequest
	if c.Request.ContentLength > 0 && !bindJSON(c, &req) {
		return
	}
	keep := h.defaultKeep
	if req.Keep != nil {
		keep = *req.Keep
	}
	n, err := h.versionService.ArchiveOldVersions(c.Request.Context(), id, keep, actor)
	if err != nil {
		abortWithServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"archived": n, "kept": keep})
}

func (h *TemplateHandler) RateTemplate(c *gin.Context) {
	actor, ok := actorID(c)
	if !ok {
		return
	}
	id, ok := paramObjectID(c, "templateId")
	if !ok {
		return
	}
	var req RateTemplateRequest
	if !bindJSON(c, &req) {
		return
	}
	tmpl, err := h.templateService.AddRating(c.Request.Context(), id, actor, req.Score, req.Feedback)
	if err != nil {
		abortWithServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, tmpl.Usage)
}

// MergeDuplicates folds the caller's own duplicate templates; it is safe to call repeatedly.
func (h *TemplateHandler) MergeDuplicates(c *gin.Context) {
	actor, ok := actorID(c)
	if !ok {
		return
	}
	report, err := h.versionService.MergeDuplicates(c.Request.Context(), actor)
	if err != nil {
		abortWithServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, report)
}
