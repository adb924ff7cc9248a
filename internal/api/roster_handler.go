package api

import (
	"net/http"
	"time"

	"alcyxob/fitgen/internal/domain"
	"alcyxob/fitgen/internal/service"

	"github.com/gin-gonic/gin"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// RosterHandler exposes the trainer's client roster and the substitution catalog.
type RosterHandler struct {
	rosterService       service.RosterService
	substitutionService service.SubstitutionService
}

func NewRosterHandler(rosterService service.RosterService, substitutionService service.SubstitutionService) *RosterHandler {
	return &RosterHandler{
		rosterService:       rosterService,
		substitutionService: substitutionService,
	}
}

// --- DTOs for Client Management ---
type AddClientRequest struct {
	ClientEmail string `json:"clientEmail" binding:"required,email"`
}

// UserResponse is the public view of a user record.
type UserResponse struct {
	ID             string      `json:"id"`
	Name           string      `json:"name"`
	Email          string      `json:"email"`
	Role           domain.Role `json:"role"`
	OrganizationID *string     `json:"organizationId,omitempty"`
	CreatedAt      time.Time   `json:"createdAt"`
	ClientIDs      []string    `json:"clientIds,omitempty"` // Use string ObjectIDs
	TrainerID      *string     `json:"trainerId,omitempty"`
}

type AlternativeRequest struct {
	ExerciseName string   `json:"exerciseName" binding:"required"`
	Name         string   `json:"name" binding:"required"`
	MuscleGroup  string   `json:"muscleGroup"`
	Equipment    []string `json:"equipment"`
	Similarity   float64  `json:"similarity" binding:"min=0,max=1"`
	Notes        string   `json:"notes"`
}

// AddClientByEmail godoc
// @Summary Add a client to the trainer's roster by email
// @Description Associates an existing client user with the authenticated trainer.
// @Tags Trainer
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param clientRequest body AddClientRequest true "Client's email"
// @Success 200 {object} UserResponse "Client successfully added/associated"
// @Failure 400 {object} gin.H "Invalid input or user is not a client"
// @Failure 404 {object} gin.H "Client not found"
// @Failure 409 {object} gin.H "Client already has a trainer"
// @Router /trainer/clients [post]
func (h *RosterHandler) AddClientByEmail(c *gin.Context) {
	trainerID, ok := actorID(c)
	if !ok {
		return
	}
	var req AddClientRequest
	if !bindJSON(c, &req) {
		return
	}

	client, err := h.rosterService.AddClientByEmail(c.Request.Context(), trainerID, req.ClientEmail)
	if err != nil {
		abortWithServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, MapUserToResponse(client))
}

// GetManagedClients godoc
// @Summary Get the trainer's managed clients
// @Tags Trainer
// @Produce json
// @Security BearerAuth
// @Success 200 {array} UserResponse "List of managed clients"
// @Router /trainer/clients [get]
func (h *RosterHandler) GetManagedClients(c *gin.Context) {
	trainerID, ok := actorID(c)
	if !ok {
		return
	}
	clients, err := h.rosterService.GetManagedClients(c.Request.Context(), trainerID)
	if err != nil {
		abortWithServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, MapUsersToResponse(clients))
}

func (h *RosterHandler) AddAlternative(c *gin.Context) {
	var req AlternativeRequest
	if !bindJSON(c, &req) {
		return
	}
	alt, err := h.substitutionService.AddAlternative(c.Request.Context(), &domain.ExerciseAlternative{
		ExerciseName: req.ExerciseName,
		Name:         req.Name,
		MuscleGroup:  req.MuscleGroup,
		Equipment:    req.Equipment,
		Similarity:   req.Similarity,
		Notes:        req.Notes,
	})
	if err != nil {
		abortWithServiceError(c, err)
		return
	}
	c.JSON(http.StatusCreated, alt)
}

// FindSubstitute looks up ?exercise=, filtered by ?equipment= (repeatable) and ?minSimilarity=.
func (h *RosterHandler) FindSubstitute(c *gin.Context) {
	name := c.Query("exercise")
	if name == "" {
		abortWithError(c, http.StatusBadRequest, "exercise query parameter is required.")
		return
	}
	criteria := service.SubstitutionCriteria{Reason: c.Query("reason")}
	if eq, ok := c.GetQueryArray("equipment"); ok {
		criteria.AvailableEquipment = eq
	}
	var q struct {
		MinSimilarity float64 `form:"minSimilarity" binding:"min=0,max=1"`
	}
	if err := c.ShouldBindQuery(&q); err != nil {
		abortWithError(c, http.StatusBadRequest, "Validation error: "+err.Error())
		return
	}
	criteria.MinSimilarity = q.MinSimilarity

	result, err := h.substitutionService.FindSubstitute(c.Request.Context(), name, criteria)
	if err != nil {
		abortWithServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

// MapUserToResponse converts a domain User to a UserResponse DTO.
func MapUserToResponse(user *domain.User) UserResponse {
	if user == nil {
		return UserResponse{}
	}

	resp := UserResponse{
		ID:        user.ID.Hex(),
		Name:      user.Name,
		Email:     user.Email,
		Role:      user.Role,
		CreatedAt: user.CreatedAt,
	}
	if len(user.ClientIDs) > 0 {
		resp.ClientIDs = make([]string, len(user.ClientIDs))
		for i, id := range user.ClientIDs {
			resp.ClientIDs[i] = id.Hex()
		}
	}
	resp.TrainerID = hexPtr(user.TrainerID)
	resp.OrganizationID = hexPtr(user.OrganizationID)
	return resp
}

// MapUsersToResponse converts a slice of domain.User to UserResponse DTOs.
func MapUsersToResponse(users []domain.User) []UserResponse {
	userResponses := make([]UserResponse, len(users))
	for i := range users {
		userResponses[i] = MapUserToResponse(&users[i])
	}
	return userResponses
}

func hexPtr(id *primitive.ObjectID) *string {
	if id == nil || id.IsZero() {
		return nil
	}
	s := id.Hex()
	return &s
}
