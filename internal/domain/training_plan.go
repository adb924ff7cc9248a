// internal/domain/training_plan.go
package domain

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// TrainingPlan is the concrete program created for a client when an approved
// instance is applied.
type TrainingPlan struct {
	ID          primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	TrainerID   primitive.ObjectID `bson:"trainerId" json:"trainerId"`
	ClientID    primitive.ObjectID `bson:"clientId" json:"clientId"`
	InstanceID  primitive.ObjectID `bson:"instanceId" json:"instanceId"` // GeneratedInstance it was applied from
	Name        string             `bson:"name" json:"name"`             // e.g., "Phase 1: Hypertrophy"
	Description string             `bson:"description,omitempty" json:"description,omitempty"`
	StartDate   *time.Time         `bson:"startDate,omitempty" json:"startDate,omitempty"`
	EndDate     *time.Time         `bson:"endDate,omitempty" json:"endDate,omitempty"`
	IsActive    bool               `bson:"isActive" json:"isActive"` // only one active plan per client
	Nutrition   *NutritionPlan     `bson:"nutrition,omitempty" json:"nutrition,omitempty"`
	CreatedAt   time.Time          `bson:"createdAt" json:"createdAt"`
	UpdatedAt   time.Time          `bson:"updatedAt" json:"updatedAt"`
}
