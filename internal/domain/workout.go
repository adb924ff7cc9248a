package domain

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Workout is a single session of a TrainingPlan, materialized from a PlanWorkout.
type Workout struct {
	ID             primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	TrainingPlanID primitive.ObjectID `bson:"trainingPlanId" json:"trainingPlanId"`
	TrainerID      primitive.ObjectID `bson:"trainerId" json:"trainerId"` // denormalized for auth
	ClientID       primitive.ObjectID `bson:"clientId" json:"clientId"`
	Name           string             `bson:"name" json:"name"` // e.g., "Day 1: Upper Body"
	Week           int                `bson:"week,omitempty" json:"week,omitempty"`
	DayOfWeek      *int               `bson:"dayOfWeek,omitempty" json:"dayOfWeek,omitempty"` // 1 (Mon) - 7 (Sun)
	Notes          string             `bson:"notes,omitempty" json:"notes,omitempty"`
	Sequence       int                `bson:"sequence" json:"sequence"` // index into the instance's planned workouts
	Exercises      []PlannedExercise  `bson:"exercises" json:"exercises"`
	CreatedAt      time.Time          `bson:"createdAt" json:"createdAt"`
	UpdatedAt      time.Time          `bson:"updatedAt" json:"updatedAt"`
}
