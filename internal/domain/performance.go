package domain

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

type LogStatus string

const (
	LogDraft     LogStatus = "draft"
	LogCompleted LogStatus = "completed"
)

type PerceivedDifficulty string

const (
	DifficultyTooEasy   PerceivedDifficulty = "too_easy"
	DifficultyJustRight PerceivedDifficulty = "just_right"
	DifficultyTooHard   PerceivedDifficulty = "too_hard"
)

// LoggedSet is one performed set. Load is zero for duration-only holds.
type LoggedSet struct {
	SetNumber       int     `bson:"setNumber" json:"setNumber"`
	Reps            int     `bson:"reps" json:"reps"`
	Load            float64 `bson:"load" json:"load"`
	DurationSeconds int     `bson:"durationSeconds,omitempty" json:"durationSeconds,omitempty"`
	RPE             float64 `bson:"rpe,omitempty" json:"rpe,omitempty"`
	Completed       bool    `bson:"completed" json:"completed"`
}

type LoggedExercise struct {
	ExerciseID   string      `bson:"exerciseId,omitempty" json:"exerciseId,omitempty"`
	Name         string      `bson:"name" json:"name"`
	TargetSets   int         `bson:"targetSets,omitempty" json:"targetSets,omitempty"`
	TargetReps   int         `bson:"targetReps,omitempty" json:"targetReps,omitempty"`
	TargetWeight float64     `bson:"targetWeight,omitempty" json:"targetWeight,omitempty"`
	Sets         []LoggedSet `bson:"sets" json:"sets"`
	AverageRPE   float64     `bson:"averageRpe" json:"averageRpe"`
}

// PerformanceLog is one real-world session of an instance's planned workout.
// TotalVolume and AverageRPE are derived and recomputed on every mutation.
type PerformanceLog struct {
	ID                  primitive.ObjectID  `bson:"_id,omitempty" json:"id"`
	InstanceID          primitive.ObjectID  `bson:"instanceId" json:"instanceId"`
	RecipientID         primitive.ObjectID  `bson:"recipientId" json:"recipientId"`
	WorkoutIndex        int                 `bson:"workoutIndex" json:"workoutIndex"`
	Date                time.Time           `bson:"date" json:"date"`
	Status              LogStatus           `bson:"status" json:"status"`
	Exercises           []LoggedExercise    `bson:"exercises" json:"exercises"`
	TotalVolume         float64             `bson:"totalVolume" json:"totalVolume"`
	AverageRPE          float64             `bson:"averageRpe" json:"averageRpe"`
	PerceivedDifficulty PerceivedDifficulty `bson:"perceivedDifficulty,omitempty" json:"perceivedDifficulty,omitempty"`
	DurationMinutes     int                 `bson:"durationMinutes,omitempty" json:"durationMinutes,omitempty"`
	Notes               string              `bson:"notes,omitempty" json:"notes,omitempty"`
	CompletedAt         *time.Time          `bson:"completedAt,omitempty" json:"completedAt,omitempty"`
	CreatedAt           time.Time           `bson:"createdAt" json:"createdAt"`
	UpdatedAt           time.Time           `bson:"updatedAt" json:"updatedAt"`
}
