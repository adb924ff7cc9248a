// internal/domain/exercise.go
package domain

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// ExerciseAlternative is one entry of the substitution catalog: a candidate
// replacement for ExerciseName.
type ExerciseAlternative struct {
	ID           primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	ExerciseName string             `bson:"exerciseName" json:"exerciseName"` // stored lowercased
	Name         string             `bson:"name" json:"name"`
	MuscleGroup  string             `bson:"muscleGroup,omitempty" json:"muscleGroup,omitempty"` // e.g., "Chest", "Legs", "Back"
	Equipment    []string           `bson:"equipment" json:"equipment"`                         // empty means bodyweight
	Similarity   float64            `bson:"similarity" json:"similarity"`                       // 0..1, precomputed
	Notes        string             `bson:"notes,omitempty" json:"notes,omitempty"`             // substitution cues for the client

	CreatedAt time.Time `bson:"createdAt" json:"createdAt"`
	UpdatedAt time.Time `bson:"updatedAt" json:"updatedAt"`
}
