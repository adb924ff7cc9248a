package domain

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Role distinguishes producers (trainers) from recipients (clients).
type Role string

const (
	RoleTrainer Role = "trainer"
	RoleClient  Role = "client"
)

// User is either a Trainer, who produces programs, or a Client, who receives them.
// Authentication lives outside this service; users here carry only what
// ownership and visibility checks need.
type User struct {
	ID             primitive.ObjectID  `bson:"_id,omitempty" json:"id"`
	Name           string              `bson:"name" json:"name"`
	Email          string              `bson:"email" json:"email"`
	Role           Role                `bson:"role" json:"role"`
	OrganizationID *primitive.ObjectID `bson:"organizationId,omitempty" json:"organizationId,omitempty"`
	CreatedAt      time.Time           `bson:"createdAt" json:"createdAt"`
	UpdatedAt      time.Time           `bson:"updatedAt" json:"updatedAt"`

	// --- Trainer-specific ---
	ClientIDs []primitive.ObjectID `bson:"clientIds,omitempty" json:"clientIds,omitempty"`

	// --- Client-specific ---
	TrainerID *primitive.ObjectID `bson:"trainerId,omitempty" json:"trainerId,omitempty"`
}

func (u *User) IsTrainer() bool {
	return u.Role == RoleTrainer
}

func (u *User) IsClient() bool {
	return u.Role == RoleClient
}

// Manages reports whether the trainer u is responsible for clientID.
func (u *User) Manages(clientID primitive.ObjectID) bool {
	if !u.IsTrainer() {
		return false
	}
	for _, id := range u.ClientIDs {
		if id == clientID {
			return true
		}
	}
	return false
}
