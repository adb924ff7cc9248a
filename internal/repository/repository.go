package repository

import (
	"context"
	"time"

	"alcyxob/fitgen/internal/domain"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

var (
	ErrNotFound     = RepositoryError("not found")
	ErrConflict     = RepositoryError("duplicate key")
	ErrUpdateFailed = RepositoryError("update failed")
)

// RepositoryError helps distinguish repository errors
type RepositoryError string

func (e RepositoryError) Error() string {
	return string(e)
}

// SimilarQuery selects similarity-search candidates: active, public,
// latest-version templates at ExperienceLevel sharing at least one goal.
type SimilarQuery struct {
	ExperienceLevel string
	Goals           []string
}

// TemplateRepository stores template versions. Implementations must keep
// exactly one IsLatestVersion record per chain visible to readers at all times.
type TemplateRepository interface {
	// Create inserts a first version. RootID defaults to the new ID.
	Create(ctx context.Context, t *domain.Template) (primitive.ObjectID, error)
	GetByID(ctx context.Context, id primitive.ObjectID) (*domain.Template, error)
	// FindLatestByInputFingerprint returns active latest versions with that input fingerprint.
	FindLatestByInputFingerprint(ctx context.Context, fp string) ([]domain.Template, error)
	FindSimilarCandidates(ctx context.Context, q SimilarQuery) ([]domain.Template, error)
	// ListChain returns every version sharing rootID, newest version first.
	ListChain(ctx context.Context, rootID primitive.ObjectID) ([]domain.Template, error)
	// InsertVersion inserts t as the chain's latest and clears the flag on every sibling in one atomic step.
	InsertVersion(ctx context.Context, t *domain.Template) (primitive.ObjectID, error)
	// SetLatest moves the chain's latest pointer to id in one atomic step.
	SetLatest(ctx context.Context, rootID, id primitive.ObjectID) error
	Archive(ctx context.Context, ids []primitive.ObjectID, reason string, at time.Time) (int64, error)
	ListActiveLatest(ctx context.Context) ([]domain.Template, error)
	// IncrementUsage atomically bumps the usage counter and folds consumerID into the distinct set.
	IncrementUsage(ctx context.Context, id, consumerID primitive.ObjectID, at time.Time) (*domain.Template, error)
	// AddRating atomically folds score into the running average.
	AddRating(ctx context.Context, id primitive.ObjectID, score float64, at time.Time) (*domain.Template, error)
}

type InstanceRepository interface {
	Create(ctx context.Context, inst *domain.GeneratedInstance) (primitive.ObjectID, error)
	GetByID(ctx context.Context, id primitive.ObjectID) (*domain.GeneratedInstance, error)
	Update(ctx context.Context, inst *domain.GeneratedInstance) error
	ListByRecipient(ctx context.Context, recipientID primitive.ObjectID) ([]domain.GeneratedInstance, error)
}

type PerformanceLogRepository interface {
	Create(ctx context.Context, log *domain.PerformanceLog) (primitive.ObjectID, error)
	GetByID(ctx context.Context, id primitive.ObjectID) (*domain.PerformanceLog, error)
	Update(ctx context.Context, log *domain.PerformanceLog) error
	// ListCompleted returns completed logs of one instance, oldest first.
	ListCompleted(ctx context.Context, recipientID, instanceID primitive.ObjectID) ([]domain.PerformanceLog, error)
}

// AlternativeRepository reads the exercise substitution catalog.
type AlternativeRepository interface {
	Create(ctx context.Context, alt *domain.ExerciseAlternative) (primitive.ObjectID, error)
	// FindByExerciseName returns candidates for exerciseName (case-insensitive), highest similarity first.
	FindByExerciseName(ctx context.Context, exerciseName string) ([]domain.ExerciseAlternative, error)
}

// UserRepository defines the interface for interacting with user data.
type UserRepository interface {
	Create(ctx context.Context, user *domain.User) (primitive.ObjectID, error)
	GetByID(ctx context.Context, id primitive.ObjectID) (*domain.User, error)
	GetByEmail(ctx context.Context, email string) (*domain.User, error)
	GetClientsByTrainerID(ctx context.Context, trainerID primitive.ObjectID) ([]domain.User, error)
	AddClientIDToTrainer(ctx context.Context, trainerID, clientID primitive.ObjectID) error
	SetTrainerForClient(ctx context.Context, clientID, trainerID primitive.ObjectID) error
}

type TrainingPlanRepository interface {
	Create(ctx context.Context, plan *domain.TrainingPlan) (primitive.ObjectID, error)
	GetByID(ctx context.Context, id primitive.ObjectID) (*domain.TrainingPlan, error)
	DeactivateOtherPlansForClient(ctx context.Context, clientID, trainerID, excludePlanID primitive.ObjectID) error
	Delete(ctx context.Context, id primitive.ObjectID) error
}

type WorkoutRepository interface {
	Create(ctx context.Context, workout *domain.Workout) (primitive.ObjectID, error)
	GetByPlanID(ctx context.Context, planID primitive.ObjectID) ([]domain.Workout, error)
	DeleteByPlanID(ctx context.Context, planID primitive.ObjectID) (int64, error)
}
