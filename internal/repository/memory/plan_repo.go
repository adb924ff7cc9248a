package memory

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"alcyxob/fitgen/internal/domain"
	"alcyxob/fitgen/internal/repository"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

type TrainingPlanRepository struct {
	mu   sync.RWMutex
	byID map[primitive.ObjectID]*domain.TrainingPlan
}

func NewTrainingPlanRepository() *TrainingPlanRepository {
	return &TrainingPlanRepository{byID: make(map[primitive.ObjectID]*domain.TrainingPlan)}
}

var _ repository.TrainingPlanRepository = (*TrainingPlanRepository)(nil)

func (r *TrainingPlanRepository) Create(ctx context.Context, plan *domain.TrainingPlan) (primitive.ObjectID, error) {
	if plan.ClientID == primitive.NilObjectID || plan.TrainerID == primitive.NilObjectID || plan.Name == "" {
		return primitive.NilObjectID, errors.New("plan requires clientId, trainerId, and name")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	plan.ID = primitive.NewObjectID()
	now := time.Now().UTC()
	plan.CreatedAt = now
	plan.UpdatedAt = now
	r.byID[plan.ID] = clone(plan)
	return plan.ID, nil
}

func (r *TrainingPlanRepository) GetByID(ctx context.Context, id primitive.ObjectID) (*domain.TrainingPlan, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.byID[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return clone(p), nil
}

func (r *TrainingPlanRepository) DeactivateOtherPlansForClient(ctx context.Context, clientID, trainerID, excludePlanID primitive.ObjectID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	now := time.Now().UTC()
	for _, p := range r.byID {
		if p.ClientID == clientID && p.TrainerID == trainerID && p.IsActive && p.ID != excludePlanID {
			p.IsActive = false
			p.UpdatedAt = now
		}
	}
	return nil
}

func (r *TrainingPlanRepository) Delete(ctx context.Context, id primitive.ObjectID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.byID[id]; !ok {
		return repository.ErrNotFound
	}
	delete(r.byID, id)
	return nil
}

type WorkoutRepository struct {
	mu   sync.RWMutex
	byID map[primitive.ObjectID]*domain.Workout
}

func NewWorkoutRepository() *WorkoutRepository {
	return &WorkoutRepository{byID: make(map[primitive.ObjectID]*domain.Workout)}
}

var _ repository.WorkoutRepository = (*WorkoutRepository)(nil)

func (r *WorkoutRepository) Create(ctx context.Context, workout *domain.Workout) (primitive.ObjectID, error) {
	if workout.TrainingPlanID == primitive.NilObjectID || workout.Name == "" {
		return primitive.NilObjectID, errors.New("workout requires trainingPlanId and name")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	workout.ID = primitive.NewObjectID()
	now := time.Now().UTC()
	workout.CreatedAt = now
	workout.UpdatedAt = now
	r.byID[workout.ID] = clone(workout)
	return workout.ID, nil
}

func (r *WorkoutRepository) GetByPlanID(ctx context.Context, planID primitive.ObjectID) ([]domain.Workout, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []domain.Workout
	for _, w := range r.byID {
		if w.TrainingPlanID == planID {
			out = append(out, *clone(w))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Sequence < out[j].Sequence })
	return out, nil
}

func (r *WorkoutRepository) DeleteByPlanID(ctx context.Context, planID primitive.ObjectID) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var n int64
	for id, w := range r.byID {
		if w.TrainingPlanID == planID {
			delete(r.byID, id)
			n++
		}
	}
	return n, nil
}
