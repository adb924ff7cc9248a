package memory

import (
	"context"
	"errors"
	"sort"
	"strings"
	"sync"
	"time"

	"alcyxob/fitgen/internal/domain"
	"alcyxob/fitgen/internal/repository"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

type AlternativeRepository struct {
	mu     sync.RWMutex
	byName map[string][]*domain.ExerciseAlternative
}

func NewAlternativeRepository() *AlternativeRepository {
	return &AlternativeRepository{byName: make(map[string][]*domain.ExerciseAlternative)}
}

var _ repository.AlternativeRepository = (*AlternativeRepository)(nil)

func (r *AlternativeRepository) Create(ctx context.Context, alt *domain.ExerciseAlternative) (primitive.ObjectID, error) {
	if alt.ExerciseName == "" || alt.Name == "" {
		return primitive.NilObjectID, errors.New("alternative requires exerciseName and name")
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	key := strings.ToLower(strings.TrimSpace(alt.ExerciseName))
	for _, existing := range r.byName[key] {
		if existing.Name == alt.Name {
			return primitive.NilObjectID, repository.ErrConflict
		}
	}
	alt.ID = primitive.NewObjectID()
	alt.ExerciseName = key
	now := time.Now().UTC()
	alt.CreatedAt = now
	alt.UpdatedAt = now
	r.byName[key] = append(r.byName[key], clone(alt))
	return alt.ID, nil
}

func (r *AlternativeRepository) FindByExerciseName(ctx context.Context, exerciseName string) ([]domain.ExerciseAlternative, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	stored := r.byName[strings.ToLower(strings.TrimSpace(exerciseName))]
	out := make([]domain.ExerciseAlternative, 0, len(stored))
	for _, a := range stored {
		out = append(out, *clone(a))
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Similarity == out[j].Similarity {
			return out[i].Name < out[j].Name
		}
		return out[i].Similarity > out[j].Similarity
	})
	return out, nil
}
