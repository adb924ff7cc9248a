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

type InstanceRepository struct {
	mu   sync.RWMutex
	byID map[primitive.ObjectID]*domain.GeneratedInstance
}

func NewInstanceRepository() *InstanceRepository {
	return &InstanceRepository{byID: make(map[primitive.ObjectID]*domain.GeneratedInstance)}
}

var _ repository.InstanceRepository = (*InstanceRepository)(nil)

func (r *InstanceRepository) Create(ctx context.Context, inst *domain.GeneratedInstance) (primitive.ObjectID, error) {
	if inst.ProducerID == primitive.NilObjectID || inst.RecipientID == primitive.NilObjectID {
		return primitive.NilObjectID, errors.New("instance requires producerId and recipientId")
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	inst.ID = primitive.NewObjectID()
	now := time.Now().UTC()
	if inst.CreatedAt.IsZero() {
		inst.CreatedAt = now
	}
	inst.UpdatedAt = now
	if inst.Modifications == nil {
		inst.Modifications = []domain.Modification{}
	}
	r.byID[inst.ID] = clone(inst)
	return inst.ID, nil
}

func (r *InstanceRepository) GetByID(ctx context.Context, id primitive.ObjectID) (*domain.GeneratedInstance, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	inst, ok := r.byID[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return clone(inst), nil
}

func (r *InstanceRepository) Update(ctx context.Context, inst *domain.GeneratedInstance) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.byID[inst.ID]; !ok {
		return repository.ErrNotFound
	}
	inst.UpdatedAt = time.Now().UTC()
	r.byID[inst.ID] = clone(inst)
	return nil
}

func (r *InstanceRepository) ListByRecipient(ctx context.Context, recipientID primitive.ObjectID) ([]domain.GeneratedInstance, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []domain.GeneratedInstance
	for _, inst := range r.byID {
		if inst.RecipientID == recipientID {
			out = append(out, *clone(inst))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}
