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

type PerformanceLogRepository struct {
	mu   sync.RWMutex
	byID map[primitive.ObjectID]*domain.PerformanceLog
}

func NewPerformanceLogRepository() *PerformanceLogRepository {
	return &PerformanceLogRepository{byID: make(map[primitive.ObjectID]*domain.PerformanceLog)}
}

var _ repository.PerformanceLogRepository = (*PerformanceLogRepository)(nil)

func (r *PerformanceLogRepository) Create(ctx context.Context, log *domain.PerformanceLog) (primitive.ObjectID, error) {
	if log.InstanceID == primitive.NilObjectID || log.RecipientID == primitive.NilObjectID {
		return primitive.NilObjectID, errors.New("performance log requires instanceId and recipientId")
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	log.ID = primitive.NewObjectID()
	now := time.Now().UTC()
	log.CreatedAt = now
	log.UpdatedAt = now
	r.byID[log.ID] = clone(log)
	return log.ID, nil
}

func (r *PerformanceLogRepository) GetByID(ctx context.Context, id primitive.ObjectID) (*domain.PerformanceLog, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	log, ok := r.byID[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return clone(log), nil
}

func (r *PerformanceLogRepository) Update(ctx context.Context, log *domain.PerformanceLog) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.byID[log.ID]; !ok {
		return repository.ErrNotFound
	}
	log.UpdatedAt = time.Now().UTC()
	r.byID[log.ID] = clone(log)
	return nil
}

func (r *PerformanceLogRepository) ListCompleted(ctx context.Context, recipientID, instanceID primitive.ObjectID) ([]domain.PerformanceLog, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []domain.PerformanceLog
	for _, l := range r.byID {
		if l.RecipientID == recipientID && l.InstanceID == instanceID && l.Status == domain.LogCompleted {
			out = append(out, *clone(l))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Date.Equal(out[j].Date) {
			return out[i].ID.Hex() < out[j].ID.Hex()
		}
		return out[i].Date.Before(out[j].Date)
	})
	return out, nil
}
