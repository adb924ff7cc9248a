package memory

import (
	"context"
	"errors"
	"sync"
	"time"

	"alcyxob/fitgen/internal/domain"
	"alcyxob/fitgen/internal/repository"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

type UserRepository struct {
	mu   sync.RWMutex
	byID map[primitive.ObjectID]*domain.User
}

func NewUserRepository() *UserRepository {
	return &UserRepository{byID: make(map[primitive.ObjectID]*domain.User)}
}

var _ repository.UserRepository = (*UserRepository)(nil)

func (r *UserRepository) Create(ctx context.Context, user *domain.User) (primitive.ObjectID, error) {
	if user.Email == "" || user.Role == "" {
		return primitive.NilObjectID, errors.New("user email and role are required")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, u := range r.byID {
		if u.Email == user.Email {
			return primitive.NilObjectID, repository.ErrConflict
		}
	}
	user.ID = primitive.NewObjectID()
	now := time.Now().UTC()
	user.CreatedAt = now
	user.UpdatedAt = now
	r.byID[user.ID] = clone(user)
	return user.ID, nil
}

func (r *UserRepository) GetByID(ctx context.Context, id primitive.ObjectID) (*domain.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	u, ok := r.byID[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return clone(u), nil
}

func (r *UserRepository) GetByEmail(ctx context.Context, email string) (*domain.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, u := range r.byID {
		if u.Email == email {
			return clone(u), nil
		}
	}
	return nil, repository.ErrNotFound
}

func (r *UserRepository) GetClientsByTrainerID(ctx context.Context, trainerID primitive.ObjectID) ([]domain.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	trainer, ok := r.byID[trainerID]
	if !ok || !trainer.IsTrainer() {
		return nil, repository.ErrNotFound
	}
	clients := []domain.User{}
	for _, id := range trainer.ClientIDs {
		if u, ok := r.byID[id]; ok {
			clients = append(clients, *clone(u))
		}
	}
	return clients, nil
}

func (r *UserRepository) AddClientIDToTrainer(ctx context.Context, trainerID, clientID primitive.ObjectID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.byID[trainerID]
	if !ok || !u.IsTrainer() {
		return repository.ErrNotFound
	}
	for _, id := range u.ClientIDs {
		if id == clientID {
			return nil
		}
	}
	u.ClientIDs = append(u.ClientIDs, clientID)
	u.UpdatedAt = time.Now().UTC()
	return nil
}

func (r *UserRepository) SetTrainerForClient(ctx context.Context, clientID, trainerID primitive.ObjectID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.byID[clientID]
	if !ok || !u.IsClient() {
		return repository.ErrNotFound
	}
	id := trainerID
	u.TrainerID = &id
	u.UpdatedAt = time.Now().UTC()
	return nil
}
