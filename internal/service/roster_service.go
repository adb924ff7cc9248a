package service

import (
	"context"
	"fmt"
	"strings"

	"alcyxob/fitgen/internal/domain"
	"alcyxob/fitgen/internal/logger"
	"alcyxob/fitgen/internal/repository"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

var (
	ErrClientNotRole         = fmt.Errorf("%w: user is not a client", ErrInvalidState)
	ErrClientAlreadyAssigned = fmt.Errorf("%w: client is already assigned to a trainer", ErrConflict)
)

// RosterService manages which recipients a producer may generate for.
type RosterService interface {
	RegisterUser(ctx context.Context, user *domain.User) (*domain.User, error)
	AddClientByEmail(ctx context.Context, trainerID primitive.ObjectID, clientEmail string) (*domain.User, error)
	GetManagedClients(ctx context.Context, trainerID primitive.ObjectID) ([]domain.User, error)
}

type rosterService struct {
	users repository.UserRepository
	log   *logger.Logger
}

func NewRosterService(users repository.UserRepository, log *logger.Logger) RosterService {
	return &rosterService{
		users: users,
		log:   log.With("service", "RosterService"),
	}
}

// RegisterUser stores a producer or recipient profile. Credentials are
// handled by the identity provider.
func (s *rosterService) RegisterUser(ctx context.Context, user *domain.User) (*domain.User, error) {
	user.Email = strings.ToLower(strings.TrimSpace(user.Email))
	if user.Email == "" || strings.TrimSpace(user.Name) == "" {
		return nil, fmt.Errorf("%w: name and email are required", ErrInvalidState)
	}
	if user.Role != domain.RoleTrainer && user.Role != domain.RoleClient {
		return nil, fmt.Errorf("%w: unknown role %q", ErrInvalidState, user.Role)
	}
	if _, err := s.users.Create(ctx, user); err != nil {
		return nil, mapRepoErr(err, ErrUserNotFound)
	}
	s.log.Info("User registered", "user_id", user.ID.Hex(), "role", user.Role)
	return user, nil
}

// AddClientByEmail finds a client by email and assigns them to the trainer.
func (s *rosterService) AddClientByEmail(ctx context.Context, trainerID primitive.ObjectID, clientEmail string) (*domain.User, error) {
	// 1. Validate Input
	clientEmail = strings.ToLower(strings.TrimSpace(clientEmail))
	if trainerID.IsZero() || clientEmail == "" {
		return nil, fmt.Errorf("%w: trainer ID and client email are required", ErrInvalidState)
	}

	// 2. Find the potential client user
	client, err := s.users.GetByEmail(ctx, clientEmail)
	if err != nil {
		return nil, mapRepoErr(err, ErrClientNotFound)
	}

	// 3. Verify the user is actually a client
	if !client.IsClient() {
		return nil, ErrClientNotRole
	}

	// 4. Already assigned to this trainer is fine, to another one is not
	if client.TrainerID != nil && !client.TrainerID.IsZero() {
		if *client.TrainerID == trainerID {
			return client, nil
		}
		return nil, ErrClientAlreadyAssigned
	}

	// 5. Assign client to trainer (update both records)
	if err := s.users.AddClientIDToTrainer(ctx, trainerID, client.ID); err != nil {
		return nil, mapRepoErr(err, ErrUserNotFound)
	}
	if err := s.users.SetTrainerForClient(ctx, client.ID, trainerID); err != nil {
		return nil, mapRepoErr(err, ErrClientNotFound)
	}

	client.TrainerID = &trainerID
	s.log.Info("Client added to roster", "trainer_id", trainerID.Hex(), "client_id", client.ID.Hex())
	return client, nil
}

// GetManagedClients retrieves the list of clients managed by the trainer.
func (s *rosterService) GetManagedClients(ctx context.Context, trainerID primitive.ObjectID) ([]domain.User, error) {
	if trainerID.IsZero() {
		return nil, fmt.Errorf("%w: trainer ID is required", ErrInvalidState)
	}
	clients, err := s.users.GetClientsByTrainerID(ctx, trainerID)
	if err != nil {
		return nil, mapRepoErr(err, ErrUserNotFound)
	}
	return clients, nil
}
