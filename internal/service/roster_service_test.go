package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"alcyxob/fitgen/internal/domain"
)

func TestRegisterUser(t *testing.T) {
	ctx := context.Background()
	e := newTestEnv(t)

	u, err := e.rosterSvc.RegisterUser(ctx, &domain.User{Name: "Ann", Email: "  Ann@Example.com ", Role: domain.RoleClient})
	require.NoError(t, err)
	assert.Equal(t, "ann@example.com", u.Email)
	assert.False(t, u.ID.IsZero())

	_, err = e.rosterSvc.RegisterUser(ctx, &domain.User{Name: "Ann 2", Email: "ann@example.com", Role: domain.RoleClient})
	assert.ErrorIs(t, err, ErrConflict)

	tests := []struct {
		name string
		user domain.User
	}{
		{"missing name", domain.User{Email: "x@example.com", Role: domain.RoleClient}},
		{"missing email", domain.User{Name: "X", Role: domain.RoleClient}},
		{"unknown role", domain.User{Name: "X", Email: "x@example.com", Role: "admin"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			u := tt.user
			_, err := e.rosterSvc.RegisterUser(ctx, &u)
			assert.ErrorIs(t, err, ErrInvalidState)
		})
	}
}

func TestAddClientByEmail(t *testing.T) {
	ctx := context.Background()
	e := newTestEnv(t)
	trainer, client := e.trainerWithClient(t)

	again, err := e.rosterSvc.AddClientByEmail(ctx, trainer.ID, client.Email)
	require.NoError(t, err, "re-adding an own client is a no-op")
	assert.Equal(t, client.ID, again.ID)

	other, _ := e.trainerWithClient(t)
	_, err = e.rosterSvc.AddClientByEmail(ctx, other.ID, client.Email)
	assert.ErrorIs(t, err, ErrClientAlreadyAssigned)

	_, err = e.rosterSvc.AddClientByEmail(ctx, trainer.ID, other.Email)
	assert.ErrorIs(t, err, ErrClientNotRole)

	_, err = e.rosterSvc.AddClientByEmail(ctx, trainer.ID, "nobody@example.com")
	assert.ErrorIs(t, err, ErrClientNotFound)

	clients, err := e.rosterSvc.GetManagedClients(ctx, trainer.ID)
	require.NoError(t, err)
	require.Len(t, clients, 1)
	assert.Equal(t, client.ID, clients[0].ID)
}

func TestFindSubstitute(t *testing.T) {
	ctx := context.Background()
	e := newTestEnv(t)
	seedAlternatives(t, e)

	res, err := e.substitutionSvc.FindSubstitute(ctx, "Bench Press", SubstitutionCriteria{})
	require.NoError(t, err)
	assert.Equal(t, "Dumbbell Bench Press", res.Best.Name)
	require.Len(t, res.Alternatives, 1)
	assert.Equal(t, "Push-up", res.Alternatives[0].Name)

	res, err = e.substitutionSvc.FindSubstitute(ctx, "bench press", SubstitutionCriteria{AvailableEquipment: []string{}})
	require.NoError(t, err)
	assert.Equal(t, "Push-up", res.Best.Name, "bodyweight alternatives need no equipment")

	_, err = e.substitutionSvc.FindSubstitute(ctx, "Bench Press", SubstitutionCriteria{AvailableEquipment: []string{}, MinSimilarity: 0.75})
	assert.ErrorIs(t, err, ErrNoSubstitute)

	_, err = e.substitutionSvc.AddAlternative(ctx, &domain.ExerciseAlternative{ExerciseName: "Row", Name: "Band Row", Similarity: 1.5})
	assert.ErrorIs(t, err, ErrInvalidState)
}
