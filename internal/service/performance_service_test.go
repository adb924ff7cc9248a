package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"alcyxob/fitgen/internal/domain"
)

func TestRecompute(t *testing.T) {
	l := &domain.PerformanceLog{Exercises: []domain.LoggedExercise{
		{Name: "Back Squat", Sets: []domain.LoggedSet{
			{SetNumber: 1, Reps: 5, Load: 40, RPE: 8},
			{SetNumber: 2, Reps: 5, Load: 40, RPE: 9},
		}},
		{Name: "Plank", Sets: []domain.LoggedSet{
			{SetNumber: 1, DurationSeconds: 60},
		}},
	}}
	Recompute(l)
	assert.Equal(t, 400.0, l.TotalVolume)
	assert.InDelta(t, 8.5, l.AverageRPE, 1e-9)
	assert.InDelta(t, 8.5, l.Exercises[0].AverageRPE, 1e-9)
	assert.Zero(t, l.Exercises[1].AverageRPE, "sets without RPE are not averaged")
}

func TestStartLogAndLogSet(t *testing.T) {
	ctx := context.Background()
	e := newTestEnv(t)
	trainer, client := e.trainerWithClient(t)
	inst := e.appliedInstance(t, trainer, client, time.Now().AddDate(0, 0, -3))

	draft, err := e.performanceSvc.StartLog(ctx, inst.ID, 0, client.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.LogDraft, draft.Status)
	require.Len(t, draft.Exercises, 2)
	assert.Equal(t, "sq", draft.Exercises[0].ExerciseID)
	assert.Equal(t, 5, draft.Exercises[0].TargetSets)
	assert.Equal(t, 100.0, draft.Exercises[0].TargetWeight)

	_, err = e.performanceSvc.LogSet(ctx, draft.ID, client.ID, 0, 1, SetData{Reps: 5, Load: 40, RPE: 8, Completed: true})
	require.NoError(t, err)
	l, err := e.performanceSvc.LogSet(ctx, draft.ID, client.ID, 0, 2, SetData{Reps: 5, Load: 40, RPE: 9, Completed: true})
	require.NoError(t, err)
	assert.Equal(t, 400.0, l.TotalVolume)
	assert.InDelta(t, 8.5, l.AverageRPE, 1e-9)

	// Logging the same set number again replaces it.
	l, err = e.performanceSvc.LogSet(ctx, draft.ID, client.ID, 0, 1, SetData{Reps: 6, Load: 40, RPE: 8, Completed: true})
	require.NoError(t, err)
	assert.Len(t, l.Exercises[0].Sets, 2)
	assert.Equal(t, 440.0, l.TotalVolume)

	tests := []struct {
		name     string
		actor    primitive.ObjectID
		exercise int
		set      int
		data     SetData
		want     error
	}{
		{"set zero", client.ID, 0, 0, SetData{Reps: 5}, ErrInvalidSet},
		{"rpe too high", client.ID, 0, 3, SetData{Reps: 5, RPE: 11}, ErrInvalidSet},
		{"negative load", client.ID, 0, 3, SetData{Reps: 5, Load: -1}, ErrInvalidSet},
		{"bad exercise", client.ID, 7, 1, SetData{Reps: 5}, ErrExerciseIndex},
		{"not the recipient", trainer.ID, 0, 3, SetData{Reps: 5}, ErrNotOwner},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := e.performanceSvc.LogSet(ctx, draft.ID, tt.actor, tt.exercise, tt.set, tt.data)
			assert.ErrorIs(t, err, tt.want)
		})
	}

	_, err = e.performanceSvc.LogSet(ctx, primitive.NewObjectID(), client.ID, 0, 1, SetData{})
	assert.ErrorIs(t, err, ErrLogNotFound)
}

func TestStartLog_Rejections(t *testing.T) {
	ctx := context.Background()
	e := newTestEnv(t)
	trainer, client := e.trainerWithClient(t)
	applied := e.appliedInstance(t, trainer, client, time.Now())
	pending := e.freshInstance(t, trainer, client)

	_, err := e.performanceSvc.StartLog(ctx, applied.ID, 0, trainer.ID)
	assert.ErrorIs(t, err, ErrNotOwner)
	_, err = e.performanceSvc.StartLog(ctx, applied.ID, 2, client.ID)
	assert.ErrorIs(t, err, ErrWorkoutIndex)
	_, err = e.performanceSvc.StartLog(ctx, pending.ID, 0, client.ID)
	assert.ErrorIs(t, err, ErrInvalidState)
	_, err = e.performanceSvc.StartLog(ctx, primitive.NewObjectID(), 0, client.ID)
	assert.ErrorIs(t, err, ErrInstanceNotFound)
}

func TestMarkComplete(t *testing.T) {
	ctx := context.Background()
	e := newTestEnv(t)
	trainer, client := e.trainerWithClient(t)
	inst := e.appliedInstance(t, trainer, client, time.Now().AddDate(0, 0, -7))

	t.Run("completes a draft", func(t *testing.T) {
		draft, err := e.performanceSvc.StartLog(ctx, inst.ID, 0, client.ID)
		require.NoError(t, err)
		_, err = e.performanceSvc.LogSet(ctx, draft.ID, client.ID, 1, 1, SetData{Reps: 5, Load: 60, RPE: 7, Completed: true})
		require.NoError(t, err)

		done, err := e.performanceSvc.MarkComplete(ctx, inst.ID, client.ID, 0, WorkoutData{
			LogID:               &draft.ID,
			PerceivedDifficulty: domain.DifficultyJustRight,
			Notes:               "felt fine",
		})
		require.NoError(t, err)
		assert.Equal(t, draft.ID, done.ID)
		assert.Equal(t, domain.LogCompleted, done.Status)
		assert.NotNil(t, done.CompletedAt)
		assert.Equal(t, 300.0, done.TotalVolume)
		assert.Equal(t, "felt fine", done.Notes)
	})

	t.Run("reconciles by name", func(t *testing.T) {
		date := time.Now().AddDate(0, 0, -1).UTC().Truncate(time.Millisecond)
		done, err := e.performanceSvc.MarkComplete(ctx, inst.ID, client.ID, 1, WorkoutData{
			Date: &date,
			Exercises: []domain.LoggedExercise{
				{Name: " pull-UP ", Sets: []domain.LoggedSet{{SetNumber: 1, Reps: 8, Load: 0, RPE: 8, Completed: true}}},
				{Name: "Face Pull", Sets: []domain.LoggedSet{{SetNumber: 1, Reps: 12, Load: 15, Completed: true}}},
			},
		})
		require.NoError(t, err)
		assert.False(t, done.ID.IsZero())
		assert.True(t, date.Equal(done.Date))
		assert.Equal(t, "pu", done.Exercises[0].ExerciseID)
		assert.Equal(t, 3, done.Exercises[0].TargetSets)
		assert.Empty(t, done.Exercises[1].ExerciseID, "unplanned exercises are kept as logged")
		assert.Equal(t, 180.0, done.TotalVolume)
	})

	t.Run("rejects a draft of another workout", func(t *testing.T) {
		draft, err := e.performanceSvc.StartLog(ctx, inst.ID, 0, client.ID)
		require.NoError(t, err)
		_, err = e.performanceSvc.MarkComplete(ctx, inst.ID, client.ID, 1, WorkoutData{LogID: &draft.ID})
		assert.ErrorIs(t, err, ErrInvalidState)
	})

	t.Run("rejects invalid sets", func(t *testing.T) {
		_, err := e.performanceSvc.MarkComplete(ctx, inst.ID, client.ID, 0, WorkoutData{
			Exercises: []domain.LoggedExercise{{Name: "Back Squat", Sets: []domain.LoggedSet{{SetNumber: 1, Reps: 5, RPE: 12}}}},
		})
		assert.ErrorIs(t, err, ErrInvalidSet)
	})

	logs, err := e.performanceSvc.ListCompleted(ctx, inst.ID, trainer.ID)
	require.NoError(t, err)
	require.Len(t, logs, 2, "drafts are not listed")
	for _, l := range logs {
		assert.Equal(t, domain.LogCompleted, l.Status)
	}

	got, err := e.performanceSvc.GetLog(ctx, logs[0].ID, trainer.ID)
	require.NoError(t, err)
	assert.Equal(t, logs[0].ID, got.ID)

	stranger, _ := e.trainerWithClient(t)
	_, err = e.performanceSvc.ListCompleted(ctx, inst.ID, stranger.ID)
	assert.ErrorIs(t, err, ErrNotOwner)
	_, err = e.performanceSvc.GetLog(ctx, logs[0].ID, stranger.ID)
	assert.ErrorIs(t, err, ErrNotOwner)
}
