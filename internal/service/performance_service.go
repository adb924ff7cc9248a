package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"alcyxob/fitgen/internal/domain"
	"alcyxob/fitgen/internal/logger"
	"alcyxob/fitgen/internal/repository"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// SetData is one set as reported by the recipient.
type SetData struct {
	Reps            int     `json:"reps"`
	Load            float64 `json:"load"`
	DurationSeconds int     `json:"durationSeconds"`
	RPE             float64 `json:"rpe"`
	Completed       bool    `json:"completed"`
}

// WorkoutData completes a session. When LogID names a draft, that draft is
// completed; Exercises, if given, replace the draft's exercises.
type WorkoutData struct {
	LogID               *primitive.ObjectID        `json:"logId,omitempty"`
	Date                *time.Time                 `json:"date,omitempty"`
	Exercises           []domain.LoggedExercise    `json:"exercises"`
	PerceivedDifficulty domain.PerceivedDifficulty `json:"perceivedDifficulty,omitempty"`
	DurationMinutes     int                        `json:"durationMinutes,omitempty"`
	Notes               string                     `json:"notes,omitempty"`
}

type PerformanceService interface {
	StartLog(ctx context.Context, instanceID primitive.ObjectID, workoutIndex int, actorID primitive.ObjectID) (*domain.PerformanceLog, error)
	LogSet(ctx context.Context, logID, actorID primitive.ObjectID, exerciseIndex, setNumber int, data SetData) (*domain.PerformanceLog, error)
	MarkComplete(ctx context.Context, instanceID, actorID primitive.ObjectID, workoutIndex int, data WorkoutData) (*domain.PerformanceLog, error)
	GetLog(ctx context.Context, logID, actorID primitive.ObjectID) (*domain.PerformanceLog, error)
	ListCompleted(ctx context.Context, instanceID, actorID primitive.ObjectID) ([]domain.PerformanceLog, error)
}

type performanceService struct {
	logs      repository.PerformanceLogRepository
	instances repository.InstanceRepository
	log       *logger.Logger
	now       func() time.Time
}

func NewPerformanceService(logs repository.PerformanceLogRepository, instances repository.InstanceRepository, log *logger.Logger) PerformanceService {
	return &performanceService{
		logs:      logs,
		instances: instances,
		log:       log.With("service", "PerformanceService"),
		now:       time.Now,
	}
}

// Recompute refreshes every derived field of l from its sets.
func Recompute(l *domain.PerformanceLog) {
	var volume, rpeSum float64
	var rpeCount int
	for i := range l.Exercises {
		ex := &l.Exercises[i]
		var exSum float64
		var exCount int
		for _, set := range ex.Sets {
			volume += float64(set.Reps) * set.Load
			if set.RPE > 0 {
				exSum += set.RPE
				exCount++
			}
		}
		ex.AverageRPE = 0
		if exCount > 0 {
			ex.AverageRPE = exSum / float64(exCount)
		}
		rpeSum += exSum
		rpeCount += exCount
	}
	l.TotalVolume = volume
	l.AverageRPE = 0
	if rpeCount > 0 {
		l.AverageRPE = rpeSum / float64(rpeCount)
	}
}

// loggableInstance returns the instance if the recipient may log against it.
func (s *performanceService) loggableInstance(ctx context.Context, instanceID, actorID primitive.ObjectID) (*domain.GeneratedInstance, error) {
	inst, err := s.instances.GetByID(ctx, instanceID)
	if err != nil {
		return nil, mapRepoErr(err, ErrInstanceNotFound)
	}
	if inst.RecipientID != actorID {
		return nil, ErrNotOwner
	}
	if inst.Status != domain.InstanceApplied && inst.Status != domain.InstanceApproved {
		return nil, fmt.Errorf("%w: cannot log against a %s instance", ErrInvalidState, inst.Status)
	}
	return inst, nil
}

func plannedWorkout(inst *domain.GeneratedInstance, workoutIndex int) (*domain.PlanWorkout, error) {
	workouts := inst.Content.AllWorkouts()
	if workoutIndex < 0 || workoutIndex >= len(workouts) {
		return nil, ErrWorkoutIndex
	}
	return &workouts[workoutIndex], nil
}

// StartLog opens a draft seeded with the planned exercises of one workout.
func (s *performanceService) StartLog(ctx context.Context, instanceID primitive.ObjectID, workoutIndex int, actorID primitive.ObjectID) (*domain.PerformanceLog, error) {
	inst, err := s.loggableInstance(ctx, instanceID, actorID)
	if err != nil {
		return nil, err
	}
	w, err := plannedWorkout(inst, workoutIndex)
	if err != nil {
		return nil, err
	}

	now := s.now().UTC()
	l := &domain.PerformanceLog{
		InstanceID:   instanceID,
		RecipientID:  actorID,
		WorkoutIndex: workoutIndex,
		Date:         now,
		Status:       domain.LogDraft,
		Exercises:    make([]domain.LoggedExercise, 0, len(w.Exercises)),
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	for _, ex := range w.Exercises {
		l.Exercises = append(l.Exercises, domain.LoggedExercise{
			ExerciseID:   ex.ID,
			Name:         ex.Name,
			TargetSets:   ex.Sets,
			TargetReps:   ex.Reps,
			TargetWeight: ex.Weight,
			Sets:         []domain.LoggedSet{},
		})
	}
	if _, err := s.logs.Create(ctx, l); err != nil {
		return nil, mapRepoErr(err, ErrLogNotFound)
	}
	s.log.Debug("Performance log started", "log_id", l.ID.Hex(), "instance_id", instanceID.Hex(), "workout_index", workoutIndex)
	return l, nil
}

func validateSet(setNumber int, data SetData) error {
	switch {
	case setNumber < 1:
		return fmt.Errorf("%w: set number must be at least 1", ErrInvalidSet)
	case data.Reps < 0 || data.Load < 0 || data.DurationSeconds < 0:
		return fmt.Errorf("%w: reps, load and duration must not be negative", ErrInvalidSet)
	case data.RPE != 0 && (data.RPE < 1 || data.RPE > 10):
		return fmt.Errorf("%w: rpe must be within 1-10", ErrInvalidSet)
	}
	return nil
}

// LogSet upserts one set by number and recomputes the log's derived fields.
func (s *performanceService) LogSet(ctx context.Context, logID, actorID primitive.ObjectID, exerciseIndex, setNumber int, data SetData) (*domain.PerformanceLog, error) {
	if err := validateSet(setNumber, data); err != nil {
		return nil, err
	}
	l, err := s.logs.GetByID(ctx, logID)
	if err != nil {
		return nil, mapRepoErr(err, ErrLogNotFound)
	}
	if l.RecipientID != actorID {
		return nil, ErrNotOwner
	}
	if exerciseIndex < 0 || exerciseIndex >= len(l.Exercises) {
		return nil, ErrExerciseIndex
	}

	set := domain.LoggedSet{
		SetNumber:       setNumber,
		Reps:            data.Reps,
		Load:            data.Load,
		DurationSeconds: data.DurationSeconds,
		RPE:             data.RPE,
		Completed:       data.Completed,
	}
	ex := &l.Exercises[exerciseIndex]
	replaced := false
	for i := range ex.Sets {
		if ex.Sets[i].SetNumber == setNumber {
			ex.Sets[i] = set
			replaced = true
			break
		}
	}
	if !replaced {
		ex.Sets = append(ex.Sets, set)
	}
	Recompute(l)
	l.UpdatedAt = s.now().UTC()
	if err := s.logs.Update(ctx, l); err != nil {
		return nil, mapRepoErr(err, ErrLogNotFound)
	}
	return l, nil
}

// MarkComplete persists a completed session, reconciling each logged exercise
// with its planned counterpart by id and then by name.
func (s *performanceService) MarkComplete(ctx context.Context, instanceID, actorID primitive.ObjectID, workoutIndex int, data WorkoutData) (*domain.PerformanceLog, error) {
	// 1. Ownership, state and workout index
	inst, err := s.loggableInstance(ctx, instanceID, actorID)
	if err != nil {
		return nil, err
	}
	w, err := plannedWorkout(inst, workoutIndex)
	if err != nil {
		return nil, err
	}

	// 2. Start from the draft, if any
	now := s.now().UTC()
	l := &domain.PerformanceLog{
		InstanceID:   instanceID,
		RecipientID:  actorID,
		WorkoutIndex: workoutIndex,
		Date:         now,
		CreatedAt:    now,
	}
	if data.LogID != nil {
		draft, err := s.logs.GetByID(ctx, *data.LogID)
		if err != nil {
			return nil, mapRepoErr(err, ErrLogNotFound)
		}
		if draft.RecipientID != actorID {
			return nil, ErrNotOwner
		}
		if draft.InstanceID != instanceID || draft.WorkoutIndex != workoutIndex {
			return nil, fmt.Errorf("%w: log belongs to a different workout", ErrInvalidState)
		}
		l = draft
	}
	if len(data.Exercises) > 0 {
		l.Exercises = data.Exercises
	}
	if data.Date != nil {
		l.Date = data.Date.UTC()
	}
	if data.PerceivedDifficulty != "" {
		l.PerceivedDifficulty = data.PerceivedDifficulty
	}
	if data.DurationMinutes > 0 {
		l.DurationMinutes = data.DurationMinutes
	}
	if data.Notes != "" {
		l.Notes = data.Notes
	}

	// 3. Validate sets and reconcile targets
	for i := range l.Exercises {
		ex := &l.Exercises[i]
		for _, set := range ex.Sets {
			if err := validateSet(set.SetNumber, SetData{Reps: set.Reps, Load: set.Load, DurationSeconds: set.DurationSeconds, RPE: set.RPE}); err != nil {
				return nil, err
			}
		}
		if planned := matchPlanned(w.Exercises, ex); planned != nil {
			if ex.ExerciseID == "" {
				ex.ExerciseID = planned.ID
			}
			ex.TargetSets = planned.Sets
			ex.TargetReps = planned.Reps
			ex.TargetWeight = planned.Weight
		}
	}

	// 4. Derive and persist
	Recompute(l)
	l.Status = domain.LogCompleted
	l.CompletedAt = &now
	l.UpdatedAt = now
	if l.ID.IsZero() {
		_, err = s.logs.Create(ctx, l)
	} else {
		err = s.logs.Update(ctx, l)
	}
	if err != nil {
		return nil, mapRepoErr(err, ErrLogNotFound)
	}
	s.log.Info("Workout completed",
		"log_id", l.ID.Hex(), "instance_id", instanceID.Hex(), "workout_index", workoutIndex,
		"total_volume", l.TotalVolume, "average_rpe", l.AverageRPE)
	return l, nil
}

func matchPlanned(planned []domain.PlannedExercise, ex *domain.LoggedExercise) *domain.PlannedExercise {
	if ex.ExerciseID != "" {
		for i := range planned {
			if planned[i].ID == ex.ExerciseID {
				return &planned[i]
			}
		}
	}
	for i := range planned {
		if strings.EqualFold(strings.TrimSpace(planned[i].Name), strings.TrimSpace(ex.Name)) {
			return &planned[i]
		}
	}
	return nil
}

// authorizeInstance lets the recipient and the producer read an instance's logs.
func (s *performanceService) authorizeInstance(ctx context.Context, instanceID, actorID primitive.ObjectID) (*domain.GeneratedInstance, error) {
	inst, err := s.instances.GetByID(ctx, instanceID)
	if err != nil {
		return nil, mapRepoErr(err, ErrInstanceNotFound)
	}
	if inst.RecipientID != actorID && inst.ProducerID != actorID {
		return nil, ErrNotOwner
	}
	return inst, nil
}

func (s *performanceService) GetLog(ctx context.Context, logID, actorID primitive.ObjectID) (*domain.PerformanceLog, error) {
	l, err := s.logs.GetByID(ctx, logID)
	if err != nil {
		return nil, mapRepoErr(err, ErrLogNotFound)
	}
	if l.RecipientID == actorID {
		return l, nil
	}
	if _, err := s.authorizeInstance(ctx, l.InstanceID, actorID); err != nil {
		return nil, err
	}
	return l, nil
}

func (s *performanceService) ListCompleted(ctx context.Context, instanceID, actorID primitive.ObjectID) ([]domain.PerformanceLog, error) {
	inst, err := s.authorizeInstance(ctx, instanceID, actorID)
	if err != nil {
		return nil, err
	}
	return s.logs.ListCompleted(ctx, inst.RecipientID, instanceID)
}
