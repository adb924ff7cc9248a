package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"time"

	"alcyxob/fitgen/internal/config"
	"alcyxob/fitgen/internal/domain"
	"alcyxob/fitgen/internal/lock"
	"alcyxob/fitgen/internal/logger"
	"alcyxob/fitgen/internal/repository"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

const difficultyStep = 0.10

// Difficulty directions.
const (
	DirectionIncrease = "increase"
	DirectionDecrease = "decrease"
)

type ApplyTemplateInput struct {
	TemplateID     primitive.ObjectID
	RecipientID    primitive.ObjectID
	ProducerID     primitive.ObjectID
	Customizations domain.Customizations
	Request        *domain.GenerationRequest // recorded as InputData; derived from the template when nil
	RequestID      string
}

type ApplyResult struct {
	Instance *domain.GeneratedInstance `json:"instance"`
	Warnings []string                  `json:"warnings,omitempty"`
}

// FieldEdit sets the value at Path. Value is the JSON encoding of the new value.
type FieldEdit struct {
	Path   string          `json:"path" binding:"required"`
	Value  json.RawMessage `json:"value" binding:"required"`
	Reason string          `json:"reason"`
}

type SwapRequest struct {
	WorkoutIndex       int      `json:"workoutIndex"`
	ExerciseIndex      int      `json:"exerciseIndex"`
	Reason             string   `json:"reason"`
	AvailableEquipment []string `json:"availableEquipment"`
	MinSimilarity      float64  `json:"minSimilarity"`
}

type SwapResult struct {
	Instance     *domain.GeneratedInstance    `json:"instance"`
	Chosen       domain.ExerciseAlternative   `json:"chosen"`
	Alternatives []domain.ExerciseAlternative `json:"alternatives,omitempty"`
}

type SwappedExercise struct {
	WorkoutIndex  int    `json:"workoutIndex"`
	ExerciseIndex int    `json:"exerciseIndex"`
	From          string `json:"from"`
	To            string `json:"to"`
}

type BulkSwapResult struct {
	Instance *domain.GeneratedInstance `json:"instance"`
	Swapped  []SwappedExercise         `json:"swapped"`
	// Unresolved names exercises that need a swap but have no compatible substitute.
	Unresolved []string `json:"unresolved,omitempty"`
}

// AppliedProgram is the concrete plan an applied instance produced.
type AppliedProgram struct {
	Plan     *domain.TrainingPlan `json:"plan"`
	Workouts []domain.Workout     `json:"workouts"`
}

type InstanceService interface {
	ApplyTemplate(ctx context.Context, in ApplyTemplateInput) (*ApplyResult, error)
	GetInstance(ctx context.Context, id, actorID primitive.ObjectID) (*domain.GeneratedInstance, error)
	ListForRecipient(ctx context.Context, recipientID, actorID primitive.ObjectID) ([]domain.GeneratedInstance, error)
	GetAppliedProgram(ctx context.Context, id, actorID primitive.ObjectID) (*AppliedProgram, error)

	Review(ctx context.Context, id, actorID primitive.ObjectID) (*domain.GeneratedInstance, error)
	Approve(ctx context.Context, id, actorID primitive.ObjectID) (*domain.GeneratedInstance, error)
	Reject(ctx context.Context, id, actorID primitive.ObjectID, reason string) (*domain.GeneratedInstance, error)
	Apply(ctx context.Context, id, actorID primitive.ObjectID, startDate *time.Time) (*domain.GeneratedInstance, error)
	Archive(ctx context.Context, id, actorID primitive.ObjectID, reason string) (*domain.GeneratedInstance, error)

	EditProgram(ctx context.Context, id, actorID primitive.ObjectID, edits []FieldEdit) (*domain.GeneratedInstance, error)
	SwapExercise(ctx context.Context, id, actorID primitive.ObjectID, req SwapRequest) (*SwapResult, error)
	BulkSwapByEquipment(ctx context.Context, id, actorID primitive.ObjectID, available []string, reason string) (*BulkSwapResult, error)
	AdjustDifficulty(ctx context.Context, id, actorID primitive.ObjectID, direction string) (*domain.GeneratedInstance, error)
	RevertEdit(ctx context.Context, id, actorID primitive.ObjectID, index int) (*domain.GeneratedInstance, error)
}

type instanceService struct {
	instances    repository.InstanceRepository
	templates    repository.TemplateRepository
	users        repository.UserRepository
	plans        repository.TrainingPlanRepository
	workouts     repository.WorkoutRepository
	templateSvc  TemplateService
	substitution SubstitutionService
	locker       lock.Locker
	lifecycle    *LifecycleMachine
	retention    config.RetentionConfig
	log          *logger.Logger
	now          func() time.Time
}

func NewInstanceService(
	instances repository.InstanceRepository,
	templates repository.TemplateRepository,
	users repository.UserRepository,
	plans repository.TrainingPlanRepository,
	workouts repository.WorkoutRepository,
	templateSvc TemplateService,
	substitution SubstitutionService,
	locker lock.Locker,
	retention config.RetentionConfig,
	log *logger.Logger,
) InstanceService {
	return &instanceService{
		instances:    instances,
		templates:    templates,
		users:        users,
		plans:        plans,
		workouts:     workouts,
		templateSvc:  templateSvc,
		substitution: substitution,
		locker:       locker,
		lifecycle:    NewLifecycleMachine(),
		retention:    retention,
		log:          log.With("service", "InstanceService"),
		now:          time.Now,
	}
}

// scheduledDeletion is when retention cleanup may remove an instance created at created.
func scheduledDeletion(created time.Time, days int) time.Time {
	return created.AddDate(0, 0, days)
}

// checkManaged verifies that recipientID is a client of producerID.
func checkManaged(ctx context.Context, users repository.UserRepository, producerID, recipientID primitive.ObjectID) (*domain.User, error) {
	client, err := users.GetByID(ctx, recipientID)
	if err != nil {
		return nil, mapRepoErr(err, ErrClientNotFound)
	}
	if client.TrainerID == nil || *client.TrainerID != producerID {
		return nil, ErrClientNotManaged
	}
	return client, nil
}

// ApplyTemplate materializes a template for one recipient.
func (s *instanceService) ApplyTemplate(ctx context.Context, in ApplyTemplateInput) (*ApplyResult, error) {
	// 1. Validate input
	if in.TemplateID.IsZero() || in.RecipientID.IsZero() || in.ProducerID.IsZero() {
		return nil, fmt.Errorf("%w: template, recipient and producer are required", ErrInvalidState)
	}

	// 2. Template must be active and visible to the producer
	t, err := s.templates.GetByID(ctx, in.TemplateID)
	if err != nil {
		return nil, mapRepoErr(err, ErrTemplateNotFound)
	}
	if !t.IsActive() {
		return nil, ErrTemplateArchived
	}
	producer, err := s.users.GetByID(ctx, in.ProducerID)
	if err != nil {
		return nil, mapRepoErr(err, ErrUserNotFound)
	}
	if !t.VisibleTo(producer.ID, producer.OrganizationID) {
		return nil, ErrTemplateNotVisible
	}

	// 3. Recipient must be managed by the producer
	if _, err := checkManaged(ctx, s.users, in.ProducerID, in.RecipientID); err != nil {
		return nil, err
	}

	// 4. Clone and customize
	content := t.Content.Clone()
	applied, err := applyCustomizations(content, t.Customization, in.Customizations)
	if err != nil {
		return nil, err
	}

	// 5. Persist the instance
	input := requestFromCharacteristics(t.Characteristics)
	if in.Request != nil {
		input = *in.Request
	}
	requestID := in.RequestID
	if requestID == "" {
		requestID = uuid.NewString()
	}
	now := s.now().UTC()
	templateID := t.ID
	inst := &domain.GeneratedInstance{
		ProducerID:          in.ProducerID,
		RecipientID:         in.RecipientID,
		TemplateID:          &templateID,
		RequestID:           requestID,
		InputData:           input,
		Content:             *content,
		Status:              domain.InstanceGenerated,
		Customizations:      applied,
		Modifications:       []domain.Modification{},
		Generation:          domain.GenerationMeta{FromTemplate: true},
		ScheduledDeletionAt: scheduledDeletion(now, s.retention.InstanceDays),
		CreatedAt:           now,
		UpdatedAt:           now,
	}
	if _, err := s.instances.Create(ctx, inst); err != nil {
		return nil, mapRepoErr(err, ErrInstanceNotFound)
	}

	// 6. Count the use once the instance exists
	result := &ApplyResult{Instance: inst}
	if _, err := s.templateSvc.RecordUsage(ctx, t.ID, in.ProducerID); err != nil {
		s.log.Warn("Failed to record template usage", "template_id", t.ID.Hex(), "instance_id", inst.ID.Hex(), "error", err)
		result.Warnings = append(result.Warnings, "template usage was not recorded: "+err.Error())
	}
	for _, skipped := range applied.Skipped {
		result.Warnings = append(result.Warnings, "customization not permitted by template: "+skipped)
	}
	s.log.Info("Template applied", "template_id", t.ID.Hex(), "instance_id", inst.ID.Hex(), "recipient_id", in.RecipientID.Hex())
	return result, nil
}

// applyCustomizations mutates content in place. Customizations the template
// does not permit are reported as skipped rather than failing the apply.
func applyCustomizations(content *domain.ProgramContent, opts domain.CustomizationOptions, c domain.Customizations) (domain.AppliedCustomizations, error) {
	var applied domain.AppliedCustomizations

	if c.DurationWeeks != nil {
		switch {
		case *c.DurationWeeks <= 0:
			return applied, fmt.Errorf("%w: duration must be positive", ErrInvalidFieldValue)
		case !opts.AllowDurationChange || content.WorkoutPlan == nil:
			applied.Skipped = append(applied.Skipped, "durationWeeks")
		default:
			content.WorkoutPlan.DurationWeeks = *c.DurationWeeks
			applied.DurationChanged = true
			applied.DurationWeeks = *c.DurationWeeks
		}
	}

	if c.AvailableEquipment != nil {
		if !opts.AllowEquipmentSubstitution || content.WorkoutPlan == nil {
			applied.Skipped = append(applied.Skipped, "availableEquipment")
		} else {
			available := normalizedSet(c.AvailableEquipment)
			for wi := range content.WorkoutPlan.Workouts {
				exercises := content.WorkoutPlan.Workouts[wi].Exercises
				for ei := range exercises {
					var kept []string
					for _, e := range exercises[ei].Equipment {
						if available[normalizeName(e)] {
							kept = append(kept, e)
						}
					}
					exercises[ei].Equipment = kept
				}
			}
			applied.EquipmentFiltered = true
			applied.AvailableEquipment = append([]string(nil), c.AvailableEquipment...)
		}
	}

	if len(c.MacroTargets) > 0 {
		if !opts.AllowMacroAdjustment || content.NutritionPlan == nil {
			applied.Skipped = append(applied.Skipped, "macroTargets")
		} else {
			if content.NutritionPlan.DailyTargets == nil {
				content.NutritionPlan.DailyTargets = domain.MacroTargets{}
			}
			for k, v := range c.MacroTargets {
				content.NutritionPlan.DailyTargets[k] = v
			}
			applied.MacrosAdjusted = true
			applied.MacroTargets = c.MacroTargets.Clone()
		}
	}
	return applied, nil
}

func requestFromCharacteristics(c domain.Characteristics) domain.GenerationRequest {
	return domain.GenerationRequest{
		Goals:           append([]string(nil), c.Goals...),
		ExperienceLevel: c.ExperienceLevel,
		DurationWeeks:   c.DurationWeeks,
		Equipment:       append([]string(nil), c.Equipment...),
		DietType:        c.DietType,
	}
}

func (s *instanceService) GetInstance(ctx context.Context, id, actorID primitive.ObjectID) (*domain.GeneratedInstance, error) {
	inst, err := s.instances.GetByID(ctx, id)
	if err != nil {
		return nil, mapRepoErr(err, ErrInstanceNotFound)
	}
	if inst.ProducerID != actorID && inst.RecipientID != actorID {
		return nil, ErrNotOwner
	}
	return inst, nil
}

func (s *instanceService) ListForRecipient(ctx context.Context, recipientID, actorID primitive.ObjectID) ([]domain.GeneratedInstance, error) {
	if actorID != recipientID {
		if _, err := checkManaged(ctx, s.users, actorID, recipientID); err != nil {
			return nil, err
		}
	}
	return s.instances.ListByRecipient(ctx, recipientID)
}

// transition loads an owned instance under its lock, validates the move to
// status and persists whatever apply changed.
func (s *instanceService) transition(
	ctx context.Context,
	id, actorID primitive.ObjectID,
	to domain.InstanceStatus,
	apply func(inst *domain.GeneratedInstance, now time.Time) error,
) (*domain.GeneratedInstance, error) {
	unlock, err := s.locker.Lock(ctx, lock.InstanceKey(id))
	if err != nil {
		return nil, err
	}
	defer unlock()

	inst, err := s.instances.GetByID(ctx, id)
	if err != nil {
		return nil, mapRepoErr(err, ErrInstanceNotFound)
	}
	if inst.ProducerID != actorID {
		return nil, ErrNotOwner
	}
	if err := s.lifecycle.ValidateTransition(inst.Status, to); err != nil {
		return nil, err
	}
	now := s.now().UTC()
	if apply != nil {
		if err := apply(inst, now); err != nil {
			return nil, err
		}
	}
	from := inst.Status
	inst.Status = to
	inst.UpdatedAt = now
	if err := s.instances.Update(ctx, inst); err != nil {
		return nil, mapRepoErr(err, ErrInstanceNotFound)
	}
	s.log.Info("Instance status changed", "instance_id", id.Hex(), "from", from, "to", to, "actor_id", actorID.Hex())
	return inst, nil
}

func markReviewed(inst *domain.GeneratedInstance, actorID primitive.ObjectID, now time.Time) {
	reviewer := actorID
	inst.ReviewedBy = &reviewer
	inst.ReviewedAt = &now
}

func (s *instanceService) Review(ctx context.Context, id, actorID primitive.ObjectID) (*domain.GeneratedInstance, error) {
	return s.transition(ctx, id, actorID, domain.InstanceReviewed, func(inst *domain.GeneratedInstance, now time.Time) error {
		markReviewed(inst, actorID, now)
		return nil
	})
}

func (s *instanceService) Approve(ctx context.Context, id, actorID primitive.ObjectID) (*domain.GeneratedInstance, error) {
	return s.transition(ctx, id, actorID, domain.InstanceApproved, func(inst *domain.GeneratedInstance, now time.Time) error {
		inst.ApprovedAt = &now
		inst.RejectionReason = ""
		return nil
	})
}

func (s *instanceService) Reject(ctx context.Context, id, actorID primitive.ObjectID, reason string) (*domain.GeneratedInstance, error) {
	return s.transition(ctx, id, actorID, domain.InstanceRejected, func(inst *domain.GeneratedInstance, now time.Time) error {
		inst.RejectionReason = reason
		return nil
	})
}

// Apply turns an approved instance into a concrete training plan for the recipient.
// A failed apply leaves no plan behind and the recipient's current plan active.
func (s *instanceService) Apply(ctx context.Context, id, actorID primitive.ObjectID, startDate *time.Time) (*domain.GeneratedInstance, error) {
	var planID primitive.ObjectID
	inst, err := s.transition(ctx, id, actorID, domain.InstanceApplied, func(inst *domain.GeneratedInstance, now time.Time) error {
		start := now
		if startDate != nil {
			start = startDate.UTC()
		}

		// 1. Create the plan
		plan := &domain.TrainingPlan{
			TrainerID:   inst.ProducerID,
			ClientID:    inst.RecipientID,
			InstanceID:  inst.ID,
			Name:        autoName(DeriveCharacteristics(inst.InputData, inst.Content)),
			Description: inst.Content.Rationale,
			StartDate:   &start,
			IsActive:    true,
		}
		if wp := inst.Content.WorkoutPlan; wp != nil && wp.DurationWeeks > 0 {
			end := start.AddDate(0, 0, 7*wp.DurationWeeks)
			plan.EndDate = &end
		}
		if np := inst.Content.NutritionPlan; np != nil {
			plan.Nutrition = inst.Content.Clone().NutritionPlan
		}
		created, err := s.plans.Create(ctx, plan)
		if err != nil {
			return err
		}
		planID = created

		// 2. Materialize workouts
		for i, pw := range inst.Content.AllWorkouts() {
			w := &domain.Workout{
				TrainingPlanID: planID,
				TrainerID:      inst.ProducerID,
				ClientID:       inst.RecipientID,
				Name:           pw.Name,
				Week:           pw.Week,
				Sequence:       i,
				Exercises:      pw.Clone().Exercises,
			}
			if pw.Day >= 1 && pw.Day <= 7 {
				day := pw.Day
				w.DayOfWeek = &day
			}
			if _, err := s.workouts.Create(ctx, w); err != nil {
				return err
			}
		}
		inst.ProgramID = &planID
		inst.AppliedAt = &now
		inst.StartDate = &start
		return nil
	})
	if err != nil {
		if !planID.IsZero() {
			s.discardPlan(ctx, planID)
		}
		return nil, err
	}

	// 3. Only one active plan per client, switched once the instance points at the new one
	if err := s.plans.DeactivateOtherPlansForClient(ctx, inst.RecipientID, inst.ProducerID, planID); err != nil {
		s.log.Error("Failed to deactivate previous plans", "instance_id", id.Hex(), "plan_id", planID.Hex(), "error", err)
	}
	return inst, nil
}

// discardPlan removes a plan created by a failed apply together with its workouts.
func (s *instanceService) discardPlan(ctx context.Context, planID primitive.ObjectID) {
	ctx = context.WithoutCancel(ctx)
	if _, err := s.workouts.DeleteByPlanID(ctx, planID); err != nil {
		s.log.Warn("Failed to remove workouts of discarded plan", "plan_id", planID.Hex(), "error", err)
	}
	if err := s.plans.Delete(ctx, planID); err != nil && !errors.Is(err, repository.ErrNotFound) {
		s.log.Warn("Failed to remove discarded plan", "plan_id", planID.Hex(), "error", err)
	}
}

// GetAppliedProgram returns the training plan and workouts an applied
// instance produced. Producer and recipient may read it.
func (s *instanceService) GetAppliedProgram(ctx context.Context, id, actorID primitive.ObjectID) (*AppliedProgram, error) {
	inst, err := s.GetInstance(ctx, id, actorID)
	if err != nil {
		return nil, err
	}
	if inst.ProgramID == nil {
		return nil, ErrProgramNotFound
	}
	plan, err := s.plans.GetByID(ctx, *inst.ProgramID)
	if err != nil {
		return nil, mapRepoErr(err, ErrProgramNotFound)
	}
	workouts, err := s.workouts.GetByPlanID(ctx, plan.ID)
	if err != nil {
		return nil, err
	}
	if workouts == nil {
		workouts = []domain.Workout{}
	}
	return &AppliedProgram{Plan: plan, Workouts: workouts}, nil
}

func (s *instanceService) Archive(ctx context.Context, id, actorID primitive.ObjectID, reason string) (*domain.GeneratedInstance, error) {
	return s.transition(ctx, id, actorID, domain.InstanceArchived, func(inst *domain.GeneratedInstance, now time.Time) error {
		inst.ArchivedAt = &now
		inst.ArchiveReason = reason
		return nil
	})
}

// editFunc mutates a private copy of the content and returns one modification
// per field it changed.
type editFunc func(content *domain.ProgramContent, now time.Time) ([]domain.Modification, error)

// edit runs fn against a copy of the instance content. Nothing is persisted
// when fn fails or changes nothing.
func (s *instanceService) edit(ctx context.Context, id, actorID primitive.ObjectID, fn editFunc) (*domain.GeneratedInstance, error) {
	unlock, err := s.locker.Lock(ctx, lock.InstanceKey(id))
	if err != nil {
		return nil, err
	}
	defer unlock()

	inst, err := s.instances.GetByID(ctx, id)
	if err != nil {
		return nil, mapRepoErr(err, ErrInstanceNotFound)
	}
	if inst.ProducerID != actorID {
		return nil, ErrNotOwner
	}
	if err := s.lifecycle.ValidateTransition(inst.Status, domain.InstanceReviewed); err != nil {
		return nil, err
	}

	now := s.now().UTC()
	work := inst.Content.Clone()
	mods, err := fn(work, now)
	if err != nil {
		return nil, err
	}
	if len(mods) == 0 {
		return inst, nil
	}
	for i := range mods {
		mods[i].ModifiedBy = actorID
		mods[i].Timestamp = now
	}
	inst.Modifications = append(inst.Modifications, mods...)
	inst.Content = *work
	inst.Status = domain.InstanceReviewed
	markReviewed(inst, actorID, now)
	inst.UpdatedAt = now
	if err := s.instances.Update(ctx, inst); err != nil {
		return nil, mapRepoErr(err, ErrInstanceNotFound)
	}
	s.log.Info("Instance edited", "instance_id", id.Hex(), "modifications", len(mods), "actor_id", actorID.Hex())
	return inst, nil
}

// setField writes raw at p and returns the modification, or nil when the
// serialized value did not change.
func setField(content *domain.ProgramContent, p FieldPath, raw, reason string) (*domain.Modification, error) {
	original, err := p.Get(content)
	if err != nil {
		return nil, err
	}
	if err := p.Set(content, raw); err != nil {
		return nil, err
	}
	updated, err := p.Get(content)
	if err != nil {
		return nil, err
	}
	if updated == original {
		return nil, nil
	}
	return &domain.Modification{
		Field:         p.String(),
		OriginalValue: original,
		NewValue:      updated,
		Reason:        reason,
	}, nil
}

// replaceExercise swaps the exercise at (w, e) for alt and records the change.
func replaceExercise(content *domain.ProgramContent, w, e int, alt domain.ExerciseAlternative, reason string) (*domain.Modification, error) {
	p := FieldPath{kind: fieldExercise, workout: w, exercise: e}
	ex := content.WorkoutPlan.Workouts[w].Exercises[e].Clone()
	ex.Name = alt.Name
	ex.Equipment = append([]string(nil), alt.Equipment...)
	if alt.MuscleGroup != "" {
		ex.MuscleGroup = alt.MuscleGroup
	}
	if alt.Notes != "" {
		ex.Notes = alt.Notes
	}
	raw, err := json.Marshal(ex)
	if err != nil {
		return nil, err
	}
	return setField(content, p, string(raw), reason)
}

func (s *instanceService) EditProgram(ctx context.Context, id, actorID primitive.ObjectID, edits []FieldEdit) (*domain.GeneratedInstance, error) {
	if len(edits) == 0 {
		return nil, fmt.Errorf("%w: no edits given", ErrInvalidFieldValue)
	}
	paths := make([]FieldPath, len(edits))
	for i, e := range edits {
		p, err := ParseFieldPath(e.Path)
		if err != nil {
			return nil, err
		}
		if len(e.Value) == 0 {
			return nil, fmt.Errorf("%w: %s: missing value", ErrInvalidFieldValue, e.Path)
		}
		paths[i] = p
	}
	return s.edit(ctx, id, actorID, func(content *domain.ProgramContent, now time.Time) ([]domain.Modification, error) {
		var mods []domain.Modification
		for i, e := range edits {
			m, err := setField(content, paths[i], string(e.Value), e.Reason)
			if err != nil {
				return nil, err
			}
			if m != nil {
				mods = append(mods, *m)
			}
		}
		return mods, nil
	})
}

func exerciseAt(content *domain.ProgramContent, w, e int) (*domain.PlannedExercise, error) {
	workouts := content.AllWorkouts()
	if w < 0 || w >= len(workouts) {
		return nil, ErrWorkoutIndex
	}
	if e < 0 || e >= len(workouts[w].Exercises) {
		return nil, ErrExerciseIndex
	}
	return &workouts[w].Exercises[e], nil
}

func (s *instanceService) SwapExercise(ctx context.Context, id, actorID primitive.ObjectID, req SwapRequest) (*SwapResult, error) {
	result := &SwapResult{}
	inst, err := s.edit(ctx, id, actorID, func(content *domain.ProgramContent, now time.Time) ([]domain.Modification, error) {
		ex, err := exerciseAt(content, req.WorkoutIndex, req.ExerciseIndex)
		if err != nil {
			return nil, err
		}
		sub, err := s.substitution.FindSubstitute(ctx, ex.Name, SubstitutionCriteria{
			Reason:             req.Reason,
			AvailableEquipment: req.AvailableEquipment,
			MinSimilarity:      req.MinSimilarity,
		})
		if err != nil {
			return nil, err
		}
		result.Chosen = sub.Best
		result.Alternatives = sub.Alternatives
		m, err := replaceExercise(content, req.WorkoutIndex, req.ExerciseIndex, sub.Best, swapReason(ex.Name, sub.Best.Name, req.Reason))
		if err != nil || m == nil {
			return nil, err
		}
		return []domain.Modification{*m}, nil
	})
	if err != nil {
		return nil, err
	}
	result.Instance = inst
	return result, nil
}

func swapReason(from, to, reason string) string {
	msg := fmt.Sprintf("swapped %s for %s", from, to)
	if reason != "" {
		msg += ": " + reason
	}
	return msg
}

// BulkSwapByEquipment replaces every exercise whose equipment is not covered
// by available. Exercises without a compatible substitute are left in place
// and reported as unresolved.
func (s *instanceService) BulkSwapByEquipment(ctx context.Context, id, actorID primitive.ObjectID, available []string, reason string) (*BulkSwapResult, error) {
	availableSet := normalizedSet(available)
	result := &BulkSwapResult{Swapped: []SwappedExercise{}}
	inst, err := s.edit(ctx, id, actorID, func(content *domain.ProgramContent, now time.Time) ([]domain.Modification, error) {
		var mods []domain.Modification
		subs := make(map[string]*SubstitutionResult)
		for wi, w := range content.AllWorkouts() {
			for ei, ex := range w.Exercises {
				if equipmentCompatible(ex.Equipment, availableSet) {
					continue
				}
				key := normalizeName(ex.Name)
				sub, seen := subs[key]
				if !seen {
					found, err := s.substitution.FindSubstitute(ctx, ex.Name, SubstitutionCriteria{
						Reason:             reason,
						AvailableEquipment: available,
					})
					if err != nil && !errors.Is(err, ErrNoSubstitute) {
						return nil, err
					}
					sub = found
					subs[key] = sub
				}
				if sub == nil {
					result.Unresolved = append(result.Unresolved, ex.Name)
					continue
				}
				m, err := replaceExercise(content, wi, ei, sub.Best, swapReason(ex.Name, sub.Best.Name, reason))
				if err != nil {
					return nil, err
				}
				if m != nil {
					mods = append(mods, *m)
					result.Swapped = append(result.Swapped, SwappedExercise{
						WorkoutIndex: wi, ExerciseIndex: ei, From: ex.Name, To: sub.Best.Name,
					})
				}
			}
		}
		return mods, nil
	})
	if err != nil {
		return nil, err
	}
	result.Instance = inst
	return result, nil
}

// AdjustDifficulty scales sets, reps and weight of every exercise by 10%.
// Only exercises whose values actually change get a modification entry.
func (s *instanceService) AdjustDifficulty(ctx context.Context, id, actorID primitive.ObjectID, direction string) (*domain.GeneratedInstance, error) {
	var factor float64
	switch direction {
	case DirectionIncrease:
		factor = 1 + difficultyStep
	case DirectionDecrease:
		factor = 1 - difficultyStep
	default:
		return nil, ErrInvalidDirection
	}
	reason := fmt.Sprintf("difficulty %s %d%%", direction, int(math.Round(difficultyStep*100)))

	return s.edit(ctx, id, actorID, func(content *domain.ProgramContent, now time.Time) ([]domain.Modification, error) {
		var mods []domain.Modification
		for wi, w := range content.AllWorkouts() {
			for ei, ex := range w.Exercises {
				scaled := ex.Clone()
				scaled.Sets = scaleCount(ex.Sets, factor)
				scaled.Reps = scaleCount(ex.Reps, factor)
				scaled.Weight = math.Round(ex.Weight*factor*100) / 100
				raw, err := json.Marshal(scaled)
				if err != nil {
					return nil, err
				}
				m, err := setField(content, FieldPath{kind: fieldExercise, workout: wi, exercise: ei}, string(raw), reason)
				if err != nil {
					return nil, err
				}
				if m != nil {
					mods = append(mods, *m)
				}
			}
		}
		return mods, nil
	})
}

// scaleCount scales a positive count, never dropping it below one.
func scaleCount(n int, factor float64) int {
	if n <= 0 {
		return n
	}
	scaled := int(math.Round(float64(n) * factor))
	if scaled < 1 {
		return 1
	}
	return scaled
}

// RevertEdit restores the original value of modification index and removes
// the entry; later entries shift down by one.
func (s *instanceService) RevertEdit(ctx context.Context, id, actorID primitive.ObjectID, index int) (*domain.GeneratedInstance, error) {
	unlock, err := s.locker.Lock(ctx, lock.InstanceKey(id))
	if err != nil {
		return nil, err
	}
	defer unlock()

	inst, err := s.instances.GetByID(ctx, id)
	if err != nil {
		return nil, mapRepoErr(err, ErrInstanceNotFound)
	}
	if inst.ProducerID != actorID {
		return nil, ErrNotOwner
	}
	if index < 0 || index >= len(inst.Modifications) {
		return nil, ErrModificationIndex
	}
	if err := s.lifecycle.ValidateTransition(inst.Status, domain.InstanceReviewed); err != nil {
		return nil, err
	}

	m := inst.Modifications[index]
	p, err := ParseFieldPath(m.Field)
	if err != nil {
		return nil, err
	}
	work := inst.Content.Clone()
	if err := p.Set(work, m.OriginalValue); err != nil {
		return nil, err
	}

	now := s.now().UTC()
	inst.Content = *work
	inst.Modifications = append(inst.Modifications[:index:index], inst.Modifications[index+1:]...)
	inst.Status = domain.InstanceReviewed
	markReviewed(inst, actorID, now)
	inst.UpdatedAt = now
	if err := s.instances.Update(ctx, inst); err != nil {
		return nil, mapRepoErr(err, ErrInstanceNotFound)
	}
	s.log.Info("Instance edit reverted", "instance_id", id.Hex(), "field", m.Field, "index", index, "actor_id", actorID.Hex())
	return inst, nil
}
