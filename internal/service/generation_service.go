package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"alcyxob/fitgen/internal/config"
	"alcyxob/fitgen/internal/domain"
	"alcyxob/fitgen/internal/generator"
	"alcyxob/fitgen/internal/logger"
	"alcyxob/fitgen/internal/repository"
	"alcyxob/fitgen/internal/storage"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

type GenerateOptions struct {
	AllowSimilar       bool                  `json:"allowSimilar"`
	AutoTemplate       bool                  `json:"autoTemplate"`
	TemplateVisibility domain.Visibility     `json:"templateVisibility,omitempty"`
	Customizations     domain.Customizations `json:"customizations"`
}

type GenerateResult struct {
	Instance  *domain.GeneratedInstance `json:"instance"`
	MatchType MatchType                 `json:"matchType"`
	Template  *domain.Template          `json:"template,omitempty"`
	Generated bool                      `json:"generated"` // true when the completion service was called
	Warnings  []string                  `json:"warnings,omitempty"`
}

type GenerationService interface {
	Generate(ctx context.Context, producerID, recipientID primitive.ObjectID, req domain.GenerationRequest, opts GenerateOptions) (*GenerateResult, error)
	RawOutputURL(ctx context.Context, instanceID, actorID primitive.ObjectID) (string, error)
}

type generationService struct {
	instances   repository.InstanceRepository
	users       repository.UserRepository
	templateSvc TemplateService
	instanceSvc InstanceService
	completer   generator.Completer
	files       storage.FileStorage
	lifecycle   *LifecycleMachine
	cfg         config.GenerationConfig
	retention   config.RetentionConfig
	log         *logger.Logger
	now         func() time.Time
}

func NewGenerationService(
	instances repository.InstanceRepository,
	users repository.UserRepository,
	templateSvc TemplateService,
	instanceSvc InstanceService,
	completer generator.Completer,
	files storage.FileStorage,
	cfg config.GenerationConfig,
	retention config.RetentionConfig,
	log *logger.Logger,
) GenerationService {
	return &generationService{
		instances:   instances,
		users:       users,
		templateSvc: templateSvc,
		instanceSvc: instanceSvc,
		completer:   completer,
		files:       files,
		lifecycle:   NewLifecycleMachine(),
		cfg:         cfg,
		retention:   retention,
		log:         log.With("service", "GenerationService"),
		now:         time.Now,
	}
}

// Generate reuses a cached template when one matches and only calls the
// completion service on a miss.
func (s *generationService) Generate(ctx context.Context, producerID, recipientID primitive.ObjectID, req domain.GenerationRequest, opts GenerateOptions) (*GenerateResult, error) {
	// 1. Validate request and ownership
	if err := ValidateRequest(req); err != nil {
		return nil, err
	}
	producer, err := s.users.GetByID(ctx, producerID)
	if err != nil {
		return nil, mapRepoErr(err, ErrUserNotFound)
	}
	if _, err := checkManaged(ctx, s.users, producerID, recipientID); err != nil {
		return nil, err
	}

	// 2. Cache lookup
	match, err := s.templateSvc.FindMatch(ctx, req, MatchOptions{
		AllowSimilar: opts.AllowSimilar,
		Viewer:       &Viewer{ID: producer.ID, OrganizationID: producer.OrganizationID},
	})
	if err != nil {
		return nil, err
	}
	requestID := uuid.NewString()
	if match.MatchType != MatchNone {
		applied, err := s.instanceSvc.ApplyTemplate(ctx, ApplyTemplateInput{
			TemplateID:     match.Template.ID,
			RecipientID:    recipientID,
			ProducerID:     producerID,
			Customizations: opts.Customizations,
			Request:        &req,
			RequestID:      requestID,
		})
		if err != nil {
			return nil, err
		}
		s.log.Info("Generation served from template", "request_id", requestID, "match_type", match.MatchType, "template_id", match.Template.ID.Hex())
		return &GenerateResult{
			Instance:  applied.Instance,
			MatchType: match.MatchType,
			Template:  match.Template,
			Warnings:  applied.Warnings,
		}, nil
	}

	// 3. Cache miss: record the attempt before calling out
	now := s.now().UTC()
	inst := &domain.GeneratedInstance{
		ProducerID:          producerID,
		RecipientID:         recipientID,
		RequestID:           requestID,
		InputData:           req,
		Status:              domain.InstanceGenerating,
		Modifications:       []domain.Modification{},
		ScheduledDeletionAt: scheduledDeletion(now, s.retention.InstanceDays),
		CreatedAt:           now,
		UpdatedAt:           now,
	}
	if _, err := s.instances.Create(ctx, inst); err != nil {
		return nil, mapRepoErr(err, ErrInstanceNotFound)
	}

	// 4. Call the completion service under our own deadline
	genCtx := ctx
	if s.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		genCtx, cancel = context.WithTimeout(ctx, s.cfg.Timeout)
		defer cancel()
	}
	completion, err := s.completer.Complete(genCtx, generator.BuildMessages(req), generator.Options{
		Model:       s.cfg.Model,
		Temperature: s.cfg.Temperature,
		MaxTokens:   s.cfg.MaxTokens,
		JSONMode:    true,
	})
	if err != nil {
		return nil, s.fail(ctx, inst, err)
	}
	inst.Generation = domain.GenerationMeta{
		Model:            completion.Model,
		PromptTokens:     completion.Usage.PromptTokens,
		CompletionTokens: completion.Usage.CompletionTokens,
		EstimatedCost:    completion.EstimatedCost,
	}

	// 5. Keep the raw output for audit
	key := storage.GenerationArchiveKey(producerID.Hex(), requestID)
	switch err := s.files.PutObject(ctx, key, "application/json", []byte(completion.Content)); {
	case errors.Is(err, storage.ErrStorageDisabled):
	case err != nil:
		s.log.Warn("Failed to archive raw generation output", "request_id", requestID, "key", key, "error", err)
	default:
		inst.Generation.ArchiveKey = key
	}

	// 6. Parse and mark generated
	content, err := generator.ParseContent(completion.Content)
	if err != nil {
		return nil, s.fail(ctx, inst, err)
	}
	if err := s.lifecycle.ValidateTransition(inst.Status, domain.InstanceGenerated); err != nil {
		return nil, err
	}
	inst.Content = *content
	inst.Status = domain.InstanceGenerated
	inst.UpdatedAt = s.now().UTC()
	if err := s.instances.Update(ctx, inst); err != nil {
		if inst.Generation.ArchiveKey != "" {
			if derr := s.files.DeleteObject(context.WithoutCancel(ctx), inst.Generation.ArchiveKey); derr != nil {
				s.log.Warn("Failed to remove orphaned generation output", "key", inst.Generation.ArchiveKey, "error", derr)
			}
		}
		return nil, mapRepoErr(err, ErrInstanceNotFound)
	}
	result := &GenerateResult{Instance: inst, MatchType: MatchNone, Generated: true}
	s.log.Info("Program generated",
		"request_id", requestID, "instance_id", inst.ID.Hex(), "model", completion.Model,
		"prompt_tokens", completion.Usage.PromptTokens, "completion_tokens", completion.Usage.CompletionTokens,
		"estimated_cost", completion.EstimatedCost)

	// 7. Register as a template; failures only warn
	if opts.AutoTemplate {
		tmpl, err := s.templateSvc.CreateFromGenerated(ctx, inst, CreateTemplateOptions{Visibility: opts.TemplateVisibility})
		if err != nil {
			s.log.Warn("Failed to create template from generation", "instance_id", inst.ID.Hex(), "error", err)
			result.Warnings = append(result.Warnings, "template was not created: "+err.Error())
			return result, nil
		}
		result.Template = tmpl
		templateID := tmpl.ID
		inst.TemplateID = &templateID
		if err := s.instances.Update(ctx, inst); err != nil {
			s.log.Warn("Failed to link instance to its template", "instance_id", inst.ID.Hex(), "template_id", tmpl.ID.Hex(), "error", err)
			result.Warnings = append(result.Warnings, "instance was not linked to its template: "+err.Error())
		}
	}
	return result, nil
}

// fail archives a generating instance and wraps cause as ErrGenerationFailed.
func (s *generationService) fail(ctx context.Context, inst *domain.GeneratedInstance, cause error) error {
	now := s.now().UTC()
	inst.Status = domain.InstanceArchived
	inst.ArchivedAt = &now
	inst.ArchiveReason = domain.ArchiveReasonGenerationFailed
	inst.UpdatedAt = now
	if err := s.instances.Update(context.WithoutCancel(ctx), inst); err != nil {
		s.log.Error("Failed to archive failed generation", "instance_id", inst.ID.Hex(), "error", err)
	}
	s.log.Warn("Generation failed", "request_id", inst.RequestID, "instance_id", inst.ID.Hex(), "error", cause)
	return fmt.Errorf("%w: %v", ErrGenerationFailed, cause)
}

// RawOutputURL returns a short-lived link to the archived completion output.
func (s *generationService) RawOutputURL(ctx context.Context, instanceID, actorID primitive.ObjectID) (string, error) {
	inst, err := s.instances.GetByID(ctx, instanceID)
	if err != nil {
		return "", mapRepoErr(err, ErrInstanceNotFound)
	}
	if inst.ProducerID != actorID {
		return "", ErrNotOwner
	}
	if inst.Generation.ArchiveKey == "" {
		return "", fmt.Errorf("%w: no archived output for this instance", ErrNotFound)
	}
	return s.files.GeneratePresignedDownloadURL(ctx, inst.Generation.ArchiveKey, storage.DefaultPresignedURLExpiry)
}
