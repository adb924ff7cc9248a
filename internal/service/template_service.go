package service

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"alcyxob/fitgen/internal/config"
	"alcyxob/fitgen/internal/domain"
	"alcyxob/fitgen/internal/fingerprint"
	"alcyxob/fitgen/internal/lock"
	"alcyxob/fitgen/internal/logger"
	"alcyxob/fitgen/internal/repository"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

type MatchType string

const (
	MatchExact   MatchType = "exact"
	MatchSimilar MatchType = "similar"
	MatchNone    MatchType = "none"
)

// Viewer restricts matching to templates visible to one producer. A nil
// OrganizationID is resolved from the user record.
type Viewer struct {
	ID             primitive.ObjectID
	OrganizationID *primitive.ObjectID
}

type MatchOptions struct {
	AllowSimilar bool
	Viewer       *Viewer // nil matches regardless of visibility
}

type MatchResult struct {
	Template         *domain.Template  `json:"template,omitempty"`
	MatchType        MatchType         `json:"matchType"`
	Alternatives     []domain.Template `json:"alternatives,omitempty"`
	InputFingerprint string            `json:"inputFingerprint"`
}

type CreateTemplateOptions struct {
	Name                 string
	Category             string
	Tags                 []string
	Visibility           domain.Visibility
	CustomizationOptions *domain.CustomizationOptions // nil allows every customization
}

type TemplateService interface {
	FindMatch(ctx context.Context, req domain.GenerationRequest, opts MatchOptions) (*MatchResult, error)
	CreateFromGenerated(ctx context.Context, inst *domain.GeneratedInstance, opts CreateTemplateOptions) (*domain.Template, error)
	RecordUsage(ctx context.Context, templateID, consumerID primitive.ObjectID) (*domain.Template, error)
	AddRating(ctx context.Context, templateID, actorID primitive.ObjectID, score int, feedback string) (*domain.Template, error)
	GetTemplate(ctx context.Context, templateID primitive.ObjectID) (*domain.Template, error)
	GetVisibleTemplate(ctx context.Context, templateID, viewerID primitive.ObjectID) (*domain.Template, error)
}

type templateService struct {
	templates repository.TemplateRepository
	users     repository.UserRepository
	locker    lock.Locker
	cfg       config.MatcherConfig
	log       *logger.Logger
	now       func() time.Time
}

func NewTemplateService(
	templates repository.TemplateRepository,
	users repository.UserRepository,
	locker lock.Locker,
	cfg config.MatcherConfig,
	log *logger.Logger,
) TemplateService {
	return &templateService{
		templates: templates,
		users:     users,
		locker:    locker,
		cfg:       cfg,
		log:       log.With("service", "TemplateService"),
		now:       time.Now,
	}
}

// ValidateRequest rejects requests that cannot be fingerprinted meaningfully.
func ValidateRequest(req domain.GenerationRequest) error {
	if len(fingerprint.NormalizeList(req.Goals)) == 0 {
		return fmt.Errorf("%w: at least one goal is required", ErrMalformedRequest)
	}
	if strings.TrimSpace(req.ExperienceLevel) == "" {
		return fmt.Errorf("%w: experience level is required", ErrMalformedRequest)
	}
	if req.DurationWeeks <= 0 {
		return fmt.Errorf("%w: duration must be positive", ErrMalformedRequest)
	}
	return nil
}

// FindMatch looks for a reusable template before anything is generated.
// An exact input-fingerprint hit never falls through to similarity search.
func (s *templateService) FindMatch(ctx context.Context, req domain.GenerationRequest, opts MatchOptions) (*MatchResult, error) {
	// 1. Validate before hashing
	if err := ValidateRequest(req); err != nil {
		return nil, err
	}
	fp := fingerprint.InputFingerprint(req)
	result := &MatchResult{MatchType: MatchNone, InputFingerprint: fp}

	// 2. Exact fingerprint match
	exact, err := s.templates.FindLatestByInputFingerprint(ctx, fp)
	if err != nil {
		return nil, err
	}
	if err := resolveViewer(ctx, s.users, opts.Viewer); err != nil {
		return nil, err
	}
	exact = s.visible(exact, opts.Viewer)
	if len(exact) > 0 {
		rankTemplates(exact)
		result.MatchType = MatchExact
		result.Template = &exact[0]
		result.Alternatives = s.capAlternatives(exact[1:])
		s.log.Debug("Exact template match", "template_id", exact[0].ID.Hex(), "fingerprint", fp)
		return result, nil
	}
	if !opts.AllowSimilar {
		return result, nil
	}

	// 3. Characteristic similarity
	candidates, err := s.templates.FindSimilarCandidates(ctx, repository.SimilarQuery{
		ExperienceLevel: strings.ToLower(strings.TrimSpace(req.ExperienceLevel)),
		Goals:           fingerprint.NormalizeList(req.Goals),
	})
	if err != nil {
		return nil, err
	}
	available := normalizedSet(req.Equipment)
	var similar []domain.Template
	for _, t := range candidates {
		if s.similarTo(t, req, available) {
			similar = append(similar, t)
		}
	}
	if len(similar) == 0 {
		return result, nil
	}
	rankTemplates(similar)
	result.MatchType = MatchSimilar
	result.Template = &similar[0]
	result.Alternatives = s.capAlternatives(similar[1:])
	s.log.Debug("Similar template match", "template_id", similar[0].ID.Hex(), "candidates", len(similar))
	return result, nil
}

func (s *templateService) similarTo(t domain.Template, req domain.GenerationRequest, available map[string]bool) bool {
	c := t.Characteristics
	if c.ExperienceLevel != strings.ToLower(strings.TrimSpace(req.ExperienceLevel)) {
		return false
	}
	goals := normalizedSet(req.Goals)
	shared := false
	for _, g := range c.Goals {
		if goals[g] {
			shared = true
			break
		}
	}
	if !shared {
		return false
	}
	diff := c.DurationWeeks - req.DurationWeeks
	if diff < 0 {
		diff = -diff
	}
	if diff > s.cfg.DurationToleranceWeeks {
		return false
	}
	return equipmentCompatible(c.Equipment, available)
}

func (s *templateService) visible(in []domain.Template, v *Viewer) []domain.Template {
	if v == nil {
		return in
	}
	out := in[:0]
	for _, t := range in {
		if t.VisibleTo(v.ID, v.OrganizationID) {
			out = append(out, t)
		}
	}
	return out
}

func (s *templateService) capAlternatives(in []domain.Template) []domain.Template {
	if s.cfg.MaxAlternatives >= 0 && len(in) > s.cfg.MaxAlternatives {
		in = in[:s.cfg.MaxAlternatives]
	}
	return in
}

// rankTemplates orders by average rating, then usage count, both descending.
func rankTemplates(ts []domain.Template) {
	sort.SliceStable(ts, func(i, j int) bool {
		a, b := ts[i].Usage, ts[j].Usage
		if a.AverageRating != b.AverageRating {
			return a.AverageRating > b.AverageRating
		}
		return a.TimesUsed > b.TimesUsed
	})
}

// CreateFromGenerated registers an instance's content as version 1 of a new
// chain. It does not deduplicate; MergeDuplicates cleans up afterwards.
func (s *templateService) CreateFromGenerated(ctx context.Context, inst *domain.GeneratedInstance, opts CreateTemplateOptions) (*domain.Template, error) {
	// 1. Validate input
	if inst == nil || (inst.Content.WorkoutPlan == nil && inst.Content.NutritionPlan == nil) {
		return nil, ErrNoContent
	}
	if err := ValidateRequest(inst.InputData); err != nil {
		return nil, err
	}

	// 2. Derive characteristics and fingerprints
	chars := DeriveCharacteristics(inst.InputData, inst.Content)
	contentFP, err := fingerprint.ContentFingerprint(inst.Content)
	if err != nil {
		return nil, fmt.Errorf("content fingerprint: %w", err)
	}

	// 3. Resolve naming and ownership
	name := opts.Name
	if name == "" {
		name = autoName(chars)
	}
	category := opts.Category
	if category == "" {
		category = autoCategory(chars, inst.Content)
	}
	tags := opts.Tags
	if len(tags) == 0 {
		tags = autoTags(chars)
	}
	visibility := opts.Visibility
	if visibility == "" {
		visibility = domain.VisibilityPrivate
	}
	custom := domain.CustomizationOptions{AllowDurationChange: true, AllowEquipmentSubstitution: true, AllowMacroAdjustment: true}
	if opts.CustomizationOptions != nil {
		custom = *opts.CustomizationOptions
	}
	var orgID *primitive.ObjectID
	if owner, err := s.users.GetByID(ctx, inst.ProducerID); err == nil {
		orgID = owner.OrganizationID
	} else if !errors.Is(err, repository.ErrNotFound) {
		return nil, err
	}

	// 4. Persist as version 1
	now := s.now().UTC()
	sourceID := inst.ID
	tmpl := &domain.Template{
		Version:            1,
		IsLatestVersion:    true,
		OwnerID:            inst.ProducerID,
		OrganizationID:     orgID,
		Name:               name,
		Category:           category,
		Tags:               tags,
		ContentFingerprint: contentFP,
		InputFingerprint:   fingerprint.InputFingerprint(inst.InputData),
		Characteristics:    chars,
		Content:            *inst.Content.Clone(),
		Customization:      custom,
		Status:             domain.TemplateActive,
		Visibility:         visibility,
		SourceInstanceID:   &sourceID,
		CreatedAt:          now,
		UpdatedAt:          now,
	}
	if _, err := s.templates.Create(ctx, tmpl); err != nil {
		return nil, mapRepoErr(err, ErrTemplateNotFound)
	}
	s.log.Info("Template created from instance", "template_id", tmpl.ID.Hex(), "instance_id", inst.ID.Hex(), "name", name)
	return tmpl, nil
}

// RecordUsage bumps the usage counter once, serialized per template.
func (s *templateService) RecordUsage(ctx context.Context, templateID, consumerID primitive.ObjectID) (*domain.Template, error) {
	unlock, err := s.locker.Lock(ctx, lock.TemplateKey(templateID))
	if err != nil {
		return nil, err
	}
	defer unlock()

	t, err := s.templates.IncrementUsage(ctx, templateID, consumerID, s.now().UTC())
	if err != nil {
		return nil, mapRepoErr(err, ErrTemplateNotFound)
	}
	return t, nil
}

func (s *templateService) AddRating(ctx context.Context, templateID, actorID primitive.ObjectID, score int, feedback string) (*domain.Template, error) {
	if score < 1 || score > 5 {
		return nil, ErrInvalidRating
	}
	if _, err := s.GetVisibleTemplate(ctx, templateID, actorID); err != nil {
		return nil, err
	}
	unlock, err := s.locker.Lock(ctx, lock.TemplateKey(templateID))
	if err != nil {
		return nil, err
	}
	defer unlock()

	t, err := s.templates.AddRating(ctx, templateID, float64(score), s.now().UTC())
	if err != nil {
		return nil, mapRepoErr(err, ErrTemplateNotFound)
	}
	s.log.Info("Template rated", "template_id", templateID.Hex(), "actor_id", actorID.Hex(), "score", score, "feedback", feedback)
	return t, nil
}

func (s *templateService) GetTemplate(ctx context.Context, templateID primitive.ObjectID) (*domain.Template, error) {
	t, err := s.templates.GetByID(ctx, templateID)
	if err != nil {
		return nil, mapRepoErr(err, ErrTemplateNotFound)
	}
	return t, nil
}

// GetVisibleTemplate is GetTemplate for a viewer; templates the viewer may not
// use are reported as ErrTemplateNotVisible.
func (s *templateService) GetVisibleTemplate(ctx context.Context, templateID, viewerID primitive.ObjectID) (*domain.Template, error) {
	t, err := s.GetTemplate(ctx, templateID)
	if err != nil {
		return nil, err
	}
	v := &Viewer{ID: viewerID}
	if err := resolveViewer(ctx, s.users, v); err != nil {
		return nil, err
	}
	if !t.VisibleTo(v.ID, v.OrganizationID) {
		return nil, ErrTemplateNotVisible
	}
	return t, nil
}

// resolveViewer fills in the viewer's organization from their user record.
// Unknown users keep a nil organization and only see their own and public templates.
func resolveViewer(ctx context.Context, users repository.UserRepository, v *Viewer) error {
	if v == nil || v.OrganizationID != nil {
		return nil
	}
	u, err := users.GetByID(ctx, v.ID)
	switch {
	case err == nil:
		v.OrganizationID = u.OrganizationID
	case !errors.Is(err, repository.ErrNotFound):
		return err
	}
	return nil
}

// DeriveCharacteristics builds the similarity facets of a request and its content.
func DeriveCharacteristics(req domain.GenerationRequest, content domain.ProgramContent) domain.Characteristics {
	chars := domain.Characteristics{
		ExperienceLevel: strings.ToLower(strings.TrimSpace(req.ExperienceLevel)),
		Goals:           fingerprint.NormalizeList(req.Goals),
		DurationWeeks:   req.DurationWeeks,
		DietType:        strings.ToLower(strings.TrimSpace(req.DietType)),
	}
	refreshContentCharacteristics(&chars, req.Equipment, content)
	return chars
}

// refreshContentCharacteristics recomputes the facets that depend on content.
func refreshContentCharacteristics(chars *domain.Characteristics, requestEquipment []string, content domain.ProgramContent) {
	equipment := append([]string(nil), requestEquipment...)
	var muscles []string
	for _, w := range content.AllWorkouts() {
		for _, ex := range w.Exercises {
			equipment = append(equipment, ex.Equipment...)
			muscles = append(muscles, ex.MuscleGroup)
		}
	}
	chars.RequestEquipment = fingerprint.NormalizeList(requestEquipment)
	chars.Equipment = fingerprint.NormalizeList(equipment)
	chars.TargetMuscleGroups = fingerprint.NormalizeList(muscles)
	if content.WorkoutPlan != nil && content.WorkoutPlan.DurationWeeks > 0 && chars.DurationWeeks == 0 {
		chars.DurationWeeks = content.WorkoutPlan.DurationWeeks
	}
	chars.CalorieRange = nil
	if np := content.NutritionPlan; np != nil {
		if kcal, ok := np.DailyTargets["calories"]; ok && kcal > 0 {
			chars.CalorieRange = &domain.CalorieRange{
				Min: math.Round(kcal * 0.9),
				Max: math.Round(kcal * 1.1),
			}
		}
		if chars.DietType == "" {
			chars.DietType = strings.ToLower(np.DietType)
		}
	}
}

func autoName(c domain.Characteristics) string {
	goals := make([]string, len(c.Goals))
	for i, g := range c.Goals {
		goals[i] = titleWords(g)
	}
	name := fmt.Sprintf("%d-Week %s %s Program", c.DurationWeeks, titleWords(c.ExperienceLevel), strings.Join(goals, " & "))
	if c.DietType != "" {
		name += " (" + titleWords(c.DietType) + ")"
	}
	return name
}

func autoCategory(c domain.Characteristics, content domain.ProgramContent) string {
	switch {
	case content.WorkoutPlan == nil:
		return "nutrition"
	case len(c.Goals) > 0:
		return c.Goals[0]
	default:
		return "general"
	}
}

func autoTags(c domain.Characteristics) []string {
	tags := append([]string{c.ExperienceLevel}, c.Goals...)
	tags = append(tags, c.Equipment...)
	if c.DietType != "" {
		tags = append(tags, c.DietType)
	}
	return fingerprint.NormalizeList(tags)
}

func titleWords(s string) string {
	words := strings.FieldsFunc(s, func(r rune) bool { return r == '_' || r == '-' || r == ' ' })
	for i, w := range words {
		words[i] = strings.ToUpper(w[:1]) + w[1:]
	}
	return strings.Join(words, " ")
}
