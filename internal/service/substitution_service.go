package service

import (
	"context"
	"fmt"
	"strings"

	"alcyxob/fitgen/internal/domain"
	"alcyxob/fitgen/internal/logger"
	"alcyxob/fitgen/internal/repository"
)

// equipment that every recipient is assumed to have
var bodyweightEquipment = map[string]bool{
	"":           true,
	"none":       true,
	"bodyweight": true,
}

type SubstitutionCriteria struct {
	Reason             string   `json:"reason"` // e.g. equipment, injury, preference
	AvailableEquipment []string `json:"availableEquipment"`
	MinSimilarity      float64  `json:"minSimilarity"`
}

// SubstitutionResult is the best candidate and the remaining ranked ones.
type SubstitutionResult struct {
	Exercise     string                       `json:"exercise"`
	Best         domain.ExerciseAlternative   `json:"best"`
	Alternatives []domain.ExerciseAlternative `json:"alternatives"`
}

type SubstitutionService interface {
	AddAlternative(ctx context.Context, alt *domain.ExerciseAlternative) (*domain.ExerciseAlternative, error)
	FindSubstitute(ctx context.Context, exerciseName string, criteria SubstitutionCriteria) (*SubstitutionResult, error)
}

type substitutionService struct {
	alternatives repository.AlternativeRepository
	log          *logger.Logger
}

func NewSubstitutionService(alternatives repository.AlternativeRepository, log *logger.Logger) SubstitutionService {
	return &substitutionService{
		alternatives: alternatives,
		log:          log.With("service", "SubstitutionService"),
	}
}

// AddAlternative registers one catalog entry.
func (s *substitutionService) AddAlternative(ctx context.Context, alt *domain.ExerciseAlternative) (*domain.ExerciseAlternative, error) {
	if strings.TrimSpace(alt.ExerciseName) == "" || strings.TrimSpace(alt.Name) == "" {
		return nil, fmt.Errorf("%w: exercise name and alternative name are required", ErrInvalidState)
	}
	if alt.Similarity < 0 || alt.Similarity > 1 {
		return nil, fmt.Errorf("%w: similarity must be within [0,1]", ErrInvalidState)
	}
	if _, err := s.alternatives.Create(ctx, alt); err != nil {
		return nil, mapRepoErr(err, ErrNotFound)
	}
	return alt, nil
}

func (s *substitutionService) FindSubstitute(ctx context.Context, exerciseName string, criteria SubstitutionCriteria) (*SubstitutionResult, error) {
	candidates, err := s.alternatives.FindByExerciseName(ctx, exerciseName)
	if err != nil {
		return nil, err
	}
	available := normalizedSet(criteria.AvailableEquipment)

	// candidates arrive ranked by similarity
	var ranked []domain.ExerciseAlternative
	for _, c := range candidates {
		if c.Similarity < criteria.MinSimilarity {
			continue
		}
		if criteria.AvailableEquipment != nil && !equipmentCompatible(c.Equipment, available) {
			continue
		}
		ranked = append(ranked, c)
	}
	if len(ranked) == 0 {
		return nil, fmt.Errorf("%w for %q", ErrNoSubstitute, exerciseName)
	}

	s.log.Debug("Substitute found", "exercise", exerciseName, "best", ranked[0].Name, "reason", criteria.Reason, "candidates", len(ranked))
	return &SubstitutionResult{
		Exercise:     exerciseName,
		Best:         ranked[0],
		Alternatives: ranked[1:],
	}, nil
}

// equipmentCompatible reports whether required is a subset of available.
// Bodyweight entries never need to be available.
func equipmentCompatible(required []string, available map[string]bool) bool {
	for _, e := range required {
		e = normalizeName(e)
		if bodyweightEquipment[e] {
			continue
		}
		if !available[e] {
			return false
		}
	}
	return true
}

func normalizedSet(in []string) map[string]bool {
	out := make(map[string]bool, len(in))
	for _, s := range in {
		out[normalizeName(s)] = true
	}
	return out
}

func normalizeName(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}
