package generator

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"alcyxob/fitgen/internal/domain"
)

var ErrUnparseableContent = errors.New("completion content is not a program")

// ParseContent extracts program content from completion text. The text may
// wrap the JSON object in markdown fences or surround it with prose.
func ParseContent(raw string) (*domain.ProgramContent, error) {
	body := extractJSONObject(raw)
	if body == "" {
		return nil, fmt.Errorf("%w: no JSON object found", ErrUnparseableContent)
	}
	var content domain.ProgramContent
	if err := json.Unmarshal([]byte(body), &content); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnparseableContent, err)
	}
	if content.WorkoutPlan == nil && content.NutritionPlan == nil {
		return nil, fmt.Errorf("%w: neither workoutPlan nor nutritionPlan present", ErrUnparseableContent)
	}
	return &content, nil
}

func extractJSONObject(raw string) string {
	s := strings.TrimSpace(raw)
	if i := strings.Index(s, "```"); i >= 0 {
		rest := s[i+3:]
		// skip a language tag such as ```json
		if nl := strings.IndexByte(rest, '\n'); nl >= 0 {
			rest = rest[nl+1:]
		}
		if end := strings.Index(rest, "```"); end >= 0 {
			rest = rest[:end]
		}
		s = strings.TrimSpace(rest)
	}
	start := strings.IndexByte(s, '{')
	end := strings.LastIndexByte(s, '}')
	if start < 0 || end <= start {
		return ""
	}
	return s[start : end+1]
}
