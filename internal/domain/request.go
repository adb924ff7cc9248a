package domain

// GenerationRequest is the normalized input to program generation. It is
// the unit the input fingerprint is computed over.
type GenerationRequest struct {
	Goals            []string               `bson:"goals" json:"goals"`
	ExperienceLevel  string                 `bson:"experienceLevel" json:"experienceLevel"` // beginner, intermediate, advanced
	DurationWeeks    int                    `bson:"durationWeeks" json:"durationWeeks"`
	Equipment        []string               `bson:"equipment,omitempty" json:"equipment,omitempty"`
	DietType         string                 `bson:"dietType,omitempty" json:"dietType,omitempty"`
	SessionsPerWeek  int                    `bson:"sessionsPerWeek,omitempty" json:"sessionsPerWeek,omitempty"`
	Constraints      []string               `bson:"constraints,omitempty" json:"constraints,omitempty"` // injuries, schedule limits
	RecipientProfile map[string]interface{} `bson:"recipientProfile,omitempty" json:"recipientProfile,omitempty"`
}
