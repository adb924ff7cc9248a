package domain

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

type TemplateStatus string

const (
	TemplateActive   TemplateStatus = "active"
	TemplateArchived TemplateStatus = "archived"
)

type Visibility string

const (
	VisibilityPrivate      Visibility = "private"
	VisibilityOrganization Visibility = "organization"
	VisibilityPublic       Visibility = "public"
)

// Archive reasons recorded on templates and instances.
const (
	ArchiveReasonSuperseded       = "superseded"
	ArchiveReasonDuplicate        = "duplicate"
	ArchiveReasonGenerationFailed = "generation_failed"
)

// CalorieRange is derived from a nutrition plan's daily calorie target.
type CalorieRange struct {
	Min float64 `bson:"min" json:"min"`
	Max float64 `bson:"max" json:"max"`
}

// Characteristics are denormalized facets used for similarity search.
type Characteristics struct {
	ExperienceLevel    string        `bson:"experienceLevel" json:"experienceLevel"`
	Goals              []string      `bson:"goals" json:"goals"`
	DurationWeeks      int           `bson:"durationWeeks" json:"durationWeeks"`
	Equipment          []string      `bson:"equipment" json:"equipment"`
	RequestEquipment   []string      `bson:"requestEquipment,omitempty" json:"requestEquipment,omitempty"` // as requested; Equipment adds what the content uses
	TargetMuscleGroups []string      `bson:"targetMuscleGroups,omitempty" json:"targetMuscleGroups,omitempty"`
	CalorieRange       *CalorieRange `bson:"calorieRange,omitempty" json:"calorieRange,omitempty"`
	DietType           string        `bson:"dietType,omitempty" json:"dietType,omitempty"`
}

// CustomizationOptions declares which customizations ApplyTemplate may perform.
type CustomizationOptions struct {
	AllowDurationChange        bool `bson:"allowDurationChange" json:"allowDurationChange"`
	AllowEquipmentSubstitution bool `bson:"allowEquipmentSubstitution" json:"allowEquipmentSubstitution"`
	AllowMacroAdjustment       bool `bson:"allowMacroAdjustment" json:"allowMacroAdjustment"`
}

type Usage struct {
	TimesUsed       int                  `bson:"timesUsed" json:"timesUsed"`
	UniqueConsumers int                  `bson:"uniqueConsumers" json:"uniqueConsumers"`
	ConsumerIDs     []primitive.ObjectID `bson:"consumerIds,omitempty" json:"-"`
	AverageRating   float64              `bson:"averageRating" json:"averageRating"`
	RatingCount     int                  `bson:"ratingCount" json:"ratingCount"`
	LastUsedAt      *time.Time           `bson:"lastUsedAt,omitempty" json:"lastUsedAt,omitempty"`
}

// Template is one immutable version of a reusable generated artifact.
// Every version in a chain carries the chain's RootID; the root's RootID is its own ID.
type Template struct {
	ID              primitive.ObjectID  `bson:"_id,omitempty" json:"id"`
	RootID          primitive.ObjectID  `bson:"rootId" json:"rootId"`
	ParentID        *primitive.ObjectID `bson:"parentId,omitempty" json:"parentId,omitempty"`
	DerivedFromID   *primitive.ObjectID `bson:"derivedFromId,omitempty" json:"derivedFromId,omitempty"` // version the content was copied from
	Version         int                 `bson:"version" json:"version"`
	IsLatestVersion bool                `bson:"isLatestVersion" json:"isLatestVersion"`

	OwnerID        primitive.ObjectID  `bson:"ownerId" json:"ownerId"`
	OrganizationID *primitive.ObjectID `bson:"organizationId,omitempty" json:"organizationId,omitempty"`

	Name        string   `bson:"name" json:"name"`
	Description string   `bson:"description,omitempty" json:"description,omitempty"`
	Category    string   `bson:"category" json:"category"`
	Tags        []string `bson:"tags,omitempty" json:"tags,omitempty"`

	ContentFingerprint string               `bson:"contentFingerprint" json:"contentFingerprint"`
	InputFingerprint   string               `bson:"inputFingerprint" json:"inputFingerprint"`
	Characteristics    Characteristics      `bson:"characteristics" json:"characteristics"`
	Content            ProgramContent       `bson:"content" json:"content"`
	Customization      CustomizationOptions `bson:"customizationOptions" json:"customizationOptions"`
	Usage              Usage                `bson:"usage" json:"usage"`

	Status        TemplateStatus `bson:"status" json:"status"`
	ArchiveReason string         `bson:"archiveReason,omitempty" json:"archiveReason,omitempty"`
	ArchivedAt    *time.Time     `bson:"archivedAt,omitempty" json:"archivedAt,omitempty"`
	Visibility    Visibility     `bson:"visibility" json:"visibility"`

	SourceInstanceID *primitive.ObjectID `bson:"sourceInstanceId,omitempty" json:"sourceInstanceId,omitempty"`
	ChangeNote       string              `bson:"changeNote,omitempty" json:"changeNote,omitempty"`
	UpdatedBy        *primitive.ObjectID `bson:"updatedBy,omitempty" json:"updatedBy,omitempty"`
	CreatedAt        time.Time           `bson:"createdAt" json:"createdAt"`
	UpdatedAt        time.Time           `bson:"updatedAt" json:"updatedAt"`
}

func (t *Template) IsActive() bool {
	return t.Status == TemplateActive
}

// IsRoot reports whether t is the first version of its chain.
func (t *Template) IsRoot() bool {
	return t.ParentID == nil
}

// VisibleTo reports whether a producer in orgID may use the template.
func (t *Template) VisibleTo(actorID primitive.ObjectID, orgID *primitive.ObjectID) bool {
	switch t.Visibility {
	case VisibilityPublic:
		return true
	case VisibilityOrganization:
		if t.OwnerID == actorID {
			return true
		}
		return orgID != nil && t.OrganizationID != nil && *orgID == *t.OrganizationID
	default:
		return t.OwnerID == actorID
	}
}
