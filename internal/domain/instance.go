package domain

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

type InstanceStatus string

const (
	InstanceGenerating InstanceStatus = "generating"
	InstanceGenerated  InstanceStatus = "generated"
	InstanceReviewed   InstanceStatus = "reviewed"
	InstanceApproved   InstanceStatus = "approved"
	InstanceRejected   InstanceStatus = "rejected"
	InstanceApplied    InstanceStatus = "applied"
	InstanceArchived   InstanceStatus = "archived"
)

// Modification is one entry of an instance's append-only edit log.
// OriginalValue and NewValue are serialized JSON so a revert is a plain copy.
type Modification struct {
	Field         string             `bson:"field" json:"field"`
	OriginalValue string             `bson:"originalValue" json:"originalValue"`
	NewValue      string             `bson:"newValue" json:"newValue"`
	Reason        string             `bson:"reason" json:"reason"`
	ModifiedBy    primitive.ObjectID `bson:"modifiedBy" json:"modifiedBy"`
	Timestamp     time.Time          `bson:"timestamp" json:"timestamp"`
}

// Customizations requested when materializing a template.
type Customizations struct {
	DurationWeeks      *int         `bson:"durationWeeks,omitempty" json:"durationWeeks,omitempty"`
	AvailableEquipment []string     `bson:"availableEquipment,omitempty" json:"availableEquipment,omitempty"`
	MacroTargets       MacroTargets `bson:"macroTargets,omitempty" json:"macroTargets,omitempty"`
}

// AppliedCustomizations records what ApplyTemplate actually changed.
type AppliedCustomizations struct {
	DurationChanged    bool         `bson:"durationChanged" json:"durationChanged"`
	DurationWeeks      int          `bson:"durationWeeks,omitempty" json:"durationWeeks,omitempty"`
	EquipmentFiltered  bool         `bson:"equipmentFiltered" json:"equipmentFiltered"`
	AvailableEquipment []string     `bson:"availableEquipment,omitempty" json:"availableEquipment,omitempty"`
	MacrosAdjusted     bool         `bson:"macrosAdjusted" json:"macrosAdjusted"`
	MacroTargets       MacroTargets `bson:"macroTargets,omitempty" json:"macroTargets,omitempty"`
	Skipped            []string     `bson:"skipped,omitempty" json:"skipped,omitempty"` // requested but not permitted by the template
}

// GenerationMeta is the telemetry surfaced by the generative service.
type GenerationMeta struct {
	Model            string  `bson:"model,omitempty" json:"model,omitempty"`
	PromptTokens     int     `bson:"promptTokens" json:"promptTokens"`
	CompletionTokens int     `bson:"completionTokens" json:"completionTokens"`
	EstimatedCost    float64 `bson:"estimatedCost" json:"estimatedCost"`
	ArchiveKey       string  `bson:"archiveKey,omitempty" json:"archiveKey,omitempty"`
	FromTemplate     bool    `bson:"fromTemplate" json:"fromTemplate"`
}

// GeneratedInstance is one concrete application of a template or a fresh generation to a recipient.
type GeneratedInstance struct {
	ID          primitive.ObjectID  `bson:"_id,omitempty" json:"id"`
	ProducerID  primitive.ObjectID  `bson:"producerId" json:"producerId"`
	RecipientID primitive.ObjectID  `bson:"recipientId" json:"recipientId"`
	TemplateID  *primitive.ObjectID `bson:"templateId,omitempty" json:"templateId,omitempty"`
	RequestID   string              `bson:"requestId" json:"requestId"`

	InputData      GenerationRequest     `bson:"inputData" json:"inputData"`
	Content        ProgramContent        `bson:"content" json:"content"`
	Status         InstanceStatus        `bson:"status" json:"status"`
	Customizations AppliedCustomizations `bson:"customizations" json:"customizations"`
	Modifications  []Modification        `bson:"modifications" json:"modifications"`
	Generation     GenerationMeta        `bson:"generation" json:"generation"`

	ReviewedBy      *primitive.ObjectID `bson:"reviewedBy,omitempty" json:"reviewedBy,omitempty"`
	ReviewedAt      *time.Time          `bson:"reviewedAt,omitempty" json:"reviewedAt,omitempty"`
	ApprovedAt      *time.Time          `bson:"approvedAt,omitempty" json:"approvedAt,omitempty"`
	RejectionReason string              `bson:"rejectionReason,omitempty" json:"rejectionReason,omitempty"`

	ProgramID *primitive.ObjectID `bson:"programId,omitempty" json:"programId,omitempty"` // TrainingPlan created on apply
	AppliedAt *time.Time          `bson:"appliedAt,omitempty" json:"appliedAt,omitempty"`
	StartDate *time.Time          `bson:"startDate,omitempty" json:"startDate,omitempty"`

	ArchivedAt          *time.Time `bson:"archivedAt,omitempty" json:"archivedAt,omitempty"`
	ArchiveReason       string     `bson:"archiveReason,omitempty" json:"archiveReason,omitempty"`
	ScheduledDeletionAt time.Time  `bson:"scheduledDeletionAt" json:"scheduledDeletionAt"`
	CreatedAt           time.Time  `bson:"createdAt" json:"createdAt"`
	UpdatedAt           time.Time  `bson:"updatedAt" json:"updatedAt"`
}

// ProgramStart is the reference date for compliance: StartDate, then AppliedAt, then CreatedAt.
func (i *GeneratedInstance) ProgramStart() time.Time {
	switch {
	case i.StartDate != nil:
		return *i.StartDate
	case i.AppliedAt != nil:
		return *i.AppliedAt
	default:
		return i.CreatedAt
	}
}
