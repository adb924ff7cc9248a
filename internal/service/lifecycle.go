package service

import (
	"fmt"

	"alcyxob/fitgen/internal/domain"
)

// TransitionRule defines an allowed instance status transition.
type TransitionRule struct {
	From domain.InstanceStatus
	To   domain.InstanceStatus
}

// DefaultTransitions is the generated-instance state machine. Edits move an
// instance back to reviewed; archived is a soft delete reachable from every
// other state.
var DefaultTransitions = []TransitionRule{
	{From: domain.InstanceGenerating, To: domain.InstanceGenerated},
	{From: domain.InstanceGenerated, To: domain.InstanceReviewed},
	{From: domain.InstanceReviewed, To: domain.InstanceReviewed},
	{From: domain.InstanceReviewed, To: domain.InstanceApproved},
	{From: domain.InstanceReviewed, To: domain.InstanceRejected},
	{From: domain.InstanceApproved, To: domain.InstanceReviewed},
	{From: domain.InstanceRejected, To: domain.InstanceReviewed},
	{From: domain.InstanceApproved, To: domain.InstanceApplied},

	{From: domain.InstanceGenerating, To: domain.InstanceArchived},
	{From: domain.InstanceGenerated, To: domain.InstanceArchived},
	{From: domain.InstanceReviewed, To: domain.InstanceArchived},
	{From: domain.InstanceApproved, To: domain.InstanceArchived},
	{From: domain.InstanceRejected, To: domain.InstanceArchived},
	{From: domain.InstanceApplied, To: domain.InstanceArchived},
}

// LifecycleMachine validates instance status transitions.
type LifecycleMachine struct {
	transitions []TransitionRule
}

func NewLifecycleMachine() *LifecycleMachine {
	return &LifecycleMachine{transitions: DefaultTransitions}
}

// ValidateTransition returns nil if from->to is allowed, a *TransitionError otherwise.
func (m *LifecycleMachine) ValidateTransition(from, to domain.InstanceStatus) error {
	for _, t := range m.transitions {
		if t.From == from && t.To == to {
			return nil
		}
	}
	return &TransitionError{
		From:    from,
		To:      to,
		Message: fmt.Sprintf("transition from %s to %s is not allowed", from, to),
	}
}

// AllowedTransitions returns all valid target states from the given state.
func (m *LifecycleMachine) AllowedTransitions(from domain.InstanceStatus) []domain.InstanceStatus {
	var allowed []domain.InstanceStatus
	for _, t := range m.transitions {
		if t.From == from {
			allowed = append(allowed, t.To)
		}
	}
	return allowed
}

// CanEdit reports whether content edits are accepted in status s.
func (m *LifecycleMachine) CanEdit(s domain.InstanceStatus) bool {
	return m.ValidateTransition(s, domain.InstanceReviewed) == nil
}

// TransitionError is a structured error for invalid transitions. It matches ErrInvalidState.
type TransitionError struct {
	From    domain.InstanceStatus `json:"from"`
	To      domain.InstanceStatus `json:"to"`
	Message string                `json:"message"`
}

func (e *TransitionError) Error() string {
	return e.Message
}

func (e *TransitionError) Unwrap() error {
	return ErrInvalidState
}
