package service

import (
	"errors"
	"fmt"

	"alcyxob/fitgen/internal/repository"
)

// Error categories. Every error returned by this package matches exactly one
// of them under errors.Is.
var (
	ErrNotFound     = errors.New("not found")
	ErrUnauthorized = errors.New("unauthorized")
	ErrInvalidState = errors.New("invalid state")
	ErrConflict     = errors.New("conflict")
)

var (
	ErrTemplateNotFound = fmt.Errorf("%w: template", ErrNotFound)
	ErrInstanceNotFound = fmt.Errorf("%w: instance", ErrNotFound)
	ErrLogNotFound      = fmt.Errorf("%w: performance log", ErrNotFound)
	ErrUserNotFound     = fmt.Errorf("%w: user", ErrNotFound)
	ErrClientNotFound   = fmt.Errorf("%w: client user", ErrNotFound)
	ErrProgramNotFound  = fmt.Errorf("%w: applied program", ErrNotFound)

	ErrNotOwner           = fmt.Errorf("%w: actor does not own this resource", ErrUnauthorized)
	ErrClientNotManaged   = fmt.Errorf("%w: client is not managed by this trainer", ErrUnauthorized)
	ErrTemplateNotVisible = fmt.Errorf("%w: template is not visible to this trainer", ErrUnauthorized)

	ErrMalformedRequest  = fmt.Errorf("%w: malformed generation request", ErrInvalidState)
	ErrTemplateArchived  = fmt.Errorf("%w: template is archived", ErrInvalidState)
	ErrInvalidRating     = fmt.Errorf("%w: rating must be between 1 and 5", ErrInvalidState)
	ErrModificationIndex = fmt.Errorf("%w: modification index out of range", ErrInvalidState)
	ErrUnsupportedField  = fmt.Errorf("%w: unsupported field path", ErrInvalidState)
	ErrFieldUnresolved   = fmt.Errorf("%w: field path does not resolve", ErrInvalidState)
	ErrInvalidFieldValue = fmt.Errorf("%w: invalid value for field", ErrInvalidState)
	ErrWorkoutIndex      = fmt.Errorf("%w: workout index out of range", ErrInvalidState)
	ErrExerciseIndex     = fmt.Errorf("%w: exercise index out of range", ErrInvalidState)
	ErrInvalidSet        = fmt.Errorf("%w: invalid set data", ErrInvalidState)
	ErrNoContent         = fmt.Errorf("%w: instance has no content", ErrInvalidState)
	ErrNoSubstitute      = fmt.Errorf("%w: no compatible substitute", ErrInvalidState)
	ErrInvalidDirection  = fmt.Errorf("%w: direction must be increase or decrease", ErrInvalidState)
	ErrGenerationFailed  = fmt.Errorf("%w: generation failed", ErrInvalidState)

	ErrDuplicate = fmt.Errorf("%w: duplicate identifier", ErrConflict)
)

// mapRepoErr translates repository errors into this package's taxonomy.
// notFound is returned for repository.ErrNotFound.
func mapRepoErr(err, notFound error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, repository.ErrNotFound):
		return notFound
	case errors.Is(err, repository.ErrConflict):
		return fmt.Errorf("%w: %v", ErrDuplicate, err)
	default:
		return err
	}
}
