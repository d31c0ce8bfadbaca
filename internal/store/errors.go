package store

import (
	"errors"
	"fmt"
)

// ErrNotEligible is the benign outcome of a conditional update that matched
// zero rows: the record is missing, or its current status does not match the
// required pre-state. Callers racing with humans or other workers treat this
// as "someone else got there first," never as a crash.
var ErrNotEligible = errors.New("record not found or not eligible for transition")

// ErrEventNotClaimable is returned when a queue claim loses the CAS race:
// the event was no longer pending when the claim update ran. The loser must
// skip the event, not retry it.
var ErrEventNotClaimable = errors.New("integration event already claimed or not pending")

// TransitionError is an enriched ErrNotEligible for CLI and API surfaces:
// it names the entity, what transition was refused, and what the caller can
// do about it. Implements models.RecoverableError.
type TransitionError struct {
	Code       string
	EntityType string
	EntityID   string
	Reason     string
	Action     string
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("%s %s: %s", e.EntityType, e.EntityID, e.Reason)
}

func (e *TransitionError) ErrorCode() string { return e.Code }

func (e *TransitionError) Context() map[string]string {
	return map[string]string{
		"entity_type": e.EntityType,
		"entity_id":   e.EntityID,
	}
}

func (e *TransitionError) SuggestedAction() string { return e.Action }

// Unwrap lets errors.Is(err, ErrNotEligible) keep working on enriched errors.
func (e *TransitionError) Unwrap() error { return ErrNotEligible }
