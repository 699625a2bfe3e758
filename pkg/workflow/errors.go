package workflow

import (
	"errors"
	"fmt"
)

// Reason explains why a transition was rejected.
type Reason string

const (
	ReasonUnknownStatus         Reason = "UNKNOWN_STATUS"
	ReasonTerminalStatus        Reason = "TERMINAL_STATUS"
	ReasonExitRequirementFailed Reason = "EXIT_REQUIREMENT_FAILED"
	ReasonUnknownTransition     Reason = "UNKNOWN_TRANSITION"
	ReasonRoleNotAllowed        Reason = "ROLE_NOT_ALLOWED"
	ReasonGuardFailed           Reason = "GUARD_FAILED"
)

var (
	// ErrTransitionConflict is returned when another writer changed the deal
	// status between the read and the conditional update.
	ErrTransitionConflict = errors.New("deal status changed concurrently")

	// ErrAuditUnconfirmed is returned together with a result when the new
	// status was persisted but the audit entry could not be written.
	ErrAuditUnconfirmed = errors.New("transition persisted but audit entry was not recorded")

	ErrTaskAlreadyDone = errors.New("task is already done")
)

// FailedRequirement is one unmet exit requirement or guard.
type FailedRequirement struct {
	Key     string `json:"key"`
	Type    string `json:"type"`
	Message string `json:"message"`
}

// TransitionValidation is the outcome of checking a transition without
// applying it.
type TransitionValidation struct {
	Allowed            bool                `json:"allowed"`
	Reason             Reason              `json:"reason,omitempty"`
	Message            string              `json:"message,omitempty"`
	From               string              `json:"from"`
	To                 string              `json:"to"`
	FailedRequirements []FailedRequirement `json:"failed_requirements,omitempty"`
}

// TransitionError is an expected rejection: the deal stays where it is.
type TransitionError struct {
	Message    string
	Validation TransitionValidation
}

func (e *TransitionError) Error() string {
	return e.Message
}

func newTransitionError(validation TransitionValidation) *TransitionError {
	message := validation.Message
	if message == "" {
		message = fmt.Sprintf("transition %s -> %s rejected: %s", validation.From, validation.To, validation.Reason)
	}

	return &TransitionError{Message: message, Validation: validation}
}

func IsTransitionError(err error) bool {
	var transitionErr *TransitionError

	return errors.As(err, &transitionErr)
}

// AsTransitionError returns the TransitionError wrapped in err, if any.
func AsTransitionError(err error) (*TransitionError, bool) {
	var transitionErr *TransitionError
	if errors.As(err, &transitionErr) {
		return transitionErr, true
	}

	return nil, false
}

func IsTransitionConflict(err error) bool {
	return errors.Is(err, ErrTransitionConflict)
}

func IsAuditUnconfirmed(err error) bool {
	return errors.Is(err, ErrAuditUnconfirmed)
}
