// Package persistence provides standardized error types for persistence operations.
package persistence

import (
	"errors"
	"fmt"
)

// Standard persistence error types that all implementations should use.
var (
	// ErrDealNotFound indicates a deal was not found by the given identifier.
	ErrDealNotFound = errors.New("deal not found")

	// ErrDealAlreadyExists indicates a deal with the same id is already stored.
	ErrDealAlreadyExists = errors.New("deal already exists")

	// ErrDealStatusConflict indicates a conditional status update found the
	// deal in a different status than expected.
	ErrDealStatusConflict = errors.New("deal status changed concurrently")

	// ErrVersionNotFound indicates a workflow version was not found.
	ErrVersionNotFound = errors.New("workflow version not found")

	// ErrVersionAlreadyExists indicates a version label or checksum is already stored for the workflow.
	ErrVersionAlreadyExists = errors.New("workflow version already exists")

	// ErrTaskNotFound indicates a task was not found by the given identifier.
	ErrTaskNotFound = errors.New("task not found")

	// ErrQueueEntryNotFound indicates a queue entry was not found.
	ErrQueueEntryNotFound = errors.New("queue entry not found")

	// ErrQueueEntryNotFailed indicates a requeue of an entry that is not FAILED.
	ErrQueueEntryNotFailed = errors.New("queue entry is not failed")
)

// DealError wraps deal-related errors with additional context.
type DealError struct {
	Op     string // Operation being performed (e.g., "GetDealByID", "UpdateDealStatus")
	DealID string
	Err    error
}

func (e *DealError) Error() string {
	return fmt.Sprintf("%s operation failed for deal %s: %v", e.Op, e.DealID, e.Err)
}

func (e *DealError) Unwrap() error {
	return e.Err
}

// Is implements error comparison for deal errors.
func (e *DealError) Is(target error) bool {
	return errors.Is(e.Err, target)
}

// NewDealError creates a new deal error with context.
func NewDealError(op, dealID string, err error) *DealError {
	return &DealError{
		Op:     op,
		DealID: dealID,
		Err:    err,
	}
}

// VersionError wraps workflow-version errors with additional context.
type VersionError struct {
	Op         string
	WorkflowID string
	VersionID  string
	Err        error
}

func (e *VersionError) Error() string {
	target := e.WorkflowID
	if e.VersionID != "" {
		target = fmt.Sprintf("%s/%s", e.WorkflowID, e.VersionID)
	}

	return fmt.Sprintf("%s operation failed for workflow version %s: %v", e.Op, target, e.Err)
}

func (e *VersionError) Unwrap() error {
	return e.Err
}

func (e *VersionError) Is(target error) bool {
	return errors.Is(e.Err, target)
}

// IsDealNotFound checks if an error indicates a deal was not found.
func IsDealNotFound(err error) bool {
	return errors.Is(err, ErrDealNotFound)
}

// IsDealAlreadyExists checks if an error indicates a duplicate deal id.
func IsDealAlreadyExists(err error) bool {
	return errors.Is(err, ErrDealAlreadyExists)
}

// IsDealStatusConflict checks if an error indicates a lost conditional update.
func IsDealStatusConflict(err error) bool {
	return errors.Is(err, ErrDealStatusConflict)
}

// IsVersionNotFound checks if an error indicates a workflow version was not found.
func IsVersionNotFound(err error) bool {
	return errors.Is(err, ErrVersionNotFound)
}

// IsTaskNotFound checks if an error indicates a task was not found.
func IsTaskNotFound(err error) bool {
	return errors.Is(err, ErrTaskNotFound)
}

// IsQueueEntryNotFound checks if an error indicates a queue entry was not found.
func IsQueueEntryNotFound(err error) bool {
	return errors.Is(err, ErrQueueEntryNotFound)
}

// IsNotFound checks if an error is any of the not-found errors.
func IsNotFound(err error) bool {
	return IsDealNotFound(err) || IsVersionNotFound(err) || IsTaskNotFound(err) || IsQueueEntryNotFound(err)
}
