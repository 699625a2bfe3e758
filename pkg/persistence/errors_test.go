package persistence_test

import (
	"errors"
	"fmt"
	"testing"

	"github.com/dukex/dealflow/pkg/persistence"
	"github.com/stretchr/testify/assert"
)

func TestDealError(t *testing.T) {
	err := persistence.NewDealError("UpdateDealStatus", "deal-1", persistence.ErrDealStatusConflict)

	assert.Equal(t, "UpdateDealStatus operation failed for deal deal-1: deal status changed concurrently", err.Error())
	assert.True(t, persistence.IsDealStatusConflict(err))
	assert.True(t, errors.Is(fmt.Errorf("wrapped: %w", err), persistence.ErrDealStatusConflict))
	assert.False(t, persistence.IsDealNotFound(err))
}

func TestVersionError(t *testing.T) {
	err := &persistence.VersionError{Op: "MarkActive", WorkflowID: "fast-lease-v1", VersionID: "v-1", Err: persistence.ErrVersionNotFound}

	assert.Contains(t, err.Error(), "fast-lease-v1/v-1")
	assert.True(t, persistence.IsVersionNotFound(err))
	assert.True(t, persistence.IsNotFound(err))
}
