package sqlbase

import (
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMigrationManager_LatestVersion(t *testing.T) {
	m := NewMigrationManager(slog.Default(), nil, map[int]string{3: "c", 1: "a", 2: "b"})
	assert.Equal(t, 3, m.LatestVersion())

	empty := NewMigrationManager(slog.Default(), nil, map[int]string{})
	assert.Equal(t, 0, empty.LatestVersion())
}
