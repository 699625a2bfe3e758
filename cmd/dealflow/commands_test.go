package main

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/dukex/dealflow/pkg/models"
	"github.com/dukex/dealflow/pkg/queues"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func run(t *testing.T, args ...string) []byte {
	t.Helper()

	var out bytes.Buffer

	root := newRootCommand()
	root.Writer = &out

	err := root.Run(t.Context(), append([]string{"dealflow"}, args...))
	require.NoError(t, err, out.String())

	return out.Bytes()
}

func TestTemplateValidate(t *testing.T) {
	out := run(t, "template", "validate", templatePath)

	var summary templateSummary
	require.NoError(t, json.Unmarshal(out, &summary))

	assert.Equal(t, "fast-lease-v1", summary.WorkflowID)
	assert.NotEmpty(t, summary.Checksum)
	assert.Positive(t, summary.Statuses)
	assert.Positive(t, summary.Transitions)
	assert.NotEmpty(t, summary.Initial)
}

func TestTemplateValidate_Invalid(t *testing.T) {
	path := filepath.Join(t.TempDir(), "broken.yaml")
	require.NoError(t, os.WriteFile(path, []byte("workflow: [unterminated"), 0o600))

	_, err := validateTemplate(path)
	require.Error(t, err)
}

func TestVersionsLifecycle(t *testing.T) {
	database := "file://" + t.TempDir()
	base := []string{"--database-url", database, "--template-path", templatePath}

	var synced models.WorkflowVersion
	require.NoError(t, json.Unmarshal(run(t, append(base, "versions", "sync")...), &synced))
	assert.True(t, synced.IsActive)
	assert.Equal(t, "fast-lease-v1", synced.WorkflowID)

	source, err := os.ReadFile(templatePath)
	require.NoError(t, err)

	revised := filepath.Join(t.TempDir(), "fast-lease-v2.yaml")
	require.NoError(t, os.WriteFile(revised, append(source, []byte("\n# revised\n")...), 0o600))

	var labelled models.WorkflowVersion
	out := run(t, append(base, "versions", "sync", "--file", revised, "--version", "2.0.0", "--activate=false")...)
	require.NoError(t, json.Unmarshal(out, &labelled))
	assert.False(t, labelled.IsActive)

	var listed []models.WorkflowVersion
	require.NoError(t, json.Unmarshal(run(t, append(base, "versions", "list", "--workflow-id", "fast-lease-v1")...), &listed))
	assert.Len(t, listed, 2)

	var activated models.WorkflowVersion
	require.NoError(t, json.Unmarshal(run(t, append(base, "versions", "activate", "--id", labelled.ID)...), &activated))
	assert.True(t, activated.IsActive)
	assert.Equal(t, labelled.ID, activated.ID)
}

func TestQueuesRun_Empty(t *testing.T) {
	database := "file://" + t.TempDir()

	var result queues.RunResult
	require.NoError(t, json.Unmarshal(run(t, "--database-url", database, "queues", "run"), &result))

	assert.Equal(t, queues.RunResult{}, result)
}

func TestResyncAll_NoDeals(t *testing.T) {
	database := "file://" + t.TempDir()

	out := run(t, "--database-url", database, "resync")
	assert.Contains(t, string(out), `"total": 0`)
}
