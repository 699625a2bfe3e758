package versioning

import (
	"bytes"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/dukex/dealflow/pkg/catalog"
	"github.com/dukex/dealflow/pkg/persistence"
	"github.com/dukex/dealflow/pkg/persistence/file"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupService(t *testing.T) (*Service, persistence.WorkflowVersionRepository, []byte) {
	t.Helper()

	source, err := os.ReadFile(filepath.Join("testdata", "fast_lease.yaml"))
	require.NoError(t, err)

	repo := file.NewPersistence(t.TempDir()).WorkflowVersionRepository()

	return NewService(repo, catalog.NewRegistry(), slog.Default()), repo, source
}

func modified(source []byte) []byte {
	return bytes.Replace(source, []byte("title: Fast lease"), []byte("title: Fast lease revised"), 1)
}

func TestChecksum(t *testing.T) {
	assert.Equal(t, "e3b0c44298fc1c149afbf4c8996fb92427ae41e4649b934ca495991b7852b855", Checksum(nil))
	assert.Len(t, Checksum([]byte("a")), 64)
}

func TestEnsureActive_InsertsOnceAndReuses(t *testing.T) {
	service, repo, source := setupService(t)
	ctx := t.Context()

	first, err := service.EnsureActive(ctx, EnsureActiveInput{Source: source, CreatedBy: "test"})
	require.NoError(t, err)
	assert.True(t, first.IsActive)
	assert.Equal(t, "fast-lease-v1", first.WorkflowID)
	assert.Equal(t, Checksum(source), first.Checksum)
	require.NotNil(t, first.Template)

	again, err := service.EnsureActive(ctx, EnsureActiveInput{WorkflowID: "fast-lease-v1", Source: source})
	require.NoError(t, err)
	assert.Equal(t, first.ID, again.ID)

	versions, err := repo.List(ctx, "fast-lease-v1")
	require.NoError(t, err)
	assert.Len(t, versions, 1)
}

func TestEnsureActive_SwitchesAndReactivates(t *testing.T) {
	service, repo, source := setupService(t)
	ctx := t.Context()

	original, err := service.EnsureActive(ctx, EnsureActiveInput{Source: source})
	require.NoError(t, err)

	revised, err := service.EnsureActive(ctx, EnsureActiveInput{Source: modified(source)})
	require.NoError(t, err)
	assert.NotEqual(t, original.ID, revised.ID)

	active, err := repo.FindActive(ctx, "fast-lease-v1")
	require.NoError(t, err)
	assert.Equal(t, revised.ID, active.ID)

	restored, err := service.EnsureActive(ctx, EnsureActiveInput{Source: source})
	require.NoError(t, err)
	assert.Equal(t, original.ID, restored.ID)
	assert.True(t, restored.IsActive)

	versions, err := repo.List(ctx, "fast-lease-v1")
	require.NoError(t, err)
	assert.Len(t, versions, 2)
}

func TestEnsureActive_Concurrent(t *testing.T) {
	service, repo, source := setupService(t)
	ctx := t.Context()

	var wg sync.WaitGroup

	ids := make([]string, 8)
	errs := make([]error, 8)

	for i := range 8 {
		wg.Add(1)

		go func() {
			defer wg.Done()

			version, err := service.EnsureActive(ctx, EnsureActiveInput{Source: source})

			errs[i] = err
			if version != nil {
				ids[i] = version.ID
			}
		}()
	}

	wg.Wait()

	for i := range 8 {
		require.NoError(t, errs[i])
		assert.Equal(t, ids[0], ids[i])
	}

	versions, err := repo.List(ctx, "fast-lease-v1")
	require.NoError(t, err)
	assert.Len(t, versions, 1)
}

func TestEnsureActive_Errors(t *testing.T) {
	service, _, source := setupService(t)

	_, err := service.EnsureActive(t.Context(), EnsureActiveInput{WorkflowID: "other", Source: source})
	assert.ErrorIs(t, err, ErrWorkflowMismatch)

	_, err = service.EnsureActive(t.Context(), EnsureActiveInput{Source: []byte("workflow: [")})
	assert.Error(t, err)
}

func TestCreateVersionAndActivate(t *testing.T) {
	service, _, source := setupService(t)
	ctx := t.Context()

	_, err := service.GetActiveVersion(ctx, "fast-lease-v1")
	assert.ErrorIs(t, err, ErrNoActiveVersion)

	v1, err := service.CreateVersion(ctx, CreateVersionInput{Source: source, Version: "2024.1", Activate: true})
	require.NoError(t, err)
	assert.Equal(t, "Fast lease", v1.Title)

	_, err = service.CreateVersion(ctx, CreateVersionInput{Source: modified(source), Version: "2024.1"})
	assert.ErrorIs(t, err, persistence.ErrVersionAlreadyExists)

	v2, err := service.CreateVersion(ctx, CreateVersionInput{Source: modified(source), Version: "2024.2"})
	require.NoError(t, err)
	assert.False(t, v2.IsActive)

	activated, err := service.Activate(ctx, "fast-lease-v1", v2.ID)
	require.NoError(t, err)
	assert.True(t, activated.IsActive)
	require.NotNil(t, activated.Template)
	assert.Equal(t, "Fast lease revised", activated.Template.Workflow.Title)

	version, cat, err := service.ActiveCatalog(ctx, "fast-lease-v1")
	require.NoError(t, err)
	assert.Equal(t, v2.ID, version.ID)
	assert.Equal(t, "NEW", cat.InitialStatus().Key)

	byID, err := service.GetVersionByID(ctx, v1.ID)
	require.NoError(t, err)
	assert.False(t, byID.IsActive)

	list, err := service.ListVersions(ctx, "fast-lease-v1")
	require.NoError(t, err)
	assert.Len(t, list, 2)
}

func TestSyncFromCache(t *testing.T) {
	service, _, source := setupService(t)

	cache := catalog.NewCache(catalog.NewBytesSource(source), slog.Default())

	version, err := service.SyncFromCache(t.Context(), cache, "sync")
	require.NoError(t, err)
	assert.True(t, version.IsActive)
	assert.Equal(t, "sync", version.CreatedBy)
}
