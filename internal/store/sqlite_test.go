package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/vcard-normalizer/internal/config"
	"github.com/sells-group/vcard-normalizer/internal/model"
)

func newTestSQLiteStore(t *testing.T) *SQLiteStore {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "var", "test.db")
	st, err := NewSQLite(dbPath)
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() }) //nolint:errcheck
	require.NoError(t, st.Migrate(context.Background()))
	return st
}

func TestSQLite_RunLifecycle(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	run, err := st.CreateRun(ctx, model.RunModeAuto, []string{"icloud.vcf", "google.vcf"})
	require.NoError(t, err)
	assert.Equal(t, model.RunStatusRunning, run.Status)

	got, err := st.GetRun(ctx, run.ID)
	require.NoError(t, err)
	assert.Equal(t, model.RunModeAuto, got.Mode)
	assert.Equal(t, []string{"icloud.vcf", "google.vcf"}, got.Sources)
	assert.Nil(t, got.Result)

	result := &model.RunResult{InputCount: 10, OutputCount: 7, DuplicateClusters: 3, Written: 7}
	require.NoError(t, st.CompleteRun(ctx, run.ID, result))

	got, err = st.GetRun(ctx, run.ID)
	require.NoError(t, err)
	assert.Equal(t, model.RunStatusComplete, got.Status)
	assert.Equal(t, result, got.Result)
}

func TestSQLite_AbortedAndFailed(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	aborted, err := st.CreateRun(ctx, model.RunModeInteractive, nil)
	require.NoError(t, err)
	require.NoError(t, st.CompleteRun(ctx, aborted.ID, &model.RunResult{Aborted: true}))

	failed, err := st.CreateRun(ctx, model.RunModeAuto, nil)
	require.NoError(t, err)
	require.NoError(t, st.FailRun(ctx, failed.ID, eris.New("disk full")))

	got, err := st.GetRun(ctx, aborted.ID)
	require.NoError(t, err)
	assert.Equal(t, model.RunStatusAborted, got.Status)
	assert.Empty(t, got.Sources)

	got, err = st.GetRun(ctx, failed.ID)
	require.NoError(t, err)
	assert.Equal(t, model.RunStatusFailed, got.Status)
	assert.Equal(t, "disk full", got.Error)
}

func TestSQLite_NotFound(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	_, err := st.GetRun(ctx, "missing")
	assert.ErrorIs(t, err, ErrNotFound)
	assert.ErrorIs(t, st.CompleteRun(ctx, "missing", &model.RunResult{}), ErrNotFound)
	assert.ErrorIs(t, st.FailRun(ctx, "missing", nil), ErrNotFound)
}

func TestSQLite_ListRuns(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	var ids []string
	for i, mode := range []model.RunMode{model.RunModeAuto, model.RunModeInteractive, model.RunModeAuto} {
		run, err := st.CreateRun(ctx, mode, nil)
		require.NoError(t, err)
		ids = append(ids, run.ID)
		if i == 0 {
			require.NoError(t, st.CompleteRun(ctx, run.ID, &model.RunResult{}))
		}
		time.Sleep(5 * time.Millisecond)
	}

	all, err := st.ListRuns(ctx, model.RunFilter{})
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, ids[2], all[0].ID, "newest first")

	auto, err := st.ListRuns(ctx, model.RunFilter{Mode: model.RunModeAuto})
	require.NoError(t, err)
	assert.Len(t, auto, 2)

	done, err := st.ListRuns(ctx, model.RunFilter{Status: model.RunStatusComplete})
	require.NoError(t, err)
	require.Len(t, done, 1)
	assert.Equal(t, ids[0], done[0].ID)

	page, err := st.ListRuns(ctx, model.RunFilter{Limit: 1, Offset: 1})
	require.NoError(t, err)
	require.Len(t, page, 1)
	assert.Equal(t, ids[1], page[0].ID)

	future, err := st.ListRuns(ctx, model.RunFilter{CreatedAfter: time.Now().Add(time.Hour)})
	require.NoError(t, err)
	assert.Empty(t, future)
}

func TestOpen(t *testing.T) {
	ctx := context.Background()

	st, err := Open(ctx, config.StoreConfig{Driver: DriverNone})
	require.NoError(t, err)
	run, err := st.CreateRun(ctx, model.RunModeAuto, nil)
	require.NoError(t, err)
	assert.NotEmpty(t, run.ID)
	_, err = st.GetRun(ctx, run.ID)
	assert.ErrorIs(t, err, ErrNotFound)

	st, err = Open(ctx, config.StoreConfig{Driver: DriverSQLite, DatabaseURL: filepath.Join(t.TempDir(), "runs.db")})
	require.NoError(t, err)
	assert.IsType(t, &SQLiteStore{}, st)
	require.NoError(t, st.Close())

	_, err = Open(ctx, config.StoreConfig{Driver: "mongo"})
	assert.Error(t, err)
}
