package history

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"stgpx/internal/components/chrono"
	"stgpx/internal/scrapers/sportstracker"
	"stgpx/lib/testutil"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/stretchr/testify/require"
)

func refs(urls ...string) []sportstracker.ActivityRef {
	out := make([]sportstracker.ActivityRef, len(urls))
	for i, u := range urls {
		out[i] = sportstracker.ActivityRef{URL: u}
	}
	return out
}

func TestStore(t *testing.T) {
	clock := chrono.NewFake(time.Date(2024, 6, 1, 8, 0, 0, 0, time.UTC))
	store, err := NewStore(testutil.SetupSqlite(t, testutil.SqliteParams{}), clock)
	require.NoError(t, err)
	ctx := context.Background()

	first, err := store.BeginRun(ctx, "download")
	require.NoError(t, err)
	activities := refs("https://st/w/1", "https://st/w/2", "https://st/w/3")
	require.NoError(t, store.RecordActivities(ctx, first, activities))
	require.NoError(t, store.RecordOutcomes(ctx, first, []sportstracker.Outcome{
		{Ref: activities[0], Duration: time.Second},
		{Ref: activities[1], Err: errors.New("export button stuck"), Duration: time.Second * 15},
	}))
	require.NoError(t, clock.Sleep(ctx, time.Minute))
	require.NoError(t, store.FinishRun(ctx, first, errors.New("export button stuck")))

	second, err := store.BeginRun(ctx, "list")
	require.NoError(t, err)
	require.NotEqual(t, first, second)
	require.NoError(t, store.RecordActivities(ctx, second, activities[:1]))

	exported, err := store.ExportedURLs(ctx)
	require.NoError(t, err)
	require.Equal(t, map[string]bool{"https://st/w/1": true}, exported)
	require.Equal(t, activities[1:], FilterExported(activities, exported))

	runs, err := store.RecentRuns(ctx, 10)
	require.NoError(t, err)
	want := []RunSummary{
		{
			ID:         second,
			Mode:       "list",
			StartedAt:  clock.Now(),
			Status:     StatusRunning,
			Activities: 1,
		},
		{
			ID:         first,
			Mode:       "download",
			StartedAt:  clock.Now().Add(-time.Minute),
			Duration:   time.Minute,
			Status:     StatusFailed,
			Error:      "export button stuck",
			Activities: 3,
			Exported:   1,
			Failed:     1,
		},
	}
	diff := cmp.Diff(want, runs, cmpopts.EquateApproxTime(time.Millisecond))
	if diff != "" {
		t.Fatalf("runs mismatch (-want +got):\n%s", diff)
	}

	runs, err = store.RecentRuns(ctx, 1)
	require.NoError(t, err)
	require.Len(t, runs, 1)

	_, err = store.RecentRuns(ctx, 0)
	require.ErrorIs(t, err, ErrInvalidLimit)
}

func TestOpenReusesExistingDatabase(t *testing.T) {
	path := filepath.Join(t.TempDir(), "history.db")
	clock := chrono.NewFake(time.Date(2024, 6, 1, 8, 0, 0, 0, time.UTC))
	ctx := context.Background()

	store, err := Open(path, clock)
	require.NoError(t, err)
	run, err := store.BeginRun(ctx, "download")
	require.NoError(t, err)
	require.NoError(t, store.RecordActivities(ctx, run, refs("https://st/w/1")))
	require.NoError(t, store.RecordOutcomes(ctx, run, []sportstracker.Outcome{{Ref: refs("https://st/w/1")[0]}}))
	require.NoError(t, store.FinishRun(ctx, run, nil))
	require.NoError(t, store.Close())

	store, err = Open(path, clock)
	require.NoError(t, err)
	defer store.Close()

	exported, err := store.ExportedURLs(ctx)
	require.NoError(t, err)
	require.True(t, exported["https://st/w/1"])

	runs, err := store.RecentRuns(ctx, 5)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	require.Equal(t, StatusOK, runs[0].Status)
}

func TestBeginRunRequiresMode(t *testing.T) {
	store, err := NewStore(testutil.SetupSqlite(t, testutil.SqliteParams{}), chrono.NewFake(time.Now()))
	require.NoError(t, err)

	require.Panics(t, func() {
		store.BeginRun(context.Background(), "")
	})
	runs, err := store.RecentRuns(context.Background(), 5)
	require.NoError(t, err)
	require.Empty(t, runs)
}
