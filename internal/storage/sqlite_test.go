package storage

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/driftwatch/driftwatch/internal/types"
)

func openTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	store, err := Open(filepath.Join(t.TempDir(), "driftwatch.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func TestSaveAndLoadAlerts(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	base := time.Date(2026, 8, 25, 12, 0, 0, 0, time.UTC)
	for i, title := range []string{"first", "second", "third"} {
		err := store.SaveAlert(ctx, types.Alert{
			AlertID:     string(rune('a' + i)),
			Timestamp:   base.Add(time.Duration(i) * time.Minute),
			Severity:    types.SeverityWarning,
			Title:       title,
			Description: "desc",
			Source:      "monitor",
			Category:    "monitoring",
			Details:     map[string]any{"n": float64(i)},
			Metadata:    map[string]any{},
		})
		require.NoError(t, err)
	}

	alerts, err := store.RecentAlerts(ctx, 2)
	require.NoError(t, err)
	require.Len(t, alerts, 2)
	assert.Equal(t, "third", alerts[0].Title)
	assert.Equal(t, "second", alerts[1].Title)
	assert.Equal(t, types.SeverityWarning, alerts[0].Severity)
	assert.Equal(t, base.Add(2*time.Minute), alerts[0].Timestamp)
	assert.Equal(t, float64(2), alerts[0].Details["n"])
}

func TestSaveAlertIsIdempotentPerID(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	a := types.Alert{
		AlertID:   "dup",
		Timestamp: time.Now().UTC(),
		Severity:  types.SeverityError,
		Title:     "same alert",
		Details:   map[string]any{},
		Metadata:  map[string]any{},
	}
	require.NoError(t, store.SaveAlert(ctx, a))
	require.NoError(t, store.SaveAlert(ctx, a))

	alerts, err := store.RecentAlerts(ctx, 10)
	require.NoError(t, err)
	assert.Len(t, alerts, 1)
}

func TestSaveAndLoadIssues(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	err := store.SaveIssue(ctx, types.Issue{
		Timestamp:   time.Date(2026, 8, 25, 9, 30, 0, 0, time.UTC),
		Type:        "git_uncommitted_changes",
		Description: "Working tree has uncommitted changes",
		Severity:    types.SeverityInfo,
		Details:     map[string]any{"branch": "main"},
	})
	require.NoError(t, err)

	issues, err := store.RecentIssues(ctx, 10)
	require.NoError(t, err)
	require.Len(t, issues, 1)
	assert.Equal(t, "git_uncommitted_changes", issues[0].Type)
	assert.Equal(t, types.SeverityInfo, issues[0].Severity)
	assert.Equal(t, "main", issues[0].Details["branch"])
}

func TestRecentAlertsEmptyStore(t *testing.T) {
	store := openTestStore(t)
	alerts, err := store.RecentAlerts(context.Background(), 10)
	require.NoError(t, err)
	assert.Empty(t, alerts)
}
