package snapshot

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gridkernel/internal/core"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "snapshots.db")
	store, err := Open(path)
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestSaveLoadRoundTrip(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	snap := core.Snapshot{
		BotName:     "grid-bot-1",
		BotState:    []byte(`{"mode":"grid"}`),
		GridState:   []byte(`{"orders":[]}`),
		DCAState:    []byte(`{}`),
		RiskState:   []byte(`{"halted":false}`),
		TrendState:  []byte(`{"regime":"ranging"}`),
		HybridState: []byte(`{}`),
		SavedAt:     time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC),
	}

	require.NoError(t, store.Save(ctx, snap))

	loaded, ok, err := store.Load(ctx, "grid-bot-1")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, snap.BotName, loaded.BotName)
	assert.Equal(t, snap.BotState, loaded.BotState)
	assert.Equal(t, snap.GridState, loaded.GridState)
	assert.True(t, snap.SavedAt.Equal(loaded.SavedAt))
}

func TestLoadMissingBotReturnsNotFound(t *testing.T) {
	store := openTestStore(t)
	_, ok, err := store.Load(context.Background(), "nonexistent")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestSaveUpsertsExistingBot(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	first := core.Snapshot{BotName: "bot", BotState: []byte("v1"), SavedAt: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}
	require.NoError(t, store.Save(ctx, first))

	second := core.Snapshot{BotName: "bot", BotState: []byte("v2"), SavedAt: time.Date(2026, 1, 2, 0, 0, 0, 0, time.UTC)}
	require.NoError(t, store.Save(ctx, second))

	loaded, ok, err := store.Load(ctx, "bot")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, []byte("v2"), loaded.BotState)
	assert.True(t, second.SavedAt.Equal(loaded.SavedAt))
}

func TestMultipleBotsPersistIndependently(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.Save(ctx, core.Snapshot{BotName: "bot-a", BotState: []byte("a")}))
	require.NoError(t, store.Save(ctx, core.Snapshot{BotName: "bot-b", BotState: []byte("b")}))

	a, ok, err := store.Load(ctx, "bot-a")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, []byte("a"), a.BotState)

	b, ok, err := store.Load(ctx, "bot-b")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, []byte("b"), b.BotState)
}

func TestDeleteRemovesSnapshot(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.Save(ctx, core.Snapshot{BotName: "bot", BotState: []byte("x")}))
	require.NoError(t, store.Delete(ctx, "bot"))

	_, ok, err := store.Load(ctx, "bot")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestDeleteOfAbsentBotIsNotAnError(t *testing.T) {
	store := openTestStore(t)
	assert.NoError(t, store.Delete(context.Background(), "never-existed"))
}

func TestSaveDefaultsSavedAtWhenZero(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	before := time.Now().Add(-time.Second)
	require.NoError(t, store.Save(ctx, core.Snapshot{BotName: "bot", BotState: []byte("x")}))

	loaded, ok, err := store.Load(ctx, "bot")
	require.NoError(t, err)
	require.True(t, ok)
	assert.True(t, loaded.SavedAt.After(before))
}
