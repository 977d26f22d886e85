package memory

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/suchanek/personal-agent-sub002/pkg/embedder"
	"github.com/suchanek/personal-agent-sub002/pkg/perr"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := NewStore(filepath.Join(t.TempDir(), "agent_memory.db"), embedder.NewHashEmbedder(64))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestAddMemoryRejectsEmptyText(t *testing.T) {
	store := newTestStore(t)

	_, err := store.AddMemory(context.Background(), "   ", "alice", nil)
	require.Error(t, err)
	assert.Equal(t, perr.KindInvalidInput, perr.KindOf(err))
}

func TestAddMemoryDedup(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	first, err := store.AddMemory(ctx, "I live in Paris.", "alice", []string{"personal"})
	require.NoError(t, err)
	require.True(t, first.Accepted)
	require.NotEmpty(t, first.MemoryID)

	// Whitespace-only difference is still a duplicate.
	second, err := store.AddMemory(ctx, "I live in Paris", "alice", nil)
	require.NoError(t, err)
	assert.False(t, second.Accepted)
	assert.Equal(t, first.MemoryID, second.MemoryID)
	assert.Contains(t, second.Message, "similar memory")

	stats, err := store.GetMemoryStats(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, 1, stats.TotalMemories)
}

func TestDedupIsPerUser(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	first, err := store.AddMemory(ctx, "I love Python", "alice", nil)
	require.NoError(t, err)
	require.True(t, first.Accepted)

	// Same text for another user is a fresh record.
	second, err := store.AddMemory(ctx, "I love Python", "bob", nil)
	require.NoError(t, err)
	assert.True(t, second.Accepted)
	assert.NotEqual(t, first.MemoryID, second.MemoryID)
}

func TestSearchMemories(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	texts := []string{
		"I love hiking in the mountains",
		"My favorite food is sushi",
		"I work as a software engineer",
	}
	for _, text := range texts {
		res, err := store.AddMemory(ctx, text, "alice", []string{"hobbies"})
		require.NoError(t, err)
		require.True(t, res.Accepted)
	}

	results, err := store.SearchMemories(ctx, "hiking mountains", "alice", SearchOptions{
		Limit:     2,
		Threshold: 0.1,
	})
	require.NoError(t, err)
	require.NotEmpty(t, results)
	assert.Contains(t, results[0].Record.Text, "hiking")

	// Descending order.
	for i := 1; i < len(results); i++ {
		assert.GreaterOrEqual(t, results[i-1].Score, results[i].Score)
	}
}

func TestSearchTopicBoost(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	_, err := store.AddMemory(ctx, "I enjoy cooking pasta", "alice", []string{"food"})
	require.NoError(t, err)

	plain, err := store.SearchMemories(ctx, "food pasta", "alice", SearchOptions{Limit: 5})
	require.NoError(t, err)
	boosted, err := store.SearchMemories(ctx, "food pasta", "alice", SearchOptions{
		Limit:        5,
		SearchTopics: true,
		TopicBoost:   0.3,
	})
	require.NoError(t, err)

	require.Len(t, plain, 1)
	require.Len(t, boosted, 1)
	assert.InDelta(t, plain[0].Score+0.3, boosted[0].Score, 1e-6)
}

func TestGetMemoriesByTopic(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	_, err := store.AddMemory(ctx, "I play guitar", "alice", []string{"hobbies", "music"})
	require.NoError(t, err)
	_, err = store.AddMemory(ctx, "I am allergic to peanuts", "alice", []string{"health"})
	require.NoError(t, err)

	byTopic, err := store.GetMemoriesByTopic(ctx, "alice", []string{"music"})
	require.NoError(t, err)
	require.Len(t, byTopic, 1)
	assert.Contains(t, byTopic[0].Text, "guitar")

	// Empty topic list returns everything.
	all, err := store.GetMemoriesByTopic(ctx, "alice", nil)
	require.NoError(t, err)
	assert.Len(t, all, 2)
}

func TestDeleteMemoryIdempotent(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	res, err := store.AddMemory(ctx, "I have a cat named Mittens", "alice", nil)
	require.NoError(t, err)

	require.NoError(t, store.DeleteMemory(ctx, res.MemoryID, "alice"))

	// Second delete is a non-fatal NotFound; state unchanged.
	err = store.DeleteMemory(ctx, res.MemoryID, "alice")
	require.Error(t, err)
	assert.True(t, perr.IsNotFound(err))

	stats, err := store.GetMemoryStats(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, 0, stats.TotalMemories)
}

func TestDeleteScopedToUser(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	res, err := store.AddMemory(ctx, "I live in Berlin", "alice", nil)
	require.NoError(t, err)

	err = store.DeleteMemory(ctx, res.MemoryID, "bob")
	assert.True(t, perr.IsNotFound(err))
}

func TestUpdateMemoryPartial(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	res, err := store.AddMemory(ctx, "I drive a Honda", "alice", []string{"personal"})
	require.NoError(t, err)

	newText := "I drive a Toyota"
	require.NoError(t, store.UpdateMemory(ctx, res.MemoryID, "alice", &newText, nil))

	record, err := store.GetMemory(ctx, res.MemoryID, "alice")
	require.NoError(t, err)
	assert.Equal(t, "I drive a Toyota", record.Text)
	assert.Equal(t, []string{"personal"}, record.Topics)

	err = store.UpdateMemory(ctx, "missing", "alice", &newText, nil)
	assert.True(t, perr.IsNotFound(err))
}

func TestClearMemoriesAndReopen(t *testing.T) {
	dir := t.TempDir()
	dbPath := filepath.Join(dir, "agent_memory.db")
	store, err := NewStore(dbPath, embedder.NewHashEmbedder(64))
	require.NoError(t, err)
	ctx := context.Background()

	for _, text := range []string{"I like tea", "I like coffee", "I like cocoa"} {
		_, err := store.AddMemory(ctx, text, "alice", nil)
		require.NoError(t, err)
	}

	cleared, err := store.ClearMemories(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, 3, cleared)

	stats, err := store.GetMemoryStats(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, 0, stats.TotalMemories)
	require.NoError(t, store.Close())

	// A fresh handle observes zero rows after compaction.
	reopened, err := NewStore(dbPath, embedder.NewHashEmbedder(64))
	require.NoError(t, err)
	defer func() { _ = reopened.Close() }()
	stats, err = reopened.GetMemoryStats(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, 0, stats.TotalMemories)
}

func TestStatsAccounting(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	inserted := 0
	var ids []string
	for _, text := range []string{"I ski", "I swim", "I climb", "I sail"} {
		res, err := store.AddMemory(ctx, text, "alice", []string{"sports"})
		require.NoError(t, err)
		require.True(t, res.Accepted)
		inserted++
		ids = append(ids, res.MemoryID)
	}
	require.NoError(t, store.DeleteMemory(ctx, ids[0], "alice"))

	stats, err := store.GetMemoryStats(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, inserted-1, stats.TotalMemories)
	assert.Equal(t, inserted-1, stats.Recent24h)
	assert.Equal(t, "sports", stats.MostCommonTopic)
}

func TestGetRecentMemoriesOrder(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	for _, text := range []string{"first fact", "second fact", "third fact"} {
		_, err := store.AddMemory(ctx, text, "alice", nil)
		require.NoError(t, err)
	}

	recent, err := store.GetRecentMemories(ctx, "alice", 2)
	require.NoError(t, err)
	require.Len(t, recent, 2)
	assert.False(t, recent[0].CreatedAt.Before(recent[1].CreatedAt))
}
