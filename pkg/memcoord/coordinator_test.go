package memcoord

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/suchanek/personal-agent-sub002/pkg/embedder"
	"github.com/suchanek/personal-agent-sub002/pkg/graph"
	"github.com/suchanek/personal-agent-sub002/pkg/memory"
	"github.com/suchanek/personal-agent-sub002/pkg/perr"
)

type fakeGraph struct {
	ingested   map[string]string // document id -> text
	deleted    []string
	queryReply string
	ingestErr  error
	deleteErr  error
	queryErr   error
}

func newFakeGraph() *fakeGraph {
	return &fakeGraph{ingested: make(map[string]string)}
}

func (f *fakeGraph) IngestText(_ context.Context, text, documentID string) error {
	if f.ingestErr != nil {
		return f.ingestErr
	}
	f.ingested[documentID] = text
	return nil
}

func (f *fakeGraph) Query(_ context.Context, _ string, _ graph.QueryMode, _ graph.QueryOptions) (string, error) {
	return f.queryReply, f.queryErr
}

func (f *fakeGraph) DeleteDocuments(_ context.Context, ids []string, _ bool) (*graph.DeleteResult, error) {
	if f.deleteErr != nil {
		return nil, f.deleteErr
	}
	f.deleted = append(f.deleted, ids...)
	return &graph.DeleteResult{Status: "deletion_started"}, nil
}

func newTestCoordinator(t *testing.T) (*Coordinator, *fakeGraph) {
	t.Helper()
	store, err := memory.NewStore(filepath.Join(t.TempDir(), "agent_memory.db"), embedder.NewHashEmbedder(0))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	fake := newFakeGraph()
	return NewCoordinator(store, fake, "alice"), fake
}

func TestStoreUserMemoryDualWrite(t *testing.T) {
	coord, fake := newTestCoordinator(t)
	ctx := context.Background()

	result, err := coord.StoreUserMemory(ctx, "I love Python", nil)
	require.NoError(t, err)
	assert.True(t, result.LocalStored)
	assert.True(t, result.GraphStored)
	assert.False(t, result.Duplicate)
	assert.Equal(t, "alice loves Python", result.Restated)

	// Graph gets the restatement under the correlated document id.
	assert.Equal(t, "alice loves Python", fake.ingested["memory_"+result.MemoryID])

	// Local store keeps the literal text.
	record, err := coord.Store().GetMemory(ctx, result.MemoryID, "alice")
	require.NoError(t, err)
	assert.Equal(t, "I love Python", record.Text)
	assert.Contains(t, record.Topics, "preferences")
}

func TestStoreUserMemoryDuplicateSkipsGraph(t *testing.T) {
	coord, fake := newTestCoordinator(t)
	ctx := context.Background()

	first, err := coord.StoreUserMemory(ctx, "I love Python", nil)
	require.NoError(t, err)

	second, err := coord.StoreUserMemory(ctx, "  I love Python  ", nil)
	require.NoError(t, err)
	assert.True(t, second.Duplicate)
	assert.False(t, second.LocalStored)
	assert.Equal(t, first.MemoryID, second.MemoryID)
	assert.Len(t, fake.ingested, 1)
}

func TestStoreUserMemoryGraphFailureNotFatal(t *testing.T) {
	coord, fake := newTestCoordinator(t)
	fake.ingestErr = errors.New("connection refused")

	result, err := coord.StoreUserMemory(context.Background(), "I have two cats", nil)
	require.NoError(t, err)
	assert.True(t, result.LocalStored)
	assert.False(t, result.GraphStored)
	assert.Contains(t, result.GraphError, "connection refused")

	// The local write survived.
	records, err := coord.Store().GetAllMemories(context.Background(), "alice")
	require.NoError(t, err)
	assert.Len(t, records, 1)
}

func TestStoreUserMemoryEmptyText(t *testing.T) {
	coord, _ := newTestCoordinator(t)
	_, err := coord.StoreUserMemory(context.Background(), "   ", nil)
	assert.Equal(t, perr.KindInvalidInput, perr.KindOf(err))
}

func TestStoreUserMemoryExplicitTopics(t *testing.T) {
	coord, _ := newTestCoordinator(t)
	result, err := coord.StoreUserMemory(context.Background(), "I collect stamps", []string{"hobbies"})
	require.NoError(t, err)

	record, err := coord.Store().GetMemory(context.Background(), result.MemoryID, "alice")
	require.NoError(t, err)
	assert.Equal(t, []string{"hobbies"}, record.Topics)
}

func TestDeleteMemoryDualDelete(t *testing.T) {
	coord, fake := newTestCoordinator(t)
	ctx := context.Background()

	stored, err := coord.StoreUserMemory(ctx, "I play guitar", nil)
	require.NoError(t, err)

	result, err := coord.DeleteMemory(ctx, stored.MemoryID)
	require.NoError(t, err)
	assert.True(t, result.LocalDeleted)
	assert.True(t, result.GraphDeleted)
	assert.Equal(t, []string{"memory_" + stored.MemoryID}, fake.deleted)
}

func TestDeleteMemoryNotFound(t *testing.T) {
	coord, _ := newTestCoordinator(t)
	_, err := coord.DeleteMemory(context.Background(), "no-such-id")
	assert.True(t, perr.IsNotFound(err))
}

func TestDeleteMemoryGraphFailureReported(t *testing.T) {
	coord, fake := newTestCoordinator(t)
	ctx := context.Background()

	stored, err := coord.StoreUserMemory(ctx, "I like sushi", nil)
	require.NoError(t, err)

	fake.deleteErr = errors.New("graph busy")
	result, err := coord.DeleteMemory(ctx, stored.MemoryID)
	require.NoError(t, err)
	assert.True(t, result.LocalDeleted)
	assert.False(t, result.GraphDeleted)
	assert.Contains(t, result.GraphError, "graph busy")
}

func TestDeleteMemoriesByTopic(t *testing.T) {
	coord, _ := newTestCoordinator(t)
	ctx := context.Background()

	_, err := coord.StoreUserMemory(ctx, "I play guitar", []string{"hobbies"})
	require.NoError(t, err)
	_, err = coord.StoreUserMemory(ctx, "I collect vinyl records", []string{"hobbies"})
	require.NoError(t, err)
	_, err = coord.StoreUserMemory(ctx, "I work at a bakery", []string{"work"})
	require.NoError(t, err)

	results, err := coord.DeleteMemoriesByTopic(ctx, "hobbies")
	require.NoError(t, err)
	assert.Len(t, results, 2)

	remaining, err := coord.Store().GetAllMemories(ctx, "alice")
	require.NoError(t, err)
	require.Len(t, remaining, 1)
	assert.Equal(t, "I work at a bakery", remaining[0].Text)
}

func TestCheckEntityExists(t *testing.T) {
	coord, fake := newTestCoordinator(t)

	fake.queryReply = "Rex is a dog owned by alice."
	found, err := coord.CheckEntityExists(context.Background(), "Rex")
	require.NoError(t, err)
	assert.True(t, found)

	fake.queryReply = "No relevant information found."
	found, err = coord.CheckEntityExists(context.Background(), "Rex")
	require.NoError(t, err)
	assert.False(t, found)
}

func TestSeedEntityInGraph(t *testing.T) {
	coord, fake := newTestCoordinator(t)

	err := coord.SeedEntityInGraph(context.Background(), "Rex", "dog")
	require.NoError(t, err)
	require.Len(t, fake.ingested, 1)
	for _, text := range fake.ingested {
		assert.Contains(t, text, "Rex is a dog")
		assert.Contains(t, text, "alice")
	}

	err = coord.SeedEntityInGraph(context.Background(), "  ", "dog")
	assert.Equal(t, perr.KindInvalidInput, perr.KindOf(err))
}
