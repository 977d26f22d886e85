package config

import (
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/suchanek/personal-agent-sub002/pkg/identity"
	"github.com/suchanek/personal-agent-sub002/pkg/perr"
)

func newTestRegistry(t *testing.T) *Registry {
	t.Helper()
	dir := t.TempDir()
	ids, err := identity.NewStore(identity.Options{
		Home:           filepath.Join(dir, ".persag"),
		Root:           dir,
		StorageBackend: "persag",
	})
	require.NoError(t, err)

	return NewRegistry(ids, Snapshot{
		Provider:         ProviderOllama,
		Model:            "qwen3:1.7b",
		AgentMode:        AgentModeSingle,
		InstructionLevel: InstructionStandard,
	})
}

func TestSetProviderValidation(t *testing.T) {
	r := newTestRegistry(t)

	err := r.SetProvider("groq")
	require.Error(t, err)
	assert.Equal(t, perr.KindInvalidInput, perr.KindOf(err))
	// State unchanged on invalid input.
	assert.Equal(t, ProviderOllama, r.Snapshot().Provider)

	require.NoError(t, r.SetProvider("openai"))
	assert.Equal(t, ProviderOpenAI, r.Snapshot().Provider)
}

func TestAutoSetModelEmitsSecondEvent(t *testing.T) {
	r := newTestRegistry(t)

	var events []string
	require.NoError(t, r.RegisterCallback("t", func(key, oldValue, newValue string) {
		events = append(events, key+"="+newValue)
	}))

	require.NoError(t, r.SetProvider("openai"))

	require.Len(t, events, 2)
	assert.Equal(t, "provider=openai", events[0])
	assert.Equal(t, "model="+DefaultModelFor(ProviderOpenAI), events[1])
}

func TestCallbackOrderAndUnregister(t *testing.T) {
	r := newTestRegistry(t)

	var order []string
	require.NoError(t, r.RegisterCallback("first", func(key, _, _ string) {
		order = append(order, "first:"+key)
	}))
	require.NoError(t, r.RegisterCallback("second", func(key, _, _ string) {
		order = append(order, "second:"+key)
	}))
	assert.Error(t, r.RegisterCallback("first", func(string, string, string) {}))

	r.SetModel("llama3.2")
	assert.Equal(t, []string{"first:model", "second:model"}, order)

	r.UnregisterCallback("first")
	order = nil
	r.SetModel("qwen3:4b")
	assert.Equal(t, []string{"second:model"}, order)
}

func TestSetUserIDRefreshesPathsBeforeCallback(t *testing.T) {
	r := newTestRegistry(t)

	var observed identity.StoragePaths
	require.NoError(t, r.RegisterCallback("paths", func(key, _, _ string) {
		if key == "user_id" {
			observed = r.Snapshot().Paths
		}
	}))

	require.NoError(t, r.SetUserID("bob", true))

	// Callback fired after commit, with a consistent path set.
	assert.Contains(t, observed.UserStorageDir, "bob")
	assert.Contains(t, observed.MemoryDBPath, "bob")

	// Persisted through the identity store.
	assert.Equal(t, "bob", r.Identity().GetUserID())
}

func TestSnapshotPathsContainUser(t *testing.T) {
	r := newTestRegistry(t)
	require.NoError(t, r.SetUserID("alice", true))

	paths := r.Snapshot().Paths
	for _, p := range append(paths.All(), paths.MemoryDBPath) {
		assert.Contains(t, p, "alice")
	}
}

func TestSetAgentModeAndInstructionLevel(t *testing.T) {
	r := newTestRegistry(t)

	assert.Error(t, r.SetAgentMode("swarm"))
	require.NoError(t, r.SetAgentMode("team"))
	assert.Equal(t, AgentModeTeam, r.Snapshot().AgentMode)

	assert.Error(t, r.SetInstructionLevel("VERBOSE"))
	require.NoError(t, r.SetInstructionLevel("concise"))
	assert.Equal(t, InstructionConcise, r.Snapshot().InstructionLevel)
}

func TestConcurrentSnapshotDuringSwitch(t *testing.T) {
	r := newTestRegistry(t)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				snap := r.Snapshot()
				// No mixed-user paths: the snapshot's paths always match
				// its own user id.
				assert.Contains(t, snap.Paths.UserStorageDir, snap.UserID)
			}
		}()
	}

	require.NoError(t, r.SetUserID("alice", true))
	require.NoError(t, r.SetUserID("bob", true))
	wg.Wait()
}
