package identity

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	dir := t.TempDir()
	s, err := NewStore(Options{
		Home:           filepath.Join(dir, ".persag"),
		Root:           dir,
		StorageBackend: "persag",
	})
	require.NoError(t, err)
	return s
}

func TestNewStoreSeedsDefaults(t *testing.T) {
	s := newTestStore(t)

	assert.Equal(t, DefaultUserID, s.GetUserID())

	// Home is created with userid file and service env templates.
	for _, name := range []string{UserIDFile, "lightrag_server.env", "lightrag_memory.env"} {
		_, err := os.Stat(filepath.Join(s.Home(), name))
		assert.NoError(t, err, name)
	}
}

func TestSetAndGetUserID(t *testing.T) {
	s := newTestStore(t)

	require.NoError(t, s.SetUserID("alice"))
	assert.Equal(t, "alice", s.GetUserID())

	// The file is quoted on write.
	data, err := os.ReadFile(s.UserIDPath())
	require.NoError(t, err)
	assert.Contains(t, string(data), `USER_ID="alice"`)
}

func TestGetUserIDReadsEveryCall(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, s.SetUserID("alice"))

	// External edit, unquoted value is tolerated on read.
	require.NoError(t, os.WriteFile(s.UserIDPath(), []byte("USER_ID=bob\n"), 0644))
	assert.Equal(t, "bob", s.GetUserID())
}

func TestGetUserIDHealsCorruptFile(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, os.WriteFile(s.UserIDPath(), []byte(""), 0644))

	assert.Equal(t, DefaultUserID, s.GetUserID())

	// The file was written back.
	data, err := os.ReadFile(s.UserIDPath())
	require.NoError(t, err)
	assert.Contains(t, string(data), DefaultUserID)
}

func TestSetUserIDRejectsEmpty(t *testing.T) {
	s := newTestStore(t)
	assert.Error(t, s.SetUserID("  "))
}

func TestDerivePaths(t *testing.T) {
	paths := DerivePaths("/data", "persag", "alice")

	want := map[string]string{
		"user storage": paths.UserStorageDir,
		"knowledge":    paths.KnowledgeDir,
		"data":         paths.DataDir,
		"rag storage":  paths.RAGStorageDir,
		"inputs":       paths.InputsDir,
		"memory rag":   paths.MemoryRAGStorageDir,
		"memory in":    paths.MemoryInputsDir,
		"memory db":    paths.MemoryDBPath,
	}
	for name, p := range want {
		assert.True(t, strings.HasPrefix(p, filepath.Join("/data", "persag", "alice")), name)
		assert.Contains(t, p, "alice", name)
	}
	assert.Equal(t, filepath.Join("/data", "persag", "alice", "agent_memory.db"), paths.MemoryDBPath)
}

func TestGetUserStoragePathsFollowsSwitch(t *testing.T) {
	s := newTestStore(t)

	require.NoError(t, s.SetUserID("alice"))
	assert.Contains(t, s.GetUserStoragePaths().MemoryDBPath, "alice")

	require.NoError(t, s.SetUserID("bob"))
	got := s.GetUserStoragePaths()
	assert.Contains(t, got.MemoryDBPath, "bob")
	assert.NotContains(t, got.UserStorageDir, "alice")
}
