package identity

import (
	"path/filepath"
)

// StoragePaths is the per-user storage layout under
// <PERSAG_ROOT>/<storage_backend>/<user_id>/.
type StoragePaths struct {
	UserStorageDir      string // root of the user's storage tree
	KnowledgeDir        string // knowledge-base source files
	DataDir             string // miscellaneous user data
	RAGStorageDir       string // knowledge graph persistent artifacts
	InputsDir           string // knowledge graph source files
	MemoryRAGStorageDir string // memory graph persistent artifacts
	MemoryInputsDir     string // memory graph source files
	MemoryDBPath        string // semantic memory database
}

// GraphArtifactName is the on-disk knowledge-graph artifact file that the
// clearing service may delete.
const GraphArtifactName = "graph_chunk_entity_relation.graphml"

// DerivePaths computes the storage layout for a user. It is a pure
// function of root, backend and userID; results must never be cached
// past a user switch.
func DerivePaths(root, backend, userID string) StoragePaths {
	base := filepath.Join(root, backend, userID)
	return StoragePaths{
		UserStorageDir:      base,
		KnowledgeDir:        filepath.Join(base, "knowledge"),
		DataDir:             filepath.Join(base, "data"),
		RAGStorageDir:       filepath.Join(base, "rag_storage"),
		InputsDir:           filepath.Join(base, "inputs"),
		MemoryRAGStorageDir: filepath.Join(base, "memory_rag_storage"),
		MemoryInputsDir:     filepath.Join(base, "memory_inputs"),
		MemoryDBPath:        filepath.Join(base, "agent_memory.db"),
	}
}

// GetUserStoragePaths derives the layout for the currently persisted
// user.
func (s *Store) GetUserStoragePaths() StoragePaths {
	return DerivePaths(s.root, s.storageBackend, s.GetUserID())
}

// All returns every directory of the layout, useful for bulk creation.
func (p StoragePaths) All() []string {
	return []string{
		p.UserStorageDir,
		p.KnowledgeDir,
		p.DataDir,
		p.RAGStorageDir,
		p.InputsDir,
		p.MemoryRAGStorageDir,
		p.MemoryInputsDir,
	}
}
