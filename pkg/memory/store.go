// Copyright 2025 Eric G. Suchanek
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package memory implements the local semantic memory store: durable
// sqlite rows with a chromem vector index for similarity search.
//
// The sqlite file is the source of truth; the vector index lives next
// to it and is kept in sync by every mutation. Writes for one store are
// serialized so the dedup check cannot race an insert.
package memory

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"
	"github.com/philippgille/chromem-go"

	"github.com/suchanek/personal-agent-sub002/pkg/embedder"
	"github.com/suchanek/personal-agent-sub002/pkg/perr"
)

const createMemoriesTableSQL = `
CREATE TABLE IF NOT EXISTS memories (
    id VARCHAR(255) PRIMARY KEY,
    user_id VARCHAR(255) NOT NULL,
    text TEXT NOT NULL,
    topics TEXT NOT NULL DEFAULT '[]',
    created_at TIMESTAMP NOT NULL,
    updated_at TIMESTAMP NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_memories_user_id ON memories(user_id);
CREATE INDEX IF NOT EXISTS idx_memories_created_at ON memories(user_id, created_at);
`

// Store is the semantic memory store.
type Store struct {
	db       *sql.DB
	vectors  *chromem.DB
	embedder embedder.Embedder
	path     string

	mu          sync.Mutex
	collections map[string]*chromem.Collection
}

// NewStore opens (or creates) the store at dbPath. The vector index is
// persisted in a sibling directory.
func NewStore(dbPath string, emb embedder.Embedder) (*Store, error) {
	if emb == nil {
		return nil, perr.New(perr.KindInvalidInput, "MemoryStore", "New", "embedder is required")
	}
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, perr.Wrap(perr.KindFatal, "MemoryStore", "New", "cannot create storage directory", err)
	}

	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, perr.Wrap(perr.KindFatal, "MemoryStore", "New", "cannot open database", err)
	}
	if _, err := db.Exec(createMemoriesTableSQL); err != nil {
		_ = db.Close()
		return nil, perr.Wrap(perr.KindFatal, "MemoryStore", "New", "cannot initialize schema", err)
	}

	vectorPath := filepath.Join(filepath.Dir(dbPath), "vector_index")
	vectors, err := chromem.NewPersistentDB(vectorPath, false)
	if err != nil {
		slog.Warn("Failed to open persistent vector index, using in-memory", "path", vectorPath, "error", err)
		vectors = chromem.NewDB()
	}

	return &Store{
		db:          db,
		vectors:     vectors,
		embedder:    emb,
		path:        dbPath,
		collections: make(map[string]*chromem.Collection),
	}, nil
}

// Close releases the underlying database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

// Path returns the sqlite file path.
func (s *Store) Path() string { return s.path }

var collectionNameSanitizer = regexp.MustCompile(`[^a-zA-Z0-9._-]`)

func (s *Store) collection(userID string) (*chromem.Collection, error) {
	name := "memories_" + collectionNameSanitizer.ReplaceAllString(userID, "_")
	if col, ok := s.collections[name]; ok {
		return col, nil
	}
	col, err := s.vectors.GetOrCreateCollection(name, nil, embedder.ChromemFunc(s.embedder))
	if err != nil {
		return nil, perr.Wrap(perr.KindFatal, "MemoryStore", "Collection",
			fmt.Sprintf("cannot open vector collection for user %s", userID), err)
	}
	s.collections[name] = col
	return col, nil
}

// AddMemory stores a new memory after a dedup check. A top match at or
// above DefaultDedupThreshold rejects the insert and returns the
// existing record's id; the rejection is reported in the result, not as
// an error.
func (s *Store) AddMemory(ctx context.Context, text, userID string, topics []string) (*AddResult, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, perr.New(perr.KindInvalidInput, "MemoryStore", "AddMemory", "memory text cannot be empty")
	}
	if userID == "" {
		return nil, perr.New(perr.KindInvalidInput, "MemoryStore", "AddMemory", "user id cannot be empty")
	}
	if topics == nil {
		topics = []string{}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	col, err := s.collection(userID)
	if err != nil {
		return nil, err
	}

	if col.Count() > 0 {
		results, err := col.Query(ctx, text, 1, nil, nil)
		if err != nil {
			return nil, perr.Wrap(perr.KindFatal, "MemoryStore", "AddMemory", "dedup query failed", err)
		}
		if len(results) > 0 && float64(results[0].Similarity) >= DefaultDedupThreshold {
			return &AddResult{
				Accepted: false,
				Message: fmt.Sprintf("similar memory already exists (similarity %.2f): %s",
					results[0].Similarity, truncate(results[0].Content, 80)),
				MemoryID: results[0].ID,
			}, nil
		}
	}

	id := uuid.NewString()
	now := time.Now().UTC()
	topicsJSON, err := json.Marshal(topics)
	if err != nil {
		return nil, perr.Wrap(perr.KindFatal, "MemoryStore", "AddMemory", "cannot encode topics", err)
	}

	if _, err := s.db.ExecContext(ctx,
		`INSERT INTO memories (id, user_id, text, topics, created_at, updated_at) VALUES (?, ?, ?, ?, ?, ?)`,
		id, userID, text, string(topicsJSON), now, now); err != nil {
		return nil, perr.Wrap(perr.KindFatal, "MemoryStore", "AddMemory", "insert failed", err)
	}

	if err := col.AddDocument(ctx, chromem.Document{
		ID:      id,
		Content: text,
		Metadata: map[string]string{
			"user_id": userID,
			"topics":  strings.Join(topics, ","),
		},
	}); err != nil {
		// Roll the row back so sqlite and the index stay in step.
		_, _ = s.db.ExecContext(ctx, `DELETE FROM memories WHERE id = ?`, id)
		return nil, perr.Wrap(perr.KindFatal, "MemoryStore", "AddMemory", "vector index update failed", err)
	}

	slog.Debug("Memory stored", "memory_id", id, "user_id", userID, "topics", topics)
	return &AddResult{Accepted: true, Message: "memory stored", MemoryID: id}, nil
}

// SearchMemories returns records sorted by descending similarity,
// truncated to opts.Limit. With opts.SearchTopics, records whose topics
// textually match the query gain opts.TopicBoost.
func (s *Store) SearchMemories(ctx context.Context, query, userID string, opts SearchOptions) ([]SearchResult, error) {
	if strings.TrimSpace(query) == "" {
		return nil, perr.New(perr.KindInvalidInput, "MemoryStore", "SearchMemories", "query cannot be empty")
	}
	if opts.Limit <= 0 {
		opts.Limit = 10
	}

	s.mu.Lock()
	col, err := s.collection(userID)
	s.mu.Unlock()
	if err != nil {
		return nil, err
	}

	count := col.Count()
	if count == 0 {
		return nil, nil
	}
	n := opts.Limit * 2 // overfetch so threshold filtering still fills the limit
	if n > count {
		n = count
	}

	hits, err := col.Query(ctx, query, n, nil, nil)
	if err != nil {
		return nil, perr.Wrap(perr.KindFatal, "MemoryStore", "SearchMemories", "vector query failed", err)
	}

	queryTokens := tokenSet(query)
	results := make([]SearchResult, 0, len(hits))
	for _, hit := range hits {
		record, err := s.getRecord(ctx, hit.ID, userID)
		if err != nil {
			if perr.IsNotFound(err) {
				continue
			}
			return nil, err
		}

		score := float64(hit.Similarity)
		if opts.SearchTopics && topicsMatch(record.Topics, queryTokens) {
			score += opts.TopicBoost
		}
		if score < opts.Threshold {
			continue
		}
		results = append(results, SearchResult{Record: record, Score: score})
	}

	sort.Slice(results, func(i, j int) bool { return results[i].Score > results[j].Score })
	if len(results) > opts.Limit {
		results = results[:opts.Limit]
	}
	return results, nil
}

// GetAllMemories returns every record for a user, newest first.
func (s *Store) GetAllMemories(ctx context.Context, userID string) ([]Record, error) {
	return s.queryRecords(ctx,
		`SELECT id, user_id, text, topics, created_at, updated_at FROM memories
		 WHERE user_id = ? ORDER BY created_at DESC`, userID)
}

// GetMemoriesByTopic returns records having any of the given topics.
// Empty topics returns all records.
func (s *Store) GetMemoriesByTopic(ctx context.Context, userID string, topics []string) ([]Record, error) {
	all, err := s.GetAllMemories(ctx, userID)
	if err != nil {
		return nil, err
	}
	if len(topics) == 0 {
		return all, nil
	}

	var matched []Record
	for _, record := range all {
		for _, topic := range topics {
			if record.HasTopic(topic) {
				matched = append(matched, record)
				break
			}
		}
	}
	return matched, nil
}

// GetRecentMemories returns the limit newest records.
func (s *Store) GetRecentMemories(ctx context.Context, userID string, limit int) ([]Record, error) {
	if limit <= 0 {
		limit = 10
	}
	return s.queryRecords(ctx,
		`SELECT id, user_id, text, topics, created_at, updated_at FROM memories
		 WHERE user_id = ? ORDER BY created_at DESC LIMIT `+fmt.Sprintf("%d", limit), userID)
}

// GetMemory returns a single record owned by userID.
func (s *Store) GetMemory(ctx context.Context, id, userID string) (Record, error) {
	return s.getRecord(ctx, id, userID)
}

// UpdateMemory applies a partial update. Nil fields are left untouched.
func (s *Store) UpdateMemory(ctx context.Context, id, userID string, text *string, topics []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	record, err := s.getRecord(ctx, id, userID)
	if err != nil {
		return err
	}

	if text != nil {
		trimmed := strings.TrimSpace(*text)
		if trimmed == "" {
			return perr.New(perr.KindInvalidInput, "MemoryStore", "UpdateMemory", "memory text cannot be empty")
		}
		record.Text = trimmed
	}
	if topics != nil {
		record.Topics = topics
	}
	record.UpdatedAt = time.Now().UTC()

	topicsJSON, err := json.Marshal(record.Topics)
	if err != nil {
		return perr.Wrap(perr.KindFatal, "MemoryStore", "UpdateMemory", "cannot encode topics", err)
	}
	if _, err := s.db.ExecContext(ctx,
		`UPDATE memories SET text = ?, topics = ?, updated_at = ? WHERE id = ? AND user_id = ?`,
		record.Text, string(topicsJSON), record.UpdatedAt, id, userID); err != nil {
		return perr.Wrap(perr.KindFatal, "MemoryStore", "UpdateMemory", "update failed", err)
	}

	// Re-embed under the same id.
	col, err := s.collection(userID)
	if err != nil {
		return err
	}
	if err := col.Delete(ctx, nil, nil, id); err != nil {
		slog.Warn("Failed to drop stale vector before re-embed", "memory_id", id, "error", err)
	}
	if err := col.AddDocument(ctx, chromem.Document{
		ID:      id,
		Content: record.Text,
		Metadata: map[string]string{
			"user_id": userID,
			"topics":  strings.Join(record.Topics, ","),
		},
	}); err != nil {
		return perr.Wrap(perr.KindFatal, "MemoryStore", "UpdateMemory", "vector index update failed", err)
	}
	return nil
}

// DeleteMemory removes a record. A missing id returns a NotFound error,
// which callers treat as a non-fatal status; repeating a delete is safe.
func (s *Store) DeleteMemory(ctx context.Context, id, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.ExecContext(ctx, `DELETE FROM memories WHERE id = ? AND user_id = ?`, id, userID)
	if err != nil {
		return perr.Wrap(perr.KindFatal, "MemoryStore", "DeleteMemory", "delete failed", err)
	}
	affected, _ := res.RowsAffected()
	if affected == 0 {
		return perr.New(perr.KindNotFound, "MemoryStore", "DeleteMemory",
			fmt.Sprintf("memory %s not found for user %s", id, userID))
	}

	col, err := s.collection(userID)
	if err != nil {
		return err
	}
	if err := col.Delete(ctx, nil, nil, id); err != nil {
		slog.Warn("Failed to delete vector for memory", "memory_id", id, "error", err)
	}
	return nil
}

// ClearMemories deletes every record for a user and compacts the
// database so a fresh handle observes zero rows.
func (s *Store) ClearMemories(ctx context.Context, userID string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.ExecContext(ctx, `DELETE FROM memories WHERE user_id = ?`, userID)
	if err != nil {
		return 0, perr.Wrap(perr.KindFatal, "MemoryStore", "ClearMemories", "delete failed", err)
	}
	affected, _ := res.RowsAffected()

	name := "memories_" + collectionNameSanitizer.ReplaceAllString(userID, "_")
	delete(s.collections, name)
	if err := s.vectors.DeleteCollection(name); err != nil {
		slog.Warn("Failed to delete vector collection", "collection", name, "error", err)
	}

	// Reclaim freed pages.
	if _, err := s.db.ExecContext(ctx, `VACUUM`); err != nil {
		return int(affected), perr.Wrap(perr.KindConsistency, "MemoryStore", "ClearMemories",
			"cleared rows but compaction failed", err)
	}

	slog.Info("Memories cleared", "user_id", userID, "count", affected)
	return int(affected), nil
}

// GetMemoryStats summarizes the user's store.
func (s *Store) GetMemoryStats(ctx context.Context, userID string) (Stats, error) {
	records, err := s.GetAllMemories(ctx, userID)
	if err != nil {
		return Stats{}, err
	}

	stats := Stats{
		TotalMemories: len(records),
		TopicCounts:   make(map[string]int),
	}
	cutoff := time.Now().UTC().Add(-24 * time.Hour)

	for _, record := range records {
		if record.CreatedAt.After(cutoff) {
			stats.Recent24h++
		}
		for _, topic := range record.Topics {
			stats.TopicCounts[topic]++
		}
		if stats.OldestMemory.IsZero() || record.CreatedAt.Before(stats.OldestMemory) {
			stats.OldestMemory = record.CreatedAt
		}
		if record.CreatedAt.After(stats.NewestMemory) {
			stats.NewestMemory = record.CreatedAt
		}
	}

	best := 0
	for topic, count := range stats.TopicCounts {
		if count > best || (count == best && topic < stats.MostCommonTopic) {
			best = count
			stats.MostCommonTopic = topic
		}
	}
	return stats, nil
}

func (s *Store) getRecord(ctx context.Context, id, userID string) (Record, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, user_id, text, topics, created_at, updated_at FROM memories
		 WHERE id = ? AND user_id = ?`, id, userID)

	record, err := scanRecord(row)
	if err == sql.ErrNoRows {
		return Record{}, perr.New(perr.KindNotFound, "MemoryStore", "Get",
			fmt.Sprintf("memory %s not found for user %s", id, userID))
	}
	if err != nil {
		return Record{}, perr.Wrap(perr.KindFatal, "MemoryStore", "Get", "query failed", err)
	}
	return record, nil
}

func (s *Store) queryRecords(ctx context.Context, query string, args ...any) ([]Record, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, perr.Wrap(perr.KindFatal, "MemoryStore", "Query", "query failed", err)
	}
	defer func() { _ = rows.Close() }()

	var records []Record
	for rows.Next() {
		record, err := scanRecord(rows)
		if err != nil {
			return nil, perr.Wrap(perr.KindFatal, "MemoryStore", "Query", "scan failed", err)
		}
		records = append(records, record)
	}
	return records, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRecord(row rowScanner) (Record, error) {
	var record Record
	var topicsJSON string
	if err := row.Scan(&record.ID, &record.UserID, &record.Text, &topicsJSON,
		&record.CreatedAt, &record.UpdatedAt); err != nil {
		return Record{}, err
	}
	if err := json.Unmarshal([]byte(topicsJSON), &record.Topics); err != nil {
		record.Topics = []string{}
	}
	return record, nil
}

func tokenSet(text string) map[string]bool {
	set := make(map[string]bool)
	for _, field := range strings.Fields(strings.ToLower(text)) {
		set[strings.Trim(field, ".,!?\"'")] = true
	}
	return set
}

func topicsMatch(topics []string, queryTokens map[string]bool) bool {
	for _, topic := range topics {
		if queryTokens[strings.ToLower(topic)] {
			return true
		}
	}
	return false
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
