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

// Package memcoord coordinates user-memory writes across the local
// semantic store and the remote graph store.
//
// The local store is authoritative: a graph-side failure never rolls
// back a committed local write. Each operation reports per-leg status
// so operators can reconcile the eventually consistent graph side.
package memcoord

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"

	"github.com/suchanek/personal-agent-sub002/pkg/graph"
	"github.com/suchanek/personal-agent-sub002/pkg/memory"
	"github.com/suchanek/personal-agent-sub002/pkg/perr"
)

// graphDocPrefix correlates graph documents with memory ids so deletes
// can find their graph-side counterpart.
const graphDocPrefix = "memory_"

// GraphService is the graph-store surface the coordinator needs.
type GraphService interface {
	IngestText(ctx context.Context, text, documentID string) error
	Query(ctx context.Context, query string, mode graph.QueryMode, opts graph.QueryOptions) (string, error)
	DeleteDocuments(ctx context.Context, ids []string, deleteSource bool) (*graph.DeleteResult, error)
}

// StoreResult reports a dual-write outcome, one leg per backend.
type StoreResult struct {
	MemoryID    string `json:"memory_id"`
	Duplicate   bool   `json:"duplicate"`
	LocalStored bool   `json:"local_stored"`
	GraphStored bool   `json:"graph_stored"`
	Restated    string `json:"restated,omitempty"`
	Message     string `json:"message"`
	GraphError  string `json:"graph_error,omitempty"`
}

// DeleteResult reports a cross-system delete, one leg per backend.
type DeleteResult struct {
	MemoryID     string `json:"memory_id"`
	LocalDeleted bool   `json:"local_deleted"`
	GraphDeleted bool   `json:"graph_deleted"`
	GraphError   string `json:"graph_error,omitempty"`
	Message      string `json:"message"`
}

// Coordinator is the single write authority for one user's memories.
// The runtime constructs a fresh coordinator on every user switch.
type Coordinator struct {
	store  *memory.Store
	graph  GraphService
	userID string
}

// NewCoordinator binds a coordinator to a user's store and graph
// service.
func NewCoordinator(store *memory.Store, graphSvc GraphService, userID string) *Coordinator {
	return &Coordinator{store: store, graph: graphSvc, userID: userID}
}

// UserID returns the bound user.
func (c *Coordinator) UserID() string { return c.userID }

// Store exposes the underlying semantic store for read paths.
func (c *Coordinator) Store() *memory.Store { return c.store }

// StoreUserMemory validates, classifies, deduplicates and stores a
// user fact, then ingests its third-person restatement into the graph.
// A duplicate skips the graph write entirely.
func (c *Coordinator) StoreUserMemory(ctx context.Context, text string, topics []string) (*StoreResult, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, perr.New(perr.KindInvalidInput, "MemoryCoordinator", "Store", "memory text cannot be empty")
	}

	if topics == nil {
		topics = ClassifyTopics(text)
	}

	added, err := c.store.AddMemory(ctx, text, c.userID, topics)
	if err != nil {
		return nil, err
	}
	if !added.Accepted {
		return &StoreResult{
			MemoryID:  added.MemoryID,
			Duplicate: true,
			Message:   added.Message,
		}, nil
	}

	result := &StoreResult{
		MemoryID:    added.MemoryID,
		LocalStored: true,
		Restated:    Restate(text, c.userID),
		Message:     "memory stored",
	}

	// Graph is eventually consistent; failure here never undoes the
	// local write.
	if err := c.graph.IngestText(ctx, result.Restated, graphDocPrefix+added.MemoryID); err != nil {
		result.GraphError = err.Error()
		result.Message = "memory stored locally; graph ingestion failed"
		slog.Warn("Graph ingestion failed", "memory_id", added.MemoryID, "error", err)
	} else {
		result.GraphStored = true
	}
	return result, nil
}

// DeleteMemory removes a memory from both stores. Graph-side failure is
// reported in the result, not raised.
func (c *Coordinator) DeleteMemory(ctx context.Context, id string) (*DeleteResult, error) {
	if _, err := c.store.GetMemory(ctx, id, c.userID); err != nil {
		return nil, err
	}
	if err := c.store.DeleteMemory(ctx, id, c.userID); err != nil {
		return nil, err
	}

	result := &DeleteResult{
		MemoryID:     id,
		LocalDeleted: true,
		Message:      "memory deleted",
	}

	if _, err := c.graph.DeleteDocuments(ctx, []string{graphDocPrefix + id}, false); err != nil {
		result.GraphError = err.Error()
		result.Message = "memory deleted locally; graph deletion failed"
		slog.Warn("Graph deletion failed", "memory_id", id, "error", err)
	} else {
		result.GraphDeleted = true
	}
	return result, nil
}

// DeleteMemoriesByTopic deletes every memory carrying the topic.
func (c *Coordinator) DeleteMemoriesByTopic(ctx context.Context, topic string) ([]*DeleteResult, error) {
	records, err := c.store.GetMemoriesByTopic(ctx, c.userID, []string{topic})
	if err != nil {
		return nil, err
	}

	results := make([]*DeleteResult, 0, len(records))
	for _, record := range records {
		result, err := c.DeleteMemory(ctx, record.ID)
		if err != nil {
			if perr.IsNotFound(err) {
				continue
			}
			return results, err
		}
		results = append(results, result)
	}
	return results, nil
}

// SeedEntityInGraph uploads a synthetic document establishing an entity
// so later graph queries have a node to anchor on.
func (c *Coordinator) SeedEntityInGraph(ctx context.Context, name, entityType string) error {
	if strings.TrimSpace(name) == "" {
		return perr.New(perr.KindInvalidInput, "MemoryCoordinator", "SeedEntity", "entity name cannot be empty")
	}
	if entityType == "" {
		entityType = "person"
	}

	doc := fmt.Sprintf("%s is a %s. %s is associated with the user %s.",
		name, entityType, name, c.userID)
	return c.graph.IngestText(ctx, doc, "entity_"+uuid.NewString())
}

// CheckEntityExists probes the graph with a local-mode query for the
// entity name.
func (c *Coordinator) CheckEntityExists(ctx context.Context, name string) (bool, error) {
	response, err := c.graph.Query(ctx, "Who or what is "+name+"?", graph.ModeLocal, graph.QueryOptions{TopK: 5})
	if err != nil {
		return false, err
	}
	return strings.Contains(strings.ToLower(response), strings.ToLower(name)), nil
}
