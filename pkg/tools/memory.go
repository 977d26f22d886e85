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

package tools

import (
	"context"
	"fmt"
	"strings"

	"github.com/suchanek/personal-agent-sub002/pkg/llms"
	"github.com/suchanek/personal-agent-sub002/pkg/memcoord"
	"github.com/suchanek/personal-agent-sub002/pkg/memory"
)

// CoordinatorSource yields the coordinator for the active user. Tools
// resolve it per invocation so a user switch takes effect immediately.
type CoordinatorSource func() *memcoord.Coordinator

// RegisterMemoryTools adds the memory tool family to the registry.
func RegisterMemoryTools(reg *Registry, source CoordinatorSource) error {
	for _, tool := range []Tool{
		&storeMemoryTool{source},
		&searchMemoryTool{source},
		&recentMemoriesTool{source},
		&deleteMemoryTool{source},
	} {
		if err := reg.Register(tool); err != nil {
			return err
		}
	}
	return nil
}

type storeMemoryTool struct{ source CoordinatorSource }

func (t *storeMemoryTool) Info() Info {
	return Info{
		Name:        "store_memory",
		Description: "Store a personal fact about the user for later recall. Use when the user shares preferences, biographical details, or anything worth remembering.",
		Kind:        KindMemory,
		Parameters: []llms.ToolParameter{
			{Name: "text", Type: "string", Description: "The fact to remember, as the user stated it", Required: true},
			{Name: "topics", Type: "array", Description: "Optional topic labels; inferred when omitted"},
		},
	}
}

func (t *storeMemoryTool) Execute(ctx context.Context, args map[string]any) (Result, error) {
	text := stringArg(args, "text")
	topics := stringSliceArg(args, "topics")

	result, err := t.source().StoreUserMemory(ctx, text, topics)
	if err != nil {
		return Result{Content: err.Error(), IsError: true}, nil
	}
	if result.Duplicate {
		return Result{
			Content: "Already known: " + result.Message,
			Data:    map[string]any{"memory_id": result.MemoryID, "duplicate": true},
		}, nil
	}
	return Result{
		Content: "Stored: " + text,
		Data: map[string]any{
			"memory_id":    result.MemoryID,
			"graph_stored": result.GraphStored,
		},
	}, nil
}

type searchMemoryTool struct{ source CoordinatorSource }

func (t *searchMemoryTool) Info() Info {
	return Info{
		Name:        "search_memories",
		Description: "Search stored personal facts about the user by meaning. Use before answering questions about the user's preferences or history.",
		Kind:        KindMemory,
		Parameters: []llms.ToolParameter{
			{Name: "query", Type: "string", Description: "What to look for", Required: true},
			{Name: "limit", Type: "integer", Description: "Maximum results (default 5)"},
		},
	}
}

func (t *searchMemoryTool) Execute(ctx context.Context, args map[string]any) (Result, error) {
	coord := t.source()
	query := stringArg(args, "query")
	limit := intArg(args, "limit", 5)

	results, err := coord.Store().SearchMemories(ctx, query, coord.UserID(), memory.SearchOptions{
		Limit:        limit,
		Threshold:    memory.DefaultSearchThreshold,
		SearchTopics: true,
		TopicBoost:   0.3,
	})
	if err != nil {
		return Result{Content: err.Error(), IsError: true}, nil
	}
	if len(results) == 0 {
		return Result{Content: "No matching memories found."}, nil
	}

	var sb strings.Builder
	for i, r := range results {
		fmt.Fprintf(&sb, "%d. %s (relevance %.2f)\n", i+1, r.Record.Text, r.Score)
	}
	return Result{
		Content: sb.String(),
		Data:    map[string]any{"count": len(results)},
	}, nil
}

type recentMemoriesTool struct{ source CoordinatorSource }

func (t *recentMemoriesTool) Info() Info {
	return Info{
		Name:        "recent_memories",
		Description: "List the most recently stored facts about the user.",
		Kind:        KindMemory,
		Parameters: []llms.ToolParameter{
			{Name: "limit", Type: "integer", Description: "Maximum results (default 10)"},
		},
	}
}

func (t *recentMemoriesTool) Execute(ctx context.Context, args map[string]any) (Result, error) {
	coord := t.source()
	limit := intArg(args, "limit", 10)

	records, err := coord.Store().GetRecentMemories(ctx, coord.UserID(), limit)
	if err != nil {
		return Result{Content: err.Error(), IsError: true}, nil
	}
	if len(records) == 0 {
		return Result{Content: "No memories stored yet."}, nil
	}

	var sb strings.Builder
	for i, r := range records {
		fmt.Fprintf(&sb, "%d. [%s] %s\n", i+1, strings.Join(r.Topics, ", "), r.Text)
	}
	return Result{Content: sb.String(), Data: map[string]any{"count": len(records)}}, nil
}

type deleteMemoryTool struct{ source CoordinatorSource }

func (t *deleteMemoryTool) Info() Info {
	return Info{
		Name:        "delete_memory",
		Description: "Delete a stored fact by its id. Only use when the user explicitly asks to forget something.",
		Kind:        KindMemory,
		Parameters: []llms.ToolParameter{
			{Name: "memory_id", Type: "string", Description: "Id of the memory to delete", Required: true},
		},
	}
}

func (t *deleteMemoryTool) Execute(ctx context.Context, args map[string]any) (Result, error) {
	id := stringArg(args, "memory_id")
	result, err := t.source().DeleteMemory(ctx, id)
	if err != nil {
		return Result{Content: err.Error(), IsError: true}, nil
	}
	return Result{
		Content: result.Message,
		Data:    map[string]any{"graph_deleted": result.GraphDeleted},
	}, nil
}
