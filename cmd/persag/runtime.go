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

package main

import (
	"context"
	"log/slog"
	"os"
	"strings"
	"sync"

	"github.com/suchanek/personal-agent-sub002/pkg/agent"
	"github.com/suchanek/personal-agent-sub002/pkg/clearing"
	"github.com/suchanek/personal-agent-sub002/pkg/config"
	"github.com/suchanek/personal-agent-sub002/pkg/embedder"
	"github.com/suchanek/personal-agent-sub002/pkg/graph"
	"github.com/suchanek/personal-agent-sub002/pkg/knowledge"
	"github.com/suchanek/personal-agent-sub002/pkg/llms"
	"github.com/suchanek/personal-agent-sub002/pkg/memcoord"
	"github.com/suchanek/personal-agent-sub002/pkg/memory"
	"github.com/suchanek/personal-agent-sub002/pkg/team"
	"github.com/suchanek/personal-agent-sub002/pkg/tools"
)

// runtime wires the per-process services (config, graph clients, tool
// registry, LLM provider) to the per-user services (memory store,
// coordinators, agents). A user_id change rebinds the per-user half in
// place; tool closures resolve coordinators per invocation so in-flight
// sessions pick up the switch.
type runtime struct {
	cfg            *config.Registry
	knowledgeGraph *graph.Client
	memoryGraph    *graph.Client
	registry       *tools.Registry

	mu        sync.Mutex
	store     *memory.Store
	memCoord  *memcoord.Coordinator
	knowCoord *knowledge.Coordinator
	clearSvc  *clearing.Service
	provider  llms.Provider
	single    *agent.Agent
	squad     *team.Team
}

func newRuntime(ctx context.Context, cfg *config.Registry) (*runtime, error) {
	snap := cfg.Snapshot()

	rt := &runtime{
		cfg:            cfg,
		knowledgeGraph: graph.NewClient(snap.LightRAGURL),
		memoryGraph:    graph.NewClient(snap.LightRAGMemoryURL),
		registry:       tools.NewRegistry(),
	}

	if err := rt.registerTools(ctx, snap); err != nil {
		return nil, err
	}
	if err := rt.rebindUser(snap); err != nil {
		return nil, err
	}
	if err := rt.rebuildProvider(snap); err != nil {
		return nil, err
	}

	if err := cfg.RegisterCallback("runtime", rt.onConfigChange); err != nil {
		return nil, err
	}
	return rt, nil
}

// Close releases the provider and the memory store.
func (rt *runtime) Close() {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	if rt.provider != nil {
		rt.provider.Close()
	}
	if rt.store != nil {
		_ = rt.store.Close()
	}
	rt.cfg.UnregisterCallback("runtime")
}

func (rt *runtime) onConfigChange(key, oldValue, newValue string) {
	if oldValue == newValue {
		return
	}
	snap := rt.cfg.Snapshot()
	switch key {
	case "user_id":
		if err := rt.rebindUser(snap); err != nil {
			slog.Error("User rebind failed", "user_id", newValue, "error", err)
		}
	case "provider", "model", "use_remote", "instruction_level", "agent_mode":
		if err := rt.rebuildProvider(snap); err != nil {
			slog.Error("Provider rebuild failed", "key", key, "error", err)
		}
	}
}

// rebindUser replaces the per-user services for the snapshot's user.
// The old store closes only after the new one opens, so a failed switch
// leaves the previous user serving.
func (rt *runtime) rebindUser(snap config.Snapshot) error {
	store, err := memory.NewStore(snap.Paths.MemoryDBPath, rt.newEmbedder(snap))
	if err != nil {
		return err
	}

	rt.mu.Lock()
	old := rt.store
	rt.store = store
	rt.memCoord = memcoord.NewCoordinator(store, rt.memoryGraph, snap.UserID)
	rt.knowCoord = knowledge.NewCoordinator(
		knowledge.NewStoreSearcher(store, snap.UserID), rt.knowledgeGraph)
	rt.clearSvc = clearing.NewService(store, rt.memoryGraph, snap.Paths, snap.UserID)
	rt.rebuildAgentsLocked(snap)
	rt.mu.Unlock()

	if old != nil {
		_ = old.Close()
	}
	slog.Info("Runtime bound to user", "user_id", snap.UserID, "db", snap.Paths.MemoryDBPath)
	return nil
}

func (rt *runtime) rebuildProvider(snap config.Snapshot) error {
	provider, err := llms.NewProvider(snap)
	if err != nil {
		return err
	}

	rt.mu.Lock()
	old := rt.provider
	rt.provider = provider
	rt.rebuildAgentsLocked(snap)
	rt.mu.Unlock()

	if old != nil {
		old.Close()
	}
	return nil
}

func (rt *runtime) rebuildAgentsLocked(snap config.Snapshot) {
	if rt.provider == nil {
		return
	}
	rt.single = agent.New(rt.provider, rt.registry, agent.Options{
		Name:             "persag",
		InstructionLevel: snap.InstructionLevel,
		UserID:           snap.UserID,
		Seed:             snap.Seed,
	})
	rt.squad = team.New(rt.provider, rt.registry, snap, team.DefaultRoster())
}

// Run executes one query through the configured agent mode.
func (rt *runtime) Run(ctx context.Context, query string, onChunk func(llms.StreamChunk)) (*agent.RunResult, error) {
	rt.mu.Lock()
	snap := rt.cfg.Snapshot()
	single := rt.single
	squad := rt.squad
	rt.mu.Unlock()

	if snap.AgentMode == config.AgentModeTeam {
		return squad.Run(ctx, query, onChunk)
	}
	return single.Run(ctx, query, onChunk)
}

func (rt *runtime) memoryCoordinator() *memcoord.Coordinator {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	return rt.memCoord
}

func (rt *runtime) knowledgeCoordinator() *knowledge.Coordinator {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	return rt.knowCoord
}

func (rt *runtime) clearingService() *clearing.Service {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	return rt.clearSvc
}

func (rt *runtime) newEmbedder(snap config.Snapshot) embedder.Embedder {
	if snap.Provider == config.ProviderOpenAI {
		return embedder.NewOpenAIEmbedder("", "", "")
	}
	return embedder.NewOllamaEmbedder(snap.OllamaURL, "")
}

func (rt *runtime) registerTools(ctx context.Context, snap config.Snapshot) error {
	if err := tools.RegisterCalculatorTool(rt.registry); err != nil {
		return err
	}
	if snap.EnableMemory {
		if err := tools.RegisterMemoryTools(rt.registry, rt.memoryCoordinator); err != nil {
			return err
		}
	}
	if err := tools.RegisterKnowledgeTool(rt.registry, rt.knowledgeCoordinator); err != nil {
		return err
	}
	if snap.UseMCP {
		rt.registerMCPServers(ctx)
	}
	return nil
}

// registerMCPServers reads MCP_SERVERS, a comma-separated list of
// name=command entries, and registers each server's tools. Discovery
// failures are logged and skipped so a dead server never blocks the
// session.
func (rt *runtime) registerMCPServers(ctx context.Context) {
	spec := os.Getenv("MCP_SERVERS")
	if spec == "" {
		return
	}
	for _, entry := range strings.Split(spec, ",") {
		name, command, ok := strings.Cut(strings.TrimSpace(entry), "=")
		if !ok || name == "" || command == "" {
			slog.Warn("Skipping malformed MCP_SERVERS entry", "entry", entry)
			continue
		}
		parts := strings.Fields(command)
		cfg := tools.MCPServerConfig{Name: name, Command: parts[0], Args: parts[1:]}
		if err := tools.RegisterMCPTools(ctx, rt.registry, cfg); err != nil {
			slog.Warn("MCP server registration failed", "server", name, "error", err)
		}
	}
}
