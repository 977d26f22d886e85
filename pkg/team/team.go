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

// Package team layers specialist agents behind a routing coordinator.
// Exactly one specialist handles each query; its answer passes through
// unchanged.
package team

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/suchanek/personal-agent-sub002/pkg/agent"
	"github.com/suchanek/personal-agent-sub002/pkg/config"
	"github.com/suchanek/personal-agent-sub002/pkg/llms"
	"github.com/suchanek/personal-agent-sub002/pkg/perr"
	"github.com/suchanek/personal-agent-sub002/pkg/tools"
)

// Specialist binds a role to an agent and routing hints.
type Specialist struct {
	Name        string
	Description string
	Keywords    []string
	Agent       *agent.Agent
}

// Team routes queries to exactly one specialist.
type Team struct {
	provider    llms.Provider
	specialists []*Specialist
	byName      map[string]*Specialist
}

// RosterSpec declares one specialist before agents are built.
type RosterSpec struct {
	Name         string
	Description  string
	Keywords     []string
	Instructions string
	ToolNames    []string
}

// DefaultRoster returns the nine standard specialists. Tool names
// missing from the registry simply leave that specialist with fewer
// tools.
func DefaultRoster() []RosterSpec {
	return []RosterSpec{
		{
			Name:        "memory",
			Description: "personal information, preferences and history of the user",
			Keywords:    []string{"remember", "memory", "memories", "forget", "my", "me", "i"},
			Instructions: "You are the memory specialist. Store personal facts with store_memory " +
				"and answer questions about the user from search_memories. Never invent facts.",
			ToolNames: []string{"store_memory", "search_memories", "recent_memories", "delete_memory"},
		},
		{
			Name:         "web",
			Description:  "current events and web search",
			Keywords:     []string{"search", "news", "latest", "website", "online"},
			Instructions: "You are the web specialist. Use web search tools to answer questions about current information.",
			ToolNames:    []string{"web_search"},
		},
		{
			Name:         "finance",
			Description:  "stock prices and financial data",
			Keywords:     []string{"stock", "price", "market", "ticker", "shares", "crypto"},
			Instructions: "You are the finance specialist. Use finance tools for quotes and market data.",
			ToolNames:    []string{"finance_quote", "web_search"},
		},
		{
			Name:         "calculator",
			Description:  "arithmetic and math",
			Keywords:     []string{"calculate", "math", "sum", "multiply", "divide", "percent"},
			Instructions: "You are the math specialist. Always use the calculator tool; show the computed result.",
			ToolNames:    []string{"calculator"},
		},
		{
			Name:         "image",
			Description:  "image generation",
			Keywords:     []string{"image", "picture", "draw", "photo", "render"},
			Instructions: "You are the image specialist. Use image tools and return resulting image links.",
			ToolNames:    []string{"generate_image"},
		},
		{
			Name:         "python",
			Description:  "code execution",
			Keywords:     []string{"code", "python", "script", "run", "execute"},
			Instructions: "You are the code specialist. Use the code execution tool and report its output.",
			ToolNames:    []string{"run_python"},
		},
		{
			Name:         "file",
			Description:  "reading and writing files",
			Keywords:     []string{"file", "read", "write", "save", "open", "directory"},
			Instructions: "You are the file specialist. Use file tools for all filesystem access.",
			ToolNames:    []string{"read_file", "write_file", "list_directory"},
		},
		{
			Name:         "system",
			Description:  "shell commands and system information",
			Keywords:     []string{"shell", "command", "terminal", "process", "disk", "cpu"},
			Instructions: "You are the system specialist. Use shell tools carefully and report their output.",
			ToolNames:    []string{"run_shell"},
		},
		{
			Name:        "medical",
			Description: "health and medical questions",
			Keywords:    []string{"health", "medical", "symptom", "medication", "doctor", "dose"},
			Instructions: "You are the medical information specialist. Answer from the knowledge base and " +
				"remind the user you are not a substitute for professional care.",
			ToolNames: []string{"query_knowledge_base", "search_memories"},
		},
	}
}

// New builds a team: each roster entry becomes an agent pinned to its
// tool subset.
func New(provider llms.Provider, registry *tools.Registry, snap config.Snapshot, roster []RosterSpec) *Team {
	team := &Team{
		provider: provider,
		byName:   make(map[string]*Specialist, len(roster)),
	}
	for _, spec := range roster {
		member := &Specialist{
			Name:        spec.Name,
			Description: spec.Description,
			Keywords:    spec.Keywords,
			Agent: agent.New(provider, registry.Subset(spec.ToolNames...), agent.Options{
				Name:             spec.Name,
				UserID:           snap.UserID,
				Seed:             snap.Seed,
				InstructionLevel: snap.InstructionLevel,
				Instructions:     spec.Instructions,
			}),
		}
		team.specialists = append(team.specialists, member)
		team.byName[spec.Name] = member
	}
	return team
}

// Specialists returns the roster in order.
func (t *Team) Specialists() []*Specialist { return t.specialists }

// Run routes the query to one specialist and passes its result through
// unchanged.
func (t *Team) Run(ctx context.Context, query string, onChunk func(llms.StreamChunk)) (*agent.RunResult, error) {
	if len(t.specialists) == 0 {
		return nil, perr.New(perr.KindInvalidInput, "Team", "Run", "no specialists configured")
	}

	member := t.route(ctx, query)
	slog.Info("Routing query", "specialist", member.Name)
	return member.Agent.Run(ctx, query, onChunk)
}

// route asks the model to pick a specialist, falling back to keyword
// scoring and finally to the first member.
func (t *Team) route(ctx context.Context, query string) *Specialist {
	if member := t.routeByLLM(ctx, query); member != nil {
		return member
	}
	if member := t.routeByKeywords(query); member != nil {
		return member
	}
	return t.specialists[0]
}

func (t *Team) routeByLLM(ctx context.Context, query string) *Specialist {
	var sb strings.Builder
	sb.WriteString("Pick the single best specialist for the user query. Reply with only the specialist name.\n\nSpecialists:\n")
	for _, member := range t.specialists {
		fmt.Fprintf(&sb, "- %s: %s\n", member.Name, member.Description)
	}

	stream, err := t.provider.Stream(ctx, llms.Request{
		Messages: []llms.Message{
			{Role: llms.RoleSystem, Content: sb.String()},
			{Role: llms.RoleUser, Content: query},
		},
	})
	if err != nil {
		slog.Debug("Routing stream failed, falling back to keywords", "error", err)
		return nil
	}

	var reply strings.Builder
	for chunk := range stream {
		if chunk.Type == llms.ChunkContent {
			reply.WriteString(chunk.Text)
		}
		if chunk.Type == llms.ChunkDone && chunk.Content != "" {
			reply.Reset()
			reply.WriteString(chunk.Content)
		}
	}

	choice := strings.ToLower(strings.TrimSpace(reply.String()))
	for _, member := range t.specialists {
		if choice == member.Name || strings.Contains(choice, member.Name) {
			return member
		}
	}
	return nil
}

func (t *Team) routeByKeywords(query string) *Specialist {
	tokens := make(map[string]bool)
	for _, token := range strings.Fields(strings.ToLower(query)) {
		tokens[strings.Trim(token, ".,!?\"'")] = true
	}

	var best *Specialist
	bestScore := 0
	for _, member := range t.specialists {
		score := 0
		for _, keyword := range member.Keywords {
			if tokens[keyword] {
				score++
			}
		}
		if score > bestScore {
			bestScore = score
			best = member
		}
	}
	return best
}
