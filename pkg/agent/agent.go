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

// Package agent runs the streaming ReAct loop: stream the model,
// collect tool calls, invoke them through the registry, feed results
// back, and stop at a tool-call budget.
package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/suchanek/personal-agent-sub002/pkg/config"
	"github.com/suchanek/personal-agent-sub002/pkg/llms"
	"github.com/suchanek/personal-agent-sub002/pkg/perr"
	"github.com/suchanek/personal-agent-sub002/pkg/tools"
)

// DefaultToolCallBudget caps total tool invocations per Run.
const DefaultToolCallBudget = 16

// RunResult is one completed (or budget-stopped) agent run.
type RunResult struct {
	FinalContent string          `json:"final_content"`
	ToolCalls    []llms.ToolCall `json:"tool_calls"`
	Images       []string        `json:"images"`
	Status       llms.RunStatus  `json:"status"`
	ChunkCount   int             `json:"chunk_count"`
}

// Options tune an agent.
type Options struct {
	Name             string
	InstructionLevel config.InstructionLevel
	UserID           string
	Seed             int
	ToolCallBudget   int
	// Instructions overrides the level-derived system prompt (team
	// specialists set their own role text).
	Instructions string
}

// Agent drives one LLM provider against one tool registry. Each Run is
// independent; concurrent Runs need separate Agent values only when
// they must not share history.
type Agent struct {
	provider llms.Provider
	registry *tools.Registry
	history  *History
	opts     Options
}

func New(provider llms.Provider, registry *tools.Registry, opts Options) *Agent {
	if opts.ToolCallBudget <= 0 {
		opts.ToolCallBudget = DefaultToolCallBudget
	}
	if opts.Name == "" {
		opts.Name = "agent"
	}
	return &Agent{
		provider: provider,
		registry: registry,
		history:  NewHistory(0),
		opts:     opts,
	}
}

// Name returns the agent's name.
func (a *Agent) Name() string { return a.opts.Name }

// History exposes the conversation log, for REPL commands.
func (a *Agent) History() *History { return a.history }

// Run executes the loop for one user query. onChunk, when non-nil,
// observes every stream chunk as it arrives.
func (a *Agent) Run(ctx context.Context, query string, onChunk func(llms.StreamChunk)) (*RunResult, error) {
	systemPrompt := a.opts.Instructions
	if systemPrompt == "" {
		systemPrompt = Instructions(a.opts.InstructionLevel, a.opts.UserID, a.registry.Names())
	}

	messages := []llms.Message{{Role: llms.RoleSystem, Content: systemPrompt}}
	messages = append(messages, a.history.Recent()...)
	messages = append(messages, llms.Message{Role: llms.RoleUser, Content: query})

	var (
		allCalls    []llms.ToolCall
		allImages   []string
		seenImages  = make(map[string]bool)
		chunkCount  int
		budgetSpent int
		lastContent string
		lastStatus  = llms.StatusRunning
	)

	for {
		if err := ctx.Err(); err != nil {
			return nil, perr.Wrap(perr.KindTransient, "Agent", "Run", "canceled", err)
		}

		stream, err := a.provider.Stream(ctx, llms.Request{
			Messages: messages,
			Tools:    a.registry.RenderForLLM(),
			Seed:     a.opts.Seed,
		})
		if err != nil {
			return nil, err
		}

		col := newCollector()
		for chunk := range stream {
			col.consume(chunk)
			if onChunk != nil {
				onChunk(chunk)
			}
		}
		if err := ctx.Err(); err != nil {
			return nil, perr.Wrap(perr.KindTransient, "Agent", "Run", "canceled", err)
		}

		chunkCount += col.chunkCount
		lastStatus = col.status
		if content := col.finalContent(); content != "" {
			lastContent = content
		}
		for _, url := range col.images {
			if !seenImages[url] {
				seenImages[url] = true
				allImages = append(allImages, url)
			}
		}
		if col.errText != "" {
			return &RunResult{
				FinalContent: lastContent,
				ToolCalls:    allCalls,
				Images:       allImages,
				Status:       llms.StatusFailed,
				ChunkCount:   chunkCount,
			}, perr.New(perr.KindExternal, "Agent", "Run", col.errText)
		}

		if len(col.toolCalls) == 0 {
			break
		}

		// Budget check happens before invoking this round's calls so a
		// runaway model cannot exceed the cap mid-round.
		if budgetSpent+len(col.toolCalls) > a.opts.ToolCallBudget {
			notice := fmt.Sprintf("\n\n[stopped: tool-call budget of %d exceeded]", a.opts.ToolCallBudget)
			a.remember(query, lastContent)
			return &RunResult{
					FinalContent: lastContent + notice,
					ToolCalls:    allCalls,
					Images:       allImages,
					Status:       llms.StatusFailed,
					ChunkCount:   chunkCount,
				}, perr.New(perr.KindTransient, "Agent", "Run",
					fmt.Sprintf("tool-call budget of %d exceeded", a.opts.ToolCallBudget))
		}

		messages = append(messages, llms.Message{
			Role:      llms.RoleAssistant,
			Content:   col.finalContent(),
			ToolCalls: col.toolCalls,
		})

		for _, call := range col.toolCalls {
			budgetSpent++
			allCalls = append(allCalls, call)

			result, err := a.registry.Invoke(ctx, call.Name, call.Arguments)
			content := result.Content
			if err != nil {
				content = "tool error: " + err.Error()
			}
			slog.Debug("Agent tool round",
				"agent", a.opts.Name,
				"tool", call.Name,
				"args", compactArgs(call.Arguments),
				"budget_spent", budgetSpent,
			)
			messages = append(messages, llms.Message{
				Role:     llms.RoleTool,
				ToolName: call.Name,
				Content:  content,
			})

			// Image tools hand URLs back through tool results too.
			for _, match := range markdownImagePattern.FindAllStringSubmatch(content, -1) {
				if !seenImages[match[1]] {
					seenImages[match[1]] = true
					allImages = append(allImages, match[1])
				}
			}
		}
	}

	a.remember(query, lastContent)
	return &RunResult{
		FinalContent: lastContent,
		ToolCalls:    allCalls,
		Images:       allImages,
		Status:       lastStatus,
		ChunkCount:   chunkCount,
	}, nil
}

func (a *Agent) remember(query, answer string) {
	a.history.Add(llms.Message{Role: llms.RoleUser, Content: query})
	if answer != "" {
		a.history.Add(llms.Message{Role: llms.RoleAssistant, Content: answer})
	}
}

func compactArgs(args map[string]any) string {
	data, err := json.Marshal(args)
	if err != nil {
		return "{}"
	}
	if len(data) > 200 {
		return string(data[:200]) + "..."
	}
	return string(data)
}
