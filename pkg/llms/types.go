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

// Package llms adapts chat-completion providers (Ollama native API,
// OpenAI-compatible servers) to one streaming interface the agent loop
// consumes.
package llms

import (
	"context"
	"encoding/json"
)

// Role values follow the chat-completion convention.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleTool      = "tool"
)

// Message is one conversation turn.
type Message struct {
	Role      string     `json:"role"`
	Content   string     `json:"content"`
	ToolName  string     `json:"tool_name,omitempty"`
	ToolCalls []ToolCall `json:"tool_calls,omitempty"`
}

// ToolCall is a provider-requested tool invocation.
type ToolCall struct {
	Name      string         `json:"name"`
	Arguments map[string]any `json:"arguments"`
}

// Key identifies a call for dedup purposes: same name, same serialized
// arguments.
func (t ToolCall) Key() string {
	args, err := json.Marshal(t.Arguments)
	if err != nil {
		return t.Name
	}
	return t.Name + ":" + string(args)
}

// ToolParameter describes one input field of a tool schema.
type ToolParameter struct {
	Name        string `json:"name"`
	Type        string `json:"type"`
	Description string `json:"description"`
	Required    bool   `json:"required"`
}

// ToolDefinition is the schema a provider receives for one tool.
type ToolDefinition struct {
	Name        string          `json:"name"`
	Description string          `json:"description"`
	Parameters  []ToolParameter `json:"parameters"`
}

// ChunkType tags a stream chunk.
type ChunkType string

const (
	ChunkContent  ChunkType = "content"
	ChunkToolCall ChunkType = "tool_call"
	ChunkStatus   ChunkType = "status"
	ChunkDone     ChunkType = "done"
)

// RunStatus is the terminal state a stream reports.
type RunStatus string

const (
	StatusRunning   RunStatus = "running"
	StatusCompleted RunStatus = "completed"
	StatusFailed    RunStatus = "failed"
)

// StreamChunk is one event from a provider stream. Tool calls may
// arrive on the singular Tool field or the plural Tools field depending
// on the upstream shape; consumers must collapse duplicates across
// both.
type StreamChunk struct {
	Type    ChunkType  `json:"type"`
	Text    string     `json:"text,omitempty"`
	Tool    *ToolCall  `json:"tool,omitempty"`
	Tools   []ToolCall `json:"tools,omitempty"`
	Content string     `json:"content,omitempty"`
	Status  RunStatus  `json:"status,omitempty"`
	Done    bool       `json:"done,omitempty"`
	Err     string     `json:"error,omitempty"`
}

// Request is one chat-completion invocation.
type Request struct {
	Messages []Message
	Tools    []ToolDefinition
	Seed     int // 0 means unseeded
}

// Provider streams chat completions. Stream returns immediately; the
// channel closes when the provider finishes or ctx is canceled.
type Provider interface {
	Name() string
	Model() string
	Stream(ctx context.Context, req Request) (<-chan StreamChunk, error)
	Close() error
}
