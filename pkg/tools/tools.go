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

// Package tools holds the callable-tool registry: built-ins, memory and
// knowledge facades, and MCP subprocess tools, all rendered as schemas
// for the LLM.
package tools

import (
	"context"

	"github.com/suchanek/personal-agent-sub002/pkg/llms"
)

// Kind tags where a tool's implementation lives.
type Kind string

const (
	KindBuiltin    Kind = "built-in"
	KindMemory     Kind = "memory"
	KindKnowledge  Kind = "knowledge"
	KindSubprocess Kind = "subprocess"
	KindMCP        Kind = "mcp"
)

// Info describes a tool to the registry and, via RenderForLLM, to the
// model.
type Info struct {
	Name        string               `json:"name"`
	Description string               `json:"description"`
	Kind        Kind                 `json:"kind"`
	Parameters  []llms.ToolParameter `json:"parameters"`
}

// Result is a tool invocation outcome. IsError reports a tool-level
// failure the model should see, as opposed to an infrastructure error.
type Result struct {
	Content string         `json:"content"`
	Data    map[string]any `json:"data,omitempty"`
	IsError bool           `json:"is_error,omitempty"`
}

// Tool is anything invocable by the agent loop.
type Tool interface {
	Info() Info
	Execute(ctx context.Context, args map[string]any) (Result, error)
}

// stringArg reads a string argument, tolerating absence.
func stringArg(args map[string]any, key string) string {
	if v, ok := args[key].(string); ok {
		return v
	}
	return ""
}

// intArg reads a numeric argument; JSON decoding yields float64.
func intArg(args map[string]any, key string, fallback int) int {
	switch v := args[key].(type) {
	case float64:
		return int(v)
	case int:
		return v
	}
	return fallback
}

// stringSliceArg reads a list argument of strings.
func stringSliceArg(args map[string]any, key string) []string {
	raw, ok := args[key].([]any)
	if !ok {
		return nil
	}
	out := make([]string, 0, len(raw))
	for _, item := range raw {
		if s, ok := item.(string); ok {
			out = append(out, s)
		}
	}
	return out
}
