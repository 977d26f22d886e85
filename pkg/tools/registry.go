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
	"log/slog"
	"time"

	"github.com/suchanek/personal-agent-sub002/pkg/llms"
	"github.com/suchanek/personal-agent-sub002/pkg/perr"
	"github.com/suchanek/personal-agent-sub002/pkg/registry"
)

// Registry holds tools by unique name.
type Registry struct {
	base *registry.BaseRegistry[Tool]
}

func NewRegistry() *Registry {
	return &Registry{base: registry.NewBaseRegistry[Tool]()}
}

// Register rejects duplicate names.
func (r *Registry) Register(tool Tool) error {
	info := tool.Info()
	if info.Name == "" {
		return perr.New(perr.KindInvalidInput, "ToolRegistry", "Register", "tool name cannot be empty")
	}
	if err := r.base.Register(info.Name, tool); err != nil {
		return perr.Wrap(perr.KindDuplicate, "ToolRegistry", "Register",
			"tool "+info.Name+" already registered", err)
	}
	return nil
}

// ListTools returns descriptors in name order.
func (r *Registry) ListTools() []Info {
	tools := r.base.List()
	infos := make([]Info, 0, len(tools))
	for _, tool := range tools {
		infos = append(infos, tool.Info())
	}
	return infos
}

// Names returns registered tool names in order.
func (r *Registry) Names() []string { return r.base.Names() }

// Get looks a tool up by name.
func (r *Registry) Get(name string) (Tool, bool) { return r.base.Get(name) }

// RenderForLLM converts every registered tool into the schema shape the
// provider layer sends to the model.
func (r *Registry) RenderForLLM() []llms.ToolDefinition {
	tools := r.base.List()
	defs := make([]llms.ToolDefinition, 0, len(tools))
	for _, tool := range tools {
		info := tool.Info()
		defs = append(defs, llms.ToolDefinition{
			Name:        info.Name,
			Description: info.Description,
			Parameters:  info.Parameters,
		})
	}
	return defs
}

// Subset builds a registry holding only the named tools; unknown names
// are skipped. Used by team specialists to pin their tool set.
func (r *Registry) Subset(names ...string) *Registry {
	sub := NewRegistry()
	for _, name := range names {
		if tool, ok := r.base.Get(name); ok {
			_ = sub.Register(tool)
		}
	}
	return sub
}

// Invoke runs a tool by name. Unknown names fail with NotFound.
func (r *Registry) Invoke(ctx context.Context, name string, args map[string]any) (Result, error) {
	tool, ok := r.base.Get(name)
	if !ok {
		return Result{}, perr.New(perr.KindNotFound, "ToolRegistry", "Invoke",
			"unknown tool "+name)
	}

	start := time.Now()
	result, err := tool.Execute(ctx, args)
	slog.Debug("Tool invoked",
		"tool", name,
		"duration", time.Since(start),
		"is_error", result.IsError,
		"failed", err != nil,
	)
	return result, err
}
