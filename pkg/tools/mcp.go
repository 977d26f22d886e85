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
	"log/slog"
	"os"
	"strings"

	"github.com/mark3labs/mcp-go/client"
	"github.com/mark3labs/mcp-go/mcp"

	"github.com/suchanek/personal-agent-sub002/pkg/llms"
	"github.com/suchanek/personal-agent-sub002/pkg/perr"
)

// MCPServerConfig describes one MCP server launched over stdio. Each
// invocation spawns a fresh subprocess and tears it down afterwards, so
// no state leaks between calls.
type MCPServerConfig struct {
	// Name prefixes the exposed tool names (name_toolname).
	Name string

	// Command and Args launch the server.
	Command string
	Args    []string

	// Env vars passed to the subprocess verbatim.
	Env map[string]string

	// EnvRenames maps a variable in our environment to the name the
	// server expects, e.g. GITHUB_PERSONAL_ACCESS_TOKEN -> GITHUB_TOKEN.
	EnvRenames map[string]string
}

// RegisterMCPTools connects once to discover the server's tools, then
// registers per-invocation wrappers. Discovery failure is returned; the
// caller decides whether a missing server is fatal.
func RegisterMCPTools(ctx context.Context, reg *Registry, cfg MCPServerConfig) error {
	mcpClient, err := startMCPClient(ctx, cfg)
	if err != nil {
		return err
	}
	defer mcpClient.Close()

	listResp, err := mcpClient.ListTools(ctx, mcp.ListToolsRequest{})
	if err != nil {
		return perr.Wrap(perr.KindExternal, "MCP", "ListTools",
			"cannot list tools from "+cfg.Name, err)
	}

	for _, mcpTool := range listResp.Tools {
		wrapper := &mcpProxyTool{
			cfg:      cfg,
			toolName: mcpTool.Name,
			info: Info{
				Name:        cfg.Name + "_" + mcpTool.Name,
				Description: mcpTool.Description,
				Kind:        KindMCP,
				Parameters:  convertMCPSchema(mcpTool.InputSchema),
			},
		}
		if err := reg.Register(wrapper); err != nil {
			return err
		}
	}

	slog.Info("Registered MCP server tools", "server", cfg.Name, "tools", len(listResp.Tools))
	return nil
}

// startMCPClient spawns the subprocess and completes the MCP handshake.
func startMCPClient(ctx context.Context, cfg MCPServerConfig) (*client.Client, error) {
	mcpClient, err := client.NewStdioMCPClient(cfg.Command, buildEnv(cfg), cfg.Args...)
	if err != nil {
		return nil, perr.Wrap(perr.KindExternal, "MCP", "Start",
			"cannot spawn "+cfg.Command, err)
	}
	if err := mcpClient.Start(ctx); err != nil {
		return nil, perr.Wrap(perr.KindExternal, "MCP", "Start",
			"cannot start client for "+cfg.Name, err)
	}

	initReq := mcp.InitializeRequest{}
	initReq.Params.ClientInfo = mcp.Implementation{Name: "persag", Version: "1.0.0"}
	initReq.Params.ProtocolVersion = "2024-11-05"
	if _, err := mcpClient.Initialize(ctx, initReq); err != nil {
		mcpClient.Close()
		return nil, perr.Wrap(perr.KindExternal, "MCP", "Initialize",
			"handshake with "+cfg.Name+" failed", err)
	}
	return mcpClient, nil
}

// buildEnv applies renames against the current environment, then
// overlays explicit vars.
func buildEnv(cfg MCPServerConfig) []string {
	var env []string
	for from, to := range cfg.EnvRenames {
		if value := os.Getenv(from); value != "" {
			env = append(env, to+"="+value)
		}
	}
	for key, value := range cfg.Env {
		env = append(env, key+"="+value)
	}
	return env
}

type mcpProxyTool struct {
	cfg      MCPServerConfig
	toolName string
	info     Info
}

func (t *mcpProxyTool) Info() Info { return t.info }

// Execute spawns a fresh subprocess, runs the single call, and tears
// the server down.
func (t *mcpProxyTool) Execute(ctx context.Context, args map[string]any) (Result, error) {
	mcpClient, err := startMCPClient(ctx, t.cfg)
	if err != nil {
		return Result{Content: err.Error(), IsError: true}, nil
	}
	defer mcpClient.Close()

	req := mcp.CallToolRequest{}
	req.Params.Name = t.toolName
	req.Params.Arguments = args

	resp, err := mcpClient.CallTool(ctx, req)
	if err != nil {
		return Result{Content: fmt.Sprintf("MCP call failed: %v", err), IsError: true}, nil
	}

	var texts []string
	for _, content := range resp.Content {
		if textContent, ok := content.(mcp.TextContent); ok {
			texts = append(texts, textContent.Text)
		}
	}
	joined := strings.Join(texts, "\n")
	if resp.IsError {
		if joined == "" {
			joined = "unknown error"
		}
		return Result{Content: joined, IsError: true}, nil
	}
	return Result{Content: joined}, nil
}

// convertMCPSchema flattens an MCP input schema into parameter
// descriptors.
func convertMCPSchema(schema mcp.ToolInputSchema) []llms.ToolParameter {
	required := make(map[string]bool, len(schema.Required))
	for _, name := range schema.Required {
		required[name] = true
	}

	params := make([]llms.ToolParameter, 0, len(schema.Properties))
	for name, raw := range schema.Properties {
		param := llms.ToolParameter{Name: name, Type: "string", Required: required[name]}
		if prop, ok := raw.(map[string]any); ok {
			if typ, ok := prop["type"].(string); ok {
				param.Type = typ
			}
			if desc, ok := prop["description"].(string); ok {
				param.Description = desc
			}
		}
		params = append(params, param)
	}
	return params
}
