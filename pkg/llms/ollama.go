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

package llms

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/suchanek/personal-agent-sub002/pkg/perr"
)

// OllamaProvider speaks the native Ollama /api/chat protocol with
// streaming NDJSON responses and tool support.
type OllamaProvider struct {
	baseURL     string
	model       string
	temperature float64
	httpClient  *http.Client
}

// NewOllamaProvider builds a provider against baseURL (empty means
// localhost).
func NewOllamaProvider(baseURL, model string) *OllamaProvider {
	if baseURL == "" {
		baseURL = "http://localhost:11434"
	}
	return &OllamaProvider{
		baseURL:     strings.TrimRight(baseURL, "/"),
		model:       model,
		temperature: 0.7,
		httpClient:  &http.Client{Timeout: 5 * time.Minute},
	}
}

func (o *OllamaProvider) Name() string  { return "ollama" }
func (o *OllamaProvider) Model() string { return o.model }
func (o *OllamaProvider) Close() error  { return nil }

type ollamaMessage struct {
	Role      string           `json:"role"`
	Content   string           `json:"content"`
	ToolCalls []ollamaToolCall `json:"tool_calls,omitempty"`
}

type ollamaToolCall struct {
	Function struct {
		Name      string         `json:"name"`
		Arguments map[string]any `json:"arguments"`
	} `json:"function"`
}

type ollamaChunk struct {
	Message ollamaMessage `json:"message"`
	Done    bool          `json:"done"`
	Error   string        `json:"error"`
}

// Stream posts /api/chat and relays NDJSON chunks. Content deltas and
// tool calls are forwarded as they arrive; a final done chunk carries
// the completion status.
func (o *OllamaProvider) Stream(ctx context.Context, req Request) (<-chan StreamChunk, error) {
	payload := map[string]any{
		"model":    o.model,
		"messages": o.convertMessages(req.Messages),
		"stream":   true,
		"options": map[string]any{
			"temperature": o.temperature,
		},
	}
	if req.Seed != 0 {
		payload["options"].(map[string]any)["seed"] = req.Seed
	}
	if len(req.Tools) > 0 {
		payload["tools"] = convertToolsOpenAIStyle(req.Tools)
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return nil, perr.Wrap(perr.KindInvalidInput, "Ollama", "Stream", "cannot encode request", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, o.baseURL+"/api/chat", bytes.NewReader(body))
	if err != nil {
		return nil, perr.Wrap(perr.KindInvalidInput, "Ollama", "Stream", "cannot build request", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := o.httpClient.Do(httpReq)
	if err != nil {
		return nil, perr.Wrap(perr.KindTransient, "Ollama", "Stream", "request failed", err)
	}
	if resp.StatusCode != http.StatusOK {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		resp.Body.Close()
		return nil, perr.New(perr.KindExternal, "Ollama", "Stream",
			"server returned "+resp.Status+": "+strings.TrimSpace(string(detail)))
	}

	out := make(chan StreamChunk)
	go func() {
		defer close(out)
		defer resp.Body.Close()

		content := strings.Builder{}
		decoder := json.NewDecoder(resp.Body)
		for {
			var chunk ollamaChunk
			if err := decoder.Decode(&chunk); err != nil {
				if err == io.EOF {
					break
				}
				emit(ctx, out, StreamChunk{Type: ChunkStatus, Status: StatusFailed, Err: err.Error()})
				return
			}
			if chunk.Error != "" {
				emit(ctx, out, StreamChunk{Type: ChunkStatus, Status: StatusFailed, Err: chunk.Error})
				return
			}

			if chunk.Message.Content != "" {
				content.WriteString(chunk.Message.Content)
				if !emit(ctx, out, StreamChunk{Type: ChunkContent, Text: chunk.Message.Content}) {
					return
				}
			}
			if len(chunk.Message.ToolCalls) > 0 {
				calls := make([]ToolCall, 0, len(chunk.Message.ToolCalls))
				for _, tc := range chunk.Message.ToolCalls {
					calls = append(calls, ToolCall{Name: tc.Function.Name, Arguments: tc.Function.Arguments})
				}
				if !emit(ctx, out, StreamChunk{Type: ChunkToolCall, Tools: calls}) {
					return
				}
			}
			if chunk.Done {
				emit(ctx, out, StreamChunk{
					Type:    ChunkDone,
					Done:    true,
					Status:  StatusCompleted,
					Content: content.String(),
				})
				return
			}
		}
		// Stream ended without a done marker; report what we have.
		emit(ctx, out, StreamChunk{Type: ChunkDone, Done: true, Status: StatusCompleted, Content: content.String()})
	}()
	return out, nil
}

func (o *OllamaProvider) convertMessages(messages []Message) []map[string]any {
	converted := make([]map[string]any, 0, len(messages))
	for _, m := range messages {
		entry := map[string]any{"role": m.Role, "content": m.Content}
		if len(m.ToolCalls) > 0 {
			calls := make([]map[string]any, 0, len(m.ToolCalls))
			for _, tc := range m.ToolCalls {
				calls = append(calls, map[string]any{
					"function": map[string]any{"name": tc.Name, "arguments": tc.Arguments},
				})
			}
			entry["tool_calls"] = calls
		}
		converted = append(converted, entry)
	}
	return converted
}

// convertToolsOpenAIStyle renders definitions in the function-calling
// shape both Ollama and OpenAI-compatible servers accept.
func convertToolsOpenAIStyle(tools []ToolDefinition) []map[string]any {
	rendered := make([]map[string]any, 0, len(tools))
	for _, tool := range tools {
		properties := make(map[string]any, len(tool.Parameters))
		var required []string
		for _, p := range tool.Parameters {
			properties[p.Name] = map[string]any{
				"type":        p.Type,
				"description": p.Description,
			}
			if p.Required {
				required = append(required, p.Name)
			}
		}
		rendered = append(rendered, map[string]any{
			"type": "function",
			"function": map[string]any{
				"name":        tool.Name,
				"description": tool.Description,
				"parameters": map[string]any{
					"type":       "object",
					"properties": properties,
					"required":   required,
				},
			},
		})
	}
	return rendered
}

// emit sends a chunk unless ctx is already canceled.
func emit(ctx context.Context, out chan<- StreamChunk, chunk StreamChunk) bool {
	select {
	case out <- chunk:
		return true
	case <-ctx.Done():
		return false
	}
}
