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
	"context"
	"encoding/json"
	"errors"
	"io"
	"os"
	"sort"
	"strings"

	openai "github.com/sashabaranov/go-openai"

	"github.com/suchanek/personal-agent-sub002/pkg/perr"
)

// OpenAIProvider speaks the OpenAI chat-completions protocol. With a
// custom base URL it also serves LM Studio and other compatible
// servers.
type OpenAIProvider struct {
	name   string
	model  string
	client *openai.Client
}

// NewOpenAIProvider targets api.openai.com with OPENAI_API_KEY from the
// environment unless apiKey is given.
func NewOpenAIProvider(model, apiKey string) *OpenAIProvider {
	if apiKey == "" {
		apiKey = os.Getenv("OPENAI_API_KEY")
	}
	return &OpenAIProvider{
		name:   "openai",
		model:  model,
		client: openai.NewClient(apiKey),
	}
}

// NewCompatibleProvider targets any OpenAI-compatible server (LM
// Studio, llama.cpp) at baseURL. Such servers ignore the key but the
// client requires one.
func NewCompatibleProvider(name, baseURL, model string) *OpenAIProvider {
	cfg := openai.DefaultConfig("not-needed")
	cfg.BaseURL = strings.TrimRight(baseURL, "/") + "/v1"
	return &OpenAIProvider{
		name:   name,
		model:  model,
		client: openai.NewClientWithConfig(cfg),
	}
}

func (p *OpenAIProvider) Name() string  { return p.name }
func (p *OpenAIProvider) Model() string { return p.model }
func (p *OpenAIProvider) Close() error  { return nil }

// Stream opens a completion stream and relays deltas. Tool-call
// fragments are accumulated per index and emitted once complete.
func (p *OpenAIProvider) Stream(ctx context.Context, req Request) (<-chan StreamChunk, error) {
	chatReq := openai.ChatCompletionRequest{
		Model:    p.model,
		Messages: p.convertMessages(req.Messages),
		Stream:   true,
	}
	if req.Seed != 0 {
		seed := req.Seed
		chatReq.Seed = &seed
	}
	if len(req.Tools) > 0 {
		chatReq.Tools = p.convertTools(req.Tools)
	}

	stream, err := p.client.CreateChatCompletionStream(ctx, chatReq)
	if err != nil {
		return nil, perr.Wrap(perr.KindExternal, "OpenAI", "Stream", "cannot open stream", err)
	}

	out := make(chan StreamChunk)
	go func() {
		defer close(out)
		defer stream.Close()

		content := strings.Builder{}
		// Tool-call deltas arrive fragmented; index keys the assembly.
		pending := make(map[int]*pendingCall)

		for {
			resp, err := stream.Recv()
			if errors.Is(err, io.EOF) {
				break
			}
			if err != nil {
				emit(ctx, out, StreamChunk{Type: ChunkStatus, Status: StatusFailed, Err: err.Error()})
				return
			}
			if len(resp.Choices) == 0 {
				continue
			}
			delta := resp.Choices[0].Delta

			if delta.Content != "" {
				content.WriteString(delta.Content)
				if !emit(ctx, out, StreamChunk{Type: ChunkContent, Text: delta.Content}) {
					return
				}
			}
			for _, tc := range delta.ToolCalls {
				idx := 0
				if tc.Index != nil {
					idx = *tc.Index
				}
				call, ok := pending[idx]
				if !ok {
					call = &pendingCall{}
					pending[idx] = call
				}
				if tc.Function.Name != "" {
					call.name = tc.Function.Name
				}
				call.args.WriteString(tc.Function.Arguments)
			}
		}

		if calls := assembleCalls(pending); len(calls) > 0 {
			if !emit(ctx, out, StreamChunk{Type: ChunkToolCall, Tools: calls}) {
				return
			}
		}
		emit(ctx, out, StreamChunk{Type: ChunkDone, Done: true, Status: StatusCompleted, Content: content.String()})
	}()
	return out, nil
}

type pendingCall struct {
	name string
	args strings.Builder
}

func assembleCalls(pending map[int]*pendingCall) []ToolCall {
	if len(pending) == 0 {
		return nil
	}
	indexes := make([]int, 0, len(pending))
	for idx := range pending {
		indexes = append(indexes, idx)
	}
	sort.Ints(indexes)

	calls := make([]ToolCall, 0, len(indexes))
	for _, idx := range indexes {
		call := pending[idx]
		args := map[string]any{}
		if raw := call.args.String(); raw != "" {
			// Malformed arguments degrade to the raw string rather
			// than dropping the call.
			if err := json.Unmarshal([]byte(raw), &args); err != nil {
				args = map[string]any{"_raw": raw}
			}
		}
		calls = append(calls, ToolCall{Name: call.name, Arguments: args})
	}
	return calls
}

func (p *OpenAIProvider) convertMessages(messages []Message) []openai.ChatCompletionMessage {
	converted := make([]openai.ChatCompletionMessage, 0, len(messages))
	for _, m := range messages {
		msg := openai.ChatCompletionMessage{Role: m.Role, Content: m.Content}
		if m.Role == RoleTool {
			msg.Name = m.ToolName
			// Compatible servers route tool output via tool_call_id;
			// the tool name stands in when no id is tracked.
			msg.ToolCallID = m.ToolName
		}
		for _, tc := range m.ToolCalls {
			args, _ := json.Marshal(tc.Arguments)
			msg.ToolCalls = append(msg.ToolCalls, openai.ToolCall{
				ID:   tc.Name,
				Type: openai.ToolTypeFunction,
				Function: openai.FunctionCall{
					Name:      tc.Name,
					Arguments: string(args),
				},
			})
		}
		converted = append(converted, msg)
	}
	return converted
}

func (p *OpenAIProvider) convertTools(tools []ToolDefinition) []openai.Tool {
	converted := make([]openai.Tool, 0, len(tools))
	for _, tool := range tools {
		properties := make(map[string]any, len(tool.Parameters))
		var required []string
		for _, param := range tool.Parameters {
			properties[param.Name] = map[string]any{
				"type":        param.Type,
				"description": param.Description,
			}
			if param.Required {
				required = append(required, param.Name)
			}
		}
		converted = append(converted, openai.Tool{
			Type: openai.ToolTypeFunction,
			Function: &openai.FunctionDefinition{
				Name:        tool.Name,
				Description: tool.Description,
				Parameters: map[string]any{
					"type":       "object",
					"properties": properties,
					"required":   required,
				},
			},
		})
	}
	return converted
}
