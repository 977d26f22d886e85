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

	"github.com/suchanek/personal-agent-sub002/pkg/knowledge"
	"github.com/suchanek/personal-agent-sub002/pkg/llms"
)

// KnowledgeSource yields the knowledge coordinator for the active user.
type KnowledgeSource func() *knowledge.Coordinator

// RegisterKnowledgeTool adds the knowledge-base query tool.
func RegisterKnowledgeTool(reg *Registry, source KnowledgeSource) error {
	return reg.Register(&knowledgeTool{source})
}

type knowledgeTool struct{ source KnowledgeSource }

func (t *knowledgeTool) Info() Info {
	return Info{
		Name:        "query_knowledge_base",
		Description: "Answer factual questions from the user's knowledge base and knowledge graph. Not for creative writing.",
		Kind:        KindKnowledge,
		Parameters: []llms.ToolParameter{
			{Name: "query", Type: "string", Description: "The factual question", Required: true},
			{Name: "mode", Type: "string", Description: "local, global, hybrid, mix or auto (default auto)"},
			{Name: "limit", Type: "integer", Description: "Maximum local results (default 5)"},
		},
	}
}

func (t *knowledgeTool) Execute(ctx context.Context, args map[string]any) (Result, error) {
	mode, err := knowledge.ParseMode(stringArg(args, "mode"))
	if err != nil {
		return Result{Content: err.Error(), IsError: true}, nil
	}

	answer, err := t.source().Query(ctx, stringArg(args, "query"), mode, intArg(args, "limit", 5))
	if err != nil {
		return Result{Content: err.Error(), IsError: true}, nil
	}

	var sb strings.Builder
	if answer.GraphAnswer != "" {
		sb.WriteString(answer.GraphAnswer)
	}
	if len(answer.LocalHits) > 0 {
		if sb.Len() > 0 {
			sb.WriteString("\n\nRelated notes:\n")
		}
		for i, hit := range answer.LocalHits {
			fmt.Fprintf(&sb, "%d. %s\n", i+1, hit.Text)
		}
	}
	if sb.Len() == 0 {
		sb.WriteString("No relevant knowledge found.")
	}

	return Result{
		Content: sb.String(),
		Data: map[string]any{
			"mode":        string(answer.ResolvedMode),
			"local_hits":  len(answer.LocalHits),
			"graph_error": answer.GraphError,
		},
	}, nil
}
