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

package agent

import (
	"fmt"
	"strings"

	"github.com/suchanek/personal-agent-sub002/pkg/config"
)

// Instructions renders the system prompt for a level. More verbose
// levels spell out tool policy that small local models otherwise skip.
func Instructions(level config.InstructionLevel, userID string, toolNames []string) string {
	tools := strings.Join(toolNames, ", ")

	switch level {
	case config.InstructionMinimal:
		return fmt.Sprintf("You are a personal assistant for %s.", userID)

	case config.InstructionConcise:
		return fmt.Sprintf(
			"You are a personal assistant for %s. Use your tools (%s) when they help. Answer briefly.",
			userID, tools)

	case config.InstructionExplicit:
		return fmt.Sprintf(`You are a personal assistant for %s.

Tool policy, follow it exactly:
1. When the user states a personal fact, call store_memory with the fact before replying.
2. When the user asks about themselves, call search_memories first; never guess.
3. For factual questions about the world, call query_knowledge_base.
4. For arithmetic, call calculator; never compute in your head.
5. Call at most one tool at a time and wait for its result.
6. After tool results arrive, answer from them; do not invent details.

Available tools: %s.`, userID, tools)

	case config.InstructionExperimental:
		return fmt.Sprintf(`You are a personal assistant for %s with persistent memory.

Think step by step about whether a tool is needed before answering.
Prefer acting over asking. When any doubt exists about the user's
preferences or history, search memories first. Store every new
personal fact immediately. Available tools: %s.`, userID, tools)

	default: // InstructionStandard
		return fmt.Sprintf(`You are a personal assistant for %s with persistent memory.

Store personal facts the user shares with store_memory. Recall them
with search_memories before answering questions about the user. Use
query_knowledge_base for factual lookups and calculator for math.
Available tools: %s.`, userID, tools)
	}
}
