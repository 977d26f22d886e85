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

package knowledge

import (
	"fmt"
	"strings"
)

// relationshipWords route a query to graph-global mode: the answer
// lives in edges, not in any single document.
var relationshipWords = []string{
	"relationship", "connection", "related", "between", "how", "why",
	"impact", "influence", "depend",
}

// factualWords route to the local semantic index.
var factualWords = []string{
	"what", "when", "where", "who", "which", "define", "definition",
	"list", "name",
}

// creativeWords mark generation requests the knowledge surface must
// refuse.
var creativeWords = []string{
	"write", "generate", "compose", "create", "poem", "story", "song",
	"essay", "imagine", "invent", "draft",
}

func words(text string) []string {
	return strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !('a' <= r && r <= 'z') && !('0' <= r && r <= '9')
	})
}

func containsAny(tokens []string, vocabulary []string) (string, bool) {
	set := make(map[string]struct{}, len(tokens))
	for _, token := range tokens {
		set[token] = struct{}{}
	}
	for _, word := range vocabulary {
		if _, ok := set[word]; ok {
			return word, true
		}
	}
	return "", false
}

// classifyMode implements the auto-routing table: relationship words
// win over factual interrogatives; neither means hybrid.
func classifyMode(query string) Mode {
	tokens := words(query)
	if _, ok := containsAny(tokens, relationshipWords); ok {
		return ModeGlobal
	}
	if _, ok := containsAny(tokens, factualWords); ok {
		return ModeLocal
	}
	return ModeHybrid
}

// classifyCreative flags generation requests. A factual interrogative
// in the same query overrides the flag ("what poem did Poe write in
// 1845" is retrieval, not generation).
func classifyCreative(query string) (string, bool) {
	tokens := words(query)
	word, creative := containsAny(tokens, creativeWords)
	if !creative {
		return "", false
	}
	if _, factual := containsAny(tokens, factualWords); factual {
		return "", false
	}
	return fmt.Sprintf("creative request rejected: %q asks for generated content; the knowledge base only answers factual queries", word), true
}
