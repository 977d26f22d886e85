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
	"sync"

	"github.com/pkoukk/tiktoken-go"

	"github.com/suchanek/personal-agent-sub002/pkg/llms"
)

const (
	// DefaultHistoryTokenBudget bounds the tokens replayed from history
	// into each request.
	DefaultHistoryTokenBudget = 4096

	// historyEncoding is a reasonable token approximation for all the
	// chat models we target.
	historyEncoding = "cl100k_base"
)

// History holds conversation turns and trims the oldest ones to fit a
// token budget. Safe for concurrent use.
type History struct {
	mu       sync.Mutex
	turns    []llms.Message
	budget   int
	encoding *tiktoken.Tiktoken
}

func NewHistory(tokenBudget int) *History {
	if tokenBudget <= 0 {
		tokenBudget = DefaultHistoryTokenBudget
	}
	// Encoding load failure (offline cache miss) degrades to a
	// character heuristic.
	encoding, err := tiktoken.GetEncoding(historyEncoding)
	if err != nil {
		encoding = nil
	}
	return &History{budget: tokenBudget, encoding: encoding}
}

// Add appends a turn.
func (h *History) Add(message llms.Message) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.turns = append(h.turns, message)
}

// Recent returns the newest turns that fit the token budget, oldest
// first.
func (h *History) Recent() []llms.Message {
	h.mu.Lock()
	defer h.mu.Unlock()

	total := 0
	start := len(h.turns)
	for start > 0 {
		cost := h.tokens(h.turns[start-1].Content) + 4 // role overhead
		if total+cost > h.budget {
			break
		}
		total += cost
		start--
	}

	recent := make([]llms.Message, len(h.turns)-start)
	copy(recent, h.turns[start:])
	return recent
}

// Len reports the number of stored turns.
func (h *History) Len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.turns)
}

// Clear drops all turns.
func (h *History) Clear() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.turns = nil
}

func (h *History) tokens(text string) int {
	if h.encoding != nil {
		return len(h.encoding.Encode(text, nil, nil))
	}
	return len(text) / 4
}
