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

package memory

import (
	"time"
)

// DefaultDedupThreshold is the similarity score at or above which a new
// memory is rejected as a duplicate of an existing one.
const DefaultDedupThreshold = 0.8

// DefaultSearchThreshold is the CLI-facing default for search calls;
// search callers may pass any threshold.
const DefaultSearchThreshold = 0.7

// Record is one stored memory. Text is stored verbatim, first person
// preserved.
type Record struct {
	ID        string    `json:"id"`
	UserID    string    `json:"user_id"`
	Text      string    `json:"text"`
	Topics    []string  `json:"topics"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// AddResult reports the outcome of an AddMemory call. A duplicate
// rejection is not an error: Accepted is false and MemoryID carries the
// existing record's id.
type AddResult struct {
	Accepted bool   `json:"accepted"`
	Message  string `json:"message"`
	MemoryID string `json:"memory_id"`
}

// SearchResult pairs a record with its similarity score. Scores are in
// [0, 1+topic_boost].
type SearchResult struct {
	Record Record  `json:"record"`
	Score  float64 `json:"score"`
}

// SearchOptions tune a similarity search.
type SearchOptions struct {
	Limit        int
	Threshold    float64
	SearchTopics bool
	TopicBoost   float64
}

// Stats summarizes one user's memory store.
type Stats struct {
	TotalMemories   int            `json:"total_memories"`
	Recent24h       int            `json:"recent_24h"`
	MostCommonTopic string         `json:"most_common_topic"`
	TopicCounts     map[string]int `json:"topic_counts"`
	OldestMemory    time.Time      `json:"oldest_memory,omitempty"`
	NewestMemory    time.Time      `json:"newest_memory,omitempty"`
}

// HasTopic reports set-membership of topic in the record's topic list.
func (r Record) HasTopic(topic string) bool {
	for _, t := range r.Topics {
		if t == topic {
			return true
		}
	}
	return false
}
