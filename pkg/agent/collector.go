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
	"regexp"
	"strings"

	"github.com/suchanek/personal-agent-sub002/pkg/llms"
)

// markdownImagePattern matches ![alt](http...) links in emitted text.
var markdownImagePattern = regexp.MustCompile(`!\[[^\]]*\]\((https?://[^)]+)\)`)

// collector folds one provider stream into content, deduplicated tool
// calls and image URLs.
type collector struct {
	content    strings.Builder
	final      string
	finalSet   bool
	toolCalls  []llms.ToolCall
	seenCalls  map[string]bool
	images     []string
	seenImages map[string]bool
	status     llms.RunStatus
	chunkCount int
	errText    string
}

func newCollector() *collector {
	return &collector{
		seenCalls:  make(map[string]bool),
		seenImages: make(map[string]bool),
		status:     llms.StatusRunning,
	}
}

// consume folds one chunk. Tool calls may ride the singular Tool field
// or the plural Tools field; duplicates across both collapse to one.
func (c *collector) consume(chunk llms.StreamChunk) {
	c.chunkCount++

	switch chunk.Type {
	case llms.ChunkContent:
		c.content.WriteString(chunk.Text)
		c.scanImages(chunk.Text)
	case llms.ChunkToolCall:
		if chunk.Tool != nil {
			c.addCall(*chunk.Tool)
		}
		for _, call := range chunk.Tools {
			c.addCall(call)
		}
		c.scanImages(chunk.Text)
	case llms.ChunkStatus:
		if chunk.Status != "" {
			c.status = chunk.Status
		}
		if chunk.Err != "" {
			c.errText = chunk.Err
		}
	case llms.ChunkDone:
		if chunk.Status != "" {
			c.status = chunk.Status
		}
		if chunk.Content != "" {
			// The completion chunk's content is authoritative.
			c.final = chunk.Content
			c.finalSet = true
			c.scanImages(chunk.Content)
		}
	}
}

func (c *collector) addCall(call llms.ToolCall) {
	key := call.Key()
	if c.seenCalls[key] {
		return
	}
	c.seenCalls[key] = true
	c.toolCalls = append(c.toolCalls, call)
}

func (c *collector) scanImages(text string) {
	for _, match := range markdownImagePattern.FindAllStringSubmatch(text, -1) {
		url := match[1]
		if !c.seenImages[url] {
			c.seenImages[url] = true
			c.images = append(c.images, url)
		}
	}
}

// finalContent prefers the completion chunk, falling back to the
// accumulated deltas.
func (c *collector) finalContent() string {
	if c.finalSet {
		return c.final
	}
	return c.content.String()
}
