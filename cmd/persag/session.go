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

package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/fatih/color"

	"github.com/suchanek/personal-agent-sub002/pkg/clearing"
	"github.com/suchanek/personal-agent-sub002/pkg/config"
	"github.com/suchanek/personal-agent-sub002/pkg/llms"
	"github.com/suchanek/personal-agent-sub002/pkg/memory"
)

const sessionMemoryLimit = 20

var (
	promptColor = color.New(color.FgCyan, color.Bold)
	toolColor   = color.New(color.FgYellow)
	errColor    = color.New(color.FgRed)
	infoColor   = color.New(color.FgGreen)
)

// runSession drives the interactive loop. Every line is either a
// session command or a query for the agent. Returns nil on quit or
// EOF so the process exits 0.
func runSession(ctx context.Context, rt *runtime, cfg *config.Registry) error {
	snap := cfg.Snapshot()
	infoColor.Printf("persag session (user: %s, provider: %s, model: %s, mode: %s)\n",
		snap.UserID, snap.Provider, snap.Model, snap.AgentMode)
	fmt.Println("Commands: memories, analysis, stats, clear, delete memory <id>, delete topic <topic>, ! <text>, ? <topic>, quit")

	scanner := bufio.NewScanner(os.Stdin)
	for {
		if ctx.Err() != nil {
			return nil
		}
		promptColor.Print("> ")
		if !scanner.Scan() {
			fmt.Println()
			return nil
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if line == "quit" || line == "exit" {
			return nil
		}
		handleLine(ctx, rt, line)
	}
}

func handleLine(ctx context.Context, rt *runtime, line string) {
	switch {
	case line == "memories":
		showMemories(ctx, rt)
	case line == "stats":
		showStats(ctx, rt)
	case line == "analysis":
		showAnalysis(ctx, rt)
	case line == "clear":
		clearMemories(ctx, rt)
	case strings.HasPrefix(line, "delete memory "):
		deleteMemory(ctx, rt, strings.TrimSpace(strings.TrimPrefix(line, "delete memory ")))
	case strings.HasPrefix(line, "delete topic "):
		deleteTopic(ctx, rt, strings.TrimSpace(strings.TrimPrefix(line, "delete topic ")))
	case strings.HasPrefix(line, "! "):
		storeMemory(ctx, rt, strings.TrimSpace(strings.TrimPrefix(line, "! ")))
	case strings.HasPrefix(line, "? "):
		listByTopic(ctx, rt, strings.TrimSpace(strings.TrimPrefix(line, "? ")))
	default:
		runQuery(ctx, rt, line)
	}
}

func runQuery(ctx context.Context, rt *runtime, query string) {
	result, err := rt.Run(ctx, query, printChunk)
	if ctx.Err() != nil {
		return
	}
	if err != nil {
		errColor.Printf("\nerror: %v\n", err)
		return
	}
	if result.FinalContent != "" {
		fmt.Println()
	}
	for _, img := range result.Images {
		infoColor.Printf("image: %s\n", img)
	}
}

func printChunk(chunk llms.StreamChunk) {
	switch chunk.Type {
	case llms.ChunkContent:
		fmt.Print(chunk.Text)
	case llms.ChunkToolCall:
		calls := chunk.Tools
		if chunk.Tool != nil {
			calls = append(calls, *chunk.Tool)
		}
		for _, call := range calls {
			toolColor.Printf("\n[tool: %s]\n", call.Name)
		}
	case llms.ChunkStatus:
		if chunk.Status == llms.StatusFailed && chunk.Err != "" {
			errColor.Printf("\n[%s]\n", chunk.Err)
		}
	}
}

func showMemories(ctx context.Context, rt *runtime) {
	coord := rt.memoryCoordinator()
	records, err := coord.Store().GetRecentMemories(ctx, coord.UserID(), sessionMemoryLimit)
	if err != nil {
		errColor.Printf("error: %v\n", err)
		return
	}
	if len(records) == 0 {
		fmt.Println("No memories stored yet.")
		return
	}
	for _, rec := range records {
		printRecord(rec)
	}
}

func printRecord(rec memory.Record) {
	topics := strings.Join(rec.Topics, ", ")
	fmt.Printf("  %s  [%s]  %s\n", rec.ID[:8], topics, rec.Text)
}

func showStats(ctx context.Context, rt *runtime) {
	coord := rt.memoryCoordinator()
	stats, err := coord.Store().GetMemoryStats(ctx, coord.UserID())
	if err != nil {
		errColor.Printf("error: %v\n", err)
		return
	}
	fmt.Printf("Memories: %d total, %d in the last 24h\n", stats.TotalMemories, stats.Recent24h)
	if stats.MostCommonTopic != "" {
		fmt.Printf("Most common topic: %s\n", stats.MostCommonTopic)
	}
	if !stats.OldestMemory.IsZero() {
		fmt.Printf("Oldest: %s  Newest: %s\n",
			stats.OldestMemory.Format("2006-01-02"), stats.NewestMemory.Format("2006-01-02"))
	}
}

// showAnalysis renders stats plus the full topic distribution.
func showAnalysis(ctx context.Context, rt *runtime) {
	coord := rt.memoryCoordinator()
	stats, err := coord.Store().GetMemoryStats(ctx, coord.UserID())
	if err != nil {
		errColor.Printf("error: %v\n", err)
		return
	}
	showStats(ctx, rt)
	if len(stats.TopicCounts) == 0 {
		return
	}

	type topicCount struct {
		topic string
		count int
	}
	counts := make([]topicCount, 0, len(stats.TopicCounts))
	for topic, count := range stats.TopicCounts {
		counts = append(counts, topicCount{topic, count})
	}
	sort.Slice(counts, func(i, j int) bool {
		if counts[i].count != counts[j].count {
			return counts[i].count > counts[j].count
		}
		return counts[i].topic < counts[j].topic
	})

	fmt.Println("Topic distribution:")
	for _, tc := range counts {
		fmt.Printf("  %-16s %s (%d)\n", tc.topic, strings.Repeat("#", tc.count), tc.count)
	}
}

func clearMemories(ctx context.Context, rt *runtime) {
	coord := rt.memoryCoordinator()
	fmt.Printf("This deletes ALL memories for %s across both stores. Type yes to continue: ", coord.UserID())
	scanner := bufio.NewScanner(os.Stdin)
	if !scanner.Scan() || strings.TrimSpace(scanner.Text()) != "yes" {
		fmt.Println("Aborted.")
		return
	}
	report := rt.clearingService().Clear(ctx, clearing.Options{
		IncludeMemoryInputs:   true,
		IncludeKnowledgeGraph: true,
		IncludeCache:          true,
	})
	fmt.Print(clearing.Describe(report, false))
	if !report.OverallSuccess {
		errColor.Println("Some clearing operations failed; see above.")
	}
}

func deleteMemory(ctx context.Context, rt *runtime, id string) {
	if id == "" {
		errColor.Println("usage: delete memory <id>")
		return
	}
	result, err := rt.memoryCoordinator().DeleteMemory(ctx, id)
	if err != nil {
		errColor.Printf("error: %v\n", err)
		return
	}
	fmt.Println(result.Message)
	if result.GraphError != "" {
		errColor.Printf("graph delete failed: %s\n", result.GraphError)
	}
}

func deleteTopic(ctx context.Context, rt *runtime, topic string) {
	if topic == "" {
		errColor.Println("usage: delete topic <topic>")
		return
	}
	results, err := rt.memoryCoordinator().DeleteMemoriesByTopic(ctx, topic)
	if err != nil {
		errColor.Printf("error: %v\n", err)
		return
	}
	fmt.Printf("Deleted %d memories with topic %q\n", len(results), topic)
}

func storeMemory(ctx context.Context, rt *runtime, text string) {
	if text == "" {
		errColor.Println("usage: ! <text>")
		return
	}
	result, err := rt.memoryCoordinator().StoreUserMemory(ctx, text, nil)
	if err != nil {
		errColor.Printf("error: %v\n", err)
		return
	}
	fmt.Println(result.Message)
	if result.GraphError != "" {
		errColor.Printf("graph write failed: %s\n", result.GraphError)
	}
}

func listByTopic(ctx context.Context, rt *runtime, topic string) {
	if topic == "" {
		errColor.Println("usage: ? <topic>")
		return
	}
	coord := rt.memoryCoordinator()
	results, err := coord.Store().SearchMemories(ctx, topic, coord.UserID(), memory.SearchOptions{
		Limit:        sessionMemoryLimit,
		Threshold:    memory.DefaultSearchThreshold,
		SearchTopics: true,
		TopicBoost:   0.3,
	})
	if err != nil {
		errColor.Printf("error: %v\n", err)
		return
	}
	if len(results) == 0 {
		fmt.Printf("No memories matching topic %q.\n", topic)
		return
	}
	for _, res := range results {
		printRecord(res.Record)
	}
}
