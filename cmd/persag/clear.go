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
	"context"
	"fmt"

	"github.com/suchanek/personal-agent-sub002/pkg/clearing"
	"github.com/suchanek/personal-agent-sub002/pkg/config"
	"github.com/suchanek/personal-agent-sub002/pkg/embedder"
	"github.com/suchanek/personal-agent-sub002/pkg/graph"
	"github.com/suchanek/personal-agent-sub002/pkg/memory"
)

// ClearCmd clears the active user's memory systems. The default run
// covers the semantic store, the memory graph, the inputs directory,
// graph artifacts, and the server cache.
type ClearCmd struct {
	DryRun       bool `name:"dry-run" help:"Report what would be cleared without clearing."`
	SemanticOnly bool `name:"semantic-only" help:"Clear only the local semantic store."`
	LightRAGOnly bool `name:"lightrag-only" help:"Clear only the graph memory system."`
	Yes          bool `short:"y" help:"Skip the confirmation prompt."`
	Verbose      bool `short:"v" help:"Show per-step errors."`
}

func (c *ClearCmd) Run() error {
	ctx := context.Background()

	cfg, err := config.Default()
	if err != nil {
		return err
	}
	snap := cfg.Snapshot()

	if !c.DryRun && !c.Yes {
		fmt.Printf("This deletes memories for %s. Type yes to continue: ", snap.UserID)
		var answer string
		if _, err := fmt.Scanln(&answer); err != nil || answer != "yes" {
			fmt.Println("Aborted.")
			return nil
		}
	}

	store, err := memory.NewStore(snap.Paths.MemoryDBPath, embedder.NewOllamaEmbedder(snap.OllamaURL, ""))
	if err != nil {
		return err
	}
	defer store.Close()

	svc := clearing.NewService(store, graph.NewClient(snap.LightRAGMemoryURL), snap.Paths, snap.UserID)
	report := svc.Clear(ctx, clearing.Options{
		DryRun:                c.DryRun,
		SemanticOnly:          c.SemanticOnly,
		LightRAGOnly:          c.LightRAGOnly,
		IncludeMemoryInputs:   true,
		IncludeKnowledgeGraph: true,
		IncludeCache:          true,
		Verbose:               c.Verbose,
	})
	fmt.Print(clearing.Describe(report, c.Verbose))
	if !report.OverallSuccess && !c.DryRun {
		return fmt.Errorf("clearing incomplete: %s", report.Summary)
	}
	return nil
}
