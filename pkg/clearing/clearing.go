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

// Package clearing performs coordinated bulk deletion across the
// semantic store, the graph service, and on-disk artifacts.
package clearing

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/suchanek/personal-agent-sub002/pkg/graph"
	"github.com/suchanek/personal-agent-sub002/pkg/identity"
	"github.com/suchanek/personal-agent-sub002/pkg/memory"
)

// Options gate the individual clearing steps.
type Options struct {
	DryRun                bool
	SemanticOnly          bool
	LightRAGOnly          bool
	IncludeMemoryInputs   bool
	IncludeKnowledgeGraph bool
	IncludeCache          bool
	Verbose               bool
}

// ClearingResult is one step's outcome, shared by every deletion path.
type ClearingResult struct {
	Step         string   `json:"step"`
	Success      bool     `json:"success"`
	Message      string   `json:"message"`
	ItemsCleared int      `json:"items_cleared"`
	Errors       []string `json:"errors,omitempty"`
}

// Report aggregates all attempted steps.
type Report struct {
	Steps          []ClearingResult `json:"steps"`
	OverallSuccess bool             `json:"overall_success"`
	Summary        string           `json:"summary"`
}

// GraphService is the graph surface clearing needs.
type GraphService interface {
	ListDocuments(ctx context.Context) ([]graph.Document, error)
	DeleteDocuments(ctx context.Context, ids []string, deleteSource bool) (*graph.DeleteResult, error)
	ClearCache(ctx context.Context) error
}

// Service wires the clearing steps for one user.
type Service struct {
	store  *memory.Store
	graph  GraphService
	paths  identity.StoragePaths
	userID string
}

func NewService(store *memory.Store, graphSvc GraphService, paths identity.StoragePaths, userID string) *Service {
	return &Service{store: store, graph: graphSvc, paths: paths, userID: userID}
}

// Clear runs the enabled steps in order and aggregates strictly: at
// least one attempted operation succeeded and none failed.
func (s *Service) Clear(ctx context.Context, opts Options) *Report {
	report := &Report{}

	semantic := !opts.LightRAGOnly
	lightrag := !opts.SemanticOnly

	if semantic {
		report.add(s.clearSemantic(ctx, opts))
	}
	if lightrag {
		report.add(s.clearGraphDocuments(ctx, opts))
		if opts.IncludeMemoryInputs {
			report.add(s.clearMemoryInputs(opts))
		}
		if opts.IncludeKnowledgeGraph {
			report.add(s.deleteGraphArtifacts(opts))
		}
		if opts.IncludeCache {
			report.add(s.clearCache(ctx, opts))
		}
	}

	succeeded, failed := 0, 0
	for _, step := range report.Steps {
		if step.Success {
			succeeded++
		} else {
			failed++
		}
	}
	report.OverallSuccess = succeeded > 0 && failed == 0

	if opts.DryRun {
		report.Summary = fmt.Sprintf("DRY RUN: %d operations would succeed, %d would fail", succeeded, failed)
	} else {
		report.Summary = fmt.Sprintf("%d operations succeeded, %d failed", succeeded, failed)
	}
	return report
}

func (r *Report) add(result ClearingResult) {
	r.Steps = append(r.Steps, result)
	slog.Debug("Clearing step finished",
		"step", result.Step,
		"success", result.Success,
		"items", result.ItemsCleared,
	)
}

// clearSemantic drops all memories and verifies the count reads zero
// afterwards.
func (s *Service) clearSemantic(ctx context.Context, opts Options) ClearingResult {
	result := ClearingResult{Step: "semantic_memories"}

	records, err := s.store.GetAllMemories(ctx, s.userID)
	if err != nil {
		return fail(result, "cannot count memories", err)
	}

	if opts.DryRun {
		result.Success = true
		result.ItemsCleared = len(records)
		result.Message = fmt.Sprintf("would clear %d memories", len(records))
		return result
	}

	cleared, err := s.store.ClearMemories(ctx, s.userID)
	if err != nil {
		return fail(result, "clear failed", err)
	}

	remaining, err := s.store.GetAllMemories(ctx, s.userID)
	if err != nil {
		return fail(result, "post-clear verification failed", err)
	}
	if len(remaining) != 0 {
		result.Errors = append(result.Errors, fmt.Sprintf("%d memories remain after clear", len(remaining)))
		result.Message = "clear incomplete"
		return result
	}

	result.Success = true
	result.ItemsCleared = cleared
	result.Message = fmt.Sprintf("cleared %d memories", cleared)
	return result
}

func (s *Service) clearGraphDocuments(ctx context.Context, opts Options) ClearingResult {
	result := ClearingResult{Step: "graph_documents"}

	docs, err := s.graph.ListDocuments(ctx)
	if err != nil {
		return fail(result, "cannot list graph documents", err)
	}
	if len(docs) == 0 {
		result.Success = true
		result.Message = "no graph documents to delete"
		return result
	}

	ids := make([]string, 0, len(docs))
	for _, doc := range docs {
		ids = append(ids, doc.ID)
	}

	if opts.DryRun {
		result.Success = true
		result.ItemsCleared = len(ids)
		result.Message = fmt.Sprintf("would delete %d graph documents", len(ids))
		return result
	}

	if _, err := s.graph.DeleteDocuments(ctx, ids, true); err != nil {
		return fail(result, "graph deletion failed", err)
	}
	result.Success = true
	result.ItemsCleared = len(ids)
	result.Message = fmt.Sprintf("deleted %d graph documents", len(ids))
	return result
}

// clearMemoryInputs empties the memory inputs directory, keeping the
// directory itself.
func (s *Service) clearMemoryInputs(opts Options) ClearingResult {
	result := ClearingResult{Step: "memory_inputs"}
	dir := s.paths.MemoryInputsDir

	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			result.Success = true
			result.Message = "memory inputs directory absent"
			return result
		}
		return fail(result, "cannot read "+dir, err)
	}

	if opts.DryRun {
		result.Success = true
		result.ItemsCleared = len(entries)
		result.Message = fmt.Sprintf("would remove %d entries from %s", len(entries), dir)
		return result
	}

	removed := 0
	for _, entry := range entries {
		path := filepath.Join(dir, entry.Name())
		if err := os.RemoveAll(path); err != nil {
			result.Errors = append(result.Errors, fmt.Sprintf("%s: %v", path, err))
			continue
		}
		removed++
	}
	result.ItemsCleared = removed
	result.Success = len(result.Errors) == 0
	result.Message = fmt.Sprintf("removed %d entries from %s", removed, dir)
	return result
}

// deleteGraphArtifacts removes *.graphml files in both rag storage
// directories.
func (s *Service) deleteGraphArtifacts(opts Options) ClearingResult {
	result := ClearingResult{Step: "graph_artifacts"}

	var artifacts []string
	for _, dir := range []string{s.paths.RAGStorageDir, s.paths.MemoryRAGStorageDir} {
		matches, err := filepath.Glob(filepath.Join(dir, "*.graphml"))
		if err != nil {
			continue
		}
		artifacts = append(artifacts, matches...)
	}

	if opts.DryRun {
		result.Success = true
		result.ItemsCleared = len(artifacts)
		result.Message = fmt.Sprintf("would delete %d graph artifacts", len(artifacts))
		return result
	}

	removed := 0
	for _, path := range artifacts {
		if err := os.Remove(path); err != nil {
			result.Errors = append(result.Errors, fmt.Sprintf("%s: %v", path, err))
			continue
		}
		removed++
	}
	result.ItemsCleared = removed
	result.Success = len(result.Errors) == 0
	result.Message = fmt.Sprintf("deleted %d graph artifacts", removed)
	return result
}

func (s *Service) clearCache(ctx context.Context, opts Options) ClearingResult {
	result := ClearingResult{Step: "graph_cache"}

	if opts.DryRun {
		result.Success = true
		result.Message = "would clear graph server cache"
		return result
	}

	if err := s.graph.ClearCache(ctx); err != nil {
		return fail(result, "cache clear failed", err)
	}
	result.Success = true
	result.ItemsCleared = 1
	result.Message = "graph server cache cleared"
	return result
}

func fail(result ClearingResult, message string, err error) ClearingResult {
	result.Success = false
	result.Message = message
	result.Errors = append(result.Errors, err.Error())
	return result
}

// Describe renders a report for terminal output.
func Describe(report *Report, verbose bool) string {
	var sb strings.Builder
	for _, step := range report.Steps {
		marker := "ok"
		if !step.Success {
			marker = "FAILED"
		}
		fmt.Fprintf(&sb, "[%s] %s: %s\n", marker, step.Step, step.Message)
		if verbose {
			for _, e := range step.Errors {
				fmt.Fprintf(&sb, "      %s\n", e)
			}
		}
	}
	sb.WriteString(report.Summary)
	return sb.String()
}
