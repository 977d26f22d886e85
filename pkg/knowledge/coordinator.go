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

// Package knowledge presents one query surface over the local semantic
// knowledge base and the remote graph service, with mode auto-routing
// and a creative-request gate.
package knowledge

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/suchanek/personal-agent-sub002/pkg/graph"
	"github.com/suchanek/personal-agent-sub002/pkg/memory"
	"github.com/suchanek/personal-agent-sub002/pkg/perr"
)

// Mode selects which backends answer a query.
type Mode string

const (
	ModeLocal  Mode = "local"
	ModeGlobal Mode = "global"
	ModeHybrid Mode = "hybrid"
	ModeMix    Mode = "mix"
	ModeAuto   Mode = "auto"
)

// ParseMode validates a mode string, defaulting empty to auto.
func ParseMode(s string) (Mode, error) {
	switch Mode(strings.ToLower(strings.TrimSpace(s))) {
	case "":
		return ModeAuto, nil
	case ModeLocal, ModeGlobal, ModeHybrid, ModeMix, ModeAuto:
		return Mode(strings.ToLower(strings.TrimSpace(s))), nil
	}
	return "", perr.New(perr.KindInvalidInput, "Knowledge", "ParseMode",
		fmt.Sprintf("unknown mode %q (want local, global, hybrid, mix or auto)", s))
}

// LocalHit is one local knowledge-base match.
type LocalHit struct {
	Text  string  `json:"text"`
	Score float64 `json:"score"`
}

// Answer is the merged response from whichever backends a mode routed
// to. ResolvedMode records what auto classified to.
type Answer struct {
	Query        string     `json:"query"`
	ResolvedMode Mode       `json:"resolved_mode"`
	LocalHits    []LocalHit `json:"local_hits,omitempty"`
	GraphAnswer  string     `json:"graph_answer,omitempty"`
	GraphError   string     `json:"graph_error,omitempty"`
}

// LocalSearcher is the local semantic backend.
type LocalSearcher interface {
	Search(ctx context.Context, query string, limit int) ([]LocalHit, error)
}

// GraphQuerier is the remote graph backend.
type GraphQuerier interface {
	Query(ctx context.Context, query string, mode graph.QueryMode, opts graph.QueryOptions) (string, error)
}

// Coordinator fans a knowledge query out per the routing table.
type Coordinator struct {
	local LocalSearcher
	graph GraphQuerier
}

func NewCoordinator(local LocalSearcher, graphSvc GraphQuerier) *Coordinator {
	return &Coordinator{local: local, graph: graphSvc}
}

// Query answers q in the given mode. Auto classifies first; creative
// requests without a factual anchor are rejected outright.
func (c *Coordinator) Query(ctx context.Context, q string, mode Mode, limit int) (*Answer, error) {
	q = strings.TrimSpace(q)
	if q == "" {
		return nil, perr.New(perr.KindInvalidInput, "Knowledge", "Query", "query cannot be empty")
	}
	if limit <= 0 {
		limit = 5
	}

	if reason, creative := classifyCreative(q); creative {
		return nil, perr.New(perr.KindInvalidInput, "Knowledge", "Query", reason)
	}

	resolved := mode
	if mode == ModeAuto || mode == "" {
		resolved = classifyMode(q)
		slog.Debug("Auto-routed knowledge query", "query", q, "mode", resolved)
	}

	answer := &Answer{Query: q, ResolvedMode: resolved}
	switch resolved {
	case ModeLocal:
		hits, err := c.local.Search(ctx, q, limit)
		if err != nil {
			return nil, err
		}
		answer.LocalHits = hits
	case ModeGlobal:
		c.queryGraph(ctx, answer, graph.ModeGlobal, limit)
	case ModeMix:
		c.queryGraph(ctx, answer, graph.ModeMix, limit)
	case ModeHybrid:
		hits, err := c.local.Search(ctx, q, limit)
		if err != nil {
			return nil, err
		}
		answer.LocalHits = hits
		c.queryGraph(ctx, answer, graph.ModeHybrid, limit)
	default:
		return nil, perr.New(perr.KindInvalidInput, "Knowledge", "Query",
			fmt.Sprintf("unknown mode %q", resolved))
	}
	return answer, nil
}

// queryGraph records a graph-side failure on the answer instead of
// failing the whole query; local hits already gathered stay useful.
func (c *Coordinator) queryGraph(ctx context.Context, answer *Answer, mode graph.QueryMode, limit int) {
	response, err := c.graph.Query(ctx, answer.Query, mode, graph.QueryOptions{TopK: limit})
	if err != nil {
		answer.GraphError = err.Error()
		slog.Warn("Graph knowledge query failed", "mode", mode, "error", err)
		return
	}
	answer.GraphAnswer = response
}

// StoreSearcher adapts a memory store namespace into a LocalSearcher.
type StoreSearcher struct {
	store  *memory.Store
	userID string
}

func NewStoreSearcher(store *memory.Store, userID string) *StoreSearcher {
	return &StoreSearcher{store: store, userID: userID}
}

func (s *StoreSearcher) Search(ctx context.Context, query string, limit int) ([]LocalHit, error) {
	results, err := s.store.SearchMemories(ctx, query, s.userID, memory.SearchOptions{Limit: limit})
	if err != nil {
		return nil, err
	}
	hits := make([]LocalHit, 0, len(results))
	for _, r := range results {
		hits = append(hits, LocalHit{Text: r.Record.Text, Score: r.Score})
	}
	return hits, nil
}
