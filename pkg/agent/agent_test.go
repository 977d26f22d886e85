package agent

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/suchanek/personal-agent-sub002/pkg/config"
	"github.com/suchanek/personal-agent-sub002/pkg/llms"
	"github.com/suchanek/personal-agent-sub002/pkg/perr"
	"github.com/suchanek/personal-agent-sub002/pkg/tools"
)

// scriptedProvider replays canned chunk sequences, one per Stream call.
type scriptedProvider struct {
	rounds   [][]llms.StreamChunk
	requests []llms.Request
}

func (p *scriptedProvider) Name() string  { return "scripted" }
func (p *scriptedProvider) Model() string { return "test" }
func (p *scriptedProvider) Close() error  { return nil }

func (p *scriptedProvider) Stream(_ context.Context, req llms.Request) (<-chan llms.StreamChunk, error) {
	p.requests = append(p.requests, req)
	round := len(p.requests) - 1

	out := make(chan llms.StreamChunk)
	go func() {
		defer close(out)
		if round >= len(p.rounds) {
			out <- llms.StreamChunk{Type: llms.ChunkDone, Done: true, Status: llms.StatusCompleted}
			return
		}
		for _, chunk := range p.rounds[round] {
			out <- chunk
		}
	}()
	return out, nil
}

type fixedTool struct {
	name    string
	reply   string
	invoked int
}

func (t *fixedTool) Info() tools.Info {
	return tools.Info{Name: t.name, Description: "test tool", Kind: tools.KindBuiltin}
}

func (t *fixedTool) Execute(context.Context, map[string]any) (tools.Result, error) {
	t.invoked++
	return tools.Result{Content: t.reply}, nil
}

func contentRound(text string) []llms.StreamChunk {
	return []llms.StreamChunk{
		{Type: llms.ChunkContent, Text: text},
		{Type: llms.ChunkDone, Done: true, Status: llms.StatusCompleted, Content: text},
	}
}

func TestRunPlainAnswer(t *testing.T) {
	provider := &scriptedProvider{rounds: [][]llms.StreamChunk{
		{
			{Type: llms.ChunkContent, Text: "Hello"},
			{Type: llms.ChunkContent, Text: " there"},
			{Type: llms.ChunkDone, Done: true, Status: llms.StatusCompleted, Content: "Hello there"},
		},
	}}
	ag := New(provider, tools.NewRegistry(), Options{UserID: "alice", InstructionLevel: config.InstructionStandard})

	result, err := ag.Run(context.Background(), "hi", nil)
	require.NoError(t, err)
	assert.Equal(t, "Hello there", result.FinalContent)
	assert.Equal(t, llms.StatusCompleted, result.Status)
	assert.Equal(t, 3, result.ChunkCount)
	assert.Empty(t, result.ToolCalls)

	// History recorded the exchange.
	assert.Equal(t, 2, ag.History().Len())
	// System prompt carried the user.
	require.NotEmpty(t, provider.requests)
	assert.Contains(t, provider.requests[0].Messages[0].Content, "alice")
}

func TestRunInvokesToolAndFeedsBack(t *testing.T) {
	call := llms.ToolCall{Name: "lookup", Arguments: map[string]any{"q": "tea"}}
	provider := &scriptedProvider{rounds: [][]llms.StreamChunk{
		{
			{Type: llms.ChunkToolCall, Tools: []llms.ToolCall{call}},
			{Type: llms.ChunkDone, Done: true, Status: llms.StatusCompleted},
		},
		contentRound("You like green tea."),
	}}

	reg := tools.NewRegistry()
	tool := &fixedTool{name: "lookup", reply: "green tea"}
	require.NoError(t, reg.Register(tool))

	ag := New(provider, reg, Options{UserID: "alice"})
	result, err := ag.Run(context.Background(), "what tea do I like?", nil)
	require.NoError(t, err)

	assert.Equal(t, "You like green tea.", result.FinalContent)
	assert.Equal(t, 1, tool.invoked)
	require.Len(t, result.ToolCalls, 1)
	assert.Equal(t, "lookup", result.ToolCalls[0].Name)

	// Second request carried the tool response turn.
	require.Len(t, provider.requests, 2)
	second := provider.requests[1].Messages
	last := second[len(second)-1]
	assert.Equal(t, llms.RoleTool, last.Role)
	assert.Equal(t, "green tea", last.Content)
	assert.Equal(t, "lookup", last.ToolName)
}

func TestRunDedupsToolAndToolsShapes(t *testing.T) {
	call := llms.ToolCall{Name: "lookup", Arguments: map[string]any{"q": "tea"}}
	provider := &scriptedProvider{rounds: [][]llms.StreamChunk{
		{
			// Same call arrives on both container shapes.
			{Type: llms.ChunkToolCall, Tool: &call},
			{Type: llms.ChunkToolCall, Tools: []llms.ToolCall{call}},
			{Type: llms.ChunkDone, Done: true, Status: llms.StatusCompleted},
		},
		contentRound("done"),
	}}

	reg := tools.NewRegistry()
	tool := &fixedTool{name: "lookup", reply: "x"}
	require.NoError(t, reg.Register(tool))

	ag := New(provider, reg, Options{UserID: "alice"})
	result, err := ag.Run(context.Background(), "q", nil)
	require.NoError(t, err)
	assert.Equal(t, 1, tool.invoked)
	assert.Len(t, result.ToolCalls, 1)
}

func TestRunExtractsMarkdownImages(t *testing.T) {
	provider := &scriptedProvider{rounds: [][]llms.StreamChunk{
		{
			{Type: llms.ChunkContent, Text: "Here: ![sunset](https://img.example/sunset.png) and "},
			{Type: llms.ChunkContent, Text: "![again](https://img.example/sunset.png)"},
			{Type: llms.ChunkDone, Done: true, Status: llms.StatusCompleted,
				Content: "Here: ![sunset](https://img.example/sunset.png) and ![again](https://img.example/sunset.png)"},
		},
	}}
	ag := New(provider, tools.NewRegistry(), Options{UserID: "alice"})

	result, err := ag.Run(context.Background(), "show me", nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"https://img.example/sunset.png"}, result.Images)
}

func TestRunImagesFromToolResults(t *testing.T) {
	call := llms.ToolCall{Name: "draw", Arguments: map[string]any{}}
	provider := &scriptedProvider{rounds: [][]llms.StreamChunk{
		{
			{Type: llms.ChunkToolCall, Tools: []llms.ToolCall{call}},
			{Type: llms.ChunkDone, Done: true, Status: llms.StatusCompleted},
		},
		contentRound("Here is your image."),
	}}

	reg := tools.NewRegistry()
	require.NoError(t, reg.Register(&fixedTool{name: "draw", reply: "![result](https://img.example/dog.png)"}))

	ag := New(provider, reg, Options{UserID: "alice"})
	result, err := ag.Run(context.Background(), "draw a dog", nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"https://img.example/dog.png"}, result.Images)
}

func TestRunEnforcesToolCallBudget(t *testing.T) {
	call := llms.ToolCall{Name: "spin", Arguments: map[string]any{}}
	toolRound := []llms.StreamChunk{
		{Type: llms.ChunkToolCall, Tools: []llms.ToolCall{call}},
		{Type: llms.ChunkDone, Done: true, Status: llms.StatusCompleted, Content: "thinking"},
	}
	// The model asks for the same tool forever.
	rounds := make([][]llms.StreamChunk, 40)
	for i := range rounds {
		rounds[i] = toolRound
	}
	provider := &scriptedProvider{rounds: rounds}

	reg := tools.NewRegistry()
	tool := &fixedTool{name: "spin", reply: "again"}
	require.NoError(t, reg.Register(tool))

	ag := New(provider, reg, Options{UserID: "alice", ToolCallBudget: 3})
	result, err := ag.Run(context.Background(), "loop", nil)
	require.Error(t, err)
	assert.True(t, perr.IsTransient(err))
	assert.Equal(t, 3, tool.invoked)
	require.NotNil(t, result)
	assert.Equal(t, llms.StatusFailed, result.Status)
	assert.Contains(t, result.FinalContent, "budget")
	assert.Contains(t, result.FinalContent, "thinking")
}

func TestRunStreamFailure(t *testing.T) {
	provider := &scriptedProvider{rounds: [][]llms.StreamChunk{
		{
			{Type: llms.ChunkContent, Text: "partial"},
			{Type: llms.ChunkStatus, Status: llms.StatusFailed, Err: "model crashed"},
		},
	}}
	ag := New(provider, tools.NewRegistry(), Options{UserID: "alice"})

	result, err := ag.Run(context.Background(), "q", nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "model crashed")
	require.NotNil(t, result)
	assert.Equal(t, llms.StatusFailed, result.Status)
}

func TestRunChunkObserver(t *testing.T) {
	provider := &scriptedProvider{rounds: [][]llms.StreamChunk{contentRound("hi")}}
	ag := New(provider, tools.NewRegistry(), Options{UserID: "alice"})

	var seen []llms.ChunkType
	_, err := ag.Run(context.Background(), "q", func(chunk llms.StreamChunk) {
		seen = append(seen, chunk.Type)
	})
	require.NoError(t, err)
	assert.Equal(t, []llms.ChunkType{llms.ChunkContent, llms.ChunkDone}, seen)
}

func TestHistoryTrimsToBudget(t *testing.T) {
	history := NewHistory(50)
	for i := 0; i < 40; i++ {
		history.Add(llms.Message{Role: llms.RoleUser, Content: "a fairly long message about nothing in particular"})
	}
	recent := history.Recent()
	assert.Less(t, len(recent), 40)
	assert.Greater(t, len(recent), 0)
	// Newest retained.
	assert.Equal(t, llms.RoleUser, recent[len(recent)-1].Role)
}

func TestInstructionsVaryByLevel(t *testing.T) {
	toolNames := []string{"store_memory", "calculator"}

	minimal := Instructions(config.InstructionMinimal, "alice", toolNames)
	explicit := Instructions(config.InstructionExplicit, "alice", toolNames)
	standard := Instructions(config.InstructionStandard, "alice", toolNames)

	assert.Less(t, len(minimal), len(standard))
	assert.Less(t, len(standard), len(explicit))
	assert.NotContains(t, minimal, "store_memory")
	assert.Contains(t, explicit, "store_memory")
	for _, prompt := range []string{minimal, explicit, standard} {
		assert.Contains(t, prompt, "alice")
	}
}
