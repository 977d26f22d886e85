package knowledge

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/suchanek/personal-agent-sub002/pkg/graph"
	"github.com/suchanek/personal-agent-sub002/pkg/perr"
)

type fakeLocal struct {
	hits []LocalHit
	err  error
	got  string
}

func (f *fakeLocal) Search(_ context.Context, query string, _ int) ([]LocalHit, error) {
	f.got = query
	return f.hits, f.err
}

type fakeGraph struct {
	answer string
	err    error
	mode   graph.QueryMode
	calls  int
}

func (f *fakeGraph) Query(_ context.Context, _ string, mode graph.QueryMode, _ graph.QueryOptions) (string, error) {
	f.calls++
	f.mode = mode
	return f.answer, f.err
}

func TestClassifyMode(t *testing.T) {
	tests := []struct {
		query    string
		expected Mode
	}{
		{"how are Alice and Bob connected?", ModeGlobal},
		{"relationship between caffeine and sleep", ModeGlobal},
		{"why does the sky look blue", ModeGlobal},
		{"what is a graphml file", ModeLocal},
		{"who founded the company", ModeLocal},
		{"define entropy", ModeLocal},
		{"summarize the quarterly report", ModeHybrid},
	}
	for _, tt := range tests {
		t.Run(tt.query, func(t *testing.T) {
			assert.Equal(t, tt.expected, classifyMode(tt.query))
		})
	}
}

func TestCreativeRequestsRejected(t *testing.T) {
	coord := NewCoordinator(&fakeLocal{}, &fakeGraph{})

	for _, q := range []string{
		"write a poem about autumn",
		"generate a short story",
		"imagine a world without cars",
	} {
		_, err := coord.Query(context.Background(), q, ModeAuto, 5)
		require.Error(t, err, q)
		assert.Equal(t, perr.KindInvalidInput, perr.KindOf(err))
	}
}

func TestCreativeWordWithFactualAnchorAllowed(t *testing.T) {
	local := &fakeLocal{hits: []LocalHit{{Text: "The Raven, 1845", Score: 0.9}}}
	coord := NewCoordinator(local, &fakeGraph{})

	answer, err := coord.Query(context.Background(), "what poem did Poe write in 1845", ModeAuto, 5)
	require.NoError(t, err)
	assert.Equal(t, ModeLocal, answer.ResolvedMode)
	assert.Len(t, answer.LocalHits, 1)
}

func TestModeRouting(t *testing.T) {
	tests := []struct {
		name       string
		mode       Mode
		graphMode  graph.QueryMode
		graphCalls int
		localHits  int
	}{
		{"local only", ModeLocal, "", 0, 1},
		{"global", ModeGlobal, graph.ModeGlobal, 1, 0},
		{"mix", ModeMix, graph.ModeMix, 1, 0},
		{"hybrid unions both", ModeHybrid, graph.ModeHybrid, 1, 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			local := &fakeLocal{hits: []LocalHit{{Text: "hit", Score: 0.8}}}
			g := &fakeGraph{answer: "graph answer"}
			coord := NewCoordinator(local, g)

			answer, err := coord.Query(context.Background(), "anything at all", tt.mode, 5)
			require.NoError(t, err)
			assert.Equal(t, tt.mode, answer.ResolvedMode)
			assert.Equal(t, tt.graphCalls, g.calls)
			assert.Len(t, answer.LocalHits, tt.localHits)
			if tt.graphCalls > 0 {
				assert.Equal(t, tt.graphMode, g.mode)
				assert.Equal(t, "graph answer", answer.GraphAnswer)
			}
		})
	}
}

func TestHybridGraphFailureKeepsLocalHits(t *testing.T) {
	local := &fakeLocal{hits: []LocalHit{{Text: "hit", Score: 0.8}}}
	g := &fakeGraph{err: errors.New("connection refused")}
	coord := NewCoordinator(local, g)

	answer, err := coord.Query(context.Background(), "anything at all", ModeHybrid, 5)
	require.NoError(t, err)
	assert.Len(t, answer.LocalHits, 1)
	assert.Empty(t, answer.GraphAnswer)
	assert.Contains(t, answer.GraphError, "connection refused")
}

func TestQueryValidation(t *testing.T) {
	coord := NewCoordinator(&fakeLocal{}, &fakeGraph{})

	_, err := coord.Query(context.Background(), "  ", ModeLocal, 5)
	assert.Equal(t, perr.KindInvalidInput, perr.KindOf(err))

	_, err = coord.Query(context.Background(), "valid question", Mode("bogus"), 5)
	assert.Equal(t, perr.KindInvalidInput, perr.KindOf(err))
}

func TestParseMode(t *testing.T) {
	mode, err := ParseMode("")
	require.NoError(t, err)
	assert.Equal(t, ModeAuto, mode)

	mode, err = ParseMode(" Hybrid ")
	require.NoError(t, err)
	assert.Equal(t, ModeHybrid, mode)

	_, err = ParseMode("telepathic")
	assert.Equal(t, perr.KindInvalidInput, perr.KindOf(err))
}
