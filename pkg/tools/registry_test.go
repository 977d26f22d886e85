package tools

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/suchanek/personal-agent-sub002/pkg/llms"
	"github.com/suchanek/personal-agent-sub002/pkg/perr"
)

type echoTool struct {
	name  string
	calls int
}

func (t *echoTool) Info() Info {
	return Info{
		Name:        t.name,
		Description: "echoes its input",
		Kind:        KindBuiltin,
		Parameters: []llms.ToolParameter{
			{Name: "text", Type: "string", Description: "text to echo", Required: true},
		},
	}
}

func (t *echoTool) Execute(_ context.Context, args map[string]any) (Result, error) {
	t.calls++
	return Result{Content: stringArg(args, "text")}, nil
}

func TestRegistryRegisterAndInvoke(t *testing.T) {
	reg := NewRegistry()
	echo := &echoTool{name: "echo"}
	require.NoError(t, reg.Register(echo))

	result, err := reg.Invoke(context.Background(), "echo", map[string]any{"text": "hello"})
	require.NoError(t, err)
	assert.Equal(t, "hello", result.Content)
	assert.Equal(t, 1, echo.calls)
}

func TestRegistryDuplicateName(t *testing.T) {
	reg := NewRegistry()
	require.NoError(t, reg.Register(&echoTool{name: "echo"}))

	err := reg.Register(&echoTool{name: "echo"})
	require.Error(t, err)
	assert.Equal(t, perr.KindDuplicate, perr.KindOf(err))
}

func TestRegistryInvokeUnknown(t *testing.T) {
	reg := NewRegistry()
	_, err := reg.Invoke(context.Background(), "nope", nil)
	assert.True(t, perr.IsNotFound(err))
}

func TestRegistryRenderForLLM(t *testing.T) {
	reg := NewRegistry()
	require.NoError(t, reg.Register(&echoTool{name: "beta"}))
	require.NoError(t, reg.Register(&echoTool{name: "alpha"}))

	defs := reg.RenderForLLM()
	require.Len(t, defs, 2)
	// Name order is deterministic.
	assert.Equal(t, "alpha", defs[0].Name)
	assert.Equal(t, "beta", defs[1].Name)
	require.Len(t, defs[0].Parameters, 1)
	assert.True(t, defs[0].Parameters[0].Required)
}

func TestRegistrySubset(t *testing.T) {
	reg := NewRegistry()
	require.NoError(t, reg.Register(&echoTool{name: "alpha"}))
	require.NoError(t, reg.Register(&echoTool{name: "beta"}))
	require.NoError(t, reg.Register(&echoTool{name: "gamma"}))

	sub := reg.Subset("beta", "gamma", "missing")
	assert.Equal(t, []string{"beta", "gamma"}, sub.Names())
	// Shared instances, not copies.
	got, ok := sub.Get("beta")
	require.True(t, ok)
	want, _ := reg.Get("beta")
	assert.Same(t, want.(*echoTool), got.(*echoTool))
}
