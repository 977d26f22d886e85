package tools

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEvaluate(t *testing.T) {
	tests := []struct {
		expression string
		expected   float64
	}{
		{"2+3", 5},
		{"2 + 3 * 4", 14},
		{"(2+3)*4", 20},
		{"10/4", 2.5},
		{"10 % 3", 1},
		{"2^10", 1024},
		{"2^3^2", 512}, // right-associative
		{"-5 + 3", -2},
		{"3 * -2", -6},
		{"1.5 * 2", 3},
	}
	for _, tt := range tests {
		t.Run(tt.expression, func(t *testing.T) {
			value, err := Evaluate(tt.expression)
			require.NoError(t, err)
			assert.InDelta(t, tt.expected, value, 1e-9)
		})
	}
}

func TestEvaluateErrors(t *testing.T) {
	for _, expression := range []string{
		"", "2+", "(2+3", "2+3)", "2 & 3", "5/0", "7 % 0", "1..2",
	} {
		t.Run(expression, func(t *testing.T) {
			_, err := Evaluate(expression)
			assert.Error(t, err)
		})
	}
}

func TestCalculatorTool(t *testing.T) {
	reg := NewRegistry()
	require.NoError(t, RegisterCalculatorTool(reg))

	result, err := reg.Invoke(context.Background(), "calculator", map[string]any{"expression": "6*7"})
	require.NoError(t, err)
	assert.Equal(t, "42", result.Content)
	assert.False(t, result.IsError)

	result, err = reg.Invoke(context.Background(), "calculator", map[string]any{"expression": "1/0"})
	require.NoError(t, err)
	assert.True(t, result.IsError)
}
