package memcoord

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRestate(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		userID   string
		expected string
	}{
		{
			name:     "generic verb conjugation",
			input:    "I love Python",
			userID:   "alice",
			expected: "alice loves Python",
		},
		{
			name:     "to be present",
			input:    "I am a software engineer",
			userID:   "alice",
			expected: "alice is a software engineer",
		},
		{
			name:     "contraction to be",
			input:    "I'm allergic to peanuts",
			userID:   "bob",
			expected: "bob is allergic to peanuts",
		},
		{
			name:     "to have",
			input:    "I have two cats",
			userID:   "alice",
			expected: "alice has two cats",
		},
		{
			name:     "possessive",
			input:    "My favorite color is blue",
			userID:   "alice",
			expected: "alice's favorite color is blue",
		},
		{
			name:     "negation",
			input:    "I don't eat meat",
			userID:   "alice",
			expected: "alice doesn't eat meat",
		},
		{
			name:     "object pronoun",
			input:    "Coffee keeps me awake",
			userID:   "alice",
			expected: "Coffee keeps alice awake",
		},
		{
			name:     "verb ending in y",
			input:    "I study biology",
			userID:   "alice",
			expected: "alice studies biology",
		},
		{
			name:     "verb ending in sh",
			input:    "I wish for rain",
			userID:   "alice",
			expected: "alice wishes for rain",
		},
		{
			name:     "go conjugates irregularly",
			input:    "I go hiking every weekend",
			userID:   "alice",
			expected: "alice goes hiking every weekend",
		},
		{
			name:     "already third person unchanged",
			input:    "alice loves Python",
			userID:   "alice",
			expected: "alice loves Python",
		},
		{
			name:     "will stays uninflected",
			input:    "I will visit Paris in June",
			userID:   "alice",
			expected: "alice will visit Paris in June",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, Restate(tt.input, tt.userID))
		})
	}
}

func TestRestateIdempotent(t *testing.T) {
	inputs := []string{
		"I love Python",
		"I am a software engineer and I have two cats",
		"My sister visits me on weekends",
		"I don't like mushrooms but I'll try them again",
	}
	for _, input := range inputs {
		once := Restate(input, "alice")
		twice := Restate(once, "alice")
		assert.Equal(t, once, twice, "restating %q twice must be stable", input)
	}
}
