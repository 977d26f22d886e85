package perr

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestErrorFormat(t *testing.T) {
	tests := []struct {
		name string
		err  *Error
		want string
	}{
		{
			name: "without cause",
			err:  New(KindNotFound, "MemoryStore", "Delete", "memory abc not found"),
			want: "[NOT_FOUND] [MemoryStore:Delete] memory abc not found",
		},
		{
			name: "with cause",
			err:  Wrap(KindExternal, "GraphClient", "Query", "query failed", fmt.Errorf("HTTP 404")),
			want: "[EXTERNAL] [GraphClient:Query] query failed: HTTP 404",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.err.Error())
		})
	}
}

func TestKindOf(t *testing.T) {
	err := New(KindDuplicate, "MemoryStore", "Add", "similar memory exists")
	wrapped := fmt.Errorf("storing: %w", err)

	assert.Equal(t, KindDuplicate, KindOf(wrapped))
	assert.True(t, IsDuplicate(wrapped))
	assert.False(t, IsNotFound(wrapped))
	assert.Equal(t, Kind(""), KindOf(errors.New("plain")))
}

func TestUnwrap(t *testing.T) {
	cause := errors.New("disk full")
	err := Wrap(KindFatal, "MemoryStore", "Open", "cannot open database", cause)
	assert.ErrorIs(t, err, cause)
}
