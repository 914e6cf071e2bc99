package session

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDeepMerge(t *testing.T) {
	tests := []struct {
		name string
		dst  map[string]any
		src  map[string]any
		want map[string]any
	}{
		{
			name: "nested object merges key by key",
			dst:  map[string]any{"machine": map[string]any{"status": "idle", "error_code": 0}},
			src:  map[string]any{"machine": map[string]any{"status": "printing"}},
			want: map[string]any{"machine": map[string]any{"status": "printing", "error_code": 0}},
		},
		{
			name: "array replaces wholesale",
			dst:  map[string]any{"fans": map[string]any{"speeds": []any{1.0, 2.0, 3.0}}},
			src:  map[string]any{"fans": map[string]any{"speeds": []any{9.0}}},
			want: map[string]any{"fans": map[string]any{"speeds": []any{9.0}}},
		},
		{
			name: "new top-level key added",
			dst:  map[string]any{"machine": map[string]any{"status": "idle"}},
			src:  map[string]any{"print": map[string]any{"progress": 50.0}},
			want: map[string]any{
				"machine": map[string]any{"status": "idle"},
				"print":   map[string]any{"progress": 50.0},
			},
		},
		{
			name: "nil dst starts fresh",
			dst:  nil,
			src:  map[string]any{"machine": map[string]any{"status": "idle"}},
			want: map[string]any{"machine": map[string]any{"status": "idle"}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := deepMerge(tt.dst, tt.src)
			assert.Equal(t, tt.want, got)
		})
	}
}
