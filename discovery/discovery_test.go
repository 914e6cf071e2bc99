package discovery

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/elegoo-bridge/core/model"
)

func TestDedupe(t *testing.T) {
	tests := []struct {
		name string
		in   []model.Identity
		want int
	}{
		{
			name: "keeps first occurrence per serial",
			in: []model.Identity{
				{Serial: "SN1", Name: "legacy-name"},
				{Serial: "SN1", Name: "cc2-name"},
				{Serial: "SN2", Name: "other"},
			},
			want: 2,
		},
		{
			name: "drops entries with empty serial",
			in: []model.Identity{
				{Serial: ""},
				{Serial: "SN3"},
			},
			want: 1,
		},
		{
			name: "empty input",
			in:   nil,
			want: 0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out := dedupe(tt.in)
			assert.Len(t, out, tt.want)
		})
	}
}

func TestDedupe_PrefersFirstSeen(t *testing.T) {
	out := dedupe([]model.Identity{
		{Serial: "SN1", Name: "legacy-name"},
		{Serial: "SN1", Name: "cc2-name"},
	})
	assert.Equal(t, "legacy-name", out[0].Name)
}
