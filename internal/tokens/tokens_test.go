package tokens

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestEstimate(t *testing.T) {
	tests := []struct {
		input string
		want  int
	}{
		{"", 0},
		{"a", 1},
		{"abcd", 1},
		{"abcde", 2},
		{"hello world", 3},
		{strings.Repeat("x", 400), 100},
		// runes, not bytes
		{"ééééé", 2},
	}
	for _, tt := range tests {
		require.Equal(t, tt.want, Estimate(tt.input), "Estimate(%q)", tt.input)
	}
}
