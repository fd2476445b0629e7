package utils

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestResolvePath(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)

	tests := []struct {
		name     string
		path     string
		baseDir  string
		expected string
	}{
		{"empty", "", "/base", ""},
		{"absolute unchanged", "/abs/path", "/base", "/abs/path"},
		{"absolute cleaned", "/abs/./x/../path", "/base", "/abs/path"},
		{"relative", "runs", "/base", "/base/runs"},
		{"relative parent", "../cache", "/base/sub", "/base/cache"},
		{"home", "~/.promptbench", "/base", filepath.Join(home, ".promptbench")},
		{"home alone", "~", "/base", home},
		{"tilde inside name", "~runs", "/base", "/base/~runs"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, filepath.FromSlash(tt.expected), ResolvePath(tt.path, tt.baseDir))
		})
	}
}
