package main

import (
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResolveTCPAddr(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	tests := []struct {
		name        string
		addr        string
		allowRemote bool
		want        string
	}{
		{"bare port", "9000", false, "127.0.0.1:9000"},
		{"empty host", ":9000", false, "127.0.0.1:9000"},
		{"all interfaces", "0.0.0.0:9000", false, "127.0.0.1:9000"},
		{"ipv6 any", "[::]:9000", false, "127.0.0.1:9000"},
		{"explicit host", "10.0.0.5:9000", false, "10.0.0.5:9000"},
		{"allow remote", "0.0.0.0:9000", true, "0.0.0.0:9000"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, resolveTCPAddr(tt.addr, tt.allowRemote, logger))
		})
	}
}

func TestRPCCommand_Stdio(t *testing.T) {
	setupProject(t, mockConfig)

	requests := strings.Join([]string{
		`{"jsonrpc":"2.0","id":1,"method":"models.list"}`,
		`{"jsonrpc":"2.0","id":2,"method":"run.get","params":{"id":"missing"}}`,
	}, "\n") + "\n"

	cmd := newRootCommand()
	var out bytes.Buffer
	cmd.SetIn(strings.NewReader(requests))
	cmd.SetOut(&out)
	cmd.SetErr(io.Discard)
	cmd.SetArgs([]string{"rpc"})
	require.NoError(t, cmd.Execute())

	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	require.Len(t, lines, 2)

	var first struct {
		ID     int `json:"id"`
		Result struct {
			Models []struct {
				ID string `json:"id"`
			} `json:"models"`
		} `json:"result"`
	}
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &first))
	assert.Equal(t, 1, first.ID)
	require.Len(t, first.Result.Models, 2)
	assert.Equal(t, "alpha", first.Result.Models[0].ID)

	var second struct {
		Error struct {
			Code int `json:"code"`
		} `json:"error"`
	}
	require.NoError(t, json.Unmarshal([]byte(lines[1]), &second))
	assert.Equal(t, -32000, second.Error.Code)
}
