package main

import (
	"encoding/json"
	"errors"
	"io"
	"testing"

	"github.com/spboyer/promptbench/internal/execution"
	"github.com/spboyer/promptbench/internal/graders"
	"github.com/spboyer/promptbench/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const greetPrompt = `id: greet
version: 2
system: "You are {{ tone }}."
user: "Say hello to {{ name }}"
variables:
  name: Ada
  tone: friendly
`

func TestRunCommand_RequiresExactlyOneArg(t *testing.T) {
	tests := []struct {
		name string
		args []string
	}{
		{"no args", []string{}},
		{"two args", []string{"a.yaml", "b.yaml"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cmd := newRunCommand()
			cmd.SetArgs(tt.args)
			cmd.SetOut(io.Discard)
			cmd.SetErr(io.Discard)
			err := cmd.Execute()
			assert.Error(t, err, "expected error for args=%v", tt.args)
		})
	}
}

func TestRunCommand_InvalidPromptFile(t *testing.T) {
	dir := setupProject(t, mockConfig)
	p := writePrompt(t, dir, "system: hi\nunknown: 1\n")

	_, err := executeRoot(t, "run", p, "--model", "alpha")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid prompt file")
	assert.Contains(t, err.Error(), "user")
}

func TestRunCommand_MissingPromptFile(t *testing.T) {
	setupProject(t, mockConfig)

	_, err := executeRoot(t, "run", "nope.yaml", "--model", "alpha")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "reading prompt file")
}

func TestRunCommand_PrintsProgressAndTable(t *testing.T) {
	dir := setupProject(t, mockConfig)
	p := writePrompt(t, dir, greetPrompt)

	out, err := executeRoot(t, "run", p, "--model", "alpha", "-m", "beta")
	require.NoError(t, err)

	assert.Contains(t, out, "2 model(s)")
	assert.Contains(t, out, "[0] alpha running")
	assert.Contains(t, out, "[1] beta completed")
	assert.Contains(t, out, "Tokens in/out")
	assert.Contains(t, out, "Mock response for: Say hello to Ada")
	assert.Contains(t, out, "2 completed, 0 failed")
}

func TestRunCommand_JSONOutput(t *testing.T) {
	dir := setupProject(t, mockConfig)
	p := writePrompt(t, dir, greetPrompt)

	inv := execution.NewMockInvoker().
		Script("good", execution.MockResponse{Output: "Hello, Grace", TokensIn: 1200, TokensOut: 3}).
		Script("bad", execution.MockResponse{Error: "rate limited"})
	useInvoker(t, inv)

	out, err := executeRoot(t, "run", p, "-m", "good", "-m", "bad", "--var", "name=Grace", "--json")
	require.NoError(t, err)

	var run models.Run
	require.NoError(t, json.Unmarshal([]byte(out), &run))
	require.Len(t, run.Results, 2)
	assert.Equal(t, models.StatusCompleted, run.Results[0].Status)
	assert.Equal(t, "Hello, Grace", run.Results[0].Output)
	assert.Equal(t, 1200, run.Results[0].TokensIn)
	assert.Equal(t, models.StatusFailed, run.Results[1].Status)
	assert.Equal(t, "rate limited", run.Results[1].Error)
	assert.Equal(t, "Grace", run.Variables["name"])
	require.NotNil(t, run.PromptID)
	assert.Equal(t, "greet", *run.PromptID)
	assert.Equal(t, 2, run.PromptVersion)

	calls := inv.Calls()
	require.Len(t, calls, 2)
	for _, c := range calls {
		require.Len(t, c.Messages, 2)
		assert.Equal(t, "You are friendly.", c.Messages[0].Content)
		assert.Equal(t, "Say hello to Grace", c.Messages[1].Content)
	}
}

func TestRunCommand_ModelsFromPromptFile(t *testing.T) {
	dir := setupProject(t, mockConfig)
	p := writePrompt(t, dir, greetPrompt+`models:
  - model: alpha
    temperature: 0.1
    max_tokens: 50
  - model: beta
    web_search: true
`)

	inv := execution.NewMockInvoker()
	useInvoker(t, inv)

	_, err := executeRoot(t, "run", p)
	require.NoError(t, err)

	calls := inv.Calls()
	require.Len(t, calls, 2)
	byModel := map[string]execution.Request{}
	for _, c := range calls {
		byModel[c.Model] = c
	}
	assert.InDelta(t, 0.1, byModel["alpha"].Temperature, 1e-9)
	assert.Equal(t, 50, byModel["alpha"].MaxTokens)
	assert.True(t, byModel["beta"].WebSearch)
	assert.InDelta(t, 0.7, byModel["beta"].Temperature, 1e-9)
}

func TestRunCommand_NoModelsWithoutTerminal(t *testing.T) {
	dir := setupProject(t, mockConfig)
	p := writePrompt(t, dir, greetPrompt)

	_, err := executeRoot(t, "run", p)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no models selected")
}

func TestRunCommand_InteractivePicker(t *testing.T) {
	dir := setupProject(t, mockConfig)
	p := writePrompt(t, dir, greetPrompt)

	var offered []string
	orig := promptModels
	promptModels = func(_ io.Reader, _ io.Writer, options []string) ([]string, error) {
		offered = options
		return []string{"beta"}, nil
	}
	t.Cleanup(func() { promptModels = orig })

	out, err := executeRoot(t, "run", p)
	require.NoError(t, err)
	assert.Equal(t, []string{"alpha", "beta"}, offered)
	assert.Contains(t, out, "1 model(s)")
	assert.Contains(t, out, "[0] beta completed")
}

func TestRunCommand_ValidatePasses(t *testing.T) {
	dir := setupProject(t, mockConfig)
	p := writePrompt(t, dir, greetPrompt)

	out, err := executeRoot(t, "run", p, "-m", "alpha", "--validate")
	require.NoError(t, err)
	assert.Contains(t, out, "✅ pass")
	assert.Contains(t, out, "Mock verdict")
	assert.Contains(t, out, "1/1 passed (100%)")
}

func TestRunCommand_ValidateFailureExitsWithTestFailure(t *testing.T) {
	dir := setupProject(t, mockConfig)
	p := writePrompt(t, dir, greetPrompt)

	inv := execution.NewMockInvoker().
		Script("alpha", execution.MockResponse{Output: "hi"}).
		Script("judge", execution.MockResponse{
			Output: `{"passed": false, "score": 3, "feedback": "Too short", "suggestions": ["Use the name"]}`,
		})
	useInvoker(t, inv)

	out, err := executeRoot(t, "run", p, "-m", "alpha", "--validate", "--validator-model", "judge")
	require.Error(t, err)

	var testFailureErr *TestFailureError
	require.True(t, errors.As(err, &testFailureErr))
	assert.Contains(t, err.Error(), "1 of 1")
	assert.Contains(t, out, "❌ fail")
	assert.Contains(t, out, "Use the name")

	last := inv.Calls()[len(inv.Calls())-1]
	assert.Equal(t, "judge", last.Model)
	assert.InDelta(t, graders.DefaultTemperature, last.Temperature, 1e-9)
}

func TestParseVars(t *testing.T) {
	tests := []struct {
		name     string
		defaults map[string]any
		flags    []string
		want     map[string]any
		wantErr  bool
	}{
		{
			name:     "flags override defaults",
			defaults: map[string]any{"a": 1, "b": "x"},
			flags:    []string{"b=y", "c=z=1"},
			want:     map[string]any{"a": 1, "b": "y", "c": "z=1"},
		},
		{
			name:  "empty value",
			flags: []string{"a="},
			want:  map[string]any{"a": ""},
		},
		{name: "missing equals", flags: []string{"a"}, wantErr: true},
		{name: "missing key", flags: []string{"=v"}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := parseVars(tt.defaults, tt.flags)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParseModelFlag(t *testing.T) {
	spec, err := parseModelFlag("openai/gpt-4o")
	require.NoError(t, err)
	assert.Equal(t, models.ModelSpec{Model: "openai/gpt-4o"}, spec)

	spec, err = parseModelFlag("openai/gpt-4o:online")
	require.NoError(t, err)
	assert.Equal(t, models.ModelSpec{Model: "openai/gpt-4o", WebSearch: true}, spec)

	_, err = parseModelFlag("  ")
	assert.Error(t, err)
}
