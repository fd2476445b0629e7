package models

import (
	"maps"
	"slices"
	"time"
)

// Status is the lifecycle state of a single Result within a Run.
type Status string

const (
	StatusPending   Status = "pending"
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
)

// Terminal reports whether no further transitions are allowed from s.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// ModelSpec is one target model of a run. The order of specs in a Run
// defines the index space for its Results.
type ModelSpec struct {
	Model       string   `json:"model" bson:"model" yaml:"model"`
	WebSearch   bool     `json:"webSearch,omitempty" bson:"webSearch" yaml:"web_search,omitempty"`
	Temperature *float64 `json:"temperature,omitempty" bson:"temperature,omitempty" yaml:"temperature,omitempty"`
	MaxTokens   int      `json:"maxTokens,omitempty" bson:"maxTokens,omitempty" yaml:"max_tokens,omitempty"`
}

// Result is the per-model outcome slot of a Run.
type Result struct {
	Model            string   `json:"model" bson:"model"`
	Status           Status   `json:"status" bson:"status"`
	Output           string   `json:"output" bson:"output"`
	StructuredOutput any      `json:"structuredOutput" bson:"structuredOutput"`
	TokensIn         int      `json:"tokensIn" bson:"tokensIn"`
	TokensOut        int      `json:"tokensOut" bson:"tokensOut"`
	LatencyMs        int64    `json:"latencyMs" bson:"latencyMs"`
	Cost             *float64 `json:"cost" bson:"cost"`
	Error            string   `json:"error,omitempty" bson:"error,omitempty"`
}

// Verdict is the grading outcome for one completed Result.
type Verdict struct {
	TargetModel string   `json:"targetModel" bson:"targetModel" mapstructure:"targetModel"`
	Passed      bool     `json:"passed" bson:"passed" mapstructure:"passed"`
	Score       float64  `json:"score" bson:"score" mapstructure:"score"`
	Feedback    string   `json:"feedback" bson:"feedback" mapstructure:"feedback"`
	Suggestions []string `json:"suggestions" bson:"suggestions" mapstructure:"suggestions"`
}

// Validation holds the verdicts of the most recent validation pass.
type Validation struct {
	Enabled        bool      `json:"enabled" bson:"enabled"`
	ValidatorModel string    `json:"validatorModel,omitempty" bson:"validatorModel,omitempty"`
	Results        []Verdict `json:"results" bson:"results"`
}

// Run is one execution of a rendered prompt against an ordered set of models.
type Run struct {
	ID            string         `json:"id" bson:"_id"`
	PromptID      *string        `json:"promptId" bson:"promptId"`
	PromptVersion int            `json:"promptVersion" bson:"promptVersion"`
	Variables     map[string]any `json:"variables" bson:"variables"`
	Models        []ModelSpec    `json:"models" bson:"models"`
	Results       []Result       `json:"results" bson:"results"`
	Validation    Validation     `json:"validation" bson:"validation"`
	CreatedAt     time.Time      `json:"createdAt" bson:"createdAt"`
}

// NewRun builds a Run with one pending Result per model spec, in order.
func NewRun(id string, specs []ModelSpec, createdAt time.Time) *Run {
	results := make([]Result, len(specs))
	for i, spec := range specs {
		results[i] = Result{
			Model:  spec.Model,
			Status: StatusPending,
		}
	}

	return &Run{
		ID:            id,
		PromptVersion: 1,
		Variables:     map[string]any{},
		Models:        slices.Clone(specs),
		Results:       results,
		Validation:    Validation{Results: []Verdict{}},
		CreatedAt:     createdAt,
	}
}

// Settled reports whether every Result has reached a terminal status.
func (r *Run) Settled() bool {
	for _, res := range r.Results {
		if !res.Status.Terminal() {
			return false
		}
	}
	return true
}

// Clone returns a copy of r that shares no slices or maps with it.
// StructuredOutput values are shared; they are never mutated in place.
func (r *Run) Clone() *Run {
	if r == nil {
		return nil
	}

	c := *r
	if r.PromptID != nil {
		id := *r.PromptID
		c.PromptID = &id
	}
	c.Variables = maps.Clone(r.Variables)
	c.Models = slices.Clone(r.Models)
	c.Results = slices.Clone(r.Results)
	c.Validation.Results = make([]Verdict, len(r.Validation.Results))
	for i, v := range r.Validation.Results {
		v.Suggestions = slices.Clone(v.Suggestions)
		c.Validation.Results[i] = v
	}
	return &c
}

// ModelInfo describes a model offered by a backend catalog.
type ModelInfo struct {
	ID      string `json:"id"`
	OwnedBy string `json:"ownedBy,omitempty"`
	Created int64  `json:"created,omitempty"`
}
